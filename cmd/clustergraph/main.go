/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"

	// Import all Kubernetes client auth plugins so access contexts can use
	// exec and OIDC kubeconfigs.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/metrics"
)

// options holds the global command-line flags
type options struct {
	ConfigPath  string
	StateURL    string
	Concurrency int
	MetricsFile string
}

func newRootCmd(opts *options) *cobra.Command {
	zapOpts := zap.Options{Development: true}

	cmd := &cobra.Command{
		Use:   "clustergraph",
		Short: "Provision an AKS cluster with its access and RBAC topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultState := os.Getenv("CLUSTERGRAPH_STATE")
	if defaultState == "" {
		defaultState = inventory.DefaultStoreURL
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "clustergraph.yaml", "Configuration file")
	flags.StringVar(&opts.StateURL, "state", defaultState, "State store URL (env CLUSTERGRAPH_STATE) (file:/path/to/state.json | sqlite:/path/to.db)")
	flags.IntVar(&opts.Concurrency, "concurrency", 10, "Maximum number of nodes provisioned concurrently")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write metrics in Prometheus text format to this file when the command finishes")

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	zapOpts.BindFlags(zapFlags)
	flags.AddGoFlagSet(zapFlags)

	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
	}

	cmd.AddCommand(newCmdPreview(opts))
	cmd.AddCommand(newCmdUp(opts))
	cmd.AddCommand(newCmdOutputs(opts))
	cmd.AddCommand(newCmdGraph(opts))
	return cmd
}

func (o *options) loadConfig() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}

func (o *options) openStore() (inventory.Store, error) {
	return inventory.OpenStore(o.StateURL)
}

// writeMetrics dumps the metrics registry, also after a failed command
func (o *options) writeMetrics() error {
	if o.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteToTextfile(o.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func main() {
	opts := &options{}
	root := newRootCmd(opts)

	err := root.ExecuteContext(ctrl.SetupSignalHandler())
	if mErr := opts.writeMetrics(); mErr != nil && err == nil {
		err = mErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
