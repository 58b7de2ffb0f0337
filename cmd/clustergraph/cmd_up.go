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
	"fmt"

	"github.com/spf13/cobra"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/apply"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/provider"
	"github.com/chazu/clustergraph/pkg/provider/azure"
	"github.com/chazu/clustergraph/pkg/provider/kube"
	"github.com/chazu/clustergraph/pkg/provider/tlskey"
	"github.com/chazu/clustergraph/pkg/readiness"
	"github.com/chazu/clustergraph/pkg/reconcile"
)

func newCmdUp(opts *options) *cobra.Command {
	var prune, showSecrets bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision the topology and record its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			registry := kube.NewRegistry()
			router, err := newRouter(cfg, registry)
			if err != nil {
				return err
			}

			runOpts := opts.runOptions()
			runOpts.Prune = prune

			r := reconcile.NewReconciler(store, router, readiness.NewChecker(registry), apply.NewPruner(registry), runOpts)
			run, err := r.Up(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if run.Pruned != nil {
				for _, res := range run.Pruned.Reported {
					fmt.Fprintf(out, "# %s %s is no longer declared and must be removed manually\n", res.GVK.Kind, res.Name)
				}
			}
			return printExports(out, run.Exports, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "Delete Kubernetes resources that are no longer declared")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secret outputs in plaintext")
	return cmd
}

// newRouter wires the providers of every node kind
func newRouter(cfg *config.Config, registry *kube.Registry) (graph.Applier, error) {
	cloud, err := azure.NewProviderFromConfig(cfg.Azure)
	if err != nil {
		return nil, fmt.Errorf("failed to set up azure provider: %w", err)
	}

	return provider.NewRouter(apply.NewApplier(registry)).
		Handle(infrav1alpha1.TLSGroup, "tls", tlskey.NewGenerator()).
		Handle(infrav1alpha1.AzureGroup, "azure", cloud).
		Handle(infrav1alpha1.AccessGroup, "access", kube.NewAccessApplier(registry)), nil
}

func (o *options) runOptions() reconcile.Options {
	runOpts := reconcile.DefaultOptions()
	if o.Concurrency > 0 {
		runOpts.Executor.MaxConcurrency = o.Concurrency
	}
	return runOpts
}
