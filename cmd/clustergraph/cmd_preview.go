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
	"github.com/spf13/cobra"

	"github.com/chazu/clustergraph/pkg/reconcile"
)

func newCmdPreview(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Declare the topology and show what up would change",
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

			r := reconcile.NewReconciler(store, nil, nil, nil, opts.runOptions())
			run, err := r.Preview(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := printViolations(out, run.Graph); err != nil {
				return err
			}
			return printPlan(out, run.Plan)
		},
	}
}
