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
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/topology"
)

func newCmdGraph(opts *options) *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the nodes of the topology in provisioning order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			g, err := topology.Declare(cfg)
			if err != nil {
				return err
			}
			dag, err := graph.BuildDAG(g)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dot {
				return dag.WriteDOT(out)
			}
			for _, id := range dag.GetOrder() {
				node, _ := dag.GetNode(id)
				line := fmt.Sprintf("%s\t%s/%s", id, node.Object.GetKind(), node.Object.GetName())
				if edges := node.Edges(); len(edges) > 0 {
					line += "\t<- " + strings.Join(edges, ", ")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "Print the graph in Graphviz DOT format")
	return cmd
}
