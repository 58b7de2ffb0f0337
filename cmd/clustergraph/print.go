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
	"io"

	"sigs.k8s.io/yaml"

	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
)

// secretPlaceholder replaces secret values in printed output
const secretPlaceholder = "[secret]"

// printExports prints the exports as YAML. Secret values are masked
// unless showSecrets is set.
func printExports(w io.Writer, exports map[string]inventory.ExportValue, showSecrets bool) error {
	return printYAML(w, maskExports(exports, showSecrets))
}

func maskExports(exports map[string]inventory.ExportValue, showSecrets bool) map[string]interface{} {
	out := make(map[string]interface{}, len(exports))
	for name, e := range exports {
		if e.Secret && !showSecrets {
			out[name] = secretPlaceholder
			continue
		}
		out[name] = e.Value
	}
	return out
}

func printPlan(w io.Writer, plan *inventory.Plan) error {
	if err := printYAML(w, plan); err != nil {
		return err
	}
	counts := plan.Counts()
	_, err := fmt.Fprintf(w, "# %d to create, %d to update, %d unchanged, %d to delete\n",
		counts[inventory.ActionCreate], counts[inventory.ActionUpdate],
		counts[inventory.ActionSame], counts[inventory.ActionDelete])
	return err
}

func printViolations(w io.Writer, g *graph.Graph) error {
	for _, v := range g.Violations {
		if _, err := fmt.Fprintf(w, "# %s: %s: %s\n", v.Severity, v.Path, v.Message); err != nil {
			return err
		}
	}
	return nil
}

func printYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
