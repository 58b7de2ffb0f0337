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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/clustergraph/pkg/inventory"
)

func testExports() map[string]inventory.ExportValue {
	return map[string]inventory.ExportValue{
		"kubeconfig":       {Value: "apiVersion: v1\nkind: Config\n", Secret: true},
		"clusterName":      {Value: "aks-demo"},
		"appNamespaceName": {Value: "apps"},
	}
}

func TestPrintExports_MasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printExports(&buf, testExports(), false))

	out := buf.String()
	assert.Contains(t, out, "kubeconfig: '[secret]'")
	assert.Contains(t, out, "clusterName: aks-demo")
	assert.NotContains(t, out, "kind: Config")
}

func TestPrintExports_ShowSecrets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printExports(&buf, testExports(), true))

	assert.Contains(t, buf.String(), "kind: Config")
	assert.NotContains(t, buf.String(), secretPlaceholder)
}

func TestPrintPlan(t *testing.T) {
	plan := &inventory.Plan{Steps: []inventory.Step{
		{NodeID: "ssh-key", Kind: "PrivateKey", Name: "aks-demo-ssh-key", Action: inventory.ActionSame},
		{NodeID: "ns-apps", Kind: "Namespace", Name: "apps", Action: inventory.ActionCreate},
		{NodeID: "old-role", Kind: "Role", Name: "old", Action: inventory.ActionDelete},
	}}

	var buf bytes.Buffer
	require.NoError(t, printPlan(&buf, plan))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "# 1 to create, 0 to update, 1 unchanged, 1 to delete", lines[len(lines)-1])
	assert.Contains(t, buf.String(), "action: create")
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd(&options{})

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"preview", "up", "outputs", "graph"}, names)

	for _, name := range []string{"config", "state", "concurrency", "metrics-file", "zap-log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}
