package graph

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func testObject(name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"metadata":   map[string]interface{}{"name": name},
		},
	}
}

func testNode(id string, deps ...string) Node {
	return Node{
		ID:          id,
		Object:      *testObject(id),
		ApplyPolicy: ApplyPolicy{Mode: ApplyModeApply},
		DependsOn:   deps,
	}
}

func testGraph(nodes ...Node) *Graph {
	return &Graph{
		Metadata: GraphMetadata{Name: "test", Version: "v1"},
		Nodes:    nodes,
	}
}
