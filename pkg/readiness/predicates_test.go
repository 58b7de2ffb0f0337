package readiness

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/chazu/clustergraph/pkg/graph"
)

func withStatus(kind string, status map[string]interface{}) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       kind,
			"metadata": map[string]interface{}{
				"name": "test",
			},
		},
	}
	if status != nil {
		obj.Object["status"] = status
	}
	return obj
}

func TestConditionMatchPredicate(t *testing.T) {
	ready := func(status string) map[string]interface{} {
		return map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"type": "Other", "status": "False"},
				map[string]interface{}{"type": "Ready", "status": status},
			},
		}
	}

	tests := []struct {
		name      string
		obj       *unstructured.Unstructured
		wantReady bool
	}{
		{"condition matches", withStatus("Pod", ready("True")), true},
		{"condition type matches but status doesn't", withStatus("Pod", ready("False")), false},
		{"no conditions", withStatus("Pod", nil), false},
		{"condition missing", withStatus("Pod", map[string]interface{}{"conditions": []interface{}{}}), false},
	}

	predicate := &ConditionMatchPredicate{ConditionType: "Ready", ConditionStatus: "True"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, err := predicate.Evaluate(tt.obj)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if ready != tt.wantReady {
				t.Errorf("Evaluate() ready = %v, want %v", ready, tt.wantReady)
			}
		})
	}
}

func TestFieldEqualsPredicate(t *testing.T) {
	tests := []struct {
		name      string
		obj       *unstructured.Unstructured
		predicate FieldEqualsPredicate
		wantReady bool
		wantErr   bool
	}{
		{
			name:      "namespace active",
			obj:       withStatus("Namespace", map[string]interface{}{"phase": "Active"}),
			predicate: FieldEqualsPredicate{Path: "status.phase", Value: "Active"},
			wantReady: true,
		},
		{
			name:      "namespace terminating",
			obj:       withStatus("Namespace", map[string]interface{}{"phase": "Terminating"}),
			predicate: FieldEqualsPredicate{Path: "status.phase", Value: "Active"},
		},
		{
			name:      "field missing",
			obj:       withStatus("ManagedCluster", nil),
			predicate: FieldEqualsPredicate{Path: "status.provisioningState", Value: "Succeeded"},
		},
		{
			name:      "boolean field",
			obj:       withStatus("AccessContext", map[string]interface{}{"connected": true}),
			predicate: FieldEqualsPredicate{Path: "status.connected", Value: "true"},
			wantReady: true,
		},
		{
			name:      "non-scalar field",
			obj:       withStatus("Pod", map[string]interface{}{"phase": "Running"}),
			predicate: FieldEqualsPredicate{Path: "status", Value: "Running"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, err := tt.predicate.Evaluate(tt.obj)
			if (err != nil) != tt.wantErr {
				t.Errorf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if ready != tt.wantReady {
				t.Errorf("Evaluate() ready = %v, want %v", ready, tt.wantReady)
			}
		})
	}
}

func TestNewEvaluator(t *testing.T) {
	tests := []struct {
		name    string
		pred    graph.ReadinessPredicate
		wantErr bool
	}{
		{"exists", graph.ReadinessPredicate{Type: graph.PredicateTypeExists}, false},
		{"condition", graph.ReadinessPredicate{Type: graph.PredicateTypeConditionMatch, ConditionType: "Ready", ConditionStatus: "True"}, false},
		{"condition without status", graph.ReadinessPredicate{Type: graph.PredicateTypeConditionMatch, ConditionType: "Ready"}, true},
		{"condition without type", graph.ReadinessPredicate{Type: graph.PredicateTypeConditionMatch, ConditionStatus: "True"}, true},
		{"field", graph.ReadinessPredicate{Type: graph.PredicateTypeFieldEquals, Path: "status.phase", Value: "Active"}, false},
		{"field without path", graph.ReadinessPredicate{Type: graph.PredicateTypeFieldEquals, Value: "Active"}, true},
		{"unknown", graph.ReadinessPredicate{Type: "DeploymentAvailable"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.pred)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEvaluator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
