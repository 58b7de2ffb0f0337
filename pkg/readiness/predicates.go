package readiness

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/chazu/clustergraph/pkg/graph"
)

// Evaluator decides whether one readiness predicate holds for a live object.
type Evaluator interface {
	Evaluate(obj *unstructured.Unstructured) (bool, error)
}

// ConditionMatchPredicate holds when status.conditions has an entry of
// ConditionType whose status is ConditionStatus.
type ConditionMatchPredicate struct {
	ConditionType   string
	ConditionStatus string
}

func (p *ConditionMatchPredicate) Evaluate(obj *unstructured.Unstructured) (bool, error) {
	conds, _, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil {
		return false, fmt.Errorf("status.conditions: %w", err)
	}
	for _, c := range conds {
		m, _ := c.(map[string]interface{})
		if m["type"] == p.ConditionType {
			return m["status"] == p.ConditionStatus, nil
		}
	}
	return false, nil
}

// FieldEqualsPredicate holds when the scalar at Path prints as Value.
// Provisioning states of cloud resources and namespace phases are
// checked this way.
type FieldEqualsPredicate struct {
	Path  string
	Value string
}

func (p *FieldEqualsPredicate) Evaluate(obj *unstructured.Unstructured) (bool, error) {
	v, _, err := unstructured.NestedFieldNoCopy(obj.Object, strings.Split(p.Path, ".")...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", p.Path, err)
	}
	switch v.(type) {
	case nil:
		return false, nil
	case string, bool, int64, float64:
		return fmt.Sprint(v) == p.Value, nil
	}
	return false, fmt.Errorf("%s holds a %T, want a scalar", p.Path, v)
}

// ExistsPredicate holds for any object that could be read.
type ExistsPredicate struct{}

func (ExistsPredicate) Evaluate(obj *unstructured.Unstructured) (bool, error) {
	return obj != nil, nil
}

// NewEvaluator validates pred and returns its evaluator.
func NewEvaluator(pred graph.ReadinessPredicate) (Evaluator, error) {
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	switch pred.Type {
	case graph.PredicateTypeConditionMatch:
		return &ConditionMatchPredicate{ConditionType: pred.ConditionType, ConditionStatus: pred.ConditionStatus}, nil
	case graph.PredicateTypeFieldEquals:
		return &FieldEqualsPredicate{Path: pred.Path, Value: pred.Value}, nil
	default:
		return ExistsPredicate{}, nil
	}
}
