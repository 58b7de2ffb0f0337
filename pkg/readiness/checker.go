package readiness

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/chazu/clustergraph/pkg/graph"
)

// ClientSource resolves the Kubernetes client of an access context node.
type ClientSource interface {
	Client(providerID string) (client.Client, error)
}

// Checker implements graph.ReadinessChecker. Kubernetes objects are read
// back through their access context before each evaluation; cloud
// objects are judged on the live object the provider returned.
type Checker struct {
	clients ClientSource
}

var _ graph.ReadinessChecker = (*Checker)(nil)

// NewChecker accepts a nil ClientSource when no node has a provider.
func NewChecker(clients ClientSource) *Checker {
	return &Checker{clients: clients}
}

// Check reports whether every predicate of node holds. An object that
// does not exist yet is not ready, and not an error.
func (c *Checker) Check(ctx context.Context, node *graph.Node, live *unstructured.Unstructured) (bool, error) {
	switch {
	case node == nil:
		return false, fmt.Errorf("nil node")
	case live == nil:
		return false, fmt.Errorf("node %s: nil live object", node.ID)
	case len(node.ReadyWhen) == 0:
		return true, nil
	}

	evaluators := make([]Evaluator, 0, len(node.ReadyWhen))
	for i, pred := range node.ReadyWhen {
		ev, err := NewEvaluator(pred)
		if err != nil {
			return false, fmt.Errorf("node %s readyWhen[%d]: %w", node.ID, i, err)
		}
		evaluators = append(evaluators, ev)
	}

	obj := live
	if node.Provider != "" {
		var err error
		if obj, err = c.fetch(ctx, node.Provider, live); err != nil || obj == nil {
			return false, err
		}
	}

	for _, ev := range evaluators {
		if ok, err := ev.Evaluate(obj); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// fetch returns the current state of obj, or nil if it is gone.
func (c *Checker) fetch(ctx context.Context, provider string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if c.clients == nil {
		return nil, fmt.Errorf("no clients configured for provider %s", provider)
	}
	kc, err := c.clients.Client(provider)
	if err != nil {
		return nil, err
	}

	current := &unstructured.Unstructured{}
	current.SetGroupVersionKind(obj.GroupVersionKind())
	err = kc.Get(ctx, client.ObjectKeyFromObject(obj), current)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", client.ObjectKeyFromObject(obj), err)
	}
	return current, nil
}
