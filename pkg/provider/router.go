// Package provider routes resolved descriptors to the applier that owns
// their API group.
package provider

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/metrics"
)

// KubernetesProvider names the fallback route in metrics
const KubernetesProvider = "kubernetes"

type route struct {
	name    string
	applier graph.Applier
}

// Router implements graph.Applier by dispatching on the API group of the
// descriptor. Groups without a route go to the fallback applier.
type Router struct {
	routes   map[string]route
	fallback graph.Applier
}

// NewRouter creates a router whose unrouted groups are applied by fallback
func NewRouter(fallback graph.Applier) *Router {
	return &Router{
		routes:   make(map[string]route),
		fallback: fallback,
	}
}

// Handle routes descriptors of group to applier. name labels the route in
// logs and metrics.
func (r *Router) Handle(group, name string, applier graph.Applier) *Router {
	r.routes[group] = route{name: name, applier: applier}
	return r
}

// Apply provisions obj through the applier of its API group
func (r *Router) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj == nil {
		return nil, fmt.Errorf("object cannot be nil")
	}

	rt, ok := r.routes[obj.GroupVersionKind().Group]
	if !ok {
		rt = route{name: KubernetesProvider, applier: r.fallback}
	}
	if rt.applier == nil {
		return nil, fmt.Errorf("no provider for %s", obj.GroupVersionKind())
	}

	logger := log.FromContext(ctx).WithValues("provider", rt.name)
	start := time.Now()

	live, err := rt.applier.Apply(log.IntoContext(ctx, logger), node, obj)

	duration := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordApply("failure", rt.name, obj.GetKind(), duration)
		return nil, err
	}
	metrics.RecordApply("success", rt.name, obj.GetKind(), duration)
	logger.V(1).Info("provisioned", "duration_ms", duration*1000)
	return live, nil
}
