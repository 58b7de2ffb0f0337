package kube

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/graph"
)

// NewClientFunc builds a client for a REST config
type NewClientFunc func(cfg *rest.Config, opts client.Options) (client.Client, error)

// AccessApplier turns AccessContext descriptors into registered clients
type AccessApplier struct {
	registry  *Registry
	scheme    *runtime.Scheme
	newClient NewClientFunc
}

// NewAccessApplier creates an applier that registers its clients in registry
func NewAccessApplier(registry *Registry) *AccessApplier {
	return &AccessApplier{
		registry:  registry,
		scheme:    clientgoscheme.Scheme,
		newClient: client.New,
	}
}

// WithClientFunc returns a copy of the applier that builds clients with fn
func (a *AccessApplier) WithClientFunc(fn NewClientFunc) *AccessApplier {
	return &AccessApplier{
		registry:  a.registry,
		scheme:    a.scheme,
		newClient: fn,
	}
}

// Apply parses the kubeconfig of obj, builds a client for its current
// context and registers it under the node ID. The kubeconfig is removed
// from the returned live object.
func (a *AccessApplier) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var access infrav1alpha1.AccessContext
	if err := infrav1alpha1.FromUnstructured(obj, &access); err != nil {
		return nil, err
	}
	if access.Spec.Kubeconfig == "" {
		return nil, fmt.Errorf("access context %s has an empty kubeconfig", obj.GetName())
	}

	cfg, err := clientcmd.RESTConfigFromKubeConfig([]byte(access.Spec.Kubeconfig))
	if err != nil {
		// the parse error may quote the document
		return nil, fmt.Errorf("access context %s: invalid kubeconfig", obj.GetName())
	}
	cfg.UserAgent = rest.DefaultKubernetesUserAgent() + " clustergraph"

	c, err := a.newClient(cfg, client.Options{Scheme: a.scheme})
	if err != nil {
		return nil, fmt.Errorf("access context %s: failed to create client: %w", obj.GetName(), err)
	}
	a.registry.Register(node.ID, c)

	log.FromContext(ctx).V(1).Info("registered access context", "server", cfg.Host)

	redacted := obj.DeepCopy()
	unstructured.RemoveNestedField(redacted.Object, infrav1alpha1.AccessContextKubeconfigField...)
	return infrav1alpha1.SetStatus(redacted, infrav1alpha1.AccessContextStatus{
		Server:    cfg.Host,
		Connected: true,
	})
}
