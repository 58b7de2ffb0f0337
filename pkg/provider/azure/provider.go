package azure

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
)

// Provider dispatches Azure descriptors to the applier of their kind
type Provider struct {
	clusters *ClusterApplier
	ips      *PublicIPApplier
}

// NewProvider creates a provider from explicit clients
func NewProvider(clusters ClusterClient, resources ResourceClient) *Provider {
	return &Provider{
		clusters: NewClusterApplier(clusters, resources),
		ips:      NewPublicIPApplier(resources),
	}
}

// NewProviderFromConfig authenticates with the configured method and
// creates SDK backed clients for the configured subscription
func NewProviderFromConfig(cfg config.Azure) (*Provider, error) {
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("azure.subscriptionId is required")
	}
	cred, err := NewCredential(cfg)
	if err != nil {
		return nil, err
	}
	clusters, err := NewClusterClient(cfg.SubscriptionID, cred)
	if err != nil {
		return nil, err
	}
	resources, err := NewResourceClient(cfg.SubscriptionID, cred)
	if err != nil {
		return nil, err
	}
	return NewProvider(clusters, resources), nil
}

// Apply provisions an Azure descriptor
func (p *Provider) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	switch kind := obj.GetKind(); kind {
	case infrav1alpha1.KindManagedCluster:
		return p.clusters.Apply(ctx, node, obj)
	case infrav1alpha1.KindPublicIP:
		return p.ips.Apply(ctx, node, obj)
	default:
		return nil, fmt.Errorf("unsupported Azure kind %s", kind)
	}
}
