package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/log"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/graph"
)

// DefaultPublicIPSKU is used when a PublicIP does not set its SKU
const DefaultPublicIPSKU = "Standard"

// PublicIPApplier creates public IP addresses from PublicIP descriptors
type PublicIPApplier struct {
	resources ResourceClient
}

// NewPublicIPApplier creates a public IP applier
func NewPublicIPApplier(resources ResourceClient) *PublicIPApplier {
	return &PublicIPApplier{resources: resources}
}

// Apply creates or updates the address and returns the descriptor with the
// allocated IP in its status
func (a *PublicIPApplier) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var ip infrav1alpha1.PublicIP
	if err := infrav1alpha1.FromUnstructured(obj, &ip); err != nil {
		return nil, err
	}
	spec := ip.Spec
	if spec.ResourceGroupName == "" {
		return nil, fmt.Errorf("public IP %s: resourceGroupName is required", ip.Name)
	}

	location := spec.Location
	if location == "" {
		var err error
		if location, err = a.resources.GroupLocation(ctx, spec.ResourceGroupName); err != nil {
			return nil, err
		}
	}

	res, err := buildPublicIP(spec, location)
	if err != nil {
		return nil, fmt.Errorf("public IP %s: %w", ip.Name, err)
	}

	log.FromContext(ctx).Info("creating or updating public IP",
		"resourceGroup", spec.ResourceGroupName, "name", ip.Name, "location", location)

	created, err := a.resources.CreateOrUpdatePublicIP(ctx, spec.ResourceGroupName, ip.Name, res)
	if err != nil {
		return nil, err
	}
	return infrav1alpha1.SetStatus(obj, publicIPStatus(created))
}

// buildPublicIP maps a PublicIP spec to a generic resource body
func buildPublicIP(spec infrav1alpha1.PublicIPSpec, location string) (armresources.GenericResource, error) {
	switch spec.AllocationMethod {
	case infrav1alpha1.IPAllocationStatic, infrav1alpha1.IPAllocationDynamic:
	default:
		return armresources.GenericResource{}, fmt.Errorf("unsupported allocation method %q", spec.AllocationMethod)
	}

	sku := spec.SKU
	if sku == "" {
		sku = DefaultPublicIPSKU
	}
	if sku == "Standard" && spec.AllocationMethod != infrav1alpha1.IPAllocationStatic {
		return armresources.GenericResource{}, fmt.Errorf("sku Standard requires Static allocation")
	}

	return armresources.GenericResource{
		Location: to.Ptr(location),
		Tags:     buildTags(spec.Tags),
		SKU:      &armresources.SKU{Name: to.Ptr(sku)},
		Properties: map[string]interface{}{
			"publicIPAllocationMethod": string(spec.AllocationMethod),
			"publicIPAddressVersion":   "IPv4",
		},
	}, nil
}

// publicIPStatus extracts the observed state of a public IP address
func publicIPStatus(res *armresources.GenericResource) infrav1alpha1.PublicIPStatus {
	status := infrav1alpha1.PublicIPStatus{ID: deref(res.ID)}
	if props, ok := res.Properties.(map[string]interface{}); ok {
		status.IPAddress, _ = props["ipAddress"].(string)
		status.ProvisioningState, _ = props["provisioningState"].(string)
	}
	return status
}
