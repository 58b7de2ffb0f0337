package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// ClusterClient is the subset of the AKS API used by ClusterApplier
type ClusterClient interface {
	// CreateOrUpdate creates or updates a managed cluster and waits for the
	// operation to finish
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, mc armcontainerservice.ManagedCluster) (*armcontainerservice.ManagedCluster, error)

	// AdminKubeconfig returns the cluster admin kubeconfig
	AdminKubeconfig(ctx context.Context, resourceGroup, name string) ([]byte, error)

	// UserKubeconfig returns the cluster user kubeconfig
	UserKubeconfig(ctx context.Context, resourceGroup, name string) ([]byte, error)
}

// ResourceClient is the subset of the resource manager API used by the
// appliers
type ResourceClient interface {
	// GroupLocation returns the location of a resource group
	GroupLocation(ctx context.Context, resourceGroup string) (string, error)

	// CreateOrUpdatePublicIP creates or updates a public IP address as a
	// generic resource and waits for the operation to finish
	CreateOrUpdatePublicIP(ctx context.Context, resourceGroup, name string, res armresources.GenericResource) (*armresources.GenericResource, error)
}

// Resource provider coordinates of public IP addresses
const (
	publicIPProviderNamespace = "Microsoft.Network"
	publicIPResourceType      = "publicIPAddresses"
	publicIPAPIVersion        = "2023-09-01"
)

type sdkClusterClient struct {
	client *armcontainerservice.ManagedClustersClient
}

// NewClusterClient creates a ClusterClient backed by armcontainerservice
func NewClusterClient(subscriptionID string, cred azcore.TokenCredential) (ClusterClient, error) {
	c, err := armcontainerservice.NewManagedClustersClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create AKS client: %w", err)
	}
	return &sdkClusterClient{client: c}, nil
}

func (c *sdkClusterClient) CreateOrUpdate(ctx context.Context, resourceGroup, name string, mc armcontainerservice.ManagedCluster) (*armcontainerservice.ManagedCluster, error) {
	poller, err := c.client.BeginCreateOrUpdate(ctx, resourceGroup, name, mc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start AKS cluster creation: %w", err)
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create AKS cluster: %w", err)
	}
	return &res.ManagedCluster, nil
}

func (c *sdkClusterClient) AdminKubeconfig(ctx context.Context, resourceGroup, name string) ([]byte, error) {
	res, err := c.client.ListClusterAdminCredentials(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster admin credentials: %w", err)
	}
	return firstKubeconfig(res.Kubeconfigs)
}

func (c *sdkClusterClient) UserKubeconfig(ctx context.Context, resourceGroup, name string) ([]byte, error) {
	res, err := c.client.ListClusterUserCredentials(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster user credentials: %w", err)
	}
	return firstKubeconfig(res.Kubeconfigs)
}

func firstKubeconfig(results []*armcontainerservice.CredentialResult) ([]byte, error) {
	if len(results) == 0 || results[0] == nil || len(results[0].Value) == 0 {
		return nil, fmt.Errorf("no kubeconfig found for cluster")
	}
	return results[0].Value, nil
}

type sdkResourceClient struct {
	groups    *armresources.ResourceGroupsClient
	resources *armresources.Client
}

// NewResourceClient creates a ResourceClient backed by armresources
func NewResourceClient(subscriptionID string, cred azcore.TokenCredential) (ResourceClient, error) {
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	resources, err := armresources.NewClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resources client: %w", err)
	}
	return &sdkResourceClient{groups: groups, resources: resources}, nil
}

func (c *sdkResourceClient) GroupLocation(ctx context.Context, resourceGroup string) (string, error) {
	res, err := c.groups.Get(ctx, resourceGroup, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get resource group %s: %w", resourceGroup, err)
	}
	if res.Location == nil || *res.Location == "" {
		return "", fmt.Errorf("resource group %s has no location", resourceGroup)
	}
	return *res.Location, nil
}

func (c *sdkResourceClient) CreateOrUpdatePublicIP(ctx context.Context, resourceGroup, name string, res armresources.GenericResource) (*armresources.GenericResource, error) {
	poller, err := c.resources.BeginCreateOrUpdate(ctx, resourceGroup,
		publicIPProviderNamespace, "", publicIPResourceType, name, publicIPAPIVersion, res, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start public IP creation: %w", err)
	}
	out, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create public IP: %w", err)
	}
	return &out.GenericResource, nil
}
