package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/log"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/graph"
)

const (
	// ManagedByTag is set on every Azure resource created by clustergraph
	ManagedByTag = "managed-by"

	// ClusterProvisionTimeout bounds a cluster create or update
	ClusterProvisionTimeout = 30 * time.Minute

	omsAgentAddon         = "omsagent"
	omsAgentWorkspaceKey  = "logAnalyticsWorkspaceResourceID"
	managedByValue        = "clustergraph"
	defaultAgentPoolOS    = "Linux"
	defaultAgentPoolType  = armcontainerservice.AgentPoolTypeVirtualMachineScaleSets
	provisioningSucceeded = "Succeeded"
)

// ClusterApplier creates AKS clusters from ManagedCluster descriptors
type ClusterApplier struct {
	clusters  ClusterClient
	resources ResourceClient
}

// NewClusterApplier creates a cluster applier
func NewClusterApplier(clusters ClusterClient, resources ResourceClient) *ClusterApplier {
	return &ClusterApplier{clusters: clusters, resources: resources}
}

// Apply creates or updates the cluster, then fetches both kubeconfigs and
// returns the descriptor with the observed status
func (a *ClusterApplier) Apply(ctx context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var mc infrav1alpha1.ManagedCluster
	if err := infrav1alpha1.FromUnstructured(obj, &mc); err != nil {
		return nil, err
	}
	spec := mc.Spec
	if spec.ResourceGroupName == "" {
		return nil, fmt.Errorf("cluster %s: resourceGroupName is required", mc.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, ClusterProvisionTimeout)
	defer cancel()

	location := spec.Location
	if location == "" {
		var err error
		if location, err = a.resources.GroupLocation(ctx, spec.ResourceGroupName); err != nil {
			return nil, err
		}
	}

	logger := log.FromContext(ctx).WithValues("resourceGroup", spec.ResourceGroupName, "cluster", mc.Name, "location", location)
	logger.Info("creating or updating AKS cluster")

	created, err := a.clusters.CreateOrUpdate(ctx, spec.ResourceGroupName, mc.Name, buildManagedCluster(spec, location))
	if err != nil {
		return nil, err
	}

	status := clusterStatus(created)
	if status.ProvisioningState == provisioningSucceeded {
		admin, err := a.clusters.AdminKubeconfig(ctx, spec.ResourceGroupName, mc.Name)
		if err != nil {
			return nil, err
		}
		user, err := a.clusters.UserKubeconfig(ctx, spec.ResourceGroupName, mc.Name)
		if err != nil {
			return nil, err
		}
		status.KubeAdminConfigRaw = string(admin)
		status.KubeConfigRaw = string(user)
	}

	logger.V(1).Info("AKS cluster provisioned", "provisioningState", status.ProvisioningState, "nodeResourceGroup", status.NodeResourceGroup)
	return infrav1alpha1.SetStatus(obj, status)
}

// buildManagedCluster maps a ManagedCluster spec to the AKS API model
func buildManagedCluster(spec infrav1alpha1.ManagedClusterSpec, location string) armcontainerservice.ManagedCluster {
	props := &armcontainerservice.ManagedClusterProperties{
		DNSPrefix:               to.Ptr(spec.DNSPrefix),
		KubernetesVersion:       to.Ptr(spec.KubernetesVersion),
		EnablePodSecurityPolicy: to.Ptr(spec.EnablePodSecurityPolicy),
		EnableRBAC:              to.Ptr(spec.RoleBasedAccessControl.Enabled),
		LinuxProfile: &armcontainerservice.LinuxProfile{
			AdminUsername: to.Ptr(spec.LinuxProfile.AdminUsername),
			SSH: &armcontainerservice.SSHConfiguration{
				PublicKeys: []*armcontainerservice.SSHPublicKey{
					{KeyData: to.Ptr(spec.LinuxProfile.SSHKey)},
				},
			},
		},
		ServicePrincipalProfile: &armcontainerservice.ManagedClusterServicePrincipalProfile{
			ClientID: to.Ptr(spec.ServicePrincipal.ClientID),
			Secret:   to.Ptr(spec.ServicePrincipal.ClientSecret),
		},
		NetworkProfile: &armcontainerservice.NetworkProfile{
			NetworkPlugin:    to.Ptr(armcontainerservice.NetworkPlugin(spec.NetworkProfile.NetworkPlugin)),
			ServiceCidr:      to.Ptr(spec.NetworkProfile.ServiceCIDR),
			DNSServiceIP:     to.Ptr(spec.NetworkProfile.DNSServiceIP),
			DockerBridgeCidr: to.Ptr(spec.NetworkProfile.DockerBridgeCIDR),
		},
	}

	for i, pool := range spec.AgentPoolProfiles {
		props.AgentPoolProfiles = append(props.AgentPoolProfiles, buildAgentPool(pool, i == 0))
	}

	if aad := spec.RoleBasedAccessControl.AzureAD; aad != nil {
		props.AADProfile = &armcontainerservice.ManagedClusterAADProfile{
			ClientAppID:     to.Ptr(aad.ClientAppID),
			ServerAppID:     to.Ptr(aad.ServerAppID),
			ServerAppSecret: to.Ptr(aad.ServerAppSecret),
		}
		if aad.TenantID != "" {
			props.AADProfile.TenantID = to.Ptr(aad.TenantID)
		}
	}

	if oms := spec.AddonProfiles.OMSAgent; oms != nil {
		props.AddonProfiles = map[string]*armcontainerservice.ManagedClusterAddonProfile{
			omsAgentAddon: {
				Enabled: to.Ptr(oms.Enabled),
				Config: map[string]*string{
					omsAgentWorkspaceKey: to.Ptr(oms.LogAnalyticsWorkspaceID),
				},
			},
		}
	}

	return armcontainerservice.ManagedCluster{
		Location:   to.Ptr(location),
		Tags:       buildTags(spec.Tags),
		Properties: props,
	}
}

func buildAgentPool(pool infrav1alpha1.AgentPoolProfile, first bool) *armcontainerservice.ManagedClusterAgentPoolProfile {
	osType := pool.OSType
	if osType == "" {
		osType = defaultAgentPoolOS
	}
	mode := pool.Mode
	if mode == "" {
		mode = string(armcontainerservice.AgentPoolModeUser)
		if first {
			mode = string(armcontainerservice.AgentPoolModeSystem)
		}
	}

	profile := &armcontainerservice.ManagedClusterAgentPoolProfile{
		Name:   to.Ptr(pool.Name),
		Count:  to.Ptr(pool.Count),
		VMSize: to.Ptr(pool.VMSize),
		OSType: to.Ptr(armcontainerservice.OSType(osType)),
		Mode:   to.Ptr(armcontainerservice.AgentPoolMode(mode)),
		Type:   to.Ptr(defaultAgentPoolType),
	}
	if pool.OSDiskSizeGB > 0 {
		profile.OSDiskSizeGB = to.Ptr(pool.OSDiskSizeGB)
	}
	if pool.VnetSubnetID != "" {
		profile.VnetSubnetID = to.Ptr(pool.VnetSubnetID)
	}
	return profile
}

func buildTags(tags map[string]string) map[string]*string {
	out := map[string]*string{ManagedByTag: to.Ptr(managedByValue)}
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

// clusterStatus extracts the observed state of a managed cluster
func clusterStatus(mc *armcontainerservice.ManagedCluster) infrav1alpha1.ManagedClusterStatus {
	status := infrav1alpha1.ManagedClusterStatus{
		ID:   deref(mc.ID),
		Name: deref(mc.Name),
	}
	if p := mc.Properties; p != nil {
		status.NodeResourceGroup = deref(p.NodeResourceGroup)
		status.FQDN = deref(p.Fqdn)
		status.ProvisioningState = deref(p.ProvisioningState)
	}
	return status
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
