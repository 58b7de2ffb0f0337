/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ManagedClusterSpec defines the desired state of an AKS cluster
type ManagedClusterSpec struct {
	// ResourceGroupName is the existing resource group to create the cluster in
	// +kubebuilder:validation:MinLength=1
	ResourceGroupName string `json:"resourceGroupName"`

	// Location is the Azure region. Defaults to the resource group's location.
	// +optional
	Location string `json:"location,omitempty"`

	// DNSPrefix is the prefix of the API server FQDN
	DNSPrefix string `json:"dnsPrefix"`

	// KubernetesVersion is the orchestrator version
	KubernetesVersion string `json:"kubernetesVersion"`

	// EnablePodSecurityPolicy turns on the pod security policy admission plugin
	// +optional
	EnablePodSecurityPolicy bool `json:"enablePodSecurityPolicy,omitempty"`

	// AgentPoolProfiles are the node pools of the cluster
	// +kubebuilder:validation:MinItems=1
	AgentPoolProfiles []AgentPoolProfile `json:"agentPoolProfiles"`

	// LinuxProfile configures SSH access to the nodes
	LinuxProfile LinuxProfile `json:"linuxProfile"`

	// ServicePrincipal is the identity the cluster uses to manage Azure resources
	ServicePrincipal ServicePrincipalProfile `json:"servicePrincipal"`

	// RoleBasedAccessControl configures Kubernetes RBAC and Azure AD integration
	RoleBasedAccessControl RBACProfile `json:"roleBasedAccessControl"`

	// NetworkProfile configures cluster networking
	NetworkProfile NetworkProfile `json:"networkProfile"`

	// AddonProfiles configures cluster add-ons
	// +optional
	AddonProfiles AddonProfiles `json:"addonProfiles,omitempty"`

	// Tags are applied to the cluster resource
	// +optional
	Tags map[string]string `json:"tags,omitempty"`
}

// AgentPoolProfile defines a node pool
type AgentPoolProfile struct {
	Name         string `json:"name"`
	Count        int32  `json:"count"`
	VMSize       string `json:"vmSize"`
	OSType       string `json:"osType"`
	OSDiskSizeGB int32  `json:"osDiskSizeGB"`
	VnetSubnetID string `json:"vnetSubnetID"`

	// Mode is System or User. The first pool defaults to System.
	// +optional
	Mode string `json:"mode,omitempty"`
}

// LinuxProfile configures the node administrator account
type LinuxProfile struct {
	AdminUsername string `json:"adminUsername"`

	// SSHKey is an OpenSSH public key
	SSHKey string `json:"sshKey"`
}

// ServicePrincipalProfile is the cluster service principal
type ServicePrincipalProfile struct {
	ClientID string `json:"clientID"`

	// ClientSecret is secret
	ClientSecret string `json:"clientSecret"`
}

// RBACProfile configures role based access control
type RBACProfile struct {
	Enabled bool `json:"enabled"`

	// +optional
	AzureAD *AzureADProfile `json:"azureAD,omitempty"`
}

// AzureADProfile configures Azure AD integration
type AzureADProfile struct {
	ClientAppID string `json:"clientAppID"`
	ServerAppID string `json:"serverAppID"`

	// ServerAppSecret is secret
	ServerAppSecret string `json:"serverAppSecret"`

	// TenantID defaults to the tenant of the deploying subscription
	// +optional
	TenantID string `json:"tenantID,omitempty"`
}

// NetworkProfile configures cluster networking
type NetworkProfile struct {
	NetworkPlugin    string `json:"networkPlugin"`
	ServiceCIDR      string `json:"serviceCIDR"`
	DNSServiceIP     string `json:"dnsServiceIP"`
	DockerBridgeCIDR string `json:"dockerBridgeCIDR"`
}

// AddonProfiles configures cluster add-ons
type AddonProfiles struct {
	// +optional
	OMSAgent *OMSAgentProfile `json:"omsAgent,omitempty"`
}

// OMSAgentProfile configures container monitoring
type OMSAgentProfile struct {
	Enabled                 bool   `json:"enabled"`
	LogAnalyticsWorkspaceID string `json:"logAnalyticsWorkspaceID"`
}

// ManagedClusterStatus is the observed state of an AKS cluster
type ManagedClusterStatus struct {
	ID                string `json:"id,omitempty"`
	Name              string `json:"name,omitempty"`
	NodeResourceGroup string `json:"nodeResourceGroup,omitempty"`
	FQDN              string `json:"fqdn,omitempty"`
	ProvisioningState string `json:"provisioningState,omitempty"`

	// KubeConfigRaw is the user kubeconfig. Secret.
	KubeConfigRaw string `json:"kubeConfigRaw,omitempty"`

	// KubeAdminConfigRaw is the cluster admin kubeconfig. Secret.
	KubeAdminConfigRaw string `json:"kubeAdminConfigRaw,omitempty"`
}

// ManagedCluster is an AKS cluster
type ManagedCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ManagedClusterSpec   `json:"spec,omitempty"`
	Status ManagedClusterStatus `json:"status,omitempty"`
}

// Output paths of a ManagedCluster
const (
	ManagedClusterIDPath                = "status.id"
	ManagedClusterNamePath              = "status.name"
	ManagedClusterNodeResourceGroupPath = "status.nodeResourceGroup"
	ManagedClusterKubeConfigPath        = "status.kubeConfigRaw"
	ManagedClusterKubeAdminConfigPath   = "status.kubeAdminConfigRaw"
	ManagedClusterProvisioningStatePath = "status.provisioningState"
)

// ManagedClusterSSHKeyField is the field path of the node SSH public key
var ManagedClusterSSHKeyField = []string{"spec", "linuxProfile", "sshKey"}

// IPAllocationMethod is how a public IP address is assigned
type IPAllocationMethod string

const (
	IPAllocationStatic  IPAllocationMethod = "Static"
	IPAllocationDynamic IPAllocationMethod = "Dynamic"
)

// PublicIPSpec defines a public IP address resource
type PublicIPSpec struct {
	// ResourceGroupName is the resource group of the address
	ResourceGroupName string `json:"resourceGroupName"`

	// Location defaults to the resource group's location
	// +optional
	Location string `json:"location,omitempty"`

	// AllocationMethod is Static or Dynamic
	AllocationMethod IPAllocationMethod `json:"allocationMethod"`

	// SKU is Basic or Standard. Defaults to Standard.
	// +optional
	SKU string `json:"sku,omitempty"`

	// +optional
	Tags map[string]string `json:"tags,omitempty"`
}

// PublicIPStatus is the observed state of a public IP address
type PublicIPStatus struct {
	ID                string `json:"id,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
	ProvisioningState string `json:"provisioningState,omitempty"`
}

// PublicIP is an Azure public IP address
type PublicIP struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PublicIPSpec   `json:"spec,omitempty"`
	Status PublicIPStatus `json:"status,omitempty"`
}

// Output paths of a PublicIP
const (
	PublicIPAddressPath = "status.ipAddress"
	PublicIPIDPath      = "status.id"
)

// PublicIPResourceGroupField is the field path of the address's resource group
var PublicIPResourceGroupField = []string{"spec", "resourceGroupName"}
