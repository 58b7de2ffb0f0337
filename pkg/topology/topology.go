package topology

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/rbac"
)

// ErrMissingConfig is returned when a required configuration value is absent
var ErrMissingConfig = config.ErrMissingField

// GraphVersion is the version of the declared graph format
const GraphVersion = "v1"

// Logical node IDs
const (
	NodeSSHKey          = "ssh-key"
	NodeCluster         = "cluster"
	NodeStaticAppIP     = "static-app-ip"
	NodeAdminAccess     = "aks-admin-access"
	NodeAdmins          = "admins"
	NodeClusterSvcsNS   = "ns-cluster-svcs"
	NodeAppSvcsNS       = "ns-app-svcs"
	NodeAppsNS          = "ns-apps"
	NodeAppsQuota       = "apps-quota"
	NodeDevsRole        = "devs-role"
	NodeDevsRoleBinding = "devs-rolebinding"
)

// Exported output names
const (
	ExportKubeconfig        = "kubeconfig"
	ExportKubeconfigAdmin   = "kubeconfigAdmin"
	ExportClusterID         = "clusterId"
	ExportClusterName       = "clusterName"
	ExportClusterSvcsNSName = "clusterSvcsNamespaceName"
	ExportAppSvcsNSName     = "appSvcsNamespaceName"
	ExportAppNamespaceName  = "appNamespaceName"
)

// Namespace names
const (
	ClusterSvcsNamespace = "cluster-svcs"
	AppSvcsNamespace     = "app-svcs"
	AppsNamespace        = "apps"
)

// Literal cluster parameters
const (
	KubernetesVersion = "1.14.8"
	AdminUsername     = "aksuser"
	NetworkPlugin     = "azure"
	ServiceCIDR       = "10.2.2.0/24"
	DNSServiceIP      = "10.2.2.254"
	DockerBridgeCIDR  = "172.17.0.1/16"
	SSHKeyBits        = 4096
)

// NodePools are the agent pools of the cluster. VnetSubnetID is filled
// from the configuration.
var NodePools = []infrav1alpha1.AgentPoolProfile{
	{Name: "performant", Count: 3, VMSize: "Standard_DS4_v2", OSType: "Linux", OSDiskSizeGB: 30},
	{Name: "standard", Count: 2, VMSize: "Standard_B2s", OSType: "Linux", OSDiskSizeGB: 30},
}

// AppsQuota are the hard limits of the apps namespace
var AppsQuota = map[corev1.ResourceName]string{
	corev1.ResourceCPU:                    "20",
	corev1.ResourceMemory:                 "1Gi",
	corev1.ResourcePods:                   "10",
	corev1.ResourceReplicationControllers: "20",
	corev1.ResourceQuotas:                 "1",
	corev1.ResourceServices:               "5",
}

// nameField is the output path of an object's name
const nameField = "metadata.name"

// Declare builds the cluster topology graph from the configuration
func Declare(cfg *config.Config) (*graph.Graph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is nil", ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &declarer{
		cfg:  cfg,
		b:    graph.NewBuilder(cfg.Project, GraphVersion),
		rbac: rbac.NewGenerator(),
	}
	return d.declare()
}

type declarer struct {
	cfg  *config.Config
	b    *graph.Builder
	rbac *rbac.Generator
	errs []error
}

func (d *declarer) declare() (*graph.Graph, error) {
	project := d.cfg.Project

	key := d.b.Declare(NodeSSHKey, d.sshKey(project+"-ssh-key"))

	clusterObj := d.cluster(project)
	d.setOutput(clusterObj, key.Output(infrav1alpha1.PrivateKeyPublicKeyPath), infrav1alpha1.ManagedClusterSSHKeyField...)
	cluster := d.b.Declare(NodeCluster, clusterObj, graph.ReadyWhen(graph.ReadinessPredicate{
		Type:  graph.PredicateTypeFieldEquals,
		Path:  infrav1alpha1.ManagedClusterProvisioningStatePath,
		Value: "Succeeded",
	}))
	d.b.Warn(NodeCluster+".spec.kubernetesVersion", fmt.Sprintf("Kubernetes %s is past end of support on AKS; declared as-is", KubernetesVersion))
	d.b.Warn(NodeCluster+".spec.enablePodSecurityPolicy", "pod security policy was removed in Kubernetes 1.25; declared as-is")

	ipObj := d.publicIP(project + "-static-app-ip")
	d.setOutput(ipObj, cluster.Output(infrav1alpha1.ManagedClusterNodeResourceGroupPath), infrav1alpha1.PublicIPResourceGroupField...)
	d.b.Declare(NodeStaticAppIP, ipObj)

	accessObj := d.accessContext(project + "-aks")
	d.setOutput(accessObj, cluster.SecretOutput(infrav1alpha1.ManagedClusterKubeAdminConfigPath), infrav1alpha1.AccessContextKubeconfigField...)
	access := d.b.Declare(NodeAdminAccess, accessObj, graph.WithApplyPolicy(graph.ApplyPolicy{AlwaysApply: true}))

	admins := d.b.Declare(NodeAdmins,
		d.convert(d.rbac.AdminBinding(project+"-admins", d.cfg.Cluster.AzureAD.AdminGroupID), rbacv1.SchemeGroupVersion.WithKind("ClusterRoleBinding")),
		graph.WithProvider(access))

	namespace := func(id, name string) graph.Handle {
		return d.b.Declare(id, d.namespace(name),
			graph.WithProvider(access),
			graph.DependsOn(admins),
			graph.ReadyWhen(graph.ReadinessPredicate{
				Type:  graph.PredicateTypeFieldEquals,
				Path:  "status.phase",
				Value: string(corev1.NamespaceActive),
			}))
	}
	clusterSvcs := namespace(NodeClusterSvcsNS, ClusterSvcsNamespace)
	appSvcs := namespace(NodeAppSvcsNS, AppSvcsNamespace)
	apps := namespace(NodeAppsNS, AppsNamespace)
	appsNamespace := apps.Output(nameField)

	quotaObj := d.quota(AppsNamespace)
	d.setOutput(quotaObj, appsNamespace, "metadata", "namespace")
	d.b.Declare(NodeAppsQuota, quotaObj, graph.WithProvider(access))

	roleObj := d.convert(d.rbac.DeveloperRole(project+"-devs", ""), rbacv1.SchemeGroupVersion.WithKind("Role"))
	d.setOutput(roleObj, appsNamespace, "metadata", "namespace")
	role := d.b.Declare(NodeDevsRole, roleObj, graph.WithProvider(access))

	bindingObj := d.convert(d.rbac.DeveloperRoleBinding(project+"-devs", "", "", d.cfg.Cluster.AzureAD.DevGroupID), rbacv1.SchemeGroupVersion.WithKind("RoleBinding"))
	d.setOutput(bindingObj, appsNamespace, "metadata", "namespace")
	d.setOutput(bindingObj, role.Output(nameField), "roleRef", "name")
	d.b.Declare(NodeDevsRoleBinding, bindingObj, graph.WithProvider(access))

	d.b.Export(ExportKubeconfig, cluster.SecretOutput(infrav1alpha1.ManagedClusterKubeConfigPath))
	d.b.Export(ExportKubeconfigAdmin, cluster.SecretOutput(infrav1alpha1.ManagedClusterKubeAdminConfigPath))
	d.b.Export(ExportClusterID, cluster.Output(infrav1alpha1.ManagedClusterIDPath))
	d.b.Export(ExportClusterName, cluster.Output(infrav1alpha1.ManagedClusterNamePath))
	d.b.Export(ExportClusterSvcsNSName, clusterSvcs.Output(nameField))
	d.b.Export(ExportAppSvcsNSName, appSvcs.Output(nameField))
	d.b.Export(ExportAppNamespaceName, appsNamespace)

	if len(d.errs) > 0 {
		return nil, d.errs[0]
	}
	return d.b.Build()
}

func (d *declarer) sshKey(name string) *unstructured.Unstructured {
	return d.convert(&infrav1alpha1.PrivateKey{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: infrav1alpha1.PrivateKeySpec{
			Algorithm: infrav1alpha1.KeyAlgorithmRSA,
			RSABits:   SSHKeyBits,
		},
	}, infrav1alpha1.TLSGroupVersion.WithKind(infrav1alpha1.KindPrivateKey))
}

func (d *declarer) cluster(name string) *unstructured.Unstructured {
	c := d.cfg.Cluster

	pools := make([]infrav1alpha1.AgentPoolProfile, len(NodePools))
	for i, p := range NodePools {
		pools[i] = p
		pools[i].VnetSubnetID = c.SubnetID
	}

	network := infrav1alpha1.NetworkProfile{
		NetworkPlugin:    NetworkPlugin,
		ServiceCIDR:      ServiceCIDR,
		DNSServiceIP:     DNSServiceIP,
		DockerBridgeCIDR: DockerBridgeCIDR,
	}
	if err := ValidateNetwork(network); err != nil {
		d.errs = append(d.errs, fmt.Errorf("cluster network profile: %w", err))
	}

	return d.convert(&infrav1alpha1.ManagedCluster{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: infrav1alpha1.ManagedClusterSpec{
			ResourceGroupName:       c.ResourceGroupName,
			Location:                c.Location,
			DNSPrefix:               name,
			KubernetesVersion:       KubernetesVersion,
			EnablePodSecurityPolicy: true,
			AgentPoolProfiles:       pools,
			LinuxProfile: infrav1alpha1.LinuxProfile{
				AdminUsername: AdminUsername,
			},
			ServicePrincipal: infrav1alpha1.ServicePrincipalProfile{
				ClientID:     c.ServicePrincipal.ClientID,
				ClientSecret: c.ServicePrincipal.ClientSecret,
			},
			RoleBasedAccessControl: infrav1alpha1.RBACProfile{
				Enabled: true,
				AzureAD: &infrav1alpha1.AzureADProfile{
					ClientAppID:     c.AzureAD.ClientAppID,
					ServerAppID:     c.AzureAD.ServerAppID,
					ServerAppSecret: c.AzureAD.ServerAppSecret,
					TenantID:        c.AzureAD.TenantID,
				},
			},
			NetworkProfile: network,
			AddonProfiles: infrav1alpha1.AddonProfiles{
				OMSAgent: &infrav1alpha1.OMSAgentProfile{
					Enabled:                 true,
					LogAnalyticsWorkspaceID: c.LogAnalyticsWorkspaceID,
				},
			},
			Tags: d.rbac.Labels(),
		},
	}, infrav1alpha1.AzureGroupVersion.WithKind(infrav1alpha1.KindManagedCluster))
}

func (d *declarer) publicIP(name string) *unstructured.Unstructured {
	return d.convert(&infrav1alpha1.PublicIP{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: infrav1alpha1.PublicIPSpec{
			Location:         d.cfg.Cluster.Location,
			AllocationMethod: infrav1alpha1.IPAllocationStatic,
			Tags:             d.rbac.Labels(),
		},
	}, infrav1alpha1.AzureGroupVersion.WithKind(infrav1alpha1.KindPublicIP))
}

func (d *declarer) accessContext(name string) *unstructured.Unstructured {
	return d.convert(&infrav1alpha1.AccessContext{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}, infrav1alpha1.AccessGroupVersion.WithKind(infrav1alpha1.KindAccessContext))
}

func (d *declarer) namespace(name string) *unstructured.Unstructured {
	return d.convert(&corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: d.rbac.Labels(),
		},
	}, corev1.SchemeGroupVersion.WithKind("Namespace"))
}

func (d *declarer) quota(name string) *unstructured.Unstructured {
	hard := make(corev1.ResourceList, len(AppsQuota))
	for res, qty := range AppsQuota {
		hard[res] = resource.MustParse(qty)
	}

	return d.convert(&corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: d.rbac.Labels(),
		},
		Spec: corev1.ResourceQuotaSpec{Hard: hard},
	}, corev1.SchemeGroupVersion.WithKind("ResourceQuota"))
}

// convert turns a typed object into a descriptor of the given kind
func (d *declarer) convert(obj interface{}, gvk schema.GroupVersionKind) *unstructured.Unstructured {
	u, err := infrav1alpha1.ToUnstructured(obj, gvk)
	if err != nil {
		d.errs = append(d.errs, err)
		return &unstructured.Unstructured{Object: map[string]interface{}{}}
	}
	return u
}

func (d *declarer) setOutput(obj *unstructured.Unstructured, out graph.Output, fields ...string) {
	if err := graph.SetOutput(obj, out, fields...); err != nil {
		d.errs = append(d.errs, fmt.Errorf("%s: %w", obj.GetName(), err))
	}
}
