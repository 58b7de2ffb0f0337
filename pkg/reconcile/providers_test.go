package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/apply"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/provider"
	"github.com/chazu/clustergraph/pkg/provider/azure"
	"github.com/chazu/clustergraph/pkg/provider/kube"
	"github.com/chazu/clustergraph/pkg/provider/tlskey"
	"github.com/chazu/clustergraph/pkg/topology"
)

const adminKubeconfig = `apiVersion: v1
kind: Config
clusters:
- name: aks-demo
  cluster:
    server: https://aks-demo.hcp.westeurope.azmk8s.io:443
contexts:
- name: aks-demo-admin
  context:
    cluster: aks-demo
    user: clusterAdmin
current-context: aks-demo-admin
users:
- name: clusterAdmin
  user:
    token: not-a-real-token
`

// azureClusters answers like ARM for a cluster that finished provisioning
type azureClusters struct {
	mu      sync.Mutex
	created []armcontainerservice.ManagedCluster
}

func (a *azureClusters) CreateOrUpdate(_ context.Context, resourceGroup, name string, mc armcontainerservice.ManagedCluster) (*armcontainerservice.ManagedCluster, error) {
	a.mu.Lock()
	a.created = append(a.created, mc)
	a.mu.Unlock()

	out := mc
	out.ID = to.Ptr("/subscriptions/s/resourceGroups/" + resourceGroup + "/providers/Microsoft.ContainerService/managedClusters/" + name)
	out.Name = to.Ptr(name)
	props := *mc.Properties
	props.NodeResourceGroup = to.Ptr("MC_" + resourceGroup + "_" + name + "_westeurope")
	props.ProvisioningState = to.Ptr("Succeeded")
	out.Properties = &props
	return &out, nil
}

func (a *azureClusters) AdminKubeconfig(context.Context, string, string) ([]byte, error) {
	return []byte(adminKubeconfig), nil
}

func (a *azureClusters) UserKubeconfig(context.Context, string, string) ([]byte, error) {
	return []byte("user-kubeconfig"), nil
}

// azureResources places every resource group in westeurope and records
// the groups public IPs are created in
type azureResources struct {
	mu       sync.Mutex
	ipGroups map[string]string
}

func (a *azureResources) GroupLocation(context.Context, string) (string, error) {
	return "westeurope", nil
}

func (a *azureResources) CreateOrUpdatePublicIP(_ context.Context, resourceGroup, name string, res armresources.GenericResource) (*armresources.GenericResource, error) {
	a.mu.Lock()
	a.ipGroups[name] = resourceGroup
	a.mu.Unlock()

	out := res
	out.ID = to.Ptr("/subscriptions/s/resourceGroups/" + resourceGroup + "/providers/Microsoft.Network/publicIPAddresses/" + name)
	out.Properties = map[string]interface{}{"ipAddress": "20.50.1.10", "provisioningState": "Succeeded"}
	return &out, nil
}

func TestReconciler_UpThroughProviders(t *testing.T) {
	cfg := testConfig()
	clusters := &azureClusters{}
	resources := &azureResources{ipGroups: map[string]string{}}

	kubeClient := fake.NewClientBuilder().Build()
	var servers []string
	registry := kube.NewRegistry()
	access := kube.NewAccessApplier(registry).WithClientFunc(func(rc *rest.Config, _ client.Options) (client.Client, error) {
		servers = append(servers, rc.Host)
		return kubeClient, nil
	})

	router := provider.NewRouter(apply.NewApplier(registry)).
		Handle(infrav1alpha1.TLSGroup, "tls", tlskey.NewGenerator()).
		Handle(infrav1alpha1.AzureGroup, "azure", azure.NewProvider(clusters, resources)).
		Handle(infrav1alpha1.AccessGroup, "access", access)

	store := inventory.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	r := NewReconciler(store, router, readyChecker{}, apply.NewPruner(registry), DefaultOptions())

	run, err := r.Up(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if summary := run.State.GetSummary(); summary.Ready != 11 || summary.Error != 0 {
		t.Fatalf("Unexpected execution summary: %+v", summary)
	}

	// the cluster received the generated public key
	if len(clusters.created) != 1 {
		t.Fatalf("Expected one cluster create, got %d", len(clusters.created))
	}
	keys := clusters.created[0].Properties.LinuxProfile.SSH.PublicKeys
	if len(keys) != 1 || !strings.HasPrefix(*keys[0].KeyData, "ssh-rsa ") {
		t.Errorf("Unexpected cluster SSH keys: %v", keys)
	}

	// the static IP lands in the node resource group the cluster reported
	nodeRG := "MC_demo-rg_aks-demo_westeurope"
	if got := resources.ipGroups["aks-demo-static-app-ip"]; got != nodeRG {
		t.Errorf("Expected static IP in %s, got %q", nodeRG, got)
	}
	if got, err := run.State.Outputs().Value(graph.NewOutput(topology.NodeStaticAppIP, "spec.resourceGroupName")); err != nil || got != nodeRG {
		t.Errorf("Unexpected static IP resource group output: %v, %v", got, err)
	}
	if got, err := run.State.Outputs().Value(graph.NewOutput(topology.NodeStaticAppIP, infrav1alpha1.PublicIPAddressPath)); err != nil || got != "20.50.1.10" {
		t.Errorf("Unexpected static IP address output: %v, %v", got, err)
	}

	if len(servers) != 1 || servers[0] != "https://aks-demo.hcp.westeurope.azmk8s.io:443" {
		t.Errorf("Expected one client for the admin kubeconfig, got %v", servers)
	}

	// Kubernetes nodes were written through the registered client
	binding := &rbacv1.RoleBinding{}
	if err := kubeClient.Get(context.Background(), client.ObjectKey{Namespace: topology.AppsNamespace, Name: "aks-demo-devs"}, binding); err != nil {
		t.Fatalf("devs role binding not stored: %v", err)
	}
	if binding.RoleRef.Name != "aks-demo-devs" {
		t.Errorf("Expected the binding to reference the devs role, got %q", binding.RoleRef.Name)
	}

	if len(run.Exports) != 7 {
		t.Fatalf("Expected 7 exports, got %d", len(run.Exports))
	}
	if admin := run.Exports[topology.ExportKubeconfigAdmin]; !admin.Secret || admin.Value != adminKubeconfig {
		t.Errorf("Unexpected admin kubeconfig export: secret=%v", admin.Secret)
	}
	if id := run.Exports[topology.ExportClusterID]; id.Value != "/subscriptions/s/resourceGroups/demo-rg/providers/Microsoft.ContainerService/managedClusters/aks-demo" {
		t.Errorf("Unexpected cluster ID export: %+v", id)
	}
	if ns := run.Exports[topology.ExportAppNamespaceName]; ns.Value != topology.AppsNamespace {
		t.Errorf("Unexpected app namespace export: %+v", ns)
	}
}
