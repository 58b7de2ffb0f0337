package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/apply"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
	"github.com/chazu/clustergraph/pkg/inventory"
	"github.com/chazu/clustergraph/pkg/topology"
)

func testConfig() *config.Config {
	return &config.Config{
		Project: "aks-demo",
		Cluster: config.Cluster{
			ResourceGroupName:       "demo-rg",
			SubnetID:                "/subscriptions/s/resourceGroups/net/providers/Microsoft.Network/virtualNetworks/v/subnets/aks",
			LogAnalyticsWorkspaceID: "/subscriptions/s/resourceGroups/ops/providers/Microsoft.OperationalInsights/workspaces/ws",
			ServicePrincipal:        config.ServicePrincipal{ClientID: "sp-id", ClientSecret: "sp-secret"},
			AzureAD: config.AzureAD{
				ClientAppID:     "client-app",
				ServerAppID:     "server-app",
				ServerAppSecret: "server-secret",
				AdminGroupID:    "admins-group",
				DevGroupID:      "devs-group",
			},
		},
	}
}

// fakeProvider provisions every node in memory and fills the status
// fields the topology consumes
type fakeProvider struct {
	mu      sync.Mutex
	applied []string
	failOn  string
}

func (f *fakeProvider) Apply(_ context.Context, node *graph.Node, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	f.applied = append(f.applied, node.ID)
	f.mu.Unlock()

	if node.ID == f.failOn {
		return nil, errors.New("quota exceeded")
	}

	live := obj.DeepCopy()
	status := map[string]interface{}{}
	switch obj.GetKind() {
	case infrav1alpha1.KindPrivateKey:
		status["publicKeyOpenssh"] = "ssh-rsa AAAAB3NzaC1yc2E"
	case infrav1alpha1.KindManagedCluster:
		status["id"] = "/subscriptions/s/resourceGroups/demo-rg/providers/Microsoft.ContainerService/managedClusters/" + obj.GetName()
		status["name"] = obj.GetName()
		status["nodeResourceGroup"] = "MC_demo-rg_" + obj.GetName()
		status["kubeConfigRaw"] = "user-kubeconfig"
		status["kubeAdminConfigRaw"] = "admin-kubeconfig"
		status["provisioningState"] = "Succeeded"
	case "Namespace":
		status["phase"] = "Active"
	}
	live.Object["status"] = status
	return live, nil
}

func (f *fakeProvider) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

type readyChecker struct{}

func (readyChecker) Check(context.Context, *graph.Node, *unstructured.Unstructured) (bool, error) {
	return true, nil
}

func newTestReconciler(t *testing.T, provider *fakeProvider, opts Options) (*Reconciler, inventory.Store) {
	t.Helper()
	store := inventory.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	return NewReconciler(store, provider, readyChecker{}, apply.NewPruner(nil), opts), store
}

func TestReconciler_UpProvisionsEverything(t *testing.T) {
	provider := &fakeProvider{}
	r, store := newTestReconciler(t, provider, DefaultOptions())

	run, err := r.Up(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	if got := len(provider.Applied()); got != 11 {
		t.Errorf("Expected 11 applied nodes, got %d", got)
	}
	if summary := run.State.GetSummary(); summary.Ready != 11 || summary.Error != 0 {
		t.Errorf("Unexpected execution summary: %+v", summary)
	}

	if len(run.Exports) != 7 {
		t.Fatalf("Expected 7 exports, got %d", len(run.Exports))
	}
	kubeconfig := run.Exports[topology.ExportKubeconfig]
	if !kubeconfig.Secret || kubeconfig.Value != "user-kubeconfig" {
		t.Errorf("Unexpected kubeconfig export: %+v", kubeconfig)
	}
	if ns := run.Exports[topology.ExportAppNamespaceName]; ns.Secret || ns.Value != topology.AppsNamespace {
		t.Errorf("Unexpected app namespace export: %+v", ns)
	}

	inv, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if inv.RunID != run.ID {
		t.Errorf("Expected run ID %s, got %s", run.ID, inv.RunID)
	}
	if inv.GraphHash != run.Graph.Metadata.RenderHash {
		t.Errorf("Expected graph hash %s, got %s", run.Graph.Metadata.RenderHash, inv.GraphHash)
	}
	if len(inv.Items) != 11 {
		t.Errorf("Expected 11 recorded items, got %d", len(inv.Items))
	}
	if len(inv.Exports) != 7 {
		t.Errorf("Expected 7 recorded exports, got %d", len(inv.Exports))
	}
}

func TestReconciler_SecondUpOnlyReconnects(t *testing.T) {
	provider := &fakeProvider{}
	r, store := newTestReconciler(t, provider, DefaultOptions())

	if _, err := r.Up(context.Background(), testConfig()); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}

	second := &fakeProvider{}
	r2 := NewReconciler(store, second, readyChecker{}, nil, DefaultOptions())

	run, err := r2.Up(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	applied := second.Applied()
	if len(applied) != 1 || applied[0] != topology.NodeAdminAccess {
		t.Errorf("Expected only the access context to be applied again, got %v", applied)
	}
	if summary := run.State.GetSummary(); summary.Unchanged != 10 {
		t.Errorf("Expected 10 unchanged nodes, got %d", summary.Unchanged)
	}
	if len(run.Exports) != 7 {
		t.Errorf("Expected exports to resolve from recorded state, got %d", len(run.Exports))
	}
}

func TestReconciler_Preview(t *testing.T) {
	provider := &fakeProvider{}
	r, store := newTestReconciler(t, provider, DefaultOptions())

	run, err := r.Preview(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(provider.Applied()) != 0 {
		t.Errorf("Preview must not apply, got %v", provider.Applied())
	}
	if got := run.Plan.Counts()[inventory.ActionCreate]; got != 11 {
		t.Errorf("Expected 11 creates, got %d", got)
	}
	if inv, _ := store.Load(context.Background()); len(inv.Items) != 0 {
		t.Error("Preview must not record state")
	}

	if _, err := r.Up(context.Background(), testConfig()); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	run, err = r.Preview(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if run.Plan.HasChanges() {
		t.Errorf("Expected no changes after Up, got %+v", run.Plan.Steps)
	}
}

func TestReconciler_FailedNodeIsRecorded(t *testing.T) {
	provider := &fakeProvider{failOn: topology.NodeStaticAppIP}
	r, store := newTestReconciler(t, provider, DefaultOptions())

	run, err := r.Up(context.Background(), testConfig())
	if err == nil {
		t.Fatal("Expected Up to fail")
	}
	if !strings.Contains(err.Error(), topology.NodeStaticAppIP) {
		t.Errorf("Expected error to name the failed node, got %v", err)
	}
	if len(run.Exports) != 0 {
		t.Errorf("Expected no exports after a failed first run, got %v", run.Exports)
	}

	inv, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	item, ok := inv.Items[topology.NodeStaticAppIP]
	if !ok || item.Status != inventory.ItemStatusFailed {
		t.Errorf("Expected failed item to be recorded, got %+v", item)
	}
	if item := inv.Items[topology.NodeSSHKey]; item.Status != inventory.ItemStatusApplied {
		t.Errorf("Expected ssh key to be recorded as applied, got %v", item.Status)
	}
}

func TestReconciler_MissingConfig(t *testing.T) {
	provider := &fakeProvider{}
	r, _ := newTestReconciler(t, provider, DefaultOptions())

	cfg := testConfig()
	cfg.Cluster.SubnetID = ""

	_, err := r.Up(context.Background(), cfg)
	if !errors.Is(err, config.ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
	if len(provider.Applied()) != 0 {
		t.Error("Nothing may be provisioned with missing configuration")
	}
}

func TestReconciler_PruneReportsCloudOrphans(t *testing.T) {
	provider := &fakeProvider{}
	opts := DefaultOptions()
	opts.Prune = true
	r, store := newTestReconciler(t, provider, opts)

	oldIP := &unstructured.Unstructured{}
	oldIP.SetGroupVersionKind(schema.GroupVersionKind{Group: infrav1alpha1.AzureGroupVersion.Group, Version: "v1alpha1", Kind: infrav1alpha1.KindPublicIP})
	oldIP.SetName("aks-demo-old-ip")

	seed := inventory.NewTracker()
	seed.RecordApplied(&graph.Node{ID: "old-ip", Object: *oldIP}, oldIP, oldIP)
	if err := store.Save(context.Background(), seed.GetInventory()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	run, err := r.Up(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if run.Pruned == nil || len(run.Pruned.Reported) != 1 || run.Pruned.Reported[0].ID != "old-ip" {
		t.Errorf("Expected old-ip to be reported, got %+v", run.Pruned)
	}
}

func withLive(name string, status map[string]interface{}) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Namespace",
			"metadata":   map[string]interface{}{"name": name},
			"status":     status,
		},
	}
}
