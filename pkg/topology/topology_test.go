package topology

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
	"github.com/chazu/clustergraph/pkg/config"
	"github.com/chazu/clustergraph/pkg/graph"
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

func nodeByID(g *graph.Graph, id string) *graph.Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	Fail("node " + id + " not declared")
	return nil
}

func refAt(n *graph.Node, fields ...string) graph.Output {
	v, found, err := unstructured.NestedFieldNoCopy(n.Object.Object, fields...)
	Expect(err).NotTo(HaveOccurred())
	Expect(found).To(BeTrue(), "field %v not set", fields)
	out, ok := graph.ParseRef(v)
	Expect(ok).To(BeTrue(), "field %v is not an output reference", fields)
	return out
}

var _ = Describe("Declare", func() {
	var g *graph.Graph

	BeforeEach(func() {
		var err error
		g, err = Declare(testConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("declares every node in dependency order", func() {
		ids := make([]string, 0, len(g.Nodes))
		for _, n := range g.Nodes {
			ids = append(ids, n.ID)
		}
		Expect(ids).To(Equal([]string{
			NodeSSHKey, NodeCluster, NodeStaticAppIP, NodeAdminAccess, NodeAdmins,
			NodeClusterSvcsNS, NodeAppSvcsNS, NodeAppsNS,
			NodeAppsQuota, NodeDevsRole, NodeDevsRoleBinding,
		}))

		declared := map[string]bool{}
		for _, n := range g.Nodes {
			for _, dep := range n.Edges() {
				Expect(declared).To(HaveKey(dep), "%s depends on %s before it is declared", n.ID, dep)
			}
			declared[n.ID] = true
		}

		_, err := graph.BuildDAG(g)
		Expect(err).NotTo(HaveOccurred())
	})

	It("wires the static IP to the cluster's node resource group", func() {
		ip := nodeByID(g, NodeStaticAppIP)
		out := refAt(ip, infrav1alpha1.PublicIPResourceGroupField...)
		Expect(out.NodeID()).To(Equal(NodeCluster))
		Expect(out.Path()).To(Equal(infrav1alpha1.ManagedClusterNodeResourceGroupPath))

		method, _, _ := unstructured.NestedString(ip.Object.Object, "spec", "allocationMethod")
		Expect(method).To(Equal("Static"))
	})

	It("feeds the generated public key into the cluster", func() {
		out := refAt(nodeByID(g, NodeCluster), infrav1alpha1.ManagedClusterSSHKeyField...)
		Expect(out.NodeID()).To(Equal(NodeSSHKey))
		Expect(out.IsSecret()).To(BeFalse())

		bits, _, _ := unstructured.NestedInt64(nodeByID(g, NodeSSHKey).Object.Object, "spec", "rsaBits")
		Expect(bits).To(BeEquivalentTo(4096))
	})

	It("builds the access context from the admin kubeconfig", func() {
		access := nodeByID(g, NodeAdminAccess)
		out := refAt(access, infrav1alpha1.AccessContextKubeconfigField...)
		Expect(out.NodeID()).To(Equal(NodeCluster))
		Expect(out.Path()).To(Equal(infrav1alpha1.ManagedClusterKubeAdminConfigPath))
		Expect(out.IsSecret()).To(BeTrue())
		Expect(access.ApplyPolicy.AlwaysApply).To(BeTrue())
	})

	It("provisions every Kubernetes object through the admin access context", func() {
		for _, id := range []string{NodeAdmins, NodeClusterSvcsNS, NodeAppSvcsNS, NodeAppsNS, NodeAppsQuota, NodeDevsRole, NodeDevsRoleBinding} {
			Expect(nodeByID(g, id).Provider).To(Equal(NodeAdminAccess), id)
		}
	})

	It("orders namespaces after the admin binding", func() {
		for _, id := range []string{NodeClusterSvcsNS, NodeAppSvcsNS, NodeAppsNS} {
			ns := nodeByID(g, id)
			Expect(ns.DependsOn).To(ConsistOf(NodeAdmins), id)
			Expect(ns.ReadyWhen).To(ContainElement(HaveField("Path", "status.phase")))
		}
		Expect(nodeByID(g, NodeAdmins).Edges()).To(Equal([]string{NodeAdminAccess}))
	})

	It("binds the admin group to cluster-admin", func() {
		admins := nodeByID(g, NodeAdmins).Object.Object
		role, _, _ := unstructured.NestedString(admins, "roleRef", "name")
		Expect(role).To(Equal("cluster-admin"))
		subjects, _, _ := unstructured.NestedSlice(admins, "subjects")
		Expect(subjects).To(HaveLen(1))
		Expect(subjects[0]).To(HaveKeyWithValue("name", "admins-group"))
		Expect(subjects[0]).To(HaveKeyWithValue("kind", "Group"))
	})

	It("declares exactly two node pools", func() {
		pools, _, err := unstructured.NestedSlice(nodeByID(g, NodeCluster).Object.Object, "spec", "agentPoolProfiles")
		Expect(err).NotTo(HaveOccurred())
		Expect(pools).To(HaveLen(2))

		Expect(pools[0]).To(HaveKeyWithValue("name", "performant"))
		Expect(pools[0]).To(HaveKeyWithValue("count", BeEquivalentTo(3)))
		Expect(pools[0]).To(HaveKeyWithValue("vmSize", "Standard_DS4_v2"))
		Expect(pools[1]).To(HaveKeyWithValue("name", "standard"))
		Expect(pools[1]).To(HaveKeyWithValue("count", BeEquivalentTo(2)))
		Expect(pools[1]).To(HaveKeyWithValue("vmSize", "Standard_B2s"))
		for _, p := range pools {
			Expect(p).To(HaveKeyWithValue("osDiskSizeGB", BeEquivalentTo(30)))
			Expect(p).To(HaveKeyWithValue("vnetSubnetID", testConfig().Cluster.SubnetID))
		}
	})

	It("keeps the declared network profile", func() {
		np, _, _ := unstructured.NestedStringMap(nodeByID(g, NodeCluster).Object.Object, "spec", "networkProfile")
		Expect(np).To(Equal(map[string]string{
			"networkPlugin":    "azure",
			"serviceCIDR":      "10.2.2.0/24",
			"dnsServiceIP":     "10.2.2.254",
			"dockerBridgeCIDR": "172.17.0.1/16",
		}))
	})

	It("scopes exactly one quota to the apps namespace", func() {
		quota := nodeByID(g, NodeAppsQuota)
		Expect(quota.Object.GetKind()).To(Equal("ResourceQuota"))
		Expect(refAt(quota, "metadata", "namespace").NodeID()).To(Equal(NodeAppsNS))

		hard, _, _ := unstructured.NestedStringMap(quota.Object.Object, "spec", "hard")
		Expect(hard).To(Equal(map[string]string{
			"cpu":                    "20",
			"memory":                 "1Gi",
			"pods":                   "10",
			"replicationcontrollers": "20",
			"resourcequotas":         "1",
			"services":               "5",
		}))

		quotas := 0
		for _, n := range g.Nodes {
			if n.Object.GetKind() == "ResourceQuota" {
				quotas++
			}
		}
		Expect(quotas).To(Equal(1))
	})

	It("grants developers the six verbs over five resources", func() {
		role := nodeByID(g, NodeDevsRole)
		Expect(refAt(role, "metadata", "namespace").NodeID()).To(Equal(NodeAppsNS))

		rules, _, _ := unstructured.NestedSlice(role.Object.Object, "rules")
		Expect(rules).To(HaveLen(1))
		rule := rules[0].(map[string]interface{})
		Expect(rule["verbs"]).To(ConsistOf("get", "list", "watch", "create", "update", "delete"))
		Expect(rule["resources"]).To(ConsistOf("pods", "services", "deployments", "replicasets", "persistentvolumeclaims"))
		Expect(rule["apiGroups"]).To(ConsistOf("", "apps"))
	})

	It("binds developers to the role through its name output", func() {
		binding := nodeByID(g, NodeDevsRoleBinding)
		Expect(refAt(binding, "roleRef", "name").NodeID()).To(Equal(NodeDevsRole))
		Expect(refAt(binding, "metadata", "namespace").NodeID()).To(Equal(NodeAppsNS))
		Expect(binding.Edges()).To(ConsistOf(NodeAdminAccess, NodeAppsNS, NodeDevsRole))
	})

	It("exports cluster details with kubeconfigs classified secret", func() {
		exports := map[string]graph.Output{}
		for _, e := range g.Exports {
			exports[e.Name] = e.Output
		}
		Expect(exports).To(HaveLen(7))
		Expect(exports[ExportKubeconfig].IsSecret()).To(BeTrue())
		Expect(exports[ExportKubeconfigAdmin].IsSecret()).To(BeTrue())
		Expect(exports[ExportClusterID].IsSecret()).To(BeFalse())
		Expect(exports[ExportAppNamespaceName].NodeID()).To(Equal(NodeAppsNS))
	})

	It("keeps deprecated literals and reports them as warnings", func() {
		cluster := nodeByID(g, NodeCluster).Object.Object
		version, _, _ := unstructured.NestedString(cluster, "spec", "kubernetesVersion")
		psp, _, _ := unstructured.NestedBool(cluster, "spec", "enablePodSecurityPolicy")
		Expect(version).To(Equal("1.14.8"))
		Expect(psp).To(BeTrue())

		Expect(g.Violations).To(HaveLen(2))
		Expect(g.HasErrors()).To(BeFalse())
	})

	It("is idempotent", func() {
		again, err := Declare(testConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(again.ComputeHash()).To(Equal(g.ComputeHash()))
		Expect(again.Metadata.RenderHash).To(Equal(g.Metadata.RenderHash))
	})

	DescribeTable("fails before submission when configuration is missing",
		func(mutate func(*config.Config), field string) {
			cfg := testConfig()
			mutate(cfg)
			g, err := Declare(cfg)
			Expect(g).To(BeNil())
			Expect(errors.Is(err, ErrMissingConfig)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(field))
		},
		Entry("service principal secret", func(c *config.Config) { c.Cluster.ServicePrincipal.ClientSecret = "" }, "servicePrincipal.clientSecret"),
		Entry("resource group", func(c *config.Config) { c.Cluster.ResourceGroupName = "" }, "resourceGroupName"),
		Entry("subnet", func(c *config.Config) { c.Cluster.SubnetID = "" }, "subnetId"),
		Entry("server app secret", func(c *config.Config) { c.Cluster.AzureAD.ServerAppSecret = "" }, "serverAppSecret"),
		Entry("dev group", func(c *config.Config) { c.Cluster.AzureAD.DevGroupID = "" }, "devGroupId"),
		Entry("workspace", func(c *config.Config) { c.Cluster.LogAnalyticsWorkspaceID = "" }, "logAnalyticsWorkspaceId"),
	)

	It("rejects a nil configuration", func() {
		_, err := Declare(nil)
		Expect(errors.Is(err, ErrMissingConfig)).To(BeTrue())
	})
})
