package topology

import (
	"fmt"
	"net/netip"

	infrav1alpha1 "github.com/chazu/clustergraph/api/v1alpha1"
)

// ValidateNetwork checks that the service and bridge CIDRs do not overlap
// and that the DNS service IP lies inside the service CIDR
func ValidateNetwork(np infrav1alpha1.NetworkProfile) error {
	service, err := netip.ParsePrefix(np.ServiceCIDR)
	if err != nil {
		return fmt.Errorf("invalid service CIDR %q: %w", np.ServiceCIDR, err)
	}
	service = service.Masked()

	bridge, err := netip.ParsePrefix(np.DockerBridgeCIDR)
	if err != nil {
		return fmt.Errorf("invalid docker bridge CIDR %q: %w", np.DockerBridgeCIDR, err)
	}

	dns, err := netip.ParseAddr(np.DNSServiceIP)
	if err != nil {
		return fmt.Errorf("invalid DNS service IP %q: %w", np.DNSServiceIP, err)
	}

	if service.Overlaps(bridge.Masked()) {
		return fmt.Errorf("service CIDR %s overlaps docker bridge CIDR %s", np.ServiceCIDR, np.DockerBridgeCIDR)
	}
	if !service.Contains(dns) {
		return fmt.Errorf("DNS service IP %s is outside the service CIDR %s", np.DNSServiceIP, np.ServiceCIDR)
	}
	if dns == service.Addr() {
		return fmt.Errorf("DNS service IP %s is the network address of %s", np.DNSServiceIP, np.ServiceCIDR)
	}
	return nil
}
