// Package azure provisions Azure descriptors through the Azure SDK.
package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/chazu/clustergraph/pkg/config"
)

// Supported values of azure.authMethod
const (
	AuthMethodDefault          = "default"
	AuthMethodClientSecret     = "client_secret"
	AuthMethodManagedIdentity  = "managed_identity"
	AuthMethodWorkloadIdentity = "workload_identity"
	AuthMethodAzureCLI         = "azure_cli"
)

// NewCredential creates the token credential selected by cfg.AuthMethod
func NewCredential(cfg config.Azure) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch cfg.AuthMethod {
	case "", AuthMethodDefault:
		cred, err = azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: cfg.TenantID,
		})
	case AuthMethodClientSecret:
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("client_secret auth requires azure.tenantId, azure.clientId and azure.clientSecret")
		}
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	case AuthMethodManagedIdentity:
		opts := &azidentity.ManagedIdentityCredentialOptions{}
		if cfg.ClientID != "" {
			opts.ID = azidentity.ClientID(cfg.ClientID)
		}
		cred, err = azidentity.NewManagedIdentityCredential(opts)
	case AuthMethodWorkloadIdentity:
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.FederatedTokenFile == "" {
			return nil, fmt.Errorf("workload_identity auth requires azure.tenantId, azure.clientId and azure.federatedTokenFile")
		}
		cred, err = azidentity.NewWorkloadIdentityCredential(&azidentity.WorkloadIdentityCredentialOptions{
			TenantID:      cfg.TenantID,
			ClientID:      cfg.ClientID,
			TokenFilePath: cfg.FederatedTokenFile,
		})
	case AuthMethodAzureCLI:
		cred, err = azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: cfg.TenantID,
		})
	default:
		return nil, fmt.Errorf("unsupported azure.authMethod: %s", cfg.AuthMethod)
	}
	if err != nil {
		return nil, fmt.Errorf("create Azure credential: %w", err)
	}
	return cred, nil
}
