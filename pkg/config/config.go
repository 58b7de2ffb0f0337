package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/drone/envsubst"

	schemas "github.com/chazu/clustergraph/cue"
)

// ErrMissingField is returned when a required configuration value is absent
var ErrMissingField = errors.New("missing required configuration")

// Config is the clustergraph configuration
type Config struct {
	// Project names the deployment
	Project string `json:"project"`

	// Azure selects the subscription and credentials used by the Azure provider
	Azure Azure `json:"azure"`

	// Cluster holds the inputs of the cluster topology
	Cluster Cluster `json:"cluster"`
}

// Azure configures access to the Azure Resource Manager
type Azure struct {
	SubscriptionID     string `json:"subscriptionId,omitempty"`
	AuthMethod         string `json:"authMethod,omitempty"`
	TenantID           string `json:"tenantId,omitempty"`
	ClientID           string `json:"clientId,omitempty"`
	ClientSecret       string `json:"clientSecret,omitempty"`
	FederatedTokenFile string `json:"federatedTokenFile,omitempty"`
}

// Cluster holds the externally supplied inputs of the topology
type Cluster struct {
	ResourceGroupName       string           `json:"resourceGroupName"`
	SubnetID                string           `json:"subnetId"`
	LogAnalyticsWorkspaceID string           `json:"logAnalyticsWorkspaceId"`
	Location                string           `json:"location,omitempty"`
	ServicePrincipal        ServicePrincipal `json:"servicePrincipal"`
	AzureAD                 AzureAD          `json:"azureAd"`
}

// ServicePrincipal is the identity the cluster uses to manage Azure resources
type ServicePrincipal struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// AzureAD configures Azure AD integration and the RBAC groups
type AzureAD struct {
	ClientAppID     string `json:"clientAppId"`
	ServerAppID     string `json:"serverAppId"`
	ServerAppSecret string `json:"serverAppSecret"`
	TenantID        string `json:"tenantId,omitempty"`
	AdminGroupID    string `json:"adminGroupId"`
	DevGroupID      string `json:"devGroupId"`
}

// Load reads, expands, schema-checks and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(path, data)
}

// Parse is Load for in-memory content. filename is used in error messages.
func Parse(filename string, data []byte) (*Config, error) {
	expanded, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment in %s: %w", filename, err)
	}

	cfg, err := decode(filename, []byte(expanded))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unifies the document with the #Config schema and decodes it
func decode(filename string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	schemaSrc, err := schemas.SchemaFS.ReadFile(schemas.ConfigSchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config schema: %w", err)
	}
	schema := ctx.CompileBytes(schemaSrc, cue.Filename(schemas.ConfigSchemaFile))
	if schema.Err() != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", schema.Err())
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return nil, fmt.Errorf("#Config definition not found in config schema")
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	doc := ctx.BuildFile(file)
	if doc.Err() != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, doc.Err())
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s does not match the config schema: %w", filename, err)
	}

	// Null values decode as empty strings and are caught by Validate
	jsonBytes, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	var cfg Config
	if err := json.Unmarshal(jsonBytes, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	return &cfg, nil
}

// Validate presence-checks every value the topology needs
func (c *Config) Validate() error {
	required := []struct {
		path  string
		value string
	}{
		{"project", c.Project},
		{"cluster.resourceGroupName", c.Cluster.ResourceGroupName},
		{"cluster.subnetId", c.Cluster.SubnetID},
		{"cluster.logAnalyticsWorkspaceId", c.Cluster.LogAnalyticsWorkspaceID},
		{"cluster.servicePrincipal.clientId", c.Cluster.ServicePrincipal.ClientID},
		{"cluster.servicePrincipal.clientSecret", c.Cluster.ServicePrincipal.ClientSecret},
		{"cluster.azureAd.clientAppId", c.Cluster.AzureAD.ClientAppID},
		{"cluster.azureAd.serverAppId", c.Cluster.AzureAD.ServerAppID},
		{"cluster.azureAd.serverAppSecret", c.Cluster.AzureAD.ServerAppSecret},
		{"cluster.azureAd.adminGroupId", c.Cluster.AzureAD.AdminGroupID},
		{"cluster.azureAd.devGroupId", c.Cluster.AzureAD.DevGroupID},
	}

	var errs []error
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingField, r.path))
		}
	}
	return errors.Join(errs...)
}
