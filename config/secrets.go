package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	ociCommon "github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/secrets"
	"github.com/valyala/fastjson"

	"github.com/newrelic/nrlogsink/common"
)

// OCISecretsManagerAPI is an interface for interacting with OCI Secrets Manager.
type OCISecretsManagerAPI interface {
	GetSecretBundle(ctx context.Context, request secrets.GetSecretBundleRequest) (secrets.GetSecretBundleResponse, error)
	SetRegion(regionId string)
}

// newSecretsClient is replaced in tests.
var newSecretsClient = NewOCISecretsManagerClient

// GetSecretFromOCIVault retrieves a secret from OCI Vault.
// It returns the secret string and an error if any.
func GetSecretFromOCIVault(ctx context.Context, secretsClient OCISecretsManagerAPI, secretOCID string, vaultRegion string) (string, error) {
	if secretOCID == "" {
		return "", errors.New("secret OCID is empty")
	}
	if vaultRegion == "" {
		return "", errors.New("vault region is empty")
	}

	secretsClient.SetRegion(vaultRegion)

	scResponse, err := secretsClient.GetSecretBundle(ctx, secrets.GetSecretBundleRequest{
		SecretId: ociCommon.String(secretOCID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret bundle: %w", err)
	}
	log.Debug("successfully fetched secret from OCI vault")

	secretContent, ok := scResponse.SecretBundleContent.(secrets.Base64SecretBundleContentDetails)
	if !ok {
		log.WithField("secretOCID", secretOCID).Error("unexpected secret content type")
		return "", fmt.Errorf("unexpected secret content type")
	}
	if secretContent.Content == nil {
		log.WithField("secretOCID", secretOCID).Error("secret content is nil")
		return "", fmt.Errorf("secret content is nil")
	}

	decodedSecret, err := base64.StdEncoding.DecodeString(*secretContent.Content)
	if err != nil {
		log.WithField("error", err).WithField("secretOCID", secretOCID).Error("failed to base64 decode secret content")
		return "", fmt.Errorf("failed to decode secret content: %w", err)
	}
	return string(decodedSecret), nil
}

// NewOCISecretsManagerClient creates a new OCI Secrets Manager client authenticated as the
// resource principal of the running function.
func NewOCISecretsManagerClient() (OCISecretsManagerAPI, error) {
	provider, err := auth.ResourcePrincipalConfigurationProvider()
	if err != nil {
		log.WithField("error", err).Error("failed to create resource principal configuration provider")
		return nil, fmt.Errorf("failed to create resource principal configuration provider: %w", err)
	}

	secretsClient, err := secrets.NewSecretsClientWithConfigurationProvider(provider)
	if err != nil {
		log.WithField("error", err).Error("failed to create OCI secrets client")
		return nil, fmt.Errorf("failed to create OCI secrets client: %w", err)
	}
	return &secretsClient, nil
}

// LicenseKeyFromSecret extracts the license key from a vault secret, which is either the key
// itself or a JSON object holding it under "licenseKey".
func LicenseKeyFromSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("license key secret is empty")
	}

	v, err := fastjson.Parse(secret)
	if err != nil || v.Type() != fastjson.TypeObject {
		return secret, nil
	}
	if key := string(v.GetStringBytes(common.LicenseKey)); key != "" {
		return key, nil
	}
	return "", errors.New("license key is empty or not present in the secret")
}

// ResolveLicenseKey fetches the license key from OCI Vault when neither a license key nor an
// insert key is configured and a secret OCID is.
func (c *Config) ResolveLicenseKey(ctx context.Context) error {
	if c.LicenseKey != "" || c.InsertKey != "" || c.SecretOCID == "" {
		return nil
	}

	log.Debug("fetching license key from OCI vault")
	secretsClient, err := newSecretsClient()
	if err != nil {
		return err
	}
	return c.resolveLicenseKeyWith(ctx, secretsClient)
}

func (c *Config) resolveLicenseKeyWith(ctx context.Context, secretsClient OCISecretsManagerAPI) error {
	secret, err := GetSecretFromOCIVault(ctx, secretsClient, c.SecretOCID, c.VaultRegion)
	if err != nil {
		return err
	}
	key, err := LicenseKeyFromSecret(secret)
	if err != nil {
		return err
	}
	c.LicenseKey = key
	return nil
}

// FromEnvironment builds a validated configuration from the YAML file named by
// NEW_RELIC_CONFIG_FILE, if any, overlaid with the environment. The license key is
// looked up in OCI Vault when needed.
func FromEnvironment(ctx context.Context) (Config, error) {
	var cfg Config
	if path := os.Getenv(common.EnvConfigFile); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.FromEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.ResolveLicenseKey(ctx); err != nil {
		return cfg, fmt.Errorf("resolve license key: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
