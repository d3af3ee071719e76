// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/caarlos0/env/v11"
	"golang.org/x/mod/semver"
)

// Config holds all service configuration.
// Environment determines whether the token verification key loads from an
// env var (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // "development" or "production"
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`          // "debug", "info", "warn", "error"

	// Storefront backend
	BackendURL     string `env:"BACKEND_URL"`
	APIVersion     string `env:"API_VERSION" envDefault:"v1.0.0"` // Reported in Client-Info, semver
	TLSFingerprint bool   `env:"TLS_FINGERPRINT" envDefault:"true"`

	// Durable client storage directory (one file per key)
	StorageDir string `env:"STORAGE_DIR"`

	// Pricing
	Currency    string  `env:"CURRENCY" envDefault:"Rs. "`
	DeliveryFee float64 `env:"DELIVERY_FEE" envDefault:"100"` // Major units

	// Session engine
	SerializeLineSync bool          `env:"SERIALIZE_LINE_SYNC" envDefault:"false"`
	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT" envDefault:"15s"`
	ProductRefresh    time.Duration `env:"PRODUCT_REFRESH" envDefault:"5m"`

	// GCP settings (required in production)
	GCPProject      string `env:"GCP_PROJECT"`
	TokenSecretName string `env:"TOKEN_SECRET_NAME"`

	// TokenKey verifies credential signatures when set. Loaded from
	// TOKEN_SECRET in development and from Secret Manager in production.
	TokenKey []byte
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.TokenSecretName != "" {
			if err := cfg.loadFromSecretManager(ctx); err != nil {
				return nil, fmt.Errorf("loading token key: %w", err)
			}
		}
	} else if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		cfg.TokenKey = []byte(secret)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port              string   `json:"port"`
		Environment       string   `json:"environment"`
		LogLevel          string   `json:"log_level"`
		BackendURL        string   `json:"backend_url"`
		APIVersion        string   `json:"api_version"`
		TLSFingerprint    *bool    `json:"tls_fingerprint"`
		StorageDir        string   `json:"storage_dir"`
		Currency          *string  `json:"currency"`
		DeliveryFee       *float64 `json:"delivery_fee"`
		SerializeLineSync bool     `json:"serialize_line_sync"`
		SyncTimeout       string   `json:"sync_timeout"`
		ProductRefresh    string   `json:"product_refresh"`
		TokenSecret       string   `json:"token_secret"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:              withDefault(fileConfig.Port, "8080"),
		Environment:       withDefault(fileConfig.Environment, "development"),
		LogLevel:          withDefault(fileConfig.LogLevel, "info"),
		BackendURL:        fileConfig.BackendURL,
		APIVersion:        withDefault(fileConfig.APIVersion, "v1.0.0"),
		TLSFingerprint:    true,
		StorageDir:        fileConfig.StorageDir,
		Currency:          "Rs. ",
		DeliveryFee:       100,
		SerializeLineSync: fileConfig.SerializeLineSync,
	}
	if fileConfig.TLSFingerprint != nil {
		cfg.TLSFingerprint = *fileConfig.TLSFingerprint
	}
	if fileConfig.Currency != nil {
		cfg.Currency = *fileConfig.Currency
	}
	if fileConfig.DeliveryFee != nil {
		cfg.DeliveryFee = *fileConfig.DeliveryFee
	}
	if fileConfig.TokenSecret != "" {
		cfg.TokenKey = []byte(fileConfig.TokenSecret)
	}

	if cfg.SyncTimeout, err = parseDuration("sync_timeout", fileConfig.SyncTimeout, 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProductRefresh, err = parseDuration("product_refresh", fileConfig.ProductRefresh, 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(field, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

// loadFromSecretManager fetches the token verification key from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.TokenSecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	key := strings.TrimSpace(string(result.Payload.Data))
	if key == "" {
		return fmt.Errorf("secret %s is empty", secretName)
	}
	c.TokenKey = []byte(key)

	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend_url: must be an absolute http or https URL")
	}

	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}

	if !semver.IsValid(c.APIVersion) {
		return fmt.Errorf("invalid api_version %q: must be semantic version like v1.2.3", c.APIVersion)
	}

	if c.DeliveryFee < 0 {
		return fmt.Errorf("delivery_fee must not be negative")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIBaseURL returns the backend URL without a trailing slash.
func (c *Config) APIBaseURL() string {
	return strings.TrimSuffix(c.BackendURL, "/")
}
