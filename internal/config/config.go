// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"

	"quiz-checkout/internal/model"
	"quiz-checkout/internal/selection"
)

const (
	defaultPort          = "8080"
	defaultAPIVersion    = "2025-01"
	defaultTimeout       = 5 * time.Second
	defaultCacheTTL      = 5 * time.Minute
	defaultSweepInterval = 10 * time.Minute
	defaultStoresSecret  = "quiz-checkout-stores"
)

// Config holds all service configuration.
// It is read once at startup and never mutated afterwards.
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject   string
	StoresSecret string

	// Storefronts, in preference order
	Stores []model.Store

	CatalogPath string
	MappingPath string

	// Store routing
	FallbackStoreID string
	UTMStores       map[string]string
	DefaultStrategy selection.Strategy

	// Storefront API client
	ShopifyAPIVersion string
	ShopifyTimeout    time.Duration
	ChromeTLS         bool

	// Resolver cache
	CacheTTL      time.Duration
	SweepInterval time.Duration

	CORSAllowedOrigins []string
	AdminToken         string
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// storesDocument is the JSON shape of STORES, of the Secret Manager payload
// and of the "stores" section of CONFIG_FILE.
type storesDocument struct {
	Stores     []model.Store `json:"stores"`
	AdminToken string        `json:"admin_token,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Outside production a .env file (DOTENV_PATH, default ".env") is loaded
// first; variables already set in the environment win.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("ENVIRONMENT") != "production" {
		_ = godotenv.Load(envOrDefault("DOTENV_PATH", ".env"))
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:              envOrDefault("PORT", defaultPort),
		Environment:       envOrDefault("ENVIRONMENT", "development"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		GCPProject:        os.Getenv("GCP_PROJECT"),
		StoresSecret:      envOrDefault("STORES_SECRET", defaultStoresSecret),
		CatalogPath:       os.Getenv("CATALOG_PATH"),
		MappingPath:       os.Getenv("MAPPING_PATH"),
		FallbackStoreID:   os.Getenv("FALLBACK_STORE_ID"),
		ShopifyAPIVersion: envOrDefault("SHOPIFY_API_VERSION", defaultAPIVersion),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
	}

	var err error
	if cfg.DefaultStrategy, err = parseStrategy(os.Getenv("DEFAULT_STRATEGY")); err != nil {
		return nil, err
	}
	if cfg.ShopifyTimeout, err = envDuration("SHOPIFY_TIMEOUT", defaultTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envDuration("RESOLVER_CACHE_TTL", defaultCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("CACHE_SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	if v := os.Getenv("SHOPIFY_CHROME_TLS"); v != "" {
		if cfg.ChromeTLS, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parsing SHOPIFY_CHROME_TLS: %w", err)
		}
	}
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if raw := os.Getenv("UTM_STORE_MAP"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.UTMStores); err != nil {
			return nil, fmt.Errorf("parsing UTM_STORE_MAP JSON: %w", err)
		}
	}

	// Store credentials: Secret Manager in production, STORES otherwise
	if cfg.IsProduction() {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadStoresFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port               string            `json:"port"`
		Environment        string            `json:"environment"`
		LogLevel           string            `json:"log_level"`
		Stores             []model.Store     `json:"stores"`
		CatalogPath        string            `json:"catalog_path"`
		MappingPath        string            `json:"mapping_path"`
		FallbackStoreID    string            `json:"fallback_store_id"`
		UTMStores          map[string]string `json:"utm_store_map"`
		DefaultStrategy    string            `json:"default_strategy"`
		ShopifyAPIVersion  string            `json:"shopify_api_version"`
		ShopifyTimeout     string            `json:"shopify_timeout"`
		ChromeTLS          bool              `json:"shopify_chrome_tls"`
		CacheTTL           string            `json:"resolver_cache_ttl"`
		SweepInterval      string            `json:"cache_sweep_interval"`
		CORSAllowedOrigins []string          `json:"cors_allowed_origins"`
		AdminToken         string            `json:"admin_token"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:               withDefault(fileConfig.Port, defaultPort),
		Environment:        withDefault(fileConfig.Environment, "development"),
		LogLevel:           withDefault(fileConfig.LogLevel, "info"),
		Stores:             fileConfig.Stores,
		CatalogPath:        fileConfig.CatalogPath,
		MappingPath:        fileConfig.MappingPath,
		FallbackStoreID:    fileConfig.FallbackStoreID,
		UTMStores:          fileConfig.UTMStores,
		ShopifyAPIVersion:  withDefault(fileConfig.ShopifyAPIVersion, defaultAPIVersion),
		ChromeTLS:          fileConfig.ChromeTLS,
		CORSAllowedOrigins: fileConfig.CORSAllowedOrigins,
		AdminToken:         fileConfig.AdminToken,
	}

	if cfg.DefaultStrategy, err = parseStrategy(fileConfig.DefaultStrategy); err != nil {
		return nil, err
	}
	if cfg.ShopifyTimeout, err = parseDuration("shopify_timeout", fileConfig.ShopifyTimeout, defaultTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration("resolver_cache_ttl", fileConfig.CacheTTL, defaultCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDuration("cache_sweep_interval", fileConfig.SweepInterval, defaultSweepInterval); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches store credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{stores_secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoresSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applyStoresDocument(result.Payload.Data)
}

// loadStoresFromEnv reads the STORES JSON document.
// Both {"stores":[...]} and a bare array are accepted.
func (c *Config) loadStoresFromEnv() error {
	raw := strings.TrimSpace(os.Getenv("STORES"))
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &c.Stores); err != nil {
			return fmt.Errorf("parsing STORES JSON: %w", err)
		}
		return nil
	}
	return c.applyStoresDocument([]byte(raw))
}

func (c *Config) applyStoresDocument(data []byte) error {
	var doc storesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing stores JSON: %w", err)
	}
	c.Stores = doc.Stores
	if c.AdminToken == "" {
		c.AdminToken = doc.AdminToken
	}
	return nil
}

// validate checks store definitions and routing references.
func (c *Config) validate() error {
	if len(c.Stores) == 0 {
		return fmt.Errorf("at least one store is required")
	}

	ids := make(map[string]bool, len(c.Stores))
	for i, s := range c.Stores {
		if s.ID == "" {
			return fmt.Errorf("stores[%d]: id is required", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("stores[%d]: duplicate id %q", i, s.ID)
		}
		ids[s.ID] = true
		if s.Domain == "" && s.APIDomain == "" {
			return fmt.Errorf("store %q: domain is required", s.ID)
		}
		if s.StorefrontToken == "" {
			return fmt.Errorf("store %q: storefront_token is required", s.ID)
		}
	}

	if c.FallbackStoreID == "" {
		if len(c.Stores) > 1 {
			return errors.New("FALLBACK_STORE_ID is required with more than one store")
		}
		c.FallbackStoreID = c.Stores[0].ID
	}
	if !ids[c.FallbackStoreID] {
		return fmt.Errorf("fallback store %q is not a configured store", c.FallbackStoreID)
	}
	for campaign, storeID := range c.UTMStores {
		if !ids[storeID] {
			return fmt.Errorf("utm campaign %q routes to unknown store %q", campaign, storeID)
		}
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("resolver cache TTL must be positive")
	}
	return nil
}

func parseStrategy(s string) (selection.Strategy, error) {
	if s == "" {
		return selection.ByUTMCampaign, nil
	}
	strategy, err := selection.ParseStrategy(s)
	if err != nil {
		return "", fmt.Errorf("DEFAULT_STRATEGY: %w", err)
	}
	return strategy, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
