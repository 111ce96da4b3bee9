package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the peergram client
type Config struct {
	Ledger   LedgerConfig   `yaml:"ledger"`
	Storage  StorageConfig  `yaml:"storage"`
	Registry RegistryConfig `yaml:"registry"`
	Cache    CacheConfig    `yaml:"cache"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LedgerConfig contains the execution-context provider configuration
type LedgerConfig struct {
	// RPCURL is the JSON-RPC endpoint of the ledger node (e.g., "http://localhost:8545")
	RPCURL string `yaml:"rpc_url"`

	// PrivateKey is an optional hex-encoded ECDSA signing key. When set the
	// client signs transactions locally; when empty, transactions are
	// submitted through the node's managed accounts (legacy provider mode).
	PrivateKey string `yaml:"private_key"`

	// RequestTimeout bounds each provider round trip
	// If zero, defaults to 30 seconds
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig contains the content-addressed storage client configuration
type StorageConfig struct {
	// ClusterAPIURL is the IPFS Cluster HTTP API URL (e.g., "http://localhost:9094")
	// If empty, defaults to "http://localhost:9094"
	ClusterAPIURL string `yaml:"cluster_api_url"`

	// APIURL is the IPFS HTTP API URL for content retrieval (e.g., "http://localhost:5001")
	// If empty, defaults to "http://localhost:5001"
	APIURL string `yaml:"api_url"`

	// Timeout for storage operations
	// If zero, defaults to 60 seconds
	Timeout time.Duration `yaml:"timeout"`
}

// RegistryConfig contains registry contract configuration
type RegistryConfig struct {
	// Deployments maps a network reference (chain id as decimal string) to
	// the registry contract address deployed there. Absence of the active
	// network's key is a valid "undeployed" outcome, not an error.
	Deployments map[string]string `yaml:"deployments"`

	// FetchConcurrency is the number of in-flight entry fetches during
	// catalog load. 1 (the default) preserves strictly sequential fetching
	// with per-entry observable progress.
	FetchConcurrency int `yaml:"fetch_concurrency"`

	// LegacyBusyOnStoreFailure leaves the busy flag set when the storage
	// upload step of a publish fails, for deployments that depend on the old
	// behavior. Off by default; the corrected behavior clears busy on all
	// publish exit paths.
	LegacyBusyOnStoreFailure bool `yaml:"legacy_busy_on_store_failure"`
}

// CacheConfig contains local catalog cache configuration
type CacheConfig struct {
	// Enabled turns the sqlite catalog snapshot cache on
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database file path
	// If empty, defaults to "peergram-cache.db"
	Path string `yaml:"path"`
}

// GatewayConfig contains the HTTP render-boundary configuration
type GatewayConfig struct {
	// ListenAddr is the HTTP listen address (e.g., ":6080")
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	EnableColors bool `yaml:"enable_colors"`
}

// Default returns a configuration with sane local-development defaults
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			RPCURL:         "http://localhost:8545",
			RequestTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			ClusterAPIURL: "http://localhost:9094",
			APIURL:        "http://localhost:5001",
			Timeout:       60 * time.Second,
		},
		Registry: RegistryConfig{
			Deployments:      map[string]string{},
			FetchConcurrency: 1,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "peergram-cache.db",
		},
		Gateway: GatewayConfig{
			ListenAddr: ":6080",
		},
		Logging: LoggingConfig{
			EnableColors: true,
		},
	}
}

// DecodeStrict decodes YAML from a reader over the given config and rejects
// any unknown fields.
func DecodeStrict(r io.Reader, out *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if c.Registry.FetchConcurrency < 0 {
		return fmt.Errorf("registry.fetch_concurrency must not be negative")
	}
	if c.Ledger.RequestTimeout < 0 {
		return fmt.Errorf("ledger.request_timeout must not be negative")
	}
	for network, addr := range c.Registry.Deployments {
		if network == "" || addr == "" {
			return fmt.Errorf("registry.deployments entries must have both network and address")
		}
	}
	return nil
}
