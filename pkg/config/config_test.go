package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Ledger.RPCURL != "http://localhost:8545" {
		t.Errorf("Expected default RPC URL, got %s", cfg.Ledger.RPCURL)
	}
	if cfg.Storage.ClusterAPIURL != "http://localhost:9094" {
		t.Errorf("Expected default cluster API URL, got %s", cfg.Storage.ClusterAPIURL)
	}
	if cfg.Registry.FetchConcurrency != 1 {
		t.Errorf("Expected sequential fetch by default, got concurrency %d", cfg.Registry.FetchConcurrency)
	}
	if cfg.Registry.LegacyBusyOnStoreFailure {
		t.Error("Expected corrected busy behavior by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate, got: %v", err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		yaml := `
ledger:
  rpc_url: "http://node:8545"
  request_timeout: 10s
registry:
  deployments:
    "5777": "0x1234567890abcdef1234567890abcdef12345678"
  fetch_concurrency: 4
  legacy_busy_on_store_failure: true
`
		cfg := Default()
		if err := DecodeStrict(strings.NewReader(yaml), cfg); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}

		if cfg.Ledger.RPCURL != "http://node:8545" {
			t.Errorf("Expected overridden RPC URL, got %s", cfg.Ledger.RPCURL)
		}
		if cfg.Ledger.RequestTimeout != 10*time.Second {
			t.Errorf("Expected 10s timeout, got %v", cfg.Ledger.RequestTimeout)
		}
		if got := cfg.Registry.Deployments["5777"]; got != "0x1234567890abcdef1234567890abcdef12345678" {
			t.Errorf("Expected deployment for 5777, got %s", got)
		}
		if !cfg.Registry.LegacyBusyOnStoreFailure {
			t.Error("Expected legacy busy flag to decode")
		}
		// Untouched sections keep defaults
		if cfg.Storage.Timeout != 60*time.Second {
			t.Errorf("Expected default storage timeout, got %v", cfg.Storage.Timeout)
		}
	})

	t.Run("unknown_field_rejected", func(t *testing.T) {
		yaml := "ledger:\n  rpc_urll: oops\n"
		cfg := Default()
		if err := DecodeStrict(strings.NewReader(yaml), cfg); err == nil {
			t.Error("Expected error for unknown field")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing_file_returns_defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Missing file must not error, got: %v", err)
		}
		if cfg.Gateway.ListenAddr != ":6080" {
			t.Errorf("Expected default listen addr, got %s", cfg.Gateway.ListenAddr)
		}
	})

	t.Run("file_overrides_defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "peergram.yaml")
		content := "gateway:\n  listen_addr: \":7000\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}
		if cfg.Gateway.ListenAddr != ":7000" {
			t.Errorf("Expected :7000, got %s", cfg.Gateway.ListenAddr)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing_rpc_url", func(t *testing.T) {
		cfg := Default()
		cfg.Ledger.RPCURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing rpc_url")
		}
	})

	t.Run("negative_concurrency", func(t *testing.T) {
		cfg := Default()
		cfg.Registry.FetchConcurrency = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for negative fetch_concurrency")
		}
	})

	t.Run("empty_deployment_address", func(t *testing.T) {
		cfg := Default()
		cfg.Registry.Deployments["1"] = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for empty deployment address")
		}
	})
}
