package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	testSecretID  = "0123456789abcdef0123456789abcdef"
	testSecretB64 = "dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "varextract.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected no secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		t.Setenv("VX_HMAC_SECRET", testSecretID+":"+testSecretB64)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if _, ok := secrets[testSecretID]; !ok || len(secrets) != 1 {
			t.Errorf("expected secret %s only, got %v", testSecretID, secrets)
		}
	})

	t.Run("numbered secrets for rotation", func(t *testing.T) {
		t.Setenv("VX_HMAC_SECRET_1", testSecretID+":"+testSecretB64)
		t.Setenv("VX_HMAC_SECRET_2", "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("duplicate secret_id", func(t *testing.T) {
		t.Setenv("VX_HMAC_SECRET", testSecretID+":"+testSecretB64)
		t.Setenv("VX_HMAC_SECRET_1", testSecretID+":YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Setenv("VX_HMAC_SECRET", "invalid_format")

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for invalid format")
		}
	})
}

func TestParseHMACSecretWithID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid", testSecretID + ":" + testSecretB64, false},
		{"missing colon", testSecretID, true},
		{"short secret_id", "tooshort:" + testSecretB64, true},
		{"non-hex secret_id", "0123456789abcdefGHIJKLMNOPQRSTUV:" + testSecretB64, true},
		{"uppercase hex rejected", "0123456789ABCDEF0123456789ABCDEF:" + testSecretB64, true},
		{"invalid base64", testSecretID + ":not-base64!!!", true},
		{"secret too short", testSecretID + ":c2hvcnQ=", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (id != testSecretID || len(secret) < 32) {
				t.Errorf("got id %q, %d secret bytes", id, len(secret))
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Addr() != "0.0.0.0:50051" {
			t.Errorf("expected addr 0.0.0.0:50051, got %s", cfg.Server.Addr())
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.Server.RequestTimeout)
		}
		if cfg.Server.MaxBatchSize != 1000 {
			t.Errorf("expected max_batch_size 1000, got %d", cfg.Server.MaxBatchSize)
		}
		if cfg.Extraction.MaxDepth != 16 {
			t.Errorf("expected max_depth 16, got %d", cfg.Extraction.MaxDepth)
		}
		if cfg.Extraction.UnsupportedFilterPolicy != "pass" {
			t.Errorf("expected policy pass, got %s", cfg.Extraction.UnsupportedFilterPolicy)
		}
		if cfg.Mappings.File != "" || cfg.Mappings.Watch {
			t.Errorf("expected no mappings file, got %+v", cfg.Mappings)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `server:
  port: 9090
  request_timeout: 5s
extraction:
  max_depth: 4
  unsupported_filter_policy: FAIL
  workers: 2
mappings:
  file: /etc/varextract/mappings.yaml
  watch: true
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 5*time.Second {
			t.Errorf("server = %+v", cfg.Server)
		}
		if cfg.Extraction.MaxDepth != 4 || cfg.Extraction.UnsupportedFilterPolicy != "fail" || cfg.Extraction.Workers != 2 {
			t.Errorf("extraction = %+v", cfg.Extraction)
		}
		if !cfg.Mappings.Watch || cfg.Mappings.File != "/etc/varextract/mappings.yaml" {
			t.Errorf("mappings = %+v", cfg.Mappings)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")
		t.Setenv("VX_SERVER_PORT", "8080")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected env port 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("secret in config file rejected", func(t *testing.T) {
		path := writeConfig(t, "server:\n  host: localhost\n  hmac_secret: should_be_rejected\n")

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use VX_HMAC_SECRET environment variable)" {
			t.Errorf("wrong error message: %v", err)
		}
	})

	t.Run("secret in environment accepted", func(t *testing.T) {
		t.Setenv("VX_HMAC_SECRET", testSecretID+":"+testSecretB64)
		if _, err := LoadConfig(""); err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
	})

	invalid := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "VX_SERVER_PORT", "70000"},
		{"negative batch size", "VX_SERVER_MAX_BATCH_SIZE", "-1"},
		{"zero max depth", "VX_EXTRACTION_MAX_DEPTH", "0"},
		{"unknown filter policy", "VX_EXTRACTION_UNSUPPORTED_FILTER_POLICY", "maybe"},
		{"negative workers", "VX_EXTRACTION_WORKERS", "-3"},
		{"watch without file", "VX_MAPPINGS_WATCH", "true"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfig(""); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
