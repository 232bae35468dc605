package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dev-console/agentsandbox/internal/model"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sandbox.TimeoutMs != model.DefaultTimeoutMs {
		t.Fatalf("expected default timeout, got %d", cfg.Sandbox.TimeoutMs)
	}
	if cfg.Sandbox.NetworkPolicy.Mode != model.NetworkBlocked {
		t.Fatalf("expected default blocked policy, got %v", cfg.Sandbox.NetworkPolicy)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"sandbox":{"timeout_ms":9000,"network_policy":{"mode":"unrestricted"}},"env":{"REGION":"us-east-1"},"http_addr":":8787"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sandbox.TimeoutMs != 9000 {
		t.Fatalf("got %d", cfg.Sandbox.TimeoutMs)
	}
	if cfg.Sandbox.NetworkPolicy.Mode != model.NetworkUnrestricted {
		t.Fatalf("got %v", cfg.Sandbox.NetworkPolicy)
	}
	if cfg.HTTPAddr != ":8787" {
		t.Fatalf("got %q", cfg.HTTPAddr)
	}
}

func TestFilteredEnv(t *testing.T) {
	cfg := Config{Env: map[string]string{"A": "1"}}
	out := FilteredEnv(cfg)
	if out["A"] != "1" {
		t.Fatalf("got %+v", out)
	}
}
