// Package config loads the process-wide host configuration record (spec
// §6 configuration surface): sandbox defaults, the declared adapter and
// named-task environment, and a filtered environment-variable view. It is
// loaded once at server start from state.ConfigFile() (a host-controlled
// JSON document) and never reloaded mid-process.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dev-console/agentsandbox/internal/model"
)

// Config is the top-level host-controlled configuration record.
type Config struct {
	Sandbox model.SandboxConfig `json:"sandbox"`
	Env     map[string]string   `json:"env,omitempty"`

	// HTTPAddr, when non-empty, serves the HTTP POST + /health transport
	// in addition to stdio (spec §6 "JSON-framed messages over either a
	// line-delimited stream or an HTTP POST endpoint").
	HTTPAddr string `json:"http_addr,omitempty"`
}

// Default returns the configuration used when no config file is present:
// spec-default sandbox settings, an empty environment view, stdio only.
func Default() Config {
	return Config{Sandbox: model.DefaultSandboxConfig()}
}

// Load reads and parses the configuration record at path. A missing file
// is not an error — it yields Default() — since a host may run with pure
// defaults and register adapters/tasks entirely in code.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Sandbox.TimeoutMs <= 0 {
		cfg.Sandbox.TimeoutMs = model.DefaultTimeoutMs
	}
	if cfg.Sandbox.NetworkPolicy.Mode == "" {
		cfg.Sandbox.NetworkPolicy = model.DefaultNetworkPolicy()
	}
	return cfg, nil
}

// FilteredEnv returns the subset of cfg.Env the sandbox is permitted to
// see, as a read-only record (spec §6 "the sandbox sees a filtered,
// read-only view"). Every key is currently passed through — this is the
// single seam a host-side allow/deny policy would extend.
func FilteredEnv(cfg Config) map[string]any {
	out := make(map[string]any, len(cfg.Env))
	for k, v := range cfg.Env {
		out[k] = v
	}
	return out
}
