package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if len(cfg.Policy.Rules) != 7 {
		t.Errorf("expected 7 day-zero rules, got %d", len(cfg.Policy.Rules))
	}
	if cfg.Policy.Thresholds.RequireElevated != 0.5 {
		t.Errorf("expected default elevated threshold 0.5, got %g", cfg.Policy.Thresholds.RequireElevated)
	}
}

func TestDefault_NilThresholdRulesAreInert(t *testing.T) {
	for _, rule := range Default().Policy.Rules {
		if rule.Tripwire == "sudoers_change" && rule.Threshold != 0 {
			t.Errorf("sudoers_change should ship without a threshold, got %g", rule.Threshold)
		}
	}
}

func TestLoad_MissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	doc := `
server:
  http_port: 9090
policy:
  thresholds:
    require_elevated: 0.4
    quarantine: 0.6
    lockdown: 0.8
  rules:
    - tripwire: ssh_burst
      enabled: true
      threshold: 20
      description: SSH burst detection
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Policy.Thresholds.Lockdown != 0.8 {
		t.Errorf("expected lockdown 0.8, got %g", cfg.Policy.Thresholds.Lockdown)
	}
	if len(cfg.Policy.Rules) != 1 || cfg.Policy.Rules[0].Threshold != 20 {
		t.Errorf("expected the single configured rule, got %v", cfg.Policy.Rules)
	}
}

func TestLoad_RejectsInvertedLadder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	doc := `
policy:
  thresholds:
    require_elevated: 0.9
    quarantine: 0.5
    lockdown: 0.7
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("inverted ladder must be rejected at load time")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(":\n  - ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed YAML must be rejected")
	}
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown log level must be rejected")
	}
}

func TestLoad_EnvOverridesDSN(t *testing.T) {
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://audit:9440/sentinel?secure=true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.ClickHouseDSN != "clickhouse://audit:9440/sentinel?secure=true" {
		t.Errorf("env DSN not applied, got %q", cfg.Storage.ClickHouseDSN)
	}
}
