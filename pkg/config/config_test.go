package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
backend:
  type: kafka
posfeed:
  regions: [Pune, Nashik]
models:
  service_url: http://localhost:9200
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Models.FreshnessWindow != 15*time.Minute {
		t.Fatalf("freshness window = %v, want 15m", cfg.Models.FreshnessWindow)
	}
	if cfg.Models.DecisionTTL != 5*time.Minute {
		t.Fatalf("decision ttl = %v, want 5m", cfg.Models.DecisionTTL)
	}
	if cfg.Pricing.MarkupB2B != 1.2 || cfg.Pricing.MarkupB2C != 1.5 {
		t.Fatalf("markups = %v/%v, want 1.2/1.5", cfg.Pricing.MarkupB2B, cfg.Pricing.MarkupB2C)
	}
	if cfg.Pricing.FallbackMandiPrice != 140 {
		t.Fatalf("fallback mandi price = %v, want 140", cfg.Pricing.FallbackMandiPrice)
	}
}

func TestLoadValidates(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing environment", `
backend: {type: kafka}
posfeed: {regions: [Pune]}
models: {service_url: http://localhost:9200}
`},
		{"bad backend", `
environment: test
backend: {type: rabbitmq}
posfeed: {regions: [Pune]}
models: {service_url: http://localhost:9200}
`},
		{"no regions", `
environment: test
backend: {type: kafka}
models: {service_url: http://localhost:9200}
`},
		{"no model service", `
environment: test
backend: {type: kafka}
posfeed: {regions: [Pune]}
`},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
			t.Fatalf("%s: config accepted", tc.name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MODEL_SERVICE_URL", "http://models.internal:9200")
	t.Setenv("REGIONS", "Mumbai,Satara")
	t.Setenv("BACKEND", "clickhouse")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Models.ServiceURL != "http://models.internal:9200" {
		t.Fatalf("service url = %q", cfg.Models.ServiceURL)
	}
	if len(cfg.PosFeed.Regions) != 2 || cfg.PosFeed.Regions[0] != "Mumbai" {
		t.Fatalf("regions = %v", cfg.PosFeed.Regions)
	}
	if cfg.Backend.Type != "clickhouse" {
		t.Fatalf("backend = %q", cfg.Backend.Type)
	}
}
