package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Collector.PollInterval != 10*time.Second {
		t.Fatalf("poll interval = %v", cfg.Collector.PollInterval)
	}
	if cfg.Collector.ExpectedResponses != 3 || cfg.Collector.Timeout != 30*time.Minute {
		t.Fatalf("unexpected collector defaults: %+v", cfg.Collector)
	}
	if !cfg.Channels["whatsapp"].IsEnabled() {
		t.Fatalf("whatsapp should be enabled by default")
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
outreach:
  concurrency: 2
channels:
  sms: {enabled: false}
  api: {webhook_url: "http://localhost:9999/hook"}
regions:
  keywords: {surat: West}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Outreach.Concurrency != 2 || cfg.Executor.Concurrency != 8 {
		t.Fatalf("unexpected concurrency: %d/%d", cfg.Outreach.Concurrency, cfg.Executor.Concurrency)
	}
	if cfg.Channels["sms"].IsEnabled() {
		t.Fatalf("sms should be disabled")
	}
	if cfg.Channels["api"].WebhookURL == "" {
		t.Fatalf("api webhook url not parsed")
	}
	if cfg.Regions.Keywords["surat"] != "West" {
		t.Fatalf("region keyword not parsed")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown channel": "channels:\n  telegram: {enabled: true}\n",
		"zero workers":    "outreach:\n  concurrency: 0\n",
		"model missing":   "reasoning:\n  endpoint: http://llm\n",
		"webhook url":     "webhooks:\n  - events: [STATE_TRANSITION]\n",
		"log level":       "logging:\n  level: loud\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptionalMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Outreach.Concurrency != 8 {
		t.Fatalf("expected defaults")
	}
	if err := os.WriteFile(filepath.Join(dir, "disruptline.yml"), []byte("collector:\n  timeout: 0s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Collector.Timeout != 0 {
		t.Fatalf("timeout = %v", cfg.Collector.Timeout)
	}
}
