package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptionalDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:3000" || cfg.BasePath != "/api" || cfg.PollIntervalSeconds != 5 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
listen: "0.0.0.0:8080"
base_path: api
poll_interval_seconds: 10
github:
  token: ghtok
gateway:
  url: http://gw.local
  token: gwtok
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8080" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.BasePath != "/api" {
		t.Fatalf("base_path = %q, want leading slash added", cfg.BasePath)
	}
	if cfg.GitHub.Token != "ghtok" || cfg.Gateway.URL != "http://gw.local" || cfg.Gateway.Token != "gwtok" {
		t.Fatalf("integrations = %+v", cfg)
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	if _, err := FromYAML([]byte("poll_interval_seconds: 0")); err == nil {
		t.Fatal("zero poll interval should be rejected")
	}
	if _, err := FromYAML([]byte("listen: [nope")); err == nil {
		t.Fatal("invalid yaml should be rejected")
	}
}

func TestLoadOptionalReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "missionboard.yml"), []byte("listen: 127.0.0.1:4000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:4000" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.PollIntervalSeconds != 5 {
		t.Fatalf("poll interval = %d, want default kept", cfg.PollIntervalSeconds)
	}
}
