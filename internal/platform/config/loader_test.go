package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	loader := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "missing.yaml"))

	result, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if result.Path != "" {
		t.Errorf("expected empty origin path, got %q", result.Path)
	}
	if result.Config.Server.Port != 8020 {
		t.Errorf("expected default port 8020, got %d", result.Config.Server.Port)
	}
	if result.Config.Folders.Latent != "latent_speaker_folder" {
		t.Errorf("unexpected default latent folder %q", result.Config.Folders.Latent)
	}
}

func TestLoad_YamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  ip: 127.0.0.1
  port: 9000
folders:
  speaker: /tmp/voices
streaming:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := NewLoader().WithDotEnv(false).WithPath(path).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg := result.Config
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Folders.Speaker != "/tmp/voices" {
		t.Errorf("expected speaker folder override, got %q", cfg.Folders.Speaker)
	}
	if !cfg.Streaming.Enabled {
		t.Error("expected streaming enabled")
	}
	// Untouched sections keep defaults.
	if cfg.Model.Version != "v2.0.2" {
		t.Errorf("expected default model version, got %q", cfg.Model.Version)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OUTPUT", "/srv/out")
	t.Setenv("STREAM_MODE", "true")
	t.Setenv("USE_CACHE", "true")
	t.Setenv("MODEL_SOURCE", "api")

	result, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "missing.yaml")).
		Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg := result.Config
	if cfg.Folders.Output != "/srv/out" {
		t.Errorf("expected output override, got %q", cfg.Folders.Output)
	}
	if !cfg.Streaming.Enabled || !cfg.Cache.Enabled {
		t.Error("expected STREAM_MODE and USE_CACHE overrides applied")
	}
	if cfg.Model.Source != "api" {
		t.Errorf("expected model source api, got %q", cfg.Model.Source)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, true},
		{"bad model source", func(c *Config) { c.Model.Source = "cloud" }, true},
		{"bad cache type", func(c *Config) { c.Cache.Type = "memcached" }, true},
		{"bad engine type", func(c *Config) { c.Engine.Type = "quantum" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
