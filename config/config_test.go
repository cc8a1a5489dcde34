package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	ingerr "tcpsink/internal/errors"
)

// ── Defaults ─────────────────────────────────────────────────────────

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Port != 5500 {
		t.Errorf("Port = %d, want 5500", cfg.Port)
	}
	if cfg.MaxFileSize != 1000 {
		t.Errorf("MaxFileSize = %d, want 1000", cfg.MaxFileSize)
	}
	if cfg.FilePrefix != "" {
		t.Errorf("FilePrefix = %q, want empty", cfg.FilePrefix)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if !cfg.SyncWrites {
		t.Error("SyncWrites should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Defaults()
	if got := cfg.ListenAddr(); got != ":5500" {
		t.Errorf("ListenAddr = %q, want %q", got, ":5500")
	}
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 9000
	if got := cfg.ListenAddr(); got != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestString(t *testing.T) {
	cfg := Defaults()
	cfg.MaxFileSize = 0
	cfg.IdleTimeout = 0
	cfg.MetricsAddr = "127.0.0.1:9100"

	out := cfg.String()
	for _, want := range []string{
		"listen:          :5500",
		"max file size:   unbounded",
		"idle timeout:    disabled",
		"http://127.0.0.1:9100/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}

// ── Config.Validate ──────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	valid := func(mut func(c *Config)) Config {
		c := Defaults()
		mut(c)
		return *c
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", valid(func(c *Config) {}), false},
		{"unbounded size", valid(func(c *Config) { c.MaxFileSize = 0 }), false},
		{"timer disabled", valid(func(c *Config) { c.IdleTimeout = 0 }), false},
		{"prefix", valid(func(c *Config) { c.FilePrefix = "sensor-a" }), false},
		{"port zero", valid(func(c *Config) { c.Port = 0 }), true},
		{"port too large", valid(func(c *Config) { c.Port = 70000 }), true},
		{"negative size", valid(func(c *Config) { c.MaxFileSize = -1 }), true},
		{"negative timeout", valid(func(c *Config) { c.IdleTimeout = -time.Second }), true},
		{"empty output dir", valid(func(c *Config) { c.OutputDir = " " }), true},
		{"prefix with slash", valid(func(c *Config) { c.FilePrefix = "a/b" }), true},
		{"prefix with backslash", valid(func(c *Config) { c.FilePrefix = `a\b` }), true},
		{"prefix dotdot", valid(func(c *Config) { c.FilePrefix = ".." }), true},
		{"prefix NUL", valid(func(c *Config) { c.FilePrefix = "a\x00" }), true},
		{"negative connections", valid(func(c *Config) { c.MaxConnections = -2 }), true},
		{"negative grace", valid(func(c *Config) { c.GracePeriod = -time.Second }), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				var ce *ingerr.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("error should be *ConfigError, got %T", err)
				}
			}
		})
	}
}
