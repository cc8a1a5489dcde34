package config

// loader.go - configuration loading from environment variables.

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TCPSINK_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TCPSINK_"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Malformed numbers and sizes
// are reported rather than silently ignored.
func LoadFromEnv(cfg *Config) error {
	if v, ok := lookup("BIND"); ok {
		cfg.BindAddress = v
	}
	if err := envInt("PORT", &cfg.Port); err != nil {
		return err
	}
	if err := envInt("MAX_CONNECTIONS", &cfg.MaxConnections); err != nil {
		return err
	}

	if v, ok := lookup("MAX_FILE_SIZE"); ok {
		size, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("%sMAX_FILE_SIZE: %w", EnvPrefix, err)
		}
		cfg.MaxFileSize = size
	}
	if v, ok := lookup("FILE_PREFIX"); ok {
		cfg.FilePrefix = v
	}
	var idle int
	if err := envInt("IDLE_TIMEOUT", &idle); err != nil {
		return err
	}
	if _, ok := lookup("IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = secondsDuration(idle)
	}
	if v, ok := lookup("OUTPUT_DIR"); ok {
		cfg.OutputDir = v
	}
	if envBool("NO_SYNC") {
		cfg.SyncWrites = false
	}

	if v, ok := lookup("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if err := envInt("VERBOSE", &cfg.Verbose); err != nil {
		return err
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	return v, v != ""
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, key, v)
	}
	*dst = n
	return nil
}

func envBool(key string) bool {
	v, _ := lookup(key)
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
