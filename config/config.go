// Package config defines the runtime configuration for tcpsink and the
// layered loaders that populate it.
//
// Precedence order (highest wins):
//  1. CLI flags  (handled by cmd/root.go)
//  2. Environment variables  (loader.go)
//  3. YAML config file  (file.go)
//  4. Defaults  (defaults.go)
//
// The resulting Config is read once at startup and never mutated
// afterwards; every session receives an immutable copy of the values
// it needs.
package config

import (
	"fmt"
	"strings"
	"time"

	ingerr "tcpsink/internal/errors"
	"tcpsink/util"
)

// Config holds every tuneable for the ingestion service.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	BindAddress    string // empty binds every interface
	Port           int
	MaxConnections int // 0 = unlimited

	// ── Sessions ─────────────────────────────────────────────────────
	IdleTimeout time.Duration // 0 disables the idle timer
	MaxFileSize ByteSize      // 0 = unbounded, no rotation
	FilePrefix  string
	OutputDir   string
	SyncWrites  bool // fsync after every write

	// ── Service ──────────────────────────────────────────────────────
	MetricsAddr string // empty disables the /metrics endpoint
	GracePeriod time.Duration
	Verbose     int
}

// ListenAddr returns the host:port the listener binds.
func (c *Config) ListenAddr() string {
	return util.FormatAddr(c.BindAddress, c.Port)
}

// String renders the effective configuration, one setting per line,
// for --dry-run and the startup log.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listen:          %s\n", c.ListenAddr())
	fmt.Fprintf(&b, "output dir:      %s\n", c.OutputDir)
	if c.MaxFileSize > 0 {
		fmt.Fprintf(&b, "max file size:   %s (%d bytes)\n", c.MaxFileSize, c.MaxFileSize.Int64())
	} else {
		fmt.Fprintf(&b, "max file size:   unbounded\n")
	}
	fmt.Fprintf(&b, "file prefix:     %q\n", c.FilePrefix)
	if c.IdleTimeout > 0 {
		fmt.Fprintf(&b, "idle timeout:    %s\n", c.IdleTimeout)
	} else {
		fmt.Fprintf(&b, "idle timeout:    disabled\n")
	}
	fmt.Fprintf(&b, "sync writes:     %t\n", c.SyncWrites)
	if c.MaxConnections > 0 {
		fmt.Fprintf(&b, "max connections: %d\n", c.MaxConnections)
	} else {
		fmt.Fprintf(&b, "max connections: unlimited\n")
	}
	if c.MetricsAddr != "" {
		fmt.Fprintf(&b, "metrics:         http://%s/metrics\n", c.MetricsAddr)
	}
	return b.String()
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// It returns a *errors.ConfigError describing the first problem.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ingerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the default ingestion port is %d", DefaultPort),
		}
	}
	if c.MaxFileSize < 0 {
		return &ingerr.ConfigError{
			Field:   "max-file-size",
			Value:   c.MaxFileSize.Int64(),
			Message: "must not be negative",
			Hint:    "use 0 to disable rotation, or a size such as 1000, 64KiB or 10MB",
		}
	}
	if c.IdleTimeout < 0 {
		return &ingerr.ConfigError{
			Field:   "idle-timeout",
			Value:   c.IdleTimeout,
			Message: "must not be negative",
			Hint:    "use 0 to keep idle connections open forever",
		}
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return &ingerr.ConfigError{
			Field:   "output-dir",
			Message: "must not be empty",
			Hint:    "use . for the working directory",
		}
	}
	if err := validatePrefix(c.FilePrefix); err != nil {
		return &ingerr.ConfigError{
			Field:   "prefix",
			Value:   c.FilePrefix,
			Message: err.Error(),
			Hint:    "the prefix becomes part of a file name inside the session directory",
		}
	}
	if c.MaxConnections < 0 {
		return &ingerr.ConfigError{
			Field:   "max-connections",
			Value:   c.MaxConnections,
			Message: "must not be negative",
			Hint:    "use 0 for unlimited",
		}
	}
	if c.GracePeriod < 0 {
		return &ingerr.ConfigError{
			Field:   "grace-period",
			Value:   c.GracePeriod,
			Message: "must not be negative",
		}
	}
	return nil
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return nil
	case prefix == "." || prefix == "..":
		return fmt.Errorf("must not be %q", prefix)
	case strings.ContainsAny(prefix, `/\`):
		return fmt.Errorf("must not contain path separators")
	case strings.ContainsRune(prefix, 0):
		return fmt.Errorf("must not contain NUL")
	}
	return nil
}
