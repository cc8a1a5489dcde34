package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the TCP port the ingestion listener binds.
	DefaultPort = 5500

	// DefaultMaxFileSize bounds every output file, in bytes.
	DefaultMaxFileSize ByteSize = 1000

	// DefaultIdleTimeout closes a session after this long without I/O.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultOutputDir is where cnx_* session directories are created.
	DefaultOutputDir = "."

	// DefaultConfigPath is read when present; a missing default file is
	// not an error.
	DefaultConfigPath = "tcpsink.yaml"

	// DefaultGracePeriod is how long shutdown waits for sessions to
	// flush and close their files.
	DefaultGracePeriod = 5 * time.Second

	// DefaultVerbosity logs session open/close at [INF].
	DefaultVerbosity = 1
)

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		Port:        DefaultPort,
		MaxFileSize: DefaultMaxFileSize,
		IdleTimeout: DefaultIdleTimeout,
		OutputDir:   DefaultOutputDir,
		SyncWrites:  true,
		GracePeriod: DefaultGracePeriod,
		Verbose:     DefaultVerbosity,
	}
}
