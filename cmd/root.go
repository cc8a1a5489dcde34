// Package cmd wires up the CLI flags, layers them over the config file
// and environment, and starts the ingestion listener.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"tcpsink/config"
	"tcpsink/internal/core"
	"tcpsink/internal/metrics"
	"tcpsink/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tcpsink/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// options holds the raw flag values.  Only flags the user actually set
// are applied on top of the file and environment layers.
type options struct {
	bind           string
	port           int
	maxConnections int
	maxFileSize    config.ByteSize
	prefix         string
	idleTimeoutSec int
	outputDir      string
	noSync         bool
	metricsAddr    string
	gracePeriod    time.Duration
	verbose        int

	configPath  string
	dryRun      bool
	showVersion bool
	showHelp    bool
}

func newFlagSet() (*flag.FlagSet, *options) {
	o := &options{maxFileSize: config.DefaultMaxFileSize}
	fs := flag.NewFlagSet("tcpsink", flag.ContinueOnError)

	// ── listener ─────────────────────────────────────────────────
	fs.IntVarP(&o.port, "port", "p", config.DefaultPort, "TCP port to listen on")
	fs.StringVarP(&o.bind, "bind", "b", "", "Address to bind (default all interfaces)")
	fs.IntVarP(&o.maxConnections, "max-connections", "m", 0, "Concurrent session limit (0 = unlimited)")

	// ── output ───────────────────────────────────────────────────
	fs.VarP(&o.maxFileSize, "max-file-size", "s", "Rotate output files at this size, e.g. 1000, 64KiB, 10MB (0 = never)")
	fs.StringVar(&o.prefix, "prefix", "", "Prefix for output file names")
	fs.StringVarP(&o.outputDir, "output-dir", "o", config.DefaultOutputDir, "Directory session folders are created in")
	fs.BoolVar(&o.noSync, "no-sync", false, "Do not fsync after every write")

	// ── sessions ─────────────────────────────────────────────────
	fs.IntVarP(&o.idleTimeoutSec, "idle-timeout", "w", int(config.DefaultIdleTimeout/time.Second), "Close a connection after this many idle seconds (0 = never)")
	fs.DurationVar(&o.gracePeriod, "grace-period", config.DefaultGracePeriod, "How long shutdown waits for sessions to flush")

	// ── service ──────────────────────────────────────────────────
	fs.StringVarP(&o.configPath, "config", "c", config.DefaultConfigPath, "Config file, YAML or key=value")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	fs.CountVarP(&o.verbose, "verbose", "v", "Increase verbosity: -v verbose, -vv debug")

	fs.BoolVar(&o.dryRun, "dry-run", false, "Validate and print the effective configuration, then exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&o.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs, o
}

// Execute parses args and runs the listener until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	fs, o := newFlagSet()

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if o.showHelp {
		printUsage(fs)
		return nil
	}
	if o.showVersion {
		fmt.Printf("tcpsink %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── layer configuration ──────────────────────────────────────
	cfg, err := loadConfig(fs, o)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if o.dryRun {
		fmt.Print(cfg.String())
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.Debug("effective configuration:\n%s", cfg)

	mode, err := core.Build(cfg, logger, metrics.New())
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// loadConfig applies defaults, the config file, the environment and
// finally every flag that was explicitly set.
func loadConfig(fs *flag.FlagSet, o *options) (*config.Config, error) {
	cfg := config.Defaults()

	// A missing file is only an error when the user named one.
	if err := config.LoadFile(cfg, o.configPath, fs.Changed("config")); err != nil {
		return nil, err
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = o.port
		case "bind":
			cfg.BindAddress = o.bind
		case "max-connections":
			cfg.MaxConnections = o.maxConnections
		case "max-file-size":
			cfg.MaxFileSize = o.maxFileSize
		case "prefix":
			cfg.FilePrefix = o.prefix
		case "output-dir":
			cfg.OutputDir = o.outputDir
		case "no-sync":
			cfg.SyncWrites = !o.noSync
		case "idle-timeout":
			cfg.IdleTimeout = time.Duration(o.idleTimeoutSec) * time.Second
		case "grace-period":
			cfg.GracePeriod = o.gracePeriod
		case "metrics-addr":
			cfg.MetricsAddr = o.metricsAddr
		case "verbose":
			cfg.Verbose = config.DefaultVerbosity + o.verbose
		}
	})
	return cfg, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tcpsink – TCP ingestion service v%s

Accepts TCP connections and writes every byte each client sends into
size-rotated files under a per-connection directory:

  <output-dir>/cnx_<YYYYMMDDhhmmss>[_n]/[<prefix>_]<YYYYMMDDhhmmss>[_id]

Usage:
  tcpsink [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Configuration is read from, lowest to highest precedence: built-in
defaults, the YAML config file, TCPSINK_* environment variables, flags.

Examples:
  tcpsink                                     Listen on 5500, 1000-byte files
  tcpsink -p 9000 -s 10MB -o /var/spool/in    Larger files in a spool dir
  tcpsink --prefix gps -w 300 -v              Prefixed files, 5 min idle
  tcpsink -c /etc/tcpsink.yaml --dry-run      Check a config file
`)
}
