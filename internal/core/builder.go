package core

import (
	"tcpsink/config"
	"tcpsink/internal/metrics"
	"tcpsink/internal/session"
	"tcpsink/util"
)

// Build constructs the listening Mode from the given configuration.
// The per-session settings are copied into a session.Config template
// so later changes to cfg cannot reach running sessions.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = util.NewLogger(cfg.Verbose)
	}
	if m == nil {
		m = metrics.New()
	}

	return &ListenMode{
		Address:        cfg.ListenAddr(),
		MaxConnections: cfg.MaxConnections,
		GracePeriod:    cfg.GracePeriod,
		MetricsAddr:    cfg.MetricsAddr,
		Session:        sessionTemplate(cfg),
		Logger:         logger,
		Metrics:        m,
	}, nil
}

func sessionTemplate(cfg *config.Config) session.Config {
	return session.Config{
		IdleTimeout: cfg.IdleTimeout,
		MaxFileSize: cfg.MaxFileSize.Int64(),
		Prefix:      cfg.FilePrefix,
		OutputDir:   cfg.OutputDir,
		SyncWrites:  cfg.SyncWrites,
	}
}
