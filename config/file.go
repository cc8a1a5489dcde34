package config

// file.go - configuration loading from a YAML or key=value file.

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	ingerr "tcpsink/internal/errors"
)

// fileConfig mirrors the subset of Config that may be set from a file.
// Pointer fields distinguish "absent" from "zero".  The legacy keys
// file_maxsize and socket_timeout are accepted as aliases, in either
// file format.
type fileConfig struct {
	Bind           *string   `yaml:"bind"`
	Port           *int      `yaml:"port"`
	MaxConnections *int      `yaml:"max_connections"`
	MaxFileSize    *ByteSize `yaml:"max_file_size"`
	FileMaxsize    *ByteSize `yaml:"file_maxsize"`
	FilePrefix     *string   `yaml:"file_prefix"`
	IdleTimeout    *int      `yaml:"idle_timeout"` // seconds
	SocketTimeout  *int      `yaml:"socket_timeout"`
	OutputDir      *string   `yaml:"output_dir"`
	SyncWrites     *bool     `yaml:"sync_writes"`
	MetricsAddr    *string   `yaml:"metrics_addr"`
	Verbose        *int      `yaml:"verbose"`
}

// LoadFile overlays the config file at path onto cfg.  The file is
// either YAML or, when its first setting looks like "port=5500", the
// key=value format of config.cfg files.  When required is false a
// missing file is silently ignored, which is how the default config
// path behaves.  Unknown keys are rejected in both formats.
func LoadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if ingerr.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	var fc fileConfig
	if isLegacyFormat(data) {
		if err := decodeLegacy(data, &fc); err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		fc.apply(cfg)
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !ingerr.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	if fc.Bind != nil {
		cfg.BindAddress = *fc.Bind
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.MaxConnections != nil {
		cfg.MaxConnections = *fc.MaxConnections
	}
	if fc.FileMaxsize != nil {
		cfg.MaxFileSize = *fc.FileMaxsize
	}
	if fc.MaxFileSize != nil {
		cfg.MaxFileSize = *fc.MaxFileSize
	}
	if fc.FilePrefix != nil {
		cfg.FilePrefix = *fc.FilePrefix
	}
	if fc.SocketTimeout != nil {
		cfg.IdleTimeout = secondsDuration(*fc.SocketTimeout)
	}
	if fc.IdleTimeout != nil {
		cfg.IdleTimeout = secondsDuration(*fc.IdleTimeout)
	}
	if fc.OutputDir != nil {
		cfg.OutputDir = *fc.OutputDir
	}
	if fc.SyncWrites != nil {
		cfg.SyncWrites = *fc.SyncWrites
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
}
