// Package config loads a kvdb server's YAML configuration file, using
// gopkg.in/yaml.v3 for file-based configuration.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/kvdb/pkg/errs"
)

// Config is the full set of recognized server options. Fields are optional
// in the YAML source; Load fills in defaults for anything left unset.
type Config struct {
	ID         string `yaml:"id"`
	DataDir    string `yaml:"data_dir"`
	Sync       *bool  `yaml:"sync"`
	ListenSQL  string `yaml:"listen_sql"`
	LogLevel   string `yaml:"log_level"`
	StorageSQL string `yaml:"storage_sql"` // "memory" or "file"
}

const (
	defaultID         = "kvdb"
	defaultDataDir    = "/var/lib/kvdb"
	defaultSync       = true
	defaultListenSQL  = "0.0.0.0:9605"
	defaultLogLevel   = "info"
	defaultStorageSQL = "memory"
)

// Default returns a Config with every field set to its documented default.
func Default() Config {
	sync := defaultSync
	return Config{
		ID:         defaultID,
		DataDir:    defaultDataDir,
		Sync:       &sync,
		ListenSQL:  defaultListenSQL,
		LogLevel:   defaultLogLevel,
		StorageSQL: defaultStorageSQL,
	}
}

// Load reads and parses the YAML file at path, applying defaults for any
// option it leaves unset, and validates storage_sql and log_level.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Config("read config file %q: %v", path, err)
	}
	return Parse(raw)
}

// Parse parses raw YAML bytes into a validated Config, applying documented
// defaults for unset fields.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errs.Config("parse config: %v", err)
	}
	if cfg.ID == "" {
		cfg.ID = defaultID
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.Sync == nil {
		sync := defaultSync
		cfg.Sync = &sync
	}
	if cfg.ListenSQL == "" {
		cfg.ListenSQL = defaultListenSQL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.StorageSQL == "" {
		cfg.StorageSQL = defaultStorageSQL
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageSQL {
	case "memory", "file":
	default:
		return errs.Config("unknown storage_sql %q", c.StorageSQL)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errs.Config("unknown log_level %q", c.LogLevel)
	}
	return nil
}
