// Package config loads the YAML run configuration. A loaded Config is the
// explicit context of one run; nothing reads settings from globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/johndauphine/retail-etl/internal/dbconfig"
	"github.com/johndauphine/retail-etl/internal/driver"
	"github.com/johndauphine/retail-etl/internal/export"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/johndauphine/retail-etl/internal/publish"
	"github.com/johndauphine/retail-etl/internal/secrets"
	"gopkg.in/yaml.v3"

	// Register drivers so their defaults are available.
	_ "github.com/johndauphine/retail-etl/internal/driver/mssql"
	_ "github.com/johndauphine/retail-etl/internal/driver/mysql"
	_ "github.com/johndauphine/retail-etl/internal/driver/postgres"
	_ "github.com/johndauphine/retail-etl/internal/driver/sqlite"
)

// Config is the complete run configuration.
type Config struct {
	Source  dbconfig.SourceConfig `yaml:"source"`
	Export  ExportConfig          `yaml:"export"`
	Upload  publish.Config        `yaml:"upload"`
	Metrics MetricsConfig         `yaml:"metrics"`
	Logging LoggingConfig         `yaml:"logging"`

	path string
}

// ExportConfig controls the export engine and its state.
type ExportConfig struct {
	OutputDir     string `yaml:"output_dir"`       // default: exports
	Format        string `yaml:"format"`           // csv (default) or parquet
	ChunkSize     int    `yaml:"chunk_size"`       // rows per chunk (default: 10000, less on small hosts)
	MappingFile   string `yaml:"mapping_file"`     // default: mappings.yaml
	StateFile     string `yaml:"state_file"`       // default: .retail-etl/state.db
	MinFreeDiskMB int64  `yaml:"min_free_disk_mb"` // preflight threshold in MB (default: 100, negative disables)
}

// MetricsConfig selects an optional metrics backend.
type MetricsConfig struct {
	Backend        string   `yaml:"backend"`         // "", prometheus or datadog
	PushgatewayURL string   `yaml:"pushgateway_url"` // prometheus
	Job            string   `yaml:"job"`             // prometheus job (default: retail-etl)
	DatadogAddr    string   `yaml:"datadog_addr"`    // datadog: host:port or unix:///path
	Namespace      string   `yaml:"namespace"`       // datadog metric prefix
	Tags           []string `yaml:"tags"`            // datadog global tags
}

// LoggingConfig sets the log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info (default), warn, error
	Format string `yaml:"format"` // text (default) or json
}

// Load reads, expands, defaults and validates a configuration file.
// ${VAR} references are replaced from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	cfg.path = path
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse builds a Config from YAML without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// ExportFormat returns the parsed output format.
func (c *Config) ExportFormat() export.Format {
	f, _ := export.ParseFormat(c.Export.Format)
	return f
}

// OutputPath returns the export file path of an expected table.
func (c *Config) OutputPath(table string) string {
	return filepath.Join(c.Export.OutputDir, table+c.ExportFormat().Ext())
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = "sqlite"
	}
	if d, err := driver.Get(c.Source.Type); err == nil {
		defs := d.Defaults()
		if c.Source.Port == 0 {
			c.Source.Port = defs.Port
		}
		if c.Source.Schema == "" {
			c.Source.Schema = defs.Schema
		}
		if c.Source.SSLMode == "" {
			c.Source.SSLMode = defs.SSLMode
		}
	}
	if c.Source.MaxConns == 0 {
		c.Source.MaxConns = 2
	}

	if c.Export.OutputDir == "" {
		c.Export.OutputDir = "exports"
	}
	if c.Export.Format == "" {
		c.Export.Format = string(export.FormatCSV)
	}
	if c.Export.ChunkSize == 0 {
		c.Export.ChunkSize = defaultChunkSize(AvailableMemoryMB())
	}
	if c.Export.MappingFile == "" {
		c.Export.MappingFile = "mappings.yaml"
	}
	if c.Export.StateFile == "" {
		c.Export.StateFile = filepath.Join(".retail-etl", "state.db")
	}
	if c.Export.MinFreeDiskMB == 0 {
		c.Export.MinFreeDiskMB = 100
	}

	if c.Metrics.Job == "" {
		c.Metrics.Job = "retail-etl"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	d, err := driver.Get(c.Source.Type)
	if err != nil {
		return fmt.Errorf("source.type: %w", err)
	}
	switch d.Kind() {
	case driver.KindFile:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for %s", c.Source.Type)
		}
	case driver.KindNetworked:
		if c.Source.Host == "" {
			return fmt.Errorf("source.host is required for %s", c.Source.Type)
		}
		if c.Source.Database == "" {
			return fmt.Errorf("source.database is required for %s", c.Source.Type)
		}
		if c.Source.Port <= 0 || c.Source.Port > 65535 {
			return fmt.Errorf("source.port %d is out of range", c.Source.Port)
		}
	}
	if c.Source.MaxConns < 1 {
		return fmt.Errorf("source.max_conns must be at least 1")
	}

	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	if c.Export.ChunkSize < 1 {
		return fmt.Errorf("export.chunk_size must be positive, got %d", c.Export.ChunkSize)
	}

	if c.Upload.Endpoint != "" || c.Upload.Bucket != "" {
		if c.Upload.Endpoint == "" || c.Upload.Bucket == "" {
			return fmt.Errorf("upload requires both endpoint and bucket")
		}
		if c.Upload.AccessKey == "" || c.Upload.SecretKey == "" {
			return fmt.Errorf("upload requires access_key and secret_key")
		}
	}

	switch strings.ToLower(c.Metrics.Backend) {
	case "", "none":
	case "prometheus":
		if c.Metrics.PushgatewayURL == "" {
			return fmt.Errorf("metrics.pushgateway_url is required for prometheus")
		}
	case "datadog":
		if c.Metrics.DatadogAddr == "" {
			return fmt.Errorf("metrics.datadog_addr is required for datadog")
		}
	default:
		return fmt.Errorf("metrics.backend %q is not supported (prometheus or datadog)", c.Metrics.Backend)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// resolveSecrets replaces "secret:NAME" references with values from the
// secrets file. A referenced source credential also supplies a missing user.
func (c *Config) resolveSecrets() error {
	if secrets.IsRef(c.Source.Password) {
		ref := c.Source.Password
		pw, err := secrets.Resolve(ref, func(cr *secrets.Credential) string { return cr.Password })
		if err != nil {
			return fmt.Errorf("source.password: %w", err)
		}
		c.Source.Password = pw
		if c.Source.User == "" {
			c.Source.User, _ = secrets.Resolve(ref, func(cr *secrets.Credential) string { return cr.User })
		}
	}

	var err error
	if c.Upload.AccessKey, err = secrets.Resolve(c.Upload.AccessKey, func(cr *secrets.Credential) string { return cr.AccessKey }); err != nil {
		return fmt.Errorf("upload.access_key: %w", err)
	}
	if c.Upload.SecretKey, err = secrets.Resolve(c.Upload.SecretKey, func(cr *secrets.Credential) string { return cr.SecretKey }); err != nil {
		return fmt.Errorf("upload.secret_key: %w", err)
	}
	return nil
}

// resolvePaths makes relative file settings relative to the config file.
func (c *Config) resolvePaths(dir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	if c.Source.Path != "" {
		resolve(&c.Source.Path)
	}
	resolve(&c.Export.OutputDir)
	resolve(&c.Export.MappingFile)
	resolve(&c.Export.StateFile)
}
