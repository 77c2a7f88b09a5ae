package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "ARTIFACTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultMaxAttempts is the default global retry budget of a run.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the pause before retrying after 503/408.
	DefaultRetryBackoff = time.Second

	// DefaultHTTPTimeout bounds each provider request.
	DefaultHTTPTimeout = 60 * time.Second

	// DefaultListLimit is the listing page size used for dedup.
	DefaultListLimit = 1000

	// DefaultMaxFileSize is the largest single-part upload accepted.
	DefaultMaxFileSize = "5GB"

	// DefaultHashConcurrency bounds parallel hashing of input files.
	DefaultHashConcurrency = 4

	// DefaultDatabaseDriver is the default ledger database driver.
	DefaultDatabaseDriver = DatabaseDriverSQLite

	// DefaultSQLitePath is the default ledger database file.
	DefaultSQLitePath = "./artifactoor.db"
)

// Config is the root configuration for artifactoor.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// StorageConfig contains the object-storage provider settings.
type StorageConfig struct {
	AuthorizeURL    string        `yaml:"authorize_url" mapstructure:"authorize_url"`
	KeyID           string        `yaml:"key_id,omitempty" mapstructure:"key_id"`
	ApplicationKey  string        `yaml:"application_key,omitempty" mapstructure:"application_key"`
	MaxAttempts     int           `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff,omitempty" mapstructure:"retry_backoff"`
	HTTPTimeout     time.Duration `yaml:"http_timeout,omitempty" mapstructure:"http_timeout"`
	ListLimit       int           `yaml:"list_limit,omitempty" mapstructure:"list_limit"`
	ProbeRateLimit  float64       `yaml:"probe_rate_limit,omitempty" mapstructure:"probe_rate_limit"`
	MaxFileSize     string        `yaml:"max_file_size,omitempty" mapstructure:"max_file_size"`
	HashConcurrency int           `yaml:"hash_concurrency,omitempty" mapstructure:"hash_concurrency"`
}

// MaxFileSizeBytes parses MaxFileSize.
func (s *StorageConfig) MaxFileSizeBytes() (int64, error) {
	size, err := units.FromHumanSize(s.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("parsing max_file_size %q: %w", s.MaxFileSize, err)
	}

	return size, nil
}

// LedgerConfig controls the persistent upload history.
type LedgerConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// Supported ledger database drivers.
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// Load reads and merges configuration files in order, applies
// ARTIFACTOOR_* environment overrides and fills in defaults. With no paths
// the configuration comes from defaults and the environment alone.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, path := range paths {
		v.SetConfigFile(path)

		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every key so that environment overrides apply
// even when a key is absent from the files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("storage.authorize_url", "")
	v.SetDefault("storage.key_id", "")
	v.SetDefault("storage.application_key", "")
	v.SetDefault("storage.max_attempts", DefaultMaxAttempts)
	v.SetDefault("storage.retry_backoff", DefaultRetryBackoff.String())
	v.SetDefault("storage.http_timeout", DefaultHTTPTimeout.String())
	v.SetDefault("storage.list_limit", DefaultListLimit)
	v.SetDefault("storage.probe_rate_limit", 0)
	v.SetDefault("storage.max_file_size", DefaultMaxFileSize)
	v.SetDefault("storage.hash_concurrency", DefaultHashConcurrency)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.database.driver", DefaultDatabaseDriver)
	v.SetDefault("ledger.database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("ledger.database.postgres.host", "")
	v.SetDefault("ledger.database.postgres.port", 5432)
	v.SetDefault("ledger.database.postgres.user", "")
	v.SetDefault("ledger.database.postgres.password", "")
	v.SetDefault("ledger.database.postgres.database", "")
	v.SetDefault("ledger.database.postgres.ssl_mode", "disable")
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Storage.MaxAttempts == 0 {
		c.Storage.MaxAttempts = DefaultMaxAttempts
	}

	if c.Storage.RetryBackoff == 0 {
		c.Storage.RetryBackoff = DefaultRetryBackoff
	}

	if c.Storage.HTTPTimeout == 0 {
		c.Storage.HTTPTimeout = DefaultHTTPTimeout
	}

	if c.Storage.ListLimit == 0 {
		c.Storage.ListLimit = DefaultListLimit
	}

	if c.Storage.MaxFileSize == "" {
		c.Storage.MaxFileSize = DefaultMaxFileSize
	}

	if c.Storage.HashConcurrency == 0 {
		c.Storage.HashConcurrency = DefaultHashConcurrency
	}

	if c.Ledger.Database.Driver == "" {
		c.Ledger.Database.Driver = DefaultDatabaseDriver
	}

	if c.Ledger.Database.Driver == DatabaseDriverSQLite && c.Ledger.Database.SQLite.Path == "" {
		c.Ledger.Database.SQLite.Path = DefaultSQLitePath
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	return c.Ledger.Validate()
}

// Validate checks the storage settings.
func (s *StorageConfig) Validate() error {
	if s.AuthorizeURL == "" {
		return fmt.Errorf("storage.authorize_url is required")
	}

	u, err := url.Parse(s.AuthorizeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("storage.authorize_url %q is not an absolute URL", s.AuthorizeURL)
	}

	if s.KeyID == "" || s.ApplicationKey == "" {
		return fmt.Errorf("storage.key_id and storage.application_key are required")
	}

	if s.MaxAttempts < 1 {
		return fmt.Errorf("storage.max_attempts must be at least 1")
	}

	if s.RetryBackoff < 0 {
		return fmt.Errorf("storage.retry_backoff must not be negative")
	}

	if s.ListLimit < 1 || s.ListLimit > DefaultListLimit {
		return fmt.Errorf("storage.list_limit must be between 1 and %d", DefaultListLimit)
	}

	if s.ProbeRateLimit < 0 {
		return fmt.Errorf("storage.probe_rate_limit must not be negative")
	}

	if s.HashConcurrency < 1 {
		return fmt.Errorf("storage.hash_concurrency must be at least 1")
	}

	if size, err := s.MaxFileSizeBytes(); err != nil {
		return err
	} else if size <= 0 {
		return fmt.Errorf("storage.max_file_size must be positive")
	}

	return nil
}

// Validate checks the ledger settings. A disabled ledger is always valid.
func (l *LedgerConfig) Validate() error {
	if !l.Enabled {
		return nil
	}

	if err := l.Database.validate(); err != nil {
		return fmt.Errorf("ledger.database: %w", err)
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DatabaseDriverSQLite:
		if d.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case DatabaseDriverPostgres:
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", d.Driver)
	}

	return nil
}
