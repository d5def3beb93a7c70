package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// PERFPIPE_CLICKHOUSE_HOST.
	EnvPrefix = "PERFPIPE"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDBPath is the default historical store location.
	DefaultDBPath = "./db/db.parquet"

	// DefaultLogsDir is the default parent of batch directories.
	DefaultLogsDir = "./db/logs"

	// DefaultLedgerDriver is the default ledger database driver.
	DefaultLedgerDriver = "sqlite"

	// DefaultLedgerPath is the default SQLite ledger file.
	DefaultLedgerPath = "./db/ledger.sqlite"

	// DefaultAppendAttempts bounds retries of a conflicting append.
	DefaultAppendAttempts = 5

	// DefaultAppendDelay is the initial backoff between append attempts.
	DefaultAppendDelay = 200 * time.Millisecond

	// DefaultClickHouseHost is the default ClickHouse host.
	DefaultClickHouseHost = "localhost"

	// DefaultClickHousePort is the default ClickHouse native protocol port.
	DefaultClickHousePort = 9000

	// DefaultClickHouseUser is the default ClickHouse user.
	DefaultClickHouseUser = "default"

	// DefaultClickHouseDatabase is the default target database.
	DefaultClickHouseDatabase = "benchmark"

	// DefaultClickHouseTable is the default target table.
	DefaultClickHouseTable = "performance"

	// DefaultReadyAttempts bounds readiness polling.
	DefaultReadyAttempts = 30

	// DefaultReadyInterval is the pause between readiness polls.
	DefaultReadyInterval = 2 * time.Second

	// DefaultDialTimeout is the ClickHouse dial timeout.
	DefaultDialTimeout = 10 * time.Second

	// DefaultUploadPrefix is the default S3 key prefix.
	DefaultUploadPrefix = "results"
)

// Config is the root configuration for perfpipe.
type Config struct {
	Global     GlobalConfig     `yaml:"global" mapstructure:"global"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" mapstructure:"clickhouse"`
	Upload     UploadConfig     `yaml:"upload,omitempty" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// ResultsOwner is an optional "UID:GID" applied to written files.
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// StorageConfig locates the on-disk artifacts.
type StorageConfig struct {
	DBPath  string `yaml:"db_path" mapstructure:"db_path"`
	LogsDir string `yaml:"logs_dir" mapstructure:"logs_dir"`
}

// LedgerConfig configures the append ledger database.
type LedgerConfig struct {
	Driver         string               `yaml:"driver" mapstructure:"driver"`
	SQLite         SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres       PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
	AppendAttempts int                  `yaml:"append_attempts" mapstructure:"append_attempts"`
	AppendDelay    time.Duration        `yaml:"append_delay" mapstructure:"append_delay"`
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
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// ClickHouseConfig contains the analytics database settings.
type ClickHouseConfig struct {
	Host          string        `yaml:"host" mapstructure:"host"`
	Port          int           `yaml:"port" mapstructure:"port"`
	User          string        `yaml:"user" mapstructure:"user"`
	Password      string        `yaml:"password" mapstructure:"password"`
	Database      string        `yaml:"database" mapstructure:"database"`
	Table         string        `yaml:"table" mapstructure:"table"`
	ReadyAttempts int           `yaml:"ready_attempts" mapstructure:"ready_attempts"`
	ReadyInterval time.Duration `yaml:"ready_interval" mapstructure:"ready_interval"`
	DialTimeout   time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// Addr returns host:port.
func (c *ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UploadConfig contains artifact upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures uploads to S3-compatible storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// Load reads the optional YAML file at path, applies PERFPIPE_* environment
// overrides and fills defaults. An empty path loads from the environment
// alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerKeys(v)

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
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
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// envKeys are registered with viper so AutomaticEnv picks them up even when
// the file does not mention them.
var envKeys = []string{
	"global.log_level",
	"global.results_owner",
	"storage.db_path",
	"storage.logs_dir",
	"ledger.driver",
	"ledger.sqlite.path",
	"ledger.postgres.host",
	"ledger.postgres.port",
	"ledger.postgres.user",
	"ledger.postgres.password",
	"ledger.postgres.database",
	"ledger.postgres.ssl_mode",
	"ledger.append_attempts",
	"ledger.append_delay",
	"clickhouse.host",
	"clickhouse.port",
	"clickhouse.user",
	"clickhouse.password",
	"clickhouse.database",
	"clickhouse.table",
	"clickhouse.ready_attempts",
	"clickhouse.ready_interval",
	"clickhouse.dial_timeout",
}

func registerKeys(v *viper.Viper) {
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}

	if c.Storage.LogsDir == "" {
		c.Storage.LogsDir = DefaultLogsDir
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DefaultLedgerDriver
	}

	if c.Ledger.SQLite.Path == "" {
		c.Ledger.SQLite.Path = DefaultLedgerPath
	}

	if c.Ledger.Postgres.Port == 0 {
		c.Ledger.Postgres.Port = 5432
	}

	if c.Ledger.Postgres.SSLMode == "" {
		c.Ledger.Postgres.SSLMode = "disable"
	}

	if c.Ledger.AppendAttempts == 0 {
		c.Ledger.AppendAttempts = DefaultAppendAttempts
	}

	if c.Ledger.AppendDelay == 0 {
		c.Ledger.AppendDelay = DefaultAppendDelay
	}

	if c.ClickHouse.Host == "" {
		c.ClickHouse.Host = DefaultClickHouseHost
	}

	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = DefaultClickHousePort
	}

	if c.ClickHouse.User == "" {
		c.ClickHouse.User = DefaultClickHouseUser
	}

	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = DefaultClickHouseDatabase
	}

	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = DefaultClickHouseTable
	}

	if c.ClickHouse.ReadyAttempts == 0 {
		c.ClickHouse.ReadyAttempts = DefaultReadyAttempts
	}

	if c.ClickHouse.ReadyInterval == 0 {
		c.ClickHouse.ReadyInterval = DefaultReadyInterval
	}

	if c.ClickHouse.DialTimeout == 0 {
		c.ClickHouse.DialTimeout = DefaultDialTimeout
	}

	if c.Upload.S3 != nil && c.Upload.S3.Prefix == "" {
		c.Upload.S3.Prefix = DefaultUploadPrefix
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.SQLite.Path == "" {
			return fmt.Errorf("ledger: sqlite.path is required")
		}
	case "postgres":
		if c.Ledger.Postgres.Host == "" {
			return fmt.Errorf("ledger: postgres.host is required")
		}

		if c.Ledger.Postgres.Database == "" {
			return fmt.Errorf("ledger: postgres.database is required")
		}
	default:
		return fmt.Errorf("ledger: unsupported driver %q", c.Ledger.Driver)
	}

	if c.Ledger.AppendAttempts < 1 {
		return fmt.Errorf("ledger: append_attempts must be at least 1")
	}

	if c.ClickHouse.Port < 1 || c.ClickHouse.Port > 65535 {
		return fmt.Errorf("clickhouse: invalid port %d", c.ClickHouse.Port)
	}

	if c.ClickHouse.ReadyAttempts < 1 {
		return fmt.Errorf("clickhouse: ready_attempts must be at least 1")
	}

	if !isIdentifier(c.ClickHouse.Database) {
		return fmt.Errorf("clickhouse: invalid database name %q", c.ClickHouse.Database)
	}

	if !isIdentifier(c.ClickHouse.Table) {
		return fmt.Errorf("clickhouse: invalid table name %q", c.ClickHouse.Table)
	}

	if s3 := c.Upload.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return fmt.Errorf("upload.s3: bucket is required when enabled")
	}

	return nil
}

// isIdentifier reports whether s is a plain SQL identifier that can be
// interpolated into DDL without quoting.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
