package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
storage:
  db_path: ./original/db.parquet
  logs_dir: ./original/logs
ledger:
  driver: sqlite
  sqlite:
    path: ./original/ledger.sqlite
  append_attempts: 3
clickhouse:
  host: ch.internal
  port: 9000
  database: bench
  table: perf
  ready_interval: 1s
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "./original/db.parquet", cfg.Storage.DBPath)
				assert.Equal(t, "ch.internal", cfg.ClickHouse.Host)
				assert.Equal(t, 3, cfg.Ledger.AppendAttempts)
				assert.Equal(t, time.Second, cfg.ClickHouse.ReadyInterval)
			},
		},
		{
			name: "string override - clickhouse host",
			envVars: map[string]string{
				"PERFPIPE_CLICKHOUSE_HOST": "clickhouse",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "clickhouse", cfg.ClickHouse.Host)
			},
		},
		{
			name: "int override - clickhouse port",
			envVars: map[string]string{
				"PERFPIPE_CLICKHOUSE_PORT": "19000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 19000, cfg.ClickHouse.Port)
			},
		},
		{
			name: "duration override - ready interval",
			envVars: map[string]string{
				"PERFPIPE_CLICKHOUSE_READY_INTERVAL": "250ms",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.ClickHouse.ReadyInterval)
			},
		},
		{
			name: "nested override - ledger sqlite path",
			envVars: map[string]string{
				"PERFPIPE_LEDGER_SQLITE_PATH": "/var/lib/perfpipe/ledger.sqlite",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/lib/perfpipe/ledger.sqlite", cfg.Ledger.SQLite.Path)
			},
		},
		{
			name: "storage override - db path",
			envVars: map[string]string{
				"PERFPIPE_STORAGE_DB_PATH": "/data/db.parquet",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/data/db.parquet", cfg.Storage.DBPath)
				assert.Equal(t, "./original/logs", cfg.Storage.LogsDir)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, "global: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultDBPath, cfg.Storage.DBPath)
	assert.Equal(t, DefaultLogsDir, cfg.Storage.LogsDir)
	assert.Equal(t, DefaultLedgerDriver, cfg.Ledger.Driver)
	assert.Equal(t, DefaultLedgerPath, cfg.Ledger.SQLite.Path)
	assert.Equal(t, DefaultAppendAttempts, cfg.Ledger.AppendAttempts)
	assert.Equal(t, DefaultAppendDelay, cfg.Ledger.AppendDelay)
	assert.Equal(t, DefaultClickHouseHost, cfg.ClickHouse.Host)
	assert.Equal(t, DefaultClickHousePort, cfg.ClickHouse.Port)
	assert.Equal(t, DefaultClickHouseDatabase, cfg.ClickHouse.Database)
	assert.Equal(t, DefaultClickHouseTable, cfg.ClickHouse.Table)
	assert.Equal(t, DefaultReadyAttempts, cfg.ClickHouse.ReadyAttempts)
	assert.Equal(t, DefaultReadyInterval, cfg.ClickHouse.ReadyInterval)
	assert.Nil(t, cfg.Upload.S3)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("PERFPIPE_GLOBAL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, DefaultDBPath, cfg.Storage.DBPath)
}

func TestLoad_UploadPrefixDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
upload:
  s3:
    enabled: true
    bucket: perf-artifacts
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Upload.S3)
	assert.Equal(t, DefaultUploadPrefix, cfg.Upload.S3.Prefix)
	assert.Equal(t, "perf-artifacts", cfg.Upload.S3.Bucket)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: yaml: content:"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown ledger driver",
			mutate:  func(cfg *Config) { cfg.Ledger.Driver = "mysql" },
			wantErr: "unsupported driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Ledger.Driver = "postgres"
				cfg.Ledger.Postgres.Database = "perfpipe"
			},
			wantErr: "postgres.host is required",
		},
		{
			name: "postgres complete",
			mutate: func(cfg *Config) {
				cfg.Ledger.Driver = "postgres"
				cfg.Ledger.Postgres.Host = "db"
				cfg.Ledger.Postgres.Database = "perfpipe"
			},
		},
		{
			name:    "negative append attempts",
			mutate:  func(cfg *Config) { cfg.Ledger.AppendAttempts = -1 },
			wantErr: "append_attempts",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.ClickHouse.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "table name with injection",
			mutate:  func(cfg *Config) { cfg.ClickHouse.Table = "perf; DROP TABLE x" },
			wantErr: "invalid table name",
		},
		{
			name:    "database starting with digit",
			mutate:  func(cfg *Config) { cfg.ClickHouse.Database = "1bench" },
			wantErr: "invalid database name",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.S3 = &S3UploadConfig{Enabled: true}
			},
			wantErr: "bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClickHouseConfig_Addr(t *testing.T) {
	c := ClickHouseConfig{Host: "clickhouse", Port: 9000}
	assert.Equal(t, "clickhouse:9000", c.Addr())
}
