package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithViper_EnvOverrides(t *testing.T) {
	t.Setenv("SCHEMADIFF_CONNECTION_POSTGRES_USER", "alice")
	t.Setenv("SCHEMADIFF_CONNECTION_POSTGRES_DATABASE", "inventory")
	t.Setenv("SCHEMADIFF_CONNECTION_POSTGRES_PORT", "6543")
	t.Setenv("SCHEMADIFF_PIPELINE_IGNORED_ERROR_CODES", "0A000,42P07")
	t.Setenv("SCHEMADIFF_PIPELINE_STATEMENT_TIMEOUT", "30s")

	cfg, err := LoadWithViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, DriverPgx, cfg.Connection.Driver)
	assert.Equal(t, "alice", cfg.Connection.Postgres.User)
	assert.Equal(t, "inventory", cfg.Connection.Database())
	assert.Equal(t, 6543, cfg.Connection.Postgres.Port)
	assert.Equal(t, []string{"0A000", "42P07"}, cfg.Pipeline.IgnoredErrorCodes)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StatementTimeout)
	assert.True(t, cfg.Diff.KeepClusterObjects)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemadiff.yaml")
	content := `
log_format: json
connection:
  driver: postgres
  postgres:
    host: db.internal
    user: svc
    database: app
diff:
  cascade: true
  target_version: "12.0"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Connection.Driver)
	assert.Equal(t, "db.internal", cfg.Connection.Postgres.Host)
	assert.True(t, cfg.Diff.Cascade)
	assert.Equal(t, "12.0", cfg.Diff.TargetVersion)
	assert.Equal(t, []string{"0A000"}, cfg.Pipeline.IgnoredErrorCodes)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Connection: ConnectionParams{
				Driver:   DriverPgx,
				Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "u"},
			},
			LogFormat: "json",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Connection.Driver = "mysql" }, wantErr: "unsupported driver"},
		{name: "missing user", mutate: func(c *Config) { c.Connection.Postgres.User = "" }, wantErr: "user is required"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "unsupported log format"},
		{name: "negative timeout", mutate: func(c *Config) { c.Pipeline.StatementTimeout = -time.Second }, wantErr: "cannot be negative"},
		{
			name:    "recreate without force",
			mutate:  func(c *Config) { c.Diff.RecreateUnmodified = true },
			wantErr: "requires force_recreation",
		},
		{
			name: "snowflake missing warehouse",
			mutate: func(c *Config) {
				c.Connection.Driver = DriverSnowflake
				c.Connection.Snowflake = SnowflakeConfig{Account: "acct", User: "u"}
			},
			wantErr: "warehouse is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConnectionParams_CloneIsIndependent(t *testing.T) {
	orig := ConnectionParams{
		Driver:    DriverSnowflake,
		Snowflake: SnowflakeConfig{Database: "A", Schemas: []string{"S1"}},
	}

	clone := orig.Clone()
	clone.Snowflake.Schemas[0] = "changed"
	clone.Snowflake.Database = "B"

	assert.Equal(t, "S1", orig.Snowflake.Schemas[0])
	assert.Equal(t, "A", orig.Database())

	other := orig.WithDatabase("C")
	assert.Equal(t, "C", other.Database())
	assert.Equal(t, "A", orig.Database())
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:           "localhost",
		Port:           5432,
		User:           "u",
		Password:       "p w'd",
		Database:       "app",
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	}

	assert.Equal(t,
		`host=localhost port=5432 user=u password='p w\'d' sslmode=disable dbname=app connect_timeout=5`,
		cfg.ConnectionString())
}

func TestSnowflakeAuthType(t *testing.T) {
	auth, err := SnowflakeConfig{Authenticator: "externalbrowser"}.AuthType()
	require.NoError(t, err)
	assert.Equal(t, gosnowflake.AuthTypeExternalBrowser, auth)

	_, err = SnowflakeConfig{Authenticator: "kerberos"}.AuthType()
	assert.Error(t, err)
}
