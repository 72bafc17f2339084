// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/spf13/viper"
)

// Supported database/sql driver names
const (
	DriverPgx       = "pgx"
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
)

// ConnectionParams identifies the database a pipeline run reads from and writes to
type ConnectionParams struct {
	Driver    string          `mapstructure:"driver"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
}

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string   `mapstructure:"user"`
	Password      string   `mapstructure:"password"`
	Account       string   `mapstructure:"account"`
	Warehouse     string   `mapstructure:"warehouse"`
	Database      string   `mapstructure:"database"`
	Role          string   `mapstructure:"role"`
	Authenticator string   `mapstructure:"authenticator"`
	Schemas       []string `mapstructure:"schemas"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("connection.postgres.host", "localhost")
	v.SetDefault("connection.postgres.port", 5432)
	v.SetDefault("connection.postgres.user", "")
	v.SetDefault("connection.postgres.password", "")
	v.SetDefault("connection.postgres.database", "")
	v.SetDefault("connection.postgres.sslmode", "disable")
	v.SetDefault("connection.postgres.connect_timeout", 10*time.Second)
	v.SetDefault("connection.postgres.max_open_conns", 4)
	v.SetDefault("connection.postgres.max_idle_conns", 2)
	v.SetDefault("connection.postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("connection.postgres.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("connection.snowflake.user", "")
	v.SetDefault("connection.snowflake.password", "")
	v.SetDefault("connection.snowflake.account", "")
	v.SetDefault("connection.snowflake.warehouse", "")
	v.SetDefault("connection.snowflake.database", "")
	v.SetDefault("connection.snowflake.role", "")
	v.SetDefault("connection.snowflake.authenticator", "snowflake")
	v.SetDefault("connection.snowflake.schemas", []string{})
	v.SetDefault("connection.snowflake.max_open_conns", 4)
	v.SetDefault("connection.snowflake.max_idle_conns", 2)
	v.SetDefault("connection.snowflake.conn_max_lifetime", 10*time.Minute)
	v.SetDefault("connection.snowflake.conn_max_idle_time", 5*time.Minute)
}

// IsPostgres reports whether the params target a PostgreSQL server
func (p ConnectionParams) IsPostgres() bool {
	return p.Driver == DriverPgx || p.Driver == DriverPostgres
}

// Database returns the name of the target database
func (p ConnectionParams) Database() string {
	if p.Driver == DriverSnowflake {
		return p.Snowflake.Database
	}
	return p.Postgres.Database
}

// WithDatabase returns a copy of the params pointing at another database on the same server
func (p ConnectionParams) WithDatabase(name string) ConnectionParams {
	c := p.Clone()
	if c.Driver == DriverSnowflake {
		c.Snowflake.Database = name
	} else {
		c.Postgres.Database = name
	}
	return c
}

// Clone returns a deep copy that shares no mutable state with p
func (p ConnectionParams) Clone() ConnectionParams {
	c := p
	if p.Snowflake.Schemas != nil {
		c.Snowflake.Schemas = append([]string(nil), p.Snowflake.Schemas...)
	}
	return c
}

// Target returns a credential-free description for logs
func (p ConnectionParams) Target() string {
	if p.Driver == DriverSnowflake {
		return fmt.Sprintf("snowflake://%s/%s", p.Snowflake.Account, p.Snowflake.Database)
	}
	return fmt.Sprintf("%s://%s:%d/%s", p.Driver, p.Postgres.Host, p.Postgres.Port, p.Postgres.Database)
}

// Validate ensures the params can be used to open a connection
func (p ConnectionParams) Validate() error {
	switch p.Driver {
	case DriverPgx, DriverPostgres:
		if p.Postgres.Host == "" {
			return errors.New("postgres host is required")
		}
		if p.Postgres.User == "" {
			return errors.New("postgres user is required")
		}
		if p.Postgres.Port <= 0 {
			return errors.New("postgres port must be positive")
		}
	case DriverSnowflake:
		if p.Snowflake.Account == "" {
			return errors.New("snowflake account is required")
		}
		if p.Snowflake.User == "" {
			return errors.New("snowflake user is required")
		}
		if p.Snowflake.Warehouse == "" {
			return errors.New("snowflake warehouse is required")
		}
		if _, err := p.Snowflake.AuthType(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported driver %q (expected %s, %s or %s)",
			p.Driver, DriverPgx, DriverPostgres, DriverSnowflake)
	}
	return nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		quoteDSNValue(c.Password),
		c.SSLMode,
	)
	if c.Database != "" {
		dsn += " dbname=" + quoteDSNValue(c.Database)
	}
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return dsn
}

// quoteDSNValue quotes a keyword/value DSN value when it contains spaces or quotes
func quoteDSNValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// AuthType converts the configured authenticator name to the driver's type
func (c SnowflakeConfig) AuthType() (gosnowflake.AuthType, error) {
	switch strings.ToLower(c.Authenticator) {
	case "", "snowflake":
		return gosnowflake.AuthTypeSnowflake, nil
	case "oauth":
		return gosnowflake.AuthTypeOAuth, nil
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser, nil
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA, nil
	case "jwt":
		return gosnowflake.AuthTypeJwt, nil
	case "token":
		return gosnowflake.AuthTypeTokenAccessor, nil
	case "okta":
		return gosnowflake.AuthTypeOkta, nil
	default:
		return 0, fmt.Errorf("unsupported snowflake authenticator %q", c.Authenticator)
	}
}

// ConnectionString returns a Snowflake DSN built by the driver
func (c SnowflakeConfig) ConnectionString() (string, error) {
	auth, err := c.AuthType()
	if err != nil {
		return "", err
	}

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Database:      c.Database,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: auth,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}
	return dsn, nil
}
