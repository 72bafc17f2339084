// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/config"
)

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	sqlConnector
	cfg config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector.
// driver selects between the pgx and lib/pq database/sql drivers.
func NewPostgresConnector(ctx context.Context, driver string, cfg config.PostgresConfig, logger *zap.Logger) (*PostgresConnector, error) {
	logger = logger.Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("driver", driver),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open(driver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := PingWithTimeout(ctx, db, timeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	c := newPostgresConnector(db, driver, cfg, logger)
	LogConnectionStats(logger, cfg.Database, db)
	return c, nil
}

func newPostgresConnector(db *sqlx.DB, driver string, cfg config.PostgresConfig, logger *zap.Logger) *PostgresConnector {
	return &PostgresConnector{
		sqlConnector: sqlConnector{
			db:     db,
			driver: driver,
			name:   cfg.Database,
			logger: logger,
		},
		cfg: cfg,
	}
}

// Validate verifies the PostgreSQL connection can read the catalog
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var database, user string
	err := c.db.QueryRowContext(ctx, "SELECT current_database(), current_user").Scan(&database, &user)
	if err != nil {
		return fmt.Errorf("failed to verify PostgreSQL access: %w", err)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", database),
		zap.String("user", user),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// ServerVersion returns the server_version setting, e.g. "15.4 (Debian 15.4-1)"
func (c *PostgresConnector) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	return version, nil
}

// WrapDB adapts an already opened *sql.DB into a connector, e.g. one backed by sqlmock
func WrapDB(db *sql.DB, driver string, logger *zap.Logger) DatabaseConnector {
	xdb := sqlx.NewDb(db, driver)
	if driver == config.DriverSnowflake {
		return newSnowflakeConnector(xdb, config.SnowflakeConfig{}, logger.Named("snowflake-connector"))
	}
	return newPostgresConnector(xdb, driver, config.PostgresConfig{}, logger.Named("postgres-connector"))
}
