// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		logger: logger,
	}
}

// Open connects to the database described by params and validates the connection
func (f *ConnectorFactory) Open(ctx context.Context, params config.ConnectionParams) (DatabaseConnector, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection parameters: %w", err)
	}

	f.logger.Info("Creating connector",
		zap.String("driver", params.Driver),
		zap.String("target", params.Target()))

	var (
		conn DatabaseConnector
		err  error
	)
	switch params.Driver {
	case config.DriverSnowflake:
		conn, err = NewSnowflakeConnector(ctx, params.Snowflake, f.logger)
	default:
		conn, err = NewPostgresConnector(ctx, params.Driver, params.Postgres, f.logger)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Validate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
