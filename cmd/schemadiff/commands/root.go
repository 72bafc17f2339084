// Package commands implements the schemadiff command line.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "schemadiff",
	Short: "Reconcile a live database with a structural model",
	Long: `schemadiff compares a model file against the structure of a live
PostgreSQL or Snowflake database and produces the script that brings the
database in line with the model. The script can be saved to a file or, after
confirmation, applied to the database.

Settings come from an optional .env file, an optional --config file and
SCHEMADIFF_* environment variables. Flags override all of them.

Examples:
  schemadiff diff --model shop.yaml --database shop --output reconcile.sql
  schemadiff diff --model shop.yaml --database shop --schema sales
  schemadiff databases --host db.internal --user postgres`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (YAML or TOML)")
	flags.String("driver", "", "Driver: pgx, postgres or snowflake")
	flags.String("host", "", "PostgreSQL host")
	flags.Int("port", 0, "PostgreSQL port")
	flags.String("user", "", "User name")
	flags.String("database", "", "Database to reconcile")
	flags.String("sslmode", "", "PostgreSQL sslmode")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console or json)")

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(databasesCmd)
}

// persistentBindings maps root flags onto config keys
var persistentBindings = map[string]string{
	"driver":     "connection.driver",
	"host":       "connection.postgres.host",
	"port":       "connection.postgres.port",
	"user":       "connection.postgres.user",
	"database":   "connection.postgres.database",
	"sslmode":    "connection.postgres.sslmode",
	"log-level":  "log_level",
	"log-format": "log_format",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig layers flags over the config file, the environment and .env
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	v := config.NewViper()
	if err := bindFlags(cmd, v, persistentBindings); err != nil {
		return nil, err
	}
	if err := bindFlags(cmd, v, bindings); err != nil {
		return nil, err
	}
	if err := config.ReadConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	// Snowflake takes the same user and database flags
	if cfg.Connection.Driver == config.DriverSnowflake {
		if cmd.Flags().Changed("user") {
			cfg.Connection.Snowflake.User = cfg.Connection.Postgres.User
		}
		if cmd.Flags().Changed("database") {
			cfg.Connection.Snowflake.Database = cfg.Connection.Postgres.Database
		}
	}
	return cfg, nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, bindings map[string]string) error {
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.LogFormat)
}
