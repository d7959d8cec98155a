// Package main is the goose-driven schema migration CLI (spec.md §10.1): one
// invocation per service's own schema (release, account, authorization).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gommgo/release-machine/internal/config"
	"github.com/gommgo/release-machine/internal/database"
	"github.com/gommgo/release-machine/internal/database/postgres"
	"github.com/gommgo/release-machine/pkg/logger"
)

var (
	schema     string
	configFile string
	envPrefix  string
	downSteps  int
)

var schemaDirs = map[string]string{
	"release":       "migrations/release",
	"account":       "migrations/account",
	"authorization": "migrations/authorization",
}

func main() {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Run goose migrations for one of the control plane's schemas",
	}
	root.PersistentFlags().StringVar(&schema, "schema", "release", "schema to migrate: release, account, or authorization")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to an optional YAML config overlay")
	root.PersistentFlags().StringVar(&envPrefix, "env-prefix", "RM", "environment variable prefix for database settings")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *postgres.PostgresPool, dir string, log *slog.Logger) error {
				return database.RunMigrationsDir(ctx, pool, dir, log)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the given number of migrations (default 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *postgres.PostgresPool, dir string, log *slog.Logger) error {
				return database.RunMigrationsDownDir(ctx, pool, dir, downSteps, log)
			})
		},
	}
	downCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *postgres.PostgresPool, dir string, log *slog.Logger) error {
				return database.GetMigrationStatusDir(ctx, pool, dir, log)
			})
		},
	}

	root.AddCommand(upCmd, downCmd, statusCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withPool loads configuration for --schema (the release engine's Config
// shape for "release", the shared identity-service shape for "account" and
// "authorization", since cmd/migrate is the one binary used for all three
// schemas), opens a pool, and runs fn against it.
func withPool(fn func(ctx context.Context, pool *postgres.PostgresPool, dir string, log *slog.Logger) error) error {
	dir, ok := schemaDirs[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q: must be one of release, account, authorization", schema)
	}

	var dbCfg config.DatabaseConfig
	var logCfg config.LogConfig

	if schema == "release" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbCfg, logCfg = cfg.Database, cfg.Log
	} else {
		cfg, err := config.LoadIdentitySvc(envPrefix, configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbCfg, logCfg = cfg.Database, cfg.Log
	}

	log := logger.NewLogger(logger.Config{Level: logCfg.Level, Format: logCfg.Format, Output: logCfg.Output})

	pgCfg := postgres.DefaultConfig()
	pgCfg.Label = "migrate"
	pgCfg.Host = dbCfg.Host
	pgCfg.Port = dbCfg.Port
	pgCfg.Database = dbCfg.Name
	pgCfg.User = dbCfg.User
	pgCfg.Password = dbCfg.Password
	pgCfg.SSLMode = dbCfg.SSLMode
	if dbCfg.MaxConns > 0 {
		pgCfg.MaxConns = dbCfg.MaxConns
	}
	if dbCfg.MinConns > 0 {
		pgCfg.MinConns = dbCfg.MinConns
	}

	ctx := context.Background()
	pool := postgres.NewPostgresPool(pgCfg, log)
	if err := pool.Connect(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, dir, log)
}
