// Package main is the entry point for the Authorization identity
// collaborator (spec.md §6.5): POST /, POST /tg, GET /check, POST /refresh.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gommgo/release-machine/internal/authorization"
	"github.com/gommgo/release-machine/internal/config"
	"github.com/gommgo/release-machine/internal/database"
	"github.com/gommgo/release-machine/internal/database/postgres"
	"github.com/gommgo/release-machine/pkg/logger"
)

const serviceName = "authorizationsvc"

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config overlay")
	flag.Parse()

	cfg, err := config.LoadIdentitySvc("RM_AUTHZ", *configFile)
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	log.Info("starting "+serviceName, "port", cfg.Server.Port)

	dbConfig := postgres.DefaultConfig()
	dbConfig.Label = "authorization"
	dbConfig.Host = cfg.Database.Host
	dbConfig.Port = cfg.Database.Port
	dbConfig.Database = cfg.Database.Name
	dbConfig.User = cfg.Database.User
	dbConfig.Password = cfg.Database.Password
	dbConfig.SSLMode = cfg.Database.SSLMode
	if cfg.Database.MaxConns > 0 {
		dbConfig.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		dbConfig.MinConns = cfg.Database.MinConns
	}

	pool := postgres.NewPostgresPool(dbConfig, log)
	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrationsDir(ctx, pool, "migrations/authorization", log); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repo := authorization.NewRepo(pool.Pool())
	issuer := authorization.NewTokenIssuer(cfg.TokenSecret)
	svc := authorization.NewService(repo, issuer, log)
	handler := authorization.NewHandler(svc)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("exited")
}
