// Package main is the entry point for the Account identity collaborator
// (spec.md §6.5): registration, login, TOTP enrollment/verification,
// password lifecycle.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gommgo/release-machine/internal/account"
	"github.com/gommgo/release-machine/internal/config"
	"github.com/gommgo/release-machine/internal/database"
	"github.com/gommgo/release-machine/internal/database/postgres"
	"github.com/gommgo/release-machine/internal/httpclient"
	"github.com/gommgo/release-machine/internal/identity/authclient"
	"github.com/gommgo/release-machine/pkg/logger"
)

const serviceName = "accountsvc"

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config overlay")
	flag.Parse()

	cfg, err := config.LoadIdentitySvc("RM_ACCOUNT", *configFile)
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
	dbConfig.Label = "account"
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

	if err := database.RunMigrationsDir(ctx, pool, "migrations/account", log); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	resilient, err := httpclient.New(httpclient.DefaultConfig(), nil, log)
	if err != nil {
		log.Error("failed to build http client", "error", err)
		os.Exit(1)
	}
	authHTTP := authclient.New(cfg.AuthorizationBaseURL, resilient)
	auth := account.NewAuthClientAdapter(authHTTP)

	repo := account.NewRepo(pool.Pool())
	svc := account.NewService(repo, auth, cfg.TokenSecret, log)
	handler := account.NewHandler(svc)

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
