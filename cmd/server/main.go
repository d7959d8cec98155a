// Package main is the entry point for the release-orchestration control
// plane: the Release Engine, Event Intake (HTTP), and Operator Console
// (Telegram webhook) all run in this one process (spec.md §2).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/gommgo/release-machine/internal/api/middleware"
	"github.com/gommgo/release-machine/internal/bot"
	"github.com/gommgo/release-machine/internal/ci"
	"github.com/gommgo/release-machine/internal/config"
	"github.com/gommgo/release-machine/internal/database"
	"github.com/gommgo/release-machine/internal/database/postgres"
	"github.com/gommgo/release-machine/internal/httpclient"
	"github.com/gommgo/release-machine/internal/intake"
	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/internal/rollback"
	"github.com/gommgo/release-machine/pkg/logger"
)

const serviceName = "release-machine"

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config overlay")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log.Info("starting "+serviceName, "port", cfg.Server.Port)

	ctx := context.Background()

	dbConfig := postgres.DefaultConfig()
	dbConfig.Label = "release"
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
	if err := pool.Connect(ctx); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrationsDir(ctx, pool, "migrations/release", log); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	resilient, err := httpclient.New(httpclient.DefaultConfig(), nil, log)
	if err != nil {
		log.Error("failed to build http client", "error", err)
		os.Exit(1)
	}

	ciClient := ci.New(ci.Config{
		BaseURL:    cfg.CI.BaseURL,
		Owner:      cfg.CI.Owner,
		Token:      cfg.CI.Token,
	}, resilient, log)

	targets := make(map[string]rollback.ServiceTarget, len(cfg.Rollback.ServicePorts))
	for svc, port := range cfg.Rollback.ServicePorts {
		targets[svc] = rollback.ServiceTarget{Port: port, Prefix: cfg.Rollback.ServicePrefixes[svc]}
	}
	rollbackLock := rollback.NewLock(redisClient, cfg.Rollback.ConnectTimeout)
	rollbackExecutor := rollback.New(rollback.Config{
		ProductionHost:     cfg.Rollback.ProductionHost,
		ProductionUser:     cfg.Rollback.ProductionUser,
		ProductionPassword: cfg.Rollback.ProductionPassword,
		ConnectTimeout:      cfg.Rollback.ConnectTimeout,
		CallbackBaseURL:    cfg.Rollback.CallbackBaseURL,
		Targets:            targets,
	}, rollbackLock, log)

	store := release.NewPostgresStore(pool.Pool(), log, release.NewStoreMetrics())
	policy := release.NewApprovalPolicy(cfg.Approval.RequiredApprovers, cfg.Approval.Admins)
	engine := release.NewEngine(store, policy, ciClient, rollbackExecutor, log)

	createSchema := func() error { return database.RunMigrationsDir(ctx, pool, "migrations/release", log) }
	dropSchema := func() error { return database.RunMigrationsDownDir(ctx, pool, "migrations/release", 1, log) }
	intakeHandler := intake.New(engine, cfg.AllowSchemaBootstrap, createSchema, dropSchema, log)

	authCfg := middleware.AuthConfig{
		EnableAPIKey: cfg.IntakeAuth.Enabled,
		SharedSecret: cfg.IntakeAuth.SharedSecret,
	}
	if authCfg.EnableAPIKey {
		authCfg.APIKeys = make(map[string]*middleware.User, len(cfg.IntakeAuth.APIKeys))
		for key, identity := range cfg.IntakeAuth.APIKeys {
			authCfg.APIKeys[key] = &middleware.User{ID: identity, Username: identity, Role: middleware.RoleAdmin, APIKey: key}
		}
	}
	intakeRouter := intake.NewRouter("/api/v1", intakeHandler, authCfg, log)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", intakeRouter)

	if cfg.Bot.Token != "" {
		tgBot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			log.Error("failed to start telegram bot client", "error", err)
			os.Exit(1)
		}
		var dialogs interface {
			Get(chatID int64) *bot.DialogState
			Set(chatID int64, st *bot.DialogState)
		}
		if cfg.Bot.UseRedisDialogs {
			dialogs = bot.NewRedisDialogStore(redisClient)
		} else {
			lruDialogs, err := bot.NewDialogStore(cfg.Bot.DialogSize)
			if err != nil {
				log.Error("failed to build dialog store", "error", err)
				os.Exit(1)
			}
			dialogs = lruDialogs
		}
		controller := bot.NewController(tgBot, engine, policy, dialogs, log)
		mux.HandleFunc("/telegram/webhook", controller.Webhook())
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
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
