// Package config loads process-wide configuration for the release-machine
// binaries from environment variables and an optional YAML file, the way the
// teacher's internal/config package layers env vars over defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the Event Intake / Operator Console HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds Postgres connection settings (mirrors
// internal/database/postgres.PostgresConfig but kept separate so config
// loading stays ignorant of the pool package).
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig holds the cache/lock/dialog-store Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig mirrors pkg/logger.Config.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ApprovalConfig is the process-wide approval policy (spec.md §3 "Approval
// policy (configured)"): same required_approvers/admins set for every
// service, initialized once at boot.
type ApprovalConfig struct {
	RequiredApprovers []string `mapstructure:"required_approvers"`
	Admins            []string `mapstructure:"admins"`
}

// CIConfig configures the outbound CI Trigger Client.
type CIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Owner   string        `mapstructure:"owner"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RollbackConfig configures the Rollback Executor's remote session.
type RollbackConfig struct {
	ProductionHost     string            `mapstructure:"production_host"`
	ProductionUser     string            `mapstructure:"production_user"`
	ProductionPassword string            `mapstructure:"production_password"`
	ConnectTimeout     time.Duration     `mapstructure:"connect_timeout"`
	CallbackBaseURL    string            `mapstructure:"callback_base_url"`
	ServicePorts       map[string]int    `mapstructure:"service_ports"`
	ServicePrefixes    map[string]string `mapstructure:"service_prefixes"`
}

// BotConfig configures the Telegram-based Operator Console.
type BotConfig struct {
	Token string `mapstructure:"token"`
	// DialogSize bounds the in-process LRU when UseRedisDialogs is false.
	DialogSize int `mapstructure:"dialog_size"`
	// UseRedisDialogs backs conversation state with the shared Redis
	// instance instead of an in-process LRU, so any console replica behind
	// the Telegram webhook can serve the next update for a chat.
	UseRedisDialogs bool `mapstructure:"use_redis_dialogs"`
}

// IdentityConfig points at the Account/Authorization wire-contract services
// (spec.md §6.5); the control plane never implements their business logic,
// only their HTTP envelopes.
type IdentityConfig struct {
	AuthorizationBaseURL string `mapstructure:"authorization_base_url"`
	AccountBaseURL       string `mapstructure:"account_base_url"`
}

// IntakeAuthConfig holds the shared-secret header CI authenticates the
// Event Intake endpoints with (spec.md §4.5: "in deployment it is a shared
// secret header"). APIKeys maps the header value to the identity of its
// holder, so /table/create and /table/drop can additionally require the
// admin role.
type IntakeAuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SharedSecret is the single value CI presents in the
	// X-Release-Secret header. Distinct from APIKeys, which provisions
	// named operator identities for the admin-gated schema endpoints.
	SharedSecret string            `mapstructure:"shared_secret"`
	APIKeys      map[string]string `mapstructure:"api_keys"`
}

// Config is the top-level process configuration for cmd/server.
type Config struct {
	Server               ServerConfig     `mapstructure:"server"`
	Database             DatabaseConfig   `mapstructure:"database"`
	Redis                RedisConfig      `mapstructure:"redis"`
	Log                  LogConfig        `mapstructure:"log"`
	Approval             ApprovalConfig   `mapstructure:"approval"`
	CI                   CIConfig         `mapstructure:"ci"`
	Rollback             RollbackConfig   `mapstructure:"rollback"`
	Bot                  BotConfig        `mapstructure:"bot"`
	Identity             IdentityConfig   `mapstructure:"identity"`
	IntakeAuth           IntakeAuthConfig `mapstructure:"intake_auth"`
	AllowSchemaBootstrap bool             `mapstructure:"allow_schema_bootstrap"`
}

// Load builds configuration from environment variables (prefix RM_) with an
// optional YAML file overlay, following the teacher's viper-over-defaults
// pattern in internal/config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "releasemachine")
	v.SetDefault("database.user", "releasemachine")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("ci.timeout", 30*time.Second)

	v.SetDefault("rollback.production_user", "root")
	v.SetDefault("rollback.connect_timeout", 30*time.Second)

	v.SetDefault("bot.dialog_size", 256)
	v.SetDefault("bot.use_redis_dialogs", false)

	v.SetDefault("intake_auth.enabled", false)
	v.SetDefault("intake_auth.shared_secret", "")

	v.SetDefault("allow_schema_bootstrap", false)
}
