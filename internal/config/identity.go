package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IdentitySvcConfig is the process configuration shared by cmd/accountsvc
// and cmd/authorizationsvc: each is its own binary with its own Postgres
// database (spec.md §10.8), so neither needs the release-engine-specific
// sections of Config.
type IdentitySvcConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`

	// TokenSecret is the HMAC secret the authorization service signs with,
	// or (for accountsvc) the pepper prefixed to every password before
	// bcrypt hashing, per spec.md §6.5.
	TokenSecret string `mapstructure:"token_secret"`

	// AuthorizationBaseURL is where accountsvc reaches authorizationsvc to
	// mint token pairs on register/login.
	AuthorizationBaseURL string `mapstructure:"authorization_base_url"`
}

// LoadIdentitySvc builds configuration for an identity binary from
// environment variables (prefix given by envPrefix) with an optional YAML
// overlay.
func LoadIdentitySvc(envPrefix, configFile string) (*IdentitySvcConfig, error) {
	v := viper.New()
	setIdentityDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg IdentitySvcConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setIdentityDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}
