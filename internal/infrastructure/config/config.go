package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full set of configuration the Commander binary reads at
// startup: the remote agent's credentials, the fleet's data directory, and
// every ambient sub-config (scheduler, retry, persistence, metrics,
// logging).
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	API        APIConfig        `mapstructure:"api"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Commander  CommanderConfig  `mapstructure:"commander"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AgentConfig holds the player identity and data-directory fields: token,
// account_token, callsign, faction, data_dir. The API base URL lives in
// APIConfig.BaseURL (api.base_url).
type AgentConfig struct {
	Token        string `mapstructure:"token" validate:"required"`
	AccountToken string `mapstructure:"account_token"`
	Callsign     string `mapstructure:"callsign" validate:"required"`
	Faction      string `mapstructure:"faction"`
	DataDir      string `mapstructure:"data_dir" validate:"required"`
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (SPACETRADERS_ prefixed, highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleetcmd")
	}

	v.SetEnvPrefix("SPACETRADERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads configuration or returns a default config on
// error.
func LoadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		defaultCfg := &Config{}
		SetDefaults(defaultCfg)
		return defaultCfg
	}
	return cfg
}

// MustLoadConfig loads configuration and panics on error (for use in
// main.go).
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
