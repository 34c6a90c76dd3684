// Package config loads and validates engine configuration from a file
// and the environment.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ChainConfig describes one supported EVM chain and its settlement asset.
type ChainConfig struct {
	Network       string `mapstructure:"network" validate:"required"`
	ChainID       int64  `mapstructure:"chain_id" validate:"required,gt=0"`
	AssetAddress  string `mapstructure:"asset_address" validate:"required,eth_addr"`
	AssetName     string `mapstructure:"asset_name" validate:"required"`
	AssetVersion  string `mapstructure:"asset_version" validate:"required"`
	AssetDecimals int32  `mapstructure:"asset_decimals" validate:"gte=0,lte=18"`
	RPCURL        string `mapstructure:"rpc_url" validate:"required,url"`
}

// Config is the engine configuration. It is read once at startup and
// treated as immutable afterwards.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// VaultKey is the 64 hex character AES-256 key protecting stored
	// signing keys.
	VaultKey string `mapstructure:"vault_key" validate:"required,len=64,hexadecimal"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	HTTP struct {
		TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
	} `mapstructure:"http"`

	DefaultNetwork string        `mapstructure:"default_network"`
	Chains         []ChainConfig `mapstructure:"chains" validate:"omitempty,dive"`
}

// GetConfigure reads the config named by PAYFLOW_CONFIG_NAME, defaulting
// to "config".
func GetConfigure() (*Config, error) {
	configName := os.Getenv("PAYFLOW_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadConfig(configName)
}

// ReadConfig loads configName from the working directory, merges the
// environment, and validates the result.
func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("http.timeout_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to read config file, %w", err)
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DefaultNetwork != "" {
		found := false
		for _, chain := range c.Chains {
			if chain.Network == c.DefaultNetwork {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("invalid config: default_network %q not present in chains", c.DefaultNetwork)
		}
	}
	return nil
}
