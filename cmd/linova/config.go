package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// clientConfig is read from linova.yaml, LINOVA_* variables and flags, in
// increasing order of precedence.
type clientConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	CachePath  string        `mapstructure:"cache_path"`
	LogMode    string        `mapstructure:"log_mode"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RedirectTo string        `mapstructure:"redirect_to"`
}

var flagKeys = map[string]string{
	"base-url": "base_url",
	"cache":    "cache_path",
	"log-mode": "log_mode",
	"timeout":  "timeout",
}

func loadConfig(cmd *cobra.Command, configFile string) (clientConfig, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("linova")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "linova"))
		}
	}
	v.SetEnvPrefix("LINOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return clientConfig{}, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return clientConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg clientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return clientConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return clientConfig{}, errors.New("base_url is required (flag --base-url or LINOVA_BASE_URL)")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("cache_path", defaultCachePath())
	v.SetDefault("log_mode", "production")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("redirect_to", "linova://reset-password")
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "linova", "cache.db")
}
