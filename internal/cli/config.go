package cli

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultConfigDir holds the CLI's config file and local database.
const defaultConfigDir = "~/.pulselog"

// Config is the pulse CLI configuration. Values come from
// ~/.pulselog/config.yaml, PULSE_* environment variables, and flags, in
// ascending precedence.
type Config struct {
	DBPath   string `mapstructure:"db_path"`
	Server   string `mapstructure:"server"`
	Tenant   string `mapstructure:"tenant"`
	User     string `mapstructure:"user"`
	Timezone string `mapstructure:"timezone"`
}

// Location resolves the configured timezone, defaulting to the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// loadConfig reads configuration from the given path (or the default
// location) and returns a Config with defaults applied.
func loadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", filepath.Join(defaultConfigDir, "pulse.db"))
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("tenant", "")
	v.SetDefault("user", "")
	v.SetDefault("timezone", "")

	v.SetEnvPrefix("PULSE")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		v.AddConfigPath(expandPath(defaultConfigDir))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// A missing config file is not an error; everything has a default.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.DBPath = expandPath(cfg.DBPath)
	return &cfg, nil
}
