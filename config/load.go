package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/lsmux/lsmux/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the lsmux configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &cfg, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("runtime.root", defaultRuntimeRoot())
	v.SetDefault("runtime.skip_install", false)

	v.SetDefault("request.default_timeout_seconds", DefaultRequestTimeoutSeconds)
	v.SetDefault("request.shutdown_timeout_seconds", DefaultShutdownTimeoutSeconds)
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("LSMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Merge configs in precedence order: user -> project -> env vars
	homeDir, _ := os.UserHomeDir()
	configPaths := []string{
		filepath.Join(homeDir, ".lsmux", "config.toml"),
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err == nil {
			tmp := viper.New()
			tmp.SetConfigFile(configPath)
			tmp.SetConfigType("toml")
			if err := tmp.ReadInConfig(); err == nil {
				v.MergeConfigMap(tmp.AllSettings())
			}
		}
	}

	viperInstance = v
	return v
}

// findProjectConfig searches for lsmux.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, "lsmux.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// defaultRuntimeRoot returns ~/.lsmux/runtimes, falling back to a relative
// directory when the home directory cannot be resolved
func defaultRuntimeRoot() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".lsmux/runtimes"
	}
	return filepath.Join(homeDir, ".lsmux", "runtimes")
}
