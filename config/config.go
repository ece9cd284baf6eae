// Package config holds runtime settings for lsmux.
//
// Settings come from an optional TOML file, environment variables under the
// LSMUX_ prefix, and built-in defaults, in that order of precedence.
package config

// Config represents the core lsmux configuration
type Config struct {
	Runtime  RuntimeConfig            `mapstructure:"runtime"`
	Request  RequestConfig            `mapstructure:"request"`
	Backends map[string]BackendConfig `mapstructure:"backends"`
}

// RuntimeConfig configures where runtime dependencies are installed
type RuntimeConfig struct {
	// Root is the directory under which each backend gets its own runtime
	// directory for installed dependencies (created lazily, never deleted)
	Root string `mapstructure:"root"`

	// SkipInstall disables automatic dependency installation entirely.
	// Adapters check this before invoking the installer.
	SkipInstall bool `mapstructure:"skip_install"`
}

// RequestConfig configures supervisor request handling
type RequestConfig struct {
	// DefaultTimeoutSeconds is the supervisor-wide default request timeout
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`

	// ShutdownTimeoutSeconds bounds the graceful shutdown sequence before
	// escalating to a forced termination signal
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// BackendConfig holds per-backend overrides
type BackendConfig struct {
	// BinaryPath supplies an explicit server binary, bypassing the installer
	BinaryPath string `mapstructure:"binary_path"`

	// AssumePresent skips binary existence verification before launch
	AssumePresent bool `mapstructure:"assume_present"`

	// Disabled excludes the backend from Create even when registered
	Disabled bool `mapstructure:"disabled"`
}

// Backend returns the override block for a language, or a zero value when
// none is configured.
func (c *Config) Backend(language string) BackendConfig {
	if c == nil || c.Backends == nil {
		return BackendConfig{}
	}
	return c.Backends[language]
}

// Default timeout constants
const (
	DefaultRequestTimeoutSeconds  = 30
	DefaultShutdownTimeoutSeconds = 5
)
