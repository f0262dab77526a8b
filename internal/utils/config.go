package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	// Resolver configuration
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
}

// ResolverConfig holds the linkage-resolution settings
type ResolverConfig struct {
	// Sysroot is the reserved build prefix checked against every
	// resolved path.
	Sysroot string `yaml:"sysroot" mapstructure:"sysroot"`
	// DefaultDirs overrides the platform default library directories.
	DefaultDirs []string `yaml:"default_dirs" mapstructure:"default_dirs"`
	// LDPath is the injected loader search path, colon-joined. The
	// engine never reads LD_LIBRARY_PATH from the environment itself;
	// this value is handed to it explicitly.
	LDPath string `yaml:"ld_path" mapstructure:"ld_path"`
	// Arch selects fat Mach-O slices.
	Arch string `yaml:"arch" mapstructure:"arch"`
	// CrossCheck runs the stdlib-backed reader alongside the raw one
	// and logs divergences.
	CrossCheck bool `yaml:"cross_check" mapstructure:"cross_check"`
	// PreferSysroot flips the both-exist preference toward the sysroot
	// copy of a library.
	PreferSysroot bool `yaml:"prefer_sysroot" mapstructure:"prefer_sysroot"`
}

// LDPathEntries returns the loader path split into entries.
func (r ResolverConfig) LDPathEntries() []string {
	if r.LDPath == "" {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(r.LDPath, ":") {
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// ConfigManager handles configuration loading and management
type ConfigManager struct {
	config *Config
	viper  *viper.Viper
	logger *Logger
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: &Config{},
		viper:  viper.New(),
		logger: NewDefaultLogger(),
	}
}

// LoadConfig loads configuration from file and environment variables
func (c *ConfigManager) LoadConfig(configFile string) error {
	c.setDefaults()

	c.viper.SetConfigType("yaml")
	c.viper.SetEnvPrefix("PKGLINK")
	c.viper.AutomaticEnv()
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		c.viper.SetConfigFile(configFile)
		if err := c.viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			c.logger.WithComponent("config").Warnf("Config file not found: %s", configFile)
		} else {
			c.logger.WithComponent("config").Debugf("Loaded config from: %s", c.viper.ConfigFileUsed())
		}
	} else {
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")
		c.viper.AddConfigPath("$HOME/.pkglink")
		c.viper.AddConfigPath("/etc/pkglink")

		if err := c.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			c.logger.WithComponent("config").Debug("No config file found, using defaults and environment variables")
		} else {
			c.logger.WithComponent("config").Debugf("Loaded config from: %s", c.viper.ConfigFileUsed())
		}
	}

	if err := c.viper.Unmarshal(c.config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// setDefaults sets default configuration values
func (c *ConfigManager) setDefaults() {
	c.viper.SetDefault("log_level", "info")
	c.viper.SetDefault("log_format", "text")

	c.viper.SetDefault("resolver.sysroot", "")
	c.viper.SetDefault("resolver.ld_path", "")
	c.viper.SetDefault("resolver.arch", "")
	c.viper.SetDefault("resolver.cross_check", false)
	c.viper.SetDefault("resolver.prefer_sysroot", false)
}

// validateConfig validates the loaded configuration
func (c *ConfigManager) validateConfig() error {
	if c.config.LogLevel != "" {
		validLogLevels := []string{"debug", "info", "warn", "error"}
		if !contains(validLogLevels, strings.ToLower(c.config.LogLevel)) {
			return fmt.Errorf("invalid log level: %s (valid: %v)", c.config.LogLevel, validLogLevels)
		}
	}

	if c.config.LogFormat != "" {
		validLogFormats := []string{"text", "json"}
		if !contains(validLogFormats, strings.ToLower(c.config.LogFormat)) {
			return fmt.Errorf("invalid log format: %s (valid: %v)", c.config.LogFormat, validLogFormats)
		}
	}

	if c.config.Resolver.Sysroot != "" {
		expanded, err := c.expandPath(c.config.Resolver.Sysroot)
		if err != nil {
			return fmt.Errorf("failed to expand sysroot: %w", err)
		}
		c.config.Resolver.Sysroot = expanded
	}

	for i, dir := range c.config.Resolver.DefaultDirs {
		expanded, err := c.expandPath(dir)
		if err != nil {
			return fmt.Errorf("failed to expand default dir %s: %w", dir, err)
		}
		c.config.Resolver.DefaultDirs[i] = expanded
	}

	return nil
}

// expandPath expands a path with environment variables and home directory
func (c *ConfigManager) expandPath(path string) (string, error) {
	expanded := os.ExpandEnv(path)

	if strings.HasPrefix(expanded, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		expanded = filepath.Join(homeDir, expanded[2:])
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetConfig returns the loaded configuration
func (c *ConfigManager) GetConfig() *Config {
	return c.config
}

// SetLogger sets the logger for the config manager
func (c *ConfigManager) SetLogger(logger *Logger) {
	c.logger = logger
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// LoadDefaultConfig loads a default configuration
func LoadDefaultConfig() (*Config, error) {
	manager := NewConfigManager()
	if err := manager.LoadConfig(""); err != nil {
		return nil, err
	}
	return manager.GetConfig(), nil
}

// LoadConfigFromFile loads configuration from a specific file
func LoadConfigFromFile(filename string) (*Config, error) {
	manager := NewConfigManager()
	if err := manager.LoadConfig(filename); err != nil {
		return nil, err
	}
	return manager.GetConfig(), nil
}
