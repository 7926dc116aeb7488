package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, for
// example PLANEXEC_WORKERS or PLANEXEC_SESSION_BACKEND.
const EnvPrefix = "PLANEXEC"

// Session store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

type SessionConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

type InstallerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	UseSudo bool `mapstructure:"use_sudo"`
}

type ProgressConfig struct {
	SocketIOURL       string `mapstructure:"socketio_url"`
	SocketIONamespace string `mapstructure:"socketio_namespace"`
}

// Config holds every runtime setting.
type Config struct {
	LogLevel       string          `mapstructure:"log_level"`
	LogFormat      string          `mapstructure:"log_format"`
	Workers        int             `mapstructure:"workers"`
	StepTimeout    time.Duration   `mapstructure:"step_timeout"`
	MaxOutputBytes int             `mapstructure:"max_output_bytes"`
	StatusPort     int             `mapstructure:"status_port"`
	Session        SessionConfig   `mapstructure:"session"`
	Installer      InstallerConfig `mapstructure:"installer"`
	Progress       ProgressConfig  `mapstructure:"progress"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Workers:        10,
		StepTimeout:    10 * time.Minute,
		MaxOutputBytes: 1 << 20,
		Session: SessionConfig{
			Backend: BackendSQLite,
			Dir:     defaultDataDir(),
		},
		Installer: InstallerConfig{
			Enabled: true,
			UseSudo: true,
		},
		Progress: ProgressConfig{
			SocketIONamespace: "/",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "planexec")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".planexec", "sessions")
	}
	return filepath.Join(".planexec", "sessions")
}

// NewViper returns a viper instance with defaults, search paths and
// environment binding set up. Flags can be bound to it before Load.
func NewViper() *viper.Viper {
	def := Default()
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		v.AddConfigPath(filepath.Join(dir, "planexec"))
	}
	v.AddConfigPath("$HOME/.planexec")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("step_timeout", def.StepTimeout)
	v.SetDefault("max_output_bytes", def.MaxOutputBytes)
	v.SetDefault("status_port", def.StatusPort)

	v.SetDefault("session.backend", def.Session.Backend)
	v.SetDefault("session.dir", def.Session.Dir)

	v.SetDefault("installer.enabled", def.Installer.Enabled)
	v.SetDefault("installer.use_sudo", def.Installer.UseSudo)

	v.SetDefault("progress.socketio_url", def.Progress.SocketIOURL)
	v.SetDefault("progress.socketio_namespace", def.Progress.SocketIONamespace)
	return v
}

// Load reads the config file, explicit when configFile is set and searched
// for otherwise, and decodes the merged settings. A missing searched-for file
// is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.StepTimeout < 0 {
		return errors.New("step timeout cannot be negative")
	}
	if c.MaxOutputBytes <= 0 {
		return errors.New("max output bytes must be positive")
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return errors.New("status port must be between 0 and 65535")
	}
	switch c.Session.Backend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown session backend: %s", c.Session.Backend)
	}
	if c.Session.Dir == "" && c.Session.Backend != BackendMemory {
		return errors.New("session directory cannot be empty")
	}
	return nil
}
