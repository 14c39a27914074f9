package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"yomu/internal/domain"
	"yomu/internal/log"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Reader  ReaderConfig  `mapstructure:"reader"`
	Sources SourcesConfig `mapstructure:"sources"`
	Logging log.Config    `mapstructure:"logging"`
}

// ServerConfig holds remote service configuration.
type ServerConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ReaderConfig holds default reader behavior. Per-title preference blobs
// override these once a title has been opened.
type ReaderConfig struct {
	Direction        string  `mapstructure:"direction"`         // "ltr" or "rtl"
	SpreadMode       bool    `mapstructure:"spread_mode"`       // two-page display
	WideAspect       float64 `mapstructure:"wide_aspect"`       // aspect ratio beyond which a page is a spread
	PrefetchDistance int     `mapstructure:"prefetch_distance"` // chapters to prefetch ahead, 0 disables
	SaveDelayMS      int     `mapstructure:"save_delay_ms"`     // progress save debounce
}

// SourcesConfig lists the sources consulted when merging chapter views.
type SourcesConfig struct {
	Merge []string `mapstructure:"merge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			Direction:        string(domain.DirectionLTR),
			SpreadMode:       false,
			WideAspect:       1.2,
			PrefetchDistance: 2,
			SaveDelayMS:      1500,
		},
		Logging: log.Config{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS.
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "yomu", "yomu.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "yomu", "yomu.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS.
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "yomu")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "yomu")
	}
}

// DataPath returns the directory holding the durable store.
func DataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "yomu")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "yomu")
	}
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("YOMU")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to file.
func Save(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("server.url", cfg.Server.URL)
	viper.Set("server.token", cfg.Server.Token)

	viper.Set("reader.direction", cfg.Reader.Direction)
	viper.Set("reader.spread_mode", cfg.Reader.SpreadMode)
	viper.Set("reader.wide_aspect", cfg.Reader.WideAspect)
	viper.Set("reader.prefetch_distance", cfg.Reader.PrefetchDistance)
	viper.Set("reader.save_delay_ms", cfg.Reader.SaveDelayMS)

	viper.Set("sources.merge", cfg.Sources.Merge)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveToken updates just the token in the configuration.
func SaveToken(token string) error {
	viper.Set("server.token", token)

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL and token are set.
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}
