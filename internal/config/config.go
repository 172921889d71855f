// Package config provides configuration management for netplay using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultBufferTime     = 100 * time.Millisecond
	defaultVideoQueueSize = 30
	defaultAudioQueueSize = 64
	defaultSeekScanLimit  = 512
	defaultVolume         = 1.0
	maxQueueSize          = 4096
)

// EnvPrefix prefixes every environment override, e.g. NETPLAY_PLAYER_BUFFER_TIME.
const EnvPrefix = "NETPLAY"

// Config holds all configuration for the application.
type Config struct {
	Player  PlayerConfig  `mapstructure:"player"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Display DisplayConfig `mapstructure:"display"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PlayerConfig holds decode engine configuration.
type PlayerConfig struct {
	BufferTime     time.Duration `mapstructure:"buffer_time"`
	VideoQueueSize int           `mapstructure:"video_queue_size"`
	AudioQueueSize int           `mapstructure:"audio_queue_size"`
	RenderMode     string        `mapstructure:"render_mode"` // rgb, yuv
	SeekScanLimit  int           `mapstructure:"seek_scan_limit"`
}

// AudioConfig holds audio output configuration.
type AudioConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Volume  float64 `mapstructure:"volume"` // linear, 0..1
	Muted   bool    `mapstructure:"muted"`
}

// DisplayConfig holds terminal output configuration.
type DisplayConfig struct {
	Width  int  `mapstructure:"width"`  // 0 = fit the terminal
	Height int  `mapstructure:"height"` // 0 = fit the terminal
	Shm    bool `mapstructure:"shm"`    // use shared memory when the terminal supports it
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	File   string `mapstructure:"file"`   // empty = stderr, or nowhere while the UI owns the terminal
}

// MetricsConfig holds the prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty = disabled
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Example: NETPLAY_PLAYER_BUFFER_TIME=2s.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	return LoadWith(v, configPath)
}

// LoadWith is Load on a caller-provided viper instance, so CLI flags bound
// to v take precedence over everything else.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/netplay")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("player.buffer_time", defaultBufferTime)
	v.SetDefault("player.video_queue_size", defaultVideoQueueSize)
	v.SetDefault("player.audio_queue_size", defaultAudioQueueSize)
	v.SetDefault("player.render_mode", "rgb")
	v.SetDefault("player.seek_scan_limit", defaultSeekScanLimit)

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.volume", defaultVolume)
	v.SetDefault("audio.muted", false)

	v.SetDefault("display.width", 0)
	v.SetDefault("display.height", 0)
	v.SetDefault("display.shm", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.addr", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Player.BufferTime < 0 {
		return fmt.Errorf("player.buffer_time must not be negative")
	}
	if c.Player.VideoQueueSize < 1 || c.Player.VideoQueueSize > maxQueueSize {
		return fmt.Errorf("player.video_queue_size must be between 1 and %d", maxQueueSize)
	}
	if c.Player.AudioQueueSize < 1 || c.Player.AudioQueueSize > maxQueueSize {
		return fmt.Errorf("player.audio_queue_size must be between 1 and %d", maxQueueSize)
	}
	validModes := map[string]bool{"rgb": true, "yuv": true}
	if !validModes[c.Player.RenderMode] {
		return fmt.Errorf("player.render_mode must be one of: rgb, yuv")
	}
	if c.Player.SeekScanLimit < 1 {
		return fmt.Errorf("player.seek_scan_limit must be at least 1")
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("audio.volume must be between 0 and 1")
	}

	if c.Display.Width < 0 || c.Display.Height < 0 {
		return fmt.Errorf("display.width and display.height must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (c *MetricsConfig) MetricsEnabled() bool {
	return c.Addr != ""
}
