// Package config provides configuration management for mouthsync
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Engine Engine `mapstructure:"engine"`
	Viseme Viseme `mapstructure:"viseme"`
	Audio  Audio  `mapstructure:"audio"`
	Server Server `mapstructure:"server"`
}

// Engine configures the analysis engine
type Engine struct {
	WindowSize int     `mapstructure:"window_size"` // analysis window in samples
	Gain       float64 `mapstructure:"gain"`        // loudness gain factor
	FrameRate  int     `mapstructure:"frame_rate"`  // sampling ticks per second
}

// Viseme configures the viseme selector
type Viseme struct {
	Smoothing     float64       `mapstructure:"smoothing"`      // amplitude lerp factor per tick
	TalkThreshold float64       `mapstructure:"talk_threshold"` // smoothed amplitude above which the avatar is talking
	QuietInterval time.Duration `mapstructure:"quiet_interval"` // cadence interval at amplitude 0
	LoudInterval  time.Duration `mapstructure:"loud_interval"`  // cadence interval at amplitude 1
	MeshPath      string        `mapstructure:"mesh_path"`      // optional glTF mesh to derive the palette from
}

// Audio configures playback
type Audio struct {
	SampleRate int `mapstructure:"sample_rate"`
	Channels   int `mapstructure:"channels"`
}

// Server configures the frame stream server
type Server struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: Engine{
			WindowSize: 2048,
			Gain:       8.0,
			FrameRate:  60,
		},
		Viseme: Viseme{
			Smoothing:     0.35,
			TalkThreshold: 0.02,
			QuietInterval: 240 * time.Millisecond,
			LoudInterval:  60 * time.Millisecond,
		},
		Audio: Audio{
			SampleRate: 44100,
			Channels:   1,
		},
		Server: Server{
			Addr: "127.0.0.1:8970",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("MOUTHSYNC")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Watch re-reads the config file on change and invokes onChange with the
// freshly unmarshalled configuration. Used to re-tune engine and selector
// parameters without a restart.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("engine", cfg.Engine)
	viper.Set("viseme", cfg.Viseme)
	viper.Set("audio", cfg.Audio)
	viper.Set("server", cfg.Server)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".mouthsync"), nil
}
