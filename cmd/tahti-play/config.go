package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vsariola/tahti"
)

// Config holds the player settings that come from the config file or
// environment; flags override them per run.
type Config struct {
	Audio AudioConfig
	MIDI  MIDIConfig
}

// AudioConfig holds output device settings.
type AudioConfig struct {
	SampleRate  int           `mapstructure:"sample_rate"`
	Buffer      time.Duration `mapstructure:"buffer"` // 0 leaves the platform default
	ClickVolume float64       `mapstructure:"click_volume"`
}

// MIDIConfig holds the clock sync settings.
type MIDIConfig struct {
	Output string `mapstructure:"output"` // name prefix of the output to open at startup
}

// LoadConfig reads configuration from file and env. Env var overrides use
// prefix TAHTI_; the file lives at ~/.config/tahti/config.toml unless
// TAHTI_CONFIG points elsewhere.
func LoadConfig() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("audio.sample_rate", tahti.DefaultSampleRate)
	v.SetDefault("audio.buffer", time.Duration(0))
	v.SetDefault("audio.click_volume", 0.5)
	v.SetDefault("midi.output", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("TAHTI_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "tahti"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TAHTI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
