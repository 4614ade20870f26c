// ABOUTME: Client and dev server configuration
// ABOUTME: YAML file with VOCALIS_* env overrides on top of defaults
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration. Precedence is flags over env
// over file over defaults; flags are applied by the CLI after Load.
type Config struct {
	// Endpoint is the speech service URL. Empty means discover via mDNS.
	Endpoint string `yaml:"endpoint"`

	// Name is the session display name. Empty means derive from hostname.
	Name string `yaml:"name"`

	Audio  AudioConfig  `yaml:"audio"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// AudioConfig controls the uplink capture path and playback volume.
type AudioConfig struct {
	Rate        int `yaml:"rate"`
	Channels    int `yaml:"channels"`
	ChunkFrames int `yaml:"chunk_frames"`

	// DeviceRate captures at a different hardware rate and resamples
	// down to Rate. Zero captures directly at Rate.
	DeviceRate int `yaml:"device_rate"`

	// Volume is the initial playback volume, 0-100.
	Volume int `yaml:"volume"`
}

// ServerConfig controls the dev speech server.
type ServerConfig struct {
	Port int `yaml:"port"`

	// Codec is the downlink codec the server prefers: pcm16 or opus.
	Codec string `yaml:"codec"`

	// Source selects the speech source: "tone" or a path to an MP3 file.
	Source string `yaml:"source"`

	// InterruptEvery injects a speech/interrupt after every N utterances.
	// Zero disables injection.
	InterruptEvery int `yaml:"interrupt_every"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file, env or flags say
// otherwise.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Rate:        16000,
			Channels:    1,
			ChunkFrames: 4096,
			Volume:      100,
		},
		Server: ServerConfig{
			Port:   8931,
			Codec:  "pcm16",
			Source: "tone",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file when path
// is non-empty, then VOCALIS_* environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays VOCALIS_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("VOCALIS_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("VOCALIS_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("VOCALIS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VOCALIS_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"VOCALIS_RATE", &cfg.Audio.Rate},
		{"VOCALIS_CHANNELS", &cfg.Audio.Channels},
		{"VOCALIS_CHUNK_FRAMES", &cfg.Audio.ChunkFrames},
		{"VOCALIS_VOLUME", &cfg.Audio.Volume},
		{"VOCALIS_PORT", &cfg.Server.Port},
	} {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", e.name, v)
		}
		*e.dst = n
	}
	return nil
}

// Validate checks the configuration section by section.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

// Validate validates the audio section.
func (a *AudioConfig) Validate() error {
	if a.Rate < 8000 || a.Rate > 48000 {
		return fmt.Errorf("rate must be between 8000 and 48000 Hz, got %d", a.Rate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	if a.ChunkFrames < 64 {
		return fmt.Errorf("chunk_frames must be at least 64, got %d", a.ChunkFrames)
	}
	if a.DeviceRate != 0 && (a.DeviceRate < 8000 || a.DeviceRate > 192000) {
		return fmt.Errorf("device_rate must be between 8000 and 192000 Hz, got %d", a.DeviceRate)
	}
	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", a.Volume)
	}
	return nil
}

// Validate validates the server section.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Codec != "pcm16" && s.Codec != "opus" {
		return fmt.Errorf("codec must be pcm16 or opus, got %q", s.Codec)
	}
	if s.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if s.InterruptEvery < 0 {
		return fmt.Errorf("interrupt_every cannot be negative, got %d", s.InterruptEvery)
	}
	return nil
}

// Validate validates the log section.
func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}
}
