// ABOUTME: Tests for configuration loading
// ABOUTME: Defaults, YAML overlay, env overrides and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocalis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Audio.Rate != 16000 {
		t.Errorf("Audio.Rate = %d, want 16000", cfg.Audio.Rate)
	}
	if cfg.Audio.ChunkFrames != 4096 {
		t.Errorf("Audio.ChunkFrames = %d, want 4096", cfg.Audio.ChunkFrames)
	}
	if cfg.Audio.Volume != 100 {
		t.Errorf("Audio.Volume = %d, want 100", cfg.Audio.Volume)
	}
	if cfg.Server.Port != 8931 {
		t.Errorf("Server.Port = %d, want 8931", cfg.Server.Port)
	}
	if cfg.Server.Codec != "pcm16" {
		t.Errorf("Server.Codec = %q, want pcm16", cfg.Server.Codec)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
endpoint: ws://kitchen.local:8931/vocalis
name: kitchen
audio:
  rate: 24000
  channels: 2
  chunk_frames: 2048
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Endpoint != "ws://kitchen.local:8931/vocalis" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Name != "kitchen" {
		t.Errorf("Name = %q, want kitchen", cfg.Name)
	}
	if cfg.Audio.Rate != 24000 {
		t.Errorf("Audio.Rate = %d, want 24000", cfg.Audio.Rate)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("Audio.Channels = %d, want 2", cfg.Audio.Channels)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	// Sections the file does not mention keep their defaults.
	if cfg.Server.Port != 8931 {
		t.Errorf("Server.Port = %d, want 8931", cfg.Server.Port)
	}
	if cfg.Audio.Volume != 100 {
		t.Errorf("Audio.Volume = %d, want 100", cfg.Audio.Volume)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
endpoint: ws://file.local:8931
audio:
  rate: 24000
`)
	t.Setenv("VOCALIS_ENDPOINT", "nats://broker.local:4222")
	t.Setenv("VOCALIS_RATE", "48000")
	t.Setenv("VOCALIS_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Endpoint != "nats://broker.local:4222" {
		t.Errorf("Endpoint = %q, env should win over file", cfg.Endpoint)
	}
	if cfg.Audio.Rate != 48000 {
		t.Errorf("Audio.Rate = %d, want 48000", cfg.Audio.Rate)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoadRejectsBadEnvInteger(t *testing.T) {
	t.Setenv("VOCALIS_PORT", "not-a-port")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error for non-integer VOCALIS_PORT")
	}
	if !strings.Contains(err.Error(), "VOCALIS_PORT") {
		t.Errorf("error %q should name the variable", err)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "audio: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for malformed yaml")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"rate too low", func(c *Config) { c.Audio.Rate = 4000 }, "rate"},
		{"rate too high", func(c *Config) { c.Audio.Rate = 96000 }, "rate"},
		{"bad channels", func(c *Config) { c.Audio.Channels = 3 }, "channels"},
		{"tiny chunk", func(c *Config) { c.Audio.ChunkFrames = 16 }, "chunk_frames"},
		{"bad device rate", func(c *Config) { c.Audio.DeviceRate = 1000 }, "device_rate"},
		{"volume over", func(c *Config) { c.Audio.Volume = 150 }, "volume"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"port huge", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"bad codec", func(c *Config) { c.Server.Codec = "mp3" }, "codec"},
		{"empty source", func(c *Config) { c.Server.Source = "" }, "source"},
		{"negative interrupt", func(c *Config) { c.Server.InterruptEvery = -1 }, "interrupt_every"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.errMsg)
			}
		})
	}
}

func TestDeviceRateAccepted(t *testing.T) {
	cfg := Default()
	cfg.Audio.DeviceRate = 48000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
