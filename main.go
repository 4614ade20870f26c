// ABOUTME: Entry point for the Vocalis client CLI
// ABOUTME: Streams the microphone to a speech endpoint and plays replies
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Vocalis-Audio/vocalis-go/internal/app"
	"github.com/Vocalis-Audio/vocalis-go/internal/config"
	"github.com/Vocalis-Audio/vocalis-go/internal/logging"
	"github.com/Vocalis-Audio/vocalis-go/internal/version"
	"github.com/Vocalis-Audio/vocalis-go/pkg/vocalis"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML config file")
	endpoint    = flag.String("endpoint", "", "Speech service URL (ws://, wss:// or nats://); empty discovers via mDNS")
	name        = flag.String("name", "", "Session display name (default: hostname-vocalis)")
	rate        = flag.Int("rate", 0, "Mic sample rate in Hz")
	deviceRate  = flag.Int("device-rate", 0, "Hardware capture rate when the device cannot open at -rate")
	chunkFrames = flag.Int("chunk-frames", 0, "Mic chunk size in frames")
	volume      = flag.Int("volume", 100, "Initial playback volume, 0-100")
	wavDump     = flag.String("wav-dump", "", "Write received speech to a WAV file on exit")
	noTUI       = flag.Bool("no-tui", false, "Disable the TUI, stream logs to stderr instead")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn or error")
	logFile     = flag.String("log-file", "", "Log file path (default: vocalis.log under the TUI, stderr otherwise)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// A .env beside the binary feeds the VOCALIS_* overrides in development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	useTUI := !*noTUI
	if useTUI && cfg.Log.File == "" {
		// The TUI owns the terminal, so logs go to a file.
		cfg.Log.File = "vocalis.log"
	}

	log, closeLog, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	sessionName := cfg.Name
	if sessionName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sessionName = fmt.Sprintf("%s-vocalis", hostname)
	}

	a := app.New(app.Config{
		Session: vocalis.Config{
			Endpoint:    cfg.Endpoint,
			Name:        sessionName,
			SampleRate:  cfg.Audio.Rate,
			Channels:    cfg.Audio.Channels,
			ChunkFrames: cfg.Audio.ChunkFrames,
			DeviceRate:  cfg.Audio.DeviceRate,
			Volume:      cfg.Audio.Volume,
		},
		UseTUI:  useTUI,
		WAVDump: *wavDump,
		Logger:  log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		log.Error("session failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

// applyFlags lays explicitly set flags over the loaded config, so the
// precedence stays defaults, file, environment, then command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "name":
			cfg.Name = *name
		case "rate":
			cfg.Audio.Rate = *rate
		case "device-rate":
			cfg.Audio.DeviceRate = *deviceRate
		case "chunk-frames":
			cfg.Audio.ChunkFrames = *chunkFrames
		case "volume":
			cfg.Audio.Volume = *volume
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		}
	})
}
