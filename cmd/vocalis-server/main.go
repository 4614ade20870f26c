// ABOUTME: Entry point for the Vocalis dev speech server
// ABOUTME: Wires config, logging and signal handling around internal/server
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Vocalis-Audio/vocalis-go/internal/config"
	"github.com/Vocalis-Audio/vocalis-go/internal/logging"
	"github.com/Vocalis-Audio/vocalis-go/internal/server"
	"github.com/Vocalis-Audio/vocalis-go/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to a YAML config file")
	port           = flag.Int("port", 0, "WebSocket listen port")
	name           = flag.String("name", "", "Server name (default: hostname-vocalis)")
	codec          = flag.String("codec", "", "Downlink codec: pcm16 or opus")
	source         = flag.String("source", "", "Speech source: tone or a path to an MP3 file")
	interruptEvery = flag.Int("interrupt-every", 0, "Cut every Nth utterance short with an interrupt (0 disables)")
	noMDNS         = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logLevel       = flag.String("log-level", "", "Log level: debug, info, warn or error")
	logFile        = flag.String("log-file", "", "Log file path (default: stderr)")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

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

	log, closeLog, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	serverName := cfg.Name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-vocalis", hostname)
	}

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		Name:           serverName,
		Codec:          cfg.Server.Codec,
		Source:         cfg.Server.Source,
		InterruptEvery: cfg.Server.InterruptEvery,
		EnableMDNS:     !*noMDNS,
		Logger:         logging.Component(log, "server"),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("signal received, shutting down", "signal", sig.String())
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Error("server failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

// applyFlags lays explicitly set flags over the loaded config, so the
// precedence stays defaults, file, environment, then command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "name":
			cfg.Name = *name
		case "codec":
			cfg.Server.Codec = *codec
		case "source":
			cfg.Server.Source = *source
		case "interrupt-every":
			cfg.Server.InterruptEvery = *interruptEvery
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		}
	})
}
