// ABOUTME: Development speech endpoint speaking the Vocalis wire protocol
// ABOUTME: Accepts sessions, streams paced utterances and serves metrics
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vocalis-Audio/vocalis-go/internal/discovery"
	"github.com/Vocalis-Audio/vocalis-go/internal/metrics"
	"github.com/Vocalis-Audio/vocalis-go/pkg/protocol"
)

// Config holds server settings.
type Config struct {
	Port int
	Name string

	// Codec enables Opus downlink when set to "opus" and the client
	// offers it. Anything else negotiates PCM16.
	Codec string

	// Source selects the speech signal: "tone" or a path to an MP3 file.
	Source string

	// NewSource overrides Source with a custom speech source built at the
	// negotiated rate. Embedders use this to stream their own audio.
	NewSource func(rate int) (SpeechSource, error)

	// SampleRate is the downlink rate used when the client does not ask
	// for one.
	SampleRate int

	// Utterance and Pause shape the synthetic speech cadence.
	Utterance time.Duration
	Pause     time.Duration

	// InterruptEvery cuts every Nth utterance short with a
	// speech/interrupt. Zero disables injection.
	InterruptEvery int

	EnableMDNS bool

	Logger *slog.Logger
}

// Server is a development stand-in for a real speech service. It speaks
// the full wire protocol so clients exercise every code path: handshake,
// paced downlink, interrupts and orderly shutdown.
type Server struct {
	cfg      Config
	log      *slog.Logger
	serverID string
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	metrics  *metrics.Metrics

	httpServer *http.Server
	advertiser *discovery.Advertiser

	mu         sync.Mutex
	sessions   map[string]*session
	isShutdown bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a server. Start runs it.
func New(cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "vocalis-dev"
	}
	if cfg.Codec == "" {
		cfg.Codec = "pcm16"
	}
	if cfg.Source == "" {
		cfg.Source = "tone"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Utterance <= 0 {
		cfg.Utterance = 2 * time.Second
	}
	if cfg.Pause <= 0 {
		cfg.Pause = 400 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// Non-browser clients send no Origin header. This is a
			// development tool for trusted networks, so browser origins
			// are accepted too.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		metrics:  metrics.New(),
		sessions: make(map[string]*session),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(protocol.DefaultPath, s.handleWebSocket)
	s.mux.Handle("/metrics", s.metrics.Handler())
	return s
}

// Handler exposes the HTTP routes. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info("server starting",
		"name", s.cfg.Name,
		"id", s.serverID,
		"port", s.cfg.Port,
		"source", s.cfg.Source,
		"codec", s.cfg.Codec)

	if s.cfg.EnableMDNS {
		adv, err := discovery.Advertise(s.cfg.Name, s.cfg.Port, s.log)
		if err != nil {
			s.log.Warn("mdns advertisement failed", "error", err)
		} else {
			s.advertiser = adv
		}
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("server shutting down")
	case serverErr = <-errChan:
		s.log.Error("listener failed", "error", serverErr)
	}

	s.mu.Lock()
	s.isShutdown = true
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	// Each session's writer flushes the goodbye and closes its socket,
	// which unblocks the reader handlers.
	for _, sess := range open {
		sess.end("shutdown")
	}

	if s.advertiser != nil {
		s.advertiser.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown error", "error", err)
	}

	s.wg.Wait()
	s.log.Info("server stopped")

	if serverErr != nil {
		return fmt.Errorf("listener failed: %w", serverErr)
	}
	return nil
}

// Stop signals Start to shut down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}
