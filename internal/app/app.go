// ABOUTME: Client application orchestration
// ABOUTME: Wires discovery, the session, the visualizer and the TUI
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Vocalis-Audio/vocalis-go/internal/discovery"
	"github.com/Vocalis-Audio/vocalis-go/internal/logging"
	"github.com/Vocalis-Audio/vocalis-go/internal/ui"
	"github.com/Vocalis-Audio/vocalis-go/pkg/audio"
	"github.com/Vocalis-Audio/vocalis-go/pkg/viz"
	"github.com/Vocalis-Audio/vocalis-go/pkg/vocalis"
)

// Config holds the client application settings.
type Config struct {
	// Session is handed to vocalis.New. An empty Endpoint triggers mDNS
	// discovery.
	Session vocalis.Config

	// UseTUI selects between the terminal UI and log-only operation.
	UseTUI bool

	// WAVDump collects the downlink into a WAV file at this path.
	WAVDump string

	// DiscoveryTimeout bounds the mDNS browse. Zero means 5 seconds.
	DiscoveryTimeout time.Duration

	Logger *slog.Logger
}

// App runs one interactive session end to end.
type App struct {
	cfg      Config
	log      *slog.Logger
	session  *vocalis.Session
	analyzer *viz.Analyzer
	controls *ui.Controls
	dump     *wavDump
}

// New prepares the app. The session itself is created in Run, after
// discovery has resolved the endpoint.
func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = 5 * time.Second
	}
	return &App{cfg: cfg, log: cfg.Logger}
}

// Run drives the session until it ends or ctx is canceled. The returned
// error is the session's failure cause, nil on a clean close.
func (a *App) Run(ctx context.Context) error {
	sessionCfg := a.cfg.Session
	if sessionCfg.Endpoint == "" {
		endpoint, err := a.discoverEndpoint()
		if err != nil {
			return err
		}
		sessionCfg.Endpoint = endpoint
	}
	if sessionCfg.Logger == nil {
		sessionCfg.Logger = logging.Component(a.log, "session")
	}

	if a.cfg.WAVDump != "" {
		a.dump = newWAVDump(a.cfg.WAVDump)
		prev := sessionCfg.OnDownlink
		sessionCfg.OnDownlink = func(chunk audio.PCMChunk) {
			a.dump.add(chunk)
			if prev != nil {
				prev(chunk)
			}
		}
	}

	session, err := vocalis.New(sessionCfg)
	if err != nil {
		return err
	}
	a.session = session

	a.analyzer = viz.New(viz.Config{})
	a.analyzer.Attach(session.Tap)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := session.Start(runCtx); err != nil {
		return err
	}

	var prog *tea.Program
	tuiDone := make(chan error, 1)
	if a.cfg.UseTUI {
		a.controls = ui.NewControls()
		prog = ui.Run(ui.NewModel(ui.Params{
			Endpoint:  sessionCfg.Endpoint,
			SessionID: session.ID(),
			Volume:    session.Volume(),
			Controls:  a.controls,
			Frame:     a.analyzer.Frame,
			Snapshot:  session.Stats,
		}))
		go func() {
			_, err := prog.Run()
			tuiDone <- err
		}()
	}

	runErr := a.loop(runCtx, prog)

	if prog != nil {
		prog.Quit()
		if err := <-tuiDone; err != nil {
			a.log.Warn("tui exited with error", "error", err)
		}
	}

	if a.dump != nil {
		format, _ := session.Format()
		if err := a.dump.write(format); err != nil {
			a.log.Warn("wav dump not written", "error", err)
		} else {
			a.log.Info("downlink saved", "path", a.cfg.WAVDump)
		}
	}

	return runErr
}

// discoverEndpoint browses mDNS and takes the first advertised endpoint.
func (a *App) discoverEndpoint() (string, error) {
	a.log.Info("browsing for speech endpoints", "timeout", a.cfg.DiscoveryTimeout)

	endpoints, err := discovery.Browse(a.cfg.DiscoveryTimeout, logging.Component(a.log, "discovery"))
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no speech endpoint found; pass one explicitly")
	}

	ep := endpoints[0]
	a.log.Info("endpoint discovered", "name", ep.Name, "url", ep.URL())
	return ep.URL(), nil
}

// loop consumes session updates and TUI intents until the session ends.
func (a *App) loop(ctx context.Context, prog *tea.Program) error {
	updates := a.session.Updates()
	done := ctx.Done()

	var volumeCh chan int
	var interruptCh, quitCh chan struct{}
	if a.controls != nil {
		volumeCh = a.controls.Volume
		interruptCh = a.controls.Interrupts
		quitCh = a.controls.Quit
	}

	for {
		select {
		case <-done:
			done = nil
			a.log.Info("shutting down")
			a.session.Stop()

		case <-quitCh:
			quitCh = nil
			a.session.Stop()

		case v := <-volumeCh:
			a.session.SetVolume(v)

		case <-interruptCh:
			a.session.Interrupt()

		case ev, ok := <-updates:
			if !ok {
				return a.session.Err()
			}
			a.handleStatus(ev, prog)
		}
	}
}

// handleStatus logs one session transition and mirrors it into the TUI.
func (a *App) handleStatus(ev vocalis.StatusEvent, prog *tea.Program) {
	if ev.State == vocalis.StateFailed {
		a.log.Error("session failed", "reason", string(ev.Reason), "error", ev.Err)
	} else {
		a.log.Info("session state", "state", ev.State.String())
	}

	if prog == nil {
		return
	}
	msg := ui.StatusMsg{State: ev.State, Reason: ev.Reason, Err: ev.Err, Stats: ev.Stats}
	if format, ok := a.session.Format(); ok {
		msg.Codec = format.Codec
		msg.SampleRate = format.SampleRate
	}
	prog.Send(msg)
}
