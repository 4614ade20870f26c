// ABOUTME: Per-connection session handling for the dev server
// ABOUTME: Handshake, paced utterance streaming and interrupt injection
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vocalis-Audio/vocalis-go/pkg/audio/encode"
	"github.com/Vocalis-Audio/vocalis-go/pkg/protocol"
)

const (
	// chunkDuration is the downlink pacing interval. Opus packets are
	// locked to it, so PCM uses the same cadence.
	chunkDuration = 20 * time.Millisecond

	// leadChunks go out unpaced at each utterance start so the client
	// timeline begins ahead of real time.
	leadChunks = 5

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second

	sendBuffer = 100
)

// session is one connected client.
type session struct {
	id     string
	name   string
	format protocol.AudioFormat
	conn   *websocket.Conn
	log    *slog.Logger

	sendChan chan any
	done     chan struct{}
	endOnce  sync.Once

	uplinkFrames uint64 // touched only by the reader goroutine
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.log.Info("connection accepted", "remote", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection runs the reader side of one session. The writer and
// speaker goroutines hang off it and exit when the session's done channel
// closes.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		s.log.Info("rejecting connection during shutdown")
		return
	}
	s.mu.Unlock()

	start, err := s.readSessionStart(conn)
	if err != nil {
		s.metrics.HandshakeFailures.Inc()
		s.log.Warn("handshake failed", "error", err)
		return
	}

	sess := &session{
		id:       start.SessionID,
		name:     start.Name,
		format:   s.negotiate(start.Formats),
		conn:     conn,
		log:      s.log.With("session", start.SessionID),
		sendChan: make(chan any, sendBuffer),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.sessions[sess.id]; exists {
		s.mu.Unlock()
		s.metrics.HandshakeFailures.Inc()
		s.log.Warn("duplicate session id rejected", "session", sess.id)
		s.writeError(conn, "duplicate_session", "session ID already connected")
		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.metrics.SessionsTotal.Inc()
	s.metrics.SessionsActive.Inc()

	defer func() {
		sess.close()
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		s.metrics.SessionsActive.Dec()
		sess.log.Info("session closed", "uplink_frames", sess.uplinkFrames)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writer()
	}()

	// The ready message is queued before the speaker starts, so it always
	// precedes the first downlink chunk.
	ready, err := protocol.NewMessage(protocol.TypeSessionReady, protocol.SessionReady{
		SessionID:  sess.id,
		ServerName: s.cfg.Name,
		Format:     sess.format,
	})
	if err != nil {
		sess.log.Error("session/ready marshal failed", "error", err)
		return
	}
	sess.trySend(ready)
	sess.log.Info("session ready",
		"client", sess.name,
		"product", start.Product,
		"codec", sess.format.Codec,
		"rate", sess.format.SampleRate)

	s.wg.Add(1)
	go s.speak(sess)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.Warn("read failed", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleUplink(sess, data)
		case websocket.TextMessage:
			if s.handleControl(sess, data) {
				return
			}
		}
	}
}

// readSessionStart reads and validates the opening handshake message.
func (s *Server) readSessionStart(conn *websocket.Conn) (*protocol.SessionStart, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("handshake is not a control message: %w", err)
	}
	if msg.Type != protocol.TypeSessionStart {
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeSessionStart, msg.Type)
	}

	var start protocol.SessionStart
	if err := msg.Decode(&start); err != nil {
		return nil, err
	}
	if start.SessionID == "" {
		return nil, errors.New("session/start missing session_id")
	}
	return &start, nil
}

// opusRates are the sample rates libopus accepts.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// negotiate picks the downlink format from the client's offers. Opus wins
// when both sides speak it, otherwise the first PCM offer. The server
// synthesizes mono, so channels are always forced to one.
func (s *Server) negotiate(offers []protocol.AudioFormat) protocol.AudioFormat {
	if s.cfg.Codec == "opus" {
		for _, f := range offers {
			if f.Codec == "opus" {
				return s.normalize(f)
			}
		}
	}
	for _, f := range offers {
		if f.Codec == "pcm16" || f.Codec == "pcm" {
			return s.normalize(f)
		}
	}
	return protocol.AudioFormat{Codec: "pcm16", SampleRate: s.cfg.SampleRate, Channels: 1, BitDepth: 16}
}

func (s *Server) normalize(f protocol.AudioFormat) protocol.AudioFormat {
	rate := f.SampleRate
	if rate <= 0 {
		rate = s.cfg.SampleRate
	}
	if f.Codec == "opus" && !opusRates[rate] {
		rate = 24000
	}
	return protocol.AudioFormat{Codec: f.Codec, SampleRate: rate, Channels: 1, BitDepth: 16}
}

// handleUplink counts microphone frames. The dev server has no recognizer
// behind it, so the audio itself goes nowhere.
func (s *Server) handleUplink(sess *session, data []byte) {
	kind, seq, payload, err := protocol.DecodeFrame(data)
	if err != nil {
		sess.log.Warn("dropping malformed frame", "error", err)
		return
	}
	if kind != protocol.FrameUplink {
		sess.log.Warn("dropping unexpected frame kind", "kind", kind, "seq", seq)
		return
	}
	sess.uplinkFrames++
	s.metrics.UplinkFrames.Inc()
	s.metrics.UplinkBytes.Add(float64(len(payload)))
}

// handleControl processes one control message and reports whether it
// ended the session.
func (s *Server) handleControl(sess *session, data []byte) bool {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.log.Warn("dropping unparseable control message", "error", err)
		return false
	}

	switch msg.Type {
	case protocol.TypeSessionEnd:
		var end protocol.SessionEnd
		if err := msg.Decode(&end); err != nil {
			sess.log.Warn("bad session/end", "error", err)
			return true
		}
		sess.log.Info("session ended by client", "reason", end.Reason)
		return true
	default:
		sess.log.Debug("ignoring control message", "type", msg.Type)
		return false
	}
}

// speak streams synthetic utterances until the session ends. Each
// utterance is sliced into 20ms chunks; a configurable counter cuts one
// short now and then to exercise client interrupt handling.
func (s *Server) speak(sess *session) {
	defer s.wg.Done()

	newSource := s.cfg.NewSource
	if newSource == nil {
		newSource = func(rate int) (SpeechSource, error) {
			return NewSource(s.cfg.Source, rate)
		}
	}
	src, err := newSource(sess.format.SampleRate)
	if err != nil {
		sess.log.Error("speech source failed", "error", err)
		s.failSession(sess, "internal", err.Error())
		return
	}
	defer src.Close()

	enc, err := encode.New(sess.format.Format())
	if err != nil {
		sess.log.Error("encoder setup failed", "error", err)
		s.failSession(sess, "internal", err.Error())
		return
	}
	defer enc.Close()

	chunkFrames := sess.format.SampleRate / 50
	chunksPerUtterance := int(s.cfg.Utterance / chunkDuration)
	if chunksPerUtterance < 1 {
		chunksPerUtterance = 1
	}
	buf := make([]float32, chunkFrames)

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	var seq uint64
	utterance := 0
	for {
		utterance++
		cut := s.cfg.InterruptEvery > 0 && utterance%s.cfg.InterruptEvery == 0

		for i := 0; i < chunksPerUtterance; i++ {
			if cut && i == chunksPerUtterance/2 {
				s.injectInterrupt(sess, utterance)
				break
			}

			n, err := src.Read(buf)
			if err != nil {
				sess.log.Error("speech source read failed", "error", err)
				s.failSession(sess, "internal", err.Error())
				return
			}
			payload, err := enc.Encode(buf[:n])
			if err != nil {
				sess.log.Error("chunk encode failed", "error", err)
				s.failSession(sess, "internal", err.Error())
				return
			}

			if !sess.trySend(protocol.EncodeFrame(protocol.FrameDownlink, seq, payload)) {
				return
			}
			seq++
			s.metrics.DownlinkChunks.Inc()
			s.metrics.DownlinkBytes.Add(float64(len(payload)))

			if i >= leadChunks {
				select {
				case <-ticker.C:
				case <-sess.done:
					return
				}
			}
		}

		select {
		case <-time.After(s.cfg.Pause):
		case <-sess.done:
			return
		}
	}
}

// injectInterrupt tells the client to cut playback mid-utterance.
func (s *Server) injectInterrupt(sess *session, utterance int) {
	msg, err := protocol.NewMessage(protocol.TypeSpeechInterrupt, protocol.SpeechInterrupt{Reason: "barge_in"})
	if err != nil {
		return
	}
	if sess.trySend(msg) {
		sess.log.Info("interrupt injected", "utterance", utterance)
		s.metrics.InterruptsInjected.Inc()
	}
}

// failSession reports a fatal error to the client and ends the session.
func (s *Server) failSession(sess *session, code, message string) {
	if msg, err := protocol.NewMessage(protocol.TypeSessionError, protocol.SessionError{Code: code, Message: message}); err == nil {
		sess.trySend(msg)
	}
	sess.close()
}

// writeError reports a handshake failure on a connection that never
// became a session, so it writes directly instead of going through a
// writer goroutine.
func (s *Server) writeError(conn *websocket.Conn, code, message string) {
	msg, err := protocol.NewMessage(protocol.TypeSessionError, protocol.SessionError{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.TextMessage, data)
}

// trySend queues a message for the writer. It reports false once the
// session is done. A full buffer drops the message instead of blocking
// the speaker behind a stalled client.
func (sess *session) trySend(msg any) bool {
	select {
	case <-sess.done:
		return false
	case sess.sendChan <- msg:
		return true
	default:
		sess.log.Warn("send buffer full, dropping message")
		return true
	}
}

// end queues a goodbye and releases the session goroutines.
func (sess *session) end(reason string) {
	sess.endOnce.Do(func() {
		if msg, err := protocol.NewMessage(protocol.TypeSessionEnd, protocol.SessionEnd{Reason: reason}); err == nil {
			select {
			case sess.sendChan <- msg:
			default:
			}
		}
		close(sess.done)
	})
}

// close releases the session goroutines without a goodbye, for when the
// peer is already gone.
func (sess *session) close() {
	sess.endOnce.Do(func() {
		close(sess.done)
	})
}

// writer owns all writes to the connection. After done it drains queued
// messages so a final session/end still reaches the client, then closes
// the socket to unblock the reader.
func (sess *session) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-sess.sendChan:
			if !sess.write(msg) {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-sess.done:
			for {
				select {
				case msg := <-sess.sendChan:
					if !sess.write(msg) {
						return
					}
				default:
					deadline := time.Now().Add(writeTimeout)
					goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					sess.conn.WriteControl(websocket.CloseMessage, goodbye, deadline)
					sess.conn.Close()
					return
				}
			}
		}
	}
}

// write sends one queued message. Byte slices go as binary frames,
// everything else as JSON.
func (sess *session) write(msg any) bool {
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	switch v := msg.(type) {
	case []byte:
		if err := sess.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
			sess.log.Warn("binary write failed", "error", err)
			return false
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			sess.log.Warn("message marshal failed", "error", err)
			return true
		}
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			sess.log.Warn("text write failed", "error", err)
			return false
		}
	}
	return true
}
