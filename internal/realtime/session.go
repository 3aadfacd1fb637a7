// Package realtime implements the live streaming synthesis session: text
// fragments are forwarded to the Fish Audio websocket endpoint as they become
// available while synthesized audio concurrently streams back to a sink.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lukasbauer/fishvoice/internal/fishaudio"
)

const (
	defaultEndpoint = "wss://api.fish.audio/v1/tts/live"

	// finishGrace bounds the trailing read after a finish event. The server
	// owes nothing after finish; this window only exists to catch protocol
	// violations instead of silently dropping them.
	finishGrace = 250 * time.Millisecond
)

// ErrConnectionClosed reports that the connection closed before a finish
// event was observed.
var ErrConnectionClosed = errors.New("connection closed before finish event")

// Config holds configuration for a live synthesis session.
type Config struct {
	APIKey   string
	Endpoint string               // Defaults to the public live TTS endpoint
	Model    string               // Synthesis backend, e.g. "speech-1.6"
	Request  fishaudio.TTSRequest // Initial configuration; Text is ignored
	Debug    bool                 // Ask the server to emit log events
	Logger   *log.Logger          // Receives server log events; optional
}

// Session is one live synthesis interaction over a dedicated websocket
// connection. The session owns the connection exclusively: the uplink
// goroutine is the only writer after the start event, and Close is safe to
// call from any goroutine, exactly once taking effect.
type Session struct {
	conn      *websocket.Conn
	logger    *log.Logger
	done      chan struct{}
	haltOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the websocket connection and transmits the start event carrying
// the initial configuration. The returned session is open until Close or
// until Stream completes.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = fishaudio.DefaultModel
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("model", model)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to live TTS: %w", err)
	}

	// The start event must precede all other traffic on the connection.
	req := cfg.Request
	req.Text = ""
	payload, err := msgpack.Marshal(startEvent{Event: eventStart, Request: req, Debug: cfg.Debug})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to marshal start event: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send start event: %w", err)
	}

	return &Session{
		conn:   conn,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}, nil
}

// Stream runs the session to completion: the uplink forwards fragments from
// texts (closing the channel marks the producer exhausted), the downlink
// forwards audio chunks to sink in arrival order. It returns the server's
// termination reason on a clean finish.
//
// Cancelling ctx tears the session down: both halves unblock, the connection
// is closed and the context error is returned. The sink is never written to
// after Stream returns.
//
// Stream does not release the connection itself: the caller closes the
// session with Close after its sink is torn down.
func (s *Session) Stream(ctx context.Context, texts <-chan string, sink io.Writer) (string, error) {
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-watchDone:
		}
	}()

	uplinkErr := make(chan error, 1)
	go func() {
		uplinkErr <- s.sendText(texts)
	}()

	reason, err := s.recvAudio(sink)

	// Unblock the uplink before joining it: it may be waiting on a producer
	// that will never yield again.
	s.halt()
	upErr := <-uplinkErr

	if ctx.Err() != nil {
		return reason, ctx.Err()
	}
	if err != nil {
		return reason, err
	}
	return reason, upErr
}

// sendText is the uplink half: one text event per non-empty fragment in
// producer order, then exactly one flush and one stop once the producer is
// exhausted. Nothing is sent after stop.
func (s *Session) sendText(texts <-chan string) error {
	for {
		select {
		case <-s.done:
			return nil
		case text, ok := <-texts:
			if !ok {
				if err := s.send(controlEvent{Event: eventFlush}); err != nil {
					return err
				}
				return s.send(controlEvent{Event: eventStop})
			}
			if text == "" {
				continue
			}
			if err := s.send(textEvent{Event: eventText, Text: text}); err != nil {
				return err
			}
		}
	}
}

func (s *Session) send(ev any) error {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		select {
		case <-s.done:
			return nil // session torn down, not a send failure
		default:
		}
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

// recvAudio is the downlink half: dispatch server events until finish, the
// terminal event. The session does not wait for the server to close the
// connection after finish; a short grace read catches trailing traffic so it
// is reported as a protocol violation instead of silently dropped.
func (s *Session) recvAudio(sink io.Writer) (string, error) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w (%v)", ErrConnectionClosed, err)
		}

		var ev serverEvent
		if err := msgpack.Unmarshal(msg, &ev); err != nil {
			return "", fmt.Errorf("failed to decode server event: %w", err)
		}

		switch ev.Event {
		case eventAudio:
			if _, err := sink.Write(ev.Audio); err != nil {
				return "", fmt.Errorf("failed to write audio to sink: %w", err)
			}
		case eventLog:
			s.logf("server log: %s", ev.Message)
		case eventFinish:
			return ev.Reason, s.checkTrailing()
		default:
			return "", &ProtocolError{Event: ev.Event}
		}
	}
}

// checkTrailing attempts one bounded read after finish. A frame arriving in
// the grace window is a protocol violation; a read error (connection close,
// deadline) is the normal end of session.
func (s *Session) checkTrailing() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(finishGrace))
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil
	}

	var ev serverEvent
	if err := msgpack.Unmarshal(msg, &ev); err != nil {
		return &ProtocolError{AfterFinish: true}
	}
	return &ProtocolError{Event: ev.Event, AfterFinish: true}
}

// halt stops the uplink without releasing the connection.
func (s *Session) halt() {
	s.haltOnce.Do(func() { close(s.done) })
}

// Close tears the session down and releases the connection. Safe to call
// multiple times and from multiple goroutines; the connection is released
// exactly once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.halt()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
