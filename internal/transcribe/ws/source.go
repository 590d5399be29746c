// Package ws adapts a browser speech recogniser into a [transcribe.Source]
// over a WebSocket. The browser runs the platform speech API and pushes its
// cumulative interim transcript as JSON text messages; the server sends
// control messages telling the recogniser to start, stop, or reset.
//
// Mobile recognisers terminate sessions on their own (timeouts, short
// utterance limits). When the client reports an end that the server did not
// request, the source quietly asks it to start again after a short settle
// delay, so the controller sees one continuous transcript stream. An
// intentional stop suppresses that restart until the next Start.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/podonamu/sori/internal/transcribe"
)

// defaultSettleDelay is how long the recogniser platform needs between a stop
// and the next start before restarts stop racing its own end events.
const defaultSettleDelay = 120 * time.Millisecond

// ClientMessage is a JSON message sent by the browser recogniser. When the
// session endpoint multiplexes recogniser traffic with its own commands on
// one socket, it decodes the envelope itself and hands recogniser messages
// to [Source.Handle].
type ClientMessage struct {
	// Type is "transcript", "error", or "ended".
	Type string `json:"type"`

	// Text is the full cumulative interim transcript ("transcript" only).
	Text string `json:"text,omitempty"`

	// Code is the recogniser error code ("error" only), e.g. "no-speech".
	Code string `json:"code,omitempty"`

	// Intentional marks an "ended" event the client itself requested.
	Intentional bool `json:"intentional,omitempty"`
}

// controlMessage is a JSON command sent to the browser recogniser.
type controlMessage struct {
	Type     string `json:"type"` // always "control"
	Command  string `json:"command"`
	Language string `json:"language,omitempty"`
}

// Option is a functional option for configuring a [Source].
type Option func(*Source)

// WithSettleDelay overrides the pause between a stop and the following start
// in full restart cycles.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Source) { s.settle = d }
}

// WithFullCycleAdvance makes Advance perform a complete stop/start cycle
// instead of a soft buffer reset. Required on platforms whose recognisers
// truncate or carry over text across resets.
func WithFullCycleAdvance(enabled bool) Option {
	return func(s *Source) { s.fullCycleAdvance = enabled }
}

// Source implements [transcribe.Source] over a WebSocket connection to the
// browser recogniser. Create one per session socket and run [Source.Run] in
// its own goroutine for the life of the connection.
type Source struct {
	conn             *websocket.Conn
	cfg              transcribe.Config
	settle           time.Duration
	fullCycleAdvance bool

	mu          sync.Mutex
	transcript  string
	listening   bool
	intentional bool

	updates chan string
	errs    chan error
}

var _ transcribe.Source = (*Source)(nil)

// NewSource wraps an accepted WebSocket connection. The caller retains
// ownership of conn and closes it when the session ends.
func NewSource(conn *websocket.Conn, cfg transcribe.Config, opts ...Option) *Source {
	s := &Source{
		conn:    conn,
		cfg:     cfg,
		settle:  defaultSettleDelay,
		updates: make(chan string, 1),
		errs:    make(chan error, 4),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run reads client messages until ctx is cancelled or the connection closes.
// It returns nil on a normal close. Do not use Run when another reader owns
// the connection; decode there and call [Source.Handle] instead.
func (s *Source) Run(ctx context.Context) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("transcribe/ws: read: %w", err)
		}
		s.Handle(ctx, msg)
	}
}

// Handle processes one recogniser message. Unknown types are ignored.
func (s *Source) Handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case "transcript":
		s.handleTranscript(msg.Text)
	case "error":
		s.pushError(errorForCode(msg.Code))
	case "ended":
		s.handleEnded(ctx, msg.Intentional)
	}
}

// handleTranscript replaces the buffer with the recogniser's cumulative
// interim text and signals an update. Text arriving after an intentional
// stop is discarded.
func (s *Source) handleTranscript(text string) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.transcript = text
	s.mu.Unlock()
	s.publish(text)
}

// handleEnded restarts the recogniser when it stopped on its own. The
// restart is invisible: listening state is unchanged and the transcript is
// kept, so the stream appears continuous.
func (s *Source) handleEnded(ctx context.Context, intentional bool) {
	s.mu.Lock()
	wasIntentional := s.intentional || intentional
	stillListening := s.listening
	s.mu.Unlock()

	if wasIntentional || !stillListening {
		return
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := s.sendControl(ctx, "start"); err != nil {
		s.pushError(fmt.Errorf("transcribe/ws: unsolicited restart: %w", err))
	}
}

// Start implements [transcribe.Source].
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	s.intentional = false
	s.listening = true
	s.mu.Unlock()
	return s.sendControl(ctx, "start")
}

// Stop implements [transcribe.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	s.intentional = true
	s.listening = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.sendControl(ctx, "stop")
}

// Reset implements [transcribe.Source].
func (s *Source) Reset() error {
	s.mu.Lock()
	s.transcript = ""
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.sendControl(ctx, "reset")
}

// Advance implements [transcribe.Source]. On constrained platforms this is a
// full stop/start cycle; otherwise a soft reset suffices.
func (s *Source) Advance(ctx context.Context) error {
	if s.fullCycleAdvance {
		return s.Restart(ctx)
	}
	return s.Reset()
}

// Restart implements [transcribe.Source]: stop, settle, start, with the
// buffer cleared so nothing leaks into the new attempt.
func (s *Source) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	s.mu.Lock()
	s.transcript = ""
	s.mu.Unlock()
	return s.Start(ctx)
}

// Transcript implements [transcribe.Source].
func (s *Source) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Listening implements [transcribe.Source].
func (s *Source) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Updates implements [transcribe.Source].
func (s *Source) Updates() <-chan string { return s.updates }

// Errors implements [transcribe.Source].
func (s *Source) Errors() <-chan error { return s.errs }

// publish delivers the latest transcript, replacing an unread older value.
func (s *Source) publish(text string) {
	for {
		select {
		case s.updates <- text:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

func (s *Source) pushError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Source) sendControl(ctx context.Context, command string) error {
	msg := controlMessage{Type: "control", Command: command}
	if command == "start" {
		msg.Language = s.cfg.Language
	}
	if err := wsjson.Write(ctx, s.conn, msg); err != nil {
		return fmt.Errorf("transcribe/ws: send %s: %w", command, err)
	}
	return nil
}

// errorForCode maps browser recogniser error codes onto the package taxonomy.
func errorForCode(code string) error {
	switch code {
	case "no-speech":
		return transcribe.ErrNoSpeech
	case "audio-capture":
		return transcribe.ErrMicUnavailable
	case "not-allowed", "service-not-allowed":
		return transcribe.ErrMicDenied
	case "network":
		return transcribe.ErrNetwork
	case "unsupported":
		return transcribe.ErrUnsupported
	default:
		return fmt.Errorf("transcribe: recogniser error: %s", code)
	}
}
