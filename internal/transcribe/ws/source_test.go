package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/podonamu/sori/internal/transcribe"
)

// pipe establishes a WebSocket pair: the returned client conn plays the
// browser recogniser, src wraps the server side.
func pipe(t *testing.T, opts ...Option) (client *websocket.Conn, src *Source) {
	t.Helper()

	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(websocket.StatusNormalClosure, "") })

	serverConn := <-accepted
	src = NewSource(serverConn, transcribe.Config{Language: "ko-KR"},
		append([]Option{WithSettleDelay(5 * time.Millisecond)}, opts...)...)

	runCtx, runCancel := context.WithCancel(context.Background())
	t.Cleanup(runCancel)
	go func() { _ = src.Run(runCtx) }()

	return client, src
}

// readControl reads the next control command arriving at the client.
func readControl(t *testing.T, client *websocket.Conn) controlMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg controlMessage
	if err := wsjson.Read(ctx, client, &msg); err != nil {
		t.Fatalf("read control: %v", err)
	}
	return msg
}

func send(t *testing.T, client *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, client, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitUpdate(t *testing.T, src *Source) string {
	t.Helper()
	select {
	case text := <-src.Updates():
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript update")
		return ""
	}
}

func TestSource_TranscriptFlow(t *testing.T) {
	t.Parallel()
	client, src := pipe(t)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if msg := readControl(t, client); msg.Command != "start" || msg.Language != "ko-KR" {
		t.Fatalf("expected start control with language, got %+v", msg)
	}

	send(t, client, ClientMessage{Type: "transcript", Text: "태초에"})
	if got := waitUpdate(t, src); got != "태초에" {
		t.Errorf("update = %q", got)
	}

	// Cumulative interim text replaces the buffer.
	send(t, client, ClientMessage{Type: "transcript", Text: "태초에 하나님이"})
	if got := waitUpdate(t, src); got != "태초에 하나님이" {
		t.Errorf("update = %q", got)
	}
	if got := src.Transcript(); got != "태초에 하나님이" {
		t.Errorf("Transcript() = %q", got)
	}
}

func TestSource_IntentionalStopSilencesStream(t *testing.T) {
	t.Parallel()
	client, src := pipe(t)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readControl(t, client)

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if msg := readControl(t, client); msg.Command != "stop" {
		t.Fatalf("expected stop control, got %+v", msg)
	}
	if src.Listening() {
		t.Error("source still listening after Stop")
	}

	// Late transcript and the recogniser's own end event must both be
	// ignored: no restart command, no buffered text.
	send(t, client, ClientMessage{Type: "transcript", Text: "늦게 도착한 말"})
	send(t, client, ClientMessage{Type: "ended"})
	time.Sleep(50 * time.Millisecond)

	if got := src.Transcript(); got != "" {
		t.Errorf("transcript after stop = %q, want empty", got)
	}
	select {
	case <-src.Updates():
		t.Error("unexpected update after intentional stop")
	default:
	}
}

func TestSource_UnsolicitedEndRestarts(t *testing.T) {
	t.Parallel()
	client, src := pipe(t)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readControl(t, client)

	// Platform killed the recogniser without being asked.
	send(t, client, ClientMessage{Type: "ended"})

	if msg := readControl(t, client); msg.Command != "start" {
		t.Fatalf("expected invisible restart, got %+v", msg)
	}
	if !src.Listening() {
		t.Error("listening state should survive an unsolicited restart")
	}
}

func TestSource_ErrorTaxonomy(t *testing.T) {
	t.Parallel()
	client, src := pipe(t)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readControl(t, client)

	send(t, client, ClientMessage{Type: "error", Code: "not-allowed"})

	select {
	case err := <-src.Errors():
		if !errors.Is(err, transcribe.ErrMicDenied) {
			t.Errorf("error = %v, want ErrMicDenied", err)
		}
		if transcribe.IsFatal(err) {
			t.Error("mic denial should not be fatal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestSource_RestartCycle(t *testing.T) {
	t.Parallel()
	client, src := pipe(t)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	readControl(t, client)
	send(t, client, ClientMessage{Type: "transcript", Text: "중간까지 읽다가"})
	waitUpdate(t, src)

	if err := src.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if msg := readControl(t, client); msg.Command != "stop" {
		t.Fatalf("expected stop first, got %+v", msg)
	}
	if msg := readControl(t, client); msg.Command != "start" {
		t.Fatalf("expected start after settle, got %+v", msg)
	}
	if got := src.Transcript(); got != "" {
		t.Errorf("transcript survived restart: %q", got)
	}
}

func TestSource_AdvanceModes(t *testing.T) {
	t.Parallel()

	t.Run("soft reset", func(t *testing.T) {
		t.Parallel()
		client, src := pipe(t)
		if err := src.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		readControl(t, client)

		if err := src.Advance(context.Background()); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if msg := readControl(t, client); msg.Command != "reset" {
			t.Errorf("default advance should soft-reset, got %+v", msg)
		}
	})

	t.Run("full cycle", func(t *testing.T) {
		t.Parallel()
		client, src := pipe(t, WithFullCycleAdvance(true))
		if err := src.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		readControl(t, client)

		if err := src.Advance(context.Background()); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if msg := readControl(t, client); msg.Command != "stop" {
			t.Errorf("full-cycle advance should stop, got %+v", msg)
		}
		if msg := readControl(t, client); msg.Command != "start" {
			t.Errorf("full-cycle advance should restart, got %+v", msg)
		}
	})
}
