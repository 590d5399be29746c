package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/session"
	"github.com/podonamu/sori/internal/transcribe"
	wssource "github.com/podonamu/sori/internal/transcribe/ws"
)

// sessionCommand is one client message on the session socket. The socket
// multiplexes two producers on the client: the user's actions (select,
// listen, retry, stop) and the recogniser bridge (transcript, error, ended).
type sessionCommand struct {
	Type string `json:"type"`

	// Selection fields ("select").
	Book         string `json:"book,omitempty"`
	StartChapter int    `json:"startChapter,omitempty"`
	EndChapter   int    `json:"endChapter,omitempty"`

	// Recogniser fields ("transcript", "error", "ended").
	Text        string `json:"text,omitempty"`
	Code        string `json:"code,omitempty"`
	Intentional bool   `json:"intentional,omitempty"`
}

// sessionEvent is one server push on the session socket.
type sessionEvent struct {
	Type  string        `json:"type"`
	State session.State `json:"state,omitempty"`

	// Selection response.
	Verses []bible.Verse `json:"verses,omitempty"`
	Skip   int           `json:"skip,omitempty"`

	// Match progress.
	Matched    *bible.Verse `json:"matched,omitempty"`
	Next       *bible.Verse `json:"next,omitempty"`
	Similarity int          `json:"similarity,omitempty"`
	Threshold  int          `json:"threshold,omitempty"`

	// Session end.
	Certification string `json:"certification,omitempty"`
	VersesRead    int    `json:"versesRead,omitempty"`

	// Errors.
	Message string `json:"message,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// handleSession upgrades to WebSocket and runs one reading session for the
// user named in the query string. The connection is the session: closing it
// abandons any in-flight state, and durable progress only moves when the
// controller reconciles a completed or stopped session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("user")
	if username == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	ctx := r.Context()

	prog, err := s.store.Load(ctx, username)
	if err != nil {
		s.log.Error("load progress", "user", username, "err", err)
		conn.Close(websocket.StatusInternalError, "store unavailable")
		return
	}

	engine, speech := s.sessionConfig()

	var sourceOpts []wssource.Option
	if speech.SettleMillis > 0 {
		sourceOpts = append(sourceOpts, wssource.WithSettleDelay(time.Duration(speech.SettleMillis)*time.Millisecond))
	}
	if speech.FullCycleAdvance {
		sourceOpts = append(sourceOpts, wssource.WithFullCycleAdvance(true))
	}
	source := wssource.NewSource(conn, transcribe.Config{Language: speech.Language}, sourceOpts...)

	ctrl := session.New(username, prog, engine, source, s.verses, s.store,
		session.WithLogger(s.log.With("user", username)),
		session.WithMetrics(s.metrics))

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	if err := s.sessionLoop(ctx, conn, source, ctrl); err != nil {
		s.log.Warn("session connection lost", "user", username, "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// sessionLoop owns the socket's read side, dispatching user commands to the
// controller and recogniser traffic to the transcript source.
func (s *Server) sessionLoop(ctx context.Context, conn *websocket.Conn, source *wssource.Source, ctrl *session.Controller) error {
	for {
		var cmd sessionCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch cmd.Type {
		case "select":
			s.handleSelect(ctx, conn, ctrl, cmd)

		case "listen":
			upd, err := ctrl.StartListening(ctx)
			if err != nil {
				s.pushError(ctx, conn, upd.State, err)
				continue
			}
			s.push(ctx, conn, sessionEvent{Type: "state", State: upd.State, Next: upd.Next})

		case "retry":
			upd, err := ctrl.Retry(ctx)
			if err != nil {
				s.pushError(ctx, conn, upd.State, err)
				continue
			}
			s.push(ctx, conn, sessionEvent{Type: "state", State: upd.State, Next: upd.Next})

		case "stop":
			upd, err := ctrl.Stop(ctx)
			if err != nil {
				s.pushError(ctx, conn, upd.State, err)
				continue
			}
			s.metrics.RecordSessionEnd(ctx, "stopped")
			s.push(ctx, conn, sessionEvent{
				Type:          "ended",
				State:         upd.State,
				Certification: upd.Certification,
				VersesRead:    upd.VersesRead,
			})

		case "transcript":
			source.Handle(ctx, wssource.ClientMessage{Type: "transcript", Text: cmd.Text})
			s.evaluate(ctx, conn, source, ctrl)

		case "error":
			source.Handle(ctx, wssource.ClientMessage{Type: "error", Code: cmd.Code})
			s.drainSourceErrors(ctx, conn, source, ctrl)

		case "ended":
			source.Handle(ctx, wssource.ClientMessage{Type: "ended", Intentional: cmd.Intentional})

		default:
			s.push(ctx, conn, sessionEvent{Type: "error", Message: "unknown command: " + cmd.Type})
		}
	}
}

func (s *Server) handleSelect(ctx context.Context, conn *websocket.Conn, ctrl *session.Controller, cmd sessionCommand) {
	book, ok := s.resolveBook(cmd.Book)
	if !ok {
		s.push(ctx, conn, sessionEvent{Type: "error", Message: "unknown book: " + cmd.Book})
		return
	}

	upd, err := ctrl.Begin(book, cmd.StartChapter, cmd.EndChapter)
	if err != nil {
		s.pushError(ctx, conn, ctrl.State(), err)
		return
	}
	s.push(ctx, conn, sessionEvent{
		Type:   "verses",
		State:  upd.State,
		Verses: ctrl.Targets(),
		Skip:   ctrl.InitialSkipCount(),
		Next:   upd.Next,
	})
}

// evaluate runs the match engine over the source's current buffer and pushes
// the outcome.
func (s *Server) evaluate(ctx context.Context, conn *websocket.Conn, source *wssource.Source, ctrl *session.Controller) {
	upd, err := ctrl.HandleTranscript(ctx, source.Transcript())
	if err != nil {
		s.pushError(ctx, conn, upd.State, err)
		return
	}
	if upd.State != session.StateListening && upd.State != session.StateCompleted {
		return
	}

	s.metrics.RecordMatchAttempt(ctx, upd.Matched != nil, upd.Result.Similarity)

	if upd.Matched == nil {
		// Nothing to show; the next transcript chunk supersedes this one.
		return
	}

	if upd.State == session.StateCompleted {
		s.metrics.RecordSessionEnd(ctx, "completed")
		s.push(ctx, conn, sessionEvent{
			Type:          "completed",
			State:         upd.State,
			Matched:       upd.Matched,
			Similarity:    upd.Result.Similarity,
			Threshold:     upd.Result.Threshold,
			Certification: upd.Certification,
			VersesRead:    upd.VersesRead,
		})
		return
	}

	s.push(ctx, conn, sessionEvent{
		Type:       "match",
		State:      upd.State,
		Matched:    upd.Matched,
		Next:       upd.Next,
		Similarity: upd.Result.Similarity,
		Threshold:  upd.Result.Threshold,
	})
}

// drainSourceErrors forwards queued recogniser errors to the controller and
// the client.
func (s *Server) drainSourceErrors(ctx context.Context, conn *websocket.Conn, source *wssource.Source, ctrl *session.Controller) {
	for {
		select {
		case err := <-source.Errors():
			s.metrics.RecordRecogniserError(ctx, errorKind(err))
			upd, usable := ctrl.HandleSourceError(err)
			s.push(ctx, conn, sessionEvent{
				Type:    "error",
				State:   upd.State,
				Message: err.Error(),
				Fatal:   !usable,
			})
		default:
			return
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, ev sessionEvent) {
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		s.log.Warn("push session event", "type", ev.Type, "err", err)
	}
}

func (s *Server) pushError(ctx context.Context, conn *websocket.Conn, state session.State, err error) {
	s.push(ctx, conn, sessionEvent{
		Type:    "error",
		State:   state,
		Message: err.Error(),
		Fatal:   state == session.StateError,
	})
}

// errorKind labels a recogniser error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, transcribe.ErrNoSpeech):
		return "no-speech"
	case errors.Is(err, transcribe.ErrMicUnavailable):
		return "audio-capture"
	case errors.Is(err, transcribe.ErrMicDenied):
		return "not-allowed"
	case errors.Is(err, transcribe.ErrNetwork):
		return "network"
	case errors.Is(err, transcribe.ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}
