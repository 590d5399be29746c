// Package server exposes the read-aloud tracker over HTTP: a JSON API for
// progress, verses, and the leaderboard, plus the WebSocket session endpoint
// that drives live reading sessions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/config"
	"github.com/podonamu/sori/internal/health"
	"github.com/podonamu/sori/internal/match"
	"github.com/podonamu/sori/internal/observe"
	"github.com/podonamu/sori/internal/progress"
)

// UserEnsurer is implemented by stores that create user records on demand.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, username string) (int, error)
}

// Config wires the server's collaborators.
type Config struct {
	Verses  bible.Source
	Store   progress.Store
	Engine  *match.Engine
	Metrics *observe.Metrics
	Speech  config.SpeechConfig
	Logger  *slog.Logger

	// ReadyChecks feed the /readyz endpoint (e.g. a database ping).
	ReadyChecks []health.Checker
}

// Server serves the HTTP API and the WebSocket session endpoint.
type Server struct {
	log     *slog.Logger
	verses  bible.Source
	store   progress.Store
	metrics *observe.Metrics
	health  *health.Handler

	// engine and speech are hot-reloadable; running sessions keep the
	// values they started with.
	mu     sync.RWMutex
	engine *match.Engine
	speech config.SpeechConfig
}

// New creates a Server from cfg. Nil Logger falls back to [slog.Default];
// nil Metrics falls back to [observe.DefaultMetrics].
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		log:     log,
		verses:  cfg.Verses,
		store:   cfg.Store,
		engine:  cfg.Engine,
		metrics: metrics,
		speech:  cfg.Speech,
		health:  health.New(cfg.ReadyChecks...),
	}
}

// SetEngine swaps the matching engine used by sessions started afterwards.
func (s *Server) SetEngine(engine *match.Engine) {
	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()
}

// SetSpeech swaps the speech settings used by sessions started afterwards.
func (s *Server) SetSpeech(speech config.SpeechConfig) {
	s.mu.Lock()
	s.speech = speech
	s.mu.Unlock()
}

func (s *Server) sessionConfig() (*match.Engine, config.SpeechConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine, s.speech
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users/ensure", s.handleEnsureUser)
	mux.HandleFunc("GET /api/progress/{username}", s.handleGetProgress)
	mux.HandleFunc("POST /api/progress/{username}", s.handleSaveProgress)
	mux.HandleFunc("GET /api/progress/{username}/next", s.handleNextSuggestion)
	mux.HandleFunc("GET /api/verses/{book}", s.handleVerses)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /ws/session", s.handleSession)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

type ensureUserRequest struct {
	Username string `json:"username"`
}

// handleEnsureUser creates the user record if the store supports it. Stores
// without explicit user rows treat any name as known, so this still returns
// 200 for them.
func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	if ensurer, ok := s.store.(UserEnsurer); ok {
		if _, err := ensurer.EnsureUser(r.Context(), req.Username); err != nil {
			s.log.Error("ensure user", "user", req.Username, "err", err)
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	prog, err := s.store.Load(r.Context(), username)
	if err != nil {
		observe.Logger(r.Context()).Error("load progress", "user", username, "err", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	var prog progress.UserProgress
	if err := json.NewDecoder(r.Body).Decode(&prog); err != nil {
		http.Error(w, "invalid progress body", http.StatusBadRequest)
		return
	}
	if err := s.store.Save(r.Context(), username, prog); err != nil {
		observe.Logger(r.Context()).Error("save progress", "user", username, "err", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nextSuggestion struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
}

// handleNextSuggestion proposes where a user should continue reading: the
// chapter after their bookmark, rolling over chapter and book boundaries.
func (s *Server) handleNextSuggestion(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	prog, err := s.store.Load(r.Context(), username)
	if err != nil {
		s.log.Error("load progress", "user", username, "err", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	book, chapter := bible.SuggestNext(s.verses, prog.LastReadBook, prog.LastReadChapter, prog.LastReadVerse)
	writeJSON(w, http.StatusOK, nextSuggestion{Book: book, Chapter: chapter})
}

type versesResponse struct {
	Book   string        `json:"book"`
	Verses []bible.Verse `json:"verses"`
}

// handleVerses returns the verse text for a chapter range. The book segment
// accepts abbreviated names ("창" for "창세기").
func (s *Server) handleVerses(w http.ResponseWriter, r *http.Request) {
	book, ok := s.resolveBook(r.PathValue("book"))
	if !ok {
		http.Error(w, "unknown book", http.StatusNotFound)
		return
	}

	start, end, err := chapterRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	verses := s.verses.VersesForRange(book, start, end)
	if len(verses) == 0 {
		http.Error(w, "no verse data for range", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, versesResponse{Book: book, Verses: verses})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.store.(progress.StandingsProvider)
	if !ok {
		http.Error(w, "leaderboard unavailable", http.StatusNotImplemented)
		return
	}

	standings, err := provider.Standings(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("load standings", "err", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	progress.SortStandings(standings)
	writeJSON(w, http.StatusOK, standings)
}

// resolveBook maps a raw book name or abbreviation onto a canonical book
// with data. Reports false when nothing matches.
func (s *Server) resolveBook(name string) (string, bool) {
	if s.verses.HasBook(name) {
		return name, true
	}
	if full, ok := bible.Abbreviations[name]; ok && s.verses.HasBook(full) {
		return full, true
	}
	return "", false
}

// chapterRange parses the start and end query parameters. Missing end
// defaults to start; missing start defaults to chapter 1.
func chapterRange(r *http.Request) (int, int, error) {
	start, end := 1, 0

	if raw := r.URL.Query().Get("start"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, errors.New("start must be a positive chapter number")
		}
		start = n
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, errors.New("end must be a positive chapter number")
		}
		end = n
	}
	if end == 0 {
		end = start
	}
	if end < start {
		return 0, 0, errors.New("end must not precede start")
	}
	return start, end, nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}
