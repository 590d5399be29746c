// Package session drives one reading session: a state machine that walks a
// user-selected verse range, feeds transcript updates to the match engine,
// and settles durable progress when the session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/match"
	"github.com/podonamu/sori/internal/observe"
	"github.com/podonamu/sori/internal/progress"
	"github.com/podonamu/sori/internal/transcribe"
)

// State is the session lifecycle phase.
type State string

const (
	// StateIdle means no session is active.
	StateIdle State = "IDLE"
	// StateReading means targets are loaded but listening has not started.
	StateReading State = "READING"
	// StateListening means the transcript source is live and every update
	// is evaluated against the current target verse.
	StateListening State = "LISTENING"
	// StateCompleted is the terminal per-session state after the last
	// target verse matched. A new selection starts the next session.
	StateCompleted State = "SESSION_COMPLETED"
	// StateError means the transcript source is unusable.
	StateError State = "ERROR"
)

var (
	// ErrNoVerses means the selected book or range has no text data.
	ErrNoVerses = errors.New("session: no verses in selection")

	// ErrAlreadyRead means the resume skip covers the entire selection.
	ErrAlreadyRead = errors.New("session: selection already fully read")

	// ErrState means the operation is not valid in the current state.
	ErrState = errors.New("session: invalid state")
)

// Update describes what a controller operation changed, for pushing to the
// client. Matched and Next are nil when no verse matched or no verse remains.
type Update struct {
	State         State
	Result        match.Result
	Matched       *bible.Verse
	Next          *bible.Verse
	Certification string
	VersesRead    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMetrics sets the instrument set. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns one user's active session. All methods are safe for
// concurrent use, though in practice events arrive serially from a single
// connection loop.
type Controller struct {
	log     *slog.Logger
	engine  *match.Engine
	source  transcribe.Source
	store   progress.Store
	verses  bible.Source
	metrics *observe.Metrics
	now     func() time.Time

	mu               sync.Mutex
	username         string
	prog             progress.UserProgress
	state            State
	targets          []bible.Verse
	currentIndex     int
	initialSkipCount int
	matchedLog       []string
	certification    string
}

// New creates a Controller for username with their progress loaded at login.
func New(username string, prog progress.UserProgress, engine *match.Engine,
	source transcribe.Source, verses bible.Source, store progress.Store, opts ...Option) *Controller {
	c := &Controller{
		log:      slog.Default(),
		engine:   engine,
		source:   source,
		store:    store,
		verses:   verses,
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
		username: username,
		prog:     prog,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the user's current durable progress snapshot.
func (c *Controller) Progress() progress.UserProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prog.Clone()
}

// Targets returns the session's target verses. Nil outside a session.
func (c *Controller) Targets() []bible.Verse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets
}

// InitialSkipCount returns how many leading targets the resume pre-skipped.
func (c *Controller) InitialSkipCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialSkipCount
}

// MatchedLog returns the citations and text matched so far this session.
func (c *Controller) MatchedLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.matchedLog))
	copy(out, c.matchedLog)
	return out
}

// Certification returns the last session-end message, empty while reading.
func (c *Controller) Certification() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.certification
}

// Begin loads the target verses for a chapter range and moves to READING.
// When the user's bookmark sits inside the selection of the same book, the
// verses up to and including it are pre-skipped; they still count toward
// chapter completion at session end. A selection the bookmark already covers
// entirely returns [ErrAlreadyRead].
func (c *Controller) Begin(book string, startChapter, endChapter int) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateCompleted && c.state != StateError {
		return Update{}, fmt.Errorf("%w: begin from %s", ErrState, c.state)
	}

	targets := c.verses.VersesForRange(book, startChapter, endChapter)
	if len(targets) == 0 {
		return Update{}, fmt.Errorf("%w: %s %d-%d", ErrNoVerses, book, startChapter, endChapter)
	}

	skip := resumeSkip(targets, c.prog)
	if skip >= len(targets) {
		return Update{}, fmt.Errorf("%w: %s %d-%d", ErrAlreadyRead, book, startChapter, endChapter)
	}

	c.state = StateReading
	c.targets = targets
	c.initialSkipCount = skip
	c.currentIndex = skip
	c.matchedLog = nil
	c.certification = ""

	c.log.Info("session started",
		"user", c.username,
		"book", book,
		"chapters", fmt.Sprintf("%d-%d", startChapter, endChapter),
		"targets", len(targets),
		"skipped", skip)

	next := targets[skip]
	return Update{State: c.state, Next: &next}, nil
}

// StartListening activates the transcript source and moves to LISTENING.
// An unsupported environment routes to ERROR instead.
func (c *Controller) StartListening(ctx context.Context) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReading {
		return Update{}, fmt.Errorf("%w: listen from %s", ErrState, c.state)
	}
	if err := c.source.Start(ctx); err != nil {
		if transcribe.IsFatal(err) {
			c.state = StateError
		}
		return Update{State: c.state}, fmt.Errorf("session: start source: %w", err)
	}
	c.state = StateListening
	next := c.targets[c.currentIndex]
	return Update{State: c.state, Next: &next}, nil
}

// HandleTranscript evaluates one transcript update against the current
// target verse. A failed match is a silent no-op. A successful match either
// advances to the next verse, preparing the source for it, or completes the
// session when the matched verse was the last target.
func (c *Controller) HandleTranscript(ctx context.Context, transcript string) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateListening {
		return Update{State: c.state}, nil
	}

	target := c.targets[c.currentIndex]
	result := c.engine.Evaluate(&target, transcript)
	if !result.Matched {
		return Update{State: c.state, Result: result, Next: &target}, nil
	}

	c.matchedLog = append(c.matchedLog, target.Ref()+" "+target.Text)
	c.currentIndex++

	if c.currentIndex >= len(c.targets) {
		return c.complete(ctx, result, target)
	}

	if err := c.source.Advance(ctx); err != nil {
		c.log.Warn("advance transcript source", "err", err)
	}
	next := c.targets[c.currentIndex]
	return Update{State: c.state, Result: result, Matched: &target, Next: &next}, nil
}

// complete finishes the session after the final verse matched. Caller holds
// the lock.
func (c *Controller) complete(ctx context.Context, result match.Result, last bible.Verse) (Update, error) {
	c.state = StateCompleted
	if err := c.source.Stop(); err != nil {
		c.log.Warn("stop transcript source", "err", err)
	}
	if err := c.source.Reset(); err != nil {
		c.log.Warn("reset transcript source", "err", err)
	}

	first := c.targets[c.initialSkipCount]
	read := len(c.targets) - c.initialSkipCount
	c.certification = fmt.Sprintf("%s %d장 %d절 ~ %s %d장 %d절 (총 %d절) 읽기 완료!",
		first.Book, first.Chapter, first.Verse,
		last.Book, last.Chapter, last.Verse, read)

	c.reconcile(ctx)

	c.log.Info("session completed",
		"user", c.username,
		"verses_read", read,
		"last", last.Ref())

	return Update{
		State:         c.state,
		Result:        result,
		Matched:       &last,
		Certification: c.certification,
		VersesRead:    read,
	}, nil
}

// Stop ends the session manually and returns to IDLE. Verses matched so far
// are settled into durable progress; a session with nothing newly read
// persists nothing.
func (c *Controller) Stop(ctx context.Context) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateListening && c.state != StateReading {
		return Update{}, fmt.Errorf("%w: stop from %s", ErrState, c.state)
	}
	if err := c.source.Stop(); err != nil {
		c.log.Warn("stop transcript source", "err", err)
	}

	read := c.currentIndex - c.initialSkipCount
	if read > 0 {
		first := c.targets[c.initialSkipCount]
		last := c.targets[c.currentIndex-1]
		c.certification = fmt.Sprintf("%s %d장 %d절 ~ %s %d장 %d절 (총 %d절) 읽음 (세션 중지).",
			first.Book, first.Chapter, first.Verse,
			last.Book, last.Chapter, last.Verse, read)
		c.reconcile(ctx)
	} else {
		c.certification = "이번 세션에서 읽은 구절이 없습니다."
	}

	c.state = StateIdle
	c.log.Info("session stopped", "user", c.username, "verses_read", read)

	return Update{State: c.state, Certification: c.certification, VersesRead: read}, nil
}

// Retry restarts the transcript source for another attempt at the current
// verse. A full stop/start cycle discards any lingering buffered speech.
// The target verse does not change.
func (c *Controller) Retry(ctx context.Context) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateListening {
		return Update{}, fmt.Errorf("%w: retry from %s", ErrState, c.state)
	}
	if err := c.source.Restart(ctx); err != nil {
		if transcribe.IsFatal(err) {
			c.state = StateError
		}
		return Update{State: c.state}, fmt.Errorf("session: restart source: %w", err)
	}
	target := c.targets[c.currentIndex]
	return Update{State: c.state, Next: &target}, nil
}

// HandleSourceError folds a recogniser error into the session. Fatal errors
// route to ERROR; everything else is advisory and leaves the state alone.
// The returned flag reports whether the session is still usable.
func (c *Controller) HandleSourceError(err error) (Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if transcribe.IsFatal(err) {
		c.state = StateError
		c.log.Error("transcript source unusable", "user", c.username, "err", err)
		return Update{State: c.state}, false
	}
	c.log.Warn("transcript source error", "user", c.username, "err", err)
	return Update{State: c.state}, true
}

// reconcile settles the session into durable progress and persists it.
// Persistence failure is advisory; the in-memory progress and the session's
// local state stay valid either way. Caller holds the lock.
func (c *Controller) reconcile(ctx context.Context) {
	sum := progress.SessionSummary{
		Targets:          c.targets,
		InitialSkipCount: c.initialSkipCount,
		CompletedCount:   c.currentIndex,
		EndedAt:          c.now(),
	}
	updated, changed := progress.Reconcile(sum, c.verses, c.prog)
	if !changed {
		return
	}
	c.prog = updated
	if err := c.store.Save(ctx, c.username, updated); err != nil {
		c.metrics.PersistFailures.Add(ctx, 1)
		c.log.Warn("persist progress", "user", c.username, "err", err)
	}
}

// resumeSkip counts the leading targets the bookmark already covers. Only a
// bookmark in the same book skips anything; a different book always reads
// the full selection.
func resumeSkip(targets []bible.Verse, prog progress.UserProgress) int {
	if prog.LastReadBook == "" || prog.LastReadBook != targets[0].Book {
		return 0
	}
	skip := 0
	for _, v := range targets {
		if v.Chapter > prog.LastReadChapter ||
			(v.Chapter == prog.LastReadChapter && v.Verse > prog.LastReadVerse) {
			break
		}
		skip++
	}
	return skip
}
