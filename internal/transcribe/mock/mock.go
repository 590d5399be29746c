// Package mock provides a scripted transcript source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/podonamu/sori/internal/transcribe"
)

// Source is a test double implementing [transcribe.Source]. Feed simulated
// recogniser output with [Source.Feed] and inject errors with
// [Source.FeedError]; call counters record control operations.
type Source struct {
	mu         sync.Mutex
	transcript string
	listening  bool

	updates chan string
	errs    chan error

	StartCalls   int
	StopCalls    int
	ResetCalls   int
	AdvanceCalls int
	RestartCalls int
}

var _ transcribe.Source = (*Source)(nil)

// New creates an idle mock source.
func New() *Source {
	return &Source{
		updates: make(chan string, 16),
		errs:    make(chan error, 4),
	}
}

// Feed appends text to the transcript the way a cumulative recogniser would
// and signals an update. No-op while the source is not listening.
func (s *Source) Feed(text string) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.transcript += text
	snapshot := s.transcript
	s.mu.Unlock()

	select {
	case s.updates <- snapshot:
	default:
	}
}

// FeedError delivers a recogniser error.
func (s *Source) FeedError(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.listening = true
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.listening = false
	return nil
}

func (s *Source) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
	s.transcript = ""
	return nil
}

func (s *Source) Advance(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AdvanceCalls++
	s.transcript = ""
	return nil
}

func (s *Source) Restart(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RestartCalls++
	s.transcript = ""
	s.listening = true
	return nil
}

func (s *Source) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

func (s *Source) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Source) Updates() <-chan string { return s.updates }

func (s *Source) Errors() <-chan error { return s.errs }
