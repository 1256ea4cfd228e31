package hider

import (
	"context"
	"errors"
	"sync"
	"time"

	"siteguard/features/settings"
	"siteguard/internal/config"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// AckElementsHidden is the status a page answers a hideElements message with.
const AckElementsHidden = "Elements hidden"

var ErrSessionClosed = errors.New("hider session closed")

// Source provides the current settings.
type Source interface {
	View(ctx context.Context) (*settings.Settings, error)
}

// Session drives the hider for one loaded document: once after a short
// settle delay, again after a longer delay for late content, and whenever it
// is notified that the configuration changed.
type Session struct {
	hider  *Hider
	doc    Document
	source Source
	cfg    config.HiderConfig
	clock  clockwork.Clock

	mu      sync.Mutex
	timers  []clockwork.Timer
	pending sync.WaitGroup
	closed  bool
	runs    int
	last    Report
}

type SessionOption func(*Session)

func WithSessionClock(clock clockwork.Clock) SessionOption {
	return func(s *Session) {
		s.clock = clock
	}
}

func (h *Hider) NewSession(doc Document, source Source, cfg config.HiderConfig, opts ...SessionOption) *Session {
	s := &Session{
		hider:  h,
		doc:    doc,
		source: source,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loaded schedules the settle and late runs.
func (s *Session) Loaded(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	s.schedule(ctx, "settle", s.cfg.SettleDelay)
	s.schedule(ctx, "late", s.cfg.LateDelay)
	return nil
}

func (s *Session) schedule(ctx context.Context, reason string, delay time.Duration) {
	s.pending.Add(1)
	t := s.clock.AfterFunc(delay, func() {
		defer s.pending.Done()
		if _, err := s.run(ctx, reason); err != nil && !errors.Is(err, ErrSessionClosed) {
			log.Warn().Err(err).Str("reason", reason).Msg("Scheduled element hider run failed")
		}
	})

	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
}

// Notify runs the hider now and returns the page acknowledgement.
func (s *Session) Notify(ctx context.Context) (string, Report, error) {
	report, err := s.run(ctx, "notify")
	if err != nil {
		return "", report, err
	}
	return AckElementsHidden, report, nil
}

func (s *Session) run(ctx context.Context, reason string) (Report, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Report{}, ErrSessionClosed
	}

	snapshot, err := s.source.View(ctx)
	if err != nil {
		log.Error().Err(err).Str("hostname", s.doc.Hostname()).Msg("Failed to load settings for element hider")
		return Report{}, err
	}

	report := s.hider.Run(s.doc, snapshot)

	s.mu.Lock()
	s.runs++
	s.last = report
	s.mu.Unlock()

	log.Trace().Str("hostname", s.doc.Hostname()).Str("reason", reason).Int("hidden", report.Total()).Msg("Element hider ran")
	return report, nil
}

// Wait blocks until every scheduled run has fired or been cancelled.
func (s *Session) Wait() {
	s.pending.Wait()
}

// Runs returns how many times the hider ran and its latest report.
func (s *Session) Runs() (int, Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.last
}

// Close cancels scheduled runs.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, t := range s.timers {
		if t.Stop() {
			s.pending.Done()
		}
	}
	s.timers = nil
}
