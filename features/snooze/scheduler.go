package snooze

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"siteguard/features/settings"
	"siteguard/internal/collector"
	"siteguard/internal/config"
	"siteguard/internal/runner"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	sweepJob   = "snooze.sweep"
	startupJob = "snooze.startup"

	minuteMillis = int64(time.Minute / time.Millisecond)
)

var (
	ErrAlreadyStarted = errors.New("snooze scheduler already started")
	ErrEmptySite      = errors.New("site must not be empty")
	ErrNegativeShift  = errors.New("simulated minutes must not be negative")
)

// Trigger asks for a rule pass.
type Trigger interface {
	Trigger(source string) bool
}

// Notifier tells control clients a sweep re-enabled sites. Delivery is best
// effort.
type Notifier interface {
	AutoToggleApplied(ctx context.Context, siteStates map[string]bool)
}

// SweepResult describes what one sweep changed.
type SweepResult struct {
	Flipped    []string        `json:"flipped"`
	Stale      []string        `json:"stale,omitempty"`
	Pending    int             `json:"pending"`
	SiteStates map[string]bool `json:"siteStates"`
}

// Scheduler re-enables snoozed sites once their absolute deadline passes.
type Scheduler struct {
	store    *settings.Store
	trigger  Trigger
	notifier Notifier
	cfg      config.SnoozeConfig
	clock    clockwork.Clock

	mu     sync.Mutex
	runner *runner.Runner

	tracer  trace.Tracer
	metrics *collector.MetricsCollector
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithNotifier sets who hears about auto-toggles. Without one they are only logged.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

func New(store *settings.Store, trigger Trigger, cfg config.SnoozeConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		trigger: trigger,
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		tracer:  otel.Tracer("siteguard/features/snooze"),
		metrics: collector.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) now() int64 {
	return s.clock.Now().UnixMilli()
}

// SetSiteEnabled toggles one site by hand. Disabling starts a snooze of the
// configured duration; enabling clears any pending snooze right away. Both
// keys are written in a single commit.
func (s *Scheduler) SetSiteEnabled(ctx context.Context, site string, enabled bool) error {
	if site == "" {
		return ErrEmptySite
	}

	now := s.now()
	var deadline int64

	err := s.store.Update(ctx, func(tx *settings.Tx) error {
		states, err := tx.SiteStates()
		if err != nil {
			return err
		}
		schedules, err := tx.AutoToggleSchedules()
		if err != nil {
			return err
		}

		if enabled {
			states[site] = true
			delete(schedules, site)
		} else {
			minutes, err := tx.AutoToggleTime()
			if err != nil {
				return err
			}
			deadline = now + int64(minutes)*minuteMillis
			states[site] = false
			schedules[site] = deadline
		}

		if err := tx.SetSiteStates(states); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(schedules)
	})
	if err != nil {
		return err
	}

	if enabled {
		log.Info().Str("site", site).Msg("Site blocking re-enabled")
	} else {
		log.Info().Str("site", site).Time("wake_at", time.UnixMilli(deadline)).Msg("Site snoozed")
	}
	return nil
}

// Sweep re-enables every site whose deadline is at or before now. All due
// sites are committed together, followed by one rule trigger and one
// notification. Schedule entries for sites that are already enabled are
// dropped in the same commit.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "snooze.sweep")
	defer span.End()

	now := s.now()
	var res SweepResult

	err := s.store.Update(ctx, func(tx *settings.Tx) error {
		res = SweepResult{}

		schedules, err := tx.AutoToggleSchedules()
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			return nil
		}
		states, err := tx.SiteStates()
		if err != nil {
			return err
		}

		for site, deadline := range schedules {
			switch {
			case now >= deadline:
				states[site] = true
				delete(schedules, site)
				res.Flipped = append(res.Flipped, site)
			case isEnabled(states, site):
				delete(schedules, site)
				res.Stale = append(res.Stale, site)
			default:
				res.Pending++
			}
		}
		res.SiteStates = states

		if len(res.Flipped) == 0 && len(res.Stale) == 0 {
			return nil
		}
		if err := tx.SetSiteStates(states); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(schedules)
	})
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Snooze sweep failed")
		return SweepResult{}, err
	}

	sort.Strings(res.Flipped)
	sort.Strings(res.Stale)
	span.SetAttributes(
		attribute.Int("flipped", len(res.Flipped)),
		attribute.Int("pending", res.Pending),
	)
	s.metrics.SweepCompleted(len(res.Flipped), res.Pending)

	if len(res.Stale) > 0 {
		log.Warn().Strs("sites", res.Stale).Msg("Dropped snooze entries for sites that were already enabled")
	}

	if len(res.Flipped) == 0 {
		log.Trace().Int("pending", res.Pending).Msg("Snooze sweep found nothing due")
		return res, nil
	}

	log.Info().Strs("sites", res.Flipped).Int("pending", res.Pending).Msg("Snoozed sites re-enabled")

	if s.trigger != nil {
		s.trigger.Trigger("snooze")
	}
	if s.notifier != nil {
		s.notifier.AutoToggleApplied(ctx, res.SiteStates)
	}
	return res, nil
}

func isEnabled(states map[string]bool, site string) bool {
	enabled, ok := states[site]
	return !ok || enabled
}

// SimulateTimePassing moves every pending deadline minutes earlier and sweeps.
// Zero uses the configured default; negative values are rejected.
func (s *Scheduler) SimulateTimePassing(ctx context.Context, minutes int) (SweepResult, error) {
	if minutes < 0 {
		return SweepResult{}, fmt.Errorf("%w: %d", ErrNegativeShift, minutes)
	}
	if minutes == 0 {
		minutes = s.cfg.DefaultMinutes
	}
	shift := int64(minutes) * minuteMillis

	err := s.store.Update(ctx, func(tx *settings.Tx) error {
		schedules, err := tx.AutoToggleSchedules()
		if err != nil {
			return err
		}
		for site, deadline := range schedules {
			schedules[site] = deadline - shift
		}
		return tx.SetAutoToggleSchedules(schedules)
	})
	if err != nil {
		return SweepResult{}, err
	}

	log.Debug().Int("minutes", minutes).Msg("Simulated time passing for snoozed sites")
	return s.Sweep(ctx)
}

// Start registers the recurring sweep and a one-off check shortly after
// startup, then starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner != nil {
		return ErrAlreadyStarted
	}

	r, err := runner.New(runner.WithClock(s.clock))
	if err != nil {
		return err
	}

	sweep := func() {
		if _, err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled snooze sweep failed")
		}
	}

	if err := r.Every(sweepJob, s.cfg.SweepInterval, sweep); err != nil {
		_ = r.Stop()
		return err
	}
	if err := r.After(startupJob, s.cfg.StartupCheckDelay, sweep); err != nil {
		_ = r.Stop()
		return err
	}

	r.Start()
	s.runner = r

	log.Info().
		Dur("interval", s.cfg.SweepInterval).
		Dur("startup_delay", s.cfg.StartupCheckDelay).
		Msg("Snooze scheduler started")
	return nil
}

// NextSweep reports when the recurring sweep fires next.
func (s *Scheduler) NextSweep() (time.Time, error) {
	s.mu.Lock()
	r := s.runner
	s.mu.Unlock()

	if r == nil {
		return time.Time{}, runner.ErrJobNotFound
	}
	return r.NextRun(sweepJob)
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	r := s.runner
	s.runner = nil
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	log.Info().Msg("Snooze scheduler stopping")
	return r.Stop()
}
