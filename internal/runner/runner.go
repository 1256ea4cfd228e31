package runner

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrFailedToCreateScheduler = errors.New("failed to create scheduler")
	ErrJobAlreadyExists        = errors.New("job already registered")
	ErrFailedToCreateJob       = errors.New("failed to create job")
	ErrJobNotFound             = errors.New("job not found")
)

type options struct {
	clock clockwork.Clock
}

type Option func(*options)

// WithClock drives the scheduler from clock instead of wall time.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Runner owns a gocron scheduler and the named jobs registered on it.
type Runner struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

func New(opts ...Option) (*Runner, error) {
	o := &options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(o)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(o.clock),
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scheduler")
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateScheduler, err)
	}

	return &Runner{
		scheduler: scheduler,
		clock:     o.clock,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Every runs task at a fixed interval. Runs never overlap; a tick that finds
// the previous run still busy is rescheduled.
func (r *Runner) Every(name string, interval time.Duration, task func()) error {
	return r.register(name, gocron.DurationJob(interval), task, "interval")
}

// After runs task once, delay from now.
func (r *Runner) After(name string, delay time.Duration, task func()) error {
	at := r.clock.Now().Add(delay)
	return r.register(name, gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)), task, "once")
}

func (r *Runner) register(name string, definition gocron.JobDefinition, task func(), kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		log.Error().Str("job", name).Msg("Job already registered")
		return ErrJobAlreadyExists
	}

	job, err := r.scheduler.NewJob(
		definition,
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithTags(strings.Split(name, ".")...),
	)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("Failed to schedule job")
		return fmt.Errorf("%w: %v", ErrFailedToCreateJob, err)
	}
	r.jobs[name] = job

	log.Debug().Str("job", name).Str("kind", kind).Msg("Job registered with scheduler")
	return nil
}

// RunNow executes the named job immediately, outside its schedule.
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	job, exists := r.jobs[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.RunNow()
}

// NextRun returns the next scheduled run of the named job.
func (r *Runner) NextRun(name string) (time.Time, error) {
	r.mu.RLock()
	job, exists := r.jobs[name]
	r.mu.RUnlock()

	if !exists {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.NextRun()
}

// NextRuns returns the next run of every job by name.
func (r *Runner) NextRuns() map[string]time.Time {
	result := make(map[string]time.Time)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, job := range r.jobs {
		nr, err := job.NextRun()
		if err != nil {
			log.Error().Err(err).Str("job", name).Msg("Error getting next run time")
			result[name] = time.Time{}
			continue
		}
		result[name] = nr
	}
	return result
}

func (r *Runner) Start() {
	r.scheduler.Start()
	log.Info().Int("jobs", len(r.jobs)).Msg("Scheduler started")
}

// Stop shuts the scheduler down, waiting for running jobs.
func (r *Runner) Stop() error {
	return r.scheduler.Shutdown()
}
