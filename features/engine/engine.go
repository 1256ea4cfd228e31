package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"siteguard/features/applier"
	"siteguard/features/hider"
	"siteguard/features/messaging"
	"siteguard/features/rules"
	"siteguard/features/ruletable"
	"siteguard/features/settings"
	"siteguard/features/snooze"
	"siteguard/internal/config"
	"siteguard/internal/runner"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrAlreadyStarted = errors.New("engine already started")
)

const startupJob = "rules.startup"

// Keys whose change requires a new rule pass.
var ruleKeys = []settings.Key{
	settings.KeyBlockedSites,
	settings.KeySiteStates,
	settings.KeyBlockedElements,
	settings.KeyBlockingEnabled,
}

// Keys whose change requires pages to re-run the element hider.
var elementKeys = []settings.Key{
	settings.KeyBlockedElements,
	settings.KeyElementStates,
}

// Engine is the background core. It reacts to settings changes and control
// messages by re-applying rules, sweeping snoozes and notifying pages.
type Engine struct {
	cfg   *config.Config
	clock clockwork.Clock

	store   *settings.Store
	table   *ruletable.Table
	hub     *messaging.Hub
	applier *applier.Applier
	snooze  *snooze.Scheduler
	hider   *hider.Hider

	mu          sync.Mutex
	started     bool
	subscribed  atomic.Bool
	unsubscribe func()
	runner      *runner.Runner
	notifies    sync.WaitGroup
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func New(cfg *config.Config, store *settings.Store, table *ruletable.Table, hub *messaging.Hub, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		store: store,
		table: table,
		hub:   hub,
		hider: hider.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.applier = applier.New(table, store, rules.WithPriority(cfg.Rules.Priority))
	e.snooze = snooze.New(store, sweepTrigger{e}, cfg.Snooze,
		snooze.WithClock(e.clock),
		snooze.WithNotifier(hub),
	)
	return e
}

// sweepTrigger forwards a sweep's rule request only while nobody listens to
// the store. Once started, the sweep's siteStates commit reaches onChange,
// which triggers the pass itself.
type sweepTrigger struct {
	e *Engine
}

func (t sweepTrigger) Trigger(source string) bool {
	if t.e.subscribed.Load() {
		return false
	}
	return t.e.applier.Trigger(source)
}

func (e *Engine) Store() *settings.Store { return e.store }
func (e *Engine) Table() *ruletable.Table { return e.table }
func (e *Engine) Hub() *messaging.Hub { return e.hub }
func (e *Engine) Applier() *applier.Applier { return e.applier }
func (e *Engine) Snooze() *snooze.Scheduler { return e.snooze }
func (e *Engine) Hider() *hider.Hider { return e.hider }
func (e *Engine) Config() *config.Config { return e.cfg }

// Start seeds first-run defaults, subscribes to settings changes, schedules
// the startup rule pass and starts the snooze scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	if err := e.store.SeedDefaults(ctx, e.cfg.Snooze.DefaultMinutes); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	e.unsubscribe = e.store.Subscribe(e.onChange)
	e.subscribed.Store(true)

	r, err := runner.New(runner.WithClock(e.clock))
	if err != nil {
		e.dropSubscription()
		return err
	}
	if err := r.After(startupJob, e.cfg.Rules.StartupDelay, func() { e.applier.Trigger("startup") }); err != nil {
		e.dropSubscription()
		_ = r.Stop()
		return err
	}
	r.Start()
	e.runner = r

	if err := e.snooze.Start(context.WithoutCancel(ctx)); err != nil {
		e.dropSubscription()
		_ = r.Stop()
		return fmt.Errorf("start snooze scheduler: %w", err)
	}

	e.started = true
	log.Info().Dur("startup_delay", e.cfg.Rules.StartupDelay).Msg("Engine started")
	return nil
}

func (e *Engine) dropSubscription() {
	e.subscribed.Store(false)
	e.unsubscribe()
}

func (e *Engine) onChange(ctx context.Context, changes []settings.Change) {
	if settings.ContainsKey(changes, ruleKeys...) {
		e.applier.Trigger("settings")
	}
	if settings.ContainsKey(changes, elementKeys...) {
		e.notifyPages(ctx)
	}
}

// notifyPages broadcasts in the background. Settings listeners run inside the
// writer's call.
func (e *Engine) notifyPages(ctx context.Context) {
	e.notifies.Add(1)
	go func() {
		defer e.notifies.Done()
		e.hub.NotifyPages(context.WithoutCancel(ctx))
	}()
}

// Handle answers one control message.
func (e *Engine) Handle(ctx context.Context, msg messaging.Message) (messaging.Message, error) {
	reply := messaging.Message{Action: msg.Action}

	switch msg.Action {
	case messaging.ActionUpdateRules:
		triggered := e.applier.Trigger("message")
		e.notifyPages(ctx)
		reply.Status = "queued"
		if !triggered {
			reply.Status = "coalesced"
		}
		return reply, nil

	case messaging.ActionCheckAutoToggle:
		res, err := e.snooze.Sweep(ctx)
		if err != nil {
			return reply, err
		}
		reply.Result = res
		reply.SiteStates = res.SiteStates
		return reply, nil

	case messaging.ActionSimulateTimePassing:
		res, err := e.snooze.SimulateTimePassing(ctx, msg.Minutes)
		if err != nil {
			return reply, err
		}
		reply.Result = res
		reply.SiteStates = res.SiteStates
		return reply, nil
	}

	return reply, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
}

// Stop halts background work and waits for in-flight passes. It does not
// close the store, table or hub.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	unsubscribe, r := e.unsubscribe, e.runner
	e.unsubscribe, e.runner = nil, nil
	e.mu.Unlock()

	e.subscribed.Store(false)
	unsubscribe()

	var errs []error
	if err := r.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := e.snooze.Stop(); err != nil {
		errs = append(errs, err)
	}

	e.applier.Wait()
	e.notifies.Wait()

	log.Info().Msg("Engine stopped")
	return errors.Join(errs...)
}
