package applier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"siteguard/features/rules"
	"siteguard/features/settings"
	"siteguard/internal/collector"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrPassInProgress = errors.New("a rule pass is already running")

// Host is the live rule table the applier replaces.
type Host interface {
	GetDynamicRules(ctx context.Context) ([]rules.Rule, error)
	UpdateDynamicRules(ctx context.Context, opts rules.UpdateOptions) error
}

// Source provides the settings a pass compiles from.
type Source interface {
	View(ctx context.Context) (*settings.Settings, error)
}

// Result summarises one completed pass.
type Result struct {
	Removed   int `json:"removed"`
	Installed int `json:"installed"`
}

// Applier replaces the host's rule table with the compiler's output. At most
// one pass runs at a time; triggers arriving meanwhile collapse into a single
// follow-up pass.
type Applier struct {
	host   Host
	source Source
	opts   []rules.Option

	mu         sync.Mutex
	state      State
	queuedFrom string
	passes     sync.WaitGroup
	last       Status

	tracer  trace.Tracer
	metrics *collector.MetricsCollector
}

// Status describes the most recent finished pass.
type Status struct {
	Result
	// Seq counts finished passes since the applier was created.
	Seq        int64     `json:"seq"`
	Source     string    `json:"source,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

func New(host Host, source Source, opts ...rules.Option) *Applier {
	return &Applier{
		host:    host,
		source:  source,
		opts:    opts,
		tracer:  otel.Tracer("siteguard/features/applier"),
		metrics: collector.Get(),
	}
}

// Trigger requests a pass in the background. It returns false when the
// request was folded into a pass that is already queued.
func (a *Applier) Trigger(source string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateIdle:
		a.state = StateRunning
		a.passes.Add(1)
		go a.continueWith(source)
		return true

	case StateRunning:
		a.state = StateQueued
		a.queuedFrom = source
		log.Debug().Str("source", source).Msg("Rule pass queued behind the running one")
		return true
	}

	a.metrics.TriggerCoalesced()
	log.Debug().Str("source", source).Msg("Rule pass request coalesced into the queued pass")
	return false
}

// Apply runs one pass synchronously. It fails with ErrPassInProgress rather
// than overlapping a background pass.
func (a *Applier) Apply(ctx context.Context) (Result, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return Result{}, ErrPassInProgress
	}
	a.state = StateRunning
	a.passes.Add(1)
	a.mu.Unlock()

	res, err := a.pass(ctx, "apply")

	if next, again := a.complete(); again {
		go a.continueWith(next)
	} else {
		a.passes.Done()
	}
	return res, err
}

// Wait blocks until no pass is running or queued.
func (a *Applier) Wait() {
	a.passes.Wait()
}

// State reports the current token.
func (a *Applier) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Last returns the outcome of the most recent finished pass.
func (a *Applier) Last() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// continueWith owns one count on a.passes and releases it once no pass is
// queued any more.
func (a *Applier) continueWith(source string) {
	defer a.passes.Done()

	for {
		_, _ = a.pass(context.Background(), source)

		next, again := a.complete()
		if !again {
			return
		}
		source = next
	}
}

// complete moves the token out of Running. A queued request becomes the
// next running pass.
func (a *Applier) complete() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateQueued {
		a.state = StateRunning
		return a.queuedFrom, true
	}
	a.state = StateIdle
	return "", false
}

// pass performs fetch, remove, compile, add. Steps run strictly in order and a
// host rejection ends the pass without retry.
func (a *Applier) pass(ctx context.Context, source string) (res Result, err error) {
	ctx, span := a.tracer.Start(ctx, "applier.pass", trace.WithAttributes(attribute.String("source", source)))
	startedAt := time.Now()
	step := ""

	defer func() {
		duration := time.Since(startedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step)
			a.metrics.RulePassFailed(source, step, duration)
			log.Error().Err(err).Str("source", source).Str("step", step).Msg("Rule pass aborted")
		} else {
			a.metrics.RulePassSucceeded(source, res.Installed, duration)
			log.Info().
				Str("source", source).
				Int("removed", res.Removed).
				Int("installed", res.Installed).
				Dur("duration", duration).
				Msg("Rule pass completed")
		}
		span.End()

		status := Status{Result: res, Source: source, FinishedAt: time.Now()}
		if err != nil {
			status.Error = err.Error()
		}
		a.mu.Lock()
		status.Seq = a.last.Seq + 1
		a.last = status
		a.mu.Unlock()
	}()

	step = "get"
	installed, err := a.host.GetDynamicRules(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch installed rules: %w", err)
	}

	if len(installed) > 0 {
		step = "remove"
		if err = a.host.UpdateDynamicRules(ctx, rules.UpdateOptions{RemoveRuleIDs: rules.IDs(installed)}); err != nil {
			return res, fmt.Errorf("remove installed rules: %w", err)
		}
		res.Removed = len(installed)
	}

	step = "compile"
	snapshot, err := a.source.View(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	compiled := rules.CompileSettings(snapshot, a.opts...)

	if len(compiled) > 0 {
		step = "add"
		if err = a.host.UpdateDynamicRules(ctx, rules.UpdateOptions{AddRules: compiled}); err != nil {
			return res, fmt.Errorf("add compiled rules: %w", err)
		}
	}
	res.Installed = len(compiled)

	return res, nil
}
