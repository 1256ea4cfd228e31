package hider

import (
	"errors"
	"fmt"
	"strings"

	"siteguard/features/settings"
	"siteguard/internal/collector"

	"github.com/rs/zerolog/log"
)

// Target is one blocked element that survived filtering, with the selector
// that will actually be applied.
type Target struct {
	Element  settings.BlockedElement `json:"element"`
	Selector string                  `json:"selector"`
}

// EntryError reports a single entry that could not be applied. It never stops
// the remaining entries.
type EntryError struct {
	Element settings.BlockedElement `json:"element"`
	Err     error                   `json:"-"`
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Element.Key(), e.Err)
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// MarshalText lets reports carry the message through JSON.
func (e EntryError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// Plan is what the hider will do on one hostname.
type Plan struct {
	Hostname string       `json:"hostname"`
	Targets  []Target     `json:"targets"`
	Errors   []EntryError `json:"errors,omitempty"`
}

// Report is the outcome of applying a plan to a document.
type Report struct {
	Hostname string         `json:"hostname"`
	Hidden   map[string]int `json:"hidden"`
	Errors   []EntryError   `json:"errors,omitempty"`
}

// Total returns the number of elements hidden across selectors.
func (r Report) Total() int {
	total := 0
	for _, n := range r.Hidden {
		total += n
	}
	return total
}

type Hider struct {
	sanitizer SelectorSanitizer
	metrics   *collector.MetricsCollector
}

type Option func(*Hider)

// WithSanitizer replaces the default RegexSanitizer.
func WithSanitizer(s SelectorSanitizer) Option {
	return func(h *Hider) {
		h.sanitizer = s
	}
}

func New(opts ...Option) *Hider {
	h := &Hider{
		sanitizer: RegexSanitizer{},
		metrics:   collector.Get(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Plan keeps the entries whose domain is part of hostname and whose
// domain:selector state is not explicitly false, then sanitizes each selector.
func (h *Hider) Plan(hostname string, elements []settings.BlockedElement, states map[string]bool) Plan {
	hostname = strings.ToLower(hostname)
	plan := Plan{Hostname: hostname, Targets: []Target{}}

	for _, e := range elements {
		domain := strings.ToLower(strings.TrimSpace(e.Domain))
		if domain == "" || !strings.Contains(hostname, domain) {
			continue
		}
		if enabled, ok := states[e.Key()]; ok && !enabled {
			continue
		}

		selector, err := h.sanitizer.Sanitize(e.Selector)
		if err != nil {
			h.metrics.SelectorError("sanitize")
			log.Warn().Err(err).Str("domain", e.Domain).Str("selector", e.Selector).Msg("Skipping malformed blocked element")
			plan.Errors = append(plan.Errors, EntryError{Element: e, Err: err})
			continue
		}

		plan.Targets = append(plan.Targets, Target{Element: e, Selector: selector})
	}

	return plan
}

// PlanSettings plans against a settings snapshot.
func (h *Hider) PlanSettings(hostname string, s *settings.Settings) Plan {
	return h.Plan(hostname, s.BlockedElements, s.ElementStates)
}

// Apply hides the plan's targets in doc. Invalid selectors are reported per
// entry and the others still run.
func (h *Hider) Apply(doc Document, plan Plan) Report {
	report := Report{
		Hostname: plan.Hostname,
		Hidden:   make(map[string]int, len(plan.Targets)),
		Errors:   append([]EntryError(nil), plan.Errors...),
	}

	for _, t := range plan.Targets {
		n, err := doc.Hide(t.Selector)
		if err != nil {
			reason := "apply"
			if errors.Is(err, ErrInvalidSelector) {
				reason = "invalid"
			}
			h.metrics.SelectorError(reason)
			log.Warn().Err(err).Str("domain", t.Element.Domain).Str("selector", t.Selector).Msg("Failed to hide blocked element")
			report.Errors = append(report.Errors, EntryError{Element: t.Element, Err: err})
			continue
		}
		report.Hidden[t.Selector] += n
	}

	if total := report.Total(); total > 0 {
		h.metrics.ElementsHidden(plan.Hostname, total)
		log.Debug().Str("hostname", plan.Hostname).Int("hidden", total).Msg("Elements hidden")
	}
	return report
}

// Run plans for the document's hostname and applies the result.
func (h *Hider) Run(doc Document, s *settings.Settings) Report {
	return h.Apply(doc, h.PlanSettings(doc.Hostname(), s))
}
