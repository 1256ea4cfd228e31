package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"siteguard/features/settings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Snoozer toggles a site and manages its snooze deadline.
type Snoozer interface {
	SetSiteEnabled(ctx context.Context, site string, enabled bool) error
}

// Site is one entry of the blocked site list as the control surface shows it.
type Site struct {
	Site    string     `json:"site"`
	Enabled bool       `json:"enabled"`
	WakeAt  *time.Time `json:"wakeAt,omitempty"`
}

// Element is one blocked element with its effective state.
type Element struct {
	settings.BlockedElement
	Enabled bool `json:"enabled"`
}

// Snapshot is everything the control surface renders.
type Snapshot struct {
	BlockingEnabled bool      `json:"blockingEnabled"`
	AutoToggleTime  int       `json:"autoToggleTime"`
	Sites           []Site    `json:"sites"`
	Elements        []Element `json:"elements"`
}

// Service edits settings on behalf of the control surface. Every edit is a
// single store commit; the engine reacts to the resulting change events.
type Service struct {
	store    *settings.Store
	snoozer  Snoozer
	validate *validator.Validate
}

func NewService(store *settings.Store, snoozer Snoozer) *Service {
	return &Service{
		store:    store,
		snoozer:  snoozer,
		validate: validator.New(),
	}
}

// Snapshot returns the current settings arranged for display.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	st, err := s.store.View(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	sites := lo.Map(st.BlockedSites, func(site string, _ int) Site {
		out := Site{Site: site, Enabled: st.SiteBlocked(site)}
		if deadline, ok := st.AutoToggleSchedules[site]; ok && !out.Enabled {
			wake := time.UnixMilli(deadline).UTC()
			out.WakeAt = &wake
		}
		return out
	})

	elements := lo.Map(st.BlockedElements, func(e settings.BlockedElement, _ int) Element {
		return Element{BlockedElement: e, Enabled: st.ElementEnabled(e)}
	})

	return Snapshot{
		BlockingEnabled: st.BlockingEnabled,
		AutoToggleTime:  st.AutoToggleTime,
		Sites:           sites,
		Elements:        elements,
	}, nil
}

// AddSite normalises raw and appends it to the blocked site list.
func (s *Service) AddSite(ctx context.Context, raw string) (string, error) {
	site, err := NormalizeSite(raw)
	if err != nil {
		return "", err
	}

	err = s.store.Update(ctx, func(tx *settings.Tx) error {
		sites, err := tx.BlockedSites()
		if err != nil {
			return err
		}
		if lo.ContainsBy(sites, func(existing string) bool { return strings.EqualFold(existing, site) }) {
			return fmt.Errorf("%w: %s", ErrSiteExists, site)
		}
		return tx.SetBlockedSites(append(sites, site))
	})
	if err != nil {
		return "", err
	}

	log.Info().Str("site", site).Msg("Site added")
	return site, nil
}

// DeleteSite removes site together with its state and any pending snooze.
func (s *Service) DeleteSite(ctx context.Context, site string) error {
	err := s.store.Update(ctx, func(tx *settings.Tx) error {
		sites, err := tx.BlockedSites()
		if err != nil {
			return err
		}
		if !lo.Contains(sites, site) {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, site)
		}

		states, err := tx.SiteStates()
		if err != nil {
			return err
		}
		schedules, err := tx.AutoToggleSchedules()
		if err != nil {
			return err
		}
		delete(states, site)
		delete(schedules, site)

		if err := tx.SetBlockedSites(lo.Without(sites, site)); err != nil {
			return err
		}
		if err := tx.SetSiteStates(states); err != nil {
			return err
		}
		return tx.SetAutoToggleSchedules(schedules)
	})
	if err != nil {
		return err
	}

	log.Info().Str("site", site).Msg("Site deleted")
	return nil
}

// SetSiteEnabled toggles blocking of one listed site. Disabling starts a snooze.
func (s *Service) SetSiteEnabled(ctx context.Context, site string, enabled bool) error {
	st, err := s.store.View(ctx)
	if err != nil {
		return err
	}
	if !lo.Contains(st.BlockedSites, site) {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, site)
	}
	return s.snoozer.SetSiteEnabled(ctx, site, enabled)
}

func (s *Service) SetBlockingEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.Update(ctx, func(tx *settings.Tx) error {
		return tx.SetBlockingEnabled(enabled)
	}); err != nil {
		return err
	}

	log.Info().Bool("enabled", enabled).Msg("Global blocking toggled")
	return nil
}

// SetAutoToggleTime sets the snooze length used by later disables. Pending
// snoozes keep their deadline.
func (s *Service) SetAutoToggleTime(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return ErrInvalidSnoozeLen
	}
	return s.store.Update(ctx, func(tx *settings.Tx) error {
		return tx.SetAutoToggleTime(minutes)
	})
}

func newElement(domain, selector string) settings.BlockedElement {
	return settings.BlockedElement{
		Domain:   strings.ToLower(strings.TrimSpace(domain)),
		Selector: strings.TrimSpace(selector),
	}
}

// AddElement appends a blocked element. Selectors are stored as typed; they
// are sanitised when a page applies them.
func (s *Service) AddElement(ctx context.Context, domain, selector string) (settings.BlockedElement, error) {
	el := newElement(domain, selector)
	if err := s.validate.Struct(el); err != nil {
		return el, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}

	err := s.store.Update(ctx, func(tx *settings.Tx) error {
		elements, err := tx.BlockedElements()
		if err != nil {
			return err
		}
		if lo.Contains(elements, el) {
			return fmt.Errorf("%w: %s", ErrElementExists, el.Key())
		}
		return tx.SetBlockedElements(append(elements, el))
	})
	if err != nil {
		return el, err
	}

	log.Info().Str("domain", el.Domain).Str("selector", el.Selector).Msg("Element added")
	return el, nil
}

// DeleteElement removes an element and its state entry.
func (s *Service) DeleteElement(ctx context.Context, domain, selector string) error {
	el := newElement(domain, selector)

	return s.store.Update(ctx, func(tx *settings.Tx) error {
		elements, err := tx.BlockedElements()
		if err != nil {
			return err
		}
		if !lo.Contains(elements, el) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, el.Key())
		}
		states, err := tx.ElementStates()
		if err != nil {
			return err
		}
		delete(states, el.Key())

		if err := tx.SetBlockedElements(lo.Without(elements, el)); err != nil {
			return err
		}
		return tx.SetElementStates(states)
	})
}

func (s *Service) SetElementEnabled(ctx context.Context, domain, selector string, enabled bool) error {
	el := newElement(domain, selector)

	return s.store.Update(ctx, func(tx *settings.Tx) error {
		elements, err := tx.BlockedElements()
		if err != nil {
			return err
		}
		if !lo.Contains(elements, el) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, el.Key())
		}
		states, err := tx.ElementStates()
		if err != nil {
			return err
		}
		states[el.Key()] = enabled
		return tx.SetElementStates(states)
	})
}
