package settings

import "strings"

// Key names a whole-value entry in the settings store.
type Key string

const (
	KeyBlockedSites        Key = "blockedSites"
	KeySiteStates          Key = "siteStates"
	KeyBlockedElements     Key = "blockedElements"
	KeyElementStates       Key = "elementStates"
	KeyBlockingEnabled     Key = "blockingEnabled"
	KeyAutoToggleTime      Key = "autoToggleTime"
	KeyAutoToggleSchedules Key = "autoToggleSchedules"
)

// AllKeys lists every key the store knows about.
var AllKeys = []Key{
	KeyBlockedSites,
	KeySiteStates,
	KeyBlockedElements,
	KeyElementStates,
	KeyBlockingEnabled,
	KeyAutoToggleTime,
	KeyAutoToggleSchedules,
}

const DefaultAutoToggleMinutes = 2

// DefaultSites returns the site list used when none has been stored.
func DefaultSites() []string {
	return []string{"twitter.com", "x.com"}
}

// BlockedElement identifies page content to hide on hosts containing Domain.
type BlockedElement struct {
	Domain   string `json:"domain" validate:"required"`
	Selector string `json:"selector" validate:"required"`
}

// Key returns the composite element state key.
func (e BlockedElement) Key() string {
	return ElementKey(e.Domain, e.Selector)
}

// ElementKey builds the composite "domain:selector" key used by elementStates.
func ElementKey(domain, selector string) string {
	return domain + ":" + selector
}

// Settings is a snapshot of the store with defaults applied.
type Settings struct {
	BlockedSites        []string         `json:"blockedSites"`
	SiteStates          map[string]bool  `json:"siteStates"`
	BlockedElements     []BlockedElement `json:"blockedElements"`
	ElementStates       map[string]bool  `json:"elementStates"`
	BlockingEnabled     bool             `json:"blockingEnabled"`
	AutoToggleTime      int              `json:"autoToggleTime"`
	AutoToggleSchedules map[string]int64 `json:"autoToggleSchedules"`
}

// SiteBlocked reports the per-site state; sites without an entry are blocked.
func (s *Settings) SiteBlocked(site string) bool {
	enabled, ok := s.SiteStates[site]
	return !ok || enabled
}

// ElementEnabled reports whether the element should be hidden; absent keys are.
func (s *Settings) ElementEnabled(e BlockedElement) bool {
	enabled, ok := s.ElementStates[e.Key()]
	return !ok || enabled
}

// HasSite reports whether site is in the blocked site list.
func (s *Settings) HasSite(site string) bool {
	for _, existing := range s.BlockedSites {
		if strings.EqualFold(existing, site) {
			return true
		}
	}
	return false
}
