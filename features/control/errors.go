package control

import "errors"

var (
	ErrEmptySite        = errors.New("site must not be empty")
	ErrInvalidSite      = errors.New("site is not a valid hostname")
	ErrSiteExists       = errors.New("site already in the list")
	ErrSiteNotFound     = errors.New("site not in the list")
	ErrInvalidElement   = errors.New("element needs a domain and a selector")
	ErrElementExists    = errors.New("element already in the list")
	ErrElementNotFound  = errors.New("element not in the list")
	ErrInvalidSnoozeLen = errors.New("snooze duration must be at least one minute")
)
