package ruletable

import "errors"

// Rejections returned by UpdateDynamicRules. Any of them aborts the whole update.
var (
	ErrMalformedFilter = errors.New("rule has an empty or non-ASCII url filter")
	ErrInvalidRuleID   = errors.New("rule id must be at least 1")
	ErrDuplicateRuleID = errors.New("rule id is already installed")
	ErrMalformedRule   = errors.New("rule has an unsupported action or resource type")
)
