package messaging

import "context"

// Action names a message exchanged between control clients, the core and pages.
type Action string

const (
	// control -> core
	ActionUpdateRules         Action = "updateRules"
	ActionCheckAutoToggle     Action = "checkAutoToggle"
	ActionSimulateTimePassing Action = "simulateTimePassing"

	// core -> control
	ActionAutoToggleApplied Action = "autoToggleApplied"

	// core -> page
	ActionHideElements Action = "hideElements"
)

// Message is the single envelope used on every channel.
type Message struct {
	Action     Action          `json:"action,omitempty"`
	Minutes    int             `json:"minutes,omitempty"`
	SiteStates map[string]bool `json:"siteStates,omitempty"`
	Status     string          `json:"status,omitempty"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Role is what a connected client is.
type Role string

const (
	RolePopup Role = "popup"
	RolePage  Role = "page"
)

func (r Role) Valid() bool {
	return r == RolePopup || r == RolePage
}

// Handler answers control messages received from clients.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Message, error)
}
