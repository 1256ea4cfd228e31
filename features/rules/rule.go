package rules

// ActionType is what the host does with a request matching a rule.
type ActionType string

const (
	ActionBlock ActionType = "block"
)

// ResourceType is a network request category a rule condition can target.
type ResourceType string

const (
	ResourceMainFrame      ResourceType = "main_frame"
	ResourceSubFrame       ResourceType = "sub_frame"
	ResourceStylesheet     ResourceType = "stylesheet"
	ResourceScript         ResourceType = "script"
	ResourceImage          ResourceType = "image"
	ResourceFont           ResourceType = "font"
	ResourceObject         ResourceType = "object"
	ResourceXMLHTTPRequest ResourceType = "xmlhttprequest"
	ResourcePing           ResourceType = "ping"
	ResourceCSPReport      ResourceType = "csp_report"
	ResourceMedia          ResourceType = "media"
	ResourceWebSocket      ResourceType = "websocket"
	ResourceOther          ResourceType = "other"
)

// AllResourceTypes is every category a compiled rule targets.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceMainFrame, ResourceSubFrame, ResourceStylesheet, ResourceScript, ResourceImage,
		ResourceFont, ResourceObject, ResourceXMLHTTPRequest, ResourcePing, ResourceCSPReport,
		ResourceMedia, ResourceWebSocket, ResourceOther,
	}
}

// IsKnownResourceType reports whether t is one of AllResourceTypes.
func IsKnownResourceType(t ResourceType) bool {
	for _, known := range AllResourceTypes() {
		if known == t {
			return true
		}
	}
	return false
}

// Rule is a declarative network-filtering directive in the host's format.
type Rule struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

type Action struct {
	Type ActionType `json:"type"`
}

type Condition struct {
	URLFilter     string         `json:"urlFilter"`
	ResourceTypes []ResourceType `json:"resourceTypes"`
}

// UpdateOptions is one request against the host's dynamic rule table.
// Removals are applied before additions.
type UpdateOptions struct {
	RemoveRuleIDs []int  `json:"removeRuleIds,omitempty"`
	AddRules      []Rule `json:"addRules,omitempty"`
}

// IDs returns the ids of rs in order.
func IDs(rs []Rule) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}
