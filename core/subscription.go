// ABOUTME: SubscriptionPattern is the declarative predicate the Subscription Registry matches events against.
// ABOUTME: Every field is optional; set fields are ANDed, values within a list field are ORed.
package core

import "path"

// SubscriptionPattern selects which events route to an agent. A nil field
// means "match anything" for that dimension; a non-nil list is matched
// as OR across its entries. All set fields are combined with AND.
type SubscriptionPattern struct {
	EventTypes []string `json:"event_types,omitempty"`
	FromAgents []string `json:"from_agents,omitempty"`
	ToAgent    string   `json:"to_agent,omitempty"`
	PathGlob   string   `json:"path_glob,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Matches reports whether the event satisfies every set field of the
// pattern. The event's declared path (if any) is matched against PathGlob
// with path.Match, a POSIX single-segment glob (no "**"); a malformed
// glob is treated as a non-match rather than an error, mirroring the
// original implementation's fail-closed behavior.
func (p SubscriptionPattern) Matches(e Event) bool {
	if len(p.EventTypes) > 0 {
		if !containsString(p.EventTypes, EventTypeName(e.Payload)) {
			return false
		}
	}

	if len(p.FromAgents) > 0 {
		if e.FromAgent == "" || !containsString(p.FromAgents, e.FromAgent) {
			return false
		}
	}

	if p.ToAgent != "" {
		if e.ToAgent != p.ToAgent {
			return false
		}
	}

	if p.PathGlob != "" {
		eventPath := eventPathOf(e.Payload)
		if eventPath == "" {
			return false
		}
		ok, err := path.Match(p.PathGlob, path.Clean(eventPath))
		if err != nil || !ok {
			return false
		}
	}

	if len(p.Tags) > 0 {
		if !anyTagMatches(p.Tags, e.Tags) {
			return false
		}
	}

	return true
}

// eventPathOf extracts the path field from the one payload variant that
// carries one. Other variants have no path, so a PathGlob pattern never
// matches them.
func eventPathOf(p EventPayload) string {
	if c, ok := p.(ContentChangedEvent); ok {
		return c.Path
	}
	return ""
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// Subscription is a persisted SubscriptionPattern registered on behalf of
// one agent.
type Subscription struct {
	ID        int64               `json:"id"`
	AgentID   string              `json:"agent_id"`
	Pattern   SubscriptionPattern `json:"pattern"`
	IsDefault bool                `json:"is_default"`
	CreatedAt int64               `json:"created_at"` // unix millis
	UpdatedAt int64               `json:"updated_at"` // unix millis
}
