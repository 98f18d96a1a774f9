// ABOUTME: Agent is the registry record tracking one discovered code entity's identity.
// ABOUTME: AgentState is its mutable runtime snapshot, journaled append-only per agent.
package core

// AgentStatus is the lifecycle status tracked in the Agent registry.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentOrphaned AgentStatus = "orphaned"
)

// Agent is the persistent registry record for one discovered source
// entity (a function, class, module, or similar unit of code the
// Reconciler assigned a stable content-addressed id to).
type Agent struct {
	AgentID   string      `json:"agent_id"`
	NodeType  string      `json:"node_type"`
	Name      string      `json:"name"`
	FullName  string      `json:"full_name"`
	FilePath  string      `json:"file_path"`
	ParentID  string      `json:"parent_id,omitempty"`
	StartLine int         `json:"start_line"`
	EndLine   int         `json:"end_line"`
	Status    AgentStatus `json:"status"`
	CreatedAt int64       `json:"created_at"` // unix millis
	UpdatedAt int64       `json:"updated_at"` // unix millis
}

// AgentState is the mutable runtime snapshot for one agent: its source
// location, connections to other agents, rolling chat history, and any
// subscriptions registered beyond the two defaults. It is journaled
// append-only to a per-agent JSONL file; Load always resolves to the
// last line written.
type AgentState struct {
	AgentID             string                `json:"agent_id"`
	NodeType            string                `json:"node_type"`
	Name                string                `json:"name"`
	FullName            string                `json:"full_name"`
	FilePath            string                `json:"file_path"`
	ParentID            string                `json:"parent_id,omitempty"`
	Range               *[2]int               `json:"range,omitempty"`
	Connections         map[string]string     `json:"connections,omitempty"`
	ChatHistory         []map[string]any      `json:"chat_history,omitempty"`
	CustomSubscriptions []SubscriptionPattern `json:"custom_subscriptions,omitempty"`
	LastUpdated         float64               `json:"last_updated"` // unix seconds, fractional
}

// Trigger is one (agent, event) pairing dequeued by the Agent Runner: the
// Event Store's Append matched this event against the Subscription
// Registry and found AgentID among the results.
type Trigger struct {
	AgentID string
	EventID int64
	Event   Event
}
