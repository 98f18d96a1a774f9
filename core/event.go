// ABOUTME: Event is the envelope for every mutation flowing through the swarm.
// ABOUTME: 13 EventPayload variants with tagged union JSON serialization via "type" discriminator.
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the immutable envelope persisted by the Event Store and
// broadcast on the Event Bus. GraphID groups events belonging to one
// swarm run; FromAgent/ToAgent/CorrelationID/Tags are the routing
// trailer the Subscription Registry matches against.
type Event struct {
	ID            int64        `json:"id"`
	GraphID       string       `json:"graph_id"`
	Timestamp     time.Time    `json:"timestamp"`
	CreatedAt     time.Time    `json:"created_at"`
	FromAgent     string       `json:"from_agent,omitempty"`
	ToAgent       string       `json:"to_agent,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Payload       EventPayload `json:"-"` // custom marshal/unmarshal
}

// eventJSON is the wire format for Event.
type eventJSON struct {
	ID            int64           `json:"id"`
	GraphID       string          `json:"graph_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CreatedAt     time.Time       `json:"created_at"`
	FromAgent     string          `json:"from_agent,omitempty"`
	ToAgent       string          `json:"to_agent,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// MarshalJSON serializes the Event with its payload inlined.
func (e Event) MarshalJSON() ([]byte, error) {
	payloadJSON, err := MarshalEventPayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	j := eventJSON{
		ID:            e.ID,
		GraphID:       e.GraphID,
		Timestamp:     e.Timestamp,
		CreatedAt:     e.CreatedAt,
		FromAgent:     e.FromAgent,
		ToAgent:       e.ToAgent,
		CorrelationID: e.CorrelationID,
		Tags:          e.Tags,
		Payload:       payloadJSON,
	}
	return json.Marshal(j)
}

// UnmarshalJSON deserializes the Event with its payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	payload, err := UnmarshalEventPayload(j.Payload)
	if err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	e.ID = j.ID
	e.GraphID = j.GraphID
	e.Timestamp = j.Timestamp
	e.CreatedAt = j.CreatedAt
	e.FromAgent = j.FromAgent
	e.ToAgent = j.ToAgent
	e.CorrelationID = j.CorrelationID
	e.Tags = j.Tags
	e.Payload = payload
	return nil
}

// EventPayload is a tagged union representing the 13 event variants a
// swarm can produce.
type EventPayload interface {
	EventPayloadType() string
	eventPayloadSeal()
}

// ContentChangedEvent indicates a watched file changed on disk, including
// synthetically during startup reconciliation of offline drift.
type ContentChangedEvent struct {
	Path string `json:"path"`
	Diff string `json:"diff,omitempty"`
}

func (p ContentChangedEvent) EventPayloadType() string { return "ContentChangedEvent" }
func (p ContentChangedEvent) eventPayloadSeal()        {}

// AgentMessageEvent carries a message sent from one agent to another (or
// broadcast) outside of the trigger/turn lifecycle.
type AgentMessageEvent struct {
	Message string `json:"message"`
}

func (p AgentMessageEvent) EventPayloadType() string { return "AgentMessageEvent" }
func (p AgentMessageEvent) eventPayloadSeal()        {}

// ManualTriggerEvent is emitted when an operator forces a specific agent
// to run regardless of subscription matching.
type ManualTriggerEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (p ManualTriggerEvent) EventPayloadType() string { return "ManualTriggerEvent" }
func (p ManualTriggerEvent) eventPayloadSeal()        {}

// HumanInputRequestEvent is emitted by an agent turn that needs a human
// answer before it can proceed. Options, when non-empty, restricts the
// expected answer to one of the listed choices; an empty Options means
// the request is freeform.
type HumanInputRequestEvent struct {
	RequestID string   `json:"request_id"`
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options,omitempty"`
}

func (p HumanInputRequestEvent) EventPayloadType() string { return "HumanInputRequestEvent" }
func (p HumanInputRequestEvent) eventPayloadSeal()        {}

// HumanInputResponseEvent carries the human's answer to a prior request.
type HumanInputResponseEvent struct {
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

func (p HumanInputResponseEvent) EventPayloadType() string { return "HumanInputResponseEvent" }
func (p HumanInputResponseEvent) eventPayloadSeal()        {}

// AgentStartEvent marks the beginning of an agent turn.
type AgentStartEvent struct {
	AgentID  string `json:"agent_id"`
	NodeName string `json:"node_name,omitempty"`
}

func (p AgentStartEvent) EventPayloadType() string { return "AgentStartEvent" }
func (p AgentStartEvent) eventPayloadSeal()        {}

// AgentCompleteEvent marks the successful end of an agent turn.
type AgentCompleteEvent struct {
	AgentID       string `json:"agent_id"`
	ResultSummary string `json:"result_summary,omitempty"`
}

func (p AgentCompleteEvent) EventPayloadType() string { return "AgentCompleteEvent" }
func (p AgentCompleteEvent) eventPayloadSeal()        {}

// AgentErrorEvent marks an agent turn that failed or could not start.
type AgentErrorEvent struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

func (p AgentErrorEvent) EventPayloadType() string { return "AgentErrorEvent" }
func (p AgentErrorEvent) eventPayloadSeal()        {}

// ToolCallEvent is a turn-level marker produced by the external Executor
// when an agent invokes a tool.
type ToolCallEvent struct {
	AgentID  string          `json:"agent_id"`
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args,omitempty"`
}

func (p ToolCallEvent) EventPayloadType() string { return "ToolCallEvent" }
func (p ToolCallEvent) eventPayloadSeal()        {}

// ToolResultEvent is a turn-level marker carrying a tool's result.
type ToolResultEvent struct {
	AgentID  string `json:"agent_id"`
	ToolName string `json:"tool_name"`
	Result   string `json:"result,omitempty"`
}

func (p ToolResultEvent) EventPayloadType() string { return "ToolResultEvent" }
func (p ToolResultEvent) eventPayloadSeal()        {}

// ModelRequestEvent is a turn-level marker recording an outbound model call.
type ModelRequestEvent struct {
	AgentID string `json:"agent_id"`
	Model   string `json:"model,omitempty"`
}

func (p ModelRequestEvent) EventPayloadType() string { return "ModelRequestEvent" }
func (p ModelRequestEvent) eventPayloadSeal()        {}

// ModelResponseEvent is a turn-level marker recording a model's reply.
type ModelResponseEvent struct {
	AgentID string `json:"agent_id"`
	Model   string `json:"model,omitempty"`
}

func (p ModelResponseEvent) EventPayloadType() string { return "ModelResponseEvent" }
func (p ModelResponseEvent) eventPayloadSeal()        {}

// TurnCompleteEvent is a turn-level marker emitted when the Executor
// finishes a full agent turn (possibly containing several tool/model
// round-trips).
type TurnCompleteEvent struct {
	AgentID string `json:"agent_id"`
}

func (p TurnCompleteEvent) EventPayloadType() string { return "TurnCompleteEvent" }
func (p TurnCompleteEvent) eventPayloadSeal()        {}

// MarshalEventPayload serializes an EventPayload with a "type" discriminator.
func MarshalEventPayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("cannot marshal nil event payload")
	}
	return marshalTagged(p.EventPayloadType(), p)
}

// marshalTagged marshals v and injects a "type" field carrying typ.
func marshalTagged(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(typ)
	m["type"] = typeJSON
	return json.Marshal(m)
}

// UnmarshalEventPayload deserializes an EventPayload from JSON with a
// "type" discriminator.
func UnmarshalEventPayload(data []byte) (EventPayload, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal event payload type: %w", err)
	}

	switch envelope.Type {
	case "ContentChangedEvent":
		var p ContentChangedEvent
		return p, json.Unmarshal(data, &p)
	case "AgentMessageEvent":
		var p AgentMessageEvent
		return p, json.Unmarshal(data, &p)
	case "ManualTriggerEvent":
		var p ManualTriggerEvent
		return p, json.Unmarshal(data, &p)
	case "HumanInputRequestEvent":
		var p HumanInputRequestEvent
		return p, json.Unmarshal(data, &p)
	case "HumanInputResponseEvent":
		var p HumanInputResponseEvent
		return p, json.Unmarshal(data, &p)
	case "AgentStartEvent":
		var p AgentStartEvent
		return p, json.Unmarshal(data, &p)
	case "AgentCompleteEvent":
		var p AgentCompleteEvent
		return p, json.Unmarshal(data, &p)
	case "AgentErrorEvent":
		var p AgentErrorEvent
		return p, json.Unmarshal(data, &p)
	case "ToolCallEvent":
		var p ToolCallEvent
		return p, json.Unmarshal(data, &p)
	case "ToolResultEvent":
		var p ToolResultEvent
		return p, json.Unmarshal(data, &p)
	case "ModelRequestEvent":
		var p ModelRequestEvent
		return p, json.Unmarshal(data, &p)
	case "ModelResponseEvent":
		var p ModelResponseEvent
		return p, json.Unmarshal(data, &p)
	case "TurnCompleteEvent":
		var p TurnCompleteEvent
		return p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unknown event payload type: %q", envelope.Type)
	}
}

// EventTypeName returns the discriminator string for a payload, matching
// the event_type column stored alongside it.
func EventTypeName(p EventPayload) string {
	if p == nil {
		return ""
	}
	return p.EventPayloadType()
}
