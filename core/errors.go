// ABOUTME: Typed errors shared across the store, runner, and reconcile packages.
// ABOUTME: Wraps an underlying cause where one exists so callers can errors.Is/As through it.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentNotFound indicates a lookup found no agent with the given id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrSubscriptionsClosed indicates an operation was attempted on a
	// closed SubscriptionRegistry.
	ErrSubscriptionsClosed = errors.New("subscription registry closed")

	// ErrEventStoreClosed indicates an operation was attempted on a closed
	// EventStore.
	ErrEventStoreClosed = errors.New("event store closed")

	// ErrTriggersNotConfigured indicates GetTriggers was called on an
	// EventStore that was never given a SubscriptionRegistry.
	ErrTriggersNotConfigured = errors.New("event store has no subscription registry configured")
)

// PersistenceError wraps a failure to read or write durable state (SQLite,
// JSONL, or the filesystem layout under .remora/).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError indicates a referenced entity (agent, subscription, graph)
// does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CascadeDropped indicates a trigger was intentionally discarded by the
// Agent Runner's cooldown or cascade-depth gate.
type CascadeDropped struct {
	AgentID       string
	CorrelationID string
	Reason        string
}

func (e *CascadeDropped) Error() string {
	return fmt.Sprintf("trigger dropped for %s (correlation=%s): %s", e.AgentID, e.CorrelationID, e.Reason)
}

// ExecutorFailure wraps an error returned by the external Executor while
// running an agent turn.
type ExecutorFailure struct {
	AgentID string
	Err     error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("executor failed for %s: %v", e.AgentID, e.Err)
}

func (e *ExecutorFailure) Unwrap() error { return e.Err }

// ReconcilerPartial indicates reconciliation completed but one or more
// individual agent ids failed; the caller should inspect Failures for
// the per-id causes while treating the overall run as having made
// progress on the remaining ids.
type ReconcilerPartial struct {
	Failures map[string]error
}

func (e *ReconcilerPartial) Error() string {
	return fmt.Sprintf("reconciliation had %d partial failures", len(e.Failures))
}
