// ABOUTME: SQLite-backed event store providing event sourcing with reactive subscription triggers.
// ABOUTME: Append serializes the event, matches it against the Subscription Registry, and fans out.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bullish-Design/remora/core"
)

// SubscriptionMatcher is the subset of SQLiteSubscriptionRegistry the
// Event Store needs to compute trigger fan-out on append.
type SubscriptionMatcher interface {
	GetMatchingAgents(e core.Event) ([]string, error)
}

// Publisher is the subset of bus.Bus the Event Store needs to broadcast
// newly appended events to UI/diagnostic subscribers.
type Publisher interface {
	Publish(e core.Event)
}

// SQLiteEventStore is the append-only, SQLite-backed log of every event
// a swarm has produced. Appending an event commits the row first; only
// then are the matching agents computed and one Trigger enqueued per
// match, outside the insert's transaction.
type SQLiteEventStore struct {
	mu            sync.Mutex
	db            *sql.DB
	subscriptions SubscriptionMatcher
	bus           Publisher
	triggers      chan core.Trigger
	closed        bool
	droppedCount  int64
}

// OpenEventStore opens or creates the event store database at path,
// running schema creation and migration.
func OpenEventStore(path string) (*SQLiteEventStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &core.PersistenceError{Op: "open event store", Err: err}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "set WAL mode", Err: err}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			graph_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp REAL NOT NULL,
			created_at REAL NOT NULL,
			from_agent TEXT,
			to_agent TEXT,
			correlation_id TEXT,
			tags TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_graph_id ON events(graph_id);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_to_agent ON events(to_agent);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "create event schema", Err: err}
	}

	if err := migrateRoutingFields(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteEventStore{db: db}, nil
}

// migrateRoutingFields adds routing columns to a schema created by an
// earlier version of the store that predates from_agent/to_agent/
// correlation_id/tags.
func migrateRoutingFields(db *sql.DB) error {
	rows, err := db.Query("PRAGMA table_info(events)")
	if err != nil {
		return &core.PersistenceError{Op: "inspect events schema", Err: err}
	}
	defer func() { _ = rows.Close() }()

	present := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dflt       sql.NullString
			primarykey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &primarykey); err != nil {
			return &core.PersistenceError{Op: "scan events schema", Err: err}
		}
		present[name] = true
	}

	for _, col := range []string{"from_agent", "to_agent", "correlation_id", "tags"} {
		if present[col] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE events ADD COLUMN %s TEXT", col)); err != nil {
			return &core.PersistenceError{Op: "migrate column " + col, Err: err}
		}
	}
	return nil
}

// SetSubscriptions wires a Subscription Registry into the store, enabling
// trigger computation on Append. Safe to call once before the runner
// starts draining GetTriggers.
func (s *SQLiteEventStore) SetSubscriptions(m SubscriptionMatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = m
	if s.triggers == nil {
		s.triggers = make(chan core.Trigger, 4096)
	}
}

// SetBus wires an Event Bus into the store so every appended event is
// also broadcast for UI streaming.
func (s *SQLiteEventStore) SetBus(b Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = b
}

// Append inserts an event, commits it, then (if a Subscription Registry
// is wired) computes the matching agents and enqueues one Trigger per
// match, then (if a Bus is wired) publishes the event. The insert and the
// trigger computation both see a durably committed row.
func (s *SQLiteEventStore) Append(graphID string, e core.Event) (int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, core.ErrEventStoreClosed
	}
	s.mu.Unlock()

	payloadJSON, err := core.MarshalEventPayload(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}

	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.CreatedAt = now
	e.GraphID = graphID

	var tagsJSON sql.NullString
	if len(e.Tags) > 0 {
		b, err := json.Marshal(e.Tags)
		if err != nil {
			return 0, fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = sql.NullString{String: string(b), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO events (graph_id, event_type, payload, timestamp, created_at, from_agent, to_agent, correlation_id, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		graphID,
		core.EventTypeName(e.Payload),
		string(payloadJSON),
		float64(e.Timestamp.UnixNano())/1e9,
		float64(e.CreatedAt.UnixNano())/1e9,
		nullableString(e.FromAgent),
		nullableString(e.ToAgent),
		nullableString(e.CorrelationID),
		tagsJSON,
	)
	if err != nil {
		return 0, &core.PersistenceError{Op: "insert event", Err: err}
	}

	eventID, err := result.LastInsertId()
	if err != nil {
		return 0, &core.PersistenceError{Op: "read event id", Err: err}
	}
	e.ID = eventID

	s.mu.Lock()
	subs := s.subscriptions
	triggers := s.triggers
	bus := s.bus
	s.mu.Unlock()

	if subs != nil && triggers != nil {
		matching, err := subs.GetMatchingAgents(e)
		if err != nil {
			return eventID, fmt.Errorf("match subscriptions for event %d: %w", eventID, err)
		}
		for _, agentID := range matching {
			trig := core.Trigger{AgentID: agentID, EventID: eventID, Event: e}
			select {
			case triggers <- trig:
			default:
				n := atomic.AddInt64(&s.droppedCount, 1)
				log.Printf("component=event_store action=drop_trigger agent_id=%s event_id=%d total_dropped=%d",
					agentID, eventID, n)
			}
		}
	}

	if bus != nil {
		bus.Publish(e)
	}

	return eventID, nil
}

// GetTriggers returns the channel of matched (agent, event) pairs. Only
// one Agent Runner should drain this channel; it is closed by Close.
func (s *SQLiteEventStore) GetTriggers() (<-chan core.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggers == nil {
		return nil, core.ErrTriggersNotConfigured
	}
	return s.triggers, nil
}

// ReplayFilter narrows a Replay call.
type ReplayFilter struct {
	EventTypes []string
	Since      *time.Time
	Until      *time.Time
	AfterID    int64
}

// Replay returns every event for graphID matching filter, ordered by
// timestamp then id ascending.
func (s *SQLiteEventStore) Replay(graphID string, filter ReplayFilter) ([]core.Event, error) {
	query := "SELECT id, graph_id, event_type, payload, timestamp, created_at, from_agent, to_agent, correlation_id, tags FROM events WHERE graph_id = ?"
	args := []any{graphID}

	if len(filter.EventTypes) > 0 {
		query += " AND event_type IN ("
		for i, t := range filter.EventTypes {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, t)
		}
		query += ")"
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, float64(filter.Since.UnixNano())/1e9)
	}
	if filter.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, float64(filter.Until.UnixNano())/1e9)
	}
	if filter.AfterID > 0 {
		query += " AND id > ?"
		args = append(args, filter.AfterID)
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &core.PersistenceError{Op: "replay events", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var events []core.Event
	for rows.Next() {
		var (
			id                                                     int64
			graphIDCol, eventType, payload                         string
			ts, createdAt                                          float64
			fromAgent, toAgent, correlationID, tags                sql.NullString
		)
		if err := rows.Scan(&id, &graphIDCol, &eventType, &payload, &ts, &createdAt, &fromAgent, &toAgent, &correlationID, &tags); err != nil {
			return nil, &core.PersistenceError{Op: "scan event row", Err: err}
		}
		payloadVal, err := core.UnmarshalEventPayload([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("unmarshal event %d payload: %w", id, err)
		}
		e := core.Event{
			ID:            id,
			GraphID:       graphIDCol,
			Timestamp:     time.Unix(0, int64(ts*1e9)),
			CreatedAt:     time.Unix(0, int64(createdAt*1e9)),
			FromAgent:     fromAgent.String,
			ToAgent:       toAgent.String,
			CorrelationID: correlationID.String,
			Payload:       payloadVal,
		}
		if tags.Valid && tags.String != "" {
			var tagList []string
			if err := json.Unmarshal([]byte(tags.String), &tagList); err != nil {
				return nil, fmt.Errorf("unmarshal event %d tags: %w", id, err)
			}
			e.Tags = tagList
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GraphSummary describes one graph_id's event range.
type GraphSummary struct {
	GraphID    string
	StartedAt  time.Time
	EndedAt    time.Time
	EventCount int64
}

// GraphIDs lists graphs ordered by the timestamp of each graph's first
// event, most recently started first.
func (s *SQLiteEventStore) GraphIDs(limit int, since *time.Time) ([]GraphSummary, error) {
	query := `SELECT graph_id, MIN(timestamp), MAX(timestamp), COUNT(*) FROM events`
	var args []any
	if since != nil {
		query += " WHERE timestamp >= ?"
		args = append(args, float64(since.UnixNano())/1e9)
	}
	query += " GROUP BY graph_id ORDER BY MIN(timestamp) DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list graph ids", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []GraphSummary
	for rows.Next() {
		var (
			graphID          string
			started, ended   float64
			count            int64
		)
		if err := rows.Scan(&graphID, &started, &ended, &count); err != nil {
			return nil, &core.PersistenceError{Op: "scan graph summary", Err: err}
		}
		out = append(out, GraphSummary{
			GraphID:    graphID,
			StartedAt:  time.Unix(0, int64(started*1e9)),
			EndedAt:    time.Unix(0, int64(ended*1e9)),
			EventCount: count,
		})
	}
	return out, rows.Err()
}

// DroppedTriggerCount reports how many triggers have been discarded
// because the trigger channel's buffer was full, for diagnostics. The
// producer (Append) never blocks waiting for the Agent Runner to drain
// triggers; once the buffer fills, further matches for the same surge
// are dropped and counted here instead.
func (s *SQLiteEventStore) DroppedTriggerCount() int64 {
	return atomic.LoadInt64(&s.droppedCount)
}

// EventCount returns the number of events recorded for graphID.
func (s *SQLiteEventStore) EventCount(graphID string) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE graph_id = ?", graphID).Scan(&count)
	if err != nil {
		return 0, &core.PersistenceError{Op: "count events", Err: err}
	}
	return count, nil
}

// DeleteGraph removes every event for graphID, returning the number of
// rows deleted.
func (s *SQLiteEventStore) DeleteGraph(graphID string) (int64, error) {
	result, err := s.db.Exec("DELETE FROM events WHERE graph_id = ?", graphID)
	if err != nil {
		return 0, &core.PersistenceError{Op: "delete graph", Err: err}
	}
	return result.RowsAffected()
}

// Close closes the underlying database and the trigger channel.
func (s *SQLiteEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.triggers != nil {
		close(s.triggers)
	}
	return s.db.Close()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
