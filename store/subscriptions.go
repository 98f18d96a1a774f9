// ABOUTME: SQLite-backed registry of agent subscription patterns for reactive event routing.
// ABOUTME: GetMatchingAgents scans every pattern in id order, de-duplicating matches per agent.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bullish-Design/remora/core"
)

// SQLiteSubscriptionRegistry persists SubscriptionPattern rows per agent
// and answers which agents a given event should trigger.
type SQLiteSubscriptionRegistry struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenSubscriptionRegistry opens or creates the registry database at path.
func OpenSubscriptionRegistry(path string) (*SQLiteSubscriptionRegistry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &core.PersistenceError{Op: "open subscription registry", Err: err}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "set WAL mode", Err: err}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			pattern_json TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at REAL NOT NULL,
			updated_at REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_agent_id ON subscriptions(agent_id);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_is_default ON subscriptions(is_default);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "create subscriptions schema", Err: err}
	}

	return &SQLiteSubscriptionRegistry{db: db}, nil
}

// Register persists a new subscription for agentID.
func (r *SQLiteSubscriptionRegistry) Register(agentID string, pattern core.SubscriptionPattern, isDefault bool) (core.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.Subscription{}, core.ErrSubscriptionsClosed
	}

	patternJSON, err := json.Marshal(pattern)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("marshal pattern: %w", err)
	}

	now := time.Now()
	nowSecs := float64(now.UnixNano()) / 1e9
	result, err := r.db.Exec(
		`INSERT INTO subscriptions (agent_id, pattern_json, is_default, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		agentID, string(patternJSON), boolToInt(isDefault), nowSecs, nowSecs,
	)
	if err != nil {
		return core.Subscription{}, &core.PersistenceError{Op: "insert subscription", Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return core.Subscription{}, &core.PersistenceError{Op: "read subscription id", Err: err}
	}

	return core.Subscription{
		ID:        id,
		AgentID:   agentID,
		Pattern:   pattern,
		IsDefault: isDefault,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}, nil
}

// RegisterDefaults registers the two subscriptions every agent gets on
// creation: a direct-message subscription addressed to the agent, and a
// ContentChangedEvent subscription scoped to the agent's own source file.
func (r *SQLiteSubscriptionRegistry) RegisterDefaults(agentID, filePath string) ([]core.Subscription, error) {
	direct, err := r.Register(agentID, core.SubscriptionPattern{ToAgent: agentID}, true)
	if err != nil {
		return nil, fmt.Errorf("register direct-message default: %w", err)
	}

	file, err := r.Register(agentID, core.SubscriptionPattern{
		EventTypes: []string{"ContentChangedEvent"},
		PathGlob:   filePath,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("register content-changed default: %w", err)
	}

	return []core.Subscription{direct, file}, nil
}

// Unregister removes one subscription by id.
func (r *SQLiteSubscriptionRegistry) Unregister(subscriptionID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, err := r.db.Exec("DELETE FROM subscriptions WHERE id = ?", subscriptionID)
	if err != nil {
		return false, &core.PersistenceError{Op: "delete subscription", Err: err}
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// UnregisterAll removes every subscription belonging to agentID, returning
// the count removed.
func (r *SQLiteSubscriptionRegistry) UnregisterAll(agentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, err := r.db.Exec("DELETE FROM subscriptions WHERE agent_id = ?", agentID)
	if err != nil {
		return 0, &core.PersistenceError{Op: "delete agent subscriptions", Err: err}
	}
	return result.RowsAffected()
}

// GetSubscriptions returns every subscription registered for agentID, in
// registration order.
func (r *SQLiteSubscriptionRegistry) GetSubscriptions(agentID string) ([]core.Subscription, error) {
	rows, err := r.db.Query("SELECT id, agent_id, pattern_json, is_default, created_at, updated_at FROM subscriptions WHERE agent_id = ? ORDER BY id", agentID)
	if err != nil {
		return nil, &core.PersistenceError{Op: "query agent subscriptions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []core.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetMatchingAgents scans every registered subscription in id order and
// returns the distinct agent ids whose pattern matches e, preserving the
// order in which each agent first matched.
func (r *SQLiteSubscriptionRegistry) GetMatchingAgents(e core.Event) ([]string, error) {
	rows, err := r.db.Query("SELECT id, agent_id, pattern_json, is_default, created_at, updated_at FROM subscriptions ORDER BY id")
	if err != nil {
		return nil, &core.PersistenceError{Op: "query all subscriptions", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var matching []string
	seen := make(map[string]bool)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		if !sub.Pattern.Matches(e) {
			continue
		}
		if seen[sub.AgentID] {
			continue
		}
		seen[sub.AgentID] = true
		matching = append(matching, sub.AgentID)
	}
	return matching, rows.Err()
}

// Close closes the underlying database.
func (r *SQLiteSubscriptionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(rows rowScanner) (core.Subscription, error) {
	var (
		id                   int64
		agentID, patternJSON string
		isDefault            int
		createdAt, updatedAt float64
	)
	if err := rows.Scan(&id, &agentID, &patternJSON, &isDefault, &createdAt, &updatedAt); err != nil {
		return core.Subscription{}, &core.PersistenceError{Op: "scan subscription row", Err: err}
	}
	var pattern core.SubscriptionPattern
	if err := json.Unmarshal([]byte(patternJSON), &pattern); err != nil {
		return core.Subscription{}, fmt.Errorf("unmarshal subscription %d pattern: %w", id, err)
	}
	return core.Subscription{
		ID:        id,
		AgentID:   agentID,
		Pattern:   pattern,
		IsDefault: isDefault != 0,
		CreatedAt: int64(createdAt * 1000),
		UpdatedAt: int64(updatedAt * 1000),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
