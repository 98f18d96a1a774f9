// ABOUTME: SQLite-backed registry of agent identity/location metadata, separate from the per-agent JSONL state journal.
// ABOUTME: Upsert always resets status to active, so rediscovery un-orphans an agent rather than duplicating it.
package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bullish-Design/remora/core"
)

// SQLiteAgentRegistry tracks which agent ids the Reconciler currently
// believes exist, and whether each is active or orphaned.
type SQLiteAgentRegistry struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenAgentRegistry opens or creates the agent registry database at path.
func OpenAgentRegistry(path string) (*SQLiteAgentRegistry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &core.PersistenceError{Op: "open agent registry", Err: err}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "set WAL mode", Err: err}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			node_type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL,
			parent_id TEXT,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at REAL NOT NULL,
			updated_at REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &core.PersistenceError{Op: "create agents schema", Err: err}
	}

	return &SQLiteAgentRegistry{db: db}, nil
}

// Upsert inserts or updates an agent row and always resets its status to
// active, un-orphaning a previously orphaned agent if it was rediscovered.
func (r *SQLiteAgentRegistry) Upsert(a core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := float64(time.Now().UnixNano()) / 1e9
	_, err := r.db.Exec(
		`INSERT INTO agents (agent_id, node_type, name, full_name, file_path, parent_id, start_line, end_line, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			node_type = excluded.node_type,
			name = excluded.name,
			full_name = excluded.full_name,
			file_path = excluded.file_path,
			parent_id = excluded.parent_id,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			updated_at = excluded.updated_at,
			status = 'active'`,
		a.AgentID, a.NodeType, a.Name, a.FullName, a.FilePath, nullableString(a.ParentID),
		a.StartLine, a.EndLine, now, now,
	)
	if err != nil {
		return &core.PersistenceError{Op: "upsert agent", Err: err}
	}
	return nil
}

// MarkOrphaned flips an agent's status to orphaned without deleting it.
func (r *SQLiteAgentRegistry) MarkOrphaned(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := float64(time.Now().UnixNano()) / 1e9
	_, err := r.db.Exec("UPDATE agents SET status = 'orphaned', updated_at = ? WHERE agent_id = ?", now, agentID)
	if err != nil {
		return &core.PersistenceError{Op: "mark agent orphaned", Err: err}
	}
	return nil
}

// ListAgents returns every agent, optionally filtered to one status.
func (r *SQLiteAgentRegistry) ListAgents(status core.AgentStatus) ([]core.Agent, error) {
	query := "SELECT agent_id, node_type, name, full_name, file_path, parent_id, start_line, end_line, status, created_at, updated_at FROM agents"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list agents", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []core.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAgent returns a single agent by id, or core.ErrAgentNotFound.
func (r *SQLiteAgentRegistry) GetAgent(agentID string) (core.Agent, error) {
	row := r.db.QueryRow(
		"SELECT agent_id, node_type, name, full_name, file_path, parent_id, start_line, end_line, status, created_at, updated_at FROM agents WHERE agent_id = ?",
		agentID,
	)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return core.Agent{}, core.ErrAgentNotFound
	}
	if err != nil {
		return core.Agent{}, err
	}
	return a, nil
}

func scanAgent(row rowScanner) (core.Agent, error) {
	var (
		agentID, nodeType, name, fullName, filePath, status string
		parentID                                             sql.NullString
		startLine, endLine                                   int
		createdAt, updatedAt                                 float64
	)
	if err := row.Scan(&agentID, &nodeType, &name, &fullName, &filePath, &parentID, &startLine, &endLine, &status, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return core.Agent{}, err
		}
		return core.Agent{}, &core.PersistenceError{Op: "scan agent row", Err: err}
	}
	return core.Agent{
		AgentID:   agentID,
		NodeType:  nodeType,
		Name:      name,
		FullName:  fullName,
		FilePath:  filePath,
		ParentID:  parentID.String,
		StartLine: startLine,
		EndLine:   endLine,
		Status:    core.AgentStatus(status),
		CreatedAt: int64(createdAt * 1000),
		UpdatedAt: int64(updatedAt * 1000),
	}, nil
}

// Close closes the underlying database.
func (r *SQLiteAgentRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
