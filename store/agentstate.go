// ABOUTME: Append-only JSONL per-agent state journal, sharded by the first two characters of the agent id.
// ABOUTME: Load resolves to the last line written; a corrupt trailing line is treated as absent state, not an error.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bullish-Design/remora/core"
)

// FSAgentStateStore persists each agent's AgentState as an append-only
// JSONL file under swarmRoot/agents/<agent_id[:2]>/<agent_id>/state.jsonl,
// mirroring the on-disk layout under .remora/ described by the runtime's
// persistent layout.
type FSAgentStateStore struct {
	swarmRoot string
}

// NewFSAgentStateStore returns a store rooted at swarmRoot (typically
// <project>/.remora).
func NewFSAgentStateStore(swarmRoot string) *FSAgentStateStore {
	return &FSAgentStateStore{swarmRoot: swarmRoot}
}

// AgentDir returns the sharded directory holding agentID's files.
func (s *FSAgentStateStore) AgentDir(agentID string) string {
	shard := agentID
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.swarmRoot, "agents", shard, agentID)
}

// StatePath returns the JSONL journal path for agentID.
func (s *FSAgentStateStore) StatePath(agentID string) string {
	return filepath.Join(s.AgentDir(agentID), "state.jsonl")
}

// WorkspacePath returns the per-agent SQLite workspace path for agentID,
// reserved for agent-local scratch storage outside this runtime's scope.
func (s *FSAgentStateStore) WorkspacePath(agentID string) string {
	return filepath.Join(s.AgentDir(agentID), "workspace.db")
}

// Load reads path and returns the state encoded by its last non-blank
// line. Returns (nil, nil) if the file does not exist, is empty, or its
// last line fails to parse as JSON — a corrupt trailing write is treated
// as "no state present" rather than surfaced as an error, since the
// journal is append-only and a torn write only ever affects the tail.
func (s *FSAgentStateStore) Load(agentID string) (*core.AgentState, error) {
	path := s.StatePath(agentID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &core.PersistenceError{Op: "open agent state", Err: err}
	}
	defer func() { _ = f.Close() }()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lastLine = line
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "scan agent state", Err: err}
	}
	if lastLine == "" {
		return nil, nil
	}

	var state core.AgentState
	if err := json.Unmarshal([]byte(lastLine), &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// Save stamps state.LastUpdated to now and appends it as one JSON line,
// fsyncing before returning so the write survives a crash.
func (s *FSAgentStateStore) Save(state *core.AgentState) error {
	dir := s.AgentDir(state.AgentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &core.PersistenceError{Op: "create agent dir", Err: err}
	}

	state.LastUpdated = float64(time.Now().UnixNano()) / 1e9

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}

	path := s.StatePath(state.AgentID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &core.PersistenceError{Op: "open agent state for append", Err: err}
	}
	defer func() { _ = f.Close() }()

	line := append(data, '\n')
	if _, err := f.Write(line); err != nil {
		return &core.PersistenceError{Op: "write agent state line", Err: err}
	}
	if err := f.Sync(); err != nil {
		return &core.PersistenceError{Op: "fsync agent state", Err: err}
	}
	return nil
}

// RepairState keeps only complete, parseable lines of agentID's journal,
// discarding a torn trailing write. Returns the count of valid lines
// retained. Uses an atomic temp-file-plus-rename so a crash mid-repair
// never leaves the journal in a worse state than before the repair.
func (s *FSAgentStateStore) RepairState(agentID string) (int, error) {
	path := s.StatePath(agentID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &core.PersistenceError{Op: "open agent state for repair", Err: err}
	}

	var validLines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var state core.AgentState
		if json.Unmarshal([]byte(line), &state) == nil {
			validLines = append(validLines, scanner.Text())
		}
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if scanErr != nil {
		return 0, &core.PersistenceError{Op: "scan agent state for repair", Err: scanErr}
	}

	tmpPath := path + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, &core.PersistenceError{Op: "create repair temp file", Err: err}
	}
	for _, line := range validLines {
		if _, err := fmt.Fprintln(tmpFile, line); err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
			return 0, &core.PersistenceError{Op: "write repaired line", Err: err}
		}
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return 0, &core.PersistenceError{Op: "fsync repair temp file", Err: err}
	}
	_ = tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, &core.PersistenceError{Op: "rename repaired state", Err: err}
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	return len(validLines), nil
}
