// ABOUTME: HTTP handler tests for the chi router wired against real SQLite-backed stores.
package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/server"
	"github.com/Bullish-Design/remora/store"
)

func newTestAppState(t *testing.T) *server.AppState {
	t.Helper()
	dir := t.TempDir()

	events, err := store.OpenEventStore(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("OpenEventStore: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	subs, err := store.OpenSubscriptionRegistry(filepath.Join(dir, "subs.db"))
	if err != nil {
		t.Fatalf("OpenSubscriptionRegistry: %v", err)
	}
	t.Cleanup(func() { _ = subs.Close() })

	agents, err := store.OpenAgentRegistry(filepath.Join(dir, "agents.db"))
	if err != nil {
		t.Fatalf("OpenAgentRegistry: %v", err)
	}
	t.Cleanup(func() { _ = agents.Close() })

	states := store.NewFSAgentStateStore(dir)
	events.SetSubscriptions(subs)

	return server.NewAppState(dir, events, subs, agents, states, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestAppState(t)
	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		RunID   string `json:"run_id"`
		Running bool   `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status: got %q, want %q", body.Status, "ok")
	}
	if body.RunID == "" {
		t.Error("expected a non-empty run_id")
	}
	if body.Running {
		t.Error("expected running=false before any swarm started")
	}
}

func TestHandleListAgents_FiltersByStatus(t *testing.T) {
	s := newTestAppState(t)
	if err := s.Agents.Upsert(core.Agent{AgentID: "a1", NodeType: "function", FilePath: "a.go"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Agents.Upsert(core.Agent{AgentID: "a2", NodeType: "function", FilePath: "b.go"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Agents.MarkOrphaned("a2"); err != nil {
		t.Fatalf("MarkOrphaned: %v", err)
	}

	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents?status=active")
	if err != nil {
		t.Fatalf("GET /agents: %v", err)
	}
	defer resp.Body.Close()

	var agents []core.Agent
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agents) != 1 || agents[0].AgentID != "a1" {
		t.Errorf("expected only a1 active, got %+v", agents)
	}
}

func TestHandleGetAgent_NotFound(t *testing.T) {
	s := newTestAppState(t)
	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/agents/missing")
	if err != nil {
		t.Fatalf("GET /agents/missing: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleReconcile_NotConfiguredReturns404(t *testing.T) {
	s := newTestAppState(t)
	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/reconcile", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatalf("POST /reconcile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleHumanInputRequest_AppendsEventAndMintsRequestID(t *testing.T) {
	s := newTestAppState(t)
	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	body := `{"to_agent":"agent-1","prompt":"please review this","options":["approve","reject"]}`
	resp, err := http.Post(srv.URL+"/graphs/swarm/human-input", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST human-input: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}

	var respBody struct {
		EventID   int64  `json:"event_id"`
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if respBody.RequestID == "" {
		t.Error("expected a non-empty minted request id")
	}
	if respBody.EventID == 0 {
		t.Error("expected a non-zero event id")
	}

	events, err := s.Events.Replay("swarm", store.ReplayFilter{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(core.HumanInputRequestEvent)
	if !ok {
		t.Fatalf("expected HumanInputRequestEvent, got %T", events[0].Payload)
	}
	if payload.Prompt != "please review this" {
		t.Errorf("Prompt: got %q", payload.Prompt)
	}
	if len(payload.Options) != 2 || payload.Options[0] != "approve" || payload.Options[1] != "reject" {
		t.Errorf("Options: got %v", payload.Options)
	}
}

func TestHandleListGraphsAndReplay(t *testing.T) {
	s := newTestAppState(t)
	if _, err := s.Events.Append("graph-1", core.Event{Payload: core.ManualTriggerEvent{}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	srv := httptest.NewServer(server.NewRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/graphs")
	if err != nil {
		t.Fatalf("GET /graphs: %v", err)
	}
	defer resp.Body.Close()
	var graphs []store.GraphSummary
	if err := json.NewDecoder(resp.Body).Decode(&graphs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(graphs) != 1 || graphs[0].GraphID != "graph-1" {
		t.Errorf("expected [graph-1], got %v", graphs)
	}

	resp2, err := http.Get(srv.URL + "/graphs/graph-1/events")
	if err != nil {
		t.Fatalf("GET /graphs/graph-1/events: %v", err)
	}
	defer resp2.Body.Close()
	var events []core.Event
	if err := json.NewDecoder(resp2.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}
