// ABOUTME: Tests for Reconciler.Run: create/orphan/drift diffing and per-id failure isolation.
package reconcile_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/reconcile"
)

type fakeAgents struct {
	mu       sync.Mutex
	upserted map[string]core.Agent
	orphaned map[string]bool
	existing []core.Agent
	upsertErr map[string]error
}

func newFakeAgents(existing ...core.Agent) *fakeAgents {
	return &fakeAgents{
		upserted:  map[string]core.Agent{},
		orphaned:  map[string]bool{},
		existing:  existing,
		upsertErr: map[string]error{},
	}
}

func (f *fakeAgents) Upsert(a core.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[a.AgentID]; err != nil {
		return err
	}
	f.upserted[a.AgentID] = a
	return nil
}

func (f *fakeAgents) MarkOrphaned(agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphaned[agentID] = true
	return nil
}

func (f *fakeAgents) ListAgents(status core.AgentStatus) ([]core.Agent, error) {
	return f.existing, nil
}

type fakeSubs struct {
	mu             sync.Mutex
	registered     map[string][]core.Subscription
	unregisterAll  map[string]bool
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{registered: map[string][]core.Subscription{}, unregisterAll: map[string]bool{}}
}

func (f *fakeSubs) RegisterDefaults(agentID, filePath string) ([]core.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := []core.Subscription{
		{AgentID: agentID, Pattern: core.SubscriptionPattern{ToAgent: agentID}, IsDefault: true},
		{AgentID: agentID, Pattern: core.SubscriptionPattern{PathGlob: filePath}, IsDefault: true},
	}
	f.registered[agentID] = subs
	return subs, nil
}

func (f *fakeSubs) UnregisterAll(agentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregisterAll[agentID] = true
	return int64(len(f.registered[agentID])), nil
}

type fakeStates struct {
	mu    sync.Mutex
	saved map[string]*core.AgentState
	seed  map[string]*core.AgentState
}

func newFakeReconcileStates() *fakeStates {
	return &fakeStates{saved: map[string]*core.AgentState{}, seed: map[string]*core.AgentState{}}
}

func (f *fakeStates) Load(agentID string) (*core.AgentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seed[agentID], nil
}

func (f *fakeStates) Save(state *core.AgentState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[state.AgentID] = state
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []core.Event
}

func (f *fakeEvents) Append(graphID string, e core.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return int64(len(f.events)), nil
}

func TestReconciler_CreatesNewlyDiscoveredNodes(t *testing.T) {
	agents := newFakeAgents()
	subs := newFakeSubs()
	states := newFakeReconcileStates()
	events := &fakeEvents{}
	disco := reconcile.StaticDiscoverer{Nodes: []reconcile.DiscoveredNode{
		{NodeID: "n1", NodeType: "function", Name: "Foo", FilePath: "/proj/src/foo.go"},
	}}

	r := reconcile.New(agents, subs, states, events, disco, nil, "swarm")

	result, err := r.Run("/proj", []string{"src/"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Created != 1 || result.Total != 1 {
		t.Errorf("got %+v", result)
	}
	if _, ok := agents.upserted["n1"]; !ok {
		t.Error("expected n1 to be upserted")
	}
	if _, ok := states.saved["n1"]; !ok {
		t.Error("expected n1 initial state to be saved")
	}
	if len(subs.registered["n1"]) != 2 {
		t.Errorf("expected 2 default subscriptions for n1, got %d", len(subs.registered["n1"]))
	}
}

func TestReconciler_OrphansDeletedNodes(t *testing.T) {
	agents := newFakeAgents(core.Agent{AgentID: "gone", NodeType: "function", FilePath: "src/gone.go"})
	subs := newFakeSubs()
	states := newFakeReconcileStates()
	events := &fakeEvents{}
	disco := reconcile.StaticDiscoverer{} // nothing discovered

	r := reconcile.New(agents, subs, states, events, disco, nil, "swarm")

	result, err := r.Run("/proj", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Orphaned != 1 {
		t.Errorf("expected 1 orphaned, got %+v", result)
	}
	if !agents.orphaned["gone"] {
		t.Error("expected MarkOrphaned called for gone")
	}
	if !subs.unregisterAll["gone"] {
		t.Error("expected UnregisterAll called for gone")
	}
}

func TestReconciler_DriftEmitsContentChangedEvent(t *testing.T) {
	agents := newFakeAgents(core.Agent{AgentID: "n1", NodeType: "function", FilePath: "/proj/src/foo.go"})
	subs := newFakeSubs()
	states := newFakeReconcileStates()
	states.seed["n1"] = &core.AgentState{AgentID: "n1", FilePath: "src/foo.go", LastUpdated: 100}
	events := &fakeEvents{}
	disco := reconcile.StaticDiscoverer{Nodes: []reconcile.DiscoveredNode{
		{NodeID: "n1", NodeType: "function", FilePath: "/proj/src/foo.go", ModTime: 200},
	}}

	r := reconcile.New(agents, subs, states, events, disco, nil, "swarm")

	result, err := r.Run("/proj", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", result)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected 1 synthetic event, got %d", len(events.events))
	}
	changed, ok := events.events[0].Payload.(core.ContentChangedEvent)
	if !ok {
		t.Fatalf("expected ContentChangedEvent, got %T", events.events[0].Payload)
	}
	if changed.Diff != "File modified while daemon offline." {
		t.Errorf("Diff: got %q", changed.Diff)
	}
	if states.saved["n1"].LastUpdated <= 100 {
		t.Error("expected LastUpdated to be re-stamped after drift detection")
	}
}

func TestReconciler_NoDriftWhenUnchanged(t *testing.T) {
	agents := newFakeAgents(core.Agent{AgentID: "n1", NodeType: "function", FilePath: "/proj/src/foo.go"})
	subs := newFakeSubs()
	states := newFakeReconcileStates()
	states.seed["n1"] = &core.AgentState{AgentID: "n1", FilePath: "src/foo.go", LastUpdated: 500}
	events := &fakeEvents{}
	disco := reconcile.StaticDiscoverer{Nodes: []reconcile.DiscoveredNode{
		{NodeID: "n1", NodeType: "function", FilePath: "/proj/src/foo.go", ModTime: 200},
	}}

	r := reconcile.New(agents, subs, states, events, disco, nil, "swarm")

	result, err := r.Run("/proj", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Updated != 0 {
		t.Errorf("expected no drift, got %+v", result)
	}
	if len(events.events) != 0 {
		t.Errorf("expected no synthetic events, got %d", len(events.events))
	}
}

func TestReconciler_PerIDFailureIsolatesAndReportsPartial(t *testing.T) {
	agents := newFakeAgents()
	agents.upsertErr["bad"] = errors.New("db locked")
	subs := newFakeSubs()
	states := newFakeReconcileStates()
	events := &fakeEvents{}
	disco := reconcile.StaticDiscoverer{Nodes: []reconcile.DiscoveredNode{
		{NodeID: "bad", NodeType: "function", FilePath: "/proj/src/bad.go"},
		{NodeID: "good", NodeType: "function", FilePath: "/proj/src/good.go"},
	}}

	r := reconcile.New(agents, subs, states, events, disco, nil, "swarm")

	result, err := r.Run("/proj", nil, nil)
	if err == nil {
		t.Fatal("expected a partial failure error")
	}
	var partial *core.ReconcilerPartial
	if !errors.As(err, &partial) {
		t.Fatalf("expected *core.ReconcilerPartial, got %T: %v", err, err)
	}
	if _, ok := partial.Failures["bad"]; !ok {
		t.Errorf("expected failure recorded for bad, got %+v", partial.Failures)
	}
	if result.Created != 1 {
		t.Errorf("expected the good id to still be created, got %+v", result)
	}
	if _, ok := agents.upserted["good"]; !ok {
		t.Error("expected good to be upserted despite bad's failure")
	}
}
