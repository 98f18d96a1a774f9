// ABOUTME: Shared application state for the remora swarm daemon's HTTP server.
// ABOUTME: Holds the wired registries/bus/runner for one project and the running swarm's cancel function.
package server

import (
	"context"
	"log"
	"sync"

	"github.com/Bullish-Design/remora/bus"
	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/reconcile"
	"github.com/Bullish-Design/remora/runner"
	"github.com/Bullish-Design/remora/store"
)

// SwarmHandle bundles a running Runner with the cancel function that
// stops it.
type SwarmHandle struct {
	Runner *runner.Runner
	Cancel context.CancelFunc
}

// AppState holds every wired component one running swarm needs and the
// cancel handle for the Runner goroutine, if started.
type AppState struct {
	mu sync.RWMutex

	ProjectRoot   string
	RunID         string // ULID minted once per process boot, for log/health correlation
	Events        *store.SQLiteEventStore
	Subscriptions *store.SQLiteSubscriptionRegistry
	Agents        *store.SQLiteAgentRegistry
	States        *store.FSAgentStateStore
	Bus           *bus.Bus
	Reconciler    *reconcile.Reconciler

	swarm *SwarmHandle
}

// NewAppState wires the given components into an AppState for one
// project root. RunID is minted here, so every AppState, including ones
// built directly in tests, carries its own freshly minted identifier.
func NewAppState(projectRoot string, events *store.SQLiteEventStore, subs *store.SQLiteSubscriptionRegistry, agents *store.SQLiteAgentRegistry, states *store.FSAgentStateStore, b *bus.Bus, recon *reconcile.Reconciler) *AppState {
	return &AppState{
		ProjectRoot:   projectRoot,
		RunID:         core.NewULID().String(),
		Events:        events,
		Subscriptions: subs,
		Agents:        agents,
		States:        states,
		Bus:           b,
		Reconciler:    recon,
	}
}

// TryStart starts r's Run loop against triggers if no swarm is already
// running. Holds the lock across the check-and-set to prevent a
// double-start race between concurrent callers. Returns true if a swarm
// was started.
func (s *AppState) TryStart(r *runner.Runner, triggers <-chan core.Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.swarm != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx, triggers)

	s.swarm = &SwarmHandle{Runner: r, Cancel: cancel}
	log.Printf("component=server action=swarm_started project=%s", s.ProjectRoot)
	return true
}

// Stop cancels the running swarm, if any, and returns true if one was
// stopped.
func (s *AppState) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.swarm == nil {
		return false
	}
	log.Printf("component=server action=swarm_stop project=%s", s.ProjectRoot)
	s.swarm.Cancel()
	s.swarm = nil
	return true
}

// Running reports whether a swarm is currently running.
func (s *AppState) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.swarm != nil
}
