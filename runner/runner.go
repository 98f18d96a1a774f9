// ABOUTME: Agent Runner drains Event Store triggers and executes agent turns with cascade prevention.
// ABOUTME: Gates every trigger on a per-agent cooldown and a per-(agent,correlation) cascade-depth limit.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Bullish-Design/remora/core"
)

const (
	depthCleanupInterval = 60 * time.Second
	depthEntryTTL        = 300 * time.Second
)

// AgentStateStore is the subset of store.FSAgentStateStore the Runner
// needs to load and persist state around a turn.
type AgentStateStore interface {
	Load(agentID string) (*core.AgentState, error)
	Save(state *core.AgentState) error
}

// EventAppender is the subset of store.SQLiteEventStore the Runner needs
// to emit its own lifecycle events (AgentStart/AgentComplete/AgentError).
type EventAppender interface {
	Append(graphID string, e core.Event) (int64, error)
}

// Config bounds one Runner's concurrency and cascade-prevention behavior.
type Config struct {
	SwarmID           string
	MaxConcurrency    int
	MaxTriggerDepth   int
	TriggerCooldownMs int64
}

// DefaultConfig matches the defaults carried over from the original
// system's remora.yaml.
func DefaultConfig() Config {
	return Config{
		SwarmID:           "swarm",
		MaxConcurrency:    4,
		MaxTriggerDepth:   5,
		TriggerCooldownMs: 1000,
	}
}

// depthEntry tracks the in-flight cascade depth for one (agent,
// correlation) pair and when it was last touched, for TTL eviction.
type depthEntry struct {
	depth    int
	lastSeen time.Time
}

// Runner is the reactive Agent Runner: it consumes (agent, event)
// triggers produced by the Event Store's Append and, subject to cooldown
// and cascade-depth gates, spawns a bounded number of concurrent agent
// turns via the injected Executor.
type Runner struct {
	cfg       Config
	states    AgentStateStore
	events    EventAppender
	executor  Executor
	semaphore chan struct{}

	mu            sync.Mutex
	lastTrigger   map[string]int64 // agent_id -> unix millis
	depth         map[string]depthEntry
	wg            sync.WaitGroup
}

// New constructs a Runner. states persists agent runtime snapshots,
// events is used only to emit the Runner's own lifecycle events, and
// executor actually runs a turn.
func New(cfg Config, states AgentStateStore, events EventAppender, executor Executor) *Runner {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Runner{
		cfg:         cfg,
		states:      states,
		events:      events,
		executor:    executor,
		semaphore:   make(chan struct{}, cfg.MaxConcurrency),
		lastTrigger: make(map[string]int64),
		depth:       make(map[string]depthEntry),
	}
}

// Run drains triggers until ctx is canceled or triggers is closed,
// spawning one goroutine per admitted trigger and waiting for all
// in-flight turns to finish before returning.
func (r *Runner) Run(ctx context.Context, triggers <-chan core.Trigger) {
	log.Printf("component=runner action=start max_concurrency=%d max_trigger_depth=%d cooldown_ms=%d",
		r.cfg.MaxConcurrency, r.cfg.MaxTriggerDepth, r.cfg.TriggerCooldownMs)

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		r.cleanupLoop(ctx)
	}()

	defer func() {
		<-cleanupDone
		r.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Printf("component=runner action=stop reason=context_canceled")
			return
		case trig, ok := <-triggers:
			if !ok {
				log.Printf("component=runner action=stop reason=triggers_closed")
				return
			}
			r.admit(ctx, trig)
		}
	}
}

// admit applies the cooldown and depth gates, then spawns the trigger's
// turn if both pass.
func (r *Runner) admit(ctx context.Context, trig core.Trigger) {
	if !r.checkCooldown(trig.AgentID) {
		log.Printf("component=runner action=drop_cooldown agent_id=%s", trig.AgentID)
		return
	}

	correlationID := normalizeCorrelationID(trig.Event)
	key := correlationKey(trig.AgentID, correlationID)

	if !r.checkDepthLimit(key) {
		log.Printf("component=runner action=drop_depth_limit agent_id=%s correlation_id=%s", trig.AgentID, correlationID)
		return
	}

	r.wg.Add(1)
	go r.processTrigger(ctx, trig, key)
}

func (r *Runner) checkCooldown(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UnixMilli()
	last := r.lastTrigger[agentID]
	if now-last < r.cfg.TriggerCooldownMs {
		return false
	}
	r.lastTrigger[agentID] = now
	return true
}

func (r *Runner) checkDepthLimit(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.depth[key]
	return entry.depth < r.cfg.MaxTriggerDepth
}

// processTrigger re-checks the depth gate inside the acquired semaphore
// permit (a second gate beyond admit's loop-level check, kept as-is from
// the original implementation) before running the turn, then always
// decrements the depth counter on the way out.
func (r *Runner) processTrigger(ctx context.Context, trig core.Trigger, key string) {
	defer r.wg.Done()

	select {
	case r.semaphore <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-r.semaphore }()

	r.mu.Lock()
	current := r.depth[key]
	if current.depth >= r.cfg.MaxTriggerDepth {
		r.mu.Unlock()
		log.Printf("component=runner action=cascade_limit_reached key=%s", key)
		return
	}
	r.depth[key] = depthEntry{depth: current.depth + 1, lastSeen: time.Now()}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		entry := r.depth[key]
		remaining := entry.depth - 1
		if remaining <= 0 {
			delete(r.depth, key)
		} else {
			r.depth[key] = depthEntry{depth: remaining, lastSeen: entry.lastSeen}
		}
		r.mu.Unlock()
	}()

	if err := r.executeTurn(ctx, trig.AgentID, trig.Event); err != nil {
		log.Printf("component=runner action=turn_error agent_id=%s err=%v", trig.AgentID, err)
	}
}

func (r *Runner) executeTurn(ctx context.Context, agentID string, trigger core.Event) error {
	state, err := r.states.Load(agentID)
	if err != nil {
		r.emitError(agentID, fmt.Sprintf("load state failed: %v", err))
		return err
	}
	if state == nil {
		msg := fmt.Sprintf("agent state not found for %s", agentID)
		r.emitError(agentID, msg)
		return fmt.Errorf(msg)
	}

	r.emit(core.AgentStartEvent{AgentID: agentID, NodeName: state.NodeType})

	result, err := r.executor.RunAgent(ctx, state, trigger)
	if err != nil {
		if saveErr := r.states.Save(state); saveErr != nil {
			log.Printf("component=runner action=save_after_error_failed agent_id=%s err=%v", agentID, saveErr)
		}
		r.emitError(agentID, err.Error())
		return &core.ExecutorFailure{AgentID: agentID, Err: err}
	}

	if err := r.states.Save(state); err != nil {
		log.Printf("component=runner action=save_failed agent_id=%s err=%v", agentID, err)
		return err
	}

	summary := result
	if len(summary) > 200 {
		summary = summary[:200]
	}
	r.emit(core.AgentCompleteEvent{AgentID: agentID, ResultSummary: summary})
	return nil
}

func (r *Runner) emitError(agentID, message string) {
	r.emit(core.AgentErrorEvent{AgentID: agentID, Error: message})
}

func (r *Runner) emit(payload core.EventPayload) {
	if r.events == nil {
		return
	}
	if _, err := r.events.Append(r.cfg.SwarmID, core.Event{Payload: payload}); err != nil {
		log.Printf("component=runner action=emit_failed err=%v", err)
	}
}

// cleanupLoop evicts correlation-depth entries idle longer than
// depthEntryTTL, preventing unbounded growth from correlation ids that
// never return to zero depth (e.g. a crashed turn).
func (r *Runner) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(depthCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepStaleDepth()
		}
	}
}

func (r *Runner) sweepStaleDepth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, entry := range r.depth {
		if now.Sub(entry.lastSeen) > depthEntryTTL {
			delete(r.depth, key)
		}
	}
}

func normalizeCorrelationID(e core.Event) string {
	if e.CorrelationID != "" {
		return e.CorrelationID
	}
	if e.ID != 0 {
		return fmt.Sprintf("%d", e.ID)
	}
	return "base"
}

func correlationKey(agentID, correlationID string) string {
	return agentID + ":" + correlationID
}
