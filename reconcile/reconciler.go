// ABOUTME: Reconciler diffs discovered source entities against the persisted agent registry at startup.
// ABOUTME: Creates new agents, orphans deleted ones, and emits synthetic ContentChangedEvents for offline drift.
package reconcile

import (
	"log"
	"time"

	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/pathutil"
)

// AgentRegistry is the subset of store.SQLiteAgentRegistry the Reconciler
// needs.
type AgentRegistry interface {
	Upsert(a core.Agent) error
	MarkOrphaned(agentID string) error
	ListAgents(status core.AgentStatus) ([]core.Agent, error)
}

// SubscriptionRegistry is the subset of store.SQLiteSubscriptionRegistry
// the Reconciler needs.
type SubscriptionRegistry interface {
	RegisterDefaults(agentID, filePath string) ([]core.Subscription, error)
	UnregisterAll(agentID string) (int64, error)
}

// AgentStateStore is the subset of store.FSAgentStateStore the Reconciler
// needs.
type AgentStateStore interface {
	Load(agentID string) (*core.AgentState, error)
	Save(state *core.AgentState) error
}

// EventAppender is the subset of store.SQLiteEventStore the Reconciler
// needs to emit synthetic drift events.
type EventAppender interface {
	Append(graphID string, e core.Event) (int64, error)
}

// Result summarizes one reconciliation run.
type Result struct {
	Created  int
	Orphaned int
	Updated  int
	Total    int
}

// Reconciler reconciles the persisted agent registry against a fresh
// discovery pass, used both at startup and optionally on demand.
type Reconciler struct {
	agents        AgentRegistry
	subscriptions SubscriptionRegistry
	states        AgentStateStore
	events        EventAppender
	discoverer    Discoverer
	resolver      *pathutil.Resolver
	swarmID       string
}

// New constructs a Reconciler.
func New(agents AgentRegistry, subscriptions SubscriptionRegistry, states AgentStateStore, events EventAppender, discoverer Discoverer, resolver *pathutil.Resolver, swarmID string) *Reconciler {
	if swarmID == "" {
		swarmID = "swarm"
	}
	return &Reconciler{
		agents:        agents,
		subscriptions: subscriptions,
		states:        states,
		events:        events,
		discoverer:    discoverer,
		resolver:      resolver,
		swarmID:       swarmID,
	}
}

// Run discovers every node under projectPath/discoveryPaths and
// reconciles the result against the persisted registry:
//
//   - nodes discovered but not registered are created (registry upsert,
//     initial state save, default subscriptions registered);
//   - agents registered but no longer discovered are marked orphaned and
//     have their subscriptions removed;
//   - agents present in both sets have their file's mtime compared
//     against their last-known state timestamp; if the file changed
//     since, a synthetic ContentChangedEvent is appended.
//
// A failure reconciling one agent id is logged and does not stop the
// rest of the run; if any occurred, the returned error is a
// *core.ReconcilerPartial wrapping them, but Result still reflects the
// work that did succeed.
func (r *Reconciler) Run(projectPath string, discoveryPaths, languages []string) (Result, error) {
	nodes, err := r.discoverer.Discover(projectPath, discoveryPaths, languages)
	if err != nil {
		return Result{}, err
	}

	nodeByID := make(map[string]DiscoveredNode, len(nodes))
	discoveredIDs := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		nodeByID[n.NodeID] = n
		discoveredIDs[n.NodeID] = true
	}

	existing, err := r.agents.ListAgents(core.AgentActive)
	if err != nil {
		return Result{}, err
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, a := range existing {
		existingIDs[a.AgentID] = true
	}

	var newIDs, deletedIDs, commonIDs []string
	for id := range discoveredIDs {
		if existingIDs[id] {
			commonIDs = append(commonIDs, id)
		} else {
			newIDs = append(newIDs, id)
		}
	}
	for id := range existingIDs {
		if !discoveredIDs[id] {
			deletedIDs = append(deletedIDs, id)
		}
	}

	failures := make(map[string]error)
	result := Result{Total: len(discoveredIDs)}

	for _, id := range newIDs {
		if err := r.createAgent(nodeByID[id]); err != nil {
			log.Printf("component=reconcile action=create_failed agent_id=%s err=%v", id, err)
			failures[id] = err
			continue
		}
		result.Created++
	}

	for _, id := range deletedIDs {
		if err := r.orphanAgent(id); err != nil {
			log.Printf("component=reconcile action=orphan_failed agent_id=%s err=%v", id, err)
			failures[id] = err
			continue
		}
		result.Orphaned++
	}

	for _, id := range commonIDs {
		updated, err := r.checkDrift(nodeByID[id])
		if err != nil {
			log.Printf("component=reconcile action=drift_check_failed agent_id=%s err=%v", id, err)
			failures[id] = err
			continue
		}
		if updated {
			result.Updated++
		}
	}

	if len(failures) > 0 {
		return result, &core.ReconcilerPartial{Failures: failures}
	}
	return result, nil
}

func (r *Reconciler) createAgent(node DiscoveredNode) error {
	agent := core.Agent{
		AgentID:   node.NodeID,
		NodeType:  node.NodeType,
		Name:      node.Name,
		FullName:  node.FullName,
		FilePath:  node.FilePath,
		ParentID:  node.ParentID,
		StartLine: node.StartLine,
		EndLine:   node.EndLine,
		Status:    core.AgentActive,
	}
	if err := r.agents.Upsert(agent); err != nil {
		return err
	}

	relPath, err := r.relativePath(node.FilePath)
	if err != nil {
		return err
	}

	state := &core.AgentState{
		AgentID:  node.NodeID,
		NodeType: node.NodeType,
		Name:     node.Name,
		FullName: node.FullName,
		FilePath: relPath,
		ParentID: node.ParentID,
		Range:    &[2]int{node.StartLine, node.EndLine},
	}
	if err := r.states.Save(state); err != nil {
		return err
	}

	_, err = r.subscriptions.RegisterDefaults(node.NodeID, relPath)
	return err
}

func (r *Reconciler) orphanAgent(agentID string) error {
	if err := r.agents.MarkOrphaned(agentID); err != nil {
		return err
	}
	_, err := r.subscriptions.UnregisterAll(agentID)
	return err
}

// checkDrift reports whether node's file changed since the agent's
// last-known state timestamp while the daemon was offline, appending a
// synthetic ContentChangedEvent and re-stamping the state if so.
func (r *Reconciler) checkDrift(node DiscoveredNode) (bool, error) {
	state, err := r.states.Load(node.NodeID)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}

	if float64(node.ModTime) <= state.LastUpdated {
		return false, nil
	}

	relPath, err := r.relativePath(node.FilePath)
	if err != nil {
		return false, err
	}

	if r.events != nil {
		_, err := r.events.Append(r.swarmID, core.Event{
			Payload: core.ContentChangedEvent{
				Path: relPath,
				Diff: "File modified while daemon offline.",
			},
		})
		if err != nil {
			return false, err
		}
	}

	state.LastUpdated = float64(time.Now().UnixNano()) / 1e9
	if err := r.states.Save(state); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) relativePath(filePath string) (string, error) {
	if r.resolver == nil {
		return pathutil.Normalize(filePath), nil
	}
	return r.resolver.ToProjectRelative(filePath)
}
