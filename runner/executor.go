// ABOUTME: Executor is the external collaborator that actually runs an agent turn against a model/tool runtime.
// ABOUTME: The runner package only calls through this interface; model/tool execution is out of this runtime's scope.
package runner

import (
	"context"

	"github.com/Bullish-Design/remora/core"
)

// Executor runs a single agent turn given the agent's current state and
// the event that triggered it, mutating state in place (chat history,
// connections, etc.) and returning a short human-readable result summary.
// Implementations own everything about how a turn happens: which model is
// called, which tools are invoked, how ToolCallEvent/ToolResultEvent/
// ModelRequestEvent/ModelResponseEvent/TurnCompleteEvent markers get
// produced. The runner package never constructs those marker events
// itself. Implementations MUST be cancellable on ctx cancellation (e.g. a
// model call should use ctx, not run to completion unconditionally).
type Executor interface {
	RunAgent(ctx context.Context, state *core.AgentState, trigger core.Event) (string, error)
}

// NoopExecutor is a trivial Executor for tests and for running the swarm
// with no turn logic wired in yet. It leaves state untouched and reports
// success.
type NoopExecutor struct{}

// RunAgent implements Executor.
func (NoopExecutor) RunAgent(ctx context.Context, state *core.AgentState, trigger core.Event) (string, error) {
	return "noop", nil
}
