// ABOUTME: Renders a plain-text diagnostics report (agent/graph counts) as HTML via goldmark.
// ABOUTME: Exists so operators can view swarm health in a browser without a separate UI build.
package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/Bullish-Design/remora/core"
)

func (s *AppState) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	md := s.diagnosticsMarkdown()

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><meta charset=\"utf-8\"><title>remora diagnostics</title>"))
	_, _ = buf.WriteTo(w)
}

func (s *AppState) diagnosticsMarkdown() string {
	active, err := s.Agents.ListAgents(core.AgentActive)
	activeCount := len(active)
	if err != nil {
		activeCount = -1
	}

	graphs, err := s.Events.GraphIDs(1000, nil)
	graphCount := len(graphs)
	if err != nil {
		graphCount = -1
	}

	return fmt.Sprintf(
		"# Swarm Diagnostics\n\n"+
			"- Project: `%s`\n"+
			"- Run ID: `%s`\n"+
			"- Running: **%v**\n"+
			"- Active agents: **%d**\n"+
			"- Graphs recorded: **%d**\n"+
			"- Bus subscribers: **%d**\n",
		s.ProjectRoot, s.RunID, s.Running(), activeCount, graphCount, s.Bus.SubscriberCount(),
	)
}
