// ABOUTME: HTTP route wiring for the remora swarm daemon using chi.
// ABOUTME: Exposes agent registry, graph, and reconcile-on-demand endpoints plus the SSE stream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/store"
)

var errReconcilerNotConfigured = errors.New("reconciler not configured for this project")

// NewRouter builds the chi router for s.
func NewRouter(s *AppState) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/agents", s.handleListAgents)
	r.Get("/agents/{agentID}", s.handleGetAgent)
	r.Get("/graphs", s.handleListGraphs)
	r.Get("/graphs/{graphID}/events", s.handleReplay)
	r.Post("/reconcile", s.handleReconcile)
	r.Get("/events/stream", s.HandleEventStream)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Post("/graphs/{graphID}/human-input", s.handleHumanInputRequest)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *AppState) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"project": s.ProjectRoot,
		"run_id":  s.RunID,
		"running": s.Running(),
	})
}

func (s *AppState) handleListAgents(w http.ResponseWriter, r *http.Request) {
	status := core.AgentStatus(r.URL.Query().Get("status"))
	agents, err := s.Agents.ListAgents(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *AppState) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	agent, err := s.Agents.GetAgent(agentID)
	if err != nil {
		if err == core.ErrAgentNotFound {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *AppState) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.Events.GraphIDs(100, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, graphs)
}

func (s *AppState) handleReplay(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")
	events, err := s.Events.Replay(graphID, store.ReplayFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *AppState) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.Reconciler == nil {
		writeError(w, http.StatusNotFound, errReconcilerNotConfigured)
		return
	}
	var body struct {
		DiscoveryPaths []string `json:"discovery_paths"`
		Languages      []string `json:"languages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	result, err := s.Reconciler.Run(s.ProjectRoot, body.DiscoveryPaths, body.Languages)
	if err != nil {
		if _, ok := err.(*core.ReconcilerPartial); !ok {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"error":  errString(err),
	})
}

func (s *AppState) handleHumanInputRequest(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")

	var body struct {
		ToAgent string   `json:"to_agent"`
		Prompt  string   `json:"prompt"`
		Options []string `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	requestID := uuid.New().String()
	event := core.Event{
		ToAgent: body.ToAgent,
		Payload: core.HumanInputRequestEvent{RequestID: requestID, Prompt: body.Prompt, Options: body.Options},
	}

	id, err := s.Events.Append(graphID, event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id":   id,
		"request_id": requestID,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
