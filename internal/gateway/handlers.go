package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tiendi/tiendi/internal/convo"
)

// HealthResponse is returned by the public health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by the authenticated status endpoint.
type StatusResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds int64    `json:"uptimeSeconds"`
	Channels      []string `json:"channels"`
	Operators     int      `json:"operators"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; details require the admin token on /status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// handleStatus returns detailed server status for operators.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedOperator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Channels:      s.configuredChannels(),
		Operators:     s.events.Count(),
	})
}

// ResumeResponse is returned by the hand-back endpoint.
type ResumeResponse struct {
	ConversationID string `json:"conversationId"`
	State          string `json:"state"`
}

// handleResume hands an escalated conversation back to the agent. The
// agent never exits the escalated state on its own; this operator call is
// the only way out. The store's Resume persists the handback transition
// whole: target state plus the cleared pending fields.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedOperator(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.convs == nil {
		http.Error(w, "not supported", http.StatusNotFound)
		return
	}

	id := r.PathValue("id")
	conv, err := s.convs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	next, _, err := convo.Transition(conv.State, convo.Event{Kind: convo.EventHandback})
	if err != nil {
		http.Error(w, "conversation is not escalated", http.StatusConflict)
		return
	}
	if err := s.convs.Resume(r.Context(), id); err != nil {
		s.log.Error().Err(err).Str("conversation", id).Msg("hand-back failed")
		http.Error(w, "resume failed", http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("conversation", id).Msg("conversation handed back to agent")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResumeResponse{
		ConversationID: id,
		State:          string(next),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}
