package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/registry"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

type agentView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Capabilities  []string `json:"capabilities"`
	Health        string   `json:"health"`
	Load          int      `json:"load"`
	MaxCapacity   int      `json:"max_capacity"`
	LastHeartbeat string   `json:"last_heartbeat"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	records := s.registry.List(registry.Filter{})
	views := make([]agentView, 0, len(records))
	for _, rec := range records {
		_, health, _ := s.registry.Get(rec.ID)
		views = append(views, agentView{
			ID:            rec.ID,
			Name:          rec.Name,
			Capabilities:  rec.Capabilities,
			Health:        string(health),
			Load:          rec.Load,
			MaxCapacity:   rec.MaxCapacity,
			LastHeartbeat: rec.LastHeartbeat.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, map[string]any{"agents": views, "total": len(views)})
}

type registerAgentRequest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities"`
	Endpoint     string            `json:"endpoint"`
	MaxCapacity  int               `json:"max_capacity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// handleRegisterAgent lets specialized agents self-publish on start-up.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.KindInvalidRequest, "malformed request body"), "")
		return
	}
	err := s.registry.Register(r.Context(), registry.Record{
		ID:           req.ID,
		Name:         req.Name,
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
		MaxCapacity:  req.MaxCapacity,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	writeJSON(w, map[string]string{"status": "registered", "id": req.ID})
}

type heartbeatRequest struct {
	Load int `json:"load"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req := heartbeatRequest{Load: -1}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.registry.Heartbeat(r.Context(), id, req.Load); err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDeregisterAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Deregister(r.Context(), id); err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	writeJSON(w, map[string]string{"status": "deregistered", "id": id})
}
