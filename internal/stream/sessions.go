package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

type createSessionRequest struct {
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body creates an anonymous session.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sess, err := s.store.Create(r.Context(), req.UserID, req.Metadata)
	if err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	s.logger.Info(r.Context(), "session created", "session_id", sess.ID, "user_id", sess.UserID)
	writeJSON(w, sessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	writeJSON(w, sessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.store.Close(r.Context(), sessionID); err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	s.logger.Info(r.Context(), "session closed", "session_id", sessionID)
	writeJSON(w, map[string]string{"status": "closed", "session_id": sessionID})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	messages, err := s.store.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	writeJSON(w, map[string]any{
		"session_id":     sessionID,
		"messages":       messages,
		"total_messages": len(messages),
	})
}
