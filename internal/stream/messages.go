package stream

import (
	"encoding/json"
	"net/http"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

type messageRequest struct {
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Context   map[string]any `json:"context,omitempty"`
}

// handleMessages is the synchronous transport: it blocks until the
// orchestration completes and returns the aggregated result.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.KindInvalidRequest, "malformed request body"), "")
		return
	}
	if req.SessionID == "" || req.Content == "" {
		writeError(w, fault.New(fault.KindInvalidRequest, "session_id and content are required"), "")
		return
	}

	// Rebind the transaction to the session now that we know it.
	txn := telemetry.TransactionFrom(r.Context())
	txn.SessionID = req.SessionID
	ctx := telemetry.WithTransaction(r.Context(), txn)

	if err := s.store.AppendMessage(ctx, req.SessionID, session.Message{
		Role:    session.RoleUser,
		Content: req.Content,
	}); err != nil {
		writeError(w, err, txn.ID)
		return
	}

	result, err := s.scheduler.Process(ctx, req.SessionID, req.Content, req.Context)
	if err != nil {
		writeError(w, err, txn.ID)
		return
	}

	writeJSON(w, map[string]any{
		"transaction_id": txn.ID,
		"session_id":     req.SessionID,
		"result":         result,
	})
}
