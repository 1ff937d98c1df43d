package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// handleStream is the server-sent-events transport. Events are
// delivered in queue order until a terminal event or disconnect; a
// reconnect with the last cursor resumes from the next event still in
// the retention window.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, fault.New(fault.KindInvalidRequest, "session_id is required"), "")
		return
	}
	if _, err := s.store.Get(r.Context(), sessionID); err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}

	var cursor uint64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fault.New(fault.KindInvalidRequest, "malformed cursor"), "")
			return
		}
		cursor = parsed
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fault.New(fault.KindInternal, "streaming unsupported"), "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	for {
		events, next, err := s.store.DequeueEvents(r.Context(), sessionID, cursor)
		if err != nil {
			// Client disconnect or session teardown ends the stream.
			return
		}
		cursor = next
		for _, ev := range events {
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev session.Event) error {
	data, err := json.Marshal(map[string]any{
		"id":        ev.ID,
		"seq":       ev.Seq,
		"payload":   ev.Payload,
		"timestamp": ev.Timestamp,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.Seq, data)
	return err
}
