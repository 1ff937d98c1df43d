package stream

import (
	"net/http"

	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"patterns": []map[string]string{
			{"name": "simple", "description": "Single agent handles the whole request"},
			{"name": "sequential", "description": "Agents run in order, each consuming the previous output"},
			{"name": "parallel", "description": "Agents run concurrently on the same input"},
			{"name": "loop", "description": "Agents repeat until a condition is met or the iteration budget is spent"},
		},
	})
}

func (s *Server) handleOverrideOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"override_options": map[string]any{
			"orchestration_pattern": map[string]any{
				"type":   "string",
				"values": []string{"simple", "sequential", "parallel", "loop"},
			},
			"agents": map[string]any{
				"type":        "array",
				"description": "Agent ids or names to use; combine with orchestration_pattern",
			},
			"agent_sequence": map[string]any{
				"type":        "array",
				"description": "Ordered agent list for sequential execution",
			},
			"parallel_config": map[string]any{
				"type":   "object",
				"fields": map[string]string{"timeout": "seconds", "fail_fast": "bool"},
			},
			"loop_config": map[string]any{
				"type":   "object",
				"fields": map[string]string{"max_iterations": "int", "condition": "e.g. accuracy > 0.9"},
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Per-invocation timeout cap",
			},
		},
	})
}

// handlePolicyReload is the admin reload path. A failed load keeps the
// running policy and reports ConfigError.
func (s *Server) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(r.Context()); err != nil {
		writeError(w, err, telemetry.TransactionID(r.Context()))
		return
	}
	s.logger.Info(r.Context(), "policy reloaded via admin endpoint")
	writeJSON(w, map[string]string{"status": "reloaded"})
}
