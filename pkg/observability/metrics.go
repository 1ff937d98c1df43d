// Package observability provides prometheus metrics and health checks
// for the orchestration core.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transport metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Scheduler metrics
	orchestrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_orchestrations_total",
			Help: "Total number of orchestrated requests",
		},
		[]string{"pattern", "status"},
	)

	orchestrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_orchestration_duration_seconds",
			Help:    "End-to-end orchestration duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pattern"},
	)

	agentInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_agent_invocations_total",
			Help: "Total number of specialized-agent invocations",
		},
		[]string{"agent", "status"},
	)

	// Tool server metrics
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Policy metrics
	policyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_policy_decisions_total",
			Help: "Total number of policy evaluations",
		},
		[]string{"resource_type", "decision"},
	)

	// Session metrics
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentcore_active_sessions",
			Help: "Number of live sessions",
		},
	)

	sessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_session_events_total",
			Help: "Total number of session events enqueued",
		},
		[]string{"type"},
	)

	// Registry metrics
	registeredAgents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcore_registered_agents",
			Help: "Number of registered agents by derived health",
		},
		[]string{"health"},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			orchestrationsTotal,
			orchestrationDuration,
			agentInvocationsTotal,
			toolCallsTotal,
			toolCallDuration,
			policyDecisionsTotal,
			activeSessions,
			sessionEventsTotal,
			registeredAgents,
		)
	})
}

// MetricsHandler returns the prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records a transport request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOrchestration records a completed orchestration.
func RecordOrchestration(pattern, status string, duration time.Duration) {
	orchestrationsTotal.WithLabelValues(pattern, status).Inc()
	orchestrationDuration.WithLabelValues(pattern).Observe(duration.Seconds())
}

// RecordAgentInvocation records one specialized-agent call.
func RecordAgentInvocation(agent, status string) {
	agentInvocationsTotal.WithLabelValues(agent, status).Inc()
}

// RecordToolCall records one tool-server call.
func RecordToolCall(tool, status string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordPolicyDecision records one policy evaluation.
func RecordPolicyDecision(resourceType, decision string) {
	policyDecisionsTotal.WithLabelValues(resourceType, decision).Inc()
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSessionEvent counts an enqueued event.
func RecordSessionEvent(eventType string) {
	sessionEventsTotal.WithLabelValues(eventType).Inc()
}

// SetRegisteredAgents updates the registry gauge for one health state.
func SetRegisteredAgents(health string, n int) {
	registeredAgents.WithLabelValues(health).Set(float64(n))
}
