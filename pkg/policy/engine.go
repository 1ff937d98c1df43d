package policy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Decision is the allow/deny verdict plus the restrictions the caller
// must apply (execution budgets in particular).
type Decision struct {
	Allowed             bool           `json:"allowed"`
	Reason              string         `json:"reason"`
	Subcode             string         `json:"subcode,omitempty"`
	AppliedRestrictions map[string]any `json:"applied_restrictions,omitempty"`
}

// Reasons are drawn from a finite set.
const (
	ReasonAllowed            = "Allowed"
	ReasonExplicitDeny       = "ExplicitDeny"
	ReasonDefaultDeny        = "DefaultDeny"
	ReasonParameterForbidden = "ParameterForbidden"
	ReasonRateLimited        = "RateLimited"
)

// Metrics tracks compliance counters. Values only increase.
type Metrics struct {
	TotalRequests       atomic.Int64
	AllowedRequests     atomic.Int64
	DeniedRequests      atomic.Int64
	RateLimitHits       atomic.Int64
	ParameterViolations atomic.Int64
}

// Snapshot returns a plain-value view of the metrics.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"total_requests":       m.TotalRequests.Load(),
		"allowed_requests":     m.AllowedRequests.Load(),
		"denied_requests":      m.DeniedRequests.Load(),
		"rate_limit_hits":      m.RateLimitHits.Load(),
		"parameter_violations": m.ParameterViolations.Load(),
	}
}

// Source supplies policy documents. Sources are consulted in order on
// every reload; the first that yields a document wins.
type Source interface {
	Load(ctx context.Context) (*Document, error)
	Name() string
}

// FileSource loads a local YAML document.
type FileSource struct{ Path string }

func (s FileSource) Load(ctx context.Context) (*Document, error) { return LoadDocument(s.Path) }
func (s FileSource) Name() string                                { return "file:" + s.Path }

// StaticSource serves a fixed document. Used for defaults and tests.
type StaticSource struct {
	Doc        *Document
	SourceName string
}

func (s StaticSource) Load(ctx context.Context) (*Document, error) { return s.Doc, nil }
func (s StaticSource) Name() string                                { return s.SourceName }

// Engine evaluates policy. The active document is swapped atomically on
// reload; in-flight evaluations keep the snapshot they started with and
// the read path takes no locks.
type Engine struct {
	doc      atomic.Pointer[Document]
	sources  []Source
	counters RateCounters
	trail    *Trail
	metrics  Metrics
	logger   telemetry.Logger

	defaultRole string
}

// EngineOptions configures the engine.
type EngineOptions struct {
	// Sources are tried in order on Reload; first success wins. At
	// least one must be present (use StaticSource for defaults).
	Sources []Source
	// Counters default to in-memory fixed-window counters.
	Counters RateCounters
	// Trail defaults to an in-memory trail without a sink, capped at
	// 10000 entries.
	Trail *Trail
	// DefaultRole is used when the transaction carries none.
	DefaultRole string
	// Logger defaults to the standard sink.
	Logger telemetry.Logger
}

// NewEngine creates an engine and performs the initial load.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	if len(opts.Sources) == 0 {
		opts.Sources = []Source{StaticSource{Doc: DefaultDocument("deny"), SourceName: "defaults"}}
	}
	if opts.Counters == nil {
		opts.Counters = NewMemoryRateCounters(time.Hour)
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	if opts.Trail == nil {
		opts.Trail = NewTrail(0, nil, opts.Logger)
	}
	if opts.DefaultRole == "" {
		opts.DefaultRole = "anonymous"
	}
	e := &Engine{
		sources:     opts.Sources,
		counters:    opts.Counters,
		trail:       opts.Trail,
		logger:      opts.Logger,
		defaultRole: opts.DefaultRole,
	}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Document returns the active policy snapshot.
func (e *Engine) Document() *Document { return e.doc.Load() }

// Trail returns the audit trail.
func (e *Engine) Trail() *Trail { return e.trail }

// ComplianceMetrics returns the engine's counters.
func (e *Engine) ComplianceMetrics() map[string]int64 { return e.metrics.Snapshot() }

// Reload loads from the configured sources and publishes the new
// document at a single swap point. On failure the active document stays
// in place and a ConfigError is returned.
func (e *Engine) Reload(ctx context.Context) error {
	var lastErr error
	for _, src := range e.sources {
		doc, err := src.Load(ctx)
		if err != nil {
			lastErr = err
			e.logger.Warn(ctx, "policy source failed", "source", src.Name(), "error", err)
			continue
		}
		if doc == nil {
			continue
		}
		e.doc.Store(doc)
		e.logger.Info(ctx, "policy loaded", "source", src.Name())
		return nil
	}
	if e.doc.Load() != nil {
		return fault.Wrap(fault.KindConfigError, lastErr, "policy reload failed; previous policy remains active")
	}
	return fault.Wrap(fault.KindConfigError, lastErr, "no policy source available")
}

// Evaluate runs the full decision pipeline for one invocation:
// identity resolution, allow/deny lookup, parameter validation, rate
// check, and budget stamping. Every evaluation appends an audit entry.
func (e *Engine) Evaluate(ctx context.Context, resourceType ResourceType, resourceID, operation string, parameters map[string]any) Decision {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "policy.evaluate")
	defer span.End()

	txn := telemetry.TransactionFrom(ctx)
	role := txn.Role
	if role == "" {
		role = e.defaultRole
	}

	decision := e.decide(ctx, role, txn.UserID, resourceType, resourceID, parameters)

	e.metrics.TotalRequests.Add(1)
	if decision.Allowed {
		e.metrics.AllowedRequests.Add(1)
	} else {
		e.metrics.DeniedRequests.Add(1)
		switch decision.Subcode {
		case fault.SubcodeRateLimited:
			e.metrics.RateLimitHits.Add(1)
		case fault.SubcodeParameterForbidden:
			e.metrics.ParameterViolations.Add(1)
		}
	}

	e.trail.Append(ctx, AuditEntry{
		TransactionID: txn.ID,
		Timestamp:     time.Now().UTC(),
		SubjectID:     txn.UserID,
		Role:          role,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Operation:     operation,
		Allowed:       decision.Allowed,
		Reason:        decision.Reason,
		Latency:       time.Since(start),
	})
	return decision
}

func (e *Engine) decide(ctx context.Context, role, userID string, resourceType ResourceType, resourceID string, parameters map[string]any) Decision {
	doc := e.doc.Load()
	if !doc.Enabled() {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	section := doc.section(resourceType)

	// Deny overrides allow.
	if containsOrWildcard(section.DenyList, resourceID) {
		return Decision{Allowed: false, Reason: ReasonExplicitDeny, Subcode: fault.SubcodeExplicitDeny}
	}

	allowed := containsOrWildcard(doc.roleAccess(role, resourceType), resourceID) ||
		containsOrWildcard(section.AllowList, resourceID)
	if !allowed && doc.defaultPolicy(resourceType) != "allow" {
		return Decision{Allowed: false, Reason: ReasonDefaultDeny, Subcode: fault.SubcodeDefaultDeny}
	}

	restriction := doc.restriction(resourceType, resourceID)

	if len(parameters) > 0 {
		if bad := validateParameters(restriction, parameters); bad != "" {
			return Decision{
				Allowed: false,
				Reason:  ReasonParameterForbidden,
				Subcode: fault.SubcodeParameterForbidden,
				AppliedRestrictions: map[string]any{
					"parameter": bad,
				},
			}
		}
	}

	checks := []RateCheck{
		{Scope: ScopeGlobal, Subject: "core", Limit: doc.Governance.RateLimits.Global.RequestsPerHour},
		{Scope: ScopeUser, Subject: userID, Limit: doc.Governance.RateLimits.PerUser.RequestsPerHour},
		{Scope: ScopeResource, Subject: string(resourceType) + ":" + resourceID, Limit: perResourceLimit(doc, restriction)},
	}
	exceeded, err := e.counters.CheckAndIncrement(ctx, checks)
	if err != nil {
		e.logger.Error(ctx, "rate counter failure", "error", err)
		return Decision{Allowed: false, Reason: ReasonRateLimited, Subcode: fault.SubcodeRateLimited}
	}
	if exceeded != nil {
		return Decision{
			Allowed: false,
			Reason:  ReasonRateLimited,
			Subcode: fault.SubcodeRateLimited,
			AppliedRestrictions: map[string]any{
				"scope": string(exceeded.Scope),
				"limit": exceeded.Limit,
			},
		}
	}

	applied := make(map[string]any)
	if restriction.MaxExecutionTime > 0 {
		applied["max_execution_time"] = restriction.MaxExecutionTime
	}
	if len(restriction.AllowedParameters) > 0 {
		applied["allowed_parameters"] = restriction.AllowedParameters
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, AppliedRestrictions: applied}
}

// validateParameters returns the name of the first offending parameter,
// or "".
func validateParameters(res Restriction, parameters map[string]any) string {
	for name := range parameters {
		for _, forbidden := range res.ForbiddenParameters {
			if name == forbidden {
				return name
			}
		}
	}
	if len(res.AllowedParameters) > 0 && !containsOrWildcard(res.AllowedParameters, "*") {
		allowed := make(map[string]bool, len(res.AllowedParameters))
		for _, p := range res.AllowedParameters {
			allowed[p] = true
		}
		for name := range parameters {
			if !allowed[name] {
				return name
			}
		}
	}
	return ""
}

func perResourceLimit(doc *Document, res Restriction) int {
	if res.RateLimitPerHour > 0 {
		return res.RateLimitPerHour
	}
	return doc.Governance.RateLimits.PerResource.RequestsPerHour
}

// MaxExecutionTime extracts the stamped budget from a decision, or 0.
func (d Decision) MaxExecutionTime() time.Duration {
	if v, ok := d.AppliedRestrictions["max_execution_time"]; ok {
		if secs, ok := v.(int); ok {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Err converts a denial into the matching fault, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fault.Denied(d.Subcode, "policy denied: %s", d.Reason)
}
