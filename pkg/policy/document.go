// Package policy evaluates per-invocation governance decisions:
// allow/deny from role and resource rules, parameter whitelisting,
// rate limits, and execution budgets. Every evaluation is audited.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceType distinguishes the governed resource families.
type ResourceType string

const (
	ResourceAgent ResourceType = "agent"
	ResourceTool  ResourceType = "tool"
)

// Document is an immutable policy snapshot. Readers take a handle via
// the engine; writers publish a whole new document on reload.
type Document struct {
	Governance Governance `yaml:"governance"`
}

// Governance is the root policy section.
type Governance struct {
	Enabled       *bool            `yaml:"enabled"`
	DefaultPolicy string           `yaml:"default_policy"`
	Agents        ResourceSection  `yaml:"agents"`
	Tools         ResourceSection  `yaml:"tools"`
	Users         UserSection      `yaml:"users"`
	RateLimits    RateLimitSection `yaml:"rate_limits"`
	Execution     ExecutionLimits  `yaml:"execution_limits"`
}

// ResourceSection holds per-family allow/deny lists and restrictions.
type ResourceSection struct {
	DefaultPolicy string                 `yaml:"default_policy"`
	AllowList     []string               `yaml:"allow_list"`
	DenyList      []string               `yaml:"deny_list"`
	Restrictions  map[string]Restriction `yaml:"restrictions"`
}

// Restriction is the per-resource rule set: execution budget, parameter
// lists, and an hourly rate cap. Allow or deny is decided by the deny,
// role, and allow lists, not here. A zero MaxExecutionTime falls back to
// the global execution limits.
type Restriction struct {
	MaxExecutionTime    int      `yaml:"max_execution_time"`
	AllowedParameters   []string `yaml:"allowed_parameters"`
	ForbiddenParameters []string `yaml:"forbidden_parameters"`
	RateLimitPerHour    int      `yaml:"rate_limit_per_hour"`
}

// UserSection maps roles to resource access.
type UserSection struct {
	RoleBasedAccess map[string]RoleAccess `yaml:"role_based_access"`
}

// RoleAccess lists the agent and tool ids a role may use. "*" grants
// the whole family.
type RoleAccess struct {
	Agents []string `yaml:"agents"`
	Tools  []string `yaml:"tools"`
}

// RateLimitSection configures the fixed-window counters.
type RateLimitSection struct {
	Global      WindowLimit `yaml:"global"`
	PerUser     WindowLimit `yaml:"per_user"`
	PerResource WindowLimit `yaml:"per_resource"`
}

// WindowLimit is a requests-per-hour cap. Zero means unlimited.
type WindowLimit struct {
	RequestsPerHour int `yaml:"requests_per_hour"`
}

// ExecutionLimits are the global execution restrictions applied when a
// resource has none of its own.
type ExecutionLimits struct {
	MaxExecutionTime int `yaml:"max_execution_time"`
}

// Enabled reports whether the policy engine is active. Disabled means
// allow-all (used only in development).
func (d *Document) Enabled() bool {
	if d.Governance.Enabled == nil {
		return true
	}
	return *d.Governance.Enabled
}

// section returns the rules for a resource family.
func (d *Document) section(rt ResourceType) ResourceSection {
	if rt == ResourceTool {
		return d.Governance.Tools
	}
	return d.Governance.Agents
}

// defaultPolicy resolves the effective default for a family.
func (d *Document) defaultPolicy(rt ResourceType) string {
	if p := d.section(rt).DefaultPolicy; p != "" {
		return p
	}
	if p := d.Governance.DefaultPolicy; p != "" {
		return p
	}
	return "deny"
}

// restriction resolves the effective restriction for a resource,
// falling back to the global execution limits.
func (d *Document) restriction(rt ResourceType, resourceID string) Restriction {
	res := d.section(rt).Restrictions[resourceID]
	if res.MaxExecutionTime == 0 {
		res.MaxExecutionTime = d.Governance.Execution.MaxExecutionTime
	}
	return res
}

// roleAccess returns the resource ids granted to a role.
func (d *Document) roleAccess(role string, rt ResourceType) []string {
	access, ok := d.Governance.Users.RoleBasedAccess[role]
	if !ok {
		return nil
	}
	if rt == ResourceTool {
		return access.Tools
	}
	return access.Agents
}

// DefaultDocument returns the built-in baseline: the given default
// policy ("deny" when empty), no role grants, and a global limit of
// 1000 requests per hour.
func DefaultDocument(defaultPolicy string) *Document {
	if defaultPolicy == "" {
		defaultPolicy = "deny"
	}
	return &Document{
		Governance: Governance{
			DefaultPolicy: defaultPolicy,
			RateLimits: RateLimitSection{
				Global: WindowLimit{RequestsPerHour: 1000},
			},
		},
	}
}

// LoadDocument parses a policy document from a YAML file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument parses a policy document from YAML bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks structural invariants.
func (d *Document) Validate() error {
	for _, p := range []string{d.Governance.DefaultPolicy, d.Governance.Agents.DefaultPolicy, d.Governance.Tools.DefaultPolicy} {
		if p != "" && p != "allow" && p != "deny" {
			return fmt.Errorf("invalid default policy %q", p)
		}
	}
	return nil
}

func containsOrWildcard(list []string, id string) bool {
	for _, entry := range list {
		if entry == "*" || entry == id {
			return true
		}
	}
	return false
}
