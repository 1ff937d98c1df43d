package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Registry holds live agent records. Writers are serialized; readers
// work on snapshots and never observe torn state.
type Registry struct {
	heartbeatTimeout time.Duration
	logger           telemetry.Logger
	mirror           Mirror

	mu      sync.RWMutex
	records map[string]*Record
	byName  map[string]string
	cursors map[string]int

	now func() time.Time
}

// Mirror replicates records to a shared backend so other instances can
// observe the same agent pool. Optional.
type Mirror interface {
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}

// Options configures the registry.
type Options struct {
	// HeartbeatTimeout marks agents unreachable (default 30s).
	HeartbeatTimeout time.Duration
	// Mirror is the optional shared-store replication target.
	Mirror Mirror
	// Logger defaults to the standard sink.
	Logger telemetry.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	return &Registry{
		heartbeatTimeout: opts.HeartbeatTimeout,
		logger:           opts.Logger,
		mirror:           opts.Mirror,
		records:          make(map[string]*Record),
		byName:           make(map[string]string),
		cursors:          make(map[string]int),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Register upserts a record by id. A name already bound to a different
// id is rejected.
func (r *Registry) Register(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.Name == "" {
		return fault.New(fault.KindInvalidRequest, "agent id and name are required")
	}
	r.mu.Lock()
	if boundID, ok := r.byName[rec.Name]; ok && boundID != rec.ID {
		r.mu.Unlock()
		return fault.New(fault.KindInvalidRequest, "agent name %q already bound to id %s", rec.Name, boundID)
	}
	if existing, ok := r.records[rec.ID]; ok && existing.Name != rec.Name {
		delete(r.byName, existing.Name)
	}
	if rec.LastHeartbeat.IsZero() {
		rec.LastHeartbeat = r.now()
	}
	cp := rec
	r.records[rec.ID] = &cp
	r.byName[rec.Name] = rec.ID
	r.mu.Unlock()

	r.logger.Info(ctx, "agent registered", "agent_id", rec.ID, "name", rec.Name,
		"capabilities", strings.Join(rec.Capabilities, ","))
	r.replicate(ctx, &cp)
	return nil
}

// Heartbeat updates last-heartbeat and load for a registered agent.
func (r *Registry) Heartbeat(ctx context.Context, id string, load int) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fault.New(fault.KindInvalidRequest, "unknown agent id %s", id)
	}
	rec.LastHeartbeat = r.now()
	if load >= 0 {
		rec.Load = load
	}
	cp := *rec
	r.mu.Unlock()

	r.replicate(ctx, &cp)
	return nil
}

// Deregister removes an agent gracefully.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fault.New(fault.KindInvalidRequest, "unknown agent id %s", id)
	}
	delete(r.byName, rec.Name)
	delete(r.records, id)
	r.mu.Unlock()

	r.logger.Info(ctx, "agent deregistered", "agent_id", id)
	if r.mirror != nil {
		if err := r.mirror.Delete(ctx, id); err != nil {
			r.logger.Warn(ctx, "registry mirror delete failed", "agent_id", id, "error", err)
		}
	}
	return nil
}

// Get returns a snapshot of one record with its derived health.
func (r *Registry) Get(id string) (Record, Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, Unreachable, false
	}
	return *rec, rec.HealthAt(r.now(), r.heartbeatTimeout), true
}

// List returns a snapshot of records matching the filter, in stable id
// order, with derived health applied.
func (r *Registry) List(filter Filter) []Record {
	now := r.now()
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Capability != "" && !rec.Covers([]string{filter.Capability}) {
			continue
		}
		if filter.Health != "" && rec.HealthAt(now, r.heartbeatTimeout) != filter.Health {
			continue
		}
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CapabilitySnapshot returns capability names mapped to the agents
// declaring them. Used by the planner.
func (r *Registry) CapabilitySnapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string][]string)
	for _, rec := range r.records {
		for _, cap := range rec.Capabilities {
			snapshot[cap] = append(snapshot[cap], rec.Name)
		}
	}
	for _, names := range snapshot {
		sort.Strings(names)
	}
	return snapshot
}

// HasAgent reports whether the id or name resolves to a registered agent.
func (r *Registry) HasAgent(idOrName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.records[idOrName]; ok {
		return idOrName, true
	}
	if id, ok := r.byName[idOrName]; ok {
		return id, true
	}
	return "", false
}

// Reap deletes records whose heartbeat is older than three timeouts.
// Run from the maintenance scheduler.
func (r *Registry) Reap(ctx context.Context) int {
	cutoff := r.now().Add(-3 * r.heartbeatTimeout)
	r.mu.Lock()
	var stale []string
	for id, rec := range r.records {
		if rec.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
			delete(r.byName, rec.Name)
			delete(r.records, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.logger.Info(ctx, "reaped stale agent", "agent_id", id)
		if r.mirror != nil {
			_ = r.mirror.Delete(ctx, id)
		}
	}
	return len(stale)
}

func (r *Registry) replicate(ctx context.Context, rec *Record) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Save(ctx, rec); err != nil {
		r.logger.Warn(ctx, "registry mirror save failed", "agent_id", rec.ID, "error", err)
	}
}
