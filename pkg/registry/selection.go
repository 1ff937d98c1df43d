package registry

import (
	"sort"
	"strings"
)

// Select returns agents covering the required capabilities, applying
// the selection strategy. Unreachable agents are never returned; an
// empty result means no eligible agent and the caller decides.
//
// For Pinned, pinnedIDs carries the caller-supplied sequence; each
// entry must resolve to a registered agent that is healthy or degraded.
func (r *Registry) Select(requirements []string, strategy Strategy, pinnedIDs ...string) []Record {
	switch strategy {
	case Pinned:
		return r.selectPinned(pinnedIDs)
	case RoundRobin:
		return r.selectRoundRobin(requirements)
	default:
		return r.selectLeastLoaded(requirements)
	}
}

// eligible returns healthy-or-degraded agents covering the requirement
// set, healthy first.
func (r *Registry) eligible(requirements []string) []Record {
	now := r.now()
	r.mu.RLock()
	var healthy, degraded []Record
	for _, rec := range r.records {
		if !rec.Covers(requirements) {
			continue
		}
		switch rec.HealthAt(now, r.heartbeatTimeout) {
		case Healthy:
			healthy = append(healthy, *rec)
		case Degraded:
			degraded = append(degraded, *rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(healthy, func(i, j int) bool { return healthy[i].ID < healthy[j].ID })
	sort.Slice(degraded, func(i, j int) bool { return degraded[i].ID < degraded[j].ID })
	return append(healthy, degraded...)
}

func (r *Registry) selectLeastLoaded(requirements []string) []Record {
	candidates := r.eligible(requirements)
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Load < best.Load {
			best = c
			continue
		}
		if c.Load == best.Load {
			// Ties: most recent heartbeat wins, then stable id order.
			if c.LastHeartbeat.After(best.LastHeartbeat) {
				best = c
			} else if c.LastHeartbeat.Equal(best.LastHeartbeat) && c.ID < best.ID {
				best = c
			}
		}
	}
	return []Record{best}
}

func (r *Registry) selectRoundRobin(requirements []string) []Record {
	now := r.now()
	key := strings.Join(requirements, ",")

	r.mu.Lock()
	defer r.mu.Unlock()

	var pool []Record
	for _, rec := range r.records {
		if !rec.Covers(requirements) {
			continue
		}
		// Round-robin skips non-healthy agents entirely.
		if rec.HealthAt(now, r.heartbeatTimeout) != Healthy {
			continue
		}
		pool = append(pool, *rec)
	}
	if len(pool) == 0 {
		return nil
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	cursor := r.cursors[key] % len(pool)
	r.cursors[key] = cursor + 1
	return []Record{pool[cursor]}
}

func (r *Registry) selectPinned(pinnedIDs []string) []Record {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(pinnedIDs))
	for _, idOrName := range pinnedIDs {
		id := idOrName
		if mapped, ok := r.byName[idOrName]; ok {
			id = mapped
		}
		rec, ok := r.records[id]
		if !ok {
			return nil
		}
		if rec.HealthAt(now, r.heartbeatTimeout) == Unreachable {
			return nil
		}
		out = append(out, *rec)
	}
	return out
}
