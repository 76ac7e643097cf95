// Package registry implements the Agent Registry (spec.md §4.B): a
// hot-reloadable collection of loaded agents indexed by id, name, and phone
// number, grounded on the teacher's Dialplan copy-on-write reload pattern.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/oldline/exchange/internal/agent"
)

// snapshot is the immutable collection swapped in atomically on every
// (re)load, mirroring the teacher's RouteList.
type snapshot struct {
	byID    []agent.Handle
	byName  map[string]agent.ID
	byPhone map[string]agent.ID
	icptID  agent.ID
	hasIcpt bool
}

// Registry is the thread-compatible (single tick-loop goroutine) agent
// collection. Reload happens between ticks; readers never block.
type Registry struct {
	agentsRoot string
	isPayphone bool
	log        *slog.Logger
	caps       agent.Capabilities

	cur atomic.Pointer[snapshot]
}

// New constructs a Registry and performs its initial load.
func New(agentsRoot string, isPayphone bool, caps agent.Capabilities, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{agentsRoot: agentsRoot, isPayphone: isPayphone, caps: caps, log: log}
	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("registry: initial load: %w", err)
	}
	return r, nil
}

// Reload re-scans the agents root directory and atomically swaps in a new
// snapshot. Per spec.md §4.B: non-payphone hosts drop Tollmaster agents, and
// the first Intercept-role agent loaded is pinned as the intercept target
// (further Intercept agents load normally but are not addressable as the
// fallback target — see DESIGN.md for this Open Question resolution).
// A per-file load failure is logged and the agent is skipped; loading
// continues (spec.md §7 "Agent load failure").
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.agentsRoot)
	if err != nil {
		return fmt.Errorf("read agents root %q: %w", r.agentsRoot, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(r.agentsRoot, e.Name()))
	}
	sort.Strings(paths) // deterministic insertion order

	next := &snapshot{
		byName:  make(map[string]agent.ID),
		byPhone: make(map[string]agent.ID),
	}

	for _, path := range paths {
		h, err := agent.LoadFile(path, r.caps)
		if err != nil {
			r.log.Error("registry: agent load failed, skipping", "path", path, "error", err)
			continue
		}
		meta := h.Metadata()

		if meta.Role == agent.RoleTollmaster && !r.isPayphone {
			r.log.Info("registry: dropping tollmaster agent on non-payphone host", "name", meta.Name)
			continue
		}
		if meta.Name == "" {
			r.log.Error("registry: agent has empty name, skipping", "path", path)
			continue
		}
		if _, dup := next.byName[meta.Name]; dup {
			r.log.Error("registry: duplicate agent name, skipping", "name", meta.Name, "path", path)
			continue
		}
		if meta.PhoneNumber != "" {
			if _, dup := next.byPhone[meta.PhoneNumber]; dup {
				r.log.Error("registry: duplicate phone number, skipping", "phone_number", meta.PhoneNumber, "path", path)
				continue
			}
		}

		if err := h.Start(); err != nil {
			r.log.Error("registry: agent start failed, skipping", "name", meta.Name, "error", err)
			continue
		}
		if err := h.OnLoad(path); err != nil {
			r.log.Error("registry: agent on_load failed, skipping", "name", meta.Name, "error", err)
			continue
		}

		id := agent.ID(len(next.byID))
		h.SetID(id)
		next.byID = append(next.byID, h)
		next.byName[meta.Name] = id
		if meta.PhoneNumber != "" {
			next.byPhone[meta.PhoneNumber] = id
		}
		if meta.Role == agent.RoleIntercept && !next.hasIcpt {
			next.icptID = id
			next.hasIcpt = true
		}
	}

	r.cur.Store(next)
	r.log.Info("registry: loaded agents", "count", len(next.byID), "root", r.agentsRoot, "has_intercept", next.hasIcpt)
	return nil
}

func (r *Registry) snap() *snapshot { return r.cur.Load() }

// Handle resolves an agent by dense id.
func (r *Registry) Handle(id agent.ID) (agent.Handle, bool) {
	s := r.snap()
	if s == nil || int(id) < 0 || int(id) >= len(s.byID) {
		return nil, false
	}
	return s.byID[id], true
}

// ResolveName resolves an agent by its unique script-declared name.
func (r *Registry) ResolveName(name string) (agent.ID, bool) {
	s := r.snap()
	if s == nil {
		return 0, false
	}
	id, ok := s.byName[name]
	return id, ok
}

// ResolveNumber resolves an agent by dialable phone number.
func (r *Registry) ResolveNumber(number string) (agent.ID, bool) {
	s := r.snap()
	if s == nil {
		return 0, false
	}
	id, ok := s.byPhone[number]
	return id, ok
}

// InterceptAgent returns the pinned Intercept-role agent, if one loaded.
func (r *Registry) InterceptAgent() (agent.ID, bool) {
	s := r.snap()
	if s == nil || !s.hasIcpt {
		return 0, false
	}
	return s.icptID, true
}

// Len returns the number of currently loaded agents.
func (r *Registry) Len() int {
	s := r.snap()
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// Each calls fn for every loaded agent in registry (load) order, stopping
// early if fn returns false. This is the iteration the Scheduler's poll
// step (spec.md §4.F step 3) uses.
func (r *Registry) Each(fn func(id agent.ID, h agent.Handle) bool) {
	s := r.snap()
	if s == nil {
		return
	}
	for i, h := range s.byID {
		if !fn(agent.ID(i), h) {
			return
		}
	}
}
