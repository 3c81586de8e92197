package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Lllllllleong/xtractme/internal/models"
)

type registration struct {
	engine Engine
	once   sync.Once
	cap    Capability
}

// Registry holds the adapters known to the process and memoizes their
// capability probes. It is built once by the entry point and injected.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.EngineName]*registration
	forced  map[models.EngineName]Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[models.EngineName]*registration),
		forced:  make(map[models.EngineName]Capability),
	}
}

// Register adds an adapter. A later registration under the same name replaces
// the earlier one and resets its probe.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name()] = &registration{engine: e}
}

// Force pins the capability of an engine, bypassing its probe.
func (r *Registry) Force(name models.EngineName, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced[name] = c
}

// Names lists registered engines in sorted order.
func (r *Registry) Names() []models.EngineName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.EngineName, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Capability probes an engine at most once per process.
func (r *Registry) Capability(ctx context.Context, name models.EngineName) Capability {
	r.mu.RLock()
	if c, ok := r.forced[name]; ok {
		r.mu.RUnlock()
		return c
	}
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Capability{Reason: "engine not registered"}
	}

	reg.once.Do(func() {
		reg.cap = safeProbe(ctx, reg.engine)
		if !reg.cap.Available {
			slog.Warn("Engine unavailable", "engine", name, "reason", reg.cap.Reason)
		}
	})
	return reg.cap
}

func safeProbe(ctx context.Context, e Engine) (c Capability) {
	defer func() {
		if rec := recover(); rec != nil {
			c = Capability{Reason: fmt.Sprintf("probe panicked: %v", rec)}
		}
	}()
	return e.Probe(ctx)
}

// IsAvailable reports whether the engine probed available.
func (r *Registry) IsAvailable(ctx context.Context, name models.EngineName) bool {
	return r.Capability(ctx, name).Available
}

// Mode returns the transport mode the engine probed with.
func (r *Registry) Mode(ctx context.Context, name models.EngineName) Mode {
	return r.Capability(ctx, name).Mode
}

// Snapshot captures the capabilities of the given engines, or of every
// registered engine when none are named.
func (r *Registry) Snapshot(ctx context.Context, names ...models.EngineName) Snapshot {
	if len(names) == 0 {
		names = r.Names()
	}
	caps := make(map[models.EngineName]Capability, len(names))
	for _, n := range names {
		caps[n] = r.Capability(ctx, n)
	}
	return Snapshot{registry: r, caps: caps}
}

// PageExtractor returns the page adapter registered under name, if any.
func (r *Registry) PageExtractor(name models.EngineName) (PageExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	pe, ok := reg.engine.(PageExtractor)
	return pe, ok
}

// DocumentExtractor returns the whole-document adapter registered under name.
func (r *Registry) DocumentExtractor(name models.EngineName) (DocumentExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	de, ok := reg.engine.(DocumentExtractor)
	return de, ok
}

// Snapshot is a point-in-time view of engine capabilities. Engines not
// captured are reported unavailable.
type Snapshot struct {
	registry *Registry
	caps     map[models.EngineName]Capability
}

// Capability returns the captured capability.
func (s Snapshot) Capability(name models.EngineName) Capability {
	if c, ok := s.caps[name]; ok {
		return c
	}
	return Capability{Reason: "engine not captured in snapshot"}
}

// IsAvailable reports whether name was available when captured.
func (s Snapshot) IsAvailable(name models.EngineName) bool {
	return s.Capability(name).Available
}

// PageExtractor returns the page adapter for name only when it is available.
func (s Snapshot) PageExtractor(name models.EngineName) (PageExtractor, bool) {
	if s.registry == nil || !s.IsAvailable(name) {
		return nil, false
	}
	return s.registry.PageExtractor(name)
}

// DocumentExtractor returns the whole-document adapter only when available.
func (s Snapshot) DocumentExtractor(name models.EngineName) (DocumentExtractor, bool) {
	if s.registry == nil || !s.IsAvailable(name) {
		return nil, false
	}
	return s.registry.DocumentExtractor(name)
}

// All returns a copy of the captured map.
func (s Snapshot) All() map[models.EngineName]Capability {
	out := make(map[models.EngineName]Capability, len(s.caps))
	for k, v := range s.caps {
		out[k] = v
	}
	return out
}
