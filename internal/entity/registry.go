// Package entity tracks the last reported state of every entity the
// engine has seen. The MQTT layer feeds reports in; schedules,
// actors and the API read them back out.
package entity

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// primaryAttr is the attribute carrying an entity's main state value.
const primaryAttr = "state"

// State is one entity's last reported state.
type State struct {
	EntityID  string         `json:"entity_id"`
	Attrs     map[string]any `json:"attributes"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Watcher receives every accepted state report. Watchers run
// synchronously on the reporting goroutine and must not block.
type Watcher func(s State)

// Registry is the in-memory entity state store. All methods are safe
// for concurrent use; returned states are copies and safe to retain.
type Registry struct {
	mu       sync.RWMutex
	states   map[string]*State
	watchers []Watcher
	logger   Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[string]*State),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Watch registers a watcher for future state reports. Watchers cannot
// be removed; register once at startup.
func (r *Registry) Watch(fn Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

// Update records a state report and notifies watchers. The attribute
// map is copied on the way in, so callers may reuse theirs.
func (r *Registry) Update(entityID string, attrs map[string]any) {
	if entityID == "" {
		return
	}
	s := State{
		EntityID:  entityID,
		Attrs:     copyAttrs(attrs),
		UpdatedAt: time.Now(),
	}

	r.mu.Lock()
	r.states[entityID] = &s
	watchers := make([]Watcher, len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.Unlock()

	r.logger.Debug("entity state updated", "entity", entityID, "attrs", len(s.Attrs))
	for _, fn := range watchers {
		fn(State{EntityID: s.EntityID, Attrs: copyAttrs(s.Attrs), UpdatedAt: s.UpdatedAt})
	}
}

// Get returns the last reported state of an entity.
func (r *Registry) Get(entityID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[entityID]
	if !ok {
		return State{}, false
	}
	return State{EntityID: s.EntityID, Attrs: copyAttrs(s.Attrs), UpdatedAt: s.UpdatedAt}, true
}

// Lookup returns an entity's primary state value, or nil when the
// entity is unknown or has reported none. It backs the state()
// expression capability and must stay cheap: evaluations call it per
// referenced entity.
func (r *Registry) Lookup(entityID string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[entityID]
	if !ok {
		return nil
	}
	return s.Attrs[primaryAttr]
}

// Snapshot returns all known states sorted by entity id.
func (r *Registry) Snapshot() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, State{EntityID: s.EntityID, Attrs: copyAttrs(s.Attrs), UpdatedAt: s.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Len returns the number of known entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyAttrs(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
