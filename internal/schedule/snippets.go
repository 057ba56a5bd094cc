package schedule

import "sort"

// SnippetRegistry maps snippet names to reusable schedule fragments.
// A registry is built once per document load, checked for unknown and
// cyclic references, and never mutated afterwards; reloads build a new
// registry and swap it wholesale so in-flight evaluations keep a
// consistent view.
type SnippetRegistry struct {
	snippets map[string]*Schedule
}

// NewSnippetRegistry builds a registry from named fragments.
func NewSnippetRegistry(fragments map[string]*Schedule) *SnippetRegistry {
	snippets := make(map[string]*Schedule, len(fragments))
	for name, frag := range fragments {
		snippets[name] = frag
	}
	return &SnippetRegistry{snippets: snippets}
}

// Get looks up a fragment by name.
func (r *SnippetRegistry) Get(name string) (*Schedule, bool) {
	if r == nil {
		return nil, false
	}
	frag, ok := r.snippets[name]
	return frag, ok
}

// Names returns the registered snippet names, sorted.
func (r *SnippetRegistry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.snippets))
	for name := range r.snippets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered snippets.
func (r *SnippetRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.snippets)
}
