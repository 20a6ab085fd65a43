package multiplex

import (
	"sync"

	"github.com/matzehuels/nlink/pkg/terminal"
)

// TerminalID is a dense id for a terminal, stable across rules within one
// Registry.
type TerminalID int32

// Unassigned marks a page with no known terminal for a rule.
const Unassigned TerminalID = -1

// Registry interns terminals by canonical key. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ids   map[string]TerminalID
	terms []terminal.Terminal
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]TerminalID)}
}

// Intern returns the id of t, assigning the next id on first sight.
func (r *Registry) Intern(t terminal.Terminal) TerminalID {
	key := t.Key()
	r.mu.RLock()
	id, ok := r.ids[key]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	id = TerminalID(len(r.terms))
	r.ids[key] = id
	r.terms = append(r.terms, t)
	return id
}

// Lookup returns the id of t if it has been interned.
func (r *Registry) Lookup(t terminal.Terminal) (TerminalID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[t.Key()]
	return id, ok
}

// Terminal returns the terminal for id. It returns the zero Terminal for
// Unassigned or unknown ids.
func (r *Registry) Terminal(id TerminalID) terminal.Terminal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || int(id) >= len(r.terms) {
		return terminal.Terminal{}
	}
	return r.terms[id]
}

// Len returns the number of interned terminals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terms)
}
