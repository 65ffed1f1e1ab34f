package mcp

import "sync"

// SessionRegistry maps subjects to the MCP sessions watching them.
// Populated automatically when a session asks for a subject's rules or
// diagram; consumed by the notifier to push updates back.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // subject -> session IDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch records that a session is interested in a subject.
func (r *SessionRegistry) Watch(subject, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[subject]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[subject] = set
	}
	set[sessionID] = struct{}{}
}

// SessionsFor returns the session IDs watching a subject.
func (r *SessionRegistry) SessionsFor(subject string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[subject]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Remove drops a session from every subject it watches.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subject, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, subject)
		}
	}
}
