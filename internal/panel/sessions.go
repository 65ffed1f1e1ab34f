package panel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/ruleflow/internal/view"
)

// sessionRegistry tracks live view controllers keyed by session ID.
// Each panel client owns one session; sessions are independent.
type sessionRegistry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*view.Controller
}

func newSessionRegistry(deps Deps) *sessionRegistry {
	return &sessionRegistry{
		deps:     deps,
		sessions: make(map[string]*view.Controller),
	}
}

// create builds a controller with a fresh session ID and, when a refresher
// is configured, registers it for periodic subject refresh.
func (r *sessionRegistry) create() *view.Controller {
	id := uuid.New().String()
	ctrl := view.NewController(id, r.deps.Store, r.deps.Store, r.deps.Hub, r.deps.Logger)

	r.mu.Lock()
	r.sessions[id] = ctrl
	r.mu.Unlock()

	if r.deps.Refresher != nil {
		r.deps.Refresher.Register(ctrl)
	}
	return ctrl
}

func (r *sessionRegistry) get(id string) (*view.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.sessions[id]
	return ctrl, ok
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok && r.deps.Refresher != nil {
		r.deps.Refresher.Unregister(id)
	}
	return ok
}
