package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistryWatch(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("incident", "sess-1")
	r.Watch("incident", "sess-2")
	r.Watch("task", "sess-1")

	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, r.SessionsFor("incident"))
	assert.ElementsMatch(t, []string{"sess-1"}, r.SessionsFor("task"))
	assert.Empty(t, r.SessionsFor("unknown"))
}

func TestSessionRegistryWatchIsIdempotent(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("incident", "sess-1")
	r.Watch("incident", "sess-1")

	assert.Len(t, r.SessionsFor("incident"), 1)
}

func TestSessionRegistryRemove(t *testing.T) {
	r := NewSessionRegistry()

	r.Watch("incident", "sess-1")
	r.Watch("task", "sess-1")
	r.Watch("task", "sess-2")

	r.Remove("sess-1")

	assert.Empty(t, r.SessionsFor("incident"))
	assert.ElementsMatch(t, []string{"sess-2"}, r.SessionsFor("task"))
}
