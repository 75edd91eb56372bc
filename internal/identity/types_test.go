package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAnonymous(t *testing.T) {
	assert.True(t, Anonymous.IsAnonymous())
	assert.True(t, Identity{Email: "x@example.com"}.IsAnonymous())
	assert.False(t, Identity{ID: "1", Username: "alice"}.IsAnonymous())
}

func TestSameUser(t *testing.T) {
	assert.True(t, SameUser("Alice", " alice"))
	assert.False(t, SameUser("alice", "alicia"))
}
