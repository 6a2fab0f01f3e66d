package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager_CleanupIdle(t *testing.T) {
	m := NewManager(nil)
	stale := m.GetOrCreate("stale")
	m.GetOrCreate("fresh")

	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-3 * time.Hour)
	stale.mu.Unlock()

	assert.Equal(t, 1, m.CleanupIdle(time.Hour))
	_, ok := m.Get("stale")
	assert.False(t, ok)
	_, ok = m.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 0, m.CleanupIdle(time.Hour))
}
