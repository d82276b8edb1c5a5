package repoclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache[string](1 * time.Minute)

	cache.Set("files|lexi-api", `{"count":2}`)

	content, ok := cache.Get("files|lexi-api")
	assert.True(t, ok)
	assert.Equal(t, `{"count":2}`, content)
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache[string](1 * time.Minute)

	content, ok := cache.Get("files|nonexistent")
	assert.False(t, ok)
	assert.Equal(t, "", content)
}

func TestCache_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	cache := NewCache[string](time.Minute)
	cache.now = func() time.Time { return now }

	cache.Set("info|lexi-api", "content")

	content, ok := cache.Get("info|lexi-api")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	now = now.Add(61 * time.Second)

	content, ok = cache.Get("info|lexi-api")
	assert.False(t, ok)
	assert.Equal(t, "", content)
	assert.Zero(t, cache.Len(), "expired entry is dropped on read")
}

func TestCache_Overwrite(t *testing.T) {
	cache := NewCache[string](1 * time.Minute)

	cache.Set("info|lexi-api", "old content")
	cache.Set("info|lexi-api", "new content")

	content, ok := cache.Get("info|lexi-api")
	assert.True(t, ok)
	assert.Equal(t, "new content", content)
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache[int](1 * time.Minute)

	cache.Set("content|a|/x", 1)
	cache.Set("content|a|/y", 2)
	cache.Set("content|b|/x", 3)

	cache.Invalidate("content|a|")

	_, ok := cache.Get("content|a|/x")
	assert.False(t, ok)
	v, ok := cache.Get("content|b|/x")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[string](1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", "content")
		}()
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}

	wg.Wait()

	content, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", content)
}
