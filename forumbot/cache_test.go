package forumbot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t testing.TB) (*SearchCache, *time.Time) {
	t.Helper()
	cache := NewSearchCache(
		&CacheConfig{
			SessionTTL:    DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		},
		nil,
	)
	current := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time {
		return current
	}
	return cache, &current
}

func TestSearchCachePutGet(t *testing.T) {
	cache, _ := newTestCache(t)

	session := SearchSession{
		UserID:    "user-1",
		Query:     "ram",
		Results:   []Post{{ID: "1", Title: "How to add RAM"}},
		CreatedAt: cache.now(),
	}
	cache.Put(session)

	got, ok := cache.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, session.Query, got.Query)
	assert.Len(t, got.Results, 1)

	_, ok = cache.Get("user-2")
	assert.False(t, ok)
}

func TestSearchCacheReplacesPreviousSession(t *testing.T) {
	cache, _ := newTestCache(t)

	cache.Put(
		SearchSession{
			UserID:    "user-1",
			Query:     "first",
			Results:   []Post{{ID: "1"}},
			CreatedAt: cache.now(),
		},
	)
	cache.Put(
		SearchSession{
			UserID:    "user-1",
			Query:     "second",
			Results:   []Post{{ID: "2"}, {ID: "3"}},
			CreatedAt: cache.now(),
		},
	)

	got, ok := cache.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, "second", got.Query)
	assert.Len(t, got.Results, 2)
	assert.Equal(t, 1, cache.Len())
}

func TestSearchCacheExpiry(t *testing.T) {
	cache, current := newTestCache(t)

	session := SearchSession{
		UserID:    "user-1",
		Query:     "ram",
		Results:   []Post{{ID: "1"}},
		CreatedAt: *current,
	}
	cache.Put(session)

	assert.False(t, cache.Expired(session))

	*current = current.Add(DefaultSessionTTL - time.Second)
	assert.False(t, cache.Expired(session))

	// expiry is inclusive at exactly the TTL
	*current = current.Add(time.Second)
	assert.True(t, cache.Expired(session))

	// the entry is still physically present until swept
	_, ok := cache.Get("user-1")
	assert.True(t, ok)
}

func TestSearchCacheSweep(t *testing.T) {
	cache, current := newTestCache(t)

	start := *current
	cache.Put(
		SearchSession{
			UserID:    "old-user",
			CreatedAt: start,
			Results:   []Post{{ID: "1"}},
		},
	)
	cache.Put(
		SearchSession{
			UserID:    "new-user",
			CreatedAt: start.Add(20 * time.Minute),
			Results:   []Post{{ID: "2"}},
		},
	)

	removed := cache.Sweep(start.Add(DefaultSweepInterval))
	assert.Equal(t, 0, removed, "sweep removes only entries strictly past the TTL")

	removed = cache.Sweep(start.Add(DefaultSweepInterval + time.Second))
	assert.Equal(t, 1, removed)

	_, ok := cache.Get("old-user")
	assert.False(t, ok)
	_, ok = cache.Get("new-user")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestSearchCacheDelete(t *testing.T) {
	cache, _ := newTestCache(t)

	cache.Put(SearchSession{UserID: "user-1", CreatedAt: cache.now()})
	cache.Delete("user-1")

	_, ok := cache.Get("user-1")
	assert.False(t, ok)

	// deleting an absent entry is a no-op
	cache.Delete("user-1")
	assert.Equal(t, 0, cache.Len())
}

func TestSearchCacheConcurrentAccess(t *testing.T) {
	cache, _ := newTestCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n%10)
			cache.Put(
				SearchSession{
					UserID:    userID,
					Query:     fmt.Sprintf("query-%d", n),
					CreatedAt: cache.now(),
				},
			)
			cache.Get(userID)
			cache.Len()
			cache.Sweep(cache.now())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, cache.Len())
}
