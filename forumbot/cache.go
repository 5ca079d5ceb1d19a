package forumbot

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SearchSession holds one user's most recent search and its result set.
// Results are immutable once stored; navigation only ever reads them.
type SearchSession struct {
	UserID    string
	Query     string
	Results   []Post
	CreatedAt time.Time
}

// SearchCache stores at most one SearchSession per user. A new search
// unconditionally replaces the previous session. Entries expire two
// ways: logically after SessionTTL (checked on every navigation
// action), and physically after SweepTTL when the background sweeper
// removes them.
type SearchCache struct {
	mu       sync.RWMutex
	sessions map[string]SearchSession

	sessionTTL    time.Duration
	sweepTTL      time.Duration
	sweepInterval time.Duration

	// now is replaceable in tests
	now func() time.Time

	logger *slog.Logger
}

func NewSearchCache(cfg *CacheConfig, logger *slog.Logger) *SearchCache {
	if cfg == nil {
		cfg = &CacheConfig{
			SessionTTL:    DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCache{
		sessions:      map[string]SearchSession{},
		sessionTTL:    cfg.SessionTTL,
		sweepTTL:      cfg.SweepInterval,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		logger:        logger.With(loggerNameKey, "search_cache"),
	}
}

// Put stores a session for its user, replacing any existing one.
func (c *SearchCache) Put(session SearchSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[session.UserID] = session
}

// Get returns the stored session for userID, if any. Expiry is not
// checked here: callers decide what an expired session means for them.
func (c *SearchCache) Get(userID string) (SearchSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[userID]
	return session, ok
}

// Delete removes the session for userID, if present.
func (c *SearchCache) Delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
}

// Expired reports whether the session is past its validity window.
func (c *SearchCache) Expired(session SearchSession) bool {
	return c.now().Sub(session.CreatedAt) >= c.sessionTTL
}

// Len returns the number of stored sessions.
func (c *SearchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Sweep removes all sessions older than the sweep TTL and returns the
// number removed.
func (c *SearchCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for userID, session := range c.sessions {
		if now.Sub(session.CreatedAt) > c.sweepTTL {
			delete(c.sessions, userID)
			removed++
		}
	}
	return removed
}

// runSweeper periodically evicts stale sessions until ctx is canceled.
func (c *SearchCache) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	c.logger.InfoContext(
		ctx,
		"search session sweeper started",
		"interval", c.sweepInterval,
		"sweep_ttl", c.sweepTTL,
	)
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "search session sweeper stopped")
			return
		case <-ticker.C:
			removed := c.Sweep(c.now())
			if removed > 0 {
				c.logger.InfoContext(
					ctx,
					"swept expired search sessions",
					"removed", removed,
					"remaining", c.Len(),
				)
			}
		}
	}
}
