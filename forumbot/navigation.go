package forumbot

import (
	"errors"
)

// Custom IDs for the search result navigation components. These are
// baked into messages the bot has already sent, so they can't change
// without stranding live messages.
const (
	customIDSelectPost    = "select_post"
	customIDBackToResults = "back_to_results"
	customIDNewSearch     = "new_search"
)

var (
	// ErrSessionExpired indicates the user's search session is past its
	// validity window (or was never created).
	ErrSessionExpired = errors.New("search session expired")

	// ErrPostNotFound indicates the selected post ID isn't in the
	// session's result set.
	ErrPostNotFound = errors.New("post not found in search results")
)

// beginSearch stores a fresh session for userID unless the result set
// is empty, in which case nothing is cached and ok is false.
func beginSearch(
	cache *SearchCache,
	userID string,
	query string,
	results []Post,
) (SearchSession, bool) {
	if len(results) == 0 {
		return SearchSession{}, false
	}
	session := SearchSession{
		UserID:    userID,
		Query:     query,
		Results:   results,
		CreatedAt: cache.now(),
	}
	cache.Put(session)
	return session, true
}

// resolveSelect maps a select-menu choice back to the chosen post.
// The session is keyed by the acting user: if someone else clicks the
// menu, their own (likely absent) session is consulted.
func resolveSelect(
	cache *SearchCache,
	userID string,
	postID string,
) (Post, error) {
	session, ok := cache.Get(userID)
	if !ok || cache.Expired(session) {
		return Post{}, ErrSessionExpired
	}
	for _, post := range session.Results {
		if post.ID == postID {
			return post, nil
		}
	}
	return Post{}, ErrPostNotFound
}

// resolveBack returns the session to re-render the results view from.
func resolveBack(
	cache *SearchCache,
	userID string,
) (SearchSession, error) {
	session, ok := cache.Get(userID)
	if !ok || cache.Expired(session) {
		return SearchSession{}, ErrSessionExpired
	}
	return session, nil
}
