package forumbot

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPosts(n int) []Post {
	posts := make([]Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(
			posts, Post{
				ID:           fmt.Sprintf("%d", i+1),
				Title:        fmt.Sprintf("Post %d", i+1),
				CreatedAt:    time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
				CommentCount: i,
				URL:          fmt.Sprintf("https://forum.example.com/d/%d", i+1),
			},
		)
	}
	return posts
}

func TestBeginSearchEmptyResults(t *testing.T) {
	cache, _ := newTestCache(t)

	_, ok := beginSearch(cache, "user-1", "nothing", nil)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "empty result sets are never cached")

	_, ok = beginSearch(cache, "user-1", "nothing", []Post{})
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestBeginSearchStoresSession(t *testing.T) {
	cache, _ := newTestCache(t)

	session, ok := beginSearch(cache, "user-1", "ram", testPosts(3))
	require.True(t, ok)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "ram", session.Query)
	assert.Equal(t, cache.now(), session.CreatedAt)

	stored, ok := cache.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, session.Query, stored.Query)
}

func TestResolveSelect(t *testing.T) {
	cache, current := newTestCache(t)

	_, ok := beginSearch(cache, "user-1", "ram", testPosts(3))
	require.True(t, ok)

	post, err := resolveSelect(cache, "user-1", "2")
	require.NoError(t, err)
	assert.Equal(t, "Post 2", post.Title)

	_, err = resolveSelect(cache, "user-1", "99")
	assert.ErrorIs(t, err, ErrPostNotFound)

	// another user clicking the menu consults their own absent session
	_, err = resolveSelect(cache, "user-2", "2")
	assert.ErrorIs(t, err, ErrSessionExpired)

	*current = current.Add(DefaultSessionTTL)
	_, err = resolveSelect(cache, "user-1", "2")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestResolveBack(t *testing.T) {
	cache, current := newTestCache(t)

	_, err := resolveBack(cache, "user-1")
	assert.ErrorIs(t, err, ErrSessionExpired)

	original, ok := beginSearch(cache, "user-1", "ram", testPosts(5))
	require.True(t, ok)

	session, err := resolveBack(cache, "user-1")
	require.NoError(t, err)
	assert.Equal(t, original.Query, session.Query)
	assert.Len(t, session.Results, 5)

	*current = current.Add(DefaultSessionTTL + time.Minute)
	_, err = resolveBack(cache, "user-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSearchResultsViewTruncation(t *testing.T) {
	session := SearchSession{
		UserID:  "user-1",
		Query:   "minecraft",
		Results: testPosts(30),
	}

	embed, components := searchResultsView(session)

	assert.Len(t, embed.Fields, maxSummaryPosts)
	assert.Contains(t, embed.Title, "minecraft")
	assert.Contains(t, embed.Description, "30")

	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 1)
	menu, ok := row.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)
	assert.Equal(t, customIDSelectPost, menu.CustomID)
	assert.Len(t, menu.Options, maxMenuOptions)

	// values carry discussion IDs for resolveSelect
	assert.Equal(t, "1", menu.Options[0].Value)
	assert.Equal(t, "25", menu.Options[24].Value)

	// numbered emoji for the first nine, then a generic one
	assert.Equal(t, "1️⃣", menu.Options[0].Emoji.Name)
	assert.Equal(t, "9️⃣", menu.Options[8].Emoji.Name)
	assert.Equal(t, "📝", menu.Options[9].Emoji.Name)
}

func TestSearchResultsViewNoQuery(t *testing.T) {
	session := SearchSession{
		UserID:  "user-1",
		Results: testPosts(2),
	}

	embed, _ := searchResultsView(session)
	assert.Equal(t, "FreeMinecraftHost Help Center Posts", embed.Title)
	assert.Len(t, embed.Fields, 2)
}

func TestPostDetailView(t *testing.T) {
	post := Post{
		ID:           "42",
		Title:        "How to install plugins",
		Content:      "Upload the jar to the plugins folder.",
		CreatedAt:    time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
		CommentCount: 7,
		URL:          "https://forum.example.com/d/42",
		Author:       Author{Name: "staff"},
		Tags:         []string{"help-center", "plugins"},
	}

	embed, components := postDetailView(post)

	assert.Equal(t, post.Title, embed.Title)
	assert.Equal(t, post.URL, embed.URL)
	assert.Contains(t, embed.Description, "plugins folder")
	assert.Contains(t, embed.Footer.Text, "#42")

	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)

	link, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, discordgo.LinkButton, link.Style)
	assert.Equal(t, post.URL, link.URL)

	back, ok := row.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDBackToResults, back.CustomID)

	newSearch, ok := row.Components[2].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDNewSearch, newSearch.CustomID)
}

func TestPostDetailViewLongBody(t *testing.T) {
	body := ""
	for len(body) < 5000 {
		body += "All work and no play makes for a dull server. "
	}
	post := Post{ID: "1", Title: "Long", Content: body}

	embed, _ := postDetailView(post)
	assert.LessOrEqual(t, len(embed.Description), maxEmbedBody)
	assert.Equal(t, "...", embed.Description[len(embed.Description)-3:])
}

func TestNoResultsView(t *testing.T) {
	embed := noResultsView("obscure query")
	assert.Equal(t, colorError, embed.Color)
	assert.Contains(t, embed.Description, "obscure query")

	embed = noResultsView("")
	assert.Equal(t, "No help center posts found.", embed.Description)
}

func TestTruncateWithEllipsis(t *testing.T) {
	assert.Equal(t, "short", truncateWithEllipsis("short", 10))
	assert.Equal(t, "exact", truncateWithEllipsis("exact", 5))
	assert.Equal(t, "ab...", truncateWithEllipsis("abcdef", 5))
	assert.Equal(t, "abc", truncateWithEllipsis("abcdef", 3))

	// multibyte runes are never split
	assert.Equal(t, "hél", truncateWithEllipsis("héllo", 3))
	assert.Equal(t, "héllo...", truncateWithEllipsis("héllo wörld", 8))
}
