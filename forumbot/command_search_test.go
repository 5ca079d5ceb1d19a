package forumbot

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubInteractionHandler records every response and edit a command
// handler makes, standing in for the gateway-backed handler.
type stubInteractionHandler struct {
	interaction *discordgo.InteractionCreate
	responses   []*discordgo.InteractionResponse
	edits       []*discordgo.WebhookEdit
	logger      *slog.Logger

	respondErr error
}

func newStubHandler(i *discordgo.InteractionCreate) *stubInteractionHandler {
	return &stubInteractionHandler{
		interaction: i,
		logger:      slog.Default(),
	}
}

func (s *stubInteractionHandler) Respond(
	_ context.Context,
	response *discordgo.InteractionResponse,
) error {
	if s.respondErr != nil {
		return s.respondErr
	}
	s.responses = append(s.responses, response)
	return nil
}

func (s *stubInteractionHandler) GetResponse(_ context.Context) (
	*discordgo.Message,
	error,
) {
	return &discordgo.Message{}, nil
}

func (s *stubInteractionHandler) Edit(
	_ context.Context,
	edit *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.edits = append(s.edits, edit)
	return &discordgo.Message{}, nil
}

func (s *stubInteractionHandler) Delete(
	_ context.Context,
	_ ...discordgo.RequestOption,
) {
}

func (s *stubInteractionHandler) GetInteraction() *discordgo.InteractionCreate {
	return s.interaction
}

func (s *stubInteractionHandler) Logger() *slog.Logger {
	return s.logger
}

func (s *stubInteractionHandler) lastEditEmbed(t testing.TB) *discordgo.MessageEmbed {
	t.Helper()
	require.NotEmpty(t, s.edits)
	edit := s.edits[len(s.edits)-1]
	require.NotNil(t, edit.Embeds)
	require.Len(t, *edit.Embeds, 1)
	return (*edit.Embeds)[0]
}

func searchCommandInteraction(userID string, query string) *discordgo.InteractionCreate {
	options := []*discordgo.ApplicationCommandInteractionDataOption{}
	if query != "" {
		options = append(
			options, &discordgo.ApplicationCommandInteractionDataOption{
				Name:  searchCommandQueryOption,
				Type:  discordgo.ApplicationCommandOptionString,
				Value: query,
			},
		)
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: "tester"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    DiscordSlashCommandSearch,
				Options: options,
			},
		},
	}
}

func componentInteraction(
	userID string,
	customID string,
	values ...string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: "tester"},
			},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.SelectMenuComponent,
				Values:        values,
			},
		},
	}
}

func newSearchTestBot(t testing.TB, handler http.HandlerFunc) *Bot {
	t.Helper()
	cache, _ := newTestCache(t)
	return &Bot{
		config:      DefaultConfig(),
		forum:       newTestForumClient(t, handler),
		searchCache: cache,
		logger:      slog.Default(),
	}
}

func TestHandleSearchCommand(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	handler := newStubHandler(searchCommandInteraction("user-1", "ram"))
	err := bot.handleSearchCommand(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredChannelMessageWithSource,
		handler.responses[0].Type,
	)

	embed := handler.lastEditEmbed(t)
	assert.Contains(t, embed.Title, "ram")

	session, ok := bot.searchCache.Get("user-1")
	require.True(t, ok)
	assert.Equal(t, "ram", session.Query)
	assert.Len(t, session.Results, 1)
}

func TestHandleSearchCommandNoResults(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data": [], "included": []}`))
		},
	)

	handler := newStubHandler(searchCommandInteraction("user-1", "nothing"))
	err := bot.handleSearchCommand(context.Background(), handler)
	require.NoError(t, err)

	embed := handler.lastEditEmbed(t)
	assert.Equal(t, "No Help Center Posts Found", embed.Title)
	assert.Equal(t, 0, bot.searchCache.Len())
}

func TestHandleSearchCommandForumError(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	)

	handler := newStubHandler(searchCommandInteraction("user-1", "ram"))
	err := bot.handleSearchCommand(context.Background(), handler)
	require.NoError(t, err, "forum errors are reported to the user, not bubbled up")

	embed := handler.lastEditEmbed(t)
	assert.Equal(t, "Search Error", embed.Title)
}

func TestHandlePostSelection(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	_, ok := beginSearch(bot.searchCache, "user-1", "crash", testPosts(3))
	require.True(t, ok)

	handler := newStubHandler(
		componentInteraction("user-1", customIDSelectPost, "2"),
	)
	err := bot.handlePostSelection(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredMessageUpdate,
		handler.responses[0].Type,
	)

	embed := handler.lastEditEmbed(t)
	assert.Equal(t, "Post 2", embed.Title)
}

func TestHandlePostSelectionExpired(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	handler := newStubHandler(
		componentInteraction("user-1", customIDSelectPost, "2"),
	)
	err := bot.handlePostSelection(context.Background(), handler)
	require.NoError(t, err)

	embed := handler.lastEditEmbed(t)
	assert.Equal(t, "Session Expired", embed.Title)
}

func TestHandlePostSelectionNotFound(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	_, ok := beginSearch(bot.searchCache, "user-1", "crash", testPosts(3))
	require.True(t, ok)

	handler := newStubHandler(
		componentInteraction("user-1", customIDSelectPost, "999"),
	)
	err := bot.handlePostSelection(context.Background(), handler)
	require.NoError(t, err)

	embed := handler.lastEditEmbed(t)
	assert.Equal(t, "Help Center Post Not Found", embed.Title)
}

func TestHandleBackToResults(t *testing.T) {
	var forumRequests atomic.Int64
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			forumRequests.Add(1)
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	session, ok := beginSearch(bot.searchCache, "user-1", "crash", testPosts(3))
	require.True(t, ok)
	originalEmbed, originalComponents := searchResultsView(session)

	handler := newStubHandler(
		componentInteraction("user-1", customIDBackToResults),
	)
	err := bot.handleBackToResults(context.Background(), handler)
	require.NoError(t, err)

	assert.Zero(
		t,
		forumRequests.Load(),
		"back renders from the cached session, never the forum",
	)

	// the re-render is identical to the original results view
	embed := handler.lastEditEmbed(t)
	assert.Contains(t, embed.Title, "crash")
	assert.Equal(t, originalEmbed, embed)

	edit := handler.edits[len(handler.edits)-1]
	require.NotNil(t, edit.Components)
	assert.Equal(t, originalComponents, *edit.Components)
}

func TestHandleNewSearch(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	_, ok := beginSearch(bot.searchCache, "user-1", "crash", testPosts(3))
	require.True(t, ok)

	handler := newStubHandler(
		componentInteraction("user-1", customIDNewSearch),
	)
	err := bot.handleNewSearch(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	response := handler.responses[0]
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, response.Type)
	require.Len(t, response.Data.Embeds, 1)
	assert.Equal(
		t,
		"Search FreeMinecraftHost Help Center",
		response.Data.Embeds[0].Title,
	)
	assert.Empty(t, response.Data.Components)

	// the cached session survives for a later back action
	_, ok = bot.searchCache.Get("user-1")
	assert.True(t, ok)
}
