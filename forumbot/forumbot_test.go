package forumbot

import (
	"context"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleInteractionDispatchesSearch(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	handler := newStubHandler(searchCommandInteraction("user-1", "ram"))
	bot.handleInteraction(context.Background(), handler)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredChannelMessageWithSource,
		handler.responses[0].Type,
	)
	require.NotEmpty(t, handler.edits)
}

func TestHandleInteractionDispatchesComponents(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)
	_, ok := beginSearch(bot.searchCache, "user-1", "ram", testPosts(2))
	require.True(t, ok)

	handler := newStubHandler(
		componentInteraction("user-1", customIDBackToResults),
	)
	bot.handleInteraction(context.Background(), handler)
	require.NotEmpty(t, handler.edits)

	handler = newStubHandler(
		componentInteraction("user-1", "tutorial_next_0"),
	)
	bot.handleInteraction(context.Background(), handler)
	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseUpdateMessage,
		handler.responses[0].Type,
	)
}

func TestHandleInteractionUnknownCustomID(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	handler := newStubHandler(
		componentInteraction("user-1", "someone_elses_button"),
	)
	bot.handleInteraction(context.Background(), handler)

	assert.Empty(t, handler.responses)
	assert.Empty(t, handler.edits)
}

func TestHandleInteractionNoUser(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	handler := newStubHandler(
		&discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{
				Type: discordgo.InteractionApplicationCommand,
			},
		},
	)
	bot.handleInteraction(context.Background(), handler)

	assert.Empty(t, handler.responses)
	assert.Empty(t, handler.edits)
}

func TestHandleInteractionErrorNotice(t *testing.T) {
	bot := newSearchTestBot(
		t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(flarumDiscussionListFixture))
		},
	)

	// a select-menu interaction without values makes the handler fail
	handler := newStubHandler(
		componentInteraction("user-1", customIDSelectPost),
	)
	bot.handleInteraction(context.Background(), handler)

	require.Len(t, handler.responses, 1)
	response := handler.responses[0]
	assert.Equal(
		t,
		discordgo.InteractionResponseChannelMessageWithSource,
		response.Type,
	)
	assert.Equal(t, DefaultDiscordErrorMessage, response.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, response.Data.Flags)
}

func TestNewBotValidatesConfig(t *testing.T) {
	bot, err := New(validTestConfig())
	require.NoError(t, err)
	require.NotNil(t, bot)

	assert.NotNil(t, bot.discord)
	assert.NotNil(t, bot.forum)
	assert.NotNil(t, bot.searchCache)
	assert.NotNil(t, bot.news)
	assert.NotNil(t, bot.api)
	assert.NotNil(t, bot.classifier)

	_, err = New(nil)
	assert.Error(t, err)
}
