package forumbot

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tutorialNavigationInteraction(customID string) *discordgo.InteractionCreate {
	return componentInteraction("user-1", customID)
}

func navTestBot() *Bot {
	return &Bot{config: DefaultConfig()}
}

func TestTutorialStepEmbed(t *testing.T) {
	embed := tutorialStepEmbed(0)
	assert.Contains(t, embed.Title, "Welcome")
	assert.Equal(
		t,
		fmt.Sprintf("Tutorial Step 1/%d", len(tutorialSteps)),
		embed.Footer.Text,
	)

	last := len(tutorialSteps) - 1
	embed = tutorialStepEmbed(last)
	assert.Equal(
		t,
		fmt.Sprintf("Tutorial Step %d/%d", last+1, len(tutorialSteps)),
		embed.Footer.Text,
	)
}

func TestTutorialNavigationButtons(t *testing.T) {
	components := tutorialNavigationButtons(0)
	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)

	prev := row.Components[0].(discordgo.Button)
	assert.True(t, prev.Disabled)
	assert.Equal(t, "tutorial_prev_0", prev.CustomID)

	next := row.Components[1].(discordgo.Button)
	assert.False(t, next.Disabled)
	assert.Equal(t, "tutorial_next_0", next.CustomID)

	video := row.Components[2].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, video.Style)
	assert.Equal(t, tutorialVideoURL, video.URL)

	// final step disables next and adds the restart button
	last := len(tutorialSteps) - 1
	components = tutorialNavigationButtons(last)
	row = components[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 4)
	assert.True(t, row.Components[1].(discordgo.Button).Disabled)
	restart := row.Components[3].(discordgo.Button)
	assert.Equal(t, tutorialRestartCustomID, restart.CustomID)
}

func TestHandleTutorialNavigationNext(t *testing.T) {
	bot := navTestBot()
	handler := newStubHandler(tutorialNavigationInteraction("tutorial_next_0"))

	err := bot.handleTutorialNavigation(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	response := handler.responses[0]
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, response.Type)
	require.Len(t, response.Data.Embeds, 1)
	assert.Equal(t, tutorialSteps[1].title, response.Data.Embeds[0].Title)
}

func TestHandleTutorialNavigationPrev(t *testing.T) {
	bot := navTestBot()
	handler := newStubHandler(tutorialNavigationInteraction("tutorial_prev_3"))

	err := bot.handleTutorialNavigation(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		tutorialSteps[2].title,
		handler.responses[0].Data.Embeds[0].Title,
	)
}

func TestHandleTutorialNavigationRestart(t *testing.T) {
	bot := navTestBot()
	handler := newStubHandler(tutorialNavigationInteraction(tutorialRestartCustomID))

	err := bot.handleTutorialNavigation(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		tutorialSteps[0].title,
		handler.responses[0].Data.Embeds[0].Title,
	)
}

func TestHandleTutorialNavigationOutOfRange(t *testing.T) {
	bot := navTestBot()

	lastStep := len(tutorialSteps) - 1
	handler := newStubHandler(
		tutorialNavigationInteraction(
			fmt.Sprintf("tutorial_next_%d", lastStep),
		),
	)

	err := bot.handleTutorialNavigation(context.Background(), handler)
	require.NoError(t, err)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredMessageUpdate,
		handler.responses[0].Type,
		"stale buttons are acknowledged without changing the message",
	)
	assert.Nil(t, handler.responses[0].Data)
}

func TestSendTutorialDM(t *testing.T) {
	session := newFakeDiscordSession()
	config := DefaultConfig()
	bot := &Bot{
		config:  config,
		discord: newTestDiscord(session, config.Discord),
		logger:  slog.Default(),
	}

	err := bot.sendTutorialDM(
		context.Background(),
		&discordgo.User{ID: "user-2"},
	)
	require.NoError(t, err)

	sent := session.sentComplex["dm-user-2"]
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "<@user-2>")
	require.Len(t, sent[0].Embeds, 1)
	assert.Equal(t, tutorialSteps[0].title, sent[0].Embeds[0].Title)
	require.Len(t, sent[0].Components, 1)
}

func TestSendTutorialDMFallbackNotice(t *testing.T) {
	session := newFakeDiscordSession()
	session.complexSendErr = assert.AnError
	config := DefaultConfig()
	config.Discord.LogChannelID = "log-channel"
	bot := &Bot{
		config:  config,
		discord: newTestDiscord(session, config.Discord),
		logger:  slog.Default(),
	}

	err := bot.sendTutorialDM(
		context.Background(),
		&discordgo.User{ID: "user-2"},
	)
	require.Error(t, err)

	notices := session.sentMessages["log-channel"]
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "<@user-2>")
	assert.Contains(t, notices[0], "DM")
}

func TestHandleTutorialNavigationMalformedCustomID(t *testing.T) {
	bot := navTestBot()

	for _, customID := range []string{
		"tutorial_next_notanumber",
		"tutorial_sideways_2",
		"tutorial_next",
	} {
		handler := newStubHandler(tutorialNavigationInteraction(customID))
		err := bot.handleTutorialNavigation(context.Background(), handler)
		assert.Error(t, err, customID)
	}
}
