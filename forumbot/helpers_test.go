package forumbot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructToSlogValueRedactsTaggedFields(t *testing.T) {
	config := validTestConfig()
	value := config.Discord.LogValue()

	var sawToken bool
	for _, attr := range value.Group() {
		if attr.Key == "token" {
			sawToken = true
			assert.Equal(t, "[redacted]", attr.Value.String())
		}
		assert.NotEqual(t, "bot-token", attr.Value.String())
	}
	assert.True(t, sawToken)
}

func TestInteractionUser(t *testing.T) {
	guildUser := &discordgo.User{ID: "guild-user"}
	dmUser := &discordgo.User{ID: "dm-user"}

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{User: guildUser},
		},
	}
	assert.Equal(t, guildUser, interactionUser(i))

	i = &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{User: dmUser},
	}
	assert.Equal(t, dmUser, interactionUser(i))

	i = &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	assert.Nil(t, interactionUser(i))
}

func TestNewReferenceID(t *testing.T) {
	seen := map[string]bool{}
	for n := 0; n < 100; n++ {
		id := newReferenceID()
		require.Len(t, id, 8)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestGenerateRandomHexString(t *testing.T) {
	s, err := generateRandomHexString(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	other, err := generateRandomHexString(32)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
