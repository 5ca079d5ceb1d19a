package forumbot

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDBSQLite(t *testing.T) {
	// nested path exercises parent directory creation
	dbPath := filepath.Join(t.TempDir(), "data", "forumbot.sqlite3")

	db, err := CreateDB(
		dbTypeSQLite,
		dbPath,
		DefaultDatabaseSlowThreshold,
		slog.LevelWarn,
	)
	require.NoError(t, err)
	require.NotNil(t, db)

	log := InteractionLog{
		InteractionID: "interaction-1",
		Type:          "ApplicationCommand",
		UserID:        "user-1",
		Username:      "tester",
		CommandName:   DiscordSlashCommandSearch,
	}
	require.NoError(t, db.Create(&log).Error)
	assert.NotZero(t, log.ID)
	assert.NotZero(t, log.CreatedAt)

	var loaded InteractionLog
	require.NoError(t, db.Last(&loaded).Error)
	assert.Equal(t, "interaction-1", loaded.InteractionID)
	assert.Equal(t, DiscordSlashCommandSearch, loaded.CommandName)

	change := RoleChange{
		UserID:  "user-1",
		GuildID: "guild-1",
		RoleID:  "role-gold",
		Tier:    "gold",
		Action:  "add",
		Source:  roleChangeSourceAPI,
	}
	require.NoError(t, db.Create(&change).Error)

	var changes []RoleChange
	require.NoError(
		t,
		db.Where("user_id = ?", "user-1").Find(&changes).Error,
	)
	require.Len(t, changes, 1)
	assert.Equal(t, "add", changes[0].Action)

	submission := SensitiveSubmission{
		ReferenceID: "abcd1234",
		UserID:      "user-1",
		Username:    "tester",
		ChannelID:   "channel-1",
		Type:        "ip",
	}
	require.NoError(t, db.Create(&submission).Error)

	var loadedSubmission SensitiveSubmission
	require.NoError(
		t,
		db.Where("reference_id = ?", "abcd1234").First(&loadedSubmission).Error,
	)
	assert.Equal(t, "ip", loadedSubmission.Type)
}

func TestCreateDBUnknownType(t *testing.T) {
	_, err := CreateDB(
		"mongodb",
		"whatever",
		DefaultDatabaseSlowThreshold,
		slog.LevelWarn,
	)
	assert.Error(t, err)
}
