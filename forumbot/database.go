package forumbot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// InteractionLog records every interaction the bot receives, with the
// full payload for later inspection.
type InteractionLog struct {
	ModelUintID
	ModelUnixTime
	InteractionID string `json:"interaction_id"`
	Type          string `json:"type"`
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	GuildID       string `json:"guild_id"`
	ChannelID     string `json:"channel_id"`
	CommandName   string `json:"command_name"`
	CustomID      string `json:"custom_id"`
	Payload       string `json:"payload"`
}

// SensitiveSubmission records metadata about a `/sensitive` submission.
// The submitted information itself is never persisted, only the
// reference ID staff use to correlate it.
type SensitiveSubmission struct {
	ModelUintID
	ModelUnixTime
	ReferenceID string `json:"reference_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	ChannelID   string `json:"channel_id"`
	Type        string `json:"type"`
}

// RoleChange records tier role assignments and removals made through
// the control API.
type RoleChange struct {
	ModelUintID
	ModelUnixTime
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
	Tier    string `json:"tier"`
	Action  string `json:"action"`
	Source  string `json:"source"`
}

// CreateDB initializes and returns a GORM database connection based on
// the specified database type, and auto-migrates the bot's models.
func CreateDB(
	databaseType string,
	database string,
	slowThreshold time.Duration,
	logLevel slog.Level,
) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     logLevel,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, slowThreshold)

	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err = db.AutoMigrate(
		&InteractionLog{},
		&SensitiveSubmission{},
		&RoleChange{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}

// getDB initializes and returns a GORM database connection based on
// the specified database type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
