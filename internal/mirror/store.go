package mirror

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type sessionRow struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type sessionPlayerRow struct {
	SessionID   string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	DisplayName string
}

func (sessionPlayerRow) TableName() string { return "session_players" }

type sessionRoundRow struct {
	ID        string `gorm:"primaryKey"`
	SessionID string `gorm:"index"`
	GameID    string `gorm:"index"`
	Index     int
	StartedAt time.Time
	EndedAt   *time.Time
}

func (sessionRoundRow) TableName() string { return "session_rounds" }

type roundScoreRow struct {
	RoundID     string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	Score       int
	SubmittedAt time.Time
}

func (roundScoreRow) TableName() string { return "round_scores" }

// Open connects to postgres, migrates the mirror schema, and starts the
// background writer.
func Open(dsn string, log *zap.Logger) (*Mirror, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&sessionRow{}, &sessionPlayerRow{}, &sessionRoundRow{}, &roundScoreRow{}); err != nil {
		return nil, fmt.Errorf("migrate mirror schema: %w", err)
	}
	return newMirror(&gormStore{db: db}, log, defaultQueueSize), nil
}

type gormStore struct {
	db *gorm.DB
}

func (g *gormStore) apply(ctx context.Context, f Fact) error {
	db := g.db.WithContext(ctx)
	switch fact := f.(type) {
	case SessionCreated:
		row := sessionRow{ID: fact.SessionID, RoomID: fact.RoomID, CreatedAt: fact.CreatedAt}
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"room_id"}),
		}).Create(&row).Error
	case SessionState:
		return db.Model(&sessionRow{}).
			Where("id = ?", fact.SessionID).
			Update("state", fact.State).Error
	case PlayerJoined:
		row := sessionPlayerRow{SessionID: fact.SessionID, UserID: fact.UserID, DisplayName: fact.DisplayName}
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
		}).Create(&row).Error
	case RoundStarted:
		row := sessionRoundRow{
			ID:        fact.RoundID,
			SessionID: fact.SessionID,
			GameID:    fact.GameID,
			Index:     fact.Index,
			StartedAt: fact.StartedAt,
		}
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"game_id", "index", "started_at"}),
		}).Create(&row).Error
	case RoundEnded:
		return db.Model(&sessionRoundRow{}).
			Where("id = ?", fact.RoundID).
			Update("ended_at", fact.EndedAt).Error
	case ScoreSubmitted:
		row := roundScoreRow{
			RoundID:     fact.RoundID,
			UserID:      fact.UserID,
			Score:       fact.Score,
			SubmittedAt: fact.SubmittedAt,
		}
		// Last write wins on (round_id, user_id).
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "round_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "submitted_at"}),
		}).Create(&row).Error
	default:
		return fmt.Errorf("unknown fact %T", f)
	}
}
