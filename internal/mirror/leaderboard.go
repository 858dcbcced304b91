package mirror

import "context"

// TopScore is one entry of the durable per-game ranking: a player's best
// single round score for that game, across every session ever mirrored.
// This is intentionally a different ranking from the live per-session
// cumulative leaderboard.
type TopScore struct {
	PlayerID string `json:"playerId" gorm:"column:player_id"`
	TopScore int    `json:"topScore" gorm:"column:top_score"`
}

// MaxLeaderboardLimit bounds the durable leaderboard response size.
const MaxLeaderboardLimit = 50

// TopScores reads the all-time ranking for one game, best score per player,
// descending. The limit is clamped to MaxLeaderboardLimit.
func (m *Mirror) TopScores(ctx context.Context, gameID string, limit int) ([]TopScore, error) {
	if limit <= 0 || limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return m.store.topScores(ctx, gameID, limit)
}

func (g *gormStore) topScores(ctx context.Context, gameID string, limit int) ([]TopScore, error) {
	rows := []TopScore{}
	err := g.db.WithContext(ctx).
		Table("round_scores").
		Select("round_scores.user_id AS player_id, MAX(round_scores.score) AS top_score").
		Joins("JOIN session_rounds ON session_rounds.id = round_scores.round_id").
		Where("session_rounds.game_id = ?", gameID).
		Group("round_scores.user_id").
		Order("top_score DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
