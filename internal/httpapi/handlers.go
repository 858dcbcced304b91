package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/mirror"
	"github.com/arcadeparty/arcade-backend/internal/registry"
	"github.com/arcadeparty/arcade-backend/internal/session"
	"github.com/arcadeparty/arcade-backend/internal/types"
)

// LeaderboardQuerier is the durable read model behind GET /leaderboard.
// It is nil when the process runs without a database.
type LeaderboardQuerier interface {
	TopScores(ctx context.Context, gameID string, limit int) ([]mirror.TopScore, error)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: message}})
}

type leaderboardData struct {
	Game        string            `json:"game"`
	Leaderboard []mirror.TopScore `json:"leaderboard"`
	Total       int               `json:"total"`
}

// DurableLeaderboard serves the all-time per-game ranking from the mirror's
// backing store. It never touches live session state.
func DurableLeaderboard(q LeaderboardQuerier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
				return
			}
			limit = n
		}
		if limit > mirror.MaxLeaderboardLimit {
			limit = mirror.MaxLeaderboardLimit
		}
		if q == nil {
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "durable leaderboard is not configured")
			return
		}
		scores, err := q.TopScores(r.Context(), gameID, limit)
		if err != nil {
			log.Error("durable leaderboard query failed", zap.String("game_id", gameID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "leaderboard query failed")
			return
		}
		writeData(w, http.StatusOK, leaderboardData{Game: gameID, Leaderboard: scores, Total: len(scores)})
	}
}

type statusData struct {
	ID           string                    `json:"id"`
	Status       string                    `json:"status"`
	CurrentRound int                       `json:"currentRound"`
	MaxRounds    int                       `json:"maxRounds"`
	Leaderboard  []engine.LeaderboardEntry `json:"leaderboard"`
	Players      []session.PlayerSummary   `json:"players"`
	Rounds       []types.RoundInfo         `json:"rounds"`
}

// SessionStatus reads live state through the session actor, so the response
// is always a consistent point-in-time view.
func SessionStatus(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		reply := make(chan *session.Session, 1)
		reg.Inbox() <- registry.Get{ID: id, Reply: reply}
		sess := <-reply
		if sess == nil {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
			return
		}
		viewReply := make(chan session.StatusView, 1)
		sess.Inbox() <- session.Status{Reply: viewReply}
		view := <-viewReply
		writeData(w, http.StatusOK, statusData{
			ID:           view.ID,
			Status:       string(view.Status),
			CurrentRound: view.CurrentRound,
			MaxRounds:    view.MaxRounds,
			Leaderboard:  view.Leaderboard,
			Players:      view.Players,
			Rounds:       view.Rounds,
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
