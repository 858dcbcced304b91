package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/mirror"
	"github.com/arcadeparty/arcade-backend/internal/registry"
	"github.com/arcadeparty/arcade-backend/internal/session"
)

type stubQuerier struct {
	scores    []mirror.TopScore
	err       error
	lastGame  string
	lastLimit int
}

func (s *stubQuerier) TopScores(ctx context.Context, gameID string, limit int) ([]mirror.TopScore, error) {
	s.lastGame = gameID
	s.lastLimit = limit
	return s.scores, s.err
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return registry.New(ctx, registry.Config{Log: zap.NewNop()})
}

func doGet(t *testing.T, h http.Handler, url string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	body := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestSessionStatus_UnknownIs404(t *testing.T) {
	reg := newTestRegistry(t)
	h := SetupRoutes(reg, nil, zap.NewNop())

	rec, body := doGet(t, h, "/session/nope/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, body, "data")
	var e struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body["error"], &e))
	assert.Equal(t, "SESSION_NOT_FOUND", e.Code)
}

func TestSessionStatus_LiveSession(t *testing.T) {
	reg := newTestRegistry(t)
	h := SetupRoutes(reg, nil, zap.NewNop())

	reply := make(chan registry.CreateResult, 1)
	reg.Inbox() <- registry.Create{
		RoomID:   "room-1",
		Settings: engine.Settings{MaxRounds: 2, GameRotation: []string{"runner", "dodge"}},
		Reply:    reply,
	}
	res := <-reply
	require.NoError(t, res.Err)
	sess := res.Session

	joinReply := make(chan error, 1)
	sess.Inbox() <- session.Join{ClientID: "c1", PlayerID: "a", DisplayName: "Ana", Reply: joinReply}
	require.NoError(t, <-joinReply)
	startReply := make(chan error, 1)
	sess.Inbox() <- session.Start{Reply: startReply}
	require.NoError(t, <-startReply)
	scoreReply := make(chan error, 1)
	sess.Inbox() <- session.SubmitScore{PlayerID: "a", Score: 42, Reply: scoreReply}
	require.NoError(t, <-scoreReply)

	rec, body := doGet(t, h, "/session/"+sess.ID()+"/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var data statusData
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Equal(t, sess.ID(), data.ID)
	assert.Equal(t, "active", data.Status)
	assert.Equal(t, 1, data.CurrentRound)
	assert.Equal(t, 2, data.MaxRounds)
	require.Len(t, data.Players, 1)
	assert.Equal(t, 42, data.Players[0].TotalScore)
	require.Len(t, data.Rounds, 1)
	assert.Equal(t, "runner", data.Rounds[0].Game)
	require.Len(t, data.Leaderboard, 1)
	assert.Equal(t, "a", data.Leaderboard[0].PlayerID)
}

func TestDurableLeaderboard_OK(t *testing.T) {
	q := &stubQuerier{scores: []mirror.TopScore{{PlayerID: "u1", TopScore: 300}, {PlayerID: "u2", TopScore: 150}}}
	h := SetupRoutes(newTestRegistry(t), q, zap.NewNop())

	rec, body := doGet(t, h, "/leaderboard/runner?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var data leaderboardData
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Equal(t, "runner", data.Game)
	assert.Equal(t, 2, data.Total)
	assert.Equal(t, "u1", data.Leaderboard[0].PlayerID)
	assert.Equal(t, 5, q.lastLimit)
	assert.Equal(t, "runner", q.lastGame)
}

func TestDurableLeaderboard_ClampsLimit(t *testing.T) {
	q := &stubQuerier{}
	h := SetupRoutes(newTestRegistry(t), q, zap.NewNop())

	rec, _ := doGet(t, h, "/leaderboard/runner?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mirror.MaxLeaderboardLimit, q.lastLimit)
}

func TestDurableLeaderboard_BadLimit(t *testing.T) {
	h := SetupRoutes(newTestRegistry(t), &stubQuerier{}, zap.NewNop())

	for _, limit := range []string{"abc", "-1", "0"} {
		rec, body := doGet(t, h, "/leaderboard/runner?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
		var e struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(body["error"], &e))
		assert.Equal(t, "INVALID_REQUEST", e.Code)
	}
}

func TestDurableLeaderboard_NoStore(t *testing.T) {
	h := SetupRoutes(newTestRegistry(t), nil, zap.NewNop())

	rec, _ := doGet(t, h, "/leaderboard/runner")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDurableLeaderboard_QueryError(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	h := SetupRoutes(newTestRegistry(t), q, zap.NewNop())

	rec, _ := doGet(t, h, "/leaderboard/runner")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
