package types

import "github.com/arcadeparty/arcade-backend/internal/engine"

// Client -> Server event names.
const (
	EvtCreateSession    = "create-session"
	EvtJoinSession      = "join-session"
	EvtLeaveSession     = "leave-session"
	EvtStartSession     = "start-session"
	EvtSubmitPosition   = "submit-position"
	EvtSubmitScore      = "submit-score"
	EvtReconnectSession = "reconnect-session"
)

// Server -> Client event names.
const (
	EvtSessionCreated   = "session-created"
	EvtSessionJoined    = "session-joined"
	EvtSessionLeft      = "session-left"
	EvtRoundStarted     = "round-started"
	EvtLeaderboard      = "leaderboard-updated"
	EvtGhostPosition    = "ghost-position"
	EvtPlayerScore      = "player-score"
	EvtSessionCompleted = "session-completed"
	EvtReconnectState   = "session-reconnect-snapshot"
	EvtError            = "error"
)

type SessionSettings struct {
	MaxRounds          int      `json:"maxRounds,omitempty"`
	AutoAdvanceDelayMs int      `json:"autoAdvanceDelayMs,omitempty"`
	RoundDurationMs    int      `json:"roundDurationMs,omitempty"`
	GameRotation       []string `json:"gameRotation,omitempty"`
}

type ClientEvent struct {
	Type        string           `json:"type"`
	RoomID      string           `json:"roomId,omitempty"`
	SessionID   string           `json:"sessionId,omitempty"`
	PlayerID    string           `json:"playerId,omitempty"`
	DisplayName string           `json:"displayName,omitempty"`
	Score       *int             `json:"score,omitempty"`
	X           float64          `json:"x,omitempty"`
	Y           float64          `json:"y,omitempty"`
	Settings    *SessionSettings `json:"settings,omitempty"`
}

type RoundInfo struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Game   string `json:"game"`
	Status string `json:"status"`
}

type SessionSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CurrentRound int    `json:"currentRound"`
	MaxRounds    int    `json:"maxRounds"`
	PlayerCount  int    `json:"playerCount"`
}

type ReconnectSnapshot struct {
	Session     SessionSummary            `json:"session"`
	Leaderboard []engine.LeaderboardEntry `json:"leaderboard"`
	GhostData   []engine.GhostSnapshot    `json:"ghostData"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerEvent struct {
	Type        string                    `json:"type"`
	SessionID   string                    `json:"sessionId,omitempty"`
	RoomID      string                    `json:"roomId,omitempty"`
	PlayerID    string                    `json:"playerId,omitempty"`
	DisplayName string                    `json:"displayName,omitempty"`
	PlayerCount int                       `json:"playerCount,omitempty"`
	Round       *RoundInfo                `json:"round,omitempty"`
	Leaderboard []engine.LeaderboardEntry `json:"leaderboard,omitempty"`
	Ghost       *engine.GhostSnapshot     `json:"ghost,omitempty"`
	Score       *int                      `json:"score,omitempty"`
	TotalScore  int                       `json:"totalScore,omitempty"`
	Snapshot    *ReconnectSnapshot        `json:"snapshot,omitempty"`
	Error       *ErrorInfo                `json:"error,omitempty"`
}
