package session

import (
	"time"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/types"
)

type Msg interface{ isSessionMsg() }

// Attach subscribes a connection to broadcasts without joining as a player
// (session creators and spectators attach before joining).
type Attach struct {
	ClientID string
	Outbox   chan types.ServerEvent
}

func (Attach) isSessionMsg() {}

// Detach unsubscribes a connection. The player, if any, stays in the
// session; a silent disconnect is handled by ghost eviction and reconnect.
type Detach struct{ ClientID string }

func (Detach) isSessionMsg() {}

type Join struct {
	ClientID    string
	PlayerID    string
	DisplayName string
	Outbox      chan types.ServerEvent
	Reply       chan error
}

func (Join) isSessionMsg() {}

// Leave removes the player from live state (explicit leave, not disconnect).
type Leave struct {
	PlayerID string
	Reply    chan error
}

func (Leave) isSessionMsg() {}

type Start struct{ Reply chan error }

func (Start) isSessionMsg() {}

type SubmitScore struct {
	PlayerID string
	Score    int
	Reply    chan error
}

func (SubmitScore) isSessionMsg() {}

type SubmitPosition struct {
	PlayerID string
	X, Y     float64
	Reply    chan error
}

func (SubmitPosition) isSessionMsg() {}

// Snapshot builds a reconnect snapshot from in-memory state and, when Outbox
// is set, re-subscribes the connection in the same step.
type Snapshot struct {
	ClientID string
	Outbox   chan types.ServerEvent
	Reply    chan types.ReconnectSnapshot
}

func (Snapshot) isSessionMsg() {}

// Status is the read-side view consumed by the REST status endpoint.
type Status struct{ Reply chan StatusView }

func (Status) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type PlayerSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalScore int    `json:"totalScore"`
}

type StatusView struct {
	ID           string
	RoomID       string
	Status       engine.Status
	CurrentRound int
	MaxRounds    int
	CompletedAt  time.Time
	Leaderboard  []engine.LeaderboardEntry
	Players      []PlayerSummary
	Rounds       []types.RoundInfo
}
