package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSettings = errors.New("invalid session settings")
var ErrSessionNotFound = errors.New("session not found")
var ErrPlayerNotFound = errors.New("player not found")
var ErrSessionAlreadyStarted = errors.New("session already started")
var ErrSessionNotActive = errors.New("session not active")
var ErrSessionCompleted = errors.New("session already completed")
var ErrNoPlayers = errors.New("no players in session")
var ErrNoActiveRound = errors.New("no active round")
var ErrDuplicatePlayer = errors.New("player already in session")

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type PlayerState string

const (
	PlayerIdle     PlayerState = "idle"
	PlayerPlaying  PlayerState = "playing"
	PlayerFinished PlayerState = "finished"
)

type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

type Position struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Player struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	TotalScore  int         `json:"totalScore"`
	RoundScores []int       `json:"roundScores"`
	Position    Position    `json:"position"`
	State       PlayerState `json:"state"`

	joinSeq    int
	scoreIndex map[int]int // round number -> index into RoundScores
}

type PlayerRoundState struct {
	Position Position    `json:"position"`
	Score    int         `json:"score"`
	State    PlayerState `json:"state"`
}

type Round struct {
	ID        string                      `json:"id"`
	Number    int                         `json:"number"` // 1-based
	Game      string                      `json:"game"`
	Status    RoundStatus                 `json:"status"`
	Entrants  map[string]bool             `json:"-"` // players present at round start
	Scores    map[string]int              `json:"scores"`
	States    map[string]PlayerRoundState `json:"playerStates"`
	StartedAt time.Time                   `json:"startedAt"`
	EndedAt   time.Time                   `json:"endedAt"`
}

type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"playerId"`
	DisplayName    string `json:"displayName"`
	TotalScore     int    `json:"totalScore"`
	RoundScores    []int  `json:"roundScores"`
	LastRoundScore int    `json:"lastRoundScore"`
}

type GhostSnapshot struct {
	PlayerID   string    `json:"playerId"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	ObservedAt time.Time `json:"observedAt"`
}

type Settings struct {
	MaxRounds        int
	AutoAdvanceDelay time.Duration
	RoundDuration    time.Duration // advisory only, not enforced here
	GameRotation     []string
}

func DefaultSettings() Settings {
	return Settings{
		MaxRounds:        10,
		AutoAdvanceDelay: 3 * time.Second,
		GameRotation:     []string{"runner"},
	}
}

// Session is the authoritative in-memory state of one multi-round gathering.
// It is owned by exactly one goroutine (the session actor) and is never
// mutated concurrently, so none of its methods lock.
type Session struct {
	ID           string
	RoomID       string
	Status       Status
	CurrentRound int // 0 before start
	Settings     Settings
	Players      map[string]*Player
	Rounds       []*Round
	CreatedAt    time.Time
	CompletedAt  time.Time

	nextJoinSeq int
	leaderboard []LeaderboardEntry
}

func NewSession(roomID string, settings Settings, now time.Time) (*Session, error) {
	if settings.MaxRounds <= 0 {
		settings.MaxRounds = 10
	}
	if settings.AutoAdvanceDelay <= 0 {
		settings.AutoAdvanceDelay = 3 * time.Second
	}
	if len(settings.GameRotation) == 0 {
		return nil, ErrInvalidSettings
	}
	return &Session{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Status:    StatusWaiting,
		Settings:  settings,
		Players:   map[string]*Player{},
		CreatedAt: now,
	}, nil
}

func (s *Session) AddPlayer(id, displayName string, now time.Time) (*Player, error) {
	if s.Status != StatusWaiting {
		return nil, ErrSessionAlreadyStarted
	}
	if _, ok := s.Players[id]; ok {
		return nil, ErrDuplicatePlayer
	}
	p := &Player{
		ID:          id,
		DisplayName: displayName,
		RoundScores: []int{},
		State:       PlayerIdle,
		joinSeq:     s.nextJoinSeq,
		scoreIndex:  map[int]int{},
	}
	s.nextJoinSeq++
	s.Players[id] = p
	s.recomputeLeaderboard()
	return p, nil
}

// RemovePlayer drops the player from live state only; scores already folded
// into completed rounds stay in the durable history. Returns whether the
// removal completed the active round (the player may have been its last
// unfinished entrant).
func (s *Session) RemovePlayer(id string, now time.Time) (bool, error) {
	if _, ok := s.Players[id]; !ok {
		return false, ErrPlayerNotFound
	}
	delete(s.Players, id)
	s.recomputeLeaderboard()
	r := s.ActiveRound()
	if r == nil {
		return false, nil
	}
	delete(r.Entrants, id)
	if roundComplete(r) {
		r.Status = RoundCompleted
		r.EndedAt = now
		return true, nil
	}
	return false, nil
}

func (s *Session) Start() error {
	if s.Status != StatusWaiting {
		return ErrSessionAlreadyStarted
	}
	if len(s.Players) == 0 {
		return ErrNoPlayers
	}
	s.Status = StatusActive
	return nil
}

func (s *Session) ActiveRound() *Round {
	if len(s.Rounds) == 0 {
		return nil
	}
	r := s.Rounds[len(s.Rounds)-1]
	if r.Status != RoundActive {
		return nil
	}
	return r
}

func newRoundID() string { return uuid.NewString() }
