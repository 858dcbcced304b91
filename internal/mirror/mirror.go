// Package mirror writes session facts to postgres on a best-effort basis.
// Gameplay never waits on it: facts are queued and written by a single
// background goroutine, and failures are logged, never propagated. Writes
// upsert on natural keys so a replayed fact is harmless.
package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Fact interface{ isFact() }

type SessionCreated struct {
	SessionID string
	RoomID    string
	CreatedAt time.Time
}

type SessionState struct {
	SessionID string
	State     []byte
}

type PlayerJoined struct {
	SessionID   string
	UserID      string
	DisplayName string
}

type RoundStarted struct {
	RoundID   string
	SessionID string
	GameID    string
	Index     int
	StartedAt time.Time
}

type RoundEnded struct {
	RoundID string
	EndedAt time.Time
}

type ScoreSubmitted struct {
	RoundID     string
	UserID      string
	Score       int
	SubmittedAt time.Time
}

func (SessionCreated) isFact() {}
func (SessionState) isFact()   {}
func (PlayerJoined) isFact()   {}
func (RoundStarted) isFact()   {}
func (RoundEnded) isFact()     {}
func (ScoreSubmitted) isFact() {}

// Recorder is what gameplay components hold. Record must never block.
type Recorder interface {
	Record(Fact)
}

// Nop is the recorder used when no database is configured.
type Nop struct{}

func (Nop) Record(Fact) {}

type store interface {
	apply(ctx context.Context, f Fact) error
	topScores(ctx context.Context, gameID string, limit int) ([]TopScore, error)
}

type Mirror struct {
	queue chan Fact
	store store
	log   *zap.Logger
	done  chan struct{}
}

const defaultQueueSize = 256

func newMirror(st store, log *zap.Logger, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	m := &Mirror{
		queue: make(chan Fact, queueSize),
		store: st,
		log:   log,
		done:  make(chan struct{}),
	}
	go m.writeLoop()
	return m
}

// Record enqueues a fact for the background writer. When the queue is full
// the fact is dropped with a warning; the caller is mid-gameplay and must
// not stall.
func (m *Mirror) Record(f Fact) {
	select {
	case m.queue <- f:
	default:
		m.log.Warn("mirror queue full, dropping fact", zap.String("fact", factName(f)))
	}
}

// Stop drains outstanding facts and shuts the writer down.
func (m *Mirror) Stop() {
	close(m.queue)
	<-m.done
}

func (m *Mirror) writeLoop() {
	defer close(m.done)
	for f := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.store.apply(ctx, f); err != nil {
			m.log.Warn("mirror write failed",
				zap.String("fact", factName(f)),
				zap.Error(err))
		}
		cancel()
	}
}

func factName(f Fact) string {
	switch f.(type) {
	case SessionCreated:
		return "session_created"
	case SessionState:
		return "session_state"
	case PlayerJoined:
		return "player_joined"
	case RoundStarted:
		return "round_started"
	case RoundEnded:
		return "round_ended"
	case ScoreSubmitted:
		return "score_submitted"
	default:
		return "unknown"
	}
}
