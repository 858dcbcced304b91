// Package session runs one goroutine per live session. All mutation of the
// owned engine.Session happens inside that goroutine's loop, driven by typed
// messages on the inbox, so the domain code needs no locks. Broadcasts fan
// out to subscribed connections at most once each; a slow client is dropped
// rather than allowed to stall the loop.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/mirror"
	"github.com/arcadeparty/arcade-backend/internal/types"
)

type Config struct {
	State         *engine.Session
	Clock         clockwork.Clock
	Log           *zap.Logger
	Recorder      mirror.Recorder
	OnComplete    func(sessionID string, at time.Time)
	GhostTTL      time.Duration
	SweepInterval time.Duration
}

type Session struct {
	inbox        chan Msg
	id           string
	state        *engine.Session
	clients      map[string]chan types.ServerEvent
	playerClient map[string]string // playerID -> clientID, for excluding the sender from ghost fan-out

	clock         clockwork.Clock
	log           *zap.Logger
	rec           mirror.Recorder
	onComplete    func(string, time.Time)
	ghostTTL      time.Duration
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// At most one auto-advance timer is outstanding; advanceC is nil when
	// none is armed so the select case stays disabled.
	advanceTimer clockwork.Timer
	advanceC     <-chan time.Time
	sweep        clockwork.Ticker
}

func New(parent context.Context, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = mirror.Nop{}
	}
	if cfg.GhostTTL <= 0 {
		cfg.GhostTTL = 10 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:         make(chan Msg, 64),
		id:            cfg.State.ID,
		state:         cfg.State,
		clients:       map[string]chan types.ServerEvent{},
		playerClient:  map[string]string{},
		clock:         cfg.Clock,
		log:           cfg.Log.With(zap.String("session_id", cfg.State.ID)),
		rec:           cfg.Recorder,
		onComplete:    cfg.OnComplete,
		ghostTTL:      cfg.GhostTTL,
		sweepInterval: cfg.SweepInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.sweep = s.clock.NewTicker(s.sweepInterval)
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-s.advanceC:
			s.advanceTimer = nil
			s.advanceC = nil
			s.advance()

		case <-s.sweep.Chan():
			s.state.EvictStaleGhosts(s.clock.Now(), s.ghostTTL)

		case m := <-s.inbox:
			if quit := s.handle(m); quit {
				return
			}
		}
	}
}

func (s *Session) handle(m Msg) bool {
	switch msg := m.(type) {
	case Attach:
		s.attach(msg.ClientID, msg.Outbox)

	case Detach:
		if ch, ok := s.clients[msg.ClientID]; ok {
			close(ch)
			delete(s.clients, msg.ClientID)
		}

	case Join:
		p, err := s.state.AddPlayer(msg.PlayerID, msg.DisplayName, s.clock.Now())
		if err != nil {
			msg.Reply <- err
			break
		}
		if msg.Outbox != nil {
			s.attach(msg.ClientID, msg.Outbox)
		}
		s.playerClient[msg.PlayerID] = msg.ClientID
		s.rec.Record(mirror.PlayerJoined{SessionID: s.id, UserID: p.ID, DisplayName: p.DisplayName})
		msg.Reply <- nil
		s.broadcast(types.ServerEvent{
			Type:        types.EvtSessionJoined,
			SessionID:   s.id,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			PlayerCount: len(s.state.Players),
		})

	case Leave:
		done, err := s.state.RemovePlayer(msg.PlayerID, s.clock.Now())
		msg.Reply <- err
		if err != nil {
			break
		}
		delete(s.playerClient, msg.PlayerID)
		s.broadcast(types.ServerEvent{
			Type:        types.EvtSessionLeft,
			SessionID:   s.id,
			PlayerID:    msg.PlayerID,
			PlayerCount: len(s.state.Players),
			Leaderboard: s.state.Leaderboard(),
		})
		if done {
			s.roundCompleted()
		}

	case Start:
		if err := s.state.Start(); err != nil {
			msg.Reply <- err
			break
		}
		msg.Reply <- nil
		s.advance() // round 1, synchronously

	case SubmitScore:
		r := s.state.ActiveRound()
		done, err := s.state.SubmitScore(msg.PlayerID, msg.Score, s.clock.Now())
		msg.Reply <- err
		if err != nil {
			break
		}
		s.rec.Record(mirror.ScoreSubmitted{
			RoundID:     r.ID,
			UserID:      msg.PlayerID,
			Score:       msg.Score,
			SubmittedAt: s.clock.Now(),
		})
		score := msg.Score
		s.broadcast(types.ServerEvent{
			Type:       types.EvtPlayerScore,
			SessionID:  s.id,
			PlayerID:   msg.PlayerID,
			Score:      &score,
			TotalScore: s.state.Players[msg.PlayerID].TotalScore,
		})
		s.broadcast(types.ServerEvent{
			Type:        types.EvtLeaderboard,
			SessionID:   s.id,
			Leaderboard: s.state.Leaderboard(),
		})
		if done {
			s.roundCompleted()
		}

	case SubmitPosition:
		err := s.state.UpdatePosition(msg.PlayerID, msg.X, msg.Y, s.clock.Now())
		msg.Reply <- err
		if err != nil {
			break
		}
		p := s.state.Players[msg.PlayerID]
		s.broadcastExcept(s.playerClient[msg.PlayerID], types.ServerEvent{
			Type:      types.EvtGhostPosition,
			SessionID: s.id,
			Ghost: &engine.GhostSnapshot{
				PlayerID:   msg.PlayerID,
				X:          p.Position.X,
				Y:          p.Position.Y,
				ObservedAt: p.Position.UpdatedAt,
			},
		})

	case Snapshot:
		if msg.Outbox != nil {
			s.attach(msg.ClientID, msg.Outbox)
		}
		msg.Reply <- s.buildSnapshot()

	case Status:
		msg.Reply <- s.buildStatus()

	case Shutdown:
		s.shutdown()
		return true
	}
	return false
}

// roundCompleted records the fact and arms the one-shot auto-advance timer,
// replacing any timer already outstanding.
func (s *Session) roundCompleted() {
	r := s.state.Rounds[len(s.state.Rounds)-1]
	s.rec.Record(mirror.RoundEnded{RoundID: r.ID, EndedAt: r.EndedAt})
	s.cancelAdvance()
	s.advanceTimer = s.clock.NewTimer(s.state.Settings.AutoAdvanceDelay)
	s.advanceC = s.advanceTimer.Chan()
}

// cancelAdvance stops and drains a pending timer so a stale fire can never
// act on a session that has moved on or been torn down.
func (s *Session) cancelAdvance() {
	if s.advanceTimer == nil {
		return
	}
	if !s.advanceTimer.Stop() {
		select {
		case <-s.advanceTimer.Chan():
		default:
		}
	}
	s.advanceTimer = nil
	s.advanceC = nil
}

func (s *Session) advance() {
	now := s.clock.Now()
	r, done, err := s.state.AdvanceRound(now)
	if err != nil {
		s.log.Warn("round advance failed", zap.Error(err))
		return
	}
	if done {
		s.rec.Record(mirror.SessionState{SessionID: s.id, State: s.marshalState()})
		s.broadcast(types.ServerEvent{
			Type:        types.EvtSessionCompleted,
			SessionID:   s.id,
			Leaderboard: s.state.Leaderboard(),
		})
		if s.onComplete != nil {
			s.onComplete(s.id, now)
		}
		return
	}
	s.rec.Record(mirror.RoundStarted{
		RoundID:   r.ID,
		SessionID: s.id,
		GameID:    r.Game,
		Index:     r.Number,
		StartedAt: now,
	})
	s.broadcast(types.ServerEvent{
		Type:      types.EvtRoundStarted,
		SessionID: s.id,
		Round: &types.RoundInfo{
			ID:     r.ID,
			Number: r.Number,
			Game:   r.Game,
			Status: string(r.Status),
		},
	})
}

func (s *Session) buildSnapshot() types.ReconnectSnapshot {
	return types.ReconnectSnapshot{
		Session: types.SessionSummary{
			ID:           s.id,
			Status:       string(s.state.Status),
			CurrentRound: s.state.CurrentRound,
			MaxRounds:    s.state.Settings.MaxRounds,
			PlayerCount:  len(s.state.Players),
		},
		Leaderboard: s.state.Leaderboard(),
		GhostData:   s.state.Ghosts(),
	}
}

func (s *Session) buildStatus() StatusView {
	players := make([]PlayerSummary, 0, len(s.state.Players))
	for _, e := range s.state.Leaderboard() {
		players = append(players, PlayerSummary{ID: e.PlayerID, Name: e.DisplayName, TotalScore: e.TotalScore})
	}
	rounds := make([]types.RoundInfo, 0, len(s.state.Rounds))
	for _, r := range s.state.Rounds {
		rounds = append(rounds, types.RoundInfo{ID: r.ID, Number: r.Number, Game: r.Game, Status: string(r.Status)})
	}
	return StatusView{
		ID:           s.id,
		RoomID:       s.state.RoomID,
		Status:       s.state.Status,
		CurrentRound: s.state.CurrentRound,
		MaxRounds:    s.state.Settings.MaxRounds,
		CompletedAt:  s.state.CompletedAt,
		Leaderboard:  s.state.Leaderboard(),
		Players:      players,
		Rounds:       rounds,
	}
}

func (s *Session) marshalState() []byte {
	b, err := json.Marshal(struct {
		Status       engine.Status             `json:"status"`
		CurrentRound int                       `json:"currentRound"`
		Leaderboard  []engine.LeaderboardEntry `json:"leaderboard"`
	}{s.state.Status, s.state.CurrentRound, s.state.Leaderboard()})
	if err != nil {
		s.log.Warn("marshal session state", zap.Error(err))
		return nil
	}
	return b
}

// attach registers or replaces a connection's channel. The actor owns every
// registered channel and is the only closer, so a replaced one is closed
// here rather than leaked.
func (s *Session) attach(clientID string, ch chan types.ServerEvent) {
	if old, ok := s.clients[clientID]; ok && old != ch {
		close(old)
	}
	s.clients[clientID] = ch
}

func (s *Session) shutdown() {
	s.cancelAdvance()
	s.sweep.Stop()
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}

func (s *Session) broadcast(ev types.ServerEvent) {
	s.broadcastExcept("", ev)
}

func (s *Session) broadcastExcept(skipClientID string, ev types.ServerEvent) {
	for id, ch := range s.clients {
		if skipClientID != "" && id == skipClientID {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}
