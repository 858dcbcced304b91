// Package registry owns the map of live sessions. Like each session it is a
// single goroutine processing typed messages, so the map needs no lock. It
// also garbage-collects sessions that finished long ago, on a coarse ticker
// independent of any per-session timer.
package registry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/mirror"
	"github.com/arcadeparty/arcade-backend/internal/session"
)

type Msg interface{ isRegistryMsg() }

type Create struct {
	RoomID   string
	Settings engine.Settings
	Reply    chan CreateResult
}

type CreateResult struct {
	Session *session.Session
	Err     error
}

type Get struct {
	ID    string
	Reply chan *session.Session // nil when unknown
}

type Remove struct{ ID string }

// Completed is posted by a session's completion callback so the GC sweep
// knows when it became eligible.
type Completed struct {
	ID string
	At time.Time
}

type Shutdown struct{}

func (Create) isRegistryMsg()    {}
func (Get) isRegistryMsg()       {}
func (Remove) isRegistryMsg()    {}
func (Completed) isRegistryMsg() {}
func (Shutdown) isRegistryMsg()  {}

type Config struct {
	Clock         clockwork.Clock
	Log           *zap.Logger
	Recorder      mirror.Recorder
	GhostTTL      time.Duration
	SweepInterval time.Duration
	GCInterval    time.Duration
	GCAge         time.Duration
}

type Registry struct {
	inbox     chan Msg
	sessions  map[string]*session.Session
	completed map[string]time.Time

	clock         clockwork.Clock
	log           *zap.Logger
	rec           mirror.Recorder
	ghostTTL      time.Duration
	sweepInterval time.Duration
	gcAge         time.Duration
	gc            clockwork.Ticker

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = mirror.Nop{}
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Hour
	}
	if cfg.GCAge <= 0 {
		cfg.GCAge = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:         make(chan Msg, 64),
		sessions:      map[string]*session.Session{},
		completed:     map[string]time.Time{},
		clock:         cfg.Clock,
		log:           cfg.Log,
		rec:           cfg.Recorder,
		ghostTTL:      cfg.GhostTTL,
		sweepInterval: cfg.SweepInterval,
		gcAge:         cfg.GCAge,
		ctx:           ctx,
		cancel:        cancel,
	}
	r.gc = r.clock.NewTicker(cfg.GCInterval)
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-r.gc.Chan():
			r.collect()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Create:
				msg.Reply <- r.create(msg)

			case Get:
				msg.Reply <- r.sessions[msg.ID] // may be nil

			case Remove:
				r.remove(msg.ID)

			case Completed:
				r.completed[msg.ID] = msg.At

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) create(msg Create) CreateResult {
	now := r.clock.Now()
	state, err := engine.NewSession(msg.RoomID, msg.Settings, now)
	if err != nil {
		return CreateResult{Err: err}
	}
	sess := session.New(r.ctx, session.Config{
		State:         state,
		Clock:         r.clock,
		Log:           r.log,
		Recorder:      r.rec,
		GhostTTL:      r.ghostTTL,
		SweepInterval: r.sweepInterval,
		OnComplete: func(id string, at time.Time) {
			// called from the session goroutine; hand off to our loop
			select {
			case r.inbox <- Completed{ID: id, At: at}:
			case <-r.ctx.Done():
			}
		},
	})
	r.sessions[state.ID] = sess
	r.rec.Record(mirror.SessionCreated{SessionID: state.ID, RoomID: msg.RoomID, CreatedAt: now})
	r.log.Info("session created",
		zap.String("session_id", state.ID),
		zap.String("room_id", msg.RoomID),
		zap.Int("max_rounds", state.Settings.MaxRounds))
	return CreateResult{Session: sess}
}

func (r *Registry) remove(id string) {
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	sess.Inbox() <- session.Shutdown{}
	delete(r.sessions, id)
	delete(r.completed, id)
}

// collect tears down sessions that completed longer than gcAge ago. Only
// completed sessions are ever touched, so the sweep is safe alongside live
// gameplay.
func (r *Registry) collect() {
	now := r.clock.Now()
	for id, at := range r.completed {
		if now.Sub(at) < r.gcAge {
			continue
		}
		r.log.Info("garbage-collecting completed session",
			zap.String("session_id", id),
			zap.Time("completed_at", at))
		r.remove(id)
	}
}

func (r *Registry) shutdown() {
	r.gc.Stop()
	for id, sess := range r.sessions {
		sess.Inbox() <- session.Shutdown{}
		delete(r.sessions, id)
	}
	clear(r.completed)
	r.cancel()
}
