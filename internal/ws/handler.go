package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/engine"
	"github.com/arcadeparty/arcade-backend/internal/registry"
	"github.com/arcadeparty/arcade-backend/internal/session"
	"github.com/arcadeparty/arcade-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler upgrades the connection and speaks the realtime protocol: JSON
// ClientEvents in, JSON ServerEvents out. One writer goroutine owns the
// socket for writes; the read loop translates events into session messages.
func Handler(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Browser clients are served from another origin in every
			// deployment we run; auth is out of scope here anyway.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			id:      uuid.NewString(),
			conn:    conn,
			reg:     reg,
			log:     log,
			writeCh: make(chan types.ServerEvent, 32),
		}
		c.run(r.Context())
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	reg     *registry.Registry
	log     *zap.Logger
	writeCh chan types.ServerEvent // owned by this connection, never closed
	ctx     context.Context
	sess    *session.Session // current session, nil until create/join/reconnect
}

func (c *client) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	go c.writeLoop(ctx)

	defer func() {
		if c.sess != nil {
			c.sess.Inbox() <- session.Detach{ClientID: c.id}
		}
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			return
		}

		var ev types.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.sendError("INVALID_REQUEST", "malformed event")
			continue
		}
		c.handle(ev)
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.writeCh:
			payload, err := json.Marshal(ev)
			if err != nil {
				c.log.Warn("marshal server event", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		}
	}
}

// bind makes a fresh channel for the session actor to broadcast into and
// pumps it into this connection's write channel. The actor closes the
// channel when it drops or detaches us, which ends the pump.
func (c *client) bind(s *session.Session) chan types.ServerEvent {
	if c.sess != nil && c.sess != s {
		c.sess.Inbox() <- session.Detach{ClientID: c.id}
	}
	ch := make(chan types.ServerEvent, 16)
	go func() {
		for ev := range ch {
			select {
			case c.writeCh <- ev:
			case <-c.ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (c *client) send(ev types.ServerEvent) {
	select {
	case c.writeCh <- ev:
	case <-c.ctx.Done():
	}
}

func (c *client) handle(ev types.ClientEvent) {
	switch ev.Type {
	case types.EvtCreateSession:
		c.createSession(ev)
	case types.EvtJoinSession:
		c.joinSession(ev)
	case types.EvtLeaveSession:
		c.withSession(ev, func(s *session.Session) {
			reply := make(chan error, 1)
			s.Inbox() <- session.Leave{PlayerID: ev.PlayerID, Reply: reply}
			c.replyErr(<-reply)
		})
	case types.EvtStartSession:
		c.withSession(ev, func(s *session.Session) {
			reply := make(chan error, 1)
			s.Inbox() <- session.Start{Reply: reply}
			c.replyErr(<-reply)
		})
	case types.EvtSubmitPosition:
		c.withSession(ev, func(s *session.Session) {
			reply := make(chan error, 1)
			s.Inbox() <- session.SubmitPosition{PlayerID: ev.PlayerID, X: ev.X, Y: ev.Y, Reply: reply}
			c.replyErr(<-reply)
		})
	case types.EvtSubmitScore:
		if ev.Score == nil {
			c.sendError("INVALID_REQUEST", "score is required")
			return
		}
		c.withSession(ev, func(s *session.Session) {
			reply := make(chan error, 1)
			s.Inbox() <- session.SubmitScore{PlayerID: ev.PlayerID, Score: *ev.Score, Reply: reply}
			c.replyErr(<-reply)
		})
	case types.EvtReconnectSession:
		c.reconnect(ev)
	default:
		c.sendError("INVALID_REQUEST", "unknown event type")
	}
}

func (c *client) createSession(ev types.ClientEvent) {
	reply := make(chan registry.CreateResult, 1)
	c.reg.Inbox() <- registry.Create{
		RoomID:   ev.RoomID,
		Settings: toSettings(ev.Settings),
		Reply:    reply,
	}
	res := <-reply
	if res.Err != nil {
		c.replyErr(res.Err)
		return
	}
	res.Session.Inbox() <- session.Attach{ClientID: c.id, Outbox: c.bind(res.Session)}
	c.sess = res.Session
	c.send(types.ServerEvent{
		Type:      types.EvtSessionCreated,
		SessionID: c.sess.ID(),
		RoomID:    ev.RoomID,
	})
}

func (c *client) joinSession(ev types.ClientEvent) {
	s := c.lookup(ev.SessionID)
	if s == nil {
		c.replyErr(engine.ErrSessionNotFound)
		return
	}
	ch := c.bind(s)
	reply := make(chan error, 1)
	s.Inbox() <- session.Join{
		ClientID:    c.id,
		PlayerID:    ev.PlayerID,
		DisplayName: ev.DisplayName,
		Outbox:      ch,
		Reply:       reply,
	}
	if err := <-reply; err != nil {
		// the actor only takes ownership of the channel on success
		close(ch)
		c.replyErr(err)
		return
	}
	c.sess = s
}

func (c *client) reconnect(ev types.ClientEvent) {
	s := c.lookup(ev.SessionID)
	if s == nil {
		c.replyErr(engine.ErrSessionNotFound)
		return
	}
	reply := make(chan types.ReconnectSnapshot, 1)
	s.Inbox() <- session.Snapshot{ClientID: c.id, Outbox: c.bind(s), Reply: reply}
	snap := <-reply
	c.sess = s
	c.send(types.ServerEvent{
		Type:      types.EvtReconnectState,
		SessionID: s.ID(),
		Snapshot:  &snap,
	})
}

// withSession resolves the target session (the one this connection is bound
// to, or an explicit sessionId) and runs fn against it.
func (c *client) withSession(ev types.ClientEvent, fn func(*session.Session)) {
	s := c.sess
	if ev.SessionID != "" {
		s = c.lookup(ev.SessionID)
	}
	if s == nil {
		c.replyErr(engine.ErrSessionNotFound)
		return
	}
	fn(s)
}

func (c *client) lookup(id string) *session.Session {
	if id == "" {
		return nil
	}
	reply := make(chan *session.Session, 1)
	c.reg.Inbox() <- registry.Get{ID: id, Reply: reply}
	return <-reply
}

func (c *client) replyErr(err error) {
	if err == nil {
		return
	}
	c.sendError(ErrorCode(err), err.Error())
}

// sendError goes only to this connection, never broadcast.
func (c *client) sendError(code, message string) {
	c.send(types.ServerEvent{Type: types.EvtError, Error: &types.ErrorInfo{Code: code, Message: message}})
}

// ErrorCode maps domain errors onto the wire taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, engine.ErrPlayerNotFound):
		return "PLAYER_NOT_FOUND"
	case errors.Is(err, engine.ErrSessionAlreadyStarted):
		return "SESSION_ALREADY_STARTED"
	case errors.Is(err, engine.ErrSessionNotActive):
		return "SESSION_NOT_ACTIVE"
	case errors.Is(err, engine.ErrSessionCompleted):
		return "SESSION_COMPLETED"
	case errors.Is(err, engine.ErrNoPlayers):
		return "NO_PLAYERS"
	case errors.Is(err, engine.ErrNoActiveRound):
		return "NO_ACTIVE_ROUND"
	case errors.Is(err, engine.ErrDuplicatePlayer):
		return "DUPLICATE_PLAYER"
	case errors.Is(err, engine.ErrInvalidSettings):
		return "INVALID_SETTINGS"
	default:
		return "INTERNAL_ERROR"
	}
}

func toSettings(ws *types.SessionSettings) engine.Settings {
	settings := engine.DefaultSettings()
	if ws == nil {
		return settings
	}
	if ws.MaxRounds > 0 {
		settings.MaxRounds = ws.MaxRounds
	}
	if ws.AutoAdvanceDelayMs > 0 {
		settings.AutoAdvanceDelay = time.Duration(ws.AutoAdvanceDelayMs) * time.Millisecond
	}
	if ws.RoundDurationMs > 0 {
		settings.RoundDuration = time.Duration(ws.RoundDurationMs) * time.Millisecond
	}
	if ws.GameRotation != nil {
		settings.GameRotation = ws.GameRotation
	}
	return settings
}
