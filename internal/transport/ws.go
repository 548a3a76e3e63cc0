package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/countrycall/internal/game"
	"github.com/MrWong99/countrycall/internal/session"
)

// ServeWS upgrades the request and runs one player's connection until it
// closes. Each round the player starts is a new game.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("transport: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	pc := &playerConn{
		backend:      h.backend,
		conn:         c,
		ctx:          ctx,
		writeTimeout: h.writeTimeout,
	}
	slog.Debug("transport: player connected", "remote", r.RemoteAddr)

	err = pc.readLoop()
	pc.stopGame()
	cancel()

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		slog.Debug("transport: player disconnected", "remote", r.RemoteAddr)
	case errors.Is(err, context.Canceled):
		slog.Debug("transport: connection closed by server", "remote", r.RemoteAddr)
	default:
		slog.Info("transport: connection lost", "remote", r.RemoteAddr, "err", err)
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// playerConn is one WebSocket connection. It is the [game.Sink] of every
// game it starts.
type playerConn struct {
	backend      Backend
	conn         *websocket.Conn
	ctx          context.Context
	writeTimeout time.Duration

	mu   sync.Mutex
	game *game.Game
}

var _ game.Sink = (*playerConn)(nil)

// Emit implements [game.Sink]. Writes are bounded by the write timeout and
// abandoned once the connection is gone.
func (pc *playerConn) Emit(_ context.Context, ev game.Event) {
	pc.write(toEventMessage(ev))
}

func (pc *playerConn) write(msg eventMessage) {
	ctx, cancel := context.WithTimeout(pc.ctx, pc.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, pc.conn, msg); err != nil && pc.ctx.Err() == nil {
		slog.Debug("transport: event write failed", "event", msg.Event, "err", err)
	}
}

func (pc *playerConn) readLoop() error {
	for {
		typ, data, err := pc.conn.Read(pc.ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			pc.feed(data)
		case websocket.MessageText:
			if err := pc.control(data); err != nil {
				pc.write(errorMessage(err))
			}
		}
	}
}

func (pc *playerConn) current() *game.Game {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.game
}

func (pc *playerConn) feed(pcm []byte) {
	if g := pc.current(); g != nil {
		g.Feed(pcm)
	}
}

func (pc *playerConn) control(data []byte) error {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid control message: %w", err)
	}
	switch msg.Type {
	case ControlStart:
		return pc.start(time.Duration(msg.Duration))
	case ControlStop:
		return pc.stop()
	default:
		return fmt.Errorf("unknown control message type %q", msg.Type)
	}
}

func (pc *playerConn) start(d time.Duration) error {
	if g := pc.current(); g != nil {
		if phase := g.Session().Phase(); phase == session.PhaseRunning {
			return &session.InvalidStateError{Op: "start", Phase: phase}
		}
	}
	g, err := pc.backend.StartGame(pc.ctx, pc, d)
	if err != nil {
		return err
	}
	pc.mu.Lock()
	pc.game = g
	pc.mu.Unlock()
	return nil
}

func (pc *playerConn) stop() error {
	g := pc.current()
	if g == nil {
		return &session.InvalidStateError{Op: "stop", Phase: session.PhaseIdle}
	}
	_, err := g.Stop()
	return err
}

// stopGame ends a round still running when the connection goes away.
func (pc *playerConn) stopGame() {
	g := pc.current()
	if g == nil {
		return
	}
	if _, err := g.Stop(); err == nil {
		slog.Info("transport: round stopped on disconnect", "session_id", g.ID())
	}
}
