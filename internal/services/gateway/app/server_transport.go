package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/broadcast.space/internal/platform/errors"
	"github.com/louisbranch/broadcast.space/internal/platform/id"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
)

func (g *gateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", g.metrics.Handler())
	mux.HandleFunc("/ws", g.serveWS)
	if g.keys != nil {
		mux.Handle("/api/", g.requireAPIKey(g.apiHandler()))
	}
	return mux
}

func (g *gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	admission, err := g.gate.Admit(r)
	if err != nil {
		code := apperrors.GetCode(err)
		g.metrics.AdmissionRejections.WithLabelValues(string(code)).Inc()
		g.log.Info("websocket rejected",
			zap.String("code", string(code)),
			zap.String("host", r.Host),
			zap.String("remote", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		http.Error(w, apperrors.PublicMessage(err), apperrors.HTTPStatus(err))
		return
	}

	connID, err := id.NewID()
	if err != nil {
		g.log.Error("generate connection id", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(connID, ws, admission, g.log)
	g.serveConn(r.Context(), c)
}

// serveConn registers c, runs its read loop and cleans up on exit. Frames from
// one connection are dispatched strictly in arrival order.
func (g *gateway) serveConn(ctx context.Context, c *conn) {
	g.active.Add(1)
	defer g.active.Done()
	g.hub.add(c)
	g.metrics.ActiveConnections.Inc()
	c.log.Debug("connection opened")
	go c.writePump()
	defer g.closeConn(ctx, c)

	c.ws.SetReadLimit(maxFramePayloadBytes)
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed() {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		g.handleFrame(ctx, c, data)
	}
}

func (g *gateway) handleFrame(ctx context.Context, c *conn, data []byte) {
	if !c.limiter.Allow() {
		g.metrics.Frames.WithLabelValues("rate_limited").Inc()
		g.hub.send(c, protocol.NewError(protocol.ErrTextRateLimited))
		return
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		g.metrics.Frames.WithLabelValues("invalid").Inc()
		g.hub.send(c, protocol.NewError(protocol.ErrTextInvalidJSON))
		return
	}
	g.metrics.Frames.WithLabelValues(frameLabel(frame.Type)).Inc()

	transition := protocol.Dispatch(c.snapshot(), frame, g.clock.Now())
	c.setSession(transition.Next)
	g.apply(ctx, c, transition.Effects)
}

// closeConn is the only place a connection is destroyed.
func (g *gateway) closeConn(ctx context.Context, c *conn) {
	c.terminate()
	if !g.hub.remove(c) {
		return
	}
	g.metrics.ActiveConnections.Dec()

	session := c.snapshot()
	if session.Username != "" {
		g.presence.Remove(c.tenant, session.Username)
		g.hub.broadcastAll(c.tenant, protocol.NewOnlineUsers(g.presence.List(c.tenant)))
		g.hub.broadcastAll(c.tenant, protocol.NewUserLeft(session.Username))
	}
	// The request context ends with the handler, so leave runs detached.
	g.leaveRoom(context.WithoutCancel(ctx), c.tenant, session.Room, session.Username)
	c.log.Debug("connection closed", zap.String("username", session.Username))
}

func frameLabel(frameType string) string {
	if protocol.Known(frameType) {
		return frameType
	}
	return "unknown"
}
