package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/louisbranch/broadcast.space/internal/platform/logging"
	"github.com/louisbranch/broadcast.space/internal/platform/timeouts"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/auth"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/history"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/presence"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/rooms"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

// gatewayDeps are the collaborators one gateway instance owns or borrows.
// Zero values are replaced with in-memory defaults by newGateway.
type gatewayDeps struct {
	Logger            *zap.Logger
	Gate              *auth.Gate
	Tokens            *auth.Tokens
	Keys              auth.KeyAuthenticator
	RoomStore         storage.RoomStore
	MessageStore      storage.MessageStore
	Metrics           *metrics.Metrics
	Clock             clock.Clock
	HistoryCapacity   int
	PersistQueueSize  int
	KeepaliveInterval time.Duration
}

// gateway holds all process-wide connection state. Nothing here is global;
// tests build a fresh instance per case.
type gateway struct {
	log       *zap.Logger
	gate      *auth.Gate
	tokens    *auth.Tokens
	keys      auth.KeyAuthenticator
	hub       *hub
	presence  *presence.Registry
	history   *history.Buffer
	rooms     *rooms.Directory
	messages  storage.MessageStore
	persister *persister
	metrics   *metrics.Metrics
	clock     clock.Clock
	keepalive *keepalive
	upgrader  websocket.Upgrader
	active    sync.WaitGroup
}

func newGateway(deps gatewayDeps) *gateway {
	log := logging.OrNop(deps.Logger)
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(deps.Tokens, deps.Keys, false)
	}
	interval := deps.KeepaliveInterval
	if interval <= 0 {
		interval = timeouts.Keepalive
	}

	h := newHub(log, m)
	return &gateway{
		log:       log,
		gate:      gate,
		tokens:    deps.Tokens,
		keys:      deps.Keys,
		hub:       h,
		presence:  presence.NewRegistry(),
		history:   history.NewBuffer(deps.HistoryCapacity),
		rooms:     rooms.NewDirectory(deps.RoomStore),
		messages:  deps.MessageStore,
		persister: newPersister(deps.MessageStore, deps.PersistQueueSize, log, m),
		metrics:   m,
		clock:     clk,
		keepalive: &keepalive{hub: h, clock: clk, interval: interval, log: log, metrics: m},
		upgrader: websocket.Upgrader{
			HandshakeTimeout: timeouts.Handshake,
			// Origin was already checked by the gate against the credential's
			// allow-list.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// apply executes effects for c in order.
func (g *gateway) apply(ctx context.Context, c *conn, effects []protocol.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case protocol.Reply:
			g.hub.send(c, e.Event)
		case protocol.AddPresence:
			g.presence.Add(c.tenant, e.Username)
		case protocol.ReleasePresence:
			g.presence.Remove(c.tenant, e.Username)
		case protocol.ReplyHistory:
			g.hub.send(c, protocol.NewChatHistory(g.history.Room(c.tenant, e.Room)))
		case protocol.BroadcastPresence:
			g.hub.broadcastAll(c.tenant, protocol.NewOnlineUsers(g.presence.List(c.tenant)))
		case protocol.Broadcast:
			g.broadcast(c, e)
		case protocol.Direct:
			target := g.hub.findByUsername(c.tenant, e.To)
			if target == nil {
				g.hub.send(c, e.NotFound)
				continue
			}
			g.hub.send(target, e.Event)
		case protocol.LeaveRoom:
			g.leaveRoom(ctx, c.tenant, e.Room, c.snapshot().Username)
		case protocol.JoinRoom:
			g.joinRoom(ctx, c, e.Room)
		case protocol.Record:
			g.record(c.tenant, e.Message)
		default:
			g.log.Warn("unhandled effect", zap.Any("effect", effect))
		}
	}
}

func (g *gateway) broadcast(c *conn, b protocol.Broadcast) {
	switch b.Scope {
	case protocol.ScopeTenant:
		g.hub.broadcastAll(c.tenant, b.Event)
	case protocol.ScopeTenantExceptSelf:
		g.hub.broadcastExcept(c.tenant, c, b.Event)
	case protocol.ScopeRoom:
		g.hub.broadcastRoom(c.tenant, b.Room, c, b.Event)
	}
}

func (g *gateway) joinRoom(ctx context.Context, c *conn, room string) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.StorageCall)
	defer cancel()
	canonical, err := g.rooms.Join(callCtx, c.tenant, room, c.snapshot().Username)
	if err != nil {
		c.log.Warn("join room", zap.String("room", room), zap.Error(err))
	}
	if canonical == "" {
		canonical = room
	}
	c.setRoom(canonical)
	g.hub.send(c, protocol.NewJoinedRoom(canonical))
}

func (g *gateway) leaveRoom(ctx context.Context, tenant, room, username string) {
	if room == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, timeouts.StorageCall)
	defer cancel()
	if err := g.rooms.Leave(callCtx, tenant, room, username); err != nil {
		g.log.Warn("leave room", zap.String("tenant", tenant), zap.String("room", room), zap.Error(err))
	}
}

// record appends msg to history and queues chat and room messages for
// persistence.
func (g *gateway) record(tenant string, msg protocol.Message) {
	g.history.Append(tenant, msg)
	if msg.Type != protocol.TypeChat && msg.Type != protocol.TypeRoomMessage {
		return
	}
	g.persister.enqueue(storage.Message{
		TenantID:  tenant,
		Type:      msg.Type,
		From:      msg.From,
		Room:      msg.Room,
		Text:      msg.Text,
		CreatedAt: time.UnixMilli(msg.Time).UTC(),
	})
}

// closeAll terminates every live connection. Their read loops run the
// regular close cleanup.
func (g *gateway) closeAll() {
	for _, c := range g.hub.all() {
		c.terminate()
	}
}

// drain waits up to timeout for every read loop to finish its cleanup.
func (g *gateway) drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
