package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/louisbranch/broadcast.space/internal/platform/timeouts"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/auth"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
)

const (
	maxFramePayloadBytes = 16 * 1024
	maxFramesPerSecond   = 40
	sendQueueSize        = 64
)

// conn is the gateway's state for one live WebSocket. Only the read loop
// mutates the session; other goroutines read it through snapshot.
type conn struct {
	id     string
	tenant string
	ws     *websocket.Conn
	log    *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
	limiter   *rate.Limiter

	mu      sync.Mutex
	session protocol.Session
}

func newConn(id string, ws *websocket.Conn, admission auth.Admission, log *zap.Logger) *conn {
	c := &conn{
		id:      id,
		tenant:  admission.TenantKey(),
		ws:      ws,
		log:     log.With(zap.String("conn", id), zap.String("tenant", admission.TenantKey())),
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(maxFramesPerSecond), maxFramesPerSecond),
		session: protocol.Session{
			TenantID:  admission.TenantKey(),
			ProjectID: admission.Scope.ProjectID,
			Identity:  admission.Identity,
		},
	}
	c.alive.Store(true)
	return c
}

func (c *conn) snapshot() protocol.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *conn) setSession(next protocol.Session) {
	c.mu.Lock()
	c.session = next
	c.mu.Unlock()
}

func (c *conn) setRoom(room string) {
	c.mu.Lock()
	c.session.Room = room
	c.mu.Unlock()
}

// enqueue hands data to the writer without blocking. It reports false when
// the connection is closed or its queue is full.
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine writing data frames to ws.
func (c *conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeouts.WebSocketWrite))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.terminate()
				return
			}
		}
	}
}

// ping sends a liveness probe. WriteControl is safe alongside writePump.
func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeouts.WebSocketWrite))
}

// terminate drops the underlying connection without a close handshake.
func (c *conn) terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.NetConn().Close()
	})
}
