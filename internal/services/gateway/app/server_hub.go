package server

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
)

// hub is the set of live connections, partitioned by tenant key. Every
// delivery selects a tenant partition before applying any other filter.
type hub struct {
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	tenants map[string]map[*conn]struct{}
}

func newHub(log *zap.Logger, m *metrics.Metrics) *hub {
	return &hub{log: log, metrics: m, tenants: make(map[string]map[*conn]struct{})}
}

func (h *hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[c.tenant]
	if !ok {
		set = make(map[*conn]struct{})
		h.tenants[c.tenant] = set
	}
	set[c] = struct{}{}
}

// remove reports whether c was registered.
func (h *hub) remove(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[c.tenant]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.tenants, c.tenant)
	}
	return true
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.tenants {
		total += len(set)
	}
	return total
}

// all returns every live connection across tenants.
func (h *hub) all() []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*conn, 0, len(h.tenants))
	for _, set := range h.tenants {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// findByUsername returns a live connection in tenant bound to username.
func (h *hub) findByUsername(tenant, username string) *conn {
	if username == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.tenants[tenant] {
		if c.closed() {
			continue
		}
		if c.snapshot().Username == username {
			return c
		}
	}
	return nil
}

func (h *hub) broadcastAll(tenant string, event protocol.Event) int {
	return h.deliver(tenant, event, func(*conn) bool { return true })
}

func (h *hub) broadcastExcept(tenant string, sender *conn, event protocol.Event) int {
	return h.deliver(tenant, event, func(c *conn) bool { return c != sender })
}

// broadcastRoom delivers to connections whose current room is room. except
// may be nil.
func (h *hub) broadcastRoom(tenant, room string, except *conn, event protocol.Event) int {
	return h.deliver(tenant, event, func(c *conn) bool {
		return c != except && c.snapshot().Room == room
	})
}

// deliver serializes event once and enqueues it on every matching connection
// of tenant. It returns the number of successful enqueues.
func (h *hub) deliver(tenant string, event protocol.Event, match func(*conn) bool) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode event", zap.String("type", event.EventType()), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.tenants[tenant] {
		if !match(c) {
			continue
		}
		if c.enqueue(data) {
			delivered++
			continue
		}
		h.metrics.DroppedDeliveries.Inc()
	}
	h.metrics.Deliveries.Add(float64(delivered))
	return delivered
}

// send delivers event to a single connection.
func (h *hub) send(c *conn, event protocol.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode event", zap.String("type", event.EventType()), zap.Error(err))
		return false
	}
	if !c.enqueue(data) {
		h.metrics.DroppedDeliveries.Inc()
		return false
	}
	h.metrics.Deliveries.Inc()
	return true
}
