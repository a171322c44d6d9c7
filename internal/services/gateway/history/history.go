// Package history keeps bounded in-memory message history per tenant and per
// tenant room.
package history

import (
	"sync"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
)

// DefaultCapacity bounds every history partition.
const DefaultCapacity = 100

// Buffer holds a ring of every recorded message per tenant plus one ring per
// tenant room.
type Buffer struct {
	capacity int

	mu      sync.Mutex
	tenants map[string]*tenantHistory
}

type tenantHistory struct {
	mu    sync.Mutex
	all   *ring[protocol.Message]
	rooms map[string]*ring[protocol.Message]
}

// NewBuffer returns a buffer bounded to capacity entries per partition.
// Non-positive values fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, tenants: make(map[string]*tenantHistory)}
}

// Capacity reports the per-partition bound.
func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) tenant(key string, create bool) *tenantHistory {
	b.mu.Lock()
	defer b.mu.Unlock()
	th, ok := b.tenants[key]
	if !ok && create {
		th = &tenantHistory{
			all:   newRing[protocol.Message](b.capacity),
			rooms: make(map[string]*ring[protocol.Message]),
		}
		b.tenants[key] = th
	}
	return th
}

// Append records msg in the tenant ring and, when msg names a room, in that
// room's ring.
func (b *Buffer) Append(tenant string, msg protocol.Message) {
	th := b.tenant(tenant, true)
	th.mu.Lock()
	defer th.mu.Unlock()
	th.all.push(msg)
	if msg.Room == "" {
		return
	}
	room, ok := th.rooms[msg.Room]
	if !ok {
		room = newRing[protocol.Message](b.capacity)
		th.rooms[msg.Room] = room
	}
	room.push(msg)
}

// Tenant returns the tenant's recent messages oldest first.
func (b *Buffer) Tenant(tenant string) []protocol.Message {
	th := b.tenant(tenant, false)
	if th == nil {
		return []protocol.Message{}
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.all.snapshot()
}

// Room returns the room's recent messages oldest first.
func (b *Buffer) Room(tenant, room string) []protocol.Message {
	th := b.tenant(tenant, false)
	if th == nil {
		return []protocol.Message{}
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	r, ok := th.rooms[room]
	if !ok {
		return []protocol.Message{}
	}
	return r.snapshot()
}
