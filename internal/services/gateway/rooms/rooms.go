// Package rooms resolves tenant-scoped rooms and maintains their persisted
// membership lists.
//
// Persisted membership is informational. Live room delivery is decided by the
// current room held on each connection, so a failure here never changes who
// receives a room message.
package rooms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

// Directory joins and leaves rooms through a RoomStore.
type Directory struct {
	store storage.RoomStore
	now   func() time.Time
}

// NewDirectory returns a directory backed by store. A nil store makes every
// operation a no-op that echoes the requested name.
func NewDirectory(store storage.RoomStore) *Directory {
	return &Directory{store: store, now: time.Now}
}

// Join finds or creates the room and adds username to its members. It returns
// the canonical room name.
func (d *Directory) Join(ctx context.Context, tenant, room, username string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", fmt.Errorf("room name is required")
	}
	if d == nil || d.store == nil {
		return room, nil
	}
	resolved, err := d.store.EnsureRoom(ctx, tenant, room)
	if err != nil {
		return room, fmt.Errorf("ensure room %q: %w", room, err)
	}
	if username != "" {
		if err := d.store.AddRoomMember(ctx, tenant, resolved.Name, username, d.now()); err != nil {
			return resolved.Name, fmt.Errorf("add member to room %q: %w", resolved.Name, err)
		}
	}
	return resolved.Name, nil
}

// Leave removes username from room. An empty room is a no-op.
func (d *Directory) Leave(ctx context.Context, tenant, room, username string) error {
	if room == "" || d == nil || d.store == nil {
		return nil
	}
	if err := d.store.RemoveRoomMember(ctx, tenant, room, username); err != nil {
		return fmt.Errorf("remove member from room %q: %w", room, err)
	}
	return nil
}

// Members lists persisted member usernames for room.
func (d *Directory) Members(ctx context.Context, tenant, room string) ([]string, error) {
	if d == nil || d.store == nil {
		return []string{}, nil
	}
	members, err := d.store.ListRoomMembers(ctx, tenant, room)
	if err != nil {
		return nil, fmt.Errorf("list members of room %q: %w", room, err)
	}
	names := make([]string, 0, len(members))
	for _, member := range members {
		names = append(names, member.Username)
	}
	return names, nil
}
