package rooms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
	"github.com/stretchr/testify/require"
)

type fakeRoomStore struct {
	rooms     map[string]bool
	members   map[string][]string
	ensureErr error
	removeErr error
	removed   []string
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{rooms: map[string]bool{}, members: map[string][]string{}}
}

func (f *fakeRoomStore) EnsureRoom(_ context.Context, tenantID, name string) (storage.Room, error) {
	if f.ensureErr != nil {
		return storage.Room{}, f.ensureErr
	}
	f.rooms[tenantID+"/"+name] = true
	return storage.Room{TenantID: tenantID, Name: name}, nil
}

func (f *fakeRoomStore) AddRoomMember(_ context.Context, tenantID, room, username string, _ time.Time) error {
	key := tenantID + "/" + room
	for _, existing := range f.members[key] {
		if existing == username {
			return nil
		}
	}
	f.members[key] = append(f.members[key], username)
	return nil
}

func (f *fakeRoomStore) RemoveRoomMember(_ context.Context, tenantID, room, username string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, tenantID+"/"+room+"/"+username)
	key := tenantID + "/" + room
	kept := f.members[key][:0]
	for _, existing := range f.members[key] {
		if existing != username {
			kept = append(kept, existing)
		}
	}
	f.members[key] = kept
	return nil
}

func (f *fakeRoomStore) ListRoomMembers(_ context.Context, tenantID, room string) ([]storage.RoomMember, error) {
	var out []storage.RoomMember
	for _, name := range f.members[tenantID+"/"+room] {
		out = append(out, storage.RoomMember{Username: name})
	}
	return out, nil
}

func TestDirectoryJoinCreatesRoomAndMember(t *testing.T) {
	store := newFakeRoomStore()
	d := NewDirectory(store)

	name, err := d.Join(context.Background(), "x", " lobby ", "alice")
	require.NoError(t, err)
	require.Equal(t, "lobby", name)
	_, err = d.Join(context.Background(), "x", "lobby", "alice")
	require.NoError(t, err)

	members, err := d.Members(context.Background(), "x", "lobby")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)
	require.True(t, store.rooms["x/lobby"])
}

func TestDirectoryJoinRequiresRoom(t *testing.T) {
	_, err := NewDirectory(newFakeRoomStore()).Join(context.Background(), "x", " ", "alice")
	require.Error(t, err)
}

func TestDirectoryJoinReturnsRequestedNameOnFailure(t *testing.T) {
	store := newFakeRoomStore()
	store.ensureErr = errors.New("disk full")

	name, err := NewDirectory(store).Join(context.Background(), "x", "lobby", "alice")
	require.Error(t, err)
	require.Equal(t, "lobby", name)
}

func TestDirectoryLeave(t *testing.T) {
	store := newFakeRoomStore()
	d := NewDirectory(store)

	require.NoError(t, d.Leave(context.Background(), "x", "", "alice"))
	require.Empty(t, store.removed)

	require.NoError(t, d.Leave(context.Background(), "x", "lobby", "alice"))
	require.Equal(t, []string{"x/lobby/alice"}, store.removed)

	store.removeErr = errors.New("locked")
	require.Error(t, d.Leave(context.Background(), "x", "lobby", "alice"))
}

func TestDirectoryWithoutStoreEchoesNames(t *testing.T) {
	d := NewDirectory(nil)
	name, err := d.Join(context.Background(), "x", "lobby", "alice")
	require.NoError(t, err)
	require.Equal(t, "lobby", name)
	require.NoError(t, d.Leave(context.Background(), "x", "lobby", "alice"))
	members, err := d.Members(context.Background(), "x", "lobby")
	require.NoError(t, err)
	require.Empty(t, members)
}
