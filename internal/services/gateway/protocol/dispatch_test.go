package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func identified(name, room string) Session {
	return Session{TenantID: "x", ProjectID: "p", Username: name, Room: room}
}

func TestDispatchRequiresUsername(t *testing.T) {
	for _, typ := range []string{TypeTyping, TypeDM, TypeJoin, TypeRoomMessage, TypeChat, "bogus"} {
		t.Run(typ, func(t *testing.T) {
			session := Session{TenantID: "x"}
			got := Dispatch(session, Frame{Type: typ, Text: "hi", Room: "lobby", To: "bob"}, testNow)
			require.Equal(t, session, got.Next)
			require.Equal(t, []Effect{Reply{Event: NewError(ErrTextSetUsername)}}, got.Effects)
		})
	}
}

func TestDispatchSetUsernameOutsideRoom(t *testing.T) {
	got := Dispatch(Session{TenantID: "x"}, Frame{Type: TypeSetUsername, Username: "  alice "}, testNow)

	require.Equal(t, "alice", got.Next.Username)
	require.Equal(t, []Effect{
		AddPresence{Username: "alice"},
		BroadcastPresence{},
		Broadcast{Scope: ScopeTenantExceptSelf, Event: NewUserJoined("alice")},
	}, got.Effects)
}

func TestDispatchSetUsernameInRoomSendsHistoryAndRoomNotice(t *testing.T) {
	got := Dispatch(Session{TenantID: "x", Room: "lobby"}, Frame{Type: TypeSetUsername, Username: "alice"}, testNow)

	require.Equal(t, []Effect{
		AddPresence{Username: "alice"},
		ReplyHistory{Room: "lobby"},
		BroadcastPresence{},
		Broadcast{Scope: ScopeRoom, Room: "lobby", Event: NewUserJoined("alice")},
	}, got.Effects)
}

func TestDispatchSetUsernameFallbacks(t *testing.T) {
	got := Dispatch(Session{TenantID: "x", Identity: "token-user"}, Frame{Type: TypeSetUsername, Username: "   "}, testNow)
	require.Equal(t, "token-user", got.Next.Username)

	got = Dispatch(Session{TenantID: "x"}, Frame{Type: TypeSetUsername}, testNow)
	require.Equal(t, DefaultUsername, got.Next.Username)
}

func TestDispatchSetUsernameReleasesPreviousName(t *testing.T) {
	got := Dispatch(identified("alice", ""), Frame{Type: TypeSetUsername, Username: "alicia"}, testNow)

	require.Equal(t, "alicia", got.Next.Username)
	require.Equal(t, ReleasePresence{Username: "alice"}, got.Effects[0])
	require.Equal(t, AddPresence{Username: "alicia"}, got.Effects[1])
}

func TestDispatchSetUsernameNormalizesToNFC(t *testing.T) {
	decomposed := "Jose\u0301"
	got := Dispatch(Session{TenantID: "x"}, Frame{Type: TypeSetUsername, Username: decomposed}, testNow)
	require.Equal(t, "Jos\u00e9", got.Next.Username)
}

func TestDispatchTyping(t *testing.T) {
	got := Dispatch(identified("alice", "lobby"), Frame{Type: TypeTyping, Status: true}, testNow)
	require.Equal(t, []Effect{Broadcast{
		Scope: ScopeTenantExceptSelf,
		Event: UserTyping{Type: TypeUserTyping, Username: "alice", Status: true},
	}}, got.Effects)
}

func TestDispatchDirectMessage(t *testing.T) {
	got := Dispatch(identified("alice", ""), Frame{Type: TypeDM, To: " bob ", Text: "psst"}, testNow)

	require.Len(t, got.Effects, 1)
	direct, ok := got.Effects[0].(Direct)
	require.True(t, ok)
	require.Equal(t, "bob", direct.To)
	require.Equal(t, Message{Type: TypeDM, From: "alice", To: "bob", Text: "psst", Time: testNow.UnixMilli()}, direct.Event)
	require.Equal(t, NewError("User 'bob' not found"), direct.NotFound)
}

func TestDispatchJoinLeavesCurrentRoom(t *testing.T) {
	got := Dispatch(identified("alice", "lobby"), Frame{Type: TypeJoin, Room: " den "}, testNow)

	require.Equal(t, "den", got.Next.Room)
	require.Equal(t, []Effect{LeaveRoom{Room: "lobby"}, JoinRoom{Room: "den"}}, got.Effects)
}

func TestDispatchJoinFromNoRoom(t *testing.T) {
	got := Dispatch(identified("alice", ""), Frame{Type: TypeJoin, Room: "lobby"}, testNow)
	require.Equal(t, []Effect{JoinRoom{Room: "lobby"}}, got.Effects)
}

func TestDispatchJoinRequiresRoomName(t *testing.T) {
	session := identified("alice", "lobby")
	got := Dispatch(session, Frame{Type: TypeJoin, Room: "  "}, testNow)

	require.Equal(t, session, got.Next)
	require.Equal(t, []Effect{Reply{Event: NewError(ErrTextRoomRequired)}}, got.Effects)
}

func TestDispatchRoomMessage(t *testing.T) {
	got := Dispatch(identified("alice", "lobby"), Frame{Type: TypeRoomMessage, Text: "hi"}, testNow)

	msg := Message{Type: TypeRoomMessage, TenantID: "x", From: "alice", Room: "lobby", Text: "hi", Time: testNow.UnixMilli()}
	require.Equal(t, []Effect{
		Record{Message: msg},
		Broadcast{Scope: ScopeRoom, Room: "lobby", Event: msg},
	}, got.Effects)
}

func TestDispatchRoomMessageOutsideRoomFallsBackToTenant(t *testing.T) {
	got := Dispatch(identified("alice", ""), Frame{Type: TypeRoomMessage, Text: "hi"}, testNow)

	require.Len(t, got.Effects, 2)
	require.Equal(t, ScopeTenantExceptSelf, got.Effects[1].(Broadcast).Scope)
}

func TestDispatchChat(t *testing.T) {
	got := Dispatch(identified("alice", "lobby"), Frame{Type: TypeChat, Text: "hello"}, testNow)

	msg := Message{Type: TypeChat, TenantID: "x", From: "alice", Text: "hello", Time: testNow.UnixMilli()}
	require.Equal(t, []Effect{
		Record{Message: msg},
		Broadcast{Scope: ScopeTenantExceptSelf, Event: msg},
	}, got.Effects)
}

func TestDispatchIgnoresUnknownTypes(t *testing.T) {
	session := identified("alice", "lobby")
	got := Dispatch(session, Frame{Type: "dance"}, testNow)
	require.Equal(t, session, got.Next)
	require.Empty(t, got.Effects)
}
