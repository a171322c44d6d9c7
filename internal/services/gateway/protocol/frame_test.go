package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"dm","to":"bob","text":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, Frame{Type: TypeDM, To: "bob", Text: "hi"}, frame)

	frame, err = Decode([]byte(` {"type":"typing","status":true} `))
	require.NoError(t, err)
	require.True(t, frame.Status)
}

func TestDecodeIgnoresFieldsOfUnknownTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want Frame
	}{
		{`{"type":"reaction","status":"thumbs_up"}`, Frame{Type: "reaction"}},
		{`{"type":"presence_ping","room":{"id":7}}`, Frame{Type: "presence_ping"}},
		{`{"type":"bogus","text":5,"to":[1]}`, Frame{Type: "bogus"}},
		{`{"type":7,"text":"hi"}`, Frame{}},
		{`{"text":"hi"}`, Frame{}},
	}
	for _, tt := range tests {
		frame, err := Decode([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		require.Equal(t, tt.want, frame, tt.raw)
	}
}

func TestDecodeTypingStatusTruthiness(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`""`, false},
		{`1`, true},
		{`0`, false},
		{`null`, false},
		{`{}`, true},
	}
	for _, tt := range tests {
		frame, err := Decode([]byte(`{"type":"typing","status":` + tt.status + `}`))
		require.NoError(t, err, tt.status)
		require.Equal(t, tt.want, frame.Status, tt.status)
	}

	frame, err := Decode([]byte(`{"type":"typing"}`))
	require.NoError(t, err)
	require.False(t, frame.Status)
}

func TestKnown(t *testing.T) {
	for _, frameType := range []string{TypeSetUsername, TypeTyping, TypeDM, TypeJoin, TypeRoomMessage, TypeChat} {
		require.True(t, Known(frameType), frameType)
	}
	require.False(t, Known("reaction"))
	require.False(t, Known(""))
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[1,2]`, `"chat"`, `{"type":`, `{"type":"chat","text":5}`, `{"type":"reaction",}`} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestEventsEncodeWireShape(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"online users", NewOnlineUsers(nil), `{"type":"online_users","users":[]}`},
		{"history", NewChatHistory(nil), `{"type":"chat_history","history":[]}`},
		{"joined", NewJoinedRoom("lobby"), `{"type":"joined_room","room":"lobby"}`},
		{"user left", NewUserLeft("bob"), `{"type":"user_left","username":"bob"}`},
		{"typing", UserTyping{Type: TypeUserTyping, Username: "bob", Status: false}, `{"type":"user_typing","username":"bob","status":false}`},
		{"error", NewError(ErrTextInvalidJSON), `{"type":"error","message":"Invalid JSON"}`},
		{
			"room message",
			Message{Type: TypeRoomMessage, TenantID: "x", From: "alice", Room: "lobby", Text: "hi", Time: 42},
			`{"type":"room_message","tenantId":"x","from":"alice","room":"lobby","text":"hi","time":42}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestUserNotFound(t *testing.T) {
	require.Equal(t, "User 'ghost' not found", UserNotFound("ghost").Message)
}
