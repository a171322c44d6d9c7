package protocol

import "fmt"

// Outbound event types.
const (
	TypeOnlineUsers = "online_users"
	TypeChatHistory = "chat_history"
	TypeJoinedRoom  = "joined_room"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeUserTyping  = "user_typing"
	TypeError       = "error"
)

// Fixed error texts sent in-band.
const (
	ErrTextInvalidJSON     = "Invalid JSON"
	ErrTextSetUsername     = "Set username first"
	ErrTextRoomRequired    = "Room name required"
	ErrTextRateLimited     = "Rate limit exceeded"
	userNotFoundTextFormat = "User '%s' not found"
)

// Event is any outbound wire event.
type Event interface {
	EventType() string
}

// Message is a chat, room or direct message record. Records are immutable
// once built and shared between history and delivery.
type Message struct {
	Type     string `json:"type"`
	TenantID string `json:"tenantId,omitempty"`
	From     string `json:"from"`
	Room     string `json:"room,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text"`
	Time     int64  `json:"time"`
}

func (m Message) EventType() string { return m.Type }

// OnlineUsers is the tenant presence snapshot.
type OnlineUsers struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

func (e OnlineUsers) EventType() string { return e.Type }

// ChatHistory is the history snapshot sent after identification in a room.
type ChatHistory struct {
	Type    string    `json:"type"`
	History []Message `json:"history"`
}

func (e ChatHistory) EventType() string { return e.Type }

// JoinedRoom confirms the resolved room name to the joining connection.
type JoinedRoom struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

func (e JoinedRoom) EventType() string { return e.Type }

// UserPresence announces a user joining or leaving.
type UserPresence struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

func (e UserPresence) EventType() string { return e.Type }

// UserTyping relays a typing indicator.
type UserTyping struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Status   bool   `json:"status"`
}

func (e UserTyping) EventType() string { return e.Type }

// Error is an in-band protocol error. The connection stays open.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e Error) EventType() string { return e.Type }

// NewOnlineUsers builds an online_users event. A nil list encodes as [].
func NewOnlineUsers(users []string) OnlineUsers {
	if users == nil {
		users = []string{}
	}
	return OnlineUsers{Type: TypeOnlineUsers, Users: users}
}

// NewChatHistory builds a chat_history event.
func NewChatHistory(history []Message) ChatHistory {
	if history == nil {
		history = []Message{}
	}
	return ChatHistory{Type: TypeChatHistory, History: history}
}

// NewJoinedRoom builds a joined_room confirmation.
func NewJoinedRoom(room string) JoinedRoom {
	return JoinedRoom{Type: TypeJoinedRoom, Room: room}
}

// NewUserJoined builds a user_joined notice.
func NewUserJoined(username string) UserPresence {
	return UserPresence{Type: TypeUserJoined, Username: username}
}

// NewUserLeft builds a user_left notice.
func NewUserLeft(username string) UserPresence {
	return UserPresence{Type: TypeUserLeft, Username: username}
}

// NewError builds an error event.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// UserNotFound builds the error sent when a direct message has no target.
func UserNotFound(username string) Error {
	return NewError(fmt.Sprintf(userNotFoundTextFormat, username))
}
