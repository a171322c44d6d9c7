package protocol

// Effect is one side effect requested by Dispatch. The set is closed: only
// types in this package implement it.
type Effect interface {
	effect()
}

// Scope selects broadcast recipients. Every scope is restricted to the
// session's tenant before any other filter applies.
type Scope int

const (
	// ScopeTenant reaches every connection in the tenant.
	ScopeTenant Scope = iota
	// ScopeTenantExceptSelf reaches the tenant minus the sender.
	ScopeTenantExceptSelf
	// ScopeRoom reaches connections currently in Room, minus the sender.
	ScopeRoom
)

func (s Scope) String() string {
	switch s {
	case ScopeTenant:
		return "tenant"
	case ScopeTenantExceptSelf:
		return "tenant_except_self"
	case ScopeRoom:
		return "room"
	default:
		return "unknown"
	}
}

// Reply sends Event to the originating connection only.
type Reply struct {
	Event Event
}

// AddPresence binds Username in the tenant presence registry.
type AddPresence struct {
	Username string
}

// ReleasePresence releases one binding of Username.
type ReleasePresence struct {
	Username string
}

// ReplyHistory sends the room's chat_history snapshot to the sender.
type ReplyHistory struct {
	Room string
}

// BroadcastPresence sends the current online_users list to the tenant. The
// list is read when the effect runs, not when it was planned.
type BroadcastPresence struct{}

// Broadcast delivers Event to the connections selected by Scope.
type Broadcast struct {
	Scope Scope
	Room  string
	Event Event
}

// Direct delivers Event to a live connection named To in the same tenant, or
// replies NotFound to the sender when there is none.
type Direct struct {
	To       string
	Event    Event
	NotFound Event
}

// LeaveRoom releases persisted membership of Room.
type LeaveRoom struct {
	Room string
}

// JoinRoom resolves Room through the room directory, commits the canonical
// name as the session's current room and confirms it with joined_room.
type JoinRoom struct {
	Room string
}

// Record appends Message to history and queues it for persistence.
type Record struct {
	Message Message
}

func (Reply) effect()             {}
func (AddPresence) effect()       {}
func (ReleasePresence) effect()   {}
func (ReplyHistory) effect()      {}
func (BroadcastPresence) effect() {}
func (Broadcast) effect()         {}
func (Direct) effect()            {}
func (LeaveRoom) effect()         {}
func (JoinRoom) effect()          {}
func (Record) effect()            {}
