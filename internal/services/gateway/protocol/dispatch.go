package protocol

import (
	"strings"
	"time"
)

// DefaultUsername is bound when set_username carries no usable name and the
// admission carried no identity.
const DefaultUsername = "Anonymous"

// Session is the per-connection protocol state.
type Session struct {
	TenantID  string
	ProjectID string
	// Identity is the username pre-assigned by the admission token, if any.
	Identity string
	Username string
	Room     string
}

// Identified reports whether set_username has been accepted.
func (s Session) Identified() bool {
	return s.Username != ""
}

// Transition is the result of dispatching one frame.
type Transition struct {
	Next    Session
	Effects []Effect
}

func stay(session Session, effects ...Effect) Transition {
	return Transition{Next: session, Effects: effects}
}

// Dispatch interprets one inbound frame against session.
//
// Every type except set_username requires an identified session; otherwise
// the only effect is a "Set username first" reply. Unknown types produce no
// effects.
func Dispatch(session Session, frame Frame, now time.Time) Transition {
	if frame.Type == TypeSetUsername {
		return setUsername(session, frame)
	}
	if !session.Identified() {
		return stay(session, Reply{Event: NewError(ErrTextSetUsername)})
	}

	switch frame.Type {
	case TypeTyping:
		return stay(session, Broadcast{
			Scope: ScopeTenantExceptSelf,
			Event: UserTyping{Type: TypeUserTyping, Username: session.Username, Status: frame.Status},
		})
	case TypeDM:
		return directMessage(session, frame, now)
	case TypeJoin:
		return join(session, frame)
	case TypeRoomMessage:
		return roomMessage(session, frame, now)
	case TypeChat:
		msg := Message{
			Type:     TypeChat,
			TenantID: session.TenantID,
			From:     session.Username,
			Text:     frame.Text,
			Time:     now.UnixMilli(),
		}
		return stay(session,
			Record{Message: msg},
			Broadcast{Scope: ScopeTenantExceptSelf, Event: msg},
		)
	default:
		return stay(session)
	}
}

func setUsername(session Session, frame Frame) Transition {
	name := NormalizeName(frame.Username)
	if name == "" {
		name = NormalizeName(session.Identity)
	}
	if name == "" {
		name = DefaultUsername
	}

	effects := make([]Effect, 0, 5)
	if session.Username != "" {
		effects = append(effects, ReleasePresence{Username: session.Username})
	}
	session.Username = name
	effects = append(effects, AddPresence{Username: name})
	if session.Room != "" {
		effects = append(effects, ReplyHistory{Room: session.Room})
	}
	effects = append(effects, BroadcastPresence{})
	if session.Room != "" {
		effects = append(effects, Broadcast{Scope: ScopeRoom, Room: session.Room, Event: NewUserJoined(name)})
	} else {
		effects = append(effects, Broadcast{Scope: ScopeTenantExceptSelf, Event: NewUserJoined(name)})
	}
	return Transition{Next: session, Effects: effects}
}

func directMessage(session Session, frame Frame, now time.Time) Transition {
	to := NormalizeName(frame.To)
	return stay(session, Direct{
		To: to,
		Event: Message{
			Type: TypeDM,
			From: session.Username,
			To:   to,
			Text: frame.Text,
			Time: now.UnixMilli(),
		},
		NotFound: UserNotFound(to),
	})
}

func join(session Session, frame Frame) Transition {
	target := strings.TrimSpace(frame.Room)
	if target == "" {
		return stay(session, Reply{Event: NewError(ErrTextRoomRequired)})
	}
	effects := make([]Effect, 0, 2)
	if session.Room != "" {
		effects = append(effects, LeaveRoom{Room: session.Room})
	}
	// The driver replaces Room with the canonical name returned by the
	// directory before confirming.
	session.Room = target
	effects = append(effects, JoinRoom{Room: target})
	return Transition{Next: session, Effects: effects}
}

func roomMessage(session Session, frame Frame, now time.Time) Transition {
	msg := Message{
		Type:     TypeRoomMessage,
		TenantID: session.TenantID,
		From:     session.Username,
		Room:     session.Room,
		Text:     frame.Text,
		Time:     now.UnixMilli(),
	}
	delivery := Broadcast{Scope: ScopeTenantExceptSelf, Event: msg}
	if session.Room != "" {
		delivery = Broadcast{Scope: ScopeRoom, Room: session.Room, Event: msg}
	}
	return stay(session, Record{Message: msg}, delivery)
}
