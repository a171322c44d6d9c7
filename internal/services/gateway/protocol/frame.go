package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Inbound frame types.
const (
	TypeSetUsername = "set_username"
	TypeTyping      = "typing"
	TypeDM          = "dm"
	TypeJoin        = "join"
	TypeRoomMessage = "room_message"
	TypeChat        = "chat"
)

// Frame is one decoded inbound envelope.
type Frame struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Status   bool   `json:"status,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	Room     string `json:"room,omitempty"`
}

var errNotObject = errors.New("frame is not a JSON object")

// Known reports whether frameType is one of the inbound types above.
func Known(frameType string) bool {
	switch frameType {
	case TypeSetUsername, TypeTyping, TypeDM, TypeJoin, TypeRoomMessage, TypeChat:
		return true
	}
	return false
}

type wireFrame struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Status   json.RawMessage `json:"status"`
	To       string          `json:"to"`
	Text     string          `json:"text"`
	Room     string          `json:"room"`
}

// Decode parses raw frame bytes. Malformed JSON and non-objects are
// rejected. Objects whose type is not Known decode to a bare Frame carrying
// only that type, whatever their other fields hold; a non-string type
// decodes as the empty type.
func Decode(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, errNotObject
	}
	var head struct {
		Type any `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return Frame{}, err
	}
	frameType, _ := head.Type.(string)
	if !Known(frameType) {
		return Frame{Type: frameType}, nil
	}

	var wire wireFrame
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:     wire.Type,
		Username: wire.Username,
		Status:   truthy(wire.Status),
		To:       wire.To,
		Text:     wire.Text,
		Room:     wire.Room,
	}, nil
}

// truthy maps any JSON value onto a typing status: false, null, zero and
// the empty string are false, everything else is true.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "false", "null", `""`:
		return false
	case "true":
		return true
	}
	if raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9') {
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n != 0
		}
	}
	return true
}

// NormalizeName trims and NFC-normalizes a username so presence and direct
// lookups agree on one canonical form.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
