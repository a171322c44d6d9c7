// Package storage defines persistence contracts for gateway state.
//
// Live delivery never depends on these stores: room membership and message
// rows are informational and written best-effort.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested gateway record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Status values shared by tenants and projects.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Room is one tenant-scoped named channel.
type Room struct {
	TenantID  string
	Name      string
	CreatedAt time.Time
}

// RoomMember is one persisted membership row.
type RoomMember struct {
	Username string
	JoinedAt time.Time
}

// Message is one persisted chat or room message.
type Message struct {
	ID        string
	TenantID  string
	Type      string
	From      string
	Room      string
	Text      string
	CreatedAt time.Time
}

// Project is a credential scope within a tenant.
type Project struct {
	ID             string
	TenantID       string
	TenantName     string
	TenantStatus   string
	Name           string
	APIKey         string
	AllowedOrigins []string
	Status         string
}

// Active reports whether both the project and its tenant accept traffic.
func (p Project) Active() bool {
	return p.Status == StatusActive && p.TenantStatus == StatusActive
}

// TenantProject names a tenant/project pair to create when missing.
type TenantProject struct {
	TenantName     string
	ProjectName    string
	APIKey         string
	AllowedOrigins []string
}

// RoomStore persists tenant-scoped rooms and their membership lists.
type RoomStore interface {
	EnsureRoom(ctx context.Context, tenantID, name string) (Room, error)
	AddRoomMember(ctx context.Context, tenantID, room, username string, joinedAt time.Time) error
	RemoveRoomMember(ctx context.Context, tenantID, room, username string) error
	ListRoomMembers(ctx context.Context, tenantID, room string) ([]RoomMember, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg Message) error
	ListRoomMessages(ctx context.Context, tenantID, room string, limit int) ([]Message, error)
}

// ProjectStore resolves API keys to tenant/project scopes.
type ProjectStore interface {
	GetProjectByAPIKey(ctx context.Context, apiKey string) (Project, error)
	EnsureTenantProject(ctx context.Context, input TenantProject) (Project, error)
}
