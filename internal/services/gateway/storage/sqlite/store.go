// Package sqlite provides a SQLite-backed gateway storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/broadcast.space/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/broadcast.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists gateway state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite gateway store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Migrations lists applied schema migrations in order.
func (s *Store) Migrations(ctx context.Context) ([]string, error) {
	return sqlitemigrate.Applied(ctx, s.sqlDB)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// EnsureRoom returns the tenant-scoped room, creating it on first use.
func (s *Store) EnsureRoom(ctx context.Context, tenantID, name string) (storage.Room, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Room{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	if tenantID == "" {
		return storage.Room{}, fmt.Errorf("tenant id is required")
	}
	if name == "" {
		return storage.Room{}, fmt.Errorf("room name is required")
	}

	if _, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO rooms (tenant_id, name, created_at) VALUES (?, ?, ?)`,
		tenantID,
		name,
		toMillis(s.now()),
	); err != nil {
		return storage.Room{}, fmt.Errorf("ensure room: %w", err)
	}

	var createdAt int64
	if err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT created_at FROM rooms WHERE tenant_id = ? AND name = ?`,
		tenantID,
		name,
	).Scan(&createdAt); err != nil {
		return storage.Room{}, fmt.Errorf("load room: %w", err)
	}
	return storage.Room{TenantID: tenantID, Name: name, CreatedAt: fromMillis(createdAt)}, nil
}

// AddRoomMember records username in the room membership list when absent.
func (s *Store) AddRoomMember(ctx context.Context, tenantID, room, username string, joinedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if joinedAt.IsZero() {
		joinedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO room_members (tenant_id, room, username, joined_at) VALUES (?, ?, ?, ?)`,
		tenantID,
		room,
		username,
		toMillis(joinedAt),
	)
	if err != nil {
		var sqliteErr *msqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
			return storage.ErrNotFound
		}
		return fmt.Errorf("add room member: %w", err)
	}
	return nil
}

// RemoveRoomMember deletes username from the room membership list.
func (s *Store) RemoveRoomMember(ctx context.Context, tenantID, room, username string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM room_members WHERE tenant_id = ? AND room = ? AND username = ?`,
		tenantID,
		room,
		username,
	); err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	return nil
}

// ListRoomMembers returns persisted members ordered by join time.
func (s *Store) ListRoomMembers(ctx context.Context, tenantID, room string) ([]storage.RoomMember, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT username, joined_at FROM room_members
		 WHERE tenant_id = ? AND room = ?
		 ORDER BY joined_at, username`,
		tenantID,
		room,
	)
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	defer rows.Close()

	members := make([]storage.RoomMember, 0)
	for rows.Next() {
		var (
			member   storage.RoomMember
			joinedAt int64
		)
		if err := rows.Scan(&member.Username, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		member.JoinedAt = fromMillis(joinedAt)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room members: %w", err)
	}
	return members, nil
}

// SaveMessage inserts one message row.
func (s *Store) SaveMessage(ctx context.Context, msg storage.Message) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(msg.Type) == "" {
		return fmt.Errorf("message type is required")
	}
	if msg.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate message id: %w", err)
		}
		msg.ID = generated
	}
	if msg.From == "" {
		msg.From = "Unknown"
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (id, tenant_id, type, sender, room, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.TenantID,
		msg.Type,
		msg.From,
		msg.Room,
		msg.Text,
		toMillis(msg.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListRoomMessages returns up to limit most recent room messages, oldest first.
func (s *Store) ListRoomMessages(ctx context.Context, tenantID, room string, limit int) ([]storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, tenant_id, type, sender, room, text, created_at FROM (
		   SELECT id, tenant_id, type, sender, room, text, created_at, rowid AS seq FROM messages
		   WHERE tenant_id = ? AND room = ?
		   ORDER BY created_at DESC, seq DESC
		   LIMIT ?
		 ) ORDER BY created_at, seq`,
		tenantID,
		room,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list room messages: %w", err)
	}
	defer rows.Close()

	messages := make([]storage.Message, 0)
	for rows.Next() {
		var (
			msg       storage.Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.TenantID, &msg.Type, &msg.From, &msg.Room, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetProjectByAPIKey resolves an API key to its project and tenant.
func (s *Store) GetProjectByAPIKey(ctx context.Context, apiKey string) (storage.Project, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Project{}, err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return storage.Project{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT p.id, p.tenant_id, t.name, t.status, p.name, p.api_key, p.allowed_origins, p.status
		 FROM projects p JOIN tenants t ON t.id = p.tenant_id
		 WHERE p.api_key = ?`,
		apiKey,
	)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Project{}, storage.ErrNotFound
		}
		return storage.Project{}, fmt.Errorf("get project by api key: %w", err)
	}
	return project, nil
}

// EnsureTenantProject creates the named tenant and project when missing and
// returns the stored project. An existing project keeps its API key.
func (s *Store) EnsureTenantProject(ctx context.Context, input storage.TenantProject) (storage.Project, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Project{}, err
	}
	tenantName := strings.TrimSpace(input.TenantName)
	projectName := strings.TrimSpace(input.ProjectName)
	apiKey := strings.TrimSpace(input.APIKey)
	if tenantName == "" || projectName == "" {
		return storage.Project{}, fmt.Errorf("tenant and project names are required")
	}
	if apiKey == "" {
		generated, err := id.NewID()
		if err != nil {
			return storage.Project{}, fmt.Errorf("generate api key: %w", err)
		}
		apiKey = generated
	}
	origins := input.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	encodedOrigins, err := json.Marshal(origins)
	if err != nil {
		return storage.Project{}, fmt.Errorf("encode allowed origins: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Project{}, fmt.Errorf("begin bootstrap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	tenantID, err := id.NewID()
	if err != nil {
		return storage.Project{}, fmt.Errorf("generate tenant id: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO tenants (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		tenantID, tenantName, storage.StatusActive, now, now,
	); err != nil {
		return storage.Project{}, fmt.Errorf("ensure tenant: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tenants WHERE name = ?`, tenantName).Scan(&tenantID); err != nil {
		return storage.Project{}, fmt.Errorf("load tenant: %w", err)
	}

	projectID, err := id.NewID()
	if err != nil {
		return storage.Project{}, fmt.Errorf("generate project id: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO projects (id, tenant_id, name, api_key, allowed_origins, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, tenantID, projectName, apiKey, string(encodedOrigins), storage.StatusActive, now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return storage.Project{}, storage.ErrAlreadyExists
		}
		return storage.Project{}, fmt.Errorf("ensure project: %w", err)
	}

	row := tx.QueryRowContext(
		ctx,
		`SELECT p.id, p.tenant_id, t.name, t.status, p.name, p.api_key, p.allowed_origins, p.status
		 FROM projects p JOIN tenants t ON t.id = p.tenant_id
		 WHERE p.tenant_id = ? AND p.name = ?`,
		tenantID,
		projectName,
	)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The insert was ignored because the API key belongs to another project.
			return storage.Project{}, storage.ErrAlreadyExists
		}
		return storage.Project{}, fmt.Errorf("load project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Project{}, fmt.Errorf("commit bootstrap: %w", err)
	}
	return project, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (storage.Project, error) {
	var (
		project storage.Project
		origins string
	)
	if err := row.Scan(
		&project.ID,
		&project.TenantID,
		&project.TenantName,
		&project.TenantStatus,
		&project.Name,
		&project.APIKey,
		&origins,
		&project.Status,
	); err != nil {
		return storage.Project{}, err
	}
	if err := json.Unmarshal([]byte(origins), &project.AllowedOrigins); err != nil {
		return storage.Project{}, fmt.Errorf("decode allowed origins: %w", err)
	}
	return project, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.RoomStore    = (*Store)(nil)
	_ storage.MessageStore = (*Store)(nil)
	_ storage.ProjectStore = (*Store)(nil)
)
