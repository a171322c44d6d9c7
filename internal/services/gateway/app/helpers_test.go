package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/auth"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

const syncTarget = "__sync__"

var testEpoch = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory RoomStore, MessageStore and ProjectStore.
type memStore struct {
	mu       sync.Mutex
	projects map[string]storage.Project
	members  map[string][]string
	messages []storage.Message
	joinErr  error
}

func newMemStore() *memStore {
	active := func(id, tenant, key string, origins ...string) storage.Project {
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		return storage.Project{
			ID: id, TenantID: tenant, TenantName: tenant, TenantStatus: storage.StatusActive,
			Name: id, APIKey: key, AllowedOrigins: origins, Status: storage.StatusActive,
		}
	}
	return &memStore{
		projects: map[string]storage.Project{
			"key-x":      active("proj-x", "x", "key-x"),
			"key-y":      active("proj-y", "y", "key-y"),
			"key-origin": active("proj-o", "x", "key-origin", "https://app.example"),
		},
		members: map[string][]string{},
	}
}

func (m *memStore) EnsureRoom(_ context.Context, tenantID, name string) (storage.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return storage.Room{}, m.joinErr
	}
	return storage.Room{TenantID: tenantID, Name: name}, nil
}

func (m *memStore) AddRoomMember(_ context.Context, tenantID, room, username string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "/" + room
	for _, existing := range m.members[key] {
		if existing == username {
			return nil
		}
	}
	m.members[key] = append(m.members[key], username)
	return nil
}

func (m *memStore) RemoveRoomMember(_ context.Context, tenantID, room, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "/" + room
	kept := make([]string, 0, len(m.members[key]))
	for _, existing := range m.members[key] {
		if existing != username {
			kept = append(kept, existing)
		}
	}
	m.members[key] = kept
	return nil
}

func (m *memStore) ListRoomMembers(_ context.Context, tenantID, room string) ([]storage.RoomMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.RoomMember
	for _, name := range m.members[tenantID+"/"+room] {
		out = append(out, storage.RoomMember{Username: name})
	}
	return out, nil
}

func (m *memStore) roomMembers(tenantID, room string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members[tenantID+"/"+room]...)
}

func (m *memStore) SaveMessage(_ context.Context, msg storage.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) savedMessages() []storage.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Message(nil), m.messages...)
}

func (m *memStore) ListRoomMessages(_ context.Context, tenantID, room string, limit int) ([]storage.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Message
	for _, msg := range m.messages {
		if msg.TenantID == tenantID && msg.Room == room {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) GetProjectByAPIKey(_ context.Context, apiKey string) (storage.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[apiKey]
	if !ok {
		return storage.Project{}, storage.ErrNotFound
	}
	return project, nil
}

func (m *memStore) EnsureTenantProject(context.Context, storage.TenantProject) (storage.Project, error) {
	return storage.Project{}, nil
}

type testEnv struct {
	gateway *gateway
	server  *httptest.Server
	store   *memStore
	tokens  *auth.Tokens
	clock   *clock.Mock
}

func newTestEnv(t *testing.T, options ...func(*gatewayDeps)) *testEnv {
	t.Helper()

	store := newMemStore()
	tokens, err := auth.NewTokens("test-secret", time.Minute)
	require.NoError(t, err)
	mock := clock.NewMock()
	mock.Set(testEpoch)
	keys := auth.NewKeys(store, 0)

	deps := gatewayDeps{
		Gate:         auth.NewGate(tokens, keys, true),
		Tokens:       tokens,
		Keys:         keys,
		RoomStore:    store,
		MessageStore: store,
		Metrics:      metrics.New(),
		Clock:        mock,
	}
	for _, option := range options {
		option(&deps)
	}

	g := newGateway(deps)
	srv := httptest.NewServer(g.handler())
	t.Cleanup(func() {
		g.closeAll()
		g.drain(2 * time.Second)
		g.persister.close()
		srv.Close()
	})
	return &testEnv{gateway: g, server: srv, store: store, tokens: tokens, clock: mock}
}

func (e *testEnv) wsURL(query string) string {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	return url
}

// dialStatus attempts a handshake and returns the HTTP status on failure.
func (e *testEnv) dialStatus(t *testing.T, query string, header http.Header) int {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(e.wsURL(query), header)
	if err == nil {
		_ = ws.Close()
		return http.StatusSwitchingProtocols
	}
	require.NotNil(t, resp, "dial error: %v", err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (e *testEnv) dial(t *testing.T, apiKey string) *testClient {
	t.Helper()
	return e.dialQuery(t, "apiKey="+apiKey)
}

func (e *testEnv) dialQuery(t *testing.T, query string) *testClient {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(e.wsURL(query), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c := &testClient{t: t, ws: ws}
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

type testEvent map[string]any

func (e testEvent) str(key string) string {
	value, _ := e[key].(string)
	return value
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func (c *testClient) send(frame any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(frame))
}

func (c *testClient) sendRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (c *testClient) read() testEvent {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	var event testEvent
	require.NoError(c.t, json.Unmarshal(data, &event))
	return event
}

// readType skips events until one of the given type arrives.
func (c *testClient) readType(eventType string) testEvent {
	c.t.Helper()
	for {
		event := c.read()
		if event.str("type") == eventType {
			return event
		}
	}
}

// drain returns every event queued before a round trip through the gateway.
func (c *testClient) drain() []testEvent {
	c.t.Helper()
	c.send(map[string]any{"type": "dm", "to": syncTarget})
	var events []testEvent
	for {
		event := c.read()
		if event.str("type") == "error" {
			message := event.str("message")
			if strings.Contains(message, syncTarget) || message == "Set username first" {
				return events
			}
		}
		events = append(events, event)
	}
}

func (c *testClient) assertQuiet() {
	c.t.Helper()
	require.Empty(c.t, c.drain())
}

// identify sets username and discards the resulting broadcasts.
func (c *testClient) identify(username string) {
	c.t.Helper()
	c.send(map[string]any{"type": "set_username", "username": username})
	c.drain()
}

func (c *testClient) join(room string) {
	c.t.Helper()
	c.send(map[string]any{"type": "join", "room": room})
	event := c.readType("joined_room")
	require.Equal(c.t, room, event.str("room"))
	c.drain()
}

// settle drains every client so later quiet checks only see new traffic.
func settle(clients ...*testClient) {
	for _, c := range clients {
		c.drain()
	}
}
