package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/broadcast.space/internal/platform/errors"
	"github.com/louisbranch/broadcast.space/internal/platform/requestctx"
	"github.com/louisbranch/broadcast.space/internal/platform/timeouts"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/auth"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/protocol"
)

const (
	maxAPIBodyBytes  = 64 * 1024
	defaultAPISender = "api"

	defaultRoomMessageLimit = 50
	maxRoomMessageLimit     = 100
)

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

type validationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type validationDetails struct {
	Issues []validationIssue `json:"issues"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	WebSocket healthWebSocket `json:"websocket"`
}

type healthWebSocket struct {
	Path    string `json:"path"`
	Clients int    `json:"clients"`
}

type onlineUsersResponse struct {
	Users []string `json:"users"`
}

type roomMembersResponse struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
}

type roomMessagesResponse struct {
	Room     string             `json:"room"`
	Messages []protocol.Message `json:"messages"`
}

type wsTokenRequest struct {
	Username  string `json:"username"`
	ExpiresIn string `json:"expiresIn"`
}

type wsTokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn string `json:"expiresIn"`
}

type messageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type sentResponse struct {
	Sent       bool   `json:"sent"`
	Recipients *int   `json:"recipients,omitempty"`
	Room       string `json:"room,omitempty"`
	To         string `json:"to,omitempty"`
}

func (g *gateway) apiHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", g.handleHealth)
	mux.HandleFunc("GET /api/users/online", g.handleOnlineUsers)
	mux.HandleFunc("GET /api/rooms/{room}/members", g.handleRoomMembers)
	mux.HandleFunc("GET /api/rooms/{room}/messages", g.handleRoomMessages)
	mux.HandleFunc("POST /api/auth/ws-token", g.handleWSToken)
	mux.HandleFunc("POST /api/messages/global", g.handleGlobalMessage)
	mux.HandleFunc("POST /api/messages/room/{room}", g.handleRoomMessage)
	mux.HandleFunc("POST /api/messages/dm", g.handleDirectMessage)
	return mux
}

// requireAPIKey authenticates x-api-key and stores the project scope in the
// request context.
func (g *gateway) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := strings.TrimSpace(r.Header.Get("x-api-key"))
		if apiKey == "" {
			writeAPIError(w, apperrors.New(apperrors.CodeAPIKeyRequired, "Missing X-API-Key header"))
			return
		}
		project, err := g.keys.Authenticate(r.Context(), apiKey)
		if err != nil {
			g.log.Info("api key rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			writeAPIError(w, apperrors.New(apperrors.CodeInvalidAPIKey, "Invalid or inactive API key"))
			return
		}
		ctx := requestctx.WithScope(r.Context(), requestctx.Scope{
			TenantID:       project.TenantID,
			ProjectID:      project.ID,
			AllowedOrigins: project.AllowedOrigins,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		WebSocket: healthWebSocket{Path: "/ws", Clients: g.hub.count()},
	})
}

func (g *gateway) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, onlineUsersResponse{Users: g.presence.List(requestctx.TenantKeyFromContext(r.Context()))})
}

func (g *gateway) handleRoomMembers(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.PathValue("room"))
	tenant := requestctx.TenantKeyFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StorageCall)
	defer cancel()
	members, err := g.rooms.Members(ctx, tenant, room)
	if err != nil {
		g.log.Warn("list room members", zap.String("tenant", tenant), zap.String("room", room), zap.Error(err))
		writeAPIError(w, apperrors.Wrap(apperrors.CodeUnknown, "Room members are unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, roomMembersResponse{Room: room, Members: members})
}

// handleRoomMessages serves persisted room history when a message store is
// configured and the live history ring otherwise. Both are oldest first.
func (g *gateway) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.PathValue("room"))
	limit := defaultRoomMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRoomMessageLimit {
			writeValidationError(w, validationIssue{Path: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxRoomMessageLimit)})
			return
		}
		limit = parsed
	}
	tenant := requestctx.TenantKeyFromContext(r.Context())

	if g.messages == nil {
		live := g.history.Room(tenant, room)
		if live == nil {
			live = []protocol.Message{}
		}
		if len(live) > limit {
			live = live[len(live)-limit:]
		}
		writeJSON(w, http.StatusOK, roomMessagesResponse{Room: room, Messages: live})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.StorageCall)
	defer cancel()
	stored, err := g.messages.ListRoomMessages(ctx, tenant, room, limit)
	if err != nil {
		g.log.Warn("list room messages", zap.String("tenant", tenant), zap.String("room", room), zap.Error(err))
		writeAPIError(w, apperrors.Wrap(apperrors.CodeUnknown, "Room messages are unavailable", err))
		return
	}
	out := make([]protocol.Message, 0, len(stored))
	for _, msg := range stored {
		out = append(out, protocol.Message{
			Type:     msg.Type,
			TenantID: msg.TenantID,
			From:     msg.From,
			Room:     msg.Room,
			Text:     msg.Text,
			Time:     msg.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, roomMessagesResponse{Room: room, Messages: out})
}

func (g *gateway) handleWSToken(w http.ResponseWriter, r *http.Request) {
	var req wsTokenRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeValidationError(w, validationIssue{Path: "body", Message: err.Error()})
		return
	}
	scope, ok := requestctx.ScopeFromContext(r.Context())
	if !ok {
		writeAPIError(w, apperrors.New(apperrors.CodeUnauthorized, "Tenant context is missing"))
		return
	}
	if g.tokens == nil {
		writeAPIError(w, apperrors.New(apperrors.CodeTokenIssuer, "Token issuer is not configured"))
		return
	}

	ttl := g.tokens.TTL()
	if expires := strings.TrimSpace(req.ExpiresIn); expires != "" {
		parsed, err := time.ParseDuration(expires)
		if err != nil || parsed <= 0 {
			writeValidationError(w, validationIssue{Path: "expiresIn", Message: "must be a positive duration such as 30m"})
			return
		}
		ttl = parsed
	}
	if req.Username != "" && strings.TrimSpace(req.Username) == "" {
		writeValidationError(w, validationIssue{Path: "username", Message: "must not be blank"})
		return
	}

	token, err := g.tokens.Issue(auth.Claims{
		TenantID:       scope.TenantID,
		ProjectID:      scope.ProjectID,
		Username:       protocol.NormalizeName(req.Username),
		AllowedOrigins: scope.AllowedOrigins,
	}, ttl)
	if err != nil {
		g.log.Error("issue ws token", zap.Error(err))
		writeAPIError(w, apperrors.Wrap(apperrors.CodeTokenIssuer, "Token issuer is unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, wsTokenResponse{Token: token, TokenType: "Bearer", ExpiresIn: ttl.String()})
}

func (g *gateway) handleGlobalMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMessage(w, r, false)
	if !ok {
		return
	}
	tenant := requestctx.TenantKeyFromContext(r.Context())
	msg := protocol.Message{
		Type:     protocol.TypeChat,
		TenantID: tenant,
		From:     req.From,
		Text:     req.Text,
		Time:     g.clock.Now().UnixMilli(),
	}
	g.record(tenant, msg)
	recipients := g.hub.broadcastAll(tenant, msg)
	writeJSON(w, http.StatusOK, sentResponse{Sent: true, Recipients: &recipients})
}

func (g *gateway) handleRoomMessage(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.PathValue("room"))
	if room == "" {
		writeValidationError(w, validationIssue{Path: "room", Message: "is required"})
		return
	}
	req, ok := decodeMessage(w, r, false)
	if !ok {
		return
	}
	tenant := requestctx.TenantKeyFromContext(r.Context())
	msg := protocol.Message{
		Type:     protocol.TypeRoomMessage,
		TenantID: tenant,
		From:     req.From,
		Room:     room,
		Text:     req.Text,
		Time:     g.clock.Now().UnixMilli(),
	}
	g.record(tenant, msg)
	g.hub.broadcastRoom(tenant, room, nil, msg)
	writeJSON(w, http.StatusOK, sentResponse{Sent: true, Room: room})
}

func (g *gateway) handleDirectMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMessage(w, r, true)
	if !ok {
		return
	}
	tenant := requestctx.TenantKeyFromContext(r.Context())
	target := g.hub.findByUsername(tenant, req.To)
	if target == nil {
		writeAPIError(w, apperrors.New(apperrors.CodeUserNotFound, protocol.UserNotFound(req.To).Message))
		return
	}
	g.hub.send(target, protocol.Message{
		Type: protocol.TypeDM,
		From: req.From,
		To:   req.To,
		Text: req.Text,
		Time: g.clock.Now().UnixMilli(),
	})
	writeJSON(w, http.StatusOK, sentResponse{Sent: true, To: req.To})
}

// decodeMessage parses and validates a message body, writing the error
// response itself on failure.
func decodeMessage(w http.ResponseWriter, r *http.Request, needTarget bool) (messageRequest, bool) {
	var req messageRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeValidationError(w, validationIssue{Path: "body", Message: err.Error()})
		return messageRequest{}, false
	}
	var issues []validationIssue
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		issues = append(issues, validationIssue{Path: "text", Message: "is required"})
	}
	req.From = protocol.NormalizeName(req.From)
	if req.From == "" {
		req.From = defaultAPISender
	}
	if needTarget {
		req.To = protocol.NormalizeName(req.To)
		if req.To == "" {
			issues = append(issues, validationIssue{Path: "to", Message: "is required"})
		}
	}
	if len(issues) > 0 {
		writeValidationError(w, issues...)
		return messageRequest{}, false
	}
	return req, true
}

func decodeBody(r *http.Request, target any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxAPIBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeValidationError(w http.ResponseWriter, issues ...validationIssue) {
	writeAPIErrorDetails(w, apperrors.New(apperrors.CodeValidation, "Invalid request payload"), validationDetails{Issues: issues})
}

func writeAPIError(w http.ResponseWriter, err error) {
	writeAPIErrorDetails(w, err, nil)
}

func writeAPIErrorDetails(w http.ResponseWriter, err error, details any) {
	writeJSON(w, apperrors.HTTPStatus(err), apiErrorEnvelope{Error: apiError{
		Code:    string(apperrors.GetCode(err)),
		Message: apperrors.PublicMessage(err),
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
