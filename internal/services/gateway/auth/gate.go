// Package auth admits WebSocket upgrade requests.
//
// A request is admitted with a connection token (query "token" or a Bearer
// Authorization header) or, when no token verifies, with a project API key
// (header "x-api-key" or query "apiKey"). The Origin header is checked last
// against the origins the credential allows.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/broadcast.space/internal/platform/errors"
	platformotel "github.com/louisbranch/broadcast.space/internal/platform/otel"
	"github.com/louisbranch/broadcast.space/internal/platform/requestctx"
)

// Admission methods.
const (
	MethodToken  = "token"
	MethodAPIKey = "api_key"
	MethodPublic = "public"
)

// Admission is the outcome of a successful Admit.
type Admission struct {
	Scope requestctx.Scope
	// Identity is the username pre-assigned by a token, if any.
	Identity string
	Method   string
}

// TenantKey returns the partition key the connection belongs to.
func (a Admission) TenantKey() string {
	return a.Scope.TenantKey()
}

// Gate decides whether an upgrade request may proceed.
type Gate struct {
	tokens      TokenVerifier
	keys        KeyAuthenticator
	requireAuth bool
	tracer      trace.Tracer
}

// NewGate builds a gate. Either collaborator may be nil, which disables that
// credential kind. With requireAuth false, requests carrying no credential at
// all are admitted into the public tenant.
func NewGate(tokens TokenVerifier, keys KeyAuthenticator, requireAuth bool) *Gate {
	return &Gate{
		tokens:      tokens,
		keys:        keys,
		requireAuth: requireAuth,
		tracer:      platformotel.Tracer("gateway/auth"),
	}
}

// Admit resolves the request's tenant scope or returns an UNAUTHORIZED or
// FORBIDDEN domain error.
func (g *Gate) Admit(r *http.Request) (Admission, error) {
	ctx, span := g.tracer.Start(r.Context(), "gateway.auth.admit")
	defer span.End()

	admission, err := g.resolve(ctx, r)
	if err == nil {
		err = checkOrigin(r.Header.Get("Origin"), admission.Scope.AllowedOrigins)
	}
	if err != nil {
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
		return Admission{}, err
	}
	span.SetAttributes(
		attribute.String("gateway.tenant", admission.TenantKey()),
		attribute.String("gateway.admission", admission.Method),
	)
	return admission, nil
}

func (g *Gate) resolve(ctx context.Context, r *http.Request) (Admission, error) {
	token := tokenFromRequest(r)
	apiKey := apiKeyFromRequest(r)

	if token != "" && g.tokens != nil {
		claims, err := g.tokens.Verify(token)
		if err == nil {
			origins := claims.AllowedOrigins
			if len(origins) == 0 {
				origins = []string{"*"}
			}
			return Admission{
				Scope: requestctx.Scope{
					TenantID:       claims.TenantID,
					ProjectID:      claims.ProjectID,
					AllowedOrigins: origins,
				},
				Identity: claims.Username,
				Method:   MethodToken,
			}, nil
		}
	}

	if apiKey != "" && g.keys != nil {
		project, err := g.keys.Authenticate(ctx, apiKey)
		if err == nil {
			return Admission{
				Scope: requestctx.Scope{
					TenantID:       project.TenantID,
					ProjectID:      project.ID,
					AllowedOrigins: project.AllowedOrigins,
				},
				Method: MethodAPIKey,
			}, nil
		}
	}

	if token == "" && apiKey == "" && !g.requireAuth {
		return Admission{
			Scope:  requestctx.Scope{AllowedOrigins: []string{"*"}},
			Method: MethodPublic,
		}, nil
	}
	return Admission{}, apperrors.New(apperrors.CodeUnauthorized, "Unauthorized")
}

func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

func apiKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("x-api-key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("apiKey"))
}

// checkOrigin allows an absent origin, a "*" entry, or an exact match.
func checkOrigin(origin string, allowed []string) error {
	if origin == "" || len(allowed) == 0 {
		return nil
	}
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeForbidden, "Origin not allowed", map[string]string{"origin": origin})
}
