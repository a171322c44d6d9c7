package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/broadcast.space/internal/platform/errors"
)

// ConnectScope is the only scope accepted on connection tokens.
const ConnectScope = "ws:connect"

// DefaultTokenTTL is used when no TTL is requested.
const DefaultTokenTTL = 30 * time.Minute

// Claims describes who a connection token admits.
type Claims struct {
	TenantID       string
	ProjectID      string
	Username       string
	AllowedOrigins []string
	ExpiresAt      time.Time
}

// TokenVerifier turns a bearer token into admission claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

type connectClaims struct {
	TenantID       string   `json:"tenantId"`
	ProjectID      string   `json:"projectId"`
	Username       string   `json:"username,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	Scope          string   `json:"scope"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 connection tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns an HS256 issuer/verifier. ttl <= 0 uses DefaultTokenTTL.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports the default token lifetime.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a connection token. A non-positive ttl uses the default.
func (t *Tokens) Issue(claims Claims, ttl time.Duration) (string, error) {
	if t == nil {
		return "", apperrors.New(apperrors.CodeTokenIssuer, "token issuer is not configured")
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", fmt.Errorf("tenant id is required")
	}
	if ttl <= 0 {
		ttl = t.ttl
	}
	origins := claims.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	now := t.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, connectClaims{
		TenantID:       claims.TenantID,
		ProjectID:      claims.ProjectID,
		Username:       claims.Username,
		AllowedOrigins: origins,
		Scope:          ConnectScope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and scope.
func (t *Tokens) Verify(raw string) (Claims, error) {
	if t == nil {
		return Claims{}, apperrors.New(apperrors.CodeUnauthorized, "token verifier is not configured")
	}
	var parsed connectClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeUnauthorized, "token exp is required")
	}
	if !parsed.ExpiresAt.Time.After(t.now()) {
		return Claims{}, apperrors.New(apperrors.CodeUnauthorized, "token is expired")
	}
	if parsed.Scope != ConnectScope {
		return Claims{}, apperrors.New(apperrors.CodeUnauthorized, "token scope is not ws:connect")
	}
	if strings.TrimSpace(parsed.TenantID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthorized, "token tenant is required")
	}
	return Claims{
		TenantID:       parsed.TenantID,
		ProjectID:      parsed.ProjectID,
		Username:       parsed.Username,
		AllowedOrigins: parsed.AllowedOrigins,
		ExpiresAt:      parsed.ExpiresAt.Time,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "token is malformed", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthorized, "token signature is invalid", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthorized, "token is invalid", err)
	}
}
