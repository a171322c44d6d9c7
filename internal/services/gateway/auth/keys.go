package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	apperrors "github.com/louisbranch/broadcast.space/internal/platform/errors"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
)

const (
	keyCacheSize = 1024
	// DefaultKeyCacheTTL bounds how long a revoked key keeps working.
	DefaultKeyCacheTTL = 30 * time.Second
)

// KeyAuthenticator resolves an API key to an active project.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (storage.Project, error)
}

// Keys authenticates API keys against a ProjectStore. Successful lookups are
// cached briefly; failures always hit the store.
type Keys struct {
	store storage.ProjectStore
	cache *expirable.LRU[string, storage.Project]
}

// NewKeys returns a key authenticator. ttl <= 0 disables caching.
func NewKeys(store storage.ProjectStore, ttl time.Duration) *Keys {
	k := &Keys{store: store}
	if ttl > 0 {
		k.cache = expirable.NewLRU[string, storage.Project](keyCacheSize, nil, ttl)
	}
	return k
}

// Authenticate rejects absent keys and keys whose project or tenant is not
// active.
func (k *Keys) Authenticate(ctx context.Context, apiKey string) (storage.Project, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return storage.Project{}, apperrors.New(apperrors.CodeAPIKeyRequired, "api key is required")
	}
	if k == nil || k.store == nil {
		return storage.Project{}, apperrors.New(apperrors.CodeInvalidAPIKey, "Invalid or inactive API key")
	}
	if k.cache != nil {
		if project, ok := k.cache.Get(apiKey); ok {
			return project, nil
		}
	}

	project, err := k.store.GetProjectByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Project{}, apperrors.New(apperrors.CodeInvalidAPIKey, "Invalid or inactive API key")
		}
		return storage.Project{}, apperrors.Wrap(apperrors.CodeInvalidAPIKey, "Invalid or inactive API key", err)
	}
	if !project.Active() {
		return storage.Project{}, apperrors.New(apperrors.CodeInvalidAPIKey, "Invalid or inactive API key")
	}
	if len(project.AllowedOrigins) == 0 {
		project.AllowedOrigins = []string{"*"}
	}
	if k.cache != nil {
		k.cache.Add(apiKey, project)
	}
	return project, nil
}
