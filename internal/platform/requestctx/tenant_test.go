package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeRoundTrip(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{TenantID: "t1", ProjectID: "p1"})

	scope, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "t1", scope.TenantID)
	require.Equal(t, "p1", scope.ProjectID)
	require.Equal(t, "t1", TenantKeyFromContext(ctx))
}

func TestTenantKeyDefaultsToPublic(t *testing.T) {
	require.Equal(t, PublicTenant, TenantKeyFromContext(context.Background()))
	require.Equal(t, PublicTenant, Scope{TenantID: "  "}.TenantKey())
}

func TestScopeFromNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract.
	_, ok := ScopeFromContext(nil)
	require.False(t, ok)

	//nolint:staticcheck // nil context is part of the contract.
	ctx := WithScope(nil, Scope{TenantID: "t2"})
	require.Equal(t, "t2", TenantKeyFromContext(ctx))
}
