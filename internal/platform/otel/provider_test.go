package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/louisbranch/broadcast.space/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("BROADCAST_SPACE_OTEL_ENDPOINT", "")
	t.Setenv("BROADCAST_SPACE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("BROADCAST_SPACE_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("BROADCAST_SPACE_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	t.Setenv("BROADCAST_SPACE_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("BROADCAST_SPACE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestTracerStartsSpan(t *testing.T) {
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.NotNil(t, span)
}
