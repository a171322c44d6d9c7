package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIndependentPerInstance(t *testing.T) {
	a := New()
	b := New()

	a.Deliveries.Add(3)
	a.Frames.WithLabelValues("chat").Inc()

	require.Equal(t, 3.0, testutil.ToFloat64(a.Deliveries))
	require.Equal(t, 0.0, testutil.ToFloat64(b.Deliveries))
	require.Equal(t, 1.0, testutil.ToFloat64(a.Frames.WithLabelValues("chat")))
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.ActiveConnections.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "broadcast_gateway_active_connections 2")
}
