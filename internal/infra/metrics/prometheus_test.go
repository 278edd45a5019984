package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus()
	p.TickProcessed("BTC")
	p.TickProcessed("BTC")
	p.AlertsTriggered(3)
	p.SubscribedChannels(2)
	p.FeedConnected(true)

	require.Equal(t, 2.0, testutil.ToFloat64(p.ticks.WithLabelValues("BTC")))
	require.Equal(t, 3.0, testutil.ToFloat64(p.triggered))
	require.Equal(t, 2.0, testutil.ToFloat64(p.subscribedChannels))
	require.Equal(t, 1.0, testutil.ToFloat64(p.connected))
}

func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheus()
	p.FeedReconnect()

	recorder := httptest.NewRecorder()
	p.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, strings.Contains(recorder.Body.String(), "pricealert_feed_reconnects_total 1"))
}
