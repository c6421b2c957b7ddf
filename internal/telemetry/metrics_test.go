package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrumentCountsByStatusClass(t *testing.T) {
	h := Instrument("probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	before2xx := testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "2xx"))
	before4xx := testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "4xx"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, before2xx+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "2xx")))
	require.Equal(t, before4xx+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("probe", "4xx")))
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	SetBuildInfo("test", "arbiter")
	SlotsTotal.WithLabelValues("idle").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"slotchan_arbiter_slots_total",
		"slotchan_build_info",
		"slotchan_uptime_seconds",
	} {
		require.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
