package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requests(service, method, path, status string) float64 {
	return testutil.ToFloat64(httpRequestsTotal.WithLabelValues(service, method, path, status))
}

func observations(t *testing.T, service, method, path, status string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs := httpRequestDuration.WithLabelValues(service, method, path, status)
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-route"))
	r.Get("/api/v1/taxonomy/nodes/{id}/children", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"home-services", "plumbing", "transportation"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/taxonomy/nodes/"+id+"/children", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	pattern := "/api/v1/taxonomy/nodes/{id}/children"
	assert.Equal(t, float64(3), requests("metrics-route", http.MethodGet, pattern, "200"))
	assert.Equal(t, uint64(3), observations(t, "metrics-route", http.MethodGet, pattern, "200"))
	assert.Zero(t, requests("metrics-route", http.MethodGet, "/api/v1/taxonomy/nodes/plumbing/children", "200"))
}

func TestPrometheusMetrics_UnknownRoute(t *testing.T) {
	handler := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }

	tests := []struct {
		name    string
		service string
		ctx     func(context.Context) context.Context
	}{
		{
			name:    "outside a chi router",
			service: "metrics-no-router",
			ctx:     func(ctx context.Context) context.Context { return ctx },
		},
		{
			name:    "router matched nothing",
			service: "metrics-empty-pattern",
			ctx: func(ctx context.Context) context.Context {
				return context.WithValue(ctx, chi.RouteCtxKey, chi.NewRouteContext())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := PrometheusMetrics(tt.service)
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/taxonomy/nodes/plumbing", nil)
			req = req.WithContext(tt.ctx(req.Context()))

			mw(http.HandlerFunc(handler)).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, float64(1), requests(tt.service, http.MethodDelete, "unknown", "202"))
			assert.Zero(t, requests(tt.service, http.MethodDelete, "/api/v1/taxonomy/nodes/plumbing", "202"))
		})
	}
}

func TestPrometheusMetrics_StatusFromRecorder(t *testing.T) {
	tests := []struct {
		name    string
		service string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "body without header",
			service: "metrics-implicit-ok",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"data":[]}`)) },
			want:    "200",
		},
		{
			name:    "first header wins",
			service: "metrics-first-status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: "409",
		},
		{
			name:    "nothing written",
			service: "metrics-silent",
			handler: func(http.ResponseWriter, *http.Request) {},
			want:    "200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Use(PrometheusMetrics(tt.service))
			r.Post("/api/v1/taxonomy/nodes", tt.handler)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/taxonomy/nodes", nil))

			assert.Equal(t, float64(1), requests(tt.service, http.MethodPost, "/api/v1/taxonomy/nodes", tt.want))
		})
	}
}

func TestPrometheusMetrics_SharesOuterRecorder(t *testing.T) {
	outer := newStatusRecorder(httptest.NewRecorder())
	mw := PrometheusMetrics("metrics-shared-recorder")

	var inner http.ResponseWriter
	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		inner = w
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})).ServeHTTP(outer, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Same(t, outer, inner)
	assert.Equal(t, http.StatusNotFound, outer.statusCode)
	assert.Equal(t, len("missing"), outer.bytes)
	assert.Equal(t, float64(1), requests("metrics-shared-recorder", http.MethodGet, "unknown", "404"))
}

func TestPrometheusMetrics_InFlight(t *testing.T) {
	gauge := httpRequestsInFlight.WithLabelValues("metrics-in-flight")
	var during float64

	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-in-flight"))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		during = testutil.ToFloat64(gauge)
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, float64(1), during)
	assert.Zero(t, testutil.ToFloat64(gauge))
}
