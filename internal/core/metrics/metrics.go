// Package metrics provides Prometheus instrumentation for LabelKeeper.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only labelkeeper metrics appear on the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Payload processing outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus collectors used by the LabelKeeper server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
	PayloadsTotal       *prometheus.CounterVec
	RuleMatchesTotal    *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	RulesEvaluated      prometheus.Histogram
	ActiveStreams       *prometheus.GaugeVec
}

// New creates and registers all labelkeeper metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelkeeper_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labelkeeper_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelkeeper_grpc_requests_total",
			Help: "Total number of gRPC requests.",
		}, []string{"method", "status"}),

		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labelkeeper_grpc_request_duration_seconds",
			Help:    "gRPC request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),

		PayloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelkeeper_payloads_processed_total",
			Help: "Total number of payloads processed, by outcome.",
		}, []string{"outcome"}),

		RuleMatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelkeeper_label_assignments_total",
			Help: "Total number of labels assigned to payloads.",
		}, []string{"label"}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labelkeeper_evaluation_duration_seconds",
			Help:    "Time spent classifying one payload against its rule set.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),

		RulesEvaluated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labelkeeper_rules_per_evaluation",
			Help:    "Number of active rules evaluated per payload.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		ActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labelkeeper_active_streams",
			Help: "Number of active streaming connections.",
		}, []string{"transport"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.PayloadsTotal,
		m.RuleMatchesTotal,
		m.EvaluationDuration,
		m.RulesEvaluated,
		m.ActiveStreams,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for labelling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and SSE flushing.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush forwards to the underlying writer when it supports flushing.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMiddleware records request count and latency. The route label is the
// ServeMux pattern that matched, so path parameters do not explode
// cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		code := strconv.Itoa(rec.status)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records
// request count and latency for each method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		st, _ := status.FromError(err)
		code := st.Code().String()
		m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
		m.GRPCRequestDuration.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// RecordPayload records one processed payload: its outcome, the labels it
// received, how many rules were evaluated and how long classification took.
func (m *Metrics) RecordPayload(labels []string, rulesEvaluated int, elapsed time.Duration) {
	outcome := OutcomeUnmatched
	if len(labels) > 0 {
		outcome = OutcomeMatched
	}
	m.PayloadsTotal.WithLabelValues(outcome).Inc()
	for _, l := range labels {
		m.RuleMatchesTotal.WithLabelValues(l).Inc()
	}
	m.RulesEvaluated.Observe(float64(rulesEvaluated))
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

// RecordFailure records a payload that was rejected or could not be stored.
func (m *Metrics) RecordFailure(outcome string) {
	m.PayloadsTotal.WithLabelValues(outcome).Inc()
}

// StreamOpened increments the active stream gauge for transport and returns
// a function that decrements it.
func (m *Metrics) StreamOpened(transport string) func() {
	g := m.ActiveStreams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
