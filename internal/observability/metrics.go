package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/saraya-erp/saraya-erp/internal/jobs"
)

// Metrics collects the Prometheus metrics of the finance engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	settledInvoices prometheus.Counter
	events          *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saraya_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saraya_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saraya_journal_postings_total",
		Help: "Journal posting attempts by source module and outcome.",
	}, []string{"module", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saraya_claim_settlements_total",
		Help: "Claim settlement batches by target status and outcome.",
	}, []string{"status", "outcome"})
	settledInvoices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saraya_claim_settled_invoices_total",
		Help: "Invoices included in committed settlement batches.",
	})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saraya_events_total",
		Help: "Domain events handled by type and outcome.",
	}, []string{"type", "outcome"})
	registry.MustRegister(requests, duration, postings, settlements, settledInvoices, events)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		settlements:     settlements,
		settledInvoices: settledInvoices,
		events:          events,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePosting counts one posting attempt. outcome is posted, replayed or rejected.
func (m *Metrics) ObservePosting(module, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(module, outcome).Inc()
}

// ObserveSettlement counts a settlement batch.
func (m *Metrics) ObserveSettlement(status, outcome string, invoices int) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status, outcome).Inc()
	if outcome == "committed" && invoices > 0 {
		m.settledInvoices.Add(float64(invoices))
	}
}

// ObserveEvent counts a dispatched domain event.
func (m *Metrics) ObserveEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// Jobs exposes the background job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
