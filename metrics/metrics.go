// Copyright © 2024 The rapidls authors

// Package metrics exposes Prometheus metrics about analysis passes.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"
)

// Outcomes of an analysis pass, used as the "outcome" label.
const (
	OutcomeClean       = "clean"       // the parser accepted the document
	OutcomeDiagnostics = "diagnostics" // the parser reported errors
	OutcomeFailed      = "failed"      // the parser could not be run or its output was unreadable
	OutcomeStale       = "stale"       // the document changed while the pass ran
)

var log = commonlog.GetLogger("rapidls.metrics")

// Metrics holds the collectors of one server.
type Metrics struct {
	PassDuration    *prometheus.HistogramVec
	PassesTotal     *prometheus.CounterVec
	DiagnosticsLast prometheus.Gauge
	OpenDocuments   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rapidls_analysis_seconds",
			Help:    "Time spent on one analysis pass, parser invocation included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rapidls_analysis_passes_total",
			Help: "Total number of analysis passes by outcome.",
		}, []string{"outcome"}),
		DiagnosticsLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rapidls_diagnostics_published",
			Help: "Number of diagnostics in the most recently published set.",
		}),
		OpenDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rapidls_open_documents",
			Help: "Number of documents currently open in the client.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.PassDuration, m.PassesTotal, m.DiagnosticsLast, m.OpenDocuments)
	return m
}

// ObservePass records one analysis pass. diagnostics is ignored unless
// the outcome published a set.
func (m *Metrics) ObservePass(outcome string, d time.Duration, diagnostics int) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.PassesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeClean || outcome == OutcomeDiagnostics {
		m.DiagnosticsLast.Set(float64(diagnostics))
	}
}

// SetOpenDocuments records the number of open documents.
func (m *Metrics) SetOpenDocuments(n int) {
	if m != nil {
		m.OpenDocuments.Set(float64(n))
	}
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics and /health over HTTP.
type Server struct {
	addr    string
	metrics *Metrics
	server  *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	return &Server{addr: addr, metrics: m}
}

// Start listens on the configured address and serves in the background.
// It returns the address actually bound, which differs from the
// configured one when port 0 was requested.
func (s *Server) Start() (string, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("metrics server listening on %s", ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server failed: %v", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
