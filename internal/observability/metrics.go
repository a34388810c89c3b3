// Package observability holds the Prometheus collectors of the service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentflux/fluxdiff/model"
)

// Metrics bundles Prometheus collectors for the service.
type Metrics struct {
	registry     *prometheus.Registry
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	DecodedFiles prometheus.Counter
	DiffLines    *prometheus.CounterVec
	Diagnostics  *prometheus.CounterVec
	BackendErrs  *prometheus.CounterVec
}

// NewMetrics constructs a registry with the service collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxdiff_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fluxdiff_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	decoded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fluxdiff_decoded_files_total",
		Help: "Files recovered from marked bundles",
	})

	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxdiff_diff_lines_total",
		Help: "Diff lines emitted by kind",
	}, []string{"kind"})

	diags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxdiff_decode_diagnostics_total",
		Help: "Non-fatal decode diagnostics by kind",
	}, []string{"kind"})

	backendErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxdiff_backend_errors_total",
		Help: "Refinement backend failures by provider",
	}, []string{"provider"})

	reg.MustRegister(reqs, durs, decoded, lines, diags, backendErrs)

	return &Metrics{
		registry:     reg,
		Requests:     reqs,
		Duration:     durs,
		DecodedFiles: decoded,
		DiffLines:    lines,
		Diagnostics:  diags,
		BackendErrs:  backendErrs,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records one handled request.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.Requests.WithLabelValues(route, statusLabel(status)).Inc()
	m.Duration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordDecode records the files and diagnostics of one decode.
func (m *Metrics) RecordDecode(files int, diagnosticKinds []string) {
	if m == nil {
		return
	}
	m.DecodedFiles.Add(float64(files))
	for _, kind := range diagnosticKinds {
		m.Diagnostics.WithLabelValues(kind).Inc()
	}
}

// RecordReport counts the lines of a diff report by kind.
func (m *Metrics) RecordReport(report model.FileDiffReport) {
	if m == nil {
		return
	}
	for _, line := range report.Lines {
		m.DiffLines.WithLabelValues(string(line.Kind)).Inc()
	}
}

// RecordBackendError increments the failure counter of a provider.
func (m *Metrics) RecordBackendError(provider string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.BackendErrs.WithLabelValues(provider).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
