package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medvault"

// Metrics holds the service counters on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	shareValidations *prometheus.CounterVec
	shareLinks       *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	accessLogWrites  *prometheus.CounterVec
	urlResolutions   *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		shareValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_validations_total",
			Help:      "Share token validations by outcome.",
		}, []string{"outcome"}),
		shareLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_link_operations_total",
			Help:      "Share link create and revoke operations.",
		}, []string{"operation", "status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Record uploads by outcome.",
		}, []string{"outcome"}),
		accessLogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_log_writes_total",
			Help:      "Access log writes by sink and status.",
		}, []string{"sink", "status"}),
		urlResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_resolutions_total",
			Help:      "Download URL resolutions by strategy.",
		}, []string{"strategy"}),
	}
	m.registry.MustRegister(
		m.shareValidations,
		m.shareLinks,
		m.uploads,
		m.accessLogWrites,
		m.urlResolutions,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ShareValidation(outcome string) {
	if m == nil {
		return
	}
	m.shareValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ShareLinkOperation(operation string, success bool) {
	if m == nil {
		return
	}
	m.shareLinks.WithLabelValues(operation, status(success)).Inc()
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AccessLogWrite(sink string, success bool) {
	if m == nil {
		return
	}
	m.accessLogWrites.WithLabelValues(sink, status(success)).Inc()
}

func (m *Metrics) URLResolution(strategy string) {
	if m == nil {
		return
	}
	m.urlResolutions.WithLabelValues(strategy).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
