package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	IngestAttemptsTotal     *prometheus.CounterVec
	ClassifierDuration      prometheus.Histogram
	ClassifierVerdictsTotal *prometheus.CounterVec

	// Repository metrics
	RecordsTotal        prometheus.Gauge
	RecordsSavedTotal   *prometheus.CounterVec
	RecordsDeletedTotal prometheus.Counter

	// Reply metrics
	RepliesGeneratedTotal prometheus.Counter
	MemesSentTotal        *prometheus.CounterVec

	// Telegram metrics
	TelegramMessagesSentTotal     prometheus.Counter
	TelegramMessagesReceivedTotal prometheus.Counter
	TelegramErrorsTotal           prometheus.Counter

	// Admin metrics
	AdminRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Ingestion metrics
		IngestAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_attempts_total",
				Help: "Total number of ingestion attempts by outcome",
			},
			[]string{"outcome"},
		),
		ClassifierDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classifier_duration_seconds",
				Help:    "Duration of image classification calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ClassifierVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_verdicts_total",
				Help: "Total number of classifier verdicts by decision",
			},
			[]string{"verdict"},
		),

		// Repository metrics
		RecordsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "records_total",
				Help: "Number of records currently in the repository",
			},
		),
		RecordsSavedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_saved_total",
				Help: "Total number of records saved by source",
			},
			[]string{"source"},
		),
		RecordsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "records_deleted_total",
				Help: "Total number of records deleted",
			},
		),

		// Reply metrics
		RepliesGeneratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "replies_generated_total",
				Help: "Total number of generated chat replies",
			},
		),
		MemesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memes_sent_total",
				Help: "Total number of memes sent by match kind",
			},
			[]string{"match"},
		),

		// Telegram metrics
		TelegramMessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_sent_total",
				Help: "Total number of Telegram messages sent",
			},
		),
		TelegramMessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_received_total",
				Help: "Total number of Telegram messages received",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_errors_total",
				Help: "Total number of Telegram errors",
			},
		),

		// Admin metrics
		AdminRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_requests_total",
				Help: "Total number of admin API requests",
			},
			[]string{"endpoint", "status"},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Ingestion metrics
	m.registry.MustRegister(m.IngestAttemptsTotal)
	m.registry.MustRegister(m.ClassifierDuration)
	m.registry.MustRegister(m.ClassifierVerdictsTotal)

	// Repository metrics
	m.registry.MustRegister(m.RecordsTotal)
	m.registry.MustRegister(m.RecordsSavedTotal)
	m.registry.MustRegister(m.RecordsDeletedTotal)

	// Reply metrics
	m.registry.MustRegister(m.RepliesGeneratedTotal)
	m.registry.MustRegister(m.MemesSentTotal)

	// Telegram metrics
	m.registry.MustRegister(m.TelegramMessagesSentTotal)
	m.registry.MustRegister(m.TelegramMessagesReceivedTotal)
	m.registry.MustRegister(m.TelegramErrorsTotal)

	// Admin metrics
	m.registry.MustRegister(m.AdminRequestsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
