package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ContentMetrics содержит метрики чтения из контент-хранилища.
type ContentMetrics struct {
	cacheLookups  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	revalidations prometheus.Counter
	fallbackReads prometheus.Counter
}

// NewContentMetrics регистрирует метрики контента в DefaultRegisterer.
func NewContentMetrics() *ContentMetrics {
	return NewContentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewContentMetricsWithRegisterer регистрирует метрики контента в указанном реестре.
func NewContentMetricsWithRegisterer(registerer prometheus.Registerer) *ContentMetrics {
	return &ContentMetrics{
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "portfolio_content_cache_lookups_total",
			Help: "Content cache lookups by result",
		}, []string{"result"}),
		fetchDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "portfolio_content_fetch_duration_seconds",
			Help:    "Duration of content store queries in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"perspective"}),
		fetchErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "portfolio_content_fetch_errors_total",
			Help: "Failed content store queries by perspective",
		}, []string{"perspective"}),
		revalidations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "portfolio_content_revalidations_total",
			Help: "Total number of accepted revalidation requests",
		}),
		fallbackReads: registerCounter(registerer, prometheus.CounterOpts{
			Name: "portfolio_content_fallback_reads_total",
			Help: "Reads served from the local fallback catalog",
		}),
	}
}

// RecordCacheHit учитывает попадание в кэш.
func (m *ContentMetrics) RecordCacheHit() {
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss учитывает промах кэша.
func (m *ContentMetrics) RecordCacheMiss() {
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordFetch учитывает запрос к хранилищу.
func (m *ContentMetrics) RecordFetch(perspective string, duration time.Duration, err error) {
	m.fetchDuration.WithLabelValues(perspective).Observe(duration.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(perspective).Inc()
	}
}

// RecordRevalidation учитывает принятый запрос ревалидации.
func (m *ContentMetrics) RecordRevalidation() {
	m.revalidations.Inc()
}

// RecordFallbackRead учитывает чтение из локального каталога.
func (m *ContentMetrics) RecordFallbackRead() {
	m.fallbackReads.Inc()
}
