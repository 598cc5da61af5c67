package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики корзин.
type CartMetrics struct {
	mutations      *prometheus.CounterVec
	persistResults *prometheus.CounterVec
	checkouts      prometheus.Counter
	checkoutTotal  prometheus.Histogram
	activeSessions prometheus.Gauge
}

// NewCartMetrics регистрирует метрики корзин в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики корзин в указанном реестре.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	return &CartMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "portfolio_cart_mutations_total",
			Help: "Total number of applied cart mutations by type",
		}, []string{"type"}),
		persistResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "portfolio_cart_persist_total",
			Help: "Cart persistence attempts by result",
		}, []string{"result"}),
		checkouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "portfolio_cart_checkouts_total",
			Help: "Total number of requested checkouts",
		}),
		checkoutTotal: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "portfolio_cart_checkout_total_dollars",
			Help:    "Grand total of checked out carts in major currency units",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "portfolio_cart_active_sessions",
			Help: "Number of cart sessions held in memory",
		}),
	}
}

// RecordMutation увеличивает счётчик мутаций указанного типа.
func (m *CartMetrics) RecordMutation(eventType string) {
	m.mutations.WithLabelValues(eventType).Inc()
}

// RecordPersist учитывает результат сохранения корзины.
func (m *CartMetrics) RecordPersist(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.persistResults.WithLabelValues(result).Inc()
}

// RecordCheckout учитывает оформление и его сумму (в центах).
func (m *CartMetrics) RecordCheckout(totalMinor int64) {
	m.checkouts.Inc()
	m.checkoutTotal.Observe(float64(totalMinor) / 100)
}

// SetActiveSessions выставляет количество сессий в памяти.
func (m *CartMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}
