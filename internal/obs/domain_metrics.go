package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesGeneratedTotal counts quote generation outcomes.
	QuotesGeneratedTotal *prometheus.CounterVec
	// ReconcileLookupsTotal counts external price lookups by outcome.
	ReconcileLookupsTotal *prometheus.CounterVec
	// ReconcileDuration records whole reconciliation latency in milliseconds.
	ReconcileDuration *prometheus.HistogramVec
	// LinkTasksTotal counts external linking task outcomes.
	LinkTasksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesGeneratedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_generated_total",
			Help:      "Count of quote generation requests by outcome.",
		}, []string{"result"}))
		ReconcileLookupsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_lookups_total",
			Help:      "Count of external catalog price lookups by outcome.",
		}, []string{"result"}))
		ReconcileDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_ms",
			Help:      "Latency of quote reconciliation in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		LinkTasksTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_tasks_total",
			Help:      "Count of external linking tasks by outcome.",
		}, []string{"result"}))
	})
}

// CountQuote increments the quote generation counter when registered.
func CountQuote(result string) {
	if QuotesGeneratedTotal != nil {
		QuotesGeneratedTotal.WithLabelValues(result).Inc()
	}
}

// CountLookup increments the lookup counter when registered.
func CountLookup(result string) {
	if ReconcileLookupsTotal != nil {
		ReconcileLookupsTotal.WithLabelValues(result).Inc()
	}
}

// CountLinkTask increments the link task counter when registered.
func CountLinkTask(result string) {
	if LinkTasksTotal != nil {
		LinkTasksTotal.WithLabelValues(result).Inc()
	}
}
