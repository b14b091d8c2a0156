package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesCreatedTotal counts sale creation outcomes.
	SalesCreatedTotal *prometheus.CounterVec
	// SaleFinalAmount records the final amount of persisted sales.
	SaleFinalAmount prometheus.Histogram
	// DraftRecalculationsTotal counts draft recomputations by triggering event.
	DraftRecalculationsTotal *prometheus.CounterVec
	// OverstockWarningsTotal counts rows flagged above available stock.
	OverstockWarningsTotal prometheus.Counter
	// InventoryCheckTotal counts periodic inventory check outcomes.
	InventoryCheckTotal *prometheus.CounterVec
	// ReportCacheTotal counts report cache hits and misses.
	ReportCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if namespace == "" {
			namespace = DefaultNamespace
		}
		SalesCreatedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_created_total",
			Help:      "Count of sale creation attempts by outcome.",
		}, []string{"source", "result"}))
		SaleFinalAmount = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_final_amount",
			Help:      "Final amount of created sales.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}))
		DraftRecalculationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_recalculations_total",
			Help:      "Count of sale draft recalculations by row event.",
		}, []string{"event"}))
		OverstockWarningsTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overstock_warnings_total",
			Help:      "Number of draft rows whose quantity exceeded available stock.",
		}))
		InventoryCheckTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_check_total",
			Help:      "Count of periodic inventory checks by outcome.",
		}, []string{"check", "result"}))
		ReportCacheTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_total",
			Help:      "Report cache lookups by report and result.",
		}, []string{"report", "result"}))
	})
}

// IncSale records a sale creation outcome when metrics are registered.
func IncSale(source, result string) {
	if SalesCreatedTotal != nil {
		SalesCreatedTotal.WithLabelValues(source, result).Inc()
	}
}

// ObserveSaleAmount records a sale's final amount when metrics are registered.
func ObserveSaleAmount(amount float64) {
	if SaleFinalAmount != nil {
		SaleFinalAmount.Observe(amount)
	}
}

// IncDraftRecalculation records a draft recomputation for event.
func IncDraftRecalculation(event string) {
	if DraftRecalculationsTotal != nil {
		DraftRecalculationsTotal.WithLabelValues(event).Inc()
	}
}

// AddOverstockWarnings adds n flagged rows.
func AddOverstockWarnings(n int) {
	if OverstockWarningsTotal != nil && n > 0 {
		OverstockWarningsTotal.Add(float64(n))
	}
}

// IncInventoryCheck records an inventory check outcome.
func IncInventoryCheck(check, result string) {
	if InventoryCheckTotal != nil {
		InventoryCheckTotal.WithLabelValues(check, result).Inc()
	}
}

// IncReportCache records a report cache hit or miss.
func IncReportCache(report, result string) {
	if ReportCacheTotal != nil {
		ReportCacheTotal.WithLabelValues(report, result).Inc()
	}
}
