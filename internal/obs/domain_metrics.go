package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuotesTotal counts cart price calculations by outcome.
	PricingQuotesTotal *prometheus.CounterVec
	// PricingShortfallLines counts priced lines that could not be fully covered by lots.
	PricingShortfallLines prometheus.Counter
	// LotLookupLatency records inventory lookup latency in milliseconds.
	LotLookupLatency *prometheus.HistogramVec
	// InventoryCacheTotal counts lot cache lookups by result.
	InventoryCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of cart price calculations by result.",
		}, []string{"result"})
		PricingShortfallLines = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_shortfall_lines_total",
			Help:      "Number of cart lines priced partly at base price because lots ran out.",
		})
		LotLookupLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_lot_lookup_duration_ms",
			Help:      "Latency for inventory lot lookups in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"source"})
		InventoryCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_cache_total",
			Help:      "Count of inventory cache lookups by result.",
		}, []string{"result"})

		mustRegisterCollector(reg, PricingQuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingQuotesTotal = v
			}
		})
		mustRegisterCollector(reg, PricingShortfallLines, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PricingShortfallLines = v
			}
		})
		mustRegisterCollector(reg, LotLookupLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				LotLookupLatency = v
			}
		})
		mustRegisterCollector(reg, InventoryCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InventoryCacheTotal = v
			}
		})
	})
}

// ObserveQuote increments the quote counter when domain metrics are registered.
func ObserveQuote(result string) {
	if PricingQuotesTotal != nil {
		PricingQuotesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveShortfall adds n shortfall lines.
func ObserveShortfall(n int) {
	if PricingShortfallLines != nil && n > 0 {
		PricingShortfallLines.Add(float64(n))
	}
}

// ObserveLotLookup records a lookup duration for source.
func ObserveLotLookup(source string, ms float64) {
	if LotLookupLatency != nil {
		LotLookupLatency.WithLabelValues(source).Observe(ms)
	}
}

// ObserveCache records a cache lookup result (hit, miss or error).
func ObserveCache(result string) {
	if InventoryCacheTotal != nil {
		InventoryCacheTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
