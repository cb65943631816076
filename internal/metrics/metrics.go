package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Saga outcomes.
const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector holds the service's Prometheus collectors. A nil *Collector is a no-op.
type Collector struct {
	scanDuration     *prometheus.HistogramVec
	scanBalances     *prometheus.CounterVec
	scanWallets      *prometheus.GaugeVec
	scanFailures     *prometheus.CounterVec
	depositsDetected *prometheus.CounterVec
	unresolvedAssets *prometheus.CounterVec
	catalogRefreshes *prometheus.CounterVec
	sagaEvents       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cashin_scan_duration_seconds",
				Help:    "Duration of deposit wallet balance scans",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"blockchain"},
		),
		scanBalances: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_scan_balances_total",
				Help: "Total number of wallet balances received from the integration",
			},
			[]string{"blockchain"},
		),
		scanWallets: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cashin_scan_wallets",
				Help: "Distinct wallets seen by the last scan",
			},
			[]string{"blockchain"},
		),
		scanFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_scan_failures_total",
				Help: "Total number of scans that ended with an error",
			},
			[]string{"blockchain"},
		),
		depositsDetected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_deposits_detected_total",
				Help: "Total number of deposit balance detected events published",
			},
			[]string{"blockchain"},
		),
		unresolvedAssets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_unresolved_assets_total",
				Help: "Total number of balance entries skipped because the asset was unknown",
			},
			[]string{"blockchain"},
		),
		catalogRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_asset_catalog_refreshes_total",
				Help: "Total number of asset catalog refreshes",
			},
			[]string{"blockchain"},
		),
		sagaEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashin_saga_events_total",
				Help: "Total number of wallet lifecycle events handled by the saga",
			},
			[]string{"event", "outcome"},
		),
	}
}

// ScanCompleted records the statistics of one scan.
func (c *Collector) ScanCompleted(blockchain string, balances, wallets, skipped int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.scanDuration.WithLabelValues(blockchain).Observe(elapsed.Seconds())
	c.scanBalances.WithLabelValues(blockchain).Add(float64(balances))
	c.scanWallets.WithLabelValues(blockchain).Set(float64(wallets))
	c.unresolvedAssets.WithLabelValues(blockchain).Add(float64(skipped))
}

// ScanFailed records a scan that returned an error.
func (c *Collector) ScanFailed(blockchain string) {
	if c == nil {
		return
	}
	c.scanFailures.WithLabelValues(blockchain).Inc()
}

// DepositDetected records one published deposit event.
func (c *Collector) DepositDetected(blockchain string) {
	if c == nil {
		return
	}
	c.depositsDetected.WithLabelValues(blockchain).Inc()
}

// CatalogRefreshed records one asset catalog refresh.
func (c *Collector) CatalogRefreshed(blockchain string) {
	if c == nil {
		return
	}
	c.catalogRefreshes.WithLabelValues(blockchain).Inc()
}

// SagaEvent records the outcome of one saga handler invocation.
func (c *Collector) SagaEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.sagaEvents.WithLabelValues(event, outcome).Inc()
}
