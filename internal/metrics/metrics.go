package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "p2p_quoter"

// Metrics holds the collectors of the quoting loop.
type Metrics struct {
	Running           prometheus.Gauge
	Ticks             *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	ResolvedPrice     *prometheus.GaugeVec
	QuotedPrice       *prometheus.GaugeVec
	AvailableQuantity *prometheus.GaugeVec
	EligibleListings  *prometheus.GaugeVec
	Rejections        *prometheus.CounterVec
	ListingUpdates    *prometheus.CounterVec
	OrderActions      *prometheus.CounterVec
	ReadErrors        *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh registry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 when the quoting loop is enabled",
		}),
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed loop ticks by result",
		}, []string{"result"}), // ok, error, panic
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a loop tick",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		ResolvedPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolved_price",
			Help:      "Price chosen from the market before the quote step",
		}, []string{"side", "strategy"}),
		QuotedPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quoted_price",
			Help:      "Price pushed to managed listings",
		}, []string{"side"}),
		AvailableQuantity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available_quantity",
			Help:      "Listable quantity of the traded asset",
		}, []string{"side"}),
		EligibleListings: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eligible_listings",
			Help:      "Competitor listings that passed every rule",
		}, []string{"side"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_rejections_total",
			Help:      "Competitor listings rejected by rule",
		}, []string{"side", "rule"}),
		ListingUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_updates_total",
			Help:      "Managed listing updates by result",
		}, []string{"side", "result"}), // applied, unchanged, failed, skipped
		OrderActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_actions_total",
			Help:      "Chat messages, paid marks and failures on pending orders",
		}, []string{"side", "action"}),
		ReadErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed venue reads by source",
		}, []string{"source"}),
	}
}
