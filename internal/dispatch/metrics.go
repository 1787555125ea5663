package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the per-outcome dispatch counters.
type Metrics struct {
	created prometheus.Counter
	failed  prometheus.Counter
	skipped prometheus.Counter
}

// NewMetrics creates and registers the dispatch counters. A nil
// registerer yields unregistered counters, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreachd_drafts_created_total",
			Help: "Decision records successfully drafted to the external mail system.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreachd_drafts_failed_total",
			Help: "Decision records whose external draft creation failed.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreachd_drafts_skipped_total",
			Help: "Decision records skipped because another run already handled them.",
		}),
	}
}
