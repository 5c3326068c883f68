// Package metrics registers the Prometheus collectors for reviews, error
// classification, micro challenges and deck scans.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the collectors. All names are prefixed with "knoldeck_".
type Metrics struct {
	ReviewsTotal        *prometheus.CounterVec
	ReviewLatency       prometheus.Histogram
	ErrorsClassified    *prometheus.CounterVec
	ChallengesGenerated *prometheus.CounterVec
	ChallengesCompleted prometheus.Counter
	ScansTotal          *prometheus.CounterVec
	CardsScanned        *prometheus.GaugeVec
}

// New returns the process-wide metrics, registering them on first use.
//
//   - knoldeck_reviews_total{rating}
//   - knoldeck_review_latency_seconds
//   - knoldeck_errors_classified_total{category}
//   - knoldeck_challenges_generated_total{type}
//   - knoldeck_challenges_completed_total
//   - knoldeck_scans_total{deck,result}
//   - knoldeck_cards{deck}
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ReviewsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knoldeck_reviews_total",
					Help: "Total number of card reviews by rating",
				},
				[]string{"rating"},
			),
			ReviewLatency: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "knoldeck_review_latency_seconds",
					Help:    "Response latency reported with reviews",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1m
				},
			),
			ErrorsClassified: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knoldeck_errors_classified_total",
					Help: "Total number of failed recalls by error category",
				},
				[]string{"category"},
			),
			ChallengesGenerated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knoldeck_challenges_generated_total",
					Help: "Total number of micro challenges generated by type",
				},
				[]string{"type"},
			),
			ChallengesCompleted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "knoldeck_challenges_completed_total",
					Help: "Total number of micro challenges completed",
				},
			),
			ScansTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knoldeck_scans_total",
					Help: "Total number of deck scans",
				},
				[]string{"deck", "result"},
			),
			CardsScanned: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "knoldeck_cards",
					Help: "Number of cards found in a deck by its last scan",
				},
				[]string{"deck"},
			),
		}
	})
	return global
}
