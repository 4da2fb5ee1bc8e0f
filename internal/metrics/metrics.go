package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pp_order_transitions_total",
			Help: "Order state transitions by name and result",
		},
		[]string{"transition", "result"},
	)

	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pp_relay_messages_total",
			Help: "Relayed chat messages by result",
		},
		[]string{"result"},
	)

	SweepNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pp_sweep_notifications_total",
			Help: "Timer sweep notifications by kind",
		},
		[]string{"kind"},
	)

	StoreCommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pp_store_commit_seconds",
			Help:    "Workbook commit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordTransition counts one attempted transition.
func RecordTransition(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OrderTransitions.WithLabelValues(name, result).Inc()
}
