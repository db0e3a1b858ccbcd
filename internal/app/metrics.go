package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practicerooms_locks_total",
		Help: "Rooms locked, by trigger",
	}, []string{"trigger"})

	metricUnlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practicerooms_unlocks_total",
		Help: "Rooms unlocked",
	})

	metricPromotionsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practicerooms_promotions_scheduled_total",
		Help: "Autolock timers scheduled",
	})

	metricPromotionsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practicerooms_promotions_canceled_total",
		Help: "Autolock timers canceled before firing",
	})

	metricMemberOpFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "practicerooms_member_op_failures_total",
		Help: "Per-member mute/unmute failures",
	}, []string{"op"})

	metricPracticeSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "practicerooms_practice_seconds_total",
		Help: "Seconds flushed into user stats",
	})

	metricLiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "practicerooms_live_sessions",
		Help: "Users with an open practice session",
	})
)

// CountLock records a lock made outside the engine.
func CountLock(trigger string) { metricLocks.WithLabelValues(trigger).Inc() }
