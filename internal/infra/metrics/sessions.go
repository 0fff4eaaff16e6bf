package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(rolloverDecisionsTotal, sessionsArchivedTotal)
}

var (
	rolloverDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_rollover_decisions_total",
			Help: "Rollover decisions by resulting state.",
		},
		[]string{"state"}, // 'fresh_day', 'closed_session', 'resumable'
	)

	sessionsArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_archived_total",
			Help: "Conversations moved into the history list on close.",
		},
	)
)

func IncRolloverDecision(state string) { rolloverDecisionsTotal.WithLabelValues(norm(state)).Inc() }

func IncSessionArchived() { sessionsArchivedTotal.Inc() }
