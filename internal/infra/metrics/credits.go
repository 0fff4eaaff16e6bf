package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		creditsConsumedTotal,
		creditsDeniedTotal,
		creditsGrantedTotal,
		planChangesTotal,
		subscriptionsExpiredTotal,
		creditBalanceResetsTotal,
	)
}

var (
	creditsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Metered actions allowed, by plan.",
		},
		[]string{"plan"},
	)

	creditsDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_denied_total",
			Help: "Metered actions refused for lack of credits.",
		},
	)

	creditsGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_granted_total",
			Help: "Credits added to balances, by source.",
		},
		[]string{"source"}, // 'grant', 'ad'
	)

	planChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_changes_total",
			Help: "Plan updates by target plan and billing cycle.",
		},
		[]string{"plan", "cycle"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Paid plans demoted to free after their end date.",
		},
	)

	creditBalanceResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_balance_resets_total",
			Help: "Loads that refilled a missing or exhausted balance to the free quota.",
		},
	)
)

func IncCreditConsumed(plan string) { creditsConsumedTotal.WithLabelValues(norm(plan)).Inc() }

func IncCreditDenied() { creditsDeniedTotal.Inc() }

func AddCreditsGranted(source string, n int) {
	creditsGrantedTotal.WithLabelValues(norm(source)).Add(float64(n))
}

func IncPlanChange(plan, cycle string) {
	planChangesTotal.WithLabelValues(norm(plan), norm(cycle)).Inc()
}

func IncSubscriptionsExpired(count int) { subscriptionsExpiredTotal.Add(float64(count)) }

func IncBalanceReset() { creditBalanceResetsTotal.Inc() }
