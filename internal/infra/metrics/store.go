package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storeErrorsTotal) }

var storeErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Key-value store failures that were logged and absorbed.",
	},
	[]string{"op"}, // 'read', 'write'
)

func IncStoreError(op string) { storeErrorsTotal.WithLabelValues(norm(op)).Inc() }
