package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	FusionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mycocast",
			Subsystem: "fusion",
			Name:      "latency_seconds",
			Help:      "Latency of fusion stages and model adapters",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	FusionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mycocast",
			Subsystem: "fusion",
			Name:      "errors_total",
			Help:      "Errors by fusion stage",
		},
		[]string{"stage"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(FusionLatency, FusionErrors)
	})
}
