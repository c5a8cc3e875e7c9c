package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "keyzones",
			Subsystem: "api",
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients",
		},
	)

	WSDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keyzones",
			Subsystem: "api",
			Name:      "ws_dropped_total",
			Help:      "WebSocket clients dropped for falling behind",
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keyzones",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	ChartBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keyzones",
			Subsystem: "api",
			Name:      "chart_bytes_total",
			Help:      "Chart image bytes served",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(WSClients, WSDropped, RateLimited, ChartBytes)
	})
}
