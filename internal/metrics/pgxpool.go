package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitness"

func poolGauge(name, help string, value func() float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pgxpool",
		Name:      name,
		Help:      help,
	}, value)
}

// RegisterPgxPoolMetrics exposes pgx connection pool statistics as Prometheus gauges.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	prometheus.MustRegister(
		poolGauge("acquired_conns", "Number of currently acquired connections in the pool", func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		poolGauge("max_conns", "Maximum number of connections in the pool", func() float64 {
			return float64(pool.Stat().MaxConns())
		}),
		poolGauge("total_conns", "Total number of connections in the pool", func() float64 {
			return float64(pool.Stat().TotalConns())
		}),
		poolGauge("idle_conns", "Number of idle connections in the pool", func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
	)
}
