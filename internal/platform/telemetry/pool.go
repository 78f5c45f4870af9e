package telemetry

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is the subset of pgxpool statistics exported as gauges.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// RegisterPool exports pool gauges read on every scrape.
func (p *Provider) RegisterPool(pool *pgxpool.Pool) error {
	return p.registerPoolStats(func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Acquired: s.AcquiredConns(),
			Idle:     s.IdleConns(),
			Total:    s.TotalConns(),
			Max:      s.MaxConns(),
		}
	})
}

func (p *Provider) registerPoolStats(stats func() PoolStats) error {
	gauge := func(name, help string, pick func(PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}

	for _, c := range []prometheus.Collector{
		gauge("acquired_connections", "Connections currently in use.", func(s PoolStats) int32 { return s.Acquired }),
		gauge("idle_connections", "Idle connections.", func(s PoolStats) int32 { return s.Idle }),
		gauge("total_connections", "Open connections.", func(s PoolStats) int32 { return s.Total }),
		gauge("max_connections", "Configured maximum connections.", func(s PoolStats) int32 { return s.Max }),
	} {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
