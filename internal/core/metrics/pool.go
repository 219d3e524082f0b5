package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is satisfied by *sql.DB and *sqlx.DB.
type StatsSource interface {
	Stats() sql.DBStats
}

type poolCollector struct {
	db StatsSource

	inUse    *prometheus.Desc
	idle     *prometheus.Desc
	open     *prometheus.Desc
	maxOpen  *prometheus.Desc
	waitTime *prometheus.Desc
}

// RegisterPoolMetrics registers Prometheus gauges that report live
// database/sql connection pool statistics on every scrape.
func RegisterPoolMetrics(reg prometheus.Registerer, db StatsSource) {
	reg.MustRegister(&poolCollector{
		db: db,
		inUse: prometheus.NewDesc(
			"labelkeeper_db_pool_in_use",
			"Number of database connections currently in use.",
			nil, nil,
		),
		idle: prometheus.NewDesc(
			"labelkeeper_db_pool_idle",
			"Number of idle database connections in the pool.",
			nil, nil,
		),
		open: prometheus.NewDesc(
			"labelkeeper_db_pool_open",
			"Number of established database connections, in use and idle.",
			nil, nil,
		),
		maxOpen: prometheus.NewDesc(
			"labelkeeper_db_pool_max_open",
			"Maximum number of open database connections (0 means unlimited).",
			nil, nil,
		),
		waitTime: prometheus.NewDesc(
			"labelkeeper_db_pool_wait_seconds_total",
			"Total time blocked waiting for a new connection.",
			nil, nil,
		),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inUse
	ch <- c.idle
	ch <- c.open
	ch <- c.maxOpen
	ch <- c.waitTime
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.db.Stats()

	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stat.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stat.Idle))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stat.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stat.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, stat.WaitDuration.Seconds())
}
