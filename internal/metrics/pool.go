package metrics

import (
	dbdomain "dbconn-gateway/dbconn/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector lê PoolStats a cada scrape.
type poolCollector struct {
	stats func() dbdomain.PoolStats

	capacity  *prometheus.Desc
	conns     *prometheus.Desc
	waiters   *prometheus.Desc
	acquired  *prometheus.Desc
	created   *prometheus.Desc
	discarded *prometheus.Desc
	timeouts  *prometheus.Desc
	waitTime  *prometheus.Desc
}

func newPoolCollector(namespace, name string, stats func() dbdomain.PoolStats) *poolCollector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", metric), help, variable, labels)
	}
	return &poolCollector{
		stats:     stats,
		capacity:  desc("capacity", "Maximum number of connections"),
		conns:     desc("connections", "Connections by state", "state"),
		waiters:   desc("waiters", "Callers waiting for a connection"),
		acquired:  desc("acquired_total", "Successful acquires"),
		created:   desc("created_total", "Connections opened"),
		discarded: desc("discarded_total", "Connections discarded (broken or idle timeout)"),
		timeouts:  desc("acquire_timeouts_total", "Acquires that gave up waiting"),
		waitTime:  desc("wait_seconds_total", "Total time spent waiting for a connection"),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{p.capacity, p.conns, p.waiters, p.acquired, p.created, p.discarded, p.timeouts, p.waitTime} {
		ch <- d
	}
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(p.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(p.conns, prometheus.GaugeValue, float64(s.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(p.conns, prometheus.GaugeValue, float64(s.Leased), "leased")
	ch <- prometheus.MustNewConstMetric(p.conns, prometheus.GaugeValue, float64(s.Opening), "opening")
	ch <- prometheus.MustNewConstMetric(p.waiters, prometheus.GaugeValue, float64(s.Waiters))
	ch <- prometheus.MustNewConstMetric(p.acquired, prometheus.CounterValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(p.created, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(p.discarded, prometheus.CounterValue, float64(s.Discarded))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.AcquireTimeouts))
	ch <- prometheus.MustNewConstMetric(p.waitTime, prometheus.CounterValue, s.WaitDuration.Seconds())
}
