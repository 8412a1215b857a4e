package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionsCollector reports live registry sizes at scrape time.
type SessionsCollector struct {
	counts func() map[string]int
	desc   *prometheus.Desc
}

func NewSessionsCollector(counts func() map[string]int) *SessionsCollector {
	return &SessionsCollector{
		counts: counts,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "sessions"),
			"Sessions currently held in the registry by state",
			[]string{"state"}, nil,
		),
	}
}

func (c *SessionsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *SessionsCollector) Collect(ch chan<- prometheus.Metric) {
	for state, n := range c.counts() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), state)
	}
}
