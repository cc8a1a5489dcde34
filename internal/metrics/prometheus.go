package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsActiveDesc = prometheus.NewDesc(
		"tcpsink_connections_active",
		"Number of sessions currently open.",
		nil, nil,
	)
	connectionsTotalDesc = prometheus.NewDesc(
		"tcpsink_connections_total",
		"Number of connections accepted since startup.",
		nil, nil,
	)
	bytesReceivedDesc = prometheus.NewDesc(
		"tcpsink_received_bytes_total",
		"Bytes read from peers and handed to the file sink.",
		nil, nil,
	)
	filesOpenedDesc = prometheus.NewDesc(
		"tcpsink_files_opened_total",
		"Output files created.",
		nil, nil,
	)
	rotationsDesc = prometheus.NewDesc(
		"tcpsink_rotations_total",
		"Size-triggered file rotations.",
		nil, nil,
	)
	idleTimeoutsDesc = prometheus.NewDesc(
		"tcpsink_idle_timeouts_total",
		"Sessions closed by the idle timer.",
		nil, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"tcpsink_session_errors_total",
		"Session-terminating errors by kind.",
		[]string{"kind"}, nil,
	)
)

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsActiveDesc
	ch <- connectionsTotalDesc
	ch <- bytesReceivedDesc
	ch <- filesOpenedDesc
	ch <- rotationsDesc
	ch <- idleTimeoutsDesc
	ch <- errorsDesc
}

// Collect implements [prometheus.Collector] by exporting the current
// snapshot as const metrics.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()

	ch <- prometheus.MustNewConstMetric(connectionsActiveDesc, prometheus.GaugeValue, float64(s.ConnectionsActive))
	ch <- prometheus.MustNewConstMetric(connectionsTotalDesc, prometheus.CounterValue, float64(s.ConnectionsTotal))
	ch <- prometheus.MustNewConstMetric(bytesReceivedDesc, prometheus.CounterValue, float64(s.BytesIn))
	ch <- prometheus.MustNewConstMetric(filesOpenedDesc, prometheus.CounterValue, float64(s.FilesOpened))
	ch <- prometheus.MustNewConstMetric(rotationsDesc, prometheus.CounterValue, float64(s.Rotations))
	ch <- prometheus.MustNewConstMetric(idleTimeoutsDesc, prometheus.CounterValue, float64(s.IdleTimeouts))
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.TransportErrors), "transport")
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.FilesystemErrors), "filesystem")
}

// Handler returns an HTTP handler serving c, plus the Go runtime and
// process collectors, in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
