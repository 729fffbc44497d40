package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyagent"

// Exporter adapts a Collector to the Prometheus collector interface.
// Values are read from the atomic counters at scrape time, so the hot
// path never touches the Prometheus client.
type Exporter struct {
	c *Collector

	sessionsActive   *prometheus.Desc
	sessionsTotal    *prometheus.Desc
	sessionsRejected *prometheus.Desc
	bytes            *prometheus.Desc
	logins           *prometheus.Desc
	commandsResolved *prometheus.Desc
	dispatches       *prometheus.Desc
	idleExpiries     *prometheus.Desc
	errorsTotal      *prometheus.Desc
}

// NewExporter returns an Exporter reading from c.
func NewExporter(c *Collector) *Exporter {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Exporter{
		c:                c,
		sessionsActive:   desc("sessions", "active", "Current number of open sessions"),
		sessionsTotal:    desc("sessions", "opened_total", "Total number of sessions accepted"),
		sessionsRejected: desc("sessions", "rejected_total", "Connections refused because the live session limit was reached"),
		bytes:            desc("io", "bytes_total", "Bytes moved over client connections", "direction"),
		logins:           desc("auth", "logins_total", "Sign-in attempts by result", "result"),
		commandsResolved: desc("commands", "resolved_total", "Lines translated through the command tree"),
		dispatches:       desc("actuator", "dispatches_total", "Requests handed to the host actuator"),
		idleExpiries:     desc("sessions", "idle_expired_total", "Sessions closed by the idle timeout"),
		errorsTotal:      desc("", "errors_total", "Errors recorded by the server"),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.sessionsActive
	ch <- e.sessionsTotal
	ch <- e.sessionsRejected
	ch <- e.bytes
	ch <- e.logins
	ch <- e.commandsResolved
	ch <- e.dispatches
	ch <- e.idleExpiries
	ch <- e.errorsTotal
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	ch <- prometheus.MustNewConstMetric(e.sessionsActive, prometheus.GaugeValue, float64(s.SessionsActive))
	counter(e.sessionsTotal, s.SessionsTotal)
	counter(e.sessionsRejected, s.SessionsRejected)
	counter(e.bytes, s.BytesIn, "in")
	counter(e.bytes, s.BytesOut, "out")
	counter(e.logins, s.LoginsOK, "ok")
	counter(e.logins, s.LoginsFailed, "failed")
	counter(e.commandsResolved, s.CommandsResolved)
	counter(e.dispatches, s.Dispatches)
	counter(e.idleExpiries, s.IdleExpiries)
	counter(e.errorsTotal, s.ErrorsTotal)
}

// NewRegistry returns a Prometheus registry holding an Exporter for c
// alongside the standard Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewExporter(c),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves c in the Prometheus text format on /metrics and the
// JSON snapshot on /metrics.json.
func Handler(c *Collector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(NewRegistry(c), promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(c.JSON()))
	})
	return mux
}
