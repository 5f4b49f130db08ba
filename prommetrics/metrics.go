package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tcpkit/tcpkit"
)

// Config specifies an optional config for NewHandler.
type Config struct {
	// Namespace is attached to every Prometheus metric registered by NewHandler.
	Namespace string

	// Subsystem is attached to every Prometheus metric registered by NewHandler.
	Subsystem string
}

// NewHandler creates a metrics handler for tcpkit.Server, to be registered with OnMetricsUpdate. It exposes
// every ServerMetrics field to the given prometheus.Registerer.
// Grounded on tinytcp's promtinytcp.NewHandler (promtinytcp/metrics.go), extended with the arena and op pool
// occupancy gauges added by ServerMetrics.
func NewHandler(
	registerer prometheus.Registerer,
	config ...*Config,
) func(metrics tcpkit.ServerMetrics) {
	c := &Config{}
	if config != nil {
		c = config[0]
	}

	totalRead := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "total_read",
		Help:      "Total number of bytes read by the server.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	totalWritten := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "total_written",
		Help:      "Total number of bytes written by the server.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	readLastSecond := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "read_last_second",
		Help:      "Average number of bytes read by the server per second over the last tick interval.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	writtenLastSecond := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "written_last_second",
		Help:      "Average number of bytes written by the server per second over the last tick interval.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "connections",
		Help:      "Number of currently registered connections.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	goroutines := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "goroutines",
		Help:      "Number of active per-connection receive-loop goroutines.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	arenaOutstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "arena_outstanding",
		Help:      "Number of buffer arena slices currently checked out.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})
	readOpsOutstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "read_ops_outstanding",
		Help:      "Number of read ops currently in flight.",
		Namespace: c.Namespace,
		Subsystem: c.Subsystem,
	})

	registerer.MustRegister(
		totalRead,
		totalWritten,
		readLastSecond,
		writtenLastSecond,
		connections,
		goroutines,
		arenaOutstanding,
		readOpsOutstanding,
	)

	return func(metrics tcpkit.ServerMetrics) {
		totalRead.Set(float64(metrics.TotalRead))
		totalWritten.Set(float64(metrics.TotalWritten))
		readLastSecond.Set(float64(metrics.ReadLastSecond))
		writtenLastSecond.Set(float64(metrics.WrittenLastSecond))
		connections.Set(float64(metrics.Connections))
		goroutines.Set(float64(metrics.Goroutines))
		arenaOutstanding.Set(float64(metrics.ArenaOutstanding))
		readOpsOutstanding.Set(float64(metrics.ReadOpsOutstanding))
	}
}
