// Prometheus counters and the control-plane ops endpoint
package netbricks

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/netsys/netbricks/ports"
	"github.com/netsys/netbricks/scheduler"
)

// statsCollector exports the per-queue atomic counters without touching
// the dataplane: collection reads the same atomics the cores update.
type statsCollector struct {
	queues []*ports.PortQueue

	rxPackets *prometheus.Desc
	rxBytes   *prometheus.Desc
	txPackets *prometheus.Desc
	txBytes   *prometheus.Desc
	dropped   *prometheus.Desc
	aborted   *prometheus.Desc
}

func newStatsCollector(queues []*ports.PortQueue) *statsCollector {
	labels := []string{"port", "queue"}
	return &statsCollector{
		queues:    queues,
		rxPackets: prometheus.NewDesc("netbricks_port_rx_packets_total", "Packets received", labels, nil),
		rxBytes:   prometheus.NewDesc("netbricks_port_rx_bytes_total", "Bytes received", labels, nil),
		txPackets: prometheus.NewDesc("netbricks_port_tx_packets_total", "Packets transmitted", labels, nil),
		txBytes:   prometheus.NewDesc("netbricks_port_tx_bytes_total", "Bytes transmitted", labels, nil),
		dropped:   prometheus.NewDesc("netbricks_port_dropped_total", "Packets dropped by pipelines", labels, nil),
		aborted:   prometheus.NewDesc("netbricks_port_aborted_total", "Packets aborted by pipelines", labels, nil),
	}
}

func (c *statsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.rxPackets
	descs <- c.rxBytes
	descs <- c.txPackets
	descs <- c.txBytes
	descs <- c.dropped
	descs <- c.aborted
}

func (c *statsCollector) Collect(metrics chan<- prometheus.Metric) {
	for _, q := range c.queues {
		stats := q.Stats()
		port := q.Port.Name()
		queue := q.String()
		counter := func(desc *prometheus.Desc, v uint64) prometheus.Metric {
			m, _ := prometheus.NewConstMetric(desc, prometheus.CounterValue, float64(v), port, queue)
			return m
		}
		metrics <- counter(c.rxPackets, stats.Rx.Packets.Load())
		metrics <- counter(c.rxBytes, stats.Rx.Bytes.Load())
		metrics <- counter(c.txPackets, stats.Tx.Packets.Load())
		metrics <- counter(c.txBytes, stats.Tx.Bytes.Load())
		metrics <- counter(c.dropped, stats.Dropped.Load())
		metrics <- counter(c.aborted, stats.Aborted.Load())
	}
}

// startMetricsServer serves /metrics and /healthz off the dataplane.
func (r *Runtime) startMetricsServer(addr string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newStatsCollector(r.ctx.Queues()))

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	go func() {
		log.Infof("📊 ops endpoint listening on %s", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			log.WithError(err).Error("ops endpoint failed")
		}
	}()
}

// NewStatsPrinter builds a periodic task that logs every queue's counters.
// Install it on a core to get the collect-metrics behavior of the example
// NFs.
func NewStatsPrinter(queues []*ports.PortQueue, period time.Duration) scheduler.Executable {
	return scheduler.NewPeriodicTask(period, func() {
		for _, q := range queues {
			s := q.Stats()
			log.Infof("📈 %s: rx %d tx %d dropped %d aborted %d",
				q, s.Rx.Packets.Load(), s.Tx.Packets.Load(), s.Dropped.Load(), s.Aborted.Load())
		}
	})
}
