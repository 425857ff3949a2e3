// Package metrics exports the prediction manager's counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/automoto/rewind/prediction"
)

const namespace = "rewind"

// Collector implements prediction.Metrics.
type Collector struct {
	rollbackDepth prometheus.Histogram
	replayTicks   prometheus.Histogram
	diagnostics   *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	bytes         *prometheus.CounterVec
	entities      prometheus.Gauge
}

// New registers the collector's metrics on reg under the given role label
// ("server", "client" or "host").
func New(reg prometheus.Registerer, role string) *Collector {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"role": role}, reg))
	return &Collector{
		rollbackDepth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollback_depth_ticks",
			Help:      "Ticks between the local tick and the verified tick a frame rolled back to.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
		}),
		replayTicks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_ticks",
			Help:      "Predicted ticks re-simulated after a verified frame.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
		}),
		diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Degraded ticks by kind.",
		}, []string{"kind"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_queue_depth",
			Help:      "Buffered inputs per player on the server.",
		}, []string{"player"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Frame and input payload bytes by direction.",
		}, []string{"direction"}),
		entities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Registered predicted entities.",
		}),
	}
}

func (c *Collector) ObserveRollback(depth uint64) { c.rollbackDepth.Observe(float64(depth)) }
func (c *Collector) ObserveReplay(ticks uint64)   { c.replayTicks.Observe(float64(ticks)) }

func (c *Collector) CountDiagnostic(kind prediction.DiagnosticKind) {
	c.diagnostics.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) SetQueueDepth(player prediction.PlayerID, depth int) {
	c.queueDepth.WithLabelValues(strconv.FormatUint(uint64(player), 10)).Set(float64(depth))
}

// ForgetPlayer drops the per-player series of a player that left.
func (c *Collector) ForgetPlayer(player prediction.PlayerID) {
	c.queueDepth.DeleteLabelValues(strconv.FormatUint(uint64(player), 10))
}

func (c *Collector) AddBytes(dir prediction.Direction, n int) {
	c.bytes.WithLabelValues(string(dir)).Add(float64(n))
}

func (c *Collector) SetEntities(n int) { c.entities.Set(float64(n)) }

var _ prediction.Metrics = (*Collector)(nil)
