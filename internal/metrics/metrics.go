// Package metrics exposes lattice step statistics as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/nvandessel/resonet/internal/lattice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "lattice"

// Mode label values.
const (
	ModeLearning  = "learning"
	ModeInference = "inference"
)

// Recorder records step statistics. It implements lattice.Observer.
type Recorder struct {
	StepsTotal    *prometheus.CounterVec
	RebirthsTotal *prometheus.CounterVec
	StepLatency   prometheus.Histogram
	DrivenNodes   prometheus.Gauge
	MeanAmplitude prometheus.Gauge
	MeanFatigue   prometheus.Gauge
	MeanForce     prometheus.Gauge
}

var _ lattice.Observer = (*Recorder)(nil)

// New registers the lattice metrics on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "steps_total",
			Help:      "Total completed lattice steps",
		}, []string{"mode"}),

		RebirthsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rebirths_total",
			Help:      "Total node rebirths",
		}, []string{"mode"}),

		StepLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_duration_seconds",
			Help:      "Lattice step processing duration",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DrivenNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "driven_nodes",
			Help:      "Nodes receiving an external signal in the last step",
		}),

		MeanAmplitude: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mean_amplitude",
			Help:      "Mean node amplitude after the last step",
		}),

		MeanFatigue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mean_fatigue",
			Help:      "Mean node fatigue after the last step",
		}),

		MeanForce: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mean_abs_force",
			Help:      "Mean absolute adaptive force in the last step",
		}),
	}
}

// ObserveStep records one step.
func (r *Recorder) ObserveStep(s lattice.StepStats) {
	mode := ModeInference
	if s.Learning {
		mode = ModeLearning
	}
	r.StepsTotal.WithLabelValues(mode).Inc()
	r.RebirthsTotal.WithLabelValues(mode).Add(float64(s.Rebirths))
	r.StepLatency.Observe(s.Duration.Seconds())
	r.DrivenNodes.Set(float64(s.Driven))
	r.MeanAmplitude.Set(s.MeanAmplitude)
	r.MeanFatigue.Set(s.MeanFatigue)
	r.MeanForce.Set(s.MeanForce)
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
