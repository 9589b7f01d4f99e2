package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/slope/sampler"
)

// Metrics exposes sampler progress to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	Ticks            prometheus.Counter
	Samples          prometheus.Counter
	SamplesSkipped   *prometheus.CounterVec
	ParticlesUpdated prometheus.Counter
	ParticlesSkipped prometheus.Counter
	Displacement     prometheus.Gauge
	SimTime          prometheus.Gauge
	EffectiveStress  prometheus.Histogram
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slope",
			Name:      "sampler_ticks_total",
			Help:      "Sampler invocations.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slope",
			Name:      "displacement_samples_total",
			Help:      "Displacement samples appended to the series.",
		}),
		SamplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slope",
			Name:      "displacement_samples_skipped_total",
			Help:      "Displacement samples not taken, by reason.",
		}, []string{"reason"}),
		ParticlesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slope",
			Name:      "effective_stress_updates_total",
			Help:      "Particles annotated with effective stress.",
		}),
		ParticlesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slope",
			Name:      "effective_stress_skipped_total",
			Help:      "Particles skipped for lack of a stress value.",
		}),
		Displacement: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slope",
			Name:      "reference_displacement",
			Help:      "Latest vertical displacement of the reference particle.",
		}),
		SimTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slope",
			Name:      "simulation_time_seconds",
			Help:      "Simulation time of the latest tick.",
		}),
		EffectiveStress: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slope",
			Name:      "effective_stress",
			Help:      "Effective stress per particle at each tick.",
			Buckets:   prometheus.LinearBuckets(-500, 100, 16),
		}),
	}

	reg.MustRegister(
		m.Ticks,
		m.Samples,
		m.SamplesSkipped,
		m.ParticlesUpdated,
		m.ParticlesSkipped,
		m.Displacement,
		m.SimTime,
		m.EffectiveStress,
	)
	return m
}

// Observe updates every collector from one tick result.
func (m *Metrics) Observe(res sampler.TickResult) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.SimTime.Set(res.Time)

	if res.Sampled() {
		m.Samples.Inc()
		m.Displacement.Set(res.Displacement)
	} else {
		m.SamplesSkipped.WithLabelValues(res.Outcome.String()).Inc()
	}

	if res.StressUpdated {
		m.ParticlesUpdated.Add(float64(res.Stress.Updated))
		m.ParticlesSkipped.Add(float64(res.Stress.Skipped))
		for _, v := range res.Stress.Values {
			m.EffectiveStress.Observe(v.Value)
		}
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
