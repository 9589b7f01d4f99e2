// Package sampler implements the periodic displacement sample and the
// pore-pressure-adjusted effective stress update run against a particle
// ensemble between engine integration steps.
package sampler

import "log/slog"

// Options configures a Sampler.
type Options struct {
	ReferenceParticle int
	PorePressure      PorePressureParams
	// UpdateStress enables the effective stress pass on every tick.
	UpdateStress      bool
	ParallelThreshold int
}

// DefaultOptions tracks particle 0 and updates effective stress with the
// default hydrostatic profile.
func DefaultOptions() Options {
	return Options{
		PorePressure:      DefaultPorePressure(),
		UpdateStress:      true,
		ParallelThreshold: 64,
	}
}

// TickResult reports what one invocation did.
type TickResult struct {
	Time         float64
	Iter         int
	Particles    int
	Outcome      DisplacementOutcome
	Displacement float64

	StressUpdated bool
	Stress        StressReport
}

// Sampled reports whether a displacement sample was appended.
func (r TickResult) Sampled() bool {
	return r.Outcome == Sampled
}

// Sampler owns the displacement series. Apart from the series it keeps no
// state between ticks.
type Sampler struct {
	opts    Options
	series  Series
	updater *StressUpdater
}

// New validates opts and returns a Sampler.
func New(opts Options) (*Sampler, error) {
	u, err := NewStressUpdater(opts.PorePressure, opts.ParallelThreshold)
	if err != nil {
		return nil, err
	}
	if opts.ReferenceParticle < 0 {
		opts.ReferenceParticle = 0
	}
	return &Sampler{opts: opts, updater: u}, nil
}

// Series returns the accumulated displacement series.
func (s *Sampler) Series() *Series {
	return &s.series
}

// Options returns the options the sampler was built with.
func (s *Sampler) Options() Options {
	return s.opts
}

// Tick runs the displacement sample and, when enabled, the effective stress
// update. It never fails: skipped work is logged and shows up in the result.
func (s *Sampler) Tick(t float64, iter int, ens Ensemble) TickResult {
	res := TickResult{Time: t, Iter: iter, Particles: ens.Len()}

	res.Displacement, res.Outcome = SampleDisplacement(&s.series, t, ens, s.opts.ReferenceParticle)
	switch res.Outcome {
	case Sampled:
	case SkippedEmpty:
		slog.Debug("displacement sample skipped", "reason", res.Outcome.String(), "time", t, "iter", iter)
	default:
		slog.Warn("displacement sample skipped",
			"reason", res.Outcome.String(),
			"reference", s.opts.ReferenceParticle,
			"particles", res.Particles,
			"time", t,
			"iter", iter,
		)
	}

	if s.opts.UpdateStress {
		res.StressUpdated = true
		res.Stress = s.updater.Update(ens)
		if res.Stress.Skipped > 0 {
			slog.Warn("effective stress skipped for particles without stress",
				"skipped", res.Stress.Skipped,
				"updated", res.Stress.Updated,
				"time", t,
				"iter", iter,
			)
		}
	}

	return res
}
