// Package telemetry records sampler results: CSV output, a config snapshot,
// structured log lines and Prometheus metrics.
package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/slope/sampler"
)

// StressStats summarises one effective stress pass.
type StressStats struct {
	Iter      int     `csv:"iter"`
	Time      float64 `csv:"t"`
	Particles int     `csv:"particles"`
	Updated   int     `csv:"updated"`
	Skipped   int     `csv:"skipped"`

	// Effective stress distribution over updated particles
	Mean float64 `csv:"eff_mean"`
	Std  float64 `csv:"eff_std"`
	Min  float64 `csv:"eff_min"`
	P10  float64 `csv:"eff_p10"`
	P50  float64 `csv:"eff_p50"`
	P90  float64 `csv:"eff_p90"`
	Max  float64 `csv:"eff_max"`

	// Fraction of updated particles with negative effective stress
	TensileFraction float64 `csv:"tensile_fraction"`
}

// DisplacementRecord is one row of displacement.csv.
type DisplacementRecord struct {
	Iter         int     `csv:"iter"`
	Time         float64 `csv:"t"`
	Displacement float64 `csv:"displacement"`
}

// Percentile returns the p-th quantile of a sorted slice, interpolating the
// empirical CDF linearly. p is clamped to [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(min(max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// ComputeStressStats builds the summary for one tick result.
func ComputeStressStats(res sampler.TickResult) StressStats {
	s := StressStats{
		Iter:      res.Iter,
		Time:      res.Time,
		Particles: res.Particles,
		Updated:   res.Stress.Updated,
		Skipped:   res.Stress.Skipped,
	}

	n := len(res.Stress.Values)
	if n == 0 {
		return s
	}

	values := make([]float64, n)
	tensile := 0
	for i, v := range res.Stress.Values {
		values[i] = v.Value
		if v.Value < 0 {
			tensile++
		}
	}
	sort.Float64s(values)

	s.Mean = stat.Mean(values, nil)
	if n > 1 {
		s.Std = math.Sqrt(stat.PopVariance(values, nil))
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.P10 = Percentile(values, 0.10)
	s.P50 = Percentile(values, 0.50)
	s.P90 = Percentile(values, 0.90)
	s.TensileFraction = float64(tensile) / float64(n)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s StressStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iter", s.Iter),
		slog.Float64("t", s.Time),
		slog.Int("particles", s.Particles),
		slog.Int("updated", s.Updated),
		slog.Int("skipped", s.Skipped),
		slog.Float64("eff_mean", s.Mean),
		slog.Float64("eff_std", s.Std),
		slog.Float64("eff_min", s.Min),
		slog.Float64("eff_p10", s.P10),
		slog.Float64("eff_p50", s.P50),
		slog.Float64("eff_p90", s.P90),
		slog.Float64("eff_max", s.Max),
		slog.Float64("tensile_fraction", s.TensileFraction),
	)
}

// LogStats logs the stats using slog.
func (s StressStats) LogStats() {
	slog.Info("stress", "stats", s)
}
