package main

import (
	"fmt"
	"math"
	"os"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/slope/ensemble"
	"github.com/pthm-cable/slope/sampler"
)

// Observation is one measured effective stress at a particle.
type Observation struct {
	ID       uint32  `csv:"id"`
	Z        float64 `csv:"z"`
	Stress   float64 `csv:"stress"`
	Observed float64 `csv:"observed"`
}

// LoadObservations reads id,z,stress,observed rows.
func LoadObservations(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observations: %w", err)
	}
	defer f.Close()

	var obs []Observation
	if err := gocsv.UnmarshalFile(f, &obs); err != nil {
		return nil, fmt.Errorf("parse observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations in %s", path)
	}
	return obs, nil
}

// FitnessEvaluator scores pore pressure parameters by the RMS misfit between
// computed and observed effective stress.
type FitnessEvaluator struct {
	ens      *ensemble.Ensemble
	observed []float64

	parallelThreshold int
}

// NewFitnessEvaluator builds the measurement ensemble once.
func NewFitnessEvaluator(obs []Observation, parallelThreshold int) (*FitnessEvaluator, error) {
	ens := ensemble.New(len(obs))
	observed := make([]float64, len(obs))
	for i, o := range obs {
		if _, err := ens.Add(ensemble.Spawn{
			ID:        o.ID,
			Pos:       r3.Vec{Z: o.Z},
			Stress:    o.Stress,
			HasStress: true,
		}); err != nil {
			return nil, err
		}
		observed[i] = o.Observed
	}
	return &FitnessEvaluator{ens: ens, observed: observed, parallelThreshold: parallelThreshold}, nil
}

// Evaluate returns the RMS misfit for (surface_p0, unit_weight_water).
// Invalid parameters score +Inf.
func (fe *FitnessEvaluator) Evaluate(raw []float64) float64 {
	params := sampler.PorePressureParams{SurfaceP0: raw[0], UnitWeightWater: raw[1]}
	u, err := sampler.NewStressUpdater(params, fe.parallelThreshold)
	if err != nil {
		return math.Inf(1)
	}
	u.Update(fe.ens)

	var sum float64
	for i, want := range fe.observed {
		got, _ := fe.ens.EffectiveStress(i)
		d := got - want
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(fe.observed)))
}
