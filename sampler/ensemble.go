package sampler

import "gonum.org/v1/gonum/spatial/r3"

// Particle is a read-only view of one ensemble entry.
type Particle struct {
	Index     int
	ID        uint32
	Pos       r3.Vec
	Ref       r3.Vec
	HasRef    bool
	Stress    float64
	HasStress bool
}

// Ensemble is the engine-owned particle collection the sampler reads.
// The sampler writes only the effective stress annotation.
type Ensemble interface {
	Len() int
	Particle(i int) Particle
	SetEffectiveStress(i int, v float64)
}
