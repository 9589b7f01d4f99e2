package sampler

// DisplacementOutcome says why a displacement sample was or was not taken.
type DisplacementOutcome uint8

const (
	Sampled            DisplacementOutcome = iota
	SkippedEmpty                           // Ensemble has no particles
	SkippedNoParticle                      // Reference index outside the ensemble
	SkippedNoReference                     // Reference position never assigned
)

func (o DisplacementOutcome) String() string {
	switch o {
	case Sampled:
		return "sampled"
	case SkippedEmpty:
		return "empty_ensemble"
	case SkippedNoParticle:
		return "no_reference_particle"
	case SkippedNoReference:
		return "no_reference_position"
	}
	return "unknown"
}

// SampleDisplacement measures the vertical displacement of particle refIdx
// and appends (t, displacement) to series. At most one append per call.
func SampleDisplacement(series *Series, t float64, ens Ensemble, refIdx int) (float64, DisplacementOutcome) {
	n := ens.Len()
	if n == 0 {
		return 0, SkippedEmpty
	}
	if refIdx < 0 || refIdx >= n {
		return 0, SkippedNoParticle
	}

	p := ens.Particle(refIdx)
	if !p.HasRef {
		return 0, SkippedNoReference
	}

	d := p.Pos.Z - p.Ref.Z
	series.Append(t, d)
	return d, Sampled
}
