package sampler

// FieldDisplacement names the displacement column of a Series.
const FieldDisplacement = "displacement"

// Sample is one displacement observation.
type Sample struct {
	Time         float64
	Displacement float64
}

// Point is a (time, value) pair read by plotting code.
type Point struct {
	T float64
	V float64
}

// Series is an append-only displacement time series in insertion order.
// Duplicate timestamps are kept as separate observations.
type Series struct {
	samples []Sample
}

// Append adds one observation.
func (s *Series) Append(t, displacement float64) {
	s.samples = append(s.samples, Sample{Time: t, Displacement: displacement})
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.samples)
}

// Samples returns a copy of all observations.
func (s *Series) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Last returns the most recent observation.
func (s *Series) Last() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Field returns the ordered (time, value) points for the named field.
// Unknown fields return nil.
func (s *Series) Field(name string) []Point {
	if name != FieldDisplacement {
		return nil
	}
	pts := make([]Point, len(s.samples))
	for i, smp := range s.samples {
		pts[i] = Point{T: smp.Time, V: smp.Displacement}
	}
	return pts
}
