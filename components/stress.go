package components

// Stress is the total stress reported by the engine.
// Particles without a retrievable stress carry no Stress component.
type Stress struct {
	Value float64
}

// EffectiveStress is derived telemetry: total stress minus pore pressure.
// It never feeds back into the engine. Valid is false until first computed.
type EffectiveStress struct {
	Value float64
	Valid bool
}

// Get returns the annotation as an optional value.
func (e EffectiveStress) Get() (float64, bool) {
	return e.Value, e.Valid
}
