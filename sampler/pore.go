package sampler

import (
	"errors"
	"fmt"
	"math"
)

// DefaultUnitWeightWater is the unit weight of water in kN/m^3.
const DefaultUnitWeightWater = 9.81

// ErrInvalidParams is returned when pore pressure parameters cannot be used.
var ErrInvalidParams = errors.New("sampler: invalid pore pressure parameters")

// PorePressureParams describes a linear hydrostatic profile.
type PorePressureParams struct {
	SurfaceP0       float64 // Pore pressure at z = 0
	UnitWeightWater float64 // Gradient per unit of z
}

// DefaultPorePressure returns P0 = 0 with the unit weight of water.
func DefaultPorePressure() PorePressureParams {
	return PorePressureParams{UnitWeightWater: DefaultUnitWeightWater}
}

// Validate rejects non-finite values and a negative unit weight.
func (p PorePressureParams) Validate() error {
	if math.IsNaN(p.SurfaceP0) || math.IsInf(p.SurfaceP0, 0) {
		return fmt.Errorf("%w: surface p0 %v", ErrInvalidParams, p.SurfaceP0)
	}
	if math.IsNaN(p.UnitWeightWater) || math.IsInf(p.UnitWeightWater, 0) || p.UnitWeightWater < 0 {
		return fmt.Errorf("%w: unit weight %v", ErrInvalidParams, p.UnitWeightWater)
	}
	return nil
}

// At returns the pore pressure at depth z. No clamping: z above the datum
// gives a pressure below P0.
func (p PorePressureParams) At(z float64) float64 {
	return p.SurfaceP0 + p.UnitWeightWater*z
}

// EffectiveStress returns total stress minus the pore pressure at z.
func (p PorePressureParams) EffectiveStress(total, z float64) float64 {
	return total - p.At(z)
}
