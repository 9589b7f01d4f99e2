// Package components defines ECS components for the particle ensemble.
package components

import "gonum.org/v1/gonum/spatial/r3"

// Position is a particle's current centre. Owned by the DEM engine.
type Position struct {
	r3.Vec
}

// Reference is the baseline position displacement is measured against.
// Set is false until the first assignment; after that the value is fixed.
type Reference struct {
	r3.Vec
	Set bool
}
