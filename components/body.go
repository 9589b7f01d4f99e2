package components

// Body holds identity and geometry of a particle.
type Body struct {
	ID     uint32  // Engine body id
	Index  int     // Stable ensemble index
	Radius float64 // Sphere radius (0 when the exporter does not provide it)
}
