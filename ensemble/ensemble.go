// Package ensemble stores the DEM particle ensemble in an ECS world.
//
// Positions and total stress belong to the engine and change only through
// SetPosition, SetStress and ClearStress. The sampler reads particles by
// stable index and writes only the effective stress annotation.
package ensemble

import (
	"errors"
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/slope/components"
	"github.com/pthm-cable/slope/sampler"
)

var (
	// ErrReferenceFixed is returned when a reference position is assigned twice.
	ErrReferenceFixed = errors.New("ensemble: reference position already set")

	// ErrUnknownParticle is returned for an id or index not in the ensemble.
	ErrUnknownParticle = errors.New("ensemble: unknown particle")

	// ErrDuplicateParticle is returned when an id is spawned twice.
	ErrDuplicateParticle = errors.New("ensemble: duplicate particle id")
)

// Spawn describes a particle handed over by the engine at scene setup.
type Spawn struct {
	ID        uint32
	Pos       r3.Vec
	Radius    float64
	Stress    float64
	HasStress bool
}

// Ensemble is an ordered particle collection backed by an ark world.
type Ensemble struct {
	world *ecs.World

	// Entity mapper for the components every particle carries
	particleMapper *ecs.Map4[
		components.Body,
		components.Position,
		components.Reference,
		components.EffectiveStress,
	]

	// Individual component mappers for lookups
	posMap       *ecs.Map1[components.Position]
	refMap       *ecs.Map1[components.Reference]
	effectiveMap *ecs.Map1[components.EffectiveStress]
	stressMap    *ecs.Map[components.Stress]

	stressedFilter *ecs.Filter2[components.Body, components.Stress]

	// Stable index order
	entities []ecs.Entity
	byID     map[uint32]int
}

// New creates an empty ensemble with room for capacity particles.
func New(capacity int) *Ensemble {
	world := ecs.NewWorld()

	return &Ensemble{
		world: world,
		particleMapper: ecs.NewMap4[
			components.Body,
			components.Position,
			components.Reference,
			components.EffectiveStress,
		](world),
		posMap:         ecs.NewMap1[components.Position](world),
		refMap:         ecs.NewMap1[components.Reference](world),
		effectiveMap:   ecs.NewMap1[components.EffectiveStress](world),
		stressMap:      ecs.NewMap[components.Stress](world),
		stressedFilter: ecs.NewFilter2[components.Body, components.Stress](world),
		entities:       make([]ecs.Entity, 0, capacity),
		byID:           make(map[uint32]int, capacity),
	}
}

// Add appends a particle and returns its stable index.
func (e *Ensemble) Add(s Spawn) (int, error) {
	if _, ok := e.byID[s.ID]; ok {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateParticle, s.ID)
	}

	idx := len(e.entities)
	body := components.Body{ID: s.ID, Index: idx, Radius: s.Radius}
	pos := components.Position{Vec: s.Pos}
	ref := components.Reference{}
	eff := components.EffectiveStress{}

	entity := e.particleMapper.NewEntity(&body, &pos, &ref, &eff)
	if s.HasStress {
		e.stressMap.Add(entity, &components.Stress{Value: s.Stress})
	}

	e.entities = append(e.entities, entity)
	e.byID[s.ID] = idx
	return idx, nil
}

// Len returns the number of particles.
func (e *Ensemble) Len() int {
	return len(e.entities)
}

// Index returns the stable index of a particle id.
func (e *Ensemble) Index(id uint32) (int, bool) {
	idx, ok := e.byID[id]
	return idx, ok
}

// Particle returns a read-only view of particle i. Panics if i is out of range.
func (e *Ensemble) Particle(i int) sampler.Particle {
	entity := e.entities[i]
	body, pos, ref, _ := e.particleMapper.Get(entity)

	p := sampler.Particle{
		Index:  i,
		ID:     body.ID,
		Pos:    pos.Vec,
		Ref:    ref.Vec,
		HasRef: ref.Set,
	}
	if e.stressMap.Has(entity) {
		p.Stress = e.stressMap.Get(entity).Value
		p.HasStress = true
	}
	return p
}

// SetEffectiveStress annotates particle i.
func (e *Ensemble) SetEffectiveStress(i int, v float64) {
	eff := e.effectiveMap.Get(e.entities[i])
	eff.Value = v
	eff.Valid = true
}

// EffectiveStress returns the annotation of particle i, if computed.
func (e *Ensemble) EffectiveStress(i int) (float64, bool) {
	if i < 0 || i >= len(e.entities) {
		return 0, false
	}
	return e.effectiveMap.Get(e.entities[i]).Get()
}

// SetReference fixes the reference position of particle i.
func (e *Ensemble) SetReference(i int, v r3.Vec) error {
	if i < 0 || i >= len(e.entities) {
		return fmt.Errorf("%w: index %d", ErrUnknownParticle, i)
	}
	ref := e.refMap.Get(e.entities[i])
	if ref.Set {
		return fmt.Errorf("%w: index %d", ErrReferenceFixed, i)
	}
	ref.Vec = v
	ref.Set = true
	return nil
}

// CaptureReferences sets the reference of every particle that has none to
// its current position. Returns how many references were set.
func (e *Ensemble) CaptureReferences() int {
	n := 0
	for _, entity := range e.entities {
		ref := e.refMap.Get(entity)
		if ref.Set {
			continue
		}
		ref.Vec = e.posMap.Get(entity).Vec
		ref.Set = true
		n++
	}
	return n
}

// SetPosition moves particle i. Engine side only.
func (e *Ensemble) SetPosition(i int, v r3.Vec) error {
	if i < 0 || i >= len(e.entities) {
		return fmt.Errorf("%w: index %d", ErrUnknownParticle, i)
	}
	e.posMap.Get(e.entities[i]).Vec = v
	return nil
}

// SetStress records the total stress of particle i. Engine side only.
func (e *Ensemble) SetStress(i int, v float64) error {
	if i < 0 || i >= len(e.entities) {
		return fmt.Errorf("%w: index %d", ErrUnknownParticle, i)
	}
	entity := e.entities[i]
	if e.stressMap.Has(entity) {
		e.stressMap.Get(entity).Value = v
		return nil
	}
	e.stressMap.Add(entity, &components.Stress{Value: v})
	return nil
}

// ClearStress marks the stress of particle i as not retrievable.
func (e *Ensemble) ClearStress(i int) error {
	if i < 0 || i >= len(e.entities) {
		return fmt.Errorf("%w: index %d", ErrUnknownParticle, i)
	}
	entity := e.entities[i]
	if e.stressMap.Has(entity) {
		e.stressMap.Remove(entity)
	}
	return nil
}

// Stressed counts particles that currently carry a stress value.
func (e *Ensemble) Stressed() int {
	n := 0
	query := e.stressedFilter.Query()
	for query.Next() {
		n++
	}
	return n
}

var _ sampler.Ensemble = (*Ensemble)(nil)
