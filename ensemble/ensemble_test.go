package ensemble

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/slope/sampler"
)

func seed(t *testing.T, spawns ...Spawn) *Ensemble {
	t.Helper()
	e := New(len(spawns))
	for _, s := range spawns {
		if _, err := e.Add(s); err != nil {
			t.Fatalf("Add(%d): %v", s.ID, err)
		}
	}
	return e
}

func TestAddKeepsIndexOrder(t *testing.T) {
	e := seed(t,
		Spawn{ID: 30, Pos: r3.Vec{Z: 3}},
		Spawn{ID: 10, Pos: r3.Vec{Z: 1}, Stress: 5, HasStress: true},
		Spawn{ID: 20, Pos: r3.Vec{Z: 2}},
	)

	if e.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", e.Len())
	}
	wantIDs := []uint32{30, 10, 20}
	for i, id := range wantIDs {
		p := e.Particle(i)
		if p.ID != id || p.Index != i {
			t.Errorf("particle %d = id %d index %d, want id %d", i, p.ID, p.Index, id)
		}
		if idx, ok := e.Index(id); !ok || idx != i {
			t.Errorf("Index(%d) = %d, %v", id, idx, ok)
		}
	}

	// Adding and removing the optional stress component must not reorder
	if err := e.SetStress(0, 9); err != nil {
		t.Fatal(err)
	}
	if err := e.ClearStress(1); err != nil {
		t.Fatal(err)
	}
	for i, id := range wantIDs {
		if p := e.Particle(i); p.ID != id {
			t.Errorf("after stress changes particle %d = id %d, want %d", i, p.ID, id)
		}
	}
}

func TestDuplicateID(t *testing.T) {
	e := seed(t, Spawn{ID: 1})
	if _, err := e.Add(Spawn{ID: 1}); !errors.Is(err, ErrDuplicateParticle) {
		t.Errorf("Add duplicate = %v, want ErrDuplicateParticle", err)
	}
}

func TestReferenceImmutable(t *testing.T) {
	e := seed(t, Spawn{ID: 1, Pos: r3.Vec{X: 1, Y: 1, Z: 4}}, Spawn{ID: 2, Pos: r3.Vec{Z: 7}})

	if err := e.SetReference(1, r3.Vec{Z: 6}); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	if n := e.CaptureReferences(); n != 1 {
		t.Errorf("CaptureReferences() = %d, want 1", n)
	}
	if err := e.SetReference(0, r3.Vec{Z: 100}); !errors.Is(err, ErrReferenceFixed) {
		t.Errorf("second SetReference = %v, want ErrReferenceFixed", err)
	}

	// Moving the particle leaves the reference alone
	if err := e.SetPosition(0, r3.Vec{X: 1, Y: 1, Z: 1}); err != nil {
		t.Fatal(err)
	}
	p := e.Particle(0)
	if !p.HasRef || p.Ref.Z != 4 {
		t.Errorf("reference = %v (set %v), want z=4", p.Ref, p.HasRef)
	}
	if p.Pos.Z != 1 {
		t.Errorf("position z = %v, want 1", p.Pos.Z)
	}
	if q := e.Particle(1); q.Ref.Z != 6 {
		t.Errorf("explicit reference overwritten: %v", q.Ref)
	}
}

func TestStressOptional(t *testing.T) {
	e := seed(t, Spawn{ID: 1}, Spawn{ID: 2, Stress: 12, HasStress: true})

	if e.Particle(0).HasStress {
		t.Error("particle 0 should have no stress")
	}
	if p := e.Particle(1); !p.HasStress || p.Stress != 12 {
		t.Errorf("particle 1 stress = %v (%v), want 12", p.Stress, p.HasStress)
	}
	if e.Stressed() != 1 {
		t.Errorf("Stressed() = %d, want 1", e.Stressed())
	}

	if err := e.SetStress(0, 3); err != nil {
		t.Fatal(err)
	}
	if err := e.ClearStress(1); err != nil {
		t.Fatal(err)
	}
	if p := e.Particle(0); !p.HasStress || p.Stress != 3 {
		t.Errorf("particle 0 stress = %v (%v), want 3", p.Stress, p.HasStress)
	}
	if e.Particle(1).HasStress {
		t.Error("particle 1 stress should be cleared")
	}
}

func TestUnknownIndex(t *testing.T) {
	e := seed(t, Spawn{ID: 1})

	if err := e.SetPosition(5, r3.Vec{}); !errors.Is(err, ErrUnknownParticle) {
		t.Errorf("SetPosition = %v", err)
	}
	if err := e.SetStress(-1, 0); !errors.Is(err, ErrUnknownParticle) {
		t.Errorf("SetStress = %v", err)
	}
	if err := e.SetReference(1, r3.Vec{}); !errors.Is(err, ErrUnknownParticle) {
		t.Errorf("SetReference = %v", err)
	}
	if _, ok := e.EffectiveStress(9); ok {
		t.Error("EffectiveStress out of range should be absent")
	}
}

func TestSamplerAgainstEnsemble(t *testing.T) {
	e := seed(t,
		Spawn{ID: 1, Pos: r3.Vec{X: 10, Y: 10, Z: 2}, Stress: 100, HasStress: true},
		Spawn{ID: 2, Pos: r3.Vec{Z: 1}},
	)
	e.CaptureReferences()
	if err := e.SetPosition(0, r3.Vec{X: 10, Y: 10, Z: 5}); err != nil {
		t.Fatal(err)
	}

	s, err := sampler.New(sampler.Options{
		PorePressure: sampler.PorePressureParams{UnitWeightWater: 9.81},
		UpdateStress: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	res := s.Tick(0.01, 100, e)

	if math.Abs(res.Displacement-3) > 1e-9 {
		t.Errorf("displacement = %v, want 3", res.Displacement)
	}
	got, ok := e.EffectiveStress(0)
	if !ok || math.Abs(got-50.95) > 1e-9 {
		t.Errorf("effective stress = %v (%v), want 50.95", got, ok)
	}
	if _, ok := e.EffectiveStress(1); ok {
		t.Error("particle without stress should have no effective stress")
	}
	if res.Stress.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Stress.Skipped)
	}

	// Annotation is telemetry only
	p := e.Particle(0)
	if p.Stress != 100 || p.Pos.Z != 5 {
		t.Errorf("engine state changed: %+v", p)
	}
}
