package sampler

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

// sliceEnsemble is an in-memory Ensemble for tests.
type sliceEnsemble struct {
	particles []Particle
	effective map[int]float64
	writes    int
}

func newSliceEnsemble(ps ...Particle) *sliceEnsemble {
	for i := range ps {
		ps[i].Index = i
		if ps[i].ID == 0 {
			ps[i].ID = uint32(i + 1)
		}
	}
	return &sliceEnsemble{particles: ps, effective: make(map[int]float64)}
}

func (e *sliceEnsemble) Len() int                { return len(e.particles) }
func (e *sliceEnsemble) Particle(i int) Particle { return e.particles[i] }
func (e *sliceEnsemble) SetEffectiveStress(i int, v float64) {
	e.effective[i] = v
	e.writes++
}

func particle(z, refZ, stress float64) Particle {
	return Particle{
		Pos:       r3.Vec{X: 1, Y: 2, Z: z},
		Ref:       r3.Vec{X: 1, Y: 2, Z: refZ},
		HasRef:    true,
		Stress:    stress,
		HasStress: true,
	}
}

func TestPorePressureScenario(t *testing.T) {
	ens := newSliceEnsemble(particle(5, 2, 100))
	s, err := New(Options{PorePressure: PorePressureParams{SurfaceP0: 0, UnitWeightWater: 9.81}, UpdateStress: true})
	if err != nil {
		t.Fatal(err)
	}

	res := s.Tick(0.5, 100, ens)

	if !res.Sampled() {
		t.Fatalf("outcome = %v, want sampled", res.Outcome)
	}
	if math.Abs(res.Displacement-3.0) > tol {
		t.Errorf("displacement = %v, want 3.0", res.Displacement)
	}
	if pp := s.updater.Params().At(5); math.Abs(pp-49.05) > tol {
		t.Errorf("pore pressure = %v, want 49.05", pp)
	}
	if got := ens.effective[0]; math.Abs(got-50.95) > tol {
		t.Errorf("effective stress = %v, want 50.95", got)
	}
	if res.Stress.Updated != 1 || res.Stress.Skipped != 0 {
		t.Errorf("report = %+v, want 1 updated 0 skipped", res.Stress)
	}
}

func TestDisplacementOneSamplePerCall(t *testing.T) {
	ens := newSliceEnsemble(particle(1.25, 4, 0), particle(9, 9, 0))
	var series Series

	for i := 1; i <= 3; i++ {
		d, outcome := SampleDisplacement(&series, float64(i), ens, 0)
		if outcome != Sampled {
			t.Fatalf("call %d: outcome %v", i, outcome)
		}
		if math.Abs(d-(1.25-4)) > tol {
			t.Errorf("call %d: displacement %v, want %v", i, d, 1.25-4)
		}
		if series.Len() != i {
			t.Errorf("call %d: series length %d, want %d", i, series.Len(), i)
		}
	}
}

func TestDisplacementEmptyEnsemble(t *testing.T) {
	ens := newSliceEnsemble()
	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	before := s.Series().Len()
	res := s.Tick(1, 100, ens)
	after := s.Series().Len()

	if before != after {
		t.Errorf("series grew from %d to %d on empty ensemble", before, after)
	}
	if res.Outcome != SkippedEmpty {
		t.Errorf("outcome = %v, want %v", res.Outcome, SkippedEmpty)
	}
	if res.Stress.Updated != 0 || res.Stress.Skipped != 0 {
		t.Errorf("stress report = %+v, want empty", res.Stress)
	}
}

func TestDisplacementSkips(t *testing.T) {
	noRef := particle(3, 0, 1)
	noRef.HasRef = false

	tests := []struct {
		name   string
		ens    *sliceEnsemble
		refIdx int
		want   DisplacementOutcome
	}{
		{"index past end", newSliceEnsemble(particle(1, 0, 0)), 3, SkippedNoParticle},
		{"reference unset", newSliceEnsemble(noRef), 0, SkippedNoReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var series Series
			_, outcome := SampleDisplacement(&series, 1, tt.ens, tt.refIdx)
			if outcome != tt.want {
				t.Errorf("outcome = %v, want %v", outcome, tt.want)
			}
			if series.Len() != 0 {
				t.Errorf("series length = %d, want 0", series.Len())
			}
		})
	}
}

func TestDuplicateTimestampsKept(t *testing.T) {
	ens := newSliceEnsemble(particle(2, 1, 0))
	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	s.Tick(0.01, 100, ens)
	s.Tick(0.01, 100, ens)

	pts := s.Series().Field(FieldDisplacement)
	if len(pts) != 2 {
		t.Fatalf("points = %d, want 2", len(pts))
	}
	if pts[0] != pts[1] {
		t.Errorf("points differ: %v vs %v", pts[0], pts[1])
	}
	if s.Series().Field("velocity") != nil {
		t.Error("unknown field should return nil")
	}
}

func TestEffectiveStressIdentity(t *testing.T) {
	params := []PorePressureParams{
		{SurfaceP0: 0, UnitWeightWater: 9.81},
		{SurfaceP0: 12.5, UnitWeightWater: 10},
		{SurfaceP0: -3, UnitWeightWater: 0},
	}
	depths := []float64{-20, -1.5, 0, 0.25, 7, 100}
	stresses := []float64{-50, 0, 100, 1e6}

	for _, p := range params {
		for _, z := range depths {
			for _, total := range stresses {
				want := total - (p.SurfaceP0 + p.UnitWeightWater*z)
				if got := p.EffectiveStress(total, z); math.Abs(got-want) > tol {
					t.Errorf("params %+v z=%v total=%v: got %v, want %v", p, z, total, got, want)
				}
			}
		}
	}
}

func TestEffectiveStressKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		params   PorePressureParams
		z, total float64
		wantPore float64
		wantEff  float64
	}{
		{"scenario", PorePressureParams{0, 9.81}, 5, 100, 49.05, 50.95},
		{"above datum", PorePressureParams{12.5, 10}, -20, 0, -187.5, 187.5},
		{"at datum", PorePressureParams{12.5, 10}, 0, 100, 12.5, 87.5},
		{"shallow", PorePressureParams{0, 9.81}, 0.25, -50, 2.4525, -52.4525},
		{"deep", PorePressureParams{0, 9.81}, 100, 1e6, 981, 999019},
		{"dry", PorePressureParams{-3, 0}, 7, 10, -3, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.At(tt.z); math.Abs(got-tt.wantPore) > tol {
				t.Errorf("pore pressure = %v, want %v", got, tt.wantPore)
			}
			if got := tt.params.EffectiveStress(tt.total, tt.z); math.Abs(got-tt.wantEff) > tol {
				t.Errorf("effective stress = %v, want %v", got, tt.wantEff)
			}
		})
	}
}

func TestEffectiveStressSkipsMissing(t *testing.T) {
	missing := particle(1, 0, 0)
	missing.HasStress = false
	undefined := particle(2, 0, math.NaN())

	ens := newSliceEnsemble(particle(0, 0, 10), missing, undefined, particle(-1, 0, 5))
	u, err := NewStressUpdater(DefaultPorePressure(), 0)
	if err != nil {
		t.Fatal(err)
	}

	report := u.Update(ens)

	if report.Updated != 2 || report.Skipped != 2 {
		t.Fatalf("report = %+v, want 2 updated 2 skipped", report)
	}
	if _, ok := ens.effective[1]; ok {
		t.Error("particle without stress was annotated")
	}
	if _, ok := ens.effective[2]; ok {
		t.Error("particle with NaN stress was annotated")
	}
	if got, want := ens.effective[3], 5+9.81; math.Abs(got-want) > tol {
		t.Errorf("effective[3] = %v, want %v", got, want)
	}
	if report.Values[1].Index != 3 {
		t.Errorf("values not in index order: %+v", report.Values)
	}
}

func TestEffectiveStressIdempotent(t *testing.T) {
	ens := newSliceEnsemble(particle(4, 0, 80), particle(-2, 0, 30), particle(0, 0, 1))
	u, err := NewStressUpdater(PorePressureParams{SurfaceP0: 2, UnitWeightWater: 9.81}, 0)
	if err != nil {
		t.Fatal(err)
	}

	u.Update(ens)
	first := make(map[int]float64, len(ens.effective))
	for k, v := range ens.effective {
		first[k] = v
	}
	u.Update(ens)

	for k, v := range first {
		if ens.effective[k] != v {
			t.Errorf("particle %d: %v then %v", k, v, ens.effective[k])
		}
	}
}

func TestEffectiveStressOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ps := make([]Particle, 200)
	for i := range ps {
		ps[i] = particle(rng.Float64()*100-50, 0, rng.Float64()*1000)
		ps[i].ID = uint32(1000 + i)
	}
	params := PorePressureParams{SurfaceP0: 1, UnitWeightWater: 9.81}

	byID := func(ps []Particle) map[uint32]float64 {
		cp := make([]Particle, len(ps))
		copy(cp, ps)
		ens := &sliceEnsemble{particles: cp, effective: make(map[int]float64)}
		for i := range ens.particles {
			ens.particles[i].Index = i
		}
		u, err := NewStressUpdater(params, 0)
		if err != nil {
			t.Fatal(err)
		}
		u.Update(ens)
		out := make(map[uint32]float64, len(cp))
		for i, v := range ens.effective {
			out[cp[i].ID] = v
		}
		return out
	}

	want := byID(ps)
	shuffled := make([]Particle, len(ps))
	copy(shuffled, ps)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := byID(shuffled)

	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for id, v := range want {
		if got[id] != v {
			t.Errorf("particle %d: %v after shuffle, want %v", id, got[id], v)
		}
	}
}

func TestEffectiveStressParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ps := make([]Particle, 1000)
	for i := range ps {
		ps[i] = particle(rng.Float64()*100, 0, rng.Float64()*500)
		if i%17 == 0 {
			ps[i].HasStress = false
		}
	}
	serialEns := newSliceEnsemble(append([]Particle(nil), ps...)...)
	parallelEns := newSliceEnsemble(append([]Particle(nil), ps...)...)

	serial, err := NewStressUpdater(DefaultPorePressure(), 0)
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := NewStressUpdater(DefaultPorePressure(), 8)
	if err != nil {
		t.Fatal(err)
	}

	sr := serial.Update(serialEns)
	pr := parallel.Update(parallelEns)

	if sr.Updated != pr.Updated || sr.Skipped != pr.Skipped {
		t.Fatalf("serial %d/%d vs parallel %d/%d", sr.Updated, sr.Skipped, pr.Updated, pr.Skipped)
	}
	for i, v := range serialEns.effective {
		if parallelEns.effective[i] != v {
			t.Errorf("particle %d: serial %v parallel %v", i, v, parallelEns.effective[i])
		}
	}
}

func TestUpdateNeverTouchesTotals(t *testing.T) {
	ens := newSliceEnsemble(particle(3, 1, 40))
	before := ens.particles[0]

	s, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	s.Tick(1, 1, ens)

	if ens.particles[0] != before {
		t.Errorf("particle mutated: %+v -> %+v", before, ens.particles[0])
	}
	if ens.writes != 1 {
		t.Errorf("annotation writes = %d, want 1", ens.writes)
	}
}

func TestStressDisabled(t *testing.T) {
	ens := newSliceEnsemble(particle(3, 1, 40))
	opts := DefaultOptions()
	opts.UpdateStress = false
	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}

	res := s.Tick(1, 1, ens)

	if res.StressUpdated || ens.writes != 0 {
		t.Errorf("stress pass ran while disabled: %+v writes=%d", res, ens.writes)
	}
	if !res.Sampled() {
		t.Error("displacement should still be sampled")
	}
}

func TestInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params PorePressureParams
	}{
		{"negative unit weight", PorePressureParams{UnitWeightWater: -9.81}},
		{"nan unit weight", PorePressureParams{UnitWeightWater: math.NaN()}},
		{"infinite p0", PorePressureParams{SurfaceP0: math.Inf(-1), UnitWeightWater: 9.81}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{PorePressure: tt.params})
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("New() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}
