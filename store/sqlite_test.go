package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/slope/sampler"
)

func tick(iter int, d float64, values ...sampler.StressValue) sampler.TickResult {
	return sampler.TickResult{
		Time:          float64(iter) * 0.01,
		Iter:          iter,
		Particles:     len(values),
		Outcome:       sampler.Sampled,
		Displacement:  d,
		StressUpdated: true,
		Stress:        sampler.StressReport{Updated: len(values), Values: values},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "run", "slope.db"), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ticks := []sampler.TickResult{
		tick(100, 0.5, sampler.StressValue{Index: 0, ID: 7, Value: 10}, sampler.StressValue{Index: 1, ID: 8, Value: -2}),
		tick(200, 0.25, sampler.StressValue{Index: 0, ID: 7, Value: 12}),
		tick(200, 0.25),
	}
	for _, res := range ticks {
		if err := s.WriteTick(res); err != nil {
			t.Fatalf("WriteTick(%d): %v", res.Iter, err)
		}
	}

	ctx := context.Background()
	series, err := s.Displacement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 3 {
		t.Fatalf("displacement rows = %d, want 3 (duplicates kept)", len(series))
	}
	if series[0].Displacement != 0.5 || series[1].Time != 2 {
		t.Errorf("series = %+v", series)
	}

	hist, err := s.EffectiveStress(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].V != 10 || hist[1].V != 12 {
		t.Errorf("particle 7 history = %+v", hist)
	}
}

func TestStoreSkipsParticlesWhenDisabled(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slope.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.WriteTick(tick(100, 1, sampler.StressValue{ID: 3, Value: 4})); err != nil {
		t.Fatal(err)
	}

	hist, err := s.EffectiveStress(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Errorf("particle rows written while disabled: %+v", hist)
	}
}

func TestStoreSkippedSample(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slope.db"), true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.WriteTick(sampler.TickResult{Iter: 1, Outcome: sampler.SkippedEmpty}); err != nil {
		t.Fatal(err)
	}
	series, err := s.Displacement(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 0 {
		t.Errorf("empty tick stored %d rows", len(series))
	}
}
