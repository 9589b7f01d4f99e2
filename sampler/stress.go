package sampler

import (
	"math"
	"runtime"
	"sync"
)

// StressValue is the effective stress written to one particle.
type StressValue struct {
	Index int
	ID    uint32
	Value float64
}

// StressReport summarises one effective stress pass.
type StressReport struct {
	Updated int
	Skipped int
	// Values holds one entry per updated particle in index order.
	// The slice is reused by the next Update call.
	Values []StressValue
}

// stressInput captures read-only state for the compute phase.
type stressInput struct {
	index int
	id    uint32
	z     float64
	total float64
	ok    bool
}

// stressOutput captures a computed annotation to apply after the compute phase.
type stressOutput struct {
	value float64
	ok    bool
}

// StressUpdater recomputes effective stress for every particle.
// Computation fans out across goroutines once the ensemble reaches
// parallelThreshold; annotations are always written from the caller.
type StressUpdater struct {
	params            PorePressureParams
	parallelThreshold int
	numWorkers        int

	inputs  []stressInput
	outputs []stressOutput
	values  []StressValue
}

// NewStressUpdater creates an updater. parallelThreshold 0 disables fan-out.
func NewStressUpdater(params PorePressureParams, parallelThreshold int) (*StressUpdater, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &StressUpdater{
		params:            params,
		parallelThreshold: parallelThreshold,
		numWorkers:        runtime.GOMAXPROCS(0),
	}, nil
}

// Params returns the pore pressure profile in use.
func (u *StressUpdater) Params() PorePressureParams {
	return u.params
}

// Update annotates each particle that has a stress value. Particles without
// one are skipped and do not stop the pass.
func (u *StressUpdater) Update(ens Ensemble) StressReport {
	n := ens.Len()

	// Snapshot phase
	u.inputs = u.inputs[:0]
	for i := 0; i < n; i++ {
		p := ens.Particle(i)
		u.inputs = append(u.inputs, stressInput{
			index: i,
			id:    p.ID,
			z:     p.Pos.Z,
			total: p.Stress,
			ok:    p.HasStress && !math.IsNaN(p.Stress),
		})
	}

	// Compute phase
	if cap(u.outputs) < n {
		u.outputs = make([]stressOutput, n)
	}
	u.outputs = u.outputs[:n]
	u.compute()

	// Apply phase
	report := StressReport{}
	u.values = u.values[:0]
	for i, out := range u.outputs {
		if !out.ok {
			report.Skipped++
			continue
		}
		in := u.inputs[i]
		ens.SetEffectiveStress(in.index, out.value)
		u.values = append(u.values, StressValue{Index: in.index, ID: in.id, Value: out.value})
		report.Updated++
	}
	report.Values = u.values
	return report
}

func (u *StressUpdater) compute() {
	n := len(u.inputs)
	if u.parallelThreshold == 0 || n < u.parallelThreshold || u.numWorkers < 2 {
		u.computeRange(0, n)
		return
	}

	chunk := (n + u.numWorkers - 1) / u.numWorkers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			u.computeRange(lo, hi)
		}(start, end)
	}
	wg.Wait()
}

func (u *StressUpdater) computeRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		in := u.inputs[i]
		if !in.ok {
			u.outputs[i] = stressOutput{}
			continue
		}
		u.outputs[i] = stressOutput{value: u.params.EffectiveStress(in.total, in.z), ok: true}
	}
}
