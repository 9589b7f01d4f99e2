package engine

import (
	"log/slog"
	"sort"
	"time"
)

// PerfStats keeps the latest durations of each stage Run times: the stepper
// under StageStep and every callback under its registered name.
type PerfStats struct {
	samples    map[string][]time.Duration
	maxSamples int
}

// NewPerfStats creates a new performance stats tracker.
func NewPerfStats() *PerfStats {
	return &PerfStats{
		samples:    make(map[string][]time.Duration),
		maxSamples: 256,
	}
}

// Record adds a duration sample for the named stage.
func (p *PerfStats) Record(name string, d time.Duration) {
	p.samples[name] = append(p.samples[name], d)
	if len(p.samples[name]) > p.maxSamples {
		p.samples[name] = p.samples[name][1:]
	}
}

// Count returns how many samples are held for the named stage.
func (p *PerfStats) Count(name string) int {
	return len(p.samples[name])
}

// Avg returns the average duration for the named stage.
func (p *PerfStats) Avg(name string) time.Duration {
	s := p.samples[name]
	if len(s) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total / time.Duration(len(s))
}

// SortedNames returns stage names sorted by average duration (descending).
func (p *PerfStats) SortedNames() []string {
	names := make([]string, 0, len(p.samples))
	for name := range p.samples {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return p.Avg(names[i]) > p.Avg(names[j])
	})
	return names
}

// Log writes one line per stage, slowest first.
func (p *PerfStats) Log() {
	for _, name := range p.SortedNames() {
		slog.Info("perf",
			"stage", name,
			"avg", p.Avg(name).Round(time.Microsecond).String(),
			"samples", p.Count(name),
		)
	}
}
