package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/slope/sampler"
)

// ResultStore persists tick results outside the CSV files.
type ResultStore interface {
	WriteTick(res sampler.TickResult) error
}

// Recorder fans one tick result out to every configured sink.
// Nil sinks are skipped.
type Recorder struct {
	out     *OutputManager
	metrics *Metrics
	store   ResultStore

	logStats   bool
	statsEvery int
	ticks      int
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Output     *OutputManager
	Metrics    *Metrics
	Store      ResultStore
	LogStats   bool
	StatsEvery int // Log every Nth tick when LogStats is set (0 = every tick)
}

// NewRecorder creates a recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	every := opts.StatsEvery
	if every < 1 {
		every = 1
	}
	return &Recorder{
		out:        opts.Output,
		metrics:    opts.Metrics,
		store:      opts.Store,
		logStats:   opts.LogStats,
		statsEvery: every,
	}
}

// Record writes one tick result. Errors come only from output I/O.
func (r *Recorder) Record(res sampler.TickResult) error {
	r.ticks++
	r.metrics.Observe(res)

	if res.Sampled() {
		rec := DisplacementRecord{Iter: res.Iter, Time: res.Time, Displacement: res.Displacement}
		if err := r.out.WriteDisplacement(rec); err != nil {
			return err
		}
	}

	var stats StressStats
	if res.StressUpdated {
		stats = ComputeStressStats(res)
		if err := r.out.WriteStress(stats); err != nil {
			return err
		}
	}

	if r.store != nil {
		if err := r.store.WriteTick(res); err != nil {
			return fmt.Errorf("store tick %d: %w", res.Iter, err)
		}
	}

	if r.logStats && r.ticks%r.statsEvery == 0 {
		slog.Info("tick",
			"iter", res.Iter,
			"t", res.Time,
			"particles", res.Particles,
			"outcome", res.Outcome.String(),
			"displacement", res.Displacement,
		)
		if res.StressUpdated {
			stats.LogStats()
		}
	}
	return nil
}

// Ticks returns how many results were recorded.
func (r *Recorder) Ticks() int {
	return r.ticks
}
