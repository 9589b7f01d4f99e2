// Package engine runs the host iteration loop: it advances the DEM state
// through a Stepper and invokes periodic callbacks at fixed iteration cadences.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/slope/ensemble"
)

// StageStep is the perf stage name of the stepper. Callbacks are timed
// under the name they were registered with.
const StageStep = "step"

// ErrBadPeriod is returned when a callback is registered with period < 1.
var ErrBadPeriod = errors.New("engine: callback period must be at least 1")

// Stepper advances the engine-owned ensemble state to the given iteration.
type Stepper interface {
	Step(iter int) error
}

// Starter is implemented by steppers whose state begins at an iteration
// other than 0, such as a replay of exported frames.
type Starter interface {
	FirstIter() int
}

// Context is the simulation state handed to callbacks.
type Context struct {
	Iter     int
	Time     float64
	Ensemble *ensemble.Ensemble
}

// Callback is invoked at its registered cadence. Returning an error aborts the run.
type Callback func(c *Context) error

type periodic struct {
	name   string
	period int
	fn     Callback
}

// RunError wraps a callback or stepper failure with the iteration it happened at.
type RunError struct {
	Iter  int
	Time  float64
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("engine: %s failed at iter %d (t=%g): %v", e.Stage, e.Iter, e.Time, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Engine owns the iteration counter and simulation time.
type Engine struct {
	dt        float64
	ens       *ensemble.Ensemble
	stepper   Stepper
	iter      int
	callbacks []periodic
	perf      *PerfStats
}

// New creates an engine. A nil stepper leaves the ensemble unchanged between ticks.
// If the stepper is a Starter the iteration counter starts at its first iteration.
func New(dt float64, ens *ensemble.Ensemble, stepper Stepper) *Engine {
	e := &Engine{
		dt:      dt,
		ens:     ens,
		stepper: stepper,
		perf:    NewPerfStats(),
	}
	if s, ok := stepper.(Starter); ok {
		e.iter = s.FirstIter()
	}
	return e
}

// SetStart sets the completed iteration count the next Run continues from.
func (e *Engine) SetStart(iter int) {
	e.iter = iter
}

// Every registers fn to run whenever the iteration count is a multiple of period.
// Callbacks due on the same iteration run in registration order.
func (e *Engine) Every(period int, name string, fn Callback) error {
	if period < 1 {
		return fmt.Errorf("%w: %s has period %d", ErrBadPeriod, name, period)
	}
	e.callbacks = append(e.callbacks, periodic{name: name, period: period, fn: fn})
	return nil
}

// Iter returns the number of completed iterations.
func (e *Engine) Iter() int {
	return e.iter
}

// Time returns the simulation time of the current iteration.
func (e *Engine) Time() float64 {
	return float64(e.iter) * e.dt
}

// Perf returns the per-stage timing tracker.
func (e *Engine) Perf() *PerfStats {
	return e.perf
}

// Run advances the simulation by iterations steps.
func (e *Engine) Run(ctx context.Context, iterations int) error {
	c := &Context{Ensemble: e.ens}

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := e.iter + 1
		if e.stepper != nil {
			start := time.Now()
			if err := e.stepper.Step(next); err != nil {
				return &RunError{Iter: next, Time: float64(next) * e.dt, Stage: StageStep, Err: err}
			}
			e.perf.Record(StageStep, time.Since(start))
		}
		e.iter = next

		c.Iter = e.iter
		c.Time = e.Time()
		for _, cb := range e.callbacks {
			if e.iter%cb.period != 0 {
				continue
			}
			start := time.Now()
			if err := cb.fn(c); err != nil {
				return &RunError{Iter: c.Iter, Time: c.Time, Stage: cb.name, Err: err}
			}
			e.perf.Record(cb.name, time.Since(start))
		}
	}

	slog.Debug("run finished", "iter", e.iter, "time", e.Time())
	return nil
}
