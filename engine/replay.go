package engine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/slope/ensemble"
)

// ErrNoFrames is returned when a frames file holds no rows.
var ErrNoFrames = errors.New("engine: no frames")

// OptionalFloat is a CSV number that may be left empty.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (o *OptionalFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*o = OptionalFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse %q: %w", s, err)
	}
	*o = OptionalFloat{Value: v, Valid: !math.IsNaN(v)}
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (o OptionalFloat) MarshalCSV() (string, error) {
	if !o.Valid {
		return "", nil
	}
	return strconv.FormatFloat(o.Value, 'g', -1, 64), nil
}

// FrameRow is one particle's exported state at one iteration.
type FrameRow struct {
	Iter   int           `csv:"iter"`
	ID     uint32        `csv:"id"`
	X      float64       `csv:"x"`
	Y      float64       `csv:"y"`
	Z      float64       `csv:"z"`
	Radius OptionalFloat `csv:"radius"`
	Stress OptionalFloat `csv:"stress"`
}

// Replay applies engine-exported frames to an ensemble. The lowest
// iteration in the file is the initial state.
type Replay struct {
	frames map[int][]FrameRow
	iters  []int
	ens    *ensemble.Ensemble
}

// LoadReplay reads frames from a CSV file.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	defer f.Close()
	return ReadReplay(f)
}

// ReadReplay reads frames from CSV with an iter,id,x,y,z[,radius][,stress] header.
func ReadReplay(r io.Reader) (*Replay, error) {
	var rows []FrameRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse frames: %w", err)
	}
	return NewReplay(rows)
}

// NewReplay groups rows by iteration.
func NewReplay(rows []FrameRow) (*Replay, error) {
	if len(rows) == 0 {
		return nil, ErrNoFrames
	}

	r := &Replay{frames: make(map[int][]FrameRow)}
	for _, row := range rows {
		if _, ok := r.frames[row.Iter]; !ok {
			r.iters = append(r.iters, row.Iter)
		}
		r.frames[row.Iter] = append(r.frames[row.Iter], row)
	}
	sort.Ints(r.iters)
	return r, nil
}

// FirstIter returns the iteration of the initial frame.
func (r *Replay) FirstIter() int {
	return r.iters[0]
}

// LastIter returns the iteration of the final frame.
func (r *Replay) LastIter() int {
	return r.iters[len(r.iters)-1]
}

// Frames returns the number of distinct iterations.
func (r *Replay) Frames() int {
	return len(r.iters)
}

// Seed adds the particles of the initial frame to ens and captures their
// reference positions. Later Step calls update ens.
func (r *Replay) Seed(ens *ensemble.Ensemble) error {
	for _, row := range r.frames[r.FirstIter()] {
		_, err := ens.Add(ensemble.Spawn{
			ID:        row.ID,
			Pos:       r3.Vec{X: row.X, Y: row.Y, Z: row.Z},
			Radius:    row.Radius.Value,
			Stress:    row.Stress.Value,
			HasStress: row.Stress.Valid,
		})
		if err != nil {
			return fmt.Errorf("seed frame %d: %w", r.FirstIter(), err)
		}
	}
	ens.CaptureReferences()
	r.ens = ens
	return nil
}

// Step applies the frame for iter if there is one. The initial frame is
// not re-applied.
func (r *Replay) Step(iter int) error {
	if r.ens == nil {
		return errors.New("engine: replay not seeded")
	}
	if iter == r.FirstIter() {
		return nil
	}
	rows, ok := r.frames[iter]
	if !ok {
		return nil
	}

	for _, row := range rows {
		idx, ok := r.ens.Index(row.ID)
		if !ok {
			return fmt.Errorf("frame %d: %w: id %d", iter, ensemble.ErrUnknownParticle, row.ID)
		}
		if err := r.ens.SetPosition(idx, r3.Vec{X: row.X, Y: row.Y, Z: row.Z}); err != nil {
			return err
		}
		var err error
		if row.Stress.Valid {
			err = r.ens.SetStress(idx, row.Stress.Value)
		} else {
			err = r.ens.ClearStress(idx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Stepper = (*Replay)(nil)
