// Package merge reassembles overlapping tile predictions into one
// full-extent prediction by weighted averaging.
package merge

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/landcover/internal/tiling"
)

// ErrCoverage is wrapped by CoverageError.
var ErrCoverage = errors.New("pixel not covered by any tile")

// CoverageError names the first pixel, in row-major order, whose weight sum
// is zero at merge time.
type CoverageError struct {
	Row int
	Col int
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("merge: pixel (%d,%d): %v", e.Row, e.Col, ErrCoverage)
}

func (e *CoverageError) Unwrap() error { return ErrCoverage }

// Accumulator sums kernel-weighted tile predictions over a target extent.
// It is owned by a single goroutine.
type Accumulator struct {
	target tiling.Size
	kernel *mat.Dense
	sums   []*mat.Dense
	weight *mat.Dense
	tmp    *mat.Dense
	tiles  int
}

// NewAccumulator allocates zeroed buffers for channels prediction planes
// over target. kernel is shared and only read.
func NewAccumulator(target tiling.Size, channels int, kernel *mat.Dense) *Accumulator {
	if channels <= 0 {
		panic(fmt.Sprintf("merge: channels must be positive, got %d", channels))
	}
	kr, kc := kernel.Dims()
	a := &Accumulator{
		target: target,
		kernel: kernel,
		sums:   make([]*mat.Dense, channels),
		weight: mat.NewDense(target.Rows, target.Cols, nil),
		tmp:    mat.NewDense(kr, kc, nil),
	}
	for c := range a.sums {
		a.sums[c] = mat.NewDense(target.Rows, target.Cols, nil)
	}
	return a
}

// Channels returns the number of prediction planes.
func (a *Accumulator) Channels() int { return len(a.sums) }

// Tiles returns how many tiles have been integrated.
func (a *Accumulator) Tiles() int { return a.tiles }

// Integrate adds one tile's prediction, one matrix per channel, at spec.
// A placement outside the target or a prediction whose shape differs from
// the kernel is a programming error and panics.
func (a *Accumulator) Integrate(pred []*mat.Dense, spec tiling.Spec) {
	kr, kc := a.kernel.Dims()
	if spec.Height != kr || spec.Width != kc {
		panic(fmt.Sprintf("merge: spec %dx%d does not match kernel %dx%d", spec.Height, spec.Width, kr, kc))
	}
	if spec.Row < 0 || spec.Col < 0 || spec.Row+spec.Height > a.target.Rows || spec.Col+spec.Width > a.target.Cols {
		panic(fmt.Sprintf("merge: spec at (%d,%d) size %dx%d outside %s target",
			spec.Row, spec.Col, spec.Height, spec.Width, a.target))
	}
	if len(pred) != len(a.sums) {
		panic(fmt.Sprintf("merge: got %d prediction channels, want %d", len(pred), len(a.sums)))
	}

	for c, p := range pred {
		pr, pc := p.Dims()
		if pr != kr || pc != kc {
			panic(fmt.Sprintf("merge: prediction %dx%d does not match kernel %dx%d", pr, pc, kr, kc))
		}
		a.tmp.MulElem(p, a.kernel)
		view := a.sums[c].Slice(spec.Row, spec.Row+kr, spec.Col, spec.Col+kc).(*mat.Dense)
		view.Add(view, a.tmp)
	}
	w := a.weight.Slice(spec.Row, spec.Row+kr, spec.Col, spec.Col+kc).(*mat.Dense)
	w.Add(w, a.kernel)
	a.tiles++
}

// IntegrateBatch integrates preds[i] at specs[i].
func (a *Accumulator) IntegrateBatch(preds [][]*mat.Dense, specs []tiling.Spec) {
	if len(preds) != len(specs) {
		panic(fmt.Sprintf("merge: %d predictions for %d specs", len(preds), len(specs)))
	}
	for i := range preds {
		a.Integrate(preds[i], specs[i])
	}
}

// Merge divides each channel's weighted sum by the weight sum. It fails with
// a *CoverageError when any pixel received no weight.
func (a *Accumulator) Merge() ([]*mat.Dense, error) {
	for r := 0; r < a.target.Rows; r++ {
		for c := 0; c < a.target.Cols; c++ {
			if a.weight.At(r, c) == 0 {
				return nil, &CoverageError{Row: r, Col: c}
			}
		}
	}
	out := make([]*mat.Dense, len(a.sums))
	for c, s := range a.sums {
		var m mat.Dense
		m.DivElem(s, a.weight)
		out[c] = &m
	}
	return out, nil
}
