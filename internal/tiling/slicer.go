package tiling

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/landcover/internal/raster"
)

// ErrInvalidGeometry is returned for non-positive sizes or steps larger than
// the tile.
var ErrInvalidGeometry = errors.New("invalid tile geometry")

// Size is a 2D extent in pixels.
type Size struct {
	Rows int
	Cols int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Rows, s.Cols) }

// Spec places one tile in target coordinates.
type Spec struct {
	Row    int
	Col    int
	Height int
	Width  int
}

// Slicer enumerates tile placements over a raster of fixed shape. It is
// immutable after construction and safe for concurrent use.
type Slicer struct {
	shape  Size
	tile   Size
	step   Size
	target Size
	specs  []Spec
	kernel *mat.Dense
}

// NewSlicer computes the placements for a raster of the given shape.
func NewSlicer(shape, tile, step Size) (*Slicer, error) {
	if shape.Rows <= 0 || shape.Cols <= 0 {
		return nil, fmt.Errorf("%w: raster shape %s", ErrInvalidGeometry, shape)
	}
	if tile.Rows <= 0 || tile.Cols <= 0 {
		return nil, fmt.Errorf("%w: tile size %s", ErrInvalidGeometry, tile)
	}
	if step.Rows <= 0 || step.Cols <= 0 || step.Rows > tile.Rows || step.Cols > tile.Cols {
		return nil, fmt.Errorf("%w: step %s for tile %s", ErrInvalidGeometry, step, tile)
	}

	s := &Slicer{
		shape: shape,
		tile:  tile,
		step:  step,
		target: Size{
			Rows: max(shape.Rows, tile.Rows),
			Cols: max(shape.Cols, tile.Cols),
		},
	}

	rows := origins(s.target.Rows, tile.Rows, step.Rows)
	cols := origins(s.target.Cols, tile.Cols, step.Cols)
	s.specs = make([]Spec, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			s.specs = append(s.specs, Spec{Row: r, Col: c, Height: tile.Rows, Width: tile.Cols})
		}
	}
	s.kernel = WeightKernel(tile)
	return s, nil
}

// origins returns the start offsets along one axis of the given length.
// length is at least size.
func origins(length, size, step int) []int {
	var out []int
	for p := 0; ; p += step {
		if p+size >= length {
			last := length - size
			if len(out) == 0 || out[len(out)-1] != last {
				out = append(out, last)
			}
			return out
		}
		out = append(out, p)
	}
}

// Shape returns the original raster shape.
func (s *Slicer) Shape() Size { return s.shape }

// TileSize returns the tile extent.
func (s *Slicer) TileSize() Size { return s.tile }

// TargetShape returns the shape placements are computed over: the raster
// shape, grown on an axis only where the raster is smaller than the tile.
func (s *Slicer) TargetShape() Size { return s.target }

// Specs returns the placements in row-major order. The slice must not be
// modified.
func (s *Slicer) Specs() []Spec { return s.specs }

// Kernel returns the shared weight kernel. It must not be modified.
func (s *Slicer) Kernel() *mat.Dense { return s.kernel }

// NeedsPadding reports whether the target shape differs from the raster.
func (s *Slicer) NeedsPadding() bool { return s.target != s.shape }

// Pad grows r to the target shape, filling new pixels with zero and marking
// them as no-data. r is returned unchanged when no padding is needed.
func (s *Slicer) Pad(r *raster.Raster) *raster.Raster {
	if !s.NeedsPadding() {
		return r
	}
	out := &raster.Raster{
		Rows:       s.target.Rows,
		Cols:       s.target.Cols,
		Bands:      r.Bands,
		Data:       make([]float32, s.target.Rows*s.target.Cols*r.Bands),
		Meta:       r.Meta,
		NoDataMask: make([]bool, s.target.Rows*s.target.Cols),
	}
	for i := range out.NoDataMask {
		out.NoDataMask[i] = true
	}
	for y := 0; y < r.Rows; y++ {
		src := r.Index(y, 0, 0)
		dst := out.Index(y, 0, 0)
		copy(out.Data[dst:dst+r.Cols*r.Bands], r.Data[src:src+r.Cols*r.Bands])
		for x := 0; x < r.Cols; x++ {
			out.NoDataMask[y*out.Cols+x] = r.IsNoData(y, x)
		}
	}
	return out
}

// CropToOriginal removes the padding added by Pad.
func (s *Slicer) CropToOriginal(r *raster.Raster) (*raster.Raster, error) {
	if r.Rows == s.shape.Rows && r.Cols == s.shape.Cols {
		return r, nil
	}
	out, err := raster.CropROI(r, raster.ROI{YMax: s.shape.Rows, XMax: s.shape.Cols})
	if err != nil {
		return nil, err
	}
	if out.NoDataMask != nil {
		hasNoData := false
		for _, v := range out.NoDataMask {
			hasNoData = hasNoData || v
		}
		if !hasNoData {
			out.NoDataMask = nil
		}
	}
	return out, nil
}

// CropDense returns a copy of the original-extent window of a target-shaped
// buffer.
func (s *Slicer) CropDense(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if r == s.shape.Rows && c == s.shape.Cols {
		return m
	}
	return mat.DenseCopyOf(m.Slice(0, s.shape.Rows, 0, s.shape.Cols))
}
