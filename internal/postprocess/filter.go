// Package postprocess smooths merged class masks before they are written.
//
// Filters work on class indices, not probabilities. Neighbourhood filters
// run through OpenCV (gocv) with a square or elliptical structuring element
// centred on each pixel, and treat the mask edges as mirrored
// (d c b a | a b c d | d c b a), matching the boundary handling of
// scipy.ndimage. Fill-holes is a plain border flood.
package postprocess

import (
	"fmt"

	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/raster"
)

// Footprint shapes.
const (
	ShapeSquare  = "square"
	ShapeEllipse = "ellipse"
)

// Filter transforms a class mask. Apply never modifies its input.
type Filter interface {
	Apply(l *raster.Labels) *raster.Labels
	String() string
}

// New returns the filter for a configured method name.
func New(method string, size int, shape string) (Filter, error) {
	switch method {
	case config.MethodNone, "":
		return None{}, nil
	case config.MethodFillHoles:
		return FillHoles{}, nil
	}

	fp, err := newFootprint(size, shape)
	if err != nil {
		return nil, err
	}
	switch method {
	case config.MethodMedian:
		return &Median{fp: fp}, nil
	case config.MethodMorphOpen:
		return &Morphology{op: opOpen, fp: fp}, nil
	case config.MethodMorphClose:
		return &Morphology{op: opClose, fp: fp}, nil
	case config.MethodDilate:
		return &Morphology{op: opDilate, fp: fp}, nil
	}
	return nil, fmt.Errorf("unknown postprocess method %q", method)
}

// None returns a copy of the mask.
type None struct{}

func (None) Apply(l *raster.Labels) *raster.Labels { return l.Clone() }

func (None) String() string { return config.MethodNone }

// reflect maps an index outside [0,n) back inside by mirroring at the
// edges, the edge pixel itself included.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
