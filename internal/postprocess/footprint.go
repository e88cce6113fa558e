package postprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// footprint is a neighbourhood of size x size pixels. lo and hi are the
// inclusive offsets of the window around the centre pixel, which sits at
// the OpenCV default anchor (size/2, size/2).
type footprint struct {
	size    int
	shape   string
	lo, hi  int
	offsets [][2]int
}

func newFootprint(size int, shape string) (footprint, error) {
	if size <= 0 {
		return footprint{}, fmt.Errorf("postprocess kernel size must be positive, got %d", size)
	}
	if shape == "" {
		shape = ShapeSquare
	}
	switch shape {
	case ShapeSquare, ShapeEllipse:
	default:
		return footprint{}, fmt.Errorf("unknown kernel shape %q", shape)
	}
	fp := footprint{size: size, shape: shape, lo: -(size / 2)}
	fp.hi = fp.lo + size - 1

	el := fp.element()
	defer el.Close()
	for dy := fp.lo; dy <= fp.hi; dy++ {
		for dx := fp.lo; dx <= fp.hi; dx++ {
			if el.GetUCharAt(dy-fp.lo, dx-fp.lo) != 0 {
				fp.offsets = append(fp.offsets, [2]int{dy, dx})
			}
		}
	}
	return fp, nil
}

// element returns the OpenCV structuring element for the footprint. The
// caller closes it.
func (fp footprint) element() gocv.Mat {
	shape := gocv.MorphRect
	if fp.shape == ShapeEllipse {
		shape = gocv.MorphEllipse
	}
	return gocv.GetStructuringElement(shape, image.Pt(fp.size, fp.size))
}

func (fp footprint) square() bool { return fp.shape == ShapeSquare }

func (fp footprint) String() string { return fmt.Sprintf("%d %s", fp.size, fp.shape) }
