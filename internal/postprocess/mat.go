package postprocess

import (
	"gocv.io/x/gocv"

	"github.com/banshee-data/landcover/internal/raster"
)

// toMat copies a class mask into a single-channel 16-bit signed Mat.
func toMat(l *raster.Labels) gocv.Mat {
	m := gocv.NewMatWithSize(l.Rows, l.Cols, gocv.MatTypeCV16SC1)
	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			m.SetShortAt(y, x, l.Data[y*l.Cols+x])
		}
	}
	return m
}

// fromMat copies a single-channel 16-bit signed Mat back into a mask.
func fromMat(m gocv.Mat) *raster.Labels {
	out := raster.NewLabels(m.Rows(), m.Cols())
	for y := 0; y < out.Rows; y++ {
		for x := 0; x < out.Cols; x++ {
			out.Data[y*out.Cols+x] = m.GetShortAt(y, x)
		}
	}
	return out
}

// paddedMat8 copies 8-bit class indices into a Mat grown by pad pixels on
// every side, filling the border by mirroring (d c b a | a b c d).
func paddedMat8(idx []uint8, rows, cols, pad int) gocv.Mat {
	m := gocv.NewMatWithSize(rows+2*pad, cols+2*pad, gocv.MatTypeCV8UC1)
	for y := -pad; y < rows+pad; y++ {
		yy := reflect(y, rows)
		for x := -pad; x < cols+pad; x++ {
			m.SetUCharAt(y+pad, x+pad, idx[yy*cols+reflect(x, cols)])
		}
	}
	return m
}
