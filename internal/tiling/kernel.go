package tiling

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WeightKernel builds the pyramidal blending weights for one tile. Each
// pixel weighs by its distance to the nearest tile edge, plus one, so the
// border ring still carries weight. Values are scaled to a peak of 1.
func WeightKernel(tile Size) *mat.Dense {
	wy := ramp(tile.Rows)
	wx := ramp(tile.Cols)
	data := make([]float64, tile.Rows*tile.Cols)
	for i, a := range wy {
		for j, b := range wx {
			data[i*tile.Cols+j] = min(a, b)
		}
	}
	floats.Scale(1/floats.Max(data), data)
	return mat.NewDense(tile.Rows, tile.Cols, data)
}

func ramp(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = float64(min(i+1, n-i))
	}
	return w
}
