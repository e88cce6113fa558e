package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Softmax normalises logits over the channel axis.
func Softmax(logits *Tensor) *Tensor {
	out := NewTensor(logits.N, logits.C, logits.H, logits.W)
	plane := logits.Pixels()
	for n := 0; n < logits.N; n++ {
		base := n * logits.C * plane
		for p := 0; p < plane; p++ {
			peak := float32(math.Inf(-1))
			for c := 0; c < logits.C; c++ {
				peak = max(peak, logits.Data[base+c*plane+p])
			}
			var sum float64
			for c := 0; c < logits.C; c++ {
				e := math.Exp(float64(logits.Data[base+c*plane+p] - peak))
				out.Data[base+c*plane+p] = float32(e)
				sum += e
			}
			for c := 0; c < logits.C; c++ {
				out.Data[base+c*plane+p] = float32(float64(out.Data[base+c*plane+p]) / sum)
			}
		}
	}
	return out
}

// ArgMax returns the index of the largest channel at every pixel of item n.
// Ties resolve to the lowest index.
func ArgMax(t *Tensor, n int) []int16 {
	plane := t.Pixels()
	base := n * t.C * plane
	out := make([]int16, plane)
	for p := 0; p < plane; p++ {
		best := t.Data[base+p]
		for c := 1; c < t.C; c++ {
			if v := t.Data[base+c*plane+p]; v > best {
				best = v
				out[p] = int16(c)
			}
		}
	}
	return out
}

// ArgMaxMask returns ArgMax of item n as an H x W matrix of class indices.
func ArgMaxMask(t *Tensor, n int) *mat.Dense {
	idx := ArgMax(t, n)
	data := make([]float64, len(idx))
	for i, v := range idx {
		data[i] = float64(v)
	}
	return mat.NewDense(t.H, t.W, data)
}
