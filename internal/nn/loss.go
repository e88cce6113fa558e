package nn

import (
	"fmt"
	"math"

	"github.com/banshee-data/landcover/internal/config"
)

// Loss scores logits against per-pixel class labels. labels holds N*H*W
// values in item-major, row-major order; labels outside [0, C) are ignored.
// Compute returns the loss and its gradient with respect to the logits.
type Loss interface {
	Name() string
	Compute(logits *Tensor, labels []int16) (float64, *Tensor)
}

// NewLoss returns the loss strategy for a configured name.
func NewLoss(name string) (Loss, error) {
	switch name {
	case config.LossCrossEntropy:
		return CrossEntropy{}, nil
	case config.LossMeanIoU:
		return MeanIoU{}, nil
	case config.LossFocal:
		return Focal{Gamma: 2}, nil
	}
	return nil, fmt.Errorf("unknown loss %q", name)
}

func validLabel(v int16, classes int) bool { return v >= 0 && int(v) < classes }

// CrossEntropy is the mean negative log-likelihood of the labelled class.
type CrossEntropy struct{}

func (CrossEntropy) Name() string { return config.LossCrossEntropy }

func (CrossEntropy) Compute(logits *Tensor, labels []int16) (float64, *Tensor) {
	probs := Softmax(logits)
	grad := NewTensor(logits.N, logits.C, logits.H, logits.W)
	plane := logits.Pixels()

	var total float64
	count := 0
	for n := 0; n < logits.N; n++ {
		for p := 0; p < plane; p++ {
			y := labels[n*plane+p]
			if !validLabel(y, logits.C) {
				continue
			}
			count++
			total -= math.Log(max(float64(probs.At(n, int(y), p/logits.W, p%logits.W)), 1e-12))
			for c := 0; c < logits.C; c++ {
				i := probs.Index(n, c, 0, 0) + p
				g := probs.Data[i]
				if c == int(y) {
					g--
				}
				grad.Data[i] = g
			}
		}
	}
	if count == 0 {
		return 0, grad
	}
	scale := float32(1 / float64(count))
	for i := range grad.Data {
		grad.Data[i] *= scale
	}
	return total / float64(count), grad
}

// Focal down-weights well-classified pixels by (1 - p)^Gamma.
type Focal struct {
	Gamma float64
}

func (Focal) Name() string { return config.LossFocal }

func (f Focal) Compute(logits *Tensor, labels []int16) (float64, *Tensor) {
	probs := Softmax(logits)
	grad := NewTensor(logits.N, logits.C, logits.H, logits.W)
	plane := logits.Pixels()

	var total float64
	count := 0
	for n := 0; n < logits.N; n++ {
		for p := 0; p < plane; p++ {
			y := labels[n*plane+p]
			if !validLabel(y, logits.C) {
				continue
			}
			count++
			base := probs.Index(n, 0, 0, 0) + p
			pt := max(float64(probs.Data[base+int(y)*plane]), 1e-12)
			logPt := math.Log(pt)
			w := math.Pow(1-pt, f.Gamma)
			total -= w * logPt

			// dL/dpt, then through the softmax: dpt/dz_c = pt*(1[c==y] - p_c).
			dpt := f.Gamma*math.Pow(1-pt, f.Gamma-1)*logPt - w/pt
			for c := 0; c < logits.C; c++ {
				delta := 0.0
				if c == int(y) {
					delta = 1
				}
				pc := float64(probs.Data[base+c*plane])
				grad.Data[base+c*plane] = float32(dpt * pt * (delta - pc))
			}
		}
	}
	if count == 0 {
		return 0, grad
	}
	scale := float32(1 / float64(count))
	for i := range grad.Data {
		grad.Data[i] *= scale
	}
	return total / float64(count), grad
}

// MeanIoU is one minus the soft intersection-over-union averaged over items
// and classes.
type MeanIoU struct{}

func (MeanIoU) Name() string { return config.LossMeanIoU }

func (MeanIoU) Compute(logits *Tensor, labels []int16) (float64, *Tensor) {
	probs := Softmax(logits)
	grad := NewTensor(logits.N, logits.C, logits.H, logits.W)
	plane := logits.Pixels()
	norm := 1 / float64(logits.N*logits.C)

	var score float64
	inter := make([]float64, logits.C)
	union := make([]float64, logits.C)
	for n := 0; n < logits.N; n++ {
		clear(inter)
		clear(union)
		lab := labels[n*plane : (n+1)*plane]
		base := probs.Index(n, 0, 0, 0)
		for c := 0; c < logits.C; c++ {
			for p, y := range lab {
				if !validLabel(y, logits.C) {
					continue
				}
				pr := float64(probs.Data[base+c*plane+p])
				t := 0.0
				if int(y) == c {
					t = 1
				}
				inter[c] += pr * t
				union[c] += pr + t - pr*t
			}
			if union[c] > 0 {
				score += inter[c] / union[c]
			}
		}

		// dL/dp for every class, then through the softmax per pixel:
		// dL/dz_c = p_c * (g_c - sum_k p_k g_k).
		g := make([]float64, logits.C)
		for p, y := range lab {
			if !validLabel(y, logits.C) {
				continue
			}
			var dot float64
			for c := 0; c < logits.C; c++ {
				g[c] = 0
				if union[c] == 0 {
					continue
				}
				t := 0.0
				if int(y) == c {
					t = 1
				}
				g[c] = -norm * (t*union[c] - inter[c]*(1-t)) / (union[c] * union[c])
				dot += float64(probs.Data[base+c*plane+p]) * g[c]
			}
			for c := 0; c < logits.C; c++ {
				pc := float64(probs.Data[base+c*plane+p])
				grad.Data[base+c*plane+p] = float32(pc * (g[c] - dot))
			}
		}
	}
	return 1 - score*norm, grad
}
