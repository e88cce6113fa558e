package nn

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

// Model maps an N x C x H x W batch to N x K x H x W class logits.
// Forward must be safe for concurrent use; Backward and ZeroGrad are not.
type Model interface {
	Forward(x *Tensor) *Tensor
	// Backward accumulates parameter gradients for the batch x given the
	// gradient of the loss with respect to Forward(x).
	Backward(x, dLogits *Tensor)
	ZeroGrad()
	Params() []*Param
	Classes() int
	InChannels() int
	json.Marshaler
	json.Unmarshaler
}

// PixelLinear is a 1x1 convolution followed by softmax: each pixel is
// classified from its own band values.
type PixelLinear struct {
	in, classes int
	weight      *Param // classes x in, row-major
	bias        *Param // classes
}

// NewPixelLinear returns a model with small random weights drawn from seed.
func NewPixelLinear(in, classes int, seed uint64) *PixelLinear {
	m := newPixelLinear(in, classes)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range m.weight.Value {
		m.weight.Value[i] = rng.NormFloat64() * 0.01
	}
	return m
}

func newPixelLinear(in, classes int) *PixelLinear {
	return &PixelLinear{
		in:      in,
		classes: classes,
		weight:  &Param{Name: "weight", Value: make([]float64, classes*in), Grad: make([]float64, classes*in)},
		bias:    &Param{Name: "bias", Value: make([]float64, classes), Grad: make([]float64, classes)},
	}
}

func (m *PixelLinear) Classes() int     { return m.classes }
func (m *PixelLinear) InChannels() int  { return m.in }
func (m *PixelLinear) Params() []*Param { return []*Param{m.weight, m.bias} }

func (m *PixelLinear) ZeroGrad() {
	clear(m.weight.Grad)
	clear(m.bias.Grad)
}

func (m *PixelLinear) Forward(x *Tensor) *Tensor {
	if x.C != m.in {
		panic(fmt.Sprintf("nn: input has %d channels, model expects %d", x.C, m.in))
	}
	out := NewTensor(x.N, m.classes, x.H, x.W)
	plane := x.Pixels()
	for n := 0; n < x.N; n++ {
		xb := x.Data[n*x.C*plane : (n+1)*x.C*plane]
		ob := out.Data[n*m.classes*plane : (n+1)*m.classes*plane]
		for k := 0; k < m.classes; k++ {
			row := m.weight.Value[k*m.in : (k+1)*m.in]
			dst := ob[k*plane : (k+1)*plane]
			b := float32(m.bias.Value[k])
			for p := range dst {
				dst[p] = b
			}
			for c, w := range row {
				wf := float32(w)
				src := xb[c*plane : (c+1)*plane]
				for p, v := range src {
					dst[p] += wf * v
				}
			}
		}
	}
	return out
}

func (m *PixelLinear) Backward(x, dLogits *Tensor) {
	plane := x.Pixels()
	for n := 0; n < x.N; n++ {
		xb := x.Data[n*x.C*plane : (n+1)*x.C*plane]
		gb := dLogits.Data[n*m.classes*plane : (n+1)*m.classes*plane]
		for k := 0; k < m.classes; k++ {
			g := gb[k*plane : (k+1)*plane]
			var bsum float64
			for _, v := range g {
				bsum += float64(v)
			}
			m.bias.Grad[k] += bsum
			for c := 0; c < m.in; c++ {
				src := xb[c*plane : (c+1)*plane]
				var s float64
				for p, v := range src {
					s += float64(v) * float64(g[p])
				}
				m.weight.Grad[k*m.in+c] += s
			}
		}
	}
}

type pixelLinearState struct {
	Kind       string    `json:"kind"`
	InChannels int       `json:"in_channels"`
	Classes    int       `json:"classes"`
	Weight     []float64 `json:"weight"`
	Bias       []float64 `json:"bias"`
}

const pixelLinearKind = "pixel-linear"

func (m *PixelLinear) MarshalJSON() ([]byte, error) {
	return json.Marshal(pixelLinearState{
		Kind:       pixelLinearKind,
		InChannels: m.in,
		Classes:    m.classes,
		Weight:     m.weight.Value,
		Bias:       m.bias.Value,
	})
}

func (m *PixelLinear) UnmarshalJSON(data []byte) error {
	var s pixelLinearState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Kind != pixelLinearKind {
		return fmt.Errorf("checkpoint holds a %q model, not %q", s.Kind, pixelLinearKind)
	}
	if s.InChannels <= 0 || s.Classes <= 0 || len(s.Weight) != s.InChannels*s.Classes || len(s.Bias) != s.Classes {
		return fmt.Errorf("inconsistent %s state: %d inputs, %d classes, %d weights, %d biases",
			pixelLinearKind, s.InChannels, s.Classes, len(s.Weight), len(s.Bias))
	}
	*m = *newPixelLinear(s.InChannels, s.Classes)
	copy(m.weight.Value, s.Weight)
	copy(m.bias.Value, s.Bias)
	return nil
}
