package nn

import "fmt"

// Tensor is a dense float32 array laid out as N x C x H x W.
type Tensor struct {
	N, C, H, W int
	Data       []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(n, c, h, w int) *Tensor {
	return &Tensor{N: n, C: c, H: h, W: w, Data: make([]float32, n*c*h*w)}
}

// Index returns the offset of (n, c, y, x) in Data.
func (t *Tensor) Index(n, c, y, x int) int {
	return ((n*t.C+c)*t.H+y)*t.W + x
}

func (t *Tensor) At(n, c, y, x int) float32 { return t.Data[t.Index(n, c, y, x)] }

func (t *Tensor) Set(n, c, y, x int, v float32) { t.Data[t.Index(n, c, y, x)] = v }

// Sample returns a one-item tensor sharing storage with item n.
func (t *Tensor) Sample(n int) *Tensor {
	size := t.C * t.H * t.W
	return &Tensor{N: 1, C: t.C, H: t.H, W: t.W, Data: t.Data[n*size : (n+1)*size]}
}

// Pixels returns H*W.
func (t *Tensor) Pixels() int { return t.H * t.W }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%d,%d,%d,%d)", t.N, t.C, t.H, t.W)
}

// Stack copies equally sized CHW samples into one batch tensor.
func Stack(c, h, w int, samples [][]float32) (*Tensor, error) {
	t := NewTensor(len(samples), c, h, w)
	size := c * h * w
	for i, s := range samples {
		if len(s) != size {
			return nil, fmt.Errorf("sample %d has %d values, want %d", i, len(s), size)
		}
		copy(t.Data[i*size:], s)
	}
	return t, nil
}
