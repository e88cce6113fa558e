package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/landcover/internal/config"
)

// Param is a named trainable array with its accumulated gradient.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	Step(params []*Param)
	LR() float64
	SetLR(lr float64)
}

// NewOptimizer returns the optimizer for a configured name.
func NewOptimizer(name string, lr float64) (Optimizer, error) {
	switch name {
	case config.OptimizerAdam:
		return NewAdam(lr), nil
	case config.OptimizerSGD:
		return &SGD{lr: lr}, nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", name)
}

// SGD is plain gradient descent.
type SGD struct {
	lr float64
}

func (s *SGD) Step(params []*Param) {
	for _, p := range params {
		floats.AddScaled(p.Value, -s.lr, p.Grad)
	}
}

func (s *SGD) LR() float64      { return s.lr }
func (s *SGD) SetLR(lr float64) { s.lr = lr }

// Adam keeps per-parameter first and second moment estimates.
type Adam struct {
	lr           float64
	beta1, beta2 float64
	eps          float64
	t            int
	m, v         map[*Param][]float64
}

// NewAdam returns Adam with the usual betas (0.9, 0.999).
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[*Param][]float64),
		v:     make(map[*Param][]float64),
	}
}

func (a *Adam) Step(params []*Param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for _, p := range params {
		m, ok := a.m[p]
		if !ok {
			m = make([]float64, len(p.Value))
			a.m[p] = m
			a.v[p] = make([]float64, len(p.Value))
		}
		v := a.v[p]
		for i, g := range p.Grad {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			p.Value[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}

func (a *Adam) LR() float64      { return a.lr }
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// StepLR multiplies the optimizer's learning rate by Gamma on each Step.
type StepLR struct {
	Opt   Optimizer
	Gamma float64
}

// Step decays the learning rate and returns the new value.
func (s StepLR) Step() float64 {
	s.Opt.SetLR(s.Opt.LR() * s.Gamma)
	return s.Opt.LR()
}
