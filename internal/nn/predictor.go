package nn

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Predictor turns a batch of tiles into class-index masks using a Model.
// Items of a batch are classified concurrently.
type Predictor struct {
	model   Model
	workers int
}

// NewPredictor wraps m. workers bounds the number of items classified at
// once; values below one mean one.
func NewPredictor(m Model, workers int) *Predictor {
	return &Predictor{model: m, workers: max(workers, 1)}
}

// Model returns the wrapped model.
func (p *Predictor) Model() Model { return p.model }

// PredictBatch returns one H x W mask of arg-max class indices per item.
func (p *Predictor) PredictBatch(ctx context.Context, x *Tensor) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, x.N)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for n := 0; n < x.N; n++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logits := p.model.Forward(x.Sample(n))
			out[n] = ArgMaxMask(logits, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
