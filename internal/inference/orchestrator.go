// Package inference runs a trained model over whole rasters: each input is
// padded and cut into overlapping tiles, predicted in batches, blended back
// together with a weight kernel, smoothed and written as a class raster.
package inference

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/merge"
	"github.com/banshee-data/landcover/internal/nn"
	"github.com/banshee-data/landcover/internal/postprocess"
	"github.com/banshee-data/landcover/internal/raster"
	"github.com/banshee-data/landcover/internal/tiling"
	"github.com/banshee-data/landcover/internal/timeutil"
)

// OutputSuffix is appended to the input stem to name the prediction raster.
const OutputSuffix = "_pred.tif"

// Predictor classifies a batch of tiles, returning one class-index mask per
// tile in batch order.
type Predictor interface {
	PredictBatch(ctx context.Context, x *nn.Tensor) ([]*mat.Dense, error)
}

// Options configures an Orchestrator.
type Options struct {
	// InputBands names the bands of every input in storage order;
	// OutputBands selects and orders the bands fed to the model.
	InputBands  []string
	OutputBands []string

	ValueMin float64
	ValueMax float64

	Tile      tiling.Size
	Step      tiling.Size
	BatchSize int

	// NodataSentinel replaces the predicted class wherever the source
	// raster has no data.
	NodataSentinel int16
	OutputDir      string
}

// Orchestrator drives input files through the inference states.
type Orchestrator struct {
	opts      Options
	predictor Predictor
	filter    postprocess.Filter
	store     raster.Store
	fsys      fsutil.FileSystem
	clock     timeutil.Clock
	recorder  Recorder
}

// NewOrchestrator returns an orchestrator writing through store. fsys is
// used to check for existing outputs and to resolve input patterns.
func NewOrchestrator(opts Options, predictor Predictor, filter postprocess.Filter, store raster.Store, fsys fsutil.FileSystem, clock timeutil.Clock) *Orchestrator {
	if filter == nil {
		filter = postprocess.None{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Orchestrator{opts: opts, predictor: predictor, filter: filter, store: store, fsys: fsys, clock: clock}
}

// SetRecorder attaches a transition recorder.
func (o *Orchestrator) SetRecorder(r Recorder) { o.recorder = r }

// OutputPath returns where the prediction for input is written.
func (o *Orchestrator) OutputPath(input string) string {
	return filepath.Join(o.opts.OutputDir, raster.Stem(input)+OutputSuffix)
}

// Run processes inputs sequentially. A failing file is logged, recorded as
// FAILED and skipped. The returned error is non-nil only when ctx ends the
// run early; the Summary then covers the files reached.
func (o *Orchestrator) Run(ctx context.Context, inputs []string) (Summary, error) {
	var sum Summary
	if err := o.fsys.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			opsf("run cancelled before %s (%d of %d files left)", input, len(inputs)-i, len(inputs))
			return sum, err
		}
		res := o.ProcessFile(ctx, input)
		sum.add(res)
	}
	diagf("inference finished: %d written, %d skipped, %d failed", sum.Written, sum.Skipped, sum.Failed)
	return sum, nil
}

// ProcessFile runs one input through every state and returns its result.
func (o *Orchestrator) ProcessFile(ctx context.Context, input string) FileResult {
	start := o.clock.Now()
	res := FileResult{Input: input, Output: o.OutputPath(input), State: StatePending}
	o.transition(&res, StatePending, "")

	if o.fsys.Exists(res.Output) {
		o.transition(&res, StateSkipped, res.Output)
		res.Duration = o.clock.Since(start)
		return res
	}

	if err := o.process(ctx, &res); err != nil {
		res.Err = err
		opsf("%s: %v", input, err)
		o.transition(&res, StateFailed, err.Error())
	}
	res.Duration = o.clock.Since(start)
	return res
}

func (o *Orchestrator) process(ctx context.Context, res *FileResult) error {
	src, err := o.store.Load(res.Input)
	if err != nil {
		return err
	}
	prepared, err := o.prepare(src)
	if err != nil {
		return err
	}
	o.transition(res, StateLoaded, fmt.Sprintf("%dx%dx%d", src.Rows, src.Cols, prepared.Bands))

	slicer, err := tiling.NewSlicer(tiling.Size{Rows: src.Rows, Cols: src.Cols}, o.opts.Tile, o.opts.Step)
	if err != nil {
		return err
	}
	padded := slicer.Pad(prepared)
	res.Tiles = len(slicer.Specs())
	o.transition(res, StateTiled, fmt.Sprintf("target %s", slicer.TargetShape()))

	acc := merge.NewAccumulator(slicer.TargetShape(), 1, slicer.Kernel())
	if err := o.predict(ctx, padded, slicer.Specs(), acc); err != nil {
		return err
	}
	o.transition(res, StatePredicted, "")

	merged, err := acc.Merge()
	if err != nil {
		return err
	}
	labels := toLabels(slicer.CropDense(merged[0]))
	o.transition(res, StateMerged, "")

	labels = o.filter.Apply(labels)
	o.transition(res, StatePostprocessed, o.filter.String())

	for y := range labels.Rows {
		for x := range labels.Cols {
			if src.IsNoData(y, x) {
				labels.Set(y, x, o.opts.NodataSentinel)
			}
		}
	}
	sentinel := float64(o.opts.NodataSentinel)
	meta := raster.Meta{Transform: src.Meta.Transform, CRS: src.Meta.CRS, NoData: &sentinel}
	if err := o.store.Save(res.Output, labels.ToRaster(meta)); err != nil {
		return err
	}
	o.transition(res, StateWritten, res.Output)
	return nil
}

// prepare selects the model bands, clips to the configured value range and
// scales by the source dtype maximum.
func (o *Orchestrator) prepare(src *raster.Raster) (*raster.Raster, error) {
	r, err := raster.SelectBands(src, o.opts.InputBands, o.opts.OutputBands)
	if err != nil {
		return nil, fmt.Errorf("select bands: %w", err)
	}
	if o.opts.ValueMax > o.opts.ValueMin {
		r = raster.Clip(r, o.opts.ValueMin, o.opts.ValueMax)
	}
	return raster.Normalize(r), nil
}

type batch struct {
	x     *nn.Tensor
	specs []tiling.Spec
	err   error
}

// batches extracts tiles on a separate goroutine so the next batch is ready
// while the current one is being predicted.
func (o *Orchestrator) batches(ctx context.Context, r *raster.Raster, specs []tiling.Spec) <-chan batch {
	out := make(chan batch, 1)
	go func() {
		defer close(out)
		for start := 0; start < len(specs); start += o.opts.BatchSize {
			group := specs[start:min(start+o.opts.BatchSize, len(specs))]
			samples := make([][]float32, 0, len(group))
			for t := range tiling.Extract(r, group) {
				samples = append(samples, t.CHW(nil))
			}
			x, err := nn.Stack(r.Bands, o.opts.Tile.Rows, o.opts.Tile.Cols, samples)
			select {
			case out <- batch{x: x, specs: group, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func (o *Orchestrator) predict(ctx context.Context, r *raster.Raster, specs []tiling.Spec, acc *merge.Accumulator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := 0
	for b := range o.batches(ctx, r, specs) {
		if b.err != nil {
			return b.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		masks, err := o.predictor.PredictBatch(ctx, b.x)
		if err != nil {
			return fmt.Errorf("predict batch %d: %w", n, err)
		}
		if len(masks) != len(b.specs) {
			return fmt.Errorf("predict batch %d: got %d masks for %d tiles", n, len(masks), len(b.specs))
		}
		for i, m := range masks {
			rows, cols := m.Dims()
			if rows != o.opts.Tile.Rows || cols != o.opts.Tile.Cols {
				return fmt.Errorf("predict batch %d: mask %d is %dx%d, want %s", n, i, rows, cols, o.opts.Tile)
			}
			acc.Integrate([]*mat.Dense{m}, b.specs[i])
		}
		tracef("batch %d: %d tiles integrated (%d/%d)", n, len(masks), acc.Tiles(), len(specs))
		n++
	}
	return ctx.Err()
}

// toLabels rounds blended class values to the nearest class index.
func toLabels(m *mat.Dense) *raster.Labels {
	rows, cols := m.Dims()
	l := raster.NewLabels(rows, cols)
	for y := range rows {
		for x := range cols {
			v := math.Round(m.At(y, x))
			l.Set(y, x, int16(min(max(v, math.MinInt16), math.MaxInt16)))
		}
	}
	return l
}

func (o *Orchestrator) transition(res *FileResult, s State, detail string) {
	res.State = s
	tracef("%s: %s %s", res.Input, s, detail)
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordTransition(res.Input, s, detail, res.Tiles); err != nil {
		opsf("record %s %s: %v", res.Input, s, err)
	}
}
