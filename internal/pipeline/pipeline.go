// Package pipeline builds the preprocessing, training and prediction stages
// from a Config and records every run in the ledger when one is attached.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/landcover/internal/checkpoint"
	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/dataset"
	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/inference"
	"github.com/banshee-data/landcover/internal/ledger"
	"github.com/banshee-data/landcover/internal/nn"
	"github.com/banshee-data/landcover/internal/postprocess"
	"github.com/banshee-data/landcover/internal/raster"
	"github.com/banshee-data/landcover/internal/tiling"
	"github.com/banshee-data/landcover/internal/timeutil"
	"github.com/banshee-data/landcover/internal/training"
)

// ErrNoInputs is returned by Predict when no input raster matches.
var ErrNoInputs = errors.New("no input rasters")

// SetLogWriters configures the ops, diag and trace streams of every
// pipeline package at once.
func SetLogWriters(ops, diag, trace io.Writer) {
	setLogWriters(ops, diag, trace)
	raster.SetLogWriters(ops, diag, trace)
	dataset.SetLogWriters(ops, diag, trace)
	training.SetLogWriters(ops, diag, trace)
	inference.SetLogWriters(ops, diag, trace)
	ledger.SetLogWriters(ops, diag, trace)
}

// Pipeline holds the stage components built from one Config. Components
// are created by the stage that needs them and kept for inspection.
type Pipeline struct {
	cfg    *config.Config
	fsys   fsutil.FileSystem
	store  raster.Store
	clock  timeutil.Clock
	ledger *ledger.Store

	builder      *dataset.Builder
	loop         *training.Loop
	orchestrator *inference.Orchestrator
}

// New returns a pipeline for cfg. led may be nil to run without a ledger.
func New(cfg *config.Config, fsys fsutil.FileSystem, store raster.Store, clock timeutil.Clock, led *ledger.Store) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{cfg: cfg, fsys: fsys, store: store, clock: clock, ledger: led}
}

// Builder returns the dataset builder of the last Preprocess.
func (p *Pipeline) Builder() *dataset.Builder { return p.builder }

// Loop returns the training loop of the last Train.
func (p *Pipeline) Loop() *training.Loop { return p.loop }

// Orchestrator returns the inference orchestrator of the last Predict.
func (p *Pipeline) Orchestrator() *inference.Orchestrator { return p.orchestrator }

func (p *Pipeline) tile() tiling.Size {
	ts := p.cfg.GetTileSize()
	return tiling.Size{Rows: ts.Height(), Cols: ts.Width()}
}

// InChannels is the number of bands fed to the model.
func (p *Pipeline) InChannels() int {
	if n := len(p.cfg.OutputBands); n > 0 {
		return n
	}
	if n := len(p.cfg.InputBands); n > 0 {
		return n
	}
	return 3
}

// BuildOptions derives the dataset builder options.
func (p *Pipeline) BuildOptions() dataset.BuildOptions {
	lo, hi := p.cfg.GetValueRange()
	var rules []raster.RelabelRule
	for _, r := range p.cfg.GetRelabelRules() {
		rules = append(rules, raster.RelabelRule{Name: r.Name, From: int16(r.From), To: int16(r.To)})
	}
	return dataset.BuildOptions{
		InputBands:    p.cfg.InputBands,
		OutputBands:   p.cfg.OutputBands,
		ValueMin:      lo,
		ValueMax:      hi,
		ShiftOneBased: p.cfg.GetShiftOneBased(),
		Rules:         rules,
		Tile:          p.tile(),
		Seed:          p.cfg.GetSeed(),
		DatasetDir:    p.cfg.GetDatasetDir(),
	}
}

// TrainingOptions derives the training loop options.
func (p *Pipeline) TrainingOptions() training.Options {
	return training.Options{
		Experiment: p.cfg.GetExperimentName(),
		ModelDir:   p.cfg.GetModelDir(),
		MaxEpochs:  p.cfg.GetMaxEpochs(),
		BatchSize:  p.cfg.GetBatchSize(),
		TestSize:   p.cfg.GetTestSize(),
		Patience:   p.cfg.GetPlateauPatience(),
		Gamma:      p.cfg.GetLRDecayGamma(),
		Augment:    p.cfg.GetAugment(),
		Seed:       p.cfg.GetSeed(),
	}
}

// InferenceOptions derives the orchestrator options.
func (p *Pipeline) InferenceOptions() inference.Options {
	lo, hi := p.cfg.GetValueRange()
	step := p.cfg.GetTileStep()
	return inference.Options{
		InputBands:     p.cfg.InputBands,
		OutputBands:    p.cfg.OutputBands,
		ValueMin:       lo,
		ValueMax:       hi,
		Tile:           p.tile(),
		Step:           tiling.Size{Rows: step.Height(), Cols: step.Width()},
		BatchSize:      p.cfg.GetPredBatchSize(),
		NodataSentinel: int16(p.cfg.GetNodataSentinel()),
		OutputDir:      p.cfg.GetOutputDir(),
	}
}

// Preprocess cuts the manifest's scenes into training tiles.
func (p *Pipeline) Preprocess(ctx context.Context) (results []dataset.EntryResult, err error) {
	runID := p.startRun(ledger.KindPreprocess)
	defer func() { p.finishRun(runID, err) }()

	entries, err := dataset.LoadManifest(p.fsys, p.cfg.GetManifestPath(), p.cfg.GetDefaultNTiles())
	if err != nil {
		return nil, err
	}
	p.builder, err = dataset.NewBuilder(p.BuildOptions(), p.store, p.fsys)
	if err != nil {
		return nil, err
	}
	results, err = p.builder.Build(ctx, entries)
	for _, r := range results {
		state, detail := inference.StateTiled, ""
		if r.Err != nil {
			state, detail = inference.StateFailed, r.Err.Error()
		}
		p.record(runID, r.Entry.Data, string(state), detail, r.Tiles)
	}
	return results, err
}

// NewModel returns an untrained model shaped for the configured bands and
// classes.
func (p *Pipeline) NewModel() nn.Model {
	return nn.NewPixelLinear(p.InChannels(), p.cfg.GetNClasses(), uint64(p.cfg.GetSeed()))
}

// Train fits a fresh model on the tile dataset.
func (p *Pipeline) Train(ctx context.Context) (state *training.State, err error) {
	runID := p.startRun(ledger.KindTrain)
	defer func() { p.finishRun(runID, err) }()

	ds, err := dataset.Open(p.fsys, p.store, p.cfg.GetDatasetDir())
	if err != nil {
		return nil, err
	}
	loss, err := nn.NewLoss(p.cfg.GetLoss())
	if err != nil {
		return nil, err
	}
	opt, err := nn.NewOptimizer(p.cfg.GetOptimizer(), p.cfg.GetLearningRate())
	if err != nil {
		return nil, err
	}
	p.loop = training.NewLoop(p.TrainingOptions(), p.NewModel(), loss, opt, p.fsys, p.clock)
	if p.ledger != nil {
		p.loop.SetRecorder(&epochRecorder{ledger: p.ledger, runID: runID})
	}
	return p.loop.Run(ctx, ds)
}

// LoadModel restores the configured checkpoint, or the newest one in the
// model directory.
func (p *Pipeline) LoadModel() (nn.Model, string, error) {
	path, err := checkpoint.Resolve(p.fsys, p.cfg.GetModelDir(), p.cfg.GetModelFilename())
	if err != nil {
		return nil, "", err
	}
	m := &nn.PixelLinear{}
	if err := checkpoint.Load(p.fsys, path, m); err != nil {
		return nil, "", err
	}
	if m.InChannels() != p.InChannels() {
		return nil, "", fmt.Errorf("checkpoint %s expects %d bands, config selects %d", path, m.InChannels(), p.InChannels())
	}
	diagf("loaded model %s (%d bands, %d classes)", path, m.InChannels(), m.Classes())
	return m, path, nil
}

// Predict classifies inputs, or the configured data_predict patterns when
// inputs is empty, with the checkpoint chosen by LoadModel.
func (p *Pipeline) Predict(ctx context.Context, inputs []string) (sum inference.Summary, err error) {
	runID := p.startRun(ledger.KindPredict)
	defer func() { p.finishRun(runID, err) }()

	if len(inputs) == 0 {
		inputs = p.cfg.GetDataPredict()
	}
	files, err := inference.ExpandInputs(p.fsys, inputs)
	if err != nil {
		return sum, err
	}
	if len(files) == 0 {
		return sum, fmt.Errorf("%w for %v", ErrNoInputs, inputs)
	}

	model, _, err := p.LoadModel()
	if err != nil {
		return sum, err
	}
	filter, err := postprocess.New(p.cfg.GetPostprocessMethod(), p.cfg.GetPostprocessKernelSize(), p.cfg.GetPostprocessKernelShape())
	if err != nil {
		return sum, err
	}
	p.orchestrator = inference.NewOrchestrator(p.InferenceOptions(), nn.NewPredictor(model, p.cfg.GetWorkers()), filter, p.store, p.fsys, p.clock)
	if p.ledger != nil {
		p.orchestrator.SetRecorder(&transitionRecorder{ledger: p.ledger, runID: runID})
	}
	diagf("predicting %d rasters with %s filter", len(files), filter)
	return p.orchestrator.Run(ctx, files)
}

func (p *Pipeline) startRun(kind string) string {
	if p.ledger == nil {
		return ""
	}
	runID, err := p.ledger.StartRun(kind, p.cfg.GetExperimentName(), p.cfg)
	if err != nil {
		opsf("start %s run: %v", kind, err)
		return ""
	}
	return runID
}

func (p *Pipeline) finishRun(runID string, err error) {
	if runID == "" {
		return
	}
	status := ledger.StatusComplete
	if err != nil {
		status = ledger.StatusFailed
	}
	if ferr := p.ledger.FinishRun(runID, status); ferr != nil {
		opsf("finish run %s: %v", runID, ferr)
	}
}

func (p *Pipeline) record(runID, input, state, detail string, tiles int) {
	if runID == "" {
		return
	}
	if err := p.ledger.RecordTransition(runID, input, state, detail, tiles); err != nil {
		opsf("record %s %s: %v", input, state, err)
	}
}
