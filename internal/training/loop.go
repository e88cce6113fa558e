package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/landcover/internal/checkpoint"
	"github.com/banshee-data/landcover/internal/dataset"
	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/nn"
	"github.com/banshee-data/landcover/internal/timeutil"
)

// Options configures a training run. A Loop never modifies them.
type Options struct {
	Experiment string
	ModelDir   string
	MaxEpochs  int
	BatchSize  int
	// TestSize is the fraction of tiles held out for validation.
	TestSize float64
	// Patience is the number of consecutive epochs without improvement
	// after which the learning rate is multiplied by Gamma.
	Patience int
	Gamma    float64
	Augment  bool
	Seed     int64
}

// EpochStats summarises one epoch.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	// ValLoss and ValAcc mirror the training values when Validated is false
	// (no tiles were held out).
	ValLoss   float64
	ValAcc    float64
	Validated bool
	// LR is the learning rate the epoch was trained with.
	LR         float64
	Improved   bool
	Checkpoint string
	Duration   time.Duration
}

// State is the running state of a Loop. It is returned from Run so callers
// can inspect the history after an early stop.
type State struct {
	Epoch            int
	BestLoss         float64
	BestCheckpoint   string
	SinceImprovement int
	LR               float64
	History          []EpochStats
}

// Recorder receives every completed epoch.
type Recorder interface {
	RecordEpoch(EpochStats) error
}

// Loop trains a model on a tile dataset, keeping the checkpoint with the
// lowest validation loss.
type Loop struct {
	opts     Options
	model    nn.Model
	loss     nn.Loss
	opt      nn.Optimizer
	sched    nn.StepLR
	fsys     fsutil.FileSystem
	clock    timeutil.Clock
	recorder Recorder
}

// NewLoop wires a model, loss and optimizer into a training loop.
func NewLoop(opts Options, model nn.Model, loss nn.Loss, opt nn.Optimizer, fsys fsutil.FileSystem, clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		opts:  opts,
		model: model,
		loss:  loss,
		opt:   opt,
		sched: nn.StepLR{Opt: opt, Gamma: opts.Gamma},
		fsys:  fsys,
		clock: clock,
	}
}

// SetRecorder attaches an epoch recorder. Recording failures are logged and
// do not stop training.
func (l *Loop) SetRecorder(r Recorder) { l.recorder = r }

// Model returns the model being trained.
func (l *Loop) Model() nn.Model { return l.model }

// Run trains for up to MaxEpochs epochs. A cancelled context stops the loop
// between batches and returns the state reached so far with ctx.Err().
func (l *Loop) Run(ctx context.Context, ds *dataset.Dataset) (*State, error) {
	rng := rand.New(rand.NewPCG(uint64(l.opts.Seed), uint64(l.opts.Seed)))
	trainIdx, valIdx := dataset.Split(ds.Len(), l.opts.TestSize, rng)
	if len(trainIdx) == 0 {
		return nil, fmt.Errorf("no training tiles left after holding out %.0f%% of %d", l.opts.TestSize*100, ds.Len())
	}
	if len(valIdx) == 0 {
		opsf("no validation tiles held out; selecting checkpoints on training loss")
	}
	if err := l.fsys.MkdirAll(l.opts.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	diagf("training %s: %d train / %d validation tiles, batch %d, %s loss, lr %g",
		l.opts.Experiment, len(trainIdx), len(valIdx), l.opts.BatchSize, l.loss.Name(), l.opt.LR())

	var augRng *rand.Rand
	if l.opts.Augment {
		augRng = rand.New(rand.NewPCG(uint64(l.opts.Seed), 0xa5a5))
	}

	state := &State{BestLoss: math.Inf(1), LR: l.opt.LR()}
	for epoch := 1; epoch <= l.opts.MaxEpochs; epoch++ {
		stats, err := l.epoch(ctx, ds, epoch, trainIdx, valIdx, rng, augRng)
		if err != nil {
			return state, err
		}
		if err := l.advance(state, &stats); err != nil {
			return state, err
		}
		if l.recorder != nil {
			if err := l.recorder.RecordEpoch(stats); err != nil {
				opsf("record epoch %d: %v", epoch, err)
			}
		}
	}

	if _, _, err := WriteReport(l.fsys, l.opts.ModelDir, l.opts.Experiment, state.History); err != nil {
		opsf("write loss report: %v", err)
	}
	return state, nil
}

// advance applies checkpointing and learning-rate scheduling for a finished
// epoch and appends it to the history.
func (l *Loop) advance(state *State, stats *EpochStats) error {
	state.Epoch = stats.Epoch
	if stats.ValLoss < state.BestLoss {
		path, err := checkpoint.Save(l.fsys, l.opts.ModelDir, l.opts.Experiment, stats.Epoch, stats.ValLoss, l.model)
		if err != nil {
			return err
		}
		diagf("epoch %d: validation loss %.5f improved on %.5f, saved %s", stats.Epoch, stats.ValLoss, state.BestLoss, path)
		state.BestLoss = stats.ValLoss
		state.BestCheckpoint = path
		state.SinceImprovement = 0
		stats.Improved = true
		stats.Checkpoint = path
	} else {
		state.SinceImprovement++
		if l.opts.Patience > 0 && state.SinceImprovement >= l.opts.Patience {
			lr := l.sched.Step()
			diagf("epoch %d: %d epochs without improvement, learning rate now %g", stats.Epoch, state.SinceImprovement, lr)
			state.SinceImprovement = 0
		}
	}
	state.LR = l.opt.LR()
	state.History = append(state.History, *stats)
	return nil
}

func (l *Loop) epoch(ctx context.Context, ds *dataset.Dataset, epoch int, trainIdx, valIdx []int, rng, augRng *rand.Rand) (EpochStats, error) {
	start := l.clock.Now()
	stats := EpochStats{Epoch: epoch, LR: l.opt.LR()}

	var err error
	stats.TrainLoss, stats.TrainAcc, err = l.pass(ctx, ds, dataset.Batches(trainIdx, l.opts.BatchSize, rng), augRng, true)
	if err != nil {
		return stats, fmt.Errorf("epoch %d training: %w", epoch, err)
	}
	if len(valIdx) > 0 {
		stats.ValLoss, stats.ValAcc, err = l.pass(ctx, ds, dataset.Batches(valIdx, l.opts.BatchSize, nil), nil, false)
		if err != nil {
			return stats, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
		stats.Validated = true
	} else {
		stats.ValLoss, stats.ValAcc = stats.TrainLoss, stats.TrainAcc
	}
	stats.Duration = l.clock.Since(start)
	diagf("epoch %d/%d: train loss %.5f acc %.4f, val loss %.5f acc %.4f (%s)",
		epoch, l.opts.MaxEpochs, stats.TrainLoss, stats.TrainAcc, stats.ValLoss, stats.ValAcc, stats.Duration)
	return stats, nil
}

// pass runs every batch once and returns the mean loss and accuracy. The
// model is only updated when learn is set.
func (l *Loop) pass(ctx context.Context, ds *dataset.Dataset, batches [][]int, augRng *rand.Rand, learn bool) (float64, float64, error) {
	losses := make([]float64, 0, len(batches))
	accs := make([]float64, 0, len(batches))
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		x, labels, err := ds.LoadBatch(batch, augRng)
		if err != nil {
			return 0, 0, err
		}
		if learn {
			l.model.ZeroGrad()
		}
		logits := l.model.Forward(x)
		loss, grad := l.loss.Compute(logits, labels)
		if learn {
			l.model.Backward(x, grad)
			l.opt.Step(l.model.Params())
		}
		acc := Accuracy(logits, labels)
		tracef("batch %d/%d: loss %.5f acc %.4f", i+1, len(batches), loss, acc)
		losses = append(losses, loss)
		accs = append(accs, acc)
	}
	if len(losses) == 0 {
		return 0, 0, fmt.Errorf("no batches")
	}
	return stat.Mean(losses, nil), stat.Mean(accs, nil), nil
}

// Accuracy is the fraction of pixels whose arg-max class equals the label,
// averaged over the items of the batch.
func Accuracy(logits *nn.Tensor, labels []int16) float64 {
	plane := logits.Pixels()
	per := make([]float64, logits.N)
	for n := range logits.N {
		pred := nn.ArgMax(logits, n)
		lab := labels[n*plane : (n+1)*plane]
		hits := 0
		for i, c := range pred {
			if c == lab[i] {
				hits++
			}
		}
		per[n] = float64(hits) / float64(plane)
	}
	return stat.Mean(per, nil)
}
