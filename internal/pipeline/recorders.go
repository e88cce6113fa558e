package pipeline

import (
	"github.com/banshee-data/landcover/internal/inference"
	"github.com/banshee-data/landcover/internal/ledger"
	"github.com/banshee-data/landcover/internal/training"
)

// epochRecorder stores training epochs as ledger rows of one run.
type epochRecorder struct {
	ledger *ledger.Store
	runID  string
}

func (r *epochRecorder) RecordEpoch(s training.EpochStats) error {
	return r.ledger.RecordEpoch(ledger.Epoch{
		RunID:          r.runID,
		Epoch:          s.Epoch,
		TrainLoss:      s.TrainLoss,
		TrainAcc:       s.TrainAcc,
		ValLoss:        s.ValLoss,
		ValAcc:         s.ValAcc,
		LearningRate:   s.LR,
		Improved:       s.Improved,
		CheckpointPath: s.Checkpoint,
	})
}

// transitionRecorder stores inference state transitions of one run.
type transitionRecorder struct {
	ledger *ledger.Store
	runID  string
}

func (r *transitionRecorder) RecordTransition(input string, s inference.State, detail string, tiles int) error {
	return r.ledger.RecordTransition(r.runID, input, string(s), detail, tiles)
}
