package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRunsCommand(t *testing.T) {
	t.Parallel()

	s, clock := openTestStore(t)

	trainID, err := s.StartRun(KindTrain, "exp", nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordEpoch(Epoch{RunID: trainID, Epoch: 1, TrainLoss: 0.7, ValLoss: 0.6, ValAcc: 0.5, LearningRate: 1e-4, Improved: true, CheckpointPath: "models/exp_epoch-1_0.60000.ckpt"}))
	require.NoError(t, s.RecordEpoch(Epoch{RunID: trainID, Epoch: 2, TrainLoss: 0.5, ValLoss: 0.65, ValAcc: 0.5, LearningRate: 1e-4}))
	clock.Advance(90 * time.Second)
	require.NoError(t, s.FinishRun(trainID, StatusComplete))

	clock.Advance(time.Minute)
	predictID, err := s.StartRun(KindPredict, "exp", nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordTransition(predictID, "scenes/a.tif", "LOADED", "", 0))
	require.NoError(t, s.RecordTransition(predictID, "scenes/a.tif", "FAILED", "truncated tiff", 0))
	require.NoError(t, s.RecordTransition(predictID, "scenes/b.tif", "WRITTEN", "", 4))

	var out bytes.Buffer
	require.NoError(t, RunRunsCommand(nil, s, &out))
	list := out.String()
	assert.Contains(t, list, trainID)
	assert.Contains(t, list, predictID)
	assert.Contains(t, list, "1m30s")
	assert.Less(t, bytes.Index(out.Bytes(), []byte(predictID)), bytes.Index(out.Bytes(), []byte(trainID)), "newest first")

	out.Reset()
	require.NoError(t, RunRunsCommand([]string{"-kind", KindTrain}, s, &out))
	assert.Contains(t, out.String(), trainID)
	assert.NotContains(t, out.String(), predictID)

	out.Reset()
	require.NoError(t, RunRunsCommand([]string{trainID}, s, &out))
	assert.Contains(t, out.String(), "Status:     complete")
	assert.Contains(t, out.String(), "Checkpoint: models/exp_epoch-1_0.60000.ckpt")
	assert.Contains(t, out.String(), "0.60000")

	out.Reset()
	require.NoError(t, RunRunsCommand([]string{predictID}, s, &out))
	assert.Contains(t, out.String(), "Status:     running")
	assert.Contains(t, out.String(), "FAILED         scenes/a.tif  (truncated tiff)")
	assert.Contains(t, out.String(), "WRITTEN        scenes/b.tif")
}

func TestRunRunsCommandErrors(t *testing.T) {
	t.Parallel()

	s, _ := openTestStore(t)
	var out bytes.Buffer

	require.NoError(t, RunRunsCommand(nil, s, &out))
	assert.Contains(t, out.String(), "No runs recorded")

	err := RunRunsCommand([]string{"no-such-run"}, s, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.Error(t, RunRunsCommand([]string{"a", "b"}, s, &out))
	assert.Error(t, RunRunsCommand([]string{"-n", "many"}, s, &out))
}
