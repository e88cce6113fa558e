package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "landcover dev")
}

func TestUsageErrors(t *testing.T) {
	code, _, errOut := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage: landcover")

	code, _, _ = runCLI("-no-such-flag", "train")
	assert.Equal(t, 2, code)

	cfg := writeConfig(t, `{"experiment_name": "cli"}`)
	code, _, errOut = runCLI("-config", cfg, "paint")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "paint"`)
}

func TestInvalidConfigFails(t *testing.T) {
	code, _, errOut := runCLI("-config", filepath.Join(t.TempDir(), "missing.json"), "train")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "config")

	cfg := writeConfig(t, `{"tile_size": -4}`)
	code, _, _ = runCLI("-config", cfg, "train")
	assert.Equal(t, 1, code)
}

func TestMigrateStatus(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	cfg := writeConfig(t, fmt.Sprintf(`{"ledger_path": %q}`, db))

	code, out, errOut := runCLI("-config", cfg, "migrate", "up")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Current version: 2")

	code, _, _ = runCLI("-config", cfg, "migrate")
	assert.Equal(t, 1, code)
}

func TestPredictWithoutInputsFails(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(`{"data_predict": [%q], "model_dir": %q}`,
		filepath.Join(dir, "*.tif"), filepath.Join(dir, "models")))

	code, _, errOut := runCLI("-config", cfg, "predict")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no input rasters")
}

func TestRunsListsRecordedRuns(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ledger.db")
	cfg := writeConfig(t, fmt.Sprintf(`{"ledger_path": %q, "data_predict": [%q], "model_dir": %q}`,
		db, filepath.Join(dir, "*.tif"), filepath.Join(dir, "models")))

	code, out, _ := runCLI("-config", cfg, "runs")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No runs recorded")

	// A failed predict run still leaves a ledger row.
	code, _, _ = runCLI("-config", cfg, "predict")
	require.Equal(t, 1, code)

	code, out, _ = runCLI("-config", cfg, "runs", "-kind", "predict")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "predict")
	assert.Contains(t, out, "failed")

	code, _, errOut := runCLI("-config", cfg, "runs", "missing-id")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")

	noLedger := writeConfig(t, `{"ledger_path": ""}`)
	code, _, errOut = runCLI("-config", noLedger, "runs")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "ledger_path is not configured")
}
