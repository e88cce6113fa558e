package ledger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrateCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0 (dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"force", "2"}, path, &out))
	assert.Contains(t, out.String(), "Forced version 2")
	assert.Contains(t, out.String(), "Current version: 2")
}

func TestRunMigrateCommandErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	var out bytes.Buffer

	assert.Error(t, RunMigrateCommand(nil, path, &out))
	assert.Contains(t, out.String(), "Usage: landcover migrate")
	assert.Error(t, RunMigrateCommand([]string{"status"}, "", &out))
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"force"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"force", "two"}, path, &out))
	assert.NoError(t, RunMigrateCommand([]string{"help"}, path, &out))
}
