// Package testutil provides shared test utilities and fixtures.
//
// The fixtures build small rasters, write them through a raster.Store and
// stand in for a trained model, so pipeline tests stay independent of real
// imagery and checkpoints.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/nn"
	"github.com/banshee-data/landcover/internal/raster"
)

// ConstantRaster returns a raster with every sample set to v.
func ConstantRaster(rows, cols, bands int, dtype raster.DType, v float32) *raster.Raster {
	r := raster.New(rows, cols, bands, dtype)
	for i := range r.Data {
		r.Data[i] = v
	}
	return r
}

// WriteRaster saves r at path and fails the test on error.
func WriteRaster(t testing.TB, store raster.Store, path string, r *raster.Raster) {
	t.Helper()
	require.NoError(t, store.Save(path, r))
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(t testing.TB, fsys fsutil.FileSystem, path string) string {
	t.Helper()
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StubPredictor answers every tile with a mask filled with Class, or with
// Err when set.
type StubPredictor struct {
	Class float64
	Err   error

	calls atomic.Int64
	tiles atomic.Int64
}

// PredictBatch implements inference.Predictor.
func (p *StubPredictor) PredictBatch(ctx context.Context, x *nn.Tensor) ([]*mat.Dense, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]*mat.Dense, x.N)
	for n := range out {
		m := mat.NewDense(x.H, x.W, nil)
		for y := range x.H {
			for c := range x.W {
				m.Set(y, c, p.Class)
			}
		}
		out[n] = m
	}
	p.tiles.Add(int64(x.N))
	return out, nil
}

// Calls returns the number of PredictBatch calls.
func (p *StubPredictor) Calls() int { return int(p.calls.Load()) }

// Tiles returns the number of tiles answered.
func (p *StubPredictor) Tiles() int { return int(p.tiles.Load()) }
