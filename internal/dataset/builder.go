package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/raster"
	"github.com/banshee-data/landcover/internal/tiling"
)

// Directory names under the dataset root.
const (
	ImagesDir = "images"
	LabelsDir = "labels"
)

// BuildOptions configures a Builder. It is not modified after construction.
type BuildOptions struct {
	InputBands    []string
	OutputBands   []string
	ValueMin      float64
	ValueMax      float64
	ShiftOneBased bool
	Rules         []raster.RelabelRule
	Tile          tiling.Size
	Seed          int64
	DatasetDir    string
}

// Builder cuts labelled scenes into random training tile pairs.
type Builder struct {
	opts  BuildOptions
	store raster.Store
	fs    fsutil.FileSystem
}

// NewBuilder returns a Builder reading and writing rasters through store.
func NewBuilder(opts BuildOptions, store raster.Store, fsys fsutil.FileSystem) (*Builder, error) {
	if opts.Tile.Rows <= 0 || opts.Tile.Cols <= 0 {
		return nil, fmt.Errorf("%w: tile size %s", tiling.ErrInvalidGeometry, opts.Tile)
	}
	if opts.DatasetDir == "" {
		return nil, fmt.Errorf("dataset directory is required")
	}
	return &Builder{opts: opts, store: store, fs: fsys}, nil
}

// EntryResult reports what happened to one manifest entry.
type EntryResult struct {
	Entry   Entry
	Tiles   int
	Classes []int16
	Err     error
}

// Build processes every entry. Failures are reported per entry and do not
// stop the remaining entries; only a cancelled context ends the build early.
func (b *Builder) Build(ctx context.Context, entries []Entry) ([]EntryResult, error) {
	for _, dir := range []string{ImagesDir, LabelsDir} {
		if err := b.fs.MkdirAll(filepath.Join(b.opts.DatasetDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("create dataset dir: %w", err)
		}
	}

	results := make([]EntryResult, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := EntryResult{Entry: e}
		res.Tiles, res.Classes, res.Err = b.BuildEntry(i, e)
		if res.Err != nil {
			opsf("entry %d (%s): %v", i, e.Data, res.Err)
		} else {
			diagf("entry %d (%s): wrote %d tiles, classes %v", i, e.Data, res.Tiles, res.Classes)
		}
		results = append(results, res)
	}
	return results, nil
}

// BuildEntry prepares one scene and writes its tiles. index seeds the patch
// draw together with the configured seed, so reruns are reproducible.
func (b *Builder) BuildEntry(index int, e Entry) (int, []int16, error) {
	img, mask, err := b.prepare(e)
	if err != nil {
		return 0, nil, err
	}

	origins, err := RandomPatches(img.Rows, img.Cols, b.opts.Tile, e.NTiles, b.rng(index))
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", e.Data, err)
	}

	stem := raster.Stem(e.Data)
	for id, o := range origins {
		roi := raster.ROI{YMin: o.Row, YMax: o.Row + b.opts.Tile.Rows, XMin: o.Col, XMax: o.Col + b.opts.Tile.Cols}
		imgTile, err := raster.CropROI(img, roi)
		if err != nil {
			return id, nil, err
		}
		maskTile, err := raster.CropLabelsROI(mask, roi)
		if err != nil {
			return id, nil, err
		}
		labelMeta := imgTile.Meta
		labelMeta.NoData = nil
		name := fmt.Sprintf("%s_%d.tif", stem, id)
		if err := b.store.Save(filepath.Join(b.opts.DatasetDir, ImagesDir, name), imgTile); err != nil {
			return id, nil, fmt.Errorf("save image tile: %w", err)
		}
		if err := b.store.Save(filepath.Join(b.opts.DatasetDir, LabelsDir, name), maskTile.ToRaster(labelMeta)); err != nil {
			return id, nil, fmt.Errorf("save label tile: %w", err)
		}
		tracef("%s: tile %d at (%d,%d)", stem, id, o.Row, o.Col)
	}
	return len(origins), raster.Classes(mask), nil
}

// prepare loads an entry, checks that image and mask share a grid, then
// applies band selection, label fixes, clipping and the region of
// interest, in that order.
func (b *Builder) prepare(e Entry) (*raster.Raster, *raster.Labels, error) {
	img, err := b.store.Load(e.Data)
	if err != nil {
		return nil, nil, err
	}
	mask, err := raster.LoadLabels(b.store, e.Label)
	if err != nil {
		return nil, nil, err
	}

	if err := raster.CheckAligned(e.Data, img, mask); err != nil {
		return nil, nil, err
	}

	img, err = raster.SelectBands(img, b.opts.InputBands, b.opts.OutputBands)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", e.Data, err)
	}
	if b.opts.ShiftOneBased && raster.ShiftOneBased(mask) {
		diagf("%s: shifted 1-based labels to 0-based", e.Label)
	}
	for name, n := range raster.ApplyRules(mask, b.opts.Rules) {
		if n > 0 {
			diagf("%s: rule %s relabelled %d pixels", e.Label, name, n)
		}
	}
	img = raster.Clip(img, b.opts.ValueMin, b.opts.ValueMax)

	if img, err = raster.CropROI(img, e.ROI); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", e.Data, err)
	}
	if mask, err = raster.CropLabelsROI(mask, e.ROI); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", e.Label, err)
	}
	return img, mask, nil
}

func (b *Builder) rng(index int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(b.opts.Seed), uint64(index)))
}

// RandomPatches draws n tile origins uniformly, with replacement, such that
// every tile lies inside a rows x cols raster.
func RandomPatches(rows, cols int, tile tiling.Size, n int, rng *rand.Rand) ([]tiling.Spec, error) {
	if tile.Rows > rows || tile.Cols > cols {
		return nil, fmt.Errorf("%w: tile %s larger than %dx%d scene", tiling.ErrInvalidGeometry, tile, rows, cols)
	}
	out := make([]tiling.Spec, n)
	for i := range out {
		out[i] = tiling.Spec{
			Row:    rng.IntN(rows - tile.Rows + 1),
			Col:    rng.IntN(cols - tile.Cols + 1),
			Height: tile.Rows,
			Width:  tile.Cols,
		}
	}
	return out, nil
}
