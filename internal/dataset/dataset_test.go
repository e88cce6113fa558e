package dataset

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/raster"
)

func writePair(t *testing.T, store raster.Store, name string, rows, cols int) {
	t.Helper()
	img := raster.New(rows, cols, 3, raster.Uint8)
	mask := raster.NewLabels(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := int16((y*cols + x) % 4)
			mask.Set(y, x, v)
			img.Set(y, x, 0, float32(v)*51)
			img.Set(y, x, 2, 255)
		}
	}
	require.NoError(t, store.Save("ds/images/"+name, img))
	require.NoError(t, store.Save("ds/labels/"+name, mask.ToRaster(img.Meta)))
}

func TestOpenAndLoad(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	store := raster.NewTIFFStore(fsys)
	writePair(t, store, "a_0.tif", 4, 4)
	writePair(t, store, "a_1.tif", 4, 4)

	ds, err := Open(fsys, store, "ds")
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "ds/images/a_0.tif", ds.Pairs()[0].Image)
	assert.Equal(t, "ds/labels/a_0.tif", ds.Pairs()[0].Label)

	s, err := ds.Load(0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.C)
	assert.Equal(t, 4, s.H)
	assert.Len(t, s.Image, 48)
	assert.InDelta(t, 51.0/255, s.Image[1], 1e-6)
	assert.InDelta(t, 1, s.Image[2*16], 1e-6)
	assert.Equal(t, int16(1), s.Label[1])

	x, labels, err := ds.LoadBatch([]int{1, 0}, rand.New(rand.NewPCG(3, 3)))
	require.NoError(t, err)
	assert.Equal(t, 2, x.N)
	assert.Equal(t, 3, x.C)
	assert.Len(t, labels, 32)

	// Augmentation keeps image and label aligned.
	for n := 0; n < 2; n++ {
		for p := 0; p < 16; p++ {
			want := float32(labels[n*16+p]) * 51 / 255
			assert.InDelta(t, want, x.Data[n*48+p], 1e-6)
		}
	}

	_, _, err = ds.LoadBatch(nil, nil)
	assert.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	store := raster.NewTIFFStore(fsys)

	_, err := Open(fsys, store, "ds")
	assert.Error(t, err, "empty dataset")

	require.NoError(t, store.Save("ds/images/orphan.tif", raster.New(2, 2, 1, raster.Uint8)))
	_, err = Open(fsys, store, "ds")
	assert.Error(t, err, "image without label")
}

func TestLoadBatchRejectsMixedShapes(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	store := raster.NewTIFFStore(fsys)
	writePair(t, store, "a.tif", 4, 4)
	writePair(t, store, "b.tif", 2, 2)

	ds, err := Open(fsys, store, "ds")
	require.NoError(t, err)
	_, _, err = ds.LoadBatch([]int{0, 1}, nil)
	assert.Error(t, err)
}

func sample2x3() *Sample {
	// Label and single band both hold 0..5 row-major.
	return &Sample{
		C: 1, H: 2, W: 3,
		Image: []float32{0, 1, 2, 3, 4, 5},
		Label: []int16{0, 1, 2, 3, 4, 5},
	}
}

func TestFlips(t *testing.T) {
	t.Parallel()

	s := sample2x3()
	FlipLR(s)
	assert.Equal(t, []int16{2, 1, 0, 5, 4, 3}, s.Label)
	assert.Equal(t, []float32{2, 1, 0, 5, 4, 3}, s.Image)

	s = sample2x3()
	FlipUD(s)
	assert.Equal(t, []int16{3, 4, 5, 0, 1, 2}, s.Label)
}

func TestRot90(t *testing.T) {
	t.Parallel()

	// [[0 1 2] [3 4 5]] rotated counter-clockwise is [[2 5] [1 4] [0 3]].
	s := sample2x3()
	Rot90(s, 1)
	assert.Equal(t, 3, s.H)
	assert.Equal(t, 2, s.W)
	assert.Equal(t, []int16{2, 5, 1, 4, 0, 3}, s.Label)
	assert.Equal(t, []float32{2, 5, 1, 4, 0, 3}, s.Image)

	s = sample2x3()
	Rot90(s, 2)
	assert.Equal(t, []int16{5, 4, 3, 2, 1, 0}, s.Label)

	s = sample2x3()
	Rot90(s, 4)
	assert.Equal(t, sample2x3(), s)
	Rot90(s, -1)
	Rot90(s, 1)
	assert.Equal(t, sample2x3(), s)
}

func TestAugmentKeepsAlignment(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 50; i++ {
		s := &Sample{C: 2, H: 3, W: 3, Image: make([]float32, 18), Label: make([]int16, 9)}
		for p := 0; p < 9; p++ {
			s.Label[p] = int16(p)
			s.Image[p] = float32(p)
			s.Image[9+p] = float32(-p)
		}
		Augment(s, rng)
		for p := 0; p < 9; p++ {
			assert.Equal(t, float32(s.Label[p]), s.Image[p])
			assert.Equal(t, float32(-s.Label[p]), s.Image[9+p])
		}
		got := slices.Clone(s.Label)
		slices.Sort(got)
		assert.Equal(t, []int16{0, 1, 2, 3, 4, 5, 6, 7, 8}, got)
	}
}

func TestAugmentSkipsOddRotationForRectangles(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(5, 5))
	for i := 0; i < 50; i++ {
		s := sample2x3()
		Augment(s, rng)
		assert.Equal(t, 2, s.H)
		assert.Equal(t, 3, s.W)
	}
}

func sample3x3() *Sample {
	s := &Sample{C: 1, H: 3, W: 3, Image: make([]float32, 9), Label: make([]int16, 9)}
	for p := range 9 {
		s.Image[p] = float32(p)
		s.Label[p] = int16(p)
	}
	return s
}

func TestAugmentDrawOrder(t *testing.T) {
	t.Parallel()

	for seed := uint64(0); seed < 32; seed++ {
		got := sample3x3()
		Augment(got, rand.New(rand.NewPCG(seed, 7)))

		// Replay the same stream: fliplr, flipud, then rot90 k=1, 2, 3,
		// each its own draw.
		want := sample3x3()
		draws := rand.New(rand.NewPCG(seed, 7))
		if draws.Float64() < 0.5 {
			FlipLR(want)
		}
		if draws.Float64() < 0.5 {
			FlipUD(want)
		}
		for k := 1; k <= 3; k++ {
			if draws.Float64() < 0.5 {
				Rot90(want, k)
			}
		}
		assert.Equal(t, want, got, "seed %d", seed)
	}
}

func TestAugmentConsumesFiveDraws(t *testing.T) {
	t.Parallel()

	for _, s := range []*Sample{sample3x3(), sample2x3()} {
		rng := rand.New(rand.NewPCG(3, 4))
		twin := rand.New(rand.NewPCG(3, 4))
		Augment(s, rng)
		for range 5 {
			twin.Float64()
		}
		assert.Equal(t, twin.Uint64(), rng.Uint64())
	}
}

func TestAugmentCoversDihedralGroupEvenly(t *testing.T) {
	t.Parallel()

	// Independent flips and rotations by 1, 2 and 3 quarter turns reach
	// each of the eight symmetries of a square equally often.
	rng := rand.New(rand.NewPCG(11, 12))
	counts := make(map[[4]int16]int)
	const n = 16000
	for range n {
		s := &Sample{C: 1, H: 2, W: 2, Image: []float32{0, 1, 2, 3}, Label: []int16{0, 1, 2, 3}}
		Augment(s, rng)
		counts[[4]int16(s.Label)]++
	}
	require.Len(t, counts, 8)
	for k, c := range counts {
		assert.InDelta(t, 0.125, float64(c)/n, 0.02, "layout %v", k)
	}
}

func TestSplitAndBatches(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	train, val := Split(10, 0.2, rng)
	assert.Len(t, train, 8)
	assert.Len(t, val, 2)
	all := append(slices.Clone(train), val...)
	slices.Sort(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	train, val = Split(3, 0.2, rng)
	assert.Len(t, train, 3)
	assert.Empty(t, val)

	idx := []int{0, 1, 2, 3, 4, 5, 6}
	batches := Batches(idx, 3, rng)
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)
	var flat []int
	for _, b := range batches {
		flat = append(flat, b...)
	}
	slices.Sort(flat)
	assert.Equal(t, idx, flat)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, idx, "input modified")

	assert.Equal(t, [][]int{{0, 1}, {2}}, Batches([]int{0, 1, 2}, 2, nil))
}
