package dataset

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/nn"
	"github.com/banshee-data/landcover/internal/raster"
	"github.com/banshee-data/landcover/internal/tiling"
)

// Pair locates one image tile and its label tile.
type Pair struct {
	Image string
	Label string
}

// Sample is one decoded training example: a channel-first image normalised
// to [0, 1] and its per-pixel class labels.
type Sample struct {
	C, H, W int
	Image   []float32
	Label   []int16
}

// Dataset serves tile pairs written by a Builder.
type Dataset struct {
	pairs []Pair
	store raster.Store
}

// Open lists the tile pairs under dir. Every image must have a label of the
// same name.
func Open(fsys fsutil.FileSystem, store raster.Store, dir string) (*Dataset, error) {
	images, err := fsys.Glob(filepath.Join(dir, ImagesDir, "*.tif"))
	if err != nil {
		return nil, fmt.Errorf("list dataset images: %w", err)
	}
	ds := &Dataset{store: store}
	for _, img := range images {
		label := filepath.Join(dir, LabelsDir, filepath.Base(img))
		if !fsys.Exists(label) {
			return nil, fmt.Errorf("image %s has no label tile %s", img, label)
		}
		ds.pairs = append(ds.pairs, Pair{Image: img, Label: label})
	}
	if len(ds.pairs) == 0 {
		return nil, fmt.Errorf("no training tiles under %s", dir)
	}
	diagf("dataset %s: %d tile pairs", dir, len(ds.pairs))
	return ds, nil
}

// FromPairs builds a Dataset over known pairs.
func FromPairs(store raster.Store, pairs []Pair) *Dataset {
	return &Dataset{pairs: pairs, store: store}
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.pairs) }

// Pairs returns the tile pairs in listing order.
func (d *Dataset) Pairs() []Pair { return d.pairs }

// Load decodes sample i. When rng is non-nil the sample is randomly
// augmented.
func (d *Dataset) Load(i int, rng *rand.Rand) (*Sample, error) {
	p := d.pairs[i]
	img, err := d.store.Load(p.Image)
	if err != nil {
		return nil, err
	}
	mask, err := raster.LoadLabels(d.store, p.Label)
	if err != nil {
		return nil, err
	}
	if err := raster.CheckAligned(p.Image, img, mask); err != nil {
		return nil, err
	}

	img = raster.Normalize(img)
	whole := tiling.Spec{Height: img.Rows, Width: img.Cols}
	s := &Sample{C: img.Bands, H: img.Rows, W: img.Cols, Label: mask.Data}
	for t := range tiling.Extract(img, []tiling.Spec{whole}) {
		s.Image = t.CHW(nil)
	}
	if rng != nil {
		Augment(s, rng)
	}
	return s, nil
}

// LoadBatch decodes the given samples into one tensor and a flat label
// slice in the same order.
func (d *Dataset) LoadBatch(indices []int, rng *rand.Rand) (*nn.Tensor, []int16, error) {
	if len(indices) == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}
	var (
		images [][]float32
		labels []int16
		first  *Sample
	)
	for _, i := range indices {
		s, err := d.Load(i, rng)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = s
		} else if s.C != first.C || s.H != first.H || s.W != first.W {
			return nil, nil, fmt.Errorf("sample %s is %dx%dx%d, batch is %dx%dx%d",
				d.pairs[i].Image, s.C, s.H, s.W, first.C, first.H, first.W)
		}
		images = append(images, s.Image)
		labels = append(labels, s.Label...)
	}
	x, err := nn.Stack(first.C, first.H, first.W, images)
	if err != nil {
		return nil, nil, err
	}
	return x, labels, nil
}

// Split randomly partitions [0,n) into training and validation indices.
// The validation set holds int(n*testSize) samples.
func Split(n int, testSize float64, rng *rand.Rand) (train, val []int) {
	perm := rng.Perm(n)
	nVal := int(float64(n) * testSize)
	return perm[nVal:], perm[:nVal]
}

// Batches shuffles indices and cuts them into batches of at most size.
// The input slice is not modified.
func Batches(indices []int, size int, rng *rand.Rand) [][]int {
	shuffled := append([]int(nil), indices...)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	}
	var out [][]int
	for start := 0; start < len(shuffled); start += size {
		out = append(out, shuffled[start:min(start+size, len(shuffled))])
	}
	return out
}
