package tiling

import (
	"iter"

	"github.com/banshee-data/landcover/internal/raster"
)

// Tile is a read-only window of a raster. It does not copy pixel data.
type Tile struct {
	Spec Spec
	src  *raster.Raster
}

// Bands returns the number of channels.
func (t Tile) Bands() int { return t.src.Bands }

// At returns the sample of band at tile-relative (y, x).
func (t Tile) At(band, y, x int) float32 {
	return t.src.At(t.Spec.Row+y, t.Spec.Col+x, band)
}

// CHW copies the tile into channel-first order, reusing dst when it has
// enough capacity.
func (t Tile) CHW(dst []float32) []float32 {
	bands := t.src.Bands
	n := bands * t.Spec.Height * t.Spec.Width
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	plane := t.Spec.Height * t.Spec.Width
	for y := 0; y < t.Spec.Height; y++ {
		base := t.src.Index(t.Spec.Row+y, t.Spec.Col, 0)
		for x := 0; x < t.Spec.Width; x++ {
			px := t.src.Data[base+x*bands : base+(x+1)*bands]
			for b, v := range px {
				dst[b*plane+y*t.Spec.Width+x] = v
			}
		}
	}
	return dst
}

// Extract yields one Tile per spec, in order. r must already have the
// slicer's target shape. The sequence can be ranged over more than once.
func Extract(r *raster.Raster, specs []Spec) iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		for _, s := range specs {
			if !yield(Tile{Spec: s, src: r}) {
				return
			}
		}
	}
}
