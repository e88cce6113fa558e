package postprocess

import (
	"fmt"
	"math"
	"slices"

	"gocv.io/x/gocv"

	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/raster"
)

// Median replaces each pixel with the median class in its footprint. For
// even-sized footprints the upper median is used.
type Median struct {
	fp footprint
}

func (m *Median) String() string { return fmt.Sprintf("%s %s", config.MethodMedian, m.fp) }

// Apply runs the filter. Odd square footprints over masks with at most 256
// distinct classes go through OpenCV's median blur on 8-bit class
// indices. Other square footprints use a sliding class histogram, and
// ellipses count their footprint pixel by pixel.
func (m *Median) Apply(l *raster.Labels) *raster.Labels {
	if len(l.Data) == 0 {
		return l.Clone()
	}
	classes := raster.Classes(l)
	index := make(map[int16]int32, len(classes))
	for i, c := range classes {
		index[c] = int32(i)
	}
	idx := make([]int32, len(l.Data))
	for i, v := range l.Data {
		idx[i] = index[v]
	}

	out := raster.NewLabels(l.Rows, l.Cols)
	if m.blurrable(len(classes)) {
		m.blur(l, idx, classes, out)
		return out
	}
	hist := make([]int, len(classes))
	if m.fp.square() {
		m.slide(l, idx, hist, classes, out)
		return out
	}

	rank := len(m.fp.offsets) / 2
	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			clear(hist)
			for _, off := range m.fp.offsets {
				yy := reflect(y+off[0], l.Rows)
				xx := reflect(x+off[1], l.Cols)
				hist[idx[yy*l.Cols+xx]]++
			}
			out.Data[y*l.Cols+x] = classes[rankOf(hist, rank)]
		}
	}
	return out
}

// blurrable reports whether cv::medianBlur can run the filter: it takes
// odd square apertures, and 8-bit data once the aperture exceeds 5.
func (m *Median) blurrable(nclasses int) bool {
	return m.fp.square() && m.fp.size > 1 && m.fp.size%2 == 1 && nclasses <= math.MaxUint8+1
}

// blur filters class indices, which preserve class order, so the median
// index maps back to the median class. The mirrored border is added before
// the blur so OpenCV's own replicated border is never read.
func (m *Median) blur(l *raster.Labels, idx []int32, classes []int16, out *raster.Labels) {
	small := make([]uint8, len(idx))
	for i, v := range idx {
		small[i] = uint8(v)
	}
	pad := m.fp.size / 2
	src := paddedMat8(small, l.Rows, l.Cols, pad)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.MedianBlur(src, &dst, m.fp.size)

	for y := 0; y < l.Rows; y++ {
		for x := 0; x < l.Cols; x++ {
			out.Data[y*l.Cols+x] = classes[dst.GetUCharAt(y+pad, x+pad)]
		}
	}
}

func (m *Median) slide(l *raster.Labels, idx []int32, hist []int, classes []int16, out *raster.Labels) {
	lo, hi := m.fp.lo, m.fp.hi
	rank := m.fp.size * m.fp.size / 2
	rows := make([]int, m.fp.size)

	for y := 0; y < l.Rows; y++ {
		for i := range rows {
			rows[i] = reflect(y+lo+i, l.Rows) * l.Cols
		}
		clear(hist)
		for dx := lo; dx <= hi; dx++ {
			xx := reflect(dx, l.Cols)
			for _, r := range rows {
				hist[idx[r+xx]]++
			}
		}
		out.Data[y*l.Cols] = classes[rankOf(hist, rank)]

		for x := 1; x < l.Cols; x++ {
			drop := reflect(x-1+lo, l.Cols)
			add := reflect(x+hi, l.Cols)
			for _, r := range rows {
				hist[idx[r+drop]]--
				hist[idx[r+add]]++
			}
			out.Data[y*l.Cols+x] = classes[rankOf(hist, rank)]
		}
	}
}

// rankOf returns the histogram bin holding the rank-th smallest sample.
func rankOf(hist []int, rank int) int {
	seen := 0
	for i, n := range hist {
		seen += n
		if seen > rank {
			return i
		}
	}
	return slices.Index(hist, slices.Max(hist))
}
