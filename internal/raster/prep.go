package raster

import (
	"fmt"
	"slices"
)

// SelectBands reorders and drops bands so the result carries exactly the
// output bands, in output order. inputBands names the bands of r in storage
// order. When output is empty, or r already has len(output) bands, r is
// returned unchanged.
func SelectBands(r *Raster, inputBands, output []string) (*Raster, error) {
	if len(output) == 0 || r.Bands == len(output) {
		return r, nil
	}
	if len(inputBands) != r.Bands {
		return nil, fmt.Errorf("raster has %d bands but %d input band names are configured", r.Bands, len(inputBands))
	}
	idx := make([]int, len(output))
	for i, name := range output {
		j := slices.Index(inputBands, name)
		if j < 0 {
			return nil, fmt.Errorf("output band %q not found in input bands %v", name, inputBands)
		}
		idx[i] = j
	}
	out, err := SelectBandIndices(r, idx)
	if err != nil {
		return nil, err
	}
	out.Meta.BandNames = slices.Clone(output)
	return out, nil
}

// SelectBandIndices builds a raster from the given zero-based band indices.
func SelectBandIndices(r *Raster, idx []int) (*Raster, error) {
	for _, b := range idx {
		if b < 0 || b >= r.Bands {
			return nil, fmt.Errorf("band index %d out of range [0,%d)", b, r.Bands)
		}
	}
	out := &Raster{
		Rows:       r.Rows,
		Cols:       r.Cols,
		Bands:      len(idx),
		Data:       make([]float32, r.Rows*r.Cols*len(idx)),
		Meta:       r.Meta,
		NoDataMask: r.NoDataMask,
	}
	out.Meta.BandNames = nil
	for p := 0; p < r.Rows*r.Cols; p++ {
		src := r.Data[p*r.Bands : (p+1)*r.Bands]
		dst := out.Data[p*out.Bands : (p+1)*out.Bands]
		for i, b := range idx {
			dst[i] = src[b]
		}
	}
	return out, nil
}

// Clip clamps every sample into [lo, hi].
func Clip(r *Raster, lo, hi float64) *Raster {
	out := r.Clone()
	l, h := float32(lo), float32(hi)
	for i, v := range out.Data {
		out.Data[i] = min(max(v, l), h)
	}
	return out
}

// Normalize divides every sample by the maximum value of the raster's
// source dtype. The result is a Float32 raster in [0, 1] for non-negative
// inputs.
func Normalize(r *Raster) *Raster {
	out := r.Clone()
	scale := float32(1 / r.Meta.DType.Max())
	for i, v := range out.Data {
		out.Data[i] = v * scale
	}
	out.Meta.DType = Float32
	return out
}

// ROI is a pixel window [YMin,YMax) x [XMin,XMax).
type ROI struct {
	YMin, YMax int
	XMin, XMax int
}

// Empty reports whether the window selects the whole raster.
func (w ROI) Empty() bool { return w == ROI{} }

func (w ROI) clamp(rows, cols int) (ROI, error) {
	if w.Empty() {
		return ROI{0, rows, 0, cols}, nil
	}
	if w.YMax <= 0 {
		w.YMax = rows
	}
	if w.XMax <= 0 {
		w.XMax = cols
	}
	if w.YMin < 0 || w.XMin < 0 || w.YMax > rows || w.XMax > cols || w.YMin >= w.YMax || w.XMin >= w.XMax {
		return ROI{}, fmt.Errorf("roi y[%d,%d) x[%d,%d) outside %dx%d raster", w.YMin, w.YMax, w.XMin, w.XMax, rows, cols)
	}
	return w, nil
}

// CropROI returns the window of r selected by w. A zero ROI returns r.
// Non-positive maxima extend to the raster edge.
func CropROI(r *Raster, w ROI) (*Raster, error) {
	if w.Empty() {
		return r, nil
	}
	w, err := w.clamp(r.Rows, r.Cols)
	if err != nil {
		return nil, err
	}
	rows, cols := w.YMax-w.YMin, w.XMax-w.XMin
	out := &Raster{Rows: rows, Cols: cols, Bands: r.Bands, Data: make([]float32, rows*cols*r.Bands), Meta: r.Meta}
	if r.NoDataMask != nil {
		out.NoDataMask = make([]bool, rows*cols)
	}
	for y := 0; y < rows; y++ {
		src := r.Index(w.YMin+y, w.XMin, 0)
		copy(out.Data[y*cols*r.Bands:(y+1)*cols*r.Bands], r.Data[src:src+cols*r.Bands])
		if r.NoDataMask != nil {
			srcRow := (w.YMin+y)*r.Cols + w.XMin
			copy(out.NoDataMask[y*cols:(y+1)*cols], r.NoDataMask[srcRow:srcRow+cols])
		}
	}
	out.Meta.Transform = shiftTransform(r.Meta.Transform, w.XMin, w.YMin)
	return out, nil
}

// CropLabelsROI returns the window of l selected by w.
func CropLabelsROI(l *Labels, w ROI) (*Labels, error) {
	if w.Empty() {
		return l, nil
	}
	w, err := w.clamp(l.Rows, l.Cols)
	if err != nil {
		return nil, err
	}
	out := NewLabels(w.YMax-w.YMin, w.XMax-w.XMin)
	for y := 0; y < out.Rows; y++ {
		src := (w.YMin+y)*l.Cols + w.XMin
		copy(out.Data[y*out.Cols:(y+1)*out.Cols], l.Data[src:src+out.Cols])
	}
	return out, nil
}

// shiftTransform moves the transform origin to pixel (col,row).
func shiftTransform(t GeoTransform, col, row int) GeoTransform {
	x, y := t.Apply(float64(col), float64(row))
	t[0], t[3] = x, y
	return t
}
