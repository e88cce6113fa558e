package raster

import (
	"fmt"
	"math"
	"slices"
)

// DType is the on-disk sample type of a raster.
type DType int

const (
	DTypeUnknown DType = iota
	Uint8
	Uint16
	Int16
	Float32
)

var dtypeNames = map[DType]string{
	DTypeUnknown: "unknown",
	Uint8:        "uint8",
	Uint16:       "uint16",
	Int16:        "int16",
	Float32:      "float32",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

// ParseDType parses a dtype name such as "int16".
func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if name == s && d != DTypeUnknown {
			return d, nil
		}
	}
	return DTypeUnknown, fmt.Errorf("unknown dtype %q", s)
}

// Max returns the largest value representable by the type. Float rasters are
// assumed to be normalised already and report 1.
func (d DType) Max() float64 {
	switch d {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Int16:
		return math.MaxInt16
	default:
		return 1
	}
}

// GeoTransform holds the six affine coefficients mapping pixel (col,row) to
// map coordinates: x = t[0] + col*t[1] + row*t[2], y = t[3] + col*t[4] + row*t[5].
type GeoTransform [6]float64

// IdentityTransform is the transform used when a raster carries no
// georeferencing.
var IdentityTransform = GeoTransform{0, 1, 0, 0, 0, 1}

// Apply maps a pixel position to map coordinates.
func (t GeoTransform) Apply(col, row float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Meta is the georeferencing carried from a source raster to its outputs.
type Meta struct {
	Transform GeoTransform
	CRS       string
	NoData    *float64
	DType     DType
	BandNames []string
}

// Raster is a rows x cols x bands image stored channel-last.
// Treat it as immutable once loaded; operations return new rasters.
type Raster struct {
	Rows  int
	Cols  int
	Bands int
	Data  []float32
	Meta  Meta

	// NoDataMask marks pixels with no source data. Nil means every pixel
	// is valid.
	NoDataMask []bool
}

// New allocates a zero-filled raster.
func New(rows, cols, bands int, dtype DType) *Raster {
	return &Raster{
		Rows:  rows,
		Cols:  cols,
		Bands: bands,
		Data:  make([]float32, rows*cols*bands),
		Meta:  Meta{Transform: IdentityTransform, DType: dtype},
	}
}

// Index returns the offset of (row, col, band) in Data.
func (r *Raster) Index(row, col, band int) int {
	return (row*r.Cols+col)*r.Bands + band
}

// At returns the sample at (row, col, band).
func (r *Raster) At(row, col, band int) float32 {
	return r.Data[r.Index(row, col, band)]
}

// Set stores a sample at (row, col, band).
func (r *Raster) Set(row, col, band int, v float32) {
	r.Data[r.Index(row, col, band)] = v
}

// IsNoData reports whether the pixel carries no source data.
func (r *Raster) IsNoData(row, col int) bool {
	return r.NoDataMask != nil && r.NoDataMask[row*r.Cols+col]
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Data = slices.Clone(r.Data)
	out.NoDataMask = slices.Clone(r.NoDataMask)
	out.Meta.BandNames = slices.Clone(r.Meta.BandNames)
	if r.Meta.NoData != nil {
		v := *r.Meta.NoData
		out.Meta.NoData = &v
	}
	return &out
}

// Labels is a single-band class mask. Samples are int16 so the output
// no-data sentinel fits alongside class indices.
type Labels struct {
	Rows int
	Cols int
	Data []int16
}

// NewLabels allocates a zero-filled mask.
func NewLabels(rows, cols int) *Labels {
	return &Labels{Rows: rows, Cols: cols, Data: make([]int16, rows*cols)}
}

// At returns the class at (row, col).
func (l *Labels) At(row, col int) int16 { return l.Data[row*l.Cols+col] }

// Set stores the class at (row, col).
func (l *Labels) Set(row, col int, v int16) { l.Data[row*l.Cols+col] = v }

// Clone returns a deep copy.
func (l *Labels) Clone() *Labels {
	return &Labels{Rows: l.Rows, Cols: l.Cols, Data: slices.Clone(l.Data)}
}

// Fill sets every pixel to v.
func (l *Labels) Fill(v int16) {
	for i := range l.Data {
		l.Data[i] = v
	}
}

// ToRaster wraps the mask as a single-band int16 raster carrying meta.
func (l *Labels) ToRaster(meta Meta) *Raster {
	r := &Raster{Rows: l.Rows, Cols: l.Cols, Bands: 1, Data: make([]float32, len(l.Data)), Meta: meta}
	r.Meta.DType = Int16
	r.Meta.BandNames = nil
	for i, v := range l.Data {
		r.Data[i] = float32(v)
	}
	return r
}

// ToLabels squeezes a single-band raster into a class mask.
func ToLabels(r *Raster) (*Labels, error) {
	if r.Bands != 1 {
		return nil, fmt.Errorf("label raster must have a single band, got %d", r.Bands)
	}
	l := NewLabels(r.Rows, r.Cols)
	for i, v := range r.Data {
		l.Data[i] = int16(math.Round(float64(v)))
	}
	return l, nil
}
