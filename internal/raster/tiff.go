package raster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"math"

	"golang.org/x/image/tiff"

	"github.com/banshee-data/landcover/internal/fsutil"
)

// SidecarSuffix is appended to a raster path to name its georeferencing
// sidecar.
const SidecarSuffix = ".geo.json"

// sidecar is the JSON document stored next to each TIFF. The TIFF carries
// pixels; the sidecar carries everything a GeoTIFF would keep in GeoKeys.
type sidecar struct {
	Transform GeoTransform `json:"transform"`
	CRS       string       `json:"crs,omitempty"`
	NoData    *float64     `json:"nodata,omitempty"`
	DType     string       `json:"dtype"`
	Bands     int          `json:"bands"`
	BandNames []string     `json:"band_names,omitempty"`
	Layout    string       `json:"layout,omitempty"`
}

// layoutStacked marks a single-channel TIFF whose height is rows*bands with
// the bands stored one above another. It carries band counts the baseline
// photometric interpretations cannot.
const layoutStacked = "stacked"

// TIFFStore reads and writes rasters as baseline TIFF files plus a JSON
// georeferencing sidecar. It handles 1, 3 or 4 band rasters of 8 or 16 bit
// samples directly, and any other band count as a band-stacked single
// channel image; int16 rasters are stored as their two's complement bit pattern
// and recovered through the sidecar dtype.
type TIFFStore struct {
	FS fsutil.FileSystem
}

// NewTIFFStore returns a TIFFStore over fsys.
func NewTIFFStore(fsys fsutil.FileSystem) *TIFFStore {
	return &TIFFStore{FS: fsys}
}

// Load decodes the raster at path and applies its sidecar, if present.
func (s *TIFFStore) Load(path string) (*Raster, error) {
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return nil, &InputIOError{Path: path, Err: err}
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InputIOError{Path: path, Err: err}
	}

	sc, err := s.readSidecar(path)
	if err != nil {
		return nil, &InputIOError{Path: path, Err: err}
	}

	var r *Raster
	if sc != nil && sc.Layout == layoutStacked {
		r, err = fromStackedImage(img, sc)
	} else {
		r, err = fromImage(img, sc)
	}
	if err != nil {
		return nil, &InputIOError{Path: path, Err: err}
	}
	tracef("loaded %s: %dx%dx%d %s", path, r.Rows, r.Cols, r.Bands, r.Meta.DType)
	return r, nil
}

// Save encodes r to path. The TIFF and sidecar are written to temporary
// names and renamed into place, sidecar first, so the TIFF's existence
// implies a complete output.
func (s *TIFFStore) Save(path string, r *Raster) error {
	var (
		img    image.Image
		layout string
		err    error
	)
	if stacked(r) {
		img, err = toStackedImage(r)
		layout = layoutStacked
	} else {
		img, err = toImage(r)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	sc := sidecar{
		Transform: r.Meta.Transform,
		CRS:       r.Meta.CRS,
		NoData:    r.Meta.NoData,
		DType:     r.Meta.DType.String(),
		Bands:     r.Bands,
		BandNames: r.Meta.BandNames,
		Layout:    layout,
	}
	scData, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	scPath := path + SidecarSuffix
	if err := s.FS.WriteFile(scPath+".tmp", scData, 0644); err != nil {
		return fmt.Errorf("write sidecar for %s: %w", path, err)
	}
	if err := s.FS.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := s.FS.Rename(scPath+".tmp", scPath); err != nil {
		return fmt.Errorf("finalise sidecar for %s: %w", path, err)
	}
	if err := s.FS.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalise %s: %w", path, err)
	}
	tracef("saved %s: %dx%dx%d %s", path, r.Rows, r.Cols, r.Bands, r.Meta.DType)
	return nil
}

func (s *TIFFStore) readSidecar(path string) (*sidecar, error) {
	data, err := s.FS.ReadFile(path + SidecarSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	return &sc, nil
}

// fromImage converts a decoded image into a Raster, honouring the sidecar's
// dtype and band count when present.
func fromImage(img image.Image, sc *sidecar) (*Raster, error) {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()

	var (
		bands int
		dtype DType
		read  func(x, y int, dst []float32)
	)
	switch im := img.(type) {
	case *image.Gray:
		bands, dtype = 1, Uint8
		read = func(x, y int, dst []float32) { dst[0] = float32(im.GrayAt(x, y).Y) }
	case *image.Gray16:
		bands, dtype = 1, Uint16
		read = func(x, y int, dst []float32) { dst[0] = float32(im.Gray16At(x, y).Y) }
	case *image.Paletted:
		bands, dtype = 1, Uint8
		read = func(x, y int, dst []float32) { dst[0] = float32(im.ColorIndexAt(x, y)) }
	case *image.RGBA, *image.NRGBA:
		bands, dtype = 4, Uint8
		read = func(x, y int, dst []float32) {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst[0], dst[1], dst[2], dst[3] = float32(c.R), float32(c.G), float32(c.B), float32(c.A)
		}
	case *image.RGBA64, *image.NRGBA64:
		bands, dtype = 4, Uint16
		read = func(x, y int, dst []float32) {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			dst[0], dst[1], dst[2], dst[3] = float32(c.R), float32(c.G), float32(c.B), float32(c.A)
		}
	default:
		return nil, fmt.Errorf("unsupported tiff layout %T", img)
	}

	keep := bands
	meta := Meta{Transform: IdentityTransform, DType: dtype}
	if sc != nil {
		if sc.Bands > 0 {
			if sc.Bands > bands {
				return nil, fmt.Errorf("sidecar declares %d bands but tiff holds %d", sc.Bands, bands)
			}
			keep = sc.Bands
		}
		meta.Transform = sc.Transform
		meta.CRS = sc.CRS
		meta.NoData = sc.NoData
		meta.BandNames = sc.BandNames
		if sc.DType != "" {
			d, err := ParseDType(sc.DType)
			if err != nil {
				return nil, err
			}
			meta.DType = d
		}
	} else if bands == 4 {
		// Without a sidecar, RGB files decode with an opaque alpha we drop.
		keep = 3
	}

	r := &Raster{Rows: rows, Cols: cols, Bands: keep, Data: make([]float32, rows*cols*keep), Meta: meta}
	px := make([]float32, bands)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			read(b.Min.X+x, b.Min.Y+y, px)
			if meta.DType == Int16 {
				for i := range px {
					px[i] = float32(int16(uint16(px[i])))
				}
			}
			copy(r.Data[(y*cols+x)*keep:(y*cols+x+1)*keep], px[:keep])
		}
	}

	applyNoData(r)
	return r, nil
}

// applyNoData derives the nodata mask from the first band.
func applyNoData(r *Raster) {
	if r.Meta.NoData == nil {
		return
	}
	nd := float32(*r.Meta.NoData)
	r.NoDataMask = make([]bool, r.Rows*r.Cols)
	for p := range r.NoDataMask {
		r.NoDataMask[p] = r.Data[p*r.Bands] == nd
	}
}

func stacked(r *Raster) bool {
	return r.Bands != 1 && r.Bands != 3 && r.Bands != 4
}

func toStackedImage(r *Raster) (image.Image, error) {
	if r.Meta.DType != Uint8 && r.Meta.DType != Uint16 && r.Meta.DType != Int16 {
		return nil, fmt.Errorf("tiff store cannot write %d band %s rasters", r.Bands, r.Meta.DType)
	}
	rect := image.Rect(0, 0, r.Cols, r.Rows*r.Bands)
	if r.Meta.DType == Uint8 {
		im := image.NewGray(rect)
		for b := 0; b < r.Bands; b++ {
			for y := 0; y < r.Rows; y++ {
				for x := 0; x < r.Cols; x++ {
					im.SetGray(x, b*r.Rows+y, color.Gray{Y: uint8(clampTo(r.At(y, x, b), 0, math.MaxUint8))})
				}
			}
		}
		return im, nil
	}
	im := image.NewGray16(rect)
	for b := 0; b < r.Bands; b++ {
		for y := 0; y < r.Rows; y++ {
			for x := 0; x < r.Cols; x++ {
				im.SetGray16(x, b*r.Rows+y, color.Gray16{Y: encode16(r.At(y, x, b), r.Meta.DType)})
			}
		}
	}
	return im, nil
}

func fromStackedImage(img image.Image, sc *sidecar) (*Raster, error) {
	b := img.Bounds()
	if sc.Bands <= 0 || b.Dy()%sc.Bands != 0 {
		return nil, fmt.Errorf("stacked tiff height %d is not a multiple of %d bands", b.Dy(), sc.Bands)
	}
	dtype, err := ParseDType(sc.DType)
	if err != nil {
		return nil, err
	}
	rows, cols := b.Dy()/sc.Bands, b.Dx()
	r := &Raster{
		Rows:  rows,
		Cols:  cols,
		Bands: sc.Bands,
		Data:  make([]float32, rows*cols*sc.Bands),
		Meta: Meta{
			Transform: sc.Transform,
			CRS:       sc.CRS,
			NoData:    sc.NoData,
			DType:     dtype,
			BandNames: sc.BandNames,
		},
	}
	var sample func(x, y int) float32
	switch im := img.(type) {
	case *image.Gray:
		sample = func(x, y int) float32 { return float32(im.GrayAt(x, y).Y) }
	case *image.Gray16:
		sample = func(x, y int) float32 {
			v := im.Gray16At(x, y).Y
			if dtype == Int16 {
				return float32(int16(v))
			}
			return float32(v)
		}
	default:
		return nil, fmt.Errorf("stacked tiff must be single channel, got %T", img)
	}
	for band := 0; band < r.Bands; band++ {
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				r.Set(y, x, band, sample(b.Min.X+x, b.Min.Y+band*rows+y))
			}
		}
	}
	diagf("unstacked %d bands from %dx%d tiff", r.Bands, b.Dx(), b.Dy())
	applyNoData(r)
	return r, nil
}

// toImage encodes a raster into the image type matching its band count and
// dtype.
func toImage(r *Raster) (image.Image, error) {
	rect := image.Rect(0, 0, r.Cols, r.Rows)
	switch {
	case r.Bands == 1 && r.Meta.DType == Uint8:
		im := image.NewGray(rect)
		for y := 0; y < r.Rows; y++ {
			for x := 0; x < r.Cols; x++ {
				im.SetGray(x, y, color.Gray{Y: uint8(clampTo(r.At(y, x, 0), 0, math.MaxUint8))})
			}
		}
		return im, nil
	case r.Bands == 1 && (r.Meta.DType == Uint16 || r.Meta.DType == Int16):
		im := image.NewGray16(rect)
		for y := 0; y < r.Rows; y++ {
			for x := 0; x < r.Cols; x++ {
				im.SetGray16(x, y, color.Gray16{Y: encode16(r.At(y, x, 0), r.Meta.DType)})
			}
		}
		return im, nil
	case (r.Bands == 3 || r.Bands == 4) && r.Meta.DType == Uint8:
		im := image.NewNRGBA(rect)
		for y := 0; y < r.Rows; y++ {
			for x := 0; x < r.Cols; x++ {
				c := color.NRGBA{A: math.MaxUint8}
				c.R = uint8(clampTo(r.At(y, x, 0), 0, math.MaxUint8))
				c.G = uint8(clampTo(r.At(y, x, 1), 0, math.MaxUint8))
				c.B = uint8(clampTo(r.At(y, x, 2), 0, math.MaxUint8))
				if r.Bands == 4 {
					c.A = uint8(clampTo(r.At(y, x, 3), 0, math.MaxUint8))
				}
				im.SetNRGBA(x, y, c)
			}
		}
		return im, nil
	case (r.Bands == 3 || r.Bands == 4) && (r.Meta.DType == Uint16 || r.Meta.DType == Int16):
		im := image.NewNRGBA64(rect)
		for y := 0; y < r.Rows; y++ {
			for x := 0; x < r.Cols; x++ {
				c := color.NRGBA64{A: math.MaxUint16}
				c.R = encode16(r.At(y, x, 0), r.Meta.DType)
				c.G = encode16(r.At(y, x, 1), r.Meta.DType)
				c.B = encode16(r.At(y, x, 2), r.Meta.DType)
				if r.Bands == 4 {
					c.A = encode16(r.At(y, x, 3), r.Meta.DType)
				}
				im.SetNRGBA64(x, y, c)
			}
		}
		return im, nil
	}
	return nil, fmt.Errorf("tiff store cannot write %d band %s rasters", r.Bands, r.Meta.DType)
}

func encode16(v float32, d DType) uint16 {
	if d == Int16 {
		return uint16(int16(clampTo(v, math.MinInt16, math.MaxInt16)))
	}
	return uint16(clampTo(v, 0, math.MaxUint16))
}

func clampTo(v float32, lo, hi float64) float64 {
	f := math.Round(float64(v))
	return math.Min(math.Max(f, lo), hi)
}
