package raster

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/landcover/internal/fsutil"
)

func TestTIFFStoreRoundTrip(t *testing.T) {
	t.Parallel()

	nodata := -9999.0
	cases := []struct {
		name  string
		bands int
		dtype DType
		fill  func(i int) float32
		meta  func(*Meta)
	}{
		{name: "uint8 gray", bands: 1, dtype: Uint8, fill: func(i int) float32 { return float32(i % 256) }},
		{name: "uint16 rgb", bands: 3, dtype: Uint16, fill: func(i int) float32 { return float32(i * 97 % 65536) }},
		{name: "uint8 rgba", bands: 4, dtype: Uint8, fill: func(i int) float32 { return float32(i % 200) }},
		{name: "uint16 eight band", bands: 8, dtype: Uint16, fill: func(i int) float32 { return float32(i) }},
		{
			name:  "int16 labels with nodata",
			bands: 1,
			dtype: Int16,
			fill: func(i int) float32 {
				if i%5 == 0 {
					return -9999
				}
				return float32(i % 7)
			},
			meta: func(m *Meta) { m.NoData = &nodata },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fsys := fsutil.NewMemoryFileSystem()
			store := NewTIFFStore(fsys)

			r := New(6, 5, tc.bands, tc.dtype)
			for i := range r.Data {
				r.Data[i] = tc.fill(i)
			}
			r.Meta.Transform = GeoTransform{10, 1, 0, 20, 0, -1}
			r.Meta.CRS = "EPSG:32633"
			if tc.meta != nil {
				tc.meta(&r.Meta)
			}

			require.NoError(t, store.Save("out/a.tif", r))
			assert.True(t, fsys.Exists("out/a.tif"))
			assert.True(t, fsys.Exists("out/a.tif"+SidecarSuffix))
			assert.False(t, fsys.Exists("out/a.tif.tmp"))

			got, err := store.Load("out/a.tif")
			require.NoError(t, err)
			assert.Equal(t, r.Rows, got.Rows)
			assert.Equal(t, r.Cols, got.Cols)
			assert.Equal(t, r.Bands, got.Bands)
			assert.Equal(t, r.Data, got.Data)
			assert.Equal(t, r.Meta.Transform, got.Meta.Transform)
			assert.Equal(t, "EPSG:32633", got.Meta.CRS)
			assert.Equal(t, tc.dtype, got.Meta.DType)
			if r.Meta.NoData != nil {
				require.NotNil(t, got.NoDataMask)
				assert.True(t, got.IsNoData(0, 0))
				assert.False(t, got.IsNoData(0, 1))
			}
		})
	}
}

func TestTIFFStoreLoadErrors(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	store := NewTIFFStore(fsys)

	_, err := store.Load("missing.tif")
	var ioErr *InputIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "missing.tif", ioErr.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, fsys.WriteFile("junk.tif", []byte("not a tiff"), 0644))
	_, err = store.Load("junk.tif")
	require.ErrorAs(t, err, &ioErr)
}

func TestTIFFStoreRejectsFloat(t *testing.T) {
	t.Parallel()

	store := NewTIFFStore(fsutil.NewMemoryFileSystem())
	err := store.Save("f.tif", New(2, 2, 1, Float32))
	assert.Error(t, err)
}

func TestLoadLabels(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := NewLabels(2, 2)
	l.Data = []int16{0, 1, 1, 2}
	store.Put("mask.tif", l.ToRaster(Meta{}))

	got, err := LoadLabels(store, "mask.tif")
	require.NoError(t, err)
	assert.Equal(t, l.Data, got.Data)

	store.Put("rgb.tif", New(2, 2, 3, Uint8))
	_, err = LoadLabels(store, "rgb.tif")
	var ioErr *InputIOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, err := store.Load("nope.tif")
	assert.Error(t, err)

	r := New(1, 1, 1, Uint8)
	require.NoError(t, store.Save("a.tif", r))
	r.Data[0] = 5
	got, err := store.Load("./a.tif")
	require.NoError(t, err)
	assert.Equal(t, float32(0), got.Data[0])
	assert.Equal(t, 1, store.Saves())
	assert.True(t, store.Has("a.tif"))
}

func TestStem(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "scene_01", Stem("/data/in/scene_01.tif"))
	assert.Equal(t, "noext", Stem("noext"))
}
