package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequential(rows, cols, bands int) *Raster {
	r := New(rows, cols, bands, Uint16)
	for i := range r.Data {
		r.Data[i] = float32(i)
	}
	return r
}

func TestSelectBands(t *testing.T) {
	t.Parallel()

	r := sequential(1, 2, 4)
	names := []string{"Coastal", "Blue", "Green", "Red"}

	out, err := SelectBands(r, names, []string{"Red", "Green", "Blue"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Bands)
	assert.Equal(t, []float32{3, 2, 1, 7, 6, 5}, out.Data)
	assert.Equal(t, []string{"Red", "Green", "Blue"}, out.Meta.BandNames)

	t.Run("already selected", func(t *testing.T) {
		same, err := SelectBands(out, names, []string{"Red", "Green", "Blue"})
		require.NoError(t, err)
		assert.Same(t, out, same)
	})

	t.Run("unknown band", func(t *testing.T) {
		_, err := SelectBands(r, names, []string{"NIR1"})
		assert.Error(t, err)
	})

	t.Run("band name count mismatch", func(t *testing.T) {
		_, err := SelectBands(r, names[:2], []string{"Blue"})
		assert.Error(t, err)
	})
}

func TestClipThenNormalize(t *testing.T) {
	t.Parallel()

	r := New(1, 3, 1, Uint8)
	r.Data = []float32{-5, 100, 300}

	out := Normalize(Clip(r, 0, 255))
	assert.Equal(t, Float32, out.Meta.DType)
	assert.InDelta(t, 0, out.Data[0], 1e-6)
	assert.InDelta(t, 100.0/255, out.Data[1], 1e-6)
	assert.InDelta(t, 1, out.Data[2], 1e-6)

	// Inputs are left untouched.
	assert.Equal(t, float32(300), r.Data[2])
}

func TestCropROI(t *testing.T) {
	t.Parallel()

	r := sequential(4, 4, 1)
	r.Meta.Transform = GeoTransform{100, 2, 0, 200, 0, -2}
	r.NoDataMask = make([]bool, 16)
	r.NoDataMask[5] = true

	out, err := CropROI(r, ROI{YMin: 1, YMax: 3, XMin: 1, XMax: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Rows)
	assert.Equal(t, 3, out.Cols)
	assert.Equal(t, []float32{5, 6, 7, 9, 10, 11}, out.Data)
	assert.Equal(t, []bool{true, false, false, false, false, false}, out.NoDataMask)
	assert.Equal(t, GeoTransform{102, 2, 0, 198, 0, -2}, out.Meta.Transform)

	same, err := CropROI(r, ROI{})
	require.NoError(t, err)
	assert.Same(t, r, same)

	_, err = CropROI(r, ROI{YMin: 3, YMax: 2})
	assert.Error(t, err)
	_, err = CropROI(r, ROI{YMin: 0, YMax: 9, XMin: 0, XMax: 1})
	assert.Error(t, err)
}

func TestCropLabelsROI(t *testing.T) {
	t.Parallel()

	l := NewLabels(3, 3)
	for i := range l.Data {
		l.Data[i] = int16(i)
	}
	out, err := CropLabelsROI(l, ROI{YMin: 1, YMax: 3, XMin: 2, XMax: 3})
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 8}, out.Data)
}

func TestRelabel(t *testing.T) {
	t.Parallel()

	l := NewLabels(1, 5)
	l.Data = []int16{1, 14, 5, 14, 2}

	changed := ApplyRules(l, []RelabelRule{{Name: "merge-14-into-5", From: 14, To: 5}})
	assert.Equal(t, map[string]int{"merge-14-into-5": 2}, changed)
	assert.Equal(t, []int16{1, 5, 5, 5, 2}, l.Data)

	assert.True(t, ShiftOneBased(l))
	assert.Equal(t, []int16{0, 4, 4, 4, 1}, l.Data)
	assert.False(t, ShiftOneBased(l))

	assert.Equal(t, []int16{0, 1, 4}, Classes(l))
}
