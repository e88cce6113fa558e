package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/raster"
)

func TestReadManifest(t *testing.T) {
	t.Parallel()

	const csvText = `data,label,ymin,ymax,xmin,xmax,ntiles
# scenes from the first campaign
scenes/a.tif, labels/a.tif, 10, 500.0, 0, 0, 25
scenes/b.tif,labels/b.tif,,,,,
`
	entries, err := ReadManifest(strings.NewReader(csvText), 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		Data:   "scenes/a.tif",
		Label:  "labels/a.tif",
		ROI:    raster.ROI{YMin: 10, YMax: 500},
		NTiles: 25,
	}, entries[0])
	assert.Equal(t, 100, entries[1].NTiles)
	assert.True(t, entries[1].ROI.Empty())
}

func TestReadManifestErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":          "",
		"missing label":  "data,ntiles\na.tif,3\n",
		"blank data":     "data,label\n,l.tif\n",
		"bad number":     "data,label,ntiles\na.tif,l.tif,many\n",
		"negative tiles": "data,label,ntiles\na.tif,l.tif,-1\n",
		"ragged":         "data,label\na.tif,l.tif,extra\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadManifest(strings.NewReader(text), 1)
			assert.Error(t, err)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("m.csv", []byte("label,data\nl.tif,d.tif\n"), 0644))
	entries, err := LoadManifest(fsys, "m.csv", 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d.tif", entries[0].Data)
	assert.Equal(t, 7, entries[0].NTiles)

	_, err = LoadManifest(fsys, "missing.csv", 7)
	assert.Error(t, err)
}
