package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/landcover/internal/fsutil"
	"github.com/banshee-data/landcover/internal/raster"
)

// Entry is one labelled scene to cut training tiles from.
type Entry struct {
	Data   string
	Label  string
	ROI    raster.ROI
	NTiles int
}

var requiredColumns = []string{"data", "label"}

// ReadManifest parses a CSV manifest with a header row. data and label
// columns are required; ymin, ymax, xmin, xmax and ntiles are optional and
// may be left blank. Blank ntiles falls back to defaultNTiles.
func ReadManifest(r io.Reader, defaultNTiles int) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("manifest is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("manifest is missing the %q column", c)
		}
	}

	var entries []Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		intField := func(name string, def int) (int, error) {
			s := field(name)
			if s == "" {
				return def, nil
			}
			// Manifests exported from data frames often carry "512.0".
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("manifest line %d: %s: %w", line, name, err)
			}
			return int(f), nil
		}

		e := Entry{Data: field("data"), Label: field("label")}
		if e.Data == "" || e.Label == "" {
			return nil, fmt.Errorf("manifest line %d: data and label are required", line)
		}
		for _, f := range []struct {
			name string
			dst  *int
			def  int
		}{
			{"ymin", &e.ROI.YMin, 0},
			{"ymax", &e.ROI.YMax, 0},
			{"xmin", &e.ROI.XMin, 0},
			{"xmax", &e.ROI.XMax, 0},
			{"ntiles", &e.NTiles, defaultNTiles},
		} {
			if *f.dst, err = intField(f.name, f.def); err != nil {
				return nil, err
			}
		}
		if e.NTiles < 0 {
			return nil, fmt.Errorf("manifest line %d: ntiles must not be negative", line)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadManifest reads the manifest at path.
func LoadManifest(fsys fsutil.FileSystem, path string, defaultNTiles int) ([]Entry, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	entries, err := ReadManifest(f, defaultNTiles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
