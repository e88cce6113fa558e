package inference

import (
	"fmt"
	"slices"

	"github.com/banshee-data/landcover/internal/fsutil"
)

// ExpandInputs resolves glob patterns into a sorted, de-duplicated list of
// input rasters. A pattern matching nothing is logged and ignored.
func ExpandInputs(fsys fsutil.FileSystem, patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := fsys.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			opsf("input pattern %q matched no files", p)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
