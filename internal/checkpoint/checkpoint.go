// Package checkpoint names, writes and finds serialized model parameters.
//
// Checkpoints are JSON files named <experiment>_epoch-<epoch>_<valloss>.ckpt
// and are never rewritten once created.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/banshee-data/landcover/internal/fsutil"
)

// Ext is the checkpoint file extension.
const Ext = ".ckpt"

// ErrNotFound is returned when no checkpoint is configured and none exists
// in the model directory.
var ErrNotFound = errors.New("checkpoint not found")

// Name returns the file name for a checkpoint.
func Name(experiment string, epoch int, valLoss float64) string {
	return fmt.Sprintf("%s_epoch-%d_%.5f%s", experiment, epoch, valLoss, Ext)
}

var namePattern = regexp.MustCompile(`^(.+)_epoch-(\d+)_(-?\d+\.\d+)\.ckpt$`)

// Info is what a checkpoint file name encodes.
type Info struct {
	Experiment string
	Epoch      int
	ValLoss    float64
}

// Parse decodes a checkpoint file name.
func Parse(name string) (Info, error) {
	m := namePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return Info{}, fmt.Errorf("%q is not a checkpoint name", name)
	}
	epoch, err := strconv.Atoi(m[2])
	if err != nil {
		return Info{}, fmt.Errorf("parse epoch in %q: %w", name, err)
	}
	loss, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Info{}, fmt.Errorf("parse loss in %q: %w", name, err)
	}
	return Info{Experiment: m[1], Epoch: epoch, ValLoss: loss}, nil
}

// Save writes model into dir under Name(experiment, epoch, valLoss) and
// returns the path. The file is written to a temporary name first so a
// partially written checkpoint is never picked up by Latest.
func Save(fsys fsutil.FileSystem, dir, experiment string, epoch int, valLoss float64, model json.Marshaler) (string, error) {
	data, err := model.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	path := filepath.Join(dir, Name(experiment, epoch, valLoss))
	tmp := path + ".tmp"
	if err := fsys.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalise checkpoint: %w", err)
	}
	return path, nil
}

// Load decodes the checkpoint at path into model.
func Load(fsys fsutil.FileSystem, path string, model json.Unmarshaler) error {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := model.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return nil
}

// Latest returns the most recently modified checkpoint in dir. Ties on
// modification time go to the lexically last name.
func Latest(fsys fsutil.FileSystem, dir string) (string, error) {
	matches, err := fsys.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return "", fmt.Errorf("list checkpoints in %s: %w", dir, err)
	}
	var (
		best    string
		bestMod int64
	)
	for _, m := range matches {
		fi, err := fsys.Stat(m)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", m, err)
		}
		if fi.IsDir() {
			continue
		}
		mod := fi.ModTime().UnixNano()
		if best == "" || mod >= bestMod {
			best, bestMod = m, mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	return best, nil
}

// Resolve returns filename when set, joined onto dir if relative, and
// otherwise the latest checkpoint in dir.
func Resolve(fsys fsutil.FileSystem, dir, filename string) (string, error) {
	if filename == "" {
		return Latest(fsys, dir)
	}
	path := filename
	if !filepath.IsAbs(path) && !fsys.Exists(path) {
		path = filepath.Join(dir, filename)
	}
	if !fsys.Exists(path) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, nil
}
