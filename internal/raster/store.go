package raster

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Store reads and writes rasters.
type Store interface {
	// Load reads the raster at path. Failures are returned as *InputIOError.
	Load(path string) (*Raster, error)

	// Save writes r to path. Implementations must make the file at path
	// appear only once it is complete, so its existence can be used as a
	// completion marker.
	Save(path string, r *Raster) error
}

// LoadLabels loads a single-band class mask through s.
func LoadLabels(s Store, path string) (*Labels, error) {
	r, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	l, err := ToLabels(r)
	if err != nil {
		return nil, &InputIOError{Path: path, Err: err}
	}
	return l, nil
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MemoryStore keeps rasters in a map. It is intended for tests and for
// wiring callers that already hold rasters in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	rasters map[string]*Raster
	saves   int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rasters: make(map[string]*Raster)}
}

// Put registers r under path without counting it as a save.
func (m *MemoryStore) Put(path string, r *Raster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters[filepath.Clean(path)] = r.Clone()
}

// Load returns a copy of the raster stored under path.
func (m *MemoryStore) Load(path string) (*Raster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rasters[filepath.Clean(path)]
	if !ok {
		return nil, &InputIOError{Path: path, Err: fmt.Errorf("no raster stored")}
	}
	return r.Clone(), nil
}

// Save stores a copy of r under path.
func (m *MemoryStore) Save(path string, r *Raster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters[filepath.Clean(path)] = r.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Has reports whether a raster is stored under path.
func (m *MemoryStore) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rasters[filepath.Clean(path)]
	return ok
}
