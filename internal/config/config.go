package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Postprocess method names accepted by postprocess_method.
const (
	MethodNone       = "none"
	MethodMedian     = "median"
	MethodMorphOpen  = "morph-open"
	MethodMorphClose = "morph-close"
	MethodDilate     = "dilate"
	MethodFillHoles  = "fill-holes"
)

// Loss strategy names accepted by loss.
const (
	LossCrossEntropy = "cross-entropy"
	LossMeanIoU      = "miou"
	LossFocal        = "focal"
)

// Optimizer names accepted by optimizer.
const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Pair is a (height, width) pair. In JSON it may be written either as a
// single number, meaning a square, or as a two-element array.
type Pair [2]int

// Square returns a Pair with equal height and width.
func Square(n int) Pair { return Pair{n, n} }

// Height returns the first element.
func (p Pair) Height() int { return p[0] }

// Width returns the second element.
func (p Pair) Width() int { return p[1] }

// UnmarshalJSON accepts 256 or [256, 256].
func (p *Pair) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var v []int
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if len(v) != 2 {
			return fmt.Errorf("expected [height, width], got %d values", len(v))
		}
		*p = Pair{v[0], v[1]}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Square(n)
	return nil
}

// RelabelRule rewrites every label pixel equal to From into To.
type RelabelRule struct {
	Name string `json:"name"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// DefaultRelabelRules folds class 14 into class 5, as the reference
// labelling campaign did for every scene.
var DefaultRelabelRules = []RelabelRule{{Name: "merge-class-14-into-5", From: 14, To: 5}}

// Config is the root configuration for preprocessing, training and
// prediction. Every field is optional; Get* accessors supply defaults.
type Config struct {
	ExperimentName *string `json:"experiment_name,omitempty"`

	// Raster preparation
	InputBands     []string      `json:"input_bands,omitempty"`
	OutputBands    []string      `json:"output_bands,omitempty"`
	ValueRangeMin  *float64      `json:"value_range_min,omitempty"`
	ValueRangeMax  *float64      `json:"value_range_max,omitempty"`
	RelabelRules   []RelabelRule `json:"relabel_rules,omitempty"`
	ShiftOneBased  *bool         `json:"shift_one_based_labels,omitempty"`
	NClasses       *int          `json:"n_classes,omitempty"`
	ManifestPath   *string       `json:"manifest_path,omitempty"`
	DatasetDir     *string       `json:"dataset_dir,omitempty"`
	TileSize       *Pair         `json:"tile_size,omitempty"`
	TileStep       *Pair         `json:"tile_step,omitempty"`
	Seed           *int64        `json:"seed,omitempty"`
	DefaultNTiles  *int          `json:"default_ntiles,omitempty"`
	NodataSentinel *int          `json:"nodata_sentinel,omitempty"`

	// Training
	ModelDir        *string  `json:"model_dir,omitempty"`
	BatchSize       *int     `json:"batch_size,omitempty"`
	TestSize        *float64 `json:"test_size,omitempty"`
	MaxEpochs       *int     `json:"max_epochs,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	Optimizer       *string  `json:"optimizer,omitempty"`
	Loss            *string  `json:"loss,omitempty"`
	PlateauPatience *int     `json:"plateau_patience,omitempty"`
	LRDecayGamma    *float64 `json:"lr_decay_gamma,omitempty"`
	Augment         *bool    `json:"augment,omitempty"`

	// Prediction
	ModelFilename          *string  `json:"model_filename,omitempty"`
	DataPredict            []string `json:"data_predict,omitempty"`
	OutputDir              *string  `json:"output_dir,omitempty"`
	PredBatchSize          *int     `json:"pred_batch_size,omitempty"`
	PostprocessMethod      *string  `json:"postprocess_method,omitempty"`
	PostprocessKernelSize  *int     `json:"postprocess_kernel_size,omitempty"`
	PostprocessKernelShape *string  `json:"postprocess_kernel_shape,omitempty"`
	Workers                *int     `json:"workers,omitempty"`

	// Bookkeeping
	LedgerPath *string `json:"ledger_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrPair(v Pair) *Pair          { return &v }

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field populated from the
// built-in defaults. It mirrors config/pipeline.defaults.json.
func DefaultConfig() *Config {
	return &Config{
		ExperimentName:         ptrString("landcover"),
		ValueRangeMin:          ptrFloat64(0),
		ValueRangeMax:          ptrFloat64(10000),
		RelabelRules:           append([]RelabelRule(nil), DefaultRelabelRules...),
		ShiftOneBased:          ptrBool(true),
		NClasses:               ptrInt(2),
		ManifestPath:           ptrString("manifest.csv"),
		DatasetDir:             ptrString("dataset"),
		TileSize:               ptrPair(Square(256)),
		TileStep:               ptrPair(Square(128)),
		Seed:                   ptrInt64(42),
		DefaultNTiles:          ptrInt(100),
		NodataSentinel:         ptrInt(-9999),
		ModelDir:               ptrString("models"),
		BatchSize:              ptrInt(16),
		TestSize:               ptrFloat64(0.2),
		MaxEpochs:              ptrInt(50),
		LearningRate:           ptrFloat64(1e-4),
		Optimizer:              ptrString(OptimizerAdam),
		Loss:                   ptrString(LossMeanIoU),
		PlateauPatience:        ptrInt(5),
		LRDecayGamma:           ptrFloat64(0.5),
		Augment:                ptrBool(true),
		ModelFilename:          ptrString(""),
		OutputDir:              ptrString("predictions"),
		PredBatchSize:          ptrInt(128),
		PostprocessMethod:      ptrString(MethodMedian),
		PostprocessKernelSize:  ptrInt(25),
		PostprocessKernelShape: ptrString("square"),
		Workers:                ptrInt(4),
		LedgerPath:             ptrString(""),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
