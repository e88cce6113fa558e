package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TileSize == nil || *cfg.TileSize != Square(256) {
		t.Errorf("Expected TileSize 256x256, got %v", cfg.TileSize)
	}
	if cfg.PostprocessKernelSize == nil || *cfg.PostprocessKernelSize != 25 {
		t.Errorf("Expected PostprocessKernelSize 25, got %v", cfg.PostprocessKernelSize)
	}
	if cfg.NodataSentinel == nil || *cfg.NodataSentinel != -9999 {
		t.Errorf("Expected NodataSentinel -9999, got %v", cfg.NodataSentinel)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := EmptyConfig()

	assert.Equal(t, "landcover", cfg.GetExperimentName())
	assert.Equal(t, Square(256), cfg.GetTileSize())
	assert.Equal(t, Square(128), cfg.GetTileStep())
	assert.Equal(t, 128, cfg.GetPredBatchSize())
	assert.Equal(t, MethodMedian, cfg.GetPostprocessMethod())
	assert.Equal(t, 25, cfg.GetPostprocessKernelSize())
	assert.Equal(t, -9999, cfg.GetNodataSentinel())
	assert.Equal(t, "", cfg.GetModelFilename())
	assert.Equal(t, 5, cfg.GetPlateauPatience())
	assert.Equal(t, DefaultRelabelRules, cfg.GetRelabelRules())

	lo, hi := cfg.GetValueRange()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 10000.0, hi)

	require.NoError(t, cfg.Validate())
}

func TestTileStepFollowsTileSize(t *testing.T) {
	cfg := EmptyConfig()
	size := Pair{64, 32}
	cfg.TileSize = &size

	assert.Equal(t, Pair{32, 16}, cfg.GetTileStep())
}

func TestExplicitEmptyRelabelRules(t *testing.T) {
	cfg := EmptyConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"relabel_rules": []}`), cfg))

	assert.Empty(t, cfg.GetRelabelRules())
}

func TestPairUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{in: `256`, want: Pair{256, 256}},
		{in: `[100, 50]`, want: Pair{100, 50}},
		{in: ` [7,9] `, want: Pair{7, 9}},
		{in: `[1, 2, 3]`, wantErr: true},
		{in: `"big"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p Pair
			err := json.Unmarshal([]byte(tt.in), &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.want[0], p.Height())
			assert.Equal(t, tt.want[1], p.Width())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "experiment_name": "senegal",
  "tile_size": [128, 64],
  "tile_step": 32,
  "pred_batch_size": 8,
  "postprocess_method": "morph-open",
  "postprocess_kernel_size": 5,
  "relabel_rules": [{"name": "water-to-wetland", "from": 3, "to": 4}]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetExperimentName(); got != "senegal" {
		t.Errorf("Expected experiment senegal, got %q", got)
	}
	if got := cfg.GetTileSize(); got != (Pair{128, 64}) {
		t.Errorf("Expected tile size [128 64], got %v", got)
	}
	if got := cfg.GetTileStep(); got != Square(32) {
		t.Errorf("Expected tile step 32, got %v", got)
	}
	if got := cfg.GetPostprocessMethod(); got != MethodMorphOpen {
		t.Errorf("Expected morph-open, got %q", got)
	}
	want := []RelabelRule{{Name: "water-to-wetland", From: 3, To: 4}}
	if diff := cmp.Diff(want, cfg.GetRelabelRules()); diff != "" {
		t.Errorf("relabel rules mismatch (-want +got):\n%s", diff)
	}

	// Unset fields keep their defaults.
	if got := cfg.GetNodataSentinel(); got != -9999 {
		t.Errorf("Expected default sentinel, got %d", got)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadConfigWrongExtension(t *testing.T) {
	_, err := LoadConfig("pipeline.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json extension")
}

func TestLoadConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	cases := map[string]string{
		"broken.json":  `{"tile_size": `,
		"unknown.json": `{"tile_sise": 256}`,
		"invalid.json": `{"tile_size": 64, "tile_step": 128}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.json")
	body := `{"experiment_name": "` + strings.Repeat("x", 2*1024*1024) + `"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"step larger than tile", func(c *Config) { c.TileStep = ptrPair(Square(512)) }, "must not exceed"},
		{"zero step", func(c *Config) { c.TileStep = ptrPair(Pair{0, 10}) }, "tile_step height"},
		{"negative tile", func(c *Config) { c.TileSize = ptrPair(Pair{10, -1}) }, "tile_size width"},
		{"inverted range", func(c *Config) { c.ValueRangeMin = ptrFloat64(100); c.ValueRangeMax = ptrFloat64(10) }, "value_range_min"},
		{"bad method", func(c *Config) { c.PostprocessMethod = ptrString("gaussian") }, "postprocess_method"},
		{"bad loss", func(c *Config) { c.Loss = ptrString("dice") }, "unknown loss"},
		{"bad optimizer", func(c *Config) { c.Optimizer = ptrString("rmsprop") }, "unknown optimizer"},
		{"bad kernel", func(c *Config) { c.PostprocessKernelSize = ptrInt(0) }, "postprocess_kernel_size"},
		{"bad shape", func(c *Config) { c.PostprocessKernelShape = ptrString("cross") }, "postprocess_kernel_shape"},
		{"test size", func(c *Config) { c.TestSize = ptrFloat64(1) }, "test_size"},
		{"gamma", func(c *Config) { c.LRDecayGamma = ptrFloat64(0) }, "lr_decay_gamma"},
		{"classes", func(c *Config) { c.NClasses = ptrInt(0) }, "n_classes"},
		{"nodata above int16", func(c *Config) { c.NodataSentinel = ptrInt(65535) }, "nodata_sentinel"},
		{"nodata below int16", func(c *Config) { c.NodataSentinel = ptrInt(-32769) }, "nodata_sentinel"},
		{"nodata at int16 min", func(c *Config) { c.NodataSentinel = ptrInt(-32768) }, ""},
		{"unknown output band", func(c *Config) {
			c.InputBands = []string{"Red", "Green"}
			c.OutputBands = []string{"NIR1"}
		}, "output band"},
		{"unnamed rule", func(c *Config) { c.RelabelRules = []RelabelRule{{From: 1, To: 2}} }, "needs a name"},
		{"duplicate rule", func(c *Config) {
			c.RelabelRules = []RelabelRule{{Name: "a", From: 1, To: 2}, {Name: "a", From: 3, To: 4}}
		}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoadDefaultConfigMatchesBuiltins(t *testing.T) {
	fileCfg := MustLoadDefaultConfig()

	assert.Equal(t, DefaultConfig().GetTileSize(), fileCfg.GetTileSize())
	assert.Equal(t, DefaultConfig().GetTileStep(), fileCfg.GetTileStep())
	assert.Equal(t, DefaultConfig().GetPostprocessMethod(), fileCfg.GetPostprocessMethod())
	assert.Equal(t, DefaultConfig().GetRelabelRules(), fileCfg.GetRelabelRules())
	assert.Equal(t, "landcover.db", fileCfg.GetLedgerPath())
	assert.Equal(t, []string{"scenes/*.tif"}, fileCfg.GetDataPredict())
}
