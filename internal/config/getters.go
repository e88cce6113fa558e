package config

// GetExperimentName returns the experiment_name value or the default.
func (c *Config) GetExperimentName() string {
	if c.ExperimentName == nil || *c.ExperimentName == "" {
		return "landcover"
	}
	return *c.ExperimentName
}

// GetValueRange returns the clamp range applied to raw imagery.
func (c *Config) GetValueRange() (lo, hi float64) {
	lo, hi = 0, 10000
	if c.ValueRangeMin != nil {
		lo = *c.ValueRangeMin
	}
	if c.ValueRangeMax != nil {
		hi = *c.ValueRangeMax
	}
	return lo, hi
}

// GetRelabelRules returns the configured rules, or the default rule set when
// the field is absent. An explicit empty list disables relabelling.
func (c *Config) GetRelabelRules() []RelabelRule {
	if c.RelabelRules == nil {
		return append([]RelabelRule(nil), DefaultRelabelRules...)
	}
	return c.RelabelRules
}

// GetShiftOneBased reports whether 1-based label masks are shifted to 0-based.
func (c *Config) GetShiftOneBased() bool {
	if c.ShiftOneBased == nil {
		return true
	}
	return *c.ShiftOneBased
}

// GetNClasses returns the n_classes value or the default.
func (c *Config) GetNClasses() int {
	if c.NClasses == nil {
		return 2
	}
	return *c.NClasses
}

// GetManifestPath returns the manifest_path value or the default.
func (c *Config) GetManifestPath() string {
	if c.ManifestPath == nil || *c.ManifestPath == "" {
		return "manifest.csv"
	}
	return *c.ManifestPath
}

// GetDatasetDir returns the dataset_dir value or the default.
func (c *Config) GetDatasetDir() string {
	if c.DatasetDir == nil || *c.DatasetDir == "" {
		return "dataset"
	}
	return *c.DatasetDir
}

// GetTileSize returns the tile_size value or the default.
func (c *Config) GetTileSize() Pair {
	if c.TileSize == nil {
		return Square(256)
	}
	return *c.TileSize
}

// GetTileStep returns the tile_step value or the default. When only
// tile_size is configured the step defaults to half the tile.
func (c *Config) GetTileStep() Pair {
	if c.TileStep == nil {
		size := c.GetTileSize()
		return Pair{max(1, size[0]/2), max(1, size[1]/2)}
	}
	return *c.TileStep
}

// GetSeed returns the seed value or the default.
func (c *Config) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}

// GetDefaultNTiles returns the patch count used for manifest rows that
// leave ntiles empty.
func (c *Config) GetDefaultNTiles() int {
	if c.DefaultNTiles == nil {
		return 100
	}
	return *c.DefaultNTiles
}

// GetNodataSentinel returns the nodata_sentinel value or the default.
func (c *Config) GetNodataSentinel() int {
	if c.NodataSentinel == nil {
		return -9999
	}
	return *c.NodataSentinel
}

// GetModelDir returns the model_dir value or the default.
func (c *Config) GetModelDir() string {
	if c.ModelDir == nil || *c.ModelDir == "" {
		return "models"
	}
	return *c.ModelDir
}

// GetBatchSize returns the training batch_size value or the default.
func (c *Config) GetBatchSize() int {
	if c.BatchSize == nil {
		return 16
	}
	return *c.BatchSize
}

// GetTestSize returns the validation fraction or the default.
func (c *Config) GetTestSize() float64 {
	if c.TestSize == nil {
		return 0.2
	}
	return *c.TestSize
}

// GetMaxEpochs returns the max_epochs value or the default.
func (c *Config) GetMaxEpochs() int {
	if c.MaxEpochs == nil {
		return 50
	}
	return *c.MaxEpochs
}

// GetLearningRate returns the learning_rate value or the default.
func (c *Config) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 1e-4
	}
	return *c.LearningRate
}

// GetOptimizer returns the optimizer name or the default.
func (c *Config) GetOptimizer() string {
	if c.Optimizer == nil || *c.Optimizer == "" {
		return OptimizerAdam
	}
	return *c.Optimizer
}

// GetLoss returns the loss strategy name or the default.
func (c *Config) GetLoss() string {
	if c.Loss == nil || *c.Loss == "" {
		return LossMeanIoU
	}
	return *c.Loss
}

// GetPlateauPatience returns the number of non-improving epochs tolerated
// before the learning rate decays.
func (c *Config) GetPlateauPatience() int {
	if c.PlateauPatience == nil {
		return 5
	}
	return *c.PlateauPatience
}

// GetLRDecayGamma returns the multiplicative learning-rate decay.
func (c *Config) GetLRDecayGamma() float64 {
	if c.LRDecayGamma == nil {
		return 0.5
	}
	return *c.LRDecayGamma
}

// GetAugment returns the augment value or the default.
func (c *Config) GetAugment() bool {
	if c.Augment == nil {
		return true
	}
	return *c.Augment
}

// GetModelFilename returns the explicitly configured checkpoint path, or ""
// when the newest checkpoint in model_dir should be used.
func (c *Config) GetModelFilename() string {
	if c.ModelFilename == nil {
		return ""
	}
	return *c.ModelFilename
}

// GetOutputDir returns the output_dir value or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "predictions"
	}
	return *c.OutputDir
}

// GetPredBatchSize returns the pred_batch_size value or the default.
func (c *Config) GetPredBatchSize() int {
	if c.PredBatchSize == nil {
		return 128
	}
	return *c.PredBatchSize
}

// GetPostprocessMethod returns the postprocess_method value or the default.
func (c *Config) GetPostprocessMethod() string {
	if c.PostprocessMethod == nil || *c.PostprocessMethod == "" {
		return MethodMedian
	}
	return *c.PostprocessMethod
}

// GetPostprocessKernelSize returns the postprocess_kernel_size value or the default.
func (c *Config) GetPostprocessKernelSize() int {
	if c.PostprocessKernelSize == nil {
		return 25
	}
	return *c.PostprocessKernelSize
}

// GetPostprocessKernelShape returns "square" or "ellipse".
func (c *Config) GetPostprocessKernelShape() string {
	if c.PostprocessKernelShape == nil || *c.PostprocessKernelShape == "" {
		return "square"
	}
	return *c.PostprocessKernelShape
}

// GetWorkers returns the prediction worker count or the default.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetLedgerPath returns the SQLite ledger path; "" disables the ledger.
func (c *Config) GetLedgerPath() string {
	if c.LedgerPath == nil {
		return ""
	}
	return *c.LedgerPath
}

// GetDataPredict returns the glob patterns of rasters to predict.
func (c *Config) GetDataPredict() []string {
	return c.DataPredict
}
