package config

import (
	"fmt"
	"math"
)

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	size, step := c.GetTileSize(), c.GetTileStep()
	axes := []string{"height", "width"}
	for axis, name := range axes {
		if size[axis] <= 0 {
			return fmt.Errorf("tile_size %s must be positive, got %d", name, size[axis])
		}
	}
	for axis, name := range axes {
		if step[axis] <= 0 {
			return fmt.Errorf("tile_step %s must be positive, got %d", name, step[axis])
		}
		if step[axis] > size[axis] {
			return fmt.Errorf("tile_step %s (%d) must not exceed tile_size %s (%d)", name, step[axis], name, size[axis])
		}
	}

	if lo, hi := c.GetValueRange(); lo >= hi {
		return fmt.Errorf("value_range_min (%g) must be below value_range_max (%g)", lo, hi)
	}

	if n := c.GetNClasses(); n < 1 || n > 255 {
		return fmt.Errorf("n_classes must be between 1 and 255, got %d", n)
	}

	if c.GetBatchSize() <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.GetBatchSize())
	}
	if c.GetPredBatchSize() <= 0 {
		return fmt.Errorf("pred_batch_size must be positive, got %d", c.GetPredBatchSize())
	}
	if c.GetWorkers() <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.GetWorkers())
	}
	if v := c.GetNodataSentinel(); v < math.MinInt16 || v > math.MaxInt16 {
		return fmt.Errorf("nodata_sentinel must fit an int16 class mask, got %d", v)
	}
	if c.GetDefaultNTiles() < 0 {
		return fmt.Errorf("default_ntiles must be non-negative, got %d", c.GetDefaultNTiles())
	}

	if ts := c.GetTestSize(); ts < 0 || ts >= 1 {
		return fmt.Errorf("test_size must be in [0, 1), got %g", ts)
	}
	if c.GetMaxEpochs() < 0 {
		return fmt.Errorf("max_epochs must be non-negative, got %d", c.GetMaxEpochs())
	}
	if c.GetLearningRate() <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.GetLearningRate())
	}
	if c.GetPlateauPatience() <= 0 {
		return fmt.Errorf("plateau_patience must be positive, got %d", c.GetPlateauPatience())
	}
	if g := c.GetLRDecayGamma(); g <= 0 || g > 1 {
		return fmt.Errorf("lr_decay_gamma must be in (0, 1], got %g", g)
	}

	switch c.GetOptimizer() {
	case OptimizerAdam, OptimizerSGD:
	default:
		return fmt.Errorf("unknown optimizer %q", c.GetOptimizer())
	}

	switch c.GetLoss() {
	case LossCrossEntropy, LossMeanIoU, LossFocal:
	default:
		return fmt.Errorf("unknown loss %q", c.GetLoss())
	}

	switch c.GetPostprocessMethod() {
	case MethodNone, MethodMedian, MethodMorphOpen, MethodMorphClose, MethodDilate, MethodFillHoles:
	default:
		return fmt.Errorf("unknown postprocess_method %q", c.GetPostprocessMethod())
	}
	if k := c.GetPostprocessKernelSize(); k <= 0 {
		return fmt.Errorf("postprocess_kernel_size must be positive, got %d", k)
	}
	switch c.GetPostprocessKernelShape() {
	case "square", "ellipse":
	default:
		return fmt.Errorf("postprocess_kernel_shape must be square or ellipse, got %q", c.GetPostprocessKernelShape())
	}

	if len(c.OutputBands) > 0 && len(c.InputBands) > 0 {
		known := make(map[string]bool, len(c.InputBands))
		for _, b := range c.InputBands {
			known[b] = true
		}
		for _, b := range c.OutputBands {
			if !known[b] {
				return fmt.Errorf("output band %q is not listed in input_bands", b)
			}
		}
	}

	seen := make(map[string]bool)
	for _, r := range c.GetRelabelRules() {
		if r.Name == "" {
			return fmt.Errorf("relabel rule %d->%d needs a name", r.From, r.To)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate relabel rule name %q", r.Name)
		}
		seen[r.Name] = true
	}

	return nil
}
