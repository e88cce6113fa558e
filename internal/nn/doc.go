// Package nn holds the small numeric toolkit the pipeline trains and
// predicts with: an NCHW tensor, softmax and arg-max, loss strategies,
// optimizers with a step learning-rate schedule, and PixelLinear, a
// per-pixel linear softmax classifier.
//
// Anything satisfying Model can be trained by the training loop and served
// by Predictor; PixelLinear is the built-in implementation.
package nn
