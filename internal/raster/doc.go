// Package raster holds the in-memory raster model shared by preprocessing,
// training and prediction, plus the Store used to read and write rasters.
//
// Rasters are stored channel-last (row, col, band) as float32 samples with
// the source data type recorded alongside, so normalisation can divide by the
// type's maximum representable value after any clipping has been applied.
package raster
