// Package tiling cuts rasters into overlapping fixed-size tiles for
// sliding-window inference.
//
// A Slicer enumerates tile placements over a raster's extent. Placements
// start at (0,0) and advance by the step; the last placement on each axis is
// shifted inward so it ends exactly at the edge. Padding is only needed when
// the raster is smaller than one tile, and is applied on the bottom and right
// edges so that cropping back to the original extent is a simple slice.
//
// Every Slicer carries a WeightKernel: a pyramidal map the size of one tile
// whose values fall off from the centre towards the edges and never reach
// zero. Overlapping predictions are blended with it so tile seams do not
// show in the merged output.
package tiling
