package dataset

import "math/rand/v2"

// Augment applies, each with probability one half and in this order, a
// left-right flip, an up-down flip, and rotations by 90, 180 and 270
// degrees. The five draws are independent and always consumed. Image and
// label always receive the same transform. Odd rotations are skipped for
// non-square samples.
func Augment(s *Sample, rng *rand.Rand) {
	if rng.Float64() < 0.5 {
		FlipLR(s)
	}
	if rng.Float64() < 0.5 {
		FlipUD(s)
	}
	for k := 1; k <= 3; k++ {
		if rng.Float64() < 0.5 && (k%2 == 0 || s.H == s.W) {
			Rot90(s, k)
		}
	}
}

// FlipLR mirrors the sample horizontally.
func FlipLR(s *Sample) {
	planes := s.C
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W/2; x++ {
			a, b := y*s.W+x, y*s.W+s.W-1-x
			s.Label[a], s.Label[b] = s.Label[b], s.Label[a]
			for c := 0; c < planes; c++ {
				off := c * s.H * s.W
				s.Image[off+a], s.Image[off+b] = s.Image[off+b], s.Image[off+a]
			}
		}
	}
}

// FlipUD mirrors the sample vertically.
func FlipUD(s *Sample) {
	for y := 0; y < s.H/2; y++ {
		for x := 0; x < s.W; x++ {
			a, b := y*s.W+x, (s.H-1-y)*s.W+x
			s.Label[a], s.Label[b] = s.Label[b], s.Label[a]
			for c := 0; c < s.C; c++ {
				off := c * s.H * s.W
				s.Image[off+a], s.Image[off+b] = s.Image[off+b], s.Image[off+a]
			}
		}
	}
}

// Rot90 rotates the sample counter-clockwise k quarter turns. Odd k swaps
// H and W.
func Rot90(s *Sample, k int) {
	k = ((k % 4) + 4) % 4
	for range k {
		rot90Once(s)
	}
}

// rot90Once rotates counter-clockwise: out[y][x] = in[x][W-1-y], with the
// output H x W being the input W x H.
func rot90Once(s *Sample) {
	h, w := s.W, s.H
	label := make([]int16, len(s.Label))
	image := make([]float32, len(s.Image))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := x*s.W + (s.W - 1 - y)
			dst := y*w + x
			label[dst] = s.Label[src]
			for c := 0; c < s.C; c++ {
				off := c * s.H * s.W
				image[off+dst] = s.Image[off+src]
			}
		}
	}
	s.H, s.W = h, w
	s.Label, s.Image = label, image
}
