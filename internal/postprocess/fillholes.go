package postprocess

import (
	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/raster"
)

// FillHoles treats every non-zero class as foreground and fills background
// regions that are not 4-connected to the mask border. The output is a
// binary 0/1 mask.
type FillHoles struct{}

func (FillHoles) String() string { return config.MethodFillHoles }

func (FillHoles) Apply(l *raster.Labels) *raster.Labels {
	rows, cols := l.Rows, l.Cols
	if len(l.Data) == 0 {
		return l.Clone()
	}
	outside := make([]bool, len(l.Data))
	queue := make([]int, 0, 2*(rows+cols))

	push := func(p int) {
		if l.Data[p] == 0 && !outside[p] {
			outside[p] = true
			queue = append(queue, p)
		}
	}
	for x := 0; x < cols; x++ {
		push(x)
		push((rows-1)*cols + x)
	}
	for y := 0; y < rows; y++ {
		push(y * cols)
		push(y*cols + cols - 1)
	}

	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		y, x := p/cols, p%cols
		if y > 0 {
			push(p - cols)
		}
		if y < rows-1 {
			push(p + cols)
		}
		if x > 0 {
			push(p - 1)
		}
		if x < cols-1 {
			push(p + 1)
		}
	}

	out := raster.NewLabels(rows, cols)
	for p := range out.Data {
		if !outside[p] {
			out.Data[p] = 1
		}
	}
	return out
}
