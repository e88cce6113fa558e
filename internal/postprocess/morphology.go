package postprocess

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/landcover/internal/config"
	"github.com/banshee-data/landcover/internal/raster"
)

type morphOp int

const (
	opOpen morphOp = iota
	opClose
	opDilate
)

// Morphology applies grey-level erosion and dilation over class indices.
// Opening removes small bright regions; closing fills small dark gaps.
type Morphology struct {
	op morphOp
	fp footprint
}

func (m *Morphology) String() string {
	name := map[morphOp]string{
		opOpen:   config.MethodMorphOpen,
		opClose:  config.MethodMorphClose,
		opDilate: config.MethodDilate,
	}[m.op]
	return fmt.Sprintf("%s %s", name, m.fp)
}

// Apply runs the operation through OpenCV. Pixels outside the mask never
// win a minimum or maximum, which for these operators is the same as
// mirroring the edge.
func (m *Morphology) Apply(l *raster.Labels) *raster.Labels {
	if len(l.Data) == 0 {
		return l.Clone()
	}
	src := toMat(l)
	defer src.Close()
	kernel := m.fp.element()
	defer kernel.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	switch m.op {
	case opOpen:
		gocv.MorphologyEx(src, &dst, gocv.MorphOpen, kernel)
	case opClose:
		gocv.MorphologyEx(src, &dst, gocv.MorphClose, kernel)
	default:
		gocv.Dilate(src, &dst, kernel)
	}
	return fromMat(dst)
}
