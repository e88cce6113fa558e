package raster

import "fmt"

// InputIOError reports a raster that could not be read or decoded. It is
// fatal for the file concerned; batch runs move on to the next input.
type InputIOError struct {
	Path string
	Err  error
}

func (e *InputIOError) Error() string {
	return fmt.Sprintf("read raster %s: %v", e.Path, e.Err)
}

func (e *InputIOError) Unwrap() error { return e.Err }

// ShapeMismatchError reports an image and mask whose extents disagree.
type ShapeMismatchError struct {
	Path      string
	ImageRows int
	ImageCols int
	LabelRows int
	LabelCols int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: image is %dx%d but mask is %dx%d",
		e.Path, e.ImageRows, e.ImageCols, e.LabelRows, e.LabelCols)
}

// CheckAligned returns a *ShapeMismatchError when img and mask differ in
// extent.
func CheckAligned(path string, img *Raster, mask *Labels) error {
	if img.Rows != mask.Rows || img.Cols != mask.Cols {
		return &ShapeMismatchError{
			Path:      path,
			ImageRows: img.Rows, ImageCols: img.Cols,
			LabelRows: mask.Rows, LabelCols: mask.Cols,
		}
	}
	return nil
}
