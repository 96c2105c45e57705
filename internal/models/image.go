package models

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Image is a 2D array of float64 samples stored in row-major order.
type Image struct {
	// Data holds Height*Width samples, row after row
	Data []float64

	// Height is the number of rows (the y axis)
	Height int

	// Width is the number of columns (the x axis)
	Width int
}

// NewImage allocates a zero-filled image of the given shape.
func NewImage(height, width int) *Image {
	return &Image{
		Data:   make([]float64, height*width),
		Height: height,
		Width:  width,
	}
}

// NewImageFrom wraps data as an image, checking that the length matches the shape.
func NewImageFrom(data []float64, height, width int) (*Image, error) {
	if height < 1 || width < 1 {
		return nil, fmt.Errorf("image shape must be positive, got (%d, %d)", height, width)
	}
	if len(data) != height*width {
		return nil, fmt.Errorf("image data has %d samples, shape (%d, %d) needs %d",
			len(data), height, width, height*width)
	}
	return &Image{Data: data, Height: height, Width: width}, nil
}

// NewConstantImage returns an image with every sample set to value.
func NewConstantImage(height, width int, value float64) *Image {
	img := NewImage(height, width)
	for i := range img.Data {
		img.Data[i] = value
	}
	return img
}

// At returns the sample at row y, column x.
func (img *Image) At(y, x int) float64 { return img.Data[y*img.Width+x] }

// Set stores v at row y, column x.
func (img *Image) Set(y, x int, v float64) { img.Data[y*img.Width+x] = v }

// Shape returns (Height, Width).
func (img *Image) Shape() (int, int) { return img.Height, img.Width }

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	data := make([]float64, len(img.Data))
	copy(data, img.Data)
	return &Image{Data: data, Height: img.Height, Width: img.Width}
}

// Mask flags excluded pixels of an Image. True means the pixel is masked.
type Mask struct {
	Data   []bool
	Height int
	Width  int
}

// NewMask allocates an all-false mask of the given shape.
func NewMask(height, width int) *Mask {
	return &Mask{
		Data:   make([]bool, height*width),
		Height: height,
		Width:  width,
	}
}

// At reports whether the pixel at row y, column x is masked.
func (m *Mask) At(y, x int) bool { return m.Data[y*m.Width+x] }

// Set flags the pixel at row y, column x.
func (m *Mask) Set(y, x int, masked bool) { m.Data[y*m.Width+x] = masked }

// Shape returns (Height, Width).
func (m *Mask) Shape() (int, int) { return m.Height, m.Width }

// Count returns the number of masked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// MaskedArray is a Rows x Cols array with a parallel validity mask.
//
// It backs the resized image, the per-tile mesh data (one row per tile) and
// the low-resolution mesh grids. Every reduction on a MaskedArray skips the
// masked elements.
type MaskedArray struct {
	Data []float64
	Mask []bool
	Rows int
	Cols int
}

// NewMaskedArray allocates an unmasked, zero-filled array.
func NewMaskedArray(rows, cols int) *MaskedArray {
	return &MaskedArray{
		Data: make([]float64, rows*cols),
		Mask: make([]bool, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// NewFullyMaskedArray allocates a zero-filled array with every element masked.
func NewFullyMaskedArray(rows, cols int) *MaskedArray {
	a := NewMaskedArray(rows, cols)
	for i := range a.Mask {
		a.Mask[i] = true
	}
	return a
}

// At returns the value at (i, j), masked or not.
func (a *MaskedArray) At(i, j int) float64 { return a.Data[i*a.Cols+j] }

// Set stores v at (i, j) without touching the mask.
func (a *MaskedArray) Set(i, j int, v float64) { a.Data[i*a.Cols+j] = v }

// IsMasked reports whether (i, j) is masked.
func (a *MaskedArray) IsMasked(i, j int) bool { return a.Mask[i*a.Cols+j] }

// Row returns the values and mask of row i. The slices alias the array.
func (a *MaskedArray) Row(i int) ([]float64, []bool) {
	lo, hi := i*a.Cols, (i+1)*a.Cols
	return a.Data[lo:hi], a.Mask[lo:hi]
}

// Unmasked returns a fresh slice with the unmasked values of row i.
func (a *MaskedArray) Unmasked(i int) []float64 {
	values, mask := a.Row(i)
	out := make([]float64, 0, len(values))
	for k, v := range values {
		if !mask[k] {
			out = append(out, v)
		}
	}
	return out
}

// CountMasked returns the number of masked elements in each row.
func (a *MaskedArray) CountMasked() []int {
	counts := make([]int, a.Rows)
	for i := 0; i < a.Rows; i++ {
		_, mask := a.Row(i)
		for _, m := range mask {
			if m {
				counts[i]++
			}
		}
	}
	return counts
}

// Compressed returns all unmasked values in row-major order.
func (a *MaskedArray) Compressed() []float64 {
	out := make([]float64, 0, len(a.Data))
	for k, v := range a.Data {
		if !a.Mask[k] {
			out = append(out, v)
		}
	}
	return out
}

// SelectRows returns a new array holding the given rows, in order.
func (a *MaskedArray) SelectRows(rows []int) *MaskedArray {
	out := NewMaskedArray(len(rows), a.Cols)
	for k, r := range rows {
		values, mask := a.Row(r)
		copy(out.Data[k*a.Cols:(k+1)*a.Cols], values)
		copy(out.Mask[k*a.Cols:(k+1)*a.Cols], mask)
	}
	return out
}

// Clone returns a deep copy.
func (a *MaskedArray) Clone() *MaskedArray {
	out := &MaskedArray{
		Data: make([]float64, len(a.Data)),
		Mask: make([]bool, len(a.Mask)),
		Rows: a.Rows,
		Cols: a.Cols,
	}
	copy(out.Data, a.Data)
	copy(out.Mask, a.Mask)
	return out
}

// Filled returns a copy of the values with masked elements replaced by fill.
func (a *MaskedArray) Filled(fill float64) []float64 {
	out := make([]float64, len(a.Data))
	for k, v := range a.Data {
		if a.Mask[k] {
			out[k] = fill
		} else {
			out[k] = v
		}
	}
	return out
}

// HasNaN reports whether any unmasked value is NaN.
func (a *MaskedArray) HasNaN() bool {
	for k, v := range a.Data {
		if !a.Mask[k] && math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Size2D is a (Y, X) pair used for tile sizes and filter windows.
type Size2D struct {
	Y int
	X int
}

// Square returns a Size2D with both axes set to n.
func Square(n int) Size2D { return Size2D{Y: n, X: n} }

// Pixels returns Y*X.
func (s Size2D) Pixels() int { return s.Y * s.X }

// IsUnit reports whether the size is (1, 1).
func (s Size2D) IsUnit() bool { return s.Y == 1 && s.X == 1 }

func (s Size2D) String() string { return fmt.Sprintf("(%d, %d)", s.Y, s.X) }

// UnmarshalYAML accepts a scalar (square size) or a sequence of one or two
// integers in (y, x) order.
func (s *Size2D) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var n int
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("size must be an integer: %w", err)
		}
		*s = Square(n)
		return nil
	case yaml.SequenceNode:
		var ns []int
		if err := value.Decode(&ns); err != nil {
			return fmt.Errorf("size must be a list of integers: %w", err)
		}
		switch len(ns) {
		case 1:
			*s = Square(ns[0])
		case 2:
			*s = Size2D{Y: ns[0], X: ns[1]}
		default:
			return fmt.Errorf("size must have 1 or 2 elements, got %d", len(ns))
		}
		return nil
	default:
		return fmt.Errorf("size must be a scalar or a sequence")
	}
}

// MarshalYAML writes the size as a two-element (y, x) sequence.
func (s Size2D) MarshalYAML() (interface{}, error) {
	return []int{s.Y, s.X}, nil
}
