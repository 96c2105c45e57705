package background

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/pkg/interpolation"
)

// Interpolator expands a low-resolution (NYBoxes, NXBoxes) mesh to a full
// resolution image with the shape of the data held by bkg.
type Interpolator interface {
	Resize(mesh *models.MaskedArray, bkg *Background2D) (*models.Image, error)
}

// InterpolatorFunc adapts a plain function to the Interpolator interface.
type InterpolatorFunc func(mesh *models.MaskedArray, bkg *Background2D) (*models.Image, error)

// Resize calls f(mesh, bkg).
func (f InterpolatorFunc) Resize(mesh *models.MaskedArray, bkg *Background2D) (*models.Image, error) {
	return f(mesh, bkg)
}

// flatValue reports whether every mesh value is identical, and that value.
// A mesh holding NaN is never flat.
func flatValue(mesh *models.MaskedArray) (float64, bool) {
	if floats.HasNaN(mesh.Data) {
		return math.NaN(), false
	}
	lo := floats.Min(mesh.Data)
	return lo, floats.Max(mesh.Data)-lo == 0
}

// ZoomInterpolator resamples the mesh with a B-spline of the given order.
type ZoomInterpolator struct {
	// Order of the spline, 0 to 5
	Order int `yaml:"order"`

	// Mode extends the mesh beyond its edges
	Mode interpolation.BoundaryMode `yaml:"mode"`

	// CVal fills the extension in Constant mode
	CVal float64 `yaml:"cval"`
}

// DefaultZoomInterpolator returns a cubic spline with reflect boundaries.
func DefaultZoomInterpolator() *ZoomInterpolator {
	return &ZoomInterpolator{Order: 3, Mode: interpolation.Reflect}
}

// Validate checks the spline order.
func (z *ZoomInterpolator) Validate() error {
	if z.Order < 0 || z.Order > interpolation.MaxSplineOrder {
		return fmt.Errorf("%w: spline order must be between 0 and %d, got %d",
			ErrConfiguration, interpolation.MaxSplineOrder, z.Order)
	}
	if _, err := interpolation.ParseBoundaryMode(z.Mode.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// Resize zooms the mesh to the data shape. With padding the mesh is zoomed
// by the box size to cover the padded image and cropped back, with cropping
// it is zoomed straight to the data shape.
func (z *ZoomInterpolator) Resize(mesh *models.MaskedArray, bkg *Background2D) (*models.Image, error) {
	height, width := bkg.Shape()
	if v, flat := flatValue(mesh); flat {
		return models.NewConstantImage(height, width, v), nil
	}

	if bkg.EdgeMethod() == EdgeCrop {
		data, err := interpolation.Zoom(mesh.Data, mesh.Rows, mesh.Cols, height, width, z.Order, z.Mode, z.CVal)
		if err != nil {
			return nil, fmt.Errorf("zooming mesh: %w", err)
		}
		return models.NewImageFrom(data, height, width)
	}

	box := bkg.BoxSize()
	zy := bkg.NYBoxes() * box.Y / mesh.Rows
	zx := bkg.NXBoxes() * box.X / mesh.Cols
	outRows, outCols := mesh.Rows*zy, mesh.Cols*zx

	data, err := interpolation.Zoom(mesh.Data, mesh.Rows, mesh.Cols, outRows, outCols, z.Order, z.Mode, z.CVal)
	if err != nil {
		return nil, fmt.Errorf("zooming mesh: %w", err)
	}

	img := models.NewImage(height, width)
	for y := 0; y < height; y++ {
		copy(img.Data[y*width:(y+1)*width], data[y*outCols:y*outCols+width])
	}
	return img, nil
}

const defaultLeafSize = 10

// IDWInterpolator evaluates a Shepard inverse distance weighting of the kept
// tile values, placed at the tile centres, at every pixel.
type IDWInterpolator struct {
	LeafSize   int     `yaml:"leafSize"`
	NNeighbors int     `yaml:"nNeighbors"`
	Power      float64 `yaml:"power"`
	Reg        float64 `yaml:"reg"`
}

// DefaultIDWInterpolator returns leaf size 10, 10 neighbours, power 1 and no
// regularisation.
func DefaultIDWInterpolator() *IDWInterpolator {
	return &IDWInterpolator{LeafSize: defaultLeafSize, NNeighbors: 10, Power: 1}
}

// Validate checks the interpolation parameters.
func (d *IDWInterpolator) Validate() error {
	if d.LeafSize < 1 {
		return fmt.Errorf("%w: IDW leaf size must be positive, got %d", ErrConfiguration, d.LeafSize)
	}
	if d.NNeighbors < 1 {
		return fmt.Errorf("%w: IDW needs at least one neighbor, got %d", ErrConfiguration, d.NNeighbors)
	}
	return nil
}

// Resize interpolates the mesh at every pixel of the data.
func (d *IDWInterpolator) Resize(mesh *models.MaskedArray, bkg *Background2D) (*models.Image, error) {
	height, width := bkg.Shape()
	if v, flat := flatValue(mesh); flat {
		return models.NewConstantImage(height, width, v), nil
	}

	meshIdx := bkg.MeshIndex()
	values := make([]float64, len(meshIdx))
	for k, i := range meshIdx {
		values[k] = mesh.Data[i]
	}

	idw, err := interpolation.NewShepardIDW(bkg.tileCentres(), values, nil, d.LeafSize)
	if err != nil {
		return nil, fmt.Errorf("building IDW interpolator: %w", err)
	}

	pixels := make([][2]float64, 0, height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pixels = append(pixels, [2]float64{float64(y), float64(x)})
		}
	}

	data, err := idw.Interpolate(pixels, d.NNeighbors, 0, d.Power, d.Reg)
	if err != nil {
		return nil, fmt.Errorf("IDW interpolation: %w", err)
	}
	return models.NewImageFrom(data, height, width)
}
