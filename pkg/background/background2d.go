// Package background estimates a smooth 2D background and background RMS
// from an image that contains sources and masked defects.
//
// The image is divided into a grid of box-sized tiles (meshes). Each tile
// that survives the exclusion policy is sigma clipped and reduced to one
// background and one RMS value. The resulting low-resolution meshes are
// completed, median filtered and finally expanded to full resolution by an
// Interpolator.
package background

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/internal/monitoring"
	"github.com/HSouch/photutils/pkg/stats"
)

// Background2D holds the meshes computed from one image and lazily expands
// them to full resolution. Every value it returns is shared between callers
// and must not be modified. It is safe for concurrent use.
type Background2D struct {
	data *models.Image
	mask *models.Mask
	opts Options

	box              models.Size2D
	nyBoxes, nxBoxes int
	meshIdx          []int

	// clipped holds the sigma clipped pixels of the kept tiles
	clipped *models.MaskedArray

	bkg1d, rms1d []float64

	// bkgMesh and rmsMesh are the completed and filtered meshes
	bkgMesh, rmsMesh *models.MaskedArray

	backgroundOnce sync.Once
	background     *models.Image
	backgroundErr  error

	rmsOnce sync.Once
	rms     *models.Image
	rmsErr  error

	nmaskedOnce sync.Once
	nmasked     *models.MaskedArray

	bkgMeshMAOnce sync.Once
	bkgMeshMA     *models.MaskedArray

	rmsMeshMAOnce sync.Once
	rmsMeshMA     *models.MaskedArray

	medianOnce sync.Once
	median     float64

	rmsMedianOnce sync.Once
	rmsMedian     float64
}

// New validates opts and computes the background and RMS meshes of data.
// mask may be nil; true marks a pixel excluded from every statistic. data
// and mask are copied.
func New(data *models.Image, mask *models.Mask, opts Options) (*Background2D, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if data == nil || data.Height < 1 || data.Width < 1 {
		return nil, fmt.Errorf("%w: data must be a non-empty image", ErrConfiguration)
	}
	if len(data.Data) != data.Height*data.Width {
		return nil, fmt.Errorf("%w: data has %d samples for shape (%d, %d)",
			ErrShapeMismatch, len(data.Data), data.Height, data.Width)
	}
	if mask != nil {
		if mask.Height != data.Height || mask.Width != data.Width || len(mask.Data) != len(data.Data) {
			return nil, fmt.Errorf("%w: mask (%d, %d), data (%d, %d)",
				ErrShapeMismatch, mask.Height, mask.Width, data.Height, data.Width)
		}
	}

	b := &Background2D{
		data: data.Clone(),
		opts: opts,
		box: models.Size2D{
			Y: min(opts.BoxSize.Y, data.Height),
			X: min(opts.BoxSize.X, data.Width),
		},
	}
	if mask != nil {
		b.mask = &models.Mask{
			Data:   append([]bool(nil), mask.Data...),
			Height: mask.Height,
			Width:  mask.Width,
		}
	}

	if err := b.prepareData(); err != nil {
		return nil, err
	}
	if err := b.calcMeshes(); err != nil {
		return nil, err
	}
	return b, nil
}

// prepareData resizes the image, splits it into tiles and keeps the tiles
// selected by the exclusion policy.
func (b *Background2D) prepareData() error {
	resized, nyBoxes, nxBoxes, err := resizeImage(b.data, b.mask, b.box, b.opts.EdgeMethod)
	if err != nil {
		return err
	}
	b.nyBoxes, b.nxBoxes = nyBoxes, nxBoxes

	meshes := partitionMeshes(resized, nyBoxes, nxBoxes, b.box)
	b.meshIdx, err = selectMeshes(meshes, b.opts.ExcludeMeshMethod, b.opts.ExcludeMeshPercentile)
	if err != nil {
		return err
	}

	monitoring.Logf("background: %d x %d meshes of %s pixels (%s), %d of %d kept by %q exclusion",
		nyBoxes, nxBoxes, b.box, b.opts.EdgeMethod, len(b.meshIdx), nyBoxes*nxBoxes, b.opts.ExcludeMeshMethod)

	kept := meshes.SelectRows(b.meshIdx)
	if b.opts.SigmaClip != nil {
		kept = b.opts.SigmaClip.ClipRows(kept)
	}
	b.clipped = kept
	return nil
}

// calcMeshes estimates the per-tile statistics, completes the meshes over
// excluded tiles and filters them.
func (b *Background2D) calcMeshes() error {
	b.bkg1d = withoutSigmaClip(b.opts.BkgEstimator).Estimate(b.clipped)
	b.rms1d = withoutSigmaClip(b.opts.RMSEstimator).Estimate(b.clipped)
	if len(b.bkg1d) != len(b.meshIdx) || len(b.rms1d) != len(b.meshIdx) {
		return fmt.Errorf("%w: estimators returned %d and %d values for %d meshes",
			ErrConfiguration, len(b.bkg1d), len(b.rms1d), len(b.meshIdx))
	}

	var err error
	b.bkgMesh, err = reconstructMesh(b.bkg1d, b.meshIdx, b.nyBoxes, b.nxBoxes, b.opts.MeshInterpolation)
	if err != nil {
		return err
	}
	b.rmsMesh, err = reconstructMesh(b.rms1d, b.meshIdx, b.nyBoxes, b.nxBoxes, b.opts.MeshInterpolation)
	if err != nil {
		return err
	}

	var filtered int
	b.bkgMesh, b.rmsMesh, filtered = filterMeshes(b.bkgMesh, b.rmsMesh, b.opts.FilterSize, b.opts.FilterThreshold)
	if filtered > 0 {
		monitoring.Logf("background: median filtered %d mesh cells with a %s window", filtered, b.opts.FilterSize)
	}
	if b.bkgMesh.HasNaN() || b.rmsMesh.HasNaN() {
		monitoring.Logf("background: meshes contain NaN values")
	}
	return nil
}

func withoutSigmaClip(e stats.Estimator) stats.Estimator {
	if s, ok := e.(stats.SigmaClipStripper); ok {
		return s.WithoutSigmaClip()
	}
	return e
}

// Background returns the full resolution background image.
func (b *Background2D) Background() (*models.Image, error) {
	b.backgroundOnce.Do(func() {
		b.background, b.backgroundErr = b.resize(b.bkgMesh)
	})
	return b.background, b.backgroundErr
}

// BackgroundRMS returns the full resolution background RMS image.
func (b *Background2D) BackgroundRMS() (*models.Image, error) {
	b.rmsOnce.Do(func() {
		b.rms, b.rmsErr = b.resize(b.rmsMesh)
	})
	return b.rms, b.rmsErr
}

func (b *Background2D) resize(mesh *models.MaskedArray) (*models.Image, error) {
	img, err := b.opts.Interpolator.Resize(mesh, b)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: interpolator returned no image", ErrConfiguration)
	}
	if img.Height != b.data.Height || img.Width != b.data.Width {
		return nil, fmt.Errorf("%w: interpolator returned (%d, %d) for data (%d, %d)",
			ErrShapeMismatch, img.Height, img.Width, b.data.Height, b.data.Width)
	}
	return img, nil
}

// BackgroundSubtracted returns the data minus the background.
func (b *Background2D) BackgroundSubtracted() (*models.Image, error) {
	bkg, err := b.Background()
	if err != nil {
		return nil, err
	}
	out := b.data.Clone()
	for i := range out.Data {
		out.Data[i] -= bkg.Data[i]
	}
	return out, nil
}

// BackgroundMesh returns the low-resolution background after completion and
// filtering.
func (b *Background2D) BackgroundMesh() *models.MaskedArray { return b.bkgMesh }

// BackgroundRMSMesh returns the low-resolution background RMS after
// completion and filtering.
func (b *Background2D) BackgroundRMSMesh() *models.MaskedArray { return b.rmsMesh }

// BackgroundMeshMA returns the background of the kept tiles before
// completion and filtering. Excluded tiles are masked.
func (b *Background2D) BackgroundMeshMA() *models.MaskedArray {
	b.bkgMeshMAOnce.Do(func() {
		b.bkgMeshMA = makeMesh2D(b.bkg1d, b.meshIdx, b.nyBoxes, b.nxBoxes)
	})
	return b.bkgMeshMA
}

// BackgroundRMSMeshMA returns the background RMS of the kept tiles before
// completion and filtering. Excluded tiles are masked.
func (b *Background2D) BackgroundRMSMeshMA() *models.MaskedArray {
	b.rmsMeshMAOnce.Do(func() {
		b.rmsMeshMA = makeMesh2D(b.rms1d, b.meshIdx, b.nyBoxes, b.nxBoxes)
	})
	return b.rmsMeshMA
}

// MeshNMasked returns the number of masked pixels of every kept tile after
// sigma clipping. Excluded tiles are masked.
func (b *Background2D) MeshNMasked() *models.MaskedArray {
	b.nmaskedOnce.Do(func() {
		counts := b.clipped.CountMasked()
		values := make([]float64, len(counts))
		for i, n := range counts {
			values[i] = float64(n)
		}
		b.nmasked = makeMesh2D(values, b.meshIdx, b.nyBoxes, b.nxBoxes)
	})
	return b.nmasked
}

// BackgroundMedian returns the median of the background mesh.
func (b *Background2D) BackgroundMedian() float64 {
	b.medianOnce.Do(func() { b.median = stats.Median(b.bkgMesh.Data) })
	return b.median
}

// BackgroundRMSMedian returns the median of the background RMS mesh.
func (b *Background2D) BackgroundRMSMedian() float64 {
	b.rmsMedianOnce.Do(func() { b.rmsMedian = stats.Median(b.rmsMesh.Data) })
	return b.rmsMedian
}

// Shape returns the (height, width) of the data.
func (b *Background2D) Shape() (int, int) { return b.data.Height, b.data.Width }

// BoxSize returns the tile size after clamping to the data shape.
func (b *Background2D) BoxSize() models.Size2D { return b.box }

// NYBoxes returns the number of tile rows.
func (b *Background2D) NYBoxes() int { return b.nyBoxes }

// NXBoxes returns the number of tile columns.
func (b *Background2D) NXBoxes() int { return b.nxBoxes }

// EdgeMethod returns the method used to fit the data to whole tiles.
func (b *Background2D) EdgeMethod() EdgeMethod { return b.opts.EdgeMethod }

// MeshIndex returns the increasing row-major indices of the kept tiles.
func (b *Background2D) MeshIndex() []int {
	return append([]int(nil), b.meshIdx...)
}

// tileCentres returns the (y, x) pixel centre of every kept tile.
func (b *Background2D) tileCentres() [][2]float64 {
	centres := make([][2]float64, len(b.meshIdx))
	for k, i := range b.meshIdx {
		centres[k] = [2]float64{
			float64((i/b.nxBoxes)*b.box.Y) + float64(b.box.Y-1)/2,
			float64((i%b.nxBoxes)*b.box.X) + float64(b.box.X-1)/2,
		}
	}
	return centres
}

// TileCenters returns the pixel centre of every kept tile as an (x, y) point.
func (b *Background2D) TileCenters() []orb.Point {
	centres := b.tileCentres()
	points := make([]orb.Point, len(centres))
	for k, c := range centres {
		points[k] = orb.Point{c[1], c[0]}
	}
	return points
}

// MeshBounds returns the pixel rectangle covered by every kept tile, in
// (x, y) order with pixel centres on integer coordinates. Tiles in the
// padded overhang extend beyond the data.
func (b *Background2D) MeshBounds() []orb.Bound {
	bounds := make([]orb.Bound, len(b.meshIdx))
	for k, i := range b.meshIdx {
		x0 := float64((i%b.nxBoxes)*b.box.X) - 0.5
		y0 := float64((i/b.nxBoxes)*b.box.Y) - 0.5
		bounds[k] = orb.Bound{
			Min: orb.Point{x0, y0},
			Max: orb.Point{x0 + float64(b.box.X), y0 + float64(b.box.Y)},
		}
	}
	return bounds
}
