package background

import (
	"fmt"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/pkg/stats"
)

// ExcludeMethod selects which tiles are dropped from the background
// estimate based on their masked pixels.
type ExcludeMethod string

const (
	// ExcludeThreshold keeps tiles with at least the configured percentage
	// of unmasked pixels.
	ExcludeThreshold ExcludeMethod = "threshold"
	// ExcludeAny drops tiles with any masked pixel.
	ExcludeAny ExcludeMethod = "any"
	// ExcludeAll drops only fully masked tiles.
	ExcludeAll ExcludeMethod = "all"
)

func (m ExcludeMethod) valid() bool {
	return m == ExcludeThreshold || m == ExcludeAny || m == ExcludeAll
}

// EdgeMethod selects how an image that is not an exact multiple of the box
// size is brought to one.
type EdgeMethod string

const (
	// EdgePad extends the image with masked pixels up to the next multiple.
	EdgePad EdgeMethod = "pad"
	// EdgeCrop drops the partial tiles at the bottom and right edges.
	EdgeCrop EdgeMethod = "crop"
)

func (m EdgeMethod) valid() bool { return m == EdgePad || m == EdgeCrop }

// MeshInterpolation holds the inverse distance weighting parameters used to
// fill the excluded cells of the low-resolution meshes.
type MeshInterpolation struct {
	NNeighbors int     `yaml:"nNeighbors"`
	Power      float64 `yaml:"power"`
	Reg        float64 `yaml:"reg"`
	Eps        float64 `yaml:"eps"`
}

// DefaultMeshInterpolation returns 10 neighbours, power 1, no regularisation
// and an exact search.
func DefaultMeshInterpolation() MeshInterpolation {
	return MeshInterpolation{NNeighbors: 10, Power: 1}
}

// Validate checks the interpolation parameters.
func (m MeshInterpolation) Validate() error {
	if m.NNeighbors < 1 {
		return fmt.Errorf("%w: mesh interpolation needs at least one neighbor, got %d",
			ErrConfiguration, m.NNeighbors)
	}
	if !(m.Eps >= 0) {
		return fmt.Errorf("%w: mesh interpolation eps must not be negative, got %g",
			ErrConfiguration, m.Eps)
	}
	return nil
}

// Options configures a Background2D. Start from DefaultOptions and override
// fields as needed.
type Options struct {
	// BoxSize is the tile size in pixels. It is clamped to the image shape.
	BoxSize models.Size2D

	// ExcludeMeshMethod and ExcludeMeshPercentile select the tiles used
	// for the estimate.
	ExcludeMeshMethod     ExcludeMethod
	ExcludeMeshPercentile float64

	// FilterSize is the median filter window over the low-resolution
	// meshes; (1, 1) disables filtering.
	FilterSize models.Size2D

	// FilterThreshold, when set, restricts filtering to cells whose
	// background value exceeds it.
	FilterThreshold *float64

	EdgeMethod EdgeMethod

	// SigmaClip is applied to every tile before estimation; nil disables it.
	SigmaClip *stats.SigmaClip

	BkgEstimator stats.Estimator
	RMSEstimator stats.Estimator

	// Interpolator expands the meshes to full resolution.
	Interpolator Interpolator

	MeshInterpolation MeshInterpolation
}

// DefaultOptions returns the standard configuration for the given box size:
// threshold exclusion at 10%, a 3x3 median filter, padding, 3-sigma clipping
// with 10 iterations, the SExtractor background, the standard deviation RMS
// and a cubic spline zoom.
func DefaultOptions(boxSize models.Size2D) Options {
	return Options{
		BoxSize:               boxSize,
		ExcludeMeshMethod:     ExcludeThreshold,
		ExcludeMeshPercentile: 10,
		FilterSize:            models.Square(3),
		EdgeMethod:            EdgePad,
		SigmaClip:             stats.NewSigmaClip(3, 10),
		BkgEstimator:          &stats.SExtractorBackground{},
		RMSEstimator:          &stats.StdBackgroundRMS{},
		Interpolator:          DefaultZoomInterpolator(),
		MeshInterpolation:     DefaultMeshInterpolation(),
	}
}

// withDefaults fills unset fields with their defaults. A nil SigmaClip and a
// zero percentile are meaningful values and are left alone.
func (o Options) withDefaults() Options {
	if o.ExcludeMeshMethod == "" {
		o.ExcludeMeshMethod = ExcludeThreshold
	}
	if o.FilterSize == (models.Size2D{}) {
		o.FilterSize = models.Square(3)
	}
	if o.EdgeMethod == "" {
		o.EdgeMethod = EdgePad
	}
	if o.BkgEstimator == nil {
		o.BkgEstimator = &stats.SExtractorBackground{}
	}
	if o.RMSEstimator == nil {
		o.RMSEstimator = &stats.StdBackgroundRMS{}
	}
	if o.Interpolator == nil {
		o.Interpolator = DefaultZoomInterpolator()
	}
	if o.MeshInterpolation == (MeshInterpolation{}) {
		o.MeshInterpolation = DefaultMeshInterpolation()
	}
	return o
}

// Validate checks every option. All errors wrap ErrConfiguration.
func (o Options) Validate() error {
	if o.BoxSize.Y < 1 || o.BoxSize.X < 1 {
		return fmt.Errorf("%w: box size must be positive, got %s", ErrConfiguration, o.BoxSize)
	}
	if o.FilterSize.Y < 1 || o.FilterSize.X < 1 {
		return fmt.Errorf("%w: filter size must be positive, got %s", ErrConfiguration, o.FilterSize)
	}
	if !o.ExcludeMeshMethod.valid() {
		return fmt.Errorf("%w: exclude mesh method must be %q, %q or %q, got %q",
			ErrConfiguration, ExcludeAny, ExcludeAll, ExcludeThreshold, o.ExcludeMeshMethod)
	}
	if !(o.ExcludeMeshPercentile >= 0 && o.ExcludeMeshPercentile <= 100) {
		return fmt.Errorf("%w: exclude mesh percentile must be between 0 and 100, got %g",
			ErrConfiguration, o.ExcludeMeshPercentile)
	}
	if !o.EdgeMethod.valid() {
		return fmt.Errorf("%w: edge method must be %q or %q, got %q",
			ErrConfiguration, EdgePad, EdgeCrop, o.EdgeMethod)
	}
	if o.SigmaClip != nil {
		if err := o.SigmaClip.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	if o.BkgEstimator == nil || o.RMSEstimator == nil {
		return fmt.Errorf("%w: background and RMS estimators are required", ErrConfiguration)
	}
	if o.Interpolator == nil {
		return fmt.Errorf("%w: an interpolator is required", ErrConfiguration)
	}
	if v, ok := o.Interpolator.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return o.MeshInterpolation.Validate()
}
