package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/HSouch/photutils/internal/models"
)

// SigmaClip iteratively rejects outliers around the median.
//
// In each iteration the centre is the median and the spread is the population
// standard deviation of the surviving values. Values below
// centre - SigmaLower*std or above centre + SigmaUpper*std are masked.
// Iteration stops when an iteration masks nothing new or after MaxIters
// iterations.
type SigmaClip struct {
	// Sigma is the clipping limit in standard deviations for both tails
	Sigma float64 `yaml:"sigma"`

	// SigmaLower overrides Sigma for the lower tail when positive
	SigmaLower float64 `yaml:"sigmaLower"`

	// SigmaUpper overrides Sigma for the upper tail when positive
	SigmaUpper float64 `yaml:"sigmaUpper"`

	// MaxIters bounds the number of iterations; zero or less iterates
	// until convergence
	MaxIters int `yaml:"maxIters"`
}

// NewSigmaClip returns a symmetric sigma clip.
func NewSigmaClip(sigma float64, maxIters int) *SigmaClip {
	return &SigmaClip{Sigma: sigma, MaxIters: maxIters}
}

// Validate checks the clipping limits.
func (sc *SigmaClip) Validate() error {
	if math.IsNaN(sc.Sigma) || math.IsNaN(sc.SigmaLower) || math.IsNaN(sc.SigmaUpper) {
		return fmt.Errorf("sigma limits must be numbers, got sigma=%g lower=%g upper=%g",
			sc.Sigma, sc.SigmaLower, sc.SigmaUpper)
	}
	if sc.Sigma <= 0 && (sc.SigmaLower <= 0 || sc.SigmaUpper <= 0) {
		return fmt.Errorf("sigma must be positive, got %g", sc.Sigma)
	}
	if sc.SigmaLower < 0 || sc.SigmaUpper < 0 {
		return fmt.Errorf("sigma limits must not be negative, got lower=%g upper=%g",
			sc.SigmaLower, sc.SigmaUpper)
	}
	return nil
}

func (sc *SigmaClip) limits() (lower, upper float64) {
	lower, upper = sc.Sigma, sc.Sigma
	if sc.SigmaLower > 0 {
		lower = sc.SigmaLower
	}
	if sc.SigmaUpper > 0 {
		upper = sc.SigmaUpper
	}
	return lower, upper
}

// ClipRows sigma clips every row of a independently and returns a new array
// whose mask is the union of the input mask and the clipped values.
// Non-finite values are always masked.
func (sc *SigmaClip) ClipRows(a *models.MaskedArray) *models.MaskedArray {
	out := a.Clone()
	for i := 0; i < out.Rows; i++ {
		values, mask := out.Row(i)
		sc.Clip(values, mask)
	}
	return out
}

// Clip sigma clips values in place on mask, returning the number of values
// it masked.
func (sc *SigmaClip) Clip(values []float64, mask []bool) int {
	lower, upper := sc.limits()

	clipped := 0
	for k, v := range values {
		if !mask[k] && (math.IsNaN(v) || math.IsInf(v, 0)) {
			mask[k] = true
			clipped++
		}
	}

	kept := make([]float64, 0, len(values))
	for iter := 0; sc.MaxIters <= 0 || iter < sc.MaxIters; iter++ {
		kept = kept[:0]
		for k, v := range values {
			if !mask[k] {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			break
		}

		centre := Median(kept)
		std := stat.PopStdDev(kept, nil)
		lo, hi := centre-lower*std, centre+upper*std

		changed := 0
		for k, v := range values {
			if !mask[k] && (v < lo || v > hi) {
				mask[k] = true
				changed++
			}
		}
		clipped += changed
		if changed == 0 {
			break
		}
	}
	return clipped
}
