// Package stats provides the robust per-tile statistics consumed by the 2D
// background estimator: sigma clipping and the background / background RMS
// estimators.
package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/HSouch/photutils/internal/models"
)

// Estimator reduces every row of a masked array to one value, skipping
// masked elements. A row with no unmasked element yields NaN.
type Estimator interface {
	Estimate(rows *models.MaskedArray) []float64
}

// EstimatorFunc adapts a plain function to the Estimator interface.
type EstimatorFunc func(rows *models.MaskedArray) []float64

// Estimate calls f(rows).
func (f EstimatorFunc) Estimate(rows *models.MaskedArray) []float64 { return f(rows) }

// SigmaClipStripper is implemented by estimators that carry their own sigma
// clip. WithoutSigmaClip returns a copy with clipping disabled.
type SigmaClipStripper interface {
	WithoutSigmaClip() Estimator
}

// reduceRows applies fn to the unmasked values of every row, after clipping
// the rows with sc when sc is not nil.
func reduceRows(rows *models.MaskedArray, sc *SigmaClip, fn func([]float64) float64) []float64 {
	if sc != nil {
		rows = sc.ClipRows(rows)
	}
	out := make([]float64, rows.Rows)
	for i := 0; i < rows.Rows; i++ {
		values := rows.Unmasked(i)
		if len(values) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(values)
	}
	return out
}

// MeanBackground estimates the background as the mean.
type MeanBackground struct {
	SigmaClip *SigmaClip
}

func (e *MeanBackground) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, func(v []float64) float64 { return stat.Mean(v, nil) })
}

func (e *MeanBackground) WithoutSigmaClip() Estimator { return &MeanBackground{} }

func (e *MeanBackground) String() string { return "mean" }

// MedianBackground estimates the background as the median.
type MedianBackground struct {
	SigmaClip *SigmaClip
}

func (e *MedianBackground) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, Median)
}

func (e *MedianBackground) WithoutSigmaClip() Estimator { return &MedianBackground{} }

func (e *MedianBackground) String() string { return "median" }

// MMMBackground estimates the background with the mode approximation
// 3*median - 2*mean used by DAOPHOT's MMM.
type MMMBackground struct {
	SigmaClip *SigmaClip
}

func (e *MMMBackground) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, func(v []float64) float64 {
		return 3*Median(v) - 2*stat.Mean(v, nil)
	})
}

func (e *MMMBackground) WithoutSigmaClip() Estimator { return &MMMBackground{} }

func (e *MMMBackground) String() string { return "mmm" }

// SExtractorBackground estimates the background as 2.5*median - 1.5*mean.
// When the standard deviation is zero the mean is used, and when
// |mean - median| / std >= 0.3 (a crowded field) the median is used.
type SExtractorBackground struct {
	SigmaClip *SigmaClip
}

func (e *SExtractorBackground) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, sextractorMode)
}

func (e *SExtractorBackground) WithoutSigmaClip() Estimator { return &SExtractorBackground{} }

func (e *SExtractorBackground) String() string { return "sextractor" }

func sextractorMode(v []float64) float64 {
	med := Median(v)
	mean, std := stat.PopMeanStdDev(v, nil)
	if std == 0 {
		return mean
	}
	if math.Abs(mean-med)/std < 0.3 {
		return 2.5*med - 1.5*mean
	}
	return med
}

// StdBackgroundRMS estimates the background RMS as the population standard
// deviation.
type StdBackgroundRMS struct {
	SigmaClip *SigmaClip
}

func (e *StdBackgroundRMS) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, func(v []float64) float64 { return stat.PopStdDev(v, nil) })
}

func (e *StdBackgroundRMS) WithoutSigmaClip() Estimator { return &StdBackgroundRMS{} }

func (e *StdBackgroundRMS) String() string { return "std" }

// madToStd converts a median absolute deviation to a Gaussian standard deviation.
const madToStd = 1.4826

// MADStdBackgroundRMS estimates the background RMS as 1.4826 * MAD.
type MADStdBackgroundRMS struct {
	SigmaClip *SigmaClip
}

func (e *MADStdBackgroundRMS) Estimate(rows *models.MaskedArray) []float64 {
	return reduceRows(rows, e.SigmaClip, func(v []float64) float64 { return madToStd * MAD(v) })
}

func (e *MADStdBackgroundRMS) WithoutSigmaClip() Estimator { return &MADStdBackgroundRMS{} }

func (e *MADStdBackgroundRMS) String() string { return "madstd" }

// BackgroundEstimatorNames lists the names accepted by BackgroundEstimatorByName.
var BackgroundEstimatorNames = []string{"mean", "median", "mmm", "sextractor"}

// RMSEstimatorNames lists the names accepted by RMSEstimatorByName.
var RMSEstimatorNames = []string{"std", "madstd"}

// BackgroundEstimatorByName returns a built-in background estimator without
// its own sigma clip.
func BackgroundEstimatorByName(name string) (Estimator, error) {
	switch strings.ToLower(name) {
	case "mean":
		return &MeanBackground{}, nil
	case "median":
		return &MedianBackground{}, nil
	case "mmm":
		return &MMMBackground{}, nil
	case "sextractor", "":
		return &SExtractorBackground{}, nil
	default:
		return nil, fmt.Errorf("unknown background estimator %q (want one of %s)",
			name, strings.Join(BackgroundEstimatorNames, ", "))
	}
}

// RMSEstimatorByName returns a built-in background RMS estimator without its
// own sigma clip.
func RMSEstimatorByName(name string) (Estimator, error) {
	switch strings.ToLower(name) {
	case "std", "":
		return &StdBackgroundRMS{}, nil
	case "madstd":
		return &MADStdBackgroundRMS{}, nil
	default:
		return nil, fmt.Errorf("unknown background RMS estimator %q (want one of %s)",
			name, strings.Join(RMSEstimatorNames, ", "))
	}
}
