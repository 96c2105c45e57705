package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouch/photutils/internal/models"
)

func rowsOf(values ...[]float64) *models.MaskedArray {
	cols := len(values[0])
	a := models.NewMaskedArray(len(values), cols)
	for i, row := range values {
		copy(a.Data[i*cols:(i+1)*cols], row)
	}
	return a
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Median(tc.values))
		})
	}

	assert.True(t, math.IsNaN(Median(nil)))
	assert.True(t, math.IsNaN(Median([]float64{1, math.NaN(), 3})))
	assert.Equal(t, 2.0, NaNMedian([]float64{1, math.NaN(), 3}))
	assert.True(t, math.IsNaN(NaNMedian([]float64{math.NaN()})))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input must not be reordered")
}

func TestMAD(t *testing.T) {
	assert.Equal(t, 1.0, MAD([]float64{1, 2, 3, 4, 5}))
	assert.True(t, math.IsNaN(MAD(nil)))
}

func outlierRow() []float64 {
	return []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 1000}
}

func TestSigmaClipRejectsOutlier(t *testing.T) {
	sc := NewSigmaClip(3, 10)
	values := outlierRow()
	mask := make([]bool, len(values))

	n := sc.Clip(values, mask)
	assert.Equal(t, 1, n)
	assert.True(t, mask[10])
	for k := 0; k < 10; k++ {
		assert.False(t, mask[k], "value %v should survive", values[k])
	}

	// converged: a second pass clips nothing
	assert.Equal(t, 0, sc.Clip(values, mask))
}

func TestSigmaClipRespectsInputMask(t *testing.T) {
	sc := NewSigmaClip(3, 10)
	values := outlierRow()
	mask := make([]bool, len(values))
	mask[10] = true

	assert.Equal(t, 0, sc.Clip(values, mask))
}

func TestSigmaClipMasksNonFinite(t *testing.T) {
	sc := NewSigmaClip(3, 10)
	values := []float64{1, 2, math.NaN(), 3, math.Inf(1)}
	mask := make([]bool, len(values))

	sc.Clip(values, mask)
	assert.True(t, mask[2])
	assert.True(t, mask[4])
}

func TestSigmaClipRowsIsRowWise(t *testing.T) {
	a := rowsOf(outlierRow(), []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5})
	out := NewSigmaClip(3, 10).ClipRows(a)

	assert.Equal(t, []int{1, 0}, out.CountMasked())
	assert.Equal(t, []int{0, 0}, a.CountMasked(), "input must not be modified")
}

func TestSigmaClipAsymmetricLimits(t *testing.T) {
	// with a very loose upper limit the high outlier survives
	sc := &SigmaClip{Sigma: 3, SigmaUpper: 100, MaxIters: 10}
	values := outlierRow()
	mask := make([]bool, len(values))
	assert.Equal(t, 0, sc.Clip(values, mask))
}

func TestSigmaClipValidate(t *testing.T) {
	assert.NoError(t, NewSigmaClip(3, 10).Validate())
	assert.NoError(t, (&SigmaClip{SigmaLower: 2, SigmaUpper: 4}).Validate())
	assert.Error(t, NewSigmaClip(0, 10).Validate())
	assert.Error(t, (&SigmaClip{Sigma: 3, SigmaLower: -1}).Validate())
	assert.Error(t, NewSigmaClip(math.NaN(), 10).Validate())
	assert.Error(t, (&SigmaClip{Sigma: 3, SigmaUpper: math.NaN()}).Validate())
}

func TestEstimators(t *testing.T) {
	rows := rowsOf(
		[]float64{1, 2, 3, 4, 5},
		[]float64{5, 5, 5, 5, 5},
		[]float64{1, 1, 1, 1, 10},
		[]float64{1, 2, 3, 4, 6},
	)

	tests := []struct {
		name string
		est  Estimator
		want []float64
	}{
		{"mean", &MeanBackground{}, []float64{3, 5, 2.8, 3.2}},
		{"median", &MedianBackground{}, []float64{3, 5, 1, 3}},
		{"mmm", &MMMBackground{}, []float64{3, 5, 3 - 5.6, 9 - 6.4}},
		// flat row -> mean, skewed row -> median, mild skew -> 2.5 med - 1.5 mean
		{"sextractor", &SExtractorBackground{}, []float64{3, 5, 1, 2.7}},
		{"std", &StdBackgroundRMS{}, []float64{math.Sqrt2, 0, 3.6, math.Sqrt(2.96)}},
		{"madstd", &MADStdBackgroundRMS{}, []float64{1.4826, 0, 0, 1.4826}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.est.Estimate(rows)
			require.Len(t, got, len(tc.want))
			assert.InDeltaSlice(t, tc.want, got, 1e-9)
		})
	}
}

func TestEstimatorsSkipMaskedAndEmptyRows(t *testing.T) {
	rows := rowsOf(
		[]float64{1, 2, 3, 100},
		[]float64{7, 8, 9, 10},
	)
	rows.Mask[3] = true
	for k := 4; k < 8; k++ {
		rows.Mask[k] = true
	}

	got := (&MeanBackground{}).Estimate(rows)
	assert.Equal(t, 2.0, got[0])
	assert.True(t, math.IsNaN(got[1]))

	rms := (&StdBackgroundRMS{}).Estimate(rows)
	assert.InDelta(t, math.Sqrt(2.0/3.0), rms[0], 1e-12)
	assert.True(t, math.IsNaN(rms[1]))
}

func TestEstimatorOwnSigmaClip(t *testing.T) {
	rows := rowsOf(outlierRow())

	clipped := &MeanBackground{SigmaClip: NewSigmaClip(3, 10)}
	assert.InDelta(t, 5.5, clipped.Estimate(rows)[0], 1e-12)

	stripped := clipped.WithoutSigmaClip()
	assert.InDelta(t, 1055.0/11.0, stripped.Estimate(rows)[0], 1e-12)
}

func TestWithoutSigmaClipCoversBuiltins(t *testing.T) {
	sc := NewSigmaClip(3, 5)
	builtins := []Estimator{
		&MeanBackground{SigmaClip: sc},
		&MedianBackground{SigmaClip: sc},
		&MMMBackground{SigmaClip: sc},
		&SExtractorBackground{SigmaClip: sc},
		&StdBackgroundRMS{SigmaClip: sc},
		&MADStdBackgroundRMS{SigmaClip: sc},
	}
	for _, e := range builtins {
		s, ok := e.(SigmaClipStripper)
		require.True(t, ok, "%T", e)
		assert.IsType(t, e, s.WithoutSigmaClip())
	}
}

func TestEstimatorFunc(t *testing.T) {
	count := EstimatorFunc(func(rows *models.MaskedArray) []float64 {
		out := make([]float64, rows.Rows)
		for i := range out {
			out[i] = float64(len(rows.Unmasked(i)))
		}
		return out
	})
	rows := rowsOf([]float64{1, 2, 3})
	rows.Mask[0] = true
	assert.Equal(t, []float64{2}, count.Estimate(rows))
}

func TestEstimatorByName(t *testing.T) {
	for _, name := range BackgroundEstimatorNames {
		e, err := BackgroundEstimatorByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.(interface{ String() string }).String())
	}
	for _, name := range RMSEstimatorNames {
		e, err := RMSEstimatorByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.(interface{ String() string }).String())
	}

	e, err := BackgroundEstimatorByName("SExtractor")
	require.NoError(t, err)
	assert.IsType(t, &SExtractorBackground{}, e)

	_, err = BackgroundEstimatorByName("biweight")
	assert.Error(t, err)
	_, err = RMSEstimatorByName("mean")
	assert.Error(t, err)
}
