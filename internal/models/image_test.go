package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewImageFrom(t *testing.T) {
	img, err := NewImageFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6.0, img.At(1, 2))
	assert.Equal(t, 2.0, img.At(0, 1))

	_, err = NewImageFrom([]float64{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	_, err = NewImageFrom(nil, 0, 3)
	assert.Error(t, err)
}

func TestImageCloneIsIndependent(t *testing.T) {
	img := NewConstantImage(2, 2, 7)
	c := img.Clone()
	c.Set(0, 0, 1)
	assert.Equal(t, 7.0, img.At(0, 0))
	assert.Equal(t, 1.0, c.At(0, 0))
}

func TestMaskCount(t *testing.T) {
	m := NewMask(3, 3)
	m.Set(0, 0, true)
	m.Set(2, 1, true)
	assert.Equal(t, 2, m.Count())
	assert.True(t, m.At(2, 1))
	assert.False(t, m.At(1, 1))
}

// Reductions on a MaskedArray must never see masked values.
func TestMaskedArrayReductionsSkipMasked(t *testing.T) {
	a := NewMaskedArray(2, 3)
	copy(a.Data, []float64{1, 100, 3, 4, 5, math.NaN()})
	a.Mask[1] = true // the 100 outlier
	a.Mask[5] = true // the NaN

	assert.Equal(t, []float64{1, 3}, a.Unmasked(0))
	assert.Equal(t, []float64{4, 5}, a.Unmasked(1))
	assert.Equal(t, []int{1, 1}, a.CountMasked())
	assert.Equal(t, []float64{1, 3, 4, 5}, a.Compressed())
	assert.False(t, a.HasNaN())

	filled := a.Filled(-1)
	assert.Equal(t, []float64{1, -1, 3, 4, 5, -1}, filled)
}

func TestMaskedArraySelectRows(t *testing.T) {
	a := NewMaskedArray(3, 2)
	copy(a.Data, []float64{0, 1, 10, 11, 20, 21})
	a.Mask[3] = true

	sel := a.SelectRows([]int{2, 1})
	require.Equal(t, 2, sel.Rows)
	assert.Equal(t, []float64{20, 21, 10, 11}, sel.Data)
	assert.Equal(t, []bool{false, false, false, true}, sel.Mask)

	// selection is a copy
	sel.Data[0] = -5
	assert.Equal(t, 20.0, a.At(2, 0))
}

func TestFullyMaskedArray(t *testing.T) {
	a := NewFullyMaskedArray(2, 2)
	assert.Empty(t, a.Compressed())
	assert.Equal(t, []int{2, 2}, a.CountMasked())
}

func TestSize2DYAML(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Size2D
		err  bool
	}{
		{"scalar", "size: 5", Size2D{5, 5}, false},
		{"one element", "size: [7]", Size2D{7, 7}, false},
		{"pair", "size: [3, 4]", Size2D{3, 4}, false},
		{"too many", "size: [1, 2, 3]", Size2D{}, true},
		{"not a number", "size: big", Size2D{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var doc struct {
				Size Size2D `yaml:"size"`
			}
			err := yaml.Unmarshal([]byte(tc.doc), &doc)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, doc.Size)
		})
	}
}

func TestSize2DMarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Size Size2D `yaml:"size"`
	}{Size2D{Y: 2, X: 9}})
	require.NoError(t, err)

	var back struct {
		Size Size2D `yaml:"size"`
	}
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, Size2D{Y: 2, X: 9}, back.Size)
	assert.Equal(t, 18, back.Size.Pixels())
	assert.False(t, back.Size.IsUnit())
	assert.True(t, Square(1).IsUnit())
}
