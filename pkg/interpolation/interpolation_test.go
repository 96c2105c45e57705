package interpolation

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// createTestGrid returns the (y, x) coordinates and values of a rows x cols
// lattice with a non-separable pattern.
func createTestGrid(rows, cols int) ([][2]float64, []float64) {
	coords := make([][2]float64, 0, rows*cols)
	values := make([]float64, 0, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			coords = append(coords, [2]float64{float64(y), float64(x)})
			values = append(values, math.Sin(float64(y)*0.7)+float64((x*13+y*7)%5))
		}
	}
	return coords, values
}

func TestShepardIDWReturnsDataAtDataPoints(t *testing.T) {
	coords, values := createTestGrid(6, 5)
	idw, err := NewShepardIDW(coords, values, nil, 10)
	require.NoError(t, err)

	got, err := idw.Interpolate(coords, 8, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestShepardIDWWeighting(t *testing.T) {
	coords := [][2]float64{{0, 0}, {0, 2}}
	values := []float64{0, 10}

	idw, err := NewShepardIDW(coords, values, nil, 10)
	require.NoError(t, err)

	got, err := idw.Interpolate([][2]float64{{0, 1}, {0, 0.5}}, 2, 0, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got[0], 1e-12)
	// distances 0.5 and 1.5 -> weights 2 and 2/3
	assert.InDelta(t, 2.5, got[1], 1e-12)

	// a large regularisation flattens the weights
	got, err = idw.Interpolate([][2]float64{{0, 0.5}}, 2, 0, 1, 1e12)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got[0], 1e-6)

	// power 2 sharpens them: weights 4 and 4/9
	got, err = idw.Interpolate([][2]float64{{0, 0.5}}, 2, 0, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[0], 1e-12)
}

func TestShepardIDWDataWeights(t *testing.T) {
	coords := [][2]float64{{0, 0}, {0, 2}}
	idw, err := NewShepardIDW(coords, []float64{0, 10}, []float64{1, 3}, 10)
	require.NoError(t, err)

	got, err := idw.Interpolate([][2]float64{{0, 1}}, 2, 0, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, got[0], 1e-12)
}

func TestShepardIDWSingleNeighborIsNearest(t *testing.T) {
	coords := [][2]float64{{0, 0}, {0, 2}, {5, 5}}
	idw, err := NewShepardIDW(coords, []float64{1, 2, 3}, nil, 10)
	require.NoError(t, err)

	got, err := idw.Interpolate([][2]float64{{0, 0.9}, {0, 1.2}, {4, 4}}, 1, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestShepardIDWClampsNeighborCount(t *testing.T) {
	coords := [][2]float64{{0, 0}, {0, 2}}
	idw, err := NewShepardIDW(coords, []float64{0, 10}, nil, 10)
	require.NoError(t, err)

	got, err := idw.Interpolate([][2]float64{{0, 1}}, 10, 0, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got[0], 1e-12)
}

// The KD-tree path and the brute force path must agree.
func TestShepardIDWTreeMatchesBruteForce(t *testing.T) {
	coords, values := createTestGrid(20, 20)

	tree, err := NewShepardIDW(coords, values, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, tree.tree)

	brute, err := NewShepardIDW(coords, values, nil, len(coords))
	require.NoError(t, err)
	require.Nil(t, brute.tree)

	var queries [][2]float64
	for y := 0; y < 19; y += 2 {
		for x := 0; x < 19; x += 3 {
			queries = append(queries, [2]float64{float64(y) + 0.31, float64(x) + 0.17})
		}
	}

	want, err := brute.Interpolate(queries, 6, 0, 1, 0)
	require.NoError(t, err)
	got, err := tree.Interpolate(queries, 6, 0, 1, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestShepardIDWTreeMatchesBruteForceOnLattice(t *testing.T) {
	// a lattice with a hole puts many data points at equal distances from
	// every query
	var coords [][2]float64
	var values []float64
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			if y == 3 && x == 3 {
				continue
			}
			coords = append(coords, [2]float64{float64(y), float64(x)})
			values = append(values, float64(y*y*7+x*3+(x*y)%5))
		}
	}

	tree, err := NewShepardIDW(coords, values, nil, 1)
	require.NoError(t, err)
	require.NotNil(t, tree.tree)
	brute, err := NewShepardIDW(coords, values, nil, 1000)
	require.NoError(t, err)
	require.Nil(t, brute.tree)

	queries := [][2]float64{{3, 3}}
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			queries = append(queries, [2]float64{float64(y) + 0.5, float64(x)})
		}
	}

	for _, k := range []int{1, 4, 10} {
		want, err := brute.Interpolate(queries, k, 0, 1, 0)
		require.NoError(t, err)
		got, err := tree.Interpolate(queries, k, 0, 1, 0)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12, "k=%d", k)
	}

	for _, q := range queries {
		p := Point2D{Y: q[0], X: q[1], Index: -1}
		assert.Equal(t, brute.nearest(p, 10), tree.nearest(p, 10), "query %v", q)
	}
}

func TestShepardIDWProgress(t *testing.T) {
	coords, values := createTestGrid(4, 4)
	idw, err := NewShepardIDW(coords, values, nil, 10)
	require.NoError(t, err)

	var last int64
	idw.SetProgressCallback(func(completed, total int, message string) {
		assert.Equal(t, len(coords), total)
		atomic.StoreInt64(&last, int64(completed))
	})
	_, err = idw.Interpolate(coords, 4, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(coords)), atomic.LoadInt64(&last))
}

func TestShepardIDWErrors(t *testing.T) {
	coords := [][2]float64{{0, 0}, {1, 1}}

	_, err := NewShepardIDW(nil, nil, nil, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewShepardIDW(coords, []float64{1}, nil, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewShepardIDW(coords, []float64{1, 2}, []float64{1}, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewShepardIDW(coords, []float64{1, 2}, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	idw, err := NewShepardIDW(coords, []float64{1, 2}, nil, 10)
	require.NoError(t, err)
	_, err = idw.Interpolate(coords, 0, 0, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = idw.Interpolate(coords, 2, -1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	for order := 0; order <= MaxSplineOrder; order++ {
		for _, x := range []float64{0, 0.3, 0.5, 0.77} {
			sum := 0.0
			for i := -4; i <= 4; i++ {
				sum += bspline(order, x-float64(i))
			}
			assert.InDelta(t, 1.0, sum, 1e-12, "order %d at %v", order, x)
		}
	}
	assert.InDelta(t, 2.0/3.0, bspline(3, 0), 1e-12)
	assert.InDelta(t, 1.0/6.0, bspline(3, 1), 1e-12)
}

func testGrid(rows, cols int) []float64 {
	_, values := createTestGrid(rows, cols)
	return values
}

// Resampling to the same shape samples the input at integer coordinates, so
// an interpolating spline must return the input unchanged.
func TestZoomIdentityInterpolates(t *testing.T) {
	data := testGrid(5, 7)
	for _, mode := range []BoundaryMode{Reflect, Mirror, Wrap} {
		for order := 0; order <= MaxSplineOrder; order++ {
			got, err := Zoom(data, 5, 7, 5, 7, order, mode, 0)
			require.NoError(t, err)
			assert.InDeltaSlice(t, data, got, 1e-9, "mode %s order %d", mode, order)
		}
	}
}

func TestZoomConstantInputStaysConstant(t *testing.T) {
	data := make([]float64, 3*4)
	for i := range data {
		data[i] = 4.25
	}
	for _, mode := range []BoundaryMode{Reflect, Mirror, Nearest, Wrap} {
		for order := 0; order <= MaxSplineOrder; order++ {
			got, err := Zoom(data, 3, 4, 9, 10, order, mode, 0)
			require.NoError(t, err)
			require.Len(t, got, 90)
			for _, v := range got {
				assert.InDelta(t, 4.25, v, 1e-9, "mode %s order %d", mode, order)
			}
		}
	}
}

func TestZoomLinear(t *testing.T) {
	got, err := Zoom([]float64{0, 10}, 1, 2, 1, 5, 1, Reflect, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 2.5, 5, 7.5, 10}, got, 1e-12)
}

func TestZoomNearestOrder(t *testing.T) {
	// coordinates 0, 1/3, 2/3, 1
	got, err := Zoom([]float64{0, 10}, 1, 2, 1, 4, 0, Reflect, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 10, 10}, got)
}

func TestZoomKeepsCorners(t *testing.T) {
	data := testGrid(4, 3)
	got, err := Zoom(data, 4, 3, 13, 9, 3, Reflect, 0)
	require.NoError(t, err)

	assert.InDelta(t, data[0], got[0], 1e-9)
	assert.InDelta(t, data[2], got[8], 1e-9)
	assert.InDelta(t, data[9], got[12*9], 1e-9)
	assert.InDelta(t, data[11], got[13*9-1], 1e-9)
}

func TestZoomConstantModeUsesCval(t *testing.T) {
	// order 1 at the last sample touches the neighbour beyond the edge with
	// zero weight, so only a higher order reaches cval
	data := []float64{1, 1, 1}
	got, err := Zoom(data, 1, 3, 1, 3, 0, Constant, 99)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got, err = Zoom(data, 1, 3, 1, 5, 3, Constant, 99)
	require.NoError(t, err)
	assert.Greater(t, got[0], 1.0)
}

func TestMapIndex(t *testing.T) {
	tests := []struct {
		mode BoundaryMode
		in   []int
		want []int
	}{
		{Reflect, []int{-3, -2, -1, 4, 5, 6}, []int{2, 1, 0, 3, 2, 1}},
		{Mirror, []int{-3, -2, -1, 4, 5, 6}, []int{3, 2, 1, 2, 1, 0}},
		{Nearest, []int{-3, -1, 4, 9}, []int{0, 0, 3, 3}},
		{Wrap, []int{-3, -1, 4, 9}, []int{1, 3, 0, 1}},
		{Constant, []int{-1, 4}, []int{-1, -1}},
	}
	for _, tc := range tests {
		t.Run(tc.mode.String(), func(t *testing.T) {
			for k, i := range tc.in {
				assert.Equal(t, tc.want[k], mapIndex(i, 4, tc.mode), "index %d", i)
			}
		})
	}
}

func TestZoomErrors(t *testing.T) {
	_, err := Zoom([]float64{1, 2, 3}, 2, 2, 4, 4, 3, Reflect, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Zoom([]float64{1, 2, 3, 4}, 2, 2, 4, 4, 6, Reflect, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Zoom([]float64{1, 2, 3, 4}, 2, 2, 0, 4, 3, Reflect, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Zoom([]float64{1, 2, 3, 4}, 2, 2, 4, 4, 3, BoundaryMode(42), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBoundaryModeYAML(t *testing.T) {
	var doc struct {
		Mode BoundaryMode `yaml:"mode"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("mode: Mirror"), &doc))
	assert.Equal(t, Mirror, doc.Mode)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "mode: mirror\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("mode: bounce"), &doc))
}
