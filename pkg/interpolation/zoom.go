package interpolation

import (
	"fmt"
	"math"
	"strings"
)

// BoundaryMode selects how samples beyond the edge of the input are extended.
type BoundaryMode int

const (
	// Reflect extends by reflecting about the edge of the last sample (d c b a | a b c d | d c b a)
	Reflect BoundaryMode = iota
	// Constant fills everything beyond the edge with a constant value
	Constant
	// Nearest replicates the edge sample (a a a a | a b c d | d d d d)
	Nearest
	// Mirror reflects about the centre of the last sample (d c b | a b c d | c b a)
	Mirror
	// Wrap repeats the input periodically (a b c d | a b c d | a b c d)
	Wrap
)

var boundaryModeNames = map[BoundaryMode]string{
	Reflect:  "reflect",
	Constant: "constant",
	Nearest:  "nearest",
	Mirror:   "mirror",
	Wrap:     "wrap",
}

func (m BoundaryMode) String() string {
	if name, ok := boundaryModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("BoundaryMode(%d)", int(m))
}

// ParseBoundaryMode converts a mode name to a BoundaryMode.
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	for mode, name := range boundaryModeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown boundary mode %q", ErrInvalidInput, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m BoundaryMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BoundaryMode) UnmarshalText(text []byte) error {
	mode, err := ParseBoundaryMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MaxSplineOrder is the highest supported B-spline order.
const MaxSplineOrder = 5

// Zoom resamples a rows x cols grid to outRows x outCols with B-spline
// interpolation of the given order (0 to 5).
//
// Output sample o along an axis maps to input coordinate o*(n_in-1)/(n_out-1),
// so the corner samples of input and output coincide. For order 2 and above
// the input is first converted to spline coefficients. cval is used by the
// Constant mode only.
func Zoom(data []float64, rows, cols, outRows, outCols, order int, mode BoundaryMode, cval float64) ([]float64, error) {
	if rows < 1 || cols < 1 || outRows < 1 || outCols < 1 {
		return nil, fmt.Errorf("%w: zoom shapes must be positive, got (%d, %d) -> (%d, %d)",
			ErrInvalidInput, rows, cols, outRows, outCols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d samples for shape (%d, %d)", ErrInvalidInput, len(data), rows, cols)
	}
	if order < 0 || order > MaxSplineOrder {
		return nil, fmt.Errorf("%w: spline order must be in [0, %d], got %d", ErrInvalidInput, MaxSplineOrder, order)
	}
	if _, ok := boundaryModeNames[mode]; !ok {
		return nil, fmt.Errorf("%w: unknown boundary mode %d", ErrInvalidInput, int(mode))
	}

	coeffs := make([]float64, len(data))
	copy(coeffs, data)
	if order >= 2 {
		splineFilter(coeffs, rows, cols, order, mode)
	}

	ySpan := newSpan(rows, outRows, order, mode)
	xSpan := newSpan(cols, outCols, order, mode)

	// rows first: (rows, cols) -> (outRows, cols)
	tmp := make([]float64, outRows*cols)
	for o := 0; o < outRows; o++ {
		for x := 0; x < cols; x++ {
			tmp[o*cols+x] = ySpan.eval(o, func(i int) float64 { return coeffs[i*cols+x] }, cval)
		}
	}

	out := make([]float64, outRows*outCols)
	for y := 0; y < outRows; y++ {
		line := tmp[y*cols : (y+1)*cols]
		for o := 0; o < outCols; o++ {
			out[y*outCols+o] = xSpan.eval(o, func(i int) float64 { return line[i] }, cval)
		}
	}
	return out, nil
}

// span holds the precomputed input indices and B-spline weights for every
// output sample along one axis. An index of -1 stands for cval.
type span struct {
	taps    int
	indices []int
	weights []float64
}

func newSpan(nIn, nOut, order int, mode BoundaryMode) *span {
	taps := order + 1
	s := &span{
		taps:    taps,
		indices: make([]int, nOut*taps),
		weights: make([]float64, nOut*taps),
	}

	scale := 0.0
	if nOut > 1 {
		scale = float64(nIn-1) / float64(nOut-1)
	}

	for o := 0; o < nOut; o++ {
		x := float64(o) * scale
		var start int
		if order%2 == 1 {
			start = int(math.Floor(x)) - order/2
		} else {
			start = int(math.Floor(x+0.5)) - order/2
		}
		for t := 0; t < taps; t++ {
			i := start + t
			s.indices[o*taps+t] = mapIndex(i, nIn, mode)
			s.weights[o*taps+t] = bspline(order, x-float64(i))
		}
	}
	return s
}

func (s *span) eval(o int, at func(int) float64, cval float64) float64 {
	sum := 0.0
	for t := 0; t < s.taps; t++ {
		w := s.weights[o*s.taps+t]
		if w == 0 {
			continue
		}
		if i := s.indices[o*s.taps+t]; i >= 0 {
			sum += w * at(i)
		} else {
			sum += w * cval
		}
	}
	return sum
}

// mapIndex folds an index outside [0, n) back into range for the mode, or
// returns -1 when the sample takes the constant value.
func mapIndex(i, n int, mode BoundaryMode) int {
	if i >= 0 && i < n {
		return i
	}
	switch mode {
	case Constant:
		return -1
	case Nearest:
		if i < 0 {
			return 0
		}
		return n - 1
	case Wrap:
		return positiveMod(i, n)
	case Mirror:
		if n == 1 {
			return 0
		}
		period := 2*n - 2
		i = positiveMod(i, period)
		if i >= n {
			i = period - i
		}
		return i
	default: // Reflect
		period := 2 * n
		i = positiveMod(i, period)
		if i >= n {
			i = period - 1 - i
		}
		return i
	}
}

func positiveMod(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// bspline evaluates the centred B-spline basis of the given order at t.
func bspline(order int, t float64) float64 {
	if order == 0 {
		if t >= -0.5 && t < 0.5 {
			return 1
		}
		return 0
	}
	n := float64(order)
	half := (n + 1) / 2
	if t <= -half || t >= half {
		return 0
	}
	return ((half+t)*bspline(order-1, t+0.5) + (half-t)*bspline(order-1, t-0.5)) / n
}

// splinePoles returns the poles of the direct B-spline filter for order >= 2.
func splinePoles(order int) []float64 {
	switch order {
	case 2:
		return []float64{math.Sqrt(8) - 3}
	case 3:
		return []float64{math.Sqrt(3) - 2}
	case 4:
		return []float64{
			math.Sqrt(664-math.Sqrt(438976)) + math.Sqrt(304) - 19,
			math.Sqrt(664+math.Sqrt(438976)) - math.Sqrt(304) - 19,
		}
	case 5:
		return []float64{
			math.Sqrt(135.0/2-math.Sqrt(17745.0/4)) + math.Sqrt(105.0/4) - 13.0/2,
			math.Sqrt(135.0/2+math.Sqrt(17745.0/4)) - math.Sqrt(105.0/4) - 13.0/2,
		}
	default:
		return nil
	}
}

// splineFilter converts a rows x cols grid of samples into interpolating
// B-spline coefficients in place, one axis at a time. The recursive filters
// take the boundary conditions of the extension mode; Constant and Nearest
// use mirror conditions.
func splineFilter(data []float64, rows, cols, order int, mode BoundaryMode) {
	poles := splinePoles(order)

	line := make([]float64, rows)
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			line[y] = data[y*cols+x]
		}
		filterLine(line, poles, mode)
		for y := 0; y < rows; y++ {
			data[y*cols+x] = line[y]
		}
	}

	for y := 0; y < rows; y++ {
		filterLine(data[y*cols:(y+1)*cols], poles, mode)
	}
}

// filterLine applies the causal and anti-causal recursive filters for every pole.
func filterLine(c []float64, poles []float64, mode BoundaryMode) {
	n := len(c)
	if n == 1 {
		return
	}

	gain := 1.0
	for _, z := range poles {
		gain *= (1 - z) * (1 - 1/z)
	}
	for k := range c {
		c[k] *= gain
	}

	for _, z := range poles {
		switch mode {
		case Reflect:
			c[0] = causalInitReflect(c, z)
		case Wrap:
			c[0] = causalInitWrap(c, z)
		default:
			c[0] = causalInitMirror(c, z)
		}

		for k := 1; k < n; k++ {
			c[k] += z * c[k-1]
		}

		switch mode {
		case Reflect:
			c[n-1] *= z / (z - 1)
		case Wrap:
			c[n-1] = anticausalInitWrap(c, z)
		default:
			c[n-1] = (z / (z*z - 1)) * (z*c[n-2] + c[n-1])
		}

		for k := n - 2; k >= 0; k-- {
			c[k] = z * (c[k+1] - c[k])
		}
	}
}

// horizon returns the number of terms after which powers of z fall below
// double precision.
func horizon(z float64) int {
	const tolerance = 1e-15
	return int(math.Ceil(math.Log(tolerance) / math.Log(math.Abs(z))))
}

// causalInitMirror returns the initial causal coefficient for a line extended
// symmetrically about its end samples.
func causalInitMirror(c []float64, z float64) float64 {
	n := len(c)

	if h := horizon(z); h < n {
		zn := z
		sum := c[0]
		for k := 1; k < h; k++ {
			sum += zn * c[k]
			zn *= z
		}
		return sum
	}

	zn := z
	iz := 1 / z
	z2n := math.Pow(z, float64(n-1))
	sum := c[0] + z2n*c[n-1]
	z2n *= z2n * iz
	for k := 1; k < n-1; k++ {
		sum += (zn + z2n) * c[k]
		zn *= z
		z2n *= iz
	}
	return sum / (1 - zn*zn)
}

// causalInitReflect returns the initial causal coefficient for a line
// extended symmetrically about its end edges.
func causalInitReflect(c []float64, z float64) float64 {
	n := len(c)

	if h := horizon(z); h < n {
		zi := 1.0
		sum := 0.0
		for k := 0; k < h; k++ {
			sum += zi * c[k]
			zi *= z
		}
		return c[0] + z*sum
	}

	zn := math.Pow(z, float64(n))
	zi := z
	sum := c[0] + zn*c[n-1]
	for k := 1; k < n; k++ {
		sum += zi * (c[k] + zn*c[n-1-k])
		zi *= z
	}
	return c[0] + z*sum/(1-zn*zn)
}

// causalInitWrap returns the initial causal coefficient for a periodic line.
func causalInitWrap(c []float64, z float64) float64 {
	n := len(c)
	zi := z
	sum := c[0]
	for k := 1; k < n; k++ {
		sum += zi * c[n-k]
		zi *= z
	}
	return sum / (1 - math.Pow(z, float64(n)))
}

// anticausalInitWrap returns the initial anti-causal coefficient for a
// periodic line.
func anticausalInitWrap(c []float64, z float64) float64 {
	n := len(c)
	zi := z
	sum := c[n-1]
	for k := 1; k < n; k++ {
		sum += zi * c[k-1]
		zi *= z
	}
	return -z * sum / (1 - math.Pow(z, float64(n)))
}
