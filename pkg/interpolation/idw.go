package interpolation

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// ErrInvalidInput is wrapped by every argument error returned from this package.
var ErrInvalidInput = errors.New("invalid interpolation input")

// confusionDistance is the distance below which a query is treated as
// coincident with a data point and takes its value unchanged.
const confusionDistance = 1e-12

// Point2D is a sample location in (y, x) order. Index is the position of the
// point in the slice the tree was built from.
type Point2D struct {
	Y, X  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p Point2D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point2D)
	switch d {
	case 0:
		return p.Y - q.Y
	case 1:
		return p.X - q.X
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point2D) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p Point2D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point2D)
	dy := p.Y - q.Y
	dx := p.X - q.X
	return dy*dy + dx*dx
}

// Points2D is a collection of Point2D that satisfies kdtree.Interface
type Points2D []Point2D

func (p Points2D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points2D) Len() int                              { return len(p) }
func (p Points2D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method. The median of medians keeps
// tree construction deterministic.
func (p Points2D) Pivot(d kdtree.Dim) int {
	plane := pointPlane{Points2D: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points2D
type pointPlane struct {
	Points2D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points2D[i].Y < p.Points2D[j].Y
	case 1:
		return p.Points2D[i].X < p.Points2D[j].X
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points2D: p.Points2D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points2D[i], p.Points2D[j] = p.Points2D[j], p.Points2D[i]
}

// ProgressCallback is a function that reports progress during interpolation
type ProgressCallback func(completed, total int, message string)

// neighbor is one search result: the Euclidean distance to the query and the
// index of the data point.
type neighbor struct {
	dist  float64
	index int
}

// ShepardIDW interpolates scattered 2D samples with Shepard's inverse
// distance weighting over the k nearest neighbours of each query.
type ShepardIDW struct {
	points  []Point2D
	values  []float64
	weights []float64

	leafSize int
	tree     *kdtree.Tree

	progressCallback ProgressCallback
}

// NewShepardIDW builds an interpolator over coords (each (y, x)) and values.
// weights, when not nil, scales the contribution of each data point.
// leafSize bounds the point count searched by brute force; larger sets are
// indexed with a KD-tree.
func NewShepardIDW(coords [][2]float64, values, weights []float64, leafSize int) (*ShepardIDW, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: at least one data point is required", ErrInvalidInput)
	}
	if len(values) != len(coords) {
		return nil, fmt.Errorf("%w: %d values for %d coordinates", ErrInvalidInput, len(values), len(coords))
	}
	if weights != nil && len(weights) != len(coords) {
		return nil, fmt.Errorf("%w: %d weights for %d coordinates", ErrInvalidInput, len(weights), len(coords))
	}
	if leafSize < 1 {
		return nil, fmt.Errorf("%w: leaf size must be positive, got %d", ErrInvalidInput, leafSize)
	}

	s := &ShepardIDW{
		points:   make([]Point2D, len(coords)),
		values:   append([]float64(nil), values...),
		leafSize: leafSize,
	}
	if weights != nil {
		s.weights = append([]float64(nil), weights...)
	}
	for i, c := range coords {
		s.points[i] = Point2D{Y: c[0], X: c[1], Index: i}
	}

	if len(s.points) > leafSize {
		// kdtree.New reorders its input
		indexed := make(Points2D, len(s.points))
		copy(indexed, s.points)
		s.tree = kdtree.New(indexed, false)
	}
	return s, nil
}

// Len returns the number of data points.
func (s *ShepardIDW) Len() int { return len(s.points) }

// SetProgressCallback sets a callback invoked as query chunks complete.
func (s *ShepardIDW) SetProgressCallback(callback ProgressCallback) {
	s.progressCallback = callback
}

// Interpolate evaluates the interpolant at every query (each (y, x)).
//
// Each query uses its nNeighbors nearest data points (all points when fewer
// exist). The weight of a neighbour at distance d is w/(d^power + reg), with
// w its data weight. A query closer than 1e-12 to its nearest neighbour, or
// any query when nNeighbors is 1, takes the nearest value unchanged.
// Neighbour search is exact; eps is accepted for callers that tune an
// approximate search and must not be negative.
func (s *ShepardIDW) Interpolate(queries [][2]float64, nNeighbors int, eps, power, reg float64) ([]float64, error) {
	if nNeighbors < 1 {
		return nil, fmt.Errorf("%w: number of neighbors must be positive, got %d", ErrInvalidInput, nNeighbors)
	}
	if eps < 0 {
		return nil, fmt.Errorf("%w: eps must not be negative, got %g", ErrInvalidInput, eps)
	}
	k := nNeighbors
	if k > len(s.points) {
		k = len(s.points)
	}

	out := make([]float64, len(queries))
	if len(queries) == 0 {
		return out, nil
	}

	numCPU := runtime.NumCPU()
	perWorker := (len(queries) + numCPU - 1) / numCPU

	var wg sync.WaitGroup
	var progressMutex sync.Mutex
	completed := 0

	for start := 0; start < len(queries); start += perWorker {
		end := start + perWorker
		if end > len(queries) {
			end = len(queries)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			w := make([]float64, k)
			v := make([]float64, k)
			for i := start; i < end; i++ {
				out[i] = s.interpolateAt(queries[i], k, power, reg, w, v)
			}

			if s.progressCallback != nil {
				progressMutex.Lock()
				completed += end - start
				s.progressCallback(completed, len(queries), "")
				progressMutex.Unlock()
			}
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

func (s *ShepardIDW) interpolateAt(q [2]float64, k int, power, reg float64, w, v []float64) float64 {
	nbrs := s.nearest(Point2D{Y: q[0], X: q[1], Index: -1}, k)

	if k == 1 || nbrs[0].dist < confusionDistance {
		return s.values[nbrs[0].index]
	}

	for j, n := range nbrs {
		wj := 1.0
		if s.weights != nil {
			wj = s.weights[n.index]
		}
		w[j] = wj / (math.Pow(n.dist, power) + reg)
		v[j] = s.values[n.index]
	}
	return floats.Dot(w, v) / floats.Sum(w)
}

// nearest returns the k nearest data points to q ordered by distance, with
// ties broken by index.
func (s *ShepardIDW) nearest(q Point2D, k int) []neighbor {
	var nbrs []neighbor

	if s.tree == nil {
		nbrs = make([]neighbor, len(s.points))
		for i, p := range s.points {
			nbrs[i] = neighbor{dist: math.Sqrt(q.Distance(p)), index: p.Index}
		}
	} else {
		nbrs = s.treeNearest(q, k)
	}

	sort.Slice(nbrs, func(i, j int) bool {
		if nbrs[i].dist != nbrs[j].dist {
			return nbrs[i].dist < nbrs[j].dist
		}
		return nbrs[i].index < nbrs[j].index
	})
	if len(nbrs) > k {
		nbrs = nbrs[:k]
	}
	return nbrs
}

// treeNearest searches the tree for every point at most as far as the k-th
// nearest one, so points tied at that distance are all returned and the
// caller's index ordering decides between them.
func (s *ShepardIDW) treeNearest(q Point2D, k int) []neighbor {
	keeper := kdtree.NewNKeeper(k)
	s.tree.NearestSet(keeper, q)
	radius := 0.0
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable != nil && item.Dist > radius {
			radius = item.Dist
		}
	}

	within := &radiusKeeper{radius: kdtree.ComparableDist{Comparable: q, Dist: radius}}
	s.tree.NearestSet(within, q)

	nbrs := make([]neighbor, 0, len(within.Heap))
	for _, item := range within.Heap {
		nbrs = append(nbrs, neighbor{
			dist:  math.Sqrt(item.Dist),
			index: item.Comparable.(Point2D).Index,
		})
	}
	return nbrs
}

// radiusKeeper is a kdtree.Keeper that retains every point within a fixed
// squared distance. Its maximum carries a non-nil Comparable so NearestSet
// never mistakes it for a sentinel.
type radiusKeeper struct {
	kdtree.Heap
	radius kdtree.ComparableDist
}

func (k *radiusKeeper) Keep(c kdtree.ComparableDist) {
	if c.Dist <= k.radius.Dist {
		k.Heap = append(k.Heap, c)
	}
}

func (k *radiusKeeper) Max() kdtree.ComparableDist { return k.radius }
