package background

import (
	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/pkg/stats"
)

// window returns the clamped [lo, hi) range of a filter of length n centred
// on i along an axis of length size. Even lengths extend one further
// towards lower indices.
func window(i, n, size int) (int, int) {
	lo := i - n/2
	hi := lo + n
	if lo < 0 {
		lo = 0
	}
	if hi > size {
		hi = size
	}
	return lo, hi
}

// filterFull median filters every cell of mesh. Neighbours beyond the grid
// count as NaN and NaN values are ignored, so border cells take the median of
// their in-bounds neighbours and only an all-NaN window yields NaN.
func filterFull(mesh *models.MaskedArray, size models.Size2D) *models.MaskedArray {
	out := models.NewMaskedArray(mesh.Rows, mesh.Cols)
	buf := make([]float64, 0, size.Pixels())
	for i := 0; i < mesh.Rows; i++ {
		for j := 0; j < mesh.Cols; j++ {
			buf = gatherWindow(buf[:0], mesh, i, j, size)
			out.Set(i, j, stats.NaNMedian(buf))
		}
	}
	return out
}

// selectCells returns the flat indices of the cells whose value exceeds
// threshold. NaN cells are never selected.
func selectCells(mesh *models.MaskedArray, threshold float64) []int {
	var cells []int
	for k, v := range mesh.Data {
		if v > threshold {
			cells = append(cells, k)
		}
	}
	return cells
}

// filterSelective replaces only the given cells with the median of their
// clamped in-bounds window read from the unfiltered mesh. NaN values inside
// a window propagate to the result.
func filterSelective(mesh *models.MaskedArray, cells []int, size models.Size2D) *models.MaskedArray {
	out := mesh.Clone()
	buf := make([]float64, 0, size.Pixels())
	for _, k := range cells {
		i, j := k/mesh.Cols, k%mesh.Cols
		buf = gatherWindow(buf[:0], mesh, i, j, size)
		out.Data[k] = stats.Median(buf)
	}
	return out
}

func gatherWindow(buf []float64, mesh *models.MaskedArray, i, j int, size models.Size2D) []float64 {
	y0, y1 := window(i, size.Y, mesh.Rows)
	x0, x1 := window(j, size.X, mesh.Cols)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			buf = append(buf, mesh.At(y, x))
		}
	}
	return buf
}

// filterMeshes smooths the background and RMS meshes together. In selective
// mode the cells are chosen on the background mesh before either grid is
// touched, so both grids are filtered at the same locations.
func filterMeshes(bkg, rms *models.MaskedArray, size models.Size2D, threshold *float64) (*models.MaskedArray, *models.MaskedArray, int) {
	if size.IsUnit() {
		return bkg, rms, 0
	}
	if threshold == nil {
		return filterFull(bkg, size), filterFull(rms, size), bkg.Rows * bkg.Cols
	}
	cells := selectCells(bkg, *threshold)
	return filterSelective(bkg, cells, size), filterSelective(rms, cells, size), len(cells)
}
