package background

import (
	"fmt"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/pkg/interpolation"
)

// partitionMeshes reshapes a resized image into one row per tile. Tiles are
// enumerated in row-major (y, x) order and the pixels of a tile are stored
// row by row.
func partitionMeshes(resized *models.MaskedArray, nyBoxes, nxBoxes int, box models.Size2D) *models.MaskedArray {
	meshes := models.NewMaskedArray(nyBoxes*nxBoxes, box.Pixels())
	for by := 0; by < nyBoxes; by++ {
		for bx := 0; bx < nxBoxes; bx++ {
			values, mask := meshes.Row(by*nxBoxes + bx)
			k := 0
			for y := by * box.Y; y < (by+1)*box.Y; y++ {
				for x := bx * box.X; x < (bx+1)*box.X; x++ {
					values[k] = resized.At(y, x)
					mask[k] = resized.IsMasked(y, x)
					k++
				}
			}
		}
	}
	return meshes
}

// selectMeshes returns the increasing indices of the tiles kept by the
// exclusion policy.
func selectMeshes(meshes *models.MaskedArray, method ExcludeMethod, percentile float64) ([]int, error) {
	npix := meshes.Cols
	nmasked := meshes.CountMasked()

	var keep func(n int) bool
	switch method {
	case ExcludeAny:
		keep = func(n int) bool { return n == 0 }
	case ExcludeAll:
		keep = func(n int) bool { return npix-n != 0 }
	case ExcludeThreshold:
		threshold := percentile / 100 * float64(npix)
		keep = func(n int) bool { return float64(npix-n) >= threshold }
	default:
		return nil, fmt.Errorf("%w: exclude mesh method must be %q, %q or %q, got %q",
			ErrConfiguration, ExcludeAny, ExcludeAll, ExcludeThreshold, method)
	}

	idx := make([]int, 0, len(nmasked))
	for i, n := range nmasked {
		if keep(n) {
			idx = append(idx, i)
		}
	}
	if len(idx) > 0 {
		return idx, nil
	}

	switch method {
	case ExcludeAny:
		return nil, fmt.Errorf("%w: all meshes contain at least one masked pixel "+
			"(exclude mesh method %q)", ErrInsufficientData, method)
	case ExcludeAll:
		return nil, fmt.Errorf("%w: all meshes are completely masked (exclude mesh method %q)",
			ErrInsufficientData, method)
	default:
		return nil, fmt.Errorf("%w: no mesh has at least %g%% (%g of %d) unmasked pixels "+
			"(exclude mesh method %q)", ErrInsufficientData, percentile,
			percentile/100*float64(npix), npix, method)
	}
}

// makeMesh2D scatters one value per kept tile onto the (nyBoxes, nxBoxes)
// grid. Cells of excluded tiles are zero and masked.
func makeMesh2D(values []float64, meshIdx []int, nyBoxes, nxBoxes int) *models.MaskedArray {
	grid := models.NewFullyMaskedArray(nyBoxes, nxBoxes)
	for k, i := range meshIdx {
		grid.Data[i] = values[k]
		grid.Mask[i] = false
	}
	return grid
}

// interpolateMeshes fills the cells of excluded tiles by inverse distance
// weighting over the grid coordinates of the kept tiles. Kept cells keep
// their value since they coincide with a data point.
func interpolateMeshes(values []float64, meshIdx []int, nyBoxes, nxBoxes int, p MeshInterpolation) (*models.MaskedArray, error) {
	coords := make([][2]float64, len(meshIdx))
	for k, i := range meshIdx {
		coords[k] = [2]float64{float64(i / nxBoxes), float64(i % nxBoxes)}
	}

	idw, err := interpolation.NewShepardIDW(coords, values, nil, defaultLeafSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	lattice := make([][2]float64, 0, nyBoxes*nxBoxes)
	for y := 0; y < nyBoxes; y++ {
		for x := 0; x < nxBoxes; x++ {
			lattice = append(lattice, [2]float64{float64(y), float64(x)})
		}
	}

	filled, err := idw.Interpolate(lattice, p.NNeighbors, p.Eps, p.Power, p.Reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	grid := models.NewMaskedArray(nyBoxes, nxBoxes)
	copy(grid.Data, filled)
	return grid, nil
}

// reconstructMesh turns the per-tile values into a full (nyBoxes, nxBoxes)
// grid, scattering directly when every tile was kept.
func reconstructMesh(values []float64, meshIdx []int, nyBoxes, nxBoxes int, p MeshInterpolation) (*models.MaskedArray, error) {
	if len(meshIdx) == nyBoxes*nxBoxes {
		return makeMesh2D(values, meshIdx, nyBoxes, nxBoxes), nil
	}
	return interpolateMeshes(values, meshIdx, nyBoxes, nxBoxes, p)
}
