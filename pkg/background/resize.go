package background

import (
	"fmt"

	"github.com/HSouch/photutils/internal/models"
)

// padValue fills padded pixels. They are always masked, the value only has
// to stand out if a caller ignores the mask.
const padValue = 1e10

// resizeImage brings data to an integer number of box-sized tiles along both
// axes and returns the masked result together with the tile counts.
// Pixels flagged by mask are masked in the result.
func resizeImage(data *models.Image, mask *models.Mask, box models.Size2D, edge EdgeMethod) (*models.MaskedArray, int, int, error) {
	nyBoxes, yExtra := data.Height/box.Y, data.Height%box.Y
	nxBoxes, xExtra := data.Width/box.X, data.Width%box.X

	if yExtra == 0 && xExtra == 0 {
		return maskedCopy(data, mask, data.Height, data.Width), nyBoxes, nxBoxes, nil
	}

	switch edge {
	case EdgePad:
		if yExtra > 0 {
			nyBoxes++
		}
		if xExtra > 0 {
			nxBoxes++
		}
		return maskedCopy(data, mask, nyBoxes*box.Y, nxBoxes*box.X), nyBoxes, nxBoxes, nil
	case EdgeCrop:
		return maskedCopy(data, mask, nyBoxes*box.Y, nxBoxes*box.X), nyBoxes, nxBoxes, nil
	default:
		return nil, 0, 0, fmt.Errorf("%w: edge method must be %q or %q, got %q",
			ErrConfiguration, EdgePad, EdgeCrop, edge)
	}
}

// maskedCopy copies the top-left rows x cols window of data into a masked
// array. Pixels beyond the data are set to padValue and masked.
func maskedCopy(data *models.Image, mask *models.Mask, rows, cols int) *models.MaskedArray {
	out := models.NewMaskedArray(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			k := y*cols + x
			if y >= data.Height || x >= data.Width {
				out.Data[k] = padValue
				out.Mask[k] = true
				continue
			}
			out.Data[k] = data.At(y, x)
			if mask != nil {
				out.Mask[k] = mask.At(y, x)
			}
		}
	}
	return out
}
