// Package imageio reads images and masks into the float representation used
// by the background estimator and writes results back to disk.
package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/floats"

	"github.com/HSouch/photutils/internal/models"
)

// ErrUnsupportedFormat is returned when a file extension has no encoder.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Load decodes a JPEG, PNG or TIFF file into an image of 16-bit grey levels
// (0 to 65535).
func Load(path string) (*models.Image, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// LoadMask decodes an image file into a mask. Every non-zero pixel is
// masked.
func LoadMask(path string) (*models.Mask, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	grey := FromImage(img)
	mask := models.NewMask(grey.Height, grey.Width)
	for i, v := range grey.Data {
		mask.Data[i] = v != 0
	}
	return mask, nil
}

func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// FromImage converts img to 16-bit grey levels.
func FromImage(img image.Image) *models.Image {
	bounds := img.Bounds()
	out := models.NewImage(bounds.Dy(), bounds.Dx())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			out.Set(y, x, float64(g.Y))
		}
	}
	return out
}

// ToGray16 scales img linearly so that its finite minimum maps to 0 and its
// finite maximum to 65535. Flat images map to 0 and NaN pixels to 0. The
// scaling range is returned.
func ToGray16(img *models.Image) (*image.Gray16, float64, float64) {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))

	finite := make([]float64, 0, len(img.Data))
	for _, v := range img.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return out, 0, 0
	}
	lo, hi := floats.Min(finite), floats.Max(finite)
	if hi == lo {
		return out, lo, hi
	}

	scale := 65535 / (hi - lo)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := img.At(y, x)
			if math.IsNaN(v) {
				continue
			}
			v = math.Max(lo, math.Min(hi, v))
			out.SetGray16(x, y, color.Gray16{Y: uint16(math.Round((v - lo) * scale))})
		}
	}
	return out, lo, hi
}

// Save writes img to path. The extension selects the format: .tif and .tiff
// write a deflate compressed 16-bit TIFF, .png a 16-bit PNG, both linearly
// scaled by ToGray16, and .bin the raw float64 samples.
func Save(path string, img *models.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".bin" {
		return SaveRaw(path, img)
	}
	if ext != ".tif" && ext != ".tiff" && ext != ".png" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	grey, _, _ := ToGray16(img)
	if ext == ".png" {
		err = png.Encode(file, grey)
	} else {
		err = tiff.Encode(file, grey, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}

// SaveRaw writes the samples of img as little-endian float64 in row-major
// order.
func SaveRaw(path string, img *models.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create binary file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, img.Data); err != nil {
		return fmt.Errorf("failed to write binary data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write binary data: %w", err)
	}
	return file.Close()
}

// LoadRaw reads a file written by SaveRaw.
func LoadRaw(path string, height, width int) (*models.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary file: %w", err)
	}
	defer file.Close()

	img := models.NewImage(height, width)
	if err := binary.Read(bufio.NewReader(file), binary.LittleEndian, img.Data); err != nil {
		return nil, fmt.Errorf("failed to read binary data: %w", err)
	}
	return img, nil
}
