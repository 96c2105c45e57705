package background

import "errors"

var (
	// ErrConfiguration reports an invalid option value.
	ErrConfiguration = errors.New("invalid background configuration")

	// ErrShapeMismatch reports a mask whose shape differs from the data.
	ErrShapeMismatch = errors.New("mask and data must have the same shape")

	// ErrInsufficientData reports that mesh exclusion left no tile to
	// estimate the background from.
	ErrInsufficientData = errors.New("no valid meshes")
)
