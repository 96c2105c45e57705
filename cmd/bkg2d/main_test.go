package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouch/photutils/internal/models"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want models.Size2D
	}{
		{"64", models.Square(64)},
		{"50x40", models.Size2D{Y: 50, X: 40}},
		{"3X5", models.Size2D{Y: 3, X: 5}},
	}
	for _, tc := range tests {
		got, err := parseSize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "x", "1x2x3", "ten"} {
		_, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}
