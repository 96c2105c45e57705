// Package config provides configuration loading and management for bkg2d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/pkg/background"
	"github.com/HSouch/photutils/pkg/interpolation"
	"github.com/HSouch/photutils/pkg/stats"
)

// Interpolator kinds accepted in the interpolator section.
const (
	InterpolatorZoom = "zoom"
	InterpolatorIDW  = "idw"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Background tiling, exclusion and filtering parameters
	Background struct {
		// BoxSize is the tile size; a scalar or a [y, x] list
		BoxSize models.Size2D `yaml:"boxSize"`

		ExcludeMeshMethod     background.ExcludeMethod `yaml:"excludeMeshMethod"`
		ExcludeMeshPercentile float64                  `yaml:"excludeMeshPercentile"`

		// FilterSize is the median filter window over the meshes
		FilterSize models.Size2D `yaml:"filterSize"`

		// FilterThreshold restricts filtering to cells above it when set
		FilterThreshold *float64 `yaml:"filterThreshold,omitempty"`

		EdgeMethod background.EdgeMethod `yaml:"edgeMethod"`
	} `yaml:"background"`

	// Sigma clipping applied to every tile
	SigmaClip struct {
		Enabled    bool    `yaml:"enabled"`
		Sigma      float64 `yaml:"sigma"`
		SigmaLower float64 `yaml:"sigmaLower"`
		SigmaUpper float64 `yaml:"sigmaUpper"`
		MaxIters   int     `yaml:"maxIters"`
	} `yaml:"sigmaClip"`

	// Estimator names, see stats.BackgroundEstimatorNames and
	// stats.RMSEstimatorNames
	Estimators struct {
		Background string `yaml:"background"`
		RMS        string `yaml:"rms"`
	} `yaml:"estimators"`

	// Interpolator expanding the meshes to full resolution
	Interpolator struct {
		// Kind is "zoom" or "idw"
		Kind string                       `yaml:"kind"`
		Zoom background.ZoomInterpolator `yaml:"zoom"`
		IDW  background.IDWInterpolator  `yaml:"idw"`
	} `yaml:"interpolator"`

	// MeshInterpolation fills excluded mesh cells
	MeshInterpolation background.MeshInterpolation `yaml:"meshInterpolation"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save the meshes
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Background.BoxSize = models.Square(64)
	cfg.Background.ExcludeMeshMethod = background.ExcludeThreshold
	cfg.Background.ExcludeMeshPercentile = 10
	cfg.Background.FilterSize = models.Square(3)
	cfg.Background.EdgeMethod = background.EdgePad

	cfg.SigmaClip.Enabled = true
	cfg.SigmaClip.Sigma = 3
	cfg.SigmaClip.MaxIters = 10

	cfg.Estimators.Background = "sextractor"
	cfg.Estimators.RMS = "std"

	cfg.Interpolator.Kind = InterpolatorZoom
	cfg.Interpolator.Zoom = *background.DefaultZoomInterpolator()
	cfg.Interpolator.IDW = *background.DefaultIDWInterpolator()

	cfg.MeshInterpolation = background.DefaultMeshInterpolation()

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig, so unset fields keep
// their defaults. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating parent directories.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config for %s: %w", configPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating directory for config %s: %w", configPath, err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config %s: %w", configPath, err)
	}
	return nil
}

// CreateDefaultConfigFile writes DefaultConfig to configPath. An existing
// file is left untouched and reported as an error.
func CreateDefaultConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config %s: %w", configPath, fs.ErrExist)
	}
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate reports whether the configuration describes a usable background
// estimate.
func (c *Config) Validate() error {
	_, err := c.BackgroundOptions()
	return err
}

// BackgroundOptions converts the configuration into background.Options.
// Errors wrap background.ErrConfiguration.
func (c *Config) BackgroundOptions() (background.Options, error) {
	opts := background.DefaultOptions(c.Background.BoxSize)
	opts.ExcludeMeshMethod = c.Background.ExcludeMeshMethod
	opts.ExcludeMeshPercentile = c.Background.ExcludeMeshPercentile
	opts.FilterSize = c.Background.FilterSize
	if c.Background.FilterThreshold != nil {
		t := *c.Background.FilterThreshold
		opts.FilterThreshold = &t
	}
	opts.EdgeMethod = c.Background.EdgeMethod
	opts.MeshInterpolation = c.MeshInterpolation

	opts.SigmaClip = nil
	if c.SigmaClip.Enabled {
		opts.SigmaClip = &stats.SigmaClip{
			Sigma:      c.SigmaClip.Sigma,
			SigmaLower: c.SigmaClip.SigmaLower,
			SigmaUpper: c.SigmaClip.SigmaUpper,
			MaxIters:   c.SigmaClip.MaxIters,
		}
	}

	var err error
	if opts.BkgEstimator, err = stats.BackgroundEstimatorByName(c.Estimators.Background); err != nil {
		return background.Options{}, fmt.Errorf("%w: %v", background.ErrConfiguration, err)
	}
	if opts.RMSEstimator, err = stats.RMSEstimatorByName(c.Estimators.RMS); err != nil {
		return background.Options{}, fmt.Errorf("%w: %v", background.ErrConfiguration, err)
	}

	switch c.Interpolator.Kind {
	case InterpolatorZoom, "":
		zoom := c.Interpolator.Zoom
		opts.Interpolator = &zoom
	case InterpolatorIDW:
		idw := c.Interpolator.IDW
		opts.Interpolator = &idw
	default:
		return background.Options{}, fmt.Errorf("%w: interpolator kind must be %q or %q, got %q",
			background.ErrConfiguration, InterpolatorZoom, InterpolatorIDW, c.Interpolator.Kind)
	}

	if err := opts.Validate(); err != nil {
		return background.Options{}, err
	}
	return opts, nil
}

// SetInterpolator selects the interpolator kind, validating the name.
func (c *Config) SetInterpolator(kind string) error {
	switch kind {
	case InterpolatorZoom, InterpolatorIDW:
		c.Interpolator.Kind = kind
		return nil
	default:
		return fmt.Errorf("%w: interpolator kind must be %q or %q, got %q",
			background.ErrConfiguration, InterpolatorZoom, InterpolatorIDW, kind)
	}
}

// SetZoomMode parses name into the zoom interpolator boundary mode.
func (c *Config) SetZoomMode(name string) error {
	mode, err := interpolation.ParseBoundaryMode(name)
	if err != nil {
		return fmt.Errorf("%w: %v", background.ErrConfiguration, err)
	}
	c.Interpolator.Zoom.Mode = mode
	return nil
}
