// Package pipeline runs a complete background estimate on an image file:
// loading, mesh estimation, full resolution interpolation, product output
// and residual statistics.
package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/stat"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/internal/monitoring"
	"github.com/HSouch/photutils/pkg/background"
	"github.com/HSouch/photutils/pkg/config"
	"github.com/HSouch/photutils/pkg/imageio"
	"github.com/HSouch/photutils/pkg/stats"
)

// Params holds the inputs and outputs of one run.
type Params struct {
	// InputFile is the image to process (JPEG, PNG or TIFF).
	InputFile string

	// MaskFile is an optional mask image; non-zero pixels are masked.
	MaskFile string

	// OutputDir receives the background products.
	OutputDir string

	// Format is the extension of the image products, ".tif" by default.
	// Raw ".bin" copies are always written alongside.
	Format string

	// Config holds the estimation and output settings. DefaultConfig is
	// used when nil.
	Config *config.Config
}

// Residuals summarises the background subtracted image and its RMS
// normalised version over the unmasked pixels.
type Residuals struct {
	Mean, Std, Median float64

	// Normalised statistics use pixels with a finite, positive RMS only.
	NormMean, NormStd, NormMedian float64

	// Pixels is the number of pixels in the statistics.
	Pixels int
}

// Runner executes the background pipeline. It is not safe for concurrent use.
type Runner struct {
	params *Params
	cfg    *config.Config
	runID  string

	data *models.Image
	mask *models.Mask

	bkg       *background.Background2D
	residuals Residuals
	outputs   []string
}

// NewRunner creates a runner with a fresh run id.
func NewRunner(params *Params) *Runner {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Runner{
		params: params,
		cfg:    cfg,
		runID:  uuid.NewString(),
	}
}

// RunID identifies the run; intermediary results are written below it.
func (r *Runner) RunID() string { return r.runID }

// Background returns the estimator after a successful Process.
func (r *Runner) Background() *background.Background2D { return r.bkg }

// Residuals returns the residual statistics after a successful Process.
func (r *Runner) Residuals() Residuals { return r.residuals }

// Outputs lists the files written by Process.
func (r *Runner) Outputs() []string { return append([]string(nil), r.outputs...) }

// IntermediaryDir returns the directory for this run's intermediary results.
func (r *Runner) IntermediaryDir() string {
	dir := r.cfg.Output.IntermediaryDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.params.OutputDir, dir)
	}
	return filepath.Join(dir, r.runID)
}

// Process runs the complete pipeline
func (r *Runner) Process() error {
	opts, err := r.cfg.BackgroundOptions()
	if err != nil {
		return err
	}
	if r.params.OutputDir == "" {
		return fmt.Errorf("%w: an output directory is required", background.ErrConfiguration)
	}
	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	monitoring.Logf("Step 1: Loading input image %s...", r.params.InputFile)
	if err := r.load(); err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}

	monitoring.Logf("Step 2: Estimating background meshes...")
	r.bkg, err = background.New(r.data, r.mask, opts)
	if err != nil {
		return fmt.Errorf("failed to estimate background: %w", err)
	}

	if r.cfg.Output.SaveIntermediaryResults {
		monitoring.Logf("Saving intermediary meshes to %s...", r.IntermediaryDir())
		for name, mesh := range r.meshes() {
			if err := r.saveIntermediaryResult(name, mesh); err != nil {
				monitoring.Logf("Warning: Failed to save %s: %v", name, err)
			}
		}
		if err := r.saveTileGeometry(); err != nil {
			monitoring.Logf("Warning: Failed to save tile geometry: %v", err)
		}
	}

	monitoring.Logf("Step 3: Interpolating background and RMS...")
	bkgImg, rmsImg, err := r.interpolate()
	if err != nil {
		return fmt.Errorf("failed to interpolate meshes: %w", err)
	}

	monitoring.Logf("Step 4: Writing products to %s...", r.params.OutputDir)
	sub, err := r.bkg.BackgroundSubtracted()
	if err != nil {
		return fmt.Errorf("failed to subtract background: %w", err)
	}
	products := []struct {
		name string
		img  *models.Image
	}{
		{"background", bkgImg},
		{"background_rms", rmsImg},
		{"background_subtracted", sub},
	}
	for _, p := range products {
		if err := r.writeProduct(p.name, p.img); err != nil {
			return err
		}
	}

	monitoring.Logf("Step 5: Calculating residual statistics...")
	r.residuals = computeResiduals(sub, rmsImg, r.mask)
	monitoring.Logf("Residuals: mean %.4g, std %.4g, median %.4g over %d pixels (normalised mean %.4g, std %.4g)",
		r.residuals.Mean, r.residuals.Std, r.residuals.Median, r.residuals.Pixels,
		r.residuals.NormMean, r.residuals.NormStd)

	return nil
}

func (r *Runner) load() error {
	var err error
	r.data, err = imageio.Load(r.params.InputFile)
	if err != nil {
		return err
	}
	r.mask = nil
	if r.params.MaskFile != "" {
		r.mask, err = imageio.LoadMask(r.params.MaskFile)
		if err != nil {
			return err
		}
	}
	return nil
}

// interpolate computes the background and RMS images in parallel.
func (r *Runner) interpolate() (*models.Image, *models.Image, error) {
	var (
		wg             sync.WaitGroup
		bkgImg, rmsImg *models.Image
		bkgErr, rmsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		bkgImg, bkgErr = r.bkg.Background()
	}()
	go func() {
		defer wg.Done()
		rmsImg, rmsErr = r.bkg.BackgroundRMS()
	}()
	wg.Wait()

	if bkgErr != nil {
		return nil, nil, bkgErr
	}
	if rmsErr != nil {
		return nil, nil, rmsErr
	}
	return bkgImg, rmsImg, nil
}

// meshes returns the low-resolution grids worth inspecting, keyed by stage.
// Masked cells are NaN.
func (r *Runner) meshes() map[string]*models.MaskedArray {
	return map[string]*models.MaskedArray{
		"01_background_mesh_ma":     r.bkg.BackgroundMeshMA(),
		"01_background_rms_mesh_ma": r.bkg.BackgroundRMSMeshMA(),
		"02_mesh_nmasked":           r.bkg.MeshNMasked(),
		"03_background_mesh":        r.bkg.BackgroundMesh(),
		"03_background_rms_mesh":    r.bkg.BackgroundRMSMesh(),
	}
}

// saveIntermediaryResult writes a mesh both as a scaled image and as raw
// float64 samples.
func (r *Runner) saveIntermediaryResult(stage string, mesh *models.MaskedArray) error {
	img, err := models.NewImageFrom(mesh.Filled(math.NaN()), mesh.Rows, mesh.Cols)
	if err != nil {
		return err
	}
	base := filepath.Join(r.IntermediaryDir(), stage)
	if err := imageio.Save(base+r.format(), img); err != nil {
		return err
	}
	return imageio.SaveRaw(base+".bin", img)
}

// tileGeometryStage names the GeoJSON file of kept tile outlines.
const tileGeometryStage = "02_mesh_geometry.geojson"

// tileGeometry describes every kept tile as a polygon in (x, y) pixel
// coordinates carrying its mesh statistics before filtering.
func tileGeometry(bkg *background.Background2D) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	bounds := bkg.MeshBounds()
	centres := bkg.TileCenters()
	nmasked := bkg.MeshNMasked()
	bkgMA := bkg.BackgroundMeshMA()
	rmsMA := bkg.BackgroundRMSMeshMA()

	for k, i := range bkg.MeshIndex() {
		f := geojson.NewFeature(bounds[k].ToPolygon())
		f.Properties["tile"] = i
		f.Properties["row"] = i / bkg.NXBoxes()
		f.Properties["col"] = i % bkg.NXBoxes()
		f.Properties["center"] = []float64{centres[k].X(), centres[k].Y()}
		f.Properties["nmasked"] = int(nmasked.Data[i])
		// JSON has no NaN
		if v := bkgMA.Data[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			f.Properties["background"] = v
		}
		if v := rmsMA.Data[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			f.Properties["rms"] = v
		}
		fc.Append(f)
	}
	return fc
}

func (r *Runner) saveTileGeometry() error {
	data, err := tileGeometry(r.bkg).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode tile geometry: %w", err)
	}
	dir := r.IntermediaryDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, tileGeometryStage), data, 0644)
}

func (r *Runner) writeProduct(name string, img *models.Image) error {
	base := filepath.Join(r.params.OutputDir, name)
	for _, path := range []string{base + r.format(), base + ".bin"} {
		if err := imageio.Save(path, img); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		r.outputs = append(r.outputs, path)
	}
	return nil
}

func (r *Runner) format() string {
	if r.params.Format == "" {
		return ".tif"
	}
	return r.params.Format
}

func computeResiduals(sub, rms *models.Image, mask *models.Mask) Residuals {
	values := make([]float64, 0, len(sub.Data))
	normalised := make([]float64, 0, len(sub.Data))
	for i, v := range sub.Data {
		if (mask != nil && mask.Data[i]) || math.IsNaN(v) {
			continue
		}
		values = append(values, v)
		if s := rms.Data[i]; s > 0 && !math.IsInf(s, 0) {
			normalised = append(normalised, v/s)
		}
	}

	res := Residuals{
		Mean: math.NaN(), Std: math.NaN(), Median: math.NaN(),
		NormMean: math.NaN(), NormStd: math.NaN(), NormMedian: math.NaN(),
		Pixels: len(values),
	}
	if len(values) > 0 {
		res.Mean, res.Std = stat.PopMeanStdDev(values, nil)
		res.Median = stats.Median(values)
	}
	if len(normalised) > 0 {
		res.NormMean, res.NormStd = stat.PopMeanStdDev(normalised, nil)
		res.NormMedian = stats.Median(normalised)
	}
	return res
}
