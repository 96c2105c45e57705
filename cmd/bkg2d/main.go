package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HSouch/photutils/internal/models"
	"github.com/HSouch/photutils/internal/monitoring"
	"github.com/HSouch/photutils/pkg/background"
	"github.com/HSouch/photutils/pkg/config"
	"github.com/HSouch/photutils/pkg/pipeline"
)

// parseSize accepts "N" or "YxX".
func parseSize(s string) (models.Size2D, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) > 2 {
		return models.Size2D{}, fmt.Errorf("invalid size %q, want N or YxX", s)
	}
	ns := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.Size2D{}, fmt.Errorf("invalid size %q, want N or YxX", s)
		}
		ns[i] = n
	}
	if len(ns) == 1 {
		return models.Square(ns[0]), nil
	}
	return models.Size2D{Y: ns[0], X: ns[1]}, nil
}

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "Input image (JPEG, PNG or TIFF)")
	maskFile := flag.String("mask", "", "Optional mask image; non-zero pixels are masked")
	configPath := flag.String("config", "bkg2d.yaml", "Configuration file")
	outputDir := flag.String("output", "bkg2d_output", "Directory for the background products")
	format := flag.String("format", ".tif", "Image format of the products (.tif or .png)")
	boxSize := flag.String("box", "", "Tile size, N or YxX (overrides the config)")
	filterSize := flag.String("filter", "", "Median filter size, N or YxX (overrides the config)")
	edgeMethod := flag.String("edge", "", "Edge method, pad or crop (overrides the config)")
	interpolator := flag.String("interpolator", "", "Interpolator, zoom or idw (overrides the config)")
	zoomMode := flag.String("zoom-mode", "", "Zoom boundary mode, reflect, constant, nearest, mirror or wrap (overrides the config)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save the low-resolution meshes")
	writeConfig := flag.Bool("write-default-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *boxSize != "" {
		if cfg.Background.BoxSize, err = parseSize(*boxSize); err != nil {
			log.Fatalf("Invalid -box: %v", err)
		}
	}
	if *filterSize != "" {
		if cfg.Background.FilterSize, err = parseSize(*filterSize); err != nil {
			log.Fatalf("Invalid -filter: %v", err)
		}
	}
	if *edgeMethod != "" {
		cfg.Background.EdgeMethod = background.EdgeMethod(*edgeMethod)
	}
	if *interpolator != "" {
		if err := cfg.SetInterpolator(*interpolator); err != nil {
			log.Fatalf("Invalid -interpolator: %v", err)
		}
	}
	if *zoomMode != "" {
		if err := cfg.SetZoomMode(*zoomMode); err != nil {
			log.Fatalf("Invalid -zoom-mode: %v", err)
		}
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	monitoring.Verbose(cfg.Output.Verbose)

	runner := pipeline.NewRunner(&pipeline.Params{
		InputFile: *input,
		MaskFile:  *maskFile,
		OutputDir: *outputDir,
		Format:    *format,
		Config:    cfg,
	})

	fmt.Printf("Estimating 2D background of %s (run %s)...\n", *input, runner.RunID())
	startTime := time.Now()
	if err := runner.Process(); err != nil {
		log.Fatalf("Background estimation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	bkg := runner.Background()
	box := bkg.BoxSize()
	res := runner.Residuals()
	fmt.Printf("\nBackground estimated in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("- Meshes: %d x %d of %d x %d pixels, %d kept\n",
		bkg.NYBoxes(), bkg.NXBoxes(), box.Y, box.X, len(bkg.MeshIndex()))
	fmt.Printf("- Background median: %.4f\n", bkg.BackgroundMedian())
	fmt.Printf("- Background RMS median: %.4f\n", bkg.BackgroundRMSMedian())
	fmt.Printf("- Residual mean / std / median: %.4f / %.4f / %.4f over %d pixels\n",
		res.Mean, res.Std, res.Median, res.Pixels)
	fmt.Printf("- Normalised residual mean / std / median: %.4f / %.4f / %.4f\n",
		res.NormMean, res.NormStd, res.NormMedian)

	fmt.Println("\nProducts:")
	for _, path := range runner.Outputs() {
		fmt.Printf("  %s\n", path)
	}
	if cfg.Output.SaveIntermediaryResults {
		fmt.Printf("\nIntermediary meshes saved to: %s\n", runner.IntermediaryDir())
	}
}
