// Command keypoints predicts facial keypoints for image files and prints one
// JSON object per file.
//
//	keypoints [-seed n] [-backend native|onnx] [-compact] [-plots dir] face1.jpg face2.png ...
//	keypoints -trace
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"

	"github.com/Brownie44l1/fkp-api/internal/config"
	"github.com/Brownie44l1/fkp-api/internal/imaging"
	"github.com/Brownie44l1/fkp-api/internal/model"
	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/render"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

type result struct {
	File      string        `json:"file"`
	ID        string        `json:"id"`
	Backend   string        `json:"backend"`
	ImageSize int           `json:"image_size"`
	Keypoints []model.Point `json:"keypoints"`
	Plot      string        `json:"plot,omitempty"`
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit.
func run() int {
	cfg := config.Defaults()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Printf("Invalid environment: %v", err)
		return 2
	}

	seed := flag.Uint64("seed", cfg.GetSeed(), "parameter initialisation seed")
	backend := flag.String("backend", cfg.GetBackend(), "native or onnx")
	compact := flag.Bool("compact", cfg.GetCompact(), "use the compact 96x96 network")
	onnxModel := flag.String("onnx-model", cfg.GetONNXModelPath(), "ONNX model path")
	onnxMetadata := flag.String("onnx-metadata", cfg.GetONNXMetadataPath(), "ONNX metadata path")
	onnxLibrary := flag.String("onnx-library", cfg.GetONNXLibraryPath(), "onnxruntime shared library")
	plots := flag.String("plots", "", "write a PNG plot per image into this directory")
	trace := flag.Bool("trace", false, "print the stage shapes of the network and exit")
	verbose := flag.Bool("v", false, "log every inference")
	flag.Parse()

	cfg.Backend, cfg.Seed, cfg.Compact = backend, seed, compact
	cfg.ONNXModelPath, cfg.ONNXMetadataPath, cfg.ONNXLibraryPath = onnxModel, onnxMetadata, onnxLibrary
	if err := cfg.Validate(); err != nil {
		log.Print(err)
		return 2
	}

	if *trace {
		if err := printTrace(cfg.GetCompact()); err != nil {
			log.Print(err)
			return 1
		}
		return 0
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: keypoints [flags] image...")
		flag.PrintDefaults()
		return 2
	}
	if *plots != "" {
		if err := os.MkdirAll(*plots, 0o755); err != nil {
			log.Printf("Failed to create plot directory: %v", err)
			return 1
		}
	}
	if !*verbose {
		defer monitoring.Mute()()
	}

	predictor, err := model.NewPredictor(cfg.PredictorOptions())
	if err != nil {
		log.Printf("Failed to initialize predictor: %v", err)
		return 1
	}
	srv := model.NewServer(predictor)
	defer srv.Close()

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	bar := pb.StartNew(len(files))
	for _, file := range files {
		res, err := predictFile(context.Background(), srv, file, *plots)
		bar.Increment()
		if err != nil {
			log.Printf("%s: %v", file, err)
			failed++
			continue
		}
		if err := enc.Encode(res); err != nil {
			bar.Finish()
			log.Printf("Failed to write result: %v", err)
			return 1
		}
	}
	bar.Finish()

	if failed > 0 {
		log.Printf("%d of %d images failed", failed, len(files))
		return 1
	}
	return 0
}

func predictFile(ctx context.Context, srv *model.Server, path, plotDir string) (*result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	input, err := imaging.Load(f, srv.ImageSize())
	if err != nil {
		return nil, err
	}
	pred, err := srv.Predict(ctx, input)
	if err != nil {
		return nil, err
	}

	res := &result{
		File:      path,
		ID:        pred.ID,
		Backend:   pred.Backend,
		ImageSize: pred.ImageSize,
		Keypoints: pred.Keypoints,
	}
	if plotDir != "" {
		res.Plot = filepath.Join(plotDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"_keypoints.png")
		if err := writePlot(res.Plot, pred, filepath.Base(path)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writePlot(path string, pred *model.PredictionResponse, title string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.PlotPNG(out, pred.Keypoints, pred.ImageSize, title); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// printTrace lists every stage's output shape for one input image without
// allocating the network.
func printTrace(compact bool) error {
	arch := model.KeypointArchitecture()
	if compact {
		arch = model.CompactArchitecture()
	}
	stages, err := arch.Trace(tensor.Shape{1, 1, arch.InputSize, arch.InputSize})
	if err != nil {
		return err
	}
	fmt.Printf("%-8s %v\n", "input", tensor.Shape{1, 1, arch.InputSize, arch.InputSize})
	for _, s := range stages {
		fmt.Printf("%-8s %v\n", s.Stage, s.Shape)
	}
	return nil
}
