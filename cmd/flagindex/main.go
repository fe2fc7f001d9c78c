// Command flagindex builds a searchable corpus from per-flag JSON records:
// each flag's local reference image is encoded with the ONNX image encoder and
// the result is written as flags.json plus embeddings.npy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/config"
	"github.com/kailas-cloud/flagsearch/internal/corpus"
	logpkg "github.com/kailas-cloud/flagsearch/internal/logger"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
	onnxEnc "github.com/kailas-cloud/flagsearch/internal/transport/onnx"
	indexuc "github.com/kailas-cloud/flagsearch/internal/usecase/index"
	"github.com/kailas-cloud/flagsearch/internal/version"
)

func main() {
	var (
		dataDir    = flag.String("data", "", "directory of per-flag JSON records (required)")
		imagesDir  = flag.String("images", "", "root for relative local_image_link paths (default: -data)")
		outDir     = flag.String("out", "", "output directory for flags.json and embeddings.npy (required)")
		configPath = flag.String("config", "", "config file (default: config/<ENV>.yaml)")
		workers    = flag.Int("workers", indexuc.DefaultWorkers, "concurrent image encodings")
	)
	flag.Parse()

	if *dataDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "flagindex: -data and -out are required")
		flag.Usage()
		os.Exit(2)
	}
	if *imagesDir == "" {
		*imagesDir = *dataDir
	}

	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *dataDir, *imagesDir, *outDir, *workers, logger); err != nil {
		logger.Error("Corpus build failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, dataDir, imagesDir, outDir string, workers int, logger *zap.Logger) error {
	logger.Info("Starting flagindex",
		zap.String("version", version.String()),
		zap.String("data", dataDir),
		zap.String("out", outDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := corpus.ReadEntries(dataDir)
	if err != nil {
		return fmt.Errorf("read flag records: %w", err)
	}
	logger.Info("Flag records read", zap.Int("count", len(entries)))

	metrics.RegisterEncoderMetrics()

	oc := cfg.Encoder.ONNX
	enc, err := onnxEnc.NewImageEncoder(&onnxEnc.ImageConfig{
		LibraryPath: oc.LibraryPath,
		ModelPath:   oc.ImageModel,
		Input:       oc.ImageInput,
		Output:      oc.ImageOutput,
		ImageSize:   oc.ImageSize,
		MaxPixels:   oc.MaxPixels,
		Threads:     oc.Threads,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create image encoder: %w", err)
	}
	defer func() {
		_ = enc.Close()
		_ = onnxEnc.Shutdown()
	}()

	out, _, err := indexuc.New(enc, indexuc.DirSource(imagesDir), logger).
		WithWorkers(workers).
		Build(ctx, entries)
	if err != nil {
		return err
	}

	if err := corpus.Write(outDir, out.Entries, out.Embeddings); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}

	logger.Info("Corpus written",
		zap.String("descriptor", corpus.DescriptorFilename),
		zap.String("embeddings", corpus.EmbeddingsFilename),
		zap.Int("flags", len(out.Entries)),
	)
	return nil
}
