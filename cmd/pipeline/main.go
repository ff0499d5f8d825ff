package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"subtitle-pipeline-go/internal/catalog"
	"subtitle-pipeline-go/internal/config"
	"subtitle-pipeline-go/internal/logger"
	"subtitle-pipeline-go/internal/media"
	"subtitle-pipeline-go/internal/pipeline"
	"subtitle-pipeline-go/internal/remote"
	"subtitle-pipeline-go/internal/report"
	"subtitle-pipeline-go/internal/transcribe"
	"subtitle-pipeline-go/internal/translate"
	"subtitle-pipeline-go/internal/types"
	"subtitle-pipeline-go/internal/verify"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "subtitle-pipeline-go").Info("starting run")

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	for _, dir := range []string{cfg.WorkDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("cannot create directory")
		}
	}

	// process-level interrupt aborts in-flight work; temp files stay for a
	// later retry pass
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := catalog.NewClient(cfg.CatalogURL, cfg.CatalogAPIKey)
	session := remote.NewSession(client)
	client.UseSession(session)
	retry := remote.NewController(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCap, session)

	translator := &translate.Stage{
		Svc:       translate.NewOpenAIService(cfg.TranslateAPIKey, cfg.TranslateBaseURL, cfg.TranslateModels),
		Retry:     remote.NewController(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCap, nil),
		BatchSize: cfg.BatchSize,
		Delay:     cfg.InterBatchDelay,
		Strict:    cfg.StrictTranslation,
		Markers:   cfg.PlaceholderMarkers,
	}

	var uploader pipeline.Uploader
	if cfg.UploadEnabled {
		uploader = client
	}

	runner := pipeline.NewRunner(pipeline.Options{
		Source: pipeline.SourceFunc(func(ctx context.Context) ([]*types.Item, error) {
			var items []*types.Item
			err := retry.Do(ctx, "list-items", func(ctx context.Context) error {
				var lerr error
				items, lerr = client.ListItems(ctx)
				return lerr
			})
			return items, err
		}),
		Download:   media.NewDownloader(cfg.DownloadTimeout),
		Extract:    media.NewExtractor(cfg.FFmpegBin, cfg.ExtractTimeout),
		Transcribe: transcribe.NewEngine(cfg.WhisperBin, cfg.WhisperModel, cfg.TranscribeTimeout, cfg.TranscribeConcurrency),
		Translate:  translator,
		Gate: verify.NewGate(verify.Policy{
			MinBytes: cfg.MinArtifactBytes,
			Markers:  cfg.PlaceholderMarkers,
		}, client),
		Upload: uploader,
		Retry:  retry,

		Languages:      cfg.TargetLanguages,
		Workers:        cfg.Workers,
		LanguageFanout: cfg.LanguageFanout,
		ItemRetries:    cfg.ItemRetries,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,

		WorkDir:   cfg.WorkDir,
		OutputDir: cfg.OutputDir,
	})

	sum, err := runner.Run(ctx)
	if err != nil {
		log.WithError(err).Fatal("run aborted")
	}

	for _, res := range sum.Results {
		entry := log.WithItem(res.Item).WithField("attempts", res.Attempts)
		switch {
		case res.Skipped:
			entry.Info("skipped: already complete")
		case res.Err != nil:
			entry.WithError(res.Err).Warn("failed")
		default:
			entry.Info("succeeded")
		}
	}
	log.WithField("run_id", sum.RunID).
		WithField("succeeded", sum.Succeeded).
		WithField("failed", sum.Failed).
		WithField("skipped", sum.Skipped).
		Info("summary")

	if cfg.ReportPath != "" {
		if err := report.Write(cfg.ReportPath, sum, cfg.TargetLanguages); err != nil {
			log.WithError(err).Error("report write failed")
		} else {
			log.WithField("path", cfg.ReportPath).Info("report written")
		}
	}

	if sum.Failed > 0 {
		os.Exit(1)
	}
}
