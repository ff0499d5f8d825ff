package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"subtitle-pipeline-go/internal/catalog"
	"subtitle-pipeline-go/internal/types"
)

// errIncomplete is the soft condition raised when artifacts exist but fail
// verification; it re-enters the bounded item retry loop like any stage
// error, but is reported distinctly.
var errIncomplete = errors.New("artifacts failed verification")

// processItem runs the whole stage sequence for one item, retrying the item
// as a unit with exponential backoff between attempts. Temp files are removed
// on success and retained on failure so a later run can resume.
func (r *Runner) processItem(ctx context.Context, it *types.Item) ItemResult {
	start := time.Now()
	log := r.log.WithItem(it)

	// idempotent resume: if every artifact already verifies, no stage runs
	if pending := r.opts.Gate.CheckItem(it, r.opts.Languages, r.opts.OutputDir); len(pending) == 0 {
		log.Info("all artifacts already verified, skipping")
		r.opts.Gate.CompareRemote(ctx, it, r.opts.Languages)
		r.cleanupTemp(it)
		return ItemResult{Item: it, Skipped: true, Duration: time.Since(start)}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.opts.BackoffBase
	bo.MaxInterval = r.opts.BackoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := r.opts.ItemRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := r.wait(ctx, bo.NextBackOff()); err != nil {
				lastErr = err
				break
			}
			log.WithField("attempt", attempt).Info("retrying item")
		}

		lastErr = r.runStages(ctx, it)
		if lastErr == nil {
			r.cleanupTemp(it)
			log.WithField("attempts", attempt).WithField("duration", time.Since(start).String()).Info("item complete")
			return ItemResult{Item: it, Attempts: attempt, Duration: time.Since(start)}
		}
		log.WithError(lastErr).WithField("attempt", attempt).Warn("item attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	// temp files intentionally retained for a later retry pass
	return ItemResult{Item: it, Err: lastErr, Attempts: attempts, Duration: time.Since(start)}
}

// runStages executes Download, Extraction, Transcription, Translation per
// pending language, Verification, and Upload, strictly in order.
func (r *Runner) runStages(ctx context.Context, it *types.Item) error {
	assetPath := filepath.Join(r.opts.WorkDir, types.AssetFileName(it))
	audioPath := filepath.Join(r.opts.WorkDir, types.AudioFileName(it))
	sourceSRT := filepath.Join(r.opts.WorkDir, types.SourceSubtitleFileName(it))

	download := func(ctx context.Context) error {
		return r.opts.Download.Fetch(ctx, it.AssetURL, assetPath)
	}
	if r.opts.Retry != nil {
		if err := r.opts.Retry.Do(ctx, "download", download); err != nil {
			return err
		}
	} else if err := download(ctx); err != nil {
		return err
	}

	if err := r.opts.Extract.Extract(ctx, assetPath, audioPath); err != nil {
		return err
	}
	if err := r.opts.Transcribe.Transcribe(ctx, audioPath, sourceSRT, it.SourceLang); err != nil {
		return err
	}

	sourceContent, err := os.ReadFile(sourceSRT)
	if err != nil {
		return fmt.Errorf("read transcription output: %w", err)
	}

	pending := r.opts.Gate.CheckItem(it, r.opts.Languages, r.opts.OutputDir)
	if err := r.translatePending(ctx, it, string(sourceContent), pending); err != nil {
		return err
	}

	if still := r.opts.Gate.CheckItem(it, r.opts.Languages, r.opts.OutputDir); len(still) > 0 {
		return fmt.Errorf("%w: %s", errIncomplete, strings.Join(still, ","))
	}
	r.opts.Gate.CompareRemote(ctx, it, r.opts.Languages)

	if r.opts.Upload != nil {
		for _, lang := range r.opts.Languages {
			if err := r.uploadArtifact(ctx, it, lang); err != nil {
				return err
			}
		}
	}
	return nil
}

// translatePending fans out over the languages still lacking a valid
// artifact, bounded by the configured fan-out ceiling.
func (r *Runner) translatePending(ctx context.Context, it *types.Item, sourceContent string, langs []string) error {
	if len(langs) == 0 {
		return nil
	}

	slots := make(chan struct{}, r.opts.LanguageFanout)
	errs := make([]error, len(langs))
	var wg sync.WaitGroup
	for i, lang := range langs {
		wg.Add(1)
		go func(i int, lang string) {
			defer wg.Done()
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			errs[i] = r.translateOne(ctx, it, sourceContent, lang)
		}(i, lang)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("translate %s: %w", langs[i], err)
		}
	}
	return nil
}

func (r *Runner) translateOne(ctx context.Context, it *types.Item, sourceContent, lang string) error {
	out, err := r.opts.Translate.TranslateDocument(ctx, sourceContent, it.SourceLang, lang)
	if err != nil {
		return err
	}
	path := filepath.Join(r.opts.OutputDir, types.ArtifactFileName(it, lang))
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// uploadArtifact publishes one verified caption. An "already exists"
// conflict is recoverable: the stale caption is deleted and the put retried.
func (r *Runner) uploadArtifact(ctx context.Context, it *types.Item, lang string) error {
	path := filepath.Join(r.opts.OutputDir, types.ArtifactFileName(it, lang))
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact for upload: %w", err)
	}

	put := func(ctx context.Context) error {
		err := r.opts.Upload.PutCaption(ctx, it.ID, lang, string(content))
		if errors.Is(err, catalog.ErrCaptionExists) {
			if derr := r.opts.Upload.DeleteCaption(ctx, it.ID, lang); derr != nil {
				return derr
			}
			return r.opts.Upload.PutCaption(ctx, it.ID, lang, string(content))
		}
		return err
	}
	if r.opts.Retry != nil {
		return r.opts.Retry.Do(ctx, "put-caption", put)
	}
	return put(ctx)
}

// cleanupTemp removes intermediate files once an item is verified complete.
// Artifacts in the output directory stay.
func (r *Runner) cleanupTemp(it *types.Item) {
	for _, name := range []string{
		types.AssetFileName(it),
		types.AudioFileName(it),
		types.SourceSubtitleFileName(it),
	} {
		path := filepath.Join(r.opts.WorkDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.log.WithItem(it).WithError(err).Warn("temp cleanup failed")
		}
	}
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
