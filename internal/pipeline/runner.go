package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"subtitle-pipeline-go/internal/logger"
	"subtitle-pipeline-go/internal/remote"
	"subtitle-pipeline-go/internal/types"
)

// ItemSource feeds the runner. Production uses the catalog client; tests
// supply a stub with a fixed list.
type ItemSource interface {
	Items(ctx context.Context) ([]*types.Item, error)
}

// SourceFunc adapts a plain function into an ItemSource.
type SourceFunc func(ctx context.Context) ([]*types.Item, error)

func (f SourceFunc) Items(ctx context.Context) ([]*types.Item, error) { return f(ctx) }

// Downloader streams an asset to local storage.
type Downloader interface {
	Fetch(ctx context.Context, assetURL, destPath string) error
}

// Extractor pulls speech audio out of a downloaded asset.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outPath string) error
}

// Transcriber produces a source-language subtitle file from audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, outPath, language string) error
}

// Translator converts one subtitle document into a target language.
type Translator interface {
	TranslateDocument(ctx context.Context, content, sourceLang, targetLang string) (string, error)
}

// Verifier is the gate consulted before an item is declared complete.
type Verifier interface {
	CheckItem(it *types.Item, langs []string, outDir string) []string
	CompareRemote(ctx context.Context, it *types.Item, langs []string)
}

// Uploader publishes verified captions back to the catalog.
type Uploader interface {
	PutCaption(ctx context.Context, itemID, lang, content string) error
	DeleteCaption(ctx context.Context, itemID, lang string) error
}

// Options wires the runner. Zero-value optional fields disable their feature.
type Options struct {
	Source     ItemSource
	Download   Downloader
	Extract    Extractor
	Transcribe Transcriber
	Translate  Translator
	Gate       Verifier
	Upload     Uploader // nil leaves artifacts local
	Retry      *remote.Controller

	Languages      []string
	Workers        int
	LanguageFanout int
	ItemRetries    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration

	WorkDir   string
	OutputDir string
}

// ItemResult is the terminal state of one item in a run.
type ItemResult struct {
	Item     *types.Item
	Err      error
	Attempts int
	Skipped  bool
	Duration time.Duration
}

// Summary aggregates a whole run. Partial failure is the expected steady
// state; the runner never aborts because one item failed.
type Summary struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
	Results   []ItemResult
}

// Runner drives items through the stage sequence over a bounded worker pool.
type Runner struct {
	opts Options
	log  *logger.Logger

	// sleep is injectable for tests; nil means context-aware time.Sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LanguageFanout < 1 {
		opts.LanguageFanout = 1
	}
	return &Runner{opts: opts, log: logger.New()}
}

// Run pulls the item list and processes every item, K at a time. Lanes are
// refilled as soon as they free up; completion order across items is
// nondeterministic.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	items, err := r.opts.Source.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch item list: %w", err)
	}

	runID := uuid.New().String()
	log := r.log.WithField("run_id", runID)
	log.WithField("total_items", len(items)).WithField("workers", r.opts.Workers).Info("run started")

	jobs := make(chan *types.Item)
	results := make(chan ItemResult)
	progress := newProgressReporter(log, len(items), 2*time.Second)

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				res := r.processItem(ctx, it)
				progress.record(res)
				results <- res
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, it := range items {
			select {
			case jobs <- it:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &Summary{RunID: runID}
	for res := range results {
		summary.Results = append(summary.Results, res)
		switch {
		case res.Skipped:
			summary.Skipped++
			summary.Succeeded++
		case res.Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
	}

	log.WithField("succeeded", summary.Succeeded).
		WithField("failed", summary.Failed).
		WithField("skipped", summary.Skipped).
		Info("run finished")
	return summary, nil
}
