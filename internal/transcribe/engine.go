package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subtitle-pipeline-go/internal/media"
	"subtitle-pipeline-go/internal/subtitle"
)

// Engine invokes the external speech-to-text binary as a subprocess. Each
// invocation carries a hard timeout; a hung engine becomes a stage failure
// instead of blocking a worker lane forever.
type Engine struct {
	Bin     string
	Model   string
	Runner  media.Runner
	Timeout time.Duration

	// slots bounds concurrent engine processes across all items so batch
	// runs respect the engine's throughput.
	slots chan struct{}
}

func NewEngine(bin, model string, timeout time.Duration, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		Bin:     bin,
		Model:   model,
		Runner:  &media.ExecRunner{},
		Timeout: timeout,
		slots:   make(chan struct{}, concurrency),
	}
}

// Transcribe produces an SRT file at outPath from audioPath. Output is
// accepted only if it exists and carries the subtitle cue marker. An existing
// acceptable output skips the invocation.
func (e *Engine) Transcribe(ctx context.Context, audioPath, outPath, language string) error {
	if acceptable(outPath) {
		return nil
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("transcribe: cannot access audio %s: %w", audioPath, err)
	}

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	outBase := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	args := e.args(audioPath, outBase, language)
	res, err := e.Runner.Run(runCtx, e.Bin, args...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("transcribe: %s exceeded %s timeout", e.Bin, e.Timeout)
		}
		return fmt.Errorf("transcribe: %s failed (exit=%d): %w", e.Bin, res.ExitCode, err)
	}

	if !acceptable(outPath) {
		return fmt.Errorf("transcribe: %s completed but %s is missing or has no cue marker", e.Bin, outPath)
	}
	return nil
}

func (e *Engine) args(audioPath, outBase, language string) []string {
	args := []string{
		"-m", e.Model,
		"-f", audioPath,
		"-of", outBase,
		"-osrt",
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "-l", lang)
	}
	return args
}

// acceptable checks the minimal structural requirement on engine output.
func acceptable(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return subtitle.HasCueMarker(string(content))
}
