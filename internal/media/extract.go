package media

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Extractor runs the external toolkit to pull mono 16kHz speech audio out of
// a source asset.
type Extractor struct {
	Bin     string
	Runner  Runner
	Timeout time.Duration
	// Filter overrides the default filter chain when set.
	Filter []string
}

func NewExtractor(bin string, timeout time.Duration) *Extractor {
	return &Extractor{Bin: bin, Runner: &ExecRunner{}, Timeout: timeout}
}

// Extract converts inputPath into a speech-only WAV at outPath. An existing
// usable output skips the invocation.
func (e *Extractor) Extract(ctx context.Context, inputPath, outPath string) error {
	if fileUsable(outPath) {
		return nil
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("extract: cannot access input %s: %w", inputPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := e.args(inputPath, outPath)
	res, err := e.Runner.Run(ctx, e.Bin, args...)
	if err != nil {
		return fmt.Errorf("extract: %s failed (exit=%d): %w: %s", e.Bin, res.ExitCode, err, tail(res.Stderr))
	}
	if !fileUsable(outPath) {
		return fmt.Errorf("extract: %s completed but output %s is missing or empty", e.Bin, outPath)
	}
	return nil
}

func (e *Extractor) args(inputPath, outPath string) []string {
	filter := e.Filter
	if len(filter) == 0 {
		filter = []string{"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le"}
	}
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", inputPath}
	args = append(args, filter...)
	return append(args, outPath)
}

// tail keeps error messages readable when a tool dumps pages of stderr.
func tail(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
