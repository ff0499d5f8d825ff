package translate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"subtitle-pipeline-go/internal/remote"
	"subtitle-pipeline-go/internal/subtitle"
)

// PadMarker flags lines padded in lenient mode. The verification gate must
// treat any artifact containing it as invalid.
const PadMarker = "[UNTRANSLATED]"

// Stage batches subtitle text lines, translates them, and reconstructs the
// document with non-text lines untouched.
type Stage struct {
	Svc       Service
	Retry     *remote.Controller
	BatchSize int
	// Delay paces successive batch calls against the service's rate
	// budget, independent of the controller's handling of hard 429s.
	Delay  time.Duration
	Strict bool
	// Markers are placeholder patterns that mark a disguised translation
	// failure when they show up in service output.
	Markers []string

	// Sleep is injectable for tests; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// numberingPrefix strips incidental "1." / "2)" / "3:" prefixes models like
// to add despite being told not to.
var numberingPrefix = regexp.MustCompile(`^\s*\d+\s*[\.\):\-]\s*`)

// TranslateDocument translates the text units of an SRT document into
// targetLang, preserving line positions. Source content with no text units
// passes through unchanged.
func (s *Stage) TranslateDocument(ctx context.Context, content, sourceLang, targetLang string) (string, error) {
	doc := subtitle.Parse(content)
	units := doc.TextLines()
	if len(units) == 0 {
		return content, nil
	}

	batches := partition(units, s.BatchSize)
	translated := make([]string, 0, len(units))
	padded := make(map[int]bool)

	for bi, batch := range batches {
		if bi > 0 {
			if err := s.sleep(ctx, s.Delay); err != nil {
				return "", err
			}
		}

		lines, err := s.translateBatch(ctx, batch, sourceLang, targetLang)
		if err != nil {
			return "", err
		}
		for li, line := range lines {
			if line == PadMarker {
				padded[len(translated)+li] = true
			}
		}
		translated = append(translated, lines...)
	}

	if err := s.validateUnits(units, translated, padded); err != nil {
		return "", err
	}

	out, err := doc.WithTextLines(translated)
	if err != nil {
		return "", remote.Validation("translate", err)
	}
	return out.Render(), nil
}

// translateBatch issues one request for exactly len(batch) lines and parses
// the response. Shortfall is a hard error in strict mode; lenient mode pads
// with the flagged marker. Surplus lines beyond the batch size are dropped.
func (s *Stage) translateBatch(ctx context.Context, batch []string, sourceLang, targetLang string) ([]string, error) {
	system := systemInstruction(len(batch), sourceLang, targetLang)
	user := userPrompt(batch)

	var raw string
	call := func(ctx context.Context) error {
		var err error
		raw, err = s.Svc.Translate(ctx, system, user)
		return err
	}
	if s.Retry != nil {
		if err := s.Retry.Do(ctx, "translate-batch", call); err != nil {
			return nil, err
		}
	} else if err := call(ctx); err != nil {
		return nil, err
	}

	lines := parseResponse(raw)
	if len(lines) < len(batch) {
		if s.Strict {
			return nil, remote.Validation("translate",
				fmt.Errorf("batch returned %d of %d lines", len(lines), len(batch)))
		}
		for len(lines) < len(batch) {
			lines = append(lines, PadMarker)
		}
	}
	return lines[:len(batch)], nil
}

func (s *Stage) validateUnits(source, translated []string, padded map[int]bool) error {
	for i := range translated {
		if padded[i] {
			// our own lenient pad, already flagged; the gate rejects it later
			continue
		}
		got := strings.TrimSpace(translated[i])
		if got == "" {
			return remote.Validation("translate", fmt.Errorf("unit %d translated to empty text", i))
		}
		for _, m := range append([]string{PadMarker}, s.Markers...) {
			if m != "" && strings.Contains(got, m) {
				return remote.Validation("translate", fmt.Errorf("unit %d contains placeholder %q", i, m))
			}
		}
		// verbatim output means the service quietly gave up; lines without
		// letters (numbers, sound effects punctuation) are exempt
		if got == strings.TrimSpace(source[i]) && hasLetter(got) {
			return remote.Validation("translate", fmt.Errorf("unit %d returned verbatim: %q", i, got))
		}
	}
	return nil
}

func systemInstruction(n int, sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional subtitle translator. Translate each line from %s to %s. "+
			"You will receive %d numbered lines. Respond with exactly %d lines, one translation "+
			"per input line, in the same order. Do not add numbering, commentary, or blank lines.",
		sourceLang, targetLang, n, n)
}

func userPrompt(batch []string) string {
	var b strings.Builder
	for i, line := range batch {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}
	return b.String()
}

// parseResponse splits service output into lines, dropping blanks and
// stripping incidental numbering.
func parseResponse(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = numberingPrefix.ReplaceAllString(line, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(line))
	}
	return out
}

func partition(units []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		out = append(out, units[start:end])
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func (s *Stage) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
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
