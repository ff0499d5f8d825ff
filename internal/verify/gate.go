package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"subtitle-pipeline-go/internal/catalog"
	"subtitle-pipeline-go/internal/logger"
	"subtitle-pipeline-go/internal/subtitle"
	"subtitle-pipeline-go/internal/translate"
	"subtitle-pipeline-go/internal/types"
)

// Policy is the configurable artifact acceptance heuristics. The thresholds
// and marker list are deliberately settings, not contract: deployments tune
// them per subtitle length and service quirks.
type Policy struct {
	MinBytes int64
	Markers  []string
}

// CaptionLister is the optional remote side of the advisory check.
type CaptionLister interface {
	GetCaptions(ctx context.Context, itemID string) ([]catalog.Caption, error)
}

// Gate re-inspects produced artifacts before an item may be declared
// complete. It reads content, not just existence.
type Gate struct {
	policy Policy
	remote CaptionLister
	log    *logger.Logger
}

func NewGate(policy Policy, remote CaptionLister) *Gate {
	markers := append([]string{translate.PadMarker}, policy.Markers...)
	policy.Markers = markers
	return &Gate{policy: policy, remote: remote, log: logger.New()}
}

// CheckArtifact validates one subtitle file: it must exist, clear the size
// floor, carry no placeholder marker, and contain at least one substantive
// text line.
func (g *Gate) CheckArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("artifact missing: %s", path)
	}
	if info.Size() < g.policy.MinBytes {
		return fmt.Errorf("artifact too small: %s is %d bytes, floor is %d", path, info.Size(), g.policy.MinBytes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact unreadable: %s: %w", path, err)
	}
	content := string(raw)

	for _, m := range g.policy.Markers {
		if m != "" && strings.Contains(content, m) {
			return fmt.Errorf("artifact contains placeholder %q: %s", m, path)
		}
	}

	if !substantive(content) {
		return fmt.Errorf("artifact has no substantive text line: %s", path)
	}
	return nil
}

// CheckItem verifies every required language artifact, records states on the
// item, and returns the languages that still need work. An empty result
// means the item is complete.
func (g *Gate) CheckItem(it *types.Item, langs []string, outDir string) []string {
	var pending []string
	for _, lang := range langs {
		path := filepath.Join(outDir, types.ArtifactFileName(it, lang))
		a := &types.Artifact{Language: lang, Path: path, State: types.ArtifactValid}
		if err := g.CheckArtifact(path); err != nil {
			a.State = types.ArtifactInvalid
			pending = append(pending, lang)
			g.log.WithItem(it).WithField("language", lang).WithError(err).Debug("artifact failed verification")
		}
		it.SetArtifact(a)
	}
	return pending
}

// CompareRemote is advisory only: it reports drift between local artifacts
// and remotely published captions in the log, and never fails a locally
// valid result.
func (g *Gate) CompareRemote(ctx context.Context, it *types.Item, langs []string) {
	if g.remote == nil {
		return
	}
	captions, err := g.remote.GetCaptions(ctx, it.ID)
	if err != nil {
		g.log.WithItem(it).WithError(err).Debug("advisory remote caption check skipped")
		return
	}
	published := make(map[string]bool, len(captions))
	for _, c := range captions {
		published[c.Language] = true
	}
	for _, lang := range langs {
		if !published[lang] {
			g.log.WithItem(it).WithField("language", lang).Info("caption not yet published remotely")
		}
	}
}

// substantive reports whether content has at least one text line with a
// letter in it.
func substantive(content string) bool {
	doc := subtitle.Parse(content)
	for _, line := range doc.TextLines() {
		for _, r := range line {
			if unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}
