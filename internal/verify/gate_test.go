package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtitle-pipeline-go/internal/translate"
	"subtitle-pipeline-go/internal/types"
)

const validSRT = `1
00:00:01,000 --> 00:00:02,000
Buenos días, bienvenidos al programa de hoy.

2
00:00:03,000 --> 00:00:04,500
Hoy hablaremos de muchas cosas interesantes.
`

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestCheckArtifactAccepts covers a healthy artifact.
func TestCheckArtifactAccepts(t *testing.T) {
	g := NewGate(Policy{MinBytes: 50}, nil)
	path := writeArtifact(t, t.TempDir(), "ok.srt", validSRT)
	if err := g.CheckArtifact(path); err != nil {
		t.Fatalf("check: %v", err)
	}
}

// TestCheckArtifactRejectsMissing fails on a nonexistent file.
func TestCheckArtifactRejectsMissing(t *testing.T) {
	g := NewGate(Policy{}, nil)
	err := g.CheckArtifact(filepath.Join(t.TempDir(), "absent.srt"))
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("err = %v, want missing", err)
	}
}

// TestCheckArtifactRejectsTooSmall enforces the size floor.
func TestCheckArtifactRejectsTooSmall(t *testing.T) {
	g := NewGate(Policy{MinBytes: 10_000}, nil)
	path := writeArtifact(t, t.TempDir(), "small.srt", validSRT)
	err := g.CheckArtifact(path)
	if err == nil || !strings.Contains(err.Error(), "too small") {
		t.Fatalf("err = %v, want size rejection", err)
	}
}

// TestCheckArtifactRejectsPadMarker: the lenient-mode pad must never pass.
func TestCheckArtifactRejectsPadMarker(t *testing.T) {
	g := NewGate(Policy{}, nil)
	content := strings.Replace(validSRT, "Buenos días, bienvenidos al programa de hoy.", translate.PadMarker, 1)
	path := writeArtifact(t, t.TempDir(), "padded.srt", content)
	err := g.CheckArtifact(path)
	if err == nil || !strings.Contains(err.Error(), "placeholder") {
		t.Fatalf("err = %v, want placeholder rejection", err)
	}
}

// TestCheckArtifactRejectsConfiguredMarker honors policy markers.
func TestCheckArtifactRejectsConfiguredMarker(t *testing.T) {
	g := NewGate(Policy{Markers: []string{"TRANSLATION FAILED"}}, nil)
	content := validSRT + "\n3\n00:00:05,000 --> 00:00:06,000\nTRANSLATION FAILED\n"
	path := writeArtifact(t, t.TempDir(), "marked.srt", content)
	if err := g.CheckArtifact(path); err == nil {
		t.Fatal("expected configured marker rejection")
	}
}

// TestCheckArtifactRequiresSubstantiveText rejects cue scaffolding with no
// actual words.
func TestCheckArtifactRequiresSubstantiveText(t *testing.T) {
	g := NewGate(Policy{}, nil)
	content := "1\n00:00:01,000 --> 00:00:02,000\n...\n\n2\n00:00:03,000 --> 00:00:04,000\n123\n"
	path := writeArtifact(t, t.TempDir(), "hollow.srt", content)
	err := g.CheckArtifact(path)
	if err == nil || !strings.Contains(err.Error(), "substantive") {
		t.Fatalf("err = %v, want substantive-text rejection", err)
	}
}

// TestCheckItemReportsPendingLanguages marks artifact states and lists the
// languages still needing work.
func TestCheckItemReportsPendingLanguages(t *testing.T) {
	dir := t.TempDir()
	it := &types.Item{ID: "i1", Title: "Some Show"}
	writeArtifact(t, dir, types.ArtifactFileName(it, "es"), validSRT)

	g := NewGate(Policy{MinBytes: 50}, nil)
	pending := g.CheckItem(it, []string{"es", "fr"}, dir)
	if len(pending) != 1 || pending[0] != "fr" {
		t.Fatalf("pending = %v, want [fr]", pending)
	}
	if it.Artifacts["es"].State != types.ArtifactValid {
		t.Fatalf("es state = %s, want valid", it.Artifacts["es"].State)
	}
	if it.Artifacts["fr"].State != types.ArtifactInvalid {
		t.Fatalf("fr state = %s, want invalid", it.Artifacts["fr"].State)
	}
	if !it.Complete([]string{"es"}) || it.Complete([]string{"es", "fr"}) {
		t.Fatal("completeness mismatch")
	}
}
