package types

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactState tracks how far a per-language subtitle output has progressed.
type ArtifactState string

const (
	ArtifactUnverified ArtifactState = "unverified"
	ArtifactValid      ArtifactState = "valid"
	ArtifactInvalid    ArtifactState = "invalid"
)

// Item is one catalog entry tracked through the pipeline.
type Item struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	AssetURL   string    `json:"asset_url"`
	SourceLang string    `json:"source_lang,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`

	// Artifacts maps target language code to the current artifact status.
	Artifacts map[string]*Artifact `json:"artifacts,omitempty"`
}

// Artifact is a single language-tagged subtitle output for an Item.
type Artifact struct {
	Language string        `json:"language"`
	Path     string        `json:"path"`
	State    ArtifactState `json:"state"`
}

// Complete reports whether every language in langs has a valid artifact.
func (it *Item) Complete(langs []string) bool {
	for _, lang := range langs {
		a, ok := it.Artifacts[lang]
		if !ok || a.State != ArtifactValid {
			return false
		}
	}
	return len(langs) > 0
}

// SetArtifact records the artifact for one language, allocating the map lazily.
func (it *Item) SetArtifact(a *Artifact) {
	if it.Artifacts == nil {
		it.Artifacts = make(map[string]*Artifact)
	}
	it.Artifacts[a.Language] = a
}

// SanitizeTitle reduces a title to a filesystem-safe slug. Output paths are
// keyed by this slug, so two concurrent items never share a file name unless
// their titles collide after sanitization; the item ID is appended to rule
// that out.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		s = "untitled"
	}
	return s
}

// ArtifactFileName is the deterministic name for one (item, language) subtitle
// file. The skip-if-exists resume check depends on this never changing shape.
func ArtifactFileName(it *Item, lang string) string {
	return fmt.Sprintf("%s_%s_%s.srt", SanitizeTitle(it.Title), it.ID, lang)
}

// AudioFileName is the deterministic name for an item's extracted audio.
func AudioFileName(it *Item) string {
	return fmt.Sprintf("%s_%s.wav", SanitizeTitle(it.Title), it.ID)
}

// AssetFileName is the deterministic name for an item's downloaded source asset.
func AssetFileName(it *Item) string {
	return fmt.Sprintf("%s_%s.media", SanitizeTitle(it.Title), it.ID)
}

// SourceSubtitleFileName is the transcription output for the detected source language.
func SourceSubtitleFileName(it *Item) string {
	lang := it.SourceLang
	if lang == "" {
		lang = "src"
	}
	return fmt.Sprintf("%s_%s_%s.srt", SanitizeTitle(it.Title), it.ID, lang)
}
