package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// CueMarker is the minimal structural marker of the SRT timing line. A file
// without it is not a usable subtitle document.
const CueMarker = "-->"

// LineKind tags each line of a subtitle document.
type LineKind int

const (
	// KindMeta lines pass through translation unchanged: cue indexes,
	// timing lines, blanks, and format headers.
	KindMeta LineKind = iota
	// KindText lines are translatable units.
	KindText
)

// Line is one ordered record of a subtitle document.
type Line struct {
	Kind LineKind
	Text string
}

// Document is an ordered sequence of subtitle lines.
type Document struct {
	Lines []Line
}

// Parse splits SRT content into ordered lines, tagging each as meta or text.
func Parse(content string) *Document {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	raw := strings.Split(normalized, "\n")
	doc := &Document{Lines: make([]Line, 0, len(raw))}
	for _, l := range raw {
		kind := KindText
		if isMeta(l) {
			kind = KindMeta
		}
		doc.Lines = append(doc.Lines, Line{Kind: kind, Text: l})
	}
	return doc
}

func isMeta(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return true
	}
	if strings.Contains(t, CueMarker) {
		return true
	}
	// bare cue index
	if _, err := strconv.Atoi(t); err == nil {
		return true
	}
	// WebVTT headers sometimes show up in converted files
	if t == "WEBVTT" || strings.HasPrefix(t, "NOTE ") || strings.HasPrefix(t, "STYLE") {
		return true
	}
	return false
}

// Render reassembles the document into SRT content.
func (d *Document) Render() string {
	parts := make([]string, len(d.Lines))
	for i, l := range d.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// TextLines returns the translatable units in document order.
func (d *Document) TextLines() []string {
	var out []string
	for _, l := range d.Lines {
		if l.Kind == KindText {
			out = append(out, l.Text)
		}
	}
	return out
}

// WithTextLines returns a copy of the document with each text line replaced
// by the corresponding entry of translated, in order. Meta lines are
// untouched. The count must match exactly.
func (d *Document) WithTextLines(translated []string) (*Document, error) {
	want := len(d.TextLines())
	if len(translated) != want {
		return nil, fmt.Errorf("text line count mismatch: document has %d, got %d", want, len(translated))
	}
	out := &Document{Lines: make([]Line, len(d.Lines))}
	copy(out.Lines, d.Lines)
	next := 0
	for i := range out.Lines {
		if out.Lines[i].Kind == KindText {
			out.Lines[i].Text = translated[next]
			next++
		}
	}
	return out, nil
}

// HasCueMarker reports whether content contains at least one timing line.
func HasCueMarker(content string) bool {
	return strings.Contains(content, CueMarker)
}
