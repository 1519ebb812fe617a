package ops

import (
	"context"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/present"
	"github.com/hpungsan/sift/internal/projector"
	"github.com/hpungsan/sift/internal/session"
)

// HighlightsInput contains parameters for the Highlights operation.
type HighlightsInput struct {
	Document string // required; relative paths resolve against the project root
	// OpenDocuments are the other documents used to detect ambiguous paths.
	// Defaults to the documents the session tracks.
	OpenDocuments []string
}

// HighlightItem is a highlight with its surface range.
type HighlightItem struct {
	projector.Highlight
	Range present.Range `json:"range"`
	Match string        `json:"match"`
}

// HighlightsOutput contains the result of the Highlights operation.
type HighlightsOutput struct {
	Document   string                `json:"document"`
	Mode       string                `json:"mode"`
	Runs       int                   `json:"runs"`
	Highlights []HighlightItem       `json:"highlights"`
	Ambiguous  []projector.Ambiguity `json:"ambiguous,omitempty"`
	// Degraded is set when the store is unavailable and nothing was projected.
	Degraded string `json:"degraded,omitempty"`
}

// Highlights projects stored findings onto one document.
func Highlights(ctx context.Context, s *session.Session, input HighlightsInput) (*HighlightsOutput, error) {
	if input.Document == "" {
		return nil, errors.NewInvalidRequest("document is required")
	}
	doc := s.Abs(input.Document)
	out := &HighlightsOutput{Document: doc, Mode: s.Config().ProjectionMode, Highlights: []HighlightItem{}}

	p := s.Projector()
	if p == nil {
		if err := s.Degraded(); err != nil {
			out.Degraded = err.Error()
		}
		return out, nil
	}
	out.Mode = p.Mode()

	open := input.OpenDocuments
	if open == nil {
		open = s.Synchronizer().Documents()
	} else {
		resolved := make([]string, len(open))
		for i, d := range open {
			resolved[i] = s.Abs(d)
		}
		open = resolved
	}

	pr, err := p.Project(ctx, s.Project().ID, doc, open)
	if err != nil {
		return nil, err
	}
	out.Runs = pr.Runs
	out.Ambiguous = pr.Ambiguous
	for _, h := range pr.Highlights {
		out.Highlights = append(out.Highlights, HighlightItem{
			Highlight: h,
			Range:     present.ToRange(h.Finding),
			Match:     h.Match.String(),
		})
	}
	return out, nil
}

// DecorationsInput contains parameters for the Decorations operation.
type DecorationsInput struct {
	Document string // required
}

// DecorationsOutput is what the surface currently shows for a document.
type DecorationsOutput struct {
	Open bool `json:"open"`
	present.DocumentView
}

// Decorations returns the decorations and diagnostics drawn for an open document.
func Decorations(s *session.Session, input DecorationsInput) (*DecorationsOutput, error) {
	if input.Document == "" {
		return nil, errors.NewInvalidRequest("document is required")
	}
	doc := s.Abs(input.Document)
	out := &DecorationsOutput{Open: s.Synchronizer().IsOpen(doc)}
	if m := s.Surface(); m != nil {
		out.DocumentView = m.View(doc)
		return out, nil
	}
	view := present.DocumentView{Document: doc, Diagnostics: []present.Diagnostic{}}
	if set := s.Synchronizer().Set(doc); set != nil {
		view.Decorations = set.BySeverity
		view.Diagnostics = set.Diagnostics
	}
	out.DocumentView = view
	return out, nil
}
