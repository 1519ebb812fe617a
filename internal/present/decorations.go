package present

import (
	"sort"

	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/projector"
)

// ToRange translates a finding's 1-based inclusive location into 0-based
// surface coordinates. Anything that would go below zero is clamped to zero.
func ToRange(f finding.Finding) Range {
	return Range{
		Start: Position{Line: zeroBased(f.StartLine), Character: zeroBased(f.StartColumn)},
		End:   Position{Line: zeroBased(f.EndLine), Character: zeroBased(f.EndColumn)},
	}
}

func zeroBased(n int) int {
	if n <= 1 {
		return 0
	}
	return n - 1
}

// DecorationSet is the complete set of ranges and diagnostics for one document.
// It is always replaced as a whole.
type DecorationSet struct {
	Document    string
	BySeverity  map[finding.Severity][]Decoration
	Diagnostics []Diagnostic
}

// Len returns the number of decorated ranges.
func (s *DecorationSet) Len() int {
	n := 0
	for _, d := range s.BySeverity {
		n += len(d)
	}
	return n
}

// BuildSet derives decorations and diagnostics 1:1 from highlights. Diagnostics
// are ordered most severe first, then by position.
func BuildSet(doc string, highlights []projector.Highlight) *DecorationSet {
	set := &DecorationSet{
		Document:    doc,
		BySeverity:  make(map[finding.Severity][]Decoration),
		Diagnostics: make([]Diagnostic, 0, len(highlights)),
	}
	for _, h := range highlights {
		sev := finding.NormalizeSeverity(string(h.Severity))
		r := ToRange(h.Finding)
		set.BySeverity[sev] = append(set.BySeverity[sev], Decoration{Range: r, Hover: hover(h)})
		set.Diagnostics = append(set.Diagnostics, Diagnostic{
			Range:    r,
			Severity: sev,
			Message:  h.Message,
			Code:     h.Category,
			Source:   h.Tool,
		})
	}
	sort.SliceStable(set.Diagnostics, func(i, j int) bool {
		a, b := set.Diagnostics[i], set.Diagnostics[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		if a.Range.Start.Line != b.Range.Start.Line {
			return a.Range.Start.Line < b.Range.Start.Line
		}
		return a.Range.Start.Character < b.Range.Start.Character
	})
	return set
}

func hover(h projector.Highlight) string {
	if h.Category == "" {
		return h.Message
	}
	return h.Message + " [" + h.Category + "]"
}
