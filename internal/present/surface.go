package present

import (
	"sort"
	"sync"

	"github.com/hpungsan/sift/internal/finding"
)

// Position is a 0-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a 0-based range. End is the last character covered.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Decoration is one styled range.
type Decoration struct {
	Range Range  `json:"range"`
	Hover string `json:"hover,omitempty"`
}

// Diagnostic is one entry for a problems panel.
type Diagnostic struct {
	Range    Range            `json:"range"`
	Severity finding.Severity `json:"severity"`
	Message  string           `json:"message"`
	Code     string           `json:"code,omitempty"`
	Source   string           `json:"source,omitempty"`
}

// Surface is the rendering side. Both calls replace everything previously set
// for the document (and severity), they never merge. A nil slice clears.
type Surface interface {
	SetDecorations(doc string, sev finding.Severity, style Style, decorations []Decoration) error
	SetDiagnostics(doc string, diagnostics []Diagnostic) error
}

// DocumentView is what a MemorySurface currently shows for one document.
type DocumentView struct {
	Document    string                            `json:"document"`
	Decorations map[finding.Severity][]Decoration `json:"decorations"`
	Styles      map[finding.Severity]Style        `json:"styles,omitempty"`
	Diagnostics []Diagnostic                      `json:"diagnostics"`
}

// Empty reports whether nothing is shown.
func (v DocumentView) Empty() bool {
	for _, d := range v.Decorations {
		if len(d) > 0 {
			return false
		}
	}
	return len(v.Diagnostics) == 0
}

// MemorySurface keeps the rendered state in memory. The MCP bridge and the web
// viewer read from it; tests use it to observe what was drawn.
type MemorySurface struct {
	mu    sync.RWMutex
	views map[string]*DocumentView
	calls int
}

// NewMemorySurface creates an empty MemorySurface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{views: make(map[string]*DocumentView)}
}

func (m *MemorySurface) view(doc string) *DocumentView {
	v, ok := m.views[doc]
	if !ok {
		v = &DocumentView{
			Document:    doc,
			Decorations: make(map[finding.Severity][]Decoration),
			Styles:      make(map[finding.Severity]Style),
		}
		m.views[doc] = v
	}
	return v
}

// SetDecorations implements Surface.
func (m *MemorySurface) SetDecorations(doc string, sev finding.Severity, style Style, decorations []Decoration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	v := m.view(doc)
	v.Styles[sev] = style
	if len(decorations) == 0 {
		delete(v.Decorations, sev)
		return nil
	}
	v.Decorations[sev] = append([]Decoration(nil), decorations...)
	return nil
}

// SetDiagnostics implements Surface.
func (m *MemorySurface) SetDiagnostics(doc string, diagnostics []Diagnostic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.view(doc).Diagnostics = append([]Diagnostic(nil), diagnostics...)
	return nil
}

// Forget drops all state for doc.
func (m *MemorySurface) Forget(doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, doc)
}

// View returns a copy of what is shown for doc.
func (m *MemorySurface) View(doc string) DocumentView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := DocumentView{
		Document:    doc,
		Decorations: make(map[finding.Severity][]Decoration),
		Styles:      make(map[finding.Severity]Style),
		Diagnostics: []Diagnostic{},
	}
	v, ok := m.views[doc]
	if !ok {
		return out
	}
	for k, d := range v.Decorations {
		out.Decorations[k] = append([]Decoration(nil), d...)
	}
	for k, s := range v.Styles {
		out.Styles[k] = s
	}
	out.Diagnostics = append(out.Diagnostics, v.Diagnostics...)
	return out
}

// Documents lists documents with state, sorted.
func (m *MemorySurface) Documents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.views))
	for doc := range m.views {
		out = append(out, doc)
	}
	sort.Strings(out)
	return out
}

// Calls returns the number of Set calls received.
func (m *MemorySurface) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
