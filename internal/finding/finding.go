package finding

import "time"

// Data type discriminators stored in analysis_runs.data_type.
const (
	// DataTypeCodeAnalysis marks runs whose blob holds normalized findings.
	DataTypeCodeAnalysis = "code-analysis"

	// DataTypeSemgrepLegacy and DataTypeHighlightsLegacy were written by earlier
	// pipeline versions. They are read, never written.
	DataTypeSemgrepLegacy    = "semgrep-analysis"
	DataTypeHighlightsLegacy = "highlights"
)

// SourceScanAll is the run source recorded for whole-project scans.
const SourceScanAll = "scan-all"

// IsAnalysisDataType reports whether runs of the given data type carry findings.
// Other data types may share the table (e.g. assessment answers) and are skipped.
func IsAnalysisDataType(dataType string) bool {
	switch dataType {
	case DataTypeCodeAnalysis, DataTypeSemgrepLegacy, DataTypeHighlightsLegacy:
		return true
	}
	return false
}

// Finding is one reported issue. Lines and columns are 1-based and inclusive.
type Finding struct {
	FilePath    string   `json:"filePath"`
	StartLine   int      `json:"startLine"`
	StartColumn int      `json:"startColumn"`
	EndLine     int      `json:"endLine"`
	EndColumn   int      `json:"endColumn"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Category    string   `json:"category,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Run is one persisted tool invocation (an AnalysisRun).
// Findings are immutable once the run is stored.
type Run struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	ToolName  string    `json:"tool_name"`
	DataType  string    `json:"data_type"`
	Findings  []Finding `json:"findings"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// Stats summarizes a finding list.
type Stats struct {
	Total        int `json:"total"`
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
	Infos        int `json:"infos"`
	Hints        int `json:"hints"`
	FilesScanned int `json:"files_with_findings"`
}

// Summarize counts findings per severity and distinct files.
func Summarize(findings []Finding) Stats {
	s := Stats{Total: len(findings)}
	files := make(map[string]struct{})
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		case SeverityHint:
			s.Hints++
		}
		files[f.FilePath] = struct{}{}
	}
	s.FilesScanned = len(files)
	return s
}

// DefaultMessage is used when a tool reports no message text.
const DefaultMessage = "analysis finding"

// fill applies location and text defaults and enforces endLine >= startLine.
// A reversed column range on a single line is kept; it renders as a point.
func (f Finding) fill(defaultPath, toolName string) Finding {
	if f.FilePath == "" {
		f.FilePath = defaultPath
	}
	if f.StartLine < 1 {
		f.StartLine = 1
	}
	if f.StartColumn < 1 {
		f.StartColumn = 1
	}
	if f.EndLine < 1 {
		f.EndLine = f.StartLine
		if f.EndColumn < 1 {
			f.EndColumn = f.StartColumn
		}
	}
	if f.EndLine < f.StartLine {
		f.EndLine = f.StartLine
		f.EndColumn = f.StartColumn
	}
	if f.EndColumn < 1 {
		f.EndColumn = f.StartColumn
	}
	if f.Message == "" {
		f.Message = DefaultMessage
	}
	if f.Severity == "" {
		f.Severity = SeverityInfo
	}
	if f.Category == "" {
		f.Category = toolName
	}
	if f.Source == "" {
		f.Source = toolName
	}
	return f
}
