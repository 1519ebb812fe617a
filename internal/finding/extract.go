package finding

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool names with a dedicated extraction rule.
const (
	ToolSemgrep = "semgrep"
	ToolBandit  = "bandit"
	ToolPylint  = "pylint"
	ToolESLint  = "eslint"
	ToolRuff    = "ruff"
)

type extractor func(env envelope) ([]Finding, []string, error)

// extractors holds the per-tool rules describing where path, position, severity and
// message live in each tool's JSON output.
var extractors = map[string]extractor{
	ToolSemgrep: extractSemgrep,
	ToolBandit:  extractBandit,
	ToolPylint:  extractPylint,
	ToolESLint:  extractESLint,
	ToolRuff:    extractRuff,
}

// exclusiveEnd converts an exclusive end column to an inclusive one.
func exclusiveEnd(col int) int {
	if col > 1 {
		return col - 1
	}
	return col
}

type semgrepPos struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type semgrepOutput struct {
	Results []struct {
		CheckID string     `json:"check_id"`
		Path    string     `json:"path"`
		Start   semgrepPos `json:"start"`
		End     semgrepPos `json:"end"`
		Extra   struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

func extractSemgrep(env envelope) ([]Finding, []string, error) {
	if env.isArray {
		return nil, nil, fmt.Errorf("expected object")
	}
	var o semgrepOutput
	if err := json.Unmarshal(env.raw, &o); err != nil {
		return nil, nil, err
	}
	out := make([]Finding, 0, len(o.Results))
	for _, r := range o.Results {
		sev := r.Extra.Severity
		if sev == "" {
			sev = "warning"
		}
		out = append(out, Finding{
			FilePath:    r.Path,
			StartLine:   r.Start.Line,
			StartColumn: r.Start.Col,
			EndLine:     r.End.Line,
			EndColumn:   exclusiveEnd(r.End.Col),
			Severity:    NormalizeSeverity(sev),
			Message:     strings.TrimSpace(r.Extra.Message),
			Category:    r.CheckID,
		})
	}
	var toolErrors []string
	for _, e := range o.Errors {
		typ := e.Type
		if typ == "" {
			typ = "Error"
		}
		msg := e.Message
		if msg == "" {
			msg = "Unknown error"
		}
		toolErrors = append(toolErrors, fmt.Sprintf("%s: %s", typ, msg))
	}
	return out, toolErrors, nil
}

type banditOutput struct {
	Results []struct {
		Filename      string `json:"filename"`
		LineNumber    int    `json:"line_number"`
		LineRange     []int  `json:"line_range"`
		ColOffset     int    `json:"col_offset"`
		EndColOffset  int    `json:"end_col_offset"`
		IssueSeverity string `json:"issue_severity"`
		IssueText     string `json:"issue_text"`
		TestID        string `json:"test_id"`
	} `json:"results"`
	Errors []struct {
		Filename string `json:"filename"`
		Reason   string `json:"reason"`
	} `json:"errors"`
}

// extractBandit reads bandit -f json. Column offsets are 0-based; end offsets exclusive.
func extractBandit(env envelope) ([]Finding, []string, error) {
	if env.isArray {
		return nil, nil, fmt.Errorf("expected object")
	}
	var o banditOutput
	if err := json.Unmarshal(env.raw, &o); err != nil {
		return nil, nil, err
	}
	out := make([]Finding, 0, len(o.Results))
	for _, r := range o.Results {
		endLine := r.LineNumber
		if n := len(r.LineRange); n > 0 {
			endLine = r.LineRange[n-1]
		}
		out = append(out, Finding{
			FilePath:    r.Filename,
			StartLine:   r.LineNumber,
			StartColumn: r.ColOffset + 1,
			EndLine:     endLine,
			EndColumn:   r.EndColOffset,
			Severity:    NormalizeSeverity(r.IssueSeverity),
			Message:     r.IssueText,
			Category:    r.TestID,
		})
	}
	var toolErrors []string
	for _, e := range o.Errors {
		toolErrors = append(toolErrors, fmt.Sprintf("%s: %s", e.Filename, e.Reason))
	}
	return out, toolErrors, nil
}

// pylintTypes maps pylint message types onto the severity vocabulary.
var pylintTypes = map[string]string{
	"fatal":      "error",
	"error":      "error",
	"warning":    "warning",
	"convention": "info",
	"info":       "info",
	"refactor":   "hint",
}

type pylintMessage struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   *int   `json:"endLine"`
	EndColumn *int   `json:"endColumn"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
	MessageID string `json:"message-id"`
}

// extractPylint reads pylint --output-format=json. Columns are 0-based.
func extractPylint(env envelope) ([]Finding, []string, error) {
	if !env.isArray {
		return nil, nil, fmt.Errorf("expected array")
	}
	var msgs []pylintMessage
	if err := json.Unmarshal(env.raw, &msgs); err != nil {
		return nil, nil, err
	}
	out := make([]Finding, 0, len(msgs))
	for _, m := range msgs {
		f := Finding{
			FilePath:    m.Path,
			StartLine:   m.Line,
			StartColumn: m.Column + 1,
			Severity:    NormalizeSeverity(pylintTypes[m.Type]),
			Message:     m.Message,
			Category:    m.Symbol,
		}
		if m.EndLine != nil {
			f.EndLine = *m.EndLine
		}
		if m.EndColumn != nil {
			f.EndColumn = *m.EndColumn
		}
		if f.Category == "" {
			f.Category = m.MessageID
		}
		out = append(out, f)
	}
	return out, nil, nil
}

type eslintFile struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID    string `json:"ruleId"`
		Severity  int    `json:"severity"`
		Message   string `json:"message"`
		Line      int    `json:"line"`
		Column    int    `json:"column"`
		EndLine   int    `json:"endLine"`
		EndColumn int    `json:"endColumn"`
		Fatal     bool   `json:"fatal"`
	} `json:"messages"`
}

// extractESLint reads eslint --format json. Severity 2 is an error, 1 a warning.
func extractESLint(env envelope) ([]Finding, []string, error) {
	if !env.isArray {
		return nil, nil, fmt.Errorf("expected array")
	}
	var files []eslintFile
	if err := json.Unmarshal(env.raw, &files); err != nil {
		return nil, nil, err
	}
	var out []Finding
	var toolErrors []string
	for _, file := range files {
		for _, m := range file.Messages {
			sev := "warning"
			if m.Severity >= 2 {
				sev = "error"
			}
			if m.Fatal {
				toolErrors = append(toolErrors, fmt.Sprintf("%s: %s", file.FilePath, m.Message))
			}
			out = append(out, Finding{
				FilePath:    file.FilePath,
				StartLine:   m.Line,
				StartColumn: m.Column,
				EndLine:     m.EndLine,
				EndColumn:   exclusiveEnd(m.EndColumn),
				Severity:    NormalizeSeverity(sev),
				Message:     m.Message,
				Category:    m.RuleID,
			})
		}
	}
	return out, toolErrors, nil
}

type ruffPos struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type ruffDiagnostic struct {
	Code        *string  `json:"code"`
	Message     string   `json:"message"`
	Filename    string   `json:"filename"`
	Location    ruffPos  `json:"location"`
	EndLocation *ruffPos `json:"end_location"`
}

// extractRuff reads ruff check --output-format=json. Syntax errors carry no code and
// are reported as errors; rule violations as warnings.
func extractRuff(env envelope) ([]Finding, []string, error) {
	if !env.isArray {
		return nil, nil, fmt.Errorf("expected array")
	}
	var diags []ruffDiagnostic
	if err := json.Unmarshal(env.raw, &diags); err != nil {
		return nil, nil, err
	}
	out := make([]Finding, 0, len(diags))
	for _, d := range diags {
		f := Finding{
			FilePath:    d.Filename,
			StartLine:   d.Location.Row,
			StartColumn: d.Location.Column,
			Severity:    SeverityWarning,
			Message:     d.Message,
		}
		if d.Code != nil {
			f.Category = *d.Code
		} else {
			f.Severity = SeverityError
		}
		if d.EndLocation != nil {
			f.EndLine = d.EndLocation.Row
			f.EndColumn = exclusiveEnd(d.EndLocation.Column)
		}
		out = append(out, f)
	}
	return out, nil, nil
}
