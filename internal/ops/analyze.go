package ops

import (
	"context"
	"os"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/session"
)

// AnalyzeInput contains parameters for the Analyze operation.
type AnalyzeInput struct {
	File   string   // required; relative paths resolve against the project root
	Tools  []string // optional, default: configured tools
	Source string   // optional, recorded on stored runs
}

// AnalyzeOutput contains the result of Analyze and Scan.
type AnalyzeOutput struct {
	Target  string               `json:"target"`
	Results []session.ToolResult `json:"results"`
	Stored  int                  `json:"stored"`
	Totals  finding.Stats        `json:"totals"`
	Errors  []ToolError          `json:"errors,omitempty"`
}

// ToolError reports a recovered tool failure.
type ToolError struct {
	Tool    string `json:"tool"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analyze runs the configured tools on one file and stores their results.
func Analyze(ctx context.Context, s *session.Session, input AnalyzeInput) (*AnalyzeOutput, error) {
	if input.File == "" {
		return nil, errors.NewInvalidRequest("file is required")
	}
	file := s.Abs(input.File)
	info, err := os.Stat(file)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(input.File)
	}
	if err == nil && info.IsDir() {
		return nil, errors.NewInvalidRequest("file must not be a directory; use scan")
	}

	results, err := s.AnalyzeFile(ctx, file, session.AnalyzeOptions{Tools: input.Tools, Source: input.Source})
	if err != nil {
		return nil, err
	}
	return collect(file, results), nil
}

// ScanInput contains parameters for the Scan operation.
type ScanInput struct {
	Tools []string
}

// Scan runs tools over the whole project.
func Scan(ctx context.Context, s *session.Session, input ScanInput) (*AnalyzeOutput, error) {
	results, err := s.Scan(ctx, session.AnalyzeOptions{Tools: input.Tools})
	if err != nil {
		return nil, err
	}
	return collect(s.Project().Root, results), nil
}

func collect(target string, results []session.ToolResult) *AnalyzeOutput {
	out := &AnalyzeOutput{Target: target, Results: results}
	for _, r := range results {
		if r.Stored() {
			out.Stored++
			if r.Stats != nil {
				out.Totals.Total += r.Stats.Total
				out.Totals.Errors += r.Stats.Errors
				out.Totals.Warnings += r.Stats.Warnings
				out.Totals.Infos += r.Stats.Infos
				out.Totals.Hints += r.Stats.Hints
				out.Totals.FilesScanned = max(out.Totals.FilesScanned, r.Stats.FilesScanned)
			}
		}
		if r.Err != nil {
			te := ToolError{Tool: r.Tool, Code: string(errors.ErrInternal), Message: r.Err.Error()}
			if se, ok := errors.As(r.Err); ok {
				te.Code = string(se.Code)
				te.Message = se.Message
			}
			out.Errors = append(out.Errors, te)
		}
	}
	return out
}
