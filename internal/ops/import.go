package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/session"
)

// ImportMode controls how bad lines are handled.
type ImportMode string

const (
	ImportModeAtomic ImportMode = "atomic" // any bad line imports nothing
	ImportModeSkip   ImportMode = "skip"   // bad lines are reported and skipped
)

// maxImportLine bounds one JSONL line.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: atomic
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import appends the runs of an export file to the project as new runs.
// Blobs go through the stored-shape decoder, so exports holding legacy shapes
// are accepted and re-stored in the current shape.
func Import(ctx context.Context, s *session.Session, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeAtomic
	}
	if input.Mode != ImportModeAtomic && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: atomic, skip")
	}
	if err := ValidatePath(input.Path, PathCheckRead, s.Config()); err != nil {
		return nil, err
	}
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}

	file, err := openImportFile(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	runs, bad := parseExport(file, s.Project().ID)
	out := &ImportOutput{Errors: bad}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	if len(bad) > 0 && input.Mode == ImportModeAtomic {
		return out, nil
	}
	out.Skipped = len(bad)

	for i := range runs {
		if ctx.Err() != nil {
			return out, errors.NewCancelled("import")
		}
		if _, err := st.Append(ctx, &runs[i]); err != nil {
			return out, err
		}
		out.Imported++
	}
	if out.Imported > 0 {
		if err := s.Synchronizer().RunAppended(ctx, nil); err != nil {
			s.Logger().Warn("refresh after import failed", "error", err)
		}
	}
	s.Logger().Info("runs imported", "path", input.Path, "imported", out.Imported, "skipped", out.Skipped)
	return out, nil
}

// parseExport decodes every record line into a run for projectID.
func parseExport(r io.Reader, projectID int64) ([]finding.Run, []ImportError) {
	var (
		runs []finding.Run
		bad  []ImportError
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec ExportRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			bad = append(bad, ImportError{Line: line, Code: string(errors.ErrParse), Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if rec.SiftExport {
			continue
		}
		if rec.Tool == "" {
			bad = append(bad, ImportError{Line: line, Code: string(errors.ErrInvalidRequest), Message: "missing tool_name"})
			continue
		}
		if rec.DataType != "" && !finding.IsAnalysisDataType(rec.DataType) {
			bad = append(bad, ImportError{Line: line, Code: string(errors.ErrInvalidRequest),
				Message: fmt.Sprintf("unsupported data_type %q", rec.DataType)})
			continue
		}
		findings, err := finding.DecodeStored(rec.Tool, rec.Data)
		if err != nil {
			bad = append(bad, ImportError{Line: line, Code: string(errors.ErrParse), Message: err.Error()})
			continue
		}
		run := finding.Run{
			ProjectID: projectID,
			ToolName:  rec.Tool,
			DataType:  finding.DataTypeCodeAnalysis,
			Findings:  findings,
			Source:    rec.Source,
		}
		if rec.Timestamp > 0 {
			run.Timestamp = time.UnixMilli(rec.Timestamp)
		}
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		bad = append(bad, ImportError{Line: line + 1, Code: string(errors.ErrInternal), Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return runs, bad
}
