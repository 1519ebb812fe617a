package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/session"
)

// ExportSchemaVersion is written to the export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: ~/.sift/exports/<project>-<timestamp>.jsonl
	Tool string // optional filter
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	SiftExport    bool   `json:"_sift_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	ProjectID     int64  `json:"project_id"`
}

// ExportRecord is one run in an export file. Data holds the stored blob.
type ExportRecord struct {
	SiftExport bool            `json:"_sift_export,omitempty"`
	ID         int64           `json:"id"`
	Tool       string          `json:"tool_name"`
	DataType   string          `json:"data_type"`
	Timestamp  int64           `json:"timestamp"`
	Source     string          `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Export writes the project's runs, oldest first, to a JSONL file.
func Export(ctx context.Context, s *session.Session, input ExportInput) (*ExportOutput, error) {
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		name := s.Project().Name
		if name == "" {
			name = fmt.Sprintf("project-%d", s.Project().ID)
		}
		exportPath = filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(name), now.Format("2006-01-02T150405")))
	}
	// Default paths are validated too; the project name is user input.
	if err := ValidatePath(exportPath, PathCheckWrite, s.Config()); err != nil {
		return nil, err
	}

	runs, err := st.QueryRuns(ctx, s.Project().ID, input.Tool)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0o700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file and rename so a failed export keeps any existing file.
	tempPath := exportPath + "." + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String() + ".tmp"
	file, err := createExportFile(tempPath)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	if err := enc.Encode(ExportHeader{
		SiftExport:    true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    now.Unix(),
		ProjectID:     s.Project().ID,
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	for i := len(runs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		r := runs[i]
		blob, err := finding.Encode(r.Findings)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := enc.Encode(ExportRecord{
			ID:        r.ID,
			Tool:      r.ToolName,
			DataType:  r.DataType,
			Timestamp: r.Timestamp.UnixMilli(),
			Source:    r.Source,
			Data:      blob,
		}); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	s.Logger().Info("runs exported", "path", exportPath, "count", len(runs))
	return &ExportOutput{Path: exportPath, Count: len(runs), ExportedAt: now.Unix()}, nil
}
