// Package ops implements the operations shared by the CLI, the MCP server and
// the web viewer. Every operation works on an open session.
package ops

import (
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/session"
	"github.com/hpungsan/sift/internal/store"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// RunSummary describes a stored run without its findings.
type RunSummary struct {
	ID        int64         `json:"id"`
	Tool      string        `json:"tool"`
	DataType  string        `json:"data_type"`
	Source    string        `json:"source,omitempty"`
	Timestamp int64         `json:"timestamp"`
	Stats     finding.Stats `json:"stats"`
}

// Summarize builds a RunSummary.
func Summarize(r *finding.Run) RunSummary {
	return RunSummary{
		ID:        r.ID,
		Tool:      r.ToolName,
		DataType:  r.DataType,
		Source:    r.Source,
		Timestamp: r.Timestamp.UnixMilli(),
		Stats:     finding.Summarize(r.Findings),
	}
}

// storeOf returns the session store or its STORE_UNAVAILABLE error.
func storeOf(s *session.Session) (*store.Store, error) {
	return s.Store()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
