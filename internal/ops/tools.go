package ops

import (
	"context"
	"slices"

	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/session"
	"github.com/hpungsan/sift/internal/tools"
)

// ToolInfo is one row of the Tools listing.
type ToolInfo struct {
	tools.ToolStatus
	Enabled bool `json:"enabled"`
}

// ToolsOutput contains the result of the Tools operation.
type ToolsOutput struct {
	Tools  []ToolInfo        `json:"tools"`
	Active []invoke.SlotInfo `json:"active"`
}

// Tools reports discovery status per known tool and the analyses in flight.
func Tools(ctx context.Context, s *session.Session) (*ToolsOutput, error) {
	enabled := s.EnabledTools()
	statuses := s.ToolStatus(ctx)
	out := &ToolsOutput{Tools: make([]ToolInfo, 0, len(statuses)), Active: s.Manager().Active()}
	for _, st := range statuses {
		out.Tools = append(out.Tools, ToolInfo{ToolStatus: st, Enabled: slices.Contains(enabled, st.Name)})
	}
	return out, nil
}
