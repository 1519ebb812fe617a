package ops

import (
	"context"
	"strconv"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/session"
)

// LatestInput contains parameters for the Latest operation.
type LatestInput struct {
	Tool            string // optional; empty returns the latest run of every tool
	IncludeFindings bool   // default: false (summary only)
}

// LatestOutput contains the result of the Latest operation.
type LatestOutput struct {
	Items []RunItem `json:"items"` // empty if the project has no runs
}

// RunItem is a run summary with optional findings.
type RunItem struct {
	RunSummary
	Findings []finding.Finding `json:"findings,omitempty"`
}

// Latest returns the most recent run per tool.
func Latest(ctx context.Context, s *session.Session, input LatestInput) (*LatestOutput, error) {
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}
	pid := s.Project().ID

	var runs []finding.Run
	if input.Tool != "" {
		r, err := st.MostRecentRun(ctx, pid, input.Tool)
		if err != nil {
			return nil, err
		}
		if r != nil {
			runs = append(runs, *r)
		}
	} else {
		runs, err = st.LatestRuns(ctx, pid)
		if err != nil {
			return nil, err
		}
	}

	out := &LatestOutput{Items: make([]RunItem, 0, len(runs))}
	for i := range runs {
		out.Items = append(out.Items, toItem(&runs[i], input.IncludeFindings))
	}
	return out, nil
}

// GetRunInput contains parameters for the GetRun operation.
type GetRunInput struct {
	ID int64
}

// GetRun returns one run with its findings.
func GetRun(ctx context.Context, s *session.Session, input GetRunInput) (*RunItem, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be positive")
	}
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}
	r, err := st.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if r.ProjectID != s.Project().ID {
		return nil, errors.NewNotFound(strconv.FormatInt(input.ID, 10))
	}
	item := toItem(r, true)
	return &item, nil
}

func toItem(r *finding.Run, withFindings bool) RunItem {
	item := RunItem{RunSummary: Summarize(r)}
	if withFindings {
		item.Findings = r.Findings
		if item.Findings == nil {
			item.Findings = []finding.Finding{}
		}
	}
	return item
}
