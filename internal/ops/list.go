package ops

import (
	"context"

	"github.com/hpungsan/sift/internal/session"
)

// ListInput contains parameters for the ListRuns operation.
type ListInput struct {
	Tool   string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListOutput contains the result of the ListRuns operation.
type ListOutput struct {
	Items      []RunSummary `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// ListRuns returns run summaries for the project, newest first.
func ListRuns(ctx context.Context, s *session.Session, input ListInput) (*ListOutput, error) {
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit)
	offset := max(input.Offset, 0)
	pid := s.Project().ID

	runs, err := st.ListRuns(ctx, pid, input.Tool, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := st.CountRuns(ctx, pid, input.Tool)
	if err != nil {
		return nil, err
	}

	items := make([]RunSummary, 0, len(runs))
	for i := range runs {
		items = append(items, Summarize(&runs[i]))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "timestamp_desc",
	}, nil
}
