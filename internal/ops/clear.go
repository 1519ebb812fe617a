package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/session"
)

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	Confirm bool // required; Clear refuses to run without it
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

// Clear deletes every stored run of the project and clears open documents.
func Clear(ctx context.Context, s *session.Session, input ClearInput) (*ClearOutput, error) {
	if !input.Confirm {
		return nil, errors.NewInvalidRequest("clear deletes all runs of the project; pass confirm")
	}
	st, err := storeOf(s)
	if err != nil {
		return nil, err
	}
	n, err := st.Clear(ctx, s.Project().ID)
	if err != nil {
		return nil, err
	}
	if err := s.Synchronizer().ClearAll(); err != nil {
		s.Logger().Warn("clearing open documents failed", "error", err)
	}
	return &ClearOutput{Deleted: n, Message: formatClearMessage(n)}, nil
}

func formatClearMessage(n int64) string {
	switch n {
	case 0:
		return "No runs to delete"
	case 1:
		return "Deleted 1 run"
	default:
		return fmt.Sprintf("Deleted %d runs", n)
	}
}
