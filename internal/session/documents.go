package session

import (
	"context"

	"github.com/hpungsan/sift/internal/errors"
)

// SaveResult is the outcome of a document save.
type SaveResult struct {
	Document string       `json:"document"`
	Analyzed bool         `json:"analyzed"`
	Results  []ToolResult `json:"results,omitempty"`
}

// DocumentOpened starts tracking doc and draws its highlights.
func (s *Session) DocumentOpened(ctx context.Context, doc string) error {
	if doc == "" {
		return errors.NewInvalidRequest("document is required")
	}
	return s.sync.Opened(ctx, s.Abs(doc))
}

// DocumentActivated marks doc as the active editor and refreshes it.
func (s *Session) DocumentActivated(ctx context.Context, doc string) error {
	if doc == "" {
		return errors.NewInvalidRequest("document is required")
	}
	return s.sync.Activated(ctx, s.Abs(doc))
}

// DocumentClosed stops tracking doc and clears its decorations.
func (s *Session) DocumentClosed(doc string) error {
	if doc == "" {
		return errors.NewInvalidRequest("document is required")
	}
	doc = s.Abs(doc)
	if err := s.sync.Closed(doc); err != nil {
		return err
	}
	if s.memory != nil {
		s.memory.Forget(doc)
	}
	return nil
}

// DocumentSaved refreshes doc and, when analyze_on_save is on and the store is
// available, analyzes it. A save in degraded mode only clears.
func (s *Session) DocumentSaved(ctx context.Context, doc string) (*SaveResult, error) {
	if doc == "" {
		return nil, errors.NewInvalidRequest("document is required")
	}
	doc = s.Abs(doc)
	if err := s.sync.Saved(ctx, doc); err != nil {
		return nil, err
	}
	out := &SaveResult{Document: doc}
	if !s.cfg.AnalyzeOnSaveEnabled() || s.storeErr != nil {
		return out, nil
	}
	results, err := s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
	if err != nil {
		return nil, err
	}
	out.Analyzed = len(results) > 0
	out.Results = results
	return out, nil
}

// Refresh recomputes every open document.
func (s *Session) Refresh(ctx context.Context) error {
	return s.sync.Refresh(ctx)
}
