package present

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/projector"
)

// Trigger names the event that caused a refresh.
type Trigger string

const (
	TriggerOpened      Trigger = "opened"
	TriggerSaved       Trigger = "saved"
	TriggerActivated   Trigger = "activated"
	TriggerRefresh     Trigger = "refresh"
	TriggerRunAppended Trigger = "run-appended"
)

// Options configures a Synchronizer.
type Options struct {
	ProjectID int64
	Styles    map[finding.Severity]Style
	Logger    hclog.Logger
}

// Synchronizer keeps the surface in step with the store for every open document.
// Refreshes are serialized; each one replaces a document's DecorationSet whole.
type Synchronizer struct {
	proj      *projector.Projector
	surface   Surface
	projectID int64
	styles    map[finding.Severity]Style
	log       hclog.Logger

	mu     sync.Mutex
	open   map[string]bool
	active string
	sets   map[string]*DecorationSet
}

// NewSynchronizer creates a Synchronizer. proj may be nil, in which case every
// refresh clears (the store is unavailable).
func NewSynchronizer(proj *projector.Projector, surface Surface, opts Options) *Synchronizer {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	styles := opts.Styles
	if styles == nil {
		styles = DefaultStyles()
	}
	return &Synchronizer{
		proj:      proj,
		surface:   surface,
		projectID: opts.ProjectID,
		styles:    styles,
		log:       log.Named("present"),
		open:      make(map[string]bool),
		sets:      make(map[string]*DecorationSet),
	}
}

// Opened registers doc and draws its highlights.
func (s *Synchronizer) Opened(ctx context.Context, doc string) error {
	s.mu.Lock()
	s.open[doc] = true
	s.mu.Unlock()
	return s.refresh(ctx, TriggerOpened, []string{doc})
}

// Closed forgets doc and clears whatever was drawn for it.
func (s *Synchronizer) Closed(doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open[doc] {
		return nil
	}
	delete(s.open, doc)
	delete(s.sets, doc)
	if s.active == doc {
		s.active = ""
	}
	return s.clear(doc)
}

// Activated marks doc as the active document and refreshes it.
// An unknown doc is opened first.
func (s *Synchronizer) Activated(ctx context.Context, doc string) error {
	s.mu.Lock()
	s.open[doc] = true
	s.active = doc
	s.mu.Unlock()
	return s.refresh(ctx, TriggerActivated, []string{doc})
}

// Saved refreshes doc.
func (s *Synchronizer) Saved(ctx context.Context, doc string) error {
	s.mu.Lock()
	s.open[doc] = true
	s.mu.Unlock()
	return s.refresh(ctx, TriggerSaved, []string{doc})
}

// Refresh recomputes every open document.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.refresh(ctx, TriggerRefresh, nil)
}

// RunAppended recomputes every open document after a run of this project was stored.
func (s *Synchronizer) RunAppended(ctx context.Context, run *finding.Run) error {
	if run != nil && run.ProjectID != s.projectID {
		return nil
	}
	return s.refresh(ctx, TriggerRunAppended, nil)
}

// ClearAll removes every decoration and diagnostic while keeping documents open.
func (s *Synchronizer) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for doc := range s.open {
		delete(s.sets, doc)
		if err := s.clear(doc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Documents returns open documents, sorted.
func (s *Synchronizer) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentsLocked()
}

// Active returns the active document, if any.
func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsOpen reports whether doc is open.
func (s *Synchronizer) IsOpen(doc string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[doc]
}

// Set returns the current DecorationSet for doc, or nil.
func (s *Synchronizer) Set(doc string) *DecorationSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[doc]
}

func (s *Synchronizer) documentsLocked() []string {
	out := make([]string, 0, len(s.open))
	for doc := range s.open {
		out = append(out, doc)
	}
	sort.Strings(out)
	return out
}

// refresh projects targets (all open documents when nil) from one store query.
func (s *Synchronizer) refresh(ctx context.Context, trigger Trigger, targets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	open := s.documentsLocked()
	if targets == nil {
		targets = open
	}
	if len(targets) == 0 {
		return nil
	}

	if s.proj == nil {
		for _, doc := range targets {
			delete(s.sets, doc)
			if err := s.clear(doc); err != nil {
				return err
			}
		}
		return nil
	}

	runs, err := s.proj.Runs(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	for _, doc := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		pr := s.proj.ProjectRuns(runs, doc, open)
		set := BuildSet(doc, pr.Highlights)
		if err := s.apply(set); err != nil {
			return err
		}
		s.sets[doc] = set
		s.log.Trace("refreshed", "trigger", string(trigger), "document", doc,
			"highlights", len(pr.Highlights), "runs", pr.Runs)
	}
	return nil
}

// apply clears the document then draws set. Old ranges never survive.
func (s *Synchronizer) apply(set *DecorationSet) error {
	if err := s.clear(set.Document); err != nil {
		return err
	}
	for _, sev := range finding.Severities {
		if len(set.BySeverity[sev]) == 0 {
			continue
		}
		if err := s.surface.SetDecorations(set.Document, sev, s.styles[sev], set.BySeverity[sev]); err != nil {
			return fmt.Errorf("set %s decorations: %w", sev, err)
		}
	}
	if len(set.Diagnostics) > 0 {
		if err := s.surface.SetDiagnostics(set.Document, set.Diagnostics); err != nil {
			return fmt.Errorf("set diagnostics: %w", err)
		}
	}
	return nil
}

func (s *Synchronizer) clear(doc string) error {
	for _, sev := range finding.Severities {
		if err := s.surface.SetDecorations(doc, sev, s.styles[sev], nil); err != nil {
			return fmt.Errorf("clear %s decorations: %w", sev, err)
		}
	}
	if err := s.surface.SetDiagnostics(doc, nil); err != nil {
		return fmt.Errorf("clear diagnostics: %w", err)
	}
	return nil
}
