package projector

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
)

// RunSource is the read side of the store.
type RunSource interface {
	QueryRuns(ctx context.Context, projectID int64, toolName string) ([]finding.Run, error)
}

// Options configures a Projector.
type Options struct {
	// Root is the project root for relative finding paths.
	Root            string
	CaseInsensitive bool
	// Mode is config.ProjectionHistory (default) or config.ProjectionLatest.
	Mode   string
	Logger hclog.Logger
}

// Projector computes the highlights relevant to one document.
type Projector struct {
	src      RunSource
	resolver *Resolver
	mode     string
	log      hclog.Logger
}

// New creates a Projector.
func New(src RunSource, opts Options) *Projector {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	mode := opts.Mode
	if mode == "" {
		mode = config.ProjectionHistory
	}
	return &Projector{
		src:      src,
		resolver: NewResolver(opts.Root, opts.CaseInsensitive),
		mode:     mode,
		log:      log.Named("projector"),
	}
}

// Mode returns the projection mode.
func (p *Projector) Mode() string { return p.mode }

// Highlight is a finding resolved against one document.
type Highlight struct {
	finding.Finding
	RunID int64     `json:"run_id"`
	Tool  string    `json:"tool"`
	Match MatchKind `json:"-"`
}

// Ambiguity records a finding path the suffix rule could not pin to one document.
type Ambiguity struct {
	Path       string   `json:"path"`
	Candidates []string `json:"candidates"`
}

// Projection is the result of one projection pass.
type Projection struct {
	Document   string      `json:"document"`
	Highlights []Highlight `json:"highlights"`
	Ambiguous  []Ambiguity `json:"ambiguous,omitempty"`
	Runs       int         `json:"runs"`
}

// Findings returns the highlights as plain findings.
func (pr *Projection) Findings() []finding.Finding {
	out := make([]finding.Finding, len(pr.Highlights))
	for i, h := range pr.Highlights {
		out[i] = h.Finding
	}
	return out
}

// Project returns the highlights for doc, newest run first and in discovery
// order within a run. openDocs are the other documents path identity is
// disambiguated against. Duplicate findings across runs are all kept.
func (p *Projector) Project(ctx context.Context, projectID int64, doc string, openDocs []string) (*Projection, error) {
	runs, err := p.Runs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.ProjectRuns(runs, doc, openDocs), nil
}

// ProjectRuns is Project over an already-fetched run list, which must be
// ordered newest first. Used to project several documents from one query.
func (p *Projector) ProjectRuns(runs []finding.Run, doc string, openDocs []string) *Projection {
	r := p.resolver
	nd := r.Normalize(doc)
	all := r.normalizeAll(doc, openDocs)

	memo := make(map[string]MatchKind)
	matchOf := func(findingPath string) MatchKind {
		fp := r.Normalize(findingPath)
		kind, ok := memo[fp]
		if !ok {
			kind = r.match(fp, nd, all)
			memo[fp] = kind
		}
		return kind
	}
	if p.mode == config.ProjectionLatest {
		runs = p.latestFor(runs, nd, matchOf)
	}

	pr := &Projection{Document: doc, Highlights: []Highlight{}, Runs: len(runs)}
	reported := make(map[string]bool)

	for _, run := range runs {
		for _, f := range run.Findings {
			fp := r.Normalize(f.FilePath)
			kind := matchOf(f.FilePath)
			switch kind {
			case MatchExact, MatchRelative, MatchSuffix:
				pr.Highlights = append(pr.Highlights, Highlight{Finding: f, RunID: run.ID, Tool: run.ToolName, Match: kind})
			case MatchAmbiguous:
				if !reported[fp] {
					reported[fp] = true
					amb := Ambiguity{Path: f.FilePath, Candidates: suffixCandidates(fp, all)}
					pr.Ambiguous = append(pr.Ambiguous, amb)
					p.log.Debug("ambiguous finding path skipped", "code", errors.ErrPathAmbiguous,
						"path", f.FilePath, "document", doc, "candidates", amb.Candidates)
				}
			}
		}
	}
	return pr
}

// Runs fetches the runs that feed projection, newest first.
func (p *Projector) Runs(ctx context.Context, projectID int64) ([]finding.Run, error) {
	return p.src.QueryRuns(ctx, projectID, "")
}

// latestFor keeps, per tool, only the newest run whose scope covers the
// document nd. runs must be newest first.
func (p *Projector) latestFor(runs []finding.Run, nd string, matchOf func(string) MatchKind) []finding.Run {
	var out []finding.Run
	done := make(map[string]bool)
	for _, run := range runs {
		if done[run.ToolName] || !p.covers(run, nd, matchOf) {
			continue
		}
		done[run.ToolName] = true
		out = append(out, run)
	}
	return out
}

// covers reports whether run is a complete result for the document nd: a
// whole-project scan, a run of unknown scope, a run triggered on the document
// itself, or a run with at least one finding in it.
func (p *Projector) covers(run finding.Run, nd string, matchOf func(string) MatchKind) bool {
	switch run.Source {
	case "", finding.SourceScanAll:
		return true
	}
	if p.resolver.direct(p.resolver.Normalize(run.Source), nd) != NoMatch {
		return true
	}
	for _, f := range run.Findings {
		switch matchOf(f.FilePath) {
		case MatchExact, MatchRelative, MatchSuffix:
			return true
		}
	}
	return false
}

func suffixCandidates(fp string, all []string) []string {
	var out []string
	for _, c := range all {
		if hasSuffix(c, fp) {
			out = append(out, c)
		}
	}
	return out
}
