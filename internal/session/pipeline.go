package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/tools"
)

// ToolResult is what one tool run contributed to an analysis.
type ToolResult struct {
	Tool       string         `json:"tool"`
	Status     invoke.Status  `json:"status"`
	TriggerID  string         `json:"trigger_id"`
	RunID      int64          `json:"run_id,omitempty"`
	Findings   int            `json:"findings"`
	Stats      *finding.Stats `json:"stats,omitempty"`
	ToolErrors []string       `json:"tool_errors,omitempty"`
	Duration   time.Duration  `json:"duration_ns"`
	Err        error          `json:"-"`
}

// Error returns the failure message, or "".
func (r ToolResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Stored reports whether the run was appended.
func (r ToolResult) Stored() bool { return r.RunID > 0 }

// AnalyzeOptions selects what to run.
type AnalyzeOptions struct {
	// Tools overrides the configured tool list.
	Tools []string
	// Source is recorded on the stored runs.
	Source string
}

// EnabledTools returns the configured tools that exist, in config order.
func (s *Session) EnabledTools() []string {
	out := make([]string, 0, len(s.cfg.Tools))
	seen := make(map[string]bool)
	for _, name := range s.cfg.Tools {
		if _, ok := tools.Lookup(name); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// AnalyzeFile runs every applicable tool on file, appends each usable result as
// its own run and refreshes open documents. Tool and parse failures are
// recovered: they are logged and reported in the results, never returned.
func (s *Session) AnalyzeFile(ctx context.Context, file string, opts AnalyzeOptions) ([]ToolResult, error) {
	if file == "" {
		return nil, errors.NewInvalidRequest("file is required")
	}
	file = s.Abs(file)
	names, err := s.selectTools(opts.Tools, file)
	if err != nil {
		return nil, err
	}
	reqs := make([]invoke.Request, len(names))
	for i, name := range names {
		reqs[i] = invoke.Request{Tool: name, File: file, Dir: s.project.Root}
	}
	source := opts.Source
	if source == "" {
		source = file
	}
	return s.analyze(ctx, reqs, file, source)
}

// Scan runs tools over the whole project root. Runs are recorded with source scan-all.
func (s *Session) Scan(ctx context.Context, opts AnalyzeOptions) ([]ToolResult, error) {
	names, err := s.selectTools(opts.Tools, "")
	if err != nil {
		return nil, err
	}
	root := s.project.Root
	reqs := make([]invoke.Request, len(names))
	for i, name := range names {
		reqs[i] = invoke.Request{Tool: name, File: root, Target: root, IsDir: true, Dir: root}
	}
	source := opts.Source
	if source == "" {
		source = finding.SourceScanAll
	}
	return s.analyze(ctx, reqs, "", source)
}

// selectTools validates requested tools and drops those that do not apply to file.
func (s *Session) selectTools(requested []string, file string) ([]string, error) {
	names := requested
	if len(names) == 0 {
		names = s.EnabledTools()
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		tool, ok := tools.Lookup(name)
		if !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown tool: %s (known: %v)", name, tools.Names()))
		}
		if file != "" && !tool.Applies(file) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *Session) analyze(ctx context.Context, reqs []invoke.Request, defaultPath, source string) ([]ToolResult, error) {
	st, err := s.Store()
	if err != nil {
		return nil, err
	}

	results := make([]ToolResult, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.runOne(ctx, st, req, defaultPath, source)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Stored() {
			if err := s.sync.RunAppended(ctx, nil); err != nil {
				s.log.Warn("refresh after append failed", "error", err)
			}
			break
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Tool < results[j].Tool })
	return results, nil
}

// runOne triggers one tool, normalizes its output and appends the run.
func (s *Session) runOne(ctx context.Context, st runAppender, req invoke.Request, defaultPath, source string) ToolResult {
	out := s.manager.Trigger(ctx, req)
	res := ToolResult{Tool: req.Tool, Status: out.Status, TriggerID: out.TriggerID, Duration: out.Duration, Err: out.Err}
	if out.Status != invoke.StatusCompleted {
		return res
	}
	log := s.log.With("tool", req.Tool, "file", req.File, "trigger", out.TriggerID)

	decoded, err := finding.Decode(req.Tool, defaultPath, out.Stdout)
	if err != nil {
		log.Warn("tool output could not be parsed, no run stored", "code", errors.ErrParse, "error", err)
		res.Err = err
		return res
	}
	for _, te := range decoded.ToolErrors {
		log.Warn("tool reported error", "detail", te)
	}
	res.ToolErrors = decoded.ToolErrors

	run := &finding.Run{
		ProjectID: s.project.ID,
		ToolName:  req.Tool,
		DataType:  finding.DataTypeCodeAnalysis,
		Findings:  decoded.Findings,
		Source:    source,
	}
	var id int64
	err = s.manager.Commit(out, func() error {
		var err error
		id, err = st.Append(ctx, run)
		return err
	})
	if errors.Is(err, errors.ErrSuperseded) {
		res.Status = invoke.StatusSuperseded
		res.Err = err
		return res
	}
	if err != nil {
		log.Error("append failed", "error", err)
		res.Err = err
		return res
	}
	stats := finding.Summarize(run.Findings)
	res.RunID = id
	res.Findings = len(run.Findings)
	res.Stats = &stats
	log.Info("analysis stored", "run", id, "findings", res.Findings, "variant", decoded.Variant)
	return res
}

type runAppender interface {
	Append(ctx context.Context, run *finding.Run) (int64, error)
}
