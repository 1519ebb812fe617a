package ops

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/present"
	"github.com/hpungsan/sift/internal/session"
	"github.com/hpungsan/sift/internal/store"
	"github.com/hpungsan/sift/internal/tools"
)

type okFinder struct{}

func (okFinder) Find(_ context.Context, name string) (tools.Installation, error) {
	return tools.Installation{Tool: name, Path: "/bin/" + name, Version: "1"}, nil
}

// queueRunner pops one canned stdout per tool call; the last one repeats.
type queueRunner struct {
	mu  sync.Mutex
	out map[string][]string
}

func (r *queueRunner) Run(_ context.Context, cmd invoke.Command) (invoke.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool := filepath.Base(cmd.Path)
	q := r.out[tool]
	if len(q) == 0 {
		return invoke.Result{}, nil
	}
	s := q[0]
	if len(q) > 1 {
		r.out[tool] = q[1:]
	}
	return invoke.Result{Stdout: []byte(s)}, nil
}

const semgrepApp = `{"results":[{"check_id":"perf.loop","path":"src/app.ts",
 "start":{"line":10,"col":5},"end":{"line":10,"col":13},
 "extra":{"message":"slow loop","severity":"ERROR"}}]}`

const semgrepEmpty = `{"results":[]}`

func newTestSession(t *testing.T, cfg *config.Config, outputs map[string][]string) *session.Session {
	t.Helper()
	root := t.TempDir()
	p := &config.Project{ID: 1, Name: "demo", Root: root}
	st, err := store.Create(p.DatabasePath(), store.Options{})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "app.ts"), []byte("let x = 1;\n"), 0o644))

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if outputs == nil {
		outputs = map[string][]string{}
	}
	fold := false
	s, err := session.Open(session.Options{
		Project:         p,
		Config:          cfg,
		Runner:          &queueRunner{out: outputs},
		Finder:          okFinder{},
		CaseInsensitive: &fold,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAnalyze(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp}})
	out, err := Analyze(context.Background(), s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Project().Root, "src", "app.ts"), out.Target)
	require.Equal(t, 1, out.Stored)
	require.Equal(t, 1, out.Totals.Errors)
	require.Empty(t, out.Errors)
}

func TestAnalyze_Validation(t *testing.T) {
	s := newTestSession(t, nil, nil)
	ctx := context.Background()

	_, err := Analyze(ctx, s, AnalyzeInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Analyze(ctx, s, AnalyzeInput{File: "src/missing.ts"})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	_, err = Analyze(ctx, s, AnalyzeInput{File: "src"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAnalyze_ParseErrorReported(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {"not json"}})
	out, err := Analyze(context.Background(), s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Stored)
	require.Len(t, out.Errors, 1)
	require.Equal(t, string(errors.ErrParse), out.Errors[0].Code)
}

func TestScan(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp}})
	out, err := Scan(context.Background(), s, ScanInput{})
	require.NoError(t, err)
	require.Equal(t, s.Project().Root, out.Target)
	require.Equal(t, 1, out.Stored)

	latest, err := Latest(context.Background(), s, LatestInput{Tool: "semgrep"})
	require.NoError(t, err)
	require.Equal(t, finding.SourceScanAll, latest.Items[0].Source)
}

func TestListRuns_Pagination(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp, semgrepEmpty, semgrepApp}})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
		require.NoError(t, err)
	}

	out, err := ListRuns(ctx, s, ListInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.Equal(t, Pagination{Limit: 2, Offset: 0, HasMore: true, Total: 3}, out.Pagination)
	require.Equal(t, "timestamp_desc", out.Sort)
	require.Greater(t, out.Items[0].ID, out.Items[1].ID)

	out, err = ListRuns(ctx, s, ListInput{Limit: 500, Offset: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Equal(t, MaxListLimit, out.Pagination.Limit)
	require.False(t, out.Pagination.HasMore)

	out, err = ListRuns(ctx, s, ListInput{Tool: "bandit"})
	require.NoError(t, err)
	require.NotNil(t, out.Items)
	require.Empty(t, out.Items)
}

func TestLatestAndGetRun(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp, semgrepEmpty}})
	ctx := context.Background()

	empty, err := Latest(ctx, s, LatestInput{})
	require.NoError(t, err)
	require.Empty(t, empty.Items)

	first, err := Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)
	_, err = Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)

	latest, err := Latest(ctx, s, LatestInput{IncludeFindings: true})
	require.NoError(t, err)
	require.Len(t, latest.Items, 1)
	require.Equal(t, 0, latest.Items[0].Stats.Total, "most recent run has zero findings")
	require.NotNil(t, latest.Items[0].Findings)

	run, err := GetRun(ctx, s, GetRunInput{ID: first.Results[0].RunID})
	require.NoError(t, err)
	require.Len(t, run.Findings, 1)

	_, err = GetRun(ctx, s, GetRunInput{ID: 999})
	require.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = GetRun(ctx, s, GetRunInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestHighlights(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp}})
	ctx := context.Background()
	_, err := Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)

	out, err := Highlights(ctx, s, HighlightsInput{Document: "src/app.ts"})
	require.NoError(t, err)
	require.Equal(t, config.ProjectionHistory, out.Mode)
	require.Len(t, out.Highlights, 1)
	h := out.Highlights[0]
	require.Equal(t, "relative", h.Match)
	require.Equal(t, present.Range{
		Start: present.Position{Line: 9, Character: 4},
		End:   present.Position{Line: 9, Character: 11},
	}, h.Range)
	require.Equal(t, "semgrep", h.Tool)

	_, err = Highlights(ctx, s, HighlightsInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestHighlights_Ambiguous(t *testing.T) {
	out := `{"results":[{"check_id":"x","path":"util.py","start":{"line":1,"col":1},"end":{"line":1,"col":2},"extra":{"message":"m"}}]}`
	s := newTestSession(t, nil, map[string][]string{"semgrep": {out}})
	ctx := context.Background()
	_, err := Scan(ctx, s, ScanInput{})
	require.NoError(t, err)

	res, err := Highlights(ctx, s, HighlightsInput{
		Document:      "a/util.py",
		OpenDocuments: []string{"b/util.py"},
	})
	require.NoError(t, err)
	require.Empty(t, res.Highlights, "util.py names both open documents")
	require.Len(t, res.Ambiguous, 1)
	require.Equal(t, "util.py", res.Ambiguous[0].Path)

	res, err = Highlights(ctx, s, HighlightsInput{Document: "a/util.py", OpenDocuments: []string{}})
	require.NoError(t, err)
	require.Len(t, res.Highlights, 1)
	require.Equal(t, "suffix", res.Highlights[0].Match)
}

func TestHighlights_Degraded(t *testing.T) {
	p := &config.Project{ID: 1, Root: t.TempDir()}
	s, err := session.Open(session.Options{Project: p})
	require.NoError(t, err)
	defer s.Close()

	out, err := Highlights(context.Background(), s, HighlightsInput{Document: "a.py"})
	require.NoError(t, err)
	require.Empty(t, out.Highlights)
	require.Contains(t, out.Degraded, "store unavailable")

	_, err = ListRuns(context.Background(), s, ListInput{})
	require.True(t, errors.Is(err, errors.ErrStoreUnavailable))
}

func TestDecorations(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp}})
	ctx := context.Background()
	require.NoError(t, s.DocumentOpened(ctx, "src/app.ts"))
	_, err := Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)

	out, err := Decorations(s, DecorationsInput{Document: "src/app.ts"})
	require.NoError(t, err)
	require.True(t, out.Open)
	require.Len(t, out.Decorations[finding.SeverityError], 1)
	require.Len(t, out.Diagnostics, 1)

	closed, err := Decorations(s, DecorationsInput{Document: "src/other.ts"})
	require.NoError(t, err)
	require.False(t, closed.Open)
	require.Empty(t, closed.Diagnostics)
}

func TestClear(t *testing.T) {
	s := newTestSession(t, nil, map[string][]string{"semgrep": {semgrepApp}})
	ctx := context.Background()
	require.NoError(t, s.DocumentOpened(ctx, "src/app.ts"))
	_, err := Analyze(ctx, s, AnalyzeInput{File: "src/app.ts"})
	require.NoError(t, err)

	_, err = Clear(ctx, s, ClearInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	out, err := Clear(ctx, s, ClearInput{Confirm: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), out.Deleted)
	require.Equal(t, "Deleted 1 run", out.Message)

	view := s.Surface().View(s.Abs("src/app.ts"))
	require.True(t, view.Empty(), "stale decorations are cleared")
	require.True(t, s.Synchronizer().IsOpen(s.Abs("src/app.ts")), "documents stay open")

	out, err = Clear(ctx, s, ClearInput{Confirm: true})
	require.NoError(t, err)
	require.Equal(t, "No runs to delete", out.Message)
}

func TestTools(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ToolPaths = map[string]string{"semgrep": "/definitely/not/here/semgrep"}
	s := newTestSession(t, cfg, nil)

	out, err := Tools(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, out.Tools, len(tools.Names()))
	for _, info := range out.Tools {
		require.Equal(t, info.Name == "semgrep", info.Enabled, info.Name)
	}
	require.Empty(t, out.Active)
}
