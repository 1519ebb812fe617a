package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
	"github.com/hpungsan/sift/internal/invoke"
	"github.com/hpungsan/sift/internal/present"
	"github.com/hpungsan/sift/internal/store"
	"github.com/hpungsan/sift/internal/tools"
)

type fakeFinder struct {
	missing map[string]bool
}

func (f fakeFinder) Find(_ context.Context, name string) (tools.Installation, error) {
	if f.missing[name] {
		return tools.Installation{}, errors.NewToolUnavailable(name, fmt.Errorf("not on PATH"))
	}
	return tools.Installation{Tool: name, Path: "/bin/" + name, Version: "1.0"}, nil
}

// fakeRunner answers per tool with a queue of outputs; the last one repeats.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string][]invoke.Result
	calls   []invoke.Command
}

func (r *fakeRunner) Run(_ context.Context, cmd invoke.Command) (invoke.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	tool := filepath.Base(cmd.Path)
	q := r.outputs[tool]
	if len(q) == 0 {
		return invoke.Result{}, nil
	}
	res := q[0]
	if len(q) > 1 {
		r.outputs[tool] = q[1:]
	}
	return res, nil
}

func stdout(s string) invoke.Result { return invoke.Result{Stdout: []byte(s)} }

const semgrepOut = `{"results":[{"check_id":"perf.loop","path":"src/app.ts",
 "start":{"line":10,"col":5},"end":{"line":10,"col":13},
 "extra":{"message":"slow loop","severity":"ERROR"}}],"errors":[]}`

type fixture struct {
	root    string
	project *config.Project
	runner  *fakeRunner
	finder  fakeFinder
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	p := &config.Project{ID: 7, Name: "demo", Root: root}
	require.NoError(t, config.WriteProject(root, p))
	st, err := store.Create(p.DatabasePath(), store.Options{})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	return &fixture{
		root:    root,
		project: p,
		runner:  &fakeRunner{outputs: map[string][]invoke.Result{}},
		finder:  fakeFinder{},
		cfg:     config.DefaultConfig(),
	}
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	fold := false
	s, err := Open(Options{
		Project:         f.project,
		Config:          f.cfg,
		Runner:          f.runner,
		Finder:          f.finder,
		CaseInsensitive: &fold,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Options{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Open(Options{Project: &config.Project{ID: 0, Root: t.TempDir()}})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAnalyzeFile_ScenarioEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut)}
	s := f.open(t)
	ctx := context.Background()

	doc := filepath.Join(f.root, "src", "app.ts")
	require.NoError(t, s.DocumentOpened(ctx, doc))

	results, err := s.AnalyzeFile(ctx, "src/app.ts", AnalyzeOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, invoke.StatusCompleted, results[0].Status)
	require.True(t, results[0].Stored())
	require.Equal(t, 1, results[0].Stats.Errors)

	require.Len(t, f.runner.calls, 1)
	require.Equal(t, f.root, f.runner.calls[0].Dir)
	require.Equal(t, doc, f.runner.calls[0].Args[len(f.runner.calls[0].Args)-1])

	view := s.Surface().View(doc)
	require.Len(t, view.Decorations[finding.SeverityError], 1)
	require.Equal(t, present.Range{
		Start: present.Position{Line: 9, Character: 4},
		End:   present.Position{Line: 9, Character: 11},
	}, view.Decorations[finding.SeverityError][0].Range)
	require.Equal(t, "perf.loop", view.Diagnostics[0].Code)
}

func TestAnalyzeFile_ParseErrorKeepsPreviousRun(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut), stdout("not json")}
	s := f.open(t)
	ctx := context.Background()
	st, err := s.Store()
	require.NoError(t, err)

	first, err := s.AnalyzeFile(ctx, "src/app.ts", AnalyzeOptions{})
	require.NoError(t, err)
	require.True(t, first[0].Stored())

	second, err := s.AnalyzeFile(ctx, "src/app.ts", AnalyzeOptions{})
	require.NoError(t, err, "parse failures are recovered")
	require.False(t, second[0].Stored())
	require.True(t, errors.Is(second[0].Err, errors.ErrParse))

	n, err := st.Count(ctx, f.project.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	latest, err := st.MostRecentRun(ctx, f.project.ID, "semgrep")
	require.NoError(t, err)
	require.Equal(t, first[0].RunID, latest.ID)
}

func TestAnalyzeFile_ToolSelection(t *testing.T) {
	f := newFixture(t)
	f.cfg.Tools = []string{"semgrep", "ruff", "eslint"}
	f.finder.missing = map[string]bool{"ruff": true}
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(`{"results":[]}`)}
	s := f.open(t)

	results, err := s.AnalyzeFile(context.Background(), "pkg/mod.py", AnalyzeOptions{Source: "manual"})
	require.NoError(t, err)
	require.Len(t, results, 2, "eslint does not apply to python files")

	require.Equal(t, "ruff", results[0].Tool)
	require.Equal(t, invoke.StatusUnavailable, results[0].Status)
	require.True(t, errors.Is(results[0].Err, errors.ErrToolUnavailable))

	require.Equal(t, "semgrep", results[1].Tool)
	require.True(t, results[1].Stored())
	require.Equal(t, 0, results[1].Findings)

	st, _ := s.Store()
	run, err := st.Get(context.Background(), results[1].RunID)
	require.NoError(t, err)
	require.Equal(t, "manual", run.Source)
}

func TestAnalyzeFile_UnknownTool(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	_, err := s.AnalyzeFile(context.Background(), "a.py", AnalyzeOptions{Tools: []string{"cppcheck"}})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = s.AnalyzeFile(context.Background(), "", AnalyzeOptions{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAnalyzeFile_FailedRunNotStored(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["semgrep"] = []invoke.Result{{ExitCode: 2, Stderr: []byte("bad config")}}
	s := f.open(t)

	results, err := s.AnalyzeFile(context.Background(), "a.py", AnalyzeOptions{})
	require.NoError(t, err)
	require.Equal(t, invoke.StatusFailed, results[0].Status)
	require.True(t, errors.Is(results[0].Err, errors.ErrToolExecutionFailed))
	require.Contains(t, results[0].Error(), "exit")
}

func TestScan_RecordsScanAll(t *testing.T) {
	f := newFixture(t)
	f.cfg.Tools = []string{"bandit"}
	f.runner.outputs["bandit"] = []invoke.Result{stdout(`{"results":[{"filename":"./app/x.py","line_number":3,
		"issue_severity":"HIGH","issue_text":"exec used","test_id":"B102"}],"errors":[]}`)}
	s := f.open(t)
	ctx := context.Background()

	results, err := s.Scan(ctx, AnalyzeOptions{})
	require.NoError(t, err)
	require.True(t, results[0].Stored())

	call := f.runner.calls[0]
	require.Contains(t, call.Args, "-r")
	require.Equal(t, f.root, call.Args[len(call.Args)-1])

	st, _ := s.Store()
	run, err := st.MostRecentRun(ctx, f.project.ID, "bandit")
	require.NoError(t, err)
	require.Equal(t, finding.SourceScanAll, run.Source)

	// The scan result projects onto an open document through the relative rule.
	doc := filepath.Join(f.root, "app", "x.py")
	require.NoError(t, s.DocumentActivated(ctx, doc))
	require.Len(t, s.Synchronizer().Set(doc).Diagnostics, 1)
}

func TestDocumentSaved(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut)}
	s := f.open(t)

	res, err := s.DocumentSaved(context.Background(), "src/app.ts")
	require.NoError(t, err)
	require.True(t, res.Analyzed)
	require.Len(t, res.Results, 1)
	require.True(t, s.Synchronizer().IsOpen(filepath.Join(f.root, "src", "app.ts")))
}

func TestDocumentSaved_AnalyzeOnSaveOff(t *testing.T) {
	f := newFixture(t)
	off := false
	f.cfg.AnalyzeOnSave = &off
	s := f.open(t)

	res, err := s.DocumentSaved(context.Background(), "src/app.ts")
	require.NoError(t, err)
	require.False(t, res.Analyzed)
	require.Empty(t, f.runner.calls)
}

func TestLatestMode_MostRecentWins(t *testing.T) {
	f := newFixture(t)
	f.cfg.ProjectionMode = config.ProjectionLatest
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut), stdout(`{"results":[]}`)}
	s := f.open(t)
	ctx := context.Background()
	doc := filepath.Join(f.root, "src", "app.ts")
	require.NoError(t, s.DocumentOpened(ctx, doc))

	_, err := s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
	require.NoError(t, err)
	require.False(t, s.Surface().View(doc).Empty())

	_, err = s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
	require.NoError(t, err)
	require.True(t, s.Surface().View(doc).Empty(), "zero-finding run is the most recent")

	st, _ := s.Store()
	runs, err := st.QueryRuns(ctx, f.project.ID, "semgrep")
	require.NoError(t, err)
	require.Len(t, runs, 2, "both runs are kept")
	require.Empty(t, runs[0].Findings)
}

const semgrepOutB = `{"results":[{"check_id":"style.var","path":"src/b.ts",
 "start":{"line":2,"col":1},"end":{"line":2,"col":4},
 "extra":{"message":"use const","severity":"WARNING"}}]}`

func TestLatestMode_OtherFileKeepsHighlights(t *testing.T) {
	f := newFixture(t)
	f.cfg.ProjectionMode = config.ProjectionLatest
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut), stdout(semgrepOutB)}
	s := f.open(t)
	ctx := context.Background()
	app := filepath.Join(f.root, "src", "app.ts")
	b := filepath.Join(f.root, "src", "b.ts")
	require.NoError(t, s.DocumentOpened(ctx, app))

	_, err := s.AnalyzeFile(ctx, app, AnalyzeOptions{})
	require.NoError(t, err)
	require.False(t, s.Surface().View(app).Empty())

	_, err = s.AnalyzeFile(ctx, b, AnalyzeOptions{})
	require.NoError(t, err)
	require.False(t, s.Surface().View(app).Empty(), "a run of b.ts does not replace app.ts results")

	require.NoError(t, s.DocumentOpened(ctx, b))
	require.Len(t, s.Synchronizer().Set(b).Diagnostics, 1)
	require.Len(t, s.Synchronizer().Set(app).Diagnostics, 1)
}

// gatedRunner holds its first call until cancelled, then reports output as if
// the process finished anyway. Later calls answer immediately.
type gatedRunner struct {
	started chan struct{}
	calls   atomic.Int32
	late    string
	latest  string
}

func (r *gatedRunner) Run(ctx context.Context, _ invoke.Command) (invoke.Result, error) {
	if r.calls.Add(1) == 1 {
		close(r.started)
		<-ctx.Done()
		return stdout(r.late), nil
	}
	return stdout(r.latest), nil
}

func TestAnalyzeFile_RetriggerStoresOnlySecondRun(t *testing.T) {
	f := newFixture(t)
	r := &gatedRunner{
		started: make(chan struct{}),
		late:    semgrepOut,
		latest: `{"results":[{"check_id":"perf.loop","path":"src/app.ts",
 "start":{"line":3,"col":1},"end":{"line":3,"col":2},
 "extra":{"message":"second","severity":"INFO"}}]}`,
	}
	fold := false
	s, err := Open(Options{Project: f.project, Config: f.cfg, Runner: r, Finder: f.finder, CaseInsensitive: &fold})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	doc := filepath.Join(f.root, "src", "app.ts")

	first := make(chan []ToolResult, 1)
	go func() {
		res, _ := s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
		first <- res
	}()
	<-r.started

	second, err := s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
	require.NoError(t, err)
	firstRes := <-first

	require.Len(t, firstRes, 1)
	require.Equal(t, invoke.StatusSuperseded, firstRes[0].Status)
	require.False(t, firstRes[0].Stored())
	require.Len(t, second, 1)
	require.Equal(t, invoke.StatusCompleted, second[0].Status)

	st, err := s.Store()
	require.NoError(t, err)
	runs, err := st.QueryRuns(ctx, f.project.ID, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, second[0].RunID, runs[0].ID)
	require.Len(t, runs[0].Findings, 1)
	require.Equal(t, "second", runs[0].Findings[0].Message)
}

func TestDocumentClosed_DropsSurfaceState(t *testing.T) {
	f := newFixture(t)
	f.runner.outputs["semgrep"] = []invoke.Result{stdout(semgrepOut)}
	s := f.open(t)
	ctx := context.Background()
	doc := filepath.Join(f.root, "src", "app.ts")

	require.NoError(t, s.DocumentOpened(ctx, doc))
	_, err := s.AnalyzeFile(ctx, doc, AnalyzeOptions{})
	require.NoError(t, err)
	require.Contains(t, s.Surface().Documents(), doc)

	require.NoError(t, s.DocumentClosed(doc))
	require.NotContains(t, s.Surface().Documents(), doc)
	require.True(t, s.Surface().View(doc).Empty())
}

func TestDegraded_StoreUnavailable(t *testing.T) {
	root := t.TempDir()
	p := &config.Project{ID: 3, Root: root}
	s, err := Open(Options{Project: p, Runner: &fakeRunner{}, Finder: fakeFinder{}})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, errors.Is(s.Degraded(), errors.ErrStoreUnavailable))
	_, err = s.Store()
	require.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	require.Nil(t, s.Projector())

	_, err = s.AnalyzeFile(context.Background(), "a.py", AnalyzeOptions{})
	require.True(t, errors.Is(err, errors.ErrStoreUnavailable))

	doc := filepath.Join(root, "a.py")
	require.NoError(t, s.Surface().SetDiagnostics(doc, []present.Diagnostic{{Message: "stale"}}))
	require.NoError(t, s.DocumentOpened(context.Background(), doc))
	require.True(t, s.Surface().View(doc).Empty())

	res, err := s.DocumentSaved(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, res.Analyzed)
}

func TestDegraded_CorruptStore(t *testing.T) {
	root := t.TempDir()
	p := &config.Project{ID: 3, Root: root}
	require.NoError(t, os.MkdirAll(filepath.Dir(p.DatabasePath()), 0o700))
	require.NoError(t, os.WriteFile(p.DatabasePath(), []byte(strings.Repeat("garbage", 200)), 0o600))

	s, err := Open(Options{Project: p})
	require.NoError(t, err)
	defer s.Close()
	require.True(t, errors.Is(s.Degraded(), errors.ErrStoreUnavailable))
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestAbs(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	require.Equal(t, filepath.Join(f.root, "a", "b.py"), s.Abs("a/b.py"))
	require.Equal(t, "/x/y.py", s.Abs("/x/../x/y.py"))
	require.Empty(t, s.Abs(""))
}

func TestEnabledTools(t *testing.T) {
	f := newFixture(t)
	f.cfg.Tools = []string{"ruff", "bogus", "semgrep", "ruff"}
	s := f.open(t)
	require.Equal(t, []string{"ruff", "semgrep"}, s.EnabledTools())
}
