package invoke

import (
	"bytes"
	"context"
	"crypto/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/tools"
)

// Status is the outcome of one trigger.
type Status string

const (
	// StatusCompleted means the tool produced usable output.
	StatusCompleted Status = "completed"
	// StatusSuperseded means a newer trigger for the same slot replaced this one.
	// Its output, if any, was discarded.
	StatusSuperseded Status = "superseded"
	// StatusUnavailable means the executable could not be found or spawned.
	StatusUnavailable Status = "unavailable"
	// StatusFailed means a non-zero exit with empty stdout.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller's context ended.
	StatusCancelled Status = "cancelled"
)

// Request asks for one tool run.
type Request struct {
	Tool string
	// File is the absolute path the slot is keyed on.
	File string
	// Target is passed to the tool. Defaults to File.
	Target string
	IsDir  bool
	// Dir is the working directory, normally the project root.
	Dir string
}

// Outcome is the result of Trigger.
type Outcome struct {
	TriggerID  string
	Tool       string
	File       string
	Generation uint64
	Status     Status
	Stdout     []byte
	Stderr     string
	ExitCode   int
	Duration   time.Duration
	// Err is set for every status except completed.
	Err error
}

// Finder resolves a tool name to an executable.
type Finder interface {
	Find(ctx context.Context, name string) (tools.Installation, error)
}

type slotKey struct {
	tool string
	file string
}

// slot is the Running state of one key. done closes once the process has exited.
type slot struct {
	gen     uint64
	trigger string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs at most one process per (tool, file). A trigger for a busy slot
// kills the running process, waits for it to exit and then spawns the new one.
// Completions check the slot generation so stale output is never returned as
// completed.
type Manager struct {
	runner Runner
	finder Finder
	opts   tools.Options
	log    hclog.Logger

	mu    sync.Mutex
	gens  map[slotKey]uint64
	slots map[slotKey]*slot
}

// NewManager creates a Manager.
func NewManager(runner Runner, finder Finder, opts tools.Options, log hclog.Logger) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Manager{
		runner: runner,
		finder: finder,
		opts:   opts,
		log:    log.Named("invoke"),
		gens:   make(map[slotKey]uint64),
		slots:  make(map[slotKey]*slot),
	}
}

// Trigger runs req.Tool on req.File and blocks until the process finishes or is
// superseded. Success is exit code 0 or non-empty stdout.
func (m *Manager) Trigger(ctx context.Context, req Request) Outcome {
	key := slotKey{tool: req.Tool, file: filepath.Clean(req.File)}
	out := Outcome{TriggerID: newTriggerID(), Tool: req.Tool, File: key.file}

	tool, ok := tools.Lookup(req.Tool)
	if !ok {
		out.Status = StatusUnavailable
		out.Err = errors.NewInvalidRequest("unknown tool: " + req.Tool)
		return out
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.gens[key]++
	gen := m.gens[key]
	prev := m.slots[key]
	cur := &slot{gen: gen, trigger: out.TriggerID, started: time.Now(), cancel: cancel, done: make(chan struct{})}
	m.slots[key] = cur
	m.mu.Unlock()
	out.Generation = gen

	defer m.release(key, cur)

	log := m.log.With("tool", req.Tool, "file", key.file, "trigger", out.TriggerID, "gen", gen)

	// Running --trigger--> Running: kill the predecessor and wait for it to exit.
	if prev != nil {
		log.Debug("cancelling in-flight run", "prev_trigger", prev.trigger, "prev_gen", prev.gen)
		prev.cancel()
		select {
		case <-prev.done:
		case <-runCtx.Done():
		}
	}
	if !m.current(key, gen) {
		return m.superseded(out, log)
	}
	if ctx.Err() != nil {
		return cancelled(out)
	}

	inst, err := m.finder.Find(runCtx, req.Tool)
	if err != nil {
		if !m.current(key, gen) {
			return m.superseded(out, log)
		}
		if ctx.Err() != nil {
			return cancelled(out)
		}
		log.Warn("tool unavailable", "error", err)
		out.Status = StatusUnavailable
		out.Err = err
		return out
	}

	target := req.Target
	if target == "" {
		target = req.File
	}
	cmd := Command{Path: inst.Path, Args: tool.Args(target, req.IsDir, m.opts), Dir: req.Dir}

	log.Debug("spawning", "path", cmd.Path, "args", cmd.Args)
	start := time.Now()
	res, err := m.runner.Run(runCtx, cmd)
	out.Duration = time.Since(start)

	// Generation check: a newer trigger owns the slot, drop this output.
	if !m.current(key, gen) {
		return m.superseded(out, log)
	}
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(out)
		}
		log.Warn("spawn failed", "error", err)
		out.Status = StatusUnavailable
		out.Err = errors.NewToolUnavailable(req.Tool, err)
		return out
	}

	out.Stdout = res.Stdout
	out.Stderr = string(res.Stderr)
	out.ExitCode = res.ExitCode

	if res.ExitCode == 0 || len(bytes.TrimSpace(res.Stdout)) > 0 {
		out.Status = StatusCompleted
		log.Debug("run completed", "exit_code", res.ExitCode, "stdout_bytes", len(res.Stdout), "duration", out.Duration)
		return out
	}

	log.Warn("run failed", "exit_code", res.ExitCode, "stderr", truncate(out.Stderr, 500))
	out.Status = StatusFailed
	out.Err = errors.NewToolExecutionFailed(req.Tool, res.ExitCode, out.Stderr)
	return out
}

// Commit runs fn only while out is still the newest trigger of its slot, so a
// result superseded after Trigger returned is never stored. fn runs under the
// manager lock and must not call back into the Manager.
func (m *Manager) Commit(out Outcome, fn func() error) error {
	key := slotKey{tool: out.Tool, file: out.File}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != out.Generation {
		m.log.Debug("result discarded before commit, superseded by newer trigger",
			"tool", out.Tool, "file", out.File, "trigger", out.TriggerID, "gen", out.Generation)
		return errors.NewSuperseded(out.Tool, out.File)
	}
	return fn()
}

// SlotInfo describes one Running slot.
type SlotInfo struct {
	Tool       string    `json:"tool"`
	File       string    `json:"file"`
	TriggerID  string    `json:"trigger_id"`
	Generation uint64    `json:"generation"`
	Started    time.Time `json:"started"`
}

// Active lists Running slots ordered by file then tool.
func (m *Manager) Active() []SlotInfo {
	m.mu.Lock()
	out := make([]SlotInfo, 0, len(m.slots))
	for k, s := range m.slots {
		out = append(out, SlotInfo{Tool: k.tool, File: k.file, TriggerID: s.trigger, Generation: s.gen, Started: s.started})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// CancelAll kills every in-flight process.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.slots {
		m.gens[k]++
		s.cancel()
	}
}

func (m *Manager) current(key slotKey, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key] == gen
}

// release returns the slot to Idle if it still belongs to s, and signals waiters.
func (m *Manager) release(key slotKey, s *slot) {
	m.mu.Lock()
	if m.slots[key] == s {
		delete(m.slots, key)
	}
	m.mu.Unlock()
	close(s.done)
}

func (m *Manager) superseded(out Outcome, log hclog.Logger) Outcome {
	log.Debug("result discarded, superseded by newer trigger")
	out.Status = StatusSuperseded
	out.Stdout = nil
	out.Err = errors.NewSuperseded(out.Tool, out.File)
	return out
}

func cancelled(out Outcome) Outcome {
	out.Status = StatusCancelled
	out.Stdout = nil
	out.Err = errors.NewCancelled("analysis")
	return out
}

func newTriggerID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
