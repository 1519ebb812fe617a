package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/sift/internal/errors"
)

// DefaultProbeTimeout bounds each `--version` probe.
const DefaultProbeTimeout = 5 * time.Second

// Installation is a discovered, verified executable.
type Installation struct {
	Tool    string `json:"tool"`
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Prober runs `<exe> --version` and returns its first output line.
type Prober func(ctx context.Context, exe string) (string, error)

// DiscovererOptions configures a Discoverer.
type DiscovererOptions struct {
	// Paths pins executables per tool name.
	Paths   map[string]string
	Timeout time.Duration
	Logger  hclog.Logger

	// Test hooks. Nil uses the real implementations.
	LookPath func(file string) (string, error)
	Probe    Prober
	HomeDir  func() (string, error)
}

// Discoverer locates tool executables. Successful lookups are cached;
// concurrent lookups of the same tool share one probe.
type Discoverer struct {
	paths    map[string]string
	timeout  time.Duration
	log      hclog.Logger
	lookPath func(string) (string, error)
	probe    Prober
	homeDir  func() (string, error)

	group singleflight.Group
	mu    sync.RWMutex
	found map[string]Installation
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(opts DiscovererOptions) *Discoverer {
	d := &Discoverer{
		paths:    opts.Paths,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		lookPath: opts.LookPath,
		probe:    opts.Probe,
		homeDir:  opts.HomeDir,
		found:    make(map[string]Installation),
	}
	if d.timeout <= 0 {
		d.timeout = DefaultProbeTimeout
	}
	if d.log == nil {
		d.log = hclog.NewNullLogger()
	}
	d.log = d.log.Named("discover")
	if d.lookPath == nil {
		d.lookPath = exec.LookPath
	}
	if d.probe == nil {
		d.probe = probeVersion
	}
	if d.homeDir == nil {
		d.homeDir = os.UserHomeDir
	}
	return d
}

// Find locates and verifies the named tool. It fails with TOOL_UNAVAILABLE when no
// candidate answers `--version` within the timeout.
func (d *Discoverer) Find(ctx context.Context, name string) (Installation, error) {
	tool, ok := Lookup(name)
	if !ok {
		return Installation{}, errors.NewInvalidRequest(fmt.Sprintf("unknown tool: %s", name))
	}

	d.mu.RLock()
	inst, ok := d.found[name]
	d.mu.RUnlock()
	if ok {
		return inst, nil
	}

	// The shared probe must outlive any one caller; each probe is bounded by d.timeout.
	ch := d.group.DoChan(name, func() (any, error) {
		d.mu.RLock()
		inst, ok := d.found[name]
		d.mu.RUnlock()
		if ok {
			return inst, nil
		}
		inst, err := d.discover(context.WithoutCancel(ctx), tool)
		if err != nil {
			return Installation{}, err
		}
		d.mu.Lock()
		d.found[name] = inst
		d.mu.Unlock()
		return inst, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Installation{}, res.Err
		}
		return res.Val.(Installation), nil
	case <-ctx.Done():
		return Installation{}, errors.NewCancelled("discovery of " + name)
	}
}

// Status reports every known tool using find to locate each one.
func Status(ctx context.Context, find func(ctx context.Context, name string) (Installation, error)) []ToolStatus {
	names := Names()
	out := make([]ToolStatus, 0, len(names))
	for _, name := range names {
		tool, _ := Lookup(name)
		st := ToolStatus{Name: name, Description: tool.Description}
		inst, err := find(ctx, name)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Available = true
			st.Path = inst.Path
			st.Version = inst.Version
		}
		out = append(out, st)
	}
	return out
}

// ToolStatus is one row of Status.
type ToolStatus struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (d *Discoverer) discover(ctx context.Context, tool Tool) (Installation, error) {
	candidates := d.candidates(tool)
	var lastErr error
	for _, exe := range candidates {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		version, err := d.probe(pctx, exe)
		cancel()
		if err != nil {
			d.log.Trace("candidate rejected", "tool", tool.Name, "path", exe, "error", err)
			lastErr = err
			continue
		}
		d.log.Debug("tool found", "tool", tool.Name, "path", exe, "version", version)
		return Installation{Tool: tool.Name, Path: exe, Version: version}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s not found on PATH or in Python script directories", tool.Executable)
	}
	d.log.Warn("tool unavailable", "tool", tool.Name, "candidates", len(candidates), "error", lastErr)
	return Installation{}, errors.NewToolUnavailable(tool.Name, lastErr)
}

// candidates lists executables to probe, in order: the configured path, PATH,
// the python3 interpreter's directory, then user script directories.
func (d *Discoverer) candidates(tool Tool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" {
			return
		}
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	if p := d.paths[tool.Name]; p != "" {
		add(p)
	}
	if p, err := d.lookPath(tool.Executable); err == nil {
		add(p)
	}

	exe := tool.Executable
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	for _, dir := range d.scriptDirs() {
		p := filepath.Join(dir, exe)
		if fileExists(p) {
			add(p)
		}
	}
	return out
}

func (d *Discoverer) scriptDirs() []string {
	var dirs []string
	for _, py := range []string{"python3", "python"} {
		if p, err := d.lookPath(py); err == nil {
			dirs = append(dirs, filepath.Dir(p))
			break
		}
	}
	home, err := d.homeDir()
	if err != nil || home == "" {
		return dirs
	}
	dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	switch runtime.GOOS {
	case "darwin":
		if matches, err := filepath.Glob(filepath.Join(home, "Library", "Python", "*", "bin")); err == nil {
			dirs = append(dirs, matches...)
		}
	case "windows":
		if matches, err := filepath.Glob(filepath.Join(home, "AppData", "Roaming", "Python", "*", "Scripts")); err == nil {
			dirs = append(dirs, matches...)
		}
	}
	return dirs
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func probeVersion(ctx context.Context, exe string) (string, error) {
	cmd := exec.CommandContext(ctx, exe, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("version check timed out: %w", ctx.Err())
		}
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out.String()), "\n")
	return strings.TrimSpace(line), nil
}
