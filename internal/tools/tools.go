package tools

import (
	"path/filepath"
	"sort"
	"strings"
)

// Options are the per-invocation settings that feed a tool's command line.
type Options struct {
	// RulesDir is the semgrep --config value.
	RulesDir string
}

// Tool describes one supported analysis tool.
type Tool struct {
	Name string
	// Executable is the binary name searched for during discovery.
	Executable string
	// Description is shown by `sift tools`.
	Description string
	// Extensions limits which files the tool analyzes. Empty means any file.
	Extensions []string
	args       func(target string, isDir bool, opts Options) []string
}

// Args builds the argument list (without the executable) that analyzes target
// and writes JSON to stdout.
func (t Tool) Args(target string, isDir bool, opts Options) []string {
	return t.args(target, isDir, opts)
}

// Applies reports whether the tool analyzes files with path's extension.
func (t Tool) Applies(path string) bool {
	if len(t.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range t.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

var pythonExts = []string{".py", ".pyi"}

var registry = map[string]Tool{
	"semgrep": {
		Name:        "semgrep",
		Executable:  "semgrep",
		Description: "pattern-based scanner (rules from rules_dir)",
		args: func(target string, _ bool, opts Options) []string {
			rules := opts.RulesDir
			if rules == "" {
				rules = "auto"
			}
			return []string{"--config", rules, "--json", "--no-git-ignore", "--metrics=off", target}
		},
	},
	"bandit": {
		Name:        "bandit",
		Executable:  "bandit",
		Description: "Python security linter",
		Extensions:  pythonExts,
		args: func(target string, isDir bool, _ Options) []string {
			if isDir {
				return []string{"-r", "-f", "json", "-q", target}
			}
			return []string{"-f", "json", "-q", target}
		},
	},
	"pylint": {
		Name:        "pylint",
		Executable:  "pylint",
		Description: "Python linter",
		Extensions:  pythonExts,
		args: func(target string, _ bool, _ Options) []string {
			return []string{"--output-format=json", "--score=n", target}
		},
	},
	"eslint": {
		Name:        "eslint",
		Executable:  "eslint",
		Description: "JavaScript/TypeScript linter",
		Extensions:  []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"},
		args: func(target string, _ bool, _ Options) []string {
			return []string{"--format", "json", "--no-error-on-unmatched-pattern", target}
		},
	},
	"ruff": {
		Name:        "ruff",
		Executable:  "ruff",
		Description: "fast Python linter",
		Extensions:  pythonExts,
		args: func(target string, _ bool, _ Options) []string {
			return []string{"check", "--output-format=json", "--no-fix", target}
		},
	},
}

// Lookup returns the named tool.
func Lookup(name string) (Tool, bool) {
	t, ok := registry[name]
	return t, ok
}

// Names returns all supported tool names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
