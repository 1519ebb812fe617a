package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	require.Equal(t, []string{"bandit", "eslint", "pylint", "ruff", "semgrep"}, Names())
}

func TestLookup(t *testing.T) {
	tool, ok := Lookup("semgrep")
	require.True(t, ok)
	require.Equal(t, "semgrep", tool.Executable)

	_, ok = Lookup("cppcheck")
	require.False(t, ok)
}

func TestArgs(t *testing.T) {
	tests := []struct {
		tool  string
		isDir bool
		opts  Options
		want  []string
	}{
		{"semgrep", false, Options{RulesDir: "/rules"},
			[]string{"--config", "/rules", "--json", "--no-git-ignore", "--metrics=off", "/repo/a.py"}},
		{"semgrep", true, Options{},
			[]string{"--config", "auto", "--json", "--no-git-ignore", "--metrics=off", "/repo/a.py"}},
		{"bandit", false, Options{}, []string{"-f", "json", "-q", "/repo/a.py"}},
		{"bandit", true, Options{}, []string{"-r", "-f", "json", "-q", "/repo/a.py"}},
		{"pylint", false, Options{}, []string{"--output-format=json", "--score=n", "/repo/a.py"}},
		{"eslint", false, Options{}, []string{"--format", "json", "--no-error-on-unmatched-pattern", "/repo/a.py"}},
		{"ruff", false, Options{}, []string{"check", "--output-format=json", "--no-fix", "/repo/a.py"}},
	}
	for _, tt := range tests {
		tool, ok := Lookup(tt.tool)
		require.True(t, ok, tt.tool)
		require.Equal(t, tt.want, tool.Args("/repo/a.py", tt.isDir, tt.opts), tt.tool)
	}
}

func TestApplies(t *testing.T) {
	tests := []struct {
		tool string
		path string
		want bool
	}{
		{"semgrep", "/repo/Main.java", true},
		{"semgrep", "/repo/Makefile", true},
		{"bandit", "/repo/a.py", true},
		{"bandit", "/repo/a.PY", true},
		{"bandit", "/repo/a.ts", false},
		{"ruff", "/repo/stubs.pyi", true},
		{"eslint", "/repo/src/app.tsx", true},
		{"eslint", "/repo/a.py", false},
	}
	for _, tt := range tests {
		tool, _ := Lookup(tt.tool)
		require.Equal(t, tt.want, tool.Applies(tt.path), "%s %s", tt.tool, tt.path)
	}
}
