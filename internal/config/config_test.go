package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRepoConfig(t *testing.T, root, body string) string {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0] != "semgrep" {
		t.Errorf("Tools = %v, want [semgrep]", cfg.Tools)
	}
	if cfg.RulesDir != "auto" {
		t.Errorf("RulesDir = %q, want auto", cfg.RulesDir)
	}
	if cfg.ProjectionMode != ProjectionHistory {
		t.Errorf("ProjectionMode = %q, want history", cfg.ProjectionMode)
	}
	if cfg.DiscoveryTimeout() != 5*time.Second {
		t.Errorf("DiscoveryTimeout() = %v, want 5s", cfg.DiscoveryTimeout())
	}
	if !cfg.AnalyzeOnSaveEnabled() {
		t.Error("AnalyzeOnSaveEnabled() = false, want true")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	body := `{"tools": ["bandit", "ruff"], "rules_dir": "p/python", "projection_mode": "latest",
		"discovery_timeout_seconds": 2, "analyze_on_save": false, "log_level": "debug",
		"tool_paths": {"ruff": "/opt/ruff"}}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0] != "bandit" || cfg.Tools[1] != "ruff" {
		t.Errorf("Tools = %v, want [bandit ruff]", cfg.Tools)
	}
	if cfg.RulesDir != "p/python" {
		t.Errorf("RulesDir = %q", cfg.RulesDir)
	}
	if cfg.ProjectionMode != ProjectionLatest {
		t.Errorf("ProjectionMode = %q, want latest", cfg.ProjectionMode)
	}
	if cfg.DiscoveryTimeout() != 2*time.Second {
		t.Errorf("DiscoveryTimeout() = %v, want 2s", cfg.DiscoveryTimeout())
	}
	if cfg.AnalyzeOnSaveEnabled() {
		t.Error("AnalyzeOnSaveEnabled() = true, want false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ToolPaths["ruff"] != "/opt/ruff" {
		t.Errorf("ToolPaths = %v", cfg.ToolPaths)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_InvalidProjectionMode(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"projection_mode": "newest"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error for unknown projection_mode")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	body := `{"disabled_tools": ["runs_clear", "analysis_scan"]}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "runs_clear" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "runs_clear")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"tools": ["semgrep", "bandit"], "rules_dir": "auto", "disabled_tools": ["runs_clear"],
		"styles": {"error": {"color": "#ff0000", "decoration": "underline wavy"}}}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	writeRepoConfig(t, repoRoot, `{"tools": ["ruff"], "rules_dir": "./rules", "disabled_tools": ["analysis_scan"],
		"styles": {"ERROR": {"color": "#cc0000"}}}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.RulesDir != "./rules" {
		t.Errorf("RulesDir = %q, want ./rules (repo override)", cfg.RulesDir)
	}
	// Repo replaces tool list
	if len(cfg.Tools) != 1 || cfg.Tools[0] != "ruff" {
		t.Errorf("Tools = %v, want [ruff]", cfg.Tools)
	}
	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	// Styles merged per field
	st := cfg.Styles["error"]
	if st.Color != "#cc0000" || st.Decoration != "underline wavy" {
		t.Errorf("Styles[error] = %+v", st)
	}
}

func TestLoadWithRepo_OnlyRepo(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeRepoConfig(t, repoRoot, `{"analyze_on_save": false}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.AnalyzeOnSaveEnabled() {
		t.Error("AnalyzeOnSaveEnabled() = true, want false from repo")
	}
	if cfg.RulesDir != "auto" {
		t.Errorf("RulesDir = %q, want auto (default)", cfg.RulesDir)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.ProjectionMode != ProjectionHistory {
		t.Errorf("ProjectionMode = %q, want history", cfg.ProjectionMode)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()
	writeRepoConfig(t, tmpDir, `{"projection_mode": "latest"}`)

	subdir := filepath.Join(tmpDir, "src", "pkg")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.ProjectionMode != ProjectionLatest {
		t.Errorf("ProjectionMode = %q, want latest", cfg.ProjectionMode)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{RulesDir: "auto", DBMaxOpenConns: 5}
	overlay := &Config{RulesDir: "p/ci"}

	result := Merge(base, overlay)

	if result.RulesDir != "p/ci" {
		t.Errorf("RulesDir = %q, want p/ci (overlay)", result.RulesDir)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
}

func TestMerge_AnalyzeOnSaveTriState(t *testing.T) {
	on, off := true, false

	if r := Merge(&Config{AnalyzeOnSave: &on}, &Config{}); !r.AnalyzeOnSaveEnabled() {
		t.Error("unset overlay should keep base true")
	}
	if r := Merge(&Config{AnalyzeOnSave: &on}, &Config{AnalyzeOnSave: &off}); r.AnalyzeOnSaveEnabled() {
		t.Error("explicit false overlay should win")
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{AllowUnsafePaths: false})
	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"runs_clear", "analysis_scan"}}
	overlay := &Config{DisabledTools: []string{"analysis_scan", " document_save "}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools length = %d, want 3 (merged, deduped)", len(result.DisabledTools))
	}
	has := make(map[string]bool)
	for _, s := range result.DisabledTools {
		has[s] = true
	}
	for _, want := range []string{"runs_clear", "analysis_scan", "document_save"} {
		if !has[want] {
			t.Errorf("DisabledTools missing %q", want)
		}
	}
}

func TestMerge_ToolPathsOverlayWins(t *testing.T) {
	base := &Config{ToolPaths: map[string]string{"semgrep": "/a/semgrep", "ruff": "/a/ruff"}}
	overlay := &Config{ToolPaths: map[string]string{"ruff": "/b/ruff"}}

	result := Merge(base, overlay)
	if result.ToolPaths["semgrep"] != "/a/semgrep" || result.ToolPaths["ruff"] != "/b/ruff" {
		t.Errorf("ToolPaths = %v", result.ToolPaths)
	}
}

func TestFindRepoConfig_InCurrentDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeRepoConfig(t, tmpDir, `{}`)

	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeRepoConfig(t, tmpDir, `{}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
