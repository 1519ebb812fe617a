package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Projection modes.
const (
	ProjectionHistory = "history"
	ProjectionLatest  = "latest"
)

// DirName is the per-user and per-repo configuration directory name.
const DirName = ".sift"

// Config holds application configuration.
type Config struct {
	// Tools lists the analysis tools run on save and by scan, in order.
	// A repo config replaces the global list rather than extending it.
	Tools []string `json:"tools,omitempty"`

	// RulesDir is passed to semgrep as --config. "auto" uses the registry defaults.
	RulesDir string `json:"rules_dir,omitempty"`

	// ToolPaths pins the executable for a tool and skips discovery for it.
	ToolPaths map[string]string `json:"tool_paths,omitempty"`

	// ProjectionMode selects which runs feed highlights: "history" projects every
	// stored run, "latest" only the most recent run per tool.
	ProjectionMode string `json:"projection_mode,omitempty"`

	// DiscoveryTimeoutSeconds bounds each `<tool> --version` probe.
	DiscoveryTimeoutSeconds int `json:"discovery_timeout_seconds,omitempty"`

	// AnalyzeOnSave triggers analysis when the editor reports a save. Defaults to true.
	AnalyzeOnSave *bool `json:"analyze_on_save,omitempty"`

	// LogLevel is the hclog level name. SIFT_LOG_LEVEL overrides it.
	LogLevel string `json:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.sift/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of MCP tool groups to disable entirely.
	// Known types: "analysis", "runs", "document". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// Styles overrides the rendering style per severity (error, warning, info, hint).
	Styles map[string]Style `json:"styles,omitempty"`
}

// Style is a per-severity rendering override. Empty fields keep the default.
type Style struct {
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Decoration string `json:"decoration,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	on := true
	return &Config{
		Tools:                   []string{"semgrep"},
		RulesDir:                "auto",
		ProjectionMode:          ProjectionHistory,
		DiscoveryTimeoutSeconds: 5,
		AnalyzeOnSave:           &on,
	}
}

// DiscoveryTimeout returns the tool probe timeout.
func (c *Config) DiscoveryTimeout() time.Duration {
	if c.DiscoveryTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.DiscoveryTimeoutSeconds) * time.Second
}

// AnalyzeOnSaveEnabled reports the effective analyze_on_save value.
func (c *Config) AnalyzeOnSaveEnabled() bool {
	return c.AnalyzeOnSave == nil || *c.AnalyzeOnSave
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.ProjectionMode {
	case "", ProjectionHistory, ProjectionLatest:
	default:
		return fmt.Errorf("projection_mode must be %q or %q, got %q", ProjectionHistory, ProjectionLatest, c.ProjectionMode)
	}
	if c.DiscoveryTimeoutSeconds < 0 {
		return fmt.Errorf("discovery_timeout_seconds must not be negative")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sift.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.sift) and repo (.sift) directories.
// Repo config is found by walking upward from startDir to find the nearest .sift/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .sift/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	return findUpward(startDir, "config.json")
}

func findUpward(startDir, name string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		p := filepath.Join(dir, DirName, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.RulesDir = firstString(overlay.RulesDir, base.RulesDir)
	result.ProjectionMode = firstString(overlay.ProjectionMode, base.ProjectionMode)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.DiscoveryTimeoutSeconds = firstInt(overlay.DiscoveryTimeoutSeconds, base.DiscoveryTimeoutSeconds)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Tri-state: explicit overlay value wins, including false
	result.AnalyzeOnSave = base.AnalyzeOnSave
	if overlay.AnalyzeOnSave != nil {
		v := *overlay.AnalyzeOnSave
		result.AnalyzeOnSave = &v
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Tools: overlay replaces
	result.Tools = mergeStringSlice(nil, base.Tools)
	if len(overlay.Tools) > 0 {
		result.Tools = mergeStringSlice(nil, overlay.Tools)
	}

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	// Maps: overlay keys win
	result.ToolPaths = mergeMap(base.ToolPaths, overlay.ToolPaths)
	result.Styles = mergeStyles(base.Styles, overlay.Styles)

	return result
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func mergeMap(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// mergeStyles merges per field so a repo can override only the color of one severity.
func mergeStyles(a, b map[string]Style) map[string]Style {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]Style, len(a)+len(b))
	for k, v := range a {
		out[strings.ToLower(k)] = v
	}
	for k, v := range b {
		k = strings.ToLower(k)
		cur := out[k]
		cur.Color = firstString(v.Color, cur.Color)
		cur.Background = firstString(v.Background, cur.Background)
		cur.Decoration = firstString(v.Decoration, cur.Decoration)
		out[k] = cur
	}
	return out
}
