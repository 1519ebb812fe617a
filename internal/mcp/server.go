package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/sift/internal/session"
)

// KnownTypes lists all valid tool group names.
var KnownTypes = []string{"analysis", "runs", "highlights", "document", "tools"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"analysis_file": {
		def:     analysisFileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalyzeFile },
	},
	"analysis_scan": {
		def:     analysisScanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScan },
	},
	"runs_list": {
		def:     runsListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListRuns },
	},
	"runs_latest": {
		def:     runsLatestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLatest },
	},
	"runs_get": {
		def:     runsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetRun },
	},
	"runs_export": {
		def:     runsExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"runs_import": {
		def:     runsImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"highlights_get": {
		def:     highlightsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHighlights },
	},
	"highlights_decorations": {
		def:     highlightsDecorationsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDecorations },
	},
	"highlights_refresh": {
		def:     highlightsRefreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRefresh },
	},
	"document_open": {
		def:     documentOpenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentOpen },
	},
	"document_activate": {
		def:     documentActivateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentActivate },
	},
	"document_save": {
		def:     documentSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentSave },
	},
	"document_close": {
		def:     documentCloseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDocumentClose },
	},
	"tools_status": {
		def:     toolsStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToolsStatus },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}
	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the group name from a tool name ("runs_list" → "runs").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given groups.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// enabledTools returns the registry names left after cfg's disabled tools and groups.
func enabledTools(s *session.Session) []string {
	cfg := s.Config()
	disabled := make(map[string]bool)
	for _, name := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[name] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		if !disabled[name] {
			names = append(names, name)
		}
	}
	return names
}

// NewServer creates an MCP server bound to an open session.
// Tools listed in disabled_tools or belonging to disabled_types are not registered.
func NewServer(s *session.Session, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"sift",
		version,
		server.WithToolCapabilities(true),
	)
	h := NewHandlers(s)
	for _, name := range enabledTools(s) {
		entry := toolRegistry[name]
		srv.AddTool(entry.def, entry.handler(h))
	}
	return srv
}

// Run serves the session over stdio until the client disconnects.
func Run(s *session.Session, version string) error {
	return server.ServeStdio(NewServer(s, version))
}
