package mcp

import "github.com/mark3labs/mcp-go/mcp"

var analysisFileToolDef = mcp.NewTool("analysis_file",
	mcp.WithDescription("Run analysis tools on one file, store the results as new runs and refresh open documents."),
	mcp.WithString("file", mcp.Required(), mcp.Description("File to analyze; relative paths resolve against the project root")),
	mcp.WithArray("tools", mcp.WithStringItems(), mcp.Description("Tools to run (default: configured tools)")),
	mcp.WithString("source", mcp.Description("Free-form label recorded on stored runs")),
)

var analysisScanToolDef = mcp.NewTool("analysis_scan",
	mcp.WithDescription("Run analysis tools over the whole project and store the results."),
	mcp.WithArray("tools", mcp.WithStringItems(), mcp.Description("Tools to run (default: configured tools)")),
)

var runsListToolDef = mcp.NewTool("runs_list",
	mcp.WithDescription("List stored analysis runs, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("tool", mcp.Description("Only runs of this tool")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Rows to skip")),
)

var runsLatestToolDef = mcp.NewTool("runs_latest",
	mcp.WithDescription("Most recent run per tool, or of one tool."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("tool", mcp.Description("Only this tool")),
	mcp.WithBoolean("include_findings", mcp.Description("Include the findings of each run (default false)")),
)

var runsGetToolDef = mcp.NewTool("runs_get",
	mcp.WithDescription("One stored run with its findings."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Run id")),
)

var runsExportToolDef = mcp.NewTool("runs_export",
	mcp.WithDescription("Export stored runs to a JSONL file."),
	mcp.WithString("path", mcp.Description("Output .jsonl path (default ~/.sift/exports/<project>-<time>.jsonl)")),
	mcp.WithString("tool", mcp.Description("Only runs of this tool")),
)

var runsImportToolDef = mcp.NewTool("runs_import",
	mcp.WithDescription("Append the runs of a JSONL export file as new runs."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Export file to read")),
	mcp.WithString("mode", mcp.Enum("atomic", "skip"), mcp.Description("atomic (default) imports nothing if a line is bad; skip reports and skips bad lines")),
)

var highlightsGetToolDef = mcp.NewTool("highlights_get",
	mcp.WithDescription("Project stored findings onto a document."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
	mcp.WithArray("open_documents", mcp.WithStringItems(), mcp.Description("Other open documents used to detect ambiguous paths (default: tracked documents)")),
)

var highlightsDecorationsToolDef = mcp.NewTool("highlights_decorations",
	mcp.WithDescription("Decorations and diagnostics currently drawn for a document."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
)

var highlightsRefreshToolDef = mcp.NewTool("highlights_refresh",
	mcp.WithDescription("Recompute decorations for every open document."),
)

var documentOpenToolDef = mcp.NewTool("document_open",
	mcp.WithDescription("Start tracking a document and return its decorations."),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
)

var documentActivateToolDef = mcp.NewTool("document_activate",
	mcp.WithDescription("Mark a document as the active editor and return its decorations."),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
)

var documentSaveToolDef = mcp.NewTool("document_save",
	mcp.WithDescription("Signal a save: refresh the document and, if analyze_on_save is on, analyze it."),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
)

var documentCloseToolDef = mcp.NewTool("document_close",
	mcp.WithDescription("Stop tracking a document and clear its decorations."),
	mcp.WithString("document", mcp.Required(), mcp.Description("Document path")),
)

var toolsStatusToolDef = mcp.NewTool("tools_status",
	mcp.WithDescription("Discovery status of each analysis tool and the analyses in flight."),
	mcp.WithReadOnlyHintAnnotation(true),
)
