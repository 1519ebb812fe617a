package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/ops"
	"github.com/hpungsan/sift/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	s *session.Session
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(s *session.Session) *Handlers {
	return &Handlers{s: s}
}

// Request types for each tool

// AnalyzeFileRequest represents the arguments for analysis_file.
type AnalyzeFileRequest struct {
	File   string   `json:"file"`
	Tools  []string `json:"tools,omitempty"`
	Source string   `json:"source,omitempty"`
}

// ScanRequest represents the arguments for analysis_scan.
type ScanRequest struct {
	Tools []string `json:"tools,omitempty"`
}

// ListRequest represents the arguments for runs_list.
type ListRequest struct {
	Tool   string `json:"tool,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// LatestRequest represents the arguments for runs_latest.
type LatestRequest struct {
	Tool            string `json:"tool,omitempty"`
	IncludeFindings bool   `json:"include_findings,omitempty"`
}

// GetRunRequest represents the arguments for runs_get.
type GetRunRequest struct {
	ID int64 `json:"id"`
}

// ExportRequest represents the arguments for runs_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
	Tool string `json:"tool,omitempty"`
}

// ImportRequest represents the arguments for runs_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// HighlightsRequest represents the arguments for highlights_get.
type HighlightsRequest struct {
	Document      string   `json:"document"`
	OpenDocuments []string `json:"open_documents,omitempty"`
}

// DocumentRequest represents the arguments of the document_* and highlights_decorations tools.
type DocumentRequest struct {
	Document string `json:"document"`
}

// SaveResponse is the result of document_save.
type SaveResponse struct {
	*session.SaveResult
	View *ops.DecorationsOutput `json:"view"`
}

// Handler implementations

// HandleAnalyzeFile handles the analysis_file tool call.
func (h *Handlers) HandleAnalyzeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeFileRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Analyze(ctx, h.s, ops.AnalyzeInput{File: input.File, Tools: input.Tools, Source: input.Source})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleScan handles the analysis_scan tool call.
func (h *Handlers) HandleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScanRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Scan(ctx, h.s, ops.ScanInput{Tools: input.Tools})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListRuns handles the runs_list tool call.
func (h *Handlers) HandleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ListRuns(ctx, h.s, ops.ListInput{Tool: input.Tool, Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLatest handles the runs_latest tool call.
func (h *Handlers) HandleLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LatestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Latest(ctx, h.s, ops.LatestInput{Tool: input.Tool, IncludeFindings: input.IncludeFindings})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGetRun handles the runs_get tool call.
func (h *Handlers) HandleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.GetRun(ctx, h.s, ops.GetRunInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the runs_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Export(ctx, h.s, ops.ExportInput{Path: input.Path, Tool: input.Tool})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the runs_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Import(ctx, h.s, ops.ImportInput{Path: input.Path, Mode: ops.ImportMode(input.Mode)})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHighlights handles the highlights_get tool call.
func (h *Handlers) HandleHighlights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HighlightsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Highlights(ctx, h.s, ops.HighlightsInput{Document: input.Document, OpenDocuments: input.OpenDocuments})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDecorations handles the highlights_decorations tool call.
func (h *Handlers) HandleDecorations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.view(input.Document)
}

// HandleRefresh handles the highlights_refresh tool call.
func (h *Handlers) HandleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.s.Refresh(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"documents": h.s.Synchronizer().Documents()})
}

// HandleDocumentOpen handles the document_open tool call.
func (h *Handlers) HandleDocumentOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.s.DocumentOpened(ctx, input.Document); err != nil {
		return errorResult(err), nil
	}
	return h.view(input.Document)
}

// HandleDocumentActivate handles the document_activate tool call.
func (h *Handlers) HandleDocumentActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.s.DocumentActivated(ctx, input.Document); err != nil {
		return errorResult(err), nil
	}
	return h.view(input.Document)
}

// HandleDocumentSave handles the document_save tool call.
func (h *Handlers) HandleDocumentSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	saved, err := h.s.DocumentSaved(ctx, input.Document)
	if err != nil {
		return errorResult(err), nil
	}
	view, err := ops.Decorations(h.s, ops.DecorationsInput{Document: input.Document})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(SaveResponse{SaveResult: saved, View: view})
}

// HandleDocumentClose handles the document_close tool call.
func (h *Handlers) HandleDocumentClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DocumentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.s.DocumentClosed(input.Document); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"document": h.s.Abs(input.Document), "open": false})
}

// HandleToolsStatus handles the tools_status tool call.
func (h *Handlers) HandleToolsStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Tools(ctx, h.s)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func (h *Handlers) view(doc string) (*mcp.CallToolResult, error) {
	result, err := ops.Decorations(h.s, ops.DecorationsInput{Document: doc})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result with IsError set.
// Details of INTERNAL errors are withheld; they can carry paths and SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if siftErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    siftErr.Code,
			"message": siftErr.Message,
			"status":  siftErr.Status,
		}
		if siftErr.Code != errors.ErrInternal && siftErr.Details != nil {
			errorObj["details"] = siftErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
