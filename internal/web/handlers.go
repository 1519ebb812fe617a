package web

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/ops"
	"github.com/hpungsan/sift/internal/session"
	"github.com/hpungsan/sift/internal/tools"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	s        *session.Session
	renderer *Renderer
}

// HandleRuns handles GET /runs: the run history, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	tool := r.URL.Query().Get("tool")
	result, err := ops.ListRuns(r.Context(), h.s, ops.ListInput{
		Tool:   tool,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "runs", RunsPageData{
		PageData:   h.renderer.page("Runs", "runs"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Tool:       tool,
		Tools:      tools.Names(),
	})
}

// HandleRun handles GET /runs/{id}: one run with its findings.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("run id must be a positive integer"))
		return
	}
	run, err := ops.GetRun(r.Context(), h.s, ops.GetRunInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, run)
		return
	}

	rows := make([]FindingRow, len(run.Findings))
	for i, f := range run.Findings {
		rows[i] = FindingRow{Finding: f, MessageHTML: renderMarkdown(f.Message)}
	}
	h.renderer.renderPage(w, r, "run", RunPageData{
		PageData: h.renderer.page(fmt.Sprintf("Run %d", run.ID), "runs"),
		Run:      run,
		Findings: rows,
	})
}

// HandleDocument handles GET /document?path=…: a project file with its projected findings.
func (h *Handlers) HandleDocument(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	doc, err := h.projectFile(rel)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.Highlights(r.Context(), h.s, ops.HighlightsInput{Document: doc})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data := DocumentPageData{
		PageData:   h.renderer.page(rel, "document"),
		Path:       rel,
		Document:   result.Document,
		Mode:       result.Mode,
		Runs:       result.Runs,
		Ambiguous:  len(result.Ambiguous),
		Degraded:   result.Degraded,
		Highlights: make([]HighlightRow, len(result.Highlights)),
	}
	var lines []int
	for i, hl := range result.Highlights {
		data.Highlights[i] = HighlightRow{HighlightItem: hl, MessageHTML: renderMarkdown(hl.Message)}
		end := max(hl.EndLine, hl.StartLine)
		for l := hl.StartLine; l <= end; l++ {
			lines = append(lines, l)
		}
	}

	src, err := readSource(doc)
	switch {
	case errors.Is(err, errors.ErrFileNotFound):
		data.Missing = true
	case err != nil:
		h.renderer.renderError(w, r, err)
		return
	default:
		html, err := highlightSource(doc, src, lines)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}
		data.SourceHTML = html
	}
	h.renderer.renderPage(w, r, "document", data)
}

// HandleAnalyze handles POST /document/analyze: run the configured tools on a file.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	rel := r.FormValue("path")
	doc, err := h.projectFile(rel)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.Analyze(r.Context(), h.s, ops.AnalyzeInput{File: doc, Source: "web"})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	target := "/document?path=" + url.QueryEscape(rel)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleSourceCSS serves the stylesheet of the highlighted source markup.
func (h *Handlers) HandleSourceCSS(w http.ResponseWriter, r *http.Request) {
	css, err := sourceCSS()
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(css)
}

// projectFile resolves a path against the project root and rejects anything
// outside it.
func (h *Handlers) projectFile(rel string) (string, error) {
	if rel == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	doc := h.s.Abs(rel)
	inside, err := filepath.Rel(h.s.Project().Root, doc)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", errors.NewInvalidRequest("path must stay inside the project")
	}
	return doc, nil
}

// readSource reads a file for display, refusing directories and oversized files.
func readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(path)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if info.IsDir() {
		return nil, errors.NewInvalidRequest("path is a directory")
	}
	if info.Size() > maxSourceBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("file is larger than %d bytes", maxSourceBytes))
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return src, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
