package finding

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/sift/internal/errors"
)

// Decode variants, tried in this order.
const (
	VariantCanonical    = "canonical"
	VariantFileAnalysis = "file-analysis"
	VariantHighlights   = "highlights"
	VariantSARIF        = "sarif"
	VariantTool         = "tool"
	VariantEmpty        = "empty"
	VariantUnrecognized = "unrecognized"
)

// Result is the outcome of decoding one payload.
type Result struct {
	Findings []Finding
	// Variant names the schema that matched.
	Variant string
	// ToolErrors holds errors the tool reported inside an otherwise valid payload.
	ToolErrors []string
}

// envelope is the top-level shape of a payload: either an object with keys or an array.
type envelope struct {
	raw     []byte
	object  map[string]json.RawMessage
	isArray bool
}

func (e envelope) has(key string) bool {
	_, ok := e.object[key]
	return ok
}

// variant is one schema in the tagged-union decode step.
type variant struct {
	name   string
	match  func(env envelope, toolName string) bool
	decode func(env envelope, toolName string) ([]Finding, []string, error)
}

// variants lists schemas in fixed priority order. Stored shapes come first so that a
// blob written by any pipeline version decodes the same way regardless of tool name.
var variants = []variant{
	{
		name:   VariantCanonical,
		match:  func(env envelope, _ string) bool { return env.has("findings") },
		decode: decodeCanonical,
	},
	{
		name:   VariantFileAnalysis,
		match:  func(env envelope, _ string) bool { return env.has("fileAnalysis") },
		decode: decodeFileAnalysis,
	},
	{
		name:   VariantHighlights,
		match:  func(env envelope, _ string) bool { return env.has("highlights") },
		decode: decodeHighlights,
	},
	{
		name:   VariantSARIF,
		match:  func(env envelope, _ string) bool { return env.has("runs") && env.has("version") },
		decode: decodeSARIF,
	},
	{
		name: VariantTool,
		match: func(_ envelope, toolName string) bool {
			_, ok := extractors[toolName]
			return ok
		},
		decode: func(env envelope, toolName string) ([]Finding, []string, error) {
			return extractors[toolName](env)
		},
	},
}

// Normalize converts a tool's raw output into canonical findings.
// filePath is used for findings whose location carries no path.
// It fails with a PARSE_ERROR only when raw is not valid JSON.
func Normalize(toolName, filePath string, raw []byte) ([]Finding, error) {
	res, err := Decode(toolName, filePath, raw)
	if err != nil {
		return nil, err
	}
	return res.Findings, nil
}

// Decode is Normalize with decode metadata.
func Decode(toolName, filePath string, raw []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Result{Findings: []Finding{}, Variant: VariantEmpty}, nil
	}
	if !json.Valid(trimmed) {
		return nil, errors.NewParse(toolName, fmt.Errorf("output is not valid JSON"))
	}

	env := envelope{raw: trimmed}
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &env.object); err != nil {
			return nil, errors.NewParse(toolName, err)
		}
	case '[':
		env.isArray = true
	}

	for _, v := range variants {
		if !v.match(env, toolName) {
			continue
		}
		findings, toolErrors, err := v.decode(env, toolName)
		if err != nil {
			return nil, errors.NewParse(toolName, fmt.Errorf("%s payload: %w", v.name, err))
		}
		out := make([]Finding, 0, len(findings))
		for _, f := range findings {
			out = append(out, f.fill(filePath, toolName))
		}
		return &Result{Findings: out, Variant: v.name, ToolErrors: toolErrors}, nil
	}

	return &Result{Findings: []Finding{}, Variant: VariantUnrecognized}, nil
}

// DecodeStored decodes a persisted run blob. Blobs are always one of the stored
// shapes; toolName only fills default category and source.
func DecodeStored(toolName string, blob []byte) ([]Finding, error) {
	return Normalize(toolName, "", blob)
}

// Encode serializes findings in the canonical stored shape.
func Encode(findings []Finding) ([]byte, error) {
	if findings == nil {
		findings = []Finding{}
	}
	return json.Marshal(canonicalPayload{Findings: findings})
}

type canonicalPayload struct {
	Findings []Finding `json:"findings"`
}

func decodeCanonical(env envelope, _ string) ([]Finding, []string, error) {
	var p canonicalPayload
	if err := json.Unmarshal(env.raw, &p); err != nil {
		return nil, nil, err
	}
	for i := range p.Findings {
		// Stored severities are canonical already; this also tolerates older casing.
		p.Findings[i].Severity = NormalizeSeverity(string(p.Findings[i].Severity))
	}
	return p.Findings, nil, nil
}

// legacyIssue is one entry of the fileAnalysis[].issues[] shape.
type legacyIssue struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

type legacyFileAnalysis struct {
	FileAnalysis []struct {
		FilePath string        `json:"filePath"`
		Issues   []legacyIssue `json:"issues"`
	} `json:"fileAnalysis"`
}

func decodeFileAnalysis(env envelope, _ string) ([]Finding, []string, error) {
	var p legacyFileAnalysis
	if err := json.Unmarshal(env.raw, &p); err != nil {
		return nil, nil, err
	}
	var out []Finding
	for _, fa := range p.FileAnalysis {
		for _, is := range fa.Issues {
			out = append(out, Finding{
				FilePath:    fa.FilePath,
				StartLine:   is.Line,
				StartColumn: is.Column,
				EndLine:     is.EndLine,
				EndColumn:   is.EndColumn,
				Severity:    NormalizeSeverity(is.Severity),
				Message:     is.Message,
				Category:    is.Type,
			})
		}
	}
	return out, nil, nil
}

// legacyHighlight is one entry of the flat highlights[] shape.
type legacyHighlight struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Rule      string `json:"rule"`
	Source    string `json:"source"`
}

func decodeHighlights(env envelope, _ string) ([]Finding, []string, error) {
	var p struct {
		Highlights []legacyHighlight `json:"highlights"`
	}
	if err := json.Unmarshal(env.raw, &p); err != nil {
		return nil, nil, err
	}
	out := make([]Finding, 0, len(p.Highlights))
	for _, h := range p.Highlights {
		out = append(out, Finding{
			FilePath:    h.File,
			StartLine:   h.Line,
			StartColumn: h.Column,
			EndLine:     h.EndLine,
			EndColumn:   h.EndColumn,
			Severity:    NormalizeSeverity(h.Severity),
			Message:     h.Message,
			Category:    h.Rule,
			Source:      h.Source,
		})
	}
	return out, nil, nil
}
