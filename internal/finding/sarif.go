package finding

import (
	"net/url"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"
)

// sarifLevels maps SARIF result levels onto the severity vocabulary.
var sarifLevels = map[string]string{
	"error":   "error",
	"warning": "warning",
	"note":    "info",
	"none":    "hint",
}

// decodeSARIF reads a SARIF 2.1.0 log. Region end columns are exclusive.
func decodeSARIF(env envelope, _ string) ([]Finding, []string, error) {
	report, err := sarif.FromBytes(env.raw)
	if err != nil {
		return nil, nil, err
	}

	var out []Finding
	var toolErrors []string
	for _, run := range report.Runs {
		for _, inv := range run.Invocations {
			for _, n := range inv.ToolExecutionNotifications {
				if n.Message != nil && n.Message.Text != nil {
					toolErrors = append(toolErrors, *n.Message.Text)
				}
			}
		}
		for _, res := range run.Results {
			f := Finding{
				Severity: NormalizeSeverity(sarifLevel(res.Level)),
			}
			if res.Message.Text != nil {
				f.Message = *res.Message.Text
			}
			if res.RuleID != nil {
				f.Category = *res.RuleID
			}
			if len(res.Locations) > 0 {
				applySARIFLocation(&f, res.Locations[0])
			}
			out = append(out, f)
		}
	}
	return out, toolErrors, nil
}

func sarifLevel(level *string) string {
	if level == nil {
		return "warning"
	}
	return sarifLevels[strings.ToLower(*level)]
}

func applySARIFLocation(f *Finding, loc *sarif.Location) {
	if loc == nil || loc.PhysicalLocation == nil {
		return
	}
	pl := loc.PhysicalLocation
	if pl.ArtifactLocation != nil && pl.ArtifactLocation.URI != nil {
		f.FilePath = uriToPath(*pl.ArtifactLocation.URI)
	}
	if r := pl.Region; r != nil {
		if r.StartLine != nil {
			f.StartLine = *r.StartLine
		}
		if r.StartColumn != nil {
			f.StartColumn = *r.StartColumn
		}
		if r.EndLine != nil {
			f.EndLine = *r.EndLine
		}
		if r.EndColumn != nil {
			f.EndColumn = exclusiveEnd(*r.EndColumn)
		}
	}
}

// uriToPath turns a file:// URI into a filesystem path and leaves relative URIs as-is.
func uriToPath(uri string) string {
	if !strings.HasPrefix(uri, "file:") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	p := u.Path
	// file:///C:/x parses to /C:/x
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}
