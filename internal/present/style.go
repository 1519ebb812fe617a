package present

import (
	"strings"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/finding"
)

// Style is how ranges of one severity are drawn.
type Style struct {
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Decoration string `json:"decoration,omitempty"`
}

var defaultStyles = map[finding.Severity]Style{
	finding.SeverityError:   {Color: "#f14c4c", Background: "rgba(241,76,76,0.15)", Decoration: "underline wavy"},
	finding.SeverityWarning: {Color: "#cca700", Background: "rgba(204,167,0,0.12)", Decoration: "underline wavy"},
	finding.SeverityInfo:    {Color: "#3794ff", Background: "rgba(55,148,255,0.10)", Decoration: "underline dotted"},
	finding.SeverityHint:    {Color: "#8a8a8a", Decoration: "underline dotted"},
}

// DefaultStyles returns the built-in style per canonical severity.
func DefaultStyles() map[finding.Severity]Style {
	out := make(map[finding.Severity]Style, len(defaultStyles))
	for k, v := range defaultStyles {
		out[k] = v
	}
	return out
}

// ResolveStyles applies configured overrides on top of the defaults.
// Override keys go through the severity normalizer, so "high" styles errors.
// Empty override fields keep the default.
func ResolveStyles(overrides map[string]config.Style) map[finding.Severity]Style {
	out := DefaultStyles()
	for key, o := range overrides {
		sev := finding.NormalizeSeverity(key)
		cur := out[sev]
		if s := strings.TrimSpace(o.Color); s != "" {
			cur.Color = s
		}
		if s := strings.TrimSpace(o.Background); s != "" {
			cur.Background = s
		}
		if s := strings.TrimSpace(o.Decoration); s != "" {
			cur.Decoration = s
		}
		out[sev] = cur
	}
	return out
}
