package projector

import (
	"path"
	"runtime"
	"strings"
)

// MatchKind says which identity rule tied a finding path to a document.
type MatchKind int

const (
	NoMatch MatchKind = iota
	MatchExact
	MatchRelative
	MatchSuffix
	// MatchAmbiguous means the suffix rule matched several candidates, the
	// document among them. It counts as no match.
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchRelative:
		return "relative"
	case MatchSuffix:
		return "suffix"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// DefaultCaseInsensitive reports whether paths compare case-insensitively on this platform.
func DefaultCaseInsensitive() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// Resolver decides whether a stored finding path names a given document.
type Resolver struct {
	root string
	fold bool
}

// NewResolver creates a Resolver. root is the project root used for relative paths.
func NewResolver(root string, caseInsensitive bool) *Resolver {
	r := &Resolver{fold: caseInsensitive}
	if root != "" {
		r.root = r.Normalize(root)
	}
	return r
}

// Normalize converts either separator to '/', cleans the path and folds case
// when the resolver is case-insensitive.
func (r *Resolver) Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if r.fold {
		p = strings.ToLower(p)
	}
	return p
}

func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// C:/x
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}

// direct applies the exact and relative rules against one normalized candidate.
func (r *Resolver) direct(fp, candidate string) MatchKind {
	if fp == candidate {
		return MatchExact
	}
	if !isAbs(fp) && r.root != "" && path.Join(r.root, fp) == candidate {
		return MatchRelative
	}
	return NoMatch
}

// hasSuffix reports whether candidate ends with fp on a path-component boundary.
func hasSuffix(candidate, fp string) bool {
	if fp == "" || fp == "." || strings.HasPrefix(fp, "../") || fp == ".." {
		return false
	}
	if candidate == fp {
		return true
	}
	return strings.HasSuffix(candidate, "/"+strings.TrimPrefix(fp, "/"))
}

// Match resolves findingPath against doc. candidates are the other documents
// the path could name (typically every open document); doc is always included.
//
// Exact and relative matches are preferred. Only when neither rule matches any
// candidate is the suffix rule tried, and several suffix matches are reported
// as ambiguous rather than guessed.
func (r *Resolver) Match(findingPath, doc string, candidates []string) MatchKind {
	return r.match(r.Normalize(findingPath), r.Normalize(doc), r.normalizeAll(doc, candidates))
}

func (r *Resolver) normalizeAll(doc string, candidates []string) []string {
	nd := r.Normalize(doc)
	out := []string{nd}
	seen := map[string]bool{nd: true}
	for _, c := range candidates {
		n := r.Normalize(c)
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// match works on normalized inputs. all[0] is doc.
func (r *Resolver) match(fp, doc string, all []string) MatchKind {
	if fp == "" {
		return NoMatch
	}
	if k := r.direct(fp, doc); k != NoMatch {
		return k
	}
	for _, c := range all[1:] {
		if r.direct(fp, c) != NoMatch {
			return NoMatch
		}
	}

	var hits int
	docHit := false
	for _, c := range all {
		if hasSuffix(c, fp) {
			hits++
			if c == doc {
				docHit = true
			}
		}
	}
	switch {
	case !docHit:
		return NoMatch
	case hits > 1:
		return MatchAmbiguous
	default:
		return MatchSuffix
	}
}
