package projector

import "testing"

func TestResolver_Match(t *testing.T) {
	r := NewResolver("/repo", false)

	tests := []struct {
		name       string
		fp         string
		doc        string
		candidates []string
		want       MatchKind
	}{
		{"exact absolute", "/repo/src/app.ts", "/repo/src/app.ts", nil, MatchExact},
		{"exact after clean", "/repo/src/../src/./app.ts", "/repo/src/app.ts", nil, MatchExact},
		{"backslashes", `\repo\src\app.ts`, "/repo/src/app.ts", nil, MatchExact},
		{"relative to root", "src/app.ts", "/repo/src/app.ts", nil, MatchRelative},
		{"dot relative", "./src/app.ts", "/repo/src/app.ts", nil, MatchRelative},
		{"suffix from unknown cwd", "app.ts", "/repo/src/app.ts", nil, MatchSuffix},
		{"suffix absolute other checkout", "/ci/work/repo/src/app.ts", "/home/me/ci/work/repo/src/app.ts", nil, MatchSuffix},
		{"not component aligned", "pp.ts", "/repo/src/app.ts", nil, NoMatch},
		{"different file", "src/other.ts", "/repo/src/app.ts", nil, NoMatch},
		{"parent escape never suffix-matches", "../app.ts", "/repo/src/app.ts", nil, NoMatch},
		{"empty path", "", "/repo/src/app.ts", nil, NoMatch},
		{"case sensitive", "/repo/SRC/app.ts", "/repo/src/app.ts", nil, NoMatch},
		{
			"ambiguous suffix",
			"util.py", "/repo/a/util.py",
			[]string{"/repo/b/util.py"},
			MatchAmbiguous,
		},
		{
			"suffix unique among open docs",
			"a/util.py", "/repo/x/a/util.py",
			[]string{"/repo/b/util.py"},
			MatchSuffix,
		},
		{
			"relative match of another open doc blocks suffix",
			"src/app.ts", "/repo/lib/src/app.ts",
			[]string{"/repo/src/app.ts"},
			NoMatch,
		},
		{
			"other doc suffix match, not this doc",
			"b/util.py", "/repo/a/util.py",
			[]string{"/repo/b/util.py"},
			NoMatch,
		},
		{
			"doc repeated in candidates is not ambiguous",
			"util.py", "/repo/a/util.py",
			[]string{"/repo/a/util.py", "/repo/a/./util.py"},
			MatchSuffix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Match(tt.fp, tt.doc, tt.candidates); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.fp, tt.doc, got, tt.want)
			}
		})
	}
}

func TestResolver_CaseInsensitive(t *testing.T) {
	r := NewResolver(`C:\Repo`, true)

	if got := r.Match(`src\App.ts`, `c:\repo\SRC\app.ts`, nil); got != MatchRelative {
		t.Errorf("Match = %v, want relative", got)
	}
	if got := r.Match(`C:\REPO\src\app.ts`, `c:/repo/src/app.ts`, nil); got != MatchExact {
		t.Errorf("Match = %v, want exact", got)
	}
}

func TestResolver_NoRoot(t *testing.T) {
	r := NewResolver("", false)
	if got := r.Match("src/app.ts", "/repo/src/app.ts", nil); got != MatchSuffix {
		t.Errorf("Match = %v, want suffix without a root", got)
	}
}

func TestMatchKind_String(t *testing.T) {
	for k, want := range map[MatchKind]string{
		NoMatch: "none", MatchExact: "exact", MatchRelative: "relative",
		MatchSuffix: "suffix", MatchAmbiguous: "ambiguous",
	} {
		if k.String() != want {
			t.Errorf("String(%d) = %q, want %q", k, k.String(), want)
		}
	}
}
