package web

import (
	"bytes"
	"html/template"
	"path/filepath"
	"sort"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// maxSourceBytes bounds the file rendered on the document view.
const maxSourceBytes = 1 << 20

const styleName = "github"

// lineAnchorPrefix prefixes line anchors so diagnostics can link to "#L10".
const lineAnchorPrefix = "L"

func chromaStyle() *chroma.Style {
	if s := styles.Get(styleName); s != nil {
		return s
	}
	return styles.Fallback
}

func newFormatter(lines []int) *html.Formatter {
	return html.New(
		html.WithClasses(true),
		html.WithLineNumbers(true),
		html.WithLinkableLineNumbers(true, lineAnchorPrefix),
		html.HighlightLines(lineRanges(lines)),
	)
}

// highlightSource renders src with syntax colors and marks the given 1-based lines.
func highlightSource(filename string, src []byte, lines []int) (template.HTML, error) {
	lexer := lexerForFile(filename)
	iterator, err := lexer.Tokenise(nil, string(src))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := newFormatter(lines).Format(&buf, chromaStyle(), iterator); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// sourceCSS returns the stylesheet for the class-based markup of highlightSource.
func sourceCSS() ([]byte, error) {
	var buf bytes.Buffer
	if err := newFormatter(nil).WriteCSS(&buf, chromaStyle()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lexerForFile(filename string) chroma.Lexer {
	lexer := lexers.Match(filename)
	if lexer == nil {
		if ext := filepath.Ext(filename); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// lineRanges collapses 1-based line numbers into sorted inclusive ranges.
func lineRanges(lines []int) [][2]int {
	if len(lines) == 0 {
		return nil
	}
	sorted := append([]int(nil), lines...)
	sort.Ints(sorted)
	var out [][2]int
	for _, l := range sorted {
		if l < 1 {
			continue
		}
		if n := len(out); n > 0 && l <= out[n-1][1]+1 {
			if l > out[n-1][1] {
				out[n-1][1] = l
			}
			continue
		}
		out = append(out, [2]int{l, l})
	}
	return out
}
