package display

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter renders a fenced code block to markup.
type Highlighter interface {
	Highlight(code, lang string) (string, error)
}

// ChromaHighlighter emits class-based markup so the page stylesheet
// controls colours.
type ChromaHighlighter struct {
	Style string
}

func (h ChromaHighlighter) Highlight(code, lang string) (string, error) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.Style)
	if style == nil {
		style = styles.Fallback
	}
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := chromahtml.New(chromahtml.WithClasses(true)).Format(&b, style, it); err != nil {
		return "", err
	}
	return b.String(), nil
}

// codeBlock is a fenced block captured at text time.
type codeBlock struct {
	index int
	lang  string
	code  string
}

func languageOf(class string) string {
	for _, c := range strings.Fields(class) {
		if strings.HasPrefix(c, "language-") {
			return strings.TrimPrefix(c, "language-")
		}
	}
	return ""
}
