package display

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"

	"quizlive/internal/dom"
)

// mathPattern matches \(..\), \[..\], $$..$$ and $..$ spans.
var mathPattern = regexp.MustCompile(`(?s)\\\((.+?)\\\)|\\\[(.+?)\\\]|\$\$(.+?)\$\$|\$([^$\s][^$]*?)\$`)

// RenderText turns question text into markup. Markdown is honoured and
// raw HTML dropped; fenced code survives for the highlighter. Math spans
// are set aside during the markdown pass so their delimiters and
// backslashes reach the typesetter intact.
func RenderText(s string) string {
	var spans []string
	s = mathPattern.ReplaceAllStringFunc(s, func(m string) string {
		spans = append(spans, m)
		return mathToken(len(spans) - 1)
	})

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.Safelink,
	})
	out := blackfriday.Run([]byte(s),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak),
	)
	text := strings.TrimSpace(string(out))
	for i, m := range spans {
		text = strings.Replace(text, mathToken(i), html.EscapeString(m), 1)
	}
	return text
}

func mathToken(i int) string {
	return "QLMATH" + strconv.Itoa(i) + "QLMATH"
}

// Typesetter renders math inside markup fragments. It receives the
// fragments marked for processing and returns their typeset form in the
// same order.
type Typesetter interface {
	Typeset(ctx context.Context, fragments []string) ([]string, error)
}

// TypesetterFunc adapts a function to Typesetter.
type TypesetterFunc func(ctx context.Context, fragments []string) ([]string, error)

func (f TypesetterFunc) Typeset(ctx context.Context, fragments []string) ([]string, error) {
	return f(ctx, fragments)
}

// DelimiterTypesetter wraps math spans in math containers. display.New
// uses it when no other typesetter is configured.
type DelimiterTypesetter struct{}

func (DelimiterTypesetter) Typeset(ctx context.Context, fragments []string) ([]string, error) {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = mathPattern.ReplaceAllStringFunc(f, func(m string) string {
			sub := mathPattern.FindStringSubmatch(m)
			expr := sub[1] + sub[2] + sub[3] + sub[4]
			return `<span class="` + dom.ClassMathContainer + `">` + expr + `</span>`
		})
	}
	return out, nil
}
