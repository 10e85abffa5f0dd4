// Package dom is a headless document model for the quiz panes. It wraps
// goquery so renderers can resolve elements by stable ID and mutate them
// the way a browser page would be mutated.
package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const skeleton = `<!DOCTYPE html><html><body>
<div id="` + LiveRegion + `" aria-live="polite"></div>
<div id="` + Notice + `" role="status"></div>
<section id="` + HostPane + `">
  <div id="` + QuestionCounter + `"></div>
  <div id="` + HostTimer + `"></div>
  <div id="` + HostQuestionText + `"></div>
  <div id="` + HostMedia + `"></div>
  <div id="` + HostOptions + `"></div>
  <div id="` + AnswerStatistics + `"></div>
  <div id="` + HostConsensus + `"></div>
  <div id="` + HostDiscussion + `"></div>
  <div id="` + Leaderboard + `"></div>
</section>
<section id="` + PlayerPane + `">
  <div id="` + PlayerCounter + `"></div>
  <div id="` + PlayerTimer + `"></div>
  <div id="` + PlayerScore + `">0</div>
  <div id="` + PlayerQuestion + `"></div>
  <div id="` + PlayerMedia + `"></div>
  <div id="` + PlayerOptions + `"></div>
  <div id="` + PowerUps + `"></div>
  <div id="` + PlayerFeedback + `" class="` + ClassHidden + `"></div>
  <div id="` + PlayerConsensus + `"></div>
  <div id="` + PlayerDiscussion + `"></div>
  <div id="` + PlayerLeaderboard + `"></div>
</section>
</body></html>`

// Document is the page a client renders into. It is not safe for
// concurrent use; the lifecycle loop owns it.
type Document struct {
	doc *goquery.Document
}

// New builds a document containing both panes.
func New() *Document {
	d, err := Parse(skeleton)
	if err != nil {
		panic(fmt.Sprintf("dom: parse skeleton: %v", err))
	}
	return d
}

// Parse wraps an arbitrary HTML page, used for editor subtrees.
func Parse(page string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// ByID resolves an element by ID. The selection is empty when absent.
func (d *Document) ByID(id string) *goquery.Selection {
	return d.doc.Find("#" + id)
}

// Find runs a CSS selector over the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Root returns the document selection.
func (d *Document) Root() *goquery.Selection {
	return d.doc.Selection
}

// HTML renders the whole document.
func (d *Document) HTML() string {
	out, err := d.doc.Html()
	if err != nil {
		return ""
	}
	return out
}

// Text returns the whitespace-normalised text content of sel.
func Text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// Node returns the first node of sel, or nil.
func Node(sel *goquery.Selection) *html.Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

// Exists reports whether sel matched anything.
func Exists(sel *goquery.Selection) bool {
	return sel != nil && sel.Length() > 0
}

// Value reads an input-like value: the value attribute, or the text of
// textareas.
func Value(sel *goquery.Selection) string {
	if !Exists(sel) {
		return ""
	}
	if goquery.NodeName(sel) == "textarea" {
		return sel.Text()
	}
	return sel.AttrOr("value", "")
}

// SetValue writes an input-like value.
func SetValue(sel *goquery.Selection, v string) {
	if !Exists(sel) {
		return
	}
	if goquery.NodeName(sel) == "textarea" {
		sel.SetText(v)
		return
	}
	sel.SetAttr("value", v)
}

// Checked reports whether a checkbox carries the checked attribute.
func Checked(sel *goquery.Selection) bool {
	_, ok := sel.Attr("checked")
	return ok
}

// SetChecked sets or clears the checked attribute.
func SetChecked(sel *goquery.Selection, on bool) {
	if on {
		sel.SetAttr("checked", "checked")
		return
	}
	sel.RemoveAttr("checked")
}

// Disabled reports whether an element carries the disabled attribute.
func Disabled(sel *goquery.Selection) bool {
	_, ok := sel.Attr("disabled")
	return ok
}

// Disable marks every element in sel as disabled.
func Disable(sel *goquery.Selection) {
	sel.SetAttr("disabled", "disabled")
}

// Escape escapes text for inclusion in markup.
func Escape(s string) string {
	return html.EscapeString(s)
}
