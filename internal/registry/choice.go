package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

type multipleChoice struct{}

func (multipleChoice) Type() domain.QuestionType { return domain.MultipleChoice }

func (multipleChoice) ExtractData(item *goquery.Selection, q *domain.Question) {
	q.Options = editorOptions(item.Find(".option"))
	if n, err := strconv.Atoi(strings.TrimSpace(dom.Value(item.Find(".correct-answer").First()))); err == nil {
		q.CorrectIndex = n
	}
}

func (multipleChoice) Populate(item *goquery.Selection, q domain.Question) {
	writeEditorOptions(item, q.Options, nil)
	dom.SetValue(item.Find(".correct-answer").First(), strconv.Itoa(q.CorrectIndex))
}

func (multipleChoice) Validate(q domain.Question) Validation {
	if v := validateOptions(q.Options); !v.Valid {
		return v
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return invalid(ReasonCorrectIndexRange)
	}
	return valid()
}

func (multipleChoice) ScoreAnswer(a, c domain.Answer, _ ScoreOptions) Score {
	if a.Kind != domain.MultipleChoice || c.Kind != domain.MultipleChoice {
		return Score{}
	}
	return exact(a.Index == c.Index)
}

func (multipleChoice) RenderHostOptions(q domain.Question, container *goquery.Selection, h Helpers) {
	hostOptionList(q.Options, container, h)
}

func (multipleChoice) RenderPlayerOptions(q domain.Question, container *goquery.Selection, _ Helpers) {
	if len(q.Options) == 0 {
		renderNoOptions(container)
		return
	}
	var b strings.Builder
	for i, opt := range q.Options {
		fmt.Fprintf(&b, `<button class="player-option" data-option="%d"><span class="option-letter">%s</span> <span class="option-text %s">%s</span></button>`,
			i, Letter(i), dom.ClassMathPending, dom.Escape(opt))
	}
	container.SetHtml(b.String())
}

func (multipleChoice) ExtractAnswer(container *goquery.Selection) (domain.Answer, bool) {
	n, ok := intAttr(container.Find(".player-option."+dom.ClassSelected).First(), "data-option")
	if !ok {
		return domain.Answer{}, false
	}
	return domain.IndexAnswer(n), true
}

func (multipleChoice) Input() InputSpec {
	return InputSpec{AutoSubmit: true, Selector: ".player-option", Event: "click"}
}

func (multipleChoice) RevealHost(q domain.Question, container *goquery.Selection, correct domain.Answer, h Helpers) {
	idx := correct.Index
	if idx < 0 || idx >= len(q.Options) {
		h.log().Warn("correct index out of range, clamping to 0", zap.Int("index", idx), zap.Int("options", len(q.Options)))
		idx = 0
	}
	markOption(container, ".option-display", idx, dom.ClassCorrect)
}

func (multipleChoice) RevealPlayer(container *goquery.Selection, r Reveal) {
	if r.Selected.Kind == domain.MultipleChoice {
		markOption(container, ".player-option", r.Selected.Index, r.selectedClass())
	}
	if r.HasCorrect {
		markOption(container, ".player-option", r.Correct.Index, dom.ClassCorrectAnswer)
	}
}

type trueFalse struct{}

func (trueFalse) Type() domain.QuestionType { return domain.TrueFalse }

func (trueFalse) ExtractData(item *goquery.Selection, q *domain.Question) {
	q.Options = []string{"True", "False"}
	q.CorrectBool = strings.EqualFold(strings.TrimSpace(dom.Value(item.Find(".tf-answer").First())), "true")
}

func (trueFalse) Populate(item *goquery.Selection, q domain.Question) {
	dom.SetValue(item.Find(".tf-answer").First(), strconv.FormatBool(q.CorrectBool))
}

func (trueFalse) Validate(domain.Question) Validation { return valid() }

func (trueFalse) ScoreAnswer(a, c domain.Answer, _ ScoreOptions) Score {
	if a.Kind != domain.TrueFalse || c.Kind != domain.TrueFalse {
		return Score{}
	}
	return exact(a.Bool == c.Bool)
}

func (trueFalse) RenderHostOptions(_ domain.Question, container *goquery.Selection, _ Helpers) {
	container.SetHtml(`<div class="option-display tf-display" data-option="0" data-answer="true"><span class="option-letter">A</span> True</div>` +
		`<div class="option-display tf-display" data-option="1" data-answer="false"><span class="option-letter">B</span> False</div>`)
}

func (trueFalse) RenderPlayerOptions(_ domain.Question, container *goquery.Selection, _ Helpers) {
	container.SetHtml(`<button class="tf-option" data-option="0" data-answer="true">True</button>` +
		`<button class="tf-option" data-option="1" data-answer="false">False</button>`)
}

func (trueFalse) ExtractAnswer(container *goquery.Selection) (domain.Answer, bool) {
	v, ok := container.Find(".tf-option." + dom.ClassSelected).First().Attr("data-answer")
	if !ok {
		return domain.Answer{}, false
	}
	return domain.BoolAnswer(v == "true"), true
}

func (trueFalse) Input() InputSpec {
	return InputSpec{AutoSubmit: true, Selector: ".tf-option", Event: "click"}
}

func (trueFalse) RevealHost(_ domain.Question, container *goquery.Selection, correct domain.Answer, _ Helpers) {
	container.Find(fmt.Sprintf(`.option-display[data-answer="%t"]`, correct.Bool)).AddClass(dom.ClassCorrect)
}

func (trueFalse) RevealPlayer(container *goquery.Selection, r Reveal) {
	if r.Selected.Kind == domain.TrueFalse {
		container.Find(fmt.Sprintf(`.tf-option[data-answer="%t"]`, r.Selected.Bool)).AddClass(r.selectedClass())
	}
	if r.HasCorrect {
		container.Find(fmt.Sprintf(`.tf-option[data-answer="%t"]`, r.Correct.Bool)).AddClass(dom.ClassCorrectAnswer)
	}
}

func editorOptions(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(dom.Value(s)))
	})
	return out
}

// writeEditorOptions rebuilds the .options block of an editor item. When
// correct is non-nil each row carries a .correct-option checkbox.
func writeEditorOptions(item *goquery.Selection, options []string, correct map[int]bool) {
	container := item.Find(".options").First()
	if !dom.Exists(container) {
		return
	}
	var b strings.Builder
	for i, opt := range options {
		if correct == nil {
			fmt.Fprintf(&b, `<input class="option" value="%s">`, dom.Escape(opt))
			continue
		}
		checked := ""
		if correct[i] {
			checked = ` checked="checked"`
		}
		fmt.Fprintf(&b, `<div class="option-row"><input class="option" value="%s"><input type="checkbox" class="correct-option"%s></div>`, dom.Escape(opt), checked)
	}
	container.SetHtml(b.String())
}

func validateOptions(options []string) Validation {
	if len(options) < 2 {
		return invalid(ReasonTooFewOptions)
	}
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			return invalid(ReasonEmptyOption)
		}
	}
	return valid()
}
