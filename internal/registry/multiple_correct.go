package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

type multipleCorrect struct{}

func (multipleCorrect) Type() domain.QuestionType { return domain.MultipleCorrect }

func (multipleCorrect) ExtractData(item *goquery.Selection, q *domain.Question) {
	q.Options = editorOptions(item.Find(".option"))
	q.CorrectIndices = nil
	item.Find(".correct-option").Each(func(i int, s *goquery.Selection) {
		if dom.Checked(s) {
			q.CorrectIndices = append(q.CorrectIndices, i)
		}
	})
}

func (multipleCorrect) Populate(item *goquery.Selection, q domain.Question) {
	correct := make(map[int]bool, len(q.CorrectIndices))
	for _, i := range q.CorrectIndices {
		correct[i] = true
	}
	writeEditorOptions(item, q.Options, correct)
}

func (multipleCorrect) Validate(q domain.Question) Validation {
	if v := validateOptions(q.Options); !v.Valid {
		return v
	}
	if len(q.CorrectIndices) == 0 {
		return invalid(ReasonNoCorrectOption)
	}
	for _, i := range q.CorrectIndices {
		if i < 0 || i >= len(q.Options) {
			return invalid(ReasonCorrectIndicesRange)
		}
	}
	return valid()
}

func (multipleCorrect) ScoreAnswer(a, c domain.Answer, _ ScoreOptions) Score {
	if a.Kind != domain.MultipleCorrect || c.Kind != domain.MultipleCorrect {
		return Score{}
	}
	return exact(sameSet(a.Indices, c.Indices))
}

func (multipleCorrect) RenderHostOptions(q domain.Question, container *goquery.Selection, h Helpers) {
	hostOptionList(q.Options, container, h)
}

func (multipleCorrect) RenderPlayerOptions(q domain.Question, container *goquery.Selection, _ Helpers) {
	if len(q.Options) == 0 {
		renderNoOptions(container)
		return
	}
	var b strings.Builder
	for i, opt := range q.Options {
		fmt.Fprintf(&b, `<label class="checkbox-option" data-option="%d"><input type="checkbox" class="option-checkbox" value="%d"> <span class="option-letter">%s</span> <span class="option-text %s">%s</span></label>`,
			i, i, Letter(i), dom.ClassMathPending, dom.Escape(opt))
	}
	b.WriteString(submitButton())
	container.SetHtml(b.String())
}

func (multipleCorrect) ExtractAnswer(container *goquery.Selection) (domain.Answer, bool) {
	var picked []int
	container.Find(".option-checkbox").Each(func(_ int, s *goquery.Selection) {
		if !dom.Checked(s) {
			return
		}
		if n, err := strconv.Atoi(s.AttrOr("value", "")); err == nil {
			picked = append(picked, n)
		}
	})
	if len(picked) == 0 {
		return domain.Answer{}, false
	}
	sort.Ints(picked)
	return domain.IndicesAnswer(picked), true
}

func (multipleCorrect) Input() InputSpec {
	return InputSpec{Selector: ".option-checkbox", Event: "click"}
}

func (multipleCorrect) RevealHost(q domain.Question, container *goquery.Selection, correct domain.Answer, h Helpers) {
	for _, i := range correct.Indices {
		if i < 0 || i >= len(q.Options) {
			h.log().Warn("correct index out of range, skipped")
			continue
		}
		markOption(container, ".option-display", i, dom.ClassCorrect)
	}
}

func (multipleCorrect) RevealPlayer(container *goquery.Selection, r Reveal) {
	want := make(map[int]bool, len(r.Correct.Indices))
	for _, i := range r.Correct.Indices {
		want[i] = true
	}
	for _, i := range r.Selected.Indices {
		class := r.selectedClass()
		if r.HasCorrect {
			class = dom.ClassIncorrect
			if want[i] {
				class = dom.ClassCorrect
			}
		}
		markOption(container, ".checkbox-option", i, class)
	}
	if r.HasCorrect {
		for i := range want {
			markOption(container, ".checkbox-option", i, dom.ClassCorrectAnswer)
		}
	}
}

func sameSet(a, b []int) bool {
	as, bs := dedupeSorted(a), dedupeSorted(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupeSorted(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	w := 0
	for i, n := range out {
		if i == 0 || n != out[w-1] {
			out[w] = n
			w++
		}
	}
	return out[:w]
}
