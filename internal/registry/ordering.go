package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

type ordering struct{}

func (ordering) Type() domain.QuestionType { return domain.Ordering }

// ExtractData reads items in listed order; each carries data-position,
// its place in the correct sequence.
func (ordering) ExtractData(item *goquery.Selection, q *domain.Question) {
	items := item.Find(".ordering-option")
	q.Options = editorOptions(items)
	type placed struct{ index, position int }
	var ps []placed
	items.Each(func(i int, s *goquery.Selection) {
		pos, ok := intAttr(s, "data-position")
		if !ok {
			pos = i
		}
		ps = append(ps, placed{index: i, position: pos})
	})
	sort.SliceStable(ps, func(a, b int) bool { return ps[a].position < ps[b].position })
	q.CorrectOrder = make([]int, len(ps))
	for k, p := range ps {
		q.CorrectOrder[k] = p.index
	}
}

func (ordering) Populate(item *goquery.Selection, q domain.Question) {
	container := item.Find(".options").First()
	if !dom.Exists(container) {
		return
	}
	position := make(map[int]int, len(q.CorrectOrder))
	for k, idx := range q.CorrectOrder {
		position[idx] = k
	}
	var b strings.Builder
	for i, opt := range q.Options {
		pos, ok := position[i]
		if !ok {
			pos = i
		}
		fmt.Fprintf(&b, `<input class="ordering-option" data-position="%d" value="%s">`, pos, dom.Escape(opt))
	}
	container.SetHtml(b.String())
}

func (ordering) Validate(q domain.Question) Validation {
	if v := validateOptions(q.Options); !v.Valid {
		return v
	}
	if !isPermutation(q.CorrectOrder, len(q.Options)) {
		return invalid(ReasonOrderNotPermutation)
	}
	return valid()
}

func (ordering) ScoreAnswer(a, c domain.Answer, opts ScoreOptions) Score {
	if a.Kind != domain.Ordering || c.Kind != domain.Ordering || len(c.Order) == 0 {
		return Score{}
	}
	inPlace := 0
	for i := 0; i < len(c.Order) && i < len(a.Order); i++ {
		if a.Order[i] == c.Order[i] {
			inPlace++
		}
	}
	if inPlace == len(c.Order) && len(a.Order) == len(c.Order) {
		return exact(true)
	}
	if !opts.PartialCredit {
		return Score{}
	}
	return Score{Fraction: float64(inPlace) / float64(len(c.Order))}
}

func (ordering) RenderHostOptions(q domain.Question, container *goquery.Selection, h Helpers) {
	hostOptionList(q.Options, container, h)
}

func (ordering) RenderPlayerOptions(q domain.Question, container *goquery.Selection, h Helpers) {
	if len(q.Options) == 0 {
		renderNoOptions(container)
		return
	}
	var b strings.Builder
	b.WriteString(`<ol id="` + dom.OrderingList + `" class="ordering-list">`)
	for _, i := range h.order(len(q.Options)) {
		fmt.Fprintf(&b, `<li class="ordering-item" data-original-index="%d"><span class="option-text %s">%s</span></li>`,
			i, dom.ClassMathPending, dom.Escape(q.Options[i]))
	}
	b.WriteString(`</ol>`)
	b.WriteString(submitButton())
	container.SetHtml(b.String())
}

func (ordering) ExtractAnswer(container *goquery.Selection) (domain.Answer, bool) {
	items := container.Find(".ordering-item")
	order := make([]int, 0, items.Length())
	ok := true
	items.Each(func(_ int, s *goquery.Selection) {
		n, has := intAttr(s, "data-original-index")
		if !has {
			ok = false
			return
		}
		order = append(order, n)
	})
	if !ok || !isPermutation(order, len(order)) || len(order) == 0 {
		return domain.Answer{}, false
	}
	return domain.OrderAnswer(order), true
}

func (ordering) Input() InputSpec {
	return InputSpec{Selector: "#" + dom.OrderingList, Event: "move"}
}

func (ordering) RevealHost(_ domain.Question, container *goquery.Selection, correct domain.Answer, _ Helpers) {
	labels := make([]string, 0, len(correct.Order))
	for k, idx := range correct.Order {
		container.Find(fmt.Sprintf(`.option-display[data-option="%d"]`, idx)).
			AddClass(dom.ClassCorrect).
			SetAttr("data-correct-position", fmt.Sprint(k+1))
		labels = append(labels, Letter(idx))
	}
	if len(labels) > 0 {
		container.AppendHtml(`<div class="correct-order">` + strings.Join(labels, " → ") + `</div>`)
	}
}

func (ordering) RevealPlayer(container *goquery.Selection, r Reveal) {
	container.Find(".ordering-item").Each(func(pos int, s *goquery.Selection) {
		if !r.HasCorrect || pos >= len(r.Correct.Order) {
			s.AddClass(r.selectedClass())
			return
		}
		idx, _ := intAttr(s, "data-original-index")
		if idx == r.Correct.Order[pos] {
			s.AddClass(dom.ClassCorrect)
		} else {
			s.AddClass(dom.ClassIncorrect)
		}
	})
}

// OrderLabel renders an ordering key such as "0,2,1" as "A → C → B".
func OrderLabel(order []int) string {
	parts := make([]string, len(order))
	for i, idx := range order {
		parts[i] = Letter(idx)
	}
	return strings.Join(parts, " → ")
}
