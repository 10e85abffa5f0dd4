package registry

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

// toleranceEpsilon absorbs float noise at the tolerance boundary.
const toleranceEpsilon = 1e-9

type numeric struct{}

func (numeric) Type() domain.QuestionType { return domain.Numeric }

func (numeric) ExtractData(item *goquery.Selection, q *domain.Question) {
	q.Options = nil
	if n, err := strconv.ParseFloat(strings.TrimSpace(dom.Value(item.Find(".numeric-answer").First())), 64); err == nil {
		q.CorrectNumber = n
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(dom.Value(item.Find(".numeric-tolerance").First())), 64); err == nil {
		q.Tolerance = &n
	}
}

func (numeric) Populate(item *goquery.Selection, q domain.Question) {
	dom.SetValue(item.Find(".numeric-answer").First(), FormatNumber(q.CorrectNumber))
	dom.SetValue(item.Find(".numeric-tolerance").First(), FormatNumber(q.EffectiveTolerance()))
}

func (numeric) Validate(q domain.Question) Validation {
	if math.IsNaN(q.CorrectNumber) || math.IsInf(q.CorrectNumber, 0) {
		return invalid(ReasonInvalidNumber)
	}
	if q.Tolerance != nil && *q.Tolerance < 0 {
		return invalid(ReasonNegativeTolerance)
	}
	return valid()
}

func (numeric) ScoreAnswer(a, c domain.Answer, opts ScoreOptions) Score {
	if a.Kind != domain.Numeric || c.Kind != domain.Numeric || math.IsNaN(a.Number) {
		return Score{}
	}
	tol := domain.DefaultTolerance
	if opts.Tolerance != nil && *opts.Tolerance >= 0 {
		tol = *opts.Tolerance
	}
	return exact(math.Abs(a.Number-c.Number) <= tol+toleranceEpsilon)
}

func (numeric) RenderHostOptions(_ domain.Question, container *goquery.Selection, _ Helpers) {
	container.SetHtml(`<div class="numeric-placeholder">Players enter a number</div>`)
}

func (numeric) RenderPlayerOptions(_ domain.Question, container *goquery.Selection, _ Helpers) {
	container.SetHtml(`<input type="number" step="any" id="` + dom.NumericInput + `" class="numeric-input" value="">` + submitButton())
}

func (numeric) ExtractAnswer(container *goquery.Selection) (domain.Answer, bool) {
	raw := strings.TrimSpace(dom.Value(container.Find("#" + dom.NumericInput)))
	if raw == "" {
		return domain.Answer{}, false
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return domain.Answer{}, false
	}
	return domain.NumberAnswer(n), true
}

func (numeric) Input() InputSpec {
	return InputSpec{Selector: "#" + dom.NumericInput, Event: "input"}
}

func (numeric) RevealHost(domain.Question, *goquery.Selection, domain.Answer, Helpers) {}

func (numeric) RevealPlayer(container *goquery.Selection, r Reveal) {
	container.Find("#" + dom.NumericInput).AddClass(r.selectedClass())
}

// FormatNumber prints n without trailing zeros.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatNumericAnswer renders "3.14 (±0.01)".
func FormatNumericAnswer(n, tolerance float64) string {
	if tolerance <= 0 {
		return FormatNumber(n)
	}
	return FormatNumber(n) + " (±" + FormatNumber(tolerance) + ")"
}
