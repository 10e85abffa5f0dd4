// Package registry is the single dispatch table for question variants.
// Every variant-specific behaviour (editor extraction, validation,
// scoring, rendering, answer extraction, reveal styling) is reached
// through it; adding a variant is one Register call.
package registry

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/logger"
)

// Helpers are passed to renderers by the display layer.
type Helpers struct {
	// RenderText turns rich question text into markup. Nil escapes.
	RenderText func(string) string
	// Shuffle returns a display permutation of n items. Nil keeps order.
	Shuffle func(n int) []int
	Log     *zap.Logger
}

func (h Helpers) text(s string) string {
	if h.RenderText != nil {
		return h.RenderText(s)
	}
	return dom.Escape(s)
}

func (h Helpers) order(n int) []int {
	if h.Shuffle != nil {
		if p := h.Shuffle(n); isPermutation(p, n) {
			return p
		}
	}
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// ScrambledOrder returns a Shuffle that never yields the authored order
// for more than one item, so an untouched list is never the answer as
// written. rnd is not safe for concurrent use.
func ScrambledOrder(rnd *rand.Rand) func(n int) []int {
	return func(n int) []int {
		p := rnd.Perm(n)
		if n > 1 && isIdentity(p) {
			p = append(p[1:], p[0])
		}
		return p
	}
}

func isIdentity(p []int) bool {
	for i, v := range p {
		if i != v {
			return false
		}
	}
	return true
}

func (h Helpers) log() *zap.Logger { return logger.OrNop(h.Log) }

// ScoreOptions tunes scoreAnswer.
type ScoreOptions struct {
	// Tolerance overrides the numeric tolerance when non-nil.
	Tolerance *float64
	// PartialCredit enables fractional ordering credit.
	PartialCredit bool
}

// Score is the outcome of scoreAnswer. Fraction is 1 for a correct
// answer and the partial-credit share otherwise.
type Score struct {
	Correct  bool
	Fraction float64
}

func exact(ok bool) Score {
	if ok {
		return Score{Correct: true, Fraction: 1}
	}
	return Score{}
}

// InputSpec describes how a player interacts with a rendered variant.
type InputSpec struct {
	// AutoSubmit variants submit on selection; the rest use #player-submit.
	AutoSubmit bool
	// Selector matches the interactive elements inside the player container.
	Selector string
	// Event is the DOM event the interactive elements emit: click, input or move.
	Event string
}

// Variant implements one question type.
type Variant interface {
	Type() domain.QuestionType
	// ExtractData reads options and correctness from an editor item.
	ExtractData(item *goquery.Selection, q *domain.Question)
	// Populate writes options and correctness into an editor item.
	Populate(item *goquery.Selection, q domain.Question)
	Validate(q domain.Question) Validation
	ScoreAnswer(answer, correct domain.Answer, opts ScoreOptions) Score
	RenderHostOptions(q domain.Question, container *goquery.Selection, h Helpers)
	RenderPlayerOptions(q domain.Question, container *goquery.Selection, h Helpers)
	// ExtractAnswer returns false when player input is incomplete.
	ExtractAnswer(container *goquery.Selection) (domain.Answer, bool)
	Input() InputSpec
	// RevealHost marks the correct option(s) in the host container.
	RevealHost(q domain.Question, container *goquery.Selection, correct domain.Answer, h Helpers)
	// RevealPlayer styles the player's selection and the canonical answer.
	RevealPlayer(container *goquery.Selection, r Reveal)
}

// Reveal is what the player side knows when results arrive.
type Reveal struct {
	Selected   domain.Answer
	Correct    domain.Answer
	HasCorrect bool
	IsCorrect  bool
}

func (r Reveal) selectedClass() string {
	if r.IsCorrect {
		return dom.ClassCorrect
	}
	return dom.ClassIncorrect
}

// Registry maps type tags to variants.
type Registry struct {
	variants map[domain.QuestionType]Variant
	fallback domain.QuestionType
	log      *zap.Logger
}

// New returns a registry holding the five built-in variants.
func New(log *zap.Logger) *Registry {
	r := &Registry{
		variants: make(map[domain.QuestionType]Variant),
		fallback: domain.MultipleChoice,
		log:      logger.OrNop(log).Named("registry"),
	}
	r.Register(multipleChoice{})
	r.Register(multipleCorrect{})
	r.Register(trueFalse{})
	r.Register(numeric{})
	r.Register(ordering{})
	return r
}

// Register adds or replaces a variant.
func (r *Registry) Register(v Variant) {
	r.variants[v.Type()] = v
}

// Types lists registered type tags.
func (r *Registry) Types() []domain.QuestionType {
	out := make([]domain.QuestionType, 0, len(r.variants))
	for t := range r.variants {
		out = append(out, t)
	}
	return out
}

// Lookup returns the variant for t. Unknown tags yield the
// multiple-choice variant together with a KindUnknownType error.
func (r *Registry) Lookup(t domain.QuestionType) (Variant, error) {
	if v, ok := r.variants[t]; ok {
		return v, nil
	}
	return r.variants[r.fallback], domain.E(domain.KindUnknownType, "lookup", fmt.Errorf("%w: %q", domain.ErrUnknownQuestionType, t))
}

// Variant is Lookup that logs and falls back silently.
func (r *Registry) Variant(t domain.QuestionType) Variant {
	v, err := r.Lookup(t)
	if err != nil {
		r.log.Warn("falling back to multiple-choice", zap.String("type", string(t)))
	}
	return v
}

// Validate runs the shared checks and then the variant's own.
func (r *Registry) Validate(q domain.Question) Validation {
	if _, err := r.Lookup(q.Type); err != nil {
		return invalid(ReasonUnknownType)
	}
	if strings.TrimSpace(q.Text) == "" {
		return invalid(ReasonMissingText)
	}
	if q.TimeLimit <= 0 {
		return invalid(ReasonTimeLimit)
	}
	return r.variants[q.Type].Validate(q)
}

// ScoreAnswer scores answer against q's correctness.
func (r *Registry) ScoreAnswer(q domain.Question, answer domain.Answer, opts ScoreOptions) Score {
	if opts.Tolerance == nil && q.Type == domain.Numeric {
		tol := q.EffectiveTolerance()
		opts.Tolerance = &tol
	}
	return r.Variant(q.Type).ScoreAnswer(answer, q.Correctness(), opts)
}

// ExtractData reads a whole question from an editor item.
func (r *Registry) ExtractData(item *goquery.Selection) domain.Question {
	q := domain.Question{
		Type:        domain.QuestionType(item.AttrOr("data-type", string(r.fallback))),
		Text:        dom.Value(item.Find(".question-text").First()),
		Difficulty:  dom.Value(item.Find(".question-difficulty").First()),
		Explanation: dom.Value(item.Find(".question-explanation").First()),
		Image:       dom.Value(item.Find(".question-image").First()),
		Video:       dom.Value(item.Find(".question-video").First()),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(dom.Value(item.Find(".question-time-limit").First()))); err == nil {
		q.TimeLimit = n
	}
	r.Variant(q.Type).ExtractData(item, &q)
	return q
}

// Populate writes q into an editor item.
func (r *Registry) Populate(item *goquery.Selection, q domain.Question) {
	if !dom.Exists(item) {
		return
	}
	item.SetAttr("data-type", string(q.Type))
	dom.SetValue(item.Find(".question-text").First(), q.Text)
	dom.SetValue(item.Find(".question-difficulty").First(), q.Difficulty)
	dom.SetValue(item.Find(".question-explanation").First(), q.Explanation)
	dom.SetValue(item.Find(".question-image").First(), q.Image)
	dom.SetValue(item.Find(".question-video").First(), q.Video)
	if q.TimeLimit > 0 {
		dom.SetValue(item.Find(".question-time-limit").First(), strconv.Itoa(q.TimeLimit))
	}
	r.Variant(q.Type).Populate(item, q)
}

// Letter labels option i as A, B, C, …
func Letter(i int) string {
	if i >= 0 && i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i + 1)
}

func isPermutation(p []int, n int) bool {
	if len(p) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range p {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func intAttr(sel *goquery.Selection, name string) (int, bool) {
	v, ok := sel.Attr(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func renderNoOptions(container *goquery.Selection) {
	container.SetHtml(`<div class="` + dom.ClassNoOptions + `">No options</div>`)
}

func hostOptionList(options []string, container *goquery.Selection, h Helpers) {
	if len(options) == 0 {
		renderNoOptions(container)
		return
	}
	var b strings.Builder
	for i, opt := range options {
		fmt.Fprintf(&b, `<div class="option-display" data-option="%d"><span class="option-letter">%s</span> <span class="option-text %s">%s</span></div>`,
			i, Letter(i), dom.ClassMathPending, dom.Escape(opt))
	}
	container.SetHtml(b.String())
}

func submitButton() string {
	return `<button id="` + dom.PlayerSubmit + `" class="submit-answer">Submit</button>`
}

func markOption(container *goquery.Selection, selector string, i int, class string) {
	container.Find(fmt.Sprintf(`%s[data-option="%d"]`, selector, i)).AddClass(class)
}
