package display

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/registry"
)

// RevealHost marks the correct option(s) and appends the explanation and,
// for numeric questions, the accepted answer.
func (c *Coordinator) RevealHost(correct domain.Answer, hasCorrect bool, explanation string, tolerance *float64) {
	if c.variant == nil {
		return
	}
	q := c.question
	options := c.doc.ByID(c.pane.Options)
	if hasCorrect {
		c.variant.RevealHost(q, options, correct, c.helpers)
		if q.Type == domain.Numeric {
			c.appendNumeric(correct.Number, tolerance)
		}
	}
	c.appendExplanation(explanation)
}

// RevealPlayer styles the player's selection against the canonical answer
// and locks the inputs.
func (c *Coordinator) RevealPlayer(r registry.Reveal, explanation string, tolerance *float64) {
	if c.variant == nil {
		return
	}
	options := c.doc.ByID(c.pane.Options)
	c.variant.RevealPlayer(options, r)
	c.DisableInputs()
	if r.HasCorrect && c.question.Type == domain.Numeric {
		c.appendNumeric(r.Correct.Number, tolerance)
	}
	c.appendExplanation(explanation)
}

// DisableInputs locks every control in the options container.
func (c *Coordinator) DisableInputs() {
	dom.Disable(c.doc.ByID(c.pane.Options).Find("button, input, li"))
}

func (c *Coordinator) appendNumeric(n float64, tolerance *float64) {
	tol := c.question.EffectiveTolerance()
	if tolerance != nil {
		tol = *tolerance
	}
	c.doc.ByID(c.pane.Options).AfterHtml(fmt.Sprintf(`<div class="%s">Correct answer: %s</div>`,
		dom.ClassNumericAnswer, dom.Escape(registry.FormatNumericAnswer(n, tol))))
}

func (c *Coordinator) appendExplanation(explanation string) {
	if strings.TrimSpace(explanation) == "" {
		return
	}
	id := ""
	if c.role == domain.RoleHost {
		id = ` id="` + dom.HostExplanation + `"`
	}
	c.doc.ByID(c.pane.Options).AfterHtml(fmt.Sprintf(`<div%s class="%s">%s</div>`, id, dom.ClassExplanation, RenderText(explanation)))
}

// AnswerLabel renders a correct answer for people: "C: Paris", "True",
// "A, C", "3.14 (±0.01)" or "A → C → B".
func AnswerLabel(q domain.Question, a domain.Answer, tolerance *float64) string {
	switch a.Kind {
	case domain.MultipleChoice:
		label := registry.Letter(a.Index)
		if a.Index >= 0 && a.Index < len(q.Options) {
			label += ": " + q.Options[a.Index]
		}
		return label
	case domain.MultipleCorrect:
		parts := make([]string, len(a.Indices))
		for i, idx := range a.Indices {
			parts[i] = registry.Letter(idx)
		}
		return strings.Join(parts, ", ")
	case domain.TrueFalse:
		if a.Bool {
			return "True"
		}
		return "False"
	case domain.Numeric:
		tol := q.EffectiveTolerance()
		if tolerance != nil {
			tol = *tolerance
		}
		return registry.FormatNumericAnswer(a.Number, tol)
	case domain.Ordering:
		return registry.OrderLabel(a.Order)
	}
	return ""
}

// Feedback is the player's result modal.
type Feedback struct {
	IsCorrect bool
	Points    int
	// Partial is the share of credit for a partially correct answer.
	Partial     *float64
	CorrectText string
	Explanation string
}

// Title is the modal headline, e.g. "Correct! +100" or
// "Partially Correct (33%)".
func (f Feedback) Title() string {
	var title string
	switch {
	case f.IsCorrect:
		title = "Correct!"
	case f.Partial != nil && *f.Partial > 0:
		title = fmt.Sprintf("Partially Correct (%d%%)", int(math.Round(*f.Partial*100)))
	default:
		title = "Incorrect"
	}
	if f.IsCorrect && f.Points > 0 {
		title += " +" + strconv.Itoa(f.Points)
	}
	return title
}

// ShowFeedback opens the result modal.
func (c *Coordinator) ShowFeedback(f Feedback) {
	el := c.doc.ByID(dom.PlayerFeedback)
	class := dom.ClassIncorrect
	if f.IsCorrect {
		class = dom.ClassCorrect
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="feedback-title">%s</div>`, dom.Escape(f.Title()))
	if !f.IsCorrect && f.Points > 0 {
		fmt.Fprintf(&b, `<div class="feedback-points">+%d</div>`, f.Points)
	}
	if f.CorrectText != "" && !f.IsCorrect {
		fmt.Fprintf(&b, `<div class="feedback-correct">Correct answer: %s</div>`, dom.Escape(f.CorrectText))
	}
	if f.Explanation != "" {
		fmt.Fprintf(&b, `<div class="%s">%s</div>`, dom.ClassExplanation, RenderText(f.Explanation))
	}
	el.SetHtml(b.String())
	el.RemoveClass(dom.ClassHidden, dom.ClassCorrect, dom.ClassIncorrect).AddClass(class)
	c.Announce(f.Title())
}

// HideFeedback closes and empties the result modal.
func (c *Coordinator) HideFeedback() {
	el := c.doc.ByID(dom.PlayerFeedback)
	el.Empty()
	el.RemoveClass(dom.ClassCorrect, dom.ClassIncorrect).AddClass(dom.ClassHidden)
}

// FeedbackVisible reports whether the result modal is open.
func (c *Coordinator) FeedbackVisible() bool {
	return !c.doc.ByID(dom.PlayerFeedback).HasClass(dom.ClassHidden)
}

func (c *Coordinator) SetScore(score int) {
	c.doc.ByID(dom.PlayerScore).SetText(strconv.Itoa(score))
}

// SetTimer shows the remaining whole seconds, rounded up.
func (c *Coordinator) SetTimer(remaining time.Duration) {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 0 {
		secs = 0
	}
	el := c.doc.ByID(c.pane.Timer)
	el.RemoveClass("static")
	el.SetText(strconv.Itoa(secs))
}

// SetTimerWarning toggles the warning band.
func (c *Coordinator) SetTimerWarning(on bool) {
	el := c.doc.ByID(c.pane.Timer)
	if on {
		el.AddClass(dom.ClassWarning)
		return
	}
	el.RemoveClass(dom.ClassWarning)
}

// SetTimerStatic shows the time limit without counting, used when the
// local countdown cannot run.
func (c *Coordinator) SetTimerStatic(seconds int) {
	el := c.doc.ByID(c.pane.Timer)
	el.SetText(fmt.Sprintf("%ds", seconds))
	el.AddClass("static")
}
