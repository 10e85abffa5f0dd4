// Package interaction binds player input for the question on screen and
// turns it into submissions.
package interaction

import (
	"context"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/logger"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
	"quizlive/internal/state"
)

// Options are optional hooks.
type Options struct {
	// OnSubmitted runs after an accepted submission has been emitted.
	OnSubmitted func(domain.Answer)
	// OnError runs when a submission could not be sent.
	OnError func(error)
	// Intercept, when set and returning true, takes over an answer
	// instead of submitting it. Team mode uses it to propose.
	Intercept func(domain.Answer) bool
	Log     *zap.Logger
}

// Handler owns the listeners of the player options container.
type Handler struct {
	ctx       context.Context
	doc       *dom.Document
	store     *state.Store
	bus       bus.Bus
	listeners *dom.Listeners
	opts      Options
	log       *zap.Logger

	variant registry.Variant
	bound   []dom.ListenerID
}

func New(ctx context.Context, doc *dom.Document, store *state.Store, b bus.Bus, opts Options) *Handler {
	return &Handler{
		ctx:       ctx,
		doc:       doc,
		store:     store,
		bus:       b,
		listeners: dom.NewListeners(),
		opts:      opts,
		log:       logger.OrNop(opts.Log).Named("interaction"),
	}
}

func (h *Handler) container() *goquery.Selection {
	return h.doc.ByID(dom.PlayerOptions)
}

// Bind installs the listeners for v, dropping any left from the previous
// question.
func (h *Handler) Bind(v registry.Variant) {
	h.Unbind()
	h.variant = v
	spec := v.Input()
	container := h.container()

	targets := container.Find(spec.Selector)
	switch spec.Event {
	case "click":
		if spec.AutoSubmit {
			h.track(h.listeners.Bind(targets, "click", h.onPick))
		} else {
			h.track(h.listeners.Bind(targets, "click", h.onToggle))
		}
	case "input":
		h.track(h.listeners.Bind(targets, "input", h.onInput))
	case "move":
		h.track(h.listeners.Bind(targets, "move", h.onMove))
	}
	if !spec.AutoSubmit {
		h.track(h.listeners.Bind(container.Find("#"+dom.PlayerSubmit), "click", h.onSubmitButton))
	}
}

func (h *Handler) track(ids []dom.ListenerID) {
	h.bound = append(h.bound, ids...)
}

// Unbind drops every listener bound for the current question.
func (h *Handler) Unbind() {
	h.listeners.Unbind(h.bound...)
	h.bound = nil
	h.variant = nil
}

// ListenerCount reports live listeners.
func (h *Handler) ListenerCount() int { return h.listeners.Count() }

func (h *Handler) onPick(ev dom.Event) {
	h.container().Find(h.variant.Input().Selector).RemoveClass(dom.ClassSelected)
	ev.Target.AddClass(dom.ClassSelected)
	a, ok := h.variant.ExtractAnswer(h.container())
	if !ok {
		return
	}
	_ = h.Submit(a)
}

func (h *Handler) onToggle(ev dom.Event) {
	dom.SetChecked(ev.Target, !dom.Checked(ev.Target))
	h.recordSelection()
}

func (h *Handler) onInput(ev dom.Event) {
	dom.SetValue(ev.Target, ev.Value)
	h.recordSelection()
}

func (h *Handler) onMove(ev dom.Event) {
	items := ev.Target.Children().Filter(".ordering-item")
	n := items.Length()
	if ev.From < 0 || ev.From >= n || ev.To < 0 || ev.To >= n || ev.From == ev.To {
		return
	}
	moving := items.Eq(ev.From)
	if ev.From < ev.To {
		items.Eq(ev.To).AfterSelection(moving)
	} else {
		items.Eq(ev.To).BeforeSelection(moving)
	}
	h.recordSelection()
}

// recordSelection records the in-progress answer without submitting it.
func (h *Handler) recordSelection() {
	a, ok := h.variant.ExtractAnswer(h.container())
	if !ok {
		return
	}
	if err := h.store.SetSelectedAnswer(a); err != nil {
		h.log.Debug("selection ignored", zap.Error(err))
	}
}

func (h *Handler) onSubmitButton(dom.Event) {
	a, ok := h.variant.ExtractAnswer(h.container())
	if !ok {
		h.log.Debug("submit without a complete answer")
		return
	}
	_ = h.Submit(a)
}

// Submit accepts a only when the player has not yet answered and the
// result is not on screen. Rejections are logged and returned; the state
// is left untouched.
func (h *Handler) Submit(a domain.Answer) error {
	if h.opts.Intercept != nil && h.opts.Intercept(a) {
		return nil
	}
	if err := h.store.Submit(a); err != nil {
		if domain.KindOf(err) == domain.KindDuplicateSubmission {
			h.log.Debug("duplicate submission ignored", zap.Error(err))
		} else {
			h.log.Info("submission rejected", zap.Error(err))
		}
		return err
	}
	h.applySelection(a)

	if err := h.bus.Emit(h.ctx, protocol.TopicSubmitAnswer, protocol.NewAnswerPayload(a)); err != nil {
		h.log.Warn("submit-answer not sent", zap.Error(err))
		if h.opts.OnError != nil {
			h.opts.OnError(err)
		}
		return err
	}
	if h.opts.OnSubmitted != nil {
		h.opts.OnSubmitted(a)
	}
	return nil
}

// applySelection styles the submitted answer and locks the inputs.
func (h *Handler) applySelection(a domain.Answer) {
	c := h.container()
	mark := func(selector string, i int) {
		c.Find(fmt.Sprintf(`%s[data-option="%d"]`, selector, i)).AddClass(dom.ClassSelected)
	}
	switch a.Kind {
	case domain.MultipleChoice:
		mark(".player-option", a.Index)
	case domain.TrueFalse:
		c.Find(fmt.Sprintf(`.tf-option[data-answer="%t"]`, a.Bool)).AddClass(dom.ClassSelected)
	case domain.MultipleCorrect:
		for _, i := range a.Indices {
			mark(".checkbox-option", i)
		}
	case domain.Numeric:
		c.Find("#" + dom.NumericInput).AddClass(dom.ClassSelected)
	case domain.Ordering:
		c.Find("#" + dom.OrderingList).AddClass(dom.ClassSelected)
	}
	dom.Disable(c.Find("button, input, ol, li"))
}

// Click simulates a click on the option with index i.
func (h *Handler) Click(i int) bool {
	if h.variant == nil {
		return false
	}
	target := h.container().Find(fmt.Sprintf(`%s[data-option="%d"]`, h.variant.Input().Selector, i))
	if !dom.Exists(target) {
		// checkboxes carry their index as value
		target = h.container().Find(fmt.Sprintf(`%s[value="%d"]`, h.variant.Input().Selector, i))
	}
	return h.listeners.Dispatch(target, dom.Event{Type: "click"}) > 0
}

// Type simulates typing into the numeric input.
func (h *Handler) Type(value string) bool {
	return h.listeners.Dispatch(h.container().Find("#"+dom.NumericInput), dom.Event{Type: "input", Value: value}) > 0
}

// Move simulates dragging the ordering item at from to position to.
func (h *Handler) Move(from, to int) bool {
	return h.listeners.Dispatch(h.container().Find("#"+dom.OrderingList), dom.Event{Type: "move", From: from, To: to}) > 0
}

// PressSubmit simulates the submit button.
func (h *Handler) PressSubmit() bool {
	return h.listeners.Dispatch(h.container().Find("#"+dom.PlayerSubmit), dom.Event{Type: "click"}) > 0
}

// ParseIndex parses a 1-based or letter option reference.
func ParseIndex(s string) (int, error) {
	if len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z' {
		return int(s[0] - 'A'), nil
	}
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'z' {
		return int(s[0] - 'a'), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad option %q", s)
	}
	return n - 1, nil
}
