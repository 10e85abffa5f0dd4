// Package display renders questions, reveals and side panels into one
// pane of a dom.Document.
//
// Each question goes through purge, text, typeset, media and highlight in
// that order. Purge and text run synchronously inside Show; the rest runs
// in the background and hands its DOM changes back through Options.Post so
// the document is only ever touched by its owner. Work for a question that
// has since been replaced is dropped.
package display

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/fault"
	"quizlive/internal/logger"
	"quizlive/internal/registry"
)

// Stage names a pipeline step for Options.Trace.
type Stage string

const (
	StagePurge          Stage = "purge"
	StageText           Stage = "text"
	StageTypeset        Stage = "typeset"
	StageTypesetSkipped Stage = "typeset-skipped"
	StageMedia          Stage = "media"
	StageHighlight      Stage = "highlight"
)

type Options struct {
	// BasePath prefixes /uploads image paths.
	BasePath string
	// Typesetter renders math. Nil uses DelimiterTypesetter.
	Typesetter  Typesetter
	Highlighter Highlighter
	// Prober checks uploaded images before they are attached. Nil attaches
	// without checking.
	Prober        Prober
	MediaAttempts int
	MediaBackoff  time.Duration
	// Post runs fn on the goroutine that owns the document. When nil the
	// coordinator queues fn until Settle.
	Post func(fn func())
	// Trace observes pipeline steps with the question sequence number.
	Trace   func(stage Stage, seq uint64)
	Shuffle func(n int) []int
	Log     *zap.Logger
}

// Coordinator drives one role's pane.
type Coordinator struct {
	doc     *dom.Document
	reg     *registry.Registry
	role    domain.Role
	pane    dom.Pane
	opts    Options
	log     *zap.Logger
	helpers registry.Helpers

	seq         atomic.Uint64
	typesetting atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	pendingMu sync.Mutex
	pending   []func()

	question domain.Question
	variant  registry.Variant
}

func New(doc *dom.Document, reg *registry.Registry, role domain.Role, opts Options) *Coordinator {
	if opts.MediaAttempts <= 0 {
		opts.MediaAttempts = 3
	}
	if opts.MediaBackoff <= 0 {
		opts.MediaBackoff = 100 * time.Millisecond
	}
	if opts.Typesetter == nil {
		opts.Typesetter = DelimiterTypesetter{}
	}
	if opts.Highlighter == nil {
		opts.Highlighter = ChromaHighlighter{}
	}
	log := logger.OrNop(opts.Log).Named("display")
	pane := dom.PlayerIDs
	if role == domain.RoleHost {
		pane = dom.HostIDs
	}
	return &Coordinator{
		doc:     doc,
		reg:     reg,
		role:    role,
		pane:    pane,
		opts:    opts,
		log:     log,
		helpers: registry.Helpers{Shuffle: opts.Shuffle, Log: log},
	}
}

// Document returns the document the coordinator renders into.
func (c *Coordinator) Document() *dom.Document { return c.doc }

// Pane returns the IDs of the pane the coordinator owns.
func (c *Coordinator) Pane() dom.Pane { return c.pane }

// Question returns the question on screen.
func (c *Coordinator) Question() domain.Question { return c.question }

// Variant returns the registry variant of the question on screen.
func (c *Coordinator) Variant() registry.Variant { return c.variant }

// Seq returns the sequence number of the question on screen.
func (c *Coordinator) Seq() uint64 { return c.seq.Load() }

// Show renders q. Purge and text injection are complete when Show
// returns; typeset, media and highlight follow asynchronously. A render
// failure leaves an error notice in the question container and is
// returned with KindRendering.
func (c *Coordinator) Show(ctx context.Context, q domain.Question, number, total int) error {
	seq := c.seq.Add(1)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	variant, err := c.reg.Lookup(q.Type)
	if err != nil {
		c.log.Warn("unknown question type, using multiple-choice", zap.String("type", string(q.Type)))
	}
	c.question = q
	c.variant = variant

	c.purge()
	c.trace(StagePurge, seq)

	var renderErr error
	_ = fault.Safe(c.log, "display.text", func() error {
		c.injectText(q, variant, number, total)
		return nil
	}, func(err error) {
		renderErr = domain.E(domain.KindRendering, "display.text", err)
		c.RenderError("This question could not be displayed.")
	})
	c.trace(StageText, seq)

	job := c.capture(q)
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.finish(runCtx, seq, job)
	return renderErr
}

func (c *Coordinator) purge() {
	root := c.doc.ByID(c.pane.Root)
	root.Find(fmt.Sprintf(".%s, .%s, .%s, .correct-order, #%s",
		dom.ClassMathContainer, dom.ClassExplanation, dom.ClassNumericAnswer, dom.HostExplanation)).Remove()
	root.Find("picture, img, video").Remove()
	c.doc.ByID(c.pane.Media).Empty()
	for _, id := range []string{c.pane.Question, c.pane.Options} {
		el := c.doc.ByID(id)
		el.RemoveClass(dom.ClassMathDone, dom.ClassMathPending)
		el.Empty()
	}
}

func (c *Coordinator) injectText(q domain.Question, variant registry.Variant, number, total int) {
	text := c.doc.ByID(c.pane.Question)
	// marked before the markup lands so raw math is never shown unprocessed
	text.AddClass(dom.ClassMathPending)
	text.SetHtml(RenderText(q.Text))

	options := c.doc.ByID(c.pane.Options)
	if c.role == domain.RoleHost {
		variant.RenderHostOptions(q, options, c.helpers)
	} else {
		variant.RenderPlayerOptions(q, options, c.helpers)
	}
	if total > 0 {
		c.doc.ByID(c.pane.Counter).SetText(fmt.Sprintf("Question %d of %d", number, total))
	}
}

type job struct {
	nodes     []*html.Node
	fragments []string
	blocks    []codeBlock
	image     string
	imageWebp string
	video     string
}

// capture reads everything the background steps need while the document
// is still owned by the caller.
func (c *Coordinator) capture(q domain.Question) job {
	var j job
	add := func(s *goquery.Selection) {
		if n := dom.Node(s); n != nil {
			markup, _ := s.Html()
			j.nodes = append(j.nodes, n)
			j.fragments = append(j.fragments, markup)
		}
	}
	add(c.doc.ByID(c.pane.Question))
	c.doc.ByID(c.pane.Options).Find("." + dom.ClassMathPending).Each(func(_ int, s *goquery.Selection) { add(s) })

	c.doc.ByID(c.pane.Question).Find("pre > code").Each(func(i int, s *goquery.Selection) {
		j.blocks = append(j.blocks, codeBlock{index: i, lang: languageOf(s.AttrOr("class", "")), code: s.Text()})
	})

	j.image, j.imageWebp, j.video = q.Image, q.ImageWebp, q.Video
	return j
}

func (c *Coordinator) finish(ctx context.Context, seq uint64, j job) {
	defer c.wg.Done()
	_ = fault.Safe(c.log, "display.typeset", func() error { return c.typeset(ctx, seq, j) }, nil)
	if ctx.Err() != nil {
		return
	}
	_ = fault.Safe(c.log, "display.media", func() error { return c.media(ctx, seq, j) }, nil)
	if ctx.Err() != nil {
		return
	}
	_ = fault.Safe(c.log, "display.highlight", func() error { return c.highlight(seq, j) }, nil)
}

func (c *Coordinator) typeset(ctx context.Context, seq uint64, j job) error {
	if c.opts.Typesetter == nil || len(j.fragments) == 0 {
		return nil
	}
	if !c.typesetting.CompareAndSwap(false, true) {
		c.trace(StageTypesetSkipped, seq)
		c.log.Debug("typeset already in flight, skipping")
		return nil
	}
	c.trace(StageTypeset, seq)
	out, err := c.opts.Typesetter.Typeset(ctx, j.fragments)
	c.typesetting.Store(false)
	if err != nil {
		return domain.E(domain.KindRendering, "typeset", err)
	}
	if len(out) != len(j.nodes) {
		return domain.E(domain.KindRendering, "typeset", fmt.Errorf("got %d fragments, want %d", len(out), len(j.nodes)))
	}
	c.post(seq, func() {
		root := c.doc.Root()
		for i, n := range j.nodes {
			// elements purged since capture are gone from the tree
			sel := root.FindNodes(n)
			if sel.Length() == 0 {
				continue
			}
			sel.SetHtml(out[i])
			sel.RemoveClass(dom.ClassMathPending).AddClass(dom.ClassMathDone)
		}
	})
	return nil
}

func (c *Coordinator) media(ctx context.Context, seq uint64, j job) error {
	if j.image == "" && j.video == "" {
		return nil
	}
	c.trace(StageMedia, seq)
	var markup string
	if j.image != "" {
		src, err := ResolveImagePath(c.opts.BasePath, j.image)
		if err != nil {
			return domain.E(domain.KindRendering, "media", err)
		}
		webp := ""
		if j.imageWebp != "" {
			if w, err := ResolveImagePath(c.opts.BasePath, j.imageWebp); err == nil {
				webp = w
			}
		}
		if c.opts.Prober != nil && !isDataURI(src) {
			if err := probeWithRetry(ctx, c.opts.Prober, src, c.opts.MediaAttempts, c.opts.MediaBackoff); err != nil {
				return domain.E(domain.KindRendering, "media", fmt.Errorf("image %s: %w", src, err))
			}
		}
		markup += pictureHTML(src, webp, "")
	}
	if j.video != "" {
		markup += videoHTML(j.video)
	}
	c.post(seq, func() {
		c.doc.ByID(c.pane.Media).AppendHtml(markup)
	})
	return nil
}

func (c *Coordinator) highlight(seq uint64, j job) error {
	if len(j.blocks) == 0 {
		return nil
	}
	c.trace(StageHighlight, seq)
	rendered := make(map[int]string, len(j.blocks))
	for _, b := range j.blocks {
		out, err := c.opts.Highlighter.Highlight(b.code, b.lang)
		if err != nil {
			c.log.Warn("highlight failed", zap.String("lang", b.lang), zap.Error(err))
			continue
		}
		rendered[b.index] = out
	}
	c.post(seq, func() {
		c.doc.ByID(c.pane.Question).Find("pre").Each(func(i int, s *goquery.Selection) {
			if out, ok := rendered[i]; ok {
				s.ReplaceWithHtml(out)
			}
		})
	})
	return nil
}

func isDataURI(s string) bool { return len(s) > 5 && s[:5] == "data:" }

// post hands fn to the document owner. fn is dropped if another question
// has been shown in the meantime.
func (c *Coordinator) post(seq uint64, fn func()) {
	guarded := func() {
		if c.seq.Load() != seq {
			return
		}
		fn()
	}
	if c.opts.Post != nil {
		c.opts.Post(guarded)
		return
	}
	c.pendingMu.Lock()
	c.pending = append(c.pending, guarded)
	c.pendingMu.Unlock()
}

// Settle waits for background steps and, without Options.Post, applies
// their queued changes. It must be called by the document owner.
func (c *Coordinator) Settle() {
	c.wg.Wait()
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// Cancel abandons background work for the current question.
func (c *Coordinator) Cancel() {
	c.seq.Add(1)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Clear empties the pane and forgets the current question.
func (c *Coordinator) Clear() {
	c.Cancel()
	c.purge()
	c.question = domain.Question{}
	c.variant = nil
	for _, id := range []string{c.pane.Counter, c.pane.Timer, c.pane.Consensus, c.pane.Discussion, c.pane.Leaderboard} {
		el := c.doc.ByID(id)
		el.Empty()
		el.RemoveClass(dom.ClassWarning)
	}
	if c.role == domain.RoleHost {
		c.doc.ByID(dom.AnswerStatistics).Empty()
	} else {
		c.HideFeedback()
		c.doc.ByID(dom.PowerUps).Empty()
	}
	c.ClearNotice()
}

func (c *Coordinator) trace(stage Stage, seq uint64) {
	if c.opts.Trace != nil {
		c.opts.Trace(stage, seq)
	}
}
