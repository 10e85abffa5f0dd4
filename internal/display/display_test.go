package display

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/registry"
	"quizlive/internal/stats"
)

type traceLog struct {
	mu     sync.Mutex
	stages []string
}

func (l *traceLog) add(s Stage, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, string(s)+"#"+string(rune('0'+seq)))
}

func (l *traceLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stages...)
}

func newCoordinator(t *testing.T, role domain.Role, opts Options) *Coordinator {
	t.Helper()
	opts.Log = zaptest.NewLogger(t)
	return New(dom.New(), registry.New(opts.Log), role, opts)
}

func mcQuestion() domain.Question {
	return domain.Question{
		Type:         domain.MultipleChoice,
		Text:         "What is $x^2$ when x is 3?",
		Options:      []string{"6", "9", "12", "3"},
		CorrectIndex: 1,
		TimeLimit:    20,
	}
}

func TestPipelineRunsInOrder(t *testing.T) {
	trace := &traceLog{}
	c := newCoordinator(t, domain.RolePlayer, Options{
		Typesetter: DelimiterTypesetter{},
		Trace:      trace.add,
	})
	q := mcQuestion()
	q.Text = "Run this:\n\n```go\nfmt.Println(1)\n```\n\nand $y$"
	q.Image = "data:image/png;base64,AAAA"

	require.NoError(t, c.Show(context.Background(), q, 1, 3))
	c.Settle()

	assert.Equal(t, []string{"purge#1", "text#1", "typeset#1", "media#1", "highlight#1"}, trace.get())
	doc := c.Document()
	assert.True(t, doc.ByID(dom.PlayerQuestion).HasClass(dom.ClassMathDone))
	assert.Equal(t, 1, doc.ByID(dom.PlayerQuestion).Find("."+dom.ClassMathContainer).Length())
	assert.Equal(t, 1, doc.ByID(dom.PlayerMedia).Find("img").Length())
	assert.Equal(t, 1, doc.ByID(dom.PlayerQuestion).Find(".chroma").Length())
	assert.Equal(t, "Question 1 of 3", dom.Text(doc.ByID(dom.PlayerCounter)))
}

func TestRenderTextKeepsMathDelimiters(t *testing.T) {
	out := RenderText("Solve \\(x^2 = 4\\) and *show* $a<b$")
	assert.Contains(t, out, `\(x^2 = 4\)`)
	assert.Contains(t, out, "$a&lt;b$")
	assert.Contains(t, out, "<em>show</em>")

	block := RenderText("Area:\n\n\\[\\pi r^2\\]\n\nand $$e^{i\\pi}$$")
	assert.Contains(t, block, `\[\pi r^2\]`)
	assert.Contains(t, block, `$$e^{i\pi}$$`)
	assert.NotContains(t, block, "QLMATH")

	typeset, err := DelimiterTypesetter{}.Typeset(context.Background(), []string{out, block})
	require.NoError(t, err)
	assert.Contains(t, typeset[0], `<span class="`+dom.ClassMathContainer+`">x^2 = 4</span>`)
	assert.Contains(t, typeset[1], `<span class="`+dom.ClassMathContainer+`">\pi r^2</span>`)
	assert.Contains(t, typeset[1], `<span class="`+dom.ClassMathContainer+`">e^{i\pi}</span>`)
}

func TestDefaultTypesetterRendersParenMath(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	q := mcQuestion()
	q.Text = "Solve \\(x^2 = 4\\)"
	require.NoError(t, c.Show(context.Background(), q, 1, 1))
	c.Settle()

	text := c.Document().ByID(dom.PlayerQuestion)
	assert.True(t, text.HasClass(dom.ClassMathDone))
	math := text.Find("." + dom.ClassMathContainer)
	require.Equal(t, 1, math.Length())
	assert.Equal(t, "x^2 = 4", math.Text())
}

func TestTextIsMarkedBeforeTypeset(t *testing.T) {
	var fragments []string
	seen := make(chan struct{}, 1)
	c := newCoordinator(t, domain.RolePlayer, Options{
		Typesetter: TypesetterFunc(func(_ context.Context, f []string) ([]string, error) {
			fragments = f
			seen <- struct{}{}
			return f, nil
		}),
	})
	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 1))

	// pending marker is in place as soon as Show returns
	assert.True(t, c.Document().ByID(dom.PlayerQuestion).HasClass(dom.ClassMathPending))
	c.Settle()
	<-seen
	require.NotEmpty(t, fragments)
	assert.Contains(t, fragments[0], "$x^2$")
	// question plus four option labels
	assert.Len(t, fragments, 5)
}

func TestTypesetGuardSkipsOverlappingCalls(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32
	trace := &traceLog{}
	c := newCoordinator(t, domain.RolePlayer, Options{
		Trace: trace.add,
		Typesetter: TypesetterFunc(func(_ context.Context, f []string) ([]string, error) {
			calls.Add(1)
			started <- struct{}{}
			<-release
			return f, nil
		}),
	})

	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 2))
	<-started
	second := mcQuestion()
	second.Text = "Second"
	require.NoError(t, c.Show(context.Background(), second, 2, 2))

	time.Sleep(20 * time.Millisecond)
	close(release)
	c.Settle()

	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, trace.get(), "typeset-skipped#2")
	// the late result for question 1 was dropped
	assert.False(t, c.Document().ByID(dom.PlayerQuestion).HasClass(dom.ClassMathDone))
	assert.Contains(t, dom.Text(c.Document().ByID(dom.PlayerQuestion)), "Second")
}

func TestTypesetFailureKeepsContent(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{
		Typesetter: TypesetterFunc(func(context.Context, []string) ([]string, error) {
			return nil, errors.New("typesetter offline")
		}),
	})
	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 1))
	c.Settle()
	assert.Contains(t, dom.Text(c.Document().ByID(dom.PlayerQuestion)), "What is")
}

func TestPurgeRemovesPreviousQuestionArtifacts(t *testing.T) {
	c := newCoordinator(t, domain.RoleHost, Options{Typesetter: DelimiterTypesetter{}})
	q := mcQuestion()
	q.Image = "/uploads/cat.png"
	require.NoError(t, c.Show(context.Background(), q, 1, 2))
	c.Settle()
	c.RevealHost(domain.IndexAnswer(1), true, "Because 3·3 is 9.", nil)

	doc := c.Document()
	require.Equal(t, 1, doc.Find("#"+dom.HostExplanation).Length())
	require.Equal(t, 1, doc.ByID(dom.HostMedia).Find("img").Length())

	next := domain.Question{Type: domain.TrueFalse, Text: "Sky is blue", TimeLimit: 10}
	require.NoError(t, c.Show(context.Background(), next, 2, 2))
	assert.Equal(t, 0, doc.Find("#"+dom.HostExplanation).Length())
	assert.Equal(t, 0, doc.ByID(dom.HostPane).Find("img, picture, ."+dom.ClassMathContainer).Length())
	assert.False(t, doc.ByID(dom.HostQuestionText).HasClass(dom.ClassMathDone))
	assert.Equal(t, 0, doc.ByID(dom.HostOptions).Find("."+dom.ClassCorrect).Length())
}

func TestResolveImagePath(t *testing.T) {
	tests := []struct {
		base, stored, want string
		err                bool
	}{
		{"", "/uploads/a.png", "/uploads/a.png", false},
		{"/quiz", "/uploads/a.png", "/quiz/uploads/a.png", false},
		{"quiz/", "uploads/a.png", "/quiz/uploads/a.png", false},
		{"/quiz", "a.png", "/quiz/uploads/a.png", false},
		{"/quiz", "/quiz/uploads/a.png", "/quiz/uploads/a.png", false},
		{"/quiz", "data:image/png;base64,AA", "data:image/png;base64,AA", false},
		{"/quiz", "", "", false},
		{"/quiz", "https://cdn.example.com/a.png", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveImagePath(tt.base, tt.stored)
		if tt.err {
			assert.ErrorIs(t, err, domain.ErrFullURL, tt.stored)
			continue
		}
		require.NoError(t, err, tt.stored)
		assert.Equal(t, tt.want, got, tt.stored)
	}
	assert.Equal(t, "/uploads/a.png", StoragePath("/quiz", "/quiz/uploads/a.png"))
}

type flakyProber struct {
	mu       sync.Mutex
	failures int
	attempts int
	times    []time.Time
}

func (p *flakyProber) Probe(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	p.times = append(p.times, time.Now())
	if p.attempts <= p.failures {
		return errors.New("not yet")
	}
	return nil
}

func TestImageRetriesUntilServed(t *testing.T) {
	prober := &flakyProber{failures: 2}
	c := newCoordinator(t, domain.RolePlayer, Options{Prober: prober, MediaBackoff: 5 * time.Millisecond})
	q := mcQuestion()
	q.Image = "/uploads/late.png"
	q.ImageWebp = "/uploads/late.webp"
	require.NoError(t, c.Show(context.Background(), q, 1, 1))
	c.Settle()

	assert.Equal(t, 3, prober.attempts)
	// second wait is twice the first
	assert.GreaterOrEqual(t, prober.times[2].Sub(prober.times[1]), 10*time.Millisecond)
	media := c.Document().ByID(dom.PlayerMedia)
	assert.Equal(t, "/uploads/late.png", media.Find("img").AttrOr("src", ""))
	assert.Equal(t, "/uploads/late.webp", media.Find(`source[type="image/webp"]`).AttrOr("srcset", ""))
}

func TestImageGivesUpAfterThreeAttempts(t *testing.T) {
	prober := &flakyProber{failures: 10}
	c := newCoordinator(t, domain.RolePlayer, Options{Prober: prober, MediaBackoff: time.Millisecond})
	q := mcQuestion()
	q.Image = "/uploads/missing.png"
	require.NoError(t, c.Show(context.Background(), q, 1, 1))
	c.Settle()

	assert.Equal(t, 3, prober.attempts)
	assert.Equal(t, 0, c.Document().ByID(dom.PlayerMedia).Find("img").Length())
	assert.Contains(t, dom.Text(c.Document().ByID(dom.PlayerQuestion)), "What is")
}

type blockingProber struct{ release chan struct{} }

func (p blockingProber) Probe(ctx context.Context, _ string) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestLateMediaIsIgnoredAfterNextQuestion(t *testing.T) {
	prober := blockingProber{release: make(chan struct{})}
	c := newCoordinator(t, domain.RolePlayer, Options{Prober: prober})
	q := mcQuestion()
	q.Image = "/uploads/slow.png"
	require.NoError(t, c.Show(context.Background(), q, 1, 2))

	next := mcQuestion()
	next.Text = "No picture here"
	require.NoError(t, c.Show(context.Background(), next, 2, 2))
	close(prober.release)
	c.Settle()

	assert.Equal(t, 0, c.Document().ByID(dom.PlayerMedia).Find("img").Length())
}

func TestPostRoutesChangesThroughOwner(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	c := newCoordinator(t, domain.RolePlayer, Options{
		Typesetter: DelimiterTypesetter{},
		Post: func(fn func()) {
			mu.Lock()
			queued = append(queued, fn)
			mu.Unlock()
		},
	})
	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 1))
	c.Settle()
	assert.False(t, c.Document().ByID(dom.PlayerQuestion).HasClass(dom.ClassMathDone))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, queued, 1)
	queued[0]()
	assert.True(t, c.Document().ByID(dom.PlayerQuestion).HasClass(dom.ClassMathDone))
}

func TestUnknownTypeFallsBackToMultipleChoice(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	q := mcQuestion()
	q.Type = "matching"
	require.NoError(t, c.Show(context.Background(), q, 1, 1))
	assert.Equal(t, 4, c.Document().ByID(dom.PlayerOptions).Find(".player-option").Length())
}

func TestNumericRevealShowsTolerance(t *testing.T) {
	c := newCoordinator(t, domain.RoleHost, Options{})
	tol := 0.01
	q := domain.Question{Type: domain.Numeric, Text: "Pi to two places", CorrectNumber: 3.14, Tolerance: &tol, TimeLimit: 30}
	require.NoError(t, c.Show(context.Background(), q, 1, 1))
	c.RevealHost(domain.NumberAnswer(3.14), true, "", &tol)

	got := dom.Text(c.Document().ByID(dom.HostPane).Find("." + dom.ClassNumericAnswer))
	assert.Equal(t, "Correct answer: 3.14 (±0.01)", got)
}

func TestPlayerRevealStylesSelection(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 1))
	c.RevealPlayer(registry.Reveal{
		Selected:   domain.IndexAnswer(2),
		Correct:    domain.IndexAnswer(1),
		HasCorrect: true,
	}, "", nil)

	opts := c.Document().ByID(dom.PlayerOptions)
	assert.True(t, opts.Find(`[data-option="2"]`).HasClass(dom.ClassIncorrect))
	assert.True(t, opts.Find(`[data-option="1"]`).HasClass(dom.ClassCorrectAnswer))
	assert.True(t, dom.Disabled(opts.Find(`[data-option="0"]`)))
}

func TestFeedbackTitles(t *testing.T) {
	third := 1.0 / 3
	assert.Equal(t, "Correct! +100", Feedback{IsCorrect: true, Points: 100}.Title())
	assert.Equal(t, "Partially Correct (33%)", Feedback{Partial: &third, Points: 33}.Title())
	assert.Equal(t, "Incorrect", Feedback{}.Title())
}

func TestFeedbackModal(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	c.ShowFeedback(Feedback{IsCorrect: true, Points: 100})
	assert.True(t, c.FeedbackVisible())
	assert.Equal(t, "Correct! +100", dom.Text(c.Document().ByID(dom.LiveRegion)))

	c.HideFeedback()
	assert.False(t, c.FeedbackVisible())
	assert.Empty(t, strings.TrimSpace(dom.Text(c.Document().ByID(dom.PlayerFeedback))))
}

func TestAnswerLabel(t *testing.T) {
	q := mcQuestion()
	assert.Equal(t, "B: 9", AnswerLabel(q, domain.IndexAnswer(1), nil))
	assert.Equal(t, "A, C", AnswerLabel(q, domain.IndicesAnswer([]int{0, 2}), nil))
	assert.Equal(t, "False", AnswerLabel(q, domain.BoolAnswer(false), nil))
	assert.Equal(t, "A → C → B", AnswerLabel(q, domain.OrderAnswer([]int{0, 2, 1}), nil))
}

func TestRenderStatisticsAndLeaderboard(t *testing.T) {
	c := newCoordinator(t, domain.RoleHost, Options{})
	c.RenderStatistics(stats.View{
		Answered: 4,
		Total:    5,
		Bars: []stats.Bar{
			{Option: 0, Label: "A", Count: 1, Percent: 25},
			{Option: 1, Label: "B", Count: 3, Percent: 75},
		},
	})
	doc := c.Document()
	assert.Equal(t, "75%", dom.Text(doc.ByID(dom.AnswerStatistics).Find(`[data-option="1"] .stat-percent`)))
	assert.Contains(t, dom.Text(doc.ByID(dom.AnswerStatistics)), "4 / 5 answered")

	c.RenderLeaderboard([]domain.LeaderboardEntry{{Name: "Ann", Score: 200}, {Name: "Bo", Score: 100}}, true)
	entries := doc.ByID(dom.Leaderboard).Find(".leaderboard-entry")
	assert.Equal(t, 2, entries.Length())
	assert.Equal(t, "Ann", dom.Text(entries.First().Find(".player-name")))
}

func TestHideOptions(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	require.NoError(t, c.Show(context.Background(), mcQuestion(), 1, 1))
	c.HideOptions([]int{0, 3})
	assert.Equal(t, []int{1, 2}, c.VisibleOptions())
}

func TestTimerDisplay(t *testing.T) {
	c := newCoordinator(t, domain.RolePlayer, Options{})
	c.SetTimer(4200 * time.Millisecond)
	assert.Equal(t, "5", dom.Text(c.Document().ByID(dom.PlayerTimer)))
	c.SetTimerWarning(true)
	assert.True(t, c.Document().ByID(dom.PlayerTimer).HasClass(dom.ClassWarning))
	c.SetTimerStatic(20)
	assert.Equal(t, "20s", dom.Text(c.Document().ByID(dom.PlayerTimer)))
}
