package registry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func TestValidate(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	base := func(q domain.Question) domain.Question {
		q.Text = "Q"
		q.TimeLimit = 20
		return q
	}
	cases := []struct {
		name string
		q    domain.Question
		want Reason
	}{
		{"mc ok", base(domain.Question{Type: domain.MultipleChoice, Options: []string{"a", "b"}, CorrectIndex: 1}), ""},
		{"mc index out of range", base(domain.Question{Type: domain.MultipleChoice, Options: []string{"a", "b"}, CorrectIndex: 2}), ReasonCorrectIndexRange},
		{"mc too few options", base(domain.Question{Type: domain.MultipleChoice, Options: []string{"a"}}), ReasonTooFewOptions},
		{"mcorrect empty", base(domain.Question{Type: domain.MultipleCorrect, Options: []string{"a", "b"}}), ReasonNoCorrectOption},
		{"mcorrect out of range", base(domain.Question{Type: domain.MultipleCorrect, Options: []string{"a", "b"}, CorrectIndices: []int{0, 5}}), ReasonCorrectIndicesRange},
		{"tf ok", base(domain.Question{Type: domain.TrueFalse, CorrectBool: true}), ""},
		{"numeric negative tolerance", base(domain.Question{Type: domain.Numeric, CorrectNumber: 1, Tolerance: ptr(-1)}), ReasonNegativeTolerance},
		{"ordering not permutation", base(domain.Question{Type: domain.Ordering, Options: []string{"x", "y"}, CorrectOrder: []int{0, 0}}), ReasonOrderNotPermutation},
		{"missing text", domain.Question{Type: domain.TrueFalse, TimeLimit: 10}, ReasonMissingText},
		{"no time limit", domain.Question{Type: domain.TrueFalse, Text: "Q"}, ReasonTimeLimit},
		{"unknown type", base(domain.Question{Type: "essay"}), ReasonUnknownType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := reg.Validate(tc.q)
			if tc.want == "" {
				assert.True(t, v.Valid, v.Error())
				return
			}
			assert.False(t, v.Valid)
			assert.Equal(t, tc.want, v.Reason)
			assert.NotEmpty(t, v.Error())
		})
	}
}

func TestScoreAnswerVariants(t *testing.T) {
	reg := New(zaptest.NewLogger(t))

	mc := domain.Question{Type: domain.MultipleChoice, Options: []string{"A", "B", "C", "D"}, CorrectIndex: 2}
	assert.True(t, reg.ScoreAnswer(mc, domain.IndexAnswer(2), ScoreOptions{}).Correct)
	assert.False(t, reg.ScoreAnswer(mc, domain.IndexAnswer(1), ScoreOptions{}).Correct)
	assert.False(t, reg.ScoreAnswer(mc, domain.BoolAnswer(true), ScoreOptions{}).Correct, "type mismatch scores false")

	numeric := domain.Question{Type: domain.Numeric, CorrectNumber: 3.14, Tolerance: ptr(0.01)}
	assert.True(t, reg.ScoreAnswer(numeric, domain.NumberAnswer(3.145), ScoreOptions{}).Correct)
	assert.False(t, reg.ScoreAnswer(numeric, domain.NumberAnswer(3.2), ScoreOptions{}).Correct)
	noTol := domain.Question{Type: domain.Numeric, CorrectNumber: 10}
	assert.True(t, reg.ScoreAnswer(noTol, domain.NumberAnswer(10.1), ScoreOptions{}).Correct, "default tolerance is 0.1")

	multi := domain.Question{Type: domain.MultipleCorrect, Options: []string{"A", "B", "C", "D"}, CorrectIndices: []int{0, 2}}
	assert.True(t, reg.ScoreAnswer(multi, domain.IndicesAnswer([]int{2, 0}), ScoreOptions{}).Correct)
	assert.False(t, reg.ScoreAnswer(multi, domain.IndicesAnswer([]int{0}), ScoreOptions{}).Correct)

	tf := domain.Question{Type: domain.TrueFalse, CorrectBool: false}
	assert.True(t, reg.ScoreAnswer(tf, domain.BoolAnswer(false), ScoreOptions{}).Correct)

	order := domain.Question{Type: domain.Ordering, Options: []string{"x", "y", "z"}, CorrectOrder: []int{0, 1, 2}}
	exact := reg.ScoreAnswer(order, domain.OrderAnswer([]int{0, 2, 1}), ScoreOptions{})
	assert.False(t, exact.Correct)
	assert.Zero(t, exact.Fraction)
	partial := reg.ScoreAnswer(order, domain.OrderAnswer([]int{0, 2, 1}), ScoreOptions{PartialCredit: true})
	assert.False(t, partial.Correct)
	assert.InDelta(t, 1.0/3.0, partial.Fraction, 1e-9)
	assert.True(t, reg.ScoreAnswer(order, domain.OrderAnswer([]int{0, 1, 2}), ScoreOptions{PartialCredit: true}).Correct)
}

func TestScoreIsDeterministic(t *testing.T) {
	reg := New(nil)
	q := domain.Question{Type: domain.MultipleCorrect, Options: []string{"a", "b", "c"}, CorrectIndices: []int{1, 2}}
	first := reg.ScoreAnswer(q, domain.IndicesAnswer([]int{2, 1}), ScoreOptions{})
	for i := 0; i < 10; i++ {
		require.Equal(t, first, reg.ScoreAnswer(q, domain.IndicesAnswer([]int{2, 1}), ScoreOptions{}))
	}
}

func TestUnknownTypeFallsBack(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	v, err := reg.Lookup("essay")
	require.Error(t, err)
	assert.Equal(t, domain.KindUnknownType, domain.KindOf(err))
	assert.Equal(t, domain.MultipleChoice, v.Type())
}

const editorPage = `<div class="question-item" data-type="%s">
<textarea class="question-text"></textarea>
<input class="question-time-limit" value="">
<input class="question-difficulty" value="">
<textarea class="question-explanation"></textarea>
<input class="question-image" value="">
<input class="question-video" value="">
<input class="correct-answer" value="">
<input class="tf-answer" value="">
<input class="numeric-answer" value="">
<input class="numeric-tolerance" value="">
<div class="options"></div>
</div>`

func newEditorItem(t *testing.T) *dom.Document {
	t.Helper()
	d, err := dom.Parse(editorPage)
	require.NoError(t, err)
	return d
}

func TestPopulateExtractRoundTrip(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	questions := []domain.Question{
		{Type: domain.MultipleChoice, Text: "Pick", Options: []string{"a", "b", "c"}, CorrectIndex: 1, TimeLimit: 20, Difficulty: "easy"},
		{Type: domain.MultipleCorrect, Text: "Pick many", Options: []string{"a", "b", "c", "d"}, CorrectIndices: []int{0, 2}, TimeLimit: 30},
		{Type: domain.TrueFalse, Text: "Sky is blue", Options: []string{"True", "False"}, CorrectBool: true, TimeLimit: 10, Explanation: "Rayleigh"},
		{Type: domain.Numeric, Text: "Pi?", CorrectNumber: 3.14, Tolerance: ptr(0.01), TimeLimit: 15, Image: "/uploads/pi.png"},
		{Type: domain.Ordering, Text: "Order", Options: []string{"x", "y", "z"}, CorrectOrder: []int{2, 0, 1}, TimeLimit: 25},
	}
	for _, q := range questions {
		t.Run(string(q.Type), func(t *testing.T) {
			first := newEditorItem(t)
			item := first.Find(".question-item")
			reg.Populate(item, q)
			extracted := reg.ExtractData(item)
			assert.Equal(t, q.Type, extracted.Type)
			assert.Equal(t, q.Text, extracted.Text)
			assert.Equal(t, q.Options, extracted.Options)
			assert.Equal(t, q.Correctness(), extracted.Correctness())

			second := newEditorItem(t)
			reg.Populate(second.Find(".question-item"), extracted)
			again := reg.ExtractData(second.Find(".question-item"))
			assert.Equal(t, extracted, again)
		})
	}
}

func TestPopulateMissingFieldsIsNoop(t *testing.T) {
	reg := New(nil)
	d, err := dom.Parse(`<div class="question-item"></div>`)
	require.NoError(t, err)
	reg.Populate(d.Find(".question-item"), domain.Question{Type: domain.MultipleChoice, Options: []string{"a"}})
	reg.Populate(d.Find(".absent"), domain.Question{Type: domain.Numeric})
	q := reg.ExtractData(d.Find(".question-item"))
	assert.Empty(t, q.Options)
	assert.Zero(t, q.TimeLimit)
}

func TestRenderAndExtractAnswer(t *testing.T) {
	reg := New(nil)
	d := dom.New()
	container := d.ByID(dom.PlayerOptions)

	mc := reg.Variant(domain.MultipleChoice)
	mc.RenderPlayerOptions(domain.Question{Options: []string{"A", "B", "C"}}, container, Helpers{})
	_, ok := mc.ExtractAnswer(container)
	assert.False(t, ok, "nothing selected yet")
	container.Find(`.player-option[data-option="2"]`).AddClass(dom.ClassSelected)
	a, ok := mc.ExtractAnswer(container)
	require.True(t, ok)
	assert.Equal(t, domain.IndexAnswer(2), a)

	num := reg.Variant(domain.Numeric)
	num.RenderPlayerOptions(domain.Question{}, container, Helpers{})
	dom.SetValue(container.Find("#"+dom.NumericInput), "abc")
	_, ok = num.ExtractAnswer(container)
	assert.False(t, ok, "non-numeric input extracts nothing")
	dom.SetValue(container.Find("#"+dom.NumericInput), "3.145")
	a, ok = num.ExtractAnswer(container)
	require.True(t, ok)
	assert.Equal(t, 3.145, a.Number)

	ord := reg.Variant(domain.Ordering)
	ord.RenderPlayerOptions(domain.Question{Options: []string{"x", "y", "z"}}, container, Helpers{Shuffle: func(n int) []int { return []int{2, 1, 0} }})
	a, ok = ord.ExtractAnswer(container)
	require.True(t, ok)
	assert.Equal(t, []int{2, 1, 0}, a.Order)
}

func TestRenderEmptyOptionsPlaceholder(t *testing.T) {
	reg := New(nil)
	d := dom.New()
	for _, typ := range []domain.QuestionType{domain.MultipleChoice, domain.MultipleCorrect, domain.Ordering} {
		reg.Variant(typ).RenderHostOptions(domain.Question{Type: typ}, d.ByID(dom.HostOptions), Helpers{})
		assert.Equal(t, 1, d.Find("#"+dom.HostOptions+" ."+dom.ClassNoOptions).Length(), typ)
		reg.Variant(typ).RenderPlayerOptions(domain.Question{Type: typ}, d.ByID(dom.PlayerOptions), Helpers{})
		assert.Equal(t, 1, d.Find("#"+dom.PlayerOptions+" ."+dom.ClassNoOptions).Length(), typ)
	}
}

func TestRevealHostClampsOutOfRange(t *testing.T) {
	reg := New(zaptest.NewLogger(t))
	d := dom.New()
	q := domain.Question{Type: domain.MultipleChoice, Options: []string{"a", "b"}}
	v := reg.Variant(q.Type)
	v.RenderHostOptions(q, d.ByID(dom.HostOptions), Helpers{})
	v.RevealHost(q, d.ByID(dom.HostOptions), domain.IndexAnswer(7), Helpers{})
	assert.True(t, d.Find(`.option-display[data-option="0"]`).HasClass(dom.ClassCorrect))
	assert.False(t, d.Find(`.option-display[data-option="1"]`).HasClass(dom.ClassCorrect))
}

func TestNumericAnswerFormatting(t *testing.T) {
	assert.Equal(t, "3.14 (±0.01)", FormatNumericAnswer(3.14, 0.01))
	assert.Equal(t, "42", FormatNumericAnswer(42, 0))
	assert.Equal(t, "A → C → B", OrderLabel([]int{0, 2, 1}))
}

func TestScrambledOrderNeverKeepsAuthoredOrder(t *testing.T) {
	shuffle := ScrambledOrder(rand.New(rand.NewSource(7)))
	assert.Equal(t, []int{0}, shuffle(1))
	assert.Empty(t, shuffle(0))
	for n := 2; n <= 5; n++ {
		for i := 0; i < 200; i++ {
			p := shuffle(n)
			require.True(t, isPermutation(p, n), "%v", p)
			require.False(t, isIdentity(p), "n=%d drew the authored order", n)
		}
	}
}
