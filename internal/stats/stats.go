// Package stats aggregates answer distributions for the host reveal.
package stats

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"quizlive/internal/domain"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
)

const DefaultTopK = 5

// Bar is one option's share of the respondents.
type Bar struct {
	Option  int
	Label   string
	Text    string
	Count   int
	Percent float64
}

// Entry is one distinct free-form answer.
type Entry struct {
	Key     string
	Label   string
	Count   int
	Percent float64
}

// View is a snapshot for rendering. Bars is set for option-based
// questions and Top for numeric and ordering questions.
type View struct {
	QuestionType domain.QuestionType
	Answered     int
	Total        int
	Bars         []Bar
	Top          []Entry
}

// Aggregator holds the distribution of the current question. It is safe
// for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	topK     int
	question domain.Question
	answered int
	total    int
	options  int
	counts   map[string]int
}

func New(topK int) *Aggregator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Aggregator{topK: topK, counts: make(map[string]int)}
}

// Reset starts a new question.
func (a *Aggregator) Reset(q domain.Question) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.question = q
	a.answered = 0
	a.total = 0
	a.options = len(q.Options)
	if q.Type == domain.TrueFalse {
		a.options = 2
	}
	a.counts = make(map[string]int)
}

// Apply takes a server tally. Each update carries the full counts so far
// and replaces the previous one.
func (a *Aggregator) Apply(u protocol.AnswerCountUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if u.QuestionType != "" && u.QuestionType != a.question.Type {
		a.question.Type = u.QuestionType
	}
	if u.OptionCount > 0 {
		a.options = u.OptionCount
	}
	a.answered = u.AnsweredPlayers
	a.total = u.TotalPlayers
	a.counts = make(map[string]int, len(u.AnswerCounts))
	for k, n := range u.AnswerCounts {
		a.counts[k] = n
	}
}

// Record counts one answer locally.
func (a *Aggregator) Record(ans domain.Answer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[ans.Key()]++
	a.answered++
	if a.answered > a.total {
		a.total = a.answered
	}
}

// View renders the current distribution.
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := View{QuestionType: a.question.Type, Answered: a.answered, Total: a.total}
	respondents := a.answered
	if respondents == 0 {
		for _, n := range a.counts {
			respondents += n
		}
	}

	switch a.question.Type {
	case domain.Numeric:
		v.Top = a.topNumeric(respondents)
	case domain.Ordering:
		v.Top = a.topOrdering(respondents)
	default:
		v.Bars = a.bars(respondents)
	}
	return v
}

func (a *Aggregator) bars(respondents int) []Bar {
	perOption := make([]int, a.options)
	for key, n := range a.counts {
		for _, i := range optionIndices(a.question.Type, key) {
			if i >= 0 && i < len(perOption) {
				perOption[i] += n
			}
		}
	}
	out := make([]Bar, a.options)
	for i := range out {
		out[i] = Bar{
			Option:  i,
			Label:   registry.Letter(i),
			Count:   perOption[i],
			Percent: percent(perOption[i], respondents),
		}
		if i < len(a.question.Options) {
			out[i].Text = a.question.Options[i]
		}
	}
	return out
}

// optionIndices maps an answer key onto the options it selects.
func optionIndices(t domain.QuestionType, key string) []int {
	switch t {
	case domain.TrueFalse:
		switch key {
		case "true", "0":
			return []int{0}
		case "false", "1":
			return []int{1}
		}
		return nil
	case domain.MultipleCorrect:
		var out []int
		for _, part := range strings.Split(key, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				out = append(out, n)
			}
		}
		return out
	}
	if n, err := strconv.Atoi(strings.TrimSpace(key)); err == nil {
		return []int{n}
	}
	return nil
}

func (a *Aggregator) topNumeric(respondents int) []Entry {
	type numEntry struct {
		Entry
		value float64
	}
	merged := make(map[string]*numEntry)
	for key, n := range a.counts {
		f, err := strconv.ParseFloat(strings.TrimSpace(key), 64)
		if err != nil {
			continue
		}
		label := registry.FormatNumber(f)
		if e, ok := merged[label]; ok {
			e.Count += n
			continue
		}
		merged[label] = &numEntry{Entry: Entry{Key: label, Label: label, Count: n}, value: f}
	}
	list := make([]*numEntry, 0, len(merged))
	for _, e := range merged {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].value < list[j].value
	})
	out := make([]Entry, 0, a.topK)
	for _, e := range list {
		if len(out) == a.topK {
			break
		}
		e.Percent = percent(e.Count, respondents)
		out = append(out, e.Entry)
	}
	return out
}

func (a *Aggregator) topOrdering(respondents int) []Entry {
	list := make([]Entry, 0, len(a.counts))
	for key, n := range a.counts {
		order, err := domain.ParseKey(domain.Ordering, key)
		if err != nil {
			continue
		}
		list = append(list, Entry{Key: key, Label: registry.OrderLabel(order.Order), Count: n})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Key < list[j].Key
	})
	if len(list) > a.topK {
		list = list[:a.topK]
	}
	for i := range list {
		list[i].Percent = percent(list[i].Count, respondents)
	}
	return list
}

func percent(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}
