package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionType tags a question variant.
type QuestionType string

const (
	MultipleChoice  QuestionType = "multiple-choice"
	MultipleCorrect QuestionType = "multiple-correct"
	TrueFalse       QuestionType = "true-false"
	Numeric         QuestionType = "numeric"
	Ordering        QuestionType = "ordering"
)

// DefaultTolerance applies to numeric questions that carry no tolerance.
const DefaultTolerance = 0.1

// Question is the immutable per-question record. Only the correctness
// fields matching Type are meaningful.
type Question struct {
	ID             string
	Type           QuestionType
	Text           string
	Options        []string
	CorrectIndex   int
	CorrectIndices []int
	CorrectBool    bool
	CorrectNumber  float64
	Tolerance      *float64
	CorrectOrder   []int
	TimeLimit      int // seconds
	Difficulty     string
	Explanation    string
	Image          string
	ImageWebp      string
	Video          string
	Concepts       []string
}

// EffectiveTolerance returns the numeric tolerance, falling back to DefaultTolerance.
func (q Question) EffectiveTolerance() float64 {
	if q.Tolerance == nil || *q.Tolerance < 0 {
		return DefaultTolerance
	}
	return *q.Tolerance
}

// Correctness extracts the variant-typed correct answer of q.
func (q Question) Correctness() Answer {
	switch q.Type {
	case MultipleCorrect:
		return IndicesAnswer(q.CorrectIndices)
	case TrueFalse:
		return BoolAnswer(q.CorrectBool)
	case Numeric:
		return NumberAnswer(q.CorrectNumber)
	case Ordering:
		return OrderAnswer(q.CorrectOrder)
	default:
		return IndexAnswer(q.CorrectIndex)
	}
}

type questionJSON struct {
	ID             string          `json:"id,omitempty" yaml:"id,omitempty"`
	Type           QuestionType    `json:"type" yaml:"type"`
	Question       string          `json:"question" yaml:"question"`
	Options        []string        `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectIndex   *int            `json:"correctIndex,omitempty" yaml:"correctIndex,omitempty"`
	CorrectIndices []int           `json:"correctIndices,omitempty" yaml:"correctIndices,omitempty"`
	CorrectAnswers []int           `json:"correctAnswers,omitempty" yaml:"-"`
	CorrectAnswer  json.RawMessage `json:"correctAnswer,omitempty" yaml:"-"`
	Tolerance      *float64        `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	CorrectOrder   []int           `json:"correctOrder,omitempty" yaml:"correctOrder,omitempty"`
	TimeLimit      int             `json:"timeLimit" yaml:"timeLimit"`
	Difficulty     string          `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Explanation    string          `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Image          string          `json:"image,omitempty" yaml:"image,omitempty"`
	ImageWebp      string          `json:"imageWebp,omitempty" yaml:"imageWebp,omitempty"`
	Video          string          `json:"video,omitempty" yaml:"video,omitempty"`
	Concepts       []string        `json:"concepts,omitempty" yaml:"concepts,omitempty"`
}

// MarshalJSON writes the authoring format: correctAnswer carries a boolean
// for true-false and a number for numeric questions.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:          q.ID,
		Type:        q.Type,
		Question:    q.Text,
		Options:     q.Options,
		TimeLimit:   q.TimeLimit,
		Difficulty:  q.Difficulty,
		Explanation: q.Explanation,
		Image:       q.Image,
		ImageWebp:   q.ImageWebp,
		Video:       q.Video,
		Concepts:    q.Concepts,
	}
	switch q.Type {
	case MultipleCorrect:
		out.CorrectIndices = q.CorrectIndices
	case TrueFalse:
		out.CorrectAnswer = json.RawMessage(strconv.FormatBool(q.CorrectBool))
	case Numeric:
		out.CorrectAnswer = json.RawMessage(strconv.FormatFloat(q.CorrectNumber, 'f', -1, 64))
		out.Tolerance = q.Tolerance
	case Ordering:
		out.CorrectOrder = q.CorrectOrder
	default:
		idx := q.CorrectIndex
		out.CorrectIndex = &idx
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both correctIndex/correctAnswer and
// correctIndices/correctAnswers spellings and normalises legacy
// "true"/"false" strings to booleans.
func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = Question{
		ID:          in.ID,
		Type:        in.Type,
		Text:        in.Question,
		Options:     in.Options,
		Tolerance:   in.Tolerance,
		TimeLimit:   in.TimeLimit,
		Difficulty:  in.Difficulty,
		Explanation: in.Explanation,
		Image:       in.Image,
		ImageWebp:   in.ImageWebp,
		Video:       in.Video,
		Concepts:    in.Concepts,
	}
	if in.CorrectIndex != nil {
		q.CorrectIndex = *in.CorrectIndex
	}
	q.CorrectIndices = in.CorrectIndices
	if len(q.CorrectIndices) == 0 {
		q.CorrectIndices = in.CorrectAnswers
	}
	q.CorrectOrder = in.CorrectOrder

	raw := bytes.TrimSpace(in.CorrectAnswer)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch q.Type {
	case TrueFalse:
		b, err := ParseBool(raw)
		if err != nil {
			return fmt.Errorf("question correctAnswer: %w", err)
		}
		q.CorrectBool = b
	case Numeric:
		n, err := parseNumber(raw)
		if err != nil {
			return fmt.Errorf("question correctAnswer: %w", err)
		}
		q.CorrectNumber = n
	case MultipleCorrect:
		if len(q.CorrectIndices) == 0 {
			_ = json.Unmarshal(raw, &q.CorrectIndices)
		}
	default:
		if in.CorrectIndex == nil {
			var idx int
			if err := json.Unmarshal(raw, &idx); err == nil {
				q.CorrectIndex = idx
			}
		}
	}
	return nil
}

// UnmarshalYAML lets quiz files use the same field names as the JSON form.
func (q *Question) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return q.UnmarshalJSON(data)
}

// ParseBool accepts JSON booleans and the legacy "true"/"false" strings.
func ParseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, ErrAnswerType
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, ErrAnswerType
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, ErrAnswerType
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, ErrAnswerType
	}
	return n, nil
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
}
