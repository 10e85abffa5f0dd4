package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Answer is a variant-typed answer value. Kind selects which field is set.
type Answer struct {
	Kind    QuestionType
	Index   int
	Indices []int
	Bool    bool
	Number  float64
	Order   []int
}

func IndexAnswer(i int) Answer { return Answer{Kind: MultipleChoice, Index: i} }

func IndicesAnswer(indices []int) Answer {
	return Answer{Kind: MultipleCorrect, Indices: append([]int(nil), indices...)}
}

func BoolAnswer(b bool) Answer { return Answer{Kind: TrueFalse, Bool: b} }

func NumberAnswer(n float64) Answer { return Answer{Kind: Numeric, Number: n} }

func OrderAnswer(order []int) Answer {
	return Answer{Kind: Ordering, Order: append([]int(nil), order...)}
}

// IsZero reports whether a has no kind.
func (a Answer) IsZero() bool { return a.Kind == "" }

// Value returns the plain Go value carried by a.
func (a Answer) Value() any {
	switch a.Kind {
	case MultipleCorrect:
		return a.Indices
	case TrueFalse:
		return a.Bool
	case Numeric:
		return a.Number
	case Ordering:
		return a.Order
	case MultipleChoice:
		return a.Index
	}
	return nil
}

// Key renders a canonical string form, used for distribution maps
// (index, "true", "3.14", "0,2,1").
func (a Answer) Key() string {
	switch a.Kind {
	case MultipleCorrect:
		sorted := append([]int(nil), a.Indices...)
		sort.Ints(sorted)
		return joinInts(sorted)
	case TrueFalse:
		return strconv.FormatBool(a.Bool)
	case Numeric:
		return strconv.FormatFloat(a.Number, 'f', -1, 64)
	case Ordering:
		return joinInts(a.Order)
	case MultipleChoice:
		return strconv.Itoa(a.Index)
	}
	return ""
}

// MarshalJSON writes the bare value (2, [0,2], true, 3.145, [0,2,1]).
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value())
}

// ParseAnswer decodes a raw answer for the given question type. Legacy
// "true"/"false" strings are accepted for true-false questions.
func ParseAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{}, ErrAnswerType
	}
	switch t {
	case MultipleCorrect:
		var v []int
		if err := json.Unmarshal(raw, &v); err != nil {
			return Answer{}, ErrAnswerType
		}
		return IndicesAnswer(v), nil
	case TrueFalse:
		b, err := ParseBool(raw)
		if err != nil {
			return Answer{}, err
		}
		return BoolAnswer(b), nil
	case Numeric:
		n, err := parseNumber(raw)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Answer{}, ErrAnswerType
		}
		return NumberAnswer(n), nil
	case Ordering:
		var v []int
		if err := json.Unmarshal(raw, &v); err != nil {
			return Answer{}, ErrAnswerType
		}
		return OrderAnswer(v), nil
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) {
			return Answer{}, ErrAnswerType
		}
		return IndexAnswer(int(f)), nil
	}
}

// ParseKey is the inverse of Answer.Key.
func ParseKey(t QuestionType, key string) (Answer, error) {
	switch t {
	case MultipleCorrect, Ordering:
		var ints []int
		if key != "" {
			for _, part := range strings.Split(key, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					return Answer{}, ErrAnswerType
				}
				ints = append(ints, n)
			}
		}
		if t == Ordering {
			return OrderAnswer(ints), nil
		}
		return IndicesAnswer(ints), nil
	case TrueFalse:
		return ParseAnswer(t, json.RawMessage(strconv.Quote(key)))
	default:
		return ParseAnswer(t, json.RawMessage(key))
	}
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
