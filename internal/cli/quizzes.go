package cli

import (
	"quizlive/internal/domain"
	transport "quizlive/internal/transport/http"
)

// sampleQuizzes is the built-in quiz served when no quiz directory or
// database holds the requested ID.
func sampleQuizzes() map[string]domain.Quiz {
	tolerance := 0.01
	return map[string]domain.Quiz{
		transport.DefaultQuizID: {
			ID:    transport.DefaultQuizID,
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:           "q1",
					Type:         domain.MultipleChoice,
					Text:         "What is 2 + 2?",
					Options:      []string{"3", "4", "5", "22"},
					CorrectIndex: 1,
					TimeLimit:    20,
					Difficulty:   "easy",
				},
				{
					ID:             "q2",
					Type:           domain.MultipleCorrect,
					Text:           "Which of these are prime?",
					Options:        []string{"2", "4", "7", "9"},
					CorrectIndices: []int{0, 2},
					TimeLimit:      25,
					Difficulty:     "medium",
				},
				{
					ID:          "q3",
					Type:        domain.TrueFalse,
					Text:        "The derivative of $x^2$ is $2x$.",
					CorrectBool: true,
					TimeLimit:   15,
				},
				{
					ID:            "q4",
					Type:          domain.Numeric,
					Text:          "What is $\\pi$ to two decimal places?",
					CorrectNumber: 3.14,
					Tolerance:     &tolerance,
					TimeLimit:     20,
					Difficulty:    "hard",
					Explanation:   "$\\pi \\approx 3.14159$",
				},
				{
					ID:           "q5",
					Type:         domain.Ordering,
					Text:         "Order these from smallest to largest.",
					Options:      []string{"Atom", "Cell", "Planet", "Galaxy"},
					CorrectOrder: []int{0, 1, 2, 3},
					TimeLimit:    30,
				},
			},
		},
	}
}
