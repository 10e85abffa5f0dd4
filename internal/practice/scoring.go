package practice

import (
	"math"
	"sort"
	"strings"
	"time"

	"quizlive/internal/domain"
	"quizlive/internal/registry"
)

// DefaultBasePoints is what a correct answer is worth before the
// difficulty multiplier.
const DefaultBasePoints = 100

// Multiplier returns the score factor for a difficulty label.
func Multiplier(difficulty string) float64 {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "medium":
		return 1.2
	case "hard":
		return 1.5
	}
	return 1
}

// Outcome is one player's scored answer.
type Outcome struct {
	Correct bool
	Points  int
	// Partial is set for ordering answers that earned a share of the points.
	Partial *float64
}

// Score evaluates a against q. A zero answer scores nothing.
func Score(reg *registry.Registry, q domain.Question, a domain.Answer, base int) Outcome {
	if a.IsZero() {
		return Outcome{}
	}
	s := reg.ScoreAnswer(q, a, registry.ScoreOptions{PartialCredit: q.Type == domain.Ordering})
	if s.Correct {
		return Outcome{Correct: true, Points: int(math.Round(float64(base) * Multiplier(q.Difficulty)))}
	}
	if q.Type == domain.Ordering && s.Fraction > 0 {
		f := s.Fraction
		return Outcome{Points: int(math.Round(float64(base) * f)), Partial: &f}
	}
	return Outcome{}
}

// standings orders players by score, then by who reached it first, then
// by name.
func standings(players []*domain.PlayerRecord) []domain.LeaderboardEntry {
	sorted := append([]*domain.PlayerRecord(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i], sorted[j]
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		if !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return pi.Name < pj.Name
	})
	out := make([]domain.LeaderboardEntry, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, domain.LeaderboardEntry{Name: p.Name, Score: p.Score})
	}
	return out
}

func elapsedMs(from, to time.Time) int64 {
	if from.IsZero() {
		return 0
	}
	return to.Sub(from).Milliseconds()
}
