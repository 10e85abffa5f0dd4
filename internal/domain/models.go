package domain

import "time"

// Role is the part a client plays in a game.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// AnswerRecord is one scored answer kept by the host side.
type AnswerRecord struct {
	Value     Answer `json:"value"`
	IsCorrect bool   `json:"isCorrect"`
	Points    int    `json:"points"`
	TimeMs    int64  `json:"timeMs"`
}

// PlayerRecord is the host-side view of a player and their accumulated score.
type PlayerRecord struct {
	ID          string
	Name        string
	Score       int
	Answers     map[int]AnswerRecord
	LastUpdated time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard of a game.
type Leaderboard struct {
	GamePin   string             `json:"gamePin,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
