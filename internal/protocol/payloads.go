package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"quizlive/internal/domain"
)

// DisplayQuestion announces the next question. It never carries the
// correct answer.
type DisplayQuestion struct {
	Type           domain.QuestionType `json:"type"`
	Question       string              `json:"question"`
	Options        []string            `json:"options,omitempty"`
	QuestionNumber int                 `json:"questionNumber"`
	TotalQuestions int                 `json:"totalQuestions"`
	TimeLimit      int                 `json:"timeLimit"`
	Image          string              `json:"image,omitempty"`
	ImageWebp      string              `json:"imageWebp,omitempty"`
	Video          string              `json:"video,omitempty"`
	Explanation    string              `json:"explanation,omitempty"`
	Difficulty     string              `json:"difficulty,omitempty"`
}

// NewDisplayQuestion strips correctness from q for broadcast.
func NewDisplayQuestion(q domain.Question, number, total int) DisplayQuestion {
	return DisplayQuestion{
		Type:           q.Type,
		Question:       q.Text,
		Options:        q.Options,
		QuestionNumber: number,
		TotalQuestions: total,
		TimeLimit:      q.TimeLimit,
		Image:          q.Image,
		ImageWebp:      q.ImageWebp,
		Video:          q.Video,
		Difficulty:     q.Difficulty,
	}
}

// Question converts the payload into a question record.
func (d DisplayQuestion) ToQuestion() domain.Question {
	return domain.Question{
		Type:        d.Type,
		Text:        d.Question,
		Options:     d.Options,
		TimeLimit:   d.TimeLimit,
		Difficulty:  d.Difficulty,
		Explanation: d.Explanation,
		Image:       d.Image,
		ImageWebp:   d.ImageWebp,
		Video:       d.Video,
	}
}

// Validate reports missing fields that have no documented default.
func (d DisplayQuestion) Validate() error {
	if d.Question == "" {
		return fmt.Errorf("display-question: missing question text")
	}
	if d.QuestionNumber <= 0 {
		return fmt.Errorf("display-question: missing questionNumber")
	}
	return nil
}

// AnswerCountUpdate is the host's live answer tally.
type AnswerCountUpdate struct {
	AnsweredPlayers int                 `json:"answeredPlayers"`
	TotalPlayers    int                 `json:"totalPlayers"`
	AnswerCounts    map[string]int      `json:"answerCounts"`
	QuestionType    domain.QuestionType `json:"questionType"`
	OptionCount     int                 `json:"optionCount,omitempty"`
}

// PlayerResult is a player's individual outcome for one question.
type PlayerResult struct {
	IsCorrect     bool                `json:"isCorrect"`
	Points        int                 `json:"points"`
	TotalScore    *int                `json:"totalScore,omitempty"`
	CorrectAnswer json.RawMessage     `json:"correctAnswer,omitempty"`
	QuestionType  domain.QuestionType `json:"questionType,omitempty"`
	Explanation   string              `json:"explanation,omitempty"`
	PartialScore  *float64            `json:"partialScore,omitempty"`
	Tolerance     *float64            `json:"tolerance,omitempty"`
}

// UnmarshalJSON folds correctAnswers into CorrectAnswer and type into QuestionType.
func (r *PlayerResult) UnmarshalJSON(data []byte) error {
	type alias PlayerResult
	var in struct {
		alias
		CorrectAnswers json.RawMessage     `json:"correctAnswers,omitempty"`
		Type           domain.QuestionType `json:"type,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = PlayerResult(in.alias)
	if isEmptyRaw(r.CorrectAnswer) {
		r.CorrectAnswer = in.CorrectAnswers
	}
	if r.QuestionType == "" {
		r.QuestionType = in.Type
	}
	return nil
}

// Correct decodes the canonical correct answer for question type t.
func (r PlayerResult) Correct(t domain.QuestionType) (domain.Answer, bool) {
	return decodeCorrect(t, r.CorrectAnswer)
}

// QuestionTimeout closes the answering window.
type QuestionTimeout struct {
	EarlyEnd      bool            `json:"earlyEnd,omitempty"`
	CorrectAnswer json.RawMessage `json:"correctAnswer,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
	Tolerance     *float64        `json:"tolerance,omitempty"`
}

// UnmarshalJSON folds correctAnswers into CorrectAnswer.
func (t *QuestionTimeout) UnmarshalJSON(data []byte) error {
	type alias QuestionTimeout
	var in struct {
		alias
		CorrectAnswers json.RawMessage `json:"correctAnswers,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = QuestionTimeout(in.alias)
	if isEmptyRaw(t.CorrectAnswer) {
		t.CorrectAnswer = in.CorrectAnswers
	}
	return nil
}

// Correct decodes the canonical correct answer for question type qt.
func (t QuestionTimeout) Correct(qt domain.QuestionType) (domain.Answer, bool) {
	return decodeCorrect(qt, t.CorrectAnswer)
}

// GameOver carries the final standings.
type GameOver struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// ProposalEntry aggregates the players backing one proposed answer.
type ProposalEntry struct {
	Count       int      `json:"count"`
	PlayerNames []string `json:"playerNames"`
}

// ProposalUpdate is the team-wide distribution of proposals.
type ProposalUpdate struct {
	Proposals        map[string]ProposalEntry `json:"proposals"`
	TotalPlayers     int                      `json:"totalPlayers"`
	ConsensusPercent float64                  `json:"consensusPercent"`
	LeadingAnswer    string                   `json:"leadingAnswer,omitempty"`
}

// ConsensusReached is broadcast after the host locks a team answer.
type ConsensusReached struct {
	IsCorrect      bool   `json:"isCorrect"`
	TeamPoints     int    `json:"teamPoints"`
	TotalTeamScore int    `json:"totalTeamScore"`
	Answer         string `json:"answer,omitempty"`
}

// QuickResponse is a fixed team-mode message from a player.
type QuickResponse struct {
	PlayerName   string            `json:"playerName"`
	Type         QuickResponseType `json:"type"`
	TargetPlayer string            `json:"targetPlayer,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ChatMessage is a free-form team-mode message.
type ChatMessage struct {
	PlayerName string    `json:"playerName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// TeamScoreUpdate carries the running team score.
type TeamScoreUpdate struct {
	TotalTeamScore int `json:"totalTeamScore"`
}

// PlayerJoined tells the host who is in the lobby.
type PlayerJoined struct {
	Name         string `json:"name"`
	TotalPlayers int    `json:"totalPlayers"`
}

// PowerUpResult is the server's decision on a power-up activation.
type PowerUpResult struct {
	Type          PowerUpType `json:"type"`
	Accepted      bool        `json:"accepted"`
	Reason        string      `json:"reason,omitempty"`
	HiddenOptions []int       `json:"hiddenOptions,omitempty"`
	ExtraSeconds  int         `json:"extraSeconds,omitempty"`
}

// ErrorPayload reports a server-side failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// AnswerPayload is sent with submit-answer and propose-answer.
type AnswerPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// NewAnswerPayload encodes a for the wire.
func NewAnswerPayload(a domain.Answer) AnswerPayload {
	raw, _ := json.Marshal(a)
	return AnswerPayload{Answer: raw}
}

// QuickResponseRequest is sent with send-quick-response.
type QuickResponseRequest struct {
	Type         QuickResponseType `json:"type"`
	TargetPlayer string            `json:"targetPlayer,omitempty"`
}

// ChatRequest is sent with send-chat-message.
type ChatRequest struct {
	Text string `json:"text"`
}

// PowerUpRequest is sent with use-power-up.
type PowerUpRequest struct {
	Type PowerUpType `json:"type"`
}

// Join announces a client to the server.
type Join struct {
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

func isEmptyRaw(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeCorrect(t domain.QuestionType, raw json.RawMessage) (domain.Answer, bool) {
	if isEmptyRaw(raw) {
		return domain.Answer{}, false
	}
	a, err := domain.ParseAnswer(t, raw)
	if err == nil {
		return a, true
	}
	// Some servers send a single index wrapped in an array for
	// multiple-choice questions.
	if t == domain.MultipleChoice {
		var v []int
		if json.Unmarshal(raw, &v) == nil && len(v) > 0 {
			return domain.IndexAnswer(v[0]), true
		}
	}
	return domain.Answer{}, false
}
