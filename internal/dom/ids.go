package dom

// Stable element IDs. Every component mutates only the subtree under its
// own IDs; host and player panes never touch each other.
const (
	HostPane          = "host-pane"
	HostQuestionText  = "host-question-text"
	HostOptions       = "host-options"
	HostMedia         = "host-media"
	HostExplanation   = "host-explanation"
	AnswerStatistics  = "answer-statistics"
	QuestionCounter   = "question-counter"
	HostTimer         = "host-timer"
	Leaderboard       = "leaderboard"
	HostConsensus     = "host-consensus-panel"
	HostDiscussion    = "host-discussion-feed"
	PlayerPane        = "player-pane"
	PlayerQuestion    = "player-question-text"
	PlayerOptions     = "player-options"
	PlayerMedia       = "player-media"
	PlayerFeedback    = "player-feedback"
	PlayerScore       = "player-score"
	PlayerCounter     = "player-question-counter"
	PlayerTimer       = "player-timer"
	PowerUps          = "powerups"
	PlayerSubmit      = "player-submit"
	NumericInput      = "numeric-answer-input"
	OrderingList      = "ordering-list"
	PlayerConsensus   = "player-consensus-panel"
	PlayerDiscussion  = "player-discussion-feed"
	PlayerLeaderboard = "player-leaderboard"
	LiveRegion        = "live-region"
	Notice            = "notice"
)

// Classes shared between renderers, reveals and tests.
const (
	ClassMathPending   = "tex2jax_process"
	ClassMathDone      = "math-processed"
	ClassMathContainer = "math-container"
	ClassSelected      = "selected"
	ClassCorrect       = "correct"
	ClassIncorrect     = "incorrect"
	ClassCorrectAnswer = "correct-answer"
	ClassHidden        = "hidden"
	ClassWarning       = "warning"
	ClassNoOptions     = "no-options"
	ClassExplanation   = "explanation"
	ClassNumericAnswer = "numeric-correct-answer"
	ClassErrorNotice   = "error-notice"
)

// Pane groups the IDs a role renders into.
type Pane struct {
	Root        string
	Question    string
	Options     string
	Media       string
	Counter     string
	Timer       string
	Consensus   string
	Discussion  string
	Leaderboard string
}

var (
	HostIDs = Pane{
		Root:        HostPane,
		Question:    HostQuestionText,
		Options:     HostOptions,
		Media:       HostMedia,
		Counter:     QuestionCounter,
		Timer:       HostTimer,
		Consensus:   HostConsensus,
		Discussion:  HostDiscussion,
		Leaderboard: Leaderboard,
	}
	PlayerIDs = Pane{
		Root:        PlayerPane,
		Question:    PlayerQuestion,
		Options:     PlayerOptions,
		Media:       PlayerMedia,
		Counter:     PlayerCounter,
		Timer:       PlayerTimer,
		Consensus:   PlayerConsensus,
		Discussion:  PlayerDiscussion,
		Leaderboard: PlayerLeaderboard,
	}
)
