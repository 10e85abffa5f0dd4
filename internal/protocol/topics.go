// Package protocol defines the bus topics exchanged between a quiz client
// and a game server, and the JSON payloads they carry.
package protocol

// Server → client topics.
const (
	TopicDisplayQuestion   = "display-question"
	TopicAnswerCountUpdate = "answer-count-update"
	TopicPlayerResult      = "player-result"
	TopicQuestionTimeout   = "question-timeout"
	TopicLeaderboard       = "leaderboard"
	TopicGameOver          = "game-over"
	TopicProposalUpdate    = "proposal-update"
	TopicConsensusReached  = "consensus-reached"
	TopicQuickResponse     = "quick-response"
	TopicChatMessage       = "chat-message"
	TopicTeamScoreUpdate   = "team-score-update"
	TopicPlayerJoined      = "player-joined"
	TopicPowerUpResult     = "power-up-result"
	TopicError             = "error"
)

// Client → server topics.
const (
	TopicJoin              = "join"
	TopicStartGame         = "start-game"
	TopicSubmitAnswer      = "submit-answer"
	TopicProposeAnswer     = "propose-answer"
	TopicLockConsensus     = "lock-consensus"
	TopicSendQuickResponse = "send-quick-response"
	TopicSendChatMessage   = "send-chat-message"
	TopicUsePowerUp        = "use-power-up"
	TopicNextQuestion      = "next-question"
	TopicEndQuestion       = "end-question"
)

// ServerTopics lists every topic a client subscribes to.
var ServerTopics = []string{
	TopicDisplayQuestion,
	TopicAnswerCountUpdate,
	TopicPlayerResult,
	TopicQuestionTimeout,
	TopicLeaderboard,
	TopicGameOver,
	TopicProposalUpdate,
	TopicConsensusReached,
	TopicQuickResponse,
	TopicChatMessage,
	TopicTeamScoreUpdate,
	TopicPlayerJoined,
	TopicPowerUpResult,
	TopicError,
}

// ClientTopics lists every topic a server subscribes to.
var ClientTopics = []string{
	TopicJoin,
	TopicStartGame,
	TopicSubmitAnswer,
	TopicProposeAnswer,
	TopicLockConsensus,
	TopicSendQuickResponse,
	TopicSendChatMessage,
	TopicUsePowerUp,
	TopicNextQuestion,
	TopicEndQuestion,
}

// IsServerTopic reports whether topic flows from server to client.
func IsServerTopic(topic string) bool {
	for _, t := range ServerTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// QuickResponseType enumerates the fixed team-mode messages.
type QuickResponseType string

const (
	QuickPropose QuickResponseType = "propose"
	QuickAgree   QuickResponseType = "agree"
	QuickUnsure  QuickResponseType = "unsure"
	QuickDiscuss QuickResponseType = "discuss"
	QuickReady   QuickResponseType = "ready"
)

// Valid reports whether t is one of the enumerated quick responses.
func (t QuickResponseType) Valid() bool {
	switch t {
	case QuickPropose, QuickAgree, QuickUnsure, QuickDiscuss, QuickReady:
		return true
	}
	return false
}

var quickText = map[QuickResponseType]string{
	QuickPropose: "I propose this answer",
	QuickAgree:   "I agree",
	QuickUnsure:  "I'm not sure",
	QuickDiscuss: "Let's discuss",
	QuickReady:   "Ready to lock",
}

// Text is the message shown in the discussion feed.
func (t QuickResponseType) Text() string {
	if s, ok := quickText[t]; ok {
		return s
	}
	return string(t)
}

// PowerUpType enumerates the single-use power-ups.
type PowerUpType string

const (
	PowerUpFiftyFifty   PowerUpType = "fifty-fifty"
	PowerUpExtendTime   PowerUpType = "extend-time"
	PowerUpDoublePoints PowerUpType = "double-points"
)

// PowerUpTypes lists power-ups in display order.
var PowerUpTypes = []PowerUpType{PowerUpFiftyFifty, PowerUpExtendTime, PowerUpDoublePoints}
