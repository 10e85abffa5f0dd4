package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/consensus"
	"quizlive/internal/display"
	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
)

// server is a scripted game server on the same hub as the controller.
type server struct {
	t  *testing.T
	ep *bus.Local
	in chan bus.Message
}

func newServer(t *testing.T, hub *bus.Hub) *server {
	s := &server{t: t, ep: hub.Endpoint("server"), in: make(chan bus.Message, 64)}
	for _, topic := range protocol.ClientTopics {
		s.ep.On(topic, func(m bus.Message) { s.in <- m })
	}
	return s
}

func (s *server) send(topic string, payload any) {
	s.t.Helper()
	require.NoError(s.t, s.ep.Emit(context.Background(), topic, payload))
}

func (s *server) expect(topic string) bus.Message {
	s.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-s.in:
			if m.Topic == topic {
				return m
			}
		case <-deadline:
			s.t.Fatalf("no %s received", topic)
			return bus.Message{}
		}
	}
}

func (s *server) none(topic string) {
	s.t.Helper()
	for {
		select {
		case m := <-s.in:
			if m.Topic == topic {
				s.t.Fatalf("unexpected %s", topic)
			}
		default:
			return
		}
	}
}

type harness struct {
	c      *Controller
	srv    *server
	ep     *bus.Local
	phases chan Phase
}

func newHarness(t *testing.T, role domain.Role, mutate func(*Config)) *harness {
	t.Helper()
	hub := bus.NewHub(zap.NewNop())
	h := &harness{srv: newServer(t, hub), phases: make(chan Phase, 32)}
	name := "ann"
	if role == domain.RoleHost {
		name = "host"
	}
	h.ep = hub.Endpoint(name)
	cfg := Config{
		Role:       role,
		PlayerName: name,
		GamePin:    "123456",
		Tick:       20 * time.Millisecond,
		OnPhase:    func(p Phase) { h.phases <- p },
		Log:        zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.c = New(h.ep, dom.New(), cfg)
	h.c.Run(context.Background())
	t.Cleanup(func() { _ = h.c.Close() })
	require.NoError(t, h.c.Join())
	h.srv.expect(protocol.TopicJoin)
	return h
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Sync())
}

func (h *harness) waitPhase(t *testing.T, want Phase) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case p := <-h.phases:
			if p == want {
				return
			}
		case <-deadline:
			t.Fatalf("phase %s not reached, at %s", want, h.c.Phase())
		}
	}
}

func (h *harness) text(t *testing.T, selector string) string {
	t.Helper()
	var out string
	require.NoError(t, h.c.Inspect(func(doc *dom.Document) { out = doc.Find(selector).Text() }))
	return out
}

func (h *harness) hasClass(t *testing.T, selector, class string) bool {
	t.Helper()
	var out bool
	require.NoError(t, h.c.Inspect(func(doc *dom.Document) { out = doc.Find(selector).HasClass(class) }))
	return out
}

func mcPayload(number int) protocol.DisplayQuestion {
	return protocol.DisplayQuestion{
		Type:           domain.MultipleChoice,
		Question:       "Which is C?",
		Options:        []string{"A", "B", "C", "D"},
		QuestionNumber: number,
		TotalQuestions: 3,
		TimeLimit:      20,
	}
}

func intPtr(n int) *int { return &n }

func TestJoinMovesToLobby(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	assert.Equal(t, PhaseLobby, h.c.Phase())
	snap := h.c.State()
	assert.Equal(t, "ann", snap.PlayerName)
	assert.Equal(t, domain.RolePlayer, snap.Role)
	assert.Equal(t, "123456", snap.GamePin)
}

func TestPlayerAnswersAndSeesResult(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	require.Equal(t, PhaseDisplayed, h.c.Phase())
	assert.Contains(t, h.text(t, "#"+dom.PlayerQuestion), "Which is C?")
	assert.Equal(t, 0, h.c.State().CurrentIndex)

	require.NoError(t, h.c.Click(2))
	m := h.srv.expect(protocol.TopicSubmitAnswer)
	var p protocol.AnswerPayload
	require.NoError(t, m.Decode(&p))
	assert.JSONEq(t, `2`, string(p.Answer))
	assert.True(t, h.c.State().AnswerSubmitted)

	// submitted options are disabled
	assert.ErrorIs(t, h.c.Click(1), ErrNoInput)
	h.srv.none(protocol.TopicSubmitAnswer)

	h.srv.send(protocol.TopicPlayerResult, protocol.PlayerResult{
		IsCorrect:     true,
		Points:        100,
		TotalScore:    intPtr(100),
		CorrectAnswer: json.RawMessage(`2`),
		QuestionType:  domain.MultipleChoice,
	})
	h.sync(t)
	assert.Equal(t, PhaseRevealed, h.c.Phase())
	assert.Equal(t, 100, h.c.State().Score)
	assert.Equal(t, "100", h.text(t, "#"+dom.PlayerScore))
	assert.Equal(t, "Correct! +100", h.text(t, "#"+dom.PlayerFeedback+" .feedback-title"))
	assert.True(t, h.hasClass(t, `#player-options .player-option[data-option="2"]`, dom.ClassCorrect))
	assert.False(t, h.c.Timer().Running())
}

func TestNextQuestionHidesFeedbackFirst(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	h.srv.send(protocol.TopicPlayerResult, protocol.PlayerResult{
		Points: 0, CorrectAnswer: json.RawMessage(`2`), Explanation: "C is third",
	})
	h.sync(t)
	require.False(t, h.hasClass(t, "#"+dom.PlayerFeedback, dom.ClassHidden))

	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(2))
	h.sync(t)
	assert.True(t, h.hasClass(t, "#"+dom.PlayerFeedback, dom.ClassHidden))
	assert.Empty(t, h.text(t, "#"+dom.PlayerFeedback))
	assert.Equal(t, PhaseDisplayed, h.c.Phase())
	snap := h.c.State()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.False(t, snap.ResultShown)
	assert.False(t, snap.AnswerSubmitted)
}

func TestRepeatedQuestionWithinGuardIsDropped(t *testing.T) {
	var (
		mu     sync.Mutex
		now    = time.Unix(1000, 0)
		purges int
	)
	h := newHarness(t, domain.RolePlayer, func(cfg *Config) {
		cfg.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		cfg.Trace = func(s display.Stage, _ uint64) {
			if s == display.StagePurge {
				mu.Lock()
				purges++
				mu.Unlock()
			}
		}
	})
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	mu.Lock()
	assert.Equal(t, 1, purges)
	now = now.Add(DefaultRepeatGuard + time.Millisecond)
	mu.Unlock()

	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, purges)
}

func TestQuestionBeforeJoinIsIgnored(t *testing.T) {
	hub := bus.NewHub(zap.NewNop())
	srv := newServer(t, hub)
	c := New(hub.Endpoint("ann"), dom.New(), Config{Role: domain.RolePlayer, PlayerName: "ann"})
	c.Run(context.Background())
	defer c.Close()

	srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	require.NoError(t, c.Sync())
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.State().CurrentQuestion)
}

func TestMalformedQuestionShowsNotice(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, map[string]any{"type": "multiple-choice"})
	h.sync(t)
	assert.Equal(t, PhaseLobby, h.c.Phase())
	assert.Contains(t, h.text(t, "#"+dom.Notice), "missing question text")

	// still responsive
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	assert.Equal(t, PhaseDisplayed, h.c.Phase())
}

func TestTimerExpiryClosesAnswers(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	q := mcPayload(1)
	q.TimeLimit = 1
	h.srv.send(protocol.TopicDisplayQuestion, q)
	h.waitPhase(t, PhaseDisplayed)
	h.waitPhase(t, PhaseRevealed)

	snap := h.c.State()
	assert.True(t, snap.AnswersClosed)
	// nothing was submitted, so no result belongs to this player
	assert.False(t, snap.ResultShown)
	require.Error(t, h.c.Click(1))
	h.srv.none(protocol.TopicSubmitAnswer)
	assert.Equal(t, "0", h.text(t, "#"+dom.PlayerTimer))
}

func TestHostEndsQuestionWhenAllAnswered(t *testing.T) {
	h := newHarness(t, domain.RoleHost, nil)
	h.srv.send(protocol.TopicPlayerJoined, protocol.PlayerJoined{Name: "ann", TotalPlayers: 1})
	h.srv.send(protocol.TopicPlayerJoined, protocol.PlayerJoined{Name: "bob", TotalPlayers: 2})
	h.sync(t)
	assert.Contains(t, h.text(t, "#"+dom.HostQuestionText), "bob")

	require.NoError(t, h.c.StartGame())
	h.srv.expect(protocol.TopicStartGame)

	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.srv.send(protocol.TopicAnswerCountUpdate, protocol.AnswerCountUpdate{
		AnsweredPlayers: 1, TotalPlayers: 2, AnswerCounts: map[string]int{"2": 1}, QuestionType: domain.MultipleChoice,
	})
	h.sync(t)
	assert.Equal(t, PhaseDisplayed, h.c.Phase())
	assert.Contains(t, h.text(t, "#"+dom.AnswerStatistics), "1 / 2 answered")

	h.srv.send(protocol.TopicAnswerCountUpdate, protocol.AnswerCountUpdate{
		AnsweredPlayers: 2, TotalPlayers: 2, AnswerCounts: map[string]int{"2": 1, "0": 1}, QuestionType: domain.MultipleChoice,
	})
	h.srv.expect(protocol.TopicEndQuestion)
	h.sync(t)
	assert.Equal(t, PhaseRevealed, h.c.Phase())

	h.srv.send(protocol.TopicQuestionTimeout, protocol.QuestionTimeout{
		EarlyEnd: true, CorrectAnswer: json.RawMessage(`2`), Explanation: "C is third",
	})
	h.sync(t)
	assert.True(t, h.hasClass(t, `#host-options .option-display[data-option="2"]`, dom.ClassCorrect))
	assert.Contains(t, h.text(t, "#"+dom.HostExplanation), "C is third")
	assert.Equal(t, "50%", h.text(t, `#answer-statistics .stat-bar[data-option="2"] .stat-percent`))
}

func TestHostActionsRejectedForPlayer(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	assert.ErrorIs(t, h.c.StartGame(), ErrWrongRole)
	assert.ErrorIs(t, h.c.Lock(), ErrWrongRole)
}

func TestLeaderboardAndGameOver(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.srv.send(protocol.TopicQuestionTimeout, protocol.QuestionTimeout{})
	h.srv.send(protocol.TopicLeaderboard, []domain.LeaderboardEntry{{Name: "bob", Score: 120}, {Name: "ann", Score: 100}})
	h.sync(t)
	assert.Equal(t, PhaseLeaderboard, h.c.Phase())
	assert.Contains(t, h.text(t, "#"+dom.PlayerLeaderboard), "bob")

	h.srv.send(protocol.TopicGameOver, protocol.GameOver{Leaderboard: []domain.LeaderboardEntry{{Name: "ann", Score: 300}}})
	h.sync(t)
	assert.Equal(t, PhaseFinished, h.c.Phase())
	assert.Equal(t, []domain.LeaderboardEntry{{Name: "ann", Score: 300}}, h.c.Leaderboard())

	// a late question does not reopen a finished game
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(2))
	h.sync(t)
	assert.Equal(t, PhaseFinished, h.c.Phase())

	require.NoError(t, h.c.Reset())
	assert.Equal(t, PhaseIdle, h.c.Phase())
	assert.Nil(t, h.c.State().CurrentQuestion)
}

func TestCloseReleasesHandlers(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	require.NotZero(t, h.ep.HandlerCount())

	require.NoError(t, h.c.Close())
	assert.Zero(t, h.ep.HandlerCount())
	assert.False(t, h.c.Timer().Running())
	assert.ErrorIs(t, h.c.Sync(), ErrStopped)
}

func TestExtendTimeAddsSeconds(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, func(cfg *Config) { cfg.ExtendSeconds = 30 })
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	before := h.c.Timer().Remaining()

	require.NoError(t, h.c.UsePowerUp(protocol.PowerUpExtendTime))
	m := h.srv.expect(protocol.TopicUsePowerUp)
	var req protocol.PowerUpRequest
	require.NoError(t, m.Decode(&req))
	assert.Equal(t, protocol.PowerUpExtendTime, req.Type)
	assert.Greater(t, h.c.Timer().Remaining(), before+25*time.Second)

	err := h.c.UsePowerUp(protocol.PowerUpExtendTime)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestFiftyFiftyHidesServerChosenOptions(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	require.NoError(t, h.c.UsePowerUp(protocol.PowerUpFiftyFifty))
	h.srv.expect(protocol.TopicUsePowerUp)

	h.srv.send(protocol.TopicPowerUpResult, protocol.PowerUpResult{
		Type: protocol.PowerUpFiftyFifty, Accepted: true, HiddenOptions: []int{0, 3},
	})
	h.sync(t)
	assert.True(t, h.hasClass(t, `#player-options [data-option="0"]`, dom.ClassHidden))
	assert.True(t, h.hasClass(t, `#player-options [data-option="3"]`, dom.ClassHidden))
	assert.False(t, h.hasClass(t, `#player-options [data-option="2"]`, dom.ClassHidden))
}

func TestRejectedPowerUpIsRefunded(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	require.NoError(t, h.c.UsePowerUp(protocol.PowerUpDoublePoints))
	h.srv.send(protocol.TopicPowerUpResult, protocol.PowerUpResult{
		Type: protocol.PowerUpDoublePoints, Reason: "not in team mode",
	})
	h.sync(t)
	for _, s := range h.c.PowerUps() {
		if s.Type == protocol.PowerUpDoublePoints {
			assert.False(t, s.Used)
		}
	}
	assert.Contains(t, h.text(t, "#"+dom.Notice), "not in team mode")
}

func TestTeamModeProposesInsteadOfSubmitting(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, func(cfg *Config) {
		cfg.Consensus = consensus.Config{Enabled: true, Threshold: 66, AllowChat: true}
	})
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)

	require.NoError(t, h.c.Click(1))
	m := h.srv.expect(protocol.TopicProposeAnswer)
	var p protocol.AnswerPayload
	require.NoError(t, m.Decode(&p))
	assert.JSONEq(t, `1`, string(p.Answer))
	h.srv.none(protocol.TopicSubmitAnswer)
	assert.False(t, h.c.State().AnswerSubmitted)

	require.NoError(t, h.c.Chat("I think B"))
	h.srv.expect(protocol.TopicSendChatMessage)
	assert.Error(t, h.c.Chat("   "))

	h.srv.send(protocol.TopicProposalUpdate, protocol.ProposalUpdate{
		Proposals:        map[string]protocol.ProposalEntry{"1": {Count: 4, PlayerNames: []string{"a", "ann", "b", "c"}}, "0": {Count: 1, PlayerNames: []string{"d"}}},
		TotalPlayers:     5,
		ConsensusPercent: 80,
		LeadingAnswer:    "1",
	})
	h.srv.send(protocol.TopicConsensusReached, protocol.ConsensusReached{IsCorrect: true, TeamPoints: 500, TotalTeamScore: 500, Answer: "1"})
	h.sync(t)
	assert.Contains(t, h.text(t, "#"+dom.PlayerConsensus), "Team answer correct! +500")
	assert.Equal(t, PhaseRevealed, h.c.Phase())
	assert.Error(t, h.c.Propose(domain.IndexAnswer(0)))
}

func TestHostLockFollowsThreshold(t *testing.T) {
	h := newHarness(t, domain.RoleHost, func(cfg *Config) {
		cfg.Consensus = consensus.Config{Enabled: true, Threshold: 66}
	})
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.srv.send(protocol.TopicProposalUpdate, protocol.ProposalUpdate{
		Proposals:        map[string]protocol.ProposalEntry{"1": {Count: 3}, "0": {Count: 2}},
		TotalPlayers:     5,
		ConsensusPercent: 60,
		LeadingAnswer:    "1",
	})
	h.sync(t)
	assert.ErrorIs(t, h.c.Lock(), consensus.ErrBelowThreshold)
	h.srv.none(protocol.TopicLockConsensus)

	h.srv.send(protocol.TopicProposalUpdate, protocol.ProposalUpdate{
		Proposals:        map[string]protocol.ProposalEntry{"1": {Count: 4}, "0": {Count: 1}},
		TotalPlayers:     5,
		ConsensusPercent: 80,
		LeadingAnswer:    "1",
	})
	h.sync(t)
	require.NoError(t, h.c.Lock())
	h.srv.expect(protocol.TopicLockConsensus)
	assert.Equal(t, "Locked", h.text(t, "#lock-consensus"))
}

func TestDegradedTransportShowsNotice(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.c.TransportStatus(bus.StatusDegraded, assert.AnError)
	h.sync(t)
	assert.Contains(t, h.text(t, "#"+dom.Notice), "read-only")
	assert.Contains(t, h.text(t, "#"+dom.LiveRegion), "read-only")
}

func TestUntouchedOrderingListDoesNotScore(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, protocol.DisplayQuestion{
		Type:           domain.Ordering,
		Question:       "Sort the planets by distance",
		Options:        []string{"Mercury", "Venus", "Earth", "Mars"},
		QuestionNumber: 1,
		TotalQuestions: 1,
		TimeLimit:      20,
	})
	h.sync(t)

	require.NoError(t, h.c.PressSubmit())
	m := h.srv.expect(protocol.TopicSubmitAnswer)
	var p protocol.AnswerPayload
	require.NoError(t, m.Decode(&p))
	var order []int
	require.NoError(t, json.Unmarshal(p.Answer, &order))
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, order)

	q := domain.Question{Type: domain.Ordering, Options: []string{"Mercury", "Venus", "Earth", "Mars"}, CorrectOrder: []int{0, 1, 2, 3}}
	score := registry.New(nil).ScoreAnswer(q, domain.OrderAnswer(order), registry.ScoreOptions{})
	assert.False(t, score.Correct, "untouched list %v scored", order)
}

func TestUnansweredResultKeepsResultHidden(t *testing.T) {
	h := newHarness(t, domain.RolePlayer, nil)
	h.srv.send(protocol.TopicDisplayQuestion, mcPayload(1))
	h.sync(t)
	h.srv.send(protocol.TopicPlayerResult, protocol.PlayerResult{
		IsCorrect:     false,
		CorrectAnswer: json.RawMessage(`2`),
		QuestionType:  domain.MultipleChoice,
	})
	h.sync(t)

	snap := h.c.State()
	assert.False(t, snap.AnswerSubmitted)
	assert.False(t, snap.ResultShown)
	assert.True(t, snap.AnswersClosed)
	require.Error(t, h.c.Click(2))
	h.srv.none(protocol.TopicSubmitAnswer)
}
