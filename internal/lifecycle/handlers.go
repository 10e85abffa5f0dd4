package lifecycle

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/display"
	"quizlive/internal/domain"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
)

// DefaultTimeLimit applies when a display-question carries no timeLimit.
const DefaultTimeLimit = 20

func (c *Controller) dispatch(topic string, m bus.Message) {
	var fn func(bus.Message) error
	switch topic {
	case protocol.TopicDisplayQuestion:
		fn = c.onDisplayQuestion
	case protocol.TopicAnswerCountUpdate:
		fn = c.onAnswerCount
	case protocol.TopicPlayerResult:
		fn = c.onPlayerResult
	case protocol.TopicQuestionTimeout:
		fn = c.onQuestionTimeout
	case protocol.TopicLeaderboard:
		fn = c.onLeaderboard
	case protocol.TopicGameOver:
		fn = c.onGameOver
	case protocol.TopicProposalUpdate:
		fn = c.onProposalUpdate
	case protocol.TopicConsensusReached:
		fn = c.onConsensusReached
	case protocol.TopicQuickResponse:
		fn = c.onQuickResponse
	case protocol.TopicChatMessage:
		fn = c.onChatMessage
	case protocol.TopicTeamScoreUpdate:
		fn = c.onTeamScore
	case protocol.TopicPlayerJoined:
		fn = c.onPlayerJoined
	case protocol.TopicPowerUpResult:
		fn = c.onPowerUpResult
	case protocol.TopicError:
		fn = c.onServerError
	default:
		return
	}
	c.safe(topic, func() error { return fn(m) })
}

func decode(m bus.Message, v any) error {
	if err := m.Decode(v); err != nil {
		return domain.E(domain.KindProtocol, m.Topic, err)
	}
	return nil
}

func (c *Controller) isHost() bool { return c.cfg.Role == domain.RoleHost }

func (c *Controller) onDisplayQuestion(m bus.Message) error {
	var p protocol.DisplayQuestion
	if err := decode(m, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return domain.E(domain.KindProtocol, m.Topic, err)
	}
	if !c.phase.acceptsQuestion() {
		c.log.Debug("question ignored", zap.Stringer("phase", c.phase), zap.Int("number", p.QuestionNumber))
		return nil
	}
	now := c.cfg.Now()
	if p.QuestionNumber == c.lastNumber && now.Sub(c.lastShownAt) < c.cfg.RepeatGuard {
		c.log.Debug("repeated question dropped", zap.Int("number", p.QuestionNumber))
		return nil
	}
	c.lastNumber, c.lastShownAt = p.QuestionNumber, now

	q := p.ToQuestion()
	if q.Type == "" {
		q.Type = domain.MultipleChoice
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = DefaultTimeLimit
	}
	total := p.TotalQuestions
	if total < p.QuestionNumber {
		total = p.QuestionNumber
	}

	// the previous result must be gone before anything is purged
	if !c.isHost() {
		c.display.HideFeedback()
	}
	c.timer.Stop()
	if c.input != nil {
		c.input.Unbind()
	}
	c.questionSeq++
	c.revealed = false
	c.store.InitializeForQuestion(q, p.QuestionNumber-1, total)
	c.stats.Reset(q)
	c.overlay.NextQuestion()

	renderErr := c.display.Show(c.ctx, q, p.QuestionNumber, total)
	c.setPhase(PhaseDisplayed)
	if renderErr == nil && c.input != nil {
		c.input.Bind(c.display.Variant())
	}
	if c.isHost() {
		c.display.RenderStatistics(c.stats.View())
	} else {
		c.renderPowerUps()
	}
	if c.overlay.Enabled() {
		c.renderConsensus()
		c.renderFeed()
	}
	c.startTimer(q.TimeLimit)
	return renderErr
}

func (c *Controller) startTimer(seconds int) {
	seq := c.questionSeq
	onTick := func(remaining time.Duration) {
		c.mail.post(func() {
			if c.questionSeq == seq && c.phase == PhaseDisplayed {
				c.display.SetTimer(remaining)
			}
		})
	}
	onDone := func() {
		c.mail.post(func() { c.onTimeUp(seq) })
	}
	if err := c.timer.Start(time.Duration(seconds)*time.Second, onTick, onDone); err != nil {
		// the server's question-timeout still drives the reveal
		c.log.Warn("timer unavailable", zap.Error(domain.E(domain.KindTimer, "start", err)))
		c.display.SetTimerStatic(seconds)
	}
}

func (c *Controller) onTimerWarning(on bool) {
	c.mail.post(func() { c.display.SetTimerWarning(on) })
}

// onTimeUp closes the answering window locally. The reveal itself comes
// from the server.
func (c *Controller) onTimeUp(seq uint64) {
	if c.questionSeq != seq || c.phase != PhaseDisplayed {
		return
	}
	c.display.SetTimer(0)
	c.display.Announce("Time's up")
	c.closeInputs()
	c.setPhase(PhaseRevealed)
}

func (c *Controller) closeInputs() {
	c.store.CloseAnswers()
	if c.input != nil {
		c.input.Unbind()
		c.display.DisableInputs()
		c.renderPowerUps()
	}
}

func (c *Controller) onAnswerCount(m bus.Message) error {
	if !c.isHost() {
		return nil
	}
	var u protocol.AnswerCountUpdate
	if err := decode(m, &u); err != nil {
		return err
	}
	c.stats.Apply(u)
	c.display.RenderStatistics(c.stats.View())
	if c.phase == PhaseDisplayed && u.TotalPlayers > 0 && u.AnsweredPlayers >= u.TotalPlayers {
		c.log.Debug("all players answered", zap.Int("players", u.TotalPlayers))
		c.setPhase(PhaseRevealed)
		return c.emit(protocol.TopicEndQuestion, nil)
	}
	return nil
}

func (c *Controller) onPlayerResult(m bus.Message) error {
	if c.isHost() {
		return nil
	}
	var r protocol.PlayerResult
	if err := decode(m, &r); err != nil {
		return err
	}
	snap := c.store.Get()
	if snap.CurrentQuestion == nil {
		return nil
	}
	q := *snap.CurrentQuestion
	qt := r.QuestionType
	if qt == "" {
		qt = q.Type
	}
	correct, has := r.Correct(qt)

	if err := c.store.MarkResultShown(); err != nil {
		c.store.CloseAnswers()
	}
	c.powerups.Disarm()
	score := 0
	if r.TotalScore != nil {
		c.store.SetScore(*r.TotalScore)
		score = *r.TotalScore
	} else {
		score = c.store.AddScore(r.Points)
	}
	c.display.SetScore(score)
	c.timer.Stop()
	if c.input != nil {
		c.input.Unbind()
	}

	reveal := registry.Reveal{Correct: correct, HasCorrect: has, IsCorrect: r.IsCorrect}
	if snap.AnswerSubmitted && snap.SelectedAnswer != nil {
		reveal.Selected = *snap.SelectedAnswer
	}
	c.display.RevealPlayer(reveal, "", r.Tolerance)

	fb := display.Feedback{
		IsCorrect:   r.IsCorrect,
		Points:      r.Points,
		Partial:     r.PartialScore,
		Explanation: r.Explanation,
	}
	if has {
		fb.CorrectText = display.AnswerLabel(q, correct, r.Tolerance)
	}
	c.display.ShowFeedback(fb)
	c.renderPowerUps()
	c.revealed = true
	if c.phase == PhaseDisplayed {
		c.setPhase(PhaseRevealed)
	}
	return nil
}

func (c *Controller) onQuestionTimeout(m bus.Message) error {
	var t protocol.QuestionTimeout
	if err := decode(m, &t); err != nil {
		return err
	}
	snap := c.store.Get()
	if snap.CurrentQuestion == nil {
		return nil
	}
	c.timer.Stop()
	if c.isHost() {
		if !c.revealed {
			correct, has := t.Correct(snap.CurrentQuestion.Type)
			c.display.RevealHost(correct, has, t.Explanation, t.Tolerance)
			c.display.RenderStatistics(c.stats.View())
			c.store.CloseAnswers()
			_ = c.store.MarkResultShown()
			c.revealed = true
		}
	} else {
		c.closeInputs()
	}
	if t.EarlyEnd {
		c.display.Announce("All answers are in")
	}
	if c.phase == PhaseDisplayed {
		c.setPhase(PhaseRevealed)
	}
	return nil
}

// decodeStandings accepts a bare array or an object wrapping one.
func decodeStandings(m bus.Message) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(m.Payload, &entries); err == nil {
		return entries, nil
	}
	var wrapped struct {
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
		Entries     []domain.LeaderboardEntry `json:"entries"`
	}
	if err := json.Unmarshal(m.Payload, &wrapped); err != nil {
		return nil, domain.E(domain.KindProtocol, m.Topic, err)
	}
	if wrapped.Leaderboard != nil {
		return wrapped.Leaderboard, nil
	}
	return wrapped.Entries, nil
}

func (c *Controller) onLeaderboard(m bus.Message) error {
	entries, err := decodeStandings(m)
	if err != nil {
		return err
	}
	c.leaderboard = entries
	c.display.RenderLeaderboard(entries, false)
	switch c.phase {
	case PhaseDisplayed, PhaseRevealed:
		c.setPhase(PhaseLeaderboard)
	}
	return nil
}

func (c *Controller) onGameOver(m bus.Message) error {
	entries, err := decodeStandings(m)
	if err != nil {
		return err
	}
	if c.phase == PhaseIdle {
		return nil
	}
	c.leaderboard = entries
	c.timer.Stop()
	if c.input != nil {
		c.input.Unbind()
	}
	if !c.isHost() {
		c.display.HideFeedback()
	}
	c.display.RenderLeaderboard(entries, true)
	c.display.Announce("Game over")
	c.setPhase(PhaseFinished)
	return nil
}

// answerLabel renders a proposal key for the question on screen.
func (c *Controller) answerLabel(key string) string {
	snap := c.store.Get()
	if snap.CurrentQuestion == nil || key == "" {
		return key
	}
	a, err := domain.ParseKey(snap.CurrentQuestion.Type, key)
	if err != nil {
		return key
	}
	if label := display.AnswerLabel(*snap.CurrentQuestion, a, nil); label != "" {
		return label
	}
	return key
}

func (c *Controller) renderConsensus() {
	c.display.RenderConsensus(display.ConsensusView{
		Update:      c.overlay.Update(),
		Threshold:   c.overlay.Threshold(),
		LockEnabled: c.overlay.LockEnabled(),
		Locked:      c.overlay.Locked(),
		Label:       c.answerLabel,
	})
}

func (c *Controller) renderFeed() {
	items := c.overlay.Feed()
	out := make([]display.FeedItem, 0, len(items))
	for _, it := range items {
		out = append(out, display.FeedItem{Author: it.Author, Text: it.Text, Kind: it.Kind, Target: it.Target})
	}
	c.display.RenderFeed(out)
}

func (c *Controller) onProposalUpdate(m bus.Message) error {
	if !c.overlay.Enabled() {
		return nil
	}
	var u protocol.ProposalUpdate
	if err := decode(m, &u); err != nil {
		return err
	}
	if c.overlay.ApplyProposals(u) {
		c.renderConsensus()
	}
	return nil
}

func (c *Controller) onConsensusReached(m bus.Message) error {
	if !c.overlay.Enabled() {
		return nil
	}
	var r protocol.ConsensusReached
	if err := decode(m, &r); err != nil {
		return err
	}
	c.overlay.ApplyReached(r)
	c.renderConsensus()
	c.display.RenderConsensusReached(r, c.answerLabel(r.Answer))
	c.timer.Stop()
	if c.input != nil {
		c.closeInputs()
	}
	c.revealed = true
	if c.phase == PhaseDisplayed {
		c.setPhase(PhaseRevealed)
	}
	return nil
}

func (c *Controller) onQuickResponse(m bus.Message) error {
	var q protocol.QuickResponse
	if err := decode(m, &q); err != nil {
		return err
	}
	c.overlay.AddQuick(q)
	c.renderFeed()
	return nil
}

func (c *Controller) onChatMessage(m bus.Message) error {
	var msg protocol.ChatMessage
	if err := decode(m, &msg); err != nil {
		return err
	}
	c.overlay.AddChat(msg)
	c.renderFeed()
	return nil
}

func (c *Controller) onTeamScore(m bus.Message) error {
	var u protocol.TeamScoreUpdate
	if err := decode(m, &u); err != nil {
		return err
	}
	c.overlay.SetTeamScore(u.TotalTeamScore)
	c.display.SetTeamScore(u.TotalTeamScore)
	return nil
}

func (c *Controller) onPlayerJoined(m bus.Message) error {
	if !c.isHost() {
		return nil
	}
	var p protocol.PlayerJoined
	if err := decode(m, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return domain.E(domain.KindProtocol, m.Topic, errors.New("missing name"))
	}
	for _, name := range c.players {
		if name == p.Name {
			return nil
		}
	}
	c.players = append(c.players, p.Name)
	if c.phase == PhaseLobby {
		c.display.RenderLobby(c.cfg.GamePin, c.players)
	}
	c.display.Announce(p.Name + " joined")
	return nil
}

func (c *Controller) onPowerUpResult(m bus.Message) error {
	if c.isHost() {
		return nil
	}
	var r protocol.PowerUpResult
	if err := decode(m, &r); err != nil {
		return err
	}
	if !r.Accepted {
		c.powerups.Refund(r.Type)
		msg := "Power-up rejected"
		if r.Reason != "" {
			msg += ": " + r.Reason
		}
		c.display.Notice(msg)
	} else if r.Type == protocol.PowerUpFiftyFifty && c.phase == PhaseDisplayed {
		c.display.HideOptions(r.HiddenOptions)
	}
	c.renderPowerUps()
	return nil
}

func (c *Controller) onServerError(m bus.Message) error {
	var p protocol.ErrorPayload
	if err := decode(m, &p); err != nil {
		return err
	}
	if p.Message == "" {
		p.Message = "Something went wrong"
	}
	c.display.Notice(p.Message)
	return nil
}
