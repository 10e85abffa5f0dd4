// Package practice is the game server side of a quiz: it owns the
// question sequence, the clock and the scores, and talks to clients over
// a bus endpoint. It backs local practice games and the websocket server.
package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/consensus"
	"quizlive/internal/domain"
	"quizlive/internal/logger"
	"quizlive/internal/powerup"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
)

var (
	ErrNotHost       = errors.New("only the host can do that")
	ErrNotStarted    = errors.New("game has not started")
	ErrStarted       = errors.New("game already started")
	ErrTeamMode      = errors.New("answers are proposed in team mode")
	ErrNoQuestions   = errors.New("quiz has no questions")
	ErrInvalidQuiz   = errors.New("quiz contains an invalid question")
	ErrNotTeamMode   = errors.New("team mode is off")
	ErrDuplicateJoin = errors.New("name already taken")
)

// Stage is where the game is.
type Stage int

const (
	StageLobby Stage = iota
	StageQuestion
	StageReveal
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageLobby:
		return "lobby"
	case StageQuestion:
		return "question"
	case StageReveal:
		return "reveal"
	case StageFinished:
		return "finished"
	}
	return "unknown"
}

// Options configure a game. Zero values take the defaults.
type Options struct {
	PIN        string
	BasePoints int
	// ExtendSeconds is what extend-time adds to the question clock.
	ExtendSeconds int
	// AutoAdvance runs the game without a host: it starts when the first
	// player joins and moves on RevealDelay after each reveal.
	AutoAdvance bool
	RevealDelay time.Duration
	Consensus   consensus.Config
	Registry    *registry.Registry
	Rand        *rand.Rand
	Now         func() time.Time
	Log         *zap.Logger
}

type outbound struct {
	to      string
	topic   string
	payload any
}

type player struct {
	record    *domain.PlayerRecord
	endpoint  string
	inventory *powerup.Inventory
	visible   []int
	answer    domain.Answer
	answered  bool
	answerAt  time.Time
}

// Engine runs one game. Handlers may be invoked from any goroutine; the
// endpoint's other subscribers must not emit back synchronously.
type Engine struct {
	ep   bus.Directed
	quiz domain.Quiz
	opts Options
	log  *zap.Logger
	reg  *registry.Registry
	id   string

	mu        sync.Mutex
	sendMu    sync.Mutex
	out       []outbound
	subs      []bus.Subscription
	stage     Stage
	index     int
	host      string
	players   map[string]*player
	order     []string
	shownAt   time.Time
	deadline  time.Time
	clock     *time.Timer
	advance   *time.Timer
	gen       uint64
	tally     *consensus.Tally
	teamScore int
	closed    bool
}

// NewEngine validates quiz and binds a game to ep. Call Start to begin
// handling messages.
func NewEngine(ep bus.Directed, quiz domain.Quiz, opts Options) (*Engine, error) {
	if len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if opts.BasePoints <= 0 {
		opts.BasePoints = DefaultBasePoints
	}
	if opts.ExtendSeconds <= 0 {
		opts.ExtendSeconds = 10
	}
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := logger.OrNop(opts.Log).Named("practice").With(zap.String("pin", opts.PIN))
	if opts.Registry == nil {
		opts.Registry = registry.New(log)
	}
	for i, q := range quiz.Questions {
		if v := opts.Registry.Validate(q); !v.Valid {
			return nil, fmt.Errorf("%w: question %d: %s", ErrInvalidQuiz, i+1, v.Error())
		}
	}
	return &Engine{
		ep:      ep,
		quiz:    quiz,
		opts:    opts,
		log:     log,
		reg:     opts.Registry,
		id:      uuid.NewString(),
		players: make(map[string]*player),
	}, nil
}

// Start subscribes to the client topics.
func (e *Engine) Start() {
	handlers := map[string]func(bus.Message) error{
		protocol.TopicJoin:              e.onJoin,
		protocol.TopicStartGame:         e.onStart,
		protocol.TopicSubmitAnswer:      e.onSubmit,
		protocol.TopicProposeAnswer:     e.onPropose,
		protocol.TopicLockConsensus:     e.onLock,
		protocol.TopicSendChatMessage:   e.onChat,
		protocol.TopicSendQuickResponse: e.onQuick,
		protocol.TopicUsePowerUp:        e.onPowerUp,
		protocol.TopicNextQuestion:      e.onNext,
		protocol.TopicEndQuestion:       e.onEnd,
	}
	for _, topic := range protocol.ClientTopics {
		h := handlers[topic]
		e.subs = append(e.subs, e.ep.On(topic, func(m bus.Message) {
			e.do(func() {
				if err := h(m); err != nil {
					e.log.Info("request rejected", zap.String("topic", m.Topic), zap.String("from", m.From), zap.Error(err))
					e.send(m.From, protocol.TopicError, protocol.ErrorPayload{Message: err.Error()})
				}
			})
		}))
	}
}

// Close stops the clocks and unsubscribes.
func (e *Engine) Close() {
	e.do(func() {
		e.closed = true
		e.stopClocks()
	})
	for _, sub := range e.subs {
		e.ep.Off(sub)
	}
	e.subs = nil
}

// do runs fn under the state lock and then emits what fn queued, in
// order, before any later call can emit.
func (e *Engine) do(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn()
	out := e.out
	e.out = nil
	e.sendMu.Lock()
	e.mu.Unlock()
	defer e.sendMu.Unlock()

	ctx := context.Background()
	for _, m := range out {
		if err := e.ep.EmitTo(ctx, m.to, m.topic, m.payload); err != nil {
			e.log.Warn("emit failed", zap.String("topic", m.topic), zap.String("to", m.to), zap.Error(err))
		}
	}
}

func (e *Engine) send(to, topic string, payload any) {
	e.out = append(e.out, outbound{to: to, topic: topic, payload: payload})
}

func (e *Engine) broadcast(topic string, payload any) { e.send("", topic, payload) }

func (e *Engine) toHost(topic string, payload any) {
	if e.host != "" {
		e.send(e.host, topic, payload)
	}
}

func (e *Engine) question() domain.Question { return e.quiz.Questions[e.index] }

func (e *Engine) records() []*domain.PlayerRecord {
	out := make([]*domain.PlayerRecord, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.players[name].record)
	}
	return out
}

// Stage returns where the game is.
func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// Standings returns the current leaderboard.
func (e *Engine) Standings() domain.Leaderboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Leaderboard{GamePin: e.opts.PIN, Entries: standings(e.records()), UpdatedAt: e.opts.Now()}
}

// TeamScore returns the accumulated team score.
func (e *Engine) TeamScore() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.teamScore
}

// Players returns the number of joined players.
func (e *Engine) Players() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

func decodeRequest(m bus.Message, v any) error {
	if err := m.Decode(v); err != nil {
		return domain.E(domain.KindProtocol, m.Topic, err)
	}
	return nil
}

func (e *Engine) onJoin(m bus.Message) error {
	var req protocol.Join
	if err := decodeRequest(m, &req); err != nil {
		return err
	}
	if req.Role == domain.RoleHost {
		e.host = m.From
		for _, name := range e.order {
			e.toHost(protocol.TopicPlayerJoined, protocol.PlayerJoined{Name: e.players[name].record.Name, TotalPlayers: len(e.order)})
		}
		if e.stage == StageQuestion {
			e.toHost(protocol.TopicDisplayQuestion, protocol.NewDisplayQuestion(e.question(), e.index+1, len(e.quiz.Questions)))
		}
		return nil
	}
	if _, ok := e.players[m.From]; ok {
		return ErrDuplicateJoin
	}
	name := req.Name
	if name == "" {
		name = m.From
	}
	e.players[m.From] = &player{
		record:    &domain.PlayerRecord{ID: uuid.NewString(), Name: name, Answers: make(map[int]domain.AnswerRecord), LastUpdated: e.opts.Now()},
		endpoint:  m.From,
		inventory: powerup.NewInventory(),
	}
	e.order = append(e.order, m.From)
	e.log.Debug("player joined", zap.String("name", name))
	e.toHost(protocol.TopicPlayerJoined, protocol.PlayerJoined{Name: name, TotalPlayers: len(e.order)})

	switch e.stage {
	case StageLobby:
		if e.opts.AutoAdvance && e.host == "" {
			e.showQuestion(0)
		}
	case StageQuestion:
		p := e.players[m.From]
		p.visible = optionIndices(e.question())
		e.send(m.From, protocol.TopicDisplayQuestion, protocol.NewDisplayQuestion(e.question(), e.index+1, len(e.quiz.Questions)))
	}
	return nil
}

func (e *Engine) fromHost(m bus.Message) error {
	if e.host == "" && e.opts.AutoAdvance {
		return nil
	}
	if m.From != e.host {
		return ErrNotHost
	}
	return nil
}

func (e *Engine) onStart(m bus.Message) error {
	if err := e.fromHost(m); err != nil {
		return err
	}
	if e.stage != StageLobby {
		return ErrStarted
	}
	e.showQuestion(0)
	return nil
}

func optionIndices(q domain.Question) []int {
	out := make([]int, len(q.Options))
	for i := range out {
		out[i] = i
	}
	return out
}

func (e *Engine) showQuestion(i int) {
	e.stopClocks()
	e.gen++
	e.stage = StageQuestion
	e.index = i
	q := e.question()
	e.shownAt = e.opts.Now()
	e.deadline = e.shownAt.Add(time.Duration(q.TimeLimit) * time.Second)
	e.tally = consensus.NewTally()
	for _, p := range e.players {
		p.answer = domain.Answer{}
		p.answered = false
		p.visible = optionIndices(q)
	}
	e.log.Debug("question", zap.Int("number", i+1), zap.String("type", string(q.Type)))
	e.broadcast(protocol.TopicDisplayQuestion, protocol.NewDisplayQuestion(q, i+1, len(e.quiz.Questions)))
	e.toHost(protocol.TopicAnswerCountUpdate, e.countUpdate())
	e.armClock()
}

// armClock schedules the end of the current question at the deadline.
func (e *Engine) armClock() {
	if e.clock != nil {
		e.clock.Stop()
	}
	gen := e.gen
	wait := e.deadline.Sub(e.opts.Now())
	if wait < 0 {
		wait = 0
	}
	e.clock = time.AfterFunc(wait, func() {
		e.do(func() {
			if e.gen == gen && e.stage == StageQuestion {
				e.endQuestion(false)
			}
		})
	})
}

func (e *Engine) stopClocks() {
	if e.clock != nil {
		e.clock.Stop()
		e.clock = nil
	}
	if e.advance != nil {
		e.advance.Stop()
		e.advance = nil
	}
}

func (e *Engine) countUpdate() protocol.AnswerCountUpdate {
	q := e.question()
	u := protocol.AnswerCountUpdate{
		TotalPlayers: len(e.order),
		AnswerCounts: make(map[string]int),
		QuestionType: q.Type,
		OptionCount:  len(q.Options),
	}
	for _, p := range e.players {
		if p.answered {
			u.AnsweredPlayers++
			u.AnswerCounts[p.answer.Key()]++
		}
	}
	return u
}

func (e *Engine) playerFor(m bus.Message) (*player, error) {
	p, ok := e.players[m.From]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (e *Engine) decodeAnswer(m bus.Message) (domain.Answer, error) {
	var req protocol.AnswerPayload
	if err := decodeRequest(m, &req); err != nil {
		return domain.Answer{}, err
	}
	a, err := domain.ParseAnswer(e.question().Type, req.Answer)
	if err != nil {
		return domain.Answer{}, domain.E(domain.KindValidation, m.Topic, err)
	}
	return a, nil
}

func (e *Engine) onSubmit(m bus.Message) error {
	p, err := e.playerFor(m)
	if err != nil {
		return err
	}
	if e.stage != StageQuestion {
		return domain.ErrNotAccepting
	}
	if e.opts.Consensus.Enabled {
		return ErrTeamMode
	}
	if p.answered {
		// repeated submissions are ignored
		return nil
	}
	a, err := e.decodeAnswer(m)
	if err != nil {
		return err
	}
	p.answer = a
	p.answered = true
	p.answerAt = e.opts.Now()
	e.toHost(protocol.TopicAnswerCountUpdate, e.countUpdate())

	if e.allAnswered() {
		e.endQuestion(true)
	}
	return nil
}

func (e *Engine) allAnswered() bool {
	if len(e.players) == 0 {
		return false
	}
	for _, p := range e.players {
		if !p.answered {
			return false
		}
	}
	return true
}

func (e *Engine) correctRaw(q domain.Question) json.RawMessage {
	raw, err := json.Marshal(q.Correctness())
	if err != nil {
		return nil
	}
	return raw
}

// endQuestion scores the current question and reveals it. It does
// nothing unless a question is open.
func (e *Engine) endQuestion(early bool) {
	if e.stage != StageQuestion {
		return
	}
	e.stopClocks()
	e.stage = StageReveal
	q := e.question()
	correct := e.correctRaw(q)
	var tolerance *float64
	if q.Type == domain.Numeric {
		tol := q.EffectiveTolerance()
		tolerance = &tol
	}
	now := e.opts.Now()

	if !e.opts.Consensus.Enabled {
		for _, name := range e.order {
			p := e.players[name]
			out := Score(e.reg, q, p.answer, e.opts.BasePoints)
			points := p.inventory.ApplyScore(out.Points)
			if points > 0 {
				p.record.Score += points
				p.record.LastUpdated = now
			}
			if p.answered {
				p.record.Answers[e.index] = domain.AnswerRecord{
					Value: p.answer, IsCorrect: out.Correct, Points: points, TimeMs: elapsedMs(e.shownAt, p.answerAt),
				}
			}
			total := p.record.Score
			e.send(name, protocol.TopicPlayerResult, protocol.PlayerResult{
				IsCorrect:     out.Correct,
				Points:        points,
				TotalScore:    &total,
				CorrectAnswer: correct,
				QuestionType:  q.Type,
				Explanation:   q.Explanation,
				PartialScore:  out.Partial,
				Tolerance:     tolerance,
			})
		}
	}
	e.broadcast(protocol.TopicQuestionTimeout, protocol.QuestionTimeout{
		EarlyEnd:      early,
		CorrectAnswer: correct,
		Explanation:   q.Explanation,
		Tolerance:     tolerance,
	})
	e.broadcast(protocol.TopicLeaderboard, standings(e.records()))

	if e.opts.AutoAdvance {
		gen := e.gen
		e.advance = time.AfterFunc(e.opts.RevealDelay, func() {
			e.do(func() {
				if e.gen == gen && e.stage == StageReveal {
					e.next()
				}
			})
		})
	}
}

func (e *Engine) next() {
	if e.index+1 < len(e.quiz.Questions) {
		e.showQuestion(e.index + 1)
		return
	}
	e.stopClocks()
	e.stage = StageFinished
	e.broadcast(protocol.TopicGameOver, protocol.GameOver{Leaderboard: standings(e.records())})
	e.log.Info("game over", zap.Int("players", len(e.order)))
}

func (e *Engine) onNext(m bus.Message) error {
	if err := e.fromHost(m); err != nil {
		return err
	}
	switch e.stage {
	case StageLobby:
		return ErrNotStarted
	case StageQuestion:
		e.endQuestion(true)
	case StageReveal:
		e.next()
	}
	return nil
}

func (e *Engine) onEnd(m bus.Message) error {
	if err := e.fromHost(m); err != nil {
		return err
	}
	e.endQuestion(true)
	return nil
}

func (e *Engine) onPowerUp(m bus.Message) error {
	p, err := e.playerFor(m)
	if err != nil {
		return err
	}
	var req protocol.PowerUpRequest
	if err := decodeRequest(m, &req); err != nil {
		return err
	}
	result := protocol.PowerUpResult{Type: req.Type}
	ctx := powerup.Context{Closed: true}
	if e.stage == StageQuestion {
		ctx = powerup.Context{
			QuestionType:   e.question().Type,
			VisibleOptions: len(p.visible),
			TimerRunning:   e.clock != nil,
			Closed:         p.answered,
		}
	}
	if err := p.inventory.Use(req.Type, ctx); err != nil {
		result.Reason = err.Error()
		e.send(m.From, protocol.TopicPowerUpResult, result)
		return nil
	}
	result.Accepted = true
	switch req.Type {
	case protocol.PowerUpFiftyFifty:
		hidden := powerup.HideWrong(e.opts.Rand, p.visible, e.question().CorrectIndex)
		p.visible = without(p.visible, hidden)
		result.HiddenOptions = hidden
	case protocol.PowerUpExtendTime:
		// the question clock is shared, so everyone gets the extra time
		e.deadline = e.deadline.Add(time.Duration(e.opts.ExtendSeconds) * time.Second)
		e.armClock()
		result.ExtraSeconds = e.opts.ExtendSeconds
	}
	e.send(m.From, protocol.TopicPowerUpResult, result)
	return nil
}

func without(v, drop []int) []int {
	skip := make(map[int]bool, len(drop))
	for _, i := range drop {
		skip[i] = true
	}
	out := v[:0:0]
	for _, i := range v {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

func (e *Engine) onPropose(m bus.Message) error {
	if !e.opts.Consensus.Enabled {
		return ErrNotTeamMode
	}
	if _, err := e.playerFor(m); err != nil {
		return err
	}
	if e.stage != StageQuestion {
		return domain.ErrNotAccepting
	}
	a, err := e.decodeAnswer(m)
	if err != nil {
		return err
	}
	if !e.tally.Propose(e.players[m.From].record.Name, a.Key()) {
		return consensus.ErrLocked
	}
	e.broadcast(protocol.TopicProposalUpdate, e.tally.Update(len(e.order)))
	return nil
}

func (e *Engine) threshold() float64 {
	if e.opts.Consensus.Threshold <= 0 {
		return consensus.DefaultThreshold
	}
	return e.opts.Consensus.Threshold
}

func (e *Engine) onLock(m bus.Message) error {
	if !e.opts.Consensus.Enabled {
		return ErrNotTeamMode
	}
	if err := e.fromHost(m); err != nil {
		return err
	}
	if e.stage != StageQuestion {
		return domain.ErrNotAccepting
	}
	total := len(e.order)
	if u := e.tally.Update(total); u.ConsensusPercent < e.threshold() {
		return consensus.ErrBelowThreshold
	}
	key, err := e.tally.Lock(total)
	if err != nil {
		return err
	}
	q := e.question()
	correct := false
	if a, err := domain.ParseKey(q.Type, key); err == nil {
		correct = e.reg.ScoreAnswer(q, a, registry.ScoreOptions{}).Correct
	}
	points := 0
	if correct {
		points = int(float64(e.opts.BasePoints)*Multiplier(q.Difficulty)+0.5) * total
	}
	e.teamScore += points
	e.log.Debug("consensus locked", zap.String("answer", key), zap.Bool("correct", correct), zap.Int("points", points))
	e.broadcast(protocol.TopicConsensusReached, protocol.ConsensusReached{
		IsCorrect: correct, TeamPoints: points, TotalTeamScore: e.teamScore, Answer: key,
	})
	e.broadcast(protocol.TopicTeamScoreUpdate, protocol.TeamScoreUpdate{TotalTeamScore: e.teamScore})
	e.endQuestion(true)
	return nil
}

func (e *Engine) senderName(m bus.Message) string {
	if p, ok := e.players[m.From]; ok {
		return p.record.Name
	}
	return m.From
}

func (e *Engine) onChat(m bus.Message) error {
	if !e.opts.Consensus.Enabled {
		return ErrNotTeamMode
	}
	if !e.opts.Consensus.AllowChat {
		return consensus.ErrChatDisabled
	}
	var req protocol.ChatRequest
	if err := decodeRequest(m, &req); err != nil {
		return err
	}
	text, err := consensus.ValidateMessage(req.Text)
	if err != nil {
		return err
	}
	e.broadcast(protocol.TopicChatMessage, protocol.ChatMessage{PlayerName: e.senderName(m), Text: text, Timestamp: e.opts.Now()})
	return nil
}

func (e *Engine) onQuick(m bus.Message) error {
	if !e.opts.Consensus.Enabled {
		return ErrNotTeamMode
	}
	var req protocol.QuickResponseRequest
	if err := decodeRequest(m, &req); err != nil {
		return err
	}
	if err := consensus.ValidateQuick(req.Type); err != nil {
		return err
	}
	e.broadcast(protocol.TopicQuickResponse, protocol.QuickResponse{
		PlayerName: e.senderName(m), Type: req.Type, TargetPlayer: req.TargetPlayer, Timestamp: e.opts.Now(),
	})
	return nil
}
