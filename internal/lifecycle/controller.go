// Package lifecycle drives one client through a game: it reacts to bus
// messages, moves through the phase machine and coordinates the state
// store, display, timer and input handling.
//
// Everything that touches the document or the phase runs on a single
// loop goroutine. Bus handlers, timer callbacks and background display
// work post closures to the loop's mailbox; public methods post and wait.
package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/consensus"
	"quizlive/internal/display"
	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/fault"
	"quizlive/internal/interaction"
	"quizlive/internal/logger"
	"quizlive/internal/powerup"
	"quizlive/internal/protocol"
	"quizlive/internal/registry"
	"quizlive/internal/state"
	"quizlive/internal/stats"
	"quizlive/internal/timer"
)

// ErrStopped is returned by calls made after Close.
var ErrStopped = errors.New("controller stopped")

// ErrWrongRole is returned for actions the client's role cannot take.
var ErrWrongRole = errors.New("action not available for this role")

// DefaultRepeatGuard drops a repeated display-question for the same
// question arriving within this window.
const DefaultRepeatGuard = 500 * time.Millisecond

type Config struct {
	Role       domain.Role
	PlayerName string
	GamePin    string

	RepeatGuard      time.Duration
	Tick             time.Duration
	WarningThreshold time.Duration
	ExtendSeconds    int
	StatsTopK        int
	Consensus        consensus.Config

	BasePath   string
	Typesetter display.Typesetter
	Prober     display.Prober
	Trace      func(display.Stage, uint64)
	// Shuffle orders ordering items for the player. Nil scrambles them with
	// Rand so the authored order is never shown.
	Shuffle func(n int) []int
	Rand    *rand.Rand
	// OnPhase observes phase changes on the loop goroutine.
	OnPhase func(Phase)
	Now     func() time.Time
	Log     *zap.Logger
}

// Controller is one client's game session.
type Controller struct {
	cfg Config
	log *zap.Logger
	bus bus.Bus

	doc      *dom.Document
	reg      *registry.Registry
	store    *state.Store
	timer    *timer.Timer
	display  *display.Coordinator
	input    *interaction.Handler
	stats    *stats.Aggregator
	overlay  *consensus.Overlay
	powerups *powerup.Inventory

	subs []bus.Subscription

	mail     *mailbox
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	runOnce  sync.Once
	stopOnce sync.Once

	// loop-owned
	phase       Phase
	questionSeq uint64
	revealed    bool
	lastNumber  int
	lastShownAt time.Time
	players     []string
	leaderboard []domain.LeaderboardEntry
}

// New builds a controller rendering into doc. Call Run to start it.
func New(b bus.Bus, doc *dom.Document, cfg Config) *Controller {
	if cfg.RepeatGuard <= 0 {
		cfg.RepeatGuard = DefaultRepeatGuard
	}
	if cfg.ExtendSeconds <= 0 {
		cfg.ExtendSeconds = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Role == "" {
		cfg.Role = domain.RolePlayer
	}
	if cfg.Shuffle == nil {
		rnd := cfg.Rand
		if rnd == nil {
			rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		cfg.Shuffle = registry.ScrambledOrder(rnd)
	}
	log := logger.OrNop(cfg.Log).Named("lifecycle").With(zap.String("role", string(cfg.Role)))

	c := &Controller{
		cfg:      cfg,
		log:      log,
		bus:      b,
		doc:      doc,
		reg:      registry.New(log),
		store:    state.NewStore(),
		stats:    stats.New(cfg.StatsTopK),
		overlay:  consensus.NewOverlay(cfg.Consensus),
		powerups: powerup.NewInventory(),
		mail:     newMailbox(),
		loopDone: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.timer = timer.New(timer.Options{
		Tick:             cfg.Tick,
		WarningThreshold: cfg.WarningThreshold,
		OnWarning:        c.onTimerWarning,
		Log:              log,
	})
	c.display = display.New(doc, c.reg, cfg.Role, display.Options{
		BasePath:   cfg.BasePath,
		Typesetter: cfg.Typesetter,
		Prober:     cfg.Prober,
		Post:       func(fn func()) { c.mail.post(fn) },
		Trace:      cfg.Trace,
		Shuffle:    cfg.Shuffle,
		Log:        log,
	})
	if cfg.Role == domain.RolePlayer {
		opts := interaction.Options{
			OnSubmitted: c.onSubmitted,
			OnError:     c.surface,
			Log:         log,
		}
		if cfg.Consensus.Enabled {
			opts.Intercept = c.interceptProposal
		}
		c.input = interaction.New(c.ctx, doc, c.store, b, opts)
	}
	return c
}

// Run subscribes to the bus and starts the loop. The controller stops
// when ctx is done or Close is called.
func (c *Controller) Run(ctx context.Context) {
	c.runOnce.Do(func() {
		for _, topic := range protocol.ServerTopics {
			topic := topic
			c.subs = append(c.subs, c.bus.On(topic, func(m bus.Message) {
				c.mail.post(func() { c.dispatch(topic, m) })
			}))
		}
		go c.loop(ctx)
	})
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.loopDone)
	for {
		select {
		case <-c.mail.notify:
			for _, fn := range c.mail.take() {
				fn()
			}
		case <-ctx.Done():
			c.teardown()
			return
		case <-c.ctx.Done():
			c.teardown()
			return
		}
	}
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(fn func()) error {
	done := make(chan struct{})
	if !c.mail.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-c.loopDone:
		return ErrStopped
	}
}

// callErr is call for closures returning an error.
func (c *Controller) callErr(fn func() error) error {
	var err error
	if cerr := c.call(func() { err = fn() }); cerr != nil {
		return cerr
	}
	return err
}

// Close tears the session down: bus handlers, listeners and timers are
// released and the loop exits.
func (c *Controller) Close() error {
	c.stopOnce.Do(func() {
		c.runOnce.Do(func() { close(c.loopDone) })
		c.cancel()
		<-c.loopDone
		c.teardown()
	})
	return nil
}

func (c *Controller) teardown() {
	for _, sub := range c.subs {
		c.bus.Off(sub)
	}
	c.subs = nil
	c.timer.Stop()
	if c.input != nil {
		c.input.Unbind()
	}
	c.display.Cancel()
	c.mail.close()
}

// Sync waits until background display work has landed in the document.
func (c *Controller) Sync() error {
	if err := c.call(func() {}); err != nil {
		return err
	}
	c.display.Settle()
	return c.call(func() {})
}

func (c *Controller) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.log.Debug("phase", zap.Stringer("from", c.phase), zap.Stringer("to", p))
	c.phase = p
	if p != PhaseDisplayed {
		c.timer.Stop()
	}
	if c.cfg.OnPhase != nil {
		c.cfg.OnPhase(p)
	}
}

// Join moves Idle to Lobby and announces the client.
func (c *Controller) Join() error {
	return c.callErr(func() error {
		if c.phase != PhaseIdle {
			return nil
		}
		c.store.SetRole(c.cfg.Role)
		c.store.SetPlayerName(c.cfg.PlayerName)
		c.store.SetGamePin(c.cfg.GamePin)
		c.setPhase(PhaseLobby)
		if c.cfg.Role == domain.RoleHost {
			c.display.RenderLobby(c.cfg.GamePin, c.players)
		}
		return c.emit(protocol.TopicJoin, protocol.Join{Name: c.cfg.PlayerName, Role: c.cfg.Role})
	})
}

// Reset returns to Idle, dropping everything about the current game.
func (c *Controller) Reset() error {
	return c.call(c.reset)
}

func (c *Controller) reset() {
	c.setPhase(PhaseIdle)
	c.timer.Stop()
	if c.input != nil {
		c.input.Unbind()
	}
	c.questionSeq++
	c.display.Clear()
	c.store.Reset()
	c.stats.Reset(domain.Question{})
	c.overlay.Reset()
	c.powerups.Reset()
	c.lastNumber = 0
	c.lastShownAt = time.Time{}
	c.players = nil
	c.leaderboard = nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	var p Phase
	if err := c.call(func() { p = c.phase }); err != nil {
		return PhaseIdle
	}
	return p
}

// State returns a snapshot of the state store.
func (c *Controller) State() state.Snapshot { return c.store.Get() }

// Store exposes the state store for observers.
func (c *Controller) Store() *state.Store { return c.store }

// HTML renders the document.
func (c *Controller) HTML() string {
	var out string
	_ = c.call(func() { out = c.doc.HTML() })
	return out
}

// Inspect runs fn against the document on the loop.
func (c *Controller) Inspect(fn func(doc *dom.Document)) error {
	return c.call(func() { fn(c.doc) })
}

// Leaderboard returns the last standings received.
func (c *Controller) Leaderboard() []domain.LeaderboardEntry {
	var out []domain.LeaderboardEntry
	_ = c.call(func() { out = append(out, c.leaderboard...) })
	return out
}

// PowerUps returns the inventory as the UI shows it.
func (c *Controller) PowerUps() []powerup.Slot {
	var out []powerup.Slot
	_ = c.call(func() { out = c.powerups.Slots(c.powerupContext()) })
	return out
}

// Consensus returns the team overlay.
func (c *Controller) Consensus() *consensus.Overlay { return c.overlay }

// Timer exposes the countdown.
func (c *Controller) Timer() *timer.Timer { return c.timer }

func (c *Controller) emit(topic string, payload any) error {
	if err := c.bus.Emit(c.ctx, topic, payload); err != nil {
		c.surface(err)
		return err
	}
	return nil
}

// surface reports err through the notice area when its kind calls for it.
func (c *Controller) surface(err error) {
	kind := domain.KindOf(err)
	switch {
	case kind == domain.KindTransport && errors.Is(err, domain.ErrReadOnly):
		c.display.Notice("Connection lost. The game is now read-only.")
	case kind == domain.KindTransport:
		c.display.Notice("Connection problem. Retrying…")
	case kind.Surfaced():
		c.display.Notice(err.Error())
	}
}

// TransportStatus is the remote bus status hook.
func (c *Controller) TransportStatus(s bus.Status, err error) {
	c.mail.post(func() {
		switch s {
		case bus.StatusReconnecting:
			c.display.Notice("Connection problem. Retrying…")
		case bus.StatusDegraded:
			c.display.Notice("Connection lost. The game is now read-only.")
		case bus.StatusConnected:
			c.display.ClearNotice()
		}
		if err != nil {
			c.log.Warn("transport", zap.String("status", string(s)), zap.Error(err))
		}
	})
}

// safe runs a handler under the loop's failure policy.
func (c *Controller) safe(site string, fn func() error) {
	_ = fault.Safe(c.log, site, fn, func(err error) {
		if domain.KindOf(err).Surfaced() {
			c.surface(err)
		}
	})
}
