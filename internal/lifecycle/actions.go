package lifecycle

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"quizlive/internal/consensus"
	"quizlive/internal/display"
	"quizlive/internal/domain"
	"quizlive/internal/powerup"
	"quizlive/internal/protocol"
)

// ErrNoInput is returned when an input action finds nothing to act on.
var ErrNoInput = errors.New("no matching input")

func (c *Controller) playerOnly(fn func() error) error {
	if c.cfg.Role != domain.RolePlayer {
		return ErrWrongRole
	}
	return c.callErr(fn)
}

func (c *Controller) hostOnly(fn func() error) error {
	if c.cfg.Role != domain.RoleHost {
		return ErrWrongRole
	}
	return c.callErr(fn)
}

func dispatched(ok bool) error {
	if !ok {
		return ErrNoInput
	}
	return nil
}

// Click clicks option i (zero-based): it selects and submits single
// answers and toggles checkboxes.
func (c *Controller) Click(i int) error {
	return c.playerOnly(func() error { return dispatched(c.input.Click(i)) })
}

// Type enters value into the numeric input.
func (c *Controller) Type(value string) error {
	return c.playerOnly(func() error { return dispatched(c.input.Type(value)) })
}

// Move drags the ordering item at from to position to.
func (c *Controller) Move(from, to int) error {
	return c.playerOnly(func() error { return dispatched(c.input.Move(from, to)) })
}

// PressSubmit presses the explicit submit button.
func (c *Controller) PressSubmit() error {
	return c.playerOnly(func() error { return dispatched(c.input.PressSubmit()) })
}

// Answer submits a directly, as if the player had picked it.
func (c *Controller) Answer(a domain.Answer) error {
	return c.playerOnly(func() error { return c.input.Submit(a) })
}

func (c *Controller) onSubmitted(domain.Answer) {
	c.display.Announce("Answer submitted")
	c.renderPowerUps()
}

// interceptProposal turns answers into proposals in team mode.
func (c *Controller) interceptProposal(a domain.Answer) bool {
	if err := c.propose(a); err != nil {
		c.log.Debug("proposal dropped", zap.Error(err))
	}
	return true
}

// Propose backs a as the team answer.
func (c *Controller) Propose(a domain.Answer) error {
	return c.playerOnly(func() error { return c.propose(a) })
}

func (c *Controller) propose(a domain.Answer) error {
	if !c.overlay.Enabled() {
		return consensusErr("propose", errDisabled)
	}
	if c.phase != PhaseDisplayed || c.overlay.Locked() {
		return consensusErr("propose", errClosed)
	}
	if err := c.store.SetSelectedAnswer(a); err != nil {
		return err
	}
	return c.emit(protocol.TopicProposeAnswer, protocol.NewAnswerPayload(a))
}

var (
	errDisabled = errors.New("team mode is off")
	errClosed   = errors.New("question is closed")
)

func consensusErr(op string, err error) error {
	return domain.E(domain.KindValidation, op, err)
}

// Lock locks the team answer once the threshold is met.
func (c *Controller) Lock() error {
	return c.hostOnly(func() error {
		if err := c.overlay.Lock(); err != nil {
			return consensusErr("lock", err)
		}
		c.renderConsensus()
		return c.emit(protocol.TopicLockConsensus, nil)
	})
}

// Chat sends a team chat message.
func (c *Controller) Chat(text string) error {
	return c.callErr(func() error {
		if !c.overlay.Enabled() {
			return consensusErr("chat", errDisabled)
		}
		msg, err := c.overlay.ValidateChat(text)
		if err != nil {
			return consensusErr("chat", err)
		}
		return c.emit(protocol.TopicSendChatMessage, protocol.ChatRequest{Text: msg})
	})
}

// Quick sends a fixed team message, optionally aimed at one player.
func (c *Controller) Quick(t protocol.QuickResponseType, target string) error {
	return c.callErr(func() error {
		if !c.overlay.Enabled() {
			return consensusErr("quick-response", errDisabled)
		}
		if err := consensus.ValidateQuick(t); err != nil {
			return consensusErr("quick-response", err)
		}
		return c.emit(protocol.TopicSendQuickResponse, protocol.QuickResponseRequest{Type: t, TargetPlayer: target})
	})
}

func (c *Controller) powerupContext() powerup.Context {
	snap := c.store.Get()
	ctx := powerup.Context{
		TimerRunning: c.timer.Running(),
		Closed:       snap.AnswerSubmitted || snap.AnswersClosed || snap.ResultShown || c.phase != PhaseDisplayed,
	}
	if snap.CurrentQuestion != nil {
		ctx.QuestionType = snap.CurrentQuestion.Type
		ctx.VisibleOptions = len(c.display.VisibleOptions())
	}
	return ctx
}

func (c *Controller) renderPowerUps() {
	if c.isHost() {
		return
	}
	slots := c.powerups.Slots(c.powerupContext())
	out := make([]display.PowerUpSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, display.PowerUpSlot{Type: s.Type, Label: s.Label, Available: s.Available, Used: s.Used})
	}
	c.display.RenderPowerUps(out)
}

// UsePowerUp activates t. Extend-time and double-points take effect
// locally at once; 50/50 waits for the server to pick the options.
func (c *Controller) UsePowerUp(t protocol.PowerUpType) error {
	return c.playerOnly(func() error {
		if err := c.powerups.Use(t, c.powerupContext()); err != nil {
			c.display.Notice(err.Error())
			return domain.E(domain.KindValidation, "use-power-up", err)
		}
		if t == protocol.PowerUpExtendTime {
			extra := time.Duration(c.cfg.ExtendSeconds) * time.Second
			if err := c.timer.Extend(extra); err != nil {
				c.log.Debug("extend skipped", zap.Error(err))
			}
		}
		c.renderPowerUps()
		return c.emit(protocol.TopicUsePowerUp, protocol.PowerUpRequest{Type: t})
	})
}

// StartGame asks the server to begin.
func (c *Controller) StartGame() error {
	return c.hostOnly(func() error {
		if c.phase != PhaseLobby {
			return domain.E(domain.KindValidation, "start-game", errors.New("not in the lobby"))
		}
		return c.emit(protocol.TopicStartGame, nil)
	})
}

// Next advances to the next question or the end of the game.
func (c *Controller) Next() error {
	return c.hostOnly(func() error { return c.emit(protocol.TopicNextQuestion, nil) })
}

// ForceEnd closes the current question early.
func (c *Controller) ForceEnd() error {
	return c.hostOnly(func() error {
		if c.phase == PhaseDisplayed {
			c.setPhase(PhaseRevealed)
		}
		return c.emit(protocol.TopicEndQuestion, nil)
	})
}
