// Package console is a line-oriented terminal front-end for a quiz
// client. Each input line is one command acting on a lifecycle
// controller; "show" prints the pane the controller renders into.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/lifecycle"
	"quizlive/internal/logger"
	"quizlive/internal/protocol"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

type command struct {
	usage string
	run   func(s *Session, args []string) error
}

// Session reads commands for one controller.
type Session struct {
	c    *lifecycle.Controller
	role domain.Role
	out  io.Writer
	log  *zap.Logger
}

func New(c *lifecycle.Controller, role domain.Role, out io.Writer, log *zap.Logger) *Session {
	return &Session{c: c, role: role, out: out, log: logger.OrNop(log).Named("console")}
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"select": {"select N", func(s *Session, a []string) error { return s.withIndex(a, s.c.Click) }},
		"toggle": {"toggle N", func(s *Session, a []string) error { return s.withIndex(a, s.c.Click) }},
		"number": {"number X", func(s *Session, a []string) error {
			if len(a) != 1 {
				return ErrUsage
			}
			return s.c.Type(a[0])
		}},
		"move": {"move FROM TO", func(s *Session, a []string) error {
			if len(a) != 2 {
				return ErrUsage
			}
			from, err1 := strconv.Atoi(a[0])
			to, err2 := strconv.Atoi(a[1])
			if err1 != nil || err2 != nil {
				return ErrUsage
			}
			return s.c.Move(from, to)
		}},
		"submit": {"submit", func(s *Session, _ []string) error { return s.c.PressSubmit() }},
		"power":  {"power 5050|time|double", func(s *Session, a []string) error { return s.power(a) }},
		"propose": {"propose ANSWER", func(s *Session, a []string) error {
			if len(a) != 1 {
				return ErrUsage
			}
			q := s.c.State().CurrentQuestion
			if q == nil {
				return domain.E(domain.KindValidation, "propose", domain.ErrNotAccepting)
			}
			ans, err := domain.ParseKey(q.Type, a[0])
			if err != nil {
				return err
			}
			return s.c.Propose(ans)
		}},
		"lock": {"lock", func(s *Session, _ []string) error { return s.c.Lock() }},
		"chat": {"chat TEXT", func(s *Session, a []string) error {
			if len(a) == 0 {
				return ErrUsage
			}
			return s.c.Chat(strings.Join(a, " "))
		}},
		"quick": {"quick TYPE [PLAYER]", func(s *Session, a []string) error {
			if len(a) == 0 || len(a) > 2 {
				return ErrUsage
			}
			target := ""
			if len(a) == 2 {
				target = a[1]
			}
			return s.c.Quick(protocol.QuickResponseType(a[0]), target)
		}},
		"next":  {"next", func(s *Session, _ []string) error { return s.c.Next() }},
		"end":   {"end", func(s *Session, _ []string) error { return s.c.ForceEnd() }},
		"start": {"start", func(s *Session, _ []string) error { return s.c.StartGame() }},
		"show":  {"show", func(s *Session, _ []string) error { return s.Show() }},
		"help":  {"help", func(s *Session, _ []string) error { s.help(); return nil }},
		"quit":  {"quit", func(*Session, []string) error { return ErrQuit }},
	}
}

// Exec runs one command line.
func (s *Session) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	err := cmd.run(s, fields[1:])
	if errors.Is(err, ErrUsage) {
		return fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return err
}

// Run executes lines from in until EOF, quit, or ctx ends. Command errors
// are printed and do not stop the session.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			err := s.Exec(line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				s.log.Debug("command failed", zap.String("line", line), zap.Error(err))
				fmt.Fprintf(s.out, "! %v\n", err)
				continue
			}
			_ = s.c.Sync()
		}
	}
}

// OnPhase prints phase transitions. It runs on the controller loop and
// must not call back into the controller.
func (s *Session) OnPhase(p lifecycle.Phase) {
	fmt.Fprintf(s.out, "-- %s\n", p)
}

func (s *Session) withIndex(args []string, fn func(int) error) error {
	if len(args) != 1 {
		return ErrUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return ErrUsage
	}
	return fn(n)
}

var powerAliases = map[string]protocol.PowerUpType{
	"5050":   protocol.PowerUpFiftyFifty,
	"50/50":  protocol.PowerUpFiftyFifty,
	"time":   protocol.PowerUpExtendTime,
	"double": protocol.PowerUpDoublePoints,
	"2x":     protocol.PowerUpDoublePoints,
}

func (s *Session) power(args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	t, ok := powerAliases[strings.ToLower(args[0])]
	if !ok {
		t = protocol.PowerUpType(args[0])
	}
	return s.c.UsePowerUp(t)
}

func (s *Session) help() {
	names := []string{"select", "toggle", "number", "move", "submit", "power", "propose", "lock", "chat", "quick", "start", "next", "end", "show", "help", "quit"}
	for _, n := range names {
		fmt.Fprintf(s.out, "  %s\n", commands[n].usage)
	}
}

// Show prints the controller's pane as plain text.
func (s *Session) Show() error {
	pane := dom.PlayerIDs
	if s.role == domain.RoleHost {
		pane = dom.HostIDs
	}
	var b strings.Builder
	err := s.c.Inspect(func(doc *dom.Document) {
		line := func(label, id string) {
			if t := flatten(doc.ByID(id)); t != "" {
				fmt.Fprintf(&b, "%s: %s\n", label, t)
			}
		}
		line("question", pane.Counter)
		line("timer", pane.Timer)
		line("text", pane.Question)
		doc.ByID(pane.Options).Find("[data-option], .ordering-item").Each(func(i int, sel *goquery.Selection) {
			mark := " "
			switch {
			case sel.HasClass(dom.ClassHidden):
				return
			case sel.HasClass(dom.ClassCorrect), sel.HasClass(dom.ClassCorrectAnswer):
				mark = "+"
			case sel.HasClass(dom.ClassIncorrect):
				mark = "x"
			case sel.HasClass(dom.ClassSelected), dom.Checked(sel.Find("input").First()):
				mark = "*"
			}
			fmt.Fprintf(&b, " %s %d. %s\n", mark, i, flatten(sel))
		})
		if s.role == domain.RoleHost {
			line("answers", dom.AnswerStatistics)
		} else {
			line("score", dom.PlayerScore)
			line("power-ups", dom.PowerUps)
			if fb := doc.ByID(dom.PlayerFeedback); !fb.HasClass(dom.ClassHidden) {
				line("result", dom.PlayerFeedback)
			}
		}
		line("team", pane.Consensus)
		line("chat", pane.Discussion)
		line("leaderboard", pane.Leaderboard)
		line("notice", dom.Notice)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "[%s]\n%s", s.c.Phase(), b.String())
	return nil
}

func flatten(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
