package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/domain"
	"quizlive/internal/logger"
	"quizlive/internal/practice"
)

// ServerEndpoint is the hub name the game engine listens on.
const ServerEndpoint = "server"

// ErrNameTaken is returned when a connection name is already attached.
var ErrNameTaken = errors.New("name already in use in this game")

// GameRepository abstracts where running games are kept (in-memory, Redis, etc).
type GameRepository interface {
	GetOrCreate(pin string, create func() (*Game, error)) (*Game, error)
	Get(pin string) (*Game, bool)
	DeleteIfEmpty(pin string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GameService contains the game directory use cases.
type GameService struct {
	games   GameRepository
	quizzes QuizRepository
	opts    practice.Options
	log     *zap.Logger
}

// NewGameService builds a service whose games run with opts. opts.PIN is
// set per game.
func NewGameService(games GameRepository, quizzes QuizRepository, opts practice.Options) *GameService {
	return &GameService{
		games:   games,
		quizzes: quizzes,
		opts:    opts,
		log:     logger.OrNop(opts.Log).Named("games"),
	}
}

// Open returns the game for pin, starting it with quizID on first use.
func (s *GameService) Open(ctx context.Context, pin, quizID string) (*Game, error) {
	if g, ok := s.games.Get(pin); ok {
		return g, nil
	}
	// users cannot open games for unknown quizzes
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return s.games.GetOrCreate(pin, func() (*Game, error) {
		opts := s.opts
		opts.PIN = pin
		g, err := NewGame(pin, quiz, opts)
		if err == nil {
			s.log.Info("game opened", zap.String("pin", pin), zap.String("quiz", quizID))
		}
		return g, err
	})
}

// Join attaches a named connection to the game for pin.
func (s *GameService) Join(ctx context.Context, pin, quizID, name string) (*Game, *bus.Local, error) {
	g, err := s.Open(ctx, pin, quizID)
	if err != nil {
		return nil, nil, err
	}
	ep, err := g.Attach(name)
	if err != nil {
		return nil, nil, err
	}
	return g, ep, nil
}

// Leave detaches name and drops the game once nobody is left.
func (s *GameService) Leave(_ context.Context, pin, name string) {
	g, ok := s.games.Get(pin)
	if !ok {
		return
	}
	g.Detach(name)
	if g.IsEmpty() {
		s.games.DeleteIfEmpty(pin)
	}
}

// Game is one running game: a hub, the engine on it, and the attached
// connections.
type Game struct {
	pin    string
	quizID string
	hub    *bus.Hub
	engine *practice.Engine

	mu    sync.Mutex
	conns map[string]*bus.Local
}

// NewGame starts an engine for quiz on a fresh hub.
func NewGame(pin string, quiz domain.Quiz, opts practice.Options) (*Game, error) {
	hub := bus.NewHub(opts.Log)
	engine, err := practice.NewEngine(hub.Endpoint(ServerEndpoint), quiz, opts)
	if err != nil {
		return nil, fmt.Errorf("start game %s: %w", pin, err)
	}
	engine.Start()
	return &Game{
		pin:    pin,
		quizID: quiz.ID,
		hub:    hub,
		engine: engine,
		conns:  make(map[string]*bus.Local),
	}, nil
}

func (g *Game) PIN() string              { return g.pin }
func (g *Game) QuizID() string           { return g.quizID }
func (g *Game) Engine() *practice.Engine { return g.engine }
func (g *Game) Hub() *bus.Hub            { return g.hub }

// Attach reserves name on the game's hub.
func (g *Game) Attach(name string) (*bus.Local, error) {
	if name == "" || name == ServerEndpoint {
		return nil, ErrNameTaken
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[name]; ok {
		return nil, ErrNameTaken
	}
	ep := g.hub.Endpoint(name)
	g.conns[name] = ep
	return ep, nil
}

// Detach releases name.
func (g *Game) Detach(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ep, ok := g.conns[name]; ok {
		_ = ep.Close()
		delete(g.conns, name)
	}
}

// IsEmpty reports whether the game has no attached connections.
func (g *Game) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns) == 0
}

// Close stops the engine.
func (g *Game) Close() {
	g.engine.Close()
}
