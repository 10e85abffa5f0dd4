package memory

import (
	"sync"

	"quizlive/internal/app"
)

// GameStore is an in-memory implementation of app.GameRepository.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]*app.Game
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[string]*app.Game),
	}
}

func (s *GameStore) GetOrCreate(pin string, create func() (*app.Game, error)) (*app.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game, ok := s.games[pin]; ok {
		return game, nil
	}
	game, err := create()
	if err != nil {
		return nil, err
	}
	s.games[pin] = game
	return game, nil
}

func (s *GameStore) Get(pin string) (*app.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[pin]
	return game, ok
}

// DeleteIfEmpty drops and stops the game once nobody is attached.
func (s *GameStore) DeleteIfEmpty(pin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[pin]
	if !ok {
		return
	}
	if game.IsEmpty() {
		delete(s.games, pin)
		game.Close()
	}
}

// Len reports the number of running games.
func (s *GameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
