package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizlive/internal/app"
)

// GameStore is a Redis-aware implementation of app.GameRepository.
// Games run in-process; Redis marks which PINs are live (with a TTL that
// Touch refreshes) so other instances can refuse to reuse them.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	games  map[string]*app.Game
}

func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{
		client: client,
		ttl:    ttl,
		games:  make(map[string]*app.Game),
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(pin), game.QuizID(), s.ttl).Err()
	return game, nil
}

func (s *GameStore) Get(pin string) (*app.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[pin]
	return game, ok
}

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
		_ = s.client.Del(context.Background(), s.key(pin)).Err()
	}
}

// Touch extends the liveness marker of every local game.
func (s *GameStore) Touch(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.RLock()
	pins := make([]string, 0, len(s.games))
	for pin := range s.games {
		pins = append(pins, pin)
	}
	s.mu.RUnlock()

	pipe := s.client.Pipeline()
	for _, pin := range pins {
		pipe.Expire(ctx, s.key(pin), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Live reports whether any instance holds the game for pin.
func (s *GameStore) Live(ctx context.Context, pin string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(pin)).Result()
	return n > 0, err
}

func (s *GameStore) key(pin string) string {
	return "quiz:game:" + pin
}
