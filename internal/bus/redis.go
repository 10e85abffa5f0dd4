package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizlive/internal/domain"
	"quizlive/internal/logger"
)

// Channel returns the pub/sub channel for a game pin.
func Channel(pin string) string {
	return "quiz:bus:" + pin
}

// Redis fans messages out through Redis pub/sub so several server
// processes can share one game. Messages a node published itself are
// dropped on receipt.
type Redis struct {
	client  *redis.Client
	channel string
	name    string
	log     *zap.Logger

	handlers handlerSet
	sub      *redis.PubSub

	closeOnce sync.Once
	done      chan struct{}
}

var _ Directed = (*Redis)(nil)

// NewRedis subscribes name to the channel of pin. The subscription is
// confirmed before NewRedis returns.
func NewRedis(ctx context.Context, client *redis.Client, pin, name string, log *zap.Logger) (*Redis, error) {
	r := &Redis{
		client:  client,
		channel: Channel(pin),
		name:    name,
		log:     logger.OrNop(log).Named("redis-bus"),
		done:    make(chan struct{}),
	}
	r.sub = client.Subscribe(ctx, r.channel)
	if _, err := r.sub.Receive(ctx); err != nil {
		_ = r.sub.Close()
		return nil, domain.E(domain.KindTransport, "subscribe "+r.channel, err)
	}
	go r.readLoop()
	return r, nil
}

func (r *Redis) readLoop() {
	defer close(r.done)
	for m := range r.sub.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			r.log.Warn("drop malformed message", zap.Error(err))
			continue
		}
		if msg.From == r.name || !addressedTo(msg, r.name) {
			continue
		}
		r.handlers.dispatch(msg)
	}
}

func (r *Redis) Emit(ctx context.Context, topic string, payload any) error {
	return r.EmitTo(ctx, "", topic, payload)
}

func (r *Redis) EmitTo(ctx context.Context, to, topic string, payload any) error {
	msg, err := NewMessage(topic, payload)
	if err != nil {
		return domain.E(domain.KindProtocol, "encode "+topic, err)
	}
	msg.From = r.name
	msg.To = to
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.E(domain.KindProtocol, "encode "+topic, err)
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return domain.E(domain.KindTransport, "publish "+topic, err)
	}
	return nil
}

func (r *Redis) On(topic string, h Handler) Subscription { return r.handlers.add(topic, h) }

func (r *Redis) Off(sub Subscription) { r.handlers.remove(sub) }

func (r *Redis) Mode() Mode { return ModeRemote }

// Name returns the node name used as From.
func (r *Redis) Name() string { return r.name }

// Close unsubscribes and waits for the read loop to exit.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.sub.Close()
		<-r.done
	})
	return err
}
