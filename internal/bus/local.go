package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quizlive/internal/logger"
)

// Hub connects in-process endpoints. Delivery is synchronous: Emit
// returns after every addressed handler has run.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Local
	order     []string
	log       *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		endpoints: make(map[string]*Local),
		log:       logger.OrNop(log).Named("hub"),
	}
}

// Endpoint returns the endpoint called name, creating it on first use.
func (h *Hub) Endpoint(name string) *Local {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.endpoints[name]; ok {
		return ep
	}
	ep := &Local{hub: h, name: name}
	h.endpoints[name] = ep
	h.order = append(h.order, name)
	return ep
}

func (h *Hub) remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
}

// Names lists connected endpoints in join order.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	targets := make([]*Local, 0, len(h.order))
	for _, name := range h.order {
		if name == msg.From {
			continue
		}
		targets = append(targets, h.endpoints[name])
	}
	h.mu.RUnlock()

	delivered := 0
	for _, ep := range targets {
		if addressedTo(msg, ep.name) {
			delivered += ep.handlers.dispatch(msg)
		}
	}
	if delivered == 0 {
		h.log.Debug("no handler", zap.String("topic", msg.Topic), zap.String("from", msg.From))
	}
}

// Local is one endpoint on a Hub.
type Local struct {
	hub      *Hub
	name     string
	handlers handlerSet
}

var _ Directed = (*Local)(nil)

// Name returns the endpoint name used for addressing.
func (l *Local) Name() string { return l.name }

func (l *Local) Emit(ctx context.Context, topic string, payload any) error {
	return l.EmitTo(ctx, "", topic, payload)
}

func (l *Local) EmitTo(ctx context.Context, to, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := NewMessage(topic, payload)
	if err != nil {
		return err
	}
	msg.From = l.name
	msg.To = to
	l.hub.deliver(msg)
	return nil
}

func (l *Local) On(topic string, h Handler) Subscription { return l.handlers.add(topic, h) }

func (l *Local) Off(sub Subscription) { l.handlers.remove(sub) }

func (l *Local) Mode() Mode { return ModeLocal }

// HandlerCount reports live subscriptions.
func (l *Local) HandlerCount() int { return l.handlers.count() }

// Close detaches the endpoint from its hub.
func (l *Local) Close() error {
	l.hub.remove(l.name)
	return nil
}
