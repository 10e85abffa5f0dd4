// Package bus is the publish/subscribe abstraction the game client talks
// through. Remote transports and the in-process practice hub share one
// capability set so the lifecycle code never branches on mode.
package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Mode names the kind of transport behind a Bus.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// Message is the envelope every transport carries.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(m.Payload, v)
}

// NewMessage marshals payload into an envelope.
func NewMessage(topic string, payload any) (Message, error) {
	msg := Message{ID: uuid.NewString(), Topic: topic}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Handler receives one message.
type Handler func(Message)

// Subscription identifies a handler for Off.
type Subscription struct {
	id    uint64
	topic string
}

// Bus is the capability set shared by every transport.
type Bus interface {
	Emit(ctx context.Context, topic string, payload any) error
	On(topic string, h Handler) Subscription
	Off(sub Subscription)
	Mode() Mode
}

// Directed buses can address a single recipient.
type Directed interface {
	Bus
	EmitTo(ctx context.Context, to, topic string, payload any) error
}

type entry struct {
	id uint64
	h  Handler
}

// handlerSet is the per-topic handler table shared by implementations.
// Handlers run in registration order.
type handlerSet struct {
	mu     sync.RWMutex
	next   uint64
	topics map[string][]entry
}

func (s *handlerSet) add(topic string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics == nil {
		s.topics = make(map[string][]entry)
	}
	s.next++
	s.topics[topic] = append(s.topics[topic], entry{id: s.next, h: h})
	return Subscription{id: s.next, topic: topic}
}

func (s *handlerSet) remove(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.topics[sub.topic]
	for i, e := range entries {
		if e.id == sub.id {
			s.topics[sub.topic] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(s.topics[sub.topic]) == 0 {
		delete(s.topics, sub.topic)
	}
}

func (s *handlerSet) dispatch(msg Message) int {
	s.mu.RLock()
	entries := append([]entry(nil), s.topics[msg.Topic]...)
	s.mu.RUnlock()
	for _, e := range entries {
		e.h(msg)
	}
	return len(entries)
}

func (s *handlerSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entries := range s.topics {
		n += len(entries)
	}
	return n
}

// addressedTo reports whether msg should reach the endpoint called name.
func addressedTo(msg Message, name string) bool {
	return msg.To == "" || msg.To == name
}
