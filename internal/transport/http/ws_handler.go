package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizlive/internal/app"
	"quizlive/internal/bus"
	"quizlive/internal/domain"
	"quizlive/internal/logger"
	"quizlive/internal/protocol"
)

// DefaultQuizID is used when a connection names no quiz.
const DefaultQuizID = "sample"

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

var errUnsupportedTopic = errors.New("unsupported message type")

// outbox queues messages for one connection's writer. Pushing never
// blocks: a full queue closes the outbox and calls onOverflow, so one
// client that stops reading cannot stall the game's delivery.
type outbox struct {
	mu         sync.Mutex
	ch         chan bus.Message
	closed     bool
	onOverflow func()
}

func newOutbox(size int, onOverflow func()) *outbox {
	return &outbox{ch: make(chan bus.Message, size), onOverflow: onOverflow}
}

func (o *outbox) push(m bus.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- m:
		return true
	default:
	}
	o.closed = true
	close(o.ch)
	if o.onOverflow != nil {
		o.onOverflow()
	}
	return false
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(service *app.GameService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.OrNop(log).Named("ws"),
	}
}

// NewRouter mounts the websocket endpoint and a health check, plus the
// uploaded question media under /uploads/ when uploadsDir is set.
func NewRouter(h *WSHandler, uploadsDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", h.ServeWS)
	if uploadsDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadsDir))))
	}
	return mux
}

var clientTopics = func() map[string]bool {
	m := make(map[string]bool, len(protocol.ClientTopics))
	for _, t := range protocol.ClientTopics {
		m[t] = true
	}
	return m
}()

// ServeWS upgrades HTTP requests to websockets and bridges them onto the
// game named by pin. Inbound envelopes go to the game server; every
// server topic addressed to this connection is written back.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pin := q.Get("pin")
	name := q.Get("name")
	role := domain.Role(q.Get("role"))
	quizID := q.Get("quiz")
	if pin == "" || name == "" {
		http.Error(w, "missing pin or name", http.StatusBadRequest)
		return
	}
	if role == "" {
		role = domain.RolePlayer
	}
	if role != domain.RoleHost && role != domain.RolePlayer {
		http.Error(w, "role must be host or player", http.StatusBadRequest)
		return
	}
	if quizID == "" {
		quizID = DefaultQuizID
	}
	log := h.log.With(zap.String("pin", pin), zap.String("name", name), zap.String("role", string(role)))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// the request context ends with the handler; the game outlives it
	ctx := context.WithoutCancel(r.Context())
	_, ep, err := h.service.Join(ctx, pin, quizID, name)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.Leave(ctx, pin, name)
	log.Info("connected")

	out := newOutbox(sendBuffer, func() {
		log.Warn("client too slow, dropping connection")
		_ = conn.Close()
	})
	writerDone := make(chan struct{})

	forward := func(m bus.Message) {
		m.To = ""
		out.push(m)
	}
	subs := make([]bus.Subscription, 0, len(protocol.ServerTopics))
	for _, topic := range protocol.ServerTopics {
		subs = append(subs, ep.On(topic, forward))
	}

	go func() {
		defer close(writerDone)
		for msg := range out.ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", zap.Error(err))
				// unblocks the reader so the connection is torn down
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		var inbound bus.Message
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !clientTopics[inbound.Topic] {
			forward(errorMessage(errUnsupportedTopic))
			continue
		}
		if err := ep.EmitTo(ctx, app.ServerEndpoint, inbound.Topic, inbound.Payload); err != nil {
			forward(errorMessage(err))
		}
	}

	for _, sub := range subs {
		ep.Off(sub)
	}
	out.close()
	<-writerDone
	log.Info("disconnected")
}

func errorMessage(err error) bus.Message {
	msg, _ := bus.NewMessage(protocol.TopicError, protocol.ErrorPayload{Message: err.Error()})
	return msg
}
