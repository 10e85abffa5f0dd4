package bus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizlive/internal/domain"
	"quizlive/internal/logger"
)

// Status reports the health of a remote transport.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDegraded     Status = "degraded"
	StatusClosed       Status = "closed"
)

// RemoteOptions configures DialRemote.
type RemoteOptions struct {
	// Retries is the number of attempts per connect or send (default 3).
	Retries int
	// Backoff is the first retry delay (default 200ms).
	Backoff  time.Duration
	Header   http.Header
	Dialer   *websocket.Dialer
	OnStatus func(Status, error)
	Log      *zap.Logger
}

// Remote is a Bus over a websocket connection to a game server.
type Remote struct {
	url  string
	opts RemoteOptions
	log  *zap.Logger

	handlers handlerSet

	mu       sync.Mutex
	conn     *websocket.Conn
	readOnly bool
	closed   bool
	// redial is non-nil while a reconnect is dialing; it closes when done.
	redial chan struct{}

	writeMu sync.Mutex
}

var _ Bus = (*Remote)(nil)

// DialRemote connects to url, retrying with backoff, and starts reading.
func DialRemote(ctx context.Context, url string, opts RemoteOptions) (*Remote, error) {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	r := &Remote{
		url:  url,
		opts: opts,
		log:  logger.OrNop(opts.Log).Named("remote"),
	}
	conn, err := r.dial(ctx)
	if err != nil {
		return nil, domain.E(domain.KindTransport, "dial", err)
	}
	r.conn = conn
	r.status(StatusConnected, nil)
	go r.readLoop(conn)
	return r, nil
}

func (r *Remote) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.Backoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.Retries-1)), ctx)
}

func (r *Remote) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		c, _, err := r.opts.Dialer.DialContext(ctx, r.url, r.opts.Header)
		if err != nil {
			r.log.Warn("dial failed", zap.String("url", r.url), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, r.policy(ctx))
	return conn, err
}

func (r *Remote) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if r.isClosed() {
				return
			}
			r.log.Warn("read failed", zap.Error(err))
			next := r.reconnect(conn)
			if next == nil {
				return
			}
			conn = next
			continue
		}
		r.handlers.dispatch(msg)
	}
}

// reconnect replaces a broken connection. Concurrent callers share one
// dial. It returns nil once the transport is degraded or closed.
func (r *Remote) reconnect(broken *websocket.Conn) *websocket.Conn {
	r.mu.Lock()
	for {
		if r.closed || r.readOnly {
			r.mu.Unlock()
			return nil
		}
		if r.conn != broken {
			current := r.conn
			r.mu.Unlock()
			return current
		}
		if r.redial == nil {
			break
		}
		wait := r.redial
		r.mu.Unlock()
		<-wait
		r.mu.Lock()
	}
	done := make(chan struct{})
	r.redial = done
	r.mu.Unlock()

	r.status(StatusReconnecting, nil)
	conn, err := r.dial(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redial = nil
	defer close(done)
	if err != nil {
		r.readOnly = true
		go r.status(StatusDegraded, err)
		return nil
	}
	if r.closed {
		_ = conn.Close()
		return nil
	}
	_ = broken.Close()
	r.conn = conn
	go r.status(StatusConnected, nil)
	return conn
}

func (r *Remote) Emit(ctx context.Context, topic string, payload any) error {
	return r.EmitTo(ctx, "", topic, payload)
}

// EmitTo sends with retry. After the retries are exhausted the transport
// degrades to read-only and every further Emit fails with ErrReadOnly.
func (r *Remote) EmitTo(ctx context.Context, to, topic string, payload any) error {
	msg, err := NewMessage(topic, payload)
	if err != nil {
		return domain.E(domain.KindProtocol, "encode "+topic, err)
	}
	msg.To = to
	if r.ReadOnly() {
		return domain.E(domain.KindTransport, "emit "+topic, domain.ErrReadOnly)
	}

	err = backoff.Retry(func() error {
		conn := r.current()
		if conn == nil {
			return backoff.Permanent(domain.ErrReadOnly)
		}
		r.writeMu.Lock()
		werr := conn.WriteJSON(msg)
		r.writeMu.Unlock()
		if werr != nil {
			r.log.Warn("write failed", zap.String("topic", topic), zap.Error(werr))
			if next := r.reconnect(conn); next == nil {
				return backoff.Permanent(werr)
			}
		}
		return werr
	}, r.policy(ctx))
	if err != nil {
		r.degrade(err)
		return domain.E(domain.KindTransport, "emit "+topic, err)
	}
	return nil
}

func (r *Remote) degrade(err error) {
	r.mu.Lock()
	already := r.readOnly || r.closed
	r.readOnly = true
	r.mu.Unlock()
	if !already {
		r.status(StatusDegraded, err)
	}
}

func (r *Remote) current() *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.readOnly {
		return nil
	}
	return r.conn
}

func (r *Remote) On(topic string, h Handler) Subscription { return r.handlers.add(topic, h) }

func (r *Remote) Off(sub Subscription) { r.handlers.remove(sub) }

func (r *Remote) Mode() Mode { return ModeRemote }

// ReadOnly reports whether the transport has degraded.
func (r *Remote) ReadOnly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readOnly
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close shuts the connection down.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.mu.Unlock()

	r.status(StatusClosed, nil)
	if conn == nil {
		return nil
	}
	r.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

func (r *Remote) status(s Status, err error) {
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(s, err)
	}
}
