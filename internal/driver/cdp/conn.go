package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

const defaultReadLimit = 4 << 20

// ErrConnClosed indicates a call on a connection whose read loop has ended.
var ErrConnClosed = errors.New("cdp: connection closed")

type connConfig struct {
	sessionID string
	readLimit int64
	logger    *slog.Logger
}

// ConnOption mutates connection configuration.
type ConnOption func(*connConfig)

// WithSessionID scopes requests and accepted notifications to one flattened target session.
func WithSessionID(sessionID string) ConnOption {
	return func(cfg *connConfig) {
		cfg.sessionID = sessionID
	}
}

// WithReadLimit caps the size of one inbound protocol message.
func WithReadLimit(limit int64) ConnOption {
	return func(cfg *connConfig) {
		if limit > 0 {
			cfg.readLimit = limit
		}
	}
}

// WithConnLogger configures connection diagnostics logging.
func WithConnLogger(logger *slog.Logger) ConnOption {
	return func(cfg *connConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Conn is a DevTools protocol client over one websocket.
//
// Consume must be running for Call to observe responses.
type Conn struct {
	ws        *websocket.Conn
	cfg       connConfig
	nextID    atomic.Int64
	consuming atomic.Bool
	closing   atomic.Bool

	mu      sync.Mutex
	pending map[int64]chan callResult
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

// Dial opens a websocket to a DevTools endpoint such as ws://host:9222/devtools/page/ID.
func Dial(ctx context.Context, endpoint string, options ...ConnOption) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cdp endpoint %s: %w", endpoint, err)
	}

	return newConn(ws, options...), nil
}

func newConn(ws *websocket.Conn, options ...ConnOption) *Conn {
	cfg := connConfig{
		readLimit: defaultReadLimit,
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(&cfg)
	}
	ws.SetReadLimit(cfg.readLimit)

	return &Conn{
		ws:      ws,
		cfg:     cfg,
		pending: make(map[int64]chan callResult),
		done:    make(chan struct{}),
	}
}

// Call sends method with params and waits for the matching response.
//
// A non-nil result is populated from the response payload.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	replies := make(chan callResult, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("call %s: %w", method, err)
	}
	c.pending[id] = replies
	c.mu.Unlock()
	defer c.forget(id)

	request := message{ID: &id, Method: method, SessionID: c.cfg.sessionID}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("call %s: encode params: %w", method, err)
		}
		request.Params = encoded
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("call %s: encode request: %w", method, err)
	}

	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("call %s: write: %w", method, err)
	}

	select {
	case reply := <-replies:
		return finishCall(method, reply, result)
	case <-c.done:
		// A response read just before the loop ended still counts.
		select {
		case reply := <-replies:
			return finishCall(method, reply, result)
		default:
		}
		return fmt.Errorf("call %s: %w", method, c.closeErr())
	case <-ctx.Done():
		return fmt.Errorf("call %s: %w", method, ctx.Err())
	}
}

func finishCall(method string, reply callResult, result any) error {
	if reply.err != nil {
		return fmt.Errorf("call %s: %w", method, reply.err)
	}
	if result != nil && len(reply.result) > 0 {
		if err := json.Unmarshal(reply.result, result); err != nil {
			return fmt.Errorf("call %s: decode result: %w", method, err)
		}
	}

	return nil
}

// Consume runs the read loop, resolving call responses and forwarding notifications.
//
// It returns nil on context cancellation or local Close. Only one Consume may run per connection.
func (c *Conn) Consume(ctx context.Context, handler NotificationHandler) error {
	if handler == nil {
		return fmt.Errorf("cdp consume: nil handler")
	}
	if !c.consuming.CompareAndSwap(false, true) {
		return fmt.Errorf("cdp consume: already consuming")
	}

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.fail(ErrConnClosed)
			if ctx.Err() != nil || c.closing.Load() || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("cdp consume: read: %w", err)
		}

		var inbound message
		if err := json.Unmarshal(data, &inbound); err != nil {
			c.cfg.logger.WarnContext(ctx, "cdp malformed message", "error", err)
			continue
		}

		kind, err := inbound.classify()
		switch kind {
		case messageKindResponse:
			c.resolve(ctx, *inbound.ID, inbound)
		case messageKindNotification:
			if c.cfg.sessionID != "" && inbound.SessionID != c.cfg.sessionID {
				continue
			}
			notification := Notification{
				Method:    inbound.Method,
				Params:    inbound.Params,
				SessionID: inbound.SessionID,
			}
			if err := handler(ctx, notification); err != nil {
				return fmt.Errorf("cdp consume notification %s: %w", notification.Method, err)
			}
		default:
			c.cfg.logger.WarnContext(ctx, "cdp invalid message", "error", err)
		}
	}
}

// Close ends the websocket and fails pending and future calls.
func (c *Conn) Close() error {
	c.closing.Store(true)
	c.fail(ErrConnClosed)

	if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil && !isNormalClose(err) && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close cdp connection: %w", err)
	}

	return nil
}

// Done is closed once the connection can no longer serve calls.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) resolve(ctx context.Context, id int64, inbound message) {
	c.mu.Lock()
	replies, exists := c.pending[id]
	c.mu.Unlock()
	if !exists {
		c.cfg.logger.DebugContext(ctx, "cdp response without pending call", "id", id)
		return
	}

	reply := callResult{result: inbound.Result}
	if inbound.Error != nil {
		reply.err = inbound.Error
	}
	replies <- reply
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	c.doneOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		return ErrConnClosed
	}

	return c.err
}

func isNormalClose(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
