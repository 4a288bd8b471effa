// Package socket is a websocket client for the assistant's realtime endpoint.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/koscakluka/ema-voice/core/transport"
)

var errOutboxFull = errors.New("outbound queue full")

type frame struct {
	payload []byte
	done    func(error)
}

func (f frame) finish(err error) {
	if f.done != nil {
		f.done(err)
	}
}

// Client keeps one long-lived connection to the assistant and reconnects
// when it drops, up to the configured number of attempts.
type Client struct {
	url           string
	header        http.Header
	dialer        *websocket.Dialer
	maxReconnects int
	backoffBase   time.Duration
	backoffCap    time.Duration
	writeTimeout  time.Duration

	mu      sync.Mutex
	handler transport.Handler
	outbox  chan frame
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connected atomic.Bool
}

var _ transport.Client = (*Client)(nil)

func NewClient(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = defaultHandshakeTimeout

	c := &Client{
		url:           url,
		dialer:        &dialer,
		maxReconnects: DefaultMaxReconnectAttempts,
		backoffBase:   defaultBackoffBase,
		backoffCap:    defaultBackoffCap,
		writeTimeout:  defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts connection management in the background. Calling it while
// the client is already running only replaces the handler. After the client
// has given up, Connect starts a fresh round of attempts.
func (c *Client) Connect(ctx context.Context, handler transport.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}
	c.handler = handler
	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) Send(msg transport.Message, done func(error)) error {
	payload, err := encodeAudioMessage(msg)
	if err != nil {
		return err
	}
	return c.enqueue(frame{payload: payload, done: done})
}

func (c *Client) RequestHistory() error {
	payload, err := encode(EventGetChatHistory, nil)
	if err != nil {
		return err
	}
	return c.enqueue(frame{payload: payload})
}

// Close stops reconnection, closes the connection and waits for the
// background goroutines to exit. Queued writes complete with an error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) enqueue(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return transport.ErrClosed
	}
	if c.outbox == nil {
		return transport.ErrNotConnected
	}

	select {
	case c.outbox <- f:
		return nil
	default:
		return errOutboxFull
	}
}

func (c *Client) currentHandler() transport.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("giving up on assistant connection", "url", c.url, "attempts", c.maxReconnects+1, "error", err)
				c.currentHandler().Connectivity(transport.Unavailable, err)
			}
			return
		}

		err = c.serve(ctx, conn)
		c.currentHandler().Connectivity(transport.Disconnected, err)
		if ctx.Err() != nil {
			return
		}
		logger.Info("assistant connection lost, reconnecting", "url", c.url, "error", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, span := tracer.Start(ctx, "dial")
	defer span.End()

	backoff := retry.WithMaxRetries(uint64(c.maxReconnects),
		retry.WithCappedDuration(c.backoffCap, retry.NewExponential(c.backoffBase)))

	var conn *websocket.Conn
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		dialed, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			dialAttemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", false)))
			logger.Debug("dial failed", "url", c.url, "attempt", attempt, "error", err)
			c.currentHandler().Connectivity(transport.ConnectError, err)
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}

		dialAttemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", true)))
		conn = dialed
		return nil
	})
	span.SetAttributes(attribute.Int("attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", c.url, attempt, err)
	}
	return conn, nil
}

// serve runs one connection until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	outbox := make(chan frame, outboxSize)
	c.mu.Lock()
	c.outbox = outbox
	c.mu.Unlock()
	c.connected.Store(true)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, outbox)
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	logger.Info("connected to assistant", "url", c.url)
	c.currentHandler().Connectivity(transport.Connected, nil)
	if err := c.RequestHistory(); err != nil {
		logger.Warn("failed to request chat history", "error", err)
	}

	err := c.readLoop(ctx, conn)

	c.connected.Store(false)
	c.mu.Lock()
	c.outbox = nil
	close(outbox)
	c.mu.Unlock()
	_ = conn.Close()
	<-writerDone

	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}

		event, err := dispatch(data, c.currentHandler())
		if err != nil {
			logger.Warn("dropping malformed message", "event", event, "error", err)
			continue
		}
		inboundCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}

// writeLoop owns all data writes on conn. After the first failure the
// remaining frames are failed without touching the connection.
func (c *Client) writeLoop(conn *websocket.Conn, outbox <-chan frame) {
	var broken error
	for f := range outbox {
		if broken != nil {
			f.finish(broken)
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, f.payload); err != nil {
			broken = fmt.Errorf("%w: %w", transport.ErrNotConnected, err)
			_ = conn.Close()
			f.finish(err)
			continue
		}
		f.finish(nil)
	}
}
