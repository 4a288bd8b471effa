package socket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultURL                  = "ws://localhost:5000/ws"
	DefaultMaxReconnectAttempts = 5
	defaultBackoffBase          = 500 * time.Millisecond
	defaultBackoffCap           = 5 * time.Second
	defaultHandshakeTimeout     = 10 * time.Second
	defaultWriteTimeout         = 10 * time.Second
	outboxSize                  = 16
)

type Option func(*Client)

// WithMaxReconnectAttempts bounds the retries after a failed dial. Once they
// are used up the client reports transport.Unavailable and stops.
func WithMaxReconnectAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts >= 0 {
			c.maxReconnects = attempts
		}
	}
}

// WithBackoff sets the first retry delay and the cap for exponential growth.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if max >= base {
			c.backoffCap = max
		}
	}
}

func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.dialer.HandshakeTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.writeTimeout = timeout
	}
}

func WithHeader(header http.Header) Option {
	return func(c *Client) {
		c.header = header.Clone()
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}
