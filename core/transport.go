package turntaking

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-voice/core/transport"
)

// TransportChannel is the session's connection to the assistant. It fans
// incoming events out to every subscriber, so the turn controller and a
// transcript display can both listen to the same connection.
type TransportChannel struct {
	client transport.Client

	mu           sync.RWMutex
	subscribers  map[int]transport.Handler
	nextID       int
	connectivity transport.Connectivity
}

func NewTransportChannel(client transport.Client) *TransportChannel {
	return &TransportChannel{
		client:       client,
		subscribers:  map[int]transport.Handler{},
		connectivity: transport.Disconnected,
	}
}

// Subscribe registers a handler and returns a function that removes it.
func (c *TransportChannel) Subscribe(handler transport.Handler) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// Connect starts the underlying client.
func (c *TransportChannel) Connect(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("%w: no transport configured", ErrTransportDisconnected)
	}

	return c.client.Connect(ctx, c.fanOut())
}

func (c *TransportChannel) Connected() bool {
	return c != nil && c.client != nil && c.client.Connected()
}

// Connectivity is the last state reported on the side channel.
func (c *TransportChannel) Connectivity() transport.Connectivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectivity
}

// Send hands the utterance to the client. It does not wait for the write;
// done reports the outcome later. At most one utterance is in flight per
// session, which the turn controller guarantees.
func (c *TransportChannel) Send(utterance *Utterance, session Session, done func(error)) error {
	if !c.Connected() {
		return ErrTransportDisconnected
	}
	if utterance.IsEmpty() {
		return fmt.Errorf("%w: empty utterance", ErrTransportSendFailed)
	}

	msg := transport.Message{
		Audio:      utterance.WAV(),
		Language:   session.LanguageMode(),
		AutoDetect: session.AutoDetect,
		SessionID:  session.ID,
	}
	if err := c.client.Send(msg, done); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportSendFailed, err)
	}
	return nil
}

func (c *TransportChannel) RequestHistory() error {
	if !c.Connected() {
		return ErrTransportDisconnected
	}
	return c.client.RequestHistory()
}

func (c *TransportChannel) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *TransportChannel) handlers() []transport.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handlers := make([]transport.Handler, 0, len(c.subscribers))
	for _, handler := range c.subscribers {
		handlers = append(handlers, handler)
	}
	return handlers
}

func (c *TransportChannel) fanOut() transport.Handler {
	return transport.Handler{
		OnConnectivity: func(connectivity transport.Connectivity, err error) {
			c.mu.Lock()
			c.connectivity = connectivity
			c.mu.Unlock()
			for _, h := range c.handlers() {
				h.Connectivity(connectivity, err)
			}
		},
		OnReply: func(reply transport.Reply) {
			for _, h := range c.handlers() {
				h.Reply(reply)
			}
		},
		OnDetectedLanguage: func(language string) {
			for _, h := range c.handlers() {
				h.DetectedLanguage(language)
			}
		},
		OnStatus: func(status string) {
			for _, h := range c.handlers() {
				h.Status(status)
			}
		},
		OnServerError: func(message string) {
			for _, h := range c.handlers() {
				h.ServerError(message)
			}
		},
		OnHistory: func(history []transport.HistoryMessage) {
			for _, h := range c.handlers() {
				h.History(history)
			}
		},
	}
}
