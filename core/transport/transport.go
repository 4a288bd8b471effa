// Package transport defines the wire contract between the voice client and
// the remote assistant, independent of the concrete connection.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)

// Connectivity is the coarse connection state reported on the side channel.
type Connectivity string

const (
	Connected    Connectivity = "connected"
	Disconnected Connectivity = "disconnected"
	ConnectError Connectivity = "connect_error"
	// Unavailable is reported once reconnection attempts are exhausted. No
	// further attempts are made until Connect is called again.
	Unavailable Connectivity = "unavailable"
)

// IsUp reports whether the connection can carry utterances.
func (c Connectivity) IsUp() bool { return c == Connected }

// Message is one utterance ready for the wire.
type Message struct {
	// Audio is the complete WAV payload; clients encode it for the wire.
	Audio      []byte
	Language   string
	AutoDetect bool
	SessionID  string
}

// Reply is an assistant response with its audio already decoded.
type Reply struct {
	Text         string
	Audio        []byte
	Language     string
	Timestamp    time.Time
	OriginalText string
	EnglishText  string
	// EnglishResponse is the assistant's answer in English when it replied
	// in another language.
	EnglishResponse string
}

// HasAudio reports whether the reply carries playable audio.
func (r Reply) HasAudio() bool { return len(r.Audio) > 0 }

// HistoryMessage is one entry of the chat history snapshot.
type HistoryMessage struct {
	Text         string
	IsUser       bool
	Timestamp    time.Time
	Language     string
	OriginalText string
	EnglishText  string
}

// Handler receives incoming events. Any field may be nil. Callbacks are called
// from the client's read goroutine and must not block.
type Handler struct {
	OnConnectivity     func(connectivity Connectivity, err error)
	OnReply            func(reply Reply)
	OnDetectedLanguage func(language string)
	OnStatus           func(status string)
	OnServerError      func(message string)
	OnHistory          func(history []HistoryMessage)
}

func (h Handler) Connectivity(connectivity Connectivity, err error) {
	if h.OnConnectivity != nil {
		h.OnConnectivity(connectivity, err)
	}
}

func (h Handler) Reply(reply Reply) {
	if h.OnReply != nil {
		h.OnReply(reply)
	}
}

func (h Handler) DetectedLanguage(language string) {
	if h.OnDetectedLanguage != nil {
		h.OnDetectedLanguage(language)
	}
}

func (h Handler) Status(status string) {
	if h.OnStatus != nil {
		h.OnStatus(status)
	}
}

func (h Handler) ServerError(message string) {
	if h.OnServerError != nil {
		h.OnServerError(message)
	}
}

func (h Handler) History(history []HistoryMessage) {
	if h.OnHistory != nil {
		h.OnHistory(history)
	}
}

// Client is a long-lived connection to the assistant.
type Client interface {
	// Connect starts connection management in the background and returns
	// immediately. Connectivity changes are reported to the handler.
	Connect(ctx context.Context, handler Handler) error
	// Send queues the message and returns without waiting for the write.
	// When Send returns nil, done is called exactly once with the write
	// result; when it returns an error, done is never called.
	Send(msg Message, done func(error)) error
	RequestHistory() error
	Connected() bool
	Close() error
}
