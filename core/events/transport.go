package events

import (
	"time"

	"github.com/koscakluka/ema-voice/core/transport"
)

const (
	// KindTransportConnectivityChanged identifies connectivity updates.
	KindTransportConnectivityChanged Kind = "transport.connectivity_changed"
	// KindUtteranceSent identifies an utterance handed to the transport.
	KindUtteranceSent Kind = "transport.utterance_sent"
	// KindReplyReceived identifies an assistant reply.
	KindReplyReceived Kind = "transport.reply_received"
	// KindLanguageDetected identifies a language detection report.
	KindLanguageDetected Kind = "transport.language_detected"
	// KindServerStatus identifies a status frame.
	KindServerStatus Kind = "transport.server_status"
	// KindServerError identifies an error reported by the assistant.
	KindServerError Kind = "transport.server_error"
	// KindHistoryReceived identifies a chat history snapshot.
	KindHistoryReceived Kind = "transport.history_received"
)

// TransportConnectivityChanged carries the new connectivity.
type TransportConnectivityChanged struct {
	Base
	Connectivity transport.Connectivity
	Err          error
}

// NewTransportConnectivityChanged creates a connectivity changed event.
func NewTransportConnectivityChanged(at time.Time, connectivity transport.Connectivity, err error) TransportConnectivityChanged {
	return TransportConnectivityChanged{
		Base:         NewBaseAt(KindTransportConnectivityChanged, at),
		Connectivity: connectivity,
		Err:          err,
	}
}

// UtteranceSent carries the size of the sent utterance.
type UtteranceSent struct {
	Base
	Bytes    int
	Duration time.Duration
}

// NewUtteranceSent creates an utterance sent event.
func NewUtteranceSent(at time.Time, bytes int, duration time.Duration) UtteranceSent {
	return UtteranceSent{Base: NewBaseAt(KindUtteranceSent, at), Bytes: bytes, Duration: duration}
}

// ReplyReceived carries an assistant reply.
type ReplyReceived struct {
	Base
	Reply transport.Reply
	// Played reports whether the reply is handed to playback.
	Played bool
}

// NewReplyReceived creates a reply received event.
func NewReplyReceived(at time.Time, reply transport.Reply, played bool) ReplyReceived {
	return ReplyReceived{Base: NewBaseAt(KindReplyReceived, at), Reply: reply, Played: played}
}

// LanguageDetected carries the language the assistant detected.
type LanguageDetected struct {
	Base
	Language string
}

// NewLanguageDetected creates a language detected event.
func NewLanguageDetected(at time.Time, language string) LanguageDetected {
	return LanguageDetected{Base: NewBaseAt(KindLanguageDetected, at), Language: language}
}

// ServerStatus carries an informational status.
type ServerStatus struct {
	Base
	Status string
}

// NewServerStatus creates a server status event.
func NewServerStatus(at time.Time, status string) ServerStatus {
	return ServerStatus{Base: NewBaseAt(KindServerStatus, at), Status: status}
}

// ServerError carries an error reported by the assistant.
type ServerError struct {
	Base
	Message string
}

// NewServerError creates a server error event.
func NewServerError(at time.Time, message string) ServerError {
	return ServerError{Base: NewBaseAt(KindServerError, at), Message: message}
}

// HistoryReceived carries a chat history snapshot.
type HistoryReceived struct {
	Base
	History []transport.HistoryMessage
}

// NewHistoryReceived creates a history received event.
func NewHistoryReceived(at time.Time, history []transport.HistoryMessage) HistoryReceived {
	return HistoryReceived{Base: NewBaseAt(KindHistoryReceived, at), History: history}
}
