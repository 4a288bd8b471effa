package turntaking

import "time"

// TurnState is the single state the UI renders: listening, thinking or
// speaking, plus the failure states.
type TurnState int

const (
	TurnStateIdle TurnState = iota
	TurnStateListening
	TurnStateSending
	TurnStateAwaitingReply
	TurnStateSpeaking
	TurnStateDisconnected
	TurnStateError
)

func (s TurnState) String() string {
	switch s {
	case TurnStateIdle:
		return "idle"
	case TurnStateListening:
		return "listening"
	case TurnStateSending:
		return "sending"
	case TurnStateAwaitingReply:
		return "awaiting_reply"
	case TurnStateSpeaking:
		return "speaking"
	case TurnStateDisconnected:
		return "disconnected"
	case TurnStateError:
		return "error"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is in progress past the listening phase.
func (s TurnState) Busy() bool {
	return s == TurnStateSending || s == TurnStateAwaitingReply || s == TurnStateSpeaking
}

// StateSnapshot is a consistent view of the controller for rendering.
type StateSnapshot struct {
	State TurnState
	// SilenceTiming is set while Listening once the current silence span has
	// started, i.e. the grace period countdown is running.
	SilenceTiming  bool
	SilenceElapsed time.Duration
	Activity       ActivityState

	CaptureActive  bool
	PlaybackActive bool

	ConversationActive   bool
	Connected            bool
	TransportUnavailable bool
	LastError            error
	Session              Session
}
