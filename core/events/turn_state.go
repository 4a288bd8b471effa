package events

import "time"

const (
	// KindTurnStateChanged identifies a controller state transition.
	KindTurnStateChanged Kind = "turn_state.changed"
	// KindTurnFailed identifies a failure surfaced to the user.
	KindTurnFailed Kind = "turn_state.failed"
)

// TurnStateChanged carries a state transition. States are carried by name so
// receivers do not need to import the controller package.
type TurnStateChanged struct {
	Base
	From string
	To   string
}

// NewTurnStateChanged creates a turn state changed event.
func NewTurnStateChanged(at time.Time, from, to string) TurnStateChanged {
	return TurnStateChanged{Base: NewBaseAt(KindTurnStateChanged, at), From: from, To: to}
}

// TurnFailed carries the failure that ended the current turn.
type TurnFailed struct {
	Base
	Err error
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(at time.Time, err error) TurnFailed {
	return TurnFailed{Base: NewBaseAt(KindTurnFailed, at), Err: err}
}
