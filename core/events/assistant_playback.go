package events

import "time"

const (
	// KindAssistantPlaybackStarted identifies playback start for the current reply.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct {
	Base
	Duration time.Duration
}

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted(at time.Time, duration time.Duration) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBaseAt(KindAssistantPlaybackStarted, at), Duration: duration}
}

// AssistantPlaybackEnded marks the end of assistant playback.
type AssistantPlaybackEnded struct {
	Base
	// Interrupted is set when playback was stopped before the end mark played.
	Interrupted bool
	Err         error
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(at time.Time, interrupted bool, err error) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBaseAt(KindAssistantPlaybackEnded, at), Interrupted: interrupted, Err: err}
}
