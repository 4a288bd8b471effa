package events

import "time"

const (
	// KindActivitySampled identifies one VAD loudness sample.
	KindActivitySampled Kind = "voice_activity.sampled"
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "voice_activity.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "voice_activity.speech_ended"
	// KindSilenceExceeded identifies a completed utterance.
	KindSilenceExceeded Kind = "voice_activity.silence_exceeded"
)

// ActivitySampled carries the loudness estimate of one tick.
type ActivitySampled struct {
	Base
	Level            float64
	IsSpeaking       bool
	SilenceStartedAt time.Time
}

// NewActivitySampled creates an activity sampled event.
func NewActivitySampled(at time.Time, level float64, isSpeaking bool, silenceStartedAt time.Time) ActivitySampled {
	return ActivitySampled{
		Base:             NewBaseAt(KindActivitySampled, at),
		Level:            level,
		IsSpeaking:       isSpeaking,
		SilenceStartedAt: silenceStartedAt,
	}
}

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct {
	Base
	Level float64
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(at time.Time, level float64) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBaseAt(KindUserSpeechStarted, at), Level: level}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct {
	Base
	Level float64
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(at time.Time, level float64) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBaseAt(KindUserSpeechEnded, at), Level: level}
}

// SilenceExceeded marks the end of the utterance.
type SilenceExceeded struct {
	Base
	Silence time.Duration
	Chunks  int
}

// NewSilenceExceeded creates a silence exceeded event.
func NewSilenceExceeded(at time.Time, silence time.Duration, chunks int) SilenceExceeded {
	return SilenceExceeded{Base: NewBaseAt(KindSilenceExceeded, at), Silence: silence, Chunks: chunks}
}
