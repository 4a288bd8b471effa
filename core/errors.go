package turntaking

import "errors"

var (
	// ErrDeviceUnavailable is returned when the microphone cannot be acquired,
	// because permission was denied or no device exists.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrTransportDisconnected is reported when a turn needs the assistant
	// connection and it is down.
	ErrTransportDisconnected = errors.New("transport disconnected")
	// ErrTransportSendFailed is reported when an utterance could not be
	// delivered. The utterance is discarded, never replayed.
	ErrTransportSendFailed = errors.New("transport send failed")
	// ErrPlaybackFailed is reported when reply audio could not be played.
	ErrPlaybackFailed = errors.New("playback failed")
)

// ErrAssistantFailed is reported when the assistant answers an utterance
// with an error instead of a reply.
var ErrAssistantFailed = errors.New("assistant failed to answer")

var ErrControllerClosed = errors.New("turn controller closed")
