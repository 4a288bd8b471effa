package turntaking

import (
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/transport"
)

type TurnControllerOption func(*TurnController)

// WithAudioInput sets the microphone. Capture requires linear16 audio.
func WithAudioInput(input AudioInput) TurnControllerOption {
	return func(c *TurnController) { c.capture = NewAudioCaptureSession(input) }
}

func WithAudioOutput(output AudioOutput) TurnControllerOption {
	return func(c *TurnController) { c.playback = NewPlaybackController(output) }
}

// WithTransportClient sets the connection to the assistant. Without one every
// start fails with ErrTransportDisconnected.
func WithTransportClient(client transport.Client) TurnControllerOption {
	return func(c *TurnController) { c.channel = NewTransportChannel(client) }
}

// WithTransportChannel shares an existing channel, e.g. with a transcript
// view that subscribes to it as well.
func WithTransportChannel(channel *TransportChannel) TurnControllerOption {
	return func(c *TurnController) {
		if channel != nil {
			c.channel = channel
		}
	}
}

func WithSession(session *SessionContext) TurnControllerOption {
	return func(c *TurnController) {
		if session != nil {
			c.session = session
		}
	}
}

func WithClock(clock Clock) TurnControllerOption {
	return func(c *TurnController) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithEventCallback receives every event the controller emits, in order.
// Callbacks run on the event loop and must not block.
func WithEventCallback(callback func(events.Event)) TurnControllerOption {
	return func(c *TurnController) { c.callbacks.onEvent = callback }
}

func WithStateChangedCallback(callback func(from, to TurnState)) TurnControllerOption {
	return func(c *TurnController) { c.callbacks.onStateChanged = callback }
}

func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) TurnControllerOption {
	return func(c *TurnController) { c.callbacks.onSpeakingStateChanged = callback }
}

func WithReplyCallback(callback func(reply transport.Reply)) TurnControllerOption {
	return func(c *TurnController) { c.callbacks.onReply = callback }
}

func WithErrorCallback(callback func(err error)) TurnControllerOption {
	return func(c *TurnController) { c.callbacks.onError = callback }
}
