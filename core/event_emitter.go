package turntaking

import (
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/transport"
)

type controllerCallbacks struct {
	onEvent                func(events.Event)
	onStateChanged         func(from, to TurnState)
	onSpeakingStateChanged func(isSpeaking bool)
	onReply                func(reply transport.Reply)
	onError                func(err error)
}

type eventEmitter func(events.Event)

func newCallbackEventEmitter(callbacks controllerCallbacks) eventEmitter {
	return func(event events.Event) {
		if callbacks.onEvent != nil {
			callbacks.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.UserSpeechStarted:
			if callbacks.onSpeakingStateChanged != nil {
				callbacks.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if callbacks.onSpeakingStateChanged != nil {
				callbacks.onSpeakingStateChanged(false)
			}
		case events.ReplyReceived:
			if callbacks.onReply != nil {
				callbacks.onReply(typedEvent.Reply)
			}
		case events.TurnFailed:
			if callbacks.onError != nil {
				callbacks.onError(typedEvent.Err)
			}
		}
	}
}
