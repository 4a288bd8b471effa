package socket

import "github.com/invopop/jsonschema"

// Schemas describes the data payload of every wire event, keyed by event
// name. get_chat_history carries no data and is left out.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	return map[string]*jsonschema.Schema{
		"envelope":            reflector.Reflect(&Envelope{}),
		EventAudioMessage:     reflector.Reflect(&AudioMessage{}),
		EventResponse:         reflector.Reflect(&Response{}),
		EventDetectedLanguage: reflector.Reflect(&DetectedLanguage{}),
		EventStatus:           reflector.Reflect(&Status{}),
		EventError:            reflector.Reflect(&ErrorMessage{}),
		EventChatHistory:      reflector.Reflect(&[]HistoryEntry{}),
	}
}
