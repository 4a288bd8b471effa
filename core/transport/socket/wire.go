package socket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-voice/core/transport"
)

const (
	EventAudioMessage     = "audio_message"
	EventGetChatHistory   = "get_chat_history"
	EventResponse         = "response"
	EventDetectedLanguage = "detected_language"
	EventStatus           = "status"
	EventError            = "error"
	EventChatHistory      = "chat_history"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Event string          `json:"event" jsonschema:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AudioMessage struct {
	Audio      string `json:"audio" jsonschema:"required,description=Base64 encoded WAV utterance"`
	Language   string `json:"language" jsonschema:"required,description=Language tag or auto"`
	AutoDetect bool   `json:"auto_detect"`
	SessionID  string `json:"sessionId" jsonschema:"required"`
}

type Response struct {
	Text            string `json:"text" jsonschema:"required"`
	Audio           string `json:"audio,omitempty" jsonschema:"description=Base64 encoded WAV reply"`
	Language        string `json:"language,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	OriginalText    string `json:"original_text,omitempty"`
	EnglishText     string `json:"english_text,omitempty"`
	EnglishResponse string `json:"english_response,omitempty"`
}

type DetectedLanguage struct {
	Language string `json:"language" jsonschema:"required"`
}

type Status struct {
	Status string `json:"status" jsonschema:"required"`
}

type ErrorMessage struct {
	Message string `json:"message" jsonschema:"required"`
}

type HistoryEntry struct {
	Text         string `json:"text" jsonschema:"required"`
	IsUser       bool   `json:"isUser"`
	Timestamp    string `json:"timestamp,omitempty"`
	Language     string `json:"language,omitempty"`
	OriginalText string `json:"original_text,omitempty"`
	EnglishText  string `json:"english_text,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func encode(event string, data any) ([]byte, error) {
	envelope := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", event, err)
		}
		envelope.Data = raw
	}
	return json.Marshal(envelope)
}

func encodeAudioMessage(msg transport.Message) ([]byte, error) {
	return encode(EventAudioMessage, AudioMessage{
		Audio:      base64.StdEncoding.EncodeToString(msg.Audio),
		Language:   msg.Language,
		AutoDetect: msg.AutoDetect,
		SessionID:  msg.SessionID,
	})
}

// dispatch decodes one inbound frame and calls the matching handler.
// Unknown events are ignored.
func dispatch(frame []byte, handler transport.Handler) (string, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch envelope.Event {
	case EventResponse:
		var payload Response
		if err := unmarshalData(envelope, &payload); err != nil {
			return envelope.Event, err
		}
		handler.Reply(payload.reply())

	case EventDetectedLanguage:
		var payload DetectedLanguage
		if err := unmarshalData(envelope, &payload); err != nil {
			return envelope.Event, err
		}
		handler.DetectedLanguage(payload.Language)

	case EventStatus:
		var payload Status
		if err := unmarshalData(envelope, &payload); err != nil {
			return envelope.Event, err
		}
		handler.Status(payload.Status)

	case EventError:
		var payload ErrorMessage
		if err := unmarshalData(envelope, &payload); err != nil {
			return envelope.Event, err
		}
		handler.ServerError(payload.Message)

	case EventChatHistory:
		var payload []HistoryEntry
		if err := unmarshalData(envelope, &payload); err != nil {
			return envelope.Event, err
		}
		history := make([]transport.HistoryMessage, 0, len(payload))
		for _, entry := range payload {
			history = append(history, transport.HistoryMessage{
				Text:         entry.Text,
				IsUser:       entry.IsUser,
				Timestamp:    parseTimestamp(entry.Timestamp),
				Language:     entry.Language,
				OriginalText: entry.OriginalText,
				EnglishText:  entry.EnglishText,
			})
		}
		handler.History(history)
	}

	return envelope.Event, nil
}

func unmarshalData(envelope Envelope, target any) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("%s: missing data", envelope.Event)
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("%s: %w", envelope.Event, err)
	}
	return nil
}

func (r Response) reply() transport.Reply {
	reply := transport.Reply{
		Text:            r.Text,
		Language:        r.Language,
		Timestamp:       parseTimestamp(r.Timestamp),
		OriginalText:    r.OriginalText,
		EnglishText:     r.EnglishText,
		EnglishResponse: r.EnglishResponse,
	}
	if r.Audio == "" {
		return reply
	}

	decoded, err := decodeAudio(r.Audio)
	if err != nil {
		logger.Warn("reply audio is not valid base64, treating reply as text only", "error", err)
		return reply
	}
	reply.Audio = decoded
	return reply
}

// decodeAudio accepts plain base64 and data URLs.
func decodeAudio(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if _, data, ok := strings.Cut(payload, ","); ok {
			payload = data
		}
	}
	return base64.StdEncoding.DecodeString(payload)
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
