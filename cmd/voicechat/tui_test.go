package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	turntaking "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/transport"
)

type stubControls struct {
	snapshot turntaking.StateSnapshot
	starts   int
	stops    int
	language string
}

func (s *stubControls) Start() { s.starts++ }
func (s *stubControls) Stop()  { s.stops++ }
func (s *stubControls) SetAutoDetect(autoDetect bool) {
	s.snapshot.Session.AutoDetect = autoDetect
}
func (s *stubControls) SetLanguage(tag string) error {
	s.language = tag
	s.snapshot.Session.SelectedLanguage = tag
	return nil
}
func (s *stubControls) SetConversationMode(enabled bool) {
	s.snapshot.Session.ConversationMode = enabled
}
func (s *stubControls) Snapshot() turntaking.StateSnapshot { return s.snapshot }

func newTestModel(controls *stubControls) model {
	return newModel("voice", defaultProfiles()[profileVoice], controls, make(chan tea.Msg))
}

func press(m model, key string) model {
	var msg tea.KeyMsg
	if key == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	} else {
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func TestSpaceTogglesListening(t *testing.T) {
	controls := &stubControls{}
	controls.snapshot.State = turntaking.TurnStateIdle

	m := press(newTestModel(controls), " ")
	if controls.starts != 1 {
		t.Fatalf("expected start from idle, got %d starts", controls.starts)
	}

	controls.snapshot.State = turntaking.TurnStateListening
	m.snapshot = controls.snapshot
	press(m, " ")
	if controls.stops != 1 {
		t.Fatalf("expected stop while listening, got %d stops", controls.stops)
	}
}

func TestKeysChangeSessionSettings(t *testing.T) {
	controls := &stubControls{}
	controls.snapshot.Session.SelectedLanguage = "en-IN"

	m := press(newTestModel(controls), "a")
	if !controls.snapshot.Session.AutoDetect {
		t.Fatalf("expected auto-detect toggled on")
	}
	m = press(m, "c")
	if !controls.snapshot.Session.ConversationMode {
		t.Fatalf("expected conversation mode toggled on")
	}
	press(m, "l")
	if controls.language != "hi-IN" {
		t.Fatalf("expected next language hi-IN, got %q", controls.language)
	}
}

func TestNextLanguageWraps(t *testing.T) {
	languages := turntaking.SupportedLanguages()
	if got := nextLanguage(languages[len(languages)-1]); got != languages[0] {
		t.Fatalf("expected wrap to %q, got %q", languages[0], got)
	}
}

func TestRepliesAndHistoryRenderInTranscript(t *testing.T) {
	m := newTestModel(&stubControls{})

	next, cmd := m.Update(events.NewHistoryReceived(time.Now(), []transport.HistoryMessage{
		{Text: "namaste", IsUser: true},
		{Text: "Hello! How can I help?"},
	}))
	m = next.(model)
	if cmd == nil {
		t.Fatalf("expected model to keep waiting for updates")
	}

	next, _ = m.Update(events.NewReplyReceived(time.Now(), transport.Reply{
		Text:         "It is sunny today.",
		OriginalText: "how is the weather",
		Audio:        []byte{1},
	}, false))
	m = next.(model)

	if len(m.transcript) != 4 {
		t.Fatalf("expected 4 transcript lines, got %d", len(m.transcript))
	}
	if !m.transcript[2].user || m.transcript[2].text != "how is the weather" {
		t.Fatalf("expected user line from the reply, got %+v", m.transcript[2])
	}
	if m.notice == "" {
		t.Fatalf("expected notice about the unplayed reply")
	}

	view := m.View()
	if !strings.Contains(view, "It is sunny today.") {
		t.Fatalf("expected reply in view, got %q", view)
	}
}

func TestTranscriptIsBounded(t *testing.T) {
	m := newTestModel(&stubControls{})
	for i := range maxTranscriptLines + 10 {
		m.addLine(i%2 == 0, "line", time.Time{})
	}
	if len(m.transcript) != maxTranscriptLines {
		t.Fatalf("expected %d lines, got %d", maxTranscriptLines, len(m.transcript))
	}
}

func TestEventForwarderFiltersEvents(t *testing.T) {
	var forwarded []tea.Msg
	forward := eventForwarder(func(msg tea.Msg) { forwarded = append(forwarded, msg) })

	forward(events.NewActivitySampled(time.Now(), 12, false, time.Time{}))
	forward(events.NewServerStatus(time.Now(), "processing"))

	if len(forwarded) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(forwarded))
	}
	if _, ok := forwarded[0].(events.ServerStatus); !ok {
		t.Fatalf("expected server status, got %T", forwarded[0])
	}
}
