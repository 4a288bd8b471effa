package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	turntaking "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/events"
)

// controls is the part of the turn controller the UI drives.
type controls interface {
	Start()
	Stop()
	SetAutoDetect(autoDetect bool)
	SetLanguage(tag string) error
	SetConversationMode(enabled bool)
	Snapshot() turntaking.StateSnapshot
}

type transcriptLine struct {
	user bool
	text string
	at   time.Time
}

const maxTranscriptLines = 200

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AB8FF")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

type model struct {
	profileName string
	controller  controls
	updates     <-chan tea.Msg

	snapshot   turntaking.StateSnapshot
	transcript []transcriptLine
	status     string
	notice     string
	spinner    spinner.Model
	width      int
}

func newModel(profileName string, profile Profile, controller controls, updates <-chan tea.Msg) model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = dimStyle

	return model{
		profileName: profileName,
		controller:  controller,
		updates:     updates,
		snapshot:    controller.Snapshot(),
		status:      "connecting to " + profile.URL,
		spinner:     s,
		width:       80,
	}
}

// eventForwarder turns controller events into UI messages. Only the events
// the UI renders are forwarded.
func eventForwarder(notify func(tea.Msg)) func(events.Event) {
	return func(event events.Event) {
		switch event.(type) {
		case events.ReplyReceived, events.HistoryReceived, events.TurnStateChanged,
			events.TurnFailed, events.LanguageDetected, events.ServerStatus,
			events.ServerError, events.UtteranceSent:
			notify(event)
		}
	}
}

func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.snapshot = m.controller.Snapshot()
		return m, cmd

	case events.ReplyReceived:
		if msg.Reply.OriginalText != "" {
			m.addLine(true, msg.Reply.OriginalText, msg.Reply.Timestamp)
		}
		m.addLine(false, msg.Reply.Text, msg.Reply.Timestamp)
		if !msg.Played && msg.Reply.HasAudio() {
			m.notice = "reply arrived outside a turn and was not played"
		}

	case events.HistoryReceived:
		m.transcript = m.transcript[:0]
		for _, entry := range msg.History {
			text := entry.Text
			if entry.IsUser && entry.OriginalText != "" {
				text = entry.OriginalText
			}
			m.addLine(entry.IsUser, text, entry.Timestamp)
		}

	case events.UtteranceSent:
		m.status = fmt.Sprintf("sent %.1fs of speech", msg.Duration.Seconds())

	case events.TurnStateChanged:
		m.snapshot = m.controller.Snapshot()

	case events.TurnFailed:
		m.notice = msg.Err.Error()

	case events.LanguageDetected:
		m.status = "detected language " + msg.Language

	case events.ServerStatus:
		m.status = msg.Status

	case events.ServerError:
		m.notice = "assistant: " + msg.Message
	}

	if _, ok := msg.(events.Event); ok {
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.controller.Stop()
		return m, tea.Quit

	case " ", "enter":
		if m.snapshot.State == turntaking.TurnStateIdle ||
			m.snapshot.State == turntaking.TurnStateError ||
			(m.snapshot.State == turntaking.TurnStateDisconnected && !m.snapshot.ConversationActive) {
			m.controller.Start()
		} else {
			m.controller.Stop()
		}

	case "a":
		m.controller.SetAutoDetect(!m.snapshot.Session.AutoDetect)

	case "c":
		m.controller.SetConversationMode(!m.snapshot.Session.ConversationMode)

	case "l":
		if err := m.controller.SetLanguage(nextLanguage(m.snapshot.Session.SelectedLanguage)); err != nil {
			m.notice = err.Error()
		}
	}

	m.snapshot = m.controller.Snapshot()
	return m, nil
}

func nextLanguage(current string) string {
	languages := turntaking.SupportedLanguages()
	i := slices.Index(languages, current)
	return languages[(i+1)%len(languages)]
}

func (m *model) addLine(user bool, text string, at time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.transcript = append(m.transcript, transcriptLine{user: user, text: text, at: at})
	if len(m.transcript) > maxTranscriptLines {
		m.transcript = m.transcript[len(m.transcript)-maxTranscriptLines:]
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.transcriptView())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("space start/stop · a auto-detect · c conversation · l language · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) headerView() string {
	title := titleStyle.Render("voicechat · " + m.profileName)
	line := strings.Repeat("─", max(0, m.width-lipgloss.Width(title)))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, line)
}

func (m model) transcriptView() string {
	if len(m.transcript) == 0 {
		return dimStyle.Render("No messages yet. Press space and start speaking.") + "\n"
	}

	width := max(20, m.width-2)
	var b strings.Builder
	for _, line := range m.transcript {
		speaker := assistantStyle.Render("Assistant")
		if line.user {
			speaker = userStyle.Render("You")
		}
		b.WriteString(speaker)
		if !line.at.IsZero() {
			b.WriteString(dimStyle.Render(" " + line.at.Local().Format("15:04")))
		}
		b.WriteString("\n")
		b.WriteString(wordwrap.String(line.text, width))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m model) statusView() string {
	snapshot := m.snapshot
	session := snapshot.Session

	language := session.SelectedLanguage
	if session.AutoDetect {
		language = "auto"
		if session.DetectedLanguage != "" {
			language += " (" + session.DetectedLanguage + ")"
		}
	}
	conversation := "off"
	if session.ConversationMode {
		conversation = "on"
	}

	state := snapshot.State.String()
	if snapshot.State == turntaking.TurnStateListening {
		if snapshot.Activity.IsSpeaking {
			state += " · speaking"
		} else if snapshot.SilenceTiming {
			state += fmt.Sprintf(" · silence %.1fs", snapshot.SilenceElapsed.Seconds())
		}
	}
	if snapshot.State == turntaking.TurnStateListening || snapshot.State.Busy() {
		state = m.spinner.View() + " " + state
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  language %s  conversation %s", state, language, conversation)
	if snapshot.TransportUnavailable {
		b.WriteString(errorStyle.Render("  server unavailable, press space to retry"))
	} else if !snapshot.Connected {
		b.WriteString(dimStyle.Render("  offline"))
	}
	if m.status != "" {
		b.WriteString("\n" + dimStyle.Render(m.status))
	}
	if m.notice != "" {
		b.WriteString("\n" + errorStyle.Render(m.notice))
	} else if snapshot.LastError != nil {
		b.WriteString("\n" + errorStyle.Render(snapshot.LastError.Error()))
	}
	return b.String()
}
