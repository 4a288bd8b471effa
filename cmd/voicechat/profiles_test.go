package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	turntaking "github.com/koscakluka/ema-voice/core"
)

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write profiles: %v", err)
	}
	return path
}

func TestDefaultProfilesDifferInServerAndConversationMode(t *testing.T) {
	profiles, err := loadProfiles("")
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}

	chatbot, voice := profiles[profileChatbot], profiles[profileVoice]
	if chatbot.URL == voice.URL {
		t.Fatalf("expected different servers, both use %q", chatbot.URL)
	}
	if chatbot.ConversationMode {
		t.Fatalf("expected chatbot profile without conversation mode")
	}
	if !voice.ConversationMode {
		t.Fatalf("expected voice profile with conversation mode")
	}
	for name, profile := range profiles {
		if err := profile.Validate(); err != nil {
			t.Fatalf("expected default profile %q to be valid, got %v", name, err)
		}
	}
}

func TestLoadProfilesKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  voice:
    url: ws://assistant.local/ws
    voice:
      grace_period: 1500ms
  kiosk:
    backend: portaudio
    language: hi-IN
    auto_detect: false
`)

	profiles, err := loadProfiles(path)
	if err != nil {
		t.Fatalf("expected profiles to load, got %v", err)
	}

	voice := profiles[profileVoice]
	if voice.URL != "ws://assistant.local/ws" {
		t.Fatalf("expected overridden url, got %q", voice.URL)
	}
	if !voice.ConversationMode {
		t.Fatalf("expected voice profile to keep conversation mode")
	}
	if voice.Voice.GracePeriod != 1500*time.Millisecond {
		t.Fatalf("expected grace period 1.5s, got %s", voice.Voice.GracePeriod)
	}
	if voice.Voice.SampleInterval != turntaking.DefaultConfig().SampleInterval {
		t.Fatalf("expected default sample interval, got %s", voice.Voice.SampleInterval)
	}

	kiosk, ok := profiles["kiosk"]
	if !ok {
		t.Fatalf("expected custom profile to be added")
	}
	if kiosk.Backend != backendPortaudio || kiosk.Language != "hi-IN" || kiosk.AutoDetect {
		t.Fatalf("expected kiosk overrides, got %+v", kiosk)
	}
	if err := kiosk.Validate(); err != nil {
		t.Fatalf("expected kiosk profile to be valid, got %v", err)
	}

	if _, ok := profiles[profileChatbot]; !ok {
		t.Fatalf("expected built-in chatbot profile to remain")
	}
}

func TestLoadProfilesRejectsMalformedFile(t *testing.T) {
	path := writeProfiles(t, "profiles: [not, a, map]")
	if _, err := loadProfiles(path); err == nil {
		t.Fatalf("expected malformed profiles to fail")
	}

	if _, err := loadProfiles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestProfileValidate(t *testing.T) {
	profile := defaultProfile()
	profile.URL = ""
	profile.Backend = "alsa"
	profile.Language = "fr-FR"
	profile.Voice.GracePeriod = 0

	if err := profile.Validate(); err == nil {
		t.Fatalf("expected invalid profile to fail validation")
	}
}

func TestProfileSessionOptions(t *testing.T) {
	profile := defaultProfile()
	profile.Language = "ta-IN"
	profile.AutoDetect = false
	profile.ConversationMode = true

	session, err := turntaking.NewSessionContext(profile.SessionOptions()...)
	if err != nil {
		t.Fatalf("expected session, got %v", err)
	}
	if got := session.OutboundLanguage(); got != "ta-IN" {
		t.Fatalf("expected ta-IN, got %q", got)
	}
	if !session.Snapshot().ConversationMode {
		t.Fatalf("expected conversation mode on")
	}
}
