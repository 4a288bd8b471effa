package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	turntaking "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/transport/socket"
)

const (
	profileChatbot = "chatbot"
	profileVoice   = "voice"

	backendMiniaudio = "miniaudio"
	backendPortaudio = "portaudio"
)

// Profile is one way of talking to the assistant. The chatbot and voice
// profiles differ in server and in whether turns chain hands-free.
type Profile struct {
	URL              string            `yaml:"url"`
	Backend          string            `yaml:"backend"`
	Language         string            `yaml:"language"`
	AutoDetect       bool              `yaml:"auto_detect"`
	ConversationMode bool              `yaml:"conversation_mode"`
	MaxReconnects    int               `yaml:"max_reconnects"`
	Voice            turntaking.Config `yaml:"voice"`
}

func defaultProfile() Profile {
	return Profile{
		URL:           socket.DefaultURL,
		Backend:       backendMiniaudio,
		Language:      turntaking.DefaultLanguage,
		AutoDetect:    true,
		MaxReconnects: socket.DefaultMaxReconnectAttempts,
		Voice:         turntaking.DefaultConfig(),
	}
}

func defaultProfiles() map[string]Profile {
	chatbot := defaultProfile()

	voice := defaultProfile()
	voice.URL = "ws://localhost:8000/ws"
	voice.ConversationMode = true

	return map[string]Profile{
		profileChatbot: chatbot,
		profileVoice:   voice,
	}
}

// loadProfiles layers the profiles in path over the built-in ones. Fields a
// profile leaves out keep their defaults.
func loadProfiles(path string) (map[string]Profile, error) {
	profiles := defaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	var file struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}

	for name, node := range file.Profiles {
		profile, ok := profiles[name]
		if !ok {
			profile = defaultProfile()
		}
		if err := node.Decode(&profile); err != nil {
			return nil, fmt.Errorf("failed to parse profile %q: %w", name, err)
		}
		profiles[name] = profile
	}
	return profiles, nil
}

func (p Profile) Validate() error {
	var errs error
	if p.URL == "" {
		errs = errors.Join(errs, errors.New("url is required"))
	}
	if p.Backend != backendMiniaudio && p.Backend != backendPortaudio {
		errs = errors.Join(errs, fmt.Errorf("unknown audio backend %q", p.Backend))
	}
	if !slices.Contains(turntaking.SupportedLanguages(), p.Language) {
		errs = errors.Join(errs, fmt.Errorf("unsupported language %q", p.Language))
	}
	if p.MaxReconnects < 0 {
		errs = errors.Join(errs, errors.New("max_reconnects must not be negative"))
	}
	if err := p.Voice.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("invalid profile: %w", errs)
	}
	return nil
}

func (p Profile) SessionOptions() []turntaking.SessionOption {
	return []turntaking.SessionOption{
		turntaking.WithLanguage(p.Language),
		turntaking.WithAutoDetect(p.AutoDetect),
		turntaking.WithConversationMode(p.ConversationMode),
		turntaking.WithConfig(p.Voice),
	}
}
