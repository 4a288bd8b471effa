package turntaking

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// LanguageAuto asks the assistant to detect the spoken language.
const LanguageAuto = "auto"

// DefaultLanguage is the explicit language used when auto-detect is off and
// nothing else was selected.
const DefaultLanguage = "en-IN"

var supportedLanguages = []string{
	"en-IN", "hi-IN", "kn-IN", "te-IN", "ta-IN", "ml-IN", "mr-IN", "bn-IN", "gu-IN",
}

// SupportedLanguages lists the language tags the assistant accepts.
func SupportedLanguages() []string { return slices.Clone(supportedLanguages) }

var ErrInvalidConfig = errors.New("invalid voice config")

// Config holds the tunable timings and thresholds of the turn-taking engine.
type Config struct {
	// EnergyThreshold is the level on the 0-255 scale above which a sample
	// counts as speech.
	EnergyThreshold float64 `yaml:"energy_threshold"`
	// GracePeriod is the continuous silence that ends an utterance.
	GracePeriod time.Duration `yaml:"grace_period"`
	// SampleInterval is the VAD tick.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// ChunkInterval is how often pending audio is flushed into the utterance.
	ChunkInterval time.Duration `yaml:"chunk_interval"`
	// RearmDelay separates the end of playback from the next capture so the
	// tail of the speaker output is not recorded.
	RearmDelay time.Duration `yaml:"rearm_delay"`
	// MaxUtteranceDuration ends an utterance after this long even without a
	// pause. Zero disables the cut-off.
	MaxUtteranceDuration time.Duration `yaml:"max_utterance_duration"`
}

func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 15,
		GracePeriod:     3000 * time.Millisecond,
		SampleInterval:  200 * time.Millisecond,
		ChunkInterval:   100 * time.Millisecond,
		RearmDelay:      500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	var errs error
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 255 {
		errs = errors.Join(errs, fmt.Errorf("energy threshold %v outside 0-255", c.EnergyThreshold))
	}
	if c.GracePeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("grace period must be positive, got %v", c.GracePeriod))
	}
	if c.SampleInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("sample interval must be positive, got %v", c.SampleInterval))
	}
	if c.ChunkInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("chunk interval must be positive, got %v", c.ChunkInterval))
	}
	if c.RearmDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("rearm delay must not be negative, got %v", c.RearmDelay))
	}
	if c.MaxUtteranceDuration < 0 {
		errs = errors.Join(errs, fmt.Errorf("max utterance duration must not be negative, got %v", c.MaxUtteranceDuration))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Session is the per-conversation state shared read-only with the engine.
type Session struct {
	ID               string
	SelectedLanguage string
	AutoDetect       bool
	// ConversationMode is the user's preference for hands-free turns.
	ConversationMode bool
	// ConversationActive enables automatic re-arm after a reply. It follows
	// ConversationMode on start and is forced off by an explicit stop.
	ConversationActive bool
	DetectedLanguage   string
	StartedAt          time.Time
	Ended              bool
	Config             Config
}

// LanguageMode returns LanguageAuto or the explicit language tag.
func (s Session) LanguageMode() string {
	if s.AutoDetect {
		return LanguageAuto
	}
	return s.SelectedLanguage
}

// SessionContext owns the Session. It is the only writer; everyone else reads
// snapshots.
type SessionContext struct {
	mu      sync.RWMutex
	session Session
}

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.ID = id }
}

func WithLanguage(tag string) SessionOption {
	return func(s *Session) { s.SelectedLanguage = tag }
}

func WithAutoDetect(autoDetect bool) SessionOption {
	return func(s *Session) { s.AutoDetect = autoDetect }
}

func WithConversationMode(enabled bool) SessionOption {
	return func(s *Session) { s.ConversationMode = enabled }
}

func WithConfig(config Config) SessionOption {
	return func(s *Session) { s.Config = config }
}

// NewSessionContext creates a session with a fresh ID. Auto-detect and
// conversation mode default to on, matching the voice page defaults.
func NewSessionContext(opts ...SessionOption) (*SessionContext, error) {
	session := Session{
		ID:               uuid.NewString(),
		SelectedLanguage: DefaultLanguage,
		AutoDetect:       true,
		ConversationMode: true,
		StartedAt:        time.Now(),
		Config:           DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&session)
	}

	if err := session.Config.Validate(); err != nil {
		return nil, err
	}
	if !session.AutoDetect && !slices.Contains(supportedLanguages, session.SelectedLanguage) {
		return nil, fmt.Errorf("unsupported language %q", session.SelectedLanguage)
	}

	return &SessionContext{session: session}, nil
}

// Snapshot returns a deep copy of the session.
func (c *SessionContext) Snapshot() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out Session
	if err := copier.CopyWithOption(&out, &c.session, copier.Option{DeepCopy: true}); err != nil {
		return c.session
	}
	// copier does not carry time.Time's unexported fields.
	out.StartedAt = c.session.StartedAt
	return out
}

func (c *SessionContext) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ID
}

func (c *SessionContext) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Config
}

func (c *SessionContext) ConversationActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ConversationActive && !c.session.Ended
}

// OutboundLanguage is the language field sent with an utterance.
func (c *SessionContext) OutboundLanguage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.LanguageMode()
}

func (c *SessionContext) SetLanguage(tag string) error {
	if !slices.Contains(supportedLanguages, tag) {
		return fmt.Errorf("unsupported language %q", tag)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.SelectedLanguage = tag
	return nil
}

func (c *SessionContext) SetAutoDetect(autoDetect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.AutoDetect = autoDetect
}

// SetConversationMode changes the preference. Turning it off also disables
// the pending auto-restart.
func (c *SessionContext) SetConversationMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ConversationMode = enabled
	if !enabled {
		c.session.ConversationActive = false
	}
}

// ActivateConversation enables auto-restart if the user wants hands-free
// turns. It returns the resulting ConversationActive.
func (c *SessionContext) ActivateConversation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ConversationActive = c.session.ConversationMode && !c.session.Ended
	return c.session.ConversationActive
}

func (c *SessionContext) DeactivateConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ConversationActive = false
}

func (c *SessionContext) SetDetectedLanguage(language string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.DetectedLanguage = language
}

func (c *SessionContext) SetConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Config = config
	return nil
}

// End marks the session destroyed. Later activations are refused.
func (c *SessionContext) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Ended = true
	c.session.ConversationActive = false
}
