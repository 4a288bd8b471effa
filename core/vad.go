package turntaking

import "time"

// ActivityState is the detector's view after the latest tick. A zero
// SilenceStartedAt means the latest sample was speech, or nothing was sampled
// yet.
type ActivityState struct {
	Level            float64
	IsSpeaking       bool
	SilenceStartedAt time.Time
}

// SilenceDuration returns how long the current silence has lasted at now.
func (s ActivityState) SilenceDuration(now time.Time) time.Duration {
	if s.SilenceStartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.SilenceStartedAt)
}

// Observation is the outcome of one tick.
type Observation struct {
	State ActivityState
	// SpeakingChanged reports a raw speech/silence transition, independent of
	// the grace period.
	SpeakingChanged bool
	// SilenceExceeded is set on the one tick where the grace period is first
	// reached with captured audio.
	SilenceExceeded bool
}

// VoiceActivityDetector classifies loudness samples and debounces the end of
// an utterance. It is not safe for concurrent use; the controller calls it
// from its event loop.
type VoiceActivityDetector struct {
	threshold   float64
	gracePeriod time.Duration

	state    ActivityState
	sampled  bool
	exceeded bool
}

func NewVoiceActivityDetector(threshold float64, gracePeriod time.Duration) *VoiceActivityDetector {
	return &VoiceActivityDetector{threshold: threshold, gracePeriod: gracePeriod}
}

// Tune replaces the threshold and grace period; the current silence span is
// kept.
func (d *VoiceActivityDetector) Tune(threshold float64, gracePeriod time.Duration) {
	d.threshold = threshold
	d.gracePeriod = gracePeriod
}

// Reset forgets all history, as at the start of a new utterance.
func (d *VoiceActivityDetector) Reset() {
	d.state = ActivityState{}
	d.sampled = false
	d.exceeded = false
}

func (d *VoiceActivityDetector) State() ActivityState { return d.state }

// Observe classifies one sample taken at now. chunksCaptured is the number of
// chunks in the current utterance; silence never completes an utterance that
// has no audio.
func (d *VoiceActivityDetector) Observe(level float64, now time.Time, chunksCaptured int) Observation {
	isSpeaking := level > d.threshold
	changed := d.sampled && isSpeaking != d.state.IsSpeaking
	d.sampled = true

	d.state.Level = level
	d.state.IsSpeaking = isSpeaking
	if isSpeaking {
		d.state.SilenceStartedAt = time.Time{}
		d.exceeded = false
	} else if d.state.SilenceStartedAt.IsZero() {
		d.state.SilenceStartedAt = now
	}

	observation := Observation{State: d.state, SpeakingChanged: changed}
	if !isSpeaking && !d.exceeded && chunksCaptured > 0 &&
		d.state.SilenceDuration(now) >= d.gracePeriod {
		d.exceeded = true
		observation.SilenceExceeded = true
	}

	return observation
}
