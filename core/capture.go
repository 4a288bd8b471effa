package turntaking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
)

// AudioInput is the microphone capability. StartCapture must return once the
// device is running; onAudio may then be called from any goroutine until
// StopCapture returns. onError reports a device that stopped delivering audio
// on its own; StopCapture is still called afterwards and must release the
// hardware.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte), onError func(err error)) error
	StopCapture() error
}

// Utterance is the audio captured between capture start and stop. It only
// grows while capture runs and is frozen once Stop returns it.
type Utterance struct {
	encoding  audio.EncodingInfo
	chunks    [][]byte
	wav       *audio.WAVBuilder
	startedAt time.Time
	stoppedAt time.Time
	frozen    bool
}

func newUtterance(encoding audio.EncodingInfo, startedAt time.Time) *Utterance {
	return &Utterance{
		encoding:  encoding,
		wav:       audio.NewWAVBuilder(encoding.SampleRate),
		startedAt: startedAt,
	}
}

func (u *Utterance) append(chunk []byte) int {
	if u.frozen {
		return -1
	}
	u.chunks = append(u.chunks, chunk)
	u.wav.Append(chunk)
	return len(u.chunks) - 1
}

func (u *Utterance) freeze(at time.Time) {
	u.frozen = true
	u.stoppedAt = at
}

func (u *Utterance) Chunks() int   { return len(u.chunks) }
func (u *Utterance) IsEmpty() bool { return u == nil || u.wav.Len() == 0 }

// Bytes returns the raw PCM size.
func (u *Utterance) Bytes() int { return u.wav.Len() }

// Duration is the length of the captured audio, not the wall time spent.
func (u *Utterance) Duration() time.Duration { return u.encoding.Duration(u.wav.Len()) }

func (u *Utterance) StartedAt() time.Time { return u.startedAt }

// WAV returns the utterance as a WAV file.
func (u *Utterance) WAV() []byte { return u.wav.Bytes() }

// AudioCaptureSession owns the microphone for one utterance at a time. Device
// frames land in a pending buffer and are moved into the utterance as chunks
// by FlushChunk, so an interruption loses at most one chunk interval.
type AudioCaptureSession struct {
	input AudioInput
	meter *audio.LevelMeter

	// mu guards the fields written from the device callbacks.
	mu        sync.Mutex
	pending   []byte
	accepting bool
	run       uint64
	failure   error

	active    atomic.Bool
	utterance *Utterance
}

func NewAudioCaptureSession(input AudioInput) *AudioCaptureSession {
	return &AudioCaptureSession{
		input: input,
		meter: audio.NewLevelMeter(audio.DefaultLevelWindow),
	}
}

func (s *AudioCaptureSession) IsActive() bool { return s != nil && s.active.Load() }

// Start acquires the device and begins a new utterance. Starting an active
// session is a no-op.
func (s *AudioCaptureSession) Start(ctx context.Context, now time.Time) error {
	if s.input == nil {
		return fmt.Errorf("%w: no audio input configured", ErrDeviceUnavailable)
	}
	if s.active.Load() {
		return nil
	}

	encoding := s.input.EncodingInfo()
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("%w: unsupported capture encoding %q", ErrDeviceUnavailable, encoding.Format.Name())
	}

	s.meter.Reset()
	s.mu.Lock()
	s.pending = nil
	s.accepting = true
	s.failure = nil
	s.run++
	run := s.run
	s.mu.Unlock()
	s.utterance = newUtterance(encoding, now)

	onError := func(err error) { s.fail(run, err) }
	if err := s.input.StartCapture(ctx, s.onAudio, onError); err != nil {
		s.mu.Lock()
		s.accepting = false
		s.mu.Unlock()
		s.utterance = nil
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s.active.Store(true)
	return nil
}

func (s *AudioCaptureSession) onAudio(frame []byte) {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, frame...)
	s.mu.Unlock()

	s.meter.Write(frame)
}

// fail records that the device of the given run stopped. Frames are no
// longer accepted and the level drops to silence.
func (s *AudioCaptureSession) fail(run uint64, err error) {
	s.mu.Lock()
	if run != s.run || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.failure = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	s.mu.Unlock()

	s.meter.Reset()
}

// Err returns the device failure of the current capture, if any.
func (s *AudioCaptureSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Level is the current loudness estimate on the 0-255 scale.
func (s *AudioCaptureSession) Level() float64 { return s.meter.Level() }

// ChunkCount is the number of chunks in the current utterance.
func (s *AudioCaptureSession) ChunkCount() int {
	if s.utterance == nil {
		return 0
	}
	return s.utterance.Chunks()
}

// FlushChunk moves pending audio into the utterance. It returns the chunk
// index and size, or ok=false when there was nothing to flush.
func (s *AudioCaptureSession) FlushChunk() (index, size int, ok bool) {
	if s.utterance == nil {
		return 0, 0, false
	}

	chunk := s.takePending()
	if len(chunk) == 0 {
		return 0, 0, false
	}
	return s.utterance.append(chunk), len(chunk), true
}

func (s *AudioCaptureSession) takePending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := s.pending
	s.pending = nil
	return chunk
}

// Stop releases the device, drains audio that arrived after the last flush
// and returns the frozen utterance. It returns nil when already stopped. A
// release error is returned alongside the utterance; the device is
// considered released either way.
func (s *AudioCaptureSession) Stop(now time.Time) (*Utterance, error) {
	if !s.active.Load() {
		return nil, nil
	}

	err := s.input.StopCapture()

	s.mu.Lock()
	s.accepting = false
	s.mu.Unlock()
	if chunk := s.takePending(); len(chunk) > 0 {
		s.utterance.append(chunk)
	}

	utterance := s.utterance
	utterance.freeze(now)
	s.utterance = nil
	s.active.Store(false)

	if err != nil {
		return utterance, fmt.Errorf("failed to release audio input: %w", err)
	}
	return utterance, nil
}

// Abort stops capture and throws the partial utterance away.
func (s *AudioCaptureSession) Abort(now time.Time) (discardedChunks int, err error) {
	utterance, err := s.Stop(now)
	if utterance != nil {
		discardedChunks = utterance.Chunks()
	}
	return discardedChunks, err
}
