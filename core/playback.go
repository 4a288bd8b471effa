package turntaking

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
)

// AudioOutput is the speaker capability. Mark calls back once all audio sent
// before it has been played. ClearBuffer drops queued audio and pending marks
// without calling them.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(mark string, callback func(string)) error
}

// PlaybackResult describes how a playback ended.
type PlaybackResult struct {
	Interrupted bool
	Err         error
}

type playback struct {
	id      int
	once    sync.Once
	onEnded func(PlaybackResult)
}

func (p *playback) end(result PlaybackResult) {
	p.once.Do(func() {
		if p.onEnded != nil {
			p.onEnded(result)
		}
	})
}

// PlaybackController plays one reply at a time and guarantees that every
// Play is followed by exactly one ended callback, whether the audio finished,
// failed or was stopped.
type PlaybackController struct {
	output AudioOutput

	mu      sync.Mutex
	current *playback
	seq     int
}

func NewPlaybackController(output AudioOutput) *PlaybackController {
	return &PlaybackController{output: output}
}

func (c *PlaybackController) IsActive() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Play decodes a WAV payload and starts playing it. onEnded is called exactly
// once, possibly before Play returns when the payload cannot be played. The
// returned duration is the length of the audio queued.
func (c *PlaybackController) Play(payload []byte, onEnded func(PlaybackResult)) (time.Duration, error) {
	c.Stop()

	c.mu.Lock()
	c.seq++
	p := &playback{id: c.seq, onEnded: onEnded}
	c.current = p
	c.mu.Unlock()

	if c.output == nil {
		err := fmt.Errorf("%w: no audio output configured", ErrPlaybackFailed)
		c.finish(p.id, PlaybackResult{Err: err})
		return 0, err
	}

	pcm, err := audio.DecodeWAV(payload)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		c.finish(p.id, PlaybackResult{Err: err})
		return 0, err
	}

	encoding := c.output.EncodingInfo()
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	data := audio.Resample(pcm.Data, pcm.SampleRate, encoding.SampleRate)
	if len(data) == 0 {
		c.finish(p.id, PlaybackResult{})
		return 0, nil
	}

	if err := c.output.SendAudio(data); err != nil {
		c.output.ClearBuffer()
		err = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		c.finish(p.id, PlaybackResult{Err: err})
		return 0, err
	}

	id := p.id
	if err := c.output.Mark("reply-"+strconv.Itoa(id), func(string) {
		c.finish(id, PlaybackResult{})
	}); err != nil {
		c.output.ClearBuffer()
		err = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		c.finish(p.id, PlaybackResult{Err: err})
		return 0, err
	}

	return encoding.Duration(len(data)), nil
}

func (c *PlaybackController) finish(id int, result PlaybackResult) {
	c.mu.Lock()
	p := c.current
	if p == nil || p.id != id {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	p.end(result)
}

// Stop interrupts the current playback, if any, and reports whether there
// was one. The interrupted playback's ended callback runs before Stop
// returns.
func (c *PlaybackController) Stop() bool {
	c.mu.Lock()
	p := c.current
	c.current = nil
	c.mu.Unlock()

	if p == nil {
		return false
	}

	if c.output != nil {
		c.output.ClearBuffer()
	}
	p.end(PlaybackResult{Interrupted: true})
	return true
}
