// Package miniaudio drives the system microphone and speaker through
// miniaudio (malgo).
package miniaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-voice/core/audio"
)

var ErrDeviceNotInitialized = errors.New("audio device not initialized")

type Option func(*Client)

// WithSampleRate sets the rate of both devices. Capture is always mono
// linear16.
func WithSampleRate(rate int) Option {
	return func(c *Client) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// Client owns one malgo context with a capture and a playback device.
type Client struct {
	sampleRate int

	// audioContext is kept so Close can release it.
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{sampleRate: audio.DefaultSampleRate}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.init(audioCtx, client.sampleRate); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := client.playbackClient.start(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := client.captureClient.init(audioCtx, client.sampleRate); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: c.sampleRate, Format: audio.EncodingLinear16}
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte), onError func(err error)) error {
	return c.captureClient.start(onAudio, onError)
}

func (c *Client) StopCapture() error {
	return c.captureClient.stop()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.sendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.queue.clear()
}

func (c *Client) Mark(mark string, callback func(string)) error {
	return c.playbackClient.mark(mark, callback)
}

func (c *Client) Close() error {
	errs := errors.Join(c.captureClient.uninit(), c.playbackClient.uninit())
	if c.audioContext != nil {
		if err := c.audioContext.Uninit(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to release audio context: %w", err))
		}
		c.audioContext.Free()
		c.audioContext = nil
	}
	return errs
}
