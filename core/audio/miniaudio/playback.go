package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	mu     sync.Mutex
	device *malgo.Device
	queue  playbackQueue
}

func (c *playbackClient) init(audioContext *malgo.AllocatedContext, sampleRate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(sampleRate)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(sampleRate / 10) // 100ms
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount) * malgo.SampleSizeInBytes(malgo.FormatS16)
			if n > len(output) {
				n = len(output)
			}
			c.queue.read(output[:n])
		},
	})
	if err != nil {
		return err
	}
	c.device = device
	return nil
}

func (c *playbackClient) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return ErrDeviceNotInitialized
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) sendAudio(audio []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	if device == nil {
		return ErrDeviceNotInitialized
	}
	if !device.IsStarted() {
		return fmt.Errorf("playback device not started")
	}

	c.queue.push(audio)
	return nil
}

func (c *playbackClient) mark(mark string, callback func(string)) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	if device == nil {
		return ErrDeviceNotInitialized
	}

	c.queue.mark(mark, callback)
	return nil
}

func (c *playbackClient) uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.clear()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
