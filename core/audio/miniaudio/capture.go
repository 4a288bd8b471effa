package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type captureClient struct {
	device *malgo.Device

	mu      sync.Mutex
	onAudio func(audio []byte)
	onError func(err error)
}

var errCaptureStopped = errors.New("capture device stopped unexpectedly")

func (c *captureClient) init(audioContext *malgo.AllocatedContext, sampleRate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(sampleRate)
	config.Capture.Format = format
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(sampleRate / 100) // 10ms
	config.Periods = 3

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}

			c.mu.Lock()
			onAudio := c.onAudio
			c.mu.Unlock()
			if onAudio == nil {
				return
			}
			// malgo reuses the input buffer between callbacks.
			onAudio(append([]byte(nil), input[:n]...))
		},
		// Stop also runs for our own stop calls; those detach the callbacks
		// first, so anything still attached means the device went away.
		Stop: func() {
			c.mu.Lock()
			onError := c.onError
			c.onAudio = nil
			c.onError = nil
			c.mu.Unlock()
			if onError != nil {
				logger.Warn("capture device stopped unexpectedly")
				onError(errCaptureStopped)
			}
		},
	})
	if err != nil {
		return err
	}
	c.device = device
	return nil
}

func (c *captureClient) start(onAudio func(audio []byte), onError func(err error)) error {
	c.mu.Lock()
	device := c.device
	if device == nil {
		c.mu.Unlock()
		return ErrDeviceNotInitialized
	}
	c.onAudio = onAudio
	c.onError = onError
	c.mu.Unlock()

	if device.IsStarted() {
		return nil
	}
	// The device callbacks take mu, so it is not held across Start.
	if err := device.Start(); err != nil {
		c.mu.Lock()
		c.onAudio = nil
		c.onError = nil
		c.mu.Unlock()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// stop detaches the callback before stopping so no frame is delivered after
// stop returns.
func (c *captureClient) stop() error {
	c.mu.Lock()
	c.onAudio = nil
	c.onError = nil
	device := c.device
	c.mu.Unlock()

	if device == nil {
		return ErrDeviceNotInitialized
	}
	if !device.IsStarted() {
		return nil
	}
	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onAudio = nil
	c.onError = nil
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
