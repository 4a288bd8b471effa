// Package portaudio drives the default microphone and speaker through
// blocking PortAudio streams.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/koscakluka/ema-voice/core/audio"
)

const DefaultBufferSize = 480

var ErrClosed = errors.New("portaudio client closed")

type playbackItem struct {
	epoch    uint64
	audio    []byte
	mark     string
	callback func(string)
}

type Client struct {
	bufferSize int

	input *portaudio.Stream
	in    []int16

	output *portaudio.Stream
	out    []int16

	captureMu     sync.Mutex
	stopCapture   context.CancelFunc
	captureDone   chan struct{}
	captureActive bool

	playback chan playbackItem
	epoch    atomic.Uint64
	done     chan struct{}
	closed   sync.Once
	writerWG sync.WaitGroup
}

// NewClient opens the default input and output devices. bufferSize is in
// samples; zero selects DefaultBufferSize.
func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := &Client{
		bufferSize: bufferSize,
		in:         make([]int16, bufferSize),
		out:        make([]int16, bufferSize),
		playback:   make(chan playbackItem, 64),
		done:       make(chan struct{}),
	}

	var err error
	c.input, err = portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, c.in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	c.output, err = portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, c.out)
	if err != nil {
		c.input.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := c.output.Start(); err != nil {
		c.input.Close()
		c.output.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	c.writerWG.Add(1)
	go c.writeLoop()

	return c, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte), onError func(err error)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.captureActive {
		return nil
	}
	if err := c.input.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.stopCapture = cancel
	c.captureDone = done
	c.captureActive = true

	go func() {
		defer close(done)
		for ctx.Err() == nil {
			if err := c.input.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					continue
				}
				logger.Warn("failed to read from input stream", "error", err)
				if ctx.Err() == nil && onError != nil {
					onError(fmt.Errorf("failed to read from input stream: %w", err))
				}
				return
			}

			frame := bytes.Buffer{}
			binary.Write(&frame, binary.LittleEndian, c.in)
			if ctx.Err() != nil {
				return
			}
			onAudio(frame.Bytes())
		}
	}()
	return nil
}

// StopCapture returns once the reader goroutine has delivered its last frame.
func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if !c.captureActive {
		return nil
	}
	c.stopCapture()
	<-c.captureDone
	c.captureActive = false

	if err := c.input.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

func (c *Client) SendAudio(audio []byte) error {
	return c.enqueue(playbackItem{audio: audio})
}

func (c *Client) Mark(mark string, callback func(string)) error {
	return c.enqueue(playbackItem{mark: mark, callback: callback})
}

// ClearBuffer drops queued audio and marks. Dropped marks never fire.
func (c *Client) ClearBuffer() {
	c.epoch.Add(1)
}

func (c *Client) enqueue(item playbackItem) error {
	item.epoch = c.epoch.Load()
	select {
	case <-c.done:
		return ErrClosed
	case c.playback <- item:
		return nil
	}
}

func (c *Client) writeLoop() {
	defer c.writerWG.Done()

	frameBytes := c.bufferSize * 2
	var leftover []byte
	leftoverEpoch := c.epoch.Load()

	for {
		var item playbackItem
		select {
		case <-c.done:
			return
		case item = <-c.playback:
		}

		if item.epoch != c.epoch.Load() {
			continue
		}
		if leftoverEpoch != item.epoch {
			leftover = nil
			leftoverEpoch = item.epoch
		}

		if item.callback != nil || item.mark != "" {
			// Flush the partial frame so the mark lands after all its audio.
			if len(leftover) > 0 {
				padded := make([]byte, frameBytes)
				copy(padded, leftover)
				leftover = nil
				c.writeFrame(padded)
			}
			if item.callback != nil {
				go item.callback(item.mark)
			}
			continue
		}

		pending := append(leftover, item.audio...)
		for len(pending) >= frameBytes {
			if item.epoch != c.epoch.Load() {
				pending = nil
				break
			}
			c.writeFrame(pending[:frameBytes])
			pending = pending[frameBytes:]
		}
		leftover = append([]byte(nil), pending...)
	}
}

func (c *Client) writeFrame(frame []byte) {
	binary.Read(bytes.NewReader(frame), binary.LittleEndian, c.out)
	if err := c.output.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		logger.Warn("failed to write to output stream", "error", err)
	}
}

func (c *Client) Close() error {
	var err error
	c.closed.Do(func() {
		err = c.StopCapture()
		close(c.done)
		c.writerWG.Wait()

		err = errors.Join(err, c.output.Stop(), c.input.Close(), c.output.Close(), portaudio.Terminate())
	})
	return err
}
