package turntaking

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/transport"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	timer := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		pending := make([]*manualTimer, 0, len(c.timers))
		for _, timer := range c.timers {
			if !timer.stopped && !timer.fired {
				pending = append(pending, timer)
			}
		}
		c.timers = pending
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].at.Equal(pending[j].at) {
				return pending[i].seq < pending[j].seq
			}
			return pending[i].at.Before(pending[j].at)
		})

		if len(pending) == 0 || pending[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}

		next := pending[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

func (c *manualClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

// devices tracks the microphone and speaker together so tests can assert
// they are never active at once.
type devices struct {
	captureActive  atomic.Bool
	playbackActive atomic.Bool
	overlaps       atomic.Int32
}

func (d *devices) checkExclusive() {
	if d.captureActive.Load() && d.playbackActive.Load() {
		d.overlaps.Add(1)
	}
}

type fakeInput struct {
	devices  *devices
	encoding audio.EncodingInfo
	startErr error

	mu      sync.Mutex
	onAudio func([]byte)
	onError func(error)

	starts atomic.Int32
	stops  atomic.Int32
}

func (i *fakeInput) EncodingInfo() audio.EncodingInfo { return i.encoding }

func (i *fakeInput) StartCapture(_ context.Context, onAudio func([]byte), onError func(error)) error {
	if i.startErr != nil {
		return i.startErr
	}

	i.mu.Lock()
	i.onAudio = onAudio
	i.onError = onError
	i.mu.Unlock()
	i.starts.Add(1)
	i.devices.captureActive.Store(true)
	i.devices.checkExclusive()
	return nil
}

func (i *fakeInput) StopCapture() error {
	i.mu.Lock()
	i.onAudio = nil
	i.onError = nil
	i.mu.Unlock()
	i.stops.Add(1)
	i.devices.captureActive.Store(false)
	return nil
}

// fail simulates the device dying mid-capture, e.g. a USB mic unplugged.
// The reporter is kept so a late report from a stopped capture can be
// replayed.
func (i *fakeInput) fail(err error) func(error) {
	i.mu.Lock()
	onError := i.onError
	i.onAudio = nil
	i.mu.Unlock()

	if onError != nil {
		onError(err)
	}
	return onError
}

func (i *fakeInput) feed(frame []byte) {
	i.mu.Lock()
	onAudio := i.onAudio
	i.mu.Unlock()

	if onAudio != nil {
		onAudio(frame)
	}
}

type fakeOutput struct {
	devices *devices
	sendErr error

	mu    sync.Mutex
	marks []func(string)
	sent  int

	clears atomic.Int32
}

func (o *fakeOutput) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (o *fakeOutput) SendAudio(data []byte) error {
	if o.sendErr != nil {
		return o.sendErr
	}

	o.mu.Lock()
	o.sent += len(data)
	o.mu.Unlock()
	o.devices.playbackActive.Store(true)
	o.devices.checkExclusive()
	return nil
}

func (o *fakeOutput) ClearBuffer() {
	o.mu.Lock()
	o.marks = nil
	o.mu.Unlock()
	o.clears.Add(1)
	o.devices.playbackActive.Store(false)
}

func (o *fakeOutput) Mark(mark string, callback func(string)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.marks = append(o.marks, func(string) { callback(mark) })
	return nil
}

func (o *fakeOutput) sentBytes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent
}

// drain plays out everything queued and fires the marks.
func (o *fakeOutput) drain() {
	o.mu.Lock()
	marks := o.marks
	o.marks = nil
	o.mu.Unlock()

	o.devices.playbackActive.Store(false)
	for _, mark := range marks {
		mark("")
	}
}

type pendingSend struct {
	msg  transport.Message
	done func(error)
}

// fakeTransport completes sends only when the test says so.
type fakeTransport struct {
	mu       sync.Mutex
	handler  transport.Handler
	sends    []pendingSend
	up       atomic.Bool
	connects atomic.Int32
	closes   atomic.Int32
	sendErr  error
}

func (f *fakeTransport) Connect(_ context.Context, handler transport.Handler) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	f.connects.Add(1)
	return nil
}

func (f *fakeTransport) Send(msg transport.Message, done func(error)) error {
	if !f.up.Load() {
		return transport.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, pendingSend{msg: msg, done: done})
	return nil
}

func (f *fakeTransport) RequestHistory() error { return nil }

func (f *fakeTransport) Connected() bool { return f.up.Load() }

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	f.up.Store(false)
	return nil
}

func (f *fakeTransport) currentHandler() transport.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeTransport) setConnectivity(connectivity transport.Connectivity) {
	f.up.Store(connectivity.IsUp())
	var err error
	if !connectivity.IsUp() {
		err = errors.New("link down")
	}
	f.currentHandler().Connectivity(connectivity, err)
}

func (f *fakeTransport) reply(reply transport.Reply) {
	f.currentHandler().Reply(reply)
}

func (f *fakeTransport) sent() []transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]transport.Message, 0, len(f.sends))
	for _, s := range f.sends {
		msgs = append(msgs, s.msg)
	}
	return msgs
}

// completeSend reports the write result of the oldest pending send.
func (f *fakeTransport) completeSend(err error) bool {
	f.mu.Lock()
	var done func(error)
	for i := range f.sends {
		if f.sends[i].done != nil {
			done = f.sends[i].done
			f.sends[i].done = nil
			break
		}
	}
	f.mu.Unlock()

	if done == nil {
		return false
	}
	done(err)
	return true
}

func pcmFrame(amplitude int16, samples int) []byte {
	frame := make([]byte, samples*2)
	for i := range samples {
		sample := amplitude
		if i%2 == 1 {
			sample = -amplitude
		}
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
	}
	return frame
}

func wavReply(duration time.Duration) []byte {
	samples := int(duration.Seconds() * audio.DefaultSampleRate)
	builder := audio.NewWAVBuilder(audio.DefaultSampleRate)
	builder.Append(pcmFrame(1200, samples))
	return builder.Bytes()
}
