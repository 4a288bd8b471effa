package turntaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/transport"
)

type timerKind int

const (
	timerSample timerKind = iota
	timerChunk
	timerMaxUtterance
	timerRearm
)

// TurnController decides when the user has finished speaking, hands the
// utterance to the assistant and re-arms the microphone once the reply has
// been played.
//
// Device callbacks, timer fires, transport events and public calls are all
// posted to one event loop and handled in order, so the fields marked as
// loop-owned are never touched concurrently.
type TurnController struct {
	session  *SessionContext
	capture  *AudioCaptureSession
	vad      *VoiceActivityDetector
	playback *PlaybackController
	channel  *TransportChannel
	clock    Clock

	callbacks controllerCallbacks
	emit      eventEmitter

	baseContext context.Context
	cancelRun   context.CancelFunc

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}

	runOnce   sync.Once
	closeOnce sync.Once
	running   atomic.Bool
	closed    atomic.Bool

	// Loop-owned.
	state       TurnState
	requested   TurnState
	generation  uint64
	turn        uint64
	timers      map[timerKind]Timer
	sentAt      time.Time
	lastErr     error
	connected   bool
	unavailable bool
	turnSpan    trace.Span
	unsubscribe func()
	exiting     bool
	shutDown    bool

	snapshotMu sync.RWMutex
	snapshot   StateSnapshot
}

func NewTurnController(opts ...TurnControllerOption) (*TurnController, error) {
	c := &TurnController{
		capture:     NewAudioCaptureSession(nil),
		playback:    NewPlaybackController(nil),
		channel:     NewTransportChannel(nil),
		clock:       systemClock{},
		baseContext: context.Background(),
		cancelRun:   func() {},
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		state:       TurnStateIdle,
		requested:   TurnStateIdle,
		timers:      map[timerKind]Timer{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.session == nil {
		session, err := NewSessionContext()
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		c.session = session
	}

	config := c.session.Config()
	c.vad = NewVoiceActivityDetector(config.EnergyThreshold, config.GracePeriod)
	c.emit = newCallbackEventEmitter(c.callbacks)
	c.publish()

	return c, nil
}

// Run connects the transport and starts the event loop in the background.
// ctx bounds the loop and the connection; Close must still be called to
// release the devices.
func (c *TurnController) Run(ctx context.Context) error {
	if c.closed.Load() {
		return ErrControllerClosed
	}

	started := false
	c.runOnce.Do(func() {
		started = true
		c.baseContext, c.cancelRun = context.WithCancel(ctx)
		c.unsubscribe = c.channel.Subscribe(c.transportHandler())
		c.running.Store(true)
		go c.loop(c.baseContext)
	})
	if !started {
		return nil
	}

	if err := c.channel.Connect(c.baseContext); err != nil {
		logger.Error("failed to connect to assistant", "error", err)
		return err
	}
	return nil
}

// Close stops any turn in progress, ends the session, closes the transport
// and waits for the event loop to exit.
func (c *TurnController) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if !c.running.Load() {
			c.closed.Store(true)
			err = c.shutdown()
			return
		}

		finished := make(chan error, 1)
		c.post(func() {
			finished <- c.shutdown()
			c.exiting = true
		})
		c.closed.Store(true)
		<-c.done

		select {
		case err = <-finished:
		default:
			// The loop stopped with its context before reaching the shutdown.
			err = c.shutdown()
		}
		c.cancelRun()
	})
	return err
}

// Start begins listening, or resumes listening once the connection returns.
func (c *TurnController) Start() { c.post(c.handleStart) }

// Stop ends the conversation from any state. The partial utterance and any
// reply being played are discarded.
func (c *TurnController) Stop() { c.post(c.handleStop) }

func (c *TurnController) SetAutoDetect(autoDetect bool) {
	c.session.SetAutoDetect(autoDetect)
	c.post(c.publish)
}

func (c *TurnController) SetLanguage(tag string) error {
	if err := c.session.SetLanguage(tag); err != nil {
		return err
	}
	c.post(c.publish)
	return nil
}

// SetConversationMode toggles automatic re-arm after each reply. Turning it
// off lets the current turn finish and then stays idle.
func (c *TurnController) SetConversationMode(enabled bool) {
	c.session.SetConversationMode(enabled)
	c.post(func() {
		if enabled && c.requested == TurnStateListening {
			c.session.ActivateConversation()
		}
		c.publish()
	})
}

// Tune replaces the timings and thresholds. Intervals apply from the next
// tick; the threshold and grace period apply immediately.
func (c *TurnController) Tune(config Config) error {
	if err := c.session.SetConfig(config); err != nil {
		return err
	}
	c.post(func() {
		c.vad.Tune(config.EnergyThreshold, config.GracePeriod)
		c.publish()
	})
	return nil
}

func (c *TurnController) State() TurnState {
	return c.Snapshot().State
}

func (c *TurnController) Snapshot() StateSnapshot {
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	return c.snapshot
}

func (c *TurnController) post(task func()) bool {
	if c.closed.Load() {
		return false
	}

	c.queueMu.Lock()
	c.queue = append(c.queue, task)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *TurnController) dequeue() (func(), bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if len(c.queue) == 0 {
		return nil, false
	}
	task := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return task, true
}

func (c *TurnController) loop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			task, ok := c.dequeue()
			if !ok {
				break
			}
			task()
			if c.exiting {
				return
			}
		}
	}
}

func (c *TurnController) transportHandler() transport.Handler {
	return transport.Handler{
		OnConnectivity: func(connectivity transport.Connectivity, err error) {
			c.post(func() { c.onConnectivity(connectivity, err) })
		},
		OnReply: func(reply transport.Reply) {
			c.post(func() { c.onReply(reply) })
		},
		OnDetectedLanguage: func(language string) {
			c.post(func() {
				c.session.SetDetectedLanguage(language)
				c.emit(events.NewLanguageDetected(c.clock.Now(), language))
				c.publish()
			})
		},
		OnStatus: func(status string) {
			c.post(func() { c.emit(events.NewServerStatus(c.clock.Now(), status)) })
		},
		OnServerError: func(message string) {
			c.post(func() { c.onServerError(message) })
		},
		OnHistory: func(history []transport.HistoryMessage) {
			c.post(func() { c.emit(events.NewHistoryReceived(c.clock.Now(), history)) })
		},
	}
}

func (c *TurnController) handleStart() {
	switch c.state {
	case TurnStateListening:
		return
	case TurnStateSending, TurnStateAwaitingReply, TurnStateSpeaking:
		logger.Debug("start ignored while a turn is in progress", "state", c.state.String())
		return
	case TurnStateDisconnected:
		c.requested = TurnStateListening
		c.session.ActivateConversation()
		if c.unavailable {
			c.reconnect()
		}
		c.publish()
		return
	}

	c.requested = TurnStateListening
	c.session.ActivateConversation()
	c.beginListening()
}

func (c *TurnController) handleStop() {
	c.requested = TurnStateIdle
	c.session.DeactivateConversation()
	if err := c.teardownTurn(nil); err != nil {
		logger.Warn("failed to release audio input on stop", "error", err)
	}
	c.lastErr = nil
	c.setState(TurnStateIdle)
}

// reconnect starts a fresh round of connection attempts after the transport
// has given up.
func (c *TurnController) reconnect() {
	c.unavailable = false
	if err := c.channel.Connect(c.baseContext); err != nil {
		logger.Warn("failed to reconnect to assistant", "error", err)
	}
}

// beginListening enters Listening from Idle, Error or Disconnected.
func (c *TurnController) beginListening() {
	c.cancelTimers()

	if !c.channel.Connected() {
		c.failTurn(ErrTransportDisconnected, TurnStateError)
		return
	}

	now := c.clock.Now()
	if c.playback.Stop() {
		c.emit(events.NewAssistantPlaybackEnded(now, true, nil))
	}

	if err := c.capture.Start(c.baseContext, now); err != nil {
		c.failTurn(err, TurnStateIdle)
		return
	}

	config := c.session.Config()
	c.vad.Tune(config.EnergyThreshold, config.GracePeriod)
	c.vad.Reset()
	c.lastErr = nil

	c.emit(events.NewCaptureStarted(now))
	c.setState(TurnStateListening)

	c.schedule(timerSample, config.SampleInterval, c.onSampleTick)
	c.schedule(timerChunk, config.ChunkInterval, c.onChunkTick)
	if config.MaxUtteranceDuration > 0 {
		c.schedule(timerMaxUtterance, config.MaxUtteranceDuration, c.onMaxUtterance)
	}
}

func (c *TurnController) schedule(kind timerKind, d time.Duration, fire func(generation uint64)) {
	generation := c.generation
	c.timers[kind] = c.clock.AfterFunc(d, func() {
		c.post(func() { fire(generation) })
	})
}

// cancelTimers stops every pending timer. Fires already queued are
// recognised as stale by their generation.
func (c *TurnController) cancelTimers() {
	for kind, timer := range c.timers {
		timer.Stop()
		delete(c.timers, kind)
	}
	c.generation++
}

func (c *TurnController) listening(generation uint64) bool {
	return generation == c.generation && c.state == TurnStateListening
}

func (c *TurnController) onSampleTick(generation uint64) {
	if !c.listening(generation) {
		return
	}

	if err := c.capture.Err(); err != nil {
		c.failTurn(err, TurnStateIdle)
		return
	}

	now := c.clock.Now()
	observation := c.vad.Observe(c.capture.Level(), now, c.capture.ChunkCount())
	state := observation.State
	c.emit(events.NewActivitySampled(now, state.Level, state.IsSpeaking, state.SilenceStartedAt))

	if observation.SpeakingChanged {
		if state.IsSpeaking {
			c.emit(events.NewUserSpeechStarted(now, state.Level))
		} else {
			c.emit(events.NewUserSpeechEnded(now, state.Level))
		}
	}

	if observation.SilenceExceeded {
		silenceCutoffCounter.Add(c.baseContext, 1)
		c.emit(events.NewSilenceExceeded(now, state.SilenceDuration(now), c.capture.ChunkCount()))
		c.finishUtterance("silence")
		return
	}

	c.publish()
	c.schedule(timerSample, c.session.Config().SampleInterval, c.onSampleTick)
}

func (c *TurnController) onChunkTick(generation uint64) {
	if !c.listening(generation) {
		return
	}

	if index, size, ok := c.capture.FlushChunk(); ok {
		c.emit(events.NewCaptureChunk(c.clock.Now(), index, size))
	}
	c.schedule(timerChunk, c.session.Config().ChunkInterval, c.onChunkTick)
}

func (c *TurnController) onMaxUtterance(generation uint64) {
	if !c.listening(generation) {
		return
	}

	logger.Debug("utterance reached maximum duration", "max", c.session.Config().MaxUtteranceDuration)
	c.finishUtterance("max_duration")
}

// finishUtterance moves Listening to Sending. Capture is stopped and drained
// before the utterance is handed over.
func (c *TurnController) finishUtterance(cutoff string) {
	c.cancelTimers()

	now := c.clock.Now()
	utterance, err := c.capture.Stop(now)
	if err != nil {
		logger.Warn("failed to release audio input", "error", err)
	}
	chunks := 0
	if utterance != nil {
		chunks = utterance.Chunks()
	}
	c.emit(events.NewCaptureStopped(now, chunks, false))

	if utterance.IsEmpty() {
		c.finishTurn()
		return
	}

	c.turn++
	turn := c.turn
	session := c.session.Snapshot()
	_, c.turnSpan = tracer.Start(c.baseContext, "voice turn", trace.WithAttributes(
		attribute.String("session.id", session.ID),
		attribute.String("language", session.LanguageMode()),
		attribute.String("cutoff", cutoff),
		attribute.Int("utterance.bytes", utterance.Bytes()),
	))
	c.setState(TurnStateSending)

	err = c.channel.Send(utterance, session, func(err error) {
		c.post(func() { c.onSendDone(turn, err) })
	})
	if err != nil {
		c.onSendFailed(err)
		return
	}

	// The reply can arrive before the write is confirmed, so the turn waits
	// for it as soon as the transport has taken the utterance.
	c.sentAt = now
	turnCounter.Add(c.baseContext, 1)
	c.emit(events.NewUtteranceSent(now, utterance.Bytes(), utterance.Duration()))
	c.setState(TurnStateAwaitingReply)
}

// onSendDone reports the write result of the turn's utterance. A failed
// write still waiting for its reply ends the turn; once the reply is in, the
// write evidently reached the assistant.
func (c *TurnController) onSendDone(turn uint64, err error) {
	if err == nil || turn != c.turn || c.state != TurnStateAwaitingReply {
		return
	}
	c.onSendFailed(fmt.Errorf("%w: %w", ErrTransportSendFailed, err))
}

// onSendFailed discards the utterance. It is never retried.
func (c *TurnController) onSendFailed(err error) {
	if !c.channel.Connected() {
		c.failTurn(err, TurnStateDisconnected)
		return
	}
	c.failTurn(err, TurnStateError)
}

func (c *TurnController) onReply(reply transport.Reply) {
	now := c.clock.Now()
	if c.state != TurnStateAwaitingReply {
		logger.Debug("reply outside of a turn is not played", "state", c.state.String())
		c.emit(events.NewReplyReceived(now, reply, false))
		return
	}

	replyLatency.Record(c.baseContext, now.Sub(c.sentAt).Seconds())
	c.endTurnSpan(nil)

	if !reply.HasAudio() {
		c.emit(events.NewReplyReceived(now, reply, false))
		c.finishTurn()
		return
	}

	turn := c.turn
	c.setState(TurnStateSpeaking)

	duration, err := c.playback.Play(reply.Audio, func(result PlaybackResult) {
		c.post(func() { c.onPlaybackEnded(turn, result) })
	})
	c.emit(events.NewReplyReceived(now, reply, err == nil))
	if err != nil {
		// The ended callback carries the failure into Error.
		logger.Warn("failed to play reply", "error", err)
		return
	}
	c.emit(events.NewAssistantPlaybackStarted(now, duration))
}

func (c *TurnController) onPlaybackEnded(turn uint64, result PlaybackResult) {
	if turn != c.turn || c.state != TurnStateSpeaking {
		return
	}

	c.emit(events.NewAssistantPlaybackEnded(c.clock.Now(), result.Interrupted, result.Err))
	if result.Err != nil {
		c.failTurn(result.Err, TurnStateError)
		return
	}
	c.finishTurn()
}

// finishTurn returns to Idle and schedules the re-arm when the conversation
// is still active.
func (c *TurnController) finishTurn() {
	c.cancelTimers()
	c.setState(TurnStateIdle)

	if !c.session.ConversationActive() {
		c.requested = TurnStateIdle
		return
	}
	c.schedule(timerRearm, c.session.Config().RearmDelay, c.onRearm)
}

func (c *TurnController) onRearm(generation uint64) {
	if generation != c.generation || c.state != TurnStateIdle || !c.session.ConversationActive() {
		return
	}
	c.beginListening()
}

func (c *TurnController) onServerError(message string) {
	c.emit(events.NewServerError(c.clock.Now(), message))
	if c.state != TurnStateSending && c.state != TurnStateAwaitingReply {
		return
	}
	c.failTurn(fmt.Errorf("%w: %s", ErrAssistantFailed, message), TurnStateError)
}

func (c *TurnController) onConnectivity(connectivity transport.Connectivity, err error) {
	c.emit(events.NewTransportConnectivityChanged(c.clock.Now(), connectivity, err))

	if connectivity.IsUp() {
		c.connected = true
		c.unavailable = false
		if c.state != TurnStateDisconnected {
			c.publish()
			return
		}

		c.lastErr = nil
		if c.requested == TurnStateListening {
			c.beginListening()
			return
		}
		c.setState(TurnStateIdle)
		return
	}

	c.connected = false
	if connectivity == transport.Unavailable {
		c.unavailable = true
	}
	if c.state == TurnStateDisconnected {
		c.publish()
		return
	}

	cause := ErrTransportDisconnected
	if err != nil {
		cause = fmt.Errorf("%w: %w", ErrTransportDisconnected, err)
	}
	if c.state == TurnStateListening || c.state.Busy() {
		c.failTurn(cause, TurnStateDisconnected)
		return
	}

	if err := c.teardownTurn(nil); err != nil {
		logger.Warn("failed to release audio input", "error", err)
	}
	c.lastErr = cause
	c.setState(TurnStateDisconnected)
}

// failTurn tears the current turn down and surfaces err. Outside of
// Disconnected the conversation ends and the user has to start again.
func (c *TurnController) failTurn(err error, to TurnState) {
	if releaseErr := c.teardownTurn(err); releaseErr != nil {
		logger.Warn("failed to release audio input", "error", releaseErr)
	}
	if to != TurnStateDisconnected {
		c.requested = TurnStateIdle
		c.session.DeactivateConversation()
	}

	turnFailureCounter.Add(c.baseContext, 1, metric.WithAttributes(attribute.String("state", to.String())))
	logger.Warn("turn failed", "state", to.String(), "error", err)

	c.lastErr = err
	c.setState(to)
	c.emit(events.NewTurnFailed(c.clock.Now(), err))
}

// teardownTurn releases everything the current turn holds: timers, the
// microphone and the speaker. Callbacks from the abandoned turn are ignored.
func (c *TurnController) teardownTurn(cause error) error {
	c.cancelTimers()
	c.turn++

	now := c.clock.Now()
	var err error
	if c.capture.IsActive() {
		var discarded int
		discarded, err = c.capture.Abort(now)
		c.emit(events.NewCaptureStopped(now, discarded, true))
	}
	if c.playback.Stop() {
		c.emit(events.NewAssistantPlaybackEnded(now, true, nil))
	}
	c.vad.Reset()
	c.endTurnSpan(cause)

	return err
}

func (c *TurnController) endTurnSpan(err error) {
	if c.turnSpan == nil {
		return
	}
	if err != nil {
		c.turnSpan.RecordError(err)
		c.turnSpan.SetStatus(codes.Error, err.Error())
	}
	c.turnSpan.End()
	c.turnSpan = nil
}

func (c *TurnController) shutdown() error {
	if c.shutDown {
		return nil
	}
	c.shutDown = true

	var errs error
	c.requested = TurnStateIdle
	c.session.DeactivateConversation()
	if err := c.teardownTurn(nil); err != nil {
		errs = errors.Join(errs, err)
	}
	c.setState(TurnStateIdle)

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.session.End()
	if err := c.channel.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close transport: %w", err))
	}
	c.publish()

	return errs
}

func (c *TurnController) setState(to TurnState) {
	from := c.state
	c.state = to
	c.publish()
	if from == to {
		return
	}

	logger.Debug("turn state changed", "from", from.String(), "to", to.String())
	c.emit(events.NewTurnStateChanged(c.clock.Now(), from.String(), to.String()))
	if c.callbacks.onStateChanged != nil {
		c.callbacks.onStateChanged(from, to)
	}
}

func (c *TurnController) publish() {
	session := c.session.Snapshot()
	activity := c.vad.State()

	snapshot := StateSnapshot{
		State:                c.state,
		Activity:             activity,
		CaptureActive:        c.capture.IsActive(),
		PlaybackActive:       c.playback.IsActive(),
		ConversationActive:   session.ConversationActive,
		Connected:            c.connected,
		TransportUnavailable: c.unavailable,
		LastError:            c.lastErr,
		Session:              session,
	}
	if c.state == TurnStateListening && !activity.SilenceStartedAt.IsZero() {
		snapshot.SilenceTiming = true
		snapshot.SilenceElapsed = activity.SilenceDuration(c.clock.Now())
	}

	c.snapshotMu.Lock()
	c.snapshot = snapshot
	c.snapshotMu.Unlock()
}
