package turntaking

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/audio"
)

func TestPlaybackEndsOnceWhenMarkReached(t *testing.T) {
	output := &fakeOutput{devices: &devices{}}
	player := NewPlaybackController(output)

	var ended atomic.Int32
	var result PlaybackResult
	duration, err := player.Play(wavReply(250*time.Millisecond), func(r PlaybackResult) {
		ended.Add(1)
		result = r
	})
	if err != nil {
		t.Fatalf("expected playback to start, got %v", err)
	}
	if duration != 250*time.Millisecond {
		t.Fatalf("expected 250ms queued, got %v", duration)
	}
	if !player.IsActive() {
		t.Fatalf("expected playback to be active")
	}

	output.drain()
	player.Stop()

	if got := ended.Load(); got != 1 {
		t.Fatalf("expected ended once, got %d", got)
	}
	if result.Interrupted || result.Err != nil {
		t.Fatalf("expected a clean end, got %+v", result)
	}
	if player.IsActive() {
		t.Fatalf("expected playback to be inactive")
	}
}

func TestPlaybackStopInterrupts(t *testing.T) {
	output := &fakeOutput{devices: &devices{}}
	player := NewPlaybackController(output)

	var results []PlaybackResult
	if _, err := player.Play(wavReply(time.Second), func(r PlaybackResult) { results = append(results, r) }); err != nil {
		t.Fatalf("expected playback to start, got %v", err)
	}

	if !player.Stop() {
		t.Fatalf("expected stop to report an active playback")
	}
	output.drain()

	if len(results) != 1 || !results[0].Interrupted {
		t.Fatalf("expected one interrupted end, got %+v", results)
	}
	if output.clears.Load() != 1 {
		t.Fatalf("expected the device buffer to be cleared")
	}
	if player.Stop() {
		t.Fatalf("expected second stop to find nothing")
	}
}

func TestPlaybackStopRacingMarkEndsOnce(t *testing.T) {
	for range 50 {
		output := &fakeOutput{devices: &devices{}}
		player := NewPlaybackController(output)

		var ended atomic.Int32
		if _, err := player.Play(wavReply(100*time.Millisecond), func(PlaybackResult) { ended.Add(1) }); err != nil {
			t.Fatalf("expected playback to start, got %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); output.drain() }()
		go func() { defer wg.Done(); player.Stop() }()
		wg.Wait()

		if got := ended.Load(); got != 1 {
			t.Fatalf("expected ended exactly once, got %d", got)
		}
	}
}

func TestPlaybackFailuresEndWithError(t *testing.T) {
	cases := map[string]struct {
		output  *fakeOutput
		payload []byte
	}{
		"undecodable":  {output: &fakeOutput{devices: &devices{}}, payload: []byte("garbage")},
		"device error": {output: &fakeOutput{devices: &devices{}, sendErr: errors.New("device lost")}, payload: wavReply(100 * time.Millisecond)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			player := NewPlaybackController(tc.output)

			var result PlaybackResult
			calls := 0
			_, err := player.Play(tc.payload, func(r PlaybackResult) { calls++; result = r })
			if !errors.Is(err, ErrPlaybackFailed) {
				t.Fatalf("expected ErrPlaybackFailed, got %v", err)
			}
			if calls != 1 || !errors.Is(result.Err, ErrPlaybackFailed) {
				t.Fatalf("expected one failed end, got %d calls with %+v", calls, result)
			}
			if player.IsActive() {
				t.Fatalf("expected playback to be inactive after failure")
			}
		})
	}
}

func TestPlaybackResamplesToOutputRate(t *testing.T) {
	output := &fakeOutput{devices: &devices{}}
	player := NewPlaybackController(output)

	builder := audio.NewWAVBuilder(8000)
	builder.Append(pcmFrame(1000, 800))
	if _, err := player.Play(builder.Bytes(), nil); err != nil {
		t.Fatalf("expected playback to start, got %v", err)
	}

	output.mu.Lock()
	sent := output.sent
	output.mu.Unlock()
	if sent < 3100 || sent > 3300 {
		t.Fatalf("expected about 1600 samples at 16kHz, got %d bytes", sent)
	}
}
