package audio

import (
	"encoding/binary"
	"sync"
)

// MaxLevel is the top of the loudness scale, matching the byte scale of
// browser analyser nodes the default thresholds were tuned against.
const MaxLevel = 255

// DefaultLevelWindow is the number of samples averaged by a LevelMeter.
const DefaultLevelWindow = 2048

// LevelMeter keeps a rolling window of the most recent 16-bit samples and
// reports their average magnitude on a 0-255 scale. Write is called from the
// device callback and Level from the sampling tick, so both lock.
type LevelMeter struct {
	mu     sync.Mutex
	window []int16
	next   int
	filled int
	sum    int64
}

func NewLevelMeter(window int) *LevelMeter {
	if window <= 0 {
		window = DefaultLevelWindow
	}
	return &LevelMeter{window: make([]int16, window)}
}

// Write feeds little-endian 16-bit PCM into the window.
func (m *LevelMeter) Write(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if m.filled == len(m.window) {
			m.sum -= magnitude(m.window[m.next])
		} else {
			m.filled++
		}
		m.window[m.next] = sample
		m.sum += magnitude(sample)
		m.next = (m.next + 1) % len(m.window)
	}
}

// Level returns the average magnitude in [0, MaxLevel].
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filled == 0 {
		return 0
	}
	avg := float64(m.sum) / float64(m.filled)
	return avg / 32768 * MaxLevel
}

func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.window)
	m.next = 0
	m.filled = 0
	m.sum = 0
}

func magnitude(s int16) int64 {
	if s < 0 {
		return -int64(s)
	}
	return int64(s)
}
