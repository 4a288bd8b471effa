package miniaudio

import "sync"

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

// playbackQueue buffers audio for the device callback. A mark fires once all
// audio queued before it has been handed to the device.
type playbackQueue struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

func (q *playbackQueue) push(audio []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = append(q.audio, audio...)
}

func (q *playbackQueue) mark(name string, callback func(string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.marks = append(q.marks, playbackMark{name: name, position: len(q.audio), callback: callback})
}

// clear drops queued audio and pending marks without firing them.
func (q *playbackQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = nil
	q.marks = nil
}

// read fills out with queued audio, padding with silence, and fires the
// marks that were passed. Marks run on their own goroutine so the device
// callback never blocks on them.
func (q *playbackQueue) read(out []byte) {
	q.mu.Lock()
	n := copy(out, q.audio)
	clear(out[n:])
	q.audio = q.audio[n:]
	if len(q.audio) == 0 {
		q.audio = nil
	}

	passed := 0
	for i := range q.marks {
		if q.marks[i].position <= n {
			passed++
			continue
		}
		q.marks[i].position -= n
	}
	fired := q.marks[:passed]
	q.marks = q.marks[passed:]
	q.mu.Unlock()

	if len(fired) == 0 {
		return
	}
	go func() {
		for _, mark := range fired {
			if mark.callback != nil {
				mark.callback(mark.name)
			}
		}
	}()
}

func (q *playbackQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.audio)
}
