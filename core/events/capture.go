package events

import "time"

const (
	// KindCaptureStarted identifies microphone acquisition.
	KindCaptureStarted Kind = "capture.started"
	// KindCaptureChunk identifies a chunk appended to the current utterance.
	KindCaptureChunk Kind = "capture.chunk"
	// KindCaptureStopped identifies microphone release.
	KindCaptureStopped Kind = "capture.stopped"
)

// CaptureStarted marks microphone acquisition.
type CaptureStarted struct{ Base }

// NewCaptureStarted creates a capture started event.
func NewCaptureStarted(at time.Time) CaptureStarted {
	return CaptureStarted{Base: NewBaseAt(KindCaptureStarted, at)}
}

// CaptureChunk carries the size of a chunk appended to the utterance.
type CaptureChunk struct {
	Base
	Index int
	Bytes int
}

// NewCaptureChunk creates a capture chunk event.
func NewCaptureChunk(at time.Time, index, bytes int) CaptureChunk {
	return CaptureChunk{Base: NewBaseAt(KindCaptureChunk, at), Index: index, Bytes: bytes}
}

// CaptureStopped marks microphone release.
type CaptureStopped struct {
	Base
	Chunks    int
	Discarded bool
}

// NewCaptureStopped creates a capture stopped event.
func NewCaptureStopped(at time.Time, chunks int, discarded bool) CaptureStopped {
	return CaptureStopped{Base: NewBaseAt(KindCaptureStopped, at), Chunks: chunks, Discarded: discarded}
}
