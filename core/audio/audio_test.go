package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func constantPCM(value int16, samples int) []byte {
	out := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func TestWAVBuilderRoundTrip(t *testing.T) {
	builder := NewWAVBuilder(16000)
	first := constantPCM(1200, 160)
	second := constantPCM(-800, 160)
	builder.Append(first)
	builder.Append(second)

	if got, want := builder.Len(), len(first)+len(second); got != want {
		t.Fatalf("expected body length %d, got %d", want, got)
	}

	decoded, err := DecodeWAV(builder.Bytes())
	if err != nil {
		t.Fatalf("expected wav to decode, got %v", err)
	}
	if decoded.SampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", decoded.SampleRate)
	}
	if !bytes.Equal(decoded.Data, append(first, second...)) {
		t.Fatalf("expected decoded pcm to match appended chunks")
	}
}

func TestWAVBuilderHeaderSizes(t *testing.T) {
	builder := NewWAVBuilder(8000)
	builder.Append(constantPCM(1, 10))
	wav := builder.Bytes()

	if got := len(wav); got != wavHeaderSize+20 {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+20, got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 20 {
		t.Fatalf("expected data size 20, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != 56 {
		t.Fatalf("expected riff size 56, got %d", got)
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	builder := NewWAVBuilder(16000)
	wav := builder.Bytes()
	// patch to two channels and append one stereo frame
	binary.LittleEndian.PutUint16(wav[22:24], 2)
	frame := make([]byte, 4)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(int16(100)))
	binary.LittleEndian.PutUint16(frame[2:4], uint16(int16(300)))
	wav = append(wav, frame...)
	binary.LittleEndian.PutUint32(wav[40:44], 4)

	decoded, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("expected stereo wav to decode, got %v", err)
	}
	if len(decoded.Data) != 2 {
		t.Fatalf("expected one mono sample, got %d bytes", len(decoded.Data))
	}
	if got := int16(binary.LittleEndian.Uint16(decoded.Data)); got != 200 {
		t.Fatalf("expected averaged sample 200, got %d", got)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("not a wav file at all"), []byte("RIFF\x00\x00\x00\x00WAVE")} {
		if _, err := DecodeWAV(payload); !errors.Is(err, ErrInvalidWAV) {
			t.Fatalf("expected ErrInvalidWAV for %q, got %v", payload, err)
		}
	}
}

func TestLevelMeterAveragesMagnitude(t *testing.T) {
	meter := NewLevelMeter(4)
	if got := meter.Level(); got != 0 {
		t.Fatalf("expected empty meter to report 0, got %f", got)
	}

	meter.Write(constantPCM(-16384, 4))
	if got := meter.Level(); math.Abs(got-127.5) > 0.01 {
		t.Fatalf("expected half scale level 127.5, got %f", got)
	}

	// the window only keeps the newest samples
	meter.Write(constantPCM(0, 4))
	if got := meter.Level(); got != 0 {
		t.Fatalf("expected window to roll over to silence, got %f", got)
	}
}

func TestLevelMeterReset(t *testing.T) {
	meter := NewLevelMeter(8)
	meter.Write(constantPCM(8000, 8))
	meter.Reset()

	if got := meter.Level(); got != 0 {
		t.Fatalf("expected reset meter to report 0, got %f", got)
	}
}

func TestResampleChangesLength(t *testing.T) {
	pcm := constantPCM(500, 160)

	up := Resample(pcm, 16000, 48000)
	if got := len(up) / 2; got != 480 {
		t.Fatalf("expected 480 samples after upsampling, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(up[100:])); got != 500 {
		t.Fatalf("expected constant signal to stay 500, got %d", got)
	}

	if same := Resample(pcm, 16000, 16000); !bytes.Equal(same, pcm) {
		t.Fatalf("expected equal rates to return input unchanged")
	}
}

func TestEncodingInfoDuration(t *testing.T) {
	info := GetDefaultEncodingInfo()

	if got := info.Duration(32000); got != time.Second {
		t.Fatalf("expected one second for 32000 bytes, got %v", got)
	}
	if got := (EncodingInfo{}).Duration(100); got != 0 {
		t.Fatalf("expected zero duration for unset encoding, got %v", got)
	}
}
