package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

var ErrInvalidWAV = errors.New("invalid wav payload")

// WAVBuilder accumulates 16-bit mono PCM as it arrives so that finalizing an
// utterance only has to prepend the header.
type WAVBuilder struct {
	sampleRate int
	body       bytes.Buffer
}

func NewWAVBuilder(sampleRate int) *WAVBuilder {
	return &WAVBuilder{sampleRate: sampleRate}
}

func (b *WAVBuilder) Append(pcm []byte) {
	b.body.Write(pcm)
}

func (b *WAVBuilder) Len() int { return b.body.Len() }

// Bytes returns the complete WAV file.
func (b *WAVBuilder) Bytes() []byte {
	data := b.body.Bytes()
	out := make([]byte, wavHeaderSize+len(data))
	putWAVHeader(out, b.sampleRate, len(data))
	copy(out[wavHeaderSize:], data)
	return out
}

func putWAVHeader(out []byte, sampleRate, dataSize int) {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
}

// PCM is decoded 16-bit little-endian audio, downmixed to mono.
type PCM struct {
	SampleRate int
	Data       []byte
}

// DecodeWAV parses a RIFF/WAVE payload carrying 16-bit PCM. Unknown chunks are
// skipped and multi-channel audio is downmixed.
func DecodeWAV(payload []byte) (PCM, error) {
	if len(payload) < 12 || string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		return PCM{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		haveFormat    bool
	)

	offset := 12
	for offset+8 <= len(payload) {
		id := string(payload[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(payload[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(payload) {
			// Streaming encoders leave the data size unset; take what is there.
			end = len(payload)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return PCM{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if format := binary.LittleEndian.Uint16(payload[body : body+2]); format != 1 {
				return PCM{}, fmt.Errorf("%w: unsupported format %d", ErrInvalidWAV, format)
			}
			channels = int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(payload[body+14 : body+16]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return PCM{}, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			if bitsPerSample != 16 {
				return PCM{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitsPerSample)
			}
			if channels < 1 {
				return PCM{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
			}
			return PCM{SampleRate: sampleRate, Data: downmix(payload[body:end], channels)}, nil
		}

		// chunks are word aligned
		offset = end + size%2
	}

	return PCM{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

func downmix(data []byte, channels int) []byte {
	frameSize := channels * 2
	frames := len(data) / frameSize
	if channels == 1 {
		out := make([]byte, frames*2)
		copy(out, data)
		return out
	}

	out := make([]byte, frames*2)
	for i := range frames {
		var sum int
		for ch := range channels {
			at := i*frameSize + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(data[at : at+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}
