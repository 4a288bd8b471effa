package audio

import "encoding/binary"

// Resample converts 16-bit mono PCM between sample rates using linear
// interpolation. Good enough for speech playback; not for music.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}

	inSamples := len(pcm) / 2
	if inSamples == 0 {
		return nil
	}

	outSamples := int(int64(inSamples) * int64(toRate) / int64(fromRate))
	out := make([]byte, outSamples*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := range outSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		a := sampleAt(pcm, idx)
		b := a
		if idx+1 < inSamples {
			b = sampleAt(pcm, idx+1)
		}
		v := float64(a) + (float64(b)-float64(a))*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}
