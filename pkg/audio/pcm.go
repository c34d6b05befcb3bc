package audio

import "math"

// Silence zeroes pcm in place. Zero-valued S16LE samples are digital silence,
// so no encoding step is needed.
func Silence(pcm []byte) {
	clear(pcm)
}

// IsSilence reports whether every byte of pcm is zero.
func IsSilence(pcm []byte) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}

// Sample reads the i-th little-endian int16 sample from pcm.
func Sample(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// PutSample writes s as the i-th little-endian int16 sample of pcm.
func PutSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

// PeakLevel returns the largest absolute sample value in pcm, normalised to
// [0, 1]. Odd trailing bytes are ignored.
func PeakLevel(pcm []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int32(Sample(pcm, i/2))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float64(peak) / 32768.0
}

// ToneGenerator produces a continuous sine tone as S16LE PCM, keeping phase
// across calls so consecutive frames join without clicks. Not safe for
// concurrent use; create one per stream.
type ToneGenerator struct {
	// Freq is the tone frequency in Hz.
	Freq float64

	// Amplitude in [0, 1]. Values outside the range are clamped by Fill.
	Amplitude float64

	phase float64
}

// Fill writes one frame of the tone into pcm at the given format. Interleaved
// channels all carry the same signal.
func (g *ToneGenerator) Fill(pcm []byte, f Format) {
	amp := g.Amplitude
	if amp > 1 {
		amp = 1
	} else if amp < 0 {
		amp = 0
	}
	step := 2 * math.Pi * g.Freq / float64(f.SampleRate)
	samples := len(pcm) / BytesPerSample
	for i := 0; i < samples; i += f.Channels {
		s := int16(amp * 32767 * math.Sin(g.phase))
		for ch := 0; ch < f.Channels && i+ch < samples; ch++ {
			PutSample(pcm, i+ch, s)
		}
		g.phase += step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}
