package whisper

import "encoding/binary"

// samplesFromPCM turns the 16-bit little-endian PCM of a decoded voice note
// into the float32 samples whisper.cpp expects, scaled to [-1.0, 1.0]. A
// trailing odd byte is dropped.
func samplesFromPCM(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// monoSamples down-mixes interleaved multi-channel PCM to the single channel
// the model wants by averaging each frame. WhatsApp voice notes are already
// mono; the stereo path covers clips forwarded from other sources.
func monoSamples(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return samplesFromPCM(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(s) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
