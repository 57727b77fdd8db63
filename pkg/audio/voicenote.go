package audio

import (
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/tinredperu/jack/pkg/types"
)

// Opus always decodes at 48 kHz; the STT target is 16 kHz mono.
const (
	opusSampleRate = 48000
	targetRate     = 16000

	// maxOpusFrame is the largest Opus frame: 120 ms at 48 kHz per channel.
	maxOpusFrame = opusSampleRate * 120 / 1000
)

// ErrNoAudio is returned when the container held no decodable audio packets.
var ErrNoAudio = errors.New("audio: no audio packets in voice note")

// DecodeVoiceNote converts an OGG/Opus voice note into a 16 kHz mono PCM
// clip. Individual corrupt packets are skipped; only a payload with no
// decodable audio at all is an error.
func DecodeVoiceNote(ogg []byte) (types.AudioClip, error) {
	packets, err := oggPackets(ogg)
	if err != nil {
		return types.AudioClip{}, err
	}

	channels := 1
	preSkip := 0
	var audio [][]byte

	var dec *gopus.Decoder
	for _, p := range packets {
		if isOpusHeader(p) {
			if ch := opusHeadChannels(p); dec == nil {
				channels = ch
				preSkip = opusHeadPreSkip(p)
			}
			continue
		}
		if len(p) == 0 {
			continue
		}
		if dec == nil {
			if dec, err = gopus.NewDecoder(opusSampleRate, channels); err != nil {
				return types.AudioClip{}, fmt.Errorf("audio: create opus decoder: %w", err)
			}
		}
		pcm, err := dec.Decode(p, maxOpusFrame, false)
		if err != nil {
			// Keep decoder state and move on; one bad packet is a blip, not a
			// lost message.
			continue
		}
		audio = append(audio, int16sToBytes(pcm))
	}
	if len(audio) == 0 {
		return types.AudioClip{}, ErrNoAudio
	}

	total := 0
	for _, a := range audio {
		total += len(a)
	}
	pcm := make([]byte, 0, total)
	for _, a := range audio {
		pcm = append(pcm, a...)
	}

	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if skip := preSkip * 2; skip > 0 && skip < len(pcm) {
		pcm = pcm[skip:]
	}
	pcm = ResampleMono16(pcm, opusSampleRate, targetRate)

	samples := len(pcm) / 2
	return types.AudioClip{
		PCM:        pcm,
		SampleRate: targetRate,
		Channels:   1,
		Duration:   time.Duration(samples) * time.Second / targetRate,
	}, nil
}
