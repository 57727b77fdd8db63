package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotOgg is returned when the payload does not start with an OGG capture
// pattern.
var ErrNotOgg = errors.New("audio: not an ogg stream")

const (
	oggCapture    = "OggS"
	oggHeaderSize = 27

	// headerTypeContinued marks a page whose first segment continues the last
	// packet of the previous page.
	headerTypeContinued = 0x01
)

// oggPackets extracts the logical packets from a single-stream OGG container.
// Packets spanning page boundaries are reassembled; CRC checking is skipped
// because the payload already survived transport checksums.
func oggPackets(data []byte) ([][]byte, error) {
	if len(data) < oggHeaderSize || string(data[:4]) != oggCapture {
		return nil, ErrNotOgg
	}

	var packets [][]byte
	var pending []byte

	off := 0
	for off+oggHeaderSize <= len(data) {
		if string(data[off:off+4]) != oggCapture {
			return nil, fmt.Errorf("audio: bad ogg capture at offset %d", off)
		}
		headerType := data[off+5]
		nsegs := int(data[off+26])
		lacingEnd := off + oggHeaderSize + nsegs
		if lacingEnd > len(data) {
			return nil, errors.New("audio: truncated ogg lacing table")
		}
		lacing := data[off+oggHeaderSize : lacingEnd]

		if headerType&headerTypeContinued == 0 && len(pending) > 0 {
			// Previous packet never terminated; emit what we have.
			packets = append(packets, pending)
			pending = nil
		}

		body := lacingEnd
		for _, l := range lacing {
			seg := int(l)
			if body+seg > len(data) {
				return nil, errors.New("audio: truncated ogg page body")
			}
			pending = append(pending, data[body:body+seg]...)
			body += seg
			// A lacing value below 255 terminates the packet.
			if seg < 255 {
				packets = append(packets, pending)
				pending = nil
			}
		}
		off = body
	}
	if len(pending) > 0 {
		packets = append(packets, pending)
	}
	return packets, nil
}

// isOpusHeader reports whether the packet is an OpusHead or OpusTags metadata
// packet rather than audio.
func isOpusHeader(packet []byte) bool {
	return bytes.HasPrefix(packet, []byte("OpusHead")) || bytes.HasPrefix(packet, []byte("OpusTags"))
}

// opusHeadChannels reads the channel count out of an OpusHead packet,
// defaulting to 1 when the packet is malformed.
func opusHeadChannels(packet []byte) int {
	if len(packet) < 10 || !bytes.HasPrefix(packet, []byte("OpusHead")) {
		return 1
	}
	if ch := int(packet[9]); ch == 1 || ch == 2 {
		return ch
	}
	return 1
}

// opusHeadPreSkip reads the pre-skip sample count (at 48 kHz) from an
// OpusHead packet.
func opusHeadPreSkip(packet []byte) int {
	if len(packet) < 12 || !bytes.HasPrefix(packet, []byte("OpusHead")) {
		return 0
	}
	return int(binary.LittleEndian.Uint16(packet[10:12]))
}
