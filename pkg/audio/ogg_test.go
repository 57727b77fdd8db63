package audio

import (
	"bytes"
	"errors"
	"testing"
)

// oggPage builds a minimal OGG page around the given packets. Each packet is
// laced independently; packets of 255 bytes or more get multi-segment lacing.
func oggPage(headerType byte, packets ...[]byte) []byte {
	var lacing []byte
	var body []byte
	for _, p := range packets {
		rest := len(p)
		for rest >= 255 {
			lacing = append(lacing, 255)
			rest -= 255
		}
		lacing = append(lacing, byte(rest))
		body = append(body, p...)
	}

	page := make([]byte, 27)
	copy(page, "OggS")
	page[5] = headerType
	page[26] = byte(len(lacing))
	page = append(page, lacing...)
	return append(page, body...)
}

func TestOggPackets(t *testing.T) {
	t.Parallel()

	t.Run("single page with two packets", func(t *testing.T) {
		t.Parallel()
		data := oggPage(0, []byte("first"), []byte("second!"))

		packets, err := oggPackets(data)
		if err != nil {
			t.Fatalf("oggPackets: %v", err)
		}
		if len(packets) != 2 {
			t.Fatalf("got %d packets, want 2", len(packets))
		}
		if string(packets[0]) != "first" || string(packets[1]) != "second!" {
			t.Errorf("packets = %q, %q", packets[0], packets[1])
		}
	})

	t.Run("packet spanning pages is reassembled", func(t *testing.T) {
		t.Parallel()
		// 255-byte first half forces a continuation lacing value.
		first := bytes.Repeat([]byte{0xAA}, 255)
		second := []byte("tail")

		// Page 1 built manually: one 255 lacing value with no terminator.
		page1 := make([]byte, 27)
		copy(page1, "OggS")
		page1[26] = 1
		page1 = append(page1, 255)
		page1 = append(page1, first...)

		page2 := oggPage(headerTypeContinued, second)
		data := append(page1, page2...)

		packets, err := oggPackets(data)
		if err != nil {
			t.Fatalf("oggPackets: %v", err)
		}
		if len(packets) != 1 {
			t.Fatalf("got %d packets, want 1 reassembled", len(packets))
		}
		if len(packets[0]) != 259 {
			t.Errorf("packet length = %d, want 259", len(packets[0]))
		}
	})

	t.Run("non-ogg payload", func(t *testing.T) {
		t.Parallel()
		if _, err := oggPackets([]byte("RIFF....WAVE")); !errors.Is(err, ErrNotOgg) {
			t.Fatalf("err = %v, want ErrNotOgg", err)
		}
	})

	t.Run("truncated page body", func(t *testing.T) {
		t.Parallel()
		data := oggPage(0, []byte("complete"))
		if _, err := oggPackets(data[:len(data)-3]); err == nil {
			t.Fatal("expected error for truncated body")
		}
	})
}

func TestOpusHeaderParsing(t *testing.T) {
	t.Parallel()

	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1   // version
	head[9] = 2   // channels
	head[10] = 56 // pre-skip low byte
	head[11] = 1  // pre-skip high byte: 256 + 56 = 312

	if !isOpusHeader(head) {
		t.Error("OpusHead not recognised")
	}
	if !isOpusHeader([]byte("OpusTags....")) {
		t.Error("OpusTags not recognised")
	}
	if isOpusHeader([]byte{0xFC, 0xFF, 0xFE}) {
		t.Error("audio packet misread as header")
	}

	if ch := opusHeadChannels(head); ch != 2 {
		t.Errorf("channels = %d, want 2", ch)
	}
	if skip := opusHeadPreSkip(head); skip != 312 {
		t.Errorf("preSkip = %d, want 312", skip)
	}
}
