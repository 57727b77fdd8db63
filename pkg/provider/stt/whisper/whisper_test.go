package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tinredperu/jack/pkg/provider/stt"
	"github.com/tinredperu/jack/pkg/types"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty URL is rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := New(""); err == nil {
			t.Fatal("New: expected error for empty serverURL")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("http://localhost:8080")
		if err != nil {
			t.Fatalf("New: unexpected error: %v", err)
		}
		if p.language != "es" {
			t.Fatalf("language = %q, want es", p.language)
		}
	})
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	clip := types.AudioClip{
		PCM:        make([]byte, 16000*2), // 1 second of silence at 16 kHz
		SampleRate: 16000,
		Channels:   1,
		Duration:   time.Second,
	}

	t.Run("posts wav and returns text", func(t *testing.T) {
		t.Parallel()

		var gotLanguage, gotPrompt string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/inference" {
				t.Errorf("path = %q, want /inference", r.URL.Path)
			}
			if err := r.ParseMultipartForm(8 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			gotLanguage = r.FormValue("language")
			gotPrompt = r.FormValue("prompt")

			f, _, err := r.FormFile("file")
			if err != nil {
				t.Fatalf("form file: %v", err)
			}
			defer f.Close()
			header := make([]byte, 44)
			if _, err := io.ReadFull(f, header); err != nil {
				t.Fatalf("read wav header: %v", err)
			}
			if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
				t.Error("body is not a RIFF/WAVE container")
			}
			if rate := binary.LittleEndian.Uint32(header[24:28]); rate != 16000 {
				t.Errorf("wav sample rate = %d, want 16000", rate)
			}

			json.NewEncoder(w).Encode(map[string]string{"text": " dos gaseosas a cinco soles "})
		}))
		defer srv.Close()

		p, err := New(srv.URL)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		tr, err := p.Transcribe(context.Background(), clip, stt.TranscribeConfig{
			Language: "es",
			Prompt:   "factura boleta gaseosa",
		})
		if err != nil {
			t.Fatalf("Transcribe: unexpected error: %v", err)
		}
		if tr.Text != "dos gaseosas a cinco soles" {
			t.Errorf("Text = %q, want trimmed transcript", tr.Text)
		}
		if gotLanguage != "es" {
			t.Errorf("language field = %q, want es", gotLanguage)
		}
		if gotPrompt == "" {
			t.Error("prompt field was not forwarded")
		}
	})

	t.Run("server error surfaces", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p, _ := New(srv.URL)
		if _, err := p.Transcribe(context.Background(), clip, stt.TranscribeConfig{}); err == nil {
			t.Fatal("Transcribe: expected error on HTTP 500")
		}
	})

	t.Run("empty clip is rejected", func(t *testing.T) {
		t.Parallel()
		p, _ := New("http://localhost:8080")
		if _, err := p.Transcribe(context.Background(), types.AudioClip{}, stt.TranscribeConfig{}); err == nil {
			t.Fatal("Transcribe: expected error for empty clip")
		}
	})
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
}
