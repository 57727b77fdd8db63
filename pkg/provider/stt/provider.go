// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Jack's audio input is WhatsApp voice notes: short, complete clips rather
// than live streams. An STT provider therefore exposes a single batch
// operation that takes a fully decoded PCM clip and returns one transcript.
// Implementations wrap a local whisper.cpp model, a whisper-server instance,
// or any remote transcription API.
//
// Implementations must be safe for concurrent use; multiple voice notes from
// different sessions may be transcribed simultaneously.
package stt

import (
	"context"

	"github.com/tinredperu/jack/pkg/types"
)

// TranscribeConfig carries recognition hints for a single transcription.
type TranscribeConfig struct {
	// Language is the BCP-47 language tag for recognition (e.g. "es",
	// "es-PE"). An empty string lets the provider auto-detect, if supported.
	Language string

	// Prompt is an optional vocabulary hint injected into the decoder —
	// product names and invoicing terms improve recognition of domain words.
	// Providers without prompt support ignore it.
	Prompt string
}

// Provider is the abstraction over any batch STT backend.
//
// Transcribe must respect ctx cancellation and return promptly when the
// deadline passes. The clip must be 16-bit little-endian PCM; providers may
// reject sample rates they cannot handle.
type Provider interface {
	Transcribe(ctx context.Context, clip types.AudioClip, cfg TranscribeConfig) (types.Transcript, error)
}
