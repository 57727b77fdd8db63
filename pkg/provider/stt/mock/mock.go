// Package mock provides a test double for the stt package interfaces.
//
// Use Provider to feed a controlled transcript to code under test and to
// inspect which clips and configs were submitted.
//
// Example:
//
//	p := &mock.Provider{Result: types.Transcript{Text: "factura para ruc"}}
//	tr, _ := p.Transcribe(ctx, clip, stt.TranscribeConfig{Language: "es"})
package mock

import (
	"context"
	"sync"

	"github.com/tinredperu/jack/pkg/provider/stt"
	"github.com/tinredperu/jack/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Clip is the audio clip passed to Transcribe.
	Clip types.AudioClip
	// Cfg is the TranscribeConfig passed to Transcribe.
	Cfg stt.TranscribeConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from every Transcribe call when Err is nil.
	Result types.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(_ context.Context, clip types.AudioClip, cfg stt.TranscribeConfig) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Clip: clip, Cfg: cfg})
	if p.Err != nil {
		return types.Transcript{}, p.Err
	}
	return p.Result, nil
}

// CallCount returns the number of recorded Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
