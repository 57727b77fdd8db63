// Package orchestrator is the dialogue engine behind Jack.
//
// Every inbound message runs through a fixed priority pipeline: the audio
// gate, the authentication gate, the terms gate, context hydration, the
// client-reconfirmation branch, the confirmation branch, the active-emission
// branch, and finally intent classification with routing to the emission flow
// or the informational handlers. The pipeline runs inside [session.Store.Do],
// so one caller's messages are strictly serialized while different callers
// proceed in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/tinredperu/jack/internal/audit"
	"github.com/tinredperu/jack/internal/catalog"
	"github.com/tinredperu/jack/internal/dialog/extract"
	"github.com/tinredperu/jack/internal/dialog/intent"
	"github.com/tinredperu/jack/internal/hotctx"
	"github.com/tinredperu/jack/internal/observe"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
	"github.com/tinredperu/jack/internal/transcript"
	"github.com/tinredperu/jack/pkg/audio"
	"github.com/tinredperu/jack/pkg/provider/llm"
	"github.com/tinredperu/jack/pkg/provider/stt"
)

// Request is one inbound message. Audio, when present, is the raw OGG/Opus
// voice note payload; it takes precedence over Text.
type Request struct {
	Phone string
	Text  string
	Audio []byte
}

// Backend is the slice of the TinRed client the orchestrator needs. It is
// satisfied by [*tinred.Client].
type Backend interface {
	hotctx.CatalogueClient
	Identify(ctx context.Context, phone string) (tinred.Company, error)
	CheckClient(ctx context.Context, phone, document string) (string, error)
	Emit(ctx context.Context, req tinred.EmitRequest) (tinred.EmitResult, error)
}

// conversationRecorder is the optional backend slice for mirroring exchanges
// into TinRed's conversation log. [*tinred.Client] satisfies it; test doubles
// usually don't.
type conversationRecorder interface {
	RecordConversation(ctx context.Context, phone, message, reply string)
}

// Cancellation is recognised at any point of an emission, not only as a
// complete utterance.
var cancelRe = regexp.MustCompile(`(?i)\b(?:cancela(?:r|lo)?|anula(?:r|lo)?|olv[ií]da(?:lo)?|ya\s+no\s+quiero|salir)\b`)

// Orchestrator routes messages through the priority pipeline.
//
// All exported methods are safe for concurrent use; per-caller ordering is
// delegated to the session store.
type Orchestrator struct {
	sessions  session.Store
	backend   Backend
	prefetch  *hotctx.Prefetcher
	searcher  *catalog.Searcher
	speech    stt.Provider // nil disables the audio gate
	assistant llm.Provider // nil disables the LLM fallback
	archive   audit.Store  // nil disables emission archiving
	metrics   *observe.Metrics
	now       func() time.Time
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithSpeech enables voice note transcription.
func WithSpeech(p stt.Provider) Option {
	return func(o *Orchestrator) { o.speech = p }
}

// WithAssistant enables the LLM fallback for free-form questions.
func WithAssistant(p llm.Provider) Option {
	return func(o *Orchestrator) { o.assistant = p }
}

// WithArchive enables archiving of completed emissions. Archive failures are
// logged and never reach the user.
func WithArchive(s audit.Store) Option {
	return func(o *Orchestrator) { o.archive = s }
}

// WithMetrics overrides the metrics sink (default [observe.DefaultMetrics]).
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithContextMaxAge overrides the TinRed context freshness window.
func WithContextMaxAge(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.prefetch = hotctx.NewPrefetcher(o.backend, hotctx.WithMaxAge(d))
	}
}

// WithNow replaces the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator over the given session store and TinRed backend.
func New(sessions session.Store, backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		backend:  backend,
		prefetch: hotctx.NewPrefetcher(backend),
		searcher: catalog.NewSearcher(),
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle processes one message end to end and returns the reply text. The
// error return is reserved for infrastructure failures (cancelled context);
// every user-facing failure becomes a reply instead.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (string, error) {
	if req.Phone == "" {
		return "", fmt.Errorf("orchestrator: empty phone")
	}

	var reply string
	err := o.sessions.Do(ctx, req.Phone, func(sess *session.Session) error {
		reply = o.handleTurn(ctx, sess, req)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: %w", err)
	}
	return reply, nil
}

// handleTurn runs the priority pipeline with exclusive session access.
func (o *Orchestrator) handleTurn(ctx context.Context, sess *session.Session, req Request) string {
	channel := "text"
	text := req.Text

	// 1. Audio gate. Transcription failure stops the turn without mutating
	// the session.
	if len(req.Audio) > 0 {
		channel = "audio"
		transcribed, err := o.transcribe(ctx, sess, req.Audio)
		if err != nil {
			slog.Warn("orchestrator: transcription failed", "phone", sess.Phone, "error", err)
			o.metrics.RecordTurn(ctx, "audio_error", channel)
			return replyAudioFailed
		}
		text = transcribed
		slog.Info("orchestrator: voice note transcribed", "phone", sess.Phone, "chars", len(text))
	}
	if text == "" {
		return replyEmptyMessage
	}

	// 2. Auth gate.
	if !sess.Authenticated {
		return o.finish(ctx, sess, channel, "auth", text, o.authenticate(ctx, sess))
	}

	// 3. Terms gate.
	if !sess.TermsAccepted {
		return o.finish(ctx, sess, channel, "terms", text, o.acceptTerms(sess, text))
	}

	// 4. Context hydration, non-fatal.
	if err := o.prefetch.Ensure(ctx, sess); err != nil {
		slog.Warn("orchestrator: context load failed", "phone", sess.Phone, "error", err)
	}

	// 5. Client reconfirmation owes the user an answer before anything else.
	if sess.Emission != nil && sess.Emission.AwaitingReconfirmation {
		return o.finish(ctx, sess, channel, "reconfirm", text, o.reconfirmClient(ctx, sess, text))
	}

	// 6. Pending review screen.
	if sess.Emission != nil && sess.Emission.AwaitingConfirmation {
		return o.finish(ctx, sess, channel, "confirm", text, o.resolveConfirmation(ctx, sess, text))
	}

	// 7. Active emission: mine the message for missing slots.
	if sess.Emission != nil {
		return o.finish(ctx, sess, channel, "emission", text, o.continueEmission(ctx, sess, text))
	}

	// 8.+9. Emission-shaped data jumps straight into the flow; everything
	// else is classified and routed.
	it := intent.Classify(text, sess.Context)
	return o.finish(ctx, sess, channel, string(it), text, o.route(ctx, sess, it, text))
}

// finish records the turn metric, appends the exchange to the rolling history
// and returns the reply.
func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, channel, label, text, reply string) string {
	o.metrics.RecordTurn(ctx, label, channel)
	sess.AddMessage("user", text)
	sess.AddMessage("assistant", reply)

	// Mirror the exchange into TinRed's conversation log outside the turn.
	if rec, ok := o.backend.(conversationRecorder); ok {
		phone := sess.Phone
		go func() {
			logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			rec.RecordConversation(logCtx, phone, text, reply)
		}()
	}
	return reply
}

// route dispatches a classified message.
func (o *Orchestrator) route(ctx context.Context, sess *session.Session, it intent.Intent, text string) string {
	switch it {
	case intent.Emission:
		return o.startEmission(ctx, sess, text)
	case intent.Greeting:
		sess.ResetEmission()
		return o.greeting(sess)
	case intent.Negative:
		sess.ResetEmission()
		return "De acuerdo. 👍\n\n" + menuBody
	case intent.Affirmative:
		// An affirmative on a product detail view means "emit with this
		// product".
		if sess.Context == session.ContextProductDetail && sess.SelectedProduct != nil {
			return o.emitFromProduct(sess)
		}
		return o.menu()
	case intent.NumberSelection:
		return o.resolveSelection(sess, intent.SelectionNumber(text))
	case intent.QueryProducts:
		return o.listProducts(sess)
	case intent.ProductSearch:
		return o.searchProducts(sess, text)
	case intent.QueryClients:
		return o.listClients(sess)
	case intent.QueryHistory:
		return o.listHistory(sess)
	case intent.GeneralQuestion:
		return o.answerQuestion(ctx, sess, text)
	default:
		// A message carrying emission-shaped data (a document, items) starts
		// the flow even when no emission keyword was used.
		if x := extract.Extract(text); !x.Empty() {
			return o.startEmission(ctx, sess, text)
		}
		return o.menu()
	}
}

// transcribe decodes the voice note and runs STT plus the numeric/vocabulary
// post-processing. The company catalogue doubles as the recognition hint.
func (o *Orchestrator) transcribe(ctx context.Context, sess *session.Session, payload []byte) (string, error) {
	if o.speech == nil {
		return "", fmt.Errorf("no speech provider configured")
	}
	clip, err := audio.DecodeVoiceNote(payload)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	names := productNames(sess)
	result, err := o.speech.Transcribe(ctx, clip, stt.TranscribeConfig{
		Language: "es",
		Prompt:   sttPrompt(names),
	})
	if err != nil {
		o.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", err
	}

	pipeline := transcript.NewPipeline(transcript.WithVocabulary(names))
	return pipeline.Process(result.Text), nil
}

// authenticate resolves the phone against TinRed and, on success, hydrates
// the context and asks for terms acceptance.
func (o *Orchestrator) authenticate(ctx context.Context, sess *session.Session) string {
	company, err := o.backend.Identify(ctx, sess.Phone)
	if err != nil {
		if isNotIdentified(err) {
			slog.Info("orchestrator: phone not registered", "phone", sess.Phone)
			return replyNotRegistered
		}
		slog.Error("orchestrator: identify failed", "phone", sess.Phone, "error", err)
		return replyServiceDown
	}

	sess.Company = company
	sess.Authenticated = true
	sess.TermsAccepted = false

	if err := o.prefetch.Ensure(ctx, sess); err != nil {
		slog.Warn("orchestrator: initial context load failed", "phone", sess.Phone, "error", err)
	}
	return fmt.Sprintf(replyTermsPrompt, company.Name)
}

// acceptTerms handles the terms gate: affirmative accepts, negative ends the
// conversation, anything else re-asks.
func (o *Orchestrator) acceptTerms(sess *session.Session, text string) string {
	switch intent.Classify(text, session.ContextNone) {
	case intent.Affirmative:
		sess.TermsAccepted = true
		return o.menu()
	case intent.Negative:
		return replyTermsDeclined
	default:
		return fmt.Sprintf(replyTermsPrompt, sess.Company.Name)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func isNotIdentified(err error) bool {
	return errors.Is(err, tinred.ErrNotIdentified)
}

// productNames returns the cached catalogue names, or nil without context.
func productNames(sess *session.Session) []string {
	if sess.TinRed == nil {
		return nil
	}
	names := make([]string, 0, len(sess.TinRed.Products))
	for _, p := range sess.TinRed.Products {
		names = append(names, p.Name)
	}
	return names
}

// sttPrompt builds the whisper vocabulary hint: invoicing terms plus a slice
// of the catalogue.
func sttPrompt(names []string) string {
	prompt := "boleta, factura, DNI, RUC, comprobante, soles"
	for i, n := range names {
		if i >= 20 {
			break
		}
		prompt += ", " + n
	}
	return prompt
}
