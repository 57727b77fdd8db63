package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinredperu/jack/internal/audit"
	"github.com/tinredperu/jack/internal/dialog/anomaly"
	"github.com/tinredperu/jack/internal/dialog/extract"
	"github.com/tinredperu/jack/internal/dialog/intent"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

// barePriceRe matches a message that is nothing but a price ("20", "S/ 3.50",
// "15 soles"). While unpriced items are pending it is the answer to "¿a qué
// precio?".
var barePriceRe = regexp.MustCompile(`(?i)^\s*(?:s/\.?\s*)?(\d{1,4}(?:[.,]\d{1,2})?)\s*(?:soles)?\s*$`)

// startEmission opens the emission flow from a fresh message.
func (o *Orchestrator) startEmission(ctx context.Context, sess *session.Session, text string) string {
	e := sess.EnsureEmission()
	extract.Apply(e, extract.Extract(text))
	return o.advanceEmission(ctx, sess)
}

// continueEmission mines a message sent during an open emission.
func (o *Orchestrator) continueEmission(ctx context.Context, sess *session.Session, text string) string {
	if cancelRe.MatchString(text) || intent.Classify(text, sess.Context) == intent.Negative {
		sess.ResetEmission()
		return replyCancelled
	}

	e := sess.Emission

	// A bare price answers the pending "¿a qué precio?" question and applies
	// to every unpriced item.
	if m := barePriceRe.FindStringSubmatch(text); m != nil && hasUnpriced(e) {
		price, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		for i := range e.Items {
			if !e.Items[i].Priced() {
				e.Items[i].UnitPrice = price
			}
		}
		return o.advanceEmission(ctx, sess)
	}

	extract.Apply(e, extract.Extract(text))
	return o.advanceEmission(ctx, sess)
}

// reconfirmClient handles the branch after a failed client validation: the
// next message should carry a corrected document.
func (o *Orchestrator) reconfirmClient(ctx context.Context, sess *session.Session, text string) string {
	if cancelRe.MatchString(text) || intent.Classify(text, sess.Context) == intent.Negative {
		sess.ResetEmission()
		return replyCancelled
	}

	e := sess.Emission
	digits := extract.CleanDigits(text)
	switch {
	case extract.ValidRUC(digits):
		e.ClientDocument = digits
		e.ClientIDType = tinred.IDRUC
	case extract.ValidDNI(digits):
		e.ClientDocument = digits
		e.ClientIDType = tinred.IDDNI
		if e.DocumentType == "" {
			e.DocumentType = tinred.DocBoleta
		}
	default:
		return replyReconfirmAgain
	}

	e.ClientValidated = false
	e.ClientName = ""
	e.AwaitingReconfirmation = false
	return o.advanceEmission(ctx, sess)
}

// resolveConfirmation handles the review screen answer: yes emits, no resets,
// anything else is treated as a data amendment.
func (o *Orchestrator) resolveConfirmation(ctx context.Context, sess *session.Session, text string) string {
	e := sess.Emission
	switch intent.Classify(text, sess.Context) {
	case intent.Affirmative:
		return o.executeEmission(ctx, sess)
	case intent.Negative:
		sess.ResetEmission()
		return replyCancelled
	default:
		e.AwaitingConfirmation = false
		return o.continueEmission(ctx, sess, text)
	}
}

// advanceEmission runs the collection state machine one step: validate the
// client if needed, resolve prices from the catalogue, then either show the
// review screen or ask for the most pressing missing slot.
func (o *Orchestrator) advanceEmission(ctx context.Context, sess *session.Session) string {
	e := sess.Emission
	o.resolvePrices(sess)

	// Client validation precedes the review; emission never happens against
	// an unvalidated document.
	if e.ClientDocument != "" && !e.ClientValidated {
		name, err := o.backend.CheckClient(ctx, sess.Phone, e.ClientDocument)
		switch {
		case err == nil:
			e.ClientName = name
			e.ClientValidated = true
		case errors.Is(err, tinred.ErrClientNotFound):
			e.AwaitingReconfirmation = true
			return replyClientNotFound(e)
		default:
			slog.Error("orchestrator: client validation failed", "phone", sess.Phone, "error", err)
			return replyServiceDown
		}
	}

	if e.Ready() {
		e.AwaitingConfirmation = true
		return o.reviewScreen(sess)
	}
	return askNextSlot(e)
}

// resolvePrices fills unpriced items whose description fuzzy-matches a
// catalogue entry with a known price.
func (o *Orchestrator) resolvePrices(sess *session.Session) {
	e := sess.Emission
	if sess.TinRed == nil || len(sess.TinRed.Products) == 0 {
		return
	}
	for i := range e.Items {
		if e.Items[i].Priced() {
			continue
		}
		if p, ok := o.searcher.Best(sess.TinRed.Products, e.Items[i].Description); ok && p.Price() > 0 {
			e.Items[i].Description = p.Name
			e.Items[i].UnitPrice = p.Price()
		}
	}
}

// executeEmission performs the issuance call and terminal bookkeeping.
func (o *Orchestrator) executeEmission(ctx context.Context, sess *session.Session) string {
	e := sess.Emission
	start := o.now()

	req := tinred.EmitRequest{
		Company:      sess.Company,
		DocumentType: e.DocumentType,
		Currency:     e.Currency,
		ClientIDType: e.ClientIDType,
		ClientNumber: e.ClientDocument,
		Lines:        emitLines(e.Items),
	}

	res, err := o.backend.Emit(ctx, req)
	seconds := o.now().Sub(start).Seconds()
	if err != nil {
		sess.ResetEmission()
		o.metrics.RecordEmission(ctx, "error", seconds)
		if errors.Is(err, tinred.ErrEmissionRejected) {
			return fmt.Sprintf(replyEmissionRejected, rejectionMessage(err))
		}
		slog.Error("orchestrator: emission failed", "phone", sess.Phone, "error", err)
		return replyServiceDown
	}
	o.metrics.RecordEmission(ctx, "ok", seconds)

	rec := session.EmissionRecord{
		FullNumber:     res.FullNumber(),
		DocumentType:   e.DocumentType,
		ClientName:     e.ClientName,
		ClientDocument: e.ClientDocument,
		Total:          e.Total(),
		PDF:            res.PDF,
		EmittedAt:      o.now(),
	}
	reply := replyEmitted(e, rec)
	o.archiveEmission(ctx, sess, rec)
	sess.RecordEmission(rec)
	return reply
}

// archiveEmission appends the completed emission to the audit store. Failures
// are logged only; the user already has their document.
func (o *Orchestrator) archiveEmission(ctx context.Context, sess *session.Session, rec session.EmissionRecord) {
	if o.archive == nil {
		return
	}
	lines := make([]audit.Line, len(sess.Emission.Items))
	for i, it := range sess.Emission.Items {
		lines[i] = audit.Line{Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	err := o.archive.Append(ctx, &audit.Record{
		Phone:          sess.Phone,
		CompanyID:      sess.Company.ID,
		CompanyName:    sess.Company.Name,
		DocumentType:   string(rec.DocumentType),
		FullNumber:     rec.FullNumber,
		ClientName:     rec.ClientName,
		ClientDocument: rec.ClientDocument,
		Total:          rec.Total,
		Currency:       sess.Emission.Currency,
		Lines:          lines,
		EmittedAt:      rec.EmittedAt,
	})
	if err != nil {
		slog.Error("orchestrator: emission archive failed", "number", rec.FullNumber, "error", err)
	}
}

// reviewScreen renders the confirmation summary, anomaly warnings included.
func (o *Orchestrator) reviewScreen(sess *session.Session) string {
	e := sess.Emission
	var b strings.Builder

	fmt.Fprintf(&b, "📋 *Resumen de tu %s*\n\n", strings.ToLower(e.DocumentType.String()))
	fmt.Fprintf(&b, "Cliente: %s\n%s: %s\n\n", e.ClientName, e.ClientIDType, e.ClientDocument)
	for _, it := range e.Items {
		fmt.Fprintf(&b, "• %d x %s — S/ %.2f c/u = S/ %.2f\n", it.Quantity, it.Description, it.UnitPrice, it.Subtotal())
	}

	total := e.Total()
	igv := total * 18 / 118
	fmt.Fprintf(&b, "\nSubtotal: S/ %.2f\nIGV (18%%): S/ %.2f\n*Total: S/ %.2f*\n", total-igv, igv, total)

	for _, warning := range anomaly.Check(e, sess.TinRed) {
		b.WriteString("\n" + warning)
	}

	b.WriteString("\n¿Confirmas la emisión? (sí/no)")
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// askNextSlot asks the most pressing question for an incomplete emission:
// prices for captured items first, then the document type, the client, and
// finally the items themselves.
func askNextSlot(e *session.EmissionData) string {
	if hasUnpriced(e) {
		var names []string
		for _, it := range e.Items {
			if !it.Priced() {
				names = append(names, fmt.Sprintf("%d %s", it.Quantity, it.Description))
			}
		}
		return fmt.Sprintf("Anoté: %s. ¿A qué precio unitario? (ej. \"20\" o \"S/ 3.50\")", strings.Join(names, ", "))
	}
	if e.DocumentType == "" {
		return "¿Deseas emitir una *Factura* o una *Boleta*?"
	}
	if e.ClientDocument == "" {
		if e.DocumentType == tinred.DocFactura {
			return "¿Cuál es el *RUC* del cliente? (11 dígitos)"
		}
		return "¿Cuál es el *DNI* del cliente? (8 dígitos)"
	}
	return "¿Qué productos incluyo? Por ejemplo: \"2 cuadernos a 15, 5 lapiceros a 3\""
}

func hasUnpriced(e *session.EmissionData) bool {
	for _, it := range e.Items {
		if !it.Priced() {
			return true
		}
	}
	return false
}

func emitLines(items []session.InvoiceItem) []tinred.EmitLine {
	lines := make([]tinred.EmitLine, len(items))
	for i, it := range items {
		lines[i] = tinred.EmitLine{Quantity: it.Quantity, Description: it.Description, UnitPrice: it.UnitPrice}
	}
	return lines
}

// replyClientNotFound asks for a corrected document, echoing captured items
// so the user knows nothing is lost.
func replyClientNotFound(e *session.EmissionData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "No encontré el %s %s en SUNAT. 🔍\n", e.ClientIDType, e.ClientDocument)
	if len(e.Items) > 0 {
		b.WriteString("Tus productos siguen anotados:\n")
		for _, it := range e.Items {
			fmt.Fprintf(&b, "• %d x %s\n", it.Quantity, it.Description)
		}
	}
	b.WriteString("Envíame el número corregido, o escribe \"cancelar\".")
	return b.String()
}

// replyEmitted reports the terminal success: serie-numero plus the PDF link.
func replyEmitted(e *session.EmissionData, rec session.EmissionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ ¡%s emitida!\n\nNúmero: *%s*\nCliente: %s\nTotal: S/ %.2f\n",
		e.DocumentType.String(), rec.FullNumber, rec.ClientName, rec.Total)
	if rec.PDF != "" {
		fmt.Fprintf(&b, "PDF: %s\n", rec.PDF)
	}
	b.WriteString("\n¿Necesitas algo más?")
	return b.String()
}

// rejectionMessage strips the sentinel prefix from a TinRed rejection so only
// the back-office message reaches the user.
func rejectionMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
