package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tinredperu/jack/internal/catalog"
	"github.com/tinredperu/jack/internal/hotctx"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
	"github.com/tinredperu/jack/pkg/provider/llm"
	"github.com/tinredperu/jack/pkg/types"
)

const (
	maxListedProducts = 15
	maxListedClients  = 15
	maxListedHistory  = 10
	llmHistoryTurns   = 6
)

// Canned-answer cues. The high-traffic questions never reach the LLM.
var (
	differenceRe = regexp.MustCompile(`(?i)\bdiferencia\b.*\b(?:factura|boleta)\b`)
	igvRe        = regexp.MustCompile(`(?i)\b(?:qu[eé]\s+es\s+(?:el\s+)?igv|igv)\b`)
	howToEmitRe  = regexp.MustCompile(`(?i)\bc[oó]mo\s+(?:se\s+)?(?:emito|emitir|facturo|facturar|funciona)\b`)
)

// greeting resets the view state and shows the menu.
func (o *Orchestrator) greeting(sess *session.Session) string {
	sess.Context = session.ContextNone
	sess.SearchResults = nil
	sess.SelectedProduct = nil
	return fmt.Sprintf("¡Hola! 👋 Soy *Jack*, el asistente de facturación de %s.\n\n%s",
		sess.Company.Name, menuBody)
}

func (o *Orchestrator) menu() string {
	return menuBody
}

// listProducts shows the first page of the catalogue and arms numbered
// selection.
func (o *Orchestrator) listProducts(sess *session.Session) string {
	products := cachedProducts(sess)
	if len(products) == 0 {
		return "No encontré productos registrados en tu catálogo. Puedes dictarme los productos directamente, por ejemplo: \"2 cuadernos a 15\"."
	}
	if len(products) > maxListedProducts {
		products = products[:maxListedProducts]
	}
	sess.ShowList(session.ContextProducts, products)

	var b strings.Builder
	b.WriteString("📦 *Tus productos:*\n\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s — S/ %.2f\n", i+1, p.Name, p.Price())
	}
	b.WriteString("\nEscribe el número de un producto para ver el detalle, o búscalo por nombre.")
	return b.String()
}

// searchProducts filters the cached catalogue and arms numbered selection on
// the result list.
func (o *Orchestrator) searchProducts(sess *session.Session, text string) string {
	products := cachedProducts(sess)
	if len(products) == 0 {
		return "Aún no tengo tu catálogo cargado. Intenta de nuevo en un momento."
	}

	results := o.searcher.Search(products, text)
	if len(results) == 0 {
		sess.ShowList(session.ContextNone, nil)
		return fmt.Sprintf("No encontré productos que coincidan con \"%s\". 🔍", catalog.Term(text))
	}
	sess.ShowList(session.ContextSearchResults, results)

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Encontré %d resultado(s):\n\n", len(results))
	for i, p := range results {
		fmt.Fprintf(&b, "%d. %s — S/ %.2f\n", i+1, p.Name, p.Price())
	}
	b.WriteString("\nEscribe el número para ver el detalle.")
	return b.String()
}

// listClients shows the company's known customers.
func (o *Orchestrator) listClients(sess *session.Session) string {
	if sess.TinRed == nil || len(sess.TinRed.Clients) == 0 {
		return "No encontré clientes registrados todavía."
	}
	clients := sess.TinRed.Clients
	if len(clients) > maxListedClients {
		clients = clients[:maxListedClients]
	}
	sess.Context = session.ContextClients
	sess.SearchResults = nil

	var b strings.Builder
	b.WriteString("👥 *Tus clientes:*\n\n")
	for i, c := range clients {
		fmt.Fprintf(&b, "%d. %s (%s %s)\n", i+1, c.Name, c.IDType, c.Document)
	}
	b.WriteString("\nPara emitirle a uno, dime por ejemplo: \"boleta para el 2\" o envíame su documento.")
	return b.String()
}

// listHistory shows today's in-session emissions plus the recent TinRed
// history and arms numbered selection.
func (o *Orchestrator) listHistory(sess *session.Session) string {
	var b strings.Builder
	empty := true

	if len(sess.Emissions) > 0 {
		empty = false
		b.WriteString("🕐 *Emitidos en esta conversación:*\n")
		for _, rec := range sess.Emissions {
			fmt.Fprintf(&b, "• %s %s — %s — S/ %.2f\n",
				rec.DocumentType.String(), rec.FullNumber, rec.ClientName, rec.Total)
		}
		b.WriteString("\n")
	}

	if sess.TinRed != nil && len(sess.TinRed.History) > 0 {
		empty = false
		entries := sess.TinRed.History
		if len(entries) > maxListedHistory {
			entries = entries[:maxListedHistory]
		}
		b.WriteString("📄 *Últimos comprobantes:*\n")
		for i, h := range entries {
			fmt.Fprintf(&b, "%d. %s %s — %s — S/ %.2f\n",
				i+1, h.DocumentType.String(), h.FullNumber(), h.ClientName, h.TotalAmount())
		}
		b.WriteString("\nEscribe el número para ver el detalle.")
	}

	if empty {
		return "Todavía no has emitido comprobantes. Escribe \"emitir boleta\" para empezar. 🚀"
	}
	sess.Context = session.ContextHistory
	sess.SearchResults = nil
	return b.String()
}

// resolveSelection maps a bare number onto whatever list is on screen.
func (o *Orchestrator) resolveSelection(sess *session.Session, n int) string {
	switch sess.Context {
	case session.ContextProducts, session.ContextSearchResults:
		if n < 1 || n > len(sess.SearchResults) {
			return fmt.Sprintf("Solo hay %d opciones en la lista. Elige un número válido.", len(sess.SearchResults))
		}
		return o.productDetail(sess, sess.SearchResults[n-1])

	case session.ContextHistory:
		if sess.TinRed == nil || n < 1 || n > len(sess.TinRed.History) || n > maxListedHistory {
			return "Ese número no está en la lista de comprobantes."
		}
		return historyDetail(sess.TinRed.History[n-1])

	case session.ContextClients:
		if sess.TinRed == nil || n < 1 || n > len(sess.TinRed.Clients) || n > maxListedClients {
			return "Ese número no está en la lista de clientes."
		}
		c := sess.TinRed.Clients[n-1]
		return fmt.Sprintf("👤 %s\n%s: %s\n\nPara emitirle un comprobante, envíame su documento junto con los productos.",
			c.Name, c.IDType, c.Document)

	default:
		return menuBody
	}
}

// productDetail shows one product and offers the emit-from-catalogue
// shortcut.
func (o *Orchestrator) productDetail(sess *session.Session, p tinred.Product) string {
	sess.SelectProduct(p)
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *%s*\n", p.Name)
	if p.Code != "" {
		fmt.Fprintf(&b, "Código: %s\n", p.Code)
	}
	if p.Unit != "" {
		fmt.Fprintf(&b, "Unidad: %s\n", p.Unit)
	}
	fmt.Fprintf(&b, "Precio: S/ %.2f\n\n¿Deseas emitir un comprobante con este producto? (sí/no)", p.Price())
	return b.String()
}

// emitFromProduct seeds the emission with the focused product and asks for
// the document type.
func (o *Orchestrator) emitFromProduct(sess *session.Session) string {
	p := sess.SelectedProduct
	sess.PendingItems = append(sess.PendingItems, session.InvoiceItem{
		Description: p.Name,
		Quantity:    1,
		UnitPrice:   p.Price(),
	})
	sess.Context = session.ContextNone
	sess.SelectedProduct = nil
	return fmt.Sprintf("Perfecto, anoté *%s* (S/ %.2f). ¿Emitimos una *Factura* o una *Boleta*?", p.Name, p.Price())
}

// answerQuestion serves canned answers for the common questions and falls
// back to the LLM for everything else.
func (o *Orchestrator) answerQuestion(ctx context.Context, sess *session.Session, text string) string {
	switch {
	case differenceRe.MatchString(text):
		return cannedDifference
	case howToEmitRe.MatchString(text):
		return cannedHowToEmit
	case igvRe.MatchString(text):
		return cannedIGV
	}
	return o.llmFallback(ctx, sess, text)
}

// llmFallback asks the configured model, grounding it with the company
// context block and the last few turns.
func (o *Orchestrator) llmFallback(ctx context.Context, sess *session.Session, text string) string {
	if o.assistant == nil {
		return menuBody
	}

	recent := sess.RecentHistory(llmHistoryTurns)
	messages := make([]types.Message, 0, len(recent)+1)
	messages = append(messages, recent...)
	messages = append(messages, types.Message{Role: "user", Content: text})

	res, err := o.assistant.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: hotctx.FormatSystemPrompt(sess.Company, sess.TinRed),
		Messages:     messages,
		Temperature:  0.3,
		MaxTokens:    300,
	})
	if err != nil {
		slog.Warn("orchestrator: llm fallback failed", "phone", sess.Phone, "error", err)
		o.metrics.RecordProviderError(ctx, "llm", "complete")
		return menuBody
	}
	if res.Content == "" {
		return menuBody
	}
	return res.Content
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func cachedProducts(sess *session.Session) []tinred.Product {
	if sess.TinRed == nil {
		return nil
	}
	return sess.TinRed.Products
}

func historyDetail(h tinred.HistoryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📄 *%s %s*\n", h.DocumentType.String(), h.FullNumber())
	fmt.Fprintf(&b, "Fecha: %s\nCliente: %s (%s %s)\n", h.IssuedAt, h.ClientName, h.ClientIDType, h.ClientDocument)
	if h.Description != "" {
		fmt.Fprintf(&b, "Detalle: %s x %s\n", h.Quantity, h.Description)
	}
	fmt.Fprintf(&b, "Total: S/ %.2f", h.TotalAmount())
	return b.String()
}
