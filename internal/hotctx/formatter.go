package hotctx

import (
	"fmt"
	"strings"

	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

// Caps keep the grounding block inside a sane prompt budget. The catalogue is
// the largest section and gets the most room.
const (
	maxPromptProducts = 30
	maxPromptClients  = 20
	maxPromptHistory  = 10
)

// persona is the fixed opening of every fallback prompt. Replies must stay
// short because they travel back over WhatsApp.
const persona = `Eres Jack, el asistente de facturación electrónica de TinRed en Perú. ` +
	`Ayudas a pequeños comerciantes a emitir Facturas y Boletas electrónicas registradas en SUNAT. ` +
	`Respondes siempre en español, en mensajes cortos y claros aptos para WhatsApp. ` +
	`Nunca inventes productos, precios ni clientes: usa únicamente los datos del negocio listados abajo. ` +
	`Si el usuario quiere emitir un comprobante, guíalo para que indique el documento del cliente (DNI o RUC) y los productos con cantidades.`

// FormatSystemPrompt builds the LLM fallback system prompt: the Jack persona,
// the company line and the business data block. Empty sections are omitted
// entirely rather than rendering as empty headers.
//
// The formatter is pure: it performs no I/O and is safe for concurrent use.
func FormatSystemPrompt(company tinred.Company, uc *session.UserContext) string {
	var sb strings.Builder
	sb.WriteString(persona)

	if company.Name != "" {
		fmt.Fprintf(&sb, "\n\nAtiendes al negocio: %s.", company.Name)
	}

	if block := FormatContextBlock(uc); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}

	return sb.String()
}

// FormatContextBlock renders the loaded TinRed data as a compact grounding
// block. Returns an empty string when there is nothing to ground on.
func FormatContextBlock(uc *session.UserContext) string {
	if uc == nil {
		return ""
	}

	var sb strings.Builder

	// ── Catalogue ─────────────────────────────────────────────────────────────
	if len(uc.Products) > 0 {
		sb.WriteString("## Productos del negocio\n")
		sb.WriteString(formatProducts(uc.Products, maxPromptProducts))
	}

	// ── Clients ───────────────────────────────────────────────────────────────
	if len(uc.Clients) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## Clientes registrados\n")
		sb.WriteString(formatClients(uc.Clients, maxPromptClients))
	}

	// ── Recent emissions ──────────────────────────────────────────────────────
	if len(uc.History) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## Comprobantes recientes\n")
		sb.WriteString(formatHistory(uc.History, maxPromptHistory))
	}

	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func formatProducts(products []tinred.Product, limit int) string {
	if len(products) > limit {
		products = products[:limit]
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		line := fmt.Sprintf("- %s", p.Name)
		if p.Unit != "" {
			line += fmt.Sprintf(" (%s)", p.Unit)
		}
		if p.Price() > 0 {
			line += fmt.Sprintf(": S/ %.2f", p.Price())
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatClients(clients []tinred.Customer, limit int) string {
	if len(clients) > limit {
		clients = clients[:limit]
	}
	lines := make([]string, 0, len(clients))
	for _, c := range clients {
		line := fmt.Sprintf("- %s", c.Name)
		if c.Document != "" {
			line += fmt.Sprintf(" (%s %s)", c.IDType, c.Document)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatHistory(entries []tinred.HistoryEntry, limit int) string {
	if len(entries) > limit {
		entries = entries[:limit]
	}
	lines := make([]string, 0, len(entries))
	for _, h := range entries {
		lines = append(lines, fmt.Sprintf("- %s %s para %s: S/ %.2f (%s)",
			h.DocumentType, h.FullNumber(), h.ClientName, h.TotalAmount(), h.IssuedAt))
	}
	return strings.Join(lines, "\n")
}
