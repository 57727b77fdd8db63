// Package intent classifies incoming messages into Jack's closed intent set.
//
// Classification is regex-first: a priority-ordered table of precompiled
// Spanish patterns where the first match wins. The LLM is never consulted
// here; everything the patterns cannot place falls through to [Unknown] and
// the orchestrator decides what to do with it.
package intent

import (
	"regexp"
	"strings"

	"github.com/tinredperu/jack/internal/session"
)

// Intent is one of the closed set of message classifications.
type Intent string

const (
	Unknown         Intent = "unknown"
	Greeting        Intent = "greeting"
	Emission        Intent = "emission"
	Affirmative     Intent = "affirmative"
	Negative        Intent = "negative"
	QueryProducts   Intent = "query_products"
	QueryClients    Intent = "query_clients"
	QueryHistory    Intent = "query_history"
	ProductSearch   Intent = "product_search"
	NumberSelection Intent = "number_selection"
	GeneralQuestion Intent = "general_question"
)

// Pattern tables, compiled once at init. Accented and unaccented spellings are
// both accepted; WhatsApp users rarely type accents.
var (
	// Bare 1-3 digit numbers, optionally wrapped in selection phrasing
	// ("3", "el 3", "opcion 2"). Longer digit runs are documents, not
	// selections, and must fall through to the extractor.
	numberSelectionRe = regexp.MustCompile(`^\s*(?:el\s+|la\s+|n[uú]mero\s+|opci[oó]n\s+)?(\d{1,3})\s*$`)

	affirmativeRe = regexp.MustCompile(`(?i)^\s*(?:s[ií]|ok(?:ay)?|ya|dale|claro(?:\s+que\s+s[ií])?|por\s+supuesto|de\s+acuerdo|confirm(?:o|ar|ado)|correcto|exacto|afirmativo|est[aá]\s+bien|perfecto|procede[r]?|adelante|acepto)\s*[.!]*\s*$`)

	negativeRe = regexp.MustCompile(`(?i)^\s*(?:no+p?|nel|negativo|cancel(?:a|ar|alo|o)|anul(?:a|ar|alo)|olv[ií]d(?:alo|ate)|mejor\s+no|ya\s+no|as[ií]\s+no|det[eé]n(?:te)?|para|todav[ií]a\s+no)\s*[.!]*\s*$`)

	emissionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:emitir|emite(?:me)?|em[ií]teme)\b`),
		regexp.MustCompile(`(?i)\bfactur(?:ar|ame|[aá]me)\b`),
		regexp.MustCompile(`(?i)\b(?:hazme|haz|genera[r]?|saca[r]?(?:me)?|dame|necesito|quiero)\b.*\b(?:factura|boleta|comprobante)\b`),
		regexp.MustCompile(`(?i)\b(?:factura|boleta)\s+(?:para|a\s+nombre\s+de|con)\b`),
		regexp.MustCompile(`(?i)\bgenerar?\s+(?:un\s+)?comprobante\b`),
	}

	productSearchRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*busca[r]?\s+\S`),
		regexp.MustCompile(`(?i)\btienes?\s+\S`),
		regexp.MustCompile(`(?i)\bprecio\s+de(?:\s+la|\s+el)?\s+\S`),
		regexp.MustCompile(`(?i)\bcu[aá]nto\s+(?:cuesta|vale|est[aá])\b`),
		regexp.MustCompile(`(?i)\bvendes?\s+\S`),
	}

	queryProductsRe = regexp.MustCompile(`(?i)(?:^\s*productos?\s*$|\b(?:mis\s+productos|lista\s+de\s+productos|cat[aá]logo|qu[eé]\s+productos\s+(?:tengo|hay|vendo)|ver\s+(?:mis\s+)?productos)\b)`)

	queryClientsRe = regexp.MustCompile(`(?i)(?:^\s*clientes?\s*$|\b(?:mis\s+clientes|lista\s+de\s+clientes|ver\s+(?:mis\s+)?clientes|qu[eé]\s+clientes\s+tengo)\b)`)

	queryHistoryRe = regexp.MustCompile(`(?i)\b(?:historial|mis\s+(?:facturas|boletas|comprobantes)|comprobantes\s+emitidos|qu[eé]\s+he\s+emitido|[uú]ltim[oa]s\s+(?:facturas|boletas|comprobantes)|ventas\s+de\s+hoy)\b`)

	generalQuestionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*qu[eé]\s+es\b`),
		regexp.MustCompile(`(?i)^\s*c[oó]mo\s+\S`),
		regexp.MustCompile(`(?i)\bcu[aá]l\s+es\s+la\s+diferencia\b`),
		regexp.MustCompile(`(?i)\bdiferencia\s+entre\b`),
		regexp.MustCompile(`(?i)\bpara\s+qu[eé]\s+(?:sirve|es)\b`),
		regexp.MustCompile(`(?i)\bqu[eé]\s+es\s+el?\s+igv\b`),
	}

	greetingRe = regexp.MustCompile(`(?i)^\s*(?:hola+|buen(?:os|as)?\s*(?:d[ií]as|tardes|noches)?|hey|saludos|qu[eé]\s+tal|hi|hello)\s*[.!]*\s*$`)
)

// Classify places text into the intent set. active disambiguates bare
// numbers: they are selections only while a list or detail view is open,
// otherwise they fall through.
//
// First match in priority order wins; the order encodes which readings beat
// which ("no, cancela" must never be read as an emission request).
func Classify(text string, active session.ContextKind) Intent {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return Unknown
	}

	if numberSelectionRe.MatchString(msg) {
		if selectable(active) {
			return NumberSelection
		}
		return Unknown
	}
	if affirmativeRe.MatchString(msg) {
		return Affirmative
	}
	if negativeRe.MatchString(msg) {
		return Negative
	}
	for _, re := range emissionRes {
		if re.MatchString(msg) {
			return Emission
		}
	}
	for _, re := range productSearchRes {
		if re.MatchString(msg) {
			return ProductSearch
		}
	}
	if queryProductsRe.MatchString(msg) {
		return QueryProducts
	}
	if queryClientsRe.MatchString(msg) {
		return QueryClients
	}
	if queryHistoryRe.MatchString(msg) {
		return QueryHistory
	}
	for _, re := range generalQuestionRes {
		if re.MatchString(msg) {
			return GeneralQuestion
		}
	}
	if greetingRe.MatchString(msg) {
		return Greeting
	}
	return Unknown
}

// SelectionNumber extracts the 1-based number from a selection message.
// Returns 0 when the message is not a selection.
func SelectionNumber(text string) int {
	m := numberSelectionRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	return n
}

// selectable reports whether the active view resolves numbered replies.
func selectable(active session.ContextKind) bool {
	switch active {
	case session.ContextProducts, session.ContextSearchResults,
		session.ContextClients, session.ContextHistory, session.ContextProductDetail:
		return true
	default:
		return false
	}
}
