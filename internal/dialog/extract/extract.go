// Package extract pulls invoice slots out of free-form Spanish messages:
// the client document (DNI or RUC), the document type and the item lines
// with quantities and prices.
//
// Extraction is purely lexical. The document is matched first and stripped
// from the text so its digits can never be mistaken for a quantity; Spanish
// number words are normalised to digits before item matching.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

// minDNI rejects 8-digit runs that are too small to be a real DNI. Phone
// fragments and list positions fall below it.
const minDNI = 1_000_000

// Document is a client identity document found in a message.
type Document struct {
	Number string
	Type   tinred.IDType

	// Explicit is set when the user named the document kind ("dni 45678912").
	// Explicit documents may overwrite one already collected; loose digit
	// runs never do.
	Explicit bool
}

// Extraction is everything one message yielded.
type Extraction struct {
	Document     *Document
	DocumentType tinred.DocumentType // set only when factura/boleta was stated
	Items        []session.InvoiceItem

	// Currency is "USD" when a dollar token appeared, otherwise empty. The
	// emission itself defaults to PEN, so only the dollar case is reported.
	Currency string
}

// Empty reports whether nothing was extracted. A currency mention alone does
// not count: "cuánto está el dólar" must not open an emission.
func (x Extraction) Empty() bool {
	return x.Document == nil && x.DocumentType == "" && len(x.Items) == 0
}

var (
	// Separators inside the number are dots/dashes only; allowing spaces would
	// let the match swallow a following quantity ("dni 45678912 2 gaseosas").
	explicitDocRe = regexp.MustCompile(`(?i)\b(dni|ruc)\b[:.\s]*((?:\d[.\-]?){7,12}\d)`)
	looseRUCRe    = regexp.MustCompile(`\b(\d{11})\b`)
	looseDNIRe    = regexp.MustCompile(`\b(\d{8})\b`)

	facturaRe = regexp.MustCompile(`(?i)\bfactura\b`)
	boletaRe  = regexp.MustCompile(`(?i)\bboleta\b`)

	// A dollar mention switches the document currency; everything else stays
	// in soles.
	currencyUSDRe = regexp.MustCompile(`(?i)\bd[oó]lar(?:es)?\b|\busd\b|\$`)

	// Item patterns in priority order. Prices accept an optional marker
	// ("S/ 5", "S/. 5.50", "$ 500") and an optional currency word after the
	// amount ("5 soles", "500 dólares"); quantity-first forms win over
	// implied quantity 1.
	itemQtyAtPriceRe  = regexp.MustCompile(`(?i)^(\d{1,4})\s+(.+?)\s+a\s+(?:(?:s/\.?|\$)\s*)?(\d+(?:[.,]\d{1,2})?)(?:\s*(?:soles|d[oó]lares|usd))?(?:\s+cada\s+(?:un[oa]|1))?$`)
	itemAtPriceRe     = regexp.MustCompile(`(?i)^([\p{L}][\p{L}\d .\-]*?)\s+a\s+(?:(?:s/\.?|\$)\s*)?(\d+(?:[.,]\d{1,2})?)(?:\s*(?:soles|d[oó]lares|usd))?$`)
	itemQtyPorPriceRe = regexp.MustCompile(`(?i)^(\d{1,4})\s+(.+?)\s+por\s+(?:(?:s/\.?|\$)\s*)?(\d+(?:[.,]\d{1,2})?)(?:\s*(?:soles|d[oó]lares|usd))?$`)
	itemUnpricedRe    = regexp.MustCompile(`(?i)^(\d{1,4})\s+([\p{L}][\p{L}\d .\-]*)$`)

	segmentSplitRe = regexp.MustCompile(`\s*[,;\n]\s*`)

	// "… y 3 aguas" joins segments; RE2 has no lookahead, so the conjunction
	// is rewritten to a comma before splitting.
	conjunctionRe = regexp.MustCompile(`(?i)\s+y\s+(\d)`)
)

// numberWords maps standalone Spanish number words to digits. Applied before
// item matching so "dos gaseosas" parses like "2 gaseosas".
var numberWords = []struct {
	re    *regexp.Regexp
	digit string
}{
	{regexp.MustCompile(`(?i)\bmedia\s+docena\s+de\b`), "6"},
	{regexp.MustCompile(`(?i)\bmedia\s+docena\b`), "6"},
	{regexp.MustCompile(`(?i)\buna\s+docena\s+de\b`), "12"},
	{regexp.MustCompile(`(?i)\bdocena\s+de\b`), "12"},
	{regexp.MustCompile(`(?i)\bveinte\b`), "20"},
	{regexp.MustCompile(`(?i)\bdiecinueve\b`), "19"},
	{regexp.MustCompile(`(?i)\bdieciocho\b`), "18"},
	{regexp.MustCompile(`(?i)\bdiecisiete\b`), "17"},
	{regexp.MustCompile(`(?i)\bdiecis[eé]is\b`), "16"},
	{regexp.MustCompile(`(?i)\bquince\b`), "15"},
	{regexp.MustCompile(`(?i)\bcatorce\b`), "14"},
	{regexp.MustCompile(`(?i)\btrece\b`), "13"},
	{regexp.MustCompile(`(?i)\bdoce\b`), "12"},
	{regexp.MustCompile(`(?i)\bonce\b`), "11"},
	{regexp.MustCompile(`(?i)\bdiez\b`), "10"},
	{regexp.MustCompile(`(?i)\bnueve\b`), "9"},
	{regexp.MustCompile(`(?i)\bocho\b`), "8"},
	{regexp.MustCompile(`(?i)\bsiete\b`), "7"},
	{regexp.MustCompile(`(?i)\bseis\b`), "6"},
	{regexp.MustCompile(`(?i)\bcinco\b`), "5"},
	{regexp.MustCompile(`(?i)\bcuatro\b`), "4"},
	{regexp.MustCompile(`(?i)\btres\b`), "3"},
	{regexp.MustCompile(`(?i)\bdos\b`), "2"},
	{regexp.MustCompile(`(?i)\b(?:un|una|uno)\b`), "1"},
}

// nonItemWords are descriptions that cannot be products. They appear when
// number-word normalisation turns "una factura" into "1 factura".
var nonItemWords = map[string]bool{
	"factura": true, "boleta": true, "comprobante": true, "documento": true,
	"factura electronica": true, "boleta electronica": true,
	"factura electrónica": true, "boleta electrónica": true,
	"dni": true, "ruc": true, "cliente": true, "para": true,
}

// Extract runs the full pipeline over one message.
func Extract(text string) Extraction {
	var x Extraction

	x.Document, text = document(text)
	x.DocumentType = documentType(text)
	if currencyUSDRe.MatchString(text) {
		x.Currency = "USD"
	}
	x.Items = items(text)
	return x
}

// ValidDNI reports whether s is a plausible DNI: exactly 8 digits and at
// least 1,000,000.
func ValidDNI(s string) bool {
	if len(s) != 8 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= minDNI
}

// ValidRUC reports whether s is a plausible RUC: exactly 11 digits starting
// with 10 (natural person) or 20 (company).
func ValidRUC(s string) bool {
	if len(s) != 11 {
		return false
	}
	if !strings.HasPrefix(s, "10") && !strings.HasPrefix(s, "20") {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// CleanDigits strips spaces, dots and dashes from a stated number, keeping
// digits only.
func CleanDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Apply merges x into e under the collection rules: an explicit document
// always overwrites, a loose one only fills a gap; items append with dedup;
// a DNI infers Boleta when no type was chosen, a RUC never auto-selects;
// a dollar mention switches the currency to USD.
func Apply(e *session.EmissionData, x Extraction) {
	if x.DocumentType != "" {
		e.DocumentType = x.DocumentType
	}
	if x.Currency != "" {
		e.Currency = x.Currency
	}
	if d := x.Document; d != nil && (d.Explicit || e.ClientDocument == "") {
		if d.Number != e.ClientDocument {
			e.ClientValidated = false
			e.ClientName = ""
		}
		e.ClientDocument = d.Number
		e.ClientIDType = d.Type
		if d.Type == tinred.IDDNI && e.DocumentType == "" {
			e.DocumentType = tinred.DocBoleta
		}
	}
	for _, it := range x.Items {
		e.AddItem(it)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// document finds the client document and returns the text with the matched
// span removed so its digits never reach the item parser.
func document(text string) (*Document, string) {
	if m := explicitDocRe.FindStringSubmatchIndex(text); m != nil {
		kind := strings.ToLower(text[m[2]:m[3]])
		number := CleanDigits(text[m[4]:m[5]])
		rest := text[:m[0]] + " " + text[m[1]:]

		switch {
		case kind == "dni" && ValidDNI(number):
			return &Document{Number: number, Type: tinred.IDDNI, Explicit: true}, rest
		case kind == "ruc" && ValidRUC(number):
			return &Document{Number: number, Type: tinred.IDRUC, Explicit: true}, rest
		}
		// Stated but malformed: strip it anyway and let validation prompt.
		return nil, rest
	}

	if m := looseRUCRe.FindStringIndex(text); m != nil {
		number := text[m[0]:m[1]]
		if ValidRUC(number) {
			return &Document{Number: number, Type: tinred.IDRUC}, text[:m[0]] + " " + text[m[1]:]
		}
	}
	if m := looseDNIRe.FindStringIndex(text); m != nil {
		number := text[m[0]:m[1]]
		if ValidDNI(number) {
			return &Document{Number: number, Type: tinred.IDDNI}, text[:m[0]] + " " + text[m[1]:]
		}
	}
	return nil, text
}

func documentType(text string) tinred.DocumentType {
	if facturaRe.MatchString(text) {
		return tinred.DocFactura
	}
	if boletaRe.MatchString(text) {
		return tinred.DocBoleta
	}
	return ""
}

// items parses item lines from the (document-stripped) text. The text is
// normalised and split into segments on commas, newlines and "y" before a
// quantity; each segment tries the patterns in priority order.
func items(text string) []session.InvoiceItem {
	text = normalizeNumberWords(text)
	text = conjunctionRe.ReplaceAllString(text, ", $1")

	var out []session.InvoiceItem
	for _, seg := range segmentSplitRe.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if it, ok := parseSegment(seg); ok {
			out = append(out, it)
		}
	}
	return out
}

func parseSegment(seg string) (session.InvoiceItem, bool) {
	if m := itemQtyAtPriceRe.FindStringSubmatch(seg); m != nil {
		return buildItem(m[2], m[1], m[3])
	}
	if m := itemQtyPorPriceRe.FindStringSubmatch(seg); m != nil {
		return buildItem(m[2], m[1], m[3])
	}
	if m := itemAtPriceRe.FindStringSubmatch(seg); m != nil {
		return buildItem(m[1], "1", m[2])
	}
	if m := itemUnpricedRe.FindStringSubmatch(seg); m != nil {
		return buildItem(m[2], m[1], "")
	}
	return session.InvoiceItem{}, false
}

func buildItem(desc, qty, price string) (session.InvoiceItem, bool) {
	desc = strings.TrimSpace(desc)
	if desc == "" || nonItemWords[strings.ToLower(desc)] {
		return session.InvoiceItem{}, false
	}
	// "una boleta para ..." normalises to "1 boleta para ..."; document words
	// leading a description disqualify the whole segment.
	if first := strings.ToLower(strings.Fields(desc)[0]); nonItemWords[first] {
		return session.InvoiceItem{}, false
	}
	q, err := strconv.Atoi(qty)
	if err != nil || q <= 0 {
		return session.InvoiceItem{}, false
	}

	var p float64
	if price != "" {
		p, err = strconv.ParseFloat(strings.ReplaceAll(price, ",", "."), 64)
		if err != nil || p < 0 {
			return session.InvoiceItem{}, false
		}
	}
	return session.InvoiceItem{Description: desc, Quantity: q, UnitPrice: p}, true
}

func normalizeNumberWords(text string) string {
	for _, nw := range numberWords {
		text = nw.re.ReplaceAllString(text, nw.digit)
	}
	return text
}
