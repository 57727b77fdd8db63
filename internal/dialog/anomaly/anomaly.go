// Package anomaly pre-checks an emission before its summary is shown.
//
// Findings are warning lines woven into the confirmation summary; they never
// block the emission. The user confirms or corrects — Jack only points.
package anomaly

import (
	"fmt"
	"strings"

	"github.com/tinredperu/jack/internal/catalog"
	"github.com/tinredperu/jack/internal/session"
)

const (
	// priceDeviationLimit flags unit prices more than 50% off catalogue.
	priceDeviationLimit = 0.50

	// quantityLimit flags suspiciously large line quantities.
	quantityLimit = 100

	// totalMultipleLimit flags totals above this multiple of the company's
	// historical average document total.
	totalMultipleLimit = 10.0
)

// Check inspects the emission against the company context and returns
// warning lines in Spanish, one per finding. Both arguments may carry less
// data than ideal; checks that lack their reference data are skipped.
func Check(e *session.EmissionData, uc *session.UserContext) []string {
	if e == nil {
		return nil
	}

	var warnings []string
	warnings = append(warnings, priceDeviations(e, uc)...)
	warnings = append(warnings, largeQuantities(e)...)
	if w := unusualTotal(e, uc); w != "" {
		warnings = append(warnings, w)
	}
	return warnings
}

// priceDeviations compares each priced item against its catalogue price.
// Items the catalogue does not know are skipped.
func priceDeviations(e *session.EmissionData, uc *session.UserContext) []string {
	if uc == nil || len(uc.Products) == 0 {
		return nil
	}
	searcher := catalog.NewSearcher()

	var warnings []string
	for _, it := range e.Items {
		if !it.Priced() {
			continue
		}
		p, ok := searcher.Best(uc.Products, strings.ToLower(it.Description))
		if !ok || p.Price() <= 0 {
			continue
		}
		ref := p.Price()
		dev := (it.UnitPrice - ref) / ref
		if dev > priceDeviationLimit || dev < -priceDeviationLimit {
			warnings = append(warnings, fmt.Sprintf(
				"⚠️ El precio de %s (S/ %.2f) difiere bastante del precio de tu catálogo (S/ %.2f).",
				it.Description, it.UnitPrice, ref))
		}
	}
	return warnings
}

func largeQuantities(e *session.EmissionData) []string {
	var warnings []string
	for _, it := range e.Items {
		if it.Quantity >= quantityLimit {
			warnings = append(warnings, fmt.Sprintf(
				"⚠️ Cantidad inusualmente alta: %d × %s.", it.Quantity, it.Description))
		}
	}
	return warnings
}

// unusualTotal flags a document total far above the historical average.
// Needs at least a little history to have an average worth trusting.
func unusualTotal(e *session.EmissionData, uc *session.UserContext) string {
	if uc == nil || len(uc.History) < 3 {
		return ""
	}
	var sum float64
	var n int
	for _, h := range uc.History {
		if t := h.TotalAmount(); t > 0 {
			sum += t
			n++
		}
	}
	if n < 3 {
		return ""
	}
	avg := sum / float64(n)
	if total := e.Total(); total > avg*totalMultipleLimit {
		return fmt.Sprintf(
			"⚠️ El total S/ %.2f es mucho mayor que tu promedio habitual (S/ %.2f).", total, avg)
	}
	return ""
}
