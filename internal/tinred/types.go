package tinred

import (
	"fmt"
	"strconv"
	"strings"
)

// DocumentType is the SUNAT document type code carried in the tdocod field.
type DocumentType string

const (
	// DocFactura is an electronic Factura, emitted to RUC-holding businesses.
	DocFactura DocumentType = "01"

	// DocBoleta is an electronic Boleta de Venta, emitted to individuals.
	DocBoleta DocumentType = "03"
)

// IsValid reports whether d is a recognised document type code.
func (d DocumentType) IsValid() bool {
	return d == DocFactura || d == DocBoleta
}

// String returns the human-readable document name.
func (d DocumentType) String() string {
	switch d {
	case DocFactura:
		return "Factura"
	case DocBoleta:
		return "Boleta"
	default:
		return "Comprobante"
	}
}

// IDType is the SUNAT identity document code carried in the tdicod field.
type IDType string

const (
	// IDDNI is the national identity document (8 digits).
	IDDNI IDType = "1"

	// IDRUC is the taxpayer registry number (11 digits).
	IDRUC IDType = "6"
)

// String returns the human-readable identity document name.
func (t IDType) String() string {
	switch t {
	case IDDNI:
		return "DNI"
	case IDRUC:
		return "RUC"
	default:
		return "Documento"
	}
}

// Company identifies the authenticated issuing business, as returned by the
// identify endpoint. The field names mirror the TinRed wire format.
type Company struct {
	// ID is the issuing company identifier. Empty means the phone is not
	// registered with TinRed.
	ID string `json:"IdEmpresa"`

	// EstablishmentID is the branch identifier; TinRed defaults it to "0001".
	EstablishmentID string `json:"IdEstablecimiento"`

	// UserID is the TinRed user account behind the phone number.
	UserID int `json:"IdUsuario"`

	// Name is the registered business name.
	Name string `json:"Nombre"`
}

// Product is a catalogue entry. Numeric values arrive as strings on the wire
// (provun may be "12.50"); accessors parse them leniently.
type Product struct {
	Code      string `json:"procod"`
	Name      string `json:"pronom"`
	Unit      string `json:"promed"`
	UnitPrice string `json:"provun"`
}

// Price returns the unit price as a float, or 0 when unparseable.
func (p Product) Price() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.UnitPrice), 64)
	if err != nil {
		return 0
	}
	return v
}

// Customer is a known customer of the issuing company.
type Customer struct {
	Name     string `json:"clinom"`
	Document string `json:"clinum"`
	IDType   IDType `json:"tdicod"`
}

// HistoryEntry is one previously emitted document as reported by the record
// endpoint. Header fields use the cca*/tdo* prefixes, detail fields cde*.
type HistoryEntry struct {
	IssuedAt       string       `json:"ccafem"`
	ClientName     string       `json:"ccanom"`
	ClientDocument string       `json:"ccandi"`
	DocumentType   DocumentType `json:"tdocod"`
	ClientIDType   IDType       `json:"tdicod"`
	Serie          string       `json:"cdaser"`
	Number         string       `json:"cdanum"`
	Total          string       `json:"cdevve"`
	IGV            string       `json:"cdeigv"`
	Quantity       string       `json:"cdecan"`
	Description    string       `json:"cdedes"`
	UnitValue      string       `json:"cdevun"`
}

// FullNumber returns the serie-numero identifier, e.g. "F001-00001234".
func (h HistoryEntry) FullNumber() string {
	return h.Serie + "-" + h.Number
}

// TotalAmount returns the document total as a float, or 0 when unparseable.
func (h HistoryEntry) TotalAmount() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(h.Total), 64)
	if err != nil {
		return 0
	}
	return v
}

// EmitLine is one invoice line of an emission request. Quantities and prices
// are serialised into the parallel cant/detpro/preuni arrays TinRed expects.
type EmitLine struct {
	Quantity    int
	Description string
	UnitPrice   float64
}

// EmitRequest carries everything the store endpoint needs to register a
// document with SUNAT.
type EmitRequest struct {
	Company      Company
	DocumentType DocumentType
	Currency     string
	ClientIDType IDType
	ClientNumber string
	Lines        []EmitLine
}

// Total sums quantity × unit price over all lines.
func (r EmitRequest) Total() float64 {
	var total float64
	for _, l := range r.Lines {
		total += float64(l.Quantity) * l.UnitPrice
	}
	return total
}

// payload converts the request into the TinRed wire shape: parallel string
// arrays and pre-formatted decimal totals.
func (r EmitRequest) payload() map[string]any {
	est := r.Company.EstablishmentID
	if est == "" {
		est = "0001"
	}
	cur := r.Currency
	if cur == "" {
		cur = "PEN"
	}

	cant := make([]string, len(r.Lines))
	detpro := make([]string, len(r.Lines))
	preuni := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		cant[i] = strconv.Itoa(l.Quantity)
		detpro[i] = l.Description
		preuni[i] = fmt.Sprintf("%.2f", l.UnitPrice)
	}

	return map[string]any{
		"idEmpresa":         r.Company.ID,
		"idEstablecimiento": est,
		"idUsuario":         strconv.Itoa(r.Company.UserID),
		"tdocod":            string(r.DocumentType),
		"mondoc":            cur,
		"tdicod":            string(r.ClientIDType),
		"clinum":            r.ClientNumber,
		"cant":              cant,
		"detpro":            detpro,
		"preuni":            preuni,
		"total":             fmt.Sprintf("%.2f", r.Total()),
	}
}

// EmitResult is the store endpoint's response. Success is the literal string
// "TRUE" on acceptance; anything else is a rejection.
type EmitResult struct {
	Success string `json:"success"`
	Estado  string `json:"estado"`
	Serie   string `json:"serie"`
	Number  string `json:"numero"`
	ID      int    `json:"id"`
	Message string `json:"mensaje"`
	PDF     string `json:"pdf"`
}

// OK reports whether TinRed accepted the emission. Acceptance is the exact
// string "TRUE"; any other value, including "true", is a failure.
func (r EmitResult) OK() bool {
	return r.Success == "TRUE"
}

// FullNumber returns the serie-numero identifier of the emitted document.
func (r EmitResult) FullNumber() string {
	return r.Serie + "-" + r.Number
}
