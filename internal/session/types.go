// Package session holds per-phone conversation state for Jack.
//
// A Session is keyed by the sender's phone number and carries everything the
// dialogue needs between messages: the authenticated company, the emission in
// progress, the cached TinRed context and the recent conversation history.
// Sessions live in memory only; a session idle for longer than the store TTL
// is replaced by a fresh one on the next message.
//
// Access is serialized per phone through [Store.Do] so a burst of messages
// from one user is processed strictly in arrival order while different users
// proceed in parallel.
package session

import (
	"strings"
	"time"

	"github.com/tinredperu/jack/internal/tinred"
	"github.com/tinredperu/jack/pkg/types"
)

// ContextKind names what the conversation is currently "looking at". It
// decides how bare numbered replies ("el 3") are resolved.
type ContextKind string

const (
	// ContextNone means no list or detail view is active.
	ContextNone ContextKind = ""

	// ContextProducts means the product catalogue list was just shown.
	ContextProducts ContextKind = "products"

	// ContextSearchResults means a product search result list was just shown.
	ContextSearchResults ContextKind = "search_results"

	// ContextClients means the client list was just shown.
	ContextClients ContextKind = "clients"

	// ContextHistory means the emission history was just shown.
	ContextHistory ContextKind = "history"

	// ContextProductDetail means a single product's detail view is active.
	ContextProductDetail ContextKind = "product_detail"

	// ContextEmission means an emission flow is in progress.
	ContextEmission ContextKind = "emission"
)

// InvoiceItem is one line of a document being assembled. UnitPrice 0 means
// the price has not been stated yet and must be resolved from the catalogue
// or asked for.
type InvoiceItem struct {
	Description string
	Quantity    int
	UnitPrice   float64
}

// Subtotal returns quantity × unit price.
func (i InvoiceItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Priced reports whether the item has a usable unit price.
func (i InvoiceItem) Priced() bool {
	return i.UnitPrice > 0
}

// EmissionData is the working state of one document emission. The zero value
// represents an emission with nothing collected yet.
type EmissionData struct {
	// DocumentType is empty until stated or inferred. A DNI client infers
	// Boleta; a RUC never auto-selects a type, the user must choose.
	DocumentType tinred.DocumentType

	// ClientIDType and ClientDocument identify the customer. The document is
	// only trusted once ClientValidated is set after a TinRed lookup.
	ClientIDType    tinred.IDType
	ClientDocument  string
	ClientName      string
	ClientValidated bool

	// Currency defaults to PEN at emission time.
	Currency string

	Items []InvoiceItem

	// AwaitingConfirmation is set once the summary was shown and the flow is
	// waiting for a yes/no.
	AwaitingConfirmation bool

	// AwaitingReconfirmation is set when the stated client document failed
	// validation and a corrected number is expected next.
	AwaitingReconfirmation bool
}

// AddItem appends item unless an identical line is already present.
// Identity is (lowercased description, unit price); a duplicate is dropped
// silently so repeated phrasings do not double lines.
func (e *EmissionData) AddItem(item InvoiceItem) {
	for _, existing := range e.Items {
		if strings.EqualFold(existing.Description, item.Description) && existing.UnitPrice == item.UnitPrice {
			return
		}
	}
	e.Items = append(e.Items, item)
}

// Total sums the subtotals of all items.
func (e *EmissionData) Total() float64 {
	var total float64
	for _, it := range e.Items {
		total += it.Subtotal()
	}
	return total
}

// Ready reports whether the emission can be summarised: a document type, a
// validated client and at least one item, all items priced.
func (e *EmissionData) Ready() bool {
	if e.DocumentType == "" || !e.ClientValidated || len(e.Items) == 0 {
		return false
	}
	for _, it := range e.Items {
		if !it.Priced() {
			return false
		}
	}
	return true
}

// UserContext is the TinRed data cached for one company: catalogue, known
// clients and recent emissions. It is built off-session by the prefetcher and
// swapped in as one complete value.
type UserContext struct {
	Products []tinred.Product
	Clients  []tinred.Customer
	History  []tinred.HistoryEntry
	LoadedAt time.Time
}

// Fresh reports whether the context was loaded within maxAge of now.
func (c *UserContext) Fresh(maxAge time.Duration, now time.Time) bool {
	if c == nil || c.LoadedAt.IsZero() {
		return false
	}
	return now.Sub(c.LoadedAt) < maxAge
}

// EmissionRecord is one document successfully emitted during this session.
type EmissionRecord struct {
	FullNumber     string
	DocumentType   tinred.DocumentType
	ClientName     string
	ClientDocument string
	Total          float64
	PDF            string
	EmittedAt      time.Time
}

// Session is the complete conversation state for one phone number.
// It must only be accessed through [Store.Do]; the store guarantees exclusive
// access for the duration of the callback.
type Session struct {
	Phone string

	// Company is set after a successful TinRed identification.
	Company       tinred.Company
	Authenticated bool
	TermsAccepted bool

	// Emission is nil when no document is being assembled.
	Emission *EmissionData

	// PendingItems are items noted outside an emission (e.g. "emit with this
	// product") and folded in when the flow starts.
	PendingItems []InvoiceItem

	// Context tracks the active view for numbered-selection resolution,
	// together with the data the view was built from.
	Context         ContextKind
	SearchResults   []tinred.Product
	SelectedProduct *tinred.Product

	// TinRed is the cached company data, swapped atomically by the prefetcher.
	TinRed *UserContext

	// History is the rolling conversation transcript, newest last.
	History []types.Message

	// Emissions are the documents emitted during this session.
	Emissions []EmissionRecord

	CreatedAt time.Time
	LastSeen  time.Time
}

// historyLimit caps the rolling transcript. Older entries are dropped from
// the front.
const historyLimit = 20

// AddMessage appends one transcript entry, evicting the oldest once the
// rolling cap is reached.
func (s *Session) AddMessage(role, content string) {
	s.History = append(s.History, types.Message{Role: role, Content: content})
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
}

// RecentHistory returns up to n transcript entries, newest last.
func (s *Session) RecentHistory(n int) []types.Message {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// EnsureEmission returns the active emission, creating a fresh one (folding
// in any pending items) when none is open.
func (s *Session) EnsureEmission() *EmissionData {
	if s.Emission == nil {
		s.Emission = &EmissionData{Currency: "PEN"}
		for _, it := range s.PendingItems {
			s.Emission.AddItem(it)
		}
		s.PendingItems = nil
		s.Context = ContextEmission
	}
	return s.Emission
}

// ResetEmission discards any emission in progress and clears the view state.
func (s *Session) ResetEmission() {
	s.Emission = nil
	s.PendingItems = nil
	s.Context = ContextNone
	s.SearchResults = nil
	s.SelectedProduct = nil
}

// RecordEmission stores a completed emission and resets the flow state so the
// next message starts clean.
func (s *Session) RecordEmission(rec EmissionRecord) {
	s.Emissions = append(s.Emissions, rec)
	s.ResetEmission()
}

// ShowList switches the active view and retains the backing slice for
// numbered selection.
func (s *Session) ShowList(kind ContextKind, results []tinred.Product) {
	s.Context = kind
	s.SearchResults = results
	s.SelectedProduct = nil
}

// SelectProduct switches to the product detail view.
func (s *Session) SelectProduct(p tinred.Product) {
	s.Context = ContextProductDetail
	s.SelectedProduct = &p
}
