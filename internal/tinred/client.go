// Package tinred is the HTTP client for the TinRed Suite invoicing API.
//
// TinRed is the system of record: it identifies issuing companies by phone
// number, validates customers against SUNAT padron data, serves the product
// and client catalogues, and performs the actual document emission. All
// endpoints are JSON-over-POST under a single base URL.
//
// The client wraps every call in a [resilience.CircuitBreaker] so a TinRed
// outage degrades conversations instead of hanging them. Catalogue reads use
// the general timeout; [Client.Emit] uses a much longer one because SUNAT
// registration is slow.
//
// All methods are safe for concurrent use.
package tinred

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tinredperu/jack/internal/observe"
	"github.com/tinredperu/jack/internal/resilience"
)

// Sentinel errors returned by the client. Callers should match with
// [errors.Is]; all other failures are wrapped transport or decode errors.
var (
	// ErrNotIdentified indicates the phone number has no registered company.
	ErrNotIdentified = errors.New("tinred: phone not registered")

	// ErrClientNotFound indicates the customer document does not exist in
	// TinRed/SUNAT.
	ErrClientNotFound = errors.New("tinred: client not found")

	// ErrEmissionRejected indicates TinRed refused to register the document.
	ErrEmissionRejected = errors.New("tinred: emission rejected")
)

// API endpoint paths, relative to the configured base URL.
const (
	pathIdentify    = "/SisFact/api/identify_ai"
	pathCheckClient = "/SisFact/api/checkclient_agente_ai"
	pathProducts    = "/SisFact/api/product_agente_ai"
	pathClients     = "/SisFact/api/client_agente_ai"
	pathHistory     = "/SisFact/api/record_agente_ai"
	pathEmit        = "/SisFact/api/store_agente_api"
	pathConverse    = "/SisFact/api/conversation_agente_ai"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultEmitTimeout = 90 * time.Second
)

// Client talks to the TinRed Suite API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	emitTimeout time.Duration
	breaker     *resilience.CircuitBreaker
	metrics     *observe.Metrics
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client's Timeout
// applies to every endpoint except Emit, which uses its own budget.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEmitTimeout overrides the emission call budget (default 90s).
func WithEmitTimeout(d time.Duration) Option {
	return func(c *Client) { c.emitTimeout = d }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics replaces the metrics sink (tests pass a private instance).
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a TinRed client for the given base URL,
// e.g. "https://test.tinred.pe".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("tinred: baseURL must not be empty")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		emitTimeout: defaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "tinred"})
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// CleanPhone normalises a gateway sender ID to the bare phone number TinRed
// keys companies by: everything after "@" is dropped (WhatsApp JIDs look like
// "51987654321@s.whatsapp.net") and separators are removed.
func CleanPhone(phone string) string {
	if i := strings.IndexByte(phone, '@'); i >= 0 {
		phone = phone[:i]
	}
	phone = strings.ReplaceAll(phone, " ", "")
	return strings.ReplaceAll(phone, "-", "")
}

// Identify resolves a phone number to its issuing company. Returns
// [ErrNotIdentified] when the phone has no company attached.
func (c *Client) Identify(ctx context.Context, phone string) (Company, error) {
	var raw map[string]any
	err := c.post(ctx, pathIdentify, map[string]any{"telefono": CleanPhone(phone)}, 0, &raw)
	if err != nil {
		return Company{}, fmt.Errorf("tinred: identify: %w", err)
	}
	if _, ok := raw["IdEmpresa"]; !ok {
		return Company{}, ErrNotIdentified
	}

	// Round-trip through JSON so the loosely typed response maps onto Company.
	buf, err := json.Marshal(raw)
	if err != nil {
		return Company{}, fmt.Errorf("tinred: identify: re-encode: %w", err)
	}
	var company Company
	if err := json.Unmarshal(buf, &company); err != nil {
		return Company{}, fmt.Errorf("tinred: identify: decode: %w", err)
	}
	if company.ID == "" {
		return Company{}, ErrNotIdentified
	}
	if company.EstablishmentID == "" {
		company.EstablishmentID = "0001"
	}
	slog.Info("tinred: identified company", "company", company.Name, "phone", CleanPhone(phone))
	return company, nil
}

// CheckClient validates a customer document against TinRed/SUNAT and returns
// the registered name. The endpoint answers with a single-key object: "01"
// carries the name when found, "00" a not-found message. Returns
// [ErrClientNotFound] for the latter.
func (c *Client) CheckClient(ctx context.Context, phone, document string) (string, error) {
	payload := map[string]any{
		"telefono":         CleanPhone(phone),
		"numero_documento": document,
	}
	var raw map[string]string
	if err := c.post(ctx, pathCheckClient, payload, 0, &raw); err != nil {
		return "", fmt.Errorf("tinred: check client %s: %w", document, err)
	}

	if name, ok := raw["01"]; ok {
		return name, nil
	}
	if msg, ok := raw["00"]; ok {
		return "", fmt.Errorf("%w: %s", ErrClientNotFound, msg)
	}
	// Unexpected shape: any non-"00" value longer than a code is treated as a
	// name, matching TinRed's inconsistent older deployments.
	for key, val := range raw {
		if key != "00" && len(val) > 2 {
			slog.Warn("tinred: unexpected checkclient response key", "key", key)
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised response", ErrClientNotFound)
}

// Products fetches the company's product catalogue.
func (c *Client) Products(ctx context.Context, phone string) ([]Product, error) {
	var out []Product
	if err := c.post(ctx, pathProducts, map[string]any{"telefono": CleanPhone(phone)}, 0, &out); err != nil {
		return nil, fmt.Errorf("tinred: products: %w", err)
	}
	return out, nil
}

// Customers fetches the company's known customers.
func (c *Client) Customers(ctx context.Context, phone string) ([]Customer, error) {
	var out []Customer
	if err := c.post(ctx, pathClients, map[string]any{"telefono": CleanPhone(phone)}, 0, &out); err != nil {
		return nil, fmt.Errorf("tinred: clients: %w", err)
	}
	return out, nil
}

// History fetches the company's recent emissions, newest first.
func (c *Client) History(ctx context.Context, phone string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	if err := c.post(ctx, pathHistory, map[string]any{"telefono": CleanPhone(phone)}, 0, &out); err != nil {
		return nil, fmt.Errorf("tinred: history: %w", err)
	}
	return out, nil
}

// Emit registers a document with SUNAT through TinRed. It uses the extended
// emission timeout. A transport-level success with success != "TRUE" returns
// [ErrEmissionRejected] wrapping TinRed's message.
func (c *Client) Emit(ctx context.Context, req EmitRequest) (EmitResult, error) {
	if req.Company.ID == "" {
		return EmitResult{}, fmt.Errorf("tinred: emit: %w", ErrNotIdentified)
	}
	if len(req.Lines) == 0 {
		return EmitResult{}, fmt.Errorf("tinred: emit: no lines")
	}

	slog.Info("tinred: emitting document",
		"type", req.DocumentType.String(),
		"client", req.ClientNumber,
		"lines", len(req.Lines),
		"total", fmt.Sprintf("%.2f", req.Total()))

	var res EmitResult
	if err := c.post(ctx, pathEmit, req.payload(), c.emitTimeout, &res); err != nil {
		return EmitResult{}, fmt.Errorf("tinred: emit: %w", err)
	}
	if !res.OK() {
		msg := res.Message
		if msg == "" {
			msg = res.Estado
		}
		return res, fmt.Errorf("%w: %s", ErrEmissionRejected, msg)
	}
	slog.Info("tinred: document emitted", "number", res.FullNumber(), "estado", res.Estado)
	return res, nil
}

// RecordConversation mirrors one exchange into TinRed's conversation log.
// Best-effort: failures are logged and never surfaced, so callers may invoke
// it from a goroutine after the reply was already sent.
func (c *Client) RecordConversation(ctx context.Context, phone, message, reply string) {
	payload := map[string]any{
		"telefono":  CleanPhone(phone),
		"mensaje":   message,
		"respuesta": reply,
	}
	var out map[string]any
	if err := c.post(ctx, pathConverse, payload, 0, &out); err != nil {
		slog.Debug("tinred: conversation log failed", "error", err)
	}
}

// post performs one circuit-breaker-guarded JSON POST and decodes the body
// into out. timeout == 0 uses the http.Client default.
func (c *Client) post(ctx context.Context, path string, payload any, timeout time.Duration, out any) error {
	endpoint := path[strings.LastIndexByte(path, '/')+1:]
	start := time.Now()

	err := c.breaker.Execute(func() error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			// TinRed error bodies carry a "mensaje" field when well-formed.
			var apiErr struct {
				Message string `json:"mensaje"`
			}
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
				return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
			}
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, "tinred", endpoint)
	}
	c.metrics.TinRedRequestDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("endpoint", endpoint), observe.Attr("status", status)))
	return err
}
