// Package hotctx keeps a company's TinRed data hot in the session.
//
// The Prefetcher pulls the product catalogue, the client list and the recent
// emission history in parallel and swaps them into the session as one
// complete [session.UserContext] value, so the dialogue never observes a
// half-loaded context. Loaded data is considered fresh for an hour.
//
// The formatter half of the package renders the loaded context into the
// grounding block injected into LLM fallback prompts.
package hotctx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

// defaultMaxAge mirrors the back-office cache window.
const defaultMaxAge = 60 * time.Minute

// ErrUnavailable is returned by Load when none of the three TinRed endpoints
// could be reached.
var ErrUnavailable = errors.New("hotctx: tinred unavailable")

// CatalogueClient is the slice of the TinRed client the prefetcher needs.
type CatalogueClient interface {
	Products(ctx context.Context, phone string) ([]tinred.Product, error)
	Customers(ctx context.Context, phone string) ([]tinred.Customer, error)
	History(ctx context.Context, phone string) ([]tinred.HistoryEntry, error)
}

// Prefetcher loads company data from TinRed.
type Prefetcher struct {
	client CatalogueClient
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a [Prefetcher].
type Option func(*Prefetcher)

// WithMaxAge overrides the freshness window (default 60m).
func WithMaxAge(d time.Duration) Option {
	return func(p *Prefetcher) { p.maxAge = d }
}

// WithNow replaces the clock. Tests use this to age contexts.
func WithNow(now func() time.Time) Option {
	return func(p *Prefetcher) { p.now = now }
}

// NewPrefetcher creates a [Prefetcher] backed by client.
func NewPrefetcher(client CatalogueClient, opts ...Option) *Prefetcher {
	p := &Prefetcher{
		client: client,
		maxAge: defaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load fetches products, clients and history concurrently and returns them as
// one UserContext. Individual endpoint failures are logged and leave the
// corresponding slice empty; only when every endpoint fails is
// [ErrUnavailable] returned.
func (p *Prefetcher) Load(ctx context.Context, phone string) (*session.UserContext, error) {
	uc := &session.UserContext{}
	var failures [3]error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if uc.Products, err = p.client.Products(gctx, phone); err != nil {
			slog.Warn("hotctx: products load failed", "phone", phone, "error", err)
			failures[0] = err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if uc.Clients, err = p.client.Customers(gctx, phone); err != nil {
			slog.Warn("hotctx: clients load failed", "phone", phone, "error", err)
			failures[1] = err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if uc.History, err = p.client.History(gctx, phone); err != nil {
			slog.Warn("hotctx: history load failed", "phone", phone, "error", err)
			failures[2] = err
		}
		return nil
	})
	g.Wait()

	if failures[0] != nil && failures[1] != nil && failures[2] != nil {
		return nil, errors.Join(ErrUnavailable, failures[0], failures[1], failures[2])
	}

	uc.LoadedAt = p.now()
	slog.Info("hotctx: context loaded",
		"phone", phone,
		"products", len(uc.Products),
		"clients", len(uc.Clients),
		"history", len(uc.History))
	return uc, nil
}

// Ensure refreshes sess.TinRed when it is absent or stale. The new context is
// swapped in as one value; on load failure a stale context is kept in place
// rather than cleared. When there is nothing to keep, an empty context is
// parked with a fresh stamp so a TinRed outage costs one failed load per
// freshness window instead of three calls per turn.
func (p *Prefetcher) Ensure(ctx context.Context, sess *session.Session) error {
	if sess.TinRed.Fresh(p.maxAge, p.now()) {
		return nil
	}
	uc, err := p.Load(ctx, sess.Phone)
	if err != nil {
		if sess.TinRed != nil {
			slog.Warn("hotctx: refresh failed, keeping stale context", "phone", sess.Phone, "error", err)
			return nil
		}
		sess.TinRed = &session.UserContext{LoadedAt: p.now()}
		return err
	}
	sess.TinRed = uc
	return nil
}
