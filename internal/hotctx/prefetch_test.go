package hotctx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinredperu/jack/internal/hotctx"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

// fakeClient implements hotctx.CatalogueClient with injectable results.
type fakeClient struct {
	products    []tinred.Product
	clients     []tinred.Customer
	history     []tinred.HistoryEntry
	productsErr error
	clientsErr  error
	historyErr  error

	loads int
}

func (f *fakeClient) Products(context.Context, string) ([]tinred.Product, error) {
	f.loads++
	return f.products, f.productsErr
}

func (f *fakeClient) Customers(context.Context, string) ([]tinred.Customer, error) {
	return f.clients, f.clientsErr
}

func (f *fakeClient) History(context.Context, string) ([]tinred.HistoryEntry, error) {
	return f.history, f.historyErr
}

func TestLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("loads all three sources", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClient{
			products: []tinred.Product{{Name: "GASEOSA INCA KOLA 500ML", UnitPrice: "3.50"}},
			clients:  []tinred.Customer{{Name: "JUAN PEREZ", Document: "12345678"}},
			history:  []tinred.HistoryEntry{{Serie: "B001", Number: "00000042"}},
		}
		p := hotctx.NewPrefetcher(fc)

		uc, err := p.Load(ctx, "51987654321")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(uc.Products) != 1 || len(uc.Clients) != 1 || len(uc.History) != 1 {
			t.Errorf("context = %d/%d/%d entries, want 1/1/1",
				len(uc.Products), len(uc.Clients), len(uc.History))
		}
		if uc.LoadedAt.IsZero() {
			t.Error("LoadedAt not stamped")
		}
	})

	t.Run("partial failure leaves slice empty", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClient{
			products:   []tinred.Product{{Name: "AGUA SAN LUIS 625ML"}},
			historyErr: errors.New("timeout"),
		}
		p := hotctx.NewPrefetcher(fc)

		uc, err := p.Load(ctx, "51987654321")
		if err != nil {
			t.Fatalf("Load: partial failure must not error: %v", err)
		}
		if len(uc.Products) != 1 {
			t.Error("surviving source lost")
		}
		if uc.History != nil {
			t.Error("failed source must stay empty")
		}
	})

	t.Run("total failure returns ErrUnavailable", func(t *testing.T) {
		t.Parallel()
		down := errors.New("connection refused")
		fc := &fakeClient{productsErr: down, clientsErr: down, historyErr: down}
		p := hotctx.NewPrefetcher(fc)

		if _, err := p.Load(ctx, "51987654321"); !errors.Is(err, hotctx.ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	})
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }

	t.Run("fresh context is not reloaded", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClient{}
		p := hotctx.NewPrefetcher(fc, hotctx.WithNow(clock))
		sess := &session.Session{
			Phone:  "51987654321",
			TinRed: &session.UserContext{LoadedAt: now.Add(-10 * time.Minute)},
		}

		if err := p.Ensure(ctx, sess); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if fc.loads != 0 {
			t.Errorf("loads = %d, want 0 for fresh context", fc.loads)
		}
	})

	t.Run("stale context is replaced as one value", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClient{products: []tinred.Product{{Name: "GASEOSA"}}}
		p := hotctx.NewPrefetcher(fc, hotctx.WithNow(clock))
		old := &session.UserContext{LoadedAt: now.Add(-2 * time.Hour)}
		sess := &session.Session{Phone: "51987654321", TinRed: old}

		if err := p.Ensure(ctx, sess); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if sess.TinRed == old {
			t.Fatal("stale context not replaced")
		}
		if len(sess.TinRed.Products) != 1 {
			t.Error("new context missing loaded data")
		}
	})

	t.Run("load failure keeps the stale context", func(t *testing.T) {
		t.Parallel()
		down := errors.New("down")
		fc := &fakeClient{productsErr: down, clientsErr: down, historyErr: down}
		p := hotctx.NewPrefetcher(fc, hotctx.WithNow(clock))
		old := &session.UserContext{
			Products: []tinred.Product{{Name: "GASEOSA"}},
			LoadedAt: now.Add(-2 * time.Hour),
		}
		sess := &session.Session{Phone: "51987654321", TinRed: old}

		if err := p.Ensure(ctx, sess); err != nil {
			t.Fatalf("Ensure: stale-but-present context must not error: %v", err)
		}
		if sess.TinRed != old {
			t.Error("stale context must be kept when the reload fails")
		}
	})

	t.Run("load failure with no context errors", func(t *testing.T) {
		t.Parallel()
		down := errors.New("down")
		fc := &fakeClient{productsErr: down, clientsErr: down, historyErr: down}
		p := hotctx.NewPrefetcher(fc, hotctx.WithNow(clock))
		sess := &session.Session{Phone: "51987654321"}

		if err := p.Ensure(ctx, sess); !errors.Is(err, hotctx.ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	})

	t.Run("outage parks an empty stamped context", func(t *testing.T) {
		t.Parallel()
		down := errors.New("down")
		fc := &fakeClient{productsErr: down, clientsErr: down, historyErr: down}
		p := hotctx.NewPrefetcher(fc, hotctx.WithNow(clock))
		sess := &session.Session{Phone: "51987654321"}

		_ = p.Ensure(ctx, sess)
		if sess.TinRed == nil || !sess.TinRed.LoadedAt.Equal(now) {
			t.Fatalf("context = %+v, want empty context stamped at now", sess.TinRed)
		}
		loadsAfterOutage := fc.loads

		// Within the freshness window the outage is not retried.
		if err := p.Ensure(ctx, sess); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if fc.loads != loadsAfterOutage {
			t.Errorf("loads = %d, want %d (no retry inside the window)", fc.loads, loadsAfterOutage)
		}
	})
}
