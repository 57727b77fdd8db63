package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinredperu/jack/internal/app"
	"github.com/tinredperu/jack/internal/config"
	"github.com/tinredperu/jack/internal/tinred"
)

// fakeBackend satisfies orchestrator.Backend with canned data.
type fakeBackend struct {
	company tinred.Company
	down    bool
}

func (f *fakeBackend) Identify(_ context.Context, phone string) (tinred.Company, error) {
	if f.down {
		return tinred.Company{}, fmt.Errorf("tinred: identify: connection refused")
	}
	if phone != "51987654321" {
		return tinred.Company{}, fmt.Errorf("%w: %s", tinred.ErrNotIdentified, phone)
	}
	return f.company, nil
}

func (f *fakeBackend) CheckClient(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: no registrado", tinred.ErrClientNotFound)
}

func (f *fakeBackend) Products(context.Context, string) ([]tinred.Product, error)      { return nil, nil }
func (f *fakeBackend) Customers(context.Context, string) ([]tinred.Customer, error)    { return nil, nil }
func (f *fakeBackend) History(context.Context, string) ([]tinred.HistoryEntry, error)  { return nil, nil }
func (f *fakeBackend) Emit(context.Context, tinred.EmitRequest) (tinred.EmitResult, error) {
	return tinred.EmitResult{}, fmt.Errorf("%w: not expected in this test", tinred.ErrEmissionRejected)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0"},
		TinRed: config.TinRedConfig{BaseURL: "https://test.tinred.pe"},
	}
}

func newApp(t *testing.T, backend *fakeBackend) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testConfig(), nil, app.WithBackend(backend))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func postConverse(t *testing.T, ts *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/converse", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /converse: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out.Reply
}

func TestAppServesConversation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{company: tinred.Company{ID: "42", Name: "Bodega Central"}}
	a := newApp(t, backend)

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	status, reply := postConverse(t, ts, `{"phone":"51987654321","message":"hola"}`)
	if status != http.StatusOK {
		t.Fatalf("status: got %d, want 200", status)
	}
	// A registered caller is greeted by name and asked for terms acceptance.
	if !strings.Contains(reply, "Bodega Central") {
		t.Errorf("reply should greet with the business name, got %q", reply)
	}

	status, reply = postConverse(t, ts, `{"phone":"51911111111","message":"hola"}`)
	if status != http.StatusOK {
		t.Fatalf("status: got %d, want 200", status)
	}
	if !strings.Contains(reply, "no está registrado") {
		t.Errorf("unknown caller should be rejected, got %q", reply)
	}
}

func TestAppHealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("ready when backend answers", func(t *testing.T) {
		t.Parallel()
		a := newApp(t, &fakeBackend{})
		ts := httptest.NewServer(a.Handler())
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/readyz")
		if err != nil {
			t.Fatalf("GET /readyz: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status: got %d, want 200", resp.StatusCode)
		}
	})

	t.Run("not ready when backend is down", func(t *testing.T) {
		t.Parallel()
		a := newApp(t, &fakeBackend{down: true})
		ts := httptest.NewServer(a.Handler())
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/readyz")
		if err != nil {
			t.Fatalf("GET /readyz: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status: got %d, want 503", resp.StatusCode)
		}
	})
}

func TestAppRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a := newApp(t, &fakeBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
