package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tinredperu/jack/internal/dialog/orchestrator"
	"github.com/tinredperu/jack/internal/health"
	"github.com/tinredperu/jack/internal/server"
)

// echoConverser replies with a canned string and records every request.
type echoConverser struct {
	mu    sync.Mutex
	calls []orchestrator.Request
	reply string
	err   error
}

func (e *echoConverser) Handle(_ context.Context, req orchestrator.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, req)
	if e.err != nil {
		return "", e.err
	}
	if e.reply != "" {
		return e.reply, nil
	}
	return "eco: " + req.Text, nil
}

func (e *echoConverser) requests() []orchestrator.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]orchestrator.Request, len(e.calls))
	copy(out, e.calls)
	return out
}

func postConverse(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/converse", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /converse: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestConverse(t *testing.T) {
	t.Parallel()

	conv := &echoConverser{}
	ts := httptest.NewServer(server.New(conv).Handler())
	defer ts.Close()

	t.Run("round trip", func(t *testing.T) {
		resp := postConverse(t, ts, `{"phone":"51987654321","message":"hola"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status: got %d, want 200", resp.StatusCode)
		}
		var out struct {
			Reply string `json:"reply"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.Reply != "eco: hola" {
			t.Errorf("reply: got %q, want %q", out.Reply, "eco: hola")
		}

		reqs := conv.requests()
		if len(reqs) != 1 {
			t.Fatalf("handler calls: got %d, want 1", len(reqs))
		}
		if reqs[0].Phone != "51987654321" {
			t.Errorf("phone: got %q", reqs[0].Phone)
		}
	})

	t.Run("audio is base64 decoded", func(t *testing.T) {
		// "aG9sYQ==" is base64 for "hola".
		resp := postConverse(t, ts, `{"phone":"51911111111","message":"","audio":"aG9sYQ=="}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status: got %d, want 200", resp.StatusCode)
		}
		reqs := conv.requests()
		last := reqs[len(reqs)-1]
		if string(last.Audio) != "hola" {
			t.Errorf("audio: got %q, want %q", last.Audio, "hola")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := postConverse(t, ts, `{"phone": "519`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", resp.StatusCode)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := postConverse(t, ts, `{"phone":"51987654321","mensaje":"hola"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", resp.StatusCode)
		}
	})

	t.Run("missing phone", func(t *testing.T) {
		resp := postConverse(t, ts, `{"message":"hola"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", resp.StatusCode)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/converse")
		if err != nil {
			t.Fatalf("GET /converse: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status: got %d, want 405", resp.StatusCode)
		}
	})
}

func TestConverseHandlerError(t *testing.T) {
	t.Parallel()

	conv := &echoConverser{err: errors.New("boom")}
	ts := httptest.NewServer(server.New(conv).Handler())
	defer ts.Close()

	resp := postConverse(t, ts, `{"phone":"51987654321","message":"hola"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Internal failure details must not leak to the gateway.
	if strings.Contains(out.Error, "boom") {
		t.Errorf("error leaked internals: %q", out.Error)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	failing := health.Checker{
		Name:  "tinred",
		Check: func(context.Context) error { return fmt.Errorf("connection refused") },
	}
	srv := server.New(&echoConverser{}, server.WithHealth(health.New(failing)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("healthz always ok", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status: got %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz fails with broken dependency", func(t *testing.T) {
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

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(server.New(&echoConverser{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestConsole(t *testing.T) {
	t.Parallel()

	conv := &echoConverser{}
	ts := httptest.NewServer(server.New(conv).Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?phone=51987654321"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for _, msg := range []string{"hola", "boleta dni 45678912"} {
		if err := wsjson.Write(ctx, conn, map[string]string{"message": msg}); err != nil {
			t.Fatalf("write %q: %v", msg, err)
		}
		var out struct {
			Reply string `json:"reply"`
			Error string `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read reply for %q: %v", msg, err)
		}
		if out.Error != "" {
			t.Fatalf("unexpected error reply: %q", out.Error)
		}
		if out.Reply != "eco: "+msg {
			t.Errorf("reply: got %q, want %q", out.Reply, "eco: "+msg)
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")

	reqs := conv.requests()
	if len(reqs) != 2 {
		t.Fatalf("handler calls: got %d, want 2", len(reqs))
	}
	for _, r := range reqs {
		if r.Phone != "51987654321" {
			t.Errorf("phone: got %q, want connection phone", r.Phone)
		}
	}
}

func TestConsoleRequiresPhone(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(server.New(&echoConverser{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
