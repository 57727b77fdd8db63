package hotctx_test

import (
	"strings"
	"testing"

	"github.com/tinredperu/jack/internal/hotctx"
	"github.com/tinredperu/jack/internal/session"
	"github.com/tinredperu/jack/internal/tinred"
)

func TestFormatSystemPrompt(t *testing.T) {
	t.Parallel()

	t.Run("includes persona and company", func(t *testing.T) {
		t.Parallel()
		got := hotctx.FormatSystemPrompt(tinred.Company{Name: "Bodega Rosita SAC"}, nil)
		if !strings.Contains(got, "Jack") {
			t.Error("persona missing")
		}
		if !strings.Contains(got, "Bodega Rosita SAC") {
			t.Error("company name missing")
		}
	})

	t.Run("nil context omits the data block", func(t *testing.T) {
		t.Parallel()
		got := hotctx.FormatSystemPrompt(tinred.Company{}, nil)
		if strings.Contains(got, "##") {
			t.Errorf("unexpected section header in:\n%s", got)
		}
	})
}

func TestFormatContextBlock(t *testing.T) {
	t.Parallel()

	t.Run("renders all sections", func(t *testing.T) {
		t.Parallel()
		uc := &session.UserContext{
			Products: []tinred.Product{
				{Name: "GASEOSA INCA KOLA 500ML", Unit: "UND", UnitPrice: "3.50"},
			},
			Clients: []tinred.Customer{
				{Name: "JUAN PEREZ", Document: "12345678", IDType: tinred.IDDNI},
			},
			History: []tinred.HistoryEntry{
				{DocumentType: tinred.DocBoleta, Serie: "B001", Number: "00000042",
					ClientName: "JUAN PEREZ", Total: "17.50", IssuedAt: "2026-08-24"},
			},
		}

		got := hotctx.FormatContextBlock(uc)
		for _, want := range []string{
			"## Productos del negocio",
			"GASEOSA INCA KOLA 500ML (UND): S/ 3.50",
			"## Clientes registrados",
			"JUAN PEREZ (DNI 12345678)",
			"## Comprobantes recientes",
			"B001-00000042",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("block missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("empty sections are omitted", func(t *testing.T) {
		t.Parallel()
		uc := &session.UserContext{
			Products: []tinred.Product{{Name: "AGUA SAN LUIS 625ML"}},
		}
		got := hotctx.FormatContextBlock(uc)
		if strings.Contains(got, "Clientes") || strings.Contains(got, "Comprobantes") {
			t.Errorf("empty sections rendered:\n%s", got)
		}
	})

	t.Run("product list is capped", func(t *testing.T) {
		t.Parallel()
		uc := &session.UserContext{}
		for range 50 {
			uc.Products = append(uc.Products, tinred.Product{Name: "PRODUCTO"})
		}
		got := hotctx.FormatContextBlock(uc)
		if n := strings.Count(got, "- PRODUCTO"); n != 30 {
			t.Errorf("rendered %d products, want cap of 30", n)
		}
	})

	t.Run("nil context renders nothing", func(t *testing.T) {
		t.Parallel()
		if got := hotctx.FormatContextBlock(nil); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}
