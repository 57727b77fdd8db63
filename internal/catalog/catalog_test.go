package catalog_test

import (
	"testing"

	"github.com/tinredperu/jack/internal/catalog"
	"github.com/tinredperu/jack/internal/tinred"
)

var testProducts = []tinred.Product{
	{Code: "P001", Name: "GASEOSA INCA KOLA 500ML", Unit: "UND", UnitPrice: "3.50"},
	{Code: "P002", Name: "GASEOSA COCA COLA 500ML", Unit: "UND", UnitPrice: "3.80"},
	{Code: "P003", Name: "AGUA SAN LUIS 625ML", Unit: "UND", UnitPrice: "2.00"},
	{Code: "P004", Name: "ARROZ COSTEÑO 5KG", Unit: "BOL", UnitPrice: "24.90"},
	{Code: "P005", Name: "ACEITE PRIMOR 1L", Unit: "UND", UnitPrice: "9.90"},
}

func TestTerm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"busca gaseosa", "gaseosa"},
		{"tienes agua san luis?", "agua san luis"},
		{"precio de la inca kola", "inca kola"},
		{"cuánto cuesta el arroz", "arroz"},
		{"¿vendes aceite primor?", "aceite primor"},
	}
	for _, tc := range tests {
		if got := catalog.Term(tc.in); got != tc.want {
			t.Errorf("Term(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	s := catalog.NewSearcher()

	t.Run("substring match", func(t *testing.T) {
		t.Parallel()
		got := s.Search(testProducts, "inca kola")
		if len(got) == 0 || got[0].Code != "P001" {
			t.Fatalf("Search(inca kola) = %+v, want P001 first", got)
		}
	})

	t.Run("all tokens contained ranks first", func(t *testing.T) {
		t.Parallel()
		got := s.Search(testProducts, "agua luis")
		if len(got) == 0 || got[0].Code != "P003" {
			t.Fatalf("Search(agua luis) = %+v, want P003 first", got)
		}
	})

	t.Run("generic term returns several", func(t *testing.T) {
		t.Parallel()
		got := s.Search(testProducts, "gaseosa")
		if len(got) < 2 {
			t.Fatalf("Search(gaseosa) = %d results, want both colas", len(got))
		}
	})

	t.Run("misspelling still matches phonetically", func(t *testing.T) {
		t.Parallel()
		got := s.Search(testProducts, "inka cola")
		if len(got) == 0 {
			t.Fatal("Search(inka cola) found nothing")
		}
	})

	t.Run("unrelated term matches nothing", func(t *testing.T) {
		t.Parallel()
		if got := s.Search(testProducts, "zzzz"); len(got) != 0 {
			t.Fatalf("Search(zzzz) = %+v, want empty", got)
		}
	})

	t.Run("empty query matches nothing", func(t *testing.T) {
		t.Parallel()
		if got := s.Search(testProducts, "  "); got != nil {
			t.Fatalf("Search(blank) = %+v, want nil", got)
		}
	})
}

func TestBest(t *testing.T) {
	t.Parallel()

	s := catalog.NewSearcher()

	if p, ok := s.Best(testProducts, "arroz"); !ok || p.Code != "P004" {
		t.Errorf("Best(arroz) = %+v/%v, want P004", p, ok)
	}
	if _, ok := s.Best(nil, "arroz"); ok {
		t.Error("Best over empty catalogue must not match")
	}
}
