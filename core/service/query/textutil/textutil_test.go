package textutil

import (
	"testing"

	"github.com/bbangmxn/mailintel/core/domain"
)

func TestStripPreamble(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"The answer is finance", "finance"},
		{"classification: aggregation", "aggregation"},
		{"semantic", "semantic"},
		{"  Type: temporal  ", "temporal"},
	}
	preambles := []string{"the answer is", "classification:", "type:"}
	for _, c := range cases {
		if got := StripPreamble(c.in, preambles); got != c.want {
			t.Errorf("StripPreamble(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFirstToken(t *testing.T) {
	if got := FirstToken("finance, banking"); got != "finance" {
		t.Errorf("got %q", got)
	}
	if got := FirstToken("  "); got != "" {
		t.Errorf("want empty, got %q", got)
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"Search_By_Sender": "search-by-sender",
		"  Semantic.  ":     "semantic",
		"AGGREGATION":       "aggregation",
	}
	for in, want := range cases {
		if got := NormalizeToken(in); got != want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindFirstValidToken(t *testing.T) {
	valid := func(s string) bool { return s == "semantic" || s == "temporal" }
	got, ok := FindFirstValidToken("well the type is probably temporal here", valid)
	if !ok || got != "temporal" {
		t.Fatalf("got %q, %v", got, ok)
	}
	if _, ok := FindFirstValidToken("nothing matches", valid); ok {
		t.Fatal("expected no match")
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("What is the total number of invoices this month", 3)
	want := []string{"total", "number", "invoices"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestKeywordsDedup(t *testing.T) {
	got := Keywords("invoices invoices invoices", 5)
	if len(got) != 1 || got[0] != "invoices" {
		t.Fatalf("got %v", got)
	}
}

func TestRecentHistoryEmpty(t *testing.T) {
	if got := RecentHistory(nil, 2); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
}

func TestRecentHistoryCapsExchanges(t *testing.T) {
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "first reply"},
		{Role: domain.RoleUser, Content: "second"},
		{Role: domain.RoleAssistant, Content: "second reply"},
	}
	got := RecentHistory(history, 1)
	want := "user: second\nassistant: second reply"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
