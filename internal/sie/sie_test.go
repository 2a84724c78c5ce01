package sie

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IsakPetersson/Orient/internal/domain"
)

var renderTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func tx(series string, number int64, amount, category, desc string, created time.Time) domain.Transaction {
	return domain.Transaction{
		Amount:        decimal.RequireFromString(amount),
		Description:   desc,
		Category:      category,
		VoucherSeries: series,
		VoucherNumber: number,
		CreatedAt:     created,
	}
}

func TestRenderHeader(t *testing.T) {
	org := domain.Organization{ID: 1, Name: "Testklubben IF"}
	out := Render(org, nil, DefaultMapping(), renderTime)

	want := []string{
		"#FLAGGA 0",
		`#PROGRAM "Orient" 1.0`,
		"#FORMAT PC8",
		`#GEN 20260314 "Testklubben IF"`,
		`#FNAM "Testklubben IF"`,
		"#RAR 0 20260101 20261231",
		`#KONTO 1930 "Bank"`,
	}
	lines := strings.Split(out, "\r\n")
	if len(lines) < len(want) {
		t.Fatalf("only %d lines rendered", len(lines))
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: got %q, want %q", i, lines[i], w)
		}
	}
}

func TestRenderCRLFTermination(t *testing.T) {
	out := Render(domain.Organization{Name: "X"}, nil, DefaultMapping(), renderTime)
	if !strings.HasSuffix(out, "\r\n") {
		t.Error("output does not end with CRLF")
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("found a bare LF line terminator")
	}
}

// A 100.00 membership fee and an unmapped -50.00 expense: the first voucher
// maps to 3010, the second falls back to the default expense account because
// the amount is negative.
func TestRenderScenarioMappedAndUnmapped(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	org := domain.Organization{Name: "Orienteringsklubben"}
	txs := []domain.Transaction{
		tx("A", 1, "100.00", "Medlemsavgift", "Årsavgift", created),
		tx("A", 2, "-50.00", "Fika", "Inköp", created),
	}
	out := Render(org, txs, DefaultMapping(), renderTime)

	if got := strings.Count(out, "#VER "); got != 2 {
		t.Fatalf("got %d voucher blocks, want 2", got)
	}

	block1 := []string{
		`#VER "A" 1 20260201 "Årsavgift" 20260201`,
		"#TRANS 1930 {} 100.00",
		"#TRANS 3010 {} -100.00",
		"}",
	}
	block2 := []string{
		`#VER "A" 2 20260201 "Inköp" 20260201`,
		"#TRANS 1930 {} -50.00",
		"#TRANS 6990 {} 50.00",
		"}",
	}
	for _, want := range []string{
		strings.Join(block1, "\r\n"),
		strings.Join(block2, "\r\n"),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing block:\n%s\n\nin output:\n%s", want, out)
		}
	}

	// Voucher blocks follow input order.
	if strings.Index(out, `#VER "A" 1`) > strings.Index(out, `#VER "A" 2`) {
		t.Error("voucher blocks not in input order")
	}
}

func TestRenderVouchersSumToZero(t *testing.T) {
	created := renderTime
	txs := []domain.Transaction{
		tx("A", 1, "0.01", "", "", created),
		tx("A", 2, "-999999.99", "Lokalhyra", "", created),
		tx("S", 1, "123.45", "Swish Payment", "", created),
		tx("A", 3, "0.00", "", "", created),
	}
	out := Render(domain.Organization{Name: "Z"}, txs, DefaultMapping(), renderTime)

	var sum decimal.Decimal
	var inVoucher bool
	for _, l := range strings.Split(out, "\r\n") {
		switch {
		case strings.HasPrefix(l, "#VER"):
			inVoucher = true
			sum = decimal.Zero
		case l == "}":
			if !inVoucher {
				t.Fatal("closing brace outside voucher block")
			}
			if !sum.IsZero() {
				t.Errorf("voucher does not balance: sum %s", sum)
			}
			inVoucher = false
		case strings.HasPrefix(l, "#TRANS"):
			fields := strings.Fields(l)
			amt := decimal.RequireFromString(fields[len(fields)-1])
			sum = sum.Add(amt)
		}
	}
}

func TestRenderStripsQuotes(t *testing.T) {
	org := domain.Organization{Name: `The "Best" Club`}
	txs := []domain.Transaction{
		tx("A", 1, "10.00", "", `he said "hi"`, renderTime),
	}
	out := Render(org, txs, DefaultMapping(), renderTime)

	if !strings.Contains(out, `#FNAM "The Best Club"`) {
		t.Error("organization name quotes not stripped")
	}
	if !strings.Contains(out, `"he said hi"`) {
		t.Error("description quotes not stripped")
	}
}

func TestRenderAccountDefinitionsDeduplicated(t *testing.T) {
	txs := []domain.Transaction{
		tx("A", 1, "1.00", "Medlemsavgift", "", renderTime),
		tx("A", 2, "2.00", "Medlemsavgift", "", renderTime),
		tx("A", 3, "3.00", "Sponsring", "", renderTime),
	}
	out := Render(domain.Organization{Name: "K"}, txs, DefaultMapping(), renderTime)

	for _, konto := range []string{"#KONTO 1930 ", "#KONTO 3010 ", "#KONTO 3900 "} {
		if got := strings.Count(out, konto); got != 1 {
			t.Errorf("%s appears %d times, want 1", konto, got)
		}
	}
}

func TestMappingInjectable(t *testing.T) {
	m := Mapping{
		Accounts:       map[string]int{"Hyra": 5011},
		DefaultIncome:  3000,
		DefaultExpense: 6000,
		Bank:           1910,
	}
	txs := []domain.Transaction{
		tx("A", 1, "-200.00", "Hyra", "", renderTime),
		tx("A", 2, "75.00", "Okänd", "", renderTime),
	}
	out := Render(domain.Organization{Name: "K"}, txs, m, renderTime)

	if !strings.Contains(out, "#TRANS 1910 {} -200.00") {
		t.Error("custom bank account not used")
	}
	if !strings.Contains(out, "#TRANS 5011 {} 200.00") {
		t.Error("custom category mapping not used")
	}
	if !strings.Contains(out, "#TRANS 3000 {} -75.00") {
		t.Error("custom default income account not used")
	}
}

func TestContraAccountDefaults(t *testing.T) {
	m := DefaultMapping()
	tests := []struct {
		category string
		amount   string
		want     int
	}{
		{"Medlemsavgift", "10.00", 3010},
		{"", "10.00", 3990},
		{"", "0.00", 3990}, // zero counts as non-negative
		{"", "-10.00", 6990},
		{"nonexistent", "-10.00", 6990},
	}
	for _, tc := range tests {
		got := m.ContraAccount(tc.category, decimal.RequireFromString(tc.amount))
		if got != tc.want {
			t.Errorf("ContraAccount(%q, %s) = %d, want %d", tc.category, tc.amount, got, tc.want)
		}
	}
}
