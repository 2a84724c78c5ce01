// Package sie renders an organization's ledger as a SIE4 interchange file.
// The renderer is a pure function over its inputs; callers that need
// byte-stable output across repeated exports pre-sort transactions by
// voucher series and number.
package sie

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IsakPetersson/Orient/internal/domain"
)

// Mapping selects the contra account for each transaction. Category labels
// map to account numbers; unmapped or missing categories fall back to a
// default chosen by the sign of the amount.
type Mapping struct {
	Accounts       map[string]int
	DefaultIncome  int
	DefaultExpense int
	Bank           int
}

// DefaultMapping is a BAS chart approximation suitable for a small club.
// Tenants can override it without code changes.
func DefaultMapping() Mapping {
	return Mapping{
		Accounts: map[string]int{
			"Medlemsavgift":  3010,
			"Tävlingsavgift": 3050,
			"Träningsavgift": 3040,
			"Sponsring":      3900,
			"Lokalhyra":      5010,
			"Utrustning":     4010,
			"Övrigt":         6990,
		},
		DefaultIncome:  3990,
		DefaultExpense: 6990,
		Bank:           1930,
	}
}

// ContraAccount resolves the balancing account for one transaction.
func (m Mapping) ContraAccount(category string, amount decimal.Decimal) int {
	if category != "" {
		if acc, ok := m.Accounts[category]; ok {
			return acc
		}
	}
	if amount.Sign() >= 0 {
		return m.DefaultIncome
	}
	return m.DefaultExpense
}

const programName = "Orient"
const programVersion = "1.0"

// Render produces the SIE4 document for one organization. Each transaction
// expands into a voucher of two entries, bank and contra, whose amounts are
// exact negations of each other so every voucher sums to zero by
// construction.
func Render(org domain.Organization, txs []domain.Transaction, m Mapping, now time.Time) string {
	var b strings.Builder

	genDate := sieDate(now)
	year := now.Year()

	line(&b, "#FLAGGA 0")
	line(&b, fmt.Sprintf("#PROGRAM %s %s", quote(programName), programVersion))
	line(&b, "#FORMAT PC8")
	line(&b, fmt.Sprintf("#GEN %s %s", genDate, quote(org.Name)))
	line(&b, fmt.Sprintf("#FNAM %s", quote(org.Name)))
	line(&b, fmt.Sprintf("#RAR 0 %d0101 %d1231", year, year))

	for _, acc := range usedAccounts(txs, m) {
		name := "Konto " + fmt.Sprint(acc)
		if acc == m.Bank {
			name = "Bank"
		}
		line(&b, fmt.Sprintf("#KONTO %d %s", acc, quote(name)))
	}
	line(&b, "")

	for _, t := range txs {
		date := sieDate(t.CreatedAt)
		desc := t.Description
		if desc == "" {
			desc = "Transaktion"
		}
		line(&b, fmt.Sprintf("#VER %s %d %s %s %s",
			quote(t.VoucherSeries), t.VoucherNumber, date, quote(desc), date))

		amount := t.Amount.Round(2)
		line(&b, fmt.Sprintf("#TRANS %d {} %s", m.Bank, amount.StringFixed(2)))
		line(&b, fmt.Sprintf("#TRANS %d {} %s", m.ContraAccount(t.Category, t.Amount), amount.Neg().StringFixed(2)))
		line(&b, "}")
	}

	return b.String()
}

// usedAccounts collects every account number the document references,
// de-duplicated and sorted for stable output.
func usedAccounts(txs []domain.Transaction, m Mapping) []int {
	set := map[int]bool{m.Bank: true}
	for _, t := range txs {
		set[m.ContraAccount(t.Category, t.Amount)] = true
	}
	accounts := make([]int, 0, len(set))
	for acc := range set {
		accounts = append(accounts, acc)
	}
	sort.Ints(accounts)
	return accounts
}

func line(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteString("\r\n")
}

// quote wraps s in double quotes, stripping any embedded quote characters
// since the grammar has no escape sequence for them.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}

func sieDate(t time.Time) string {
	return t.Format("20060102")
}
