package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cobranza/rent-ledger/ledger"
)

func d(day int) ledger.Date {
	return ledger.NewDate(2025, time.March, day)
}

func amt(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// DATE-ONLY DERIVATION
// =============================================================================

func TestDerive_CalendarDates(t *testing.T) {
	cases := []struct {
		name    string
		dueDate ledger.Date
		today   ledger.Date
		want    ledger.Status
	}{
		{"future due date", d(10), d(7), ledger.StatusPorVencer},
		{"one day ahead", d(10), d(9), ledger.StatusPorVencer},
		{"due today", d(10), d(10), ledger.StatusVenceHoy},
		{"one day past", d(10), d(11), ledger.StatusVencida},
		{"long overdue", d(1), d(31), ledger.StatusVencida},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ledger.Derive(tc.dueDate, tc.today); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// =============================================================================
// LEDGER-AWARE DERIVATION
// =============================================================================

func TestDeriveWithLedger_PaymentStates(t *testing.T) {
	cases := []struct {
		name  string
		total string
		paid  string
		today ledger.Date
		want  ledger.Status
	}{
		{"nothing paid, future", "1000", "0", d(5), ledger.StatusPorVencer},
		{"nothing paid, overdue", "1000", "0", d(15), ledger.StatusVencida},
		{"partial payment", "1000", "400", d(5), ledger.StatusParcial},
		{"partial overrides overdue", "1000", "400", d(20), ledger.StatusParcial},
		{"exactly paid", "1000", "1000", d(5), ledger.StatusPagada},
		{"overpaid", "1000", "1200", d(20), ledger.StatusPagada},
		{"paid covers zero total", "0", "0", d(5), ledger.StatusPagada},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ledger.DeriveWithLedger(amt(tc.total), amt(tc.paid), d(10), tc.today)
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
