package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// STATUS DERIVATION - Pure functions, calendar dates only
// =============================================================================

// Derive maps a due date against today's date:
//
//	POR_VENCER if due is after today
//	VENCE_HOY  if equal
//	VENCIDA    if before
//
// Both arguments are calendar dates; time-of-day and timezone cannot
// leak in because Date has neither.
func Derive(dueDate, today Date) Status {
	switch {
	case dueDate.After(today):
		return StatusPorVencer
	case dueDate.Equal(today):
		return StatusVenceHoy
	default:
		return StatusVencida
	}
}

// DeriveWithLedger folds the ledger totals into date derivation:
// PAGADA once paid covers total, PARCIAL while something but not all
// is paid, otherwise the pure date rule.
//
// EN_ACUERDO is never produced here. It is set and cleared only by
// the agreement toggle, and while set the engine skips derivation
// entirely rather than overwrite it.
func DeriveWithLedger(total, paid decimal.Decimal, dueDate, today Date) Status {
	if paid.GreaterThanOrEqual(total) {
		return StatusPagada
	}
	if paid.IsPositive() {
		return StatusParcial
	}
	return Derive(dueDate, today)
}
