/*
Package ledger is the billing core for leased-property rent collection.

PURPOSE:
  This package contains the domain types and algorithms for the rent
  ledger: monthly installments generated from a contract, append-only
  items and payments accumulated against each installment, totals and
  a status derived from dates and amounts, and a manual agreement
  override that suspends derivation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contract: the lease snapshot installments are generated from
  - Installment: one period's billing unit (totals + status)
  - Item: a signed line item contributing to an installment's total
  - Payment: a received amount applied against the balance
  - NotificationLogEntry / ContractEvent: append-only audit records

DESIGN PRINCIPLES:
  1. Immutability: items and payments are created once, never edited
  2. Precision: decimal.Decimal everywhere money appears
  3. Derived state: totals and status are recomputed inside one
     atomic update, never patched incrementally from the outside

SEE ALSO:
  - status.go: status derivation rules
  - engine.go: the transaction engine mutating installments
  - repository.go: the persistence contract
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type InstallmentID string

// InstallmentIDFor builds the deterministic installment id
// {contractID}_{period}. Deterministic ids are what make generation
// idempotent: the same contract and period always map to one document.
func InstallmentIDFor(contractID ContractID, period Period) InstallmentID {
	return InstallmentID(fmt.Sprintf("%s_%s", contractID, period))
}

// =============================================================================
// STATUS
// =============================================================================

// Status values are a stable external contract; renaming any of them
// breaks stored data and every consumer downstream.
type Status string

const (
	StatusPorVencer Status = "POR_VENCER" // due date in the future
	StatusVenceHoy  Status = "VENCE_HOY"  // due today
	StatusVencida   Status = "VENCIDA"    // past due
	StatusEnAcuerdo Status = "EN_ACUERDO" // manual agreement, derivation suspended
	StatusParcial   Status = "PARCIAL"    // partially paid
	StatusPagada    Status = "PAGADA"     // fully paid
)

// =============================================================================
// CONTRACT
// =============================================================================

// NotificationConfig is the contract-level reminder switch. An
// installment may override it; see Installment.NotificationOverride.
type NotificationConfig struct {
	Enabled bool
}

// PartySnapshot is the slice of a person record the ledger needs:
// display name plus reachable contact points.
type PartySnapshot struct {
	FullName string
	Email    string
	WhatsApp string
}

// Contract is the lease snapshot read by the generator and the export.
// Contract CRUD lives elsewhere; the ledger only consumes it.
type Contract struct {
	ID         ContractID
	Property   PropertySnapshot
	Tenant     PartySnapshot
	Owner      PartySnapshot
	Start      Date
	End        Date
	DueDay     int // nominal day-of-month, 1-31, clamped per month
	RentAmount decimal.Decimal
	Notify     NotificationConfig
	PDF        *AttachmentRef
}

type PropertySnapshot struct {
	Title   string
	Address string
}

// =============================================================================
// INSTALLMENT
// =============================================================================

// Totals carries the three derived amounts. Invariants:
//
//	Total = sum of the installment's item amounts
//	Paid  = sum of the installment's payment amounts
//	Due   = max(Total-Paid, 0)
type Totals struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
	Due   decimal.Decimal
}

func NewTotals(total decimal.Decimal) Totals {
	return Totals{Total: total, Paid: decimal.Zero, Due: total}
}

// Recompute derives Paid/Due from a new paid amount, flooring Due at
// zero (overpayment never shows a negative balance).
func (t Totals) Recompute(paid decimal.Decimal) Totals {
	due := t.Total.Sub(paid)
	if due.IsNegative() {
		due = decimal.Zero
	}
	return Totals{Total: t.Total, Paid: paid, Due: due}
}

// Installment is one period's billing unit for a lease. Created once
// by the generator, mutated only through Repository.UpdateInstallment,
// never deleted.
type Installment struct {
	ID        InstallmentID
	ContractID ContractID
	Period    Period
	DueDate   Date
	Status    Status
	Totals    Totals

	// HasUnverifiedPayments is sticky: once a receipt-less payment
	// lands it stays true forever, regardless of later payments.
	HasUnverifiedPayments bool

	// NotificationOverride, when non-nil, replaces the contract-level
	// notification switch for this installment only.
	NotificationOverride *bool

	// AgreementNote is stored while the installment is EN_ACUERDO.
	AgreementNote string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ITEMS
// =============================================================================

type ItemType string

const (
	ItemAlquiler  ItemType = "ALQUILER"  // base rent
	ItemExpensas  ItemType = "EXPENSAS"  // building expenses
	ItemRoturas   ItemType = "ROTURAS"   // damages
	ItemServicios ItemType = "SERVICIOS" // utilities
	ItemMora      ItemType = "MORA"      // late fee
	ItemAjuste    ItemType = "AJUSTE"    // adjustment
	ItemOtro      ItemType = "OTRO"      // other
	ItemDescuento ItemType = "DESCUENTO" // discount, stored negative
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemAlquiler, ItemExpensas, ItemRoturas, ItemServicios,
		ItemMora, ItemAjuste, ItemOtro, ItemDescuento:
		return true
	}
	return false
}

// Item is a signed line item owned by exactly one installment.
// Append-only: corrections are new AJUSTE or DESCUENTO items.
type Item struct {
	ID            string
	InstallmentID InstallmentID
	Type          ItemType
	Label         string
	Amount        decimal.Decimal // negative only for DESCUENTO
	CreatedAt     time.Time
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentMethod string

const (
	MethodEfectivo      PaymentMethod = "EFECTIVO"
	MethodTransferencia PaymentMethod = "TRANSFERENCIA"
	MethodTarjeta       PaymentMethod = "TARJETA"
	MethodOtro          PaymentMethod = "OTRO"
)

// Payment records a received amount. Owned by one installment,
// append-only.
type Payment struct {
	ID             string
	InstallmentID  InstallmentID
	Amount         decimal.Decimal
	PaidAt         time.Time
	Method         PaymentMethod
	CollectedBy    string // actor id supplied by the identity collaborator
	WithoutReceipt bool
	Receipt        *AttachmentRef
	Note           string
	CreatedAt      time.Time
}

// =============================================================================
// AUDIT RECORDS
// =============================================================================

// NotificationLogEntry is written by the external notifier after a
// dispatch and read only by the export. Append-only.
type NotificationLogEntry struct {
	InstallmentID InstallmentID
	At            time.Time
	DayKey        string // YYYY-MM-DD the dispatch was keyed on
	Type          string
	Channel       string
	Audience      string
	Recipient     string
}

// ContractEvent is a free-form log entry on the contract (visits,
// claims, repairs) with optional attachments. Append-only.
type ContractEvent struct {
	ID            string
	ContractID    ContractID
	Type          string
	At            time.Time
	Detail        string
	Tags          []string
	InstallmentID InstallmentID // optional
	CreatedBy     string
	Attachments   []AttachmentRef
}

// AttachmentRef is the retrieval contract for stored files: a display
// name plus the storage path the blob layer resolves.
type AttachmentRef struct {
	Name string
	Path string
}
