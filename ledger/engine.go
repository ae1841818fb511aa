/*
engine.go - Ledger transaction engine and agreement toggle

PURPOSE:
  Applies payments and line items to an installment and toggles the
  manual agreement state. Every mutation recomputes totals and status
  inside one atomic repository update: the new child record and the
  updated totals/status commit together or not at all.

STATUS RULE:
  While an installment is EN_ACUERDO, payments and items leave the
  status untouched; derivation resumes only when the agreement is
  cleared, at which point status is recomputed immediately from the
  current totals and due date.

CONCURRENCY:
  Concurrent mutations on the same installment serialize through the
  repository's atomic update. On ErrConflict the engine re-runs the
  whole read-modify-write up to its retry budget, then surfaces a
  ConflictError. Installments are independent aggregates; there is no
  cross-installment locking.
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultRetries = 3

// Engine coordinates all installment mutations.
type Engine struct {
	repo    Repository
	clock   Clock
	retries int
}

func NewEngine(repo Repository, clock Clock) *Engine {
	return &Engine{repo: repo, clock: clock, retries: defaultRetries}
}

// PaymentInput carries everything RegisterPayment needs besides the
// amount. CollectedBy comes from the identity collaborator.
type PaymentInput struct {
	Amount         decimal.Decimal
	PaidAt         time.Time
	Method         PaymentMethod
	CollectedBy    string
	WithoutReceipt bool
	Receipt        *AttachmentRef
	Note           string
}

// RegisterPayment appends a payment and recomputes totals and status
// atomically.
//
// A payment without receipt sets HasUnverifiedPayments permanently;
// later receipted payments never clear it.
func (e *Engine) RegisterPayment(ctx context.Context, id InstallmentID, in PaymentInput) (*Installment, error) {
	if !in.Amount.IsPositive() {
		return nil, validationf("amount", "must be greater than 0, got %s", in.Amount)
	}

	now := e.clock.Now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	payment := Payment{
		ID:             uuid.NewString(),
		Amount:         in.Amount,
		PaidAt:         paidAt,
		Method:         in.Method,
		CollectedBy:    in.CollectedBy,
		WithoutReceipt: in.WithoutReceipt,
		Receipt:        in.Receipt,
		Note:           strings.TrimSpace(in.Note),
		CreatedAt:      now,
	}

	return e.update(ctx, id, func(cur Installment, _ []Item) (InstallmentUpdate, error) {
		newPaid := cur.Totals.Paid.Add(in.Amount)
		cur.Totals = cur.Totals.Recompute(newPaid)
		if cur.Status != StatusEnAcuerdo {
			cur.Status = DeriveWithLedger(cur.Totals.Total, newPaid, cur.DueDate, DateOf(now))
		}
		if in.WithoutReceipt {
			cur.HasUnverifiedPayments = true
		}
		cur.UpdatedAt = now

		p := payment
		p.InstallmentID = cur.ID
		return InstallmentUpdate{Installment: cur, NewPayment: &p}, nil
	})
}

// AddItem appends a line item and recomputes the total as the sum of
// all items, then due and status under the same agreement-respecting
// rule as payments.
//
// For DESCUENTO a positive amount is negated; every other type must be
// strictly positive. Despite the upsert-style call shape inherited
// from the surrounding system, this only ever appends: corrections are
// new AJUSTE/DESCUENTO items, never in-place edits.
func (e *Engine) AddItem(ctx context.Context, id InstallmentID, typ ItemType, label string, amount decimal.Decimal) (*Installment, error) {
	if !typ.Valid() {
		return nil, validationf("type", "unknown item type %q", typ)
	}
	if amount.IsZero() {
		return nil, validationf("amount", "must not be 0")
	}
	if typ == ItemDescuento {
		if amount.IsPositive() {
			amount = amount.Neg()
		}
	} else if amount.IsNegative() {
		return nil, validationf("amount", "must be greater than 0 for type %s, got %s", typ, amount)
	}

	now := e.clock.Now()
	item := Item{
		ID:        uuid.NewString(),
		Type:      typ,
		Label:     strings.TrimSpace(label),
		Amount:    amount,
		CreatedAt: now,
	}

	return e.update(ctx, id, func(cur Installment, items []Item) (InstallmentUpdate, error) {
		total := amount
		for _, it := range items {
			total = total.Add(it.Amount)
		}
		cur.Totals.Total = total
		cur.Totals = cur.Totals.Recompute(cur.Totals.Paid)
		if cur.Status != StatusEnAcuerdo {
			cur.Status = DeriveWithLedger(total, cur.Totals.Paid, cur.DueDate, DateOf(now))
		}
		cur.UpdatedAt = now

		it := item
		it.InstallmentID = cur.ID
		return InstallmentUpdate{Installment: cur, NewItem: &it}, nil
	})
}

// SetAgreement toggles the manual agreement override.
//
// Enabling sets the status unconditionally to EN_ACUERDO and stores
// the note. Disabling recomputes status immediately from the current
// totals and due date rather than leaving whatever the installment
// had before the agreement.
func (e *Engine) SetAgreement(ctx context.Context, id InstallmentID, enabled bool, note string) (*Installment, error) {
	now := e.clock.Now()

	return e.update(ctx, id, func(cur Installment, _ []Item) (InstallmentUpdate, error) {
		if enabled {
			cur.Status = StatusEnAcuerdo
			cur.AgreementNote = strings.TrimSpace(note)
		} else {
			cur.Status = DeriveWithLedger(cur.Totals.Total, cur.Totals.Paid, cur.DueDate, DateOf(now))
			cur.AgreementNote = ""
		}
		cur.UpdatedAt = now
		return InstallmentUpdate{Installment: cur}, nil
	})
}

// SetNotificationOverride sets or clears (nil) the per-installment
// notification switch.
func (e *Engine) SetNotificationOverride(ctx context.Context, id InstallmentID, enabled *bool) (*Installment, error) {
	now := e.clock.Now()
	return e.update(ctx, id, func(cur Installment, _ []Item) (InstallmentUpdate, error) {
		cur.NotificationOverride = enabled
		cur.UpdatedAt = now
		return InstallmentUpdate{Installment: cur}, nil
	})
}

// update runs fn through the repository with bounded conflict retries
// and re-reads the committed installment for the caller.
func (e *Engine) update(ctx context.Context, id InstallmentID, fn UpdateFunc) (*Installment, error) {
	var lastErr error
	for attempt := 0; attempt < e.retries; attempt++ {
		lastErr = e.repo.UpdateInstallment(ctx, id, fn)
		if lastErr == nil {
			return e.repo.GetInstallment(ctx, id)
		}
		if !errors.Is(lastErr, ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, &ConflictError{InstallmentID: id, Attempts: e.retries}
}
