/*
repository.go - Persistence contract for the rent ledger

PURPOSE:
  Defines the interface between the core and the database. The core
  carries no storage state of its own; everything goes through a
  Repository, so SQLite, PostgreSQL, or an in-memory map can back it.

ATOMICITY CONTRACT:
  UpdateInstallment is the single read-modify-write primitive. The
  engine's mutations (payments, items, agreement toggling) all run
  inside it: the callback sees a consistent installment plus its
  items, returns the updated record and at most one appended child,
  and the store commits everything together or not at all.

  Concurrent callers on the same installment id serialize through it.
  A store that detects contention returns ErrConflict and the engine
  retries the whole callback.

CONDITIONAL CREATE:
  CreateInstallment is insert-if-absent in ONE operation (not
  exists-then-create), so two concurrent generation calls cannot
  double-create a period or its base rent item.

IMPLEMENTATIONS:
  - ledger/store: in-memory, for tests and dev
  - store/sqlite: production SQLite
*/
package ledger

import "context"

// InstallmentUpdate is what an UpdateInstallment callback hands back:
// the mutated installment plus at most one new child record, committed
// atomically with the totals/status change.
type InstallmentUpdate struct {
	Installment Installment
	NewPayment  *Payment
	NewItem     *Item
}

// UpdateFunc receives the current installment and its items (items are
// needed to re-sum totals) and returns the full replacement state.
// It must be side-effect free: the engine may run it again on conflict.
type UpdateFunc func(cur Installment, items []Item) (InstallmentUpdate, error)

// Repository is the storage contract the core calls through.
type Repository interface {
	// GetContract returns the contract snapshot, or NotFoundError.
	GetContract(ctx context.Context, id ContractID) (*Contract, error)

	// GetInstallment returns one installment, or NotFoundError.
	GetInstallment(ctx context.Context, id InstallmentID) (*Installment, error)

	// ListInstallments returns a contract's installments ordered by
	// period ascending.
	ListInstallments(ctx context.Context, contractID ContractID) ([]Installment, error)

	// CreateInstallment inserts the installment and its base item if
	// no installment with the same id exists. Returns false (and does
	// nothing) when the id is already present. One conditional
	// operation; safe under concurrent generation.
	CreateInstallment(ctx context.Context, inst Installment, base Item) (created bool, err error)

	// UpdateInstallment runs fn inside one atomic transaction scoped
	// to the installment, its items, and the appended child record.
	// Returns NotFoundError if the id does not exist and ErrConflict
	// on contention.
	UpdateInstallment(ctx context.Context, id InstallmentID, fn UpdateFunc) error

	// ListItems returns an installment's items in creation order.
	ListItems(ctx context.Context, id InstallmentID) ([]Item, error)

	// ListPayments returns an installment's payments in creation order.
	ListPayments(ctx context.Context, id InstallmentID) ([]Payment, error)

	// AppendNotificationLog records a dispatch made by the external
	// notifier. Append-only.
	AppendNotificationLog(ctx context.Context, entry NotificationLogEntry) error

	// ListNotificationLog returns an installment's log entries in
	// append order.
	ListNotificationLog(ctx context.Context, id InstallmentID) ([]NotificationLogEntry, error)

	// AppendContractEvent records a contract event. Append-only.
	AppendContractEvent(ctx context.Context, event ContractEvent) error

	// ListContractEvents returns a contract's events in append order.
	ListContractEvents(ctx context.Context, contractID ContractID) ([]ContractEvent, error)
}

// ContractWriter is the optional extension stores expose so fixtures
// and the surrounding system can seed contract snapshots. The core
// never creates contracts itself.
type ContractWriter interface {
	SaveContract(ctx context.Context, c Contract) error
}
