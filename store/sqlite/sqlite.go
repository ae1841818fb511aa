/*
Package sqlite provides a SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Repository (and ledger.ContractWriter) on SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  Items, payments, notification log entries, and contract events are
  insert-only: no UPDATE or DELETE statements exist for those tables.
  Only the installments row (totals, status, flags) is ever updated,
  and only inside UpdateInstallment's transaction.

CONCURRENCY:
  Uses a sync.Mutex to serialize writers plus an optimistic version
  column on installments: the UPDATE carries WHERE version = ?, so a
  competing writer from another process surfaces as ledger.ErrConflict
  instead of silently losing totals. SQLite is opened with WAL for
  concurrent readers.

DATES:
  Every date/time is normalized at this boundary: calendar dates as
  YYYY-MM-DD, instants as RFC3339 UTC, amounts as decimal strings.
  The core never sees a raw storage representation.

USAGE:
  repo, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer repo.Close()

  engine := ledger.NewEngine(repo, ledger.SystemClock{})

SEE ALSO:
  - ledger/repository.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cobranza/rent-ledger/ledger"
)

// Store implements ledger.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Contract snapshots (read by generator and export; CRUD elsewhere)
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		property_title TEXT NOT NULL DEFAULT '',
		property_address TEXT NOT NULL DEFAULT '',
		tenant_name TEXT NOT NULL DEFAULT '',
		tenant_email TEXT NOT NULL DEFAULT '',
		tenant_whatsapp TEXT NOT NULL DEFAULT '',
		owner_name TEXT NOT NULL DEFAULT '',
		lease_start TEXT NOT NULL,
		lease_end TEXT NOT NULL,
		due_day INTEGER NOT NULL,
		rent_amount TEXT NOT NULL,
		notify_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		pdf_name TEXT,
		pdf_path TEXT
	);

	-- Installments (the only updatable table; version guards updates)
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		period TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		total TEXT NOT NULL,
		paid TEXT NOT NULL,
		due TEXT NOT NULL,
		has_unverified_payments BOOLEAN NOT NULL DEFAULT FALSE,
		notification_override BOOLEAN,
		agreement_note TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(contract_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_contract_period
		ON installments(contract_id, period);

	-- Items (append-only)
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_installment
		ON items(installment_id, seq);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		method TEXT NOT NULL,
		collected_by TEXT NOT NULL DEFAULT '',
		without_receipt BOOLEAN NOT NULL DEFAULT FALSE,
		receipt_name TEXT,
		receipt_path TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_installment
		ON payments(installment_id, seq);

	-- Notification log (append-only, written by the external notifier)
	CREATE TABLE IF NOT EXISTS notification_log (
		installment_id TEXT NOT NULL,
		at TEXT NOT NULL,
		day_key TEXT NOT NULL,
		notify_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		audience TEXT NOT NULL,
		recipient TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notification_log_installment
		ON notification_log(installment_id, seq);

	-- Contract events (append-only)
	CREATE TABLE IF NOT EXISTS contract_events (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		at TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		installment_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		attachments_json TEXT NOT NULL DEFAULT '[]',
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contract_events_contract
		ON contract_events(contract_id, seq);

	-- Monotonic per-table sequence for creation order
	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// nextSeq hands out per-table creation-order numbers inside the
// caller's transaction, so export ordering stays deterministic even
// when two children share a created_at second.
func nextSeq(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`, name)
	if err != nil {
		return 0, err
	}
	var v int64
	err = tx.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name = ?`, name).Scan(&v)
	return v, err
}

// =============================================================================
// CONTRACTS
// =============================================================================

// SaveContract inserts or replaces a contract snapshot.
func (s *Store) SaveContract(ctx context.Context, c ledger.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pdfName, pdfPath sql.NullString
	if c.PDF != nil {
		pdfName = nullString(c.PDF.Name)
		pdfPath = nullString(c.PDF.Path)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
		(id, property_title, property_address, tenant_name, tenant_email, tenant_whatsapp,
		 owner_name, lease_start, lease_end, due_day, rent_amount, notify_enabled, pdf_name, pdf_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_title = excluded.property_title,
			property_address = excluded.property_address,
			tenant_name = excluded.tenant_name,
			tenant_email = excluded.tenant_email,
			tenant_whatsapp = excluded.tenant_whatsapp,
			owner_name = excluded.owner_name,
			lease_start = excluded.lease_start,
			lease_end = excluded.lease_end,
			due_day = excluded.due_day,
			rent_amount = excluded.rent_amount,
			notify_enabled = excluded.notify_enabled,
			pdf_name = excluded.pdf_name,
			pdf_path = excluded.pdf_path`,
		c.ID, c.Property.Title, c.Property.Address,
		c.Tenant.FullName, c.Tenant.Email, c.Tenant.WhatsApp,
		c.Owner.FullName,
		c.Start.String(), c.End.String(), c.DueDay, c.RentAmount.String(),
		c.Notify.Enabled, pdfName, pdfPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func (s *Store) GetContract(ctx context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, property_title, property_address, tenant_name, tenant_email, tenant_whatsapp,
		       owner_name, lease_start, lease_end, due_day, rent_amount, notify_enabled, pdf_name, pdf_path
		FROM contracts WHERE id = ?`, id)

	var (
		c                    ledger.Contract
		leaseStart, leaseEnd string
		rent                 string
		pdfName, pdfPath     sql.NullString
	)
	err := row.Scan(&c.ID, &c.Property.Title, &c.Property.Address,
		&c.Tenant.FullName, &c.Tenant.Email, &c.Tenant.WhatsApp,
		&c.Owner.FullName, &leaseStart, &leaseEnd, &c.DueDay, &rent,
		&c.Notify.Enabled, &pdfName, &pdfPath)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "contract", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	if c.Start, err = ledger.ParseDate(leaseStart); err != nil {
		return nil, err
	}
	if c.End, err = ledger.ParseDate(leaseEnd); err != nil {
		return nil, err
	}
	c.RentAmount = mustDecimal(rent)
	if pdfPath.Valid {
		c.PDF = &ledger.AttachmentRef{Name: pdfName.String, Path: pdfPath.String}
	}
	return &c, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, contract_id, period, due_date, status, total, paid, due,
	has_unverified_payments, notification_override, agreement_note, created_at, updated_at`

func (s *Store) GetInstallment(ctx context.Context, id ledger.InstallmentID) (*ledger.Installment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id)
	inst, _, err := scanInstallment(row, false)
	if err != nil {
		return nil, notFoundID(err, id)
	}
	return inst, nil
}

func (s *Store) ListInstallments(ctx context.Context, contractID ledger.ContractID) ([]ledger.Installment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE contract_id = ? ORDER BY period ASC`,
		contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var result []ledger.Installment
	for rows.Next() {
		inst, _, err := scanInstallment(rows, false)
		if err != nil {
			return nil, err
		}
		result = append(result, *inst)
	}
	return result, rows.Err()
}

// CreateInstallment inserts the installment and its base item if the
// id is not already present. INSERT OR IGNORE makes the existence
// check and the insert one conditional statement; concurrent
// generation cannot double-create a period.
func (s *Store) CreateInstallment(ctx context.Context, inst ledger.Installment, base ledger.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO installments
		(id, contract_id, period, due_date, status, total, paid, due,
		 has_unverified_payments, notification_override, agreement_note, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		inst.ID, inst.ContractID, inst.Period.String(), inst.DueDate.String(), inst.Status,
		inst.Totals.Total.String(), inst.Totals.Paid.String(), inst.Totals.Due.String(),
		inst.HasUnverifiedPayments, nullBool(inst.NotificationOverride), inst.AgreementNote,
		formatTime(inst.CreatedAt), formatTime(inst.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create installment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := insertItem(ctx, tx, base); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// UpdateInstallment runs fn inside one transaction: read installment
// and items, apply, write back guarded by the version column, append
// the new child. Version mismatch and database contention both map to
// ledger.ErrConflict so the engine's retry loop handles them.
func (s *Store) UpdateInstallment(ctx context.Context, id ledger.InstallmentID, fn ledger.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+installmentColumns+`, version FROM installments WHERE id = ?`, id)
	cur, version, err := scanInstallment(row, true)
	if err != nil {
		return notFoundID(err, id)
	}

	items, err := queryItems(ctx, tx, id)
	if err != nil {
		return err
	}

	update, err := fn(*cur, items)
	if err != nil {
		return err
	}
	next := update.Installment

	res, err := tx.ExecContext(ctx, `
		UPDATE installments SET
			status = ?, total = ?, paid = ?, due = ?,
			has_unverified_payments = ?, notification_override = ?, agreement_note = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Status, next.Totals.Total.String(), next.Totals.Paid.String(), next.Totals.Due.String(),
		next.HasUnverifiedPayments, nullBool(next.NotificationOverride), next.AgreementNote,
		formatTime(next.UpdatedAt), id, version,
	)
	if err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrConflict
	}

	if update.NewItem != nil {
		if err := insertItem(ctx, tx, *update.NewItem); err != nil {
			return err
		}
	}
	if update.NewPayment != nil {
		if err := insertPayment(ctx, tx, *update.NewPayment); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstallment(row scanner, withVersion bool) (*ledger.Installment, int64, error) {
	var (
		inst                 ledger.Installment
		period, dueDate      string
		total, paid, due     string
		override             sql.NullBool
		createdAt, updatedAt string
		version              int64
	)

	dest := []any{
		&inst.ID, &inst.ContractID, &period, &dueDate, &inst.Status,
		&total, &paid, &due, &inst.HasUnverifiedPayments, &override,
		&inst.AgreementNote, &createdAt, &updatedAt,
	}
	if withVersion {
		dest = append(dest, &version)
	}

	err := row.Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, 0, sql.ErrNoRows
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan installment: %w", err)
	}

	if inst.Period, err = ledger.ParsePeriod(period); err != nil {
		return nil, 0, err
	}
	if inst.DueDate, err = ledger.ParseDate(dueDate); err != nil {
		return nil, 0, err
	}
	inst.Totals = ledger.Totals{Total: mustDecimal(total), Paid: mustDecimal(paid), Due: mustDecimal(due)}
	if override.Valid {
		inst.NotificationOverride = &override.Bool
	}
	inst.CreatedAt = parseTime(createdAt)
	inst.UpdatedAt = parseTime(updatedAt)
	return &inst, version, nil
}

func notFoundID(err error, id ledger.InstallmentID) error {
	if err == sql.ErrNoRows {
		return &ledger.NotFoundError{Kind: "installment", ID: string(id)}
	}
	return err
}

// =============================================================================
// ITEMS & PAYMENTS
// =============================================================================

func insertItem(ctx context.Context, tx *sql.Tx, item ledger.Item) error {
	seq, err := nextSeq(ctx, tx, "items")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (id, installment_id, item_type, label, amount, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.InstallmentID, item.Type, item.Label,
		item.Amount.String(), formatTime(item.CreatedAt), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p ledger.Payment) error {
	seq, err := nextSeq(ctx, tx, "payments")
	if err != nil {
		return err
	}
	var receiptName, receiptPath sql.NullString
	if p.Receipt != nil {
		receiptName = nullString(p.Receipt.Name)
		receiptPath = nullString(p.Receipt.Path)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments
		(id, installment_id, amount, paid_at, method, collected_by, without_receipt,
		 receipt_name, receipt_path, note, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.InstallmentID, p.Amount.String(), formatTime(p.PaidAt), p.Method,
		p.CollectedBy, p.WithoutReceipt, receiptName, receiptPath, p.Note,
		formatTime(p.CreatedAt), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func queryItems(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, id ledger.InstallmentID) ([]ledger.Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, installment_id, item_type, label, amount, created_at
		FROM items WHERE installment_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		var (
			item      ledger.Item
			amount    string
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.InstallmentID, &item.Type, &item.Label, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Amount = mustDecimal(amount)
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListItems(ctx context.Context, id ledger.InstallmentID) ([]ledger.Item, error) {
	return queryItems(ctx, s.db, id)
}

func (s *Store) ListPayments(ctx context.Context, id ledger.InstallmentID) ([]ledger.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, installment_id, amount, paid_at, method, collected_by, without_receipt,
		       receipt_name, receipt_path, note, created_at
		FROM payments WHERE installment_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                         ledger.Payment
			amount, paidAt, createdAt string
			receiptName, receiptPath  sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.InstallmentID, &amount, &paidAt, &p.Method,
			&p.CollectedBy, &p.WithoutReceipt, &receiptName, &receiptPath, &p.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = mustDecimal(amount)
		p.PaidAt = parseTime(paidAt)
		p.CreatedAt = parseTime(createdAt)
		if receiptPath.Valid {
			p.Receipt = &ledger.AttachmentRef{Name: receiptName.String, Path: receiptPath.String}
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// NOTIFICATION LOG & CONTRACT EVENTS
// =============================================================================

func (s *Store) AppendNotificationLog(ctx context.Context, entry ledger.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "notification_log")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notification_log
		(installment_id, at, day_key, notify_type, channel, audience, recipient, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.InstallmentID, formatTime(entry.At), entry.DayKey,
		entry.Type, entry.Channel, entry.Audience, entry.Recipient, seq,
	)
	if err != nil {
		return fmt.Errorf("failed to append notification log: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListNotificationLog(ctx context.Context, id ledger.InstallmentID) ([]ledger.NotificationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT installment_id, at, day_key, notify_type, channel, audience, recipient
		FROM notification_log WHERE installment_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.NotificationLogEntry
	for rows.Next() {
		var (
			e  ledger.NotificationLogEntry
			at string
		)
		if err := rows.Scan(&e.InstallmentID, &at, &e.DayKey, &e.Type, &e.Channel, &e.Audience, &e.Recipient); err != nil {
			return nil, fmt.Errorf("failed to scan notification log entry: %w", err)
		}
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendContractEvent(ctx context.Context, event ledger.ContractEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "contract_events")
	if err != nil {
		return err
	}
	attachmentsJSON, _ := json.Marshal(event.Attachments)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO contract_events
		(id, contract_id, event_type, at, detail, tags, installment_id, created_by, attachments_json, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ContractID, event.Type, formatTime(event.At), event.Detail,
		strings.Join(event.Tags, "|"), event.InstallmentID, event.CreatedBy,
		string(attachmentsJSON), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to append contract event: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListContractEvents(ctx context.Context, contractID ledger.ContractID) ([]ledger.ContractEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, event_type, at, detail, tags, installment_id, created_by, attachments_json
		FROM contract_events WHERE contract_id = ? ORDER BY seq ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract events: %w", err)
	}
	defer rows.Close()

	var events []ledger.ContractEvent
	for rows.Next() {
		var (
			e               ledger.ContractEvent
			at, tags        string
			attachmentsJSON string
		)
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Type, &at, &e.Detail, &tags,
			&e.InstallmentID, &e.CreatedBy, &attachmentsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan contract event: %w", err)
		}
		e.At = parseTime(at)
		if tags != "" {
			e.Tags = strings.Split(tags, "|")
		}
		if attachmentsJSON != "" {
			json.Unmarshal([]byte(attachmentsJSON), &e.Attachments)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}

var _ ledger.Repository = (*Store)(nil)
var _ ledger.ContractWriter = (*Store)(nil)
