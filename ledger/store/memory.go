// Package store provides an in-memory Repository implementation for
// tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cobranza/rent-ledger/ledger"
)

// =============================================================================
// MEMORY REPOSITORY
// =============================================================================

// Memory implements ledger.Repository with maps guarded by one mutex.
// The mutex makes every UpdateInstallment a serialized atomic
// read-modify-write, which is exactly the concurrency contract the
// engine relies on; no version counters are needed here.
type Memory struct {
	mu           sync.RWMutex
	contracts    map[ledger.ContractID]ledger.Contract
	installments map[ledger.InstallmentID]ledger.Installment
	items        map[ledger.InstallmentID][]ledger.Item
	payments     map[ledger.InstallmentID][]ledger.Payment
	notifyLog    map[ledger.InstallmentID][]ledger.NotificationLogEntry
	events       map[ledger.ContractID][]ledger.ContractEvent
}

func NewMemory() *Memory {
	return &Memory{
		contracts:    make(map[ledger.ContractID]ledger.Contract),
		installments: make(map[ledger.InstallmentID]ledger.Installment),
		items:        make(map[ledger.InstallmentID][]ledger.Item),
		payments:     make(map[ledger.InstallmentID][]ledger.Payment),
		notifyLog:    make(map[ledger.InstallmentID][]ledger.NotificationLogEntry),
		events:       make(map[ledger.ContractID][]ledger.ContractEvent),
	}
}

// SaveContract seeds a contract snapshot. Implements ledger.ContractWriter.
func (m *Memory) SaveContract(_ context.Context, c ledger.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) GetContract(_ context.Context, id ledger.ContractID) (*ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "contract", ID: string(id)}
	}
	return &c, nil
}

func (m *Memory) GetInstallment(_ context.Context, id ledger.InstallmentID) (*ledger.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.installments[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "installment", ID: string(id)}
	}
	return &inst, nil
}

func (m *Memory) ListInstallments(_ context.Context, contractID ledger.ContractID) ([]ledger.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Installment
	for _, inst := range m.installments {
		if inst.ContractID == contractID {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.String() < result[j].Period.String()
	})
	return result, nil
}

// CreateInstallment is insert-if-absent under the lock: the existence
// check and the insert cannot interleave with another creation.
func (m *Memory) CreateInstallment(_ context.Context, inst ledger.Installment, base ledger.Item) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.installments[inst.ID]; exists {
		return false, nil
	}
	m.installments[inst.ID] = inst
	m.items[inst.ID] = append(m.items[inst.ID], base)
	return true, nil
}

func (m *Memory) UpdateInstallment(_ context.Context, id ledger.InstallmentID, fn ledger.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.installments[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "installment", ID: string(id)}
	}

	items := append([]ledger.Item(nil), m.items[id]...)
	update, err := fn(cur, items)
	if err != nil {
		return err
	}

	m.installments[id] = update.Installment
	if update.NewItem != nil {
		m.items[id] = append(m.items[id], *update.NewItem)
	}
	if update.NewPayment != nil {
		m.payments[id] = append(m.payments[id], *update.NewPayment)
	}
	return nil
}

func (m *Memory) ListItems(_ context.Context, id ledger.InstallmentID) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.Item(nil), m.items[id]...), nil
}

func (m *Memory) ListPayments(_ context.Context, id ledger.InstallmentID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.Payment(nil), m.payments[id]...), nil
}

func (m *Memory) AppendNotificationLog(_ context.Context, entry ledger.NotificationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyLog[entry.InstallmentID] = append(m.notifyLog[entry.InstallmentID], entry)
	return nil
}

func (m *Memory) ListNotificationLog(_ context.Context, id ledger.InstallmentID) ([]ledger.NotificationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.NotificationLogEntry(nil), m.notifyLog[id]...), nil
}

func (m *Memory) AppendContractEvent(_ context.Context, event ledger.ContractEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ContractID] = append(m.events[event.ContractID], event)
	return nil
}

func (m *Memory) ListContractEvents(_ context.Context, contractID ledger.ContractID) ([]ledger.ContractEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.ContractEvent(nil), m.events[contractID]...), nil
}

var _ ledger.Repository = (*Memory)(nil)
var _ ledger.ContractWriter = (*Memory)(nil)
