package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobranza/rent-ledger/ledger"
	"github.com/cobranza/rent-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestEngine generates a six month lease (rent 1000, due day 10,
// today 2025-03-07) and returns the engine over it.
func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	seedContract(t, repo, testContract("c1"))

	clock := fixedClock()
	_, err := ledger.NewGenerator(repo, clock).Generate(context.Background(), "c1")
	require.NoError(t, err)

	return ledger.NewEngine(repo, clock), repo
}

const marchID = ledger.InstallmentID("c1_2025-03")

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestRegisterPayment_PartialThenSettled(t *testing.T) {
	// GIVEN: An installment of 1000 with nothing paid
	// WHEN: Paying 400, then 600
	// THEN: PARCIAL with due 600, then PAGADA with due 0

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	inst, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount:      amt("400"),
		Method:      ledger.MethodEfectivo,
		CollectedBy: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusParcial, inst.Status)
	assert.True(t, inst.Totals.Total.Equal(amt("1000")))
	assert.True(t, inst.Totals.Paid.Equal(amt("400")))
	assert.True(t, inst.Totals.Due.Equal(amt("600")))

	inst, err = engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount:      amt("600"),
		Method:      ledger.MethodTransferencia,
		CollectedBy: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPagada, inst.Status)
	assert.True(t, inst.Totals.Due.IsZero())
}

func TestRegisterPayment_OverpaymentFloorsDueAtZero(t *testing.T) {
	engine, _ := newTestEngine(t)

	inst, err := engine.RegisterPayment(context.Background(), marchID, ledger.PaymentInput{
		Amount: amt("1500"),
		Method: ledger.MethodTarjeta,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPagada, inst.Status)
	assert.True(t, inst.Totals.Paid.Equal(amt("1500")))
	assert.True(t, inst.Totals.Due.IsZero(), "due never goes negative")
}

func TestRegisterPayment_RejectsNonPositiveAmounts(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{Amount: amt("0")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{Amount: amt("-50")})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRegisterPayment_WithoutReceiptIsSticky(t *testing.T) {
	// GIVEN: A payment registered without receipt
	// WHEN: A later payment arrives with a receipt
	// THEN: HasUnverifiedPayments stays true

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	inst, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount:         amt("300"),
		Method:         ledger.MethodEfectivo,
		WithoutReceipt: true,
	})
	require.NoError(t, err)
	assert.True(t, inst.HasUnverifiedPayments)

	inst, err = engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount:  amt("200"),
		Method:  ledger.MethodTransferencia,
		Receipt: &ledger.AttachmentRef{Name: "recibo.pdf", Path: "receipts/recibo.pdf"},
	})
	require.NoError(t, err)
	assert.True(t, inst.HasUnverifiedPayments, "flag never clears")
}

func TestRegisterPayment_AppendsToLedger(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount:      amt("400"),
		Method:      ledger.MethodEfectivo,
		CollectedBy: "user-1",
		Note:        "  primera cuota  ",
	})
	require.NoError(t, err)

	payments, err := repo.ListPayments(ctx, marchID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.NotEmpty(t, payments[0].ID)
	assert.Equal(t, marchID, payments[0].InstallmentID)
	assert.Equal(t, "primera cuota", payments[0].Note)
	assert.False(t, payments[0].PaidAt.IsZero())
}

// =============================================================================
// ITEM TESTS
// =============================================================================

func TestAddItem_RecomputesTotalFromAllItems(t *testing.T) {
	// GIVEN: An installment with base rent 1000
	// WHEN: Adding expenses of 200
	// THEN: Total 1200, due 1200

	engine, _ := newTestEngine(t)

	inst, err := engine.AddItem(context.Background(), marchID, ledger.ItemExpensas, "Expensas marzo", amt("200"))
	require.NoError(t, err)
	assert.True(t, inst.Totals.Total.Equal(amt("1200")))
	assert.True(t, inst.Totals.Due.Equal(amt("1200")))
}

func TestAddItem_DiscountStoredNegative(t *testing.T) {
	// GIVEN: An installment of 1000
	// WHEN: Adding a DESCUENTO of 200 (positive input)
	// THEN: The item is stored as -200 and the total drops to 800

	engine, repo := newTestEngine(t)
	ctx := context.Background()

	inst, err := engine.AddItem(ctx, marchID, ledger.ItemDescuento, "Descuento pronto pago", amt("200"))
	require.NoError(t, err)
	assert.True(t, inst.Totals.Total.Equal(amt("800")))

	items, err := repo.ListItems(ctx, marchID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[1].Amount.Equal(amt("-200")))
}

func TestAddItem_DiscountCanSettleInstallment(t *testing.T) {
	// GIVEN: 400 already paid against 1000
	// WHEN: A discount drops the total to 400
	// THEN: The installment becomes PAGADA

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount: amt("400"),
		Method: ledger.MethodEfectivo,
	})
	require.NoError(t, err)

	inst, err := engine.AddItem(ctx, marchID, ledger.ItemDescuento, "Ajuste", amt("600"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPagada, inst.Status)
	assert.True(t, inst.Totals.Due.IsZero())
}

func TestAddItem_Validation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddItem(ctx, marchID, "INVENTADO", "x", amt("100"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = engine.AddItem(ctx, marchID, ledger.ItemMora, "Mora", amt("0"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	// Only DESCUENTO may be negative.
	_, err = engine.AddItem(ctx, marchID, ledger.ItemExpensas, "Expensas", amt("-100"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAddItem_UnknownInstallment(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.AddItem(context.Background(), "c1_2099-01", ledger.ItemMora, "Mora", amt("50"))
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// AGREEMENT TESTS
// =============================================================================

func TestSetAgreement_SuspendsDerivation(t *testing.T) {
	// GIVEN: An overdue installment placed EN_ACUERDO
	// WHEN: A partial payment and a late fee arrive
	// THEN: Status stays EN_ACUERDO while totals keep moving

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	overdueID := ledger.InstallmentID("c1_2025-01")

	inst, err := engine.SetAgreement(ctx, overdueID, true, "paga en dos veces")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusEnAcuerdo, inst.Status)
	assert.Equal(t, "paga en dos veces", inst.AgreementNote)

	inst, err = engine.RegisterPayment(ctx, overdueID, ledger.PaymentInput{
		Amount: amt("400"),
		Method: ledger.MethodEfectivo,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusEnAcuerdo, inst.Status)
	assert.True(t, inst.Totals.Paid.Equal(amt("400")))

	inst, err = engine.AddItem(ctx, overdueID, ledger.ItemMora, "Mora enero", amt("100"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusEnAcuerdo, inst.Status)
	assert.True(t, inst.Totals.Total.Equal(amt("1100")))
}

func TestSetAgreement_ClearingRecomputesImmediately(t *testing.T) {
	// GIVEN: An EN_ACUERDO installment partially paid
	// WHEN: The agreement is cleared
	// THEN: Status recomputes from the ledger right away, note cleared

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	overdueID := ledger.InstallmentID("c1_2025-01")

	_, err := engine.SetAgreement(ctx, overdueID, true, "acuerdo")
	require.NoError(t, err)
	_, err = engine.RegisterPayment(ctx, overdueID, ledger.PaymentInput{
		Amount: amt("400"),
		Method: ledger.MethodEfectivo,
	})
	require.NoError(t, err)

	inst, err := engine.SetAgreement(ctx, overdueID, false, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusParcial, inst.Status)
	assert.Empty(t, inst.AgreementNote)
}

func TestSetAgreement_ClearingFullyPaidYieldsPagada(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.SetAgreement(ctx, marchID, true, "acuerdo")
	require.NoError(t, err)
	_, err = engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
		Amount: amt("1000"),
		Method: ledger.MethodTransferencia,
	})
	require.NoError(t, err)

	inst, err := engine.SetAgreement(ctx, marchID, false, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPagada, inst.Status)
}

// =============================================================================
// NOTIFICATION OVERRIDE
// =============================================================================

func TestSetNotificationOverride_SetAndClear(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	off := false
	inst, err := engine.SetNotificationOverride(ctx, marchID, &off)
	require.NoError(t, err)
	require.NotNil(t, inst.NotificationOverride)
	assert.False(t, *inst.NotificationOverride)

	inst, err = engine.SetNotificationOverride(ctx, marchID, nil)
	require.NoError(t, err)
	assert.Nil(t, inst.NotificationOverride)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// flakyRepo fails UpdateInstallment with ErrConflict a fixed number of
// times before delegating.
type flakyRepo struct {
	*store.Memory
	mu        sync.Mutex
	conflicts int
}

func (f *flakyRepo) UpdateInstallment(ctx context.Context, id ledger.InstallmentID, fn ledger.UpdateFunc) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return ledger.ErrConflict
	}
	f.mu.Unlock()
	return f.Memory.UpdateInstallment(ctx, id, fn)
}

func TestEngine_RetriesOnConflict(t *testing.T) {
	// GIVEN: A store that conflicts twice before succeeding
	// WHEN: Registering a payment
	// THEN: The engine retries within its budget and commits once

	mem := store.NewMemory()
	seedContract(t, mem, testContract("c1"))
	clock := fixedClock()
	_, err := ledger.NewGenerator(mem, clock).Generate(context.Background(), "c1")
	require.NoError(t, err)

	repo := &flakyRepo{Memory: mem, conflicts: 2}
	engine := ledger.NewEngine(repo, clock)

	inst, err := engine.RegisterPayment(context.Background(), marchID, ledger.PaymentInput{
		Amount: amt("400"),
		Method: ledger.MethodEfectivo,
	})
	require.NoError(t, err)
	assert.True(t, inst.Totals.Paid.Equal(amt("400")))

	payments, err := mem.ListPayments(context.Background(), marchID)
	require.NoError(t, err)
	assert.Len(t, payments, 1, "retries must not double-commit")
}

func TestEngine_ConflictBudgetExhausted(t *testing.T) {
	// GIVEN: A store that conflicts more times than the retry budget
	// WHEN: Registering a payment
	// THEN: ConflictError surfaces and nothing is committed

	mem := store.NewMemory()
	seedContract(t, mem, testContract("c1"))
	clock := fixedClock()
	_, err := ledger.NewGenerator(mem, clock).Generate(context.Background(), "c1")
	require.NoError(t, err)

	repo := &flakyRepo{Memory: mem, conflicts: 10}
	engine := ledger.NewEngine(repo, clock)

	_, err = engine.RegisterPayment(context.Background(), marchID, ledger.PaymentInput{
		Amount: amt("400"),
		Method: ledger.MethodEfectivo,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, marchID, conflict.InstallmentID)

	payments, err := mem.ListPayments(context.Background(), marchID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestEngine_ConcurrentPaymentsAllLand(t *testing.T) {
	// GIVEN: Ten goroutines paying 100 against the same installment
	// WHEN: They race through the atomic update
	// THEN: All ten land and the totals reconcile

	engine, repo := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RegisterPayment(ctx, marchID, ledger.PaymentInput{
				Amount: amt("100"),
				Method: ledger.MethodEfectivo,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inst, err := repo.GetInstallment(ctx, marchID)
	require.NoError(t, err)
	assert.True(t, inst.Totals.Paid.Equal(amt("1000")), "got %s", inst.Totals.Paid)
	assert.Equal(t, ledger.StatusPagada, inst.Status)

	payments, err := repo.ListPayments(ctx, marchID)
	require.NoError(t, err)
	assert.Len(t, payments, 10)
}
