/*
generator.go - Monthly installment generation

PURPOSE:
  Expands a lease into one installment per calendar month between the
  start and end dates (inclusive by year+month), each seeded with a
  base rent item.

IDEMPOTENCY:
  Installment ids are deterministic ({contractId}_{YYYY-MM}) and
  creation is insert-if-absent, so generating twice - or from two
  callers at once - yields the same set. Existing installments are
  never touched: if the rent changes later, already-generated periods
  keep their original amounts.
*/
package ledger

import (
	"context"

	"github.com/google/uuid"
)

// GenerationResult reports what a generation pass did.
type GenerationResult struct {
	Created int
	Skipped int
}

// Generator expands contracts into monthly installments.
type Generator struct {
	repo  Repository
	clock Clock
}

func NewGenerator(repo Repository, clock Clock) *Generator {
	return &Generator{repo: repo, clock: clock}
}

// Generate creates the missing installments for the contract's lease
// range. Validates the range and due day before touching storage.
func (g *Generator) Generate(ctx context.Context, contractID ContractID) (GenerationResult, error) {
	contract, err := g.repo.GetContract(ctx, contractID)
	if err != nil {
		return GenerationResult{}, err
	}
	return g.GenerateFor(ctx, contract)
}

// GenerateFor is Generate with the contract snapshot already in hand.
func (g *Generator) GenerateFor(ctx context.Context, contract *Contract) (GenerationResult, error) {
	if contract.DueDay < 1 || contract.DueDay > 31 {
		return GenerationResult{}, validationf("dueDay", "must be between 1 and 31, got %d", contract.DueDay)
	}
	if contract.Start.After(contract.End) {
		return GenerationResult{}, validationf("dates", "lease start %s is after end %s", contract.Start, contract.End)
	}

	now := g.clock.Now()
	today := DateOf(now)

	var result GenerationResult
	for _, period := range PeriodsBetween(contract.Start, contract.End) {
		dueDate := period.DueDate(contract.DueDay)
		inst := Installment{
			ID:         InstallmentIDFor(contract.ID, period),
			ContractID: contract.ID,
			Period:     period,
			DueDate:    dueDate,
			Status:     Derive(dueDate, today),
			Totals:     NewTotals(contract.RentAmount),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		base := Item{
			ID:            uuid.NewString(),
			InstallmentID: inst.ID,
			Type:          ItemAlquiler,
			Label:         "Alquiler",
			Amount:        contract.RentAmount,
			CreatedAt:     now,
		}

		created, err := g.repo.CreateInstallment(ctx, inst, base)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}
