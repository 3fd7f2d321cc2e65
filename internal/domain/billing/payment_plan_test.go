package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %v", err)
	assert.Equal(t, code, domainErr.Code)
}

// createTestPlan builds the reference plan from the allocation examples:
// down payment 1000 (#0) plus two 500 installments (#1, #2), deal total 2000.
func createTestPlan(t *testing.T) *PaymentPlan {
	t.Helper()
	start := time.Now().AddDate(0, 1, 0)
	plan, err := NewPaymentPlan(uuid.New(), uuid.New(), d(2000), d(1000), start, []InstallmentSpec{
		{Amount: d(500), DueDate: start.AddDate(0, 1, 0), Type: InstallmentTypeMonthly},
		{Amount: d(500), DueDate: start.AddDate(0, 2, 0), Type: InstallmentTypeMonthly},
	})
	require.NoError(t, err)
	return plan
}

func TestNewPaymentPlan(t *testing.T) {
	plan := createTestPlan(t)

	require.Len(t, plan.Installments, 3)
	sorted := plan.SortedInstallments()
	assert.Equal(t, DownPaymentNumber, sorted[0].Number)
	assert.Equal(t, InstallmentTypeDownPayment, sorted[0].Type)
	assert.Equal(t, 1, sorted[1].Number)
	assert.Equal(t, 2, sorted[2].Number)

	// down payment is owed, not received
	assert.True(t, plan.TotalPaid.IsZero())
	assert.Equal(t, PlanStatusPending, plan.Status)
	assert.True(t, plan.TotalExpected.Equal(d(2000)))
}

func TestNewPaymentPlan_AmountMismatch(t *testing.T) {
	start := time.Now()
	_, err := NewPaymentPlan(uuid.New(), uuid.New(), d(2000), d(1000), start, []InstallmentSpec{
		{Amount: d(500), DueDate: start, Type: InstallmentTypeMonthly},
		{Amount: d(400), DueDate: start, Type: InstallmentTypeMonthly},
	})
	require.Error(t, err)
	assertDomainCode(t, err, "PLAN_AMOUNT_MISMATCH")
	// the exact shortfall is reported
	assert.Contains(t, err.Error(), "shortfall of 100.00")

	_, err = NewPaymentPlan(uuid.New(), uuid.New(), d(2000), d(1000), start, []InstallmentSpec{
		{Amount: d(500), DueDate: start, Type: InstallmentTypeMonthly},
		{Amount: d(650), DueDate: start, Type: InstallmentTypeMonthly},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excess of 150.00")
}

func TestNewPaymentPlan_MismatchWithinTolerance(t *testing.T) {
	start := time.Now()
	plan, err := NewPaymentPlan(uuid.New(), uuid.New(), d(2000), d(1000), start, []InstallmentSpec{
		{Amount: d(500), DueDate: start, Type: InstallmentTypeMonthly},
		{Amount: d(499.995), DueDate: start, Type: InstallmentTypeMonthly},
	})
	require.NoError(t, err)
	assert.NotNil(t, plan)
}

func TestNewPaymentPlan_ZeroDownPayment(t *testing.T) {
	start := time.Now()
	plan, err := NewPaymentPlan(uuid.New(), uuid.New(), d(1000), decimal.Zero, start, []InstallmentSpec{
		{Amount: d(1000), DueDate: start, Type: InstallmentTypeCustom},
	})
	require.NoError(t, err)

	// no down-payment installment is materialized for a zero down payment
	require.Len(t, plan.Installments, 1)
	assert.Equal(t, 1, plan.Installments[0].Number)
}

func TestAllocateFIFO_PartialPayment(t *testing.T) {
	plan := createTestPlan(t)

	allocations, excess, err := plan.AllocateFIFO(d(1200))
	require.NoError(t, err)

	// {#0: 1000, #1: 200}, #2 untouched, no excess
	require.Len(t, allocations, 2)
	assert.Equal(t, DownPaymentNumber, allocations[0].InstallmentNumber)
	assert.True(t, allocations[0].Amount.Equal(d(1000)))
	assert.Equal(t, 1, allocations[1].InstallmentNumber)
	assert.True(t, allocations[1].Amount.Equal(d(200)))
	assert.True(t, excess.IsZero())

	sorted := plan.SortedInstallments()
	assert.Equal(t, InstallmentStatusPaid, sorted[0].Status)
	assert.Equal(t, InstallmentStatusPartial, sorted[1].Status)
	assert.Equal(t, InstallmentStatusPending, sorted[2].Status)
	assert.True(t, sorted[2].PaidAmount.IsZero())

	assert.True(t, plan.TotalPaid.Equal(d(1200)))
	assert.Equal(t, PlanStatusPartiallyPaid, plan.Status)
	assert.False(t, plan.IsFullyPaid())
}

func TestAllocateFIFO_ExcessIgnored(t *testing.T) {
	plan := createTestPlan(t)

	allocations, excess, err := plan.AllocateFIFO(d(2500))
	require.NoError(t, err)

	require.Len(t, allocations, 3)
	var total decimal.Decimal
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	assert.True(t, total.Equal(d(2000)))
	assert.True(t, excess.Equal(d(500)))

	assert.True(t, plan.IsFullyPaid())
	assert.Equal(t, PlanStatusFullyPaid, plan.Status)
}

func TestAllocateFIFO_SkipsPaidInstallments(t *testing.T) {
	plan := createTestPlan(t)

	_, _, err := plan.AllocateFIFO(d(1000))
	require.NoError(t, err)

	allocations, excess, err := plan.AllocateFIFO(d(700))
	require.NoError(t, err)

	// #0 already paid, so the second receipt starts at #1
	require.Len(t, allocations, 2)
	assert.Equal(t, 1, allocations[0].InstallmentNumber)
	assert.True(t, allocations[0].Amount.Equal(d(500)))
	assert.Equal(t, 2, allocations[1].InstallmentNumber)
	assert.True(t, allocations[1].Amount.Equal(d(200)))
	assert.True(t, excess.IsZero())
}

func TestAllocateFIFO_RejectsNonPositiveAmount(t *testing.T) {
	plan := createTestPlan(t)

	_, _, err := plan.AllocateFIFO(decimal.Zero)
	assert.Error(t, err)

	_, _, err = plan.AllocateFIFO(d(-10))
	assert.Error(t, err)
}

func TestRevertAllocations_Symmetric(t *testing.T) {
	plan := createTestPlan(t)

	before := make(map[uuid.UUID]decimal.Decimal)
	statusBefore := make(map[uuid.UUID]InstallmentStatus)
	for _, inst := range plan.SortedInstallments() {
		before[inst.ID] = inst.PaidAmount
		statusBefore[inst.ID] = inst.Status
	}

	results, _, err := plan.AllocateFIFO(d(1200))
	require.NoError(t, err)

	rows := make([]ReceiptAllocation, 0, len(results))
	for _, r := range results {
		rows = append(rows, ReceiptAllocation{
			ID:                uuid.New(),
			InstallmentID:     r.InstallmentID,
			InstallmentNumber: r.InstallmentNumber,
			Amount:            r.Amount,
		})
	}

	require.NoError(t, plan.RevertAllocations(rows))

	for _, inst := range plan.SortedInstallments() {
		assert.True(t, inst.PaidAmount.Equal(before[inst.ID]),
			"installment #%d paid amount not restored", inst.Number)
		assert.Equal(t, statusBefore[inst.ID], inst.Status,
			"installment #%d status not restored", inst.Number)
	}
	assert.True(t, plan.TotalPaid.IsZero())
	assert.Equal(t, PlanStatusPending, plan.Status)
}

func TestRecalculate_Idempotent(t *testing.T) {
	plan := createTestPlan(t)
	_, _, err := plan.AllocateFIFO(d(700))
	require.NoError(t, err)

	plan.Recalculate()
	paid1, expected1, status1 := plan.TotalPaid, plan.TotalExpected, plan.Status

	plan.Recalculate()
	assert.True(t, plan.TotalPaid.Equal(paid1))
	assert.True(t, plan.TotalExpected.Equal(expected1))
	assert.Equal(t, status1, plan.Status)
}

func TestPaymentPlan_HasPayments(t *testing.T) {
	plan := createTestPlan(t)
	assert.False(t, plan.HasPayments())

	_, _, err := plan.AllocateFIFO(d(50))
	require.NoError(t, err)
	assert.True(t, plan.HasPayments())
}
