package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestInstallment(amount float64, dueDate time.Time) *Installment {
	return &Installment{
		ID:            uuid.New(),
		PaymentPlanID: uuid.New(),
		Number:        1,
		Type:          InstallmentTypeMonthly,
		Amount:        d(amount),
		DueDate:       dueDate,
		PaidAmount:    decimal.Zero,
		Status:        InstallmentStatusPending,
	}
}

func TestInstallment_StatusFor(t *testing.T) {
	now := time.Now()
	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)

	inst := createTestInstallment(500, future)
	assert.Equal(t, InstallmentStatusPending, inst.StatusFor(now))

	require.NoError(t, inst.ApplyPayment(d(100)))
	assert.Equal(t, InstallmentStatusPartial, inst.StatusFor(now))

	require.NoError(t, inst.ApplyPayment(d(400)))
	assert.Equal(t, InstallmentStatusPaid, inst.StatusFor(now))

	overdue := createTestInstallment(500, past)
	assert.Equal(t, InstallmentStatusOverdue, overdue.StatusFor(now))

	// overdue beats partial for unpaid past-due obligations
	require.NoError(t, overdue.ApplyPayment(d(100)))
	assert.Equal(t, InstallmentStatusOverdue, overdue.StatusFor(now))

	// paid beats overdue
	require.NoError(t, overdue.ApplyPayment(d(400)))
	assert.Equal(t, InstallmentStatusPaid, overdue.StatusFor(now))
}

func TestInstallment_IsPaidWithinTolerance(t *testing.T) {
	inst := createTestInstallment(500, time.Now())
	require.NoError(t, inst.ApplyPayment(d(499.995)))
	assert.True(t, inst.IsPaid())
}

func TestInstallment_ApplyPayment_Overshoot(t *testing.T) {
	inst := createTestInstallment(500, time.Now())
	err := inst.ApplyPayment(d(600))
	require.Error(t, err)
	assert.True(t, inst.PaidAmount.IsZero())
}

func TestInstallment_RevertPayment_NeverNegative(t *testing.T) {
	inst := createTestInstallment(500, time.Now().AddDate(0, 1, 0))
	require.NoError(t, inst.ApplyPayment(d(200)))

	require.NoError(t, inst.RevertPayment(d(300)))
	assert.True(t, inst.PaidAmount.IsZero())
	assert.Equal(t, InstallmentStatusPending, inst.Status)
}

func TestInstallment_UpdateAmount(t *testing.T) {
	inst := createTestInstallment(500, time.Now().AddDate(0, 1, 0))
	require.NoError(t, inst.ApplyPayment(d(200)))

	// cannot drop below the paid amount
	err := inst.UpdateAmount(d(150))
	require.Error(t, err)
	assertDomainCode(t, err, "VALIDATION_ERROR")

	require.NoError(t, inst.UpdateAmount(d(300)))
	assert.True(t, inst.Amount.Equal(d(300)))
}

func TestInstallment_UpdateAmount_RejectedWhenPaid(t *testing.T) {
	inst := createTestInstallment(500, time.Now())
	require.NoError(t, inst.ApplyPayment(d(500)))

	err := inst.UpdateAmount(d(600))
	require.Error(t, err)
	assertDomainCode(t, err, "ALREADY_PAID")

	err = inst.UpdateDueDate(time.Now().AddDate(0, 2, 0))
	require.Error(t, err)
}

func TestInstallment_Remaining(t *testing.T) {
	inst := createTestInstallment(500, time.Now())
	assert.True(t, inst.Remaining().Equal(d(500)))

	require.NoError(t, inst.ApplyPayment(d(180)))
	assert.True(t, inst.Remaining().Equal(d(320)))
}

func TestGenerateDueDates(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	monthly := GenerateDueDates(start, InstallmentTypeMonthly, 3)
	require.Len(t, monthly, 3)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), monthly[1])
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), monthly[2])

	quarterly := GenerateDueDates(start, InstallmentTypeQuarterly, 2)
	require.Len(t, quarterly, 2)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), quarterly[1])

	yearly := GenerateDueDates(start, InstallmentTypeYearly, 2)
	require.Len(t, yearly, 2)
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), yearly[1])

	// custom schedules supply explicit dates
	assert.Nil(t, GenerateDueDates(start, InstallmentTypeCustom, 3))
}
