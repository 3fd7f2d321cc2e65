package billing

import (
	"sort"
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PlanTolerance is the rounding tolerance for the plan-sum invariant:
// sum of installment amounts plus down payment must equal the deal total
// within this value at plan creation time.
var PlanTolerance = valueobject.Tolerance

// PlanStatus is the aggregate payment state of a plan
type PlanStatus string

const (
	PlanStatusPending       PlanStatus = "PENDING"
	PlanStatusPartiallyPaid PlanStatus = "PARTIALLY_PAID"
	PlanStatusFullyPaid     PlanStatus = "FULLY_PAID"
)

// InstallmentSpec describes one requested regular installment at plan creation
type InstallmentSpec struct {
	Amount      decimal.Decimal
	DueDate     time.Time
	Type        InstallmentType
	PaymentMode string
	Notes       string
}

// PaymentPlan owns a deal's down payment and installment schedule.
// One plan exists per deal; totals are re-derived from the installment rows,
// and TotalPaid moves only when confirmed money is allocated.
type PaymentPlan struct {
	shared.BaseAggregateRoot
	DealID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"` // deal total
	DownPayment   decimal.Decimal `gorm:"type:decimal(18,4);not null"` // planned, may be zero
	TotalExpected decimal.Decimal `gorm:"type:decimal(18,4);not null"` // installments + down payment
	TotalPaid     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status        PlanStatus      `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	StartDate     time.Time       `gorm:"not null"`
	Installments  []Installment   `gorm:"foreignKey:PaymentPlanID;references:ID"`
	DeletedAt     gorm.DeletedAt  `gorm:"index"`
}

// TableName returns the table name for GORM
func (PaymentPlan) TableName() string {
	return "payment_plans"
}

// NewPaymentPlan validates the plan-sum invariant and materializes the plan
// with its down-payment installment (number 0) and regular installments
// (numbers 1..N). The down payment is owed, not received: TotalPaid starts at
// zero regardless of the planned down payment.
func NewPaymentPlan(
	dealID, clientID uuid.UUID,
	dealTotal, downPayment decimal.Decimal,
	startDate time.Time,
	specs []InstallmentSpec,
) (*PaymentPlan, error) {
	if dealID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deal reference is required")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Client reference is required")
	}
	if dealTotal.IsNegative() || dealTotal.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deal total must be positive")
	}
	if downPayment.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Down payment cannot be negative")
	}
	if startDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Start date is required")
	}
	if len(specs) == 0 && downPayment.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Plan requires at least one installment or a down payment")
	}

	scheduled := downPayment
	for i, spec := range specs {
		if spec.Amount.IsNegative() || spec.Amount.IsZero() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Installment %d amount must be positive", i+1)
		}
		if spec.DueDate.IsZero() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Installment %d is missing a due date", i+1)
		}
		if spec.Type == "" || spec.Type == InstallmentTypeDownPayment || !spec.Type.IsValid() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Installment %d has an invalid type", i+1)
		}
		scheduled = scheduled.Add(spec.Amount)
	}

	diff := scheduled.Sub(dealTotal)
	if diff.Abs().GreaterThan(PlanTolerance) {
		kind := "shortfall"
		if diff.IsPositive() {
			kind = "excess"
		}
		return nil, shared.NewDomainErrorf("PLAN_AMOUNT_MISMATCH",
			"Installments plus down payment total %s but deal total is %s (%s of %s)",
			scheduled.StringFixed(2), dealTotal.StringFixed(2), kind, diff.Abs().StringFixed(2))
	}

	plan := &PaymentPlan{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DealID:            dealID,
		ClientID:          clientID,
		TotalAmount:       dealTotal,
		DownPayment:       downPayment,
		TotalExpected:     scheduled,
		TotalPaid:         decimal.Zero,
		Status:            PlanStatusPending,
		StartDate:         startDate,
	}

	now := time.Now()
	if downPayment.IsPositive() {
		plan.Installments = append(plan.Installments, Installment{
			ID:            uuid.New(),
			PaymentPlanID: plan.ID,
			Number:        DownPaymentNumber,
			Type:          InstallmentTypeDownPayment,
			Amount:        downPayment,
			DueDate:       startDate,
			PaidAmount:    decimal.Zero,
			Status:        InstallmentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	for i, spec := range specs {
		plan.Installments = append(plan.Installments, Installment{
			ID:            uuid.New(),
			PaymentPlanID: plan.ID,
			Number:        i + 1,
			Type:          spec.Type,
			Amount:        spec.Amount,
			DueDate:       spec.DueDate,
			PaidAmount:    decimal.Zero,
			Status:        InstallmentStatusPending,
			PaymentMode:   spec.PaymentMode,
			Notes:         spec.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	return plan, nil
}

// SortedInstallments returns the plan's installments ordered by number
// ascending, so the down payment (number 0) is always first.
func (p *PaymentPlan) SortedInstallments() []*Installment {
	out := make([]*Installment, 0, len(p.Installments))
	for i := range p.Installments {
		out = append(out, &p.Installments[i])
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Number < out[b].Number })
	return out
}

// InstallmentByID finds an installment in the loaded plan
func (p *PaymentPlan) InstallmentByID(id uuid.UUID) *Installment {
	for i := range p.Installments {
		if p.Installments[i].ID == id {
			return &p.Installments[i]
		}
	}
	return nil
}

// AllocationResult is one FIFO allocation step against an installment
type AllocationResult struct {
	InstallmentID     uuid.UUID
	InstallmentNumber int
	Amount            decimal.Decimal
}

// AllocateFIFO distributes an incoming amount across outstanding installments
// in installment-number order: each unpaid installment receives
// min(remaining, amountLeft) until the amount is exhausted or no obligation
// remains. The returned excess is the deliberately unapplied remainder.
func (p *PaymentPlan) AllocateFIFO(amount decimal.Decimal) (allocations []AllocationResult, excess decimal.Decimal, err error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, decimal.Zero, shared.NewDomainError("VALIDATION_ERROR", "Receipt amount must be positive")
	}

	left := amount
	for _, inst := range p.SortedInstallments() {
		if left.IsZero() {
			break
		}
		remaining := inst.Remaining()
		if inst.IsPaid() || !remaining.IsPositive() {
			continue
		}
		alloc := remaining
		if left.LessThan(alloc) {
			alloc = left
		}
		if err := inst.ApplyPayment(alloc); err != nil {
			return nil, decimal.Zero, err
		}
		allocations = append(allocations, AllocationResult{
			InstallmentID:     inst.ID,
			InstallmentNumber: inst.Number,
			Amount:            alloc,
		})
		left = left.Sub(alloc)
	}

	p.Recalculate()
	return allocations, left, nil
}

// RevertAllocations undoes previously applied allocations, symmetric to
// AllocateFIFO: every touched installment's paidAmount and status return to
// their pre-allocation values.
func (p *PaymentPlan) RevertAllocations(allocations []ReceiptAllocation) error {
	for _, a := range allocations {
		inst := p.InstallmentByID(a.InstallmentID)
		if inst == nil {
			return shared.NewDomainErrorf("NOT_FOUND", "Installment %s not found in plan", a.InstallmentID)
		}
		if err := inst.RevertPayment(a.Amount); err != nil {
			return err
		}
	}
	p.Recalculate()
	return nil
}

// Recalculate re-derives TotalExpected, TotalPaid and Status from the live
// installment rows. Idempotent: calling it repeatedly without intervening
// writes yields identical totals.
func (p *PaymentPlan) Recalculate() {
	var expected, paid decimal.Decimal
	allPaid := len(p.Installments) > 0
	for i := range p.Installments {
		expected = expected.Add(p.Installments[i].Amount)
		paid = paid.Add(p.Installments[i].PaidAmount)
		if !p.Installments[i].IsPaid() {
			allPaid = false
		}
	}

	p.TotalExpected = expected
	p.TotalPaid = paid
	switch {
	case allPaid:
		p.Status = PlanStatusFullyPaid
	case paid.IsPositive():
		p.Status = PlanStatusPartiallyPaid
	default:
		p.Status = PlanStatusPending
	}
	p.Touch()
}

// Remaining returns the outstanding amount across all installments
func (p *PaymentPlan) Remaining() decimal.Decimal {
	var remaining decimal.Decimal
	for i := range p.Installments {
		remaining = remaining.Add(p.Installments[i].Remaining())
	}
	return remaining
}

// IsFullyPaid returns true when every installment, including the down
// payment, is paid.
func (p *PaymentPlan) IsFullyPaid() bool {
	if len(p.Installments) == 0 {
		return false
	}
	for i := range p.Installments {
		if !p.Installments[i].IsPaid() {
			return false
		}
	}
	return true
}

// HasPayments returns true if any installment carries a nonzero paid amount.
// A plan with payments cannot be deleted.
func (p *PaymentPlan) HasPayments() bool {
	for i := range p.Installments {
		if p.Installments[i].PaidAmount.IsPositive() {
			return true
		}
	}
	return false
}
