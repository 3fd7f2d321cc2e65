package billing

import (
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DownPaymentNumber is the reserved installment number for a plan's down payment
const DownPaymentNumber = 0

// PaidTolerance is the rounding tolerance used when deciding whether an
// installment is fully paid.
var PaidTolerance = valueobject.Tolerance

// InstallmentType affects display grouping and due-date generation only;
// allocation order is always the installment number.
type InstallmentType string

const (
	InstallmentTypeDownPayment InstallmentType = "DOWN_PAYMENT"
	InstallmentTypeMonthly     InstallmentType = "MONTHLY"
	InstallmentTypeQuarterly   InstallmentType = "QUARTERLY"
	InstallmentTypeYearly      InstallmentType = "YEARLY"
	InstallmentTypeCustom      InstallmentType = "CUSTOM"
)

// IsValid returns true if the installment type is known
func (t InstallmentType) IsValid() bool {
	switch t {
	case InstallmentTypeDownPayment, InstallmentTypeMonthly, InstallmentTypeQuarterly, InstallmentTypeYearly, InstallmentTypeCustom:
		return true
	}
	return false
}

// Interval returns the due-date step for schedule generation; custom
// schedules supply explicit due dates instead.
func (t InstallmentType) Interval() (months int, ok bool) {
	switch t {
	case InstallmentTypeMonthly:
		return 1, true
	case InstallmentTypeQuarterly:
		return 3, true
	case InstallmentTypeYearly:
		return 12, true
	}
	return 0, false
}

// InstallmentStatus is the payment state of a single obligation
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "PENDING"
	InstallmentStatusPartial InstallmentStatus = "PARTIAL"
	InstallmentStatusPaid    InstallmentStatus = "PAID"
	InstallmentStatusOverdue InstallmentStatus = "OVERDUE"
)

// Installment is one obligation in a payment plan. Number 0 is the down
// payment; numbers >= 1 are regular installments.
type Installment struct {
	ID            uuid.UUID         `gorm:"type:uuid;primary_key"`
	PaymentPlanID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_plan_installment_number,priority:1"`
	Number        int               `gorm:"not null;uniqueIndex:idx_plan_installment_number,priority:2"`
	Type          InstallmentType   `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	DueDate       time.Time         `gorm:"not null;index"`
	PaidAmount    decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	Status        InstallmentStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	PaymentMode   string            `gorm:"type:varchar(50)"`
	Notes         string            `gorm:"type:varchar(500)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (Installment) TableName() string {
	return "installments"
}

// Remaining returns amount - paidAmount (never negative)
func (i *Installment) Remaining() decimal.Decimal {
	r := i.Amount.Sub(i.PaidAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// IsPaid returns true once paidAmount is within tolerance of the full amount
func (i *Installment) IsPaid() bool {
	return i.PaidAmount.GreaterThanOrEqual(i.Amount.Sub(PaidTolerance))
}

// IsDownPayment returns true for installment number 0
func (i *Installment) IsDownPayment() bool {
	return i.Number == DownPaymentNumber
}

// StatusFor derives the display status as of the given date: paid beats
// everything, otherwise an unpaid obligation past its due date is overdue.
func (i *Installment) StatusFor(asOf time.Time) InstallmentStatus {
	if i.IsPaid() {
		return InstallmentStatusPaid
	}
	if i.DueDate.Before(asOf) {
		return InstallmentStatusOverdue
	}
	if i.PaidAmount.IsPositive() {
		return InstallmentStatusPartial
	}
	return InstallmentStatusPending
}

// ApplyPayment increases paidAmount by the allocated amount and refreshes the
// stored status. The caller guarantees amount <= Remaining().
func (i *Installment) ApplyPayment(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Allocation amount cannot be negative")
	}
	if amount.GreaterThan(i.Remaining().Add(PaidTolerance)) {
		return shared.NewDomainErrorf("VALIDATION_ERROR",
			"Allocation %s exceeds remaining %s on installment #%d",
			amount.StringFixed(2), i.Remaining().StringFixed(2), i.Number)
	}
	i.PaidAmount = i.PaidAmount.Add(amount)
	i.refreshStatus()
	return nil
}

// RevertPayment decreases paidAmount by a previously allocated amount,
// never letting it go negative, and refreshes the stored status.
func (i *Installment) RevertPayment(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("VALIDATION_ERROR", "Reversal amount cannot be negative")
	}
	i.PaidAmount = i.PaidAmount.Sub(amount)
	if i.PaidAmount.IsNegative() {
		i.PaidAmount = decimal.Zero
	}
	i.refreshStatus()
	return nil
}

// UpdateAmount changes the scheduled amount. Rejected on paid installments;
// on partially paid ones the new amount may not drop below paidAmount.
func (i *Installment) UpdateAmount(amount decimal.Decimal) error {
	if i.IsPaid() {
		return shared.NewDomainErrorf("ALREADY_PAID", "Installment #%d is already paid", i.Number)
	}
	if amount.IsNegative() || amount.IsZero() {
		return shared.NewDomainError("VALIDATION_ERROR", "Installment amount must be positive")
	}
	if amount.LessThan(i.PaidAmount) {
		return shared.NewDomainErrorf("VALIDATION_ERROR",
			"Installment amount %s cannot drop below paid amount %s",
			amount.StringFixed(2), i.PaidAmount.StringFixed(2))
	}
	i.Amount = amount
	i.refreshStatus()
	return nil
}

// UpdateDueDate changes the due date. Rejected on paid installments.
func (i *Installment) UpdateDueDate(dueDate time.Time) error {
	if i.IsPaid() {
		return shared.NewDomainErrorf("ALREADY_PAID", "Installment #%d is already paid", i.Number)
	}
	if dueDate.IsZero() {
		return shared.NewDomainError("VALIDATION_ERROR", "Due date is required")
	}
	i.DueDate = dueDate
	i.refreshStatus()
	return nil
}

func (i *Installment) refreshStatus() {
	i.Status = i.StatusFor(time.Now())
	i.UpdatedAt = time.Now()
}

// GenerateDueDates produces n due dates starting at start, stepping by the
// installment type's interval. Custom schedules pass their dates explicitly.
func GenerateDueDates(start time.Time, t InstallmentType, n int) []time.Time {
	months, ok := t.Interval()
	if !ok || n <= 0 {
		return nil
	}
	dates := make([]time.Time, 0, n)
	for k := 0; k < n; k++ {
		dates = append(dates, start.AddDate(0, months*k, 0))
	}
	return dates
}
