package billing

import (
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptMethod is how the money arrived
type ReceiptMethod string

const (
	ReceiptMethodCash ReceiptMethod = "CASH"
	ReceiptMethodBank ReceiptMethod = "BANK"
)

// IsValid returns true if the method is known
func (m ReceiptMethod) IsValid() bool {
	return m == ReceiptMethodCash || m == ReceiptMethodBank
}

// ReceiptAllocation ties part of a receipt to one installment.
// The typed link to installment number 0 is the only record of a
// down payment being received.
type ReceiptAllocation struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	ReceiptID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	InstallmentID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	InstallmentNumber int             `gorm:"not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AllocatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptAllocation) TableName() string {
	return "receipt_allocations"
}

// ReceiptAttachment records metadata of a document attached to a receipt
type ReceiptAttachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ReceiptID  uuid.UUID `gorm:"type:uuid;not null;index"`
	FileName   string    `gorm:"type:varchar(255);not null"`
	StorageKey string    `gorm:"type:varchar(500);not null"`
	UploadedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptAttachment) TableName() string {
	return "receipt_attachments"
}

// Receipt is a confirmed money-in event against a deal. Its allocations sum
// to at most the receipt amount; any remainder was reported back to the
// caller as excess and deliberately left unapplied.
type Receipt struct {
	shared.BaseAggregateRoot
	ReceiptNumber  string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	DealID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	ClientID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	Method         ReceiptMethod       `gorm:"type:varchar(10);not null"`
	ReceiptDate    time.Time           `gorm:"not null;index"`
	Reference      string              `gorm:"type:varchar(100)"` // bank txn id, manual receipt no
	ReceivedBy     uuid.UUID           `gorm:"type:uuid;not null"`
	Allocations    []ReceiptAllocation `gorm:"foreignKey:ReceiptID;references:ID"`
	Attachments    []ReceiptAttachment `gorm:"foreignKey:ReceiptID;references:ID"`
	JournalEntryID *uuid.UUID          `gorm:"type:uuid;index"`
	DeletedAt      gorm.DeletedAt      `gorm:"index"`
}

// TableName returns the table name for GORM
func (Receipt) TableName() string {
	return "receipts"
}

// NewReceipt creates a confirmed money-in record
func NewReceipt(
	receiptNumber string,
	dealID, clientID uuid.UUID,
	amount decimal.Decimal,
	method ReceiptMethod,
	receiptDate time.Time,
	receivedBy uuid.UUID,
) (*Receipt, error) {
	if receiptNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Receipt number cannot be empty")
	}
	if dealID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Deal reference is required")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Client reference is required")
	}
	if amount.IsNegative() || amount.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Receipt amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Unknown receipt method %q", method)
	}
	if receiptDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Receipt date is required")
	}
	if receivedBy == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Receiving user is required")
	}

	return &Receipt{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ReceiptNumber:     receiptNumber,
		DealID:            dealID,
		ClientID:          clientID,
		Amount:            amount,
		Method:            method,
		ReceiptDate:       receiptDate,
		ReceivedBy:        receivedBy,
		Allocations:       make([]ReceiptAllocation, 0),
	}, nil
}

// RecordAllocations attaches FIFO allocation results to the receipt.
// The sum of allocations never exceeds the receipt amount.
func (r *Receipt) RecordAllocations(results []AllocationResult) error {
	var total decimal.Decimal
	now := time.Now()
	for _, res := range results {
		total = total.Add(res.Amount)
		r.Allocations = append(r.Allocations, ReceiptAllocation{
			ID:                uuid.New(),
			ReceiptID:         r.ID,
			InstallmentID:     res.InstallmentID,
			InstallmentNumber: res.InstallmentNumber,
			Amount:            res.Amount,
			AllocatedAt:       now,
		})
	}
	if total.GreaterThan(r.Amount.Add(PaidTolerance)) {
		return shared.NewDomainErrorf("VALIDATION_ERROR",
			"Allocations total %s exceeds receipt amount %s",
			total.StringFixed(2), r.Amount.StringFixed(2))
	}
	r.Touch()
	return nil
}

// TotalAllocated sums all allocation rows
func (r *Receipt) TotalAllocated() decimal.Decimal {
	var total decimal.Decimal
	for _, a := range r.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// ExcessIgnored is the portion of the receipt that exceeded all outstanding
// obligations and was deliberately left unapplied.
func (r *Receipt) ExcessIgnored() decimal.Decimal {
	return r.Amount.Sub(r.TotalAllocated())
}

// SetJournalEntry links the ledger effect posted for this receipt
func (r *Receipt) SetJournalEntry(entryID uuid.UUID) {
	r.JournalEntryID = &entryID
	r.Touch()
}
