package accounting

import (
	"fmt"
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VoucherType identifies a manual cash/bank transaction voucher
type VoucherType string

const (
	VoucherTypeBPV VoucherType = "BPV" // bank payment voucher
	VoucherTypeBRV VoucherType = "BRV" // bank receipt voucher
	VoucherTypeCPV VoucherType = "CPV" // cash payment voucher
	VoucherTypeCRV VoucherType = "CRV" // cash receipt voucher
	VoucherTypeJV  VoucherType = "JV"  // journal voucher
)

// IsValid returns true if the voucher type is one of the known types
func (t VoucherType) IsValid() bool {
	switch t {
	case VoucherTypeBPV, VoucherTypeBRV, VoucherTypeCPV, VoucherTypeCRV, VoucherTypeJV:
		return true
	}
	return false
}

// RequiresPrimaryAccount returns true for voucher types whose lines are
// posted against a designated cash/bank account. JV lines are posted as-is.
func (t VoucherType) RequiresPrimaryAccount() bool {
	return t != VoucherTypeJV
}

// PrimaryAccountIsCredit returns true when the primary account takes the
// credit side of the posting (money leaving cash/bank).
func (t VoucherType) PrimaryAccountIsCredit() bool {
	return t == VoucherTypeBPV || t == VoucherTypeCPV
}

// VoucherStatus is the approval workflow state of a voucher
type VoucherStatus string

const (
	VoucherStatusDraft     VoucherStatus = "DRAFT"
	VoucherStatusSubmitted VoucherStatus = "SUBMITTED"
	VoucherStatusApproved  VoucherStatus = "APPROVED"
	VoucherStatusPosted    VoucherStatus = "POSTED"
	VoucherStatusReversed  VoucherStatus = "REVERSED"
)

// IsValid returns true if the status is one of the known states
func (s VoucherStatus) IsValid() bool {
	switch s {
	case VoucherStatusDraft, VoucherStatusSubmitted, VoucherStatusApproved, VoucherStatusPosted, VoucherStatusReversed:
		return true
	}
	return false
}

// CanSubmit returns true if the voucher can move to SUBMITTED
func (s VoucherStatus) CanSubmit() bool {
	return s == VoucherStatusDraft
}

// CanApprove returns true if the voucher can move to APPROVED
func (s VoucherStatus) CanApprove() bool {
	return s == VoucherStatusSubmitted
}

// CanPost returns true if the voucher can move to POSTED
func (s VoucherStatus) CanPost() bool {
	return s == VoucherStatusApproved
}

// CanReverse returns true if the voucher can move to REVERSED
func (s VoucherStatus) CanReverse() bool {
	return s == VoucherStatusPosted
}

// CanEdit returns true while voucher content is still mutable
func (s VoucherStatus) CanEdit() bool {
	return s == VoucherStatusDraft || s == VoucherStatusSubmitted
}

// CanDelete returns true if the voucher may be deleted
func (s VoucherStatus) CanDelete() bool {
	return s == VoucherStatusDraft
}

// IsTerminal returns true for states with no forward transition
func (s VoucherStatus) IsTerminal() bool {
	return s == VoucherStatusReversed
}

// VoucherLine is a debit or credit line captured on a voucher before posting
type VoucherLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	VoucherID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber  int             `gorm:"not null"`
	Debit       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Credit      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Description string          `gorm:"type:varchar(500)"`
	// Optional link from a BRV receipt line to a specific outstanding invoice
	InvoiceID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (VoucherLine) TableName() string {
	return "voucher_lines"
}

// VoucherAttachment records metadata of a document attached to a voucher.
// File storage itself lives outside this engine.
type VoucherAttachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	VoucherID  uuid.UUID `gorm:"type:uuid;not null;index"`
	FileName   string    `gorm:"type:varchar(255);not null"`
	StorageKey string    `gorm:"type:varchar(500);not null"`
	UploadedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VoucherAttachment) TableName() string {
	return "voucher_attachments"
}

// Voucher wraps a future journal entry in an approval workflow.
// Its journal entry is created at posting time, never at draft time,
// and after posting the voucher's financial content is immutable.
type Voucher struct {
	shared.BaseAggregateRoot
	VoucherNumber    string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	Type             VoucherType         `gorm:"type:varchar(10);not null;index"`
	Status           VoucherStatus       `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	PrimaryAccountID *uuid.UUID          `gorm:"type:uuid;index"` // bank/cash account for BPV/BRV/CPV/CRV
	Payee            string              `gorm:"type:varchar(200)"`
	Remark           string              `gorm:"type:varchar(500)"`
	VoucherDate      time.Time           `gorm:"not null"`
	Lines            []VoucherLine       `gorm:"foreignKey:VoucherID;references:ID"`
	Attachments      []VoucherAttachment `gorm:"foreignKey:VoucherID;references:ID"`
	PreparedBy       uuid.UUID           `gorm:"type:uuid;not null"`
	ApprovedBy       *uuid.UUID          `gorm:"type:uuid"`
	ApprovedAt       *time.Time
	JournalEntryID   *uuid.UUID `gorm:"type:uuid;index"`
	PostedAt         *time.Time
	ReversalEntryID  *uuid.UUID `gorm:"type:uuid"`
	ReversedAt       *time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (Voucher) TableName() string {
	return "vouchers"
}

// NewVoucher creates a draft voucher
func NewVoucher(
	voucherNumber string,
	voucherType VoucherType,
	voucherDate time.Time,
	preparedBy uuid.UUID,
) (*Voucher, error) {
	if voucherNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Voucher number cannot be empty")
	}
	if !voucherType.IsValid() {
		return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Unknown voucher type %q", voucherType)
	}
	if voucherDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Voucher date is required")
	}
	if preparedBy == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Preparing user is required")
	}

	return &Voucher{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		VoucherNumber:     voucherNumber,
		Type:              voucherType,
		Status:            VoucherStatusDraft,
		VoucherDate:       voucherDate,
		PreparedBy:        preparedBy,
		Lines:             make([]VoucherLine, 0),
	}, nil
}

// SetPrimaryAccount designates the cash/bank account for non-JV vouchers
func (v *Voucher) SetPrimaryAccount(accountID uuid.UUID) error {
	if !v.Status.CanEdit() {
		return shared.NewDomainErrorf("IMMUTABLE_RECORD", "Cannot modify voucher in %s status", v.Status)
	}
	if accountID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Primary account cannot be empty")
	}
	v.PrimaryAccountID = &accountID
	v.Touch()
	v.IncrementVersion()
	return nil
}

// ReplaceLines replaces the full line set while the voucher is still editable
func (v *Voucher) ReplaceLines(lines []VoucherLine) error {
	if !v.Status.CanEdit() {
		return shared.NewDomainErrorf("IMMUTABLE_RECORD", "Cannot modify voucher in %s status", v.Status)
	}
	for i := range lines {
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
		lines[i].VoucherID = v.ID
		lines[i].LineNumber = i + 1
		if lines[i].Debit.IsNegative() || lines[i].Credit.IsNegative() {
			return shared.NewDomainErrorf("VALIDATION_ERROR", "Line %d has a negative amount", i+1)
		}
	}
	v.Lines = lines
	v.Touch()
	v.IncrementVersion()
	return nil
}

// AddAttachment records an attachment reference on the voucher
func (v *Voucher) AddAttachment(fileName, storageKey string) error {
	if v.Status.IsTerminal() {
		return shared.NewDomainError("IMMUTABLE_RECORD", "Cannot attach to a reversed voucher")
	}
	if fileName == "" || storageKey == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Attachment name and storage key are required")
	}
	v.Attachments = append(v.Attachments, VoucherAttachment{
		ID:         uuid.New(),
		VoucherID:  v.ID,
		FileName:   fileName,
		StorageKey: storageKey,
		UploadedAt: time.Now(),
	})
	v.Touch()
	return nil
}

// Submit moves the voucher from DRAFT to SUBMITTED.
// Requires at least one line with a nonzero amount and, for non-JV types,
// a primary account.
func (v *Voucher) Submit() error {
	if !v.Status.CanSubmit() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot submit voucher in %s status", v.Status)
	}
	if !v.hasNonzeroLine() {
		return shared.NewDomainError("VALIDATION_ERROR", "Voucher requires at least one line with a nonzero amount")
	}
	if v.Type.RequiresPrimaryAccount() && v.PrimaryAccountID == nil {
		return shared.NewDomainErrorf("VALIDATION_ERROR", "%s voucher requires a primary cash/bank account", v.Type)
	}

	v.Status = VoucherStatusSubmitted
	v.Touch()
	v.IncrementVersion()
	return nil
}

// Approve moves the voucher from SUBMITTED to APPROVED and records the approver
func (v *Voucher) Approve(approvedBy uuid.UUID) error {
	if !v.Status.CanApprove() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot approve voucher in %s status", v.Status)
	}
	if approvedBy == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Approving user is required")
	}

	now := time.Now()
	v.Status = VoucherStatusApproved
	v.ApprovedBy = &approvedBy
	v.ApprovedAt = &now
	v.Touch()
	v.IncrementVersion()
	return nil
}

// BuildJournalLines maps the voucher's lines to journal line inputs.
// For BPV/CPV the primary account takes the credit side (cash leaving),
// for BRV/CRV the debit side (cash arriving); counterpart lines keep their
// captured side. JV lines are posted exactly as captured.
func (v *Voucher) BuildJournalLines() ([]LineInput, error) {
	if len(v.Lines) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Voucher has no lines")
	}

	if v.Type == VoucherTypeJV {
		lines := make([]LineInput, 0, len(v.Lines))
		for _, l := range v.Lines {
			lines = append(lines, LineInput{
				AccountID:   l.AccountID,
				Debit:       l.Debit,
				Credit:      l.Credit,
				Description: l.Description,
			})
		}
		return lines, nil
	}

	if v.PrimaryAccountID == nil {
		return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "%s voucher requires a primary cash/bank account", v.Type)
	}

	var total decimal.Decimal
	lines := make([]LineInput, 0, len(v.Lines)+1)
	for _, l := range v.Lines {
		amount := l.Debit.Add(l.Credit)
		if amount.IsZero() {
			continue
		}
		total = total.Add(amount)
		li := LineInput{AccountID: l.AccountID, Description: l.Description}
		if v.Type.PrimaryAccountIsCredit() {
			// money leaving cash/bank: counterpart accounts are debited
			li.Debit = amount
		} else {
			// money arriving: counterpart accounts are credited
			li.Credit = amount
		}
		lines = append(lines, li)
	}

	primary := LineInput{
		AccountID:   *v.PrimaryAccountID,
		Description: fmt.Sprintf("%s %s", v.Type, v.VoucherNumber),
	}
	if v.Type.PrimaryAccountIsCredit() {
		primary.Credit = total
	} else {
		primary.Debit = total
	}
	return append(lines, primary), nil
}

// MarkPosted records the journal entry created for this voucher and freezes
// its financial content. Posting twice is rejected.
func (v *Voucher) MarkPosted(journalEntryID uuid.UUID, postedAt time.Time) error {
	if v.Status == VoucherStatusPosted {
		return shared.NewDomainError("ALREADY_POSTED", "Voucher has already been posted")
	}
	if !v.Status.CanPost() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot post voucher in %s status", v.Status)
	}
	if journalEntryID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Journal entry reference is required")
	}

	v.Status = VoucherStatusPosted
	v.JournalEntryID = &journalEntryID
	v.PostedAt = &postedAt
	v.Touch()
	v.IncrementVersion()
	return nil
}

// MarkReversed records the offsetting journal entry and moves the voucher to
// its terminal REVERSED state. The original entry is retained for audit.
func (v *Voucher) MarkReversed(reversalEntryID uuid.UUID, reversedAt time.Time) error {
	if !v.Status.CanReverse() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot reverse voucher in %s status", v.Status)
	}
	if reversalEntryID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Reversal entry reference is required")
	}

	v.Status = VoucherStatusReversed
	v.ReversalEntryID = &reversalEntryID
	v.ReversedAt = &reversedAt
	v.Touch()
	v.IncrementVersion()
	return nil
}

// TotalAmount sums all line amounts (debit + credit sides as captured)
func (v *Voucher) TotalAmount() decimal.Decimal {
	var total decimal.Decimal
	for _, l := range v.Lines {
		total = total.Add(l.Debit).Add(l.Credit)
	}
	return total
}

// IsPosted returns true once a journal entry exists for the voucher
func (v *Voucher) IsPosted() bool {
	return v.Status == VoucherStatusPosted || v.Status == VoucherStatusReversed
}

func (v *Voucher) hasNonzeroLine() bool {
	for _, l := range v.Lines {
		if l.Debit.IsPositive() || l.Credit.IsPositive() {
			return true
		}
	}
	return false
}
