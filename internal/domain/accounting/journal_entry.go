package accounting

import (
	"time"

	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceTolerance is the maximum difference between total debits and total
// credits for an entry to be considered balanced.
var BalanceTolerance = valueobject.Tolerance

// JournalSourceType identifies what produced a journal entry
type JournalSourceType string

const (
	JournalSourceVoucher  JournalSourceType = "VOUCHER"
	JournalSourceReceipt  JournalSourceType = "RECEIPT"
	JournalSourceReversal JournalSourceType = "REVERSAL"
	JournalSourceManual   JournalSourceType = "MANUAL"
)

// JournalLine is a single debit or credit against a postable account.
// Exactly one of Debit/Credit is nonzero on a valid line.
type JournalLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	JournalEntryID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber     int             `gorm:"not null"`
	Debit          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Credit         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Description    string          `gorm:"type:varchar(500)"`
	Cleared        bool            `gorm:"not null;default:false"` // bank reconciliation mark
}

// TableName returns the table name for GORM
func (JournalLine) TableName() string {
	return "journal_lines"
}

// IsDebit returns true if the line carries a debit amount
func (l *JournalLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// Swapped returns a copy of the line with debit and credit exchanged,
// used when building reversal entries.
func (l *JournalLine) Swapped() JournalLine {
	return JournalLine{
		ID:          uuid.New(),
		AccountID:   l.AccountID,
		LineNumber:  l.LineNumber,
		Debit:       l.Credit,
		Credit:      l.Debit,
		Description: l.Description,
	}
}

// JournalEntry is an immutable, balanced set of debit/credit lines.
// Once persisted it is never edited; corrections create offsetting entries.
type JournalEntry struct {
	shared.BaseAggregateRoot
	EntryNumber string            `gorm:"type:varchar(50);not null;uniqueIndex"`
	VoucherNo   string            `gorm:"type:varchar(50);index"`
	EntryDate   time.Time         `gorm:"not null;index"`
	Description string            `gorm:"type:varchar(500)"`
	SourceType  JournalSourceType `gorm:"type:varchar(20);not null;index"`
	SourceID    *uuid.UUID        `gorm:"type:uuid;index"`
	Lines       []JournalLine     `gorm:"foreignKey:JournalEntryID;references:ID"`
	ReversalOf  *uuid.UUID        `gorm:"type:uuid;index"` // set on entries that offset another entry
	DeletedAt   gorm.DeletedAt    `gorm:"index"`
}

// TableName returns the table name for GORM
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// LineInput describes one requested journal line
type LineInput struct {
	AccountID   uuid.UUID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// NewJournalEntry validates and assembles a balanced journal entry.
// Preconditions enforced here: at least two lines, every amount non-negative,
// each line one-sided, and total debits equal total credits within
// BalanceTolerance. Account existence/postability is checked by the caller,
// which can see the account repository.
func NewJournalEntry(
	entryNumber string,
	entryDate time.Time,
	description string,
	sourceType JournalSourceType,
	lines []LineInput,
) (*JournalEntry, error) {
	if entryNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Entry number cannot be empty")
	}
	if entryDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Entry date is required")
	}
	if len(lines) < 2 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "A journal entry requires at least two lines")
	}

	var totalDebit, totalCredit decimal.Decimal
	for i, l := range lines {
		if l.AccountID == uuid.Nil {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Line %d has no account", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Line %d has a negative amount", i+1)
		}
		if l.Debit.IsPositive() && l.Credit.IsPositive() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Line %d carries both a debit and a credit", i+1)
		}
		if l.Debit.IsZero() && l.Credit.IsZero() {
			return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Line %d carries no amount", i+1)
		}
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}

	if totalDebit.Sub(totalCredit).Abs().GreaterThan(BalanceTolerance) {
		return nil, shared.NewDomainErrorf("UNBALANCED_ENTRY",
			"Journal entry is unbalanced: debits %s, credits %s, difference %s",
			totalDebit.StringFixed(2), totalCredit.StringFixed(2),
			totalDebit.Sub(totalCredit).Abs().StringFixed(2))
	}

	entry := &JournalEntry{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		EntryNumber:       entryNumber,
		EntryDate:         entryDate,
		Description:       description,
		SourceType:        sourceType,
		Lines:             make([]JournalLine, 0, len(lines)),
	}
	for i, l := range lines {
		entry.Lines = append(entry.Lines, JournalLine{
			ID:             uuid.New(),
			JournalEntryID: entry.ID,
			AccountID:      l.AccountID,
			LineNumber:     i + 1,
			Debit:          l.Debit,
			Credit:         l.Credit,
			Description:    l.Description,
		})
	}
	return entry, nil
}

// TotalDebit sums the debit side of all lines
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	var total decimal.Decimal
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all lines
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	var total decimal.Decimal
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// IsBalanced reports whether the entry satisfies the zero-sum invariant
func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Sub(e.TotalCredit()).Abs().LessThanOrEqual(BalanceTolerance)
}

// BuildReversal creates a new entry offsetting this one: every line's debit
// and credit are swapped and the new entry is dated at the supplied reversal
// date. The original entry is left untouched.
func (e *JournalEntry) BuildReversal(entryNumber string, reversalDate time.Time) (*JournalEntry, error) {
	if reversalDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Reversal date is required")
	}

	lines := make([]LineInput, 0, len(e.Lines))
	for _, l := range e.Lines {
		s := l.Swapped()
		lines = append(lines, LineInput{
			AccountID:   s.AccountID,
			Debit:       s.Debit,
			Credit:      s.Credit,
			Description: s.Description,
		})
	}

	reversal, err := NewJournalEntry(entryNumber, reversalDate,
		"Reversal of "+e.EntryNumber, JournalSourceReversal, lines)
	if err != nil {
		return nil, err
	}
	reversal.VoucherNo = e.VoucherNo
	reversal.ReversalOf = &e.ID
	return reversal, nil
}
