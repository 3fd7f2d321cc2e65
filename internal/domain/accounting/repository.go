package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountFilter narrows account listings
type AccountFilter struct {
	Type     *AccountType
	Postable *bool
	ParentID *uuid.UUID
	Search   string
	Page     int
	PageSize int
}

// AccountRepository defines persistence for the chart of accounts
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByCode(ctx context.Context, code string) (*Account, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Account, error)
	FindAll(ctx context.Context, filter AccountFilter) ([]Account, error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]Account, error)
	Save(ctx context.Context, account *Account) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// AccountSideSums holds the raw per-side sums of journal lines for an account
type AccountSideSums struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// JournalEntryFilter narrows journal entry listings
type JournalEntryFilter struct {
	SourceType *JournalSourceType
	AccountID  *uuid.UUID
	FromDate   *time.Time
	ToDate     *time.Time
	Page       int
	PageSize   int
}

// JournalEntryRepository defines persistence for journal entries and lines
type JournalEntryRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	FindByEntryNumber(ctx context.Context, entryNumber string) (*JournalEntry, error)
	FindAll(ctx context.Context, filter JournalEntryFilter) ([]JournalEntry, error)
	// Save persists the entry together with its lines
	Save(ctx context.Context, entry *JournalEntry) error
	// SumForAccount returns raw debit/credit sums over lines of non-deleted
	// entries referencing the account, optionally bounded by entry date
	SumForAccount(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (AccountSideSums, error)
	// SumAll returns ledger-wide debit/credit totals over non-deleted entries
	SumAll(ctx context.Context, asOf *time.Time) (AccountSideSums, error)
	// SumClearedForAccount sums only lines marked cleared, for bank reconciliation
	SumClearedForAccount(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (AccountSideSums, error)
	// MarkLineCleared toggles the bank-reconciliation cleared flag on a line
	MarkLineCleared(ctx context.Context, lineID uuid.UUID, cleared bool) error
}

// VoucherFilter narrows voucher listings
type VoucherFilter struct {
	Type     *VoucherType
	Status   *VoucherStatus
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	PageSize int
}

// VoucherRepository defines persistence for vouchers
type VoucherRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Voucher, error)
	FindByVoucherNumber(ctx context.Context, voucherNumber string) (*Voucher, error)
	FindAll(ctx context.Context, filter VoucherFilter) ([]Voucher, error)
	Count(ctx context.Context, filter VoucherFilter) (int64, error)
	Save(ctx context.Context, voucher *Voucher) error
	// SaveWithLock saves with optimistic version check
	SaveWithLock(ctx context.Context, voucher *Voucher) error
	// Delete hard-deletes a draft voucher together with its lines
	Delete(ctx context.Context, id uuid.UUID) error
}
