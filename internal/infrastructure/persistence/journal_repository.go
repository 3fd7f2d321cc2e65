package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormJournalEntryRepository implements accounting.JournalEntryRepository using GORM
type GormJournalEntryRepository struct {
	db *gorm.DB
}

// NewGormJournalEntryRepository creates a new GormJournalEntryRepository
func NewGormJournalEntryRepository(db *gorm.DB) *GormJournalEntryRepository {
	return &GormJournalEntryRepository{db: db}
}

// FindByID finds a journal entry with its lines
func (r *GormJournalEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.JournalEntry, error) {
	var entry accounting.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindByEntryNumber finds a journal entry by its unique number
func (r *GormJournalEntryRepository) FindByEntryNumber(ctx context.Context, entryNumber string) (*accounting.JournalEntry, error) {
	var entry accounting.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		First(&entry, "entry_number = ?", entryNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindAll lists journal entries with filtering
func (r *GormJournalEntryRepository) FindAll(ctx context.Context, filter accounting.JournalEntryFilter) ([]accounting.JournalEntry, error) {
	var entries []accounting.JournalEntry
	query := r.db.WithContext(ctx)

	if filter.SourceType != nil {
		query = query.Where("source_type = ?", *filter.SourceType)
	}
	if filter.AccountID != nil {
		query = query.Where(
			"id IN (?)",
			r.db.Model(&accounting.JournalLine{}).Select("journal_entry_id").Where("account_id = ?", *filter.AccountID),
		)
	}
	if filter.FromDate != nil {
		query = query.Where("entry_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("entry_date <= ?", *filter.ToDate)
	}
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Order("entry_date DESC, entry_number DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Save persists the entry together with its lines
func (r *GormJournalEntryRepository) Save(ctx context.Context, entry *accounting.JournalEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// sideSumsRow scans raw SUM results; COALESCE keeps empty sets at zero
type sideSumsRow struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// SumForAccount returns raw debit/credit sums over lines of non-deleted
// entries referencing the account. Soft-deleted entries are excluded from
// the sums but remain in history.
func (r *GormJournalEntryRepository) SumForAccount(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (accounting.AccountSideSums, error) {
	query := r.db.WithContext(ctx).
		Model(&accounting.JournalLine{}).
		Select("COALESCE(SUM(journal_lines.debit), 0) AS debits, COALESCE(SUM(journal_lines.credit), 0) AS credits").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.journal_entry_id").
		Where("journal_entries.deleted_at IS NULL").
		Where("journal_lines.account_id = ?", accountID)
	if asOf != nil {
		query = query.Where("journal_entries.entry_date <= ?", *asOf)
	}

	var row sideSumsRow
	if err := query.Scan(&row).Error; err != nil {
		return accounting.AccountSideSums{}, err
	}
	return accounting.AccountSideSums{Debits: row.Debits, Credits: row.Credits}, nil
}

// SumAll returns ledger-wide debit/credit totals over non-deleted entries
func (r *GormJournalEntryRepository) SumAll(ctx context.Context, asOf *time.Time) (accounting.AccountSideSums, error) {
	query := r.db.WithContext(ctx).
		Model(&accounting.JournalLine{}).
		Select("COALESCE(SUM(journal_lines.debit), 0) AS debits, COALESCE(SUM(journal_lines.credit), 0) AS credits").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.journal_entry_id").
		Where("journal_entries.deleted_at IS NULL")
	if asOf != nil {
		query = query.Where("journal_entries.entry_date <= ?", *asOf)
	}

	var row sideSumsRow
	if err := query.Scan(&row).Error; err != nil {
		return accounting.AccountSideSums{}, err
	}
	return accounting.AccountSideSums{Debits: row.Debits, Credits: row.Credits}, nil
}

// SumClearedForAccount sums only lines marked cleared, for bank reconciliation
func (r *GormJournalEntryRepository) SumClearedForAccount(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (accounting.AccountSideSums, error) {
	query := r.db.WithContext(ctx).
		Model(&accounting.JournalLine{}).
		Select("COALESCE(SUM(journal_lines.debit), 0) AS debits, COALESCE(SUM(journal_lines.credit), 0) AS credits").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.journal_entry_id").
		Where("journal_entries.deleted_at IS NULL").
		Where("journal_lines.account_id = ? AND journal_lines.cleared = ?", accountID, true)
	if asOf != nil {
		query = query.Where("journal_entries.entry_date <= ?", *asOf)
	}

	var row sideSumsRow
	if err := query.Scan(&row).Error; err != nil {
		return accounting.AccountSideSums{}, err
	}
	return accounting.AccountSideSums{Debits: row.Debits, Credits: row.Credits}, nil
}

// MarkLineCleared toggles the bank-reconciliation cleared flag on a line
func (r *GormJournalEntryRepository) MarkLineCleared(ctx context.Context, lineID uuid.UUID, cleared bool) error {
	result := r.db.WithContext(ctx).
		Model(&accounting.JournalLine{}).
		Where("id = ?", lineID).
		Update("cleared", cleared)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
