package persistence

import (
	"context"
	"errors"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVoucherRepository implements accounting.VoucherRepository using GORM
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewGormVoucherRepository creates a new GormVoucherRepository
func NewGormVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// FindByID finds a voucher with its lines and attachments
func (r *GormVoucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Voucher, error) {
	var voucher accounting.Voucher
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Attachments").
		First(&voucher, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// FindByVoucherNumber finds a voucher by its unique number
func (r *GormVoucherRepository) FindByVoucherNumber(ctx context.Context, voucherNumber string) (*accounting.Voucher, error) {
	var voucher accounting.Voucher
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Attachments").
		First(&voucher, "voucher_number = ?", voucherNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func applyVoucherFilter(query *gorm.DB, filter accounting.VoucherFilter) *gorm.DB {
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("voucher_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("voucher_date <= ?", *filter.ToDate)
	}
	return query
}

// FindAll lists vouchers with filtering
func (r *GormVoucherRepository) FindAll(ctx context.Context, filter accounting.VoucherFilter) ([]accounting.Voucher, error) {
	var vouchers []accounting.Voucher
	query := applyVoucherFilter(r.db.WithContext(ctx), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.
		Preload("Lines").
		Preload("Attachments").
		Order("voucher_date DESC, voucher_number DESC").
		Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

// Count counts vouchers matching the filter
func (r *GormVoucherRepository) Count(ctx context.Context, filter accounting.VoucherFilter) (int64, error) {
	var count int64
	query := applyVoucherFilter(r.db.WithContext(ctx).Model(&accounting.Voucher{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a voucher with its lines and attachments
func (r *GormVoucherRepository) Save(ctx context.Context, voucher *accounting.Voucher) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(voucher).Error
}

// SaveWithLock saves with an optimistic version check. The in-memory
// aggregate carries the already-incremented version; the row must still
// hold the previous one or another writer got there first.
func (r *GormVoucherRepository) SaveWithLock(ctx context.Context, voucher *accounting.Voucher) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&accounting.Voucher{}).
			Where("id = ? AND version = ?", voucher.ID, voucher.Version-1).
			Updates(map[string]interface{}{
				"status":            voucher.Status,
				"approved_by":       voucher.ApprovedBy,
				"approved_at":       voucher.ApprovedAt,
				"journal_entry_id":  voucher.JournalEntryID,
				"posted_at":         voucher.PostedAt,
				"reversal_entry_id": voucher.ReversalEntryID,
				"reversed_at":       voucher.ReversedAt,
				"remark":            voucher.Remark,
				"version":           voucher.Version,
				"updated_at":        voucher.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		return nil
	})
}

// Delete hard-deletes a voucher together with its lines and attachments.
// State rules restrict this to drafts; the repository does not re-check.
func (r *GormVoucherRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("voucher_id = ?", id).Delete(&accounting.VoucherLine{}).Error; err != nil {
			return err
		}
		if err := tx.Where("voucher_id = ?", id).Delete(&accounting.VoucherAttachment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&accounting.Voucher{}, "id = ?", id).Error
	})
}
