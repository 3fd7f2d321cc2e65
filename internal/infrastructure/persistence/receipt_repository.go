package persistence

import (
	"context"
	"errors"

	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReceiptRepository implements billing.ReceiptRepository using GORM
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// FindByID finds a receipt with its allocations and attachments
func (r *GormReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Receipt, error) {
	var receipt billing.Receipt
	if err := r.db.WithContext(ctx).
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("installment_number ASC") }).
		Preload("Attachments").
		First(&receipt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

// FindByReceiptNumber finds a receipt by its unique number
func (r *GormReceiptRepository) FindByReceiptNumber(ctx context.Context, receiptNumber string) (*billing.Receipt, error) {
	var receipt billing.Receipt
	if err := r.db.WithContext(ctx).
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("installment_number ASC") }).
		Preload("Attachments").
		First(&receipt, "receipt_number = ?", receiptNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func applyReceiptFilter(query *gorm.DB, filter billing.ReceiptFilter) *gorm.DB {
	if filter.DealID != nil {
		query = query.Where("deal_id = ?", *filter.DealID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Method != nil {
		query = query.Where("method = ?", *filter.Method)
	}
	if filter.FromDate != nil {
		query = query.Where("receipt_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("receipt_date <= ?", *filter.ToDate)
	}
	return query
}

// FindAll lists receipts with filtering
func (r *GormReceiptRepository) FindAll(ctx context.Context, filter billing.ReceiptFilter) ([]billing.Receipt, error) {
	var receipts []billing.Receipt
	query := applyReceiptFilter(r.db.WithContext(ctx), filter)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("installment_number ASC") }).
		Order("receipt_date DESC, receipt_number DESC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// Count counts receipts matching the filter
func (r *GormReceiptRepository) Count(ctx context.Context, filter billing.ReceiptFilter) (int64, error) {
	var count int64
	query := applyReceiptFilter(r.db.WithContext(ctx).Model(&billing.Receipt{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save persists the receipt together with its allocations and attachments
func (r *GormReceiptRepository) Save(ctx context.Context, receipt *billing.Receipt) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(receipt).Error
}

// Delete removes the receipt and its allocation rows
func (r *GormReceiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("receipt_id = ?", id).Delete(&billing.ReceiptAllocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("receipt_id = ?", id).Delete(&billing.ReceiptAttachment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&billing.Receipt{}, "id = ?", id).Error
	})
}
