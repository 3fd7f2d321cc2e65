package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DealRecord is the row backing the deal gateway. Deal CRUD belongs to the
// sales system; this table mirrors the facts the ledger needs plus the
// closure flag the allocation flow reports back.
type DealRecord struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Closed      bool            `gorm:"not null;default:false"`
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName maps DealRecord to the deals table
func (DealRecord) TableName() string {
	return "deals"
}

// GormDealGateway implements billing.DealGateway over the deals table
type GormDealGateway struct {
	db *gorm.DB
}

// NewGormDealGateway creates a new GormDealGateway
func NewGormDealGateway(db *gorm.DB) *GormDealGateway {
	return &GormDealGateway{db: db}
}

// FindDeal returns the deal facts, or nil when the deal does not exist
func (g *GormDealGateway) FindDeal(ctx context.Context, id uuid.UUID) (*billing.Deal, error) {
	var record DealRecord
	if err := g.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &billing.Deal{
		ID:          record.ID,
		ClientID:    record.ClientID,
		TotalAmount: record.TotalAmount,
		Closed:      record.Closed,
	}, nil
}

// MarkDealClosed flags a deal as closed
func (g *GormDealGateway) MarkDealClosed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return g.db.WithContext(ctx).Model(&DealRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"closed": true, "closed_at": &now}).Error
}

// MarkDealOpen clears the closure flag after a receipt is backed out
func (g *GormDealGateway) MarkDealOpen(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Model(&DealRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"closed": false, "closed_at": nil}).Error
}
