package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentPlanRepository implements billing.PaymentPlanRepository using GORM
type GormPaymentPlanRepository struct {
	db *gorm.DB
}

// NewGormPaymentPlanRepository creates a new GormPaymentPlanRepository
func NewGormPaymentPlanRepository(db *gorm.DB) *GormPaymentPlanRepository {
	return &GormPaymentPlanRepository{db: db}
}

func preloadInstallments(db *gorm.DB) *gorm.DB {
	return db.Order("number ASC")
}

// FindByID finds a payment plan with its installments
func (r *GormPaymentPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentPlan, error) {
	var plan billing.PaymentPlan
	if err := r.db.WithContext(ctx).
		Preload("Installments", preloadInstallments).
		First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// FindByDealID finds the plan attached to a deal
func (r *GormPaymentPlanRepository) FindByDealID(ctx context.Context, dealID uuid.UUID) (*billing.PaymentPlan, error) {
	var plan billing.PaymentPlan
	if err := r.db.WithContext(ctx).
		Preload("Installments", preloadInstallments).
		First(&plan, "deal_id = ?", dealID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// FindByDealIDForUpdate loads the plan under a SELECT ... FOR UPDATE row
// lock so concurrent receipts against the same deal serialize. Must be
// called inside a transaction.
func (r *GormPaymentPlanRepository) FindByDealIDForUpdate(ctx context.Context, dealID uuid.UUID) (*billing.PaymentPlan, error) {
	query := r.db.WithContext(ctx)
	// sqlite (tests) serializes writers on its own and rejects FOR UPDATE
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var plan billing.PaymentPlan
	if err := query.First(&plan, "deal_id = ?", dealID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// Installments are loaded after the lock is held on the plan row
	if err := r.db.WithContext(ctx).
		Where("payment_plan_id = ?", plan.ID).
		Order("number ASC").
		Find(&plan.Installments).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindInstallmentByID finds a single installment
func (r *GormPaymentPlanRepository) FindInstallmentByID(ctx context.Context, id uuid.UUID) (*billing.Installment, error) {
	var installment billing.Installment
	if err := r.db.WithContext(ctx).First(&installment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &installment, nil
}

// FindDueInstallments lists unpaid installments due on or before asOf
func (r *GormPaymentPlanRepository) FindDueInstallments(ctx context.Context, asOf time.Time) ([]billing.Installment, error) {
	var installments []billing.Installment
	if err := r.db.WithContext(ctx).
		Where("due_date <= ?", asOf).
		Where("status <> ?", billing.InstallmentStatusPaid).
		Order("due_date ASC, number ASC").
		Find(&installments).Error; err != nil {
		return nil, err
	}
	return installments, nil
}

// FindOutstandingInstallments lists every unpaid installment regardless of
// due date, so far-future obligations are never dropped
func (r *GormPaymentPlanRepository) FindOutstandingInstallments(ctx context.Context) ([]billing.Installment, error) {
	var installments []billing.Installment
	if err := r.db.WithContext(ctx).
		Where("status <> ?", billing.InstallmentStatusPaid).
		Order("due_date ASC, number ASC").
		Find(&installments).Error; err != nil {
		return nil, err
	}
	return installments, nil
}

// Save persists the plan together with its installments
func (r *GormPaymentPlanRepository) Save(ctx context.Context, plan *billing.PaymentPlan) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(plan).Error
}

// SaveInstallment persists a single installment
func (r *GormPaymentPlanRepository) SaveInstallment(ctx context.Context, installment *billing.Installment) error {
	return r.db.WithContext(ctx).Save(installment).Error
}

// Delete soft-deletes a plan and its installments
func (r *GormPaymentPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("payment_plan_id = ?", id).Delete(&billing.Installment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&billing.PaymentPlan{}, "id = ?", id).Error
	})
}
