package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentPlanRepository defines persistence for payment plans and installments
type PaymentPlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentPlan, error)
	FindByDealID(ctx context.Context, dealID uuid.UUID) (*PaymentPlan, error)
	// FindByDealIDForUpdate loads the plan under a row-level lock so
	// concurrent receipts against the same deal serialize.
	FindByDealIDForUpdate(ctx context.Context, dealID uuid.UUID) (*PaymentPlan, error)
	FindInstallmentByID(ctx context.Context, id uuid.UUID) (*Installment, error)
	// FindDueInstallments lists non-deleted, unpaid installments due on or
	// before the given date, for overdue sweeps.
	FindDueInstallments(ctx context.Context, asOf time.Time) ([]Installment, error)
	// FindOutstandingInstallments lists every non-deleted, unpaid
	// installment regardless of due date, for receivables aging.
	FindOutstandingInstallments(ctx context.Context) ([]Installment, error)
	// Save persists the plan together with its installments
	Save(ctx context.Context, plan *PaymentPlan) error
	SaveInstallment(ctx context.Context, installment *Installment) error
	// Delete soft-deletes a plan and its installments
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReceiptFilter narrows receipt listings
type ReceiptFilter struct {
	DealID   *uuid.UUID
	ClientID *uuid.UUID
	Method   *ReceiptMethod
	FromDate *time.Time
	ToDate   *time.Time
	Page     int
	PageSize int
}

// ReceiptRepository defines persistence for receipts and their allocations
type ReceiptRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	FindByReceiptNumber(ctx context.Context, receiptNumber string) (*Receipt, error)
	FindAll(ctx context.Context, filter ReceiptFilter) ([]Receipt, error)
	Count(ctx context.Context, filter ReceiptFilter) (int64, error)
	// Save persists the receipt together with its allocations
	Save(ctx context.Context, receipt *Receipt) error
	// Delete removes the receipt and its allocation rows
	Delete(ctx context.Context, id uuid.UUID) error
}

// Deal is the external collaborator supplying a deal's total and client.
// Entity CRUD for deals lives outside this engine.
type Deal struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	TotalAmount decimal.Decimal
	Closed      bool
}

// DealGateway is the boundary to the deal collaborator: the engine reads
// deal facts and reports emergent closure after full allocation.
type DealGateway interface {
	FindDeal(ctx context.Context, id uuid.UUID) (*Deal, error)
	MarkDealClosed(ctx context.Context, id uuid.UUID) error
	MarkDealOpen(ctx context.Context, id uuid.UUID) error
}
