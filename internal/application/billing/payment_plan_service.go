package billing

import (
	"context"
	"time"

	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentPlanService manages a deal's down payment and installment schedule
type PaymentPlanService struct {
	db      *persistence.Database
	gateway billing.DealGateway
	logger  *zap.Logger
}

// NewPaymentPlanService creates a new PaymentPlanService
func NewPaymentPlanService(db *persistence.Database, gateway billing.DealGateway, logger *zap.Logger) *PaymentPlanService {
	return &PaymentPlanService{db: db, gateway: gateway, logger: logger.Named("payment-plan-service")}
}

// InstallmentSpecRequest describes one requested regular installment
type InstallmentSpecRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	DueDate     time.Time       `json:"due_date" binding:"required"`
	Type        string          `json:"type" binding:"required,oneof=MONTHLY QUARTERLY YEARLY CUSTOM"`
	PaymentMode string          `json:"payment_mode" binding:"max=50"`
	Notes       string          `json:"notes" binding:"max=500"`
}

// CreatePlanRequest is the typed payload for creating a payment plan
type CreatePlanRequest struct {
	DealID       uuid.UUID                `json:"deal_id" binding:"required"`
	DownPayment  decimal.Decimal          `json:"down_payment"`
	StartDate    time.Time                `json:"start_date" binding:"required"`
	Installments []InstallmentSpecRequest `json:"installments" binding:"dive"`
}

// UpdateInstallmentRequest is the typed payload for editing an installment
type UpdateInstallmentRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *time.Time       `json:"due_date"`
	PaymentMode *string          `json:"payment_mode" binding:"omitempty,max=50"`
	Notes       *string          `json:"notes" binding:"omitempty,max=500"`
}

// InstallmentResponse represents an installment in API responses
type InstallmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Number      int             `json:"number"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Remaining   decimal.Decimal `json:"remaining"`
	Status      string          `json:"status"`
	PaymentMode string          `json:"payment_mode,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// PaymentPlanResponse represents a payment plan in API responses
type PaymentPlanResponse struct {
	ID            uuid.UUID             `json:"id"`
	DealID        uuid.UUID             `json:"deal_id"`
	ClientID      uuid.UUID             `json:"client_id"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	DownPayment   decimal.Decimal       `json:"down_payment"`
	TotalExpected decimal.Decimal       `json:"total_expected"`
	TotalPaid     decimal.Decimal       `json:"total_paid"`
	Remaining     decimal.Decimal       `json:"remaining"`
	Status        string                `json:"status"`
	StartDate     time.Time             `json:"start_date"`
	Installments  []InstallmentResponse `json:"installments"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func toInstallmentResponse(i *billing.Installment) InstallmentResponse {
	return InstallmentResponse{
		ID:          i.ID,
		Number:      i.Number,
		Type:        string(i.Type),
		Amount:      i.Amount,
		DueDate:     i.DueDate,
		PaidAmount:  i.PaidAmount,
		Remaining:   i.Remaining(),
		Status:      string(i.StatusFor(time.Now())),
		PaymentMode: i.PaymentMode,
		Notes:       i.Notes,
	}
}

func toPlanResponse(p *billing.PaymentPlan) *PaymentPlanResponse {
	installments := make([]InstallmentResponse, 0, len(p.Installments))
	for _, inst := range p.SortedInstallments() {
		installments = append(installments, toInstallmentResponse(inst))
	}
	return &PaymentPlanResponse{
		ID:            p.ID,
		DealID:        p.DealID,
		ClientID:      p.ClientID,
		TotalAmount:   p.TotalAmount,
		DownPayment:   p.DownPayment,
		TotalExpected: p.TotalExpected,
		TotalPaid:     p.TotalPaid,
		Remaining:     p.Remaining(),
		Status:        string(p.Status),
		StartDate:     p.StartDate,
		Installments:  installments,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// CreatePlan materializes a deal's payment schedule. The deal's recorded total
// is authoritative: down payment plus installments must match it within
// tolerance, and a deal carries at most one plan.
func (s *PaymentPlanService) CreatePlan(ctx context.Context, req CreatePlanRequest) (*PaymentPlanResponse, error) {
	deal, err := s.gateway.FindDeal(ctx, req.DealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Deal not found")
	}

	specs := make([]billing.InstallmentSpec, 0, len(req.Installments))
	for _, spec := range req.Installments {
		specs = append(specs, billing.InstallmentSpec{
			Amount:      spec.Amount,
			DueDate:     spec.DueDate,
			Type:        billing.InstallmentType(spec.Type),
			PaymentMode: spec.PaymentMode,
			Notes:       spec.Notes,
		})
	}

	plan, err := billing.NewPaymentPlan(deal.ID, deal.ClientID, deal.TotalAmount, req.DownPayment, req.StartDate, specs)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormPaymentPlanRepository(tx)

		existing, err := repo.FindByDealID(ctx, req.DealID)
		if err != nil {
			return err
		}
		if existing != nil {
			return shared.NewDomainErrorf("ALREADY_EXISTS", "Deal %s already has a payment plan", req.DealID)
		}
		return repo.Save(ctx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment plan created",
		zap.String("deal_id", plan.DealID.String()),
		zap.String("total_expected", plan.TotalExpected.StringFixed(2)),
		zap.Int("installments", len(plan.Installments)),
	)
	return toPlanResponse(plan), nil
}

// GetPlan returns a plan by ID
func (s *PaymentPlanService) GetPlan(ctx context.Context, id uuid.UUID) (*PaymentPlanResponse, error) {
	repo := persistence.NewGormPaymentPlanRepository(s.db.DB)
	plan, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment plan not found")
	}
	return toPlanResponse(plan), nil
}

// GetPlanByDeal returns the plan attached to a deal
func (s *PaymentPlanService) GetPlanByDeal(ctx context.Context, dealID uuid.UUID) (*PaymentPlanResponse, error) {
	repo := persistence.NewGormPaymentPlanRepository(s.db.DB)
	plan, err := repo.FindByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment plan not found")
	}
	return toPlanResponse(plan), nil
}

// UpdateInstallment edits an unpaid installment's amount, due date or notes,
// then re-derives the plan totals. The plan-sum invariant binds at creation
// only; later edits deliberately shift the schedule.
func (s *PaymentPlanService) UpdateInstallment(ctx context.Context, installmentID uuid.UUID, req UpdateInstallmentRequest) (*PaymentPlanResponse, error) {
	var plan *billing.PaymentPlan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormPaymentPlanRepository(tx)

		installment, err := repo.FindInstallmentByID(ctx, installmentID)
		if err != nil {
			return err
		}
		if installment == nil {
			return shared.NewDomainError("NOT_FOUND", "Installment not found")
		}

		plan, err = repo.FindByID(ctx, installment.PaymentPlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return shared.NewDomainError("NOT_FOUND", "Payment plan not found")
		}
		target := plan.InstallmentByID(installmentID)

		if req.Amount != nil {
			if err := target.UpdateAmount(*req.Amount); err != nil {
				return err
			}
		}
		if req.DueDate != nil {
			if err := target.UpdateDueDate(*req.DueDate); err != nil {
				return err
			}
		}
		if req.PaymentMode != nil {
			target.PaymentMode = *req.PaymentMode
		}
		if req.Notes != nil {
			target.Notes = *req.Notes
		}

		plan.Recalculate()
		if err := repo.SaveInstallment(ctx, target); err != nil {
			return err
		}
		return repo.Save(ctx, plan)
	})
	if err != nil {
		return nil, err
	}
	return toPlanResponse(plan), nil
}

// RecalculatePlan re-derives plan totals and status from the installment rows.
// Idempotent repair hook for drifted aggregates.
func (s *PaymentPlanService) RecalculatePlan(ctx context.Context, id uuid.UUID) (*PaymentPlanResponse, error) {
	var plan *billing.PaymentPlan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormPaymentPlanRepository(tx)

		var err error
		plan, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if plan == nil {
			return shared.NewDomainError("NOT_FOUND", "Payment plan not found")
		}
		plan.Recalculate()
		return repo.Save(ctx, plan)
	})
	if err != nil {
		return nil, err
	}
	return toPlanResponse(plan), nil
}

// DeletePlan soft-deletes a plan. Plans with recorded payments stay: their
// installment links are referenced by receipt allocations.
func (s *PaymentPlanService) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormPaymentPlanRepository(tx)

		plan, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if plan == nil {
			return shared.NewDomainError("NOT_FOUND", "Payment plan not found")
		}
		if plan.HasPayments() {
			return shared.NewDomainError("INVALID_STATE", "Plan has recorded payments and cannot be deleted")
		}
		return repo.Delete(ctx, id)
	})
}

// ListDueInstallments lists unpaid installments due on or before asOf,
// for overdue sweeps and collection follow-up.
func (s *PaymentPlanService) ListDueInstallments(ctx context.Context, asOf time.Time) ([]InstallmentResponse, error) {
	repo := persistence.NewGormPaymentPlanRepository(s.db.DB)
	installments, err := repo.FindDueInstallments(ctx, asOf)
	if err != nil {
		return nil, err
	}

	out := make([]InstallmentResponse, 0, len(installments))
	for i := range installments {
		out = append(out, toInstallmentResponse(&installments[i]))
	}
	return out, nil
}
