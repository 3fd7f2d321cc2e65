package billing

import (
	"context"
	"fmt"
	"time"

	appaccounting "github.com/estatehq/backend/internal/application/accounting"
	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/config"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const receiptNumberRetries = 3

// ReceiptService confirms incoming money against a deal: it allocates the
// amount FIFO across the plan's outstanding installments, posts the ledger
// effect, and reports emergent deal closure. Everything happens in one
// transaction under a row lock on the plan, so concurrent receipts against
// the same deal serialize.
type ReceiptService struct {
	db               *persistence.Database
	gateway          billing.DealGateway
	journalSvc       *appaccounting.JournalService
	ledgerCfg        config.LedgerConfig
	logger           *zap.Logger
	invalidator      appaccounting.ReportInvalidator
	newReceiptNumber func(date time.Time) string
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	db *persistence.Database,
	gateway billing.DealGateway,
	journalSvc *appaccounting.JournalService,
	ledgerCfg config.LedgerConfig,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		db:         db,
		gateway:    gateway,
		journalSvc: journalSvc,
		ledgerCfg:  ledgerCfg,
		logger:     logger.Named("receipt-service"),
		newReceiptNumber: func(date time.Time) string {
			return accounting.GenerateDocumentNumber(accounting.PrefixReceipt, date)
		},
	}
}

// WithReportInvalidator wires report snapshot invalidation into the paths
// that change ledger or plan state.
func (s *ReceiptService) WithReportInvalidator(inv appaccounting.ReportInvalidator) *ReceiptService {
	s.invalidator = inv
	return s
}

func (s *ReceiptService) invalidateReports(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// CreateReceiptRequest is the typed payload for confirming a payment
type CreateReceiptRequest struct {
	DealID      uuid.UUID       `json:"deal_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Method      string          `json:"method" binding:"required,oneof=CASH BANK"`
	ReceiptDate time.Time       `json:"receipt_date" binding:"required"`
	Reference   string          `json:"reference" binding:"max=100"`
	ReceivedBy  uuid.UUID       `json:"received_by" binding:"required"`
}

// AllocationResponse is one FIFO allocation step in API responses
type AllocationResponse struct {
	InstallmentID     uuid.UUID       `json:"installment_id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
}

// ReceiptResponse represents a receipt in API responses
type ReceiptResponse struct {
	ID             uuid.UUID            `json:"id"`
	ReceiptNumber  string               `json:"receipt_number"`
	DealID         uuid.UUID            `json:"deal_id"`
	ClientID       uuid.UUID            `json:"client_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Method         string               `json:"method"`
	ReceiptDate    time.Time            `json:"receipt_date"`
	Reference      string               `json:"reference,omitempty"`
	ReceivedBy     uuid.UUID            `json:"received_by"`
	Allocations    []AllocationResponse `json:"allocations"`
	TotalAllocated decimal.Decimal      `json:"total_allocated"`
	ExcessIgnored  decimal.Decimal      `json:"excess_ignored"`
	JournalEntryID *uuid.UUID           `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// AllocationSummary is the outcome of confirming a payment: what was applied
// where, what was left over, and whether the deal closed as a result.
type AllocationSummary struct {
	Receipt    *ReceiptResponse     `json:"receipt"`
	Plan       *PaymentPlanResponse `json:"plan"`
	DealClosed bool                 `json:"deal_closed"`
	Message    string               `json:"message"`
}

// ReceiptListFilter defines filtering options for receipt list queries
type ReceiptListFilter struct {
	DealID   *uuid.UUID `form:"deal_id"`
	ClientID *uuid.UUID `form:"client_id"`
	Method   string     `form:"method"`
	FromDate *time.Time `form:"from_date"`
	ToDate   *time.Time `form:"to_date"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

// ReceiptListResponse carries one page of receipts plus the total match count
type ReceiptListResponse struct {
	Items []ReceiptResponse `json:"items"`
	Total int64             `json:"total"`
}

func toReceiptResponse(r *billing.Receipt) *ReceiptResponse {
	allocations := make([]AllocationResponse, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		allocations = append(allocations, AllocationResponse{
			InstallmentID:     a.InstallmentID,
			InstallmentNumber: a.InstallmentNumber,
			Amount:            a.Amount,
		})
	}
	return &ReceiptResponse{
		ID:             r.ID,
		ReceiptNumber:  r.ReceiptNumber,
		DealID:         r.DealID,
		ClientID:       r.ClientID,
		Amount:         r.Amount,
		Method:         string(r.Method),
		ReceiptDate:    r.ReceiptDate,
		Reference:      r.Reference,
		ReceivedBy:     r.ReceivedBy,
		Allocations:    allocations,
		TotalAllocated: r.TotalAllocated(),
		ExcessIgnored:  r.ExcessIgnored(),
		JournalEntryID: r.JournalEntryID,
		CreatedAt:      r.CreatedAt,
	}
}

// CreateReceipt confirms a payment against a deal. The amount is distributed
// FIFO across outstanding installments (the down payment, number 0, first),
// the ledger is debited on the cash/bank side and credited on the receivable
// side for the applied portion, and the deal closes when the plan becomes
// fully paid. Overpayment beyond all obligations is reported back, never
// applied.
func (s *ReceiptService) CreateReceipt(ctx context.Context, req CreateReceiptRequest) (*AllocationSummary, error) {
	var (
		receipt    *billing.Receipt
		plan       *billing.PaymentPlan
		dealClosed bool
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		planRepo := persistence.NewGormPaymentPlanRepository(tx)
		receiptRepo := persistence.NewGormReceiptRepository(tx)

		var err error
		plan, err = planRepo.FindByDealIDForUpdate(ctx, req.DealID)
		if err != nil {
			return err
		}
		if plan == nil {
			return shared.NewDomainError("NOT_FOUND", "Deal has no payment plan")
		}
		if plan.IsFullyPaid() {
			return shared.NewDomainError("ALREADY_PAID", "All obligations on this deal are already paid")
		}

		receipt, err = billing.NewReceipt(s.newReceiptNumber(req.ReceiptDate), req.DealID,
			plan.ClientID, req.Amount, billing.ReceiptMethod(req.Method), req.ReceiptDate, req.ReceivedBy)
		if err != nil {
			return err
		}
		receipt.Reference = req.Reference

		allocations, _, err := plan.AllocateFIFO(req.Amount)
		if err != nil {
			return err
		}
		if err := receipt.RecordAllocations(allocations); err != nil {
			return err
		}

		// The receipt row claims its number before the ledger is touched, so
		// a collision retry never strands a journal entry. The savepoint keeps
		// the failed insert from aborting the surrounding transaction on
		// postgres.
		for attempt := 0; ; attempt++ {
			if err := tx.SavePoint("receipt_number").Error; err != nil {
				return err
			}
			err = receiptRepo.Save(ctx, receipt)
			if err == nil {
				break
			}
			if !appaccounting.IsUniqueViolation(err) || attempt >= receiptNumberRetries {
				return err
			}
			if err := tx.RollbackTo("receipt_number").Error; err != nil {
				return err
			}
			receipt.ReceiptNumber = s.newReceiptNumber(req.ReceiptDate)
		}

		if applied := receipt.TotalAllocated(); applied.IsPositive() {
			entry, err := s.postReceiptEntry(ctx, tx, receipt, applied)
			if err != nil {
				return err
			}
			receipt.SetJournalEntry(entry.ID)
			if err := receiptRepo.Save(ctx, receipt); err != nil {
				return err
			}
		}

		for _, inst := range plan.SortedInstallments() {
			if err := planRepo.SaveInstallment(ctx, inst); err != nil {
				return err
			}
		}
		if err := planRepo.Save(ctx, plan); err != nil {
			return err
		}

		if plan.IsFullyPaid() {
			if err := s.gateway.MarkDealClosed(ctx, req.DealID); err != nil {
				return err
			}
			dealClosed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logger.Info("receipt recorded",
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("deal_id", req.DealID.String()),
		zap.String("allocated", receipt.TotalAllocated().StringFixed(2)),
		zap.String("excess", receipt.ExcessIgnored().StringFixed(2)),
		zap.Bool("deal_closed", dealClosed),
	)

	return &AllocationSummary{
		Receipt:    toReceiptResponse(receipt),
		Plan:       toPlanResponse(plan),
		DealClosed: dealClosed,
		Message:    s.summaryMessage(receipt, dealClosed),
	}, nil
}

func (s *ReceiptService) summaryMessage(receipt *billing.Receipt, dealClosed bool) string {
	msg := fmt.Sprintf("Allocated %s across %d installment(s)",
		receipt.TotalAllocated().StringFixed(2), len(receipt.Allocations))
	if excess := receipt.ExcessIgnored(); excess.IsPositive() {
		msg += fmt.Sprintf("; %s exceeded all outstanding obligations and was not applied", excess.StringFixed(2))
	}
	if dealClosed {
		msg += "; deal is now fully paid and closed"
	}
	return msg
}

// postReceiptEntry posts the ledger effect of a receipt: debit cash or bank,
// credit accounts receivable, for the applied portion only.
func (s *ReceiptService) postReceiptEntry(ctx context.Context, tx *gorm.DB, receipt *billing.Receipt, applied decimal.Decimal) (*accounting.JournalEntry, error) {
	accountRepo := persistence.NewGormAccountRepository(tx)

	debitCode := s.ledgerCfg.CashAccountCode
	if receipt.Method == billing.ReceiptMethodBank {
		debitCode = s.ledgerCfg.BankAccountCode
	}

	debitAccount, err := accountRepo.FindByCode(ctx, debitCode)
	if err != nil {
		return nil, err
	}
	if debitAccount == nil {
		return nil, shared.NewDomainErrorf("NOT_FOUND", "Ledger account %s is not configured", debitCode)
	}
	receivable, err := accountRepo.FindByCode(ctx, s.ledgerCfg.ReceivableAccountCode)
	if err != nil {
		return nil, err
	}
	if receivable == nil {
		return nil, shared.NewDomainErrorf("NOT_FOUND", "Ledger account %s is not configured", s.ledgerCfg.ReceivableAccountCode)
	}

	description := fmt.Sprintf("Receipt %s", receipt.ReceiptNumber)
	return s.journalSvc.PostEntry(ctx, tx, appaccounting.PostEntryInput{
		EntryDate:   receipt.ReceiptDate,
		Description: description,
		SourceType:  accounting.JournalSourceReceipt,
		SourceID:    &receipt.ID,
		Lines: []accounting.LineInput{
			{AccountID: debitAccount.ID, Debit: applied, Description: description},
			{AccountID: receivable.ID, Credit: applied, Description: description},
		},
	})
}

// DeleteReceipt undoes a confirmed payment symmetrically: every allocation is
// reverted on its installment, an offsetting journal entry neutralizes the
// original ledger effect, and a deal closed by this receipt reopens.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	var receiptNumber string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		receiptRepo := persistence.NewGormReceiptRepository(tx)
		planRepo := persistence.NewGormPaymentPlanRepository(tx)
		journalRepo := persistence.NewGormJournalEntryRepository(tx)

		receipt, err := receiptRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if receipt == nil {
			return shared.NewDomainError("NOT_FOUND", "Receipt not found")
		}
		receiptNumber = receipt.ReceiptNumber

		plan, err := planRepo.FindByDealIDForUpdate(ctx, receipt.DealID)
		if err != nil {
			return err
		}
		if plan == nil {
			return shared.NewDomainError("NOT_FOUND", "Deal has no payment plan")
		}

		wasFullyPaid := plan.IsFullyPaid()
		if err := plan.RevertAllocations(receipt.Allocations); err != nil {
			return err
		}
		for _, inst := range plan.SortedInstallments() {
			if err := planRepo.SaveInstallment(ctx, inst); err != nil {
				return err
			}
		}
		if err := planRepo.Save(ctx, plan); err != nil {
			return err
		}

		if receipt.JournalEntryID != nil {
			original, err := journalRepo.FindByID(ctx, *receipt.JournalEntryID)
			if err != nil {
				return err
			}
			if original != nil {
				now := time.Now()
				reversal, err := original.BuildReversal(
					accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, now), now)
				if err != nil {
					return err
				}
				reversal.Description = fmt.Sprintf("Deletion of receipt %s", receipt.ReceiptNumber)
				for attempt := 0; ; attempt++ {
					if err := tx.SavePoint("reversal_number").Error; err != nil {
						return err
					}
					err = journalRepo.Save(ctx, reversal)
					if err == nil {
						break
					}
					if !appaccounting.IsUniqueViolation(err) || attempt >= receiptNumberRetries {
						return err
					}
					if err := tx.RollbackTo("reversal_number").Error; err != nil {
						return err
					}
					reversal.EntryNumber = accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, now)
				}
			}
		}

		if err := receiptRepo.Delete(ctx, id); err != nil {
			return err
		}

		if wasFullyPaid && !plan.IsFullyPaid() {
			return s.gateway.MarkDealOpen(ctx, receipt.DealID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateReports(ctx)
	s.logger.Info("receipt deleted", zap.String("receipt_number", receiptNumber))
	return nil
}

// GetReceipt returns one receipt with its allocations
func (s *ReceiptService) GetReceipt(ctx context.Context, id uuid.UUID) (*ReceiptResponse, error) {
	repo := persistence.NewGormReceiptRepository(s.db.DB)
	receipt, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Receipt not found")
	}
	return toReceiptResponse(receipt), nil
}

// ListReceipts returns one page of receipts plus the total match count
func (s *ReceiptService) ListReceipts(ctx context.Context, filter ReceiptListFilter) (*ReceiptListResponse, error) {
	repoFilter := billing.ReceiptFilter{
		DealID:   filter.DealID,
		ClientID: filter.ClientID,
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Method != "" {
		m := billing.ReceiptMethod(filter.Method)
		repoFilter.Method = &m
	}

	repo := persistence.NewGormReceiptRepository(s.db.DB)
	receipts, err := repo.FindAll(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	total, err := repo.Count(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	items := make([]ReceiptResponse, 0, len(receipts))
	for i := range receipts {
		items = append(items, *toReceiptResponse(&receipts[i]))
	}
	return &ReceiptListResponse{Items: items, Total: total}, nil
}
