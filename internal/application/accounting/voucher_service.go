package accounting

import (
	"context"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VoucherService drives the voucher approval workflow. Posting a voucher is
// the only place its journal entry is created.
type VoucherService struct {
	db          *persistence.Database
	journalSvc  *JournalService
	logger      *zap.Logger
	invalidator ReportInvalidator
}

// NewVoucherService creates a new VoucherService
func NewVoucherService(db *persistence.Database, journalSvc *JournalService, logger *zap.Logger) *VoucherService {
	return &VoucherService{db: db, journalSvc: journalSvc, logger: logger.Named("voucher-service")}
}

// WithReportInvalidator wires report snapshot invalidation into voucher
// posting and reversal.
func (s *VoucherService) WithReportInvalidator(inv ReportInvalidator) *VoucherService {
	s.invalidator = inv
	return s
}

func (s *VoucherService) invalidateReports(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// VoucherLineRequest is one requested line on a voucher
type VoucherLineRequest struct {
	AccountID   uuid.UUID       `json:"account_id" binding:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" binding:"max=500"`
	InvoiceID   *uuid.UUID      `json:"invoice_id"`
}

// CreateVoucherRequest is the typed payload for creating a voucher
type CreateVoucherRequest struct {
	Type             string               `json:"type" binding:"required,oneof=BPV BRV CPV CRV JV"`
	VoucherDate      time.Time            `json:"voucher_date" binding:"required"`
	PrimaryAccountID *uuid.UUID           `json:"primary_account_id"`
	Payee            string               `json:"payee" binding:"max=200"`
	Remark           string               `json:"remark" binding:"max=500"`
	PreparedBy       uuid.UUID            `json:"prepared_by" binding:"required"`
	Lines            []VoucherLineRequest `json:"lines" binding:"dive"`
}

// UpdateVoucherRequest is the typed payload for editing a draft or submitted voucher
type UpdateVoucherRequest struct {
	PrimaryAccountID *uuid.UUID           `json:"primary_account_id"`
	Payee            *string              `json:"payee" binding:"omitempty,max=200"`
	Remark           *string              `json:"remark" binding:"omitempty,max=500"`
	Lines            []VoucherLineRequest `json:"lines" binding:"dive"`
}

// VoucherLineResponse represents a voucher line in API responses
type VoucherLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	LineNumber  int             `json:"line_number"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	InvoiceID   *uuid.UUID      `json:"invoice_id,omitempty"`
}

// VoucherAttachmentResponse represents an attachment reference in API responses
type VoucherAttachmentResponse struct {
	ID         uuid.UUID `json:"id"`
	FileName   string    `json:"file_name"`
	StorageKey string    `json:"storage_key"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// VoucherResponse represents a voucher in API responses
type VoucherResponse struct {
	ID               uuid.UUID                   `json:"id"`
	VoucherNumber    string                      `json:"voucher_number"`
	Type             string                      `json:"type"`
	Status           string                      `json:"status"`
	PrimaryAccountID *uuid.UUID                  `json:"primary_account_id,omitempty"`
	Payee            string                      `json:"payee,omitempty"`
	Remark           string                      `json:"remark,omitempty"`
	VoucherDate      time.Time                   `json:"voucher_date"`
	TotalAmount      decimal.Decimal             `json:"total_amount"`
	Lines            []VoucherLineResponse       `json:"lines"`
	Attachments      []VoucherAttachmentResponse `json:"attachments,omitempty"`
	PreparedBy       uuid.UUID                   `json:"prepared_by"`
	ApprovedBy       *uuid.UUID                  `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time                  `json:"approved_at,omitempty"`
	JournalEntryID   *uuid.UUID                  `json:"journal_entry_id,omitempty"`
	PostedAt         *time.Time                  `json:"posted_at,omitempty"`
	ReversalEntryID  *uuid.UUID                  `json:"reversal_entry_id,omitempty"`
	ReversedAt       *time.Time                  `json:"reversed_at,omitempty"`
	Version          int                         `json:"version"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// VoucherListFilter defines filtering options for voucher list queries
type VoucherListFilter struct {
	Type     string     `form:"type"`
	Status   string     `form:"status"`
	FromDate *time.Time `form:"from_date"`
	ToDate   *time.Time `form:"to_date"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

// VoucherListResponse carries one page of vouchers plus the total match count
type VoucherListResponse struct {
	Items []VoucherResponse `json:"items"`
	Total int64             `json:"total"`
}

func toVoucherResponse(v *accounting.Voucher) *VoucherResponse {
	lines := make([]VoucherLineResponse, 0, len(v.Lines))
	for _, l := range v.Lines {
		lines = append(lines, VoucherLineResponse{
			ID:          l.ID,
			AccountID:   l.AccountID,
			LineNumber:  l.LineNumber,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			InvoiceID:   l.InvoiceID,
		})
	}
	attachments := make([]VoucherAttachmentResponse, 0, len(v.Attachments))
	for _, a := range v.Attachments {
		attachments = append(attachments, VoucherAttachmentResponse{
			ID:         a.ID,
			FileName:   a.FileName,
			StorageKey: a.StorageKey,
			UploadedAt: a.UploadedAt,
		})
	}
	return &VoucherResponse{
		ID:               v.ID,
		VoucherNumber:    v.VoucherNumber,
		Type:             string(v.Type),
		Status:           string(v.Status),
		PrimaryAccountID: v.PrimaryAccountID,
		Payee:            v.Payee,
		Remark:           v.Remark,
		VoucherDate:      v.VoucherDate,
		TotalAmount:      v.TotalAmount(),
		Lines:            lines,
		Attachments:      attachments,
		PreparedBy:       v.PreparedBy,
		ApprovedBy:       v.ApprovedBy,
		ApprovedAt:       v.ApprovedAt,
		JournalEntryID:   v.JournalEntryID,
		PostedAt:         v.PostedAt,
		ReversalEntryID:  v.ReversalEntryID,
		ReversedAt:       v.ReversedAt,
		Version:          v.Version,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func toVoucherLines(reqs []VoucherLineRequest) []accounting.VoucherLine {
	lines := make([]accounting.VoucherLine, 0, len(reqs))
	for _, l := range reqs {
		lines = append(lines, accounting.VoucherLine{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			InvoiceID:   l.InvoiceID,
		})
	}
	return lines
}

// CreateVoucher creates a draft voucher with a generated voucher number
func (s *VoucherService) CreateVoucher(ctx context.Context, req CreateVoucherRequest) (*VoucherResponse, error) {
	voucherType := accounting.VoucherType(req.Type)

	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		for attempt := 0; attempt < numberRetries; attempt++ {
			number := accounting.GenerateDocumentNumber(accounting.VoucherNumberPrefix(voucherType), req.VoucherDate)

			var err error
			voucher, err = accounting.NewVoucher(number, voucherType, req.VoucherDate, req.PreparedBy)
			if err != nil {
				return err
			}
			voucher.Payee = req.Payee
			voucher.Remark = req.Remark
			if req.PrimaryAccountID != nil {
				if err := voucher.SetPrimaryAccount(*req.PrimaryAccountID); err != nil {
					return err
				}
			}
			if len(req.Lines) > 0 {
				if err := voucher.ReplaceLines(toVoucherLines(req.Lines)); err != nil {
					return err
				}
			}

			if err := tx.SavePoint("voucher_number").Error; err != nil {
				return err
			}
			if err = repo.Save(ctx, voucher); err != nil {
				if IsUniqueViolation(err) {
					if err := tx.RollbackTo("voucher_number").Error; err != nil {
						return err
					}
					continue
				}
				return err
			}
			return nil
		}
		return shared.NewDomainErrorf("CONCURRENCY_CONFLICT",
			"Could not allocate a unique voucher number after %d attempts", numberRetries)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher created",
		zap.String("voucher_number", voucher.VoucherNumber),
		zap.String("type", string(voucher.Type)),
	)
	return toVoucherResponse(voucher), nil
}

// UpdateVoucher edits a voucher's content while it is still editable
// (draft or submitted). Posted vouchers are immutable.
func (s *VoucherService) UpdateVoucher(ctx context.Context, id uuid.UUID, req UpdateVoucherRequest) (*VoucherResponse, error) {
	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		var err error
		voucher, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if !voucher.Status.CanEdit() {
			return shared.NewDomainErrorf("IMMUTABLE_RECORD", "Cannot modify voucher in %s status", voucher.Status)
		}

		if req.PrimaryAccountID != nil {
			if err := voucher.SetPrimaryAccount(*req.PrimaryAccountID); err != nil {
				return err
			}
		}
		if req.Payee != nil {
			voucher.Payee = *req.Payee
		}
		if req.Remark != nil {
			voucher.Remark = *req.Remark
		}
		if req.Lines != nil {
			if err := voucher.ReplaceLines(toVoucherLines(req.Lines)); err != nil {
				return err
			}
			// replaced lines need the old rows gone before the save re-creates them
			if err := tx.Where("voucher_id = ?", id).Delete(&accounting.VoucherLine{}).Error; err != nil {
				return err
			}
		}

		return repo.Save(ctx, voucher)
	})
	if err != nil {
		return nil, err
	}
	return toVoucherResponse(voucher), nil
}

// SubmitVoucher moves a draft voucher into the approval queue
func (s *VoucherService) SubmitVoucher(ctx context.Context, id uuid.UUID) (*VoucherResponse, error) {
	return s.transition(ctx, id, func(v *accounting.Voucher) error { return v.Submit() })
}

// ApproveVoucher approves a submitted voucher
func (s *VoucherService) ApproveVoucher(ctx context.Context, id, approvedBy uuid.UUID) (*VoucherResponse, error) {
	return s.transition(ctx, id, func(v *accounting.Voucher) error { return v.Approve(approvedBy) })
}

// transition loads, mutates and saves a voucher under the optimistic lock
func (s *VoucherService) transition(ctx context.Context, id uuid.UUID, fn func(*accounting.Voucher) error) (*VoucherResponse, error) {
	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		var err error
		voucher, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if err := fn(voucher); err != nil {
			return err
		}
		return repo.SaveWithLock(ctx, voucher)
	})
	if err != nil {
		return nil, err
	}
	return toVoucherResponse(voucher), nil
}

// PostVoucher creates the voucher's journal entry and freezes it, atomically:
// either the entry exists and the voucher is POSTED, or neither happened.
func (s *VoucherService) PostVoucher(ctx context.Context, id uuid.UUID) (*VoucherResponse, error) {
	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		var err error
		voucher, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if voucher.Status == accounting.VoucherStatusPosted {
			return shared.NewDomainError("ALREADY_POSTED", "Voucher has already been posted")
		}
		if !voucher.Status.CanPost() {
			return shared.NewDomainErrorf("INVALID_STATE", "Cannot post voucher in %s status", voucher.Status)
		}

		lines, err := voucher.BuildJournalLines()
		if err != nil {
			return err
		}

		entry, err := s.journalSvc.PostEntry(ctx, tx, PostEntryInput{
			EntryDate:   voucher.VoucherDate,
			Description: voucher.Remark,
			SourceType:  accounting.JournalSourceVoucher,
			SourceID:    &voucher.ID,
			VoucherNo:   voucher.VoucherNumber,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		if err := voucher.MarkPosted(entry.ID, time.Now()); err != nil {
			return err
		}
		return repo.SaveWithLock(ctx, voucher)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logger.Info("voucher posted",
		zap.String("voucher_number", voucher.VoucherNumber),
		zap.String("journal_entry_id", voucher.JournalEntryID.String()),
	)
	return toVoucherResponse(voucher), nil
}

// ReverseVoucher posts an offsetting journal entry and moves the voucher to
// its terminal REVERSED state. The original entry stays in the ledger.
func (s *VoucherService) ReverseVoucher(ctx context.Context, id uuid.UUID) (*VoucherResponse, error) {
	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)
		journalRepo := persistence.NewGormJournalEntryRepository(tx)

		var err error
		voucher, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if !voucher.Status.CanReverse() {
			return shared.NewDomainErrorf("INVALID_STATE", "Cannot reverse voucher in %s status", voucher.Status)
		}

		original, err := journalRepo.FindByID(ctx, *voucher.JournalEntryID)
		if err != nil {
			return err
		}
		if original == nil {
			return shared.NewDomainError("NOT_FOUND", "Posted journal entry not found")
		}

		now := time.Now()
		var reversal *accounting.JournalEntry
		for attempt := 0; attempt < numberRetries; attempt++ {
			number := accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, now)
			reversal, err = original.BuildReversal(number, now)
			if err != nil {
				return err
			}
			if err := tx.SavePoint("entry_number").Error; err != nil {
				return err
			}
			if err = journalRepo.Save(ctx, reversal); err != nil {
				if IsUniqueViolation(err) {
					if err := tx.RollbackTo("entry_number").Error; err != nil {
						return err
					}
					continue
				}
				return err
			}
			break
		}
		if err != nil {
			return shared.NewDomainErrorf("CONCURRENCY_CONFLICT",
				"Could not allocate a unique entry number after %d attempts", numberRetries)
		}

		if err := voucher.MarkReversed(reversal.ID, now); err != nil {
			return err
		}
		return repo.SaveWithLock(ctx, voucher)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logger.Info("voucher reversed", zap.String("voucher_number", voucher.VoucherNumber))
	return toVoucherResponse(voucher), nil
}

// DeleteVoucher hard-deletes a voucher. Only drafts can be deleted; anything
// later in the workflow is part of the audit trail.
func (s *VoucherService) DeleteVoucher(ctx context.Context, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		voucher, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if !voucher.Status.CanDelete() {
			return shared.NewDomainErrorf("INVALID_STATE", "Only draft vouchers can be deleted, voucher is %s", voucher.Status)
		}
		return repo.Delete(ctx, id)
	})
}

// AddAttachment records an attachment reference on a voucher
func (s *VoucherService) AddAttachment(ctx context.Context, id uuid.UUID, fileName, storageKey string) (*VoucherResponse, error) {
	var voucher *accounting.Voucher
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormVoucherRepository(tx)

		var err error
		voucher, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if voucher == nil {
			return shared.NewDomainError("NOT_FOUND", "Voucher not found")
		}
		if err := voucher.AddAttachment(fileName, storageKey); err != nil {
			return err
		}
		return repo.Save(ctx, voucher)
	})
	if err != nil {
		return nil, err
	}
	return toVoucherResponse(voucher), nil
}

// GetVoucher returns one voucher with its lines and attachments
func (s *VoucherService) GetVoucher(ctx context.Context, id uuid.UUID) (*VoucherResponse, error) {
	repo := persistence.NewGormVoucherRepository(s.db.DB)
	voucher, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Voucher not found")
	}
	return toVoucherResponse(voucher), nil
}

// ListVouchers returns one page of vouchers plus the total match count
func (s *VoucherService) ListVouchers(ctx context.Context, filter VoucherListFilter) (*VoucherListResponse, error) {
	repoFilter := accounting.VoucherFilter{
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Type != "" {
		t := accounting.VoucherType(filter.Type)
		repoFilter.Type = &t
	}
	if filter.Status != "" {
		st := accounting.VoucherStatus(filter.Status)
		repoFilter.Status = &st
	}

	repo := persistence.NewGormVoucherRepository(s.db.DB)
	vouchers, err := repo.FindAll(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	total, err := repo.Count(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	items := make([]VoucherResponse, 0, len(vouchers))
	for i := range vouchers {
		items = append(items, *toVoucherResponse(&vouchers[i]))
	}
	return &VoucherListResponse{Items: items, Total: total}, nil
}
