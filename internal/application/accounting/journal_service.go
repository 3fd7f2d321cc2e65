package accounting

import (
	"context"
	"strings"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// numberRetries bounds retry attempts when a generated document number
// collides with an existing one.
const numberRetries = 3

// ReportInvalidator drops derived report snapshots. Mutating services call it
// after a committed write that changes report inputs.
type ReportInvalidator interface {
	Invalidate(ctx context.Context)
}

// JournalService provides application-level journal operations. All posting
// funnels through here so account validation and numbering stay uniform.
type JournalService struct {
	db          *persistence.Database
	logger      *zap.Logger
	invalidator ReportInvalidator
}

// NewJournalService creates a new JournalService
func NewJournalService(db *persistence.Database, logger *zap.Logger) *JournalService {
	return &JournalService{db: db, logger: logger.Named("journal-service")}
}

// WithReportInvalidator wires report snapshot invalidation into the posting
// paths that commit their own transaction.
func (s *JournalService) WithReportInvalidator(inv ReportInvalidator) *JournalService {
	s.invalidator = inv
	return s
}

func (s *JournalService) invalidateReports(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// JournalLineRequest is one requested line in a manual entry
type JournalLineRequest struct {
	AccountID   uuid.UUID       `json:"account_id" binding:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" binding:"max=500"`
}

// PostEntryRequest is the typed payload for posting a manual journal entry
type PostEntryRequest struct {
	EntryDate   time.Time            `json:"entry_date" binding:"required"`
	Description string               `json:"description" binding:"max=500"`
	Lines       []JournalLineRequest `json:"lines" binding:"required,min=2,dive"`
}

// JournalLineResponse represents a journal line in API responses
type JournalLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	LineNumber  int             `json:"line_number"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	Cleared     bool            `json:"cleared"`
}

// JournalEntryResponse represents a journal entry in API responses
type JournalEntryResponse struct {
	ID          uuid.UUID             `json:"id"`
	EntryNumber string                `json:"entry_number"`
	VoucherNo   string                `json:"voucher_no,omitempty"`
	EntryDate   time.Time             `json:"entry_date"`
	Description string                `json:"description,omitempty"`
	SourceType  string                `json:"source_type"`
	SourceID    *uuid.UUID            `json:"source_id,omitempty"`
	ReversalOf  *uuid.UUID            `json:"reversal_of,omitempty"`
	TotalDebit  decimal.Decimal       `json:"total_debit"`
	TotalCredit decimal.Decimal       `json:"total_credit"`
	Lines       []JournalLineResponse `json:"lines"`
	CreatedAt   time.Time             `json:"created_at"`
}

// JournalListFilter defines filtering options for journal entry queries
type JournalListFilter struct {
	SourceType string     `form:"source_type"`
	AccountID  *uuid.UUID `form:"account_id"`
	FromDate   *time.Time `form:"from_date"`
	ToDate     *time.Time `form:"to_date"`
	Page       int        `form:"page"`
	PageSize   int        `form:"page_size"`
}

// PostEntryInput describes an entry posted on behalf of another aggregate
// (voucher posting, receipt confirmation, reversals).
type PostEntryInput struct {
	EntryDate   time.Time
	Description string
	SourceType  accounting.JournalSourceType
	SourceID    *uuid.UUID
	VoucherNo   string
	Lines       []accounting.LineInput
}

func toJournalEntryResponse(e *accounting.JournalEntry) *JournalEntryResponse {
	lines := make([]JournalLineResponse, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, JournalLineResponse{
			ID:          l.ID,
			AccountID:   l.AccountID,
			LineNumber:  l.LineNumber,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			Cleared:     l.Cleared,
		})
	}
	return &JournalEntryResponse{
		ID:          e.ID,
		EntryNumber: e.EntryNumber,
		VoucherNo:   e.VoucherNo,
		EntryDate:   e.EntryDate,
		Description: e.Description,
		SourceType:  string(e.SourceType),
		SourceID:    e.SourceID,
		ReversalOf:  e.ReversalOf,
		TotalDebit:  e.TotalDebit(),
		TotalCredit: e.TotalCredit(),
		Lines:       lines,
		CreatedAt:   e.CreatedAt,
	}
}

// PostManualEntry validates and posts a manual journal entry atomically
func (s *JournalService) PostManualEntry(ctx context.Context, req PostEntryRequest) (*JournalEntryResponse, error) {
	lines := make([]accounting.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, accounting.LineInput{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}

	var entry *accounting.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.PostEntry(ctx, tx, PostEntryInput{
			EntryDate:   req.EntryDate,
			Description: req.Description,
			SourceType:  accounting.JournalSourceManual,
			Lines:       lines,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logger.Info("journal entry posted",
		zap.String("entry_number", entry.EntryNumber),
		zap.String("source_type", string(entry.SourceType)),
	)
	return toJournalEntryResponse(entry), nil
}

// PostEntry validates accounts and persists a balanced entry on the supplied
// transaction handle. Callers composing larger units of work (voucher posting,
// receipt confirmation) pass their own tx so the whole operation is atomic.
func (s *JournalService) PostEntry(ctx context.Context, tx *gorm.DB, input PostEntryInput) (*accounting.JournalEntry, error) {
	if err := s.validateAccounts(ctx, tx, input.Lines); err != nil {
		return nil, err
	}

	journalRepo := persistence.NewGormJournalEntryRepository(tx)

	var lastErr error
	for attempt := 0; attempt < numberRetries; attempt++ {
		entryNumber := accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, input.EntryDate)
		entry, err := accounting.NewJournalEntry(entryNumber, input.EntryDate, input.Description, input.SourceType, input.Lines)
		if err != nil {
			return nil, err
		}
		entry.SourceID = input.SourceID
		entry.VoucherNo = input.VoucherNo

		// postgres aborts the whole transaction on a failed insert; the
		// savepoint scopes the collision retry to this statement
		if err := tx.SavePoint("entry_number").Error; err != nil {
			return nil, err
		}
		if err := journalRepo.Save(ctx, entry); err != nil {
			if IsUniqueViolation(err) {
				lastErr = err
				if err := tx.RollbackTo("entry_number").Error; err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		return entry, nil
	}
	return nil, shared.NewDomainErrorf("CONCURRENCY_CONFLICT",
		"Could not allocate a unique entry number after %d attempts: %v", numberRetries, lastErr)
}

// validateAccounts checks every referenced account exists and is postable
func (s *JournalService) validateAccounts(ctx context.Context, tx *gorm.DB, lines []accounting.LineInput) error {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		if l.AccountID != uuid.Nil && !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}

	accountRepo := persistence.NewGormAccountRepository(tx)
	accounts, err := accountRepo.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*accounting.Account, len(accounts))
	for i := range accounts {
		byID[accounts[i].ID] = &accounts[i]
	}
	for _, id := range ids {
		account, ok := byID[id]
		if !ok {
			return shared.NewDomainErrorf("NOT_FOUND", "Account %s not found", id)
		}
		if !account.Postable {
			return shared.NewDomainErrorf("VALIDATION_ERROR",
				"Account %s (%s) is not postable", account.Code, account.Name)
		}
	}
	return nil
}

// ReverseEntry posts an offsetting entry for an existing one. The original
// entry is never modified; the reversal swaps each line's sides.
func (s *JournalService) ReverseEntry(ctx context.Context, id uuid.UUID, reversalDate time.Time) (*JournalEntryResponse, error) {
	var reversal *accounting.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		journalRepo := persistence.NewGormJournalEntryRepository(tx)

		original, err := journalRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if original == nil {
			return shared.NewDomainError("NOT_FOUND", "Journal entry not found")
		}

		for attempt := 0; attempt < numberRetries; attempt++ {
			entryNumber := accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, reversalDate)
			reversal, err = original.BuildReversal(entryNumber, reversalDate)
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
			return nil
		}
		return shared.NewDomainErrorf("CONCURRENCY_CONFLICT",
			"Could not allocate a unique entry number after %d attempts", numberRetries)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReports(ctx)
	s.logger.Info("journal entry reversed",
		zap.String("entry_number", reversal.EntryNumber),
		zap.String("reversal_of", id.String()),
	)
	return toJournalEntryResponse(reversal), nil
}

// GetEntry returns one journal entry with its lines
func (s *JournalService) GetEntry(ctx context.Context, id uuid.UUID) (*JournalEntryResponse, error) {
	repo := persistence.NewGormJournalEntryRepository(s.db.DB)
	entry, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Journal entry not found")
	}
	return toJournalEntryResponse(entry), nil
}

// ListEntries returns journal entries matching the filter
func (s *JournalService) ListEntries(ctx context.Context, filter JournalListFilter) ([]JournalEntryResponse, error) {
	repoFilter := accounting.JournalEntryFilter{
		AccountID: filter.AccountID,
		FromDate:  filter.FromDate,
		ToDate:    filter.ToDate,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}
	if filter.SourceType != "" {
		st := accounting.JournalSourceType(filter.SourceType)
		repoFilter.SourceType = &st
	}

	repo := persistence.NewGormJournalEntryRepository(s.db.DB)
	entries, err := repo.FindAll(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	out := make([]JournalEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, *toJournalEntryResponse(&entries[i]))
	}
	return out, nil
}

// MarkLineCleared toggles the bank-reconciliation cleared flag on a line
func (s *JournalService) MarkLineCleared(ctx context.Context, lineID uuid.UUID, cleared bool) error {
	repo := persistence.NewGormJournalEntryRepository(s.db.DB)
	if err := repo.MarkLineCleared(ctx, lineID, cleared); err != nil {
		if err == gorm.ErrRecordNotFound {
			return shared.NewDomainError("NOT_FOUND", "Journal line not found")
		}
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

// IsUniqueViolation reports whether err looks like a unique constraint
// violation across the drivers we run on (postgres in production, sqlite in
// tests).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique failed")
}
