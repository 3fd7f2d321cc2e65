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

// AccountService provides application-level chart-of-accounts operations
type AccountService struct {
	db     *persistence.Database
	logger *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(db *persistence.Database, logger *zap.Logger) *AccountService {
	return &AccountService{db: db, logger: logger.Named("account-service")}
}

// CreateAccountRequest is the typed payload for creating an account
type CreateAccountRequest struct {
	Code     string     `json:"code" binding:"required,max=30"`
	Name     string     `json:"name" binding:"required,max=200"`
	Type     string     `json:"type" binding:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID *uuid.UUID `json:"parent_id"`
	Postable *bool      `json:"postable"`
	Remark   string     `json:"remark" binding:"max=500"`
}

// UpdateAccountRequest is the typed payload for updating an account
type UpdateAccountRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=200"`
	Postable *bool   `json:"postable"`
	Remark   *string `json:"remark" binding:"omitempty,max=500"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Postable  bool       `json:"postable"`
	Remark    string     `json:"remark,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AccountBalanceResponse carries a derived, sign-adjusted account balance
type AccountBalanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debits    decimal.Decimal `json:"debits"`
	Credits   decimal.Decimal `json:"credits"`
	Balance   decimal.Decimal `json:"balance"`
	AsOf      *time.Time      `json:"as_of,omitempty"`
}

// AccountListFilter defines filtering options for account list queries
type AccountListFilter struct {
	Type     string     `form:"type"`
	Postable *bool      `form:"postable"`
	ParentID *uuid.UUID `form:"parent_id"`
	Search   string     `form:"search"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

func toAccountResponse(a *accounting.Account) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		ParentID:  a.ParentID,
		Postable:  a.Postable,
		Remark:    a.Remark,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// CreateAccount creates a new chart-of-accounts node. Codes are unique across
// the directory; a parented account must share its parent's type.
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountResponse, error) {
	postable := true
	if req.Postable != nil {
		postable = *req.Postable
	}

	account, err := accounting.NewAccount(req.Code, req.Name, accounting.AccountType(req.Type), postable)
	if err != nil {
		return nil, err
	}
	account.Remark = req.Remark

	err = s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormAccountRepository(tx)

		existing, err := repo.FindByCode(ctx, req.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return shared.NewDomainErrorf("ALREADY_EXISTS", "Account code %s is already in use", req.Code)
		}

		if req.ParentID != nil {
			parent, err := repo.FindByID(ctx, *req.ParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return shared.NewDomainError("NOT_FOUND", "Parent account not found")
			}
			if err := account.AttachToParent(parent); err != nil {
				return err
			}
		}

		return repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("code", account.Code),
		zap.String("type", string(account.Type)),
	)
	return toAccountResponse(account), nil
}

// UpdateAccount changes mutable account attributes. Code and type are fixed
// after creation; history would otherwise be reinterpreted.
func (s *AccountService) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateAccountRequest) (*AccountResponse, error) {
	var account *accounting.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormAccountRepository(tx)

		var err error
		account, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return shared.NewDomainError("NOT_FOUND", "Account not found")
		}

		if req.Name != nil {
			if err := account.Rename(*req.Name); err != nil {
				return err
			}
		}
		if req.Postable != nil {
			account.SetPostable(*req.Postable)
		}
		if req.Remark != nil {
			account.Remark = *req.Remark
			account.Touch()
		}

		return repo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return toAccountResponse(account), nil
}

// GetAccount returns one account by ID
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*AccountResponse, error) {
	repo := persistence.NewGormAccountRepository(s.db.DB)
	account, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Account not found")
	}
	return toAccountResponse(account), nil
}

// ListAccounts returns accounts matching the filter, ordered by code
func (s *AccountService) ListAccounts(ctx context.Context, filter AccountListFilter) ([]AccountResponse, error) {
	repoFilter := accounting.AccountFilter{
		Postable: filter.Postable,
		ParentID: filter.ParentID,
		Search:   filter.Search,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Type != "" {
		t := accounting.AccountType(filter.Type)
		repoFilter.Type = &t
	}

	repo := persistence.NewGormAccountRepository(s.db.DB)
	accounts, err := repo.FindAll(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	out := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, *toAccountResponse(&accounts[i]))
	}
	return out, nil
}

// DeleteAccount soft-deletes an account. Accounts with posted activity or
// child accounts are kept; deleting them would orphan history.
func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := persistence.NewGormAccountRepository(tx)
		journalRepo := persistence.NewGormJournalEntryRepository(tx)

		account, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return shared.NewDomainError("NOT_FOUND", "Account not found")
		}

		children, err := repo.FindChildren(ctx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return shared.NewDomainError("INVALID_STATE", "Account has child accounts and cannot be deleted")
		}

		sums, err := journalRepo.SumForAccount(ctx, id, nil)
		if err != nil {
			return err
		}
		if sums.Debits.IsPositive() || sums.Credits.IsPositive() {
			return shared.NewDomainError("INVALID_STATE", "Account has journal activity and cannot be deleted")
		}

		return repo.SoftDelete(ctx, id)
	})
}

// GetBalance derives the sign-adjusted balance of an account from its journal
// lines, optionally as of a cutoff date. Balances are never stored.
func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (*AccountBalanceResponse, error) {
	accountRepo := persistence.NewGormAccountRepository(s.db.DB)
	journalRepo := persistence.NewGormJournalEntryRepository(s.db.DB)

	account, err := accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Account not found")
	}

	sums, err := journalRepo.SumForAccount(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}

	return &AccountBalanceResponse{
		AccountID: account.ID,
		Code:      account.Code,
		Name:      account.Name,
		Type:      string(account.Type),
		Debits:    sums.Debits,
		Credits:   sums.Credits,
		Balance:   account.Type.SignedBalance(sums.Debits, sums.Credits),
		AsOf:      asOf,
	}, nil
}
