package accounting

import (
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountType classifies an account in the chart of accounts
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// IsValid returns true if the account type is one of the known types
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// IsDebitNormal returns true for account types whose balance increases with
// debits (assets and expenses). Liability, equity and revenue accounts are
// credit-normal.
func (t AccountType) IsDebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// SignedBalance applies the type-dependent sign rule to raw debit/credit sums:
// debit-normal accounts report debit - credit, credit-normal accounts report
// credit - debit.
func (t AccountType) SignedBalance(debits, credits decimal.Decimal) decimal.Decimal {
	if t.IsDebitNormal() {
		return debits.Sub(credits)
	}
	return credits.Sub(debits)
}

// Account is a node in the chart of accounts. Balances are never stored on
// the account; they are derived from journal lines referencing it.
type Account struct {
	shared.BaseAggregateRoot
	Code      string         `gorm:"type:varchar(30);not null;uniqueIndex"`
	Name      string         `gorm:"type:varchar(200);not null"`
	Type      AccountType    `gorm:"type:varchar(20);not null;index"`
	ParentID  *uuid.UUID     `gorm:"type:uuid;index"`
	Postable  bool           `gorm:"not null;default:true"`
	Remark    string         `gorm:"type:varchar(500)"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// NewAccount creates a new chart-of-accounts node
func NewAccount(code, name string, accountType AccountType, postable bool) (*Account, error) {
	if code == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Account code cannot be empty")
	}
	if len(code) > 30 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Account code cannot exceed 30 characters")
	}
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Account name cannot be empty")
	}
	if !accountType.IsValid() {
		return nil, shared.NewDomainErrorf("VALIDATION_ERROR", "Unknown account type %q", accountType)
	}

	return &Account{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              name,
		Type:              accountType,
		Postable:          postable,
	}, nil
}

// AttachToParent links the account under a parent node. A child's type must
// equal its parent's type.
func (a *Account) AttachToParent(parent *Account) error {
	if parent == nil {
		return shared.NewDomainError("NOT_FOUND", "Parent account not found")
	}
	if parent.ID == a.ID {
		return shared.NewDomainError("VALIDATION_ERROR", "Account cannot be its own parent")
	}
	if parent.Type != a.Type {
		return shared.NewDomainErrorf("VALIDATION_ERROR",
			"Child account type %s must match parent type %s", a.Type, parent.Type)
	}
	a.ParentID = &parent.ID
	a.Touch()
	a.IncrementVersion()
	return nil
}

// Rename changes the display name
func (a *Account) Rename(name string) error {
	if name == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Account name cannot be empty")
	}
	a.Name = name
	a.Touch()
	a.IncrementVersion()
	return nil
}

// SetPostable toggles whether journal lines may target this account directly.
// Group (non-leaf) accounts are typically not postable.
func (a *Account) SetPostable(postable bool) {
	a.Postable = postable
	a.Touch()
	a.IncrementVersion()
}
