package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type serviceEnv struct {
	db       *persistence.Database
	accounts *AccountService
	journal  *JournalService
	vouchers *VoucherService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(gormDB))

	db := persistence.NewDatabaseFromGorm(gormDB)
	logger := zap.NewNop()
	journal := NewJournalService(db, logger)
	return &serviceEnv{
		db:       db,
		accounts: NewAccountService(db, logger),
		journal:  journal,
		vouchers: NewVoucherService(db, journal, logger),
	}
}

func (e *serviceEnv) createAccount(t *testing.T, code, name, accountType string) *AccountResponse {
	t.Helper()
	account, err := e.accounts.CreateAccount(context.Background(), CreateAccountRequest{
		Code: code,
		Name: name,
		Type: accountType,
	})
	require.NoError(t, err)
	return account
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func TestAccountService(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	cash := env.createAccount(t, "1000", "Cash", "ASSET")
	payable := env.createAccount(t, "2000", "Accounts Payable", "LIABILITY")

	t.Run("duplicate code is rejected", func(t *testing.T) {
		_, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{Code: "1000", Name: "Petty Cash", Type: "ASSET"})
		assertDomainCode(t, err, "ALREADY_EXISTS")
	})

	t.Run("child must share the parent's type", func(t *testing.T) {
		_, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{
			Code: "2100", Name: "Wrong Child", Type: "ASSET", ParentID: &payable.ID,
		})
		assertDomainCode(t, err, "VALIDATION_ERROR")

		child, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{
			Code: "2100", Name: "Trade Payables", Type: "LIABILITY", ParentID: &payable.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, child.ParentID)
		assert.Equal(t, payable.ID, *child.ParentID)
	})

	t.Run("unknown parent is rejected", func(t *testing.T) {
		parentID := uuid.New()
		_, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{
			Code: "3000", Name: "Orphan", Type: "EQUITY", ParentID: &parentID,
		})
		assertDomainCode(t, err, "NOT_FOUND")
	})

	t.Run("update renames but keeps code and type", func(t *testing.T) {
		name := "Cash on Hand"
		updated, err := env.accounts.UpdateAccount(ctx, cash.ID, UpdateAccountRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Cash on Hand", updated.Name)
		assert.Equal(t, "1000", updated.Code)
		assert.Equal(t, "ASSET", updated.Type)
	})

	t.Run("account with children cannot be deleted", func(t *testing.T) {
		err := env.accounts.DeleteAccount(ctx, payable.ID)
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("balance follows the account type sign rule", func(t *testing.T) {
		_, err := env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate: time.Now(),
			Lines: []JournalLineRequest{
				{AccountID: cash.ID, Debit: decimal.NewFromInt(400)},
				{AccountID: payable.ID, Credit: decimal.NewFromInt(400)},
			},
		})
		require.NoError(t, err)

		cashBalance, err := env.accounts.GetBalance(ctx, cash.ID, nil)
		require.NoError(t, err)
		assert.True(t, cashBalance.Balance.Equal(decimal.NewFromInt(400)))

		payableBalance, err := env.accounts.GetBalance(ctx, payable.ID, nil)
		require.NoError(t, err)
		assert.True(t, payableBalance.Balance.Equal(decimal.NewFromInt(400)), "liability carries a credit balance")
	})

	t.Run("account with journal activity cannot be deleted", func(t *testing.T) {
		err := env.accounts.DeleteAccount(ctx, cash.ID)
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("idle account deletes cleanly", func(t *testing.T) {
		idle := env.createAccount(t, "9999", "Idle", "EXPENSE")
		require.NoError(t, env.accounts.DeleteAccount(ctx, idle.ID))

		_, err := env.accounts.GetAccount(ctx, idle.ID)
		assertDomainCode(t, err, "NOT_FOUND")
	})
}

func TestJournalService(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	cash := env.createAccount(t, "1000", "Cash", "ASSET")
	revenue := env.createAccount(t, "4000", "Sales Revenue", "REVENUE")

	t.Run("posts a balanced entry", func(t *testing.T) {
		entry, err := env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			Description: "cash sale",
			Lines: []JournalLineRequest{
				{AccountID: cash.ID, Debit: decimal.NewFromInt(900)},
				{AccountID: revenue.ID, Credit: decimal.NewFromInt(900)},
			},
		})
		require.NoError(t, err)
		assert.Regexp(t, `^JE-20260501-[0-9A-F]{6}$`, entry.EntryNumber)
		assert.True(t, entry.TotalDebit.Equal(entry.TotalCredit))
		assert.Equal(t, string(accounting.JournalSourceManual), entry.SourceType)
	})

	t.Run("rejects an unbalanced entry", func(t *testing.T) {
		_, err := env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate: time.Now(),
			Lines: []JournalLineRequest{
				{AccountID: cash.ID, Debit: decimal.NewFromInt(900)},
				{AccountID: revenue.ID, Credit: decimal.NewFromInt(800)},
			},
		})
		assertDomainCode(t, err, "UNBALANCED_ENTRY")
	})

	t.Run("rejects an unknown account", func(t *testing.T) {
		_, err := env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate: time.Now(),
			Lines: []JournalLineRequest{
				{AccountID: uuid.New(), Debit: decimal.NewFromInt(100)},
				{AccountID: revenue.ID, Credit: decimal.NewFromInt(100)},
			},
		})
		assertDomainCode(t, err, "NOT_FOUND")
	})

	t.Run("rejects a non-postable account", func(t *testing.T) {
		group, err := env.accounts.CreateAccount(ctx, CreateAccountRequest{
			Code: "1900", Name: "Asset Group", Type: "ASSET", Postable: boolPtr(false),
		})
		require.NoError(t, err)

		_, err = env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate: time.Now(),
			Lines: []JournalLineRequest{
				{AccountID: group.ID, Debit: decimal.NewFromInt(100)},
				{AccountID: revenue.ID, Credit: decimal.NewFromInt(100)},
			},
		})
		assertDomainCode(t, err, "VALIDATION_ERROR")
	})

	t.Run("reversal swaps sides and nets to zero", func(t *testing.T) {
		entry, err := env.journal.PostManualEntry(ctx, PostEntryRequest{
			EntryDate: time.Now(),
			Lines: []JournalLineRequest{
				{AccountID: cash.ID, Debit: decimal.NewFromInt(300)},
				{AccountID: revenue.ID, Credit: decimal.NewFromInt(300)},
			},
		})
		require.NoError(t, err)

		reversal, err := env.journal.ReverseEntry(ctx, entry.ID, time.Now())
		require.NoError(t, err)
		require.NotNil(t, reversal.ReversalOf)
		assert.Equal(t, entry.ID, *reversal.ReversalOf)
		assert.True(t, reversal.Lines[0].Credit.Equal(decimal.NewFromInt(300)), "debit side flips to credit")

		sums, err := persistence.NewGormJournalEntryRepository(env.db.DB).SumForAccount(ctx, cash.ID, nil)
		require.NoError(t, err)
		// 900 from the earlier sale plus 300 posted and reversed here
		assert.True(t, sums.Debits.Sub(sums.Credits).Equal(decimal.NewFromInt(900)),
			"net cash %s", sums.Debits.Sub(sums.Credits))
	})

	t.Run("list filters by account", func(t *testing.T) {
		other := env.createAccount(t, "5000", "Rent Expense", "EXPENSE")
		entries, err := env.journal.ListEntries(ctx, JournalListFilter{AccountID: &other.ID})
		require.NoError(t, err)
		assert.Empty(t, entries)

		entries, err = env.journal.ListEntries(ctx, JournalListFilter{AccountID: &cash.ID})
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})
}

func boolPtr(b bool) *bool { return &b }

func TestVoucherService_Lifecycle(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	cash := env.createAccount(t, "1000", "Cash", "ASSET")
	expense := env.createAccount(t, "5000", "Office Expense", "EXPENSE")
	preparer := uuid.New()
	approver := uuid.New()

	voucher, err := env.vouchers.CreateVoucher(ctx, CreateVoucherRequest{
		Type:        "JV",
		VoucherDate: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		Remark:      "office supplies",
		PreparedBy:  preparer,
		Lines: []VoucherLineRequest{
			{AccountID: expense.ID, Debit: decimal.NewFromInt(150)},
			{AccountID: cash.ID, Credit: decimal.NewFromInt(150)},
		},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^JV-20260510-[0-9A-F]{6}$`, voucher.VoucherNumber)
	assert.Equal(t, string(accounting.VoucherStatusDraft), voucher.Status)

	t.Run("cannot post a draft", func(t *testing.T) {
		_, err := env.vouchers.PostVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "INVALID_STATE")
	})

	submitted, err := env.vouchers.SubmitVoucher(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, string(accounting.VoucherStatusSubmitted), submitted.Status)

	approved, err := env.vouchers.ApproveVoucher(ctx, voucher.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, string(accounting.VoucherStatusApproved), approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver, *approved.ApprovedBy)

	posted, err := env.vouchers.PostVoucher(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, string(accounting.VoucherStatusPosted), posted.Status)
	require.NotNil(t, posted.JournalEntryID)

	t.Run("posting created the journal entry", func(t *testing.T) {
		entry, err := env.journal.GetEntry(ctx, *posted.JournalEntryID)
		require.NoError(t, err)
		assert.Equal(t, voucher.VoucherNumber, entry.VoucherNo)
		assert.Equal(t, string(accounting.JournalSourceVoucher), entry.SourceType)
		assert.True(t, entry.TotalDebit.Equal(decimal.NewFromInt(150)))
	})

	t.Run("posted voucher is immutable", func(t *testing.T) {
		remark := "changed"
		_, err := env.vouchers.UpdateVoucher(ctx, voucher.ID, UpdateVoucherRequest{Remark: &remark})
		assertDomainCode(t, err, "IMMUTABLE_RECORD")
	})

	t.Run("double post is rejected", func(t *testing.T) {
		_, err := env.vouchers.PostVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "ALREADY_POSTED")
	})

	t.Run("posted voucher cannot be deleted", func(t *testing.T) {
		err := env.vouchers.DeleteVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "INVALID_STATE")
	})

	reversed, err := env.vouchers.ReverseVoucher(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, string(accounting.VoucherStatusReversed), reversed.Status)
	require.NotNil(t, reversed.ReversalEntryID)

	t.Run("reversal neutralizes the ledger effect", func(t *testing.T) {
		sums, err := persistence.NewGormJournalEntryRepository(env.db.DB).SumForAccount(ctx, expense.ID, nil)
		require.NoError(t, err)
		assert.True(t, sums.Debits.Equal(sums.Credits))
	})

	t.Run("terminal voucher cannot be reversed again", func(t *testing.T) {
		_, err := env.vouchers.ReverseVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "INVALID_STATE")
	})
}

func TestVoucherService_DraftEditing(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	cash := env.createAccount(t, "1000", "Cash", "ASSET")
	expense := env.createAccount(t, "5000", "Office Expense", "EXPENSE")

	voucher, err := env.vouchers.CreateVoucher(ctx, CreateVoucherRequest{
		Type:        "CPV",
		VoucherDate: time.Now(),
		Payee:       "Acme Supplies",
		PreparedBy:  uuid.New(),
	})
	require.NoError(t, err)

	t.Run("submit requires lines and a primary account", func(t *testing.T) {
		_, err := env.vouchers.SubmitVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "VALIDATION_ERROR")
	})

	updated, err := env.vouchers.UpdateVoucher(ctx, voucher.ID, UpdateVoucherRequest{
		PrimaryAccountID: &cash.ID,
		Lines: []VoucherLineRequest{
			{AccountID: expense.ID, Debit: decimal.NewFromInt(75)},
			{AccountID: cash.ID, Credit: decimal.NewFromInt(75)},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(75)))

	t.Run("replacing lines does not duplicate rows", func(t *testing.T) {
		again, err := env.vouchers.UpdateVoucher(ctx, voucher.ID, UpdateVoucherRequest{
			Lines: []VoucherLineRequest{
				{AccountID: expense.ID, Debit: decimal.NewFromInt(80)},
				{AccountID: cash.ID, Credit: decimal.NewFromInt(80)},
			},
		})
		require.NoError(t, err)
		require.Len(t, again.Lines, 2)

		fetched, err := env.vouchers.GetVoucher(ctx, voucher.ID)
		require.NoError(t, err)
		require.Len(t, fetched.Lines, 2)
	})

	t.Run("attachments accumulate", func(t *testing.T) {
		withFile, err := env.vouchers.AddAttachment(ctx, voucher.ID, "invoice.pdf", "vouchers/invoice.pdf")
		require.NoError(t, err)
		require.Len(t, withFile.Attachments, 1)
		assert.Equal(t, "invoice.pdf", withFile.Attachments[0].FileName)
	})

	t.Run("draft deletes cleanly", func(t *testing.T) {
		require.NoError(t, env.vouchers.DeleteVoucher(ctx, voucher.ID))
		_, err := env.vouchers.GetVoucher(ctx, voucher.ID)
		assertDomainCode(t, err, "NOT_FOUND")
	})

	t.Run("list filters by status", func(t *testing.T) {
		_, err := env.vouchers.CreateVoucher(ctx, CreateVoucherRequest{
			Type:        "JV",
			VoucherDate: time.Now(),
			PreparedBy:  uuid.New(),
		})
		require.NoError(t, err)

		list, err := env.vouchers.ListVouchers(ctx, VoucherListFilter{Status: string(accounting.VoucherStatusDraft)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, list.Total)

		list, err = env.vouchers.ListVouchers(ctx, VoucherListFilter{Status: string(accounting.VoucherStatusPosted)})
		require.NoError(t, err)
		assert.Empty(t, list.Items)
	})
}
