package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func createAccount(t *testing.T, db *gorm.DB, code string, accountType accounting.AccountType) *accounting.Account {
	t.Helper()
	account, err := accounting.NewAccount(code, "Account "+code, accountType, true)
	require.NoError(t, err)
	require.NoError(t, NewGormAccountRepository(db).Save(context.Background(), account))
	return account
}

func postEntry(t *testing.T, db *gorm.DB, date time.Time, lines []accounting.LineInput) *accounting.JournalEntry {
	t.Helper()
	entry, err := accounting.NewJournalEntry(
		accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, date),
		date, "test entry", accounting.JournalSourceManual, lines)
	require.NoError(t, err)
	require.NoError(t, NewGormJournalEntryRepository(db).Save(context.Background(), entry))
	return entry
}

func TestGormAccountRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAccountRepository(db)
	ctx := context.Background()

	cash := createAccount(t, db, "1000", accounting.AccountTypeAsset)

	t.Run("find by id and code", func(t *testing.T) {
		found, err := repo.FindByID(ctx, cash.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "1000", found.Code)

		found, err = repo.FindByCode(ctx, "1000")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, cash.ID, found.ID)
	})

	t.Run("missing account returns nil without error", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("list is ordered by code and filters by type", func(t *testing.T) {
		createAccount(t, db, "2000", accounting.AccountTypeLiability)
		createAccount(t, db, "1100", accounting.AccountTypeAsset)

		assetType := accounting.AccountTypeAsset
		accounts, err := repo.FindAll(ctx, accounting.AccountFilter{Type: &assetType})
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, "1000", accounts[0].Code)
		assert.Equal(t, "1100", accounts[1].Code)
	})

	t.Run("soft delete hides the account from queries", func(t *testing.T) {
		victim := createAccount(t, db, "9999", accounting.AccountTypeExpense)
		require.NoError(t, repo.SoftDelete(ctx, victim.ID))

		found, err := repo.FindByCode(ctx, "9999")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormJournalEntryRepository_Sums(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormJournalEntryRepository(db)
	ctx := context.Background()

	cash := createAccount(t, db, "1000", accounting.AccountTypeAsset)
	revenue := createAccount(t, db, "4000", accounting.AccountTypeRevenue)

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	postEntry(t, db, day1, []accounting.LineInput{
		{AccountID: cash.ID, Debit: d(1000)},
		{AccountID: revenue.ID, Credit: d(1000)},
	})
	second := postEntry(t, db, day2, []accounting.LineInput{
		{AccountID: cash.ID, Debit: d(250)},
		{AccountID: revenue.ID, Credit: d(250)},
	})

	t.Run("sums per account", func(t *testing.T) {
		sums, err := repo.SumForAccount(ctx, cash.ID, nil)
		require.NoError(t, err)
		assert.True(t, sums.Debits.Equal(d(1250)), "got %s", sums.Debits)
		assert.True(t, sums.Credits.IsZero())
	})

	t.Run("as-of cutoff excludes later entries", func(t *testing.T) {
		cutoff := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		sums, err := repo.SumForAccount(ctx, cash.ID, &cutoff)
		require.NoError(t, err)
		assert.True(t, sums.Debits.Equal(d(1000)), "got %s", sums.Debits)
	})

	t.Run("ledger-wide totals stay balanced", func(t *testing.T) {
		totals, err := repo.SumAll(ctx, nil)
		require.NoError(t, err)
		assert.True(t, totals.Debits.Equal(totals.Credits))
	})

	t.Run("cleared sums follow the reconciliation flag", func(t *testing.T) {
		sums, err := repo.SumClearedForAccount(ctx, cash.ID, nil)
		require.NoError(t, err)
		assert.True(t, sums.Debits.IsZero())

		require.NoError(t, repo.MarkLineCleared(ctx, second.Lines[0].ID, true))

		sums, err = repo.SumClearedForAccount(ctx, cash.ID, nil)
		require.NoError(t, err)
		assert.True(t, sums.Debits.Equal(d(250)), "got %s", sums.Debits)
	})

	t.Run("marking an unknown line fails", func(t *testing.T) {
		err := repo.MarkLineCleared(ctx, uuid.New(), true)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("soft-deleted entries drop out of the sums", func(t *testing.T) {
		require.NoError(t, db.Delete(second).Error)

		sums, err := repo.SumForAccount(ctx, cash.ID, nil)
		require.NoError(t, err)
		assert.True(t, sums.Debits.Equal(d(1000)), "got %s", sums.Debits)
	})
}

func TestGormVoucherRepository_SaveWithLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormVoucherRepository(db)
	ctx := context.Background()

	voucher, err := accounting.NewVoucher("JV-20260301-AAAAAA", accounting.VoucherTypeJV, time.Now(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, voucher.ReplaceLines([]accounting.VoucherLine{
		{AccountID: uuid.New(), Debit: d(100)},
		{AccountID: uuid.New(), Credit: d(100)},
	}))
	require.NoError(t, repo.Save(ctx, voucher))

	t.Run("saves when the stored version matches", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, voucher.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.Submit())
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		reloaded, err := repo.FindByID(ctx, voucher.ID)
		require.NoError(t, err)
		assert.Equal(t, accounting.VoucherStatusSubmitted, reloaded.Status)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, voucher.ID)
		require.NoError(t, err)
		stale.Version = stale.Version + 5 // pretend another writer advanced it

		err = repo.SaveWithLock(ctx, stale)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("delete removes voucher and lines", func(t *testing.T) {
		draft, err := accounting.NewVoucher("JV-20260301-BBBBBB", accounting.VoucherTypeJV, time.Now(), uuid.New())
		require.NoError(t, err)
		require.NoError(t, draft.ReplaceLines([]accounting.VoucherLine{
			{AccountID: uuid.New(), Debit: d(50)},
			{AccountID: uuid.New(), Credit: d(50)},
		}))
		require.NoError(t, repo.Save(ctx, draft))

		require.NoError(t, repo.Delete(ctx, draft.ID))

		found, err := repo.FindByID(ctx, draft.ID)
		require.NoError(t, err)
		assert.Nil(t, found)

		var lineCount int64
		require.NoError(t, db.Model(&accounting.VoucherLine{}).Where("voucher_id = ?", draft.ID).Count(&lineCount).Error)
		assert.Zero(t, lineCount)
	})
}

func TestGormPaymentPlanRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPaymentPlanRepository(db)
	ctx := context.Background()

	dealID := uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	plan, err := billing.NewPaymentPlan(dealID, uuid.New(), d(2000), d(1000), start, []billing.InstallmentSpec{
		{Amount: d(500), DueDate: start.AddDate(0, 1, 0), Type: billing.InstallmentTypeMonthly},
		{Amount: d(500), DueDate: start.AddDate(0, 2, 0), Type: billing.InstallmentTypeMonthly},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, plan))

	t.Run("find by deal loads installments in order", func(t *testing.T) {
		loaded, err := repo.FindByDealID(ctx, dealID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Len(t, loaded.Installments, 3)
		assert.Equal(t, 0, loaded.Installments[0].Number)
		assert.Equal(t, 2, loaded.Installments[2].Number)
	})

	t.Run("for-update load matches the plain load", func(t *testing.T) {
		locked, err := repo.FindByDealIDForUpdate(ctx, dealID)
		require.NoError(t, err)
		require.NotNil(t, locked)
		assert.Len(t, locked.Installments, 3)
	})

	t.Run("due installments exclude paid ones", func(t *testing.T) {
		due, err := repo.FindDueInstallments(ctx, start.AddDate(0, 1, 15))
		require.NoError(t, err)
		require.Len(t, due, 2) // down payment plus installment 1

		downPayment := plan.SortedInstallments()[0]
		require.NoError(t, downPayment.ApplyPayment(d(1000)))
		require.NoError(t, repo.SaveInstallment(ctx, downPayment))

		due, err = repo.FindDueInstallments(ctx, start.AddDate(0, 1, 15))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 1, due[0].Number)
	})

	t.Run("delete soft-deletes plan and installments", func(t *testing.T) {
		otherDeal := uuid.New()
		other, err := billing.NewPaymentPlan(otherDeal, uuid.New(), d(100), d(100), start, nil)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, other))

		require.NoError(t, repo.Delete(ctx, other.ID))

		found, err := repo.FindByDealID(ctx, otherDeal)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormReceiptRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormReceiptRepository(db)
	ctx := context.Background()

	dealID := uuid.New()
	receipt, err := billing.NewReceipt("RC-20260301-ABCDEF", dealID, uuid.New(), d(1200),
		billing.ReceiptMethodBank, time.Now(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, receipt.RecordAllocations([]billing.AllocationResult{
		{InstallmentID: uuid.New(), InstallmentNumber: 0, Amount: d(1000)},
		{InstallmentID: uuid.New(), InstallmentNumber: 1, Amount: d(200)},
	}))
	require.NoError(t, repo.Save(ctx, receipt))

	t.Run("find loads allocations ordered by installment number", func(t *testing.T) {
		loaded, err := repo.FindByID(ctx, receipt.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Len(t, loaded.Allocations, 2)
		assert.Equal(t, 0, loaded.Allocations[0].InstallmentNumber)
		assert.True(t, loaded.TotalAllocated().Equal(d(1200)))
	})

	t.Run("filter by deal", func(t *testing.T) {
		receipts, err := repo.FindAll(ctx, billing.ReceiptFilter{DealID: &dealID})
		require.NoError(t, err)
		assert.Len(t, receipts, 1)

		total, err := repo.Count(ctx, billing.ReceiptFilter{DealID: &dealID})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("delete removes allocation rows", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, receipt.ID))

		found, err := repo.FindByID(ctx, receipt.ID)
		require.NoError(t, err)
		assert.Nil(t, found)

		var allocCount int64
		require.NoError(t, db.Model(&billing.ReceiptAllocation{}).Where("receipt_id = ?", receipt.ID).Count(&allocCount).Error)
		assert.Zero(t, allocCount)
	})
}
