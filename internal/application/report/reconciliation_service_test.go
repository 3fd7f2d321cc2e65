package report

import (
	"context"
	"testing"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/billing"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/cache"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type reportEnv struct {
	gormDB  *gorm.DB
	db      *persistence.Database
	svc     *ReconciliationService
	cash    *accounting.Account
	recv    *accounting.Account
	revenue *accounting.Account
}

func newReportEnv(t *testing.T) *reportEnv {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(gormDB))

	db := persistence.NewDatabaseFromGorm(gormDB)
	env := &reportEnv{
		gormDB: gormDB,
		db:     db,
		svc:    NewReconciliationService(db, cache.NewInMemoryReportCache(), time.Minute, zap.NewNop()),
	}

	mk := func(code, name string, accountType accounting.AccountType) *accounting.Account {
		account, err := accounting.NewAccount(code, name, accountType, true)
		require.NoError(t, err)
		require.NoError(t, persistence.NewGormAccountRepository(gormDB).Save(context.Background(), account))
		return account
	}
	env.cash = mk("1000", "Cash", accounting.AccountTypeAsset)
	env.recv = mk("1100", "Accounts Receivable", accounting.AccountTypeAsset)
	env.revenue = mk("4000", "Sales Revenue", accounting.AccountTypeRevenue)
	return env
}

func (e *reportEnv) post(t *testing.T, date time.Time, lines []accounting.LineInput) *accounting.JournalEntry {
	t.Helper()
	entry, err := accounting.NewJournalEntry(
		accounting.GenerateDocumentNumber(accounting.PrefixJournalEntry, date),
		date, "test entry", accounting.JournalSourceManual, lines)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormJournalEntryRepository(e.gormDB).Save(context.Background(), entry))
	return entry
}

func TestReconciliationService_TrialBalance(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()

	env.post(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), []accounting.LineInput{
		{AccountID: env.recv.ID, Debit: decimal.NewFromInt(3000)},
		{AccountID: env.revenue.ID, Credit: decimal.NewFromInt(3000)},
	})
	env.post(t, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), []accounting.LineInput{
		{AccountID: env.cash.ID, Debit: decimal.NewFromInt(1200)},
		{AccountID: env.recv.ID, Credit: decimal.NewFromInt(1200)},
	})

	report, err := env.svc.TrialBalance(ctx, nil)
	require.NoError(t, err)

	assert.True(t, report.Balanced)
	assert.True(t, report.TotalDebit.Equal(decimal.NewFromInt(4200)))
	assert.True(t, report.TotalCredit.Equal(decimal.NewFromInt(4200)))
	require.Len(t, report.Rows, 3)

	byCode := make(map[string]TrialBalanceRow, len(report.Rows))
	for _, row := range report.Rows {
		byCode[row.Code] = row
	}
	assert.True(t, byCode["1000"].Balance.Equal(decimal.NewFromInt(1200)))
	assert.True(t, byCode["1100"].Balance.Equal(decimal.NewFromInt(1800)))
	assert.True(t, byCode["4000"].Balance.Equal(decimal.NewFromInt(3000)))

	t.Run("as-of cutoff excludes later entries", func(t *testing.T) {
		cutoff := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
		earlier, err := env.svc.TrialBalance(ctx, &cutoff)
		require.NoError(t, err)
		assert.True(t, earlier.TotalDebit.Equal(decimal.NewFromInt(3000)))
		assert.Len(t, earlier.Rows, 2)
	})

	t.Run("latest snapshot is served from cache until invalidated", func(t *testing.T) {
		env.post(t, time.Now(), []accounting.LineInput{
			{AccountID: env.cash.ID, Debit: decimal.NewFromInt(500)},
			{AccountID: env.revenue.ID, Credit: decimal.NewFromInt(500)},
		})

		cached, err := env.svc.TrialBalance(ctx, nil)
		require.NoError(t, err)
		assert.True(t, cached.TotalDebit.Equal(decimal.NewFromInt(4200)))

		env.svc.Invalidate(ctx)
		fresh, err := env.svc.TrialBalance(ctx, nil)
		require.NoError(t, err)
		assert.True(t, fresh.TotalDebit.Equal(decimal.NewFromInt(4700)))
	})
}

func TestReconciliationService_BalanceSheet(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()

	env.post(t, time.Now(), []accounting.LineInput{
		{AccountID: env.recv.ID, Debit: decimal.NewFromInt(3000)},
		{AccountID: env.revenue.ID, Credit: decimal.NewFromInt(3000)},
	})
	env.post(t, time.Now(), []accounting.LineInput{
		{AccountID: env.cash.ID, Debit: decimal.NewFromInt(1000)},
		{AccountID: env.recv.ID, Credit: decimal.NewFromInt(1000)},
	})

	report, err := env.svc.BalanceSheet(ctx, nil)
	require.NoError(t, err)

	// assets 3000 against retained earnings 3000, no closing run needed
	assert.True(t, report.TotalAssets.Equal(decimal.NewFromInt(3000)))
	assert.True(t, report.RetainedEarnings.Equal(decimal.NewFromInt(3000)))
	assert.True(t, report.TotalLiabEquity.Equal(decimal.NewFromInt(3000)))
	assert.True(t, report.Balanced)
	assert.Len(t, report.Assets.Rows, 2)
	assert.Empty(t, report.Liabilities.Rows)
}

func TestReconciliationService_ReceivablesAging(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()

	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	start := asOf.AddDate(0, -4, 0)
	plan, err := billing.NewPaymentPlan(uuid.New(), uuid.New(), decimal.NewFromInt(5000), decimal.NewFromInt(1000), start, []billing.InstallmentSpec{
		{Amount: decimal.NewFromInt(1000), DueDate: asOf.AddDate(0, 0, -45), Type: billing.InstallmentTypeMonthly},
		{Amount: decimal.NewFromInt(1000), DueDate: asOf.AddDate(0, 0, -10), Type: billing.InstallmentTypeMonthly},
		{Amount: decimal.NewFromInt(1000), DueDate: asOf.AddDate(0, 0, 20), Type: billing.InstallmentTypeMonthly},
		{Amount: decimal.NewFromInt(1000), DueDate: asOf.AddDate(12, 0, 0), Type: billing.InstallmentTypeYearly},
	})
	require.NoError(t, err)

	// pay off the down payment so only four installments remain outstanding
	downPayment := plan.SortedInstallments()[0]
	require.NoError(t, downPayment.ApplyPayment(decimal.NewFromInt(1000)))
	require.NoError(t, persistence.NewGormPaymentPlanRepository(env.gormDB).Save(ctx, plan))

	report, err := env.svc.ReceivablesAging(ctx, asOf)
	require.NoError(t, err)

	// the obligation due twelve years out still counts toward receivables
	assert.True(t, report.TotalDue.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, 2, report.Current.Count)
	assert.True(t, report.Current.Total.Equal(decimal.NewFromInt(2000)))
	require.Len(t, report.Buckets, 4)
	assert.Equal(t, 1, report.Buckets[0].Count, "1-30 days")
	assert.Equal(t, 1, report.Buckets[1].Count, "31-60 days")
	assert.Equal(t, 0, report.Buckets[2].Count, "61-90 days")
}

func TestReconciliationService_BankReconciliation(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()

	first := env.post(t, time.Now(), []accounting.LineInput{
		{AccountID: env.cash.ID, Debit: decimal.NewFromInt(800)},
		{AccountID: env.revenue.ID, Credit: decimal.NewFromInt(800)},
	})
	env.post(t, time.Now(), []accounting.LineInput{
		{AccountID: env.cash.ID, Debit: decimal.NewFromInt(200)},
		{AccountID: env.revenue.ID, Credit: decimal.NewFromInt(200)},
	})

	journalRepo := persistence.NewGormJournalEntryRepository(env.gormDB)
	require.NoError(t, journalRepo.MarkLineCleared(ctx, first.Lines[0].ID, true))

	report, err := env.svc.BankReconciliation(ctx, env.cash.ID, decimal.NewFromInt(800), nil)
	require.NoError(t, err)

	assert.True(t, report.LedgerBalance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, report.ClearedBalance.Equal(decimal.NewFromInt(800)))
	assert.True(t, report.UnclearedAmount.Equal(decimal.NewFromInt(200)))
	assert.True(t, report.Reconciled)

	t.Run("statement mismatch is flagged", func(t *testing.T) {
		off, err := env.svc.BankReconciliation(ctx, env.cash.ID, decimal.NewFromInt(750), nil)
		require.NoError(t, err)
		assert.False(t, off.Reconciled)
		assert.True(t, off.Difference.Equal(decimal.NewFromInt(50)))
	})

	t.Run("unknown account maps to not found", func(t *testing.T) {
		_, err := env.svc.BankReconciliation(ctx, uuid.New(), decimal.Zero, nil)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "NOT_FOUND", domainErr.Code)
	})
}
