package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/shared"
	"github.com/estatehq/backend/internal/infrastructure/cache"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationService derives control reports from the journal. Every
// figure is recomputed from journal lines; nothing here is stored state.
type ReconciliationService struct {
	db       *persistence.Database
	cache    cache.ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(db *persistence.Database, reportCache cache.ReportCache, cacheTTL time.Duration, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		cache:    reportCache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("reconciliation-service"),
	}
}

// TrialBalanceRow is one account's derived position in the trial balance
type TrialBalanceRow struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debits    decimal.Decimal `json:"debits"`
	Credits   decimal.Decimal `json:"credits"`
	Balance   decimal.Decimal `json:"balance"`
}

// TrialBalanceReport lists every postable account with raw sums and the
// ledger-wide totals. Balanced is the zero-sum check over the whole journal.
type TrialBalanceReport struct {
	AsOf        *time.Time        `json:"as_of,omitempty"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Difference  decimal.Decimal   `json:"difference"`
	Balanced    bool              `json:"balanced"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// BalanceSheetSection groups accounts of one type with a subtotal
type BalanceSheetSection struct {
	Rows  []TrialBalanceRow `json:"rows"`
	Total decimal.Decimal   `json:"total"`
}

// BalanceSheetReport presents assets against liabilities and equity.
// Retained earnings carries the revenue/expense result into equity so the
// statement ties out without a closing run.
type BalanceSheetReport struct {
	AsOf             *time.Time          `json:"as_of,omitempty"`
	Assets           BalanceSheetSection `json:"assets"`
	Liabilities      BalanceSheetSection `json:"liabilities"`
	Equity           BalanceSheetSection `json:"equity"`
	RetainedEarnings decimal.Decimal     `json:"retained_earnings"`
	TotalAssets      decimal.Decimal     `json:"total_assets"`
	TotalLiabEquity  decimal.Decimal     `json:"total_liabilities_equity"`
	Balanced         bool                `json:"balanced"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// AgingBucket is one overdue band of outstanding installments
type AgingBucket struct {
	Label string          `json:"label"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// AgingReport buckets unpaid installments by days overdue
type AgingReport struct {
	AsOf        time.Time       `json:"as_of"`
	Current     AgingBucket     `json:"current"`
	Buckets     []AgingBucket   `json:"buckets"`
	TotalDue    decimal.Decimal `json:"total_due"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// BankReconciliationReport compares a cash/bank account's ledger balance
// with the cleared portion and an externally supplied statement balance.
type BankReconciliationReport struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Code             string          `json:"code"`
	AsOf             *time.Time      `json:"as_of,omitempty"`
	LedgerBalance    decimal.Decimal `json:"ledger_balance"`
	ClearedBalance   decimal.Decimal `json:"cleared_balance"`
	UnclearedAmount  decimal.Decimal `json:"uncleared_amount"`
	StatementBalance decimal.Decimal `json:"statement_balance"`
	Difference       decimal.Decimal `json:"difference"`
	Reconciled       bool            `json:"reconciled"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

func cacheKey(report string, asOf *time.Time) string {
	if asOf == nil {
		return report + ":latest"
	}
	return fmt.Sprintf("%s:%s", report, asOf.Format("2006-01-02"))
}

// TrialBalance derives per-account sums and the ledger-wide zero-sum check.
// A Balanced=false result signals a data integrity problem: posting paths
// refuse unbalanced entries, so the journal should never drift.
func (s *ReconciliationService) TrialBalance(ctx context.Context, asOf *time.Time) (*TrialBalanceReport, error) {
	key := cacheKey("trial-balance", asOf)
	if cached, ok, _ := s.cache.Get(ctx, key); ok {
		var report TrialBalanceReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return &report, nil
		}
	}

	accountRepo := persistence.NewGormAccountRepository(s.db.DB)
	journalRepo := persistence.NewGormJournalEntryRepository(s.db.DB)

	postable := true
	accounts, err := accountRepo.FindAll(ctx, accounting.AccountFilter{Postable: &postable})
	if err != nil {
		return nil, err
	}

	report := &TrialBalanceReport{
		AsOf:        asOf,
		Rows:        make([]TrialBalanceRow, 0, len(accounts)),
		GeneratedAt: time.Now(),
	}
	for i := range accounts {
		account := &accounts[i]
		sums, err := journalRepo.SumForAccount(ctx, account.ID, asOf)
		if err != nil {
			return nil, err
		}
		if sums.Debits.IsZero() && sums.Credits.IsZero() {
			continue
		}
		report.Rows = append(report.Rows, TrialBalanceRow{
			AccountID: account.ID,
			Code:      account.Code,
			Name:      account.Name,
			Type:      string(account.Type),
			Debits:    sums.Debits,
			Credits:   sums.Credits,
			Balance:   account.Type.SignedBalance(sums.Debits, sums.Credits),
		})
	}

	totals, err := journalRepo.SumAll(ctx, asOf)
	if err != nil {
		return nil, err
	}
	report.TotalDebit = totals.Debits
	report.TotalCredit = totals.Credits
	report.Difference = totals.Debits.Sub(totals.Credits).Abs()
	report.Balanced = report.Difference.LessThanOrEqual(accounting.BalanceTolerance)

	if !report.Balanced {
		s.logger.Error("trial balance does not tie out",
			zap.String("total_debit", report.TotalDebit.StringFixed(2)),
			zap.String("total_credit", report.TotalCredit.StringFixed(2)),
			zap.String("difference", report.Difference.StringFixed(2)),
		)
	}

	s.store(ctx, key, report)
	return report, nil
}

// BalanceSheet derives the statement of financial position as of a date
func (s *ReconciliationService) BalanceSheet(ctx context.Context, asOf *time.Time) (*BalanceSheetReport, error) {
	key := cacheKey("balance-sheet", asOf)
	if cached, ok, _ := s.cache.Get(ctx, key); ok {
		var report BalanceSheetReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return &report, nil
		}
	}

	tb, err := s.TrialBalance(ctx, asOf)
	if err != nil {
		return nil, err
	}

	report := &BalanceSheetReport{AsOf: asOf, GeneratedAt: time.Now()}
	var revenue, expense decimal.Decimal
	for _, row := range tb.Rows {
		switch accounting.AccountType(row.Type) {
		case accounting.AccountTypeAsset:
			report.Assets.Rows = append(report.Assets.Rows, row)
			report.Assets.Total = report.Assets.Total.Add(row.Balance)
		case accounting.AccountTypeLiability:
			report.Liabilities.Rows = append(report.Liabilities.Rows, row)
			report.Liabilities.Total = report.Liabilities.Total.Add(row.Balance)
		case accounting.AccountTypeEquity:
			report.Equity.Rows = append(report.Equity.Rows, row)
			report.Equity.Total = report.Equity.Total.Add(row.Balance)
		case accounting.AccountTypeRevenue:
			revenue = revenue.Add(row.Balance)
		case accounting.AccountTypeExpense:
			expense = expense.Add(row.Balance)
		}
	}

	report.RetainedEarnings = revenue.Sub(expense)
	report.TotalAssets = report.Assets.Total
	report.TotalLiabEquity = report.Liabilities.Total.Add(report.Equity.Total).Add(report.RetainedEarnings)
	report.Balanced = report.TotalAssets.Sub(report.TotalLiabEquity).Abs().LessThanOrEqual(accounting.BalanceTolerance)

	s.store(ctx, key, report)
	return report, nil
}

// agingBands are the overdue day ranges, oldest band last
var agingBands = []struct {
	label string
	from  int
	to    int
}{
	{"1-30 days", 1, 30},
	{"31-60 days", 31, 60},
	{"61-90 days", 61, 90},
	{"over 90 days", 91, 1 << 30},
}

// ReceivablesAging buckets unpaid installments by how far past due they are.
// Installments not yet due land in the current bucket.
func (s *ReconciliationService) ReceivablesAging(ctx context.Context, asOf time.Time) (*AgingReport, error) {
	planRepo := persistence.NewGormPaymentPlanRepository(s.db.DB)

	installments, err := planRepo.FindOutstandingInstallments(ctx)
	if err != nil {
		return nil, err
	}

	report := &AgingReport{
		AsOf:        asOf,
		Current:     AgingBucket{Label: "current"},
		GeneratedAt: time.Now(),
	}
	buckets := make([]AgingBucket, len(agingBands))
	for i, band := range agingBands {
		buckets[i] = AgingBucket{Label: band.label}
	}

	for i := range installments {
		inst := &installments[i]
		remaining := inst.Remaining()
		if !remaining.IsPositive() {
			continue
		}
		report.TotalDue = report.TotalDue.Add(remaining)

		overdueDays := int(asOf.Sub(inst.DueDate).Hours() / 24)
		if overdueDays < 1 {
			report.Current.Count++
			report.Current.Total = report.Current.Total.Add(remaining)
			continue
		}
		for bi, band := range agingBands {
			if overdueDays >= band.from && overdueDays <= band.to {
				buckets[bi].Count++
				buckets[bi].Total = buckets[bi].Total.Add(remaining)
				break
			}
		}
	}

	report.Buckets = buckets
	return report, nil
}

// BankReconciliation compares an account's ledger balance against its cleared
// lines and the bank statement balance supplied by the caller.
func (s *ReconciliationService) BankReconciliation(ctx context.Context, accountID uuid.UUID, statementBalance decimal.Decimal, asOf *time.Time) (*BankReconciliationReport, error) {
	accountRepo := persistence.NewGormAccountRepository(s.db.DB)
	journalRepo := persistence.NewGormJournalEntryRepository(s.db.DB)

	account, err := accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, shared.NewDomainErrorf("NOT_FOUND", "Account %s not found", accountID)
	}

	sums, err := journalRepo.SumForAccount(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	cleared, err := journalRepo.SumClearedForAccount(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}

	ledgerBalance := account.Type.SignedBalance(sums.Debits, sums.Credits)
	clearedBalance := account.Type.SignedBalance(cleared.Debits, cleared.Credits)
	difference := clearedBalance.Sub(statementBalance).Abs()

	return &BankReconciliationReport{
		AccountID:        account.ID,
		Code:             account.Code,
		AsOf:             asOf,
		LedgerBalance:    ledgerBalance,
		ClearedBalance:   clearedBalance,
		UnclearedAmount:  ledgerBalance.Sub(clearedBalance),
		StatementBalance: statementBalance,
		Difference:       difference,
		Reconciled:       difference.LessThanOrEqual(accounting.BalanceTolerance),
		GeneratedAt:      time.Now(),
	}, nil
}

// Invalidate drops cached snapshots after writes that change report inputs
func (s *ReconciliationService) Invalidate(ctx context.Context) {
	for _, report := range []string{"trial-balance", "balance-sheet"} {
		if err := s.cache.Invalidate(ctx, report+":latest"); err != nil {
			s.logger.Warn("failed to invalidate report snapshot", zap.String("report", report), zap.Error(err))
		}
	}
}

func (s *ReconciliationService) store(ctx context.Context, key string, report any) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache report snapshot", zap.String("key", key), zap.Error(err))
	}
}
