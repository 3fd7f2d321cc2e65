package persistence

import (
	"github.com/estatehq/backend/internal/domain/accounting"
	"github.com/estatehq/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema from the domain models.
// Production deployments run the SQL migrations instead; this path serves
// tests and local development against sqlite.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&accounting.Account{},
		&accounting.JournalEntry{},
		&accounting.JournalLine{},
		&accounting.Voucher{},
		&accounting.VoucherLine{},
		&accounting.VoucherAttachment{},
		&billing.PaymentPlan{},
		&billing.Installment{},
		&billing.Receipt{},
		&billing.ReceiptAllocation{},
		&billing.ReceiptAttachment{},
		&DealRecord{},
	)
}
