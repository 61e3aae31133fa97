package ledger

import (
	"context"
)

// Repository defines the interface for ledger document persistence. Each
// document is read, mutated in memory, and written back independently; there
// are no multi-document transactions. Get methods return a NOT_FOUND AppError
// when the document is absent.
type Repository interface {
	// Daily documents, keyed by (tenant, store, date YYYY-MM-DD)
	GetDaily(ctx context.Context, tenantID, storeID, date string) (*DailyLedger, error)
	PutDaily(ctx context.Context, tenantID string, doc *DailyLedger) error

	// Monthly rollups, keyed by (tenant, store, month YYYY-MM)
	GetMonthly(ctx context.Context, tenantID, storeID, month string) (*MonthlyLedger, error)
	PutMonthly(ctx context.Context, tenantID string, doc *MonthlyLedger) error

	// Yearly rollups, keyed by (tenant, store, year YYYY)
	GetYearly(ctx context.Context, tenantID, storeID, year string) (*YearlyLedger, error)
	PutYearly(ctx context.Context, tenantID string, doc *YearlyLedger) error

	// ListDailyDates returns the dates of the daily documents persisted for a
	// month, ascending. Used by rollup rebuilds.
	ListDailyDates(ctx context.Context, tenantID, storeID, month string) ([]string, error)

	// ListMonths returns the months of the monthly documents persisted for a
	// year, ascending.
	ListMonths(ctx context.Context, tenantID, storeID, year string) ([]string, error)
}
