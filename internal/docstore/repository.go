package docstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
	"github.com/claimdesk/expense-ledger/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository over a raw document Store.
// Documents travel as whole JSON blobs; the store decides how they are laid
// out physically.
type LedgerRepository struct {
	store Store
}

// NewLedgerRepository creates a repository over the given store.
func NewLedgerRepository(store Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

func (r *LedgerRepository) GetDaily(ctx context.Context, tenantID, storeID, date string) (*ledger.DailyLedger, error) {
	var doc ledger.DailyLedger
	if err := r.get(ctx, DailyPath(tenantID, storeID, date), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *LedgerRepository) PutDaily(ctx context.Context, tenantID string, doc *ledger.DailyLedger) error {
	return r.put(ctx, DailyPath(tenantID, doc.StoreID, doc.Date), doc)
}

func (r *LedgerRepository) GetMonthly(ctx context.Context, tenantID, storeID, month string) (*ledger.MonthlyLedger, error) {
	var doc ledger.MonthlyLedger
	if err := r.get(ctx, MonthlyPath(tenantID, storeID, month), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *LedgerRepository) PutMonthly(ctx context.Context, tenantID string, doc *ledger.MonthlyLedger) error {
	return r.put(ctx, MonthlyPath(tenantID, doc.StoreID, doc.Month), doc)
}

func (r *LedgerRepository) GetYearly(ctx context.Context, tenantID, storeID, year string) (*ledger.YearlyLedger, error) {
	var doc ledger.YearlyLedger
	if err := r.get(ctx, YearlyPath(tenantID, storeID, year), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *LedgerRepository) PutYearly(ctx context.Context, tenantID string, doc *ledger.YearlyLedger) error {
	return r.put(ctx, YearlyPath(tenantID, doc.StoreID, doc.Year), doc)
}

func (r *LedgerRepository) ListDailyDates(ctx context.Context, tenantID, storeID, month string) ([]string, error) {
	paths, err := r.store.List(ctx, MonthDir(tenantID, storeID, month))
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(paths))
	for _, path := range paths {
		if day, ok := leafName(path); ok && len(day) == 2 {
			dates = append(dates, month+"-"+day)
		}
	}
	return dates, nil
}

func (r *LedgerRepository) ListMonths(ctx context.Context, tenantID, storeID, year string) ([]string, error) {
	paths, err := r.store.List(ctx, YearDir(tenantID, storeID, year))
	if err != nil {
		return nil, err
	}
	months := make([]string, 0, len(paths))
	for _, path := range paths {
		if month, ok := leafName(path); ok && len(month) == 2 {
			months = append(months, year+"-"+month)
		}
	}
	return months, nil
}

func (r *LedgerRepository) get(ctx context.Context, path string, out any) error {
	raw, err := r.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewInternalError("failed to unmarshal ledger document", err).
			WithDetail("path", path)
	}
	return nil
}

func (r *LedgerRepository) put(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.NewInternalError("failed to marshal ledger document", err).
			WithDetail("path", path)
	}
	return r.store.Put(ctx, path, raw)
}

// leafName extracts the file name of a path without its .doc suffix.
func leafName(path string) (string, bool) {
	idx := strings.LastIndex(path, "/")
	leaf := path[idx+1:]
	name, ok := strings.CutSuffix(leaf, ".doc")
	return name, ok
}

var _ ledger.Repository = (*LedgerRepository)(nil)
