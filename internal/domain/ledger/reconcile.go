package ledger

import (
	"context"
	goerrors "errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// Reconciler keeps the monthly and yearly rollups consistent with the daily
// documents by applying signed deltas upward. The daily document itself is
// never touched here; its total is fully recomputed by the caller before the
// daily write.
//
// There is no atomicity across documents. When a rollup write fails after the
// daily document has already committed, the error is reported as
// PARTIAL_RECONCILIATION so the caller can retry reconciliation (or run a
// rebuild) without resubmitting the entry.
type Reconciler struct {
	repo   Repository
	logger *slog.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(repo Repository, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, logger: logger}
}

// ApplyDelta propagates a signed approved-amount change for one date into the
// monthly and yearly rollups. A zero delta is a no-op.
func (r *Reconciler) ApplyDelta(ctx context.Context, tenantID, storeID, date string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	month, year, err := ParseDate(date)
	if err != nil {
		return err
	}

	monthly, err := r.loadOrNewMonthly(ctx, tenantID, storeID, month)
	if err != nil {
		return errors.NewPartialReconciliationError("failed to load monthly rollup", err).
			WithDetail("month", month)
	}
	applyToBucket(monthly.ByDay, date, delta)
	monthly.TotalApprovedAmount = sumBuckets(monthly.ByDay)
	if err := r.repo.PutMonthly(ctx, tenantID, monthly); err != nil {
		return errors.NewPartialReconciliationError("failed to write monthly rollup", err).
			WithDetail("month", month)
	}

	yearly, err := r.loadOrNewYearly(ctx, tenantID, storeID, year)
	if err != nil {
		return errors.NewPartialReconciliationError("failed to load yearly rollup", err).
			WithDetail("year", year)
	}
	applyToBucket(yearly.ByMonth, month, delta)
	yearly.TotalApprovedAmount = sumBuckets(yearly.ByMonth)
	if err := r.repo.PutYearly(ctx, tenantID, yearly); err != nil {
		return errors.NewPartialReconciliationError("failed to write yearly rollup", err).
			WithDetail("year", year)
	}

	r.logger.Info("rollups reconciled",
		"tenant", tenantID, "store", storeID, "date", date, "delta", delta.String())
	return nil
}

// ApplyMove propagates a date change of an approved entry: the old date loses
// oldAmount and the new date gains newAmount. Within a single month both
// deltas land in one document write so the month never observes half a move.
func (r *Reconciler) ApplyMove(ctx context.Context, tenantID, storeID, oldDate, newDate string, oldAmount, newAmount decimal.Decimal) error {
	oldMonth, _, err := ParseDate(oldDate)
	if err != nil {
		return err
	}
	newMonth, _, err := ParseDate(newDate)
	if err != nil {
		return err
	}

	if oldMonth == newMonth {
		monthly, err := r.loadOrNewMonthly(ctx, tenantID, storeID, oldMonth)
		if err != nil {
			return errors.NewPartialReconciliationError("failed to load monthly rollup", err).
				WithDetail("month", oldMonth)
		}
		applyToBucket(monthly.ByDay, oldDate, oldAmount.Neg())
		applyToBucket(monthly.ByDay, newDate, newAmount)
		monthly.TotalApprovedAmount = sumBuckets(monthly.ByDay)
		if err := r.repo.PutMonthly(ctx, tenantID, monthly); err != nil {
			return errors.NewPartialReconciliationError("failed to write monthly rollup", err).
				WithDetail("month", oldMonth)
		}
		// Year changes only when the amount changed.
		return r.applyYearDelta(ctx, tenantID, storeID, oldMonth, newAmount.Sub(oldAmount))
	}

	if err := r.ApplyDelta(ctx, tenantID, storeID, oldDate, oldAmount.Neg()); err != nil {
		return err
	}
	return r.ApplyDelta(ctx, tenantID, storeID, newDate, newAmount)
}

// applyYearDelta adjusts a single month bucket of the yearly rollup.
func (r *Reconciler) applyYearDelta(ctx context.Context, tenantID, storeID, month string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	year := month[:4]
	yearly, err := r.loadOrNewYearly(ctx, tenantID, storeID, year)
	if err != nil {
		return errors.NewPartialReconciliationError("failed to load yearly rollup", err).
			WithDetail("year", year)
	}
	applyToBucket(yearly.ByMonth, month, delta)
	yearly.TotalApprovedAmount = sumBuckets(yearly.ByMonth)
	if err := r.repo.PutYearly(ctx, tenantID, yearly); err != nil {
		return errors.NewPartialReconciliationError("failed to write yearly rollup", err).
			WithDetail("year", year)
	}
	return nil
}

// RebuildMonth recomputes a monthly rollup in full from its daily documents.
// This is the repair path for rollup drift left behind by a partial
// reconciliation or a lost update.
func (r *Reconciler) RebuildMonth(ctx context.Context, tenantID, storeID, month string) (*MonthlyLedger, error) {
	dates, err := r.repo.ListDailyDates(ctx, tenantID, storeID, month)
	if err != nil {
		return nil, err
	}
	monthly := NewMonthlyLedger(storeID, month)
	for _, date := range dates {
		daily, err := r.repo.GetDaily(ctx, tenantID, storeID, date)
		if err != nil {
			if goerrors.Is(err, errors.NewNotFoundError("")) {
				continue
			}
			return nil, err
		}
		daily.RecomputeTotal()
		if !daily.TotalApprovedAmount.IsZero() {
			monthly.ByDay[date] = daily.TotalApprovedAmount
		}
	}
	monthly.TotalApprovedAmount = sumBuckets(monthly.ByDay)
	if err := r.repo.PutMonthly(ctx, tenantID, monthly); err != nil {
		return nil, err
	}
	r.logger.Info("monthly rollup rebuilt", "tenant", tenantID, "store", storeID, "month", month,
		"days", len(monthly.ByDay), "total", monthly.TotalApprovedAmount.String())
	return monthly, nil
}

// RebuildYear recomputes a yearly rollup in full from its monthly documents.
func (r *Reconciler) RebuildYear(ctx context.Context, tenantID, storeID, year string) (*YearlyLedger, error) {
	months, err := r.repo.ListMonths(ctx, tenantID, storeID, year)
	if err != nil {
		return nil, err
	}
	yearly := NewYearlyLedger(storeID, year)
	for _, month := range months {
		monthly, err := r.repo.GetMonthly(ctx, tenantID, storeID, month)
		if err != nil {
			if goerrors.Is(err, errors.NewNotFoundError("")) {
				continue
			}
			return nil, err
		}
		total := sumBuckets(monthly.ByDay)
		if !total.IsZero() {
			yearly.ByMonth[month] = total
		}
	}
	yearly.TotalApprovedAmount = sumBuckets(yearly.ByMonth)
	if err := r.repo.PutYearly(ctx, tenantID, yearly); err != nil {
		return nil, err
	}
	r.logger.Info("yearly rollup rebuilt", "tenant", tenantID, "store", storeID, "year", year,
		"months", len(yearly.ByMonth), "total", yearly.TotalApprovedAmount.String())
	return yearly, nil
}

func (r *Reconciler) loadOrNewMonthly(ctx context.Context, tenantID, storeID, month string) (*MonthlyLedger, error) {
	monthly, err := r.repo.GetMonthly(ctx, tenantID, storeID, month)
	if err != nil {
		if goerrors.Is(err, errors.NewNotFoundError("")) {
			return NewMonthlyLedger(storeID, month), nil
		}
		return nil, err
	}
	if monthly.ByDay == nil {
		monthly.ByDay = map[string]decimal.Decimal{}
	}
	return monthly, nil
}

func (r *Reconciler) loadOrNewYearly(ctx context.Context, tenantID, storeID, year string) (*YearlyLedger, error) {
	yearly, err := r.repo.GetYearly(ctx, tenantID, storeID, year)
	if err != nil {
		if goerrors.Is(err, errors.NewNotFoundError("")) {
			return NewYearlyLedger(storeID, year), nil
		}
		return nil, err
	}
	if yearly.ByMonth == nil {
		yearly.ByMonth = map[string]decimal.Decimal{}
	}
	return yearly, nil
}

// applyToBucket adds a signed delta to one bucket, clamping at zero and
// dropping the key when the value reaches zero.
func applyToBucket(buckets map[string]decimal.Decimal, key string, delta decimal.Decimal) {
	next := buckets[key].Add(delta)
	if next.Sign() <= 0 {
		delete(buckets, key)
		return
	}
	buckets[key] = next
}

func sumBuckets(buckets map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range buckets {
		total = total.Add(v)
	}
	return total
}
