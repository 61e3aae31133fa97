package ledger

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimdesk/expense-ledger/internal/domain/authz"
	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// fakeRepo is an in-memory Repository that deep-copies documents on every
// get and put, so aborted commands cannot leak in-memory mutations into the
// "persisted" state.
type fakeRepo struct {
	daily   map[string]*DailyLedger
	monthly map[string]*MonthlyLedger
	yearly  map[string]*YearlyLedger

	failPutDaily   bool
	failPutMonthly bool
	failPutYearly  bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		daily:   make(map[string]*DailyLedger),
		monthly: make(map[string]*MonthlyLedger),
		yearly:  make(map[string]*YearlyLedger),
	}
}

func docKey(tenantID, storeID, period string) string {
	return tenantID + "/" + storeID + "/" + period
}

func deepCopy[T any](t *testing.T, src *T) *T {
	raw, err := json.Marshal(src)
	require.NoError(t, err)
	out := new(T)
	require.NoError(t, json.Unmarshal(raw, out))
	return out
}

func clone[T any](src *T) *T {
	raw, _ := json.Marshal(src)
	out := new(T)
	_ = json.Unmarshal(raw, out)
	return out
}

func (r *fakeRepo) GetDaily(ctx context.Context, tenantID, storeID, date string) (*DailyLedger, error) {
	doc, ok := r.daily[docKey(tenantID, storeID, date)]
	if !ok {
		return nil, errors.NewNotFoundError("document not found")
	}
	return clone(doc), nil
}

func (r *fakeRepo) PutDaily(ctx context.Context, tenantID string, doc *DailyLedger) error {
	if r.failPutDaily {
		return errors.NewIOError("daily write failed", nil)
	}
	r.daily[docKey(tenantID, doc.StoreID, doc.Date)] = clone(doc)
	return nil
}

func (r *fakeRepo) GetMonthly(ctx context.Context, tenantID, storeID, month string) (*MonthlyLedger, error) {
	doc, ok := r.monthly[docKey(tenantID, storeID, month)]
	if !ok {
		return nil, errors.NewNotFoundError("document not found")
	}
	return clone(doc), nil
}

func (r *fakeRepo) PutMonthly(ctx context.Context, tenantID string, doc *MonthlyLedger) error {
	if r.failPutMonthly {
		return errors.NewIOError("monthly write failed", nil)
	}
	r.monthly[docKey(tenantID, doc.StoreID, doc.Month)] = clone(doc)
	return nil
}

func (r *fakeRepo) GetYearly(ctx context.Context, tenantID, storeID, year string) (*YearlyLedger, error) {
	doc, ok := r.yearly[docKey(tenantID, storeID, year)]
	if !ok {
		return nil, errors.NewNotFoundError("document not found")
	}
	return clone(doc), nil
}

func (r *fakeRepo) PutYearly(ctx context.Context, tenantID string, doc *YearlyLedger) error {
	if r.failPutYearly {
		return errors.NewIOError("yearly write failed", nil)
	}
	r.yearly[docKey(tenantID, doc.StoreID, doc.Year)] = clone(doc)
	return nil
}

func (r *fakeRepo) ListDailyDates(ctx context.Context, tenantID, storeID, month string) ([]string, error) {
	prefix := docKey(tenantID, storeID, month)
	var dates []string
	for key, doc := range r.daily {
		if strings.HasPrefix(key, prefix) {
			dates = append(dates, doc.Date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (r *fakeRepo) ListMonths(ctx context.Context, tenantID, storeID, year string) ([]string, error) {
	prefix := docKey(tenantID, storeID, year)
	var months []string
	for key, doc := range r.monthly {
		if strings.HasPrefix(key, prefix) {
			months = append(months, doc.Month)
		}
	}
	sort.Strings(months)
	return months, nil
}

var _ Repository = (*fakeRepo)(nil)

// captureSink records regenerated export file names in write order.
type captureSink struct {
	files []string
}

func (c *captureSink) Write(ctx context.Context, tenantID string, export *Export) error {
	c.files = append(c.files, export.FileName)
	return nil
}

const (
	testTenant = "tenant1"
	testStore  = "A"
)

func newTestService(repo Repository) *Service {
	return NewService(repo, authz.NewCapabilityGate(), nil, nil, slog.Default())
}

func approver(name string) authz.Subject {
	return authz.Subject{Actor: name, Capabilities: []authz.Capability{authz.CapabilityApprover}}
}

func plainUser(name string) authz.Subject {
	return authz.Subject{Actor: name}
}

func submit(t *testing.T, svc *Service, date string, amount int64) *Entry {
	t.Helper()
	entry, err := svc.Submit(context.Background(), &SubmitRequest{
		TenantID:  testTenant,
		StoreID:   testStore,
		Date:      date,
		Item:      "supplies",
		Amount:    decimal.NewFromInt(amount),
		Requester: "alice",
	})
	require.NoError(t, err)
	return entry
}

func transition(entryID, date string, subject authz.Subject) *TransitionRequest {
	return &TransitionRequest{
		TenantID: testTenant,
		StoreID:  testStore,
		Date:     date,
		EntryID:  entryID,
		Subject:  subject,
	}
}

// checkInvariants asserts the documented aggregate invariants on every
// persisted document.
func checkInvariants(t *testing.T, repo *fakeRepo) {
	t.Helper()
	for _, daily := range repo.daily {
		total := decimal.Zero
		for _, e := range daily.Entries {
			if e.Status == StatusApproved {
				total = total.Add(e.Amount)
			}
		}
		assert.True(t, daily.TotalApprovedAmount.Equal(total),
			"daily %s total %s != recomputed %s", daily.Date, daily.TotalApprovedAmount, total)
	}
	for _, monthly := range repo.monthly {
		total := decimal.Zero
		for _, v := range monthly.ByDay {
			total = total.Add(v)
		}
		assert.True(t, monthly.TotalApprovedAmount.Equal(total), "monthly %s", monthly.Month)
	}
	for _, yearly := range repo.yearly {
		total := decimal.Zero
		for _, v := range yearly.ByMonth {
			total = total.Add(v)
		}
		assert.True(t, yearly.TotalApprovedAmount.Equal(total), "yearly %s", yearly.Year)
	}
}

func TestSubmit(t *testing.T) {
	t.Run("creates a pending entry with zero approved total", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)

		entry := submit(t, svc, "2025-01-10", 1000)

		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, StatusPending, entry.Status)
		assert.Equal(t, "alice", entry.Requester)
		assert.False(t, entry.RequestedAt.IsZero())

		daily := repo.daily[docKey(testTenant, testStore, "2025-01-10")]
		require.NotNil(t, daily)
		assert.True(t, daily.TotalApprovedAmount.IsZero())
		assert.Empty(t, repo.monthly)
		assert.Empty(t, repo.yearly)
		checkInvariants(t, repo)
	})

	t.Run("resubmitting the same id is idempotent", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)

		first, err := svc.Submit(context.Background(), &SubmitRequest{
			TenantID: testTenant, StoreID: testStore, EntryID: "entry-1",
			Date: "2025-01-10", Amount: decimal.NewFromInt(500), Requester: "alice",
		})
		require.NoError(t, err)

		second, err := svc.Submit(context.Background(), &SubmitRequest{
			TenantID: testTenant, StoreID: testStore, EntryID: "entry-1",
			Date: "2025-01-10", Amount: decimal.NewFromInt(999), Requester: "bob",
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "alice", second.Requester)
		assert.Len(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")].Entries, 1)
	})

	t.Run("rejects invalid input before any write", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)

		_, err := svc.Submit(context.Background(), &SubmitRequest{
			TenantID: testTenant, StoreID: testStore,
			Date: "2025/01/10", Amount: decimal.NewFromInt(100), Requester: "alice",
		})
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))

		_, err = svc.Submit(context.Background(), &SubmitRequest{
			TenantID: testTenant, StoreID: testStore,
			Date: "2025-01-10", Amount: decimal.NewFromInt(-100), Requester: "alice",
		})
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))

		_, err = svc.Submit(context.Background(), &SubmitRequest{
			StoreID: testStore,
			Date:    "2025-01-10", Amount: decimal.NewFromInt(100), Requester: "alice",
		})
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
		assert.Empty(t, repo.daily)
	})
}

func TestApprove(t *testing.T) {
	t.Run("propagates the amount through both rollups", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		approved, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, approved.Status)
		assert.Equal(t, "boss", approved.Approver)
		require.NotNil(t, approved.ApprovedAt)

		daily := repo.daily[docKey(testTenant, testStore, "2025-01-10")]
		assert.True(t, daily.TotalApprovedAmount.Equal(decimal.NewFromInt(1000)))

		monthly := repo.monthly[docKey(testTenant, testStore, "2025-01")]
		require.NotNil(t, monthly)
		assert.True(t, monthly.ByDay["2025-01-10"].Equal(decimal.NewFromInt(1000)))

		yearly := repo.yearly[docKey(testTenant, testStore, "2025")]
		require.NotNil(t, yearly)
		assert.True(t, yearly.ByMonth["2025-01"].Equal(decimal.NewFromInt(1000)))
		checkInvariants(t, repo)
	})

	t.Run("double approve is a conflict and leaves documents unchanged", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		dailyBefore := deepCopy(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")])
		monthlyBefore := deepCopy(t, repo.monthly[docKey(testTenant, testStore, "2025-01")])
		yearlyBefore := deepCopy(t, repo.yearly[docKey(testTenant, testStore, "2025")])

		_, err = svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		assert.True(t, goerrors.Is(err, errors.NewConflictError("")))

		assert.Equal(t, dailyBefore, repo.daily[docKey(testTenant, testStore, "2025-01-10")])
		assert.Equal(t, monthlyBefore, repo.monthly[docKey(testTenant, testStore, "2025-01")])
		assert.Equal(t, yearlyBefore, repo.yearly[docKey(testTenant, testStore, "2025")])
	})

	t.Run("approving a deleted entry is a state error", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		_, err = svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		assert.True(t, goerrors.Is(err, errors.NewStateError("")))
	})

	t.Run("requires the approver capability", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", plainUser("alice")))
		assert.True(t, goerrors.Is(err, errors.NewPermissionError("")))
		assert.True(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")].TotalApprovedAmount.IsZero())
	})

	t.Run("unknown entry is not found", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		submit(t, svc, "2025-01-10", 1000)

		_, err := svc.Approve(context.Background(), transition("missing", "2025-01-10", approver("boss")))
		assert.True(t, goerrors.Is(err, errors.NewNotFoundError("")))
	})

	t.Run("rollup write failure surfaces as partial reconciliation", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		repo.failPutMonthly = true
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		assert.True(t, goerrors.Is(err, errors.NewPartialReconciliationError("", nil)))

		// Daily has committed; the rollup can be repaired without resubmitting.
		daily := repo.daily[docKey(testTenant, testStore, "2025-01-10")]
		assert.True(t, daily.TotalApprovedAmount.Equal(decimal.NewFromInt(1000)))

		repo.failPutMonthly = false
		monthly, err := svc.RebuildMonth(context.Background(), testTenant, testStore, "2025-01")
		require.NoError(t, err)
		assert.True(t, monthly.ByDay["2025-01-10"].Equal(decimal.NewFromInt(1000)))
		checkInvariants(t, repo)
	})
}

func TestDelete(t *testing.T) {
	t.Run("pending entry leaves rollups untouched", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		deleted, err := svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", plainUser("alice")))
		require.NoError(t, err)
		assert.Equal(t, StatusDeleted, deleted.Status)
		assert.Empty(t, repo.monthly)
		assert.Empty(t, repo.yearly)
		checkInvariants(t, repo)
	})

	t.Run("approved entry drains both rollups and drops zero keys", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		_, err = svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		daily := repo.daily[docKey(testTenant, testStore, "2025-01-10")]
		assert.True(t, daily.TotalApprovedAmount.IsZero())

		monthly := repo.monthly[docKey(testTenant, testStore, "2025-01")]
		assert.NotContains(t, monthly.ByDay, "2025-01-10")
		assert.True(t, monthly.TotalApprovedAmount.IsZero())

		yearly := repo.yearly[docKey(testTenant, testStore, "2025")]
		assert.NotContains(t, yearly.ByMonth, "2025-01")
		assert.True(t, yearly.TotalApprovedAmount.IsZero())
		checkInvariants(t, repo)
	})

	t.Run("double delete is rejected", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", plainUser("alice")))
		require.NoError(t, err)

		_, err = svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", plainUser("alice")))
		assert.True(t, goerrors.Is(err, errors.NewStateError("")))
	})

	t.Run("a stranger may not delete someone else's entry", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		_, err := svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", plainUser("mallory")))
		assert.True(t, goerrors.Is(err, errors.NewPermissionError("")))
	})
}

func TestModify(t *testing.T) {
	t.Run("requester can modify fields in place", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)

		newItem := "train fare"
		modified, err := svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", plainUser("alice")),
			ModifyFields{Item: &newItem})
		require.NoError(t, err)
		assert.Equal(t, StatusModified, modified.Status)
		assert.Equal(t, "train fare", modified.Item)
		assert.Equal(t, "alice", modified.Modifier)
		checkInvariants(t, repo)
	})

	t.Run("amount change of an approved entry adjusts the rollups", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		newAmount := decimal.NewFromInt(400)
		modified, err := svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", approver("boss")),
			ModifyFields{Amount: &newAmount})
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, modified.Status)

		monthly := repo.monthly[docKey(testTenant, testStore, "2025-01")]
		assert.True(t, monthly.ByDay["2025-01-10"].Equal(decimal.NewFromInt(400)))
		yearly := repo.yearly[docKey(testTenant, testStore, "2025")]
		assert.True(t, yearly.ByMonth["2025-01"].Equal(decimal.NewFromInt(400)))
		checkInvariants(t, repo)
	})

	t.Run("date move within a month is net zero for the month", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		newDate := "2025-01-20"
		moved, err := svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", approver("boss")),
			ModifyFields{Date: &newDate})
		require.NoError(t, err)
		assert.Equal(t, "2025-01-20", moved.Date)

		oldDaily := repo.daily[docKey(testTenant, testStore, "2025-01-10")]
		assert.Nil(t, oldDaily.FindEntry(entry.ID))
		assert.True(t, oldDaily.TotalApprovedAmount.IsZero())

		newDaily := repo.daily[docKey(testTenant, testStore, "2025-01-20")]
		require.NotNil(t, newDaily.FindEntry(entry.ID))
		assert.True(t, newDaily.TotalApprovedAmount.Equal(decimal.NewFromInt(1000)))

		monthly := repo.monthly[docKey(testTenant, testStore, "2025-01")]
		assert.NotContains(t, monthly.ByDay, "2025-01-10")
		assert.True(t, monthly.ByDay["2025-01-20"].Equal(decimal.NewFromInt(1000)))
		assert.True(t, monthly.TotalApprovedAmount.Equal(decimal.NewFromInt(1000)))

		yearly := repo.yearly[docKey(testTenant, testStore, "2025")]
		assert.True(t, yearly.ByMonth["2025-01"].Equal(decimal.NewFromInt(1000)))
		checkInvariants(t, repo)
	})

	t.Run("date move across months shifts the year buckets", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Approve(context.Background(), transition(entry.ID, "2025-01-10", approver("boss")))
		require.NoError(t, err)

		newDate := "2025-02-03"
		_, err = svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", approver("boss")),
			ModifyFields{Date: &newDate})
		require.NoError(t, err)

		january := repo.monthly[docKey(testTenant, testStore, "2025-01")]
		assert.Empty(t, january.ByDay)
		february := repo.monthly[docKey(testTenant, testStore, "2025-02")]
		assert.True(t, february.ByDay["2025-02-03"].Equal(decimal.NewFromInt(1000)))

		yearly := repo.yearly[docKey(testTenant, testStore, "2025")]
		assert.NotContains(t, yearly.ByMonth, "2025-01")
		assert.True(t, yearly.ByMonth["2025-02"].Equal(decimal.NewFromInt(1000)))
		checkInvariants(t, repo)
	})

	t.Run("negative amount is rejected before any document is touched", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		before := deepCopy(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")])

		bad := decimal.NewFromInt(-5)
		_, err := svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", plainUser("alice")),
			ModifyFields{Amount: &bad})
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
		assert.Equal(t, before, repo.daily[docKey(testTenant, testStore, "2025-01-10")])
	})

	t.Run("date move regenerates both days' exports", func(t *testing.T) {
		repo := newFakeRepo()
		sink := &captureSink{}
		svc := NewService(repo, authz.NewCapabilityGate(), nil, sink, slog.Default())

		entry, err := svc.Submit(context.Background(), &SubmitRequest{
			TenantID: testTenant, StoreID: testStore,
			Date: "2025-01-10", Amount: decimal.NewFromInt(1000), Requester: "alice",
		})
		require.NoError(t, err)

		sink.files = nil
		newDate := "2025-02-03"
		_, err = svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", plainUser("alice")),
			ModifyFields{Date: &newDate})
		require.NoError(t, err)

		assert.Contains(t, sink.files, "expense_A_2025-02-03.csv")
		assert.Contains(t, sink.files, "expense_A_2025-01-10.csv")
	})

	t.Run("modifying a deleted entry is rejected", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo)
		entry := submit(t, svc, "2025-01-10", 1000)
		_, err := svc.Delete(context.Background(), transition(entry.ID, "2025-01-10", plainUser("alice")))
		require.NoError(t, err)

		note := "too late"
		_, err = svc.Modify(context.Background(),
			transition(entry.ID, "2025-01-10", plainUser("alice")),
			ModifyFields{Note: &note})
		assert.True(t, goerrors.Is(err, errors.NewStateError("")))
	})
}

func TestLifecycleScenario(t *testing.T) {
	// Submit → Approve → Delete walks the full aggregate lifecycle.
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	entry := submit(t, svc, "2025-01-10", 1000)
	assert.Equal(t, StatusPending, entry.Status)
	assert.True(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")].TotalApprovedAmount.IsZero())

	_, err := svc.Approve(ctx, transition(entry.ID, "2025-01-10", approver("boss")))
	require.NoError(t, err)
	assert.True(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")].TotalApprovedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, repo.monthly[docKey(testTenant, testStore, "2025-01")].ByDay["2025-01-10"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, repo.yearly[docKey(testTenant, testStore, "2025")].ByMonth["2025-01"].Equal(decimal.NewFromInt(1000)))

	_, err = svc.Delete(ctx, transition(entry.ID, "2025-01-10", approver("boss")))
	require.NoError(t, err)
	assert.True(t, repo.daily[docKey(testTenant, testStore, "2025-01-10")].TotalApprovedAmount.IsZero())
	assert.NotContains(t, repo.monthly[docKey(testTenant, testStore, "2025-01")].ByDay, "2025-01-10")
	assert.NotContains(t, repo.yearly[docKey(testTenant, testStore, "2025")].ByMonth, "2025-01")
	checkInvariants(t, repo)
}

func TestServiceExport(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for _, seed := range []struct {
		date   string
		amount int64
	}{
		{"2025-01-10", 1000},
		{"2025-02-05", 250},
		{"2025-03-31", 750},
	} {
		entry := submit(t, svc, seed.date, seed.amount)
		_, err := svc.Approve(ctx, transition(entry.ID, seed.date, approver("boss")))
		require.NoError(t, err)
	}

	t.Run("quarter export emits only non-zero quarters", func(t *testing.T) {
		export, err := svc.Export(ctx, testTenant, testStore, GranularityQuarter, "2025")
		require.NoError(t, err)
		require.Len(t, export.Rows, 1)
		assert.Equal(t, []string{"2025-Q1", "2000"}, export.Rows[0])
	})

	t.Run("year export lists months ascending with a total row", func(t *testing.T) {
		export, err := svc.Export(ctx, testTenant, testStore, GranularityYear, "2025")
		require.NoError(t, err)
		require.Len(t, export.Rows, 4)
		assert.Equal(t, []string{"2025-01", "1000"}, export.Rows[0])
		assert.Equal(t, []string{"2025-02", "250"}, export.Rows[1])
		assert.Equal(t, []string{"2025-03", "750"}, export.Rows[2])
		assert.Equal(t, []string{"total", "2000"}, export.Rows[3])
	})

	t.Run("unknown granularity is a validation error", func(t *testing.T) {
		_, err := svc.Export(ctx, testTenant, testStore, "week", "2025")
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
	})

	t.Run("absent period is not found", func(t *testing.T) {
		_, err := svc.Export(ctx, testTenant, testStore, GranularityMonth, "2024-12")
		assert.True(t, goerrors.Is(err, errors.NewNotFoundError("")))
	})
}

func TestRebuildYear(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for _, seed := range []struct {
		date   string
		amount int64
	}{
		{"2025-01-10", 100},
		{"2025-04-02", 300},
	} {
		entry := submit(t, svc, seed.date, seed.amount)
		_, err := svc.Approve(ctx, transition(entry.ID, seed.date, approver("boss")))
		require.NoError(t, err)
	}

	// Corrupt the yearly rollup, then rebuild it from the monthly documents.
	repo.yearly[docKey(testTenant, testStore, "2025")].ByMonth["2025-01"] = decimal.NewFromInt(9999)

	yearly, err := svc.RebuildYear(ctx, testTenant, testStore, "2025")
	require.NoError(t, err)
	assert.True(t, yearly.ByMonth["2025-01"].Equal(decimal.NewFromInt(100)))
	assert.True(t, yearly.ByMonth["2025-04"].Equal(decimal.NewFromInt(300)))
	assert.True(t, yearly.TotalApprovedAmount.Equal(decimal.NewFromInt(400)))
	checkInvariants(t, repo)
}

func TestRequestValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	entry := submit(t, svc, "2025-01-10", 1000)

	t.Run("malformed date on a transition is a validation error", func(t *testing.T) {
		for _, bad := range []string{"2025-1-1", "2025-01", "20250110", ""} {
			_, err := svc.Approve(ctx, transition(entry.ID, bad, approver("boss")))
			assert.True(t, goerrors.Is(err, errors.NewValidationError("")), "approve date %q", bad)

			_, err = svc.Delete(ctx, transition(entry.ID, bad, plainUser("alice")))
			assert.True(t, goerrors.Is(err, errors.NewValidationError("")), "delete date %q", bad)

			note := "n"
			_, err = svc.Modify(ctx, transition(entry.ID, bad, plainUser("alice")), ModifyFields{Note: &note})
			assert.True(t, goerrors.Is(err, errors.NewValidationError("")), "modify date %q", bad)
		}
	})

	t.Run("reads validate the date as well", func(t *testing.T) {
		_, err := svc.GetEntry(ctx, testTenant, testStore, "2025-1-1", entry.ID)
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))

		_, err = svc.GetDay(ctx, testTenant, testStore, "2025-1-1")
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
	})

	t.Run("export validates the period key per granularity", func(t *testing.T) {
		for _, c := range []struct {
			granularity Granularity
			period      string
		}{
			{GranularityDay, "2025-1-1"},
			{GranularityMonth, "2025-1"},
			{GranularityMonth, "2025-01-10"},
			{GranularityYear, "25"},
			{GranularityQuarter, "2025-01"},
		} {
			_, err := svc.Export(ctx, testTenant, testStore, c.granularity, c.period)
			assert.True(t, goerrors.Is(err, errors.NewValidationError("")), "%s %q", c.granularity, c.period)
		}
	})

	t.Run("rebuild validates the period key", func(t *testing.T) {
		_, err := svc.RebuildMonth(ctx, testTenant, testStore, "2025-1")
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))

		_, err = svc.RebuildYear(ctx, testTenant, testStore, "2025-01")
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
	})

	t.Run("transition without a tenant is a validation error", func(t *testing.T) {
		req := transition(entry.ID, "2025-01-10", approver("boss"))
		req.TenantID = ""
		_, err := svc.Approve(ctx, req)
		assert.True(t, goerrors.Is(err, errors.NewValidationError("")))
	})
}

func TestLockMapRelease(t *testing.T) {
	// Per-day locks are dropped once released, so the map does not accumulate
	// an entry for every date ever touched.
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	entry := submit(t, svc, "2025-01-10", 1000)
	_, err := svc.Approve(ctx, transition(entry.ID, "2025-01-10", approver("boss")))
	require.NoError(t, err)

	newDate := "2025-02-03"
	_, err = svc.Modify(ctx,
		transition(entry.ID, "2025-01-10", approver("boss")),
		ModifyFields{Date: &newDate})
	require.NoError(t, err)

	svc.mapMu.Lock()
	defer svc.mapMu.Unlock()
	assert.Empty(t, svc.muMap)
}
