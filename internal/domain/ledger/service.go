package ledger

import (
	"context"
	goerrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/claimdesk/expense-ledger/internal/domain/authz"
	"github.com/claimdesk/expense-ledger/internal/domain/errors"
	"github.com/claimdesk/expense-ledger/internal/events"
)

// TopicTransitions is the event topic for committed ledger transitions.
const TopicTransitions = "ledger.transitions"

// TransitionEvent is published after a transition has committed. Delivery is
// best effort; a publish failure never unwinds the transition.
type TransitionEvent struct {
	EventID    string    `json:"eventId"`
	TenantID   string    `json:"tenantId"`
	StoreID    string    `json:"storeId"`
	EntryID    string    `json:"entryId"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Date       string    `json:"date"`
	Amount     string    `json:"amount"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ExportSink receives regenerated exports after a committed transition.
type ExportSink interface {
	Write(ctx context.Context, tenantID string, export *Export) error
}

// Service executes the ledger commands. Writers are serialized per
// (tenant, store, date) so two transitions on the same daily document cannot
// race on its read-modify-write window. Cross-document consistency between
// the daily document and the rollups is still best effort; see Reconciler.
type Service struct {
	repo       Repository
	gate       authz.Gate
	reconciler *Reconciler
	publisher  events.Publisher
	sink       ExportSink
	logger     *slog.Logger

	mapMu sync.Mutex
	muMap map[string]*dayLock
}

// dayLock is a refcounted per-day mutex. The count tracks waiters as well as
// the holder, so the map entry can be dropped once the last writer releases
// it and the map stays bounded by the number of in-flight commands.
type dayLock struct {
	mu  sync.Mutex
	ref int
}

// NewService creates a new ledger service. publisher and sink may be nil to
// disable event publishing and export regeneration.
func NewService(repo Repository, gate authz.Gate, publisher events.Publisher, sink ExportSink, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		reconciler: NewReconciler(repo, logger),
		publisher:  publisher,
		sink:       sink,
		logger:     logger,
		muMap:      make(map[string]*dayLock),
	}
}

// Reconciler exposes the rollup engine for rebuild commands.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// SubmitRequest creates a new pending entry in the daily document for its
// date. EntryID is optional; when the caller's transport did not assign one,
// a ULID is generated.
type SubmitRequest struct {
	TenantID   string          `json:"tenantId"`
	StoreID    string          `json:"storeId"`
	EntryID    string          `json:"entryId,omitempty"`
	Date       string          `json:"date"`
	Department string          `json:"department,omitempty"`
	Item       string          `json:"item,omitempty"`
	Note       string          `json:"note,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Requester  string          `json:"requester"`
}

// TransitionRequest names the entry a transition targets plus the acting
// subject. The UI layer resolves store, date and entry id once at its
// boundary; the core never parses dispatch strings.
type TransitionRequest struct {
	TenantID string
	StoreID  string
	Date     string
	EntryID  string
	Subject  authz.Subject
}

func (r *TransitionRequest) validate() error {
	if r.TenantID == "" || r.StoreID == "" || r.EntryID == "" {
		return errors.NewValidationError("tenantId, storeId and entryId are required")
	}
	_, _, err := ParseDate(r.Date)
	return err
}

// Submit creates a pending entry. Resubmitting an id that already exists in
// the daily document is an idempotent no-op returning the stored entry.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*Entry, error) {
	if req.TenantID == "" || req.StoreID == "" || req.Requester == "" {
		return nil, errors.NewValidationError("tenantId, storeId and requester are required")
	}
	if _, _, err := ParseDate(req.Date); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, errors.NewValidationError("amount must not be negative")
	}

	unlock := s.lockDays(req.TenantID, req.StoreID, req.Date)
	defer unlock()

	daily, err := s.loadOrNewDaily(ctx, req.TenantID, req.StoreID, req.Date)
	if err != nil {
		return nil, err
	}

	entryID := req.EntryID
	if entryID == "" {
		entryID = ulid.Make().String()
	}
	if existing := daily.FindEntry(entryID); existing != nil {
		return existing, nil
	}

	entry := Entry{
		ID:          entryID,
		Date:        req.Date,
		Department:  req.Department,
		Item:        req.Item,
		Note:        req.Note,
		Amount:      req.Amount,
		Status:      StatusPending,
		Requester:   req.Requester,
		RequestedAt: time.Now().UTC(),
	}
	daily.UpsertEntry(entry)
	daily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, daily); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, "submit", req.TenantID, daily, &entry, entry.Requester)
	return &entry, nil
}

// Approve transitions an entry to Approved and propagates the approved
// amount into the monthly and yearly rollups.
func (s *Service) Approve(ctx context.Context, req *TransitionRequest) (*Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	unlock := s.lockDays(req.TenantID, req.StoreID, req.Date)
	defer unlock()

	daily, entry, err := s.loadEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanPerform(authz.ActionApprove, req.Subject, entry.Requester) {
		return nil, s.denied(authz.ActionApprove, req)
	}

	if err := ApplyApprove(entry, req.Subject.Actor, time.Now().UTC()); err != nil {
		return nil, err
	}
	daily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, daily); err != nil {
		return nil, err
	}

	if err := s.reconciler.ApplyDelta(ctx, req.TenantID, req.StoreID, req.Date, entry.Amount); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, "approve", req.TenantID, daily, entry, req.Subject.Actor)
	return entry, nil
}

// Delete marks an entry deleted. The amount leaves the rollups only when the
// entry was counted, i.e. approved.
func (s *Service) Delete(ctx context.Context, req *TransitionRequest) (*Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	unlock := s.lockDays(req.TenantID, req.StoreID, req.Date)
	defer unlock()

	daily, entry, err := s.loadEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanPerform(authz.ActionDelete, req.Subject, entry.Requester) {
		return nil, s.denied(authz.ActionDelete, req)
	}

	wasApproved := entry.Status == StatusApproved
	if err := ApplyDelete(entry, req.Subject.Actor, time.Now().UTC()); err != nil {
		return nil, err
	}
	daily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, daily); err != nil {
		return nil, err
	}

	if wasApproved {
		if err := s.reconciler.ApplyDelta(ctx, req.TenantID, req.StoreID, req.Date, entry.Amount.Neg()); err != nil {
			return nil, err
		}
	}

	s.afterTransition(ctx, "delete", req.TenantID, daily, entry, req.Subject.Actor)
	return entry, nil
}

// Modify overwrites entry fields. A date change moves the entry between
// daily documents; when the entry is approved the move is propagated as a
// linked subtract/add pair through the rollups.
func (s *Service) Modify(ctx context.Context, req *TransitionRequest, fields ModifyFields) (*Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if fields.Amount != nil && fields.Amount.IsNegative() {
		return nil, errors.NewValidationError("amount must not be negative")
	}
	newDate := req.Date
	if fields.Date != nil {
		if _, _, err := ParseDate(*fields.Date); err != nil {
			return nil, err
		}
		newDate = *fields.Date
	}

	if newDate == req.Date {
		return s.modifyInPlace(ctx, req, fields)
	}
	return s.modifyWithMove(ctx, req, fields, newDate)
}

func (s *Service) modifyInPlace(ctx context.Context, req *TransitionRequest, fields ModifyFields) (*Entry, error) {
	unlock := s.lockDays(req.TenantID, req.StoreID, req.Date)
	defer unlock()

	daily, entry, err := s.loadEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanPerform(authz.ActionModify, req.Subject, entry.Requester) {
		return nil, s.denied(authz.ActionModify, req)
	}

	wasApproved := entry.Status == StatusApproved
	oldAmount := entry.Amount
	if err := ApplyModify(entry, fields, req.Subject.Actor, time.Now().UTC()); err != nil {
		return nil, err
	}
	daily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, daily); err != nil {
		return nil, err
	}

	if wasApproved {
		delta := entry.Amount.Sub(oldAmount)
		if err := s.reconciler.ApplyDelta(ctx, req.TenantID, req.StoreID, req.Date, delta); err != nil {
			return nil, err
		}
	}

	s.afterTransition(ctx, "modify", req.TenantID, daily, entry, req.Subject.Actor)
	return entry, nil
}

func (s *Service) modifyWithMove(ctx context.Context, req *TransitionRequest, fields ModifyFields, newDate string) (*Entry, error) {
	unlock := s.lockDays(req.TenantID, req.StoreID, req.Date, newDate)
	defer unlock()

	oldDaily, entry, err := s.loadEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanPerform(authz.ActionModify, req.Subject, entry.Requester) {
		return nil, s.denied(authz.ActionModify, req)
	}

	wasApproved := entry.Status == StatusApproved
	oldAmount := entry.Amount
	moved := *entry
	if err := ApplyModify(&moved, fields, req.Subject.Actor, time.Now().UTC()); err != nil {
		return nil, err
	}

	newDaily, err := s.loadOrNewDaily(ctx, req.TenantID, req.StoreID, newDate)
	if err != nil {
		return nil, err
	}

	oldDaily.RemoveEntry(entry.ID)
	oldDaily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, oldDaily); err != nil {
		return nil, err
	}

	newDaily.UpsertEntry(moved)
	newDaily.RecomputeTotal()
	if err := s.repo.PutDaily(ctx, req.TenantID, newDaily); err != nil {
		// The entry has already left the old document; surface this as a
		// partial failure so the caller can rebuild instead of resubmitting.
		return nil, errors.NewPartialReconciliationError("failed to write moved entry", err).
			WithDetail("entryId", entry.ID).
			WithDetail("fromDate", req.Date).
			WithDetail("toDate", newDate)
	}

	if wasApproved {
		if err := s.reconciler.ApplyMove(ctx, req.TenantID, req.StoreID, req.Date, newDate, oldAmount, moved.Amount); err != nil {
			return nil, err
		}
	}

	s.afterTransition(ctx, "modify", req.TenantID, newDaily, &moved, req.Subject.Actor)
	// The old day's document changed too; its export is just as stale.
	s.regenerateExport(ctx, req.TenantID, oldDaily)
	return &moved, nil
}

// GetEntry returns one entry without mutating anything.
func (s *Service) GetEntry(ctx context.Context, tenantID, storeID, date, entryID string) (*Entry, error) {
	if _, _, err := ParseDate(date); err != nil {
		return nil, err
	}
	daily, err := s.repo.GetDaily(ctx, tenantID, storeID, date)
	if err != nil {
		return nil, err
	}
	entry := daily.FindEntry(entryID)
	if entry == nil {
		return nil, errors.NewNotFoundError("entry not found").WithDetail("entryId", entryID)
	}
	return entry, nil
}

// GetDay returns the full daily document.
func (s *Service) GetDay(ctx context.Context, tenantID, storeID, date string) (*DailyLedger, error) {
	if _, _, err := ParseDate(date); err != nil {
		return nil, err
	}
	return s.repo.GetDaily(ctx, tenantID, storeID, date)
}

// Export produces a point-in-time tabular snapshot for the requested period.
// periodKey is a date for day, a month for month, and a year for year and
// quarter granularity.
func (s *Service) Export(ctx context.Context, tenantID, storeID string, granularity Granularity, periodKey string) (*Export, error) {
	switch granularity {
	case GranularityDay:
		if _, _, err := ParseDate(periodKey); err != nil {
			return nil, err
		}
		daily, err := s.repo.GetDaily(ctx, tenantID, storeID, periodKey)
		if err != nil {
			return nil, err
		}
		return BuildDailyExport(daily), nil
	case GranularityMonth:
		if _, err := ParseMonth(periodKey); err != nil {
			return nil, err
		}
		monthly, err := s.repo.GetMonthly(ctx, tenantID, storeID, periodKey)
		if err != nil {
			return nil, err
		}
		return BuildMonthlyExport(monthly), nil
	case GranularityYear:
		if err := ParseYear(periodKey); err != nil {
			return nil, err
		}
		yearly, err := s.repo.GetYearly(ctx, tenantID, storeID, periodKey)
		if err != nil {
			return nil, err
		}
		return BuildYearlyExport(yearly), nil
	case GranularityQuarter:
		if err := ParseYear(periodKey); err != nil {
			return nil, err
		}
		yearly, err := s.repo.GetYearly(ctx, tenantID, storeID, periodKey)
		if err != nil {
			return nil, err
		}
		return BuildQuarterlyExport(yearly), nil
	}
	return nil, errors.NewValidationError("granularity must be one of day, month, year, quarter")
}

// RebuildMonth recomputes a monthly rollup in full from its daily documents.
func (s *Service) RebuildMonth(ctx context.Context, tenantID, storeID, month string) (*MonthlyLedger, error) {
	if _, err := ParseMonth(month); err != nil {
		return nil, err
	}
	return s.reconciler.RebuildMonth(ctx, tenantID, storeID, month)
}

// RebuildYear recomputes a yearly rollup in full from its monthly documents.
func (s *Service) RebuildYear(ctx context.Context, tenantID, storeID, year string) (*YearlyLedger, error) {
	if err := ParseYear(year); err != nil {
		return nil, err
	}
	return s.reconciler.RebuildYear(ctx, tenantID, storeID, year)
}

func (s *Service) loadEntry(ctx context.Context, req *TransitionRequest) (*DailyLedger, *Entry, error) {
	daily, err := s.repo.GetDaily(ctx, req.TenantID, req.StoreID, req.Date)
	if err != nil {
		return nil, nil, err
	}
	entry := daily.FindEntry(req.EntryID)
	if entry == nil {
		return nil, nil, errors.NewNotFoundError("entry not found").
			WithDetail("entryId", req.EntryID).
			WithDetail("date", req.Date)
	}
	return daily, entry, nil
}

func (s *Service) loadOrNewDaily(ctx context.Context, tenantID, storeID, date string) (*DailyLedger, error) {
	daily, err := s.repo.GetDaily(ctx, tenantID, storeID, date)
	if err != nil {
		if goerrors.Is(err, errors.NewNotFoundError("")) {
			return NewDailyLedger(storeID, date), nil
		}
		return nil, err
	}
	return daily, nil
}

func (s *Service) denied(action authz.Action, req *TransitionRequest) error {
	return errors.NewPermissionError("not allowed to "+string(action)+" this entry").
		WithDetail("action", string(action)).
		WithDetail("entryId", req.EntryID).
		WithDetail("actor", req.Subject.Actor)
}

// lockDays serializes writers on the named daily documents. Locks are taken
// in sorted key order so a cross-date move cannot deadlock with another move
// going the opposite way.
func (s *Service) lockDays(tenantID, storeID string, dates ...string) func() {
	keys := make([]string, 0, len(dates))
	seen := make(map[string]bool, len(dates))
	for _, date := range dates {
		key := tenantID + "/" + storeID + "/" + date
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	locks := make([]*dayLock, len(keys))
	s.mapMu.Lock()
	for i, key := range keys {
		l, ok := s.muMap[key]
		if !ok {
			l = &dayLock{}
			s.muMap[key] = l
		}
		l.ref++
		locks[i] = l
	}
	s.mapMu.Unlock()

	for _, l := range locks {
		l.mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].mu.Unlock()
		}
		s.mapMu.Lock()
		for i, l := range locks {
			l.ref--
			if l.ref == 0 {
				delete(s.muMap, keys[i])
			}
		}
		s.mapMu.Unlock()
	}
}

// afterTransition runs the non-fatal side effects of a committed transition:
// event publishing and export regeneration. Failures are logged and never
// propagate to the caller.
func (s *Service) afterTransition(ctx context.Context, action, tenantID string, daily *DailyLedger, entry *Entry, actor string) {
	if s.publisher != nil {
		event := TransitionEvent{
			EventID:    uuid.New().String(),
			TenantID:   tenantID,
			StoreID:    daily.StoreID,
			EntryID:    entry.ID,
			Action:     action,
			Actor:      actor,
			Date:       entry.Date,
			Amount:     entry.Amount.String(),
			Status:     entry.Status,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.publisher.Publish(TopicTransitions, event); err != nil {
			s.logger.Error("failed to publish transition event",
				"action", action, "entryId", entry.ID, "error", err)
		}
	}
	s.regenerateExport(ctx, tenantID, daily)
}

func (s *Service) regenerateExport(ctx context.Context, tenantID string, daily *DailyLedger) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Write(ctx, tenantID, BuildDailyExport(daily)); err != nil {
		s.logger.Error("EXPORT_FAILURE",
			"store", daily.StoreID, "date", daily.Date, "error", err)
	}
}
