package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusModified Status = "MODIFIED"
	StatusDeleted  Status = "DELETED"
)

// Entry represents a single expense claim line item. Entries live inside the
// daily document for their date and are never physically removed; deletion is
// a status transition so the audit trail survives.
type Entry struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"` // YYYY-MM-DD
	Department string          `json:"department,omitempty"`
	Item       string          `json:"item,omitempty"`
	Note       string          `json:"note,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`

	Requester   string     `json:"requester"`
	RequestedAt time.Time  `json:"requestedAt"`
	Modifier    string     `json:"modifier,omitempty"`
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty"`
	Approver    string     `json:"approver,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	Deleter     string     `json:"deleter,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// DailyLedger is the source of truth for one store-day. TotalApprovedAmount
// is fully recomputed from the entry list on every write.
type DailyLedger struct {
	Date                string          `json:"date"` // YYYY-MM-DD
	StoreID             string          `json:"storeId"`
	Entries             []Entry         `json:"entries"`
	TotalApprovedAmount decimal.Decimal `json:"totalApprovedAmount"`
}

// FindEntry returns the entry with the given id, or nil.
func (d *DailyLedger) FindEntry(entryID string) *Entry {
	for i := range d.Entries {
		if d.Entries[i].ID == entryID {
			return &d.Entries[i]
		}
	}
	return nil
}

// UpsertEntry replaces the entry with the same id, or appends it.
func (d *DailyLedger) UpsertEntry(e Entry) {
	for i := range d.Entries {
		if d.Entries[i].ID == e.ID {
			d.Entries[i] = e
			return
		}
	}
	d.Entries = append(d.Entries, e)
}

// RemoveEntry drops the entry with the given id, preserving order.
// Used only when a modify moves an entry to another date.
func (d *DailyLedger) RemoveEntry(entryID string) bool {
	for i := range d.Entries {
		if d.Entries[i].ID == entryID {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// RecomputeTotal recalculates TotalApprovedAmount from the entry list.
func (d *DailyLedger) RecomputeTotal() {
	total := decimal.Zero
	for i := range d.Entries {
		if d.Entries[i].Status == StatusApproved {
			total = total.Add(d.Entries[i].Amount)
		}
	}
	d.TotalApprovedAmount = total
}

// MonthlyLedger is a derived rollup of approved amounts by day. It is
// maintained by delta application, never by loading the month's entries.
type MonthlyLedger struct {
	Month               string                     `json:"month"` // YYYY-MM
	StoreID             string                     `json:"storeId"`
	ByDay               map[string]decimal.Decimal `json:"byDay"`
	TotalApprovedAmount decimal.Decimal            `json:"totalApprovedAmount"`
}

// YearlyLedger is a derived rollup of approved amounts by month.
type YearlyLedger struct {
	Year                string                     `json:"year"` // YYYY
	StoreID             string                     `json:"storeId"`
	ByMonth             map[string]decimal.Decimal `json:"byMonth"`
	TotalApprovedAmount decimal.Decimal            `json:"totalApprovedAmount"`
}

// NewDailyLedger creates an empty daily document.
func NewDailyLedger(storeID, date string) *DailyLedger {
	return &DailyLedger{
		Date:                date,
		StoreID:             storeID,
		Entries:             []Entry{},
		TotalApprovedAmount: decimal.Zero,
	}
}

// NewMonthlyLedger creates an empty monthly document.
func NewMonthlyLedger(storeID, month string) *MonthlyLedger {
	return &MonthlyLedger{
		Month:               month,
		StoreID:             storeID,
		ByDay:               map[string]decimal.Decimal{},
		TotalApprovedAmount: decimal.Zero,
	}
}

// NewYearlyLedger creates an empty yearly document.
func NewYearlyLedger(storeID, year string) *YearlyLedger {
	return &YearlyLedger{
		Year:                year,
		StoreID:             storeID,
		ByMonth:             map[string]decimal.Decimal{},
		TotalApprovedAmount: decimal.Zero,
	}
}

// SortedDays returns the byDay keys in ascending date order.
func (m *MonthlyLedger) SortedDays() []string {
	days := make([]string, 0, len(m.ByDay))
	for d := range m.ByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// SortedMonths returns the byMonth keys in ascending month order.
func (y *YearlyLedger) SortedMonths() []string {
	months := make([]string, 0, len(y.ByMonth))
	for m := range y.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// ParseDate validates a YYYY-MM-DD date string and returns its month
// (YYYY-MM) and year (YYYY) components.
func ParseDate(date string) (month, year string, err error) {
	parsed, perr := time.Parse("2006-01-02", date)
	if perr != nil {
		return "", "", errors.NewValidationError("date must be in YYYY-MM-DD format")
	}
	return parsed.Format("2006-01"), parsed.Format("2006"), nil
}

// ParseMonth validates a YYYY-MM month key and returns its year component.
func ParseMonth(month string) (year string, err error) {
	parsed, perr := time.Parse("2006-01", month)
	if perr != nil {
		return "", errors.NewValidationError("month must be in YYYY-MM format")
	}
	return parsed.Format("2006"), nil
}

// ParseYear validates a YYYY year key.
func ParseYear(year string) error {
	if _, perr := time.Parse("2006", year); perr != nil {
		return errors.NewValidationError("year must be in YYYY format")
	}
	return nil
}
