package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity selects the period shape of an export.
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityMonth   Granularity = "month"
	GranularityYear    Granularity = "year"
	GranularityQuarter Granularity = "quarter"
)

// Export is a flat tabular snapshot of one ledger document. Building an
// export never mutates ledger state.
type Export struct {
	FileName string
	Header   []string
	Rows     [][]string
}

var dailyHeader = []string{
	"id", "date", "department", "item", "amount", "status", "note",
	"requester", "requestedAt", "approver", "approvedAt",
	"modifier", "modifiedAt", "deleter", "deletedAt",
}

// BuildDailyExport renders one row per entry in insertion order,
// deduplicated by id as a guard against storage anomalies.
func BuildDailyExport(d *DailyLedger) *Export {
	seen := make(map[string]bool, len(d.Entries))
	rows := make([][]string, 0, len(d.Entries))
	for i := range d.Entries {
		e := &d.Entries[i]
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		rows = append(rows, []string{
			e.ID, e.Date, e.Department, e.Item, e.Amount.String(), string(e.Status), e.Note,
			e.Requester, formatTime(&e.RequestedAt), e.Approver, formatTime(e.ApprovedAt),
			e.Modifier, formatTime(e.ModifiedAt), e.Deleter, formatTime(e.DeletedAt),
		})
	}
	return &Export{
		FileName: fmt.Sprintf("expense_%s_%s.csv", d.StoreID, d.Date),
		Header:   dailyHeader,
		Rows:     rows,
	}
}

// BuildMonthlyExport renders one row per day, ascending, plus a trailing
// total row.
func BuildMonthlyExport(m *MonthlyLedger) *Export {
	rows := make([][]string, 0, len(m.ByDay)+1)
	total := decimal.Zero
	for _, day := range m.SortedDays() {
		amount := m.ByDay[day]
		total = total.Add(amount)
		rows = append(rows, []string{day, amount.String()})
	}
	rows = append(rows, []string{"total", total.String()})
	return &Export{
		FileName: fmt.Sprintf("expense_%s_%s.csv", m.StoreID, m.Month),
		Header:   []string{"date", "approvedAmount"},
		Rows:     rows,
	}
}

// BuildYearlyExport renders one row per month, ascending, plus a trailing
// total row.
func BuildYearlyExport(y *YearlyLedger) *Export {
	rows := make([][]string, 0, len(y.ByMonth)+1)
	total := decimal.Zero
	for _, month := range y.SortedMonths() {
		amount := y.ByMonth[month]
		total = total.Add(amount)
		rows = append(rows, []string{month, amount.String()})
	}
	rows = append(rows, []string{"total", total.String()})
	return &Export{
		FileName: fmt.Sprintf("expense_%s_%s.csv", y.StoreID, y.Year),
		Header:   []string{"month", "approvedAmount"},
		Rows:     rows,
	}
}

// BuildQuarterlyExport buckets the yearly rollup by quarter. Quarters with a
// zero total are omitted.
func BuildQuarterlyExport(y *YearlyLedger) *Export {
	totals := [4]decimal.Decimal{}
	for month, amount := range y.ByMonth {
		q, ok := quarterOf(month)
		if !ok {
			continue
		}
		totals[q-1] = totals[q-1].Add(amount)
	}
	rows := make([][]string, 0, 4)
	for q := 1; q <= 4; q++ {
		if totals[q-1].IsZero() {
			continue
		}
		rows = append(rows, []string{fmt.Sprintf("%s-Q%d", y.Year, q), totals[q-1].String()})
	}
	return &Export{
		FileName: fmt.Sprintf("expense_%s_%s_quarterly.csv", y.StoreID, y.Year),
		Header:   []string{"quarter", "approvedAmount"},
		Rows:     rows,
	}
}

// quarterOf maps a YYYY-MM key to its quarter number.
func quarterOf(month string) (int, bool) {
	if len(month) != 7 {
		return 0, false
	}
	m, err := strconv.Atoi(month[5:])
	if err != nil || m < 1 || m > 12 {
		return 0, false
	}
	return (m-1)/3 + 1, true
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
