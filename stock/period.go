package stock

import "time"

// =============================================================================
// PERIOD - inclusive time window for ledger and report queries
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

// Movement dates must fall in [EarliestDate, LatestDate]. Query bounds
// outside it are clamped.
var (
	EarliestDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	LatestDate   = time.Date(2100, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// InLedgerRange reports whether t lies within [EarliestDate, LatestDate].
func InLedgerRange(t time.Time) bool {
	return Period{Start: EarliestDate, End: LatestDate}.Contains(t)
}

// MonthPeriod covers every instant of the given calendar month in UTC.
func MonthPeriod(year int, month time.Month) Period {
	start := StartOfMonth(year, month)
	return Period{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func StartOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(year int, month time.Month) time.Time {
	return MonthPeriod(year, month).End
}

// justBefore is the last instant strictly before t. Opening balances are
// BalanceAsOf(justBefore(from)) so that the opening balance and the entries
// of [from, to] never share or drop a line.
func justBefore(t time.Time) time.Time { return t.Add(-time.Nanosecond) }
