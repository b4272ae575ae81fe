package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTHLY MOVEMENT REPORT
// =============================================================================

// MovementRow is one item's activity in a period.
//
//	Closing = Opening + Inward - Outward + Adjustments
//
// Inward and Outward count only lines of INWARD and OUTWARD transactions.
// Adjustments is the signed sum of ADJUST lines. Movement is the gross
// activity: Inward + Outward + every adjustment quantity unsigned.
type MovementRow struct {
	Item        Item
	Opening     Quantity
	Inward      Quantity
	Outward     Quantity
	Adjustments Quantity
	Closing     Quantity
	Movement    Quantity
}

type MovementReport struct {
	Year   int
	Month  time.Month
	Period Period
	Rows   []MovementRow

	TotalInward      Quantity
	TotalOutward     Quantity
	TotalAdjustments Quantity
}

// MonthlyMovement reports every active item matching filter for one month.
func (l *Ledger) MonthlyMovement(ctx context.Context, year, month int, filter ItemFilter) (*MovementReport, error) {
	var fields []FieldError
	if year < 2000 || year > 2100 {
		fields = append(fields, FieldError{Field: "year", Message: "must be between 2000 and 2100"})
	}
	if month < 1 || month > 12 {
		fields = append(fields, FieldError{Field: "month", Message: "must be between 1 and 12"})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	period := MonthPeriod(year, time.Month(month))
	filter.ActiveOnly = true
	items, err := l.Store.ListItems(ctx, filter)
	if err != nil {
		return nil, asStorageError("monthly movement", err)
	}

	report := &MovementReport{
		Year:             year,
		Month:            time.Month(month),
		Period:           period,
		TotalInward:      decimal.Zero,
		TotalOutward:     decimal.Zero,
		TotalAdjustments: decimal.Zero,
	}
	for _, item := range items {
		lines, err := l.Store.LedgerLines(ctx, item.ID, time.Time{}, period.End)
		if err != nil {
			return nil, asStorageError("monthly movement", err)
		}
		row := movementRow(item, lines, period)
		report.Rows = append(report.Rows, row)
		report.TotalInward = report.TotalInward.Add(row.Inward)
		report.TotalOutward = report.TotalOutward.Add(row.Outward)
		report.TotalAdjustments = report.TotalAdjustments.Add(row.Adjustments)
	}
	return report, nil
}

// movementRow expects lines dated up to period.End.
func movementRow(item Item, lines []LedgerLine, period Period) MovementRow {
	row := MovementRow{
		Item:        item,
		Opening:     decimal.Zero,
		Inward:      decimal.Zero,
		Outward:     decimal.Zero,
		Adjustments: decimal.Zero,
	}
	adjGross := decimal.Zero
	for _, ln := range lines {
		if ln.Date.Before(period.Start) {
			row.Opening = row.Opening.Add(ln.Movement())
			continue
		}
		switch ln.Kind {
		case KindInward:
			row.Inward = row.Inward.Add(ln.Quantity)
		case KindOutward:
			row.Outward = row.Outward.Add(ln.Quantity)
		case KindAdjustment:
			row.Adjustments = row.Adjustments.Add(ln.Movement())
			adjGross = adjGross.Add(ln.Quantity)
		}
	}
	row.Closing = row.Opening.Add(row.Inward).Sub(row.Outward).Add(row.Adjustments)
	row.Movement = row.Inward.Add(row.Outward).Add(adjGross)
	return row
}
