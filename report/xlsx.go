// Package report renders ledger reports as xlsx spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/stock"
	"github.com/xuri/excelize/v2"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	movementHeadings = []string{"Item Code", "Item Name", "Opening", "Inward", "Outward", "Adjustments", "Closing", "Movement"}
	ledgerHeadings   = []string{"Date", "Transaction", "Kind", "Reference", "Direction", "Quantity", "Movement", "Balance", "Reason", "Remarks"}
)

// MonthlyMovement writes one row per item plus a totals row.
func MonthlyMovement(w io.Writer, r *stock.MovementReport) error {
	sheet := fmt.Sprintf("%d-%02d", r.Year, int(r.Month))
	f, err := newWorkbook(sheet, movementHeadings)
	if err != nil {
		return err
	}
	defer f.Close()

	row := 2
	for _, m := range r.Rows {
		values := []any{m.Item.Code, m.Item.Name, num(m.Opening), num(m.Inward), num(m.Outward),
			num(m.Adjustments), num(m.Closing), num(m.Movement)}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}
	totals := []any{"TOTAL", "", nil, num(r.TotalInward), num(r.TotalOutward), num(r.TotalAdjustments)}
	if err := setRow(f, sheet, row, totals); err != nil {
		return err
	}
	return write(f, w)
}

// ItemLedger writes the opening balance, every entry, and the closing balance.
func ItemLedger(w io.Writer, l *stock.ItemLedger) error {
	sheet := l.Item.Code
	if sheet == "" {
		sheet = "Ledger"
	}
	f, err := newWorkbook(sheet, ledgerHeadings)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := setRow(f, sheet, 2, []any{"", "", "", "Opening balance", "", "", "", num(l.OpeningBalance)}); err != nil {
		return err
	}
	row := 3
	for _, e := range l.Entries {
		values := []any{
			e.Date.Format("2006-01-02 15:04"), int64(e.TransactionID), string(e.Kind), e.ReferenceNo,
			e.Direction.String(), num(e.Quantity), num(e.Movement), num(e.RunningBalance), e.ReasonText, e.Remarks,
		}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}
	if err := setRow(f, sheet, row, []any{"", "", "", "Closing balance", "", "", "", num(l.ClosingBalance)}); err != nil {
		return err
	}
	return write(f, w)
}

func newWorkbook(sheet string, headings []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	values := make([]any, len(headings))
	for i, h := range headings {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		f.Close()
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func write(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// num renders quantities as numbers so spreadsheets can sum them.
func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
