/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

QUANTITIES:
  Quantities, prices and totals are decimal strings ("12.5"). Requests accept
  either a JSON number or a string.

DATES:
  Requests accept "2006-01-02" or RFC3339. Responses are RFC3339 in UTC.

SEE ALSO:
  - handlers.go: Uses these types
  - stock/validate.go: MovementRequest, the domain form of the movement body
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// REQUESTS
// =============================================================================

type LineRequestDTO struct {
	ItemID             int64            `json:"item_id"`
	Quantity           decimal.Decimal  `json:"quantity"`
	Direction          int8             `json:"direction,omitempty"`
	UnitPrice          *decimal.Decimal `json:"unit_price,omitempty"`
	AdjustmentReasonID *int64           `json:"adjustment_reason_id,omitempty"`
	Remarks            string           `json:"remarks,omitempty"`
}

// MovementRequestDTO is the body of the inward, outward and adjustment
// endpoints. An empty date means now.
type MovementRequestDTO struct {
	Date           string           `json:"date,omitempty"`
	ReferenceNo    string           `json:"reference_no,omitempty"`
	Remarks        string           `json:"remarks,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	ActorID        int64            `json:"actor_id,omitempty"`
	Lines          []LineRequestDTO `json:"lines"`
}

type ActorRequest struct {
	ActorID int64 `json:"actor_id,omitempty"`
}

type ReverseRequest struct {
	ReasonID int64 `json:"reason_id"`
	ActorID  int64 `json:"actor_id,omitempty"`
}

type BulkAcknowledgeRequest struct {
	AlertIDs []int64 `json:"alert_ids"`
	ActorID  int64   `json:"actor_id,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type CreatedResponse struct {
	TransactionID int64 `json:"transaction_id"`
}

type LineDTO struct {
	ID                 int64            `json:"id"`
	ItemID             int64            `json:"item_id"`
	Quantity           decimal.Decimal  `json:"quantity"`
	Direction          string           `json:"direction"`
	Movement           decimal.Decimal  `json:"movement"`
	UnitPrice          *decimal.Decimal `json:"unit_price,omitempty"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	AdjustmentReasonID *int64           `json:"adjustment_reason_id,omitempty"`
	ReasonText         string           `json:"reason_text,omitempty"`
	Remarks            string           `json:"remarks,omitempty"`
}

type TransactionDTO struct {
	ID             int64           `json:"id"`
	Kind           string          `json:"kind"`
	Date           string          `json:"date"`
	ReferenceNo    string          `json:"reference_no,omitempty"`
	Remarks        string          `json:"remarks,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      string          `json:"created_at"`
	CreatedBy      int64           `json:"created_by"`
	NetQuantity    decimal.Decimal `json:"net_quantity"`
	Lines          []LineDTO       `json:"lines"`
}

type TransactionSummaryDTO struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Date        string          `json:"date"`
	ReferenceNo string          `json:"reference_no,omitempty"`
	Remarks     string          `json:"remarks,omitempty"`
	CreatedAt   string          `json:"created_at"`
	CreatedBy   int64           `json:"created_by"`
	LineCount   int             `json:"line_count"`
	NetQuantity decimal.Decimal `json:"net_quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// =============================================================================
// STOCK & LEDGER
// =============================================================================

type ItemStockDTO struct {
	ItemID    int64           `json:"item_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	QtyOnHand decimal.Decimal `json:"qty_on_hand"`
	MinStock  decimal.Decimal `json:"min_stock"`
	Status    string          `json:"status"`
}

type LedgerEntryDTO struct {
	TransactionID  int64           `json:"transaction_id"`
	LineID         int64           `json:"line_id"`
	Date           string          `json:"date"`
	Kind           string          `json:"kind"`
	ReferenceNo    string          `json:"reference_no,omitempty"`
	Direction      string          `json:"direction"`
	Quantity       decimal.Decimal `json:"quantity"`
	Movement       decimal.Decimal `json:"movement"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	ReasonText     string          `json:"reason_text,omitempty"`
	Remarks        string          `json:"remarks,omitempty"`
}

type LedgerDTO struct {
	ItemID         int64            `json:"item_id"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	From           string           `json:"from,omitempty"`
	To             string           `json:"to,omitempty"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
	CurrentBalance decimal.Decimal  `json:"current_balance"`
	TotalIn        decimal.Decimal  `json:"total_in"`
	TotalOut       decimal.Decimal  `json:"total_out"`
	Entries        []LedgerEntryDTO `json:"entries"`
}

type MovementRowDTO struct {
	ItemID      int64           `json:"item_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Opening     decimal.Decimal `json:"opening"`
	Inward      decimal.Decimal `json:"inward"`
	Outward     decimal.Decimal `json:"outward"`
	Adjustments decimal.Decimal `json:"adjustments"`
	Closing     decimal.Decimal `json:"closing"`
	Movement    decimal.Decimal `json:"movement"`
}

type MovementReportDTO struct {
	Year             int              `json:"year"`
	Month            int              `json:"month"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	Rows             []MovementRowDTO `json:"rows"`
	TotalInward      decimal.Decimal  `json:"total_inward"`
	TotalOutward     decimal.Decimal  `json:"total_outward"`
	TotalAdjustments decimal.Decimal  `json:"total_adjustments"`
}

type DriftDTO struct {
	ItemID     int64           `json:"item_id"`
	Code       string          `json:"code"`
	OnHand     decimal.Decimal `json:"on_hand"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
}

type VerifyResponse struct {
	Consistent bool       `json:"consistent"`
	Drifts     []DriftDTO `json:"drifts"`
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertDTO struct {
	ID             int64           `json:"id"`
	ItemID         int64           `json:"item_id"`
	QtyOnHand      decimal.Decimal `json:"qty_on_hand"`
	MinStock       decimal.Decimal `json:"min_stock"`
	Shortage       decimal.Decimal `json:"shortage"`
	AlertDate      string          `json:"alert_date"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedBy *int64          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt string          `json:"acknowledged_at,omitempty"`
}

type AlertSummaryDTO struct {
	Total        int    `json:"total"`
	Open         int    `json:"open"`
	Acknowledged int    `json:"acknowledged"`
	Critical     int    `json:"critical"`
	OldestOpen   string `json:"oldest_open,omitempty"`
}

type BulkAcknowledgeResponse struct {
	Acknowledged []int64 `json:"acknowledged"`
	Skipped      int     `json:"skipped"`
}

type ReconcileResponse struct {
	NewAlerts          int `json:"new_alerts"`
	Refreshed          int `json:"refreshed"`
	TotalLowStockItems int `json:"total_low_stock_items"`
}

// ScenarioDTO describes a loadable demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func (d MovementRequestDTO) toDomain(date time.Time, actor stock.ActorID) stock.MovementRequest {
	req := stock.MovementRequest{
		Date:           date,
		ReferenceNo:    d.ReferenceNo,
		Remarks:        d.Remarks,
		IdempotencyKey: d.IdempotencyKey,
		CreatedBy:      actor,
		Lines:          make([]stock.LineRequest, len(d.Lines)),
	}
	for i, l := range d.Lines {
		line := stock.LineRequest{
			ItemID:    stock.ItemID(l.ItemID),
			Quantity:  l.Quantity,
			Direction: stock.Direction(l.Direction),
			UnitPrice: l.UnitPrice,
			Remarks:   l.Remarks,
		}
		if l.AdjustmentReasonID != nil {
			rid := stock.ReasonID(*l.AdjustmentReasonID)
			line.AdjustmentReasonID = &rid
		}
		req.Lines[i] = line
	}
	return req
}

func toTransactionDTO(d *stock.TransactionDetail) TransactionDTO {
	t := d.Transaction
	dto := TransactionDTO{
		ID:             int64(t.ID),
		Kind:           string(t.Kind),
		Date:           formatTime(t.Date),
		ReferenceNo:    t.ReferenceNo,
		Remarks:        t.Remarks,
		IdempotencyKey: t.IdempotencyKey,
		CreatedAt:      formatTime(t.CreatedAt),
		CreatedBy:      int64(t.CreatedBy),
		NetQuantity:    t.NetQuantity(),
		Lines:          make([]LineDTO, len(t.Lines)),
	}
	for i, l := range t.Lines {
		line := LineDTO{
			ID:          int64(l.ID),
			ItemID:      int64(l.ItemID),
			Quantity:    l.Quantity,
			Direction:   l.Direction.String(),
			Movement:    l.Movement(),
			UnitPrice:   l.UnitPrice,
			TotalAmount: l.TotalAmount,
			Remarks:     l.Remarks,
		}
		if l.AdjustmentReasonID != nil {
			rid := int64(*l.AdjustmentReasonID)
			line.AdjustmentReasonID = &rid
			line.ReasonText = d.Reasons[*l.AdjustmentReasonID]
		}
		dto.Lines[i] = line
	}
	return dto
}

func toTransactionSummaryDTOs(in []stock.TransactionSummary) []TransactionSummaryDTO {
	out := make([]TransactionSummaryDTO, len(in))
	for i, s := range in {
		out[i] = TransactionSummaryDTO{
			ID:          int64(s.ID),
			Kind:        string(s.Kind),
			Date:        formatTime(s.Date),
			ReferenceNo: s.ReferenceNo,
			Remarks:     s.Remarks,
			CreatedAt:   formatTime(s.CreatedAt),
			CreatedBy:   int64(s.CreatedBy),
			LineCount:   s.LineCount,
			NetQuantity: s.NetQuantity,
			TotalAmount: s.TotalAmount,
		}
	}
	return out
}

func toItemStockDTO(s stock.ItemStock) ItemStockDTO {
	return ItemStockDTO{
		ItemID:    int64(s.Item.ID),
		Code:      s.Item.Code,
		Name:      s.Item.Name,
		QtyOnHand: s.QtyOnHand,
		MinStock:  s.Item.MinStock,
		Status:    string(s.Status),
	}
}

func toLedgerDTO(l *stock.ItemLedger) LedgerDTO {
	dto := LedgerDTO{
		ItemID:         int64(l.Item.ID),
		Code:           l.Item.Code,
		Name:           l.Item.Name,
		From:           formatTimePtr(l.From),
		To:             formatTimePtr(l.To),
		OpeningBalance: l.OpeningBalance,
		ClosingBalance: l.ClosingBalance,
		CurrentBalance: l.CurrentBalance,
		TotalIn:        l.TotalIn,
		TotalOut:       l.TotalOut,
		Entries:        make([]LedgerEntryDTO, len(l.Entries)),
	}
	for i, e := range l.Entries {
		dto.Entries[i] = LedgerEntryDTO{
			TransactionID:  int64(e.TransactionID),
			LineID:         int64(e.LineID),
			Date:           formatTime(e.Date),
			Kind:           string(e.Kind),
			ReferenceNo:    e.ReferenceNo,
			Direction:      e.Direction.String(),
			Quantity:       e.Quantity,
			Movement:       e.Movement,
			RunningBalance: e.RunningBalance,
			ReasonText:     e.ReasonText,
			Remarks:        e.Remarks,
		}
	}
	return dto
}

func toMovementReportDTO(r *stock.MovementReport) MovementReportDTO {
	dto := MovementReportDTO{
		Year:             r.Year,
		Month:            int(r.Month),
		From:             formatTime(r.Period.Start),
		To:               formatTime(r.Period.End),
		Rows:             make([]MovementRowDTO, len(r.Rows)),
		TotalInward:      r.TotalInward,
		TotalOutward:     r.TotalOutward,
		TotalAdjustments: r.TotalAdjustments,
	}
	for i, m := range r.Rows {
		dto.Rows[i] = MovementRowDTO{
			ItemID:      int64(m.Item.ID),
			Code:        m.Item.Code,
			Name:        m.Item.Name,
			Opening:     m.Opening,
			Inward:      m.Inward,
			Outward:     m.Outward,
			Adjustments: m.Adjustments,
			Closing:     m.Closing,
			Movement:    m.Movement,
		}
	}
	return dto
}

func toAlertDTO(a stock.Alert) AlertDTO {
	dto := AlertDTO{
		ID:             int64(a.ID),
		ItemID:         int64(a.ItemID),
		QtyOnHand:      a.QtyOnHand,
		MinStock:       a.MinStock,
		Shortage:       a.Shortage(),
		AlertDate:      formatTime(a.AlertDate),
		Acknowledged:   !a.IsOpen(),
		AcknowledgedAt: formatTimePtr(a.AcknowledgedAt),
	}
	if a.AcknowledgedBy != nil {
		by := int64(*a.AcknowledgedBy)
		dto.AcknowledgedBy = &by
	}
	return dto
}

func toAlertDTOs(in []stock.Alert) []AlertDTO {
	out := make([]AlertDTO, len(in))
	for i, a := range in {
		out[i] = toAlertDTO(a)
	}
	return out
}

func toDriftDTOs(in []stock.Drift) []DriftDTO {
	out := make([]DriftDTO, len(in))
	for i, d := range in {
		out[i] = DriftDTO{
			ItemID:     int64(d.ItemID),
			Code:       d.Code,
			OnHand:     d.OnHand,
			LedgerSum:  d.LedgerSum,
			Difference: d.Difference(),
		}
	}
	return out
}
