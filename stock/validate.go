package stock

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MOVEMENT REQUEST - input to CreateInward / CreateOutward / CreateAdjustment
// =============================================================================

type LineRequest struct {
	ItemID             ItemID           `json:"item_id" validate:"required,gt=0"`
	Quantity           Quantity         `json:"quantity"`
	Direction          Direction        `json:"direction,omitempty" validate:"omitempty,oneof=1 -1"`
	UnitPrice          *decimal.Decimal `json:"unit_price,omitempty"`
	AdjustmentReasonID *ReasonID        `json:"adjustment_reason_id,omitempty" validate:"omitempty,gt=0"`
	Remarks            string           `json:"remarks,omitempty" validate:"max=500"`
}

type MovementRequest struct {
	Date           time.Time     `json:"date" validate:"required"`
	ReferenceNo    string        `json:"reference_no,omitempty" validate:"max=50"`
	Remarks        string        `json:"remarks,omitempty" validate:"max=500"`
	IdempotencyKey string        `json:"idempotency_key,omitempty" validate:"max=100"`
	CreatedBy      ActorID       `json:"created_by" validate:"required,gt=0"`
	Lines          []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateMovement checks the request shape before any store access.
// Item, reason and stock checks happen later, inside the transaction.
func validateMovement(kind Kind, req MovementRequest, now time.Time) error {
	var fields []FieldError

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return NewValidationError("request", err.Error())
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: trimNamespace(fe.Namespace()), Message: describeTag(fe)})
		}
	}

	switch {
	case req.Date.After(now):
		fields = append(fields, FieldError{Field: "date", Message: "cannot be in the future"})
	case req.Date.Before(EarliestDate):
		fields = append(fields, FieldError{Field: "date", Message: "cannot be before " + EarliestDate.Format(time.DateOnly)})
	}

	fixed, hasFixed := kind.FixedDirection()
	for i, l := range req.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		if !l.Quantity.IsPositive() {
			fields = append(fields, FieldError{Field: prefix + "quantity", Message: "must be greater than zero"})
		}
		if l.UnitPrice != nil && l.UnitPrice.IsNegative() {
			fields = append(fields, FieldError{Field: prefix + "unit_price", Message: "cannot be negative"})
		}
		if hasFixed {
			if l.Direction != 0 && l.Direction != fixed {
				fields = append(fields, FieldError{Field: prefix + "direction", Message: "does not match " + string(kind)})
			}
			if l.AdjustmentReasonID != nil {
				fields = append(fields, FieldError{Field: prefix + "adjustment_reason_id", Message: "only allowed on adjustments"})
			}
			continue
		}
		if l.AdjustmentReasonID == nil {
			fields = append(fields, FieldError{Field: prefix + "adjustment_reason_id", Message: "adjustment reason is required"})
		}
		if l.Direction == 0 {
			fields = append(fields, FieldError{Field: prefix + "direction", Message: "required for adjustments (1 or -1)"})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// lineDirection resolves the direction a line is persisted with. Callers
// run validateMovement first, so adjustments always carry one.
func lineDirection(kind Kind, l LineRequest) Direction {
	if d, ok := kind.FixedDirection(); ok {
		return d
	}
	return l.Direction
}
