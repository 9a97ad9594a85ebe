package service

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// allowedOps is the column and operator allow-list of the availability schema
var allowedOps = map[string]map[model.Operator]bool{
	model.FieldRoomType:       {model.OpEq: true},
	model.FieldCheckIn:        {model.OpGte: true},
	model.FieldCheckOut:       {model.OpLt: true, model.OpLte: true},
	model.FieldRemainingUnits: {model.OpGte: true},
	model.FieldMaxOccupancy:   {model.OpGte: true},
}

var allowedAggregations = map[string]bool{
	model.AggregationNone:         true,
	model.AggregationMinRemaining: true,
}

// Validator checks structured queries before they reach the store. It treats
// its input as untrusted: anything outside the allow-lists is rejected.
type Validator struct {
	catalog     *catalog.Catalog
	clock       Clock
	horizonDays int
	maxNights   int
}

// NewValidator creates a validator with the booking horizon and stay limits
func NewValidator(c *catalog.Catalog, cfg config.BookingConfig, clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock
	}
	return &Validator{
		catalog:     c,
		clock:       clock,
		horizonDays: cfg.HorizonDays,
		maxNights:   cfg.MaxNights,
	}
}

// Validate returns the typed form of q or a rejected-query error
func (v *Validator) Validate(q model.StructuredQuery) (model.ValidatedQuery, error) {
	const op = "validator.validate"

	if q.Entity != model.EntityRoomAvailability {
		return model.ValidatedQuery{}, apperr.Rejected(op, "entity %q is not queryable", q.Entity)
	}
	if q.Operation != model.OperationSelect {
		return model.ValidatedQuery{}, apperr.Rejected(op, "operation %q is not allowed", q.Operation)
	}
	if !allowedAggregations[q.Aggregation] {
		return model.ValidatedQuery{}, apperr.Rejected(op, "aggregation %q is not allowed", q.Aggregation)
	}

	out := model.ValidatedQuery{Query: q, MinUnits: 1}
	var checkIn, checkOut time.Time
	seen := make(map[string]bool, len(q.Predicates))

	for _, p := range q.Predicates {
		ops, ok := allowedOps[p.Field]
		if !ok {
			return model.ValidatedQuery{}, apperr.Rejected(op, "field %q is not queryable", p.Field)
		}
		if !ops[p.Op] {
			return model.ValidatedQuery{}, apperr.Rejected(op, "operator %q is not allowed on %s", p.Op, p.Field)
		}
		if seen[p.Field] {
			return model.ValidatedQuery{}, apperr.Rejected(op, "duplicate predicate on %s", p.Field)
		}
		seen[p.Field] = true

		switch p.Field {
		case model.FieldRoomType:
			name, ok := p.Value.(string)
			if !ok {
				return model.ValidatedQuery{}, apperr.Rejected(op, "room_type must be a string")
			}
			if _, known := v.catalog.RoomType(name); !known {
				return model.ValidatedQuery{}, apperr.Rejected(op, "room type %q is not in the catalog", name)
			}
			out.RoomType = name

		case model.FieldCheckIn:
			d, err := dateValue(p.Value)
			if err != nil {
				return model.ValidatedQuery{}, apperr.Rejected(op, "check_in: %v", err)
			}
			checkIn = d

		case model.FieldCheckOut:
			d, err := dateValue(p.Value)
			if err != nil {
				return model.ValidatedQuery{}, apperr.Rejected(op, "check_out: %v", err)
			}
			// lte names the last night; normalize to the exclusive check-out day
			if p.Op == model.OpLte {
				d = d.AddDate(0, 0, 1)
			}
			checkOut = d

		case model.FieldRemainingUnits:
			n, ok := intValue(p.Value)
			if !ok || n < 0 {
				return model.ValidatedQuery{}, apperr.Rejected(op, "remaining_units must be a non-negative integer")
			}
			if n > 0 {
				out.MinUnits = n
			}

		case model.FieldMaxOccupancy:
			n, ok := intValue(p.Value)
			if !ok || n < 1 || n > v.catalog.MaxCapacity() {
				return model.ValidatedQuery{}, apperr.Rejected(op, "party size must be between 1 and %d", v.catalog.MaxCapacity())
			}
			out.PartySize = n
		}
	}

	if checkIn.IsZero() || checkOut.IsZero() {
		return model.ValidatedQuery{}, apperr.Rejected(op, "availability queries need both check_in and check_out bounds")
	}
	dates := model.NewDateRange(checkIn, checkOut)
	if !dates.Valid() {
		return model.ValidatedQuery{}, apperr.Rejected(op, "check_out must be after check_in")
	}

	today := model.Day(v.clock())
	horizon := today.AddDate(0, 0, v.horizonDays)
	if dates.CheckIn.Before(today) {
		return model.ValidatedQuery{}, apperr.Rejected(op, "check_in %s is in the past", dates.CheckIn.Format(model.DateLayout))
	}
	if dates.CheckOut.After(horizon) {
		return model.ValidatedQuery{}, apperr.Rejected(op, "stay ends after the booking horizon of %d days", v.horizonDays)
	}
	if v.maxNights > 0 && dates.Nights() > v.maxNights {
		return model.ValidatedQuery{}, apperr.Rejected(op, "stays are limited to %d nights", v.maxNights)
	}
	out.Dates = dates
	return out, nil
}

func dateValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		d, err := time.Parse(model.DateLayout, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, err
		}
		return d, nil
	case time.Time:
		return model.Day(t), nil
	default:
		return time.Time{}, errNotDate
	}
}

var errNotDate = errors.New("value is not a YYYY-MM-DD date")

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
