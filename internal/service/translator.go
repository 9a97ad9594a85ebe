package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// Slot names reported in translation failures
const (
	SlotCheckIn   = "check_in"
	SlotCheckOut  = "check_out"
	SlotRoomType  = "room_type"
	SlotPartySize = "party_size"
	SlotGuestName = "guest_name"
)

// Clock returns the current time
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time { return time.Now().UTC() }

// Translation is a schema-bound query plus the typed slots it was built from
type Translation struct {
	Query model.StructuredQuery
	Slots model.IntentSlots
}

// Translator turns an utterance into a StructuredQuery over the fixed schema
type Translator struct {
	catalog   *catalog.Catalog
	extractor SlotExtractor
	clock     Clock
	logger    *zap.Logger
}

// NewTranslator creates a translator
func NewTranslator(c *catalog.Catalog, extractor SlotExtractor, clock Clock, logger *zap.Logger) *Translator {
	if clock == nil {
		clock = SystemClock
	}
	return &Translator{
		catalog:   c,
		extractor: extractor,
		clock:     clock,
		logger:    logging.OrNop(logger).Named("translator"),
	}
}

// Translate extracts and type-checks slots, then builds the query. Missing or
// ambiguous slots produce a translation failure naming them; nothing is defaulted.
func (t *Translator) Translate(ctx context.Context, utt model.Utterance, intent model.Intent) (Translation, error) {
	const op = "translator.translate"

	raw, err := t.extractor.Extract(ctx, utt.Text, t.clock())
	if err != nil {
		return Translation{}, err
	}

	slots, missing, reason := t.typeCheck(raw)
	if intent.Action == model.ActionBook {
		if slots.RoomType == nil && !contains(missing, SlotRoomType) {
			missing = append(missing, SlotRoomType)
		}
		if slots.Guest == nil {
			missing = append(missing, SlotGuestName)
		}
	}
	if len(missing) > 0 {
		if reason == "" {
			reason = "required details missing"
		}
		t.logger.Debug("translation incomplete", zap.Strings("missing", missing), zap.String("reason", reason))
		return Translation{Slots: slots}, apperr.TranslationFailure(op, missing, reason)
	}

	return Translation{Query: buildQuery(slots), Slots: slots}, nil
}

// typeCheck converts raw slots into typed values. User text never passes
// through: dates are re-rendered and room types resolved to catalog names.
func (t *Translator) typeCheck(raw *model.RawSlots) (model.IntentSlots, []string, string) {
	var slots model.IntentSlots
	var missing []string
	var reasons []string

	checkIn, inOK := parseDate(raw.CheckIn)
	checkOut, outOK := parseDate(raw.CheckOut)
	if !outOK && inOK && raw.Nights != nil && *raw.Nights > 0 {
		checkOut, outOK = checkIn.AddDate(0, 0, *raw.Nights), true
	}
	switch {
	case !inOK && !outOK:
		missing = append(missing, SlotCheckIn, SlotCheckOut)
		reasons = append(reasons, "no date range")
	case !inOK:
		missing = append(missing, SlotCheckIn)
		reasons = append(reasons, "no check-in date")
	case !outOK:
		missing = append(missing, SlotCheckOut)
		reasons = append(reasons, "no check-out date or length of stay")
	case !checkOut.After(checkIn):
		missing = append(missing, SlotCheckOut)
		reasons = append(reasons, "check-out must be after check-in")
	default:
		dr := model.NewDateRange(checkIn, checkOut)
		slots.Dates = &dr
	}

	if raw.RoomType != "" {
		if name, ok := t.catalog.Resolve(raw.RoomType); ok {
			slots.RoomType = &name
		} else {
			missing = append(missing, SlotRoomType)
			reasons = append(reasons, "room type not recognized or ambiguous")
		}
	}

	if raw.PartySize != nil {
		if n := *raw.PartySize; n >= 1 && n <= t.catalog.MaxCapacity() {
			slots.PartySize = &n
		} else {
			missing = append(missing, SlotPartySize)
			reasons = append(reasons, fmt.Sprintf("party size must be between 1 and %d", t.catalog.MaxCapacity()))
		}
	}

	if name := cleanGuestName(raw.GuestName); name != "" {
		slots.Guest = &name
	}

	return slots, missing, strings.Join(reasons, "; ")
}

func buildQuery(slots model.IntentSlots) model.StructuredQuery {
	q := model.StructuredQuery{
		Entity:      model.EntityRoomAvailability,
		Operation:   model.OperationSelect,
		Aggregation: model.AggregationMinRemaining,
	}
	if slots.Dates != nil {
		q.Predicates = append(q.Predicates,
			model.Predicate{Field: model.FieldCheckIn, Op: model.OpGte, Value: slots.Dates.CheckIn.Format(model.DateLayout)},
			model.Predicate{Field: model.FieldCheckOut, Op: model.OpLt, Value: slots.Dates.CheckOut.Format(model.DateLayout)},
		)
	}
	if slots.RoomType != nil {
		q.Predicates = append(q.Predicates, model.Predicate{Field: model.FieldRoomType, Op: model.OpEq, Value: *slots.RoomType})
	} else {
		q.Predicates = append(q.Predicates, model.Predicate{Field: model.FieldRemainingUnits, Op: model.OpGte, Value: 1})
	}
	if slots.PartySize != nil {
		q.Predicates = append(q.Predicates, model.Predicate{Field: model.FieldMaxOccupancy, Op: model.OpGte, Value: *slots.PartySize})
	}
	return q
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cleanGuestName keeps letters, spaces, apostrophes, dots and dashes
func cleanGuestName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == ' ' || r == '\'' || r == '-' || r == '.':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r > 127 && r != 0xFFFD:
			b.WriteRune(r)
		}
	}
	name := strings.Join(strings.Fields(b.String()), " ")
	if len([]rune(name)) > 80 {
		name = string([]rune(name)[:80])
	}
	return name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
