package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for stay dates.
const DateLayout = "2006-01-02"

// IntentTag classifies what a guest turn is asking for
type IntentTag string

const (
	IntentKnowledgeQuery    IntentTag = "knowledge_query"
	IntentAvailabilityCheck IntentTag = "availability_check"
	IntentBookingRequest    IntentTag = "booking_request"
	IntentMixed             IntentTag = "mixed"
	IntentNone              IntentTag = "none"
)

// StructuredAction is what the structured (translate -> validate -> engine) path should do
type StructuredAction string

const (
	ActionCheck StructuredAction = "check_availability"
	ActionBook  StructuredAction = "book"
)

// Utterance is one guest input for a single conversation turn
type Utterance struct {
	ConversationID string    `json:"conversation_id"`
	TurnSeq        int       `json:"turn_seq"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Intent is derived per turn from the planner suggestion
type Intent struct {
	Tag       IntentTag        `json:"tag"`
	Action    StructuredAction `json:"action,omitempty"`
	Retrieve  bool             `json:"retrieve"`
	Structure bool             `json:"structure"`
	Slots     *IntentSlots     `json:"slots,omitempty"`
}

// IntentSlots represents typed values extracted from an utterance
type IntentSlots struct {
	Dates     *DateRange `json:"dates,omitempty"`
	RoomType  *string    `json:"room_type,omitempty"`
	PartySize *int       `json:"party_size,omitempty"`
	Guest     *string    `json:"guest,omitempty"`
}

// RawSlots are slot values as produced by an extractor, before type checking.
// Nothing in here is trusted.
type RawSlots struct {
	CheckIn   string `json:"check_in,omitempty"`
	CheckOut  string `json:"check_out,omitempty"`
	Nights    *int   `json:"nights,omitempty"`
	RoomType  string `json:"room_type,omitempty"`
	PartySize *int   `json:"party_size,omitempty"`
	GuestName string `json:"guest_name,omitempty"`
}

// DateRange is a stay; CheckOut is exclusive
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewDateRange truncates both ends to UTC calendar days
func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
}

// Day returns t as a UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Nights returns the number of nights in the stay
func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Valid reports whether the range covers at least one night
func (r DateRange) Valid() bool {
	return r.CheckOut.After(r.CheckIn)
}

// Dates lists each night of the stay
func (r DateRange) Dates() []time.Time {
	var out []time.Time
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.CheckIn.Format(DateLayout), r.CheckOut.Format(DateLayout))
}
