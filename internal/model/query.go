package model

// EntityRoomAvailability is the only entity the translator may target
const EntityRoomAvailability = "room_availability"

// Fields of the query schema
const (
	FieldRoomType       = "room_type"
	FieldCheckIn        = "check_in"
	FieldCheckOut       = "check_out"
	FieldRemainingUnits = "remaining_units"
	FieldMaxOccupancy   = "max_occupancy"
)

// Operator is a comparison allowed in a predicate
type Operator string

const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpLt  Operator = "lt"
)

// Operations and aggregations
const (
	OperationSelect = "select"

	AggregationNone         = ""
	AggregationMinRemaining = "min_remaining"
)

// StructuredQuery is the schema-bound output of the translator.
// It never holds raw guest text.
type StructuredQuery struct {
	Entity      string      `json:"entity"`
	Operation   string      `json:"operation"`
	Predicates  []Predicate `json:"predicates"`
	Aggregation string      `json:"aggregation,omitempty"`
}

// Predicate filters one field
type Predicate struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// Find returns the first predicate on field with op
func (q StructuredQuery) Find(field string, op Operator) (Predicate, bool) {
	for _, p := range q.Predicates {
		if p.Field == field && p.Op == op {
			return p, true
		}
	}
	return Predicate{}, false
}

// ValidatedQuery is a StructuredQuery that passed the validator, with its typed parameters
type ValidatedQuery struct {
	Query     StructuredQuery `json:"query"`
	RoomType  string          `json:"room_type,omitempty"`
	Dates     DateRange       `json:"dates"`
	PartySize int             `json:"party_size,omitempty"`
	MinUnits  int             `json:"min_units"`
}
