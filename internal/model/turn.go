package model

// TurnState is a step of the orchestrator state machine
type TurnState string

const (
	StateReceived         TurnState = "received"
	StateIntentClassified TurnState = "intent_classified"
	StateRetrieving       TurnState = "retrieving"
	StateTranslating      TurnState = "translating"
	StateValidated        TurnState = "validated"
	StateReserving        TurnState = "reserving"
	StateAnswering        TurnState = "answering"
	StateComposed         TurnState = "composed"
	StateDone             TurnState = "done"
	StateFailed           TurnState = "failed"
)

// Failure is a user-facing description of something that went wrong in a turn
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ConversationTurnResult is what one turn returns to the guest
type ConversationTurnResult struct {
	ConversationID string              `json:"conversation_id"`
	TurnSeq        int                 `json:"turn_seq"`
	Intent         IntentTag           `json:"intent"`
	Reply          string              `json:"reply"`
	Reservation    *Reservation        `json:"reservation,omitempty"`
	Retrieval      []RetrievalResult   `json:"retrieval,omitempty"`
	Availability   []AvailabilityQuote `json:"availability,omitempty"`
	Clarification  string              `json:"clarification,omitempty"`
	Failures       []Failure           `json:"failures,omitempty"`
	Degraded       bool                `json:"degraded"`
	Trace          []TurnState         `json:"trace"`
}

// TurnLog is a persisted summary of a handled turn
type TurnLog struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	TurnSeq        int       `json:"turn_seq" db:"turn_seq"`
	Intent         string    `json:"intent" db:"intent"`
	ErrorKinds     JSONArray `json:"error_kinds" db:"error_kinds"`
	ReservationID  *string   `json:"reservation_id,omitempty" db:"reservation_id"`
	Degraded       bool      `json:"degraded" db:"degraded"`
	LatencyMS      int64     `json:"latency_ms" db:"latency_ms"`
}
