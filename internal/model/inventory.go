package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// NightInventory is the unit count of one room type on one night
type NightInventory struct {
	RoomType  string    `json:"room_type" db:"room_type"`
	Date      time.Time `json:"date" db:"stay_date"`
	Total     int       `json:"total" db:"total_units"`
	Remaining int       `json:"remaining" db:"remaining_units"`
	Version   int64     `json:"version" db:"version"`
}

// AvailabilityWindow is the inventory of a room type over a stay
type AvailabilityWindow struct {
	RoomType  string           `json:"room_type"`
	Dates     DateRange        `json:"dates"`
	Remaining int              `json:"remaining"`
	Nights    []NightInventory `json:"nights"`
}

// Complete reports whether every night of the stay has an inventory row
func (w AvailabilityWindow) Complete() bool {
	return len(w.Nights) == w.Dates.Nights()
}

// Bookable reports whether at least one unit is free on every night
func (w AvailabilityWindow) Bookable() bool {
	return w.Complete() && w.Remaining > 0
}

// NewAvailabilityWindow builds a window from per-night rows
func NewAvailabilityWindow(roomType string, dates DateRange, nights []NightInventory) AvailabilityWindow {
	w := AvailabilityWindow{RoomType: roomType, Dates: dates, Nights: nights}
	for i, n := range nights {
		if i == 0 || n.Remaining < w.Remaining {
			w.Remaining = n.Remaining
		}
	}
	if !w.Complete() {
		w.Remaining = 0
	}
	return w
}

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusFailed    ReservationStatus = "failed"
	StatusCancelled ReservationStatus = "cancelled"
)

// Value implements driver.Valuer interface
func (s ReservationStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// CanTransition reports whether a reservation may move from s to next.
// Confirmed may only become cancelled; failed and cancelled are final.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusFailed
	case StatusConfirmed:
		return next == StatusCancelled
	default:
		return false
	}
}

// Reservation is a room booking
type Reservation struct {
	ID             string            `json:"id" db:"id"`
	IdempotencyKey string            `json:"idempotency_key" db:"idempotency_key"`
	Guest          string            `json:"guest" db:"guest"`
	RoomType       string            `json:"room_type" db:"room_type"`
	CheckIn        time.Time         `json:"check_in" db:"check_in"`
	CheckOut       time.Time         `json:"check_out" db:"check_out"`
	PartySize      int               `json:"party_size" db:"party_size"`
	PriceCents     int64             `json:"price_cents" db:"price_cents"`
	Currency       string            `json:"currency" db:"currency"`
	Status         ReservationStatus `json:"status" db:"status"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Dates returns the stay of the reservation
func (r Reservation) Dates() DateRange {
	return NewDateRange(r.CheckIn, r.CheckOut)
}

// NightlyRate is the price of one night
type NightlyRate struct {
	Date  time.Time `json:"date"`
	Cents int64     `json:"cents"`
}

// Price is a quoted amount in minor units
type Price struct {
	RoomType   string        `json:"room_type"`
	Currency   string        `json:"currency"`
	TotalCents int64         `json:"total_cents"`
	Nightly    []NightlyRate `json:"nightly"`
}

// Format renders the price as e.g. "USD 412.50"
func (p Price) Format() string {
	return FormatCents(p.TotalCents, p.Currency)
}

// FormatCents renders minor units with a currency code
func FormatCents(cents int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, cents/100, cents%100)
}

// Quote is a price together with the snapshot it was computed from
type Quote struct {
	Price    Price              `json:"price"`
	Snapshot AvailabilityWindow `json:"snapshot"`
}

// AvailabilityQuote is what an availability check reports for one room type
type AvailabilityQuote struct {
	RoomType  string    `json:"room_type"`
	Dates     DateRange `json:"dates"`
	Remaining int       `json:"remaining"`
	Price     *Price    `json:"price,omitempty"`
}
