package service

import (
	"fmt"
	"strings"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

const greeting = "Hello! I can answer questions about the hotel, check room availability, or make a reservation for you."

const noGrounding = "I couldn't find that in our hotel guide. The front desk will be happy to help."

// ComposeInput is everything a turn produced
type ComposeInput struct {
	Reservation        *model.Reservation
	Clarification      string
	Availability       []model.AvailabilityQuote
	Alternatives       []model.AvailabilityQuote
	Retrieval          []model.RetrievalResult
	KnowledgeRequested bool
	Failures           []model.Failure
}

// Composer renders the guest reply. Section order is fixed: reservation,
// clarification, availability, knowledge, failures, alternatives.
type Composer struct {
	catalog *catalog.Catalog
}

// NewComposer creates a composer
func NewComposer(c *catalog.Catalog) *Composer {
	return &Composer{catalog: c}
}

// Compose builds the turn result from the branch outputs
func (c *Composer) Compose(in ComposeInput) model.ConversationTurnResult {
	var sections []string

	if r := in.Reservation; r != nil {
		sections = append(sections, reservationText(r))
	}
	if in.Clarification != "" {
		sections = append(sections, in.Clarification)
	}
	if len(in.Availability) > 0 {
		sections = append(sections, availabilityText(in.Availability))
	}
	if len(in.Retrieval) > 0 {
		sections = append(sections, knowledgeText(in.Retrieval))
	} else if in.KnowledgeRequested {
		sections = append(sections, noGrounding)
	}
	if msg := failureText(in.Failures); msg != "" {
		sections = append(sections, msg)
	}
	if msg := alternativesText(in.Alternatives); msg != "" {
		sections = append(sections, msg)
	}

	reply := strings.Join(sections, "\n\n")
	if reply == "" {
		reply = greeting
	}

	return model.ConversationTurnResult{
		Reply:         reply,
		Reservation:   in.Reservation,
		Retrieval:     in.Retrieval,
		Availability:  append(append([]model.AvailabilityQuote(nil), in.Availability...), in.Alternatives...),
		Clarification: in.Clarification,
		Failures:      in.Failures,
	}
}

// ClarificationFor asks for the named missing slots
func (c *Composer) ClarificationFor(missing []string) string {
	var asks []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			asks = append(asks, s)
		}
	}
	for _, slot := range missing {
		switch slot {
		case SlotCheckIn, SlotCheckOut:
			add("your check-in and check-out dates")
		case SlotRoomType:
			names := make([]string, 0, len(c.catalog.RoomTypes))
			for _, n := range c.catalog.Names() {
				names = append(names, catalog.DisplayName(n))
			}
			add("which room type you'd like (" + strings.Join(names, ", ") + ")")
		case SlotPartySize:
			add(fmt.Sprintf("how many guests are staying (up to %d)", c.catalog.MaxCapacity()))
		case SlotGuestName:
			add("the name for the reservation")
		}
	}
	if len(asks) == 0 {
		return ""
	}
	return "Could you tell me " + joinWithAnd(asks) + "?"
}

func reservationText(r *model.Reservation) string {
	dates := r.Dates()
	if r.Status == model.StatusCancelled {
		return fmt.Sprintf("Your reservation %s for the %s (%s) has been cancelled.",
			r.ID, catalog.DisplayName(r.RoomType), stayText(dates))
	}
	return fmt.Sprintf("You're booked! %s for %s, %s under %s. Total %s. Confirmation number: %s.",
		catalog.DisplayName(r.RoomType), stayText(dates), nightsText(dates.Nights()), r.Guest,
		model.FormatCents(r.PriceCents, r.Currency), r.ID)
}

func availabilityText(quotes []model.AvailabilityQuote) string {
	lines := make([]string, 0, len(quotes))
	for _, q := range quotes {
		name := catalog.DisplayName(q.RoomType)
		if q.Remaining <= 0 || q.Price == nil {
			lines = append(lines, fmt.Sprintf("%s is sold out for %s.", name, stayText(q.Dates)))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s is available for %s (%s left), %s total.",
			name, stayText(q.Dates), unitsText(q.Remaining), q.Price.Format()))
	}
	return strings.Join(lines, "\n")
}

func knowledgeText(results []model.RetrievalResult) string {
	top := results[0]
	text := top.Snippet
	if top.Title != "" {
		text = top.Title + ": " + top.Snippet
	}
	if len(results) > 1 {
		var related []string
		for _, r := range results[1:] {
			if r.Title != "" {
				related = append(related, r.Title)
			}
		}
		if len(related) > 0 {
			text += "\nRelated: " + strings.Join(related, ", ")
		}
	}
	return text
}

func failureText(failures []model.Failure) string {
	var msgs []string
	seen := map[string]bool{}
	for _, f := range failures {
		if f.Message == "" || seen[f.Message] {
			continue
		}
		seen[f.Message] = true
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, " ")
}

func alternativesText(alts []model.AvailabilityQuote) string {
	opts := make([]string, 0, len(alts))
	for _, a := range alts {
		if a.Price == nil {
			continue
		}
		opts = append(opts, fmt.Sprintf("%s (%s)", catalog.DisplayName(a.RoomType), a.Price.Format()))
	}
	if len(opts) == 0 {
		return ""
	}
	return "These rooms are open for the same dates: " + strings.Join(opts, ", ") + "."
}

func stayText(d model.DateRange) string {
	return d.CheckIn.Format("Jan 2") + " to " + d.CheckOut.Format("Jan 2, 2006")
}

func nightsText(n int) string {
	if n == 1 {
		return "1 night"
	}
	return fmt.Sprintf("%d nights", n)
}

func unitsText(n int) string {
	if n == 1 {
		return "1 room"
	}
	return fmt.Sprintf("%d rooms", n)
}

func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
