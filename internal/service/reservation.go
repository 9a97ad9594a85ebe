package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
)

// errConflict marks a conditional update that lost to a concurrent writer
var errConflict = errors.New("inventory changed concurrently")

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("concierge.bluehorizon.example"))

// IdempotencyKey derives the reservation key of a conversation turn.
// Replaying the same turn always yields the same key.
func IdempotencyKey(conversationID string, turnSeq int) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("%s:%d", conversationID, turnSeq))).String()
}

// ReserveRequest describes a booking to commit
type ReserveRequest struct {
	IdempotencyKey string
	RoomType       string
	Dates          model.DateRange
	Guest          string
	PartySize      int
	Quote          *model.Quote // price shown to the guest; nil skips the staleness check
}

// ReservationEngine owns all writes to room inventory
type ReservationEngine struct {
	store           *repository.Store
	catalog         *catalog.Catalog
	pricer          *Pricer
	conflictRetries int
	staleTolerance  float64
	clock           Clock
	logger          *zap.Logger
}

// NewReservationEngine creates a reservation engine
func NewReservationEngine(store *repository.Store, c *catalog.Catalog, pricer *Pricer, cfg config.BookingConfig, clock Clock, logger *zap.Logger) *ReservationEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &ReservationEngine{
		store:           store,
		catalog:         c,
		pricer:          pricer,
		conflictRetries: cfg.ConflictRetries,
		staleTolerance:  cfg.StaleTolerance,
		clock:           clock,
		logger:          logging.OrNop(logger).Named("engine"),
	}
}

// CheckAvailability reads the committed inventory of a room type over a stay
func (e *ReservationEngine) CheckAvailability(ctx context.Context, roomType string, dates model.DateRange) (model.AvailabilityWindow, error) {
	const op = "engine.check_availability"
	if _, ok := e.catalog.RoomType(roomType); !ok {
		return model.AvailabilityWindow{}, apperr.Rejected(op, "unknown room type %q", roomType)
	}

	var window model.AvailabilityWindow
	err := e.store.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		nights, err := e.store.Nights(ctx, tx, roomType, dates)
		if err != nil {
			return err
		}
		window = model.NewAvailabilityWindow(roomType, dates, nights)
		return nil
	})
	if err != nil {
		return model.AvailabilityWindow{}, classifyStoreErr(op, err)
	}
	return window, nil
}

// QuoteStay prices a stay from the current inventory
func (e *ReservationEngine) QuoteStay(ctx context.Context, roomType string, dates model.DateRange) (model.Quote, error) {
	window, err := e.CheckAvailability(ctx, roomType, dates)
	if err != nil {
		return model.Quote{}, err
	}
	if !window.Bookable() {
		return model.Quote{Snapshot: window}, apperr.Unavailable("engine.quote", fmt.Sprintf("%s is sold out for %s", roomType, dates))
	}
	price, err := e.pricer.Quote(roomType, dates, window)
	if err != nil {
		return model.Quote{}, err
	}
	return model.Quote{Price: price, Snapshot: window}, nil
}

// Execute runs a validated availability query. A named room type is always
// reported; otherwise only room types with at least MinUnits free on every
// night are returned.
func (e *ReservationEngine) Execute(ctx context.Context, q model.ValidatedQuery) ([]model.AvailabilityWindow, error) {
	const op = "engine.execute"

	roomTypes := e.candidateRooms(q.RoomType, q.PartySize)
	if len(roomTypes) == 0 {
		return nil, nil
	}

	var rows []model.NightInventory
	err := e.store.WithReadTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		rows, err = e.store.AvailabilityRows(ctx, tx, repository.AvailabilityFilter{
			RoomTypes: roomTypes,
			From:      q.Dates.CheckIn,
			To:        q.Dates.CheckOut,
		})
		return err
	})
	if err != nil {
		return nil, classifyStoreErr(op, err)
	}

	byRoom := make(map[string][]model.NightInventory, len(roomTypes))
	for _, r := range rows {
		byRoom[r.RoomType] = append(byRoom[r.RoomType], r)
	}

	windows := make([]model.AvailabilityWindow, 0, len(roomTypes))
	for _, name := range roomTypes {
		w := model.NewAvailabilityWindow(name, q.Dates, byRoom[name])
		if q.RoomType == "" && w.Remaining < q.MinUnits {
			continue
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// Alternatives lists priced room types other than exclude that can host the
// party on every night of the stay
func (e *ReservationEngine) Alternatives(ctx context.Context, dates model.DateRange, exclude string, partySize int) ([]model.AvailabilityQuote, error) {
	windows, err := e.Execute(ctx, model.ValidatedQuery{Dates: dates, PartySize: partySize, MinUnits: 1})
	if err != nil {
		return nil, err
	}
	var out []model.AvailabilityQuote
	for _, w := range windows {
		if w.RoomType == exclude {
			continue
		}
		price, err := e.pricer.Quote(w.RoomType, dates, w)
		if err != nil {
			continue
		}
		out = append(out, model.AvailabilityQuote{RoomType: w.RoomType, Dates: dates, Remaining: w.Remaining, Price: &price})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price.TotalCents < out[j].Price.TotalCents })
	return out, nil
}

// Reserve commits a booking in one transaction. A request whose idempotency
// key already has a reservation returns that reservation unchanged.
func (e *ReservationEngine) Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	const op = "engine.reserve"

	rt, ok := e.catalog.RoomType(req.RoomType)
	if !ok {
		return model.Reservation{}, apperr.Rejected(op, "unknown room type %q", req.RoomType)
	}
	if !req.Dates.Valid() {
		return model.Reservation{}, apperr.Rejected(op, "empty stay %s", req.Dates)
	}
	if req.IdempotencyKey == "" {
		return model.Reservation{}, apperr.Rejected(op, "idempotency key is required")
	}
	if req.PartySize < 1 {
		req.PartySize = 1
	}
	if req.PartySize > rt.MaxOccupancy {
		return model.Reservation{}, apperr.Unavailable(op, fmt.Sprintf("%s sleeps at most %d", rt.Name, rt.MaxOccupancy))
	}

	for attempt := 0; attempt <= e.conflictRetries; attempt++ {
		res, err := e.tryReserve(ctx, req)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, errConflict):
			e.logger.Debug("reservation conflict, retrying",
				zap.String("room_type", req.RoomType),
				zap.Int("attempt", attempt+1))
			continue
		case repository.IsUniqueViolation(err):
			// a concurrent replay of the same turn committed first
			existing, getErr := e.store.ReservationByKey(ctx, e.store.DB(), req.IdempotencyKey)
			if getErr == nil && existing != nil {
				return *existing, nil
			}
			return model.Reservation{}, classifyStoreErr(op, err)
		default:
			return model.Reservation{}, classifyStoreErr(op, err)
		}
	}

	e.logger.Info("reservation gave up after conflicts",
		zap.String("room_type", req.RoomType),
		zap.String("dates", req.Dates.String()))
	return model.Reservation{}, apperr.Unavailable(op, "inventory kept changing; no unit could be held")
}

func (e *ReservationEngine) tryReserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	const op = "engine.reserve"
	var out model.Reservation

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := e.store.ReservationByKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			out = *existing
			return nil
		}

		nights, err := e.store.Nights(ctx, tx, req.RoomType, req.Dates)
		if err != nil {
			return err
		}
		window := model.NewAvailabilityWindow(req.RoomType, req.Dates, nights)
		if !window.Bookable() {
			return apperr.Unavailable(op, fmt.Sprintf("%s is sold out for %s", req.RoomType, req.Dates))
		}

		fresh, err := e.pricer.Quote(req.RoomType, req.Dates, window)
		if err != nil {
			return err
		}
		if req.Quote != nil {
			if drift := Drift(req.Quote.Price, fresh); drift > e.staleTolerance {
				return apperr.PriceStale(op, drift)
			}
		}

		for _, n := range nights {
			ok, err := e.store.DecrementNight(ctx, tx, n)
			if err != nil {
				return err
			}
			if !ok {
				return errConflict
			}
		}

		now := e.clock().UTC()
		out = model.Reservation{
			ID:             uuid.NewString(),
			IdempotencyKey: req.IdempotencyKey,
			Guest:          req.Guest,
			RoomType:       req.RoomType,
			CheckIn:        req.Dates.CheckIn,
			CheckOut:       req.Dates.CheckOut,
			PartySize:      req.PartySize,
			PriceCents:     fresh.TotalCents,
			Currency:       fresh.Currency,
			Status:         model.StatusConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return e.store.InsertReservation(ctx, tx, &out)
	})
	if err != nil {
		return model.Reservation{}, err
	}

	e.logger.Info("reservation confirmed",
		zap.String("id", out.ID),
		zap.String("room_type", out.RoomType),
		zap.String("dates", out.Dates().String()),
		zap.Int64("price_cents", out.PriceCents))
	return out, nil
}

// Cancel moves a confirmed reservation to cancelled and gives its units back.
// Cancelling an already cancelled reservation returns it unchanged.
func (e *ReservationEngine) Cancel(ctx context.Context, reservationID string) (model.Reservation, error) {
	const op = "engine.cancel"
	var out model.Reservation

	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := e.store.ReservationByID(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound(op, "reservation "+reservationID)
		}
		if r.Status == model.StatusCancelled {
			out = *r
			return nil
		}
		if !r.Status.CanTransition(model.StatusCancelled) {
			return apperr.InvalidTransition(op, string(r.Status), string(model.StatusCancelled))
		}

		now := e.clock().UTC()
		won, err := e.store.TransitionReservation(ctx, tx, r.ID, r.Status, model.StatusCancelled, now)
		if err != nil {
			return err
		}
		if !won {
			// someone else cancelled it between our read and update
			current, err := e.store.ReservationByID(ctx, tx, reservationID)
			if err != nil {
				return err
			}
			if current == nil || current.Status != model.StatusCancelled {
				return errConflict
			}
			out = *current
			return nil
		}
		if err := e.store.RestoreNights(ctx, tx, r.RoomType, r.Dates()); err != nil {
			return err
		}

		r.Status = model.StatusCancelled
		r.UpdatedAt = now
		out = *r
		return nil
	})
	if errors.Is(err, errConflict) {
		return model.Reservation{}, apperr.New(apperr.KindStoreUnavailable, op, "reservation changed concurrently", err)
	}
	if err != nil {
		return model.Reservation{}, classifyStoreErr(op, err)
	}
	return out, nil
}

// GetReservation reads one reservation
func (e *ReservationEngine) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	const op = "engine.get_reservation"
	r, err := e.store.ReservationByID(ctx, e.store.DB(), id)
	if err != nil {
		return model.Reservation{}, classifyStoreErr(op, err)
	}
	if r == nil {
		return model.Reservation{}, apperr.NotFound(op, "reservation "+id)
	}
	return *r, nil
}

// ReservationByKey reads the reservation made under an idempotency key
func (e *ReservationEngine) ReservationByKey(ctx context.Context, key string) (model.Reservation, error) {
	const op = "engine.reservation_by_key"
	r, err := e.store.ReservationByKey(ctx, e.store.DB(), key)
	if err != nil {
		return model.Reservation{}, classifyStoreErr(op, err)
	}
	if r == nil {
		return model.Reservation{}, apperr.NotFound(op, "reservation for key "+key)
	}
	return *r, nil
}

// SeedInventory opens every catalog room type for the given nights
func (e *ReservationEngine) SeedInventory(ctx context.Context, dates model.DateRange) (int, error) {
	total := 0
	for _, rt := range e.catalog.RoomTypes {
		n, err := e.store.SeedInventory(ctx, rt.Name, rt.Units, dates)
		if err != nil {
			return total, classifyStoreErr("engine.seed", err)
		}
		total += n
	}
	return total, nil
}

// candidateRooms lists the room types a query may touch, in catalog order
func (e *ReservationEngine) candidateRooms(roomType string, partySize int) []string {
	if roomType != "" {
		return []string{roomType}
	}
	var names []string
	for _, rt := range e.catalog.RoomTypes {
		if partySize > 0 && rt.MaxOccupancy < partySize {
			continue
		}
		names = append(names, rt.Name)
	}
	return names
}

// classifyStoreErr keeps pipeline errors as they are and maps the rest to
// store failures, or to timeouts when the context ran out
func classifyStoreErr(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.ToolTimeout(op, err)
	}
	return apperr.Store(op, err)
}
