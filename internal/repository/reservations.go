package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

const reservationColumns = `id, idempotency_key, guest, room_type, check_in, check_out,
	party_size, price_cents, currency, status, created_at, updated_at`

// ReservationByKey returns the reservation created under an idempotency key, or nil
func (s *Store) ReservationByKey(ctx context.Context, q sqlx.QueryerContext, key string) (*model.Reservation, error) {
	return s.getReservation(ctx, q, "idempotency_key", key)
}

// ReservationByID returns a reservation, or nil when none exists
func (s *Store) ReservationByID(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Reservation, error) {
	return s.getReservation(ctx, q, "id", id)
}

func (s *Store) getReservation(ctx context.Context, q sqlx.QueryerContext, column, value string) (*model.Reservation, error) {
	var r model.Reservation
	// column is one of two constants above
	query := s.Rebind(`SELECT ` + reservationColumns + ` FROM reservations WHERE ` + column + ` = ?`)
	if err := sqlx.GetContext(ctx, q, &r, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get reservation")
	}
	normalizeReservation(&r)
	return &r, nil
}

// InsertReservation stores a new reservation
func (s *Store) InsertReservation(ctx context.Context, e sqlx.ExtContext, r *model.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES (:id, :idempotency_key, :guest, :room_type, :check_in, :check_out,
			:party_size, :price_cents, :currency, :status, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, e, query, r); err != nil {
		return errors.Wrap(err, "failed to insert reservation")
	}
	return nil
}

// TransitionReservation moves a reservation from one status to another.
// It reports false when the reservation was not in the expected status.
func (s *Store) TransitionReservation(ctx context.Context, e sqlx.ExecerContext, id string, from, to model.ReservationStatus, at time.Time) (bool, error) {
	query := s.Rebind(`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := e.ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return false, errors.Wrap(err, "failed to update reservation status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}

// CountReservations counts reservations of a room type in a status overlapping a stay
func (s *Store) CountReservations(ctx context.Context, roomType string, status model.ReservationStatus, dates model.DateRange) (int, error) {
	query := s.Rebind(`
		SELECT COUNT(*) FROM reservations
		WHERE room_type = ? AND status = ? AND check_in < ? AND check_out > ?
	`)
	var n int
	if err := s.db.GetContext(ctx, &n, query, roomType, status, dates.CheckOut, dates.CheckIn); err != nil {
		return 0, errors.Wrap(err, "failed to count reservations")
	}
	return n, nil
}

func normalizeReservation(r *model.Reservation) {
	r.CheckIn = model.Day(r.CheckIn)
	r.CheckOut = model.Day(r.CheckOut)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
}
