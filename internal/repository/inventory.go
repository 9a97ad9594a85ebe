package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// AvailabilityFilter selects inventory rows. Only typed values reach SQL;
// column names are fixed here.
type AvailabilityFilter struct {
	RoomTypes []string
	From      time.Time // first night, inclusive
	To        time.Time // check-out day, exclusive
}

// Nights returns the inventory rows of one room type over a stay, ordered by date
func (s *Store) Nights(ctx context.Context, q sqlx.QueryerContext, roomType string, dates model.DateRange) ([]model.NightInventory, error) {
	return s.AvailabilityRows(ctx, q, AvailabilityFilter{
		RoomTypes: []string{roomType},
		From:      dates.CheckIn,
		To:        dates.CheckOut,
	})
}

// AvailabilityRows runs a filtered inventory read
func (s *Store) AvailabilityRows(ctx context.Context, q sqlx.QueryerContext, f AvailabilityFilter) ([]model.NightInventory, error) {
	whereClauses := []string{"stay_date >= ?", "stay_date < ?"}
	args := []interface{}{f.From, f.To}

	if len(f.RoomTypes) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.RoomTypes)), ",")
		whereClauses = append(whereClauses, fmt.Sprintf("room_type IN (%s)", marks))
		for _, rt := range f.RoomTypes {
			args = append(args, rt)
		}
	}

	query := s.Rebind(fmt.Sprintf(`
		SELECT room_type, stay_date, total_units, remaining_units, version
		FROM room_availability
		WHERE %s
		ORDER BY room_type, stay_date
	`, strings.Join(whereClauses, " AND ")))

	var rows []model.NightInventory
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to read availability")
	}
	for i := range rows {
		rows[i].Date = model.Day(rows[i].Date)
	}
	return rows, nil
}

// DecrementNight takes one unit of a night if the row still has the version
// that was read. It reports false when another writer got there first or the
// night is sold out.
func (s *Store) DecrementNight(ctx context.Context, e sqlx.ExecerContext, n model.NightInventory) (bool, error) {
	query := s.Rebind(`
		UPDATE room_availability
		SET remaining_units = remaining_units - 1, version = version + 1
		WHERE room_type = ? AND stay_date = ? AND remaining_units > 0 AND version = ?
	`)
	res, err := e.ExecContext(ctx, query, n.RoomType, n.Date, n.Version)
	if err != nil {
		return false, errors.Wrapf(err, "failed to decrement %s on %s", n.RoomType, n.Date.Format(model.DateLayout))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}

// RestoreNights gives one unit back on every night of a stay
func (s *Store) RestoreNights(ctx context.Context, e sqlx.ExecerContext, roomType string, dates model.DateRange) error {
	query := s.Rebind(`
		UPDATE room_availability
		SET remaining_units = remaining_units + 1, version = version + 1
		WHERE room_type = ? AND stay_date >= ? AND stay_date < ? AND remaining_units < total_units
	`)
	if _, err := e.ExecContext(ctx, query, roomType, dates.CheckIn, dates.CheckOut); err != nil {
		return errors.Wrapf(err, "failed to restore %s for %s", roomType, dates)
	}
	return nil
}

// SeedInventory creates missing rows with every unit free. Existing rows are left alone.
func (s *Store) SeedInventory(ctx context.Context, roomType string, units int, dates model.DateRange) (int, error) {
	query := s.Rebind(`
		INSERT INTO room_availability (room_type, stay_date, total_units, remaining_units, version)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (room_type, stay_date) DO NOTHING
	`)

	created := 0
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, d := range dates.Dates() {
			res, err := tx.ExecContext(ctx, query, roomType, d, units, units)
			if err != nil {
				return errors.Wrapf(err, "failed to seed %s on %s", roomType, d.Format(model.DateLayout))
			}
			if n, _ := res.RowsAffected(); n > 0 {
				created++
			}
		}
		return nil
	})
	return created, err
}
