package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
)

var testToday = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func testClock() time.Time { return testToday }

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func stay(from, to string) model.DateRange {
	return model.NewDateRange(day(from), day(to))
}

func testBooking() config.BookingConfig {
	return config.BookingConfig{HorizonDays: 730, MaxNights: 30, ConflictRetries: 3, StaleTolerance: 0.01}
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	s, err := repository.Open(repository.DriverSQLite, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background(), 3))
	return s
}

// newTestEngine returns an engine over a fresh database with every room type
// open from May through June 2024
func newTestEngine(t *testing.T) (*ReservationEngine, *repository.Store) {
	t.Helper()
	s := newTestStore(t)
	c := catalog.Default()
	e := NewReservationEngine(s, c, NewPricer(c), testBooking(), testClock, nil)
	_, err := e.SeedInventory(context.Background(), stay("2024-05-01", "2024-07-01"))
	require.NoError(t, err)
	return e, s
}

// setUnits overwrites the free units of a room type on each night of a stay
func setUnits(t *testing.T, s *repository.Store, roomType string, dates model.DateRange, remaining int) {
	t.Helper()
	q := s.Rebind(`UPDATE room_availability SET remaining_units = ? WHERE room_type = ? AND stay_date >= ? AND stay_date < ?`)
	_, err := s.DB().Exec(q, remaining, roomType, dates.CheckIn, dates.CheckOut)
	require.NoError(t, err)
}
