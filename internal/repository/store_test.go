package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background(), 3))
	return s
}

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

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background(), 3))
}

func TestSeedAndReadNights(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.SeedInventory(ctx, "deluxe", 2, stay("2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	// seeding again leaves existing rows alone
	created, err = s.SeedInventory(ctx, "deluxe", 5, stay("2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	nights, err := s.Nights(ctx, s.DB(), "deluxe", stay("2024-06-01", "2024-06-03"))
	require.NoError(t, err)
	require.Len(t, nights, 2)
	assert.Equal(t, day("2024-06-01"), nights[0].Date)
	assert.Equal(t, day("2024-06-02"), nights[1].Date)
	assert.Equal(t, 2, nights[0].Remaining)
	assert.Equal(t, 2, nights[0].Total)
}

func TestDecrementNightRequiresCurrentVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.SeedInventory(ctx, "deluxe", 1, stay("2024-06-01", "2024-06-02"))
	require.NoError(t, err)

	nights, err := s.Nights(ctx, s.DB(), "deluxe", stay("2024-06-01", "2024-06-02"))
	require.NoError(t, err)
	require.Len(t, nights, 1)
	read := nights[0]

	ok, err := s.DecrementNight(ctx, s.DB(), read)
	require.NoError(t, err)
	assert.True(t, ok)

	// same snapshot again: version moved on
	ok, err = s.DecrementNight(ctx, s.DB(), read)
	require.NoError(t, err)
	assert.False(t, ok)

	// fresh snapshot but sold out
	nights, err = s.Nights(ctx, s.DB(), "deluxe", stay("2024-06-01", "2024-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 0, nights[0].Remaining)
	ok, err = s.DecrementNight(ctx, s.DB(), nights[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreNightsNeverExceedsTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dates := stay("2024-06-01", "2024-06-03")
	_, err := s.SeedInventory(ctx, "suite", 1, dates)
	require.NoError(t, err)

	require.NoError(t, s.RestoreNights(ctx, s.DB(), "suite", dates))

	nights, err := s.Nights(ctx, s.DB(), "suite", dates)
	require.NoError(t, err)
	for _, n := range nights {
		assert.Equal(t, 1, n.Remaining)
	}
}

func TestAvailabilityRowsFiltersRoomTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dates := stay("2024-06-01", "2024-06-03")
	for _, rt := range []string{"standard", "deluxe", "suite"} {
		_, err := s.SeedInventory(ctx, rt, 3, dates)
		require.NoError(t, err)
	}

	rows, err := s.AvailabilityRows(ctx, s.DB(), AvailabilityFilter{
		RoomTypes: []string{"deluxe", "suite"},
		From:      dates.CheckIn,
		To:        dates.CheckOut,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "deluxe", rows[0].RoomType)
	assert.Equal(t, "suite", rows[3].RoomType)
}

func TestReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := &model.Reservation{
		ID:             "res-1",
		IdempotencyKey: "key-1",
		Guest:          "Ada Lovelace",
		RoomType:       "deluxe",
		CheckIn:        day("2024-06-01"),
		CheckOut:       day("2024-06-03"),
		PartySize:      2,
		PriceCents:     44000,
		Currency:       "USD",
		Status:         model.StatusConfirmed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.InsertReservation(ctx, tx, r)
	})
	require.NoError(t, err)

	got, err := s.ReservationByKey(ctx, s.DB(), "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "res-1", got.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, day("2024-06-03"), got.CheckOut)
	assert.Equal(t, int64(44000), got.PriceCents)

	// idempotency key is unique
	dup := *r
	dup.ID = "res-2"
	err = s.InsertReservation(ctx, s.DB(), &dup)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(assert.AnError))

	missing, err := s.ReservationByID(ctx, s.DB(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.TransitionReservation(ctx, s.DB(), "res-1", model.StatusConfirmed, model.StatusCancelled, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.TransitionReservation(ctx, s.DB(), "res-1", model.StatusConfirmed, model.StatusCancelled, now)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountReservations(ctx, "deluxe", model.StatusCancelled, stay("2024-06-02", "2024-06-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	dates := stay("2024-06-01", "2024-06-02")
	_, err := s.SeedInventory(ctx, "deluxe", 1, dates)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *sqlx.Tx) error {
		nights, err := s.Nights(ctx, tx, "deluxe", dates)
		if err != nil {
			return err
		}
		if _, err := s.DecrementNight(ctx, tx, nights[0]); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	nights, err := s.Nights(ctx, s.DB(), "deluxe", dates)
	require.NoError(t, err)
	assert.Equal(t, 1, nights[0].Remaining)
}

func TestKnowledgeSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := NewKnowledgeRepository(s)

	docs := []model.KnowledgeDocument{
		{ID: "pool", Category: model.CategoryFAQ, Title: "Pool hours", Content: "Pool opens at 7", Embedding: pgvector.NewVector([]float32{1, 0, 0})},
		{ID: "pets", Category: model.CategoryPolicy, Title: "Pets", Content: "Dogs welcome", Embedding: pgvector.NewVector([]float32{0, 1, 0})},
		{ID: "pool-copy", Category: model.CategoryFAQ, Title: "Pool", Content: "Same vector", Embedding: pgvector.NewVector([]float32{2, 0, 0})},
		{ID: "no-embedding", Category: model.CategoryFAQ, Content: "Not indexed yet"},
	}
	written, failures := repo.UpsertDocuments(ctx, docs)
	assert.Empty(t, failures)
	assert.Equal(t, 4, written)

	n, err := repo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := repo.SimilaritySearch(ctx, []float32{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// equal scores keep insertion order
	assert.Equal(t, "pool", hits[0].ID)
	assert.Equal(t, "pool-copy", hits[1].ID)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9)

	// upsert replaces content but keeps the original position
	_, failures = repo.UpsertDocuments(ctx, []model.KnowledgeDocument{
		{ID: "pool", Category: model.CategoryFAQ, Title: "Pool hours", Content: "Pool opens at 8", Embedding: pgvector.NewVector([]float32{1, 0, 0})},
	})
	assert.Empty(t, failures)
	hits, err = repo.SimilaritySearch(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pool", hits[0].ID)
	assert.Equal(t, "Pool opens at 8", hits[0].Content)

	all, err := repo.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "pool", all[0].ID)
	assert.Equal(t, "no-embedding", all[3].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestTurnLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	resID := "res-9"
	require.NoError(t, s.LogTurn(ctx, model.TurnLog{
		ConversationID: "c1", TurnSeq: 2, Intent: "booking_request",
		ErrorKinds: model.JSONArray{"price_stale"}, ReservationID: &resID, LatencyMS: 42,
	}))
	require.NoError(t, s.LogTurn(ctx, model.TurnLog{ConversationID: "c1", TurnSeq: 1, Intent: "knowledge_query"}))

	logs, err := s.TurnLogs(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 1, logs[0].TurnSeq)
	assert.Equal(t, model.JSONArray{"price_stale"}, logs[1].ErrorKinds)
	require.NotNil(t, logs[1].ReservationID)
	assert.Equal(t, "res-9", *logs[1].ReservationID)
}
