package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/memory"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
)

type harness struct {
	orch   *Orchestrator
	engine *ReservationEngine
	store  *repository.Store
	memory *memory.Manager
}

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		TurnTimeout: 5 * time.Second,
		ToolTimeout: 2 * time.Second,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

// newHarness wires the real pipeline over an in-memory store. Overrides may
// replace any dependency before the orchestrator is built.
func newHarness(t *testing.T, cfg config.OrchestratorConfig, override func(*Deps)) *harness {
	t.Helper()
	ctx := context.Background()
	engine, s := newTestEngine(t)
	c := catalog.Default()

	repo := repository.NewKnowledgeRepository(s)
	docs, err := catalog.LoadKnowledge("../../config/knowledge.yaml")
	require.NoError(t, err)
	_, failures, err := IndexDocuments(ctx, nil, repo, docs, 0, nil)
	require.NoError(t, err)
	require.Empty(t, failures)

	mem := memory.NewManager(memory.NewLocalStore(20))
	deps := Deps{
		Catalog:    c,
		Planner:    NewRulePlanner(c, testClock),
		Retriever:  NewRetriever(nil, repo, config.RetrievalConfig{DefaultTopK: 3, MaxTopK: 20}, nil),
		Translator: NewTranslator(c, NewRuleSlotExtractor(c), testClock, nil),
		Validator:  NewValidator(c, testBooking(), testClock),
		Engine:     engine,
		Pricer:     NewPricer(c),
		History:    mem,
		TurnLog:    s,
		Clock:      testClock,
	}
	if override != nil {
		override(&deps)
	}
	orch := NewOrchestrator(deps, cfg, 3, nil)
	t.Cleanup(orch.Close)
	return &harness{orch: orch, engine: engine, store: s, memory: mem}
}

func (h *harness) turn(t *testing.T, seq int, text string) model.ConversationTurnResult {
	t.Helper()
	res, err := h.orch.HandleTurn(context.Background(), "conv-1", seq, text)
	require.NoError(t, err)
	return res
}

func failureKinds(r model.ConversationTurnResult) []string {
	var kinds []string
	for _, f := range r.Failures {
		kinds = append(kinds, f.Kind)
	}
	return kinds
}

func TestKnowledgeTurn(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	res := h.turn(t, 1, "What time does the pool open?")
	assert.Equal(t, model.IntentKnowledgeQuery, res.Intent)
	assert.Contains(t, res.Reply, "7:00 AM to 10:00 PM")
	require.NotEmpty(t, res.Retrieval)
	assert.Equal(t, "faq-pool-hours", res.Retrieval[0].DocumentID)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Failures)
	assert.Equal(t, []model.TurnState{
		model.StateReceived, model.StateIntentClassified, model.StateRetrieving, model.StateComposed, model.StateDone,
	}, res.Trace)
}

func TestBookingWithoutDatesAsksForThem(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	res := h.turn(t, 1, "Please book a deluxe room under Ada Byron")
	assert.Equal(t, model.IntentBookingRequest, res.Intent)
	assert.Nil(t, res.Reservation)
	assert.Contains(t, res.Clarification, "check-in and check-out dates")
	assert.Contains(t, res.Reply, res.Clarification)
	assert.Empty(t, res.Failures)
	assert.False(t, res.Degraded)
	assert.Equal(t, model.StateDone, res.Trace[len(res.Trace)-1])
}

func TestBookingTurnCommitsOnce(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)
	text := "Book a deluxe from 2024-06-01 to 2024-06-03 for 2 guests under Ada Byron"

	res := h.turn(t, 3, text)
	require.NotNil(t, res.Reservation, res.Reply)
	assert.Equal(t, model.StatusConfirmed, res.Reservation.Status)
	assert.Equal(t, "deluxe", res.Reservation.RoomType)
	assert.Equal(t, "Ada Byron", res.Reservation.Guest)
	assert.Equal(t, int64(47300), res.Reservation.PriceCents)
	assert.Contains(t, res.Reply, "Confirmation number: "+res.Reservation.ID)
	assert.Contains(t, res.Trace, model.StateReserving)

	// a replayed turn returns the same reservation without taking another unit
	again := h.turn(t, 3, text)
	require.NotNil(t, again.Reservation)
	assert.Equal(t, res.Reservation.ID, again.Reservation.ID)

	w, err := h.engine.CheckAvailability(context.Background(), "deluxe", stay("2024-06-01", "2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 11, w.Remaining)

	history, err := h.memory.FormattedHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Contains(t, history, "Guest: "+text)
	assert.Contains(t, history, "Concierge: You're booked!")

	h.orch.Close()
	logs, err := h.store.TurnLogs(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].ReservationID)
	assert.Equal(t, res.Reservation.ID, *logs[0].ReservationID)
	assert.Equal(t, string(model.IntentBookingRequest), logs[0].Intent)
}

func TestSoldOutBookingOffersAlternatives(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)
	setUnits(t, h.store, "penthouse", stay("2024-06-01", "2024-06-03"), 0)

	res := h.turn(t, 1, "Book the penthouse from 2024-06-01 to 2024-06-03 under Ada Byron")
	assert.Nil(t, res.Reservation)
	assert.Equal(t, []string{string(apperr.KindUnavailable)}, failureKinds(res))
	require.NotEmpty(t, res.Availability)
	for _, q := range res.Availability {
		assert.NotEqual(t, "penthouse", q.RoomType)
	}
	assert.Contains(t, res.Reply, "These rooms are open for the same dates")
	assert.False(t, res.Degraded)
}

func TestOversizedPartyIsUnavailable(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	res := h.turn(t, 1, "Book a standard room from 2024-06-01 to 2024-06-03 for 4 guests under Ada Byron")
	assert.Nil(t, res.Reservation)
	assert.Equal(t, []string{string(apperr.KindUnavailable)}, failureKinds(res))
	require.NotEmpty(t, res.Availability)
	for _, q := range res.Availability {
		rt, ok := catalog.Default().RoomType(q.RoomType)
		require.True(t, ok)
		assert.GreaterOrEqual(t, rt.MaxOccupancy, 4)
	}
}

func TestAvailabilityTurn(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	res := h.turn(t, 1, "Is the deluxe available from 2024-06-01 to 2024-06-03?")
	assert.Equal(t, model.IntentAvailabilityCheck, res.Intent)
	require.Len(t, res.Availability, 1)
	assert.Equal(t, 12, res.Availability[0].Remaining)
	require.NotNil(t, res.Availability[0].Price)
	assert.Contains(t, res.Reply, "Deluxe is available for Jun 1 to Jun 3, 2024 (12 rooms left), USD 473.00 total.")
}

func TestMixedTurnRunsBothBranches(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	res := h.turn(t, 1, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron, and what are the pool hours?")
	assert.Equal(t, model.IntentMixed, res.Intent)
	require.NotNil(t, res.Reservation)
	require.NotEmpty(t, res.Retrieval)
	assert.Equal(t, "faq-pool-hours", res.Retrieval[0].DocumentID)
	assert.Contains(t, res.Reply, "You're booked!")
	assert.Contains(t, res.Reply, "Pool hours:")
	assert.Contains(t, res.Trace, model.StateRetrieving)
	assert.Contains(t, res.Trace, model.StateReserving)
}

// staleBooker reports a moved price for the first n reservations
type staleBooker struct {
	*ReservationEngine
	stale  int32
	quotes atomic.Int32
}

func (b *staleBooker) QuoteStay(ctx context.Context, roomType string, dates model.DateRange) (model.Quote, error) {
	b.quotes.Add(1)
	return b.ReservationEngine.QuoteStay(ctx, roomType, dates)
}

func (b *staleBooker) Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	if atomic.AddInt32(&b.stale, -1) >= 0 {
		return model.Reservation{}, apperr.PriceStale("engine.reserve", 0.05)
	}
	return b.ReservationEngine.Reserve(ctx, req)
}

func TestStalePriceIsRequotedOnce(t *testing.T) {
	var booker *staleBooker
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) {
		booker = &staleBooker{ReservationEngine: d.Engine.(*ReservationEngine), stale: 1}
		d.Engine = booker
	})

	res := h.turn(t, 1, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron")
	require.NotNil(t, res.Reservation, res.Reply)
	assert.Empty(t, res.Failures)
	assert.Equal(t, int32(2), booker.quotes.Load())
}

func TestStalePriceTwiceIsUnavailable(t *testing.T) {
	var booker *staleBooker
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) {
		booker = &staleBooker{ReservationEngine: d.Engine.(*ReservationEngine), stale: 2}
		d.Engine = booker
	})

	res := h.turn(t, 1, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron")
	assert.Nil(t, res.Reservation)
	assert.Equal(t, []string{string(apperr.KindUnavailable)}, failureKinds(res))
	assert.NotEmpty(t, res.Availability)
	assert.Equal(t, int32(2), booker.quotes.Load())
}

// stuckBooker never answers availability queries before the deadline
type stuckBooker struct {
	*ReservationEngine
}

func (stuckBooker) Execute(ctx context.Context, _ model.ValidatedQuery) ([]model.AvailabilityWindow, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTurnTimeoutDegrades(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.TurnTimeout = 50 * time.Millisecond
	cfg.ToolTimeout = 0
	cfg.MaxAttempts = 1
	h := newHarness(t, cfg, func(d *Deps) {
		d.Engine = stuckBooker{d.Engine.(*ReservationEngine)}
	})

	started := time.Now()
	res := h.turn(t, 1, "Is the deluxe available from 2024-06-01 to 2024-06-03?")
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.True(t, res.Degraded)
	assert.Equal(t, []string{string(apperr.KindToolTimeout)}, failureKinds(res))
	assert.Equal(t, model.StateFailed, res.Trace[len(res.Trace)-1])
}

type failingSearcher struct{ calls atomic.Int32 }

func (f *failingSearcher) Search(context.Context, string, int) ([]model.RetrievalResult, error) {
	f.calls.Add(1)
	return nil, apperr.ToolError("retriever.search", assert.AnError)
}

func TestRetrievalFailureDegradesGracefully(t *testing.T) {
	searcher := &failingSearcher{}
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) { d.Retriever = searcher })

	res := h.turn(t, 1, "Do you allow pets?")
	assert.True(t, res.Degraded)
	assert.Equal(t, noGrounding, res.Reply)
	assert.Equal(t, int32(2), searcher.calls.Load())
}

func TestRetrievalFailureKeepsBooking(t *testing.T) {
	searcher := &failingSearcher{}
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) { d.Retriever = searcher })

	res := h.turn(t, 1, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron, and what are the pool hours?")
	assert.Equal(t, model.IntentMixed, res.Intent)
	require.NotNil(t, res.Reservation, res.Reply)
	assert.Equal(t, model.StatusConfirmed, res.Reservation.Status)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Retrieval)
	assert.Contains(t, res.Reply, "You're booked!")
	assert.Contains(t, res.Reply, noGrounding)
	assert.Equal(t, int32(2), searcher.calls.Load())
}

// lateAckBooker commits the reservation but only answers after the turn deadline
type lateAckBooker struct {
	*ReservationEngine
}

func (b lateAckBooker) Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error) {
	if _, err := b.ReservationEngine.Reserve(context.WithoutCancel(ctx), req); err != nil {
		return model.Reservation{}, err
	}
	<-ctx.Done()
	return model.Reservation{}, apperr.ToolTimeout("engine.reserve", ctx.Err())
}

func TestReservationCommittedAtDeadlineIsReported(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.TurnTimeout = 100 * time.Millisecond
	cfg.ToolTimeout = 0
	cfg.MaxAttempts = 1
	h := newHarness(t, cfg, func(d *Deps) {
		d.Engine = lateAckBooker{d.Engine.(*ReservationEngine)}
	})

	res := h.turn(t, 4, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron")
	require.NotNil(t, res.Reservation, res.Reply)
	assert.Equal(t, model.StatusConfirmed, res.Reservation.Status)
	assert.Equal(t, IdempotencyKey("conv-1", 4), res.Reservation.IdempotencyKey)
	assert.Contains(t, res.Reply, "You're booked!")
	assert.Empty(t, res.Failures)
	assert.True(t, res.Degraded)

	stored, err := h.engine.ReservationByKey(context.Background(), IdempotencyKey("conv-1", 4))
	require.NoError(t, err)
	assert.Equal(t, stored.ID, res.Reservation.ID)

	w, err := h.engine.CheckAvailability(context.Background(), "deluxe", stay("2024-06-01", "2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 11, w.Remaining)
}

// brokenBooker fails every reservation without committing anything
type brokenBooker struct {
	*ReservationEngine
}

func (brokenBooker) Reserve(context.Context, ReserveRequest) (model.Reservation, error) {
	return model.Reservation{}, apperr.ToolError("engine.reserve", assert.AnError)
}

func TestFailedReservationWithoutCommitIsReported(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) {
		d.Engine = brokenBooker{d.Engine.(*ReservationEngine)}
	})

	res := h.turn(t, 1, "Book a deluxe from 2024-06-01 to 2024-06-03 under Ada Byron")
	assert.Nil(t, res.Reservation)
	assert.Equal(t, []string{string(apperr.KindToolError)}, failureKinds(res))
	assert.True(t, res.Degraded)
}

type brokenPlanner struct{}

func (brokenPlanner) Plan(context.Context, model.Utterance, string) (model.Intent, error) {
	return model.Intent{}, assert.AnError
}

func TestPlannerFailureFallsBackToGreeting(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), func(d *Deps) { d.Planner = brokenPlanner{} })

	res := h.turn(t, 1, "Hi")
	assert.Equal(t, model.IntentNone, res.Intent)
	assert.True(t, res.Degraded)
	assert.Equal(t, greeting, res.Reply)
}

func TestHandleTurnRejectsMalformedInput(t *testing.T) {
	h := newHarness(t, testOrchestratorConfig(), nil)

	_, err := h.orch.HandleTurn(context.Background(), "", 1, "hello")
	assert.True(t, apperr.Is(err, apperr.KindRejectedQuery))
	_, err = h.orch.HandleTurn(context.Background(), "conv", -1, "hello")
	assert.True(t, apperr.Is(err, apperr.KindRejectedQuery))
}
