package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/config"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// KnowledgeSearcher finds grounding snippets for a question
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]model.RetrievalResult, error)
}

// QueryTranslator turns guest text into a structured query
type QueryTranslator interface {
	Translate(ctx context.Context, utt model.Utterance, intent model.Intent) (Translation, error)
}

// QueryValidator gates structured queries
type QueryValidator interface {
	Validate(q model.StructuredQuery) (model.ValidatedQuery, error)
}

// Booker is the availability and reservation side of the engine
type Booker interface {
	Execute(ctx context.Context, q model.ValidatedQuery) ([]model.AvailabilityWindow, error)
	QuoteStay(ctx context.Context, roomType string, dates model.DateRange) (model.Quote, error)
	Reserve(ctx context.Context, req ReserveRequest) (model.Reservation, error)
	ReservationByKey(ctx context.Context, key string) (model.Reservation, error)
	Alternatives(ctx context.Context, dates model.DateRange, exclude string, partySize int) ([]model.AvailabilityQuote, error)
}

// History is per-conversation memory
type History interface {
	FormattedHistory(ctx context.Context, conversationID string) (string, error)
	AppendTurn(ctx context.Context, conversationID, userText, reply string) error
}

// TurnLogger persists turn summaries
type TurnLogger interface {
	LogTurn(ctx context.Context, entry model.TurnLog) error
}

// Deps are the collaborators of the orchestrator. History and TurnLog are optional.
type Deps struct {
	Catalog    *catalog.Catalog
	Planner    Planner
	Retriever  KnowledgeSearcher
	Translator QueryTranslator
	Validator  QueryValidator
	Engine     Booker
	Pricer     *Pricer
	Composer   *Composer
	History    History
	TurnLog    TurnLogger
	Clock      Clock
}

const committedLookupTimeout = time.Second

// Orchestrator runs one guest turn end to end
type Orchestrator struct {
	Deps
	retry       RetryPolicy
	turnTimeout time.Duration
	grace       time.Duration
	topK        int
	logger      *zap.Logger
	pending     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, cfg config.OrchestratorConfig, topK int, logger *zap.Logger) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Composer == nil {
		deps.Composer = NewComposer(deps.Catalog)
	}
	turnTimeout := cfg.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = 20 * time.Second
	}
	return &Orchestrator{
		Deps:        deps,
		retry:       NewRetryPolicy(cfg),
		turnTimeout: turnTimeout,
		grace:       2 * time.Second,
		topK:        topK,
		logger:      logging.OrNop(logger).Named("orchestrator"),
	}
}

// HandleTurn processes one utterance. The returned error is only set for
// malformed input; everything else is reported inside the result.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID string, turnSeq int, text string) (model.ConversationTurnResult, error) {
	if conversationID == "" {
		return model.ConversationTurnResult{}, apperr.Rejected("orchestrator.handle_turn", "conversation id is required")
	}
	if turnSeq < 0 {
		return model.ConversationTurnResult{}, apperr.Rejected("orchestrator.handle_turn", "turn sequence must not be negative")
	}

	started := time.Now()
	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	utt := model.Utterance{ConversationID: conversationID, TurnSeq: turnSeq, Text: text, ReceivedAt: o.Clock()}
	t := &turnRecorder{trace: []model.TurnState{model.StateReceived}}
	log := o.logger.With(zap.String("conversation_id", conversationID), zap.Int("turn_seq", turnSeq))

	history := o.loadHistory(turnCtx, conversationID, log)
	intent := o.plan(turnCtx, utt, history, t, log)
	t.enter(model.StateIntentClassified)
	log.Debug("turn classified",
		zap.String("intent", string(intent.Tag)),
		zap.Bool("retrieve", intent.Retrieve),
		zap.String("action", string(intent.Action)))

	var g errgroup.Group
	if intent.Retrieve {
		g.Go(func() error {
			o.retrieveBranch(turnCtx, t, utt, log)
			return nil
		})
	}
	if intent.Structure {
		g.Go(func() error {
			o.structuredBranch(turnCtx, t, utt, intent, log)
			return nil
		})
	}
	o.await(turnCtx, &g, log)

	if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
		t.timedOut()
	}

	snap := t.snapshot()
	result := o.Composer.Compose(ComposeInput{
		Reservation:        snap.reservation,
		Clarification:      snap.clarification,
		Availability:       snap.availability,
		Alternatives:       snap.alternatives,
		Retrieval:          snap.retrieval,
		KnowledgeRequested: intent.Retrieve,
		Failures:           snap.failures,
	})
	result.ConversationID = conversationID
	result.TurnSeq = turnSeq
	result.Intent = intent.Tag
	result.Degraded = snap.degraded
	result.Trace = append(snap.trace, model.StateComposed)
	if snap.failedOutright() {
		result.Trace = append(result.Trace, model.StateFailed)
	} else {
		result.Trace = append(result.Trace, model.StateDone)
	}

	o.remember(ctx, conversationID, text, result.Reply, log)
	o.logTurn(result, time.Since(started))

	log.Info("turn handled",
		zap.String("intent", string(result.Intent)),
		zap.Bool("degraded", result.Degraded),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

// Close waits for background turn logging to finish
func (o *Orchestrator) Close() {
	o.pending.Wait()
}

// await waits for the branches. After the turn deadline the branches get a
// short grace period to unwind so a reservation that committed is still seen.
func (o *Orchestrator) await(ctx context.Context, g *errgroup.Group, log *zap.Logger) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(o.grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warn("turn branches still running after deadline")
	}
}

func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string, log *zap.Logger) string {
	if o.History == nil {
		return ""
	}
	h, err := o.History.FormattedHistory(ctx, conversationID)
	if err != nil {
		log.Warn("conversation memory unavailable", zap.Error(err))
		return ""
	}
	return h
}

func (o *Orchestrator) plan(ctx context.Context, utt model.Utterance, history string, t *turnRecorder, log *zap.Logger) model.Intent {
	planCtx := ctx
	if o.retry.CallTimeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, o.retry.CallTimeout)
		defer cancel()
	}
	intent, err := o.Planner.Plan(planCtx, utt, history)
	if err != nil {
		log.Warn("planner failed", zap.Error(err))
		t.degrade()
		return newIntent(false, "")
	}
	return intent
}

func (o *Orchestrator) retrieveBranch(ctx context.Context, t *turnRecorder, utt model.Utterance, log *zap.Logger) {
	t.enter(model.StateRetrieving)

	var results []model.RetrievalResult
	_, err := o.retry.Do(ctx, func(ctx context.Context) error {
		r, err := o.Retriever.Search(ctx, utt.Text, o.topK)
		if err != nil {
			return err
		}
		results = r
		return nil
	}, o.notify("retrieve", log))
	if err != nil {
		log.Warn("knowledge retrieval degraded", zap.Error(err))
		t.degrade()
		return
	}
	t.setRetrieval(results)
}

func (o *Orchestrator) structuredBranch(ctx context.Context, t *turnRecorder, utt model.Utterance, intent model.Intent, log *zap.Logger) {
	t.enter(model.StateTranslating)

	var tr Translation
	_, err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		tr, err = o.Translator.Translate(ctx, utt, intent)
		return err
	}, o.notify("translate", log))
	if err != nil {
		if apperr.Is(err, apperr.KindTranslationFailure) {
			t.clarify(o.Composer.ClarificationFor(apperr.MissingOf(err)))
			return
		}
		t.fail(err)
		return
	}

	vq, err := o.Validator.Validate(tr.Query)
	if err != nil {
		log.Info("query rejected", zap.Error(err))
		t.fail(err)
		return
	}
	t.enter(model.StateValidated)

	if intent.Action == model.ActionBook {
		o.book(ctx, t, utt, tr, vq, log)
		return
	}
	o.check(ctx, t, vq, log)
}

func (o *Orchestrator) check(ctx context.Context, t *turnRecorder, vq model.ValidatedQuery, log *zap.Logger) {
	t.enter(model.StateAnswering)

	if vq.RoomType != "" && !o.fits(vq.RoomType, vq.PartySize) {
		t.fail(apperr.Unavailable("orchestrator.check", vq.RoomType+" cannot host the party"))
		o.offerAlternatives(ctx, t, vq.Dates, vq.RoomType, vq.PartySize, log)
		return
	}

	var windows []model.AvailabilityWindow
	_, err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		windows, err = o.Engine.Execute(ctx, vq)
		return err
	}, o.notify("execute", log))
	if err != nil {
		t.fail(err)
		return
	}

	quotes := make([]model.AvailabilityQuote, 0, len(windows))
	soldOut := false
	for _, w := range windows {
		q := model.AvailabilityQuote{RoomType: w.RoomType, Dates: w.Dates, Remaining: w.Remaining}
		if w.Bookable() {
			if price, err := o.Pricer.Quote(w.RoomType, w.Dates, w); err == nil {
				q.Price = &price
			}
		} else {
			soldOut = true
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		t.fail(apperr.Unavailable("orchestrator.check", "nothing free for "+vq.Dates.String()))
	}
	t.setAvailability(quotes)

	if vq.RoomType != "" && soldOut {
		o.offerAlternatives(ctx, t, vq.Dates, vq.RoomType, vq.PartySize, log)
	}
}

func (o *Orchestrator) book(ctx context.Context, t *turnRecorder, utt model.Utterance, tr Translation, vq model.ValidatedQuery, log *zap.Logger) {
	t.enter(model.StateReserving)

	roomType := vq.RoomType
	party := vq.PartySize
	if party < 1 {
		party = 1
	}
	guest := ""
	if tr.Slots.Guest != nil {
		guest = *tr.Slots.Guest
	}
	req := ReserveRequest{
		IdempotencyKey: IdempotencyKey(utt.ConversationID, utt.TurnSeq),
		RoomType:       roomType,
		Dates:          vq.Dates,
		Guest:          guest,
		PartySize:      party,
	}

	if !o.fits(roomType, party) {
		t.fail(apperr.Unavailable("orchestrator.book", roomType+" cannot host the party"))
		o.offerAlternatives(ctx, t, vq.Dates, roomType, party, log)
		return
	}

	// one re-quote is allowed when the price moved under us
	for quoteRound := 0; quoteRound < 2; quoteRound++ {
		quote, err := o.quote(ctx, roomType, vq.Dates, log)
		if err != nil {
			t.fail(err)
			if apperr.Is(err, apperr.KindUnavailable) {
				o.offerAlternatives(ctx, t, vq.Dates, roomType, party, log)
			}
			return
		}
		req.Quote = &quote

		var res model.Reservation
		_, err = o.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = o.Engine.Reserve(ctx, req)
			return err
		}, o.notify("reserve", log))

		switch {
		case err == nil:
			t.setReservation(&res)
			return
		case apperr.Is(err, apperr.KindPriceStale) && quoteRound == 0:
			log.Info("price moved during booking, re-quoting", zap.Error(err))
			continue
		case apperr.Is(err, apperr.KindPriceStale), apperr.Is(err, apperr.KindUnavailable):
			t.fail(apperr.Unavailable("orchestrator.book", err.Error()))
			o.offerAlternatives(ctx, t, vq.Dates, roomType, party, log)
			return
		default:
			// the commit may have landed even though the answer did not
			if r, ok := o.committed(ctx, req.IdempotencyKey, log); ok {
				log.Info("reservation committed before the failure was reported",
					zap.String("reservation_id", r.ID), zap.Error(err))
				t.setReservation(r)
				return
			}
			t.fail(err)
			return
		}
	}
}

// committed looks up the reservation of an idempotency key on a context that
// outlives the turn deadline
func (o *Orchestrator) committed(ctx context.Context, key string, log *zap.Logger) (*model.Reservation, bool) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), committedLookupTimeout)
	defer cancel()

	r, err := o.Engine.ReservationByKey(lookupCtx, key)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			log.Warn("could not look up reservation by idempotency key", zap.Error(err))
		}
		return nil, false
	}
	if r.Status != model.StatusConfirmed {
		return nil, false
	}
	return &r, true
}

func (o *Orchestrator) quote(ctx context.Context, roomType string, dates model.DateRange, log *zap.Logger) (model.Quote, error) {
	var quote model.Quote
	_, err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		quote, err = o.Engine.QuoteStay(ctx, roomType, dates)
		return err
	}, o.notify("quote", log))
	return quote, err
}

func (o *Orchestrator) offerAlternatives(ctx context.Context, t *turnRecorder, dates model.DateRange, exclude string, party int, log *zap.Logger) {
	var alts []model.AvailabilityQuote
	_, err := o.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		alts, err = o.Engine.Alternatives(ctx, dates, exclude, party)
		return err
	}, o.notify("alternatives", log))
	if err != nil {
		log.Warn("could not list alternatives", zap.Error(err))
		return
	}
	t.setAlternatives(alts)
}

func (o *Orchestrator) fits(roomType string, party int) bool {
	rt, ok := o.Catalog.RoomType(roomType)
	return ok && (party <= 0 || party <= rt.MaxOccupancy)
}

func (o *Orchestrator) notify(tool string, log *zap.Logger) RetryNotify {
	return func(err error, attempt int, wait time.Duration) {
		log.Warn("tool call failed, retrying",
			zap.String("tool", tool),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
}

// remember appends the turn to memory; failures only get logged
func (o *Orchestrator) remember(ctx context.Context, conversationID, text, reply string, log *zap.Logger) {
	if o.History == nil {
		return
	}
	memCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := o.History.AppendTurn(memCtx, conversationID, text, reply); err != nil {
		log.Warn("failed to save conversation memory", zap.Error(err))
	}
}

// logTurn writes the turn summary in the background
func (o *Orchestrator) logTurn(result model.ConversationTurnResult, took time.Duration) {
	if o.TurnLog == nil {
		return
	}
	entry := model.TurnLog{
		ConversationID: result.ConversationID,
		TurnSeq:        result.TurnSeq,
		Intent:         string(result.Intent),
		ErrorKinds:     model.JSONArray{},
		Degraded:       result.Degraded,
		LatencyMS:      took.Milliseconds(),
	}
	for _, f := range result.Failures {
		entry.ErrorKinds = append(entry.ErrorKinds, f.Kind)
	}
	if result.Reservation != nil {
		id := result.Reservation.ID
		entry.ReservationID = &id
	}

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.TurnLog.LogTurn(ctx, entry); err != nil {
			o.logger.Warn("failed to log turn", zap.Error(err))
		}
	}()
}

// turnRecorder collects branch outputs. Branches run concurrently.
type turnRecorder struct {
	mu            sync.Mutex
	trace         []model.TurnState
	retrieval     []model.RetrievalResult
	reservation   *model.Reservation
	availability  []model.AvailabilityQuote
	alternatives  []model.AvailabilityQuote
	clarification string
	failures      []model.Failure
	degraded      bool
}

func (t *turnRecorder) enter(s model.TurnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trace = append(t.trace, s)
}

func (t *turnRecorder) degrade() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.degraded = true
}

func (t *turnRecorder) fail(err error) {
	kind := apperr.KindOf(err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, model.Failure{
		Kind:    string(kind),
		Message: apperr.UserMessage(kind),
		Detail:  err.Error(),
	})
	if apperr.Transient(kind) || kind == apperr.KindStoreUnavailable {
		t.degraded = true
	}
}

// timedOut marks the turn degraded. A reservation that made it through is
// still reported, so no timeout failure is added in that case.
func (t *turnRecorder) timedOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.degraded = true
	if t.reservation != nil {
		return
	}
	for _, f := range t.failures {
		if f.Kind == string(apperr.KindToolTimeout) {
			return
		}
	}
	t.failures = append(t.failures, model.Failure{
		Kind:    string(apperr.KindToolTimeout),
		Message: apperr.UserMessage(apperr.KindToolTimeout),
		Detail:  "turn deadline exceeded",
	})
}

func (t *turnRecorder) setRetrieval(r []model.RetrievalResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retrieval = r
}

func (t *turnRecorder) setReservation(r *model.Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reservation = r
}

func (t *turnRecorder) setAvailability(q []model.AvailabilityQuote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.availability = q
}

func (t *turnRecorder) setAlternatives(q []model.AvailabilityQuote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alternatives = q
}

func (t *turnRecorder) clarify(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clarification = text
}

type turnSnapshot struct {
	trace         []model.TurnState
	retrieval     []model.RetrievalResult
	reservation   *model.Reservation
	availability  []model.AvailabilityQuote
	alternatives  []model.AvailabilityQuote
	clarification string
	failures      []model.Failure
	degraded      bool
}

func (t *turnRecorder) snapshot() turnSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return turnSnapshot{
		trace:         append([]model.TurnState(nil), t.trace...),
		retrieval:     append([]model.RetrievalResult(nil), t.retrieval...),
		reservation:   t.reservation,
		availability:  append([]model.AvailabilityQuote(nil), t.availability...),
		alternatives:  append([]model.AvailabilityQuote(nil), t.alternatives...),
		clarification: t.clarification,
		failures:      append([]model.Failure(nil), t.failures...),
		degraded:      t.degraded,
	}
}

// failedOutright reports a turn that produced nothing but failures
func (s turnSnapshot) failedOutright() bool {
	return len(s.failures) > 0 && s.reservation == nil && s.clarification == "" &&
		len(s.availability) == 0 && len(s.retrieval) == 0 && len(s.alternatives) == 0
}
