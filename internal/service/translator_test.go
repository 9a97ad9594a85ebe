package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

func newTestTranslator() *Translator {
	c := catalog.Default()
	return NewTranslator(c, NewRuleSlotExtractor(c), testClock, nil)
}

func utterance(text string) model.Utterance {
	return model.Utterance{ConversationID: "conv-1", TurnSeq: 1, Text: text}
}

var (
	checkIntent = newIntent(false, model.ActionCheck)
	bookIntent  = newIntent(false, model.ActionBook)
)

func TestTranslateAvailabilityCheck(t *testing.T) {
	tr, err := newTestTranslator().Translate(context.Background(), utterance("Is a deluxe available June 1-3 for 2 guests?"), checkIntent)
	require.NoError(t, err)

	assert.Equal(t, model.EntityRoomAvailability, tr.Query.Entity)
	assert.Equal(t, model.OperationSelect, tr.Query.Operation)
	assert.Equal(t, []model.Predicate{
		{Field: model.FieldCheckIn, Op: model.OpGte, Value: "2024-06-01"},
		{Field: model.FieldCheckOut, Op: model.OpLt, Value: "2024-06-03"},
		{Field: model.FieldRoomType, Op: model.OpEq, Value: "deluxe"},
		{Field: model.FieldMaxOccupancy, Op: model.OpGte, Value: 2},
	}, tr.Query.Predicates)

	require.NotNil(t, tr.Slots.Dates)
	assert.Equal(t, 2, tr.Slots.Dates.Nights())
	assert.Nil(t, tr.Slots.Guest)
}

func TestTranslateDerivesCheckOutFromNights(t *testing.T) {
	tr, err := newTestTranslator().Translate(context.Background(), utterance("standard room from 2024-06-10 for 3 nights"), checkIntent)
	require.NoError(t, err)
	co, ok := tr.Query.Find(model.FieldCheckOut, model.OpLt)
	require.True(t, ok)
	assert.Equal(t, "2024-06-13", co.Value)
}

func TestTranslateWithoutRoomTypeAsksForAnyFreeUnit(t *testing.T) {
	tr, err := newTestTranslator().Translate(context.Background(), utterance("anything free 2024-06-10 to 2024-06-12?"), checkIntent)
	require.NoError(t, err)
	p, ok := tr.Query.Find(model.FieldRemainingUnits, model.OpGte)
	require.True(t, ok)
	assert.Equal(t, 1, p.Value)
	_, ok = tr.Query.Find(model.FieldRoomType, model.OpEq)
	assert.False(t, ok)
}

func TestTranslateReportsMissingSlots(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		intent  model.Intent
		missing []string
	}{
		{"booking without dates", "Book a deluxe under the name Ada Lovelace", bookIntent, []string{SlotCheckIn, SlotCheckOut}},
		{"booking without room or guest", "Book something 2024-06-01 to 2024-06-03", bookIntent, []string{SlotRoomType, SlotGuestName}},
		{"check-out before check-in", "deluxe 2024-06-05 to 2024-06-03", checkIntent, []string{SlotCheckOut}},
		{"party larger than any room", "deluxe 2024-06-01 to 2024-06-03 for 9 guests", checkIntent, []string{SlotPartySize}},
		{"ambiguous room type", "book deluxe or penthouse 2024-06-01 to 2024-06-02 under Ada Byron", bookIntent, []string{SlotRoomType}},
		{"only a check-in", "deluxe from 2024-06-01", checkIntent, []string{SlotCheckOut}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestTranslator().Translate(context.Background(), utterance(tt.text), tt.intent)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindTranslationFailure), err.Error())
			assert.Equal(t, tt.missing, apperr.MissingOf(err))
		})
	}
}

func TestTranslateNeverCopiesUserText(t *testing.T) {
	text := "deluxe'; DROP TABLE reservations; -- 2024-06-01 to 2024-06-02"
	tr, err := newTestTranslator().Translate(context.Background(), utterance(text), checkIntent)
	require.NoError(t, err)
	for _, p := range tr.Query.Predicates {
		assert.NotContains(t, fmt.Sprint(p.Value), "DROP")
	}
	rt, ok := tr.Query.Find(model.FieldRoomType, model.OpEq)
	require.True(t, ok)
	assert.Equal(t, "deluxe", rt.Value)
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, time.Time) (*model.RawSlots, error) {
	return nil, errors.New("model down")
}

func TestTranslatePropagatesExtractorErrors(t *testing.T) {
	tr := NewTranslator(catalog.Default(), failingExtractor{}, testClock, nil)
	_, err := tr.Translate(context.Background(), utterance("deluxe"), checkIntent)
	require.Error(t, err)
	assert.Equal(t, apperr.KindToolError, apperr.KindOf(err))
}

func TestCleanGuestName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", cleanGuestName("  Ada   Lovelace "))
	assert.Equal(t, "O'Brien-Smith", cleanGuestName("O'Brien-Smith;"))
	assert.Equal(t, "Robert Tables", cleanGuestName("Robert); Tables"))
	assert.Equal(t, "", cleanGuestName("1234"))
}
