package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

func TestRuleSlotExtractor(t *testing.T) {
	e := NewRuleSlotExtractor(catalog.Default())
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		want model.RawSlots
	}{
		{
			name: "iso dates with guest",
			text: "Book a Deluxe from 2024-06-01 to 2024-06-03 under the name Ada Lovelace",
			want: model.RawSlots{CheckIn: "2024-06-01", CheckOut: "2024-06-03", RoomType: "deluxe", GuestName: "Ada Lovelace"},
		},
		{
			name: "month day range",
			text: "Is the ocean view suite free June 1-3?",
			want: model.RawSlots{CheckIn: "2024-06-01", CheckOut: "2024-06-03", RoomType: "ocean_suite"},
		},
		{
			name: "day month with past date rolls to next year",
			text: "any standard rooms 3rd of April to 5 April",
			want: model.RawSlots{CheckIn: "2025-04-03", CheckOut: "2025-04-05", RoomType: "standard"},
		},
		{
			name: "no room type",
			text: "What's the weather like?",
			want: model.RawSlots{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(ctx, tt.text, testToday)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestRuleSlotExtractorCounts(t *testing.T) {
	e := NewRuleSlotExtractor(catalog.Default())
	got, err := e.Extract(context.Background(), "Two nights from July 4 for 3 guests", testToday)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", got.CheckIn)
	assert.Empty(t, got.CheckOut)
	require.NotNil(t, got.Nights)
	assert.Equal(t, 2, *got.Nights)
	require.NotNil(t, got.PartySize)
	assert.Equal(t, 3, *got.PartySize)
}

func TestRuleSlotExtractorKeepsSeveralRoomsUnresolved(t *testing.T) {
	e := NewRuleSlotExtractor(catalog.Default())
	got, err := e.Extract(context.Background(), "deluxe or penthouse on 2024-06-01", testToday)
	require.NoError(t, err)
	// longest alias first
	assert.Equal(t, "penthouse or deluxe", got.RoomType)
}

func TestMakeDateRejectsOverflow(t *testing.T) {
	_, ok := makeDate(2024, time.February, 30)
	assert.False(t, ok)
	d, ok := makeDate(2024, time.February, 29)
	assert.True(t, ok)
	assert.Equal(t, 29, d.Day())
}

type fakeAIClient struct {
	enabled bool
	slots   *model.RawSlots
	err     error
}

func (f *fakeAIClient) ExtractSlots(context.Context, string, time.Time, []string) (*model.RawSlots, error) {
	return f.slots, f.err
}

func (f *fakeAIClient) CreateEmbeddings(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAIClient) IsEnabled() bool { return f.enabled }

func TestLLMSlotExtractorFallsBackToRules(t *testing.T) {
	c := catalog.Default()
	text := "Deluxe on 2024-06-01 to 2024-06-02"

	disabled := NewLLMSlotExtractor(&fakeAIClient{}, c, nil)
	got, err := disabled.Extract(context.Background(), text, testToday)
	require.NoError(t, err)
	assert.Equal(t, "deluxe", got.RoomType)

	failing := NewLLMSlotExtractor(&fakeAIClient{enabled: true, err: errors.New("502")}, c, nil)
	got, err = failing.Extract(context.Background(), text, testToday)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", got.CheckIn)

	backed := NewLLMSlotExtractor(&fakeAIClient{enabled: true, slots: &model.RawSlots{RoomType: "penthouse"}}, c, nil)
	got, err = backed.Extract(context.Background(), text, testToday)
	require.NoError(t, err)
	assert.Equal(t, "penthouse", got.RoomType)
}
