package domain

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 2, 10, 8, 30, 0, 0, time.UTC)

func TestNewCardWithoutSchedule(t *testing.T) {
	ids := &SequentialIDs{Prefix: "c"}
	p := ParsedCard{Question: "q", Answer: "a", LineStart: 3, LineEnd: 5, Bidirectional: true}

	c := NewCard(p, "deck", "notes.md", ids, now)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, New, c.State)
	assert.True(t, c.Due.Equal(now))
	assert.True(t, c.IsDue(now))
	assert.Equal(t, DefaultEase, c.Ease)
	assert.Nil(t, c.LastReview)
	assert.Equal(t, Location{Path: "notes.md", LineStart: 3, LineEnd: 5}, c.Source)
	assert.True(t, c.Bidirectional)
}

func TestNewCardWithRecoveredSchedule(t *testing.T) {
	due := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	interval, ease := 10, 270
	d, s := 4.5, 12.25
	p := ParsedCard{Question: "q", Answer: "a", Due: &due, Interval: &interval, Ease: &ease, Difficulty: &d, Stability: &s}

	c := NewCard(p, "deck", "notes.md", &SequentialIDs{}, now)
	assert.Equal(t, Review, c.State)
	assert.Equal(t, 10, c.Interval)
	assert.Equal(t, 270, c.Ease)
	assert.Equal(t, 4.5, c.Difficulty)
	assert.Equal(t, 12.25, c.Stability)
	require.NotNil(t, c.LastReview)
	assert.True(t, c.LastReview.Equal(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, c.IsDue(now))
}

func TestDeck(t *testing.T) {
	cards := []Card{
		{ID: "a", Due: now.Add(-time.Hour)},
		{ID: "b", Due: now.Add(time.Hour)},
	}
	d := NewDeck("7", "spanish", "/notes", cards, now)
	assert.Equal(t, "7", d.Cards[0].DeckID)

	c, ok := d.Card("b")
	require.True(t, ok)
	c.Reviews = 2
	assert.Equal(t, 2, d.Cards[1].Reviews, "Card returns a pointer into the deck")

	_, ok = d.Card("z")
	assert.False(t, ok)

	due := d.DueCards(now)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)

	assert.NotNil(t, NewDeck("8", "empty", "/e", nil, now).Cards)
}

func TestEnumText(t *testing.T) {
	testCases := []struct {
		name string
		v    interface {
			String() string
			MarshalText() ([]byte, error)
		}
		expected string
	}{
		{"state", Relearning, "Relearning"},
		{"rating", Hard, "Hard"},
		{"category", L1Interference, "L1Interference"},
		{"trend", Worsening, "worsening"},
		{"mode", Feynman, "Feynman"},
		{"challenge", FillTheGap, "FillTheGap"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.v.String())
			b, err := tc.v.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(b))
		})
	}

	_, err := Rating(0).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestEventJSON(t *testing.T) {
	in := ErrorEvent{ID: "e", CardID: "c", Category: FalseFriend, Timestamp: now}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"FalseFriend"`)

	var out ErrorEvent
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, FalseFriend, out.Category)
}

func TestParseRating(t *testing.T) {
	testCases := []struct {
		in       string
		expected Rating
		wantErr  bool
	}{
		{"1", Again, false},
		{"4", Easy, false},
		{"good", Good, false},
		{" HARD ", Hard, false},
		{"5", 0, true},
		{"meh", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			r, err := ParseRating(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, r)
		})
	}
	assert.False(t, Rating(0).IsValid())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("socratic")
	require.NoError(t, err)
	assert.Equal(t, Socratic, m)

	_, err = ParseMode("lecture")
	assert.Error(t, err)
}

func TestSequentialIDsAreUnique(t *testing.T) {
	ids := &SequentialIDs{Prefix: "x"}
	seen := sync.Map{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(ids.NewID(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()

	assert.Len(t, UUIDGenerator{}.NewID(), 36)
	assert.NotEqual(t, UUIDGenerator{}.NewID(), UUIDGenerator{}.NewID())
}
